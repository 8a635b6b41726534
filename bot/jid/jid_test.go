package jid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/types"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "whitespace", in: "   ", want: ""},
		{name: "canonical user", in: "6281234567890@s.whatsapp.net", want: "6281234567890@s.whatsapp.net"},
		{name: "device suffix", in: "6281234567890:12@s.whatsapp.net", want: "6281234567890@s.whatsapp.net"},
		{name: "agent and device", in: "6281234567890.0:3@s.whatsapp.net", want: "6281234567890@s.whatsapp.net"},
		{name: "resource suffix", in: "6281234567890@s.whatsapp.net/web", want: "6281234567890@s.whatsapp.net"},
		{name: "legacy server", in: "6281234567890@c.us", want: "6281234567890@s.whatsapp.net"},
		{name: "uppercase server", in: "6281234567890@S.WhatsApp.NET", want: "6281234567890@s.whatsapp.net"},
		{name: "plus prefix", in: "+6281234567890@s.whatsapp.net", want: "6281234567890@s.whatsapp.net"},
		{name: "group", in: "120363025246125888@g.us", want: "120363025246125888@g.us"},
		{name: "legacy group", in: "6281234567890-1596000000@g.us", want: "6281234567890-1596000000@g.us"},
		{name: "group with device", in: "120363025246125888:4@g.us", want: "120363025246125888@g.us"},
		{name: "lid", in: "123456789012345@lid", want: "123456789012345@lid"},
		{name: "lid with device", in: "123456789012345:7@lid", want: "123456789012345@lid"},
		{name: "lid prefix", in: "lid:123456789012345", want: "123456789012345@lid"},
		{name: "lid prefix uppercase", in: "LID:123456789012345", want: "123456789012345@lid"},
		{name: "lid prefix not numeric", in: "lid:abc", want: ""},
		{name: "bare phone", in: "6281234567890", want: "6281234567890@s.whatsapp.net"},
		{name: "formatted phone", in: "+1 (555) 123-4567", want: "15551234567@s.whatsapp.net"},
		{name: "garbage", in: "hello world", want: ""},
		{name: "empty user", in: "@s.whatsapp.net", want: ""},
		{name: "double at", in: "1@2@s.whatsapp.net", want: ""},
		{name: "user not numeric", in: "abc@s.whatsapp.net", want: ""},
		{name: "formatted user", in: "+1 (555) 123@s.whatsapp.net", want: "1555123@s.whatsapp.net"},
		{name: "group not numeric", in: "hello world@g.us", want: ""},
		{name: "group bad legacy id", in: "123-abc@g.us", want: ""},
		{name: "lid not numeric", in: "abc@lid", want: ""},
		{name: "broadcast", in: "status@broadcast", want: "status@broadcast"},
		{name: "padded", in: "  6281234567890@s.whatsapp.net  ", want: "6281234567890@s.whatsapp.net"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("6281234567890@s.whatsapp.net"))
	assert.True(t, IsValid("120363025246125888@g.us"))
	assert.True(t, IsValid("6281234567890-1596000000@g.us"))

	assert.False(t, IsValid("6281234567890:1@s.whatsapp.net"))
	assert.False(t, IsValid("123456789012345@lid"))
	assert.False(t, IsValid("1234@s.whatsapp.net"), "too short for a phone number")
	assert.False(t, IsValid("abc@s.whatsapp.net"))
	assert.False(t, IsValid(""))
}

func TestClassification(t *testing.T) {
	assert.True(t, IsLID("123456789012345@lid"))
	assert.True(t, IsLID("lid:123456789012345"))
	assert.True(t, IsLID(" 123456789012345:2@LID "))
	assert.False(t, IsLID("6281234567890@s.whatsapp.net"))
	assert.False(t, IsLID("123@hosted.lid"))

	assert.True(t, IsGroup("120363025246125888@g.us"))
	assert.False(t, IsGroup("6281234567890@s.whatsapp.net"))

	assert.True(t, IsUser("6281234567890@c.us"))
	assert.True(t, IsUser("6281234567890"))
	assert.False(t, IsUser("123456789012345@lid"))

	assert.True(t, IsBroadcast("status@broadcast"))
	assert.True(t, IsNewsletter("120363144038483540@newsletter"))
}

func TestPhoneNumberAndUser(t *testing.T) {
	assert.Equal(t, "6281234567890", PhoneNumber("6281234567890:3@s.whatsapp.net"))
	assert.Equal(t, "", PhoneNumber("120363025246125888@g.us"))
	assert.Equal(t, "", PhoneNumber("123456789012345@lid"))

	assert.Equal(t, "120363025246125888", User("120363025246125888@g.us"))
	assert.Equal(t, "", User("not an id"))

	assert.Equal(t, "15551234567@s.whatsapp.net", FromPhone("+1 555-123-4567"))
	assert.Equal(t, "", FromPhone("call me"))
}

func TestToLID(t *testing.T) {
	assert.Equal(t, "123456789012345@lid", ToLID("lid:123456789012345"))
	assert.Equal(t, "123456789012345@lid", ToLID("123456789012345:9@lid"))
	assert.Equal(t, "", ToLID("6281234567890@s.whatsapp.net"))
}

func TestParseAndFormat(t *testing.T) {
	parsed, err := Parse("6281234567890:5@c.us")
	require.NoError(t, err)
	assert.Equal(t, "6281234567890", parsed.User)
	assert.Equal(t, types.DefaultUserServer, parsed.Server)

	_, err = Parse("???")
	assert.ErrorIs(t, err, ErrInvalid)

	withDevice := types.JID{User: "6281234567890", Server: types.DefaultUserServer, Device: 7}
	assert.Equal(t, "6281234567890@s.whatsapp.net", Format(withDevice))
	assert.Equal(t, "", Format(types.EmptyJID))

	lid := types.NewJID("123456789012345", types.HiddenUserServer)
	assert.Equal(t, "123456789012345@lid", Format(lid))
}

func TestDedupe(t *testing.T) {
	got := Dedupe([]string{
		"6281234567890:1@s.whatsapp.net",
		"6281234567890@c.us",
		"",
		"lid:123456789012345",
		"123456789012345@lid",
		"120363025246125888@g.us",
	})
	want := []string{
		"6281234567890@s.whatsapp.net",
		"123456789012345@lid",
		"120363025246125888@g.us",
	}
	assert.Equal(t, want, got)
}
