package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/liuran001/WaJID-Go/bot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSocket struct {
	lids   map[string]string
	groups map[string]*bot.GroupMetadata
	phones map[string]string
}

func (s *stubSocket) GroupMetadata(_ context.Context, groupJID string) (*bot.GroupMetadata, error) {
	meta, ok := s.groups[groupJID]
	if !ok {
		return nil, nil
	}
	return meta.Clone(), nil
}

func (s *stubSocket) OnWhatsApp(_ context.Context, phone string) ([]bot.PhoneLookup, error) {
	if jid, ok := s.phones[phone]; ok {
		return []bot.PhoneLookup{{Query: phone, JID: jid, Exists: true}}, nil
	}
	return []bot.PhoneLookup{{Query: phone}}, nil
}

func (s *stubSocket) PNForLID(_ context.Context, lid string) (string, error) {
	if pn, ok := s.lids[lid]; ok {
		return pn, nil
	}
	return "", errors.New("no mapping")
}

func newTestApp(t *testing.T, extra string) (*App, *bytes.Buffer) {
	t.Helper()
	return newTestAppInDir(t, t.TempDir(), extra)
}

func newTestAppInDir(t *testing.T, dir, extra string) (*App, *bytes.Buffer) {
	t.Helper()
	content := fmt.Sprintf(`LogLevel = error
GormLogLevel = silent
Database = %s
SessionDatabase = %s
WorkerPoolSize = 2
%s
`, filepath.Join(dir, "wajid.db"), filepath.Join(dir, "session.db"), extra)
	path := filepath.Join(dir, "config.ini")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	application, err := New(context.Background(), path, BuildInfo{BinVersion: "test"})
	require.NoError(t, err)

	var out bytes.Buffer
	application.Out = &out
	application.Socket = &stubSocket{
		lids: map[string]string{"123456789012345@lid": "6281234567890@s.whatsapp.net"},
		groups: map[string]*bot.GroupMetadata{
			"120363000000000001@g.us": {
				ID:      "120363000000000001@g.us",
				Subject: "Team",
				Participants: []bot.Participant{
					{ID: "123456789012345@lid", Admin: bot.AdminSuper},
					{ID: "6289999999999@s.whatsapp.net"},
					{ID: "555@lid"},
				},
			},
		},
		phones: map[string]string{"6281234567890": "6281234567890@s.whatsapp.net"},
	}
	return application, &out
}

func shutdown(t *testing.T, a *App) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Shutdown(ctx))
}

func TestRunNormalize(t *testing.T) {
	a, out := newTestApp(t, "")
	defer shutdown(t, a)

	require.NoError(t, a.Run(context.Background(), "normalize", []string{"+62 812-3456-7890", "lid:42", "x@y@z"}))

	text := out.String()
	assert.Contains(t, text, "6281234567890@s.whatsapp.net")
	assert.Contains(t, text, "42@lid")
	assert.Contains(t, text, "invalid")
	assert.Nil(t, a.Cache, "normalize must not connect")
}

func TestRunResolve(t *testing.T) {
	a, out := newTestApp(t, "")
	defer shutdown(t, a)

	require.NoError(t, a.Run(context.Background(), "resolve", []string{"123456789012345@lid", "6281111111111@c.us"}))
	assert.Contains(t, out.String(), "123456789012345@lid\t6281234567890@s.whatsapp.net")
	assert.Contains(t, out.String(), "6281111111111@c.us\t6281111111111@s.whatsapp.net")

	mapping, err := a.DB.FindMapping(context.Background(), "123456789012345@lid")
	require.NoError(t, err)
	require.NotNil(t, mapping, "resolved mapping should be persisted")
	assert.Equal(t, "6281234567890@s.whatsapp.net", mapping.JID)
}

func TestRunResolveReportsFailures(t *testing.T) {
	a, out := newTestApp(t, "")
	defer shutdown(t, a)

	err := a.Run(context.Background(), "resolve", []string{"999@lid"})
	require.Error(t, err)
	assert.Contains(t, out.String(), "999@lid\terror:")
}

func TestRunPhone(t *testing.T) {
	a, out := newTestApp(t, "")
	defer shutdown(t, a)

	require.NoError(t, a.Run(context.Background(), "phone", []string{"+62 812 3456 7890"}))
	assert.Contains(t, out.String(), "6281234567890@s.whatsapp.net")

	assert.Error(t, a.Run(context.Background(), "phone", []string{"6280000000000"}))
}

func TestRunGroup(t *testing.T) {
	a, out := newTestApp(t, "")
	defer shutdown(t, a)

	require.NoError(t, a.Run(context.Background(), "group", []string{"120363000000000001@g.us"}))
	text := out.String()
	assert.Contains(t, text, `"Team"`)
	assert.Contains(t, text, "6281234567890@s.whatsapp.net")
	assert.Contains(t, text, "superadmin")

	err := a.Run(context.Background(), "group", []string{"6281234567890@s.whatsapp.net"})
	assert.Error(t, err)
}

func TestRunLIDsAndForget(t *testing.T) {
	a, out := newTestApp(t, "")
	defer shutdown(t, a)
	ctx := context.Background()

	require.NoError(t, a.Run(ctx, "resolve", []string{"123456789012345@lid"}))

	out.Reset()
	require.NoError(t, a.Run(ctx, "lids", []string{"+62 812-3456-7890"}))
	assert.Contains(t, out.String(), "123456789012345@lid")

	out.Reset()
	require.NoError(t, a.Run(ctx, "forget", []string{"lid:123456789012345"}))
	assert.Contains(t, out.String(), "123456789012345@lid\tforgotten")
	assert.Equal(t, 0, a.Cache.Stats().LIDEntries)

	mapping, err := a.DB.FindMapping(ctx, "123456789012345@lid")
	require.NoError(t, err)
	assert.Nil(t, mapping, "forget must drop the persisted mapping")

	out.Reset()
	require.NoError(t, a.Run(ctx, "lids", []string{"6281234567890@s.whatsapp.net"}))
	assert.NotContains(t, out.String(), "123456789012345@lid")

	assert.Error(t, a.Run(ctx, "forget", []string{"6281234567890@s.whatsapp.net"}))
	assert.Error(t, a.Run(ctx, "lids", []string{"120363000000000001@g.us"}))
}

func TestRunStatusAfterShutdownPersistsCounters(t *testing.T) {
	dir := t.TempDir()
	a, _ := newTestAppInDir(t, dir, "")
	require.NoError(t, a.Run(context.Background(), "resolve", []string{"123456789012345@lid", "123456789012345@lid"}))
	shutdown(t, a)

	b, out := newTestAppInDir(t, dir, "")
	defer shutdown(t, b)

	require.NoError(t, b.Run(context.Background(), "status", nil))
	text := out.String()
	assert.Contains(t, text, "persisted mappings: 1")
	assert.Contains(t, text, "lid_hits: 1")
	assert.Contains(t, text, "lid_misses: 1")
}

func TestRunServeWarmsGroups(t *testing.T) {
	a, _ := newTestApp(t, "WarmupGroups = 120363000000000001@g.us,120363000000000009@g.us\nMappingRetentionDays = 30")
	defer shutdown(t, a)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.connect(ctx))
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, "serve", nil) }()

	require.Eventually(t, func() bool {
		return a.Cache.Stats().GroupEntries == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestRunUnknownCommand(t *testing.T) {
	a, _ := newTestApp(t, "")
	defer shutdown(t, a)

	assert.ErrorIs(t, a.Run(context.Background(), "bogus", nil), ErrUnknownCommand)
	assert.ErrorIs(t, a.Run(context.Background(), "", nil), ErrNoCommand)
	assert.ErrorIs(t, a.Run(context.Background(), "resolve", nil), ErrMissingArgs)
}

func TestKindOf(t *testing.T) {
	tests := map[string]string{
		"":                             "invalid",
		"1@lid":                        "lid",
		"1-2@g.us":                     "group",
		"6281234567890@s.whatsapp.net": "user",
		"status@broadcast":             "broadcast",
		"1@newsletter":                 "newsletter",
	}
	for in, want := range tests {
		assert.Equal(t, want, kindOf(in), "kind of %q", in)
	}
	assert.Equal(t, "-", orDash(""))
}
