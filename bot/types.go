package bot

import "time"

// Participant admin levels as reported by the server.
const (
	AdminNone  = ""
	AdminAdmin = "admin"
	AdminSuper = "superadmin"
)

// GroupMetadata represents a group and its participants.
// Participants are enriched with resolved phone-number JIDs by the cache.
type GroupMetadata struct {
	ID           string
	Subject      string
	SubjectOwner string
	Owner        string
	Description  string
	Creation     time.Time
	Announce     bool // only admins can send messages
	Restrict     bool // only admins can edit group info
	Size         int
	Participants []Participant
}

// Participant is a single group member.
type Participant struct {
	ID          string // identifier as delivered by the socket, may be a LID
	JID         string // phone-number JID, empty when it could not be resolved
	LID         string
	PhoneNumber string
	Admin       string
}

// IsAdmin reports whether the participant is an admin or super admin.
func (p Participant) IsAdmin() bool {
	return p.Admin == AdminAdmin || p.Admin == AdminSuper
}

// Clone returns a deep copy of the metadata.
func (m *GroupMetadata) Clone() *GroupMetadata {
	if m == nil {
		return nil
	}
	out := *m
	if m.Participants != nil {
		out.Participants = make([]Participant, len(m.Participants))
		copy(out.Participants, m.Participants)
	}
	return &out
}

// PhoneLookup is one result of an OnWhatsApp query.
type PhoneLookup struct {
	Query  string
	JID    string
	Exists bool
}

// LIDMapping is a persisted LID to phone-number JID pair.
type LIDMapping struct {
	ID         uint
	LID        string
	JID        string
	ResolvedAt time.Time
	UpdatedAt  time.Time
}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	LIDEntries     int
	GroupEntries   int
	FailedLIDs     int
	LIDHits        int64
	LIDMisses      int64
	GroupHits      int64
	GroupMisses    int64
	Evictions      int64
	SocketFailures int64
}
