package bot

import "context"

// Logger is the minimal logging abstraction used across modules.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

// Config provides typed access to configuration values.
type Config interface {
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetStringSlice(key string) []string
}

// Socket is the connection that performs the actual WhatsApp network calls.
// Identifiers passed in are already normalized.
type Socket interface {
	// GroupMetadata fetches group info as delivered by the server, without enrichment.
	GroupMetadata(ctx context.Context, groupJID string) (*GroupMetadata, error)
	// OnWhatsApp checks whether a phone number is registered.
	OnWhatsApp(ctx context.Context, phone string) ([]PhoneLookup, error)
	// PNForLID returns the phone-number JID mapped to a LID, or "" when unknown.
	PNForLID(ctx context.Context, lid string) (string, error)
}

// MappingStore persists resolved LID mappings across restarts.
// FindMapping returns nil without error when the LID is unknown.
type MappingStore interface {
	SaveMapping(ctx context.Context, lid, jid string) error
	FindMapping(ctx context.Context, lid string) (*LIDMapping, error)
}

// MappingDeleter is implemented by stores that can drop a persisted mapping.
type MappingDeleter interface {
	DeleteMapping(ctx context.Context, lid string) error
}

// WorkerPool limits concurrency for background tasks.
type WorkerPool interface {
	Submit(task func()) error
	SubmitWait(task func() error) error
	Shutdown(ctx context.Context) error
	Size() int
}
