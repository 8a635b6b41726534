package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/liuran001/WaJID-Go/bot"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// ErrNotPaired is returned when the session database holds no logged-in device.
var ErrNotPaired = errors.New("whatsapp: session database has no paired device")

// Session owns a whatsmeow client and its session store.
type Session struct {
	Client    *whatsmeow.Client
	container *sqlstore.Container
	logger    bot.Logger
}

// SessionDSN builds a SQLite DSN with the pragmas the session store needs.
func SessionDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	return "file:" + path + "?" + q.Encode()
}

// OpenSession opens the session database at path and builds a client for its first device.
// Pairing is not handled here; an unpaired store yields ErrNotPaired.
func OpenSession(ctx context.Context, path string, waLogger waLog.Logger, logger bot.Logger) (*Session, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("session database path required")
	}
	if waLogger == nil {
		waLogger = waLog.Noop
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create session directory: %w", err)
		}
	}

	container, err := sqlstore.New(ctx, "sqlite", SessionDSN(path), waLogger.Sub("Database"))
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("load device: %w", err)
	}
	if device == nil || device.ID == nil {
		_ = container.Close()
		return nil, ErrNotPaired
	}

	client := whatsmeow.NewClient(device, waLogger.Sub("Client"))
	return &Session{Client: client, container: container, logger: logger}, nil
}

// Connect connects the client and waits until it is logged in or timeout passes.
func (s *Session) Connect(ctx context.Context, timeout time.Duration) error {
	if s == nil || s.Client == nil {
		return errors.New("whatsapp: session not open")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	if err := s.Client.ConnectContext(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if !s.Client.WaitForConnection(timeout) {
		s.Client.Disconnect()
		return fmt.Errorf("connect: not logged in after %s", timeout)
	}
	if s.logger != nil {
		s.logger.Info("whatsapp connected", "device", s.Client.Store.ID.String())
	}
	return nil
}

// Close disconnects the client and closes the session store.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	if s.Client != nil {
		s.Client.Disconnect()
	}
	if s.container != nil {
		return s.container.Close()
	}
	return nil
}
