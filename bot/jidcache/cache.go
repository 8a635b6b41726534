// Package jidcache resolves linked identifiers and caches enriched group metadata
// on top of a bot.Socket.
package jidcache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/liuran001/WaJID-Go/bot"
	"github.com/liuran001/WaJID-Go/bot/jid"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL                = 5 * time.Minute
	DefaultMaxEntries         = 500
	DefaultResolveConcurrency = 8
	DefaultCallTimeout        = 30 * time.Second

	phoneKeyPrefix = "phone:"
)

// Options configures a Cache. Zero values fall back to the defaults.
type Options struct {
	TTL        time.Duration
	MaxEntries int

	GroupTTL        time.Duration
	GroupMaxEntries int

	// ResolveConcurrency bounds parallel LID lookups while enriching one group.
	ResolveConcurrency int

	// Store receives every resolved mapping. Optional.
	Store bot.MappingStore

	// PersistentFallback answers from Store when the socket cannot resolve a LID.
	PersistentFallback bool

	// CallTimeout bounds one shared socket call. Callers that give up earlier
	// do not cancel it for the others waiting on the same key.
	CallTimeout time.Duration

	Logger bot.Logger
	Now    func() time.Time
}

// Cache resolves LIDs to phone-number JIDs and caches group metadata.
// It is safe for concurrent use.
type Cache struct {
	socket bot.Socket
	lids   *ttlStore[string]
	groups *ttlStore[*bot.GroupMetadata]

	failedMu sync.RWMutex
	failed   map[string]struct{}

	sf          singleflight.Group
	store       bot.MappingStore
	fallback    bool
	concurrency int
	callTimeout time.Duration
	logger      bot.Logger

	lidHits        atomic.Int64
	lidMisses      atomic.Int64
	groupHits      atomic.Int64
	groupMisses    atomic.Int64
	socketFailures atomic.Int64
}

// New creates a Cache over socket.
func New(socket bot.Socket, opts Options) *Cache {
	if opts.GroupTTL <= 0 {
		opts.GroupTTL = opts.TTL
	}
	if opts.GroupMaxEntries <= 0 {
		opts.GroupMaxEntries = opts.MaxEntries
	}
	if opts.ResolveConcurrency <= 0 {
		opts.ResolveConcurrency = DefaultResolveConcurrency
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}

	return &Cache{
		socket:      socket,
		lids:        newTTLStore[string](opts.TTL, opts.MaxEntries, opts.Now),
		groups:      newTTLStore[*bot.GroupMetadata](opts.GroupTTL, opts.GroupMaxEntries, opts.Now),
		failed:      make(map[string]struct{}),
		store:       opts.Store,
		fallback:    opts.PersistentFallback && opts.Store != nil,
		concurrency: opts.ResolveConcurrency,
		callTimeout: opts.CallTimeout,
		logger:      opts.Logger,
	}
}

// ResolveLID returns the phone-number JID for a LID.
// A LID that failed once is remembered and answered with ErrUnresolved
// without contacting the socket again.
func (c *Cache) ResolveLID(ctx context.Context, lid string) (string, error) {
	key := jid.ToLID(lid)
	if key == "" {
		return "", &ResolveError{Op: "resolve lid", ID: lid, Err: ErrNotLID}
	}

	if resolved, ok := c.lids.get(key); ok {
		c.lidHits.Add(1)
		return resolved, nil
	}
	if c.isFailed(key) {
		return "", newUnresolvedError(key, nil)
	}
	c.lidMisses.Add(1)

	v, err := c.shared(ctx, key, func(ctx context.Context) (any, error) {
		return c.resolveLID(ctx, key)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// shared runs fn once for all concurrent callers of key. fn gets a context
// that keeps the caller's values but not its cancellation, so one caller
// giving up does not fail the others. Each caller stops waiting when its own
// ctx is done.
func (c *Cache) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := c.sf.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.callTimeout)
		defer cancel()
		return fn(callCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

func (c *Cache) resolveLID(ctx context.Context, lid string) (string, error) {
	pn, err := c.socket.PNForLID(ctx, lid)
	if err != nil && ctx.Err() != nil {
		return "", ctx.Err()
	}

	if err == nil {
		if resolved := jid.Normalize(pn); jid.IsUser(resolved) {
			c.remember(ctx, lid, resolved)
			return resolved, nil
		}
	} else {
		c.socketFailures.Add(1)
	}

	if c.fallback {
		if resolved := c.persisted(ctx, lid); resolved != "" {
			c.lids.set(lid, resolved)
			return resolved, nil
		}
	}

	c.markFailed(lid)
	if c.logger != nil {
		c.logger.Debug("lid resolution failed", "lid", lid, "error", err)
	}
	return "", newUnresolvedError(lid, err)
}

// ResolveJID returns the canonical phone-number JID for any identifier.
// LIDs are resolved through the cache, everything else is normalized.
func (c *Cache) ResolveJID(ctx context.Context, id string) (string, error) {
	n := jid.Normalize(id)
	if n == "" {
		return "", &ResolveError{Op: "resolve jid", ID: id, Err: ErrInvalidJID}
	}
	if jid.IsLID(n) {
		return c.ResolveLID(ctx, n)
	}
	return n, nil
}

// LookupPhone returns the JID WhatsApp reports for a phone number.
func (c *Cache) LookupPhone(ctx context.Context, phone string) (string, error) {
	n := jid.Normalize(phone)
	if !jid.IsUser(n) {
		return "", &ResolveError{Op: "lookup phone", ID: phone, Err: ErrInvalidJID}
	}
	digits := jid.User(n)
	key := phoneKeyPrefix + digits

	if resolved, ok := c.lids.get(key); ok {
		c.lidHits.Add(1)
		return resolved, nil
	}
	c.lidMisses.Add(1)

	v, err := c.shared(ctx, key, func(ctx context.Context) (any, error) {
		results, err := c.socket.OnWhatsApp(ctx, digits)
		if err != nil {
			if ctx.Err() == nil {
				c.socketFailures.Add(1)
			}
			return "", &ResolveError{Op: "lookup phone", ID: digits, Err: err}
		}
		for _, r := range results {
			if !r.Exists {
				continue
			}
			if resolved := jid.Normalize(r.JID); resolved != "" {
				c.lids.set(key, resolved)
				return resolved, nil
			}
		}
		return "", &ResolveError{Op: "lookup phone", ID: digits, Err: ErrNotOnWhatsApp}
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// ForgetFailure lets a previously failed LID be resolved again.
func (c *Cache) ForgetFailure(lid string) {
	key := jid.ToLID(lid)
	c.failedMu.Lock()
	delete(c.failed, key)
	c.failedMu.Unlock()
}

// InvalidateLID drops a cached mapping.
func (c *Cache) InvalidateLID(lid string) {
	c.lids.delete(jid.ToLID(lid))
}

// ForgetLID drops everything known about lid: the cached mapping, a recorded
// failure and the persisted row when the store supports deletion. The next
// ResolveLID asks the socket again.
func (c *Cache) ForgetLID(ctx context.Context, lid string) error {
	key := jid.ToLID(lid)
	if key == "" {
		return &ResolveError{Op: "forget lid", ID: lid, Err: ErrNotLID}
	}
	c.InvalidateLID(key)
	c.ForgetFailure(key)

	deleter, ok := c.store.(bot.MappingDeleter)
	if !ok {
		return nil
	}
	if err := deleter.DeleteMapping(ctx, key); err != nil {
		return &ResolveError{Op: "forget lid", ID: key, Err: err}
	}
	return nil
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() bot.CacheStats {
	c.failedMu.RLock()
	failed := len(c.failed)
	c.failedMu.RUnlock()

	return bot.CacheStats{
		LIDEntries:     c.lids.len(),
		GroupEntries:   c.groups.len(),
		FailedLIDs:     failed,
		LIDHits:        c.lidHits.Load(),
		LIDMisses:      c.lidMisses.Load(),
		GroupHits:      c.groupHits.Load(),
		GroupMisses:    c.groupMisses.Load(),
		Evictions:      c.lids.evictionCount() + c.groups.evictionCount(),
		SocketFailures: c.socketFailures.Load(),
	}
}

// Reset clears both caches and the failed LID set.
func (c *Cache) Reset() {
	c.lids.clear()
	c.groups.clear()
	c.failedMu.Lock()
	c.failed = make(map[string]struct{})
	c.failedMu.Unlock()
}

func (c *Cache) isFailed(lid string) bool {
	c.failedMu.RLock()
	defer c.failedMu.RUnlock()
	_, ok := c.failed[lid]
	return ok
}

func (c *Cache) markFailed(lid string) {
	c.failedMu.Lock()
	c.failed[lid] = struct{}{}
	c.failedMu.Unlock()
}

// remember caches a known mapping and writes it through to the store.
func (c *Cache) remember(ctx context.Context, lid, resolved string) {
	c.lids.set(lid, resolved)
	if c.store == nil {
		return
	}
	if err := c.store.SaveMapping(ctx, lid, resolved); err != nil && c.logger != nil {
		c.logger.Warn("persist lid mapping failed", "lid", lid, "error", err)
	}
}

func (c *Cache) persisted(ctx context.Context, lid string) string {
	mapping, err := c.store.FindMapping(ctx, lid)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("load persisted lid mapping failed", "lid", lid, "error", err)
		}
		return ""
	}
	if mapping == nil {
		return ""
	}
	return jid.Normalize(mapping.JID)
}
