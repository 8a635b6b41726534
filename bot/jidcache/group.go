package jidcache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/liuran001/WaJID-Go/bot"
	"github.com/liuran001/WaJID-Go/bot/jid"
	"golang.org/x/sync/errgroup"
)

// GroupMetadata returns group metadata with every participant's phone-number
// JID filled in where it can be resolved. Unresolvable participants keep an
// empty JID and never fail the call. The result is a copy owned by the caller.
func (c *Cache) GroupMetadata(ctx context.Context, groupJID string) (*bot.GroupMetadata, error) {
	key := jid.Normalize(groupJID)
	if !jid.IsGroup(key) {
		return nil, &ResolveError{Op: "group metadata", ID: groupJID, Err: ErrNotGroup}
	}

	if meta, ok := c.groups.get(key); ok {
		c.groupHits.Add(1)
		return meta.Clone(), nil
	}
	c.groupMisses.Add(1)

	v, err := c.shared(ctx, "group:"+key, func(ctx context.Context) (any, error) {
		raw, err := c.socket.GroupMetadata(ctx, key)
		if err != nil {
			if ctx.Err() == nil {
				c.socketFailures.Add(1)
			}
			if c.logger != nil {
				c.logger.Warn("fetch group metadata failed", "group", key, "error", err)
			}
			return nil, &ResolveError{Op: "group metadata", ID: key, Err: err}
		}
		if raw == nil {
			return nil, &ResolveError{Op: "group metadata", ID: key, Err: ErrGroupNotFound}
		}

		meta := c.enrich(ctx, key, raw)
		if err := ctx.Err(); err != nil {
			// participants may be half resolved; do not cache
			return nil, err
		}
		c.groups.set(key, meta)
		return meta, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*bot.GroupMetadata).Clone(), nil
}

// enrich fills participant JIDs, resolving LIDs in parallel.
func (c *Cache) enrich(ctx context.Context, key string, raw *bot.GroupMetadata) *bot.GroupMetadata {
	meta := raw.Clone()
	meta.ID = key
	if owner := jid.Normalize(meta.Owner); owner != "" {
		meta.Owner = owner
	}
	if owner := jid.Normalize(meta.SubjectOwner); owner != "" {
		meta.SubjectOwner = owner
	}
	if meta.Size == 0 {
		meta.Size = len(meta.Participants)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i := range meta.Participants {
		p := &meta.Participants[i]
		p.ID = strings.TrimSpace(p.ID)

		lid := jid.ToLID(p.ID)
		if lid == "" {
			lid = jid.ToLID(p.LID)
		}
		p.LID = lid

		pn := ""
		if jid.IsUser(p.PhoneNumber) {
			pn = jid.Normalize(p.PhoneNumber)
		} else if jid.IsUser(p.ID) {
			pn = jid.Normalize(p.ID)
		}

		if pn != "" {
			p.JID = pn
			p.PhoneNumber = jid.PhoneNumber(pn)
			if lid != "" {
				c.seed(lid, pn)
			}
			continue
		}

		p.JID = ""
		p.PhoneNumber = ""
		if lid == "" {
			continue
		}
		g.Go(func() error {
			resolved, err := c.ResolveLID(gctx, lid)
			if err != nil {
				return nil
			}
			p.JID = resolved
			p.PhoneNumber = jid.PhoneNumber(resolved)
			return nil
		})
	}

	_ = g.Wait()
	return meta
}

// seed records a mapping the socket delivered alongside group metadata.
func (c *Cache) seed(lid, pn string) {
	c.lids.set(lid, pn)
	c.ForgetFailure(lid)
}

// InvalidateGroup drops cached metadata for a group.
func (c *Cache) InvalidateGroup(groupJID string) {
	c.groups.delete(jid.Normalize(groupJID))
}

// ParticipantJIDs returns the resolved phone-number JIDs of a group's members.
// Members that could not be resolved are skipped.
func (c *Cache) ParticipantJIDs(ctx context.Context, groupJID string) ([]string, error) {
	meta, err := c.GroupMetadata(ctx, groupJID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(meta.Participants))
	for _, p := range meta.Participants {
		if p.JID != "" {
			out = append(out, p.JID)
		}
	}
	return out, nil
}

// Prefetch loads metadata for groups through pool and reports how many were cached.
// Failures are logged and skipped. A nil pool fetches inline.
func (c *Cache) Prefetch(ctx context.Context, pool bot.WorkerPool, groups []string) int {
	var (
		wg     sync.WaitGroup
		cached atomic.Int64
	)

	fetch := func(group string) {
		if _, err := c.GroupMetadata(ctx, group); err != nil {
			if c.logger != nil {
				c.logger.Debug("prefetch group failed", "group", group, "error", err)
			}
			return
		}
		cached.Add(1)
	}

	for _, group := range jid.Dedupe(groups) {
		if ctx.Err() != nil {
			break
		}
		if pool == nil {
			fetch(group)
			continue
		}
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			fetch(group)
		})
		if err != nil {
			wg.Done()
			if c.logger != nil {
				c.logger.Warn("prefetch submit failed", "group", group, "error", err)
			}
			break
		}
	}

	wg.Wait()
	return int(cached.Load())
}
