// Package whatsapp implements bot.Socket on top of whatsmeow.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/liuran001/WaJID-Go/bot"
	"github.com/liuran001/WaJID-Go/bot/jid"
	"github.com/sony/gobreaker"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
	"golang.org/x/time/rate"
)

// GroupAPI is the part of *whatsmeow.Client that talks to the server.
type GroupAPI interface {
	GetGroupInfo(ctx context.Context, jid types.JID) (*types.GroupInfo, error)
	IsOnWhatsApp(ctx context.Context, phones []string) ([]types.IsOnWhatsAppResponse, error)
}

// LIDLookup is the part of whatsmeow's LID store used to map LIDs to phone numbers.
type LIDLookup interface {
	GetPNForLID(ctx context.Context, lid types.JID) (types.JID, error)
}

// Options tunes traffic shaping for socket calls.
type Options struct {
	RateLimitPerSecond         float64
	RateLimitBurst             int
	MaxRetries                 int
	MinBackoff                 time.Duration
	MaxBackoff                 time.Duration
	BreakerConsecutiveFailures int
	BreakerTimeout             time.Duration
	Logger                     bot.Logger
}

// Client provides rate limited, retried and circuit-broken socket calls.
type Client struct {
	api        GroupAPI
	lids       LIDLookup
	retry      *retryablehttp.Client
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	maxRetries int
	minBackoff time.Duration
	maxBackoff time.Duration
	logger     bot.Logger
}

var _ bot.Socket = (*Client)(nil)

// New creates a socket client. lids may be nil, in which case no LID resolves.
func New(api GroupAPI, lids LIDLookup, opts Options) *Client {
	client := retryablehttp.NewClient()
	client.RetryMax = opts.MaxRetries
	if client.RetryMax < 0 {
		client.RetryMax = 0
	}
	if opts.MinBackoff > 0 {
		client.RetryWaitMin = opts.MinBackoff
	} else {
		client.RetryWaitMin = 200 * time.Millisecond
	}
	if opts.MaxBackoff > 0 {
		client.RetryWaitMax = opts.MaxBackoff
	} else {
		client.RetryWaitMax = 2 * time.Second
	}
	client.Logger = nil

	failures := opts.BreakerConsecutiveFailures
	if failures <= 0 {
		failures = 5
	}
	timeout := opts.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "whatsapp-socket",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if opts.Logger != nil {
				opts.Logger.Warn("socket breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			}
		},
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimitPerSecond > 0 {
		burst := opts.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitPerSecond), burst)
	}

	return &Client{
		api:        api,
		lids:       lids,
		retry:      client,
		breaker:    gobreaker.NewCircuitBreaker(settings),
		limiter:    limiter,
		maxRetries: client.RetryMax,
		minBackoff: client.RetryWaitMin,
		maxBackoff: client.RetryWaitMax,
		logger:     opts.Logger,
	}
}

// NewFromWhatsmeow wraps a connected whatsmeow client.
func NewFromWhatsmeow(cli *whatsmeow.Client, opts Options) *Client {
	var lids LIDLookup
	if cli.Store != nil && cli.Store.LIDs != nil {
		lids = cli.Store.LIDs
	}
	return New(cli, lids, opts)
}

// GroupMetadata fetches group info. A group the server does not know yields nil, nil.
func (c *Client) GroupMetadata(ctx context.Context, groupJID string) (*bot.GroupMetadata, error) {
	target, err := jid.Parse(groupJID)
	if err != nil {
		return nil, fmt.Errorf("group metadata %q: %w", groupJID, err)
	}
	if c.logger != nil {
		c.logger.Debug("fetching group info", "group", groupJID)
	}

	var info *types.GroupInfo
	err = c.execute(ctx, func() error {
		var callErr error
		info, callErr = c.api.GetGroupInfo(ctx, target)
		return callErr
	})
	if errors.Is(err, whatsmeow.ErrGroupNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, nil
	}
	return toGroupMetadata(info), nil
}

// OnWhatsApp checks whether phone is registered.
func (c *Client) OnWhatsApp(ctx context.Context, phone string) ([]bot.PhoneLookup, error) {
	number := jid.PhoneNumber(jid.FromPhone(phone))
	if number == "" {
		return nil, fmt.Errorf("on whatsapp %q: %w", phone, jid.ErrInvalid)
	}

	var resp []types.IsOnWhatsAppResponse
	err := c.execute(ctx, func() error {
		var callErr error
		resp, callErr = c.api.IsOnWhatsApp(ctx, []string{"+" + number})
		return callErr
	})
	if err != nil {
		return nil, err
	}

	out := make([]bot.PhoneLookup, 0, len(resp))
	for _, item := range resp {
		out = append(out, bot.PhoneLookup{
			Query:  item.Query,
			JID:    jid.Format(item.JID),
			Exists: item.IsIn,
		})
	}
	return out, nil
}

// PNForLID looks up the phone number mapped to lid in the session store.
func (c *Client) PNForLID(ctx context.Context, lid string) (string, error) {
	if c.lids == nil {
		return "", nil
	}
	target, err := jid.Parse(lid)
	if err != nil {
		return "", fmt.Errorf("pn for lid %q: %w", lid, err)
	}
	if target.Server != types.HiddenUserServer {
		return "", fmt.Errorf("pn for lid %q: %w", lid, jid.ErrInvalid)
	}

	pn, err := c.lids.GetPNForLID(ctx, target)
	if err != nil {
		return "", fmt.Errorf("pn for lid %q: %w", lid, err)
	}
	return jid.Format(pn), nil
}

func (c *Client) execute(ctx context.Context, fn func() error) error {
	if fn == nil {
		return nil
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.withRetry(ctx, fn)
	})
	return err
}

func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	if fn == nil {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if isPermanent(err) {
			return err
		}

		if attempt == c.maxRetries {
			break
		}

		wait := c.retry.Backoff(c.minBackoff, c.maxBackoff, attempt, nil)
		if c.logger != nil {
			c.logger.Debug("retrying socket call", "attempt", attempt+1, "wait", wait, "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	if lastErr == nil {
		lastErr = errors.New("whatsapp: retry failed")
	}
	return lastErr
}

// isPermanent reports errors that a retry cannot fix.
func isPermanent(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, whatsmeow.ErrGroupNotFound),
		errors.Is(err, whatsmeow.ErrNotInGroup),
		errors.Is(err, whatsmeow.ErrNotLoggedIn),
		errors.Is(err, jid.ErrInvalid):
		return true
	}
	var iqErr *whatsmeow.IQError
	if errors.As(err, &iqErr) {
		return iqErr.Code >= 400 && iqErr.Code < 500 && iqErr.Code != 408 && iqErr.Code != 429
	}
	return false
}

func toGroupMetadata(info *types.GroupInfo) *bot.GroupMetadata {
	meta := &bot.GroupMetadata{
		ID:           jid.Format(info.JID),
		Subject:      info.Name,
		SubjectOwner: firstJID(info.NameSetByPN, info.NameSetBy),
		Owner:        firstJID(info.OwnerPN, info.OwnerJID),
		Description:  info.Topic,
		Creation:     info.GroupCreated,
		Announce:     info.IsAnnounce,
		Restrict:     info.IsLocked,
		Size:         info.ParticipantCount,
	}

	meta.Participants = make([]bot.Participant, 0, len(info.Participants))
	for _, p := range info.Participants {
		part := bot.Participant{
			ID:          jid.Format(p.JID),
			LID:         jid.Format(p.LID),
			PhoneNumber: jid.Format(p.PhoneNumber),
		}
		switch p.JID.Server {
		case types.HiddenUserServer:
			if part.LID == "" {
				part.LID = part.ID
			}
		case types.DefaultUserServer:
			if part.PhoneNumber == "" {
				part.PhoneNumber = part.ID
			}
		}
		switch {
		case p.IsSuperAdmin:
			part.Admin = bot.AdminSuper
		case p.IsAdmin:
			part.Admin = bot.AdminAdmin
		}
		meta.Participants = append(meta.Participants, part)
	}
	if meta.Size == 0 {
		meta.Size = len(meta.Participants)
	}
	return meta
}

func firstJID(candidates ...types.JID) string {
	for _, candidate := range candidates {
		if s := jid.Format(candidate); s != "" {
			return s
		}
	}
	return ""
}
