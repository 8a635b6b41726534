package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/liuran001/WaJID-Go/bot/jid"
)

func (a *App) runNormalize(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("normalize: %w", ErrMissingArgs)
	}
	w := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INPUT\tNORMALIZED\tKIND\tVALID")
	for _, arg := range args {
		normalized := jid.Normalize(arg)
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", arg, orDash(normalized), kindOf(normalized), jid.IsValid(normalized))
	}
	return w.Flush()
}

func (a *App) runResolve(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("resolve: %w", ErrMissingArgs)
	}
	var failed int
	for _, arg := range args {
		resolved, err := a.Cache.ResolveJID(ctx, arg)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			fmt.Fprintf(a.Out, "%s\terror: %v\n", arg, err)
			continue
		}
		fmt.Fprintf(a.Out, "%s\t%s\n", arg, resolved)
	}
	if failed > 0 {
		return fmt.Errorf("resolve: %d of %d unresolved", failed, len(args))
	}
	return nil
}

func (a *App) runPhone(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("phone: %w", ErrMissingArgs)
	}
	var failed int
	for _, arg := range args {
		resolved, err := a.Cache.LookupPhone(ctx, arg)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			fmt.Fprintf(a.Out, "%s\terror: %v\n", arg, err)
			continue
		}
		fmt.Fprintf(a.Out, "%s\t%s\n", arg, resolved)
	}
	if failed > 0 {
		return fmt.Errorf("phone: %d of %d not found", failed, len(args))
	}
	return nil
}

func (a *App) runGroup(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("group: %w", ErrMissingArgs)
	}
	var errs []error
	for _, arg := range args {
		meta, err := a.Cache.GroupMetadata(ctx, arg)
		if err != nil {
			errs = append(errs, fmt.Errorf("group %s: %w", arg, err))
			continue
		}

		fmt.Fprintf(a.Out, "%s  %q  size=%d owner=%s\n", meta.ID, meta.Subject, meta.Size, orDash(meta.Owner))
		if meta.Description != "" {
			fmt.Fprintf(a.Out, "  %s\n", meta.Description)
		}
		w := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "  ID\tJID\tADMIN")
		for _, p := range meta.Participants {
			fmt.Fprintf(w, "  %s\t%s\t%s\n", p.ID, orDash(p.JID), orDash(p.Admin))
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

func (a *App) runForget(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("forget: %w", ErrMissingArgs)
	}
	var errs []error
	for _, arg := range args {
		if err := a.Cache.ForgetLID(ctx, arg); err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(a.Out, "%s\tforgotten\n", jid.ToLID(arg))
	}
	return errors.Join(errs...)
}

// runLIDs lists the persisted LIDs that resolved to each phone-number JID.
func (a *App) runLIDs(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("lids: %w", ErrMissingArgs)
	}
	w := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JID\tLID\tRESOLVED")
	var errs []error
	for _, arg := range args {
		target := jid.Normalize(arg)
		if !jid.IsUser(target) {
			errs = append(errs, fmt.Errorf("lids %s: %w", arg, jid.ErrInvalid))
			continue
		}
		mappings, err := a.DB.FindLIDsByJID(ctx, target)
		if err != nil {
			return fmt.Errorf("lids: %w", err)
		}
		if len(mappings) == 0 {
			fmt.Fprintf(w, "%s\t-\t-\n", target)
			continue
		}
		for _, m := range mappings {
			fmt.Fprintf(w, "%s\t%s\t%s\n", target, m.LID, m.ResolvedAt.Format(time.RFC3339))
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func (a *App) runStatus(ctx context.Context) error {
	count, err := a.DB.CountMappings(ctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	stats, err := a.DB.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	fmt.Fprintf(a.Out, "persisted mappings: %d\n", count)
	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(a.Out, "%s: %d\n", key, stats[key])
	}

	if a.Cache != nil {
		s := a.Cache.Stats()
		fmt.Fprintf(a.Out, "cache: lids=%d groups=%d failed=%d\n", s.LIDEntries, s.GroupEntries, s.FailedLIDs)
	}
	return nil
}

func kindOf(normalized string) string {
	switch {
	case normalized == "":
		return "invalid"
	case jid.IsLID(normalized):
		return "lid"
	case jid.IsGroup(normalized):
		return "group"
	case jid.IsUser(normalized):
		return "user"
	case jid.IsBroadcast(normalized):
		return "broadcast"
	case jid.IsNewsletter(normalized):
		return "newsletter"
	default:
		_, server, _ := strings.Cut(normalized, "@")
		return server
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
