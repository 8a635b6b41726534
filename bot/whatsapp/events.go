package whatsapp

import (
	"github.com/liuran001/WaJID-Go/bot"
	"github.com/liuran001/WaJID-Go/bot/jid"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types/events"
)

// GroupInvalidator drops cached group metadata.
type GroupInvalidator interface {
	InvalidateGroup(groupJID string)
}

// NewEventHandler returns a whatsmeow event handler that keeps cache entries fresh.
// Group changes and joins drop the group entry.
func NewEventHandler(groups GroupInvalidator, logger bot.Logger) whatsmeow.EventHandler {
	return func(evt any) {
		switch e := evt.(type) {
		case *events.GroupInfo:
			invalidateGroup(groups, jid.Format(e.JID), "group_info", logger)
		case *events.JoinedGroup:
			invalidateGroup(groups, jid.Format(e.JID), "joined_group", logger)
		case *events.Disconnected:
			if logger != nil {
				logger.Warn("whatsapp disconnected")
			}
		case *events.LoggedOut:
			if logger != nil {
				logger.Error("whatsapp session logged out", "reason", e.Reason.String())
			}
		}
	}
}

func invalidateGroup(groups GroupInvalidator, group, reason string, logger bot.Logger) {
	if groups == nil || group == "" {
		return
	}
	groups.InvalidateGroup(group)
	if logger != nil {
		logger.Debug("group cache invalidated", "group", group, "reason", reason)
	}
}
