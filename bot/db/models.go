package db

import (
	"time"

	"github.com/liuran001/WaJID-Go/bot"
	"gorm.io/gorm"
)

// LIDMappingModel stores a resolved LID and the phone-number JID it maps to.
type LIDMappingModel struct {
	gorm.Model
	LID        string `gorm:"column:lid;not null;uniqueIndex"`
	JID        string `gorm:"column:jid;not null;index"`
	ResolvedAt time.Time
}

func (LIDMappingModel) TableName() string {
	return "lid_mappings"
}

// ResolverStatModel stores aggregated resolver counters.
type ResolverStatModel struct {
	gorm.Model
	Key   string `gorm:"uniqueIndex;not null"`
	Value int64
}

func (ResolverStatModel) TableName() string {
	return "resolver_stats"
}

func toInternal(model LIDMappingModel) *bot.LIDMapping {
	return &bot.LIDMapping{
		ID:         model.ID,
		LID:        model.LID,
		JID:        model.JID,
		ResolvedAt: model.ResolvedAt,
		UpdatedAt:  model.UpdatedAt,
	}
}
