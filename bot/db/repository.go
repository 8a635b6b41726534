package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/liuran001/WaJID-Go/bot"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Repository persists resolved LID mappings and resolver counters.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

var (
	_ bot.MappingStore   = (*Repository)(nil)
	_ bot.MappingDeleter = (*Repository)(nil)
)

// NewSQLiteRepository creates a repository backed by SQLite.
func NewSQLiteRepository(dsn string, gormLogger logger.Interface) (*Repository, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn required")
	}

	if gormLogger == nil {
		gormLogger = logger.Default.LogMode(logger.Silent)
	}

	dbDir := filepath.Dir(dsn)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		Logger:                 gormLogger,
	})
	if err != nil {
		return nil, err
	}

	if err := applySQLitePragmas(db); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&LIDMappingModel{}, &ResolverStatModel{}); err != nil {
		return nil, err
	}
	if err := migrateMappingResolvedAt(db); err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &Repository{db: db, now: time.Now}, nil
}

// ConfigurePool updates the database connection pool settings.
func (r *Repository) ConfigurePool(maxOpen, maxIdle int, maxLifetime time.Duration) error {
	if r == nil || r.db == nil {
		return errors.New("repository not configured")
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	if maxOpen >= 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle >= 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	if maxLifetime >= 0 {
		sqlDB.SetConnMaxLifetime(maxLifetime)
	}
	return nil
}

// migrateMappingResolvedAt backfills resolved_at for rows written before the column existed.
func migrateMappingResolvedAt(db *gorm.DB) error {
	if err := db.Exec("UPDATE lid_mappings SET resolved_at = updated_at WHERE resolved_at IS NULL OR resolved_at = ''").Error; err != nil {
		return fmt.Errorf("backfill lid_mappings.resolved_at: %w", err)
	}
	return nil
}

// SaveMapping inserts or refreshes a LID mapping.
func (r *Repository) SaveMapping(ctx context.Context, lid, jid string) error {
	if r == nil || r.db == nil {
		return errors.New("repository not configured")
	}
	lid = strings.TrimSpace(lid)
	jid = strings.TrimSpace(jid)
	if lid == "" || jid == "" {
		return fmt.Errorf("save mapping: lid and jid required")
	}

	model := LIDMappingModel{LID: lid, JID: jid, ResolvedAt: r.now().UTC()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "lid"}},
		DoUpdates: clause.AssignmentColumns([]string{"jid", "resolved_at", "updated_at", "deleted_at"}),
	}).Create(&model).Error
}

// FindMapping returns the mapping for a LID, or nil when it is unknown.
func (r *Repository) FindMapping(ctx context.Context, lid string) (*bot.LIDMapping, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("repository not configured")
	}
	var model LIDMappingModel
	err := r.db.WithContext(ctx).Where("lid = ?", lid).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toInternal(model), nil
}

// FindLIDsByJID returns every LID known to map to jid.
func (r *Repository) FindLIDsByJID(ctx context.Context, jid string) ([]*bot.LIDMapping, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("repository not configured")
	}
	var models []LIDMappingModel
	if err := r.db.WithContext(ctx).Where("jid = ?", jid).Order("resolved_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*bot.LIDMapping, 0, len(models))
	for _, model := range models {
		out = append(out, toInternal(model))
	}
	return out, nil
}

// DeleteMapping removes a LID mapping.
func (r *Repository) DeleteMapping(ctx context.Context, lid string) error {
	return r.db.WithContext(ctx).Where("lid = ?", lid).Delete(&LIDMappingModel{}).Error
}

// PruneMappings deletes mappings resolved before cutoff and returns how many were removed.
func (r *Repository) PruneMappings(ctx context.Context, cutoff time.Time) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("repository not configured")
	}
	res := r.db.WithContext(ctx).Unscoped().Where("resolved_at < ?", cutoff.UTC()).Delete(&LIDMappingModel{})
	return res.RowsAffected, res.Error
}

// CountMappings returns the number of stored mappings.
func (r *Repository) CountMappings(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&LIDMappingModel{}).Count(&count).Error
	return count, err
}

// AddStats adds deltas to the named counters, creating missing ones.
func (r *Repository) AddStats(ctx context.Context, deltas map[string]int64) error {
	if r == nil || r.db == nil {
		return errors.New("repository not configured")
	}
	if len(deltas) == 0 {
		return nil
	}

	keys := make([]string, 0, len(deltas))
	for key := range deltas {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, key := range keys {
			delta := deltas[key]
			if delta == 0 {
				continue
			}
			res := tx.Model(&ResolverStatModel{}).Where("key = ?", key).UpdateColumn("value", gorm.Expr("value + ?", delta))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				continue
			}
			if err := tx.Create(&ResolverStatModel{Key: key, Value: delta}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetStats returns all stored counters.
func (r *Repository) GetStats(ctx context.Context) (map[string]int64, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("repository not configured")
	}
	var stats []ResolverStatModel
	if err := r.db.WithContext(ctx).Find(&stats).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(stats))
	for _, stat := range stats {
		out[stat.Key] = stat.Value
	}
	return out, nil
}

func applySQLitePragmas(db *gorm.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, stmt := range pragmas {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	return sqlDB.Close()
}
