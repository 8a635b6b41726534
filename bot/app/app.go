package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/liuran001/WaJID-Go/bot"
	"github.com/liuran001/WaJID-Go/bot/config"
	"github.com/liuran001/WaJID-Go/bot/db"
	"github.com/liuran001/WaJID-Go/bot/jidcache"
	logpkg "github.com/liuran001/WaJID-Go/bot/logger"
	"github.com/liuran001/WaJID-Go/bot/whatsapp"
	"github.com/liuran001/WaJID-Go/bot/worker"
)

// App wires all application dependencies.
type App struct {
	Config  *config.Config
	Logger  *logpkg.Logger
	DB      *db.Repository
	Pool    *worker.Pool
	Session *whatsapp.Session
	Socket  bot.Socket // set before Run to skip opening a session
	Cache   *jidcache.Cache
	Build   BuildInfo
	Out     io.Writer

	handlerID uint32
}

// BuildInfo provides build-time metadata.
type BuildInfo struct {
	RuntimeVer string
	BinVersion string
	CommitSHA  string
	BuildTime  string
	BuildArch  string
}

// New builds the application container. The WhatsApp session is opened lazily by commands that need it.
func New(ctx context.Context, configPath string, build BuildInfo) (*App, error) {
	conf, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := logpkg.New(conf.GetString("LogLevel"), conf.GetString("LogFormat"), conf.GetBool("LogSource"), conf.GetString("LogDir"))
	if err != nil {
		return nil, err
	}

	gormLogger := logpkg.NewGormLogger(log.Slog(), logpkg.ParseGormLevel(conf.GetString("GormLogLevel")))
	databasePath := conf.GetString("Database")
	if strings.TrimSpace(databasePath) == "" {
		databasePath = "data/wajid.db"
	}

	repo, err := db.NewSQLiteRepository(databasePath, gormLogger)
	if err != nil {
		_ = log.Close()
		return nil, fmt.Errorf("init db: %w", err)
	}
	poolMaxOpen := conf.GetInt("DBMaxOpenConns")
	poolMaxIdle := conf.GetInt("DBMaxIdleConns")
	poolMaxLifetimeSec := conf.GetInt("DBConnMaxLifetimeSec")
	if err := repo.ConfigurePool(poolMaxOpen, poolMaxIdle, time.Duration(poolMaxLifetimeSec)*time.Second); err != nil {
		_ = repo.Close()
		_ = log.Close()
		return nil, fmt.Errorf("configure db pool: %w", err)
	}

	poolSize := conf.GetInt("WorkerPoolSize")
	pool := worker.New(poolSize)

	log.Debug("application initialized", "version", build.BinVersion, "database", databasePath, "workers", pool.Size())

	return &App{
		Config: conf,
		Logger: log,
		DB:     repo,
		Pool:   pool,
		Build:  build,
		Out:    os.Stdout,
	}, nil
}

// connect opens the WhatsApp session and builds the resolver cache on top of it.
func (a *App) connect(ctx context.Context) error {
	if a.Cache != nil {
		return nil
	}

	if a.Socket == nil {
		waLogger := logpkg.NewWALogger(a.Logger.Slog().With("component", "whatsmeow"), logpkg.ParseLevel(a.Config.GetString("LogLevel")))
		session, err := whatsapp.OpenSession(ctx, a.Config.GetString("SessionDatabase"), waLogger, a.Logger)
		if err != nil {
			return fmt.Errorf("open session: %w", err)
		}
		timeout := time.Duration(a.Config.GetInt("ConnectTimeoutSec")) * time.Second
		if err := session.Connect(ctx, timeout); err != nil {
			_ = session.Close()
			return err
		}
		a.Session = session
		a.Socket = whatsapp.NewFromWhatsmeow(session.Client, whatsapp.Options{
			RateLimitPerSecond:         a.Config.GetFloat64("SocketRateLimitPerSecond"),
			RateLimitBurst:             a.Config.GetInt("SocketRateLimitBurst"),
			MaxRetries:                 a.Config.GetInt("SocketMaxRetries"),
			BreakerConsecutiveFailures: a.Config.GetInt("BreakerConsecutiveFailures"),
			BreakerTimeout:             time.Duration(a.Config.GetInt("BreakerTimeoutSec")) * time.Second,
			Logger:                     a.Logger.With("component", "socket"),
		})
	}

	lidLimits := a.Config.LIDCacheLimits()
	groupLimits := a.Config.GroupCacheLimits()
	opts := jidcache.Options{
		TTL:                time.Duration(lidLimits.TTLSec) * time.Second,
		MaxEntries:         lidLimits.MaxEntries,
		GroupTTL:           time.Duration(groupLimits.TTLSec) * time.Second,
		GroupMaxEntries:    groupLimits.MaxEntries,
		ResolveConcurrency: a.Config.GetInt("ResolveConcurrency"),
		PersistentFallback: a.Config.GetBool("PersistentFallback"),
		Logger:             a.Logger.With("component", "jidcache"),
	}
	if a.Config.GetBool("PersistMappings") {
		opts.Store = a.DB
	}
	a.Cache = jidcache.New(a.Socket, opts)

	if a.Session != nil {
		a.handlerID = a.Session.Client.AddEventHandler(whatsapp.NewEventHandler(a.Cache, a.Logger.With("component", "events")))
	}
	return nil
}

// Run executes one command.
func (a *App) Run(ctx context.Context, command string, args []string) error {
	switch strings.ToLower(strings.TrimSpace(command)) {
	case "normalize":
		return a.runNormalize(args)
	case "resolve":
		return a.withConnection(ctx, func() error { return a.runResolve(ctx, args) })
	case "phone":
		return a.withConnection(ctx, func() error { return a.runPhone(ctx, args) })
	case "group":
		return a.withConnection(ctx, func() error { return a.runGroup(ctx, args) })
	case "forget":
		return a.withConnection(ctx, func() error { return a.runForget(ctx, args) })
	case "lids":
		return a.runLIDs(ctx, args)
	case "status":
		return a.runStatus(ctx)
	case "serve":
		return a.withConnection(ctx, func() error { return a.serve(ctx) })
	case "version":
		fmt.Fprintf(a.Out, "%s (%s) %s %s %s\n", a.Build.BinVersion, a.Build.CommitSHA, a.Build.BuildTime, a.Build.RuntimeVer, a.Build.BuildArch)
		return nil
	case "":
		return ErrNoCommand
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

// Command errors.
var (
	ErrNoCommand      = errors.New("no command given")
	ErrUnknownCommand = errors.New("unknown command")
	ErrMissingArgs    = errors.New("missing arguments")
)

func (a *App) withConnection(ctx context.Context, fn func() error) error {
	if err := a.connect(ctx); err != nil {
		return err
	}
	return fn()
}

func (a *App) serve(ctx context.Context) error {
	if days := a.Config.GetInt("MappingRetentionDays"); days > 0 {
		cutoff := time.Now().AddDate(0, 0, -days)
		removed, err := a.DB.PruneMappings(ctx, cutoff)
		if err != nil {
			a.Logger.Warn("failed to prune mappings", "error", err)
		} else if removed > 0 {
			a.Logger.Info("pruned stale mappings", "removed", removed, "retention_days", days)
		}
	}

	groups := a.Config.GetStringSlice("WarmupGroups")
	if len(groups) > 0 {
		warmed := a.Cache.Prefetch(ctx, a.Pool, groups)
		a.Logger.Info("group cache warmed", "requested", len(groups), "cached", warmed)
	}

	a.Logger.Info("resolver serving", "version", a.Build.BinVersion)
	<-ctx.Done()
	return nil
}

// Shutdown releases resources.
func (a *App) Shutdown(ctx context.Context) error {
	var firstErr error

	if a.Session != nil && a.handlerID != 0 {
		a.Session.Client.RemoveEventHandler(a.handlerID)
	}

	if a.Pool != nil {
		if err := a.Pool.Shutdown(ctx); err != nil {
			a.Pool.StopNow()
			if firstErr == nil {
				firstErr = fmt.Errorf("shutdown worker pool: %w", err)
			}
		}
	}

	if a.Cache != nil && a.DB != nil {
		if err := a.DB.AddStats(ctx, statDeltas(a.Cache.Stats())); err != nil {
			if a.Logger != nil {
				a.Logger.Error("failed to persist cache counters", "error", err)
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("persist stats: %w", err)
			}
		}
	}

	if a.Session != nil {
		if err := a.Session.Close(); err != nil {
			if a.Logger != nil {
				a.Logger.Error("failed to close session", "error", err)
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("close session: %w", err)
			}
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			if a.Logger != nil {
				a.Logger.Error("failed to close database", "error", err)
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("close database: %w", err)
			}
		}
	}

	if a.Logger != nil {
		if err := a.Logger.Close(); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("close logger: %w", err)
			}
		}
	}

	return firstErr
}

func statDeltas(stats bot.CacheStats) map[string]int64 {
	return map[string]int64{
		"lid_hits":        stats.LIDHits,
		"lid_misses":      stats.LIDMisses,
		"group_hits":      stats.GroupHits,
		"group_misses":    stats.GroupMisses,
		"evictions":       stats.Evictions,
		"socket_failures": stats.SocketFailures,
	}
}
