package factory

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mcoot/wolfbot/internal/dependencies/clock"
	"github.com/mcoot/wolfbot/internal/dependencies/ids"
	"github.com/mcoot/wolfbot/internal/directory"
	"github.com/mcoot/wolfbot/internal/directory/discord"
	"github.com/mcoot/wolfbot/internal/directory/memory"
	"github.com/mcoot/wolfbot/internal/services/auth"
	"github.com/mcoot/wolfbot/internal/services/dirsync"
	"github.com/mcoot/wolfbot/internal/services/game"
	"github.com/mcoot/wolfbot/internal/services/journal"
	"github.com/mcoot/wolfbot/internal/storage"
	storagememory "github.com/mcoot/wolfbot/internal/storage/memory"
	redisstorage "github.com/mcoot/wolfbot/internal/storage/redis"
	sqlstorage "github.com/mcoot/wolfbot/internal/storage/sql"
)

// Storage type constants
const (
	StorageTypeMemory = "memory"
	StorageTypeRedis  = "redis"
	StorageTypeSQL    = "sql"
)

// Directory type constants
const (
	DirectoryTypeMemory  = "memory"
	DirectoryTypeDiscord = "discord"
)

// DefaultSyncPace spaces remote writes to stay under platform rate limits
const DefaultSyncPace = 250 * time.Millisecond

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// Remote chat platform
	Directory directory.Directory

	// External dependencies
	Clock clock.Clock
	IDs   ids.Generator

	// Services
	Syncer         *dirsync.Syncer
	GameController *game.Controller
	Journals       *journal.Partitioner
	AuthService    *auth.Service

	closers []io.Closer
}

// Close releases storage connections
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory", "redis" or "sql")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// SQLConfig holds database settings (required if StorageType is "sql")
	SQLConfig *sqlstorage.Config
	// DirectoryType selects the chat platform ("memory" or "discord")
	// If empty, defaults to "memory"
	DirectoryType string
	// DiscordConfig holds the bot token (required if DirectoryType is "discord")
	DiscordConfig *discord.Config
	// SyncPace is the delay between remote writes. Zero uses DefaultSyncPace.
	SyncPace time.Duration
	// Game, Journal and Auth fall back to their package defaults when zero
	Game    game.Config
	Journal journal.Config
	Auth    auth.Config
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	store, closer, err := newStorage(cfg)
	if err != nil {
		return nil, err
	}

	dir, err := newDirectory(cfg, logger)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}

	pace := cfg.SyncPace
	if pace == 0 {
		pace = DefaultSyncPace
	}

	app := newWithDependencies(store, dir, clock.New(), ids.New(), pace, withDefaults(cfg), logger)
	if closer != nil {
		app.closers = append(app.closers, closer)
	}
	return app, nil
}

func newStorage(cfg Config) (storage.Storage, io.Closer, error) {
	switch cfg.StorageType {
	case "", StorageTypeMemory:
		return storagememory.New(), nil, nil
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, nil, errors.New("RedisConfig required when StorageType is redis")
		}
		store, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case StorageTypeSQL:
		if cfg.SQLConfig == nil {
			return nil, nil, errors.New("SQLConfig required when StorageType is sql")
		}
		store, err := sqlstorage.New(*cfg.SQLConfig)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("invalid StorageType %q: must be 'memory', 'redis' or 'sql'", cfg.StorageType)
	}
}

func newDirectory(cfg Config, logger *slog.Logger) (directory.Directory, error) {
	switch cfg.DirectoryType {
	case "", DirectoryTypeMemory:
		logger.Warn("using in-memory directory, no chat platform is connected")
		return memory.New(), nil
	case DirectoryTypeDiscord:
		if cfg.DiscordConfig == nil {
			return nil, errors.New("DiscordConfig required when DirectoryType is discord")
		}
		return discord.Open(*cfg.DiscordConfig, logger)
	default:
		return nil, fmt.Errorf("invalid DirectoryType %q: must be 'memory' or 'discord'", cfg.DirectoryType)
	}
}

// withDefaults fills zero service configs with their defaults
func withDefaults(cfg Config) Config {
	if cfg.Game.Defaults.VotesToHang == 0 {
		allowSelf := cfg.Game.AllowSelfVote
		cfg.Game = game.DefaultConfig()
		cfg.Game.AllowSelfVote = allowSelf
	}
	if cfg.Journal.Capacity == 0 {
		cfg.Journal = journal.DefaultConfig()
	}
	if cfg.Journal.Confirm.MaxAttempts == 0 {
		cfg.Journal.Confirm = dirsync.DefaultConfirmPolicy()
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = auth.DefaultConfig().TokenTTL
	}
	return cfg
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(store storage.Storage, dir directory.Directory, clk clock.Clock, idGen ids.Generator, pace time.Duration, cfg Config, logger *slog.Logger) *App {
	syncer := dirsync.New(dir, clk, pace, logger)
	gameController := game.NewController(store, dir, syncer, clk, idGen, cfg.Game, logger)
	partitioner := journal.New(store, dir, syncer, clk, idGen, cfg.Journal, logger)
	authService := auth.New(clk, cfg.Auth, logger)

	return &App{
		Storage:        store,
		Directory:      dir,
		Clock:          clk,
		IDs:            idGen,
		Syncer:         syncer,
		GameController: gameController,
		Journals:       partitioner,
		AuthService:    authService,
	}
}
