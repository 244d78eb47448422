// Package config loads the server configuration.
//
// Configuration comes from an optional YAML file, then environment variables
// override individual values. A missing file path yields the defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcoot/wolfbot/internal/api"
	"github.com/mcoot/wolfbot/internal/directory/discord"
	"github.com/mcoot/wolfbot/internal/factory"
	"github.com/mcoot/wolfbot/internal/model"
	"github.com/mcoot/wolfbot/internal/services/auth"
	"github.com/mcoot/wolfbot/internal/services/dirsync"
	"github.com/mcoot/wolfbot/internal/services/game"
	"github.com/mcoot/wolfbot/internal/services/journal"
	redisstorage "github.com/mcoot/wolfbot/internal/storage/redis"
	sqlstorage "github.com/mcoot/wolfbot/internal/storage/sql"
)

// Config is the full server configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Directory DirectoryConfig `yaml:"directory"`
	Journals  JournalsConfig  `yaml:"journals"`
	Game      GameConfig      `yaml:"game"`
	Auth      AuthConfig      `yaml:"auth"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
}

// StorageConfig selects and configures the game store
type StorageConfig struct {
	// Type is one of memory, redis, sql
	Type  string      `yaml:"type"`
	Redis RedisConfig `yaml:"redis"`
	SQL   SQLConfig   `yaml:"sql"`
}

// RedisConfig configures the redis store
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	EndedGameTTL time.Duration `yaml:"ended_game_ttl"`
}

// SQLConfig configures the relational store
type SQLConfig struct {
	// Driver is one of sqlite, mysql, postgres
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	LogQueries   bool   `yaml:"log_queries"`
}

// DirectoryConfig selects the chat platform
type DirectoryConfig struct {
	// Type is one of memory, discord
	Type  string        `yaml:"type"`
	Token string        `yaml:"token"`
	Pace  time.Duration `yaml:"pace"`
}

// JournalsConfig configures journal partitioning
type JournalsConfig struct {
	Capacity        int           `yaml:"capacity"`
	ContainerName   string        `yaml:"container_name"`
	ConfirmAttempts int           `yaml:"confirm_attempts"`
	ConfirmInterval time.Duration `yaml:"confirm_interval"`
}

// GameConfig holds game rule defaults
type GameConfig struct {
	VotesToHang      int    `yaml:"votes_to_hang"`
	AllowSelfVote    bool   `yaml:"allow_self_vote"`
	DayMessage       string `yaml:"day_message"`
	NightMessage     string `yaml:"night_message"`
	WolfDayMessage   string `yaml:"wolf_day_message"`
	WolfNightMessage string `yaml:"wolf_night_message"`
}

// AuthConfig configures bearer tokens
type AuthConfig struct {
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl"`
	// ModeratorKeyHashes are bcrypt hashes, see `wolfctl token hash`
	ModeratorKeyHashes []string `yaml:"moderator_key_hashes"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	server := api.DefaultServerConfig()
	redis := redisstorage.DefaultConfig()
	journals := journal.DefaultConfig()
	rules := game.DefaultConfig()
	authCfg := auth.DefaultConfig()

	return &Config{
		Server: ServerConfig{
			Host:            server.Host,
			Port:            server.Port,
			ReadTimeout:     server.ReadTimeout,
			WriteTimeout:    server.WriteTimeout,
			ShutdownTimeout: server.ShutdownTimeout,
			LogLevel:        "info",
		},
		Storage: StorageConfig{
			Type: factory.StorageTypeMemory,
			Redis: RedisConfig{
				URL:          redis.URL,
				PoolSize:     redis.PoolSize,
				MinIdleConns: redis.MinIdleConns,
				EndedGameTTL: redis.EndedGameTTL,
			},
			SQL: SQLConfig{
				Driver: "sqlite",
				DSN:    "wolfbot.db",
			},
		},
		Directory: DirectoryConfig{
			Type: factory.DirectoryTypeMemory,
			Pace: factory.DefaultSyncPace,
		},
		Journals: JournalsConfig{
			Capacity:        journals.Capacity,
			ContainerName:   journals.ContainerName,
			ConfirmAttempts: journals.Confirm.MaxAttempts,
			ConfirmInterval: journals.Confirm.Interval,
		},
		Game: GameConfig{
			VotesToHang:      rules.Defaults.VotesToHang,
			AllowSelfVote:    rules.AllowSelfVote,
			DayMessage:       rules.Defaults.DayMessage,
			NightMessage:     rules.Defaults.NightMessage,
			WolfDayMessage:   rules.Defaults.WolfDayMessage,
			WolfNightMessage: rules.Defaults.WolfNightMessage,
		},
		Auth: AuthConfig{
			TokenTTL: authCfg.TokenTTL,
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides values from WOLFBOT_* variables
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
		return nil
	}

	str("WOLFBOT_HOST", &c.Server.Host)
	str("WOLFBOT_LOG_LEVEL", &c.Server.LogLevel)
	str("STORAGE_TYPE", &c.Storage.Type)
	str("REDIS_URL", &c.Storage.Redis.URL)
	str("WOLFBOT_SQL_DRIVER", &c.Storage.SQL.Driver)
	str("WOLFBOT_SQL_DSN", &c.Storage.SQL.DSN)
	str("DIRECTORY_TYPE", &c.Directory.Type)
	str("DISCORD_TOKEN", &c.Directory.Token)
	str("WOLFBOT_JWT_SECRET", &c.Auth.Secret)
	if v, ok := lookup("WOLFBOT_MODERATOR_KEY_HASHES"); ok {
		c.Auth.ModeratorKeyHashes = strings.Split(v, ",")
	}

	return errors.Join(
		num("WOLFBOT_PORT", &c.Server.Port),
		num("WOLFBOT_JOURNAL_CAPACITY", &c.Journals.Capacity),
		num("WOLFBOT_VOTES_TO_HANG", &c.Game.VotesToHang),
		dur("WOLFBOT_SYNC_PACE", &c.Directory.Pace),
		dur("WOLFBOT_TOKEN_TTL", &c.Auth.TokenTTL),
	)
}

// Validate checks the values the factory cannot default
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Type {
	case factory.StorageTypeMemory, factory.StorageTypeRedis:
	case factory.StorageTypeSQL:
		if c.Storage.SQL.DSN == "" {
			errs = append(errs, errors.New("storage.sql.dsn is required for sql storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage type %q", c.Storage.Type))
	}
	switch c.Directory.Type {
	case factory.DirectoryTypeMemory:
	case factory.DirectoryTypeDiscord:
		if c.Directory.Token == "" {
			errs = append(errs, errors.New("directory.token is required for discord"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown directory type %q", c.Directory.Type))
	}
	if c.Journals.Capacity < 2 {
		errs = append(errs, errors.New("journals.capacity must be at least 2"))
	}
	if c.Game.VotesToHang < 1 {
		errs = append(errs, model.ErrInvalidThreshold)
	}
	return errors.Join(errs...)
}

// LogLevel parses the configured log level, defaulting to info
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Server.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// ServerConfig converts to the HTTP server settings
func (c *Config) ServerConfig() api.ServerConfig {
	return api.ServerConfig{
		Host:            c.Server.Host,
		Port:            c.Server.Port,
		ReadTimeout:     c.Server.ReadTimeout,
		WriteTimeout:    c.Server.WriteTimeout,
		ShutdownTimeout: c.Server.ShutdownTimeout,
		RebalanceBudget: c.RebalanceBudget(),
	}
}

// RebalanceBudget bounds one rebalance: a full container's journals each
// moved and restored at the sync pace, plus the move confirmation window.
func (c *Config) RebalanceBudget() time.Duration {
	writes := time.Duration(2*c.Journals.Capacity) * c.Directory.Pace
	confirm := time.Duration(c.Journals.ConfirmAttempts) * c.Journals.ConfirmInterval
	return writes + confirm
}

// FactoryConfig converts to the application wiring input
func (c *Config) FactoryConfig(logger *slog.Logger) factory.Config {
	cfg := factory.Config{
		Logger:        logger,
		StorageType:   c.Storage.Type,
		DirectoryType: c.Directory.Type,
		SyncPace:      c.Directory.Pace,
		Game: game.Config{
			AllowSelfVote: c.Game.AllowSelfVote,
			Defaults: model.GameSettings{
				VotesToHang:      c.Game.VotesToHang,
				DayMessage:       c.Game.DayMessage,
				NightMessage:     c.Game.NightMessage,
				WolfDayMessage:   c.Game.WolfDayMessage,
				WolfNightMessage: c.Game.WolfNightMessage,
			},
		},
		Journal: journal.Config{
			Capacity:      c.Journals.Capacity,
			ContainerName: c.Journals.ContainerName,
			Confirm: dirsync.ConfirmPolicy{
				MaxAttempts: c.Journals.ConfirmAttempts,
				Interval:    c.Journals.ConfirmInterval,
			},
		},
		Auth: auth.Config{
			Secret:             c.Auth.Secret,
			TokenTTL:           c.Auth.TokenTTL,
			ModeratorKeyHashes: c.Auth.ModeratorKeyHashes,
		},
	}
	switch c.Storage.Type {
	case factory.StorageTypeRedis:
		cfg.RedisConfig = &redisstorage.Config{
			URL:          c.Storage.Redis.URL,
			PoolSize:     c.Storage.Redis.PoolSize,
			MinIdleConns: c.Storage.Redis.MinIdleConns,
			EndedGameTTL: c.Storage.Redis.EndedGameTTL,
		}
	case factory.StorageTypeSQL:
		cfg.SQLConfig = &sqlstorage.Config{
			Driver:       c.Storage.SQL.Driver,
			DSN:          c.Storage.SQL.DSN,
			MaxOpenConns: c.Storage.SQL.MaxOpenConns,
			MaxIdleConns: c.Storage.SQL.MaxIdleConns,
			LogQueries:   c.Storage.SQL.LogQueries,
		}
	}
	if c.Directory.Type == factory.DirectoryTypeDiscord {
		cfg.DiscordConfig = &discord.Config{Token: c.Directory.Token}
	}
	return cfg
}
