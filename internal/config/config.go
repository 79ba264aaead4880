package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken  string           `yaml:"discord_token"`
	OwnerID       string           `yaml:"owner_id"`
	LogLevel      string           `yaml:"log_level"`
	RetentionDays int              `yaml:"retention_days"`
	Mongo         MongoConfig      `yaml:"mongo"`
	Storage       StorageConfig    `yaml:"storage"`
	Health        HealthConfig     `yaml:"health"`
	Tickets       TicketsConfig    `yaml:"tickets"`
	Moderation    ModerationConfig `yaml:"moderation"`
	Colors        EmbedColors      `yaml:"colors"`
}

type MongoConfig struct {
	URI                   string `yaml:"uri"`
	Database              string `yaml:"database"`
	ConnectTimeoutSeconds int    `yaml:"connect_timeout_seconds"`
}

type StorageConfig struct {
	Backend string `yaml:"backend"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type TicketsConfig struct {
	MaxOpenPerUser        int              `yaml:"max_open_per_user"`
	DeleteDelaySeconds    int              `yaml:"delete_delay_seconds"`
	SubmitCooldownSeconds int              `yaml:"submit_cooldown_seconds"`
	CategoryName          string           `yaml:"category_name"`
	Categories            []TicketCategory `yaml:"categories"`
}

type TicketCategory struct {
	Name        string `yaml:"name"`
	Emoji       string `yaml:"emoji"`
	Description string `yaml:"description"`
}

type ModerationConfig struct {
	DefaultTimeoutMinutes int `yaml:"default_timeout_minutes"`
	MaxTimeoutDays        int `yaml:"max_timeout_days"`
	PurgeNoticeSeconds    int `yaml:"purge_notice_seconds"`
}

type EmbedColors struct {
	Success int `yaml:"success"`
	Error   int `yaml:"error"`
	Warning int `yaml:"warning"`
	Info    int `yaml:"info"`
	Primary int `yaml:"primary"`
}

const (
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

func DefaultConfig() Config {
	return Config{
		LogLevel:      "info",
		RetentionDays: 90,
		Mongo: MongoConfig{
			URI:                   "mongodb://localhost:27017",
			Database:              "distrack",
			ConnectTimeoutSeconds: 10,
		},
		Storage: StorageConfig{Backend: BackendMongo},
		Health:  HealthConfig{Enabled: false, Addr: ":8080"},
		Tickets: TicketsConfig{
			MaxOpenPerUser:        3,
			DeleteDelaySeconds:    10,
			SubmitCooldownSeconds: 5,
			CategoryName:          "Tickets",
		},
		Moderation: ModerationConfig{
			DefaultTimeoutMinutes: 10,
			MaxTimeoutDays:        28,
			PurgeNoticeSeconds:    5,
		},
		Colors: EmbedColors{
			Success: 0x00ff00,
			Error:   0xff0000,
			Warning: 0xffff00,
			Info:    0x0099ff,
			Primary: 0x7289da,
		},
	}
}

func Load() (Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}

	cfg.Storage.Backend = normalizeBackend(cfg.Storage.Backend)
	normalizeLimits(&cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.OwnerID = envString("OWNER_ID", cfg.OwnerID)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.RetentionDays = envInt("RETENTION_DAYS", cfg.RetentionDays)
	cfg.Mongo.URI = envString("MONGODB_URI", cfg.Mongo.URI)
	cfg.Mongo.Database = envString("MONGODB_DATABASE", cfg.Mongo.Database)
	cfg.Mongo.ConnectTimeoutSeconds = envInt("MONGODB_CONNECT_TIMEOUT_SECONDS", cfg.Mongo.ConnectTimeoutSeconds)
	cfg.Storage.Backend = envString("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Tickets.MaxOpenPerUser = envInt("TICKETS_MAX_OPEN_PER_USER", cfg.Tickets.MaxOpenPerUser)
	cfg.Tickets.DeleteDelaySeconds = envInt("TICKETS_DELETE_DELAY_SECONDS", cfg.Tickets.DeleteDelaySeconds)
	cfg.Tickets.SubmitCooldownSeconds = envInt("TICKETS_SUBMIT_COOLDOWN_SECONDS", cfg.Tickets.SubmitCooldownSeconds)
	cfg.Moderation.DefaultTimeoutMinutes = envInt("MODERATION_DEFAULT_TIMEOUT_MINUTES", cfg.Moderation.DefaultTimeoutMinutes)
	cfg.Moderation.PurgeNoticeSeconds = envInt("MODERATION_PURGE_NOTICE_SECONDS", cfg.Moderation.PurgeNoticeSeconds)
	cfg.Colors.Success = envInt("EMBED_COLOR_SUCCESS", cfg.Colors.Success)
	cfg.Colors.Error = envInt("EMBED_COLOR_ERROR", cfg.Colors.Error)
	cfg.Colors.Warning = envInt("EMBED_COLOR_WARNING", cfg.Colors.Warning)
	cfg.Colors.Info = envInt("EMBED_COLOR_INFO", cfg.Colors.Info)
	cfg.Colors.Primary = envInt("EMBED_COLOR_PRIMARY", cfg.Colors.Primary)
}

func (c Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Mongo.ConnectTimeoutSeconds) * time.Second
}

func (c Config) TicketDeleteDelay() time.Duration {
	return time.Duration(c.Tickets.DeleteDelaySeconds) * time.Second
}

func (c Config) SubmitCooldown() time.Duration {
	return time.Duration(c.Tickets.SubmitCooldownSeconds) * time.Second
}

func (c Config) DefaultTimeout() time.Duration {
	return time.Duration(c.Moderation.DefaultTimeoutMinutes) * time.Minute
}

func (c Config) PurgeNotice() time.Duration {
	return time.Duration(c.Moderation.PurgeNoticeSeconds) * time.Second
}

// Retention returns zero when pruning is disabled.
func (c Config) Retention() time.Duration {
	if c.RetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl := strings.ToLower(level)
	switch lvl {
	case "debug", "info", "warn", "error":
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(lvl))
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// envInt accepts decimal and 0x-prefixed values so colours can be set in hex.
func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 0, 64); err == nil {
			return int(parsed)
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}

func normalizeBackend(value string) string {
	switch strings.ToLower(value) {
	case BackendMemory:
		return BackendMemory
	default:
		return BackendMongo
	}
}

func normalizeLimits(cfg *Config) {
	defaults := DefaultConfig()
	if cfg.Tickets.MaxOpenPerUser <= 0 {
		cfg.Tickets.MaxOpenPerUser = defaults.Tickets.MaxOpenPerUser
	}
	if cfg.Tickets.DeleteDelaySeconds < 0 {
		cfg.Tickets.DeleteDelaySeconds = 0
	}
	if cfg.Tickets.CategoryName == "" {
		cfg.Tickets.CategoryName = defaults.Tickets.CategoryName
	}
	if cfg.Moderation.DefaultTimeoutMinutes <= 0 {
		cfg.Moderation.DefaultTimeoutMinutes = defaults.Moderation.DefaultTimeoutMinutes
	}
	// The platform refuses timeouts beyond 28 days.
	if cfg.Moderation.MaxTimeoutDays <= 0 || cfg.Moderation.MaxTimeoutDays > 28 {
		cfg.Moderation.MaxTimeoutDays = defaults.Moderation.MaxTimeoutDays
	}
	if cfg.Mongo.ConnectTimeoutSeconds <= 0 {
		cfg.Mongo.ConnectTimeoutSeconds = defaults.Mongo.ConnectTimeoutSeconds
	}
	if cfg.Mongo.Database == "" {
		cfg.Mongo.Database = defaults.Mongo.Database
	}
}
