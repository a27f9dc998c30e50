package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server   ServerConfig
	Twitch   TwitchConfig
	Token    TokenConfig
	Search   SearchConfig
	Worker   WorkerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	Session  SessionConfig
	Admin    AdminConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port            int           `envconfig:"API_PORT" default:"8000"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"10s"`
	RateLimitRPS    float64       `envconfig:"API_RATE_LIMIT_RPS" default:"10"`
	RateLimitBurst  int           `envconfig:"API_RATE_LIMIT_BURST" default:"20"`
}

type TwitchConfig struct {
	ClientID     string `envconfig:"TWITCH_CLIENT_ID" required:"true"`
	ClientSecret string `envconfig:"TWITCH_CLIENT_SECRET" required:"true"`
	RedirectURI  string `envconfig:"TWITCH_REDIRECT_URI" default:"http://localhost:8000/api/auth/callback"`
	APIBaseURL   string `envconfig:"TWITCH_API_BASE_URL" default:"https://api.twitch.tv/helix"`
	Scopes       string `envconfig:"TWITCH_SCOPES" default:"user:read:email"`

	RequestTimeout   time.Duration `envconfig:"TWITCH_REQUEST_TIMEOUT" default:"10s"`
	RateLimitCalls   int           `envconfig:"TWITCH_RATE_LIMIT_CALLS" default:"800"`
	RateLimitPeriod  time.Duration `envconfig:"TWITCH_RATE_LIMIT_PERIOD" default:"60s"`
	MaxAttempts      int           `envconfig:"TWITCH_MAX_ATTEMPTS" default:"3"`
	RateLimitBackoff time.Duration `envconfig:"TWITCH_RATE_LIMIT_BACKOFF" default:"1s"`

	BreakerFailureThreshold uint32        `envconfig:"TWITCH_BREAKER_FAILURE_THRESHOLD" default:"5"`
	BreakerResetTimeout     time.Duration `envconfig:"TWITCH_BREAKER_RESET_TIMEOUT" default:"60s"`
	BreakerSuccessThreshold uint32        `envconfig:"TWITCH_BREAKER_SUCCESS_THRESHOLD" default:"2"`
}

// ScopeList splits the space separated scope setting.
func (c TwitchConfig) ScopeList() []string {
	return strings.Fields(c.Scopes)
}

type TokenConfig struct {
	RefreshBeforeExpiry time.Duration `envconfig:"TOKEN_REFRESH_BEFORE_EXPIRY" default:"1h"`
	CacheTTL            time.Duration `envconfig:"TOKEN_CACHE_TTL" default:"1h"`
	Retention           time.Duration `envconfig:"TOKEN_RETENTION" default:"168h"`
}

type SearchConfig struct {
	CacheTTL       time.Duration `envconfig:"SEARCH_CACHE_TTL" default:"2m"`
	CacheBackstop  time.Duration `envconfig:"SEARCH_CACHE_BACKSTOP_TTL" default:"120s"`
	GameMemoTTL    time.Duration `envconfig:"SEARCH_GAME_MEMO_TTL" default:"1h"`
	DefaultLimit   int           `envconfig:"SEARCH_DEFAULT_LIMIT" default:"100"`
	GamePersisting string        `envconfig:"SEARCH_GAME_PERSISTING" default:"direct"`
}

type WorkerConfig struct {
	PurgeInterval   time.Duration `envconfig:"WORKER_PURGE_INTERVAL" default:"24h"`
	MaxRetries      int           `envconfig:"WORKER_MAX_RETRIES" default:"3"`
	ShutdownTimeout time.Duration `envconfig:"WORKER_SHUTDOWN_TIMEOUT" default:"30s"`
}

type DatabaseConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"streamzilla"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"streamzilla"`
	DBName   string `envconfig:"POSTGRES_DB" default:"streamzilla"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type RabbitMQConfig struct {
	Host     string `envconfig:"RABBITMQ_HOST" default:"localhost"`
	Port     int    `envconfig:"RABBITMQ_PORT" default:"5672"`
	User     string `envconfig:"RABBITMQ_USER" default:"streamzilla"`
	Password string `envconfig:"RABBITMQ_PASSWORD" default:"streamzilla"`
	VHost    string `envconfig:"RABBITMQ_VHOST" default:"/"`
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.User, c.Password, c.Host, c.Port, c.VHost,
	)
}

type SessionConfig struct {
	Secret string        `envconfig:"SESSION_SECRET_KEY" required:"true"`
	MaxAge time.Duration `envconfig:"SESSION_MAX_AGE" default:"1h"`
	Secure bool          `envconfig:"SESSION_SECURE" default:"false"`
}

// minSecureSessionSecret is the shortest signing key accepted for Secure cookies.
const minSecureSessionSecret = 32

type AdminConfig struct {
	APIKey string `envconfig:"ADMIN_API_KEY" default:""`
}

type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// SlogLevel maps the configured level name to a slog.Level.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Game persisting modes.
const (
	GamePersistingDirect = "direct"
	GamePersistingQueue  = "queue"
)

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Token.RefreshBeforeExpiry < 0 {
		return errors.New("TOKEN_REFRESH_BEFORE_EXPIRY must not be negative")
	}
	if c.Search.CacheTTL <= 0 {
		return errors.New("SEARCH_CACHE_TTL must be positive")
	}
	if c.Search.DefaultLimit < 1 || c.Search.DefaultLimit > 100 {
		return errors.New("SEARCH_DEFAULT_LIMIT must be between 1 and 100")
	}
	switch c.Search.GamePersisting {
	case GamePersistingDirect, GamePersistingQueue:
	default:
		return fmt.Errorf("SEARCH_GAME_PERSISTING must be %q or %q", GamePersistingDirect, GamePersistingQueue)
	}
	if c.Twitch.MaxAttempts < 1 {
		return errors.New("TWITCH_MAX_ATTEMPTS must be at least 1")
	}
	if c.Session.Secure && len(c.Session.Secret) < minSecureSessionSecret {
		return fmt.Errorf("SESSION_SECRET_KEY must be at least %d bytes when SESSION_SECURE is set", minSecureSessionSecret)
	}
	return nil
}
