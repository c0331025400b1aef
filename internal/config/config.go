package config

import (
	"fmt"
	"time"

	"ekh_mining/internal/logger"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

// Store drivers
const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Auth providers
const (
	AuthJWT      = "jwt"
	AuthFirebase = "firebase"
	AuthTelegram = "telegram"
)

type Config struct {
	AppPort  string `env:"APP_PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"LOG_JSON" envDefault:"false"`
	DevMode  bool   `env:"DEV_MODE" envDefault:"false"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"mongo"`
	MongoURI    string `env:"MONGO_URI"`
	MongoDB     string `env:"MONGO_DB" envDefault:"ekh_mining"`
	DatabaseURL string `env:"DATABASE_URL"`

	// пустой адрес = журнал рефералов и rate limit в памяти процесса
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	AuthProvider      string `env:"AUTH_PROVIDER" envDefault:"jwt"`
	JWTSecret         string `env:"JWT_SECRET"`
	FirebaseProjectID string `env:"FIREBASE_PROJECT_ID"`
	TelegramBotToken  string `env:"TELEGRAM_BOT_TOKEN"`

	RetryMaxRetries    int           `env:"RETRY_MAX_RETRIES" envDefault:"3"`
	RetryBaseDelay     time.Duration `env:"RETRY_BASE_DELAY" envDefault:"200ms"`
	RetryMaxDelay      time.Duration `env:"RETRY_MAX_DELAY" envDefault:"5s"`
	RefreshMinInterval time.Duration `env:"REFRESH_MIN_INTERVAL" envDefault:"2s"`
	StreakTimezone     string        `env:"STREAK_TIMEZONE" envDefault:"UTC"`
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`

	APIRateLimit  int           `env:"API_RATE_LIMIT" envDefault:"60"`
	APIRateWindow time.Duration `env:"API_RATE_WINDOW" envDefault:"1m"`
	AllowedOrigin string        `env:"ALLOWED_ORIGIN"`
}

// Загрузка конфига из env
func Load() *Config {
	_ = godotenv.Load()

	cfg, err := Parse()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}
	return cfg
}

// Parse reads the environment without touching .env files.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// StreakLocation resolves the timezone used for calendar-day streak math.
func (c *Config) StreakLocation() (*time.Location, error) {
	return time.LoadLocation(c.StreakTimezone)
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is not set")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is not set")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.AuthProvider {
	case AuthJWT:
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is not set")
		}
	case AuthFirebase:
		if c.FirebaseProjectID == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID is not set")
		}
	case AuthTelegram:
		if c.TelegramBotToken == "" {
			return fmt.Errorf("TELEGRAM_BOT_TOKEN is not set")
		}
	default:
		return fmt.Errorf("unknown AUTH_PROVIDER %q", c.AuthProvider)
	}

	if c.RetryMaxRetries < 0 {
		return fmt.Errorf("RETRY_MAX_RETRIES must be >= 0")
	}
	if c.RetryBaseDelay <= 0 {
		return fmt.Errorf("RETRY_BASE_DELAY must be > 0")
	}
	if _, err := c.StreakLocation(); err != nil {
		return fmt.Errorf("STREAK_TIMEZONE: %w", err)
	}
	return nil
}
