// config/config.go
package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full runtime configuration, read from the environment (and .env when present).
type Config struct {
	Port        string `env:"PORT" envDefault:"5200"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"` // postgres | memory
	DatabaseURL string `env:"DATABASE_URL"`

	GameServiceToken string   `env:"GAME_SERVICE_TOKEN,required,notEmpty"`
	AllowedOrigins   []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3000"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	ReceiptServiceURL string           `env:"RECEIPT_SERVICE_URL"`
	ReceiptProducts   map[string]int64 `env:"RECEIPT_PRODUCTS" envDefault:"coins_small:500,coins_medium:1200,coins_large:3000"`

	Matchmaking Matchmaking
	Leaderboard Leaderboard
	Admin       Admin
	Suspicious  Suspicious
	Archive     Archive
}

type Matchmaking struct {
	SkillBand      int           `env:"MATCH_SKILL_BAND" envDefault:"150"`
	PoolRetention  time.Duration `env:"MATCH_POOL_RETENTION" envDefault:"48h"`
	ChallengeTTL   time.Duration `env:"MATCH_CHALLENGE_TTL" envDefault:"168h"`
	WinBonus       int64         `env:"MATCH_WIN_BONUS" envDefault:"25"`
	ExpirySweep    time.Duration `env:"MATCH_EXPIRY_SWEEP_INTERVAL" envDefault:"1h"`
	PoolSweep      time.Duration `env:"MATCH_POOL_SWEEP_INTERVAL" envDefault:"15m"`
	SettlementScan time.Duration `env:"MATCH_SETTLEMENT_SCAN_INTERVAL" envDefault:"5m"`
}

type Leaderboard struct {
	RebuildInterval time.Duration `env:"LEADERBOARD_REBUILD_INTERVAL" envDefault:"1h"`
}

type Admin struct {
	ModeratorRatePerMinute int `env:"ADMIN_MODERATOR_RATE_PER_MINUTE" envDefault:"30"`
}

type Suspicious struct {
	Window    time.Duration `env:"SUSPICIOUS_WINDOW" envDefault:"24h"`
	MaxGames  int64         `env:"SUSPICIOUS_MAX_GAMES" envDefault:"200"`
	MaxInflow int64         `env:"SUSPICIOUS_MAX_COIN_INFLOW" envDefault:"50000"`
	MaxScore  int64         `env:"SUSPICIOUS_MAX_SCORE" envDefault:"1000000"`
}

type Archive struct {
	CloudflareAccountID string `env:"CLOUDFLARE_ACCOUNT_ID"`
	AccessKeyID         string `env:"R2_ACCESS_KEY_ID"`
	AccessKeySecret     string `env:"R2_ACCESS_KEY_SECRET"`
	Bucket              string `env:"R2_BUCKET_NAME"`
	CDNBaseURL          string `env:"CDN_BASE_URL"`
}

// Enabled reports whether audit archiving to object storage is configured.
func (a Archive) Enabled() bool {
	return a.CloudflareAccountID != "" && a.Bucket != ""
}

// Load reads .env (if any) and parses the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	return Parse()
}

// Parse parses the current environment without touching .env files.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL environment variable not set")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.Matchmaking.SkillBand < 0 {
		return errors.New("MATCH_SKILL_BAND must not be negative")
	}
	if c.Admin.ModeratorRatePerMinute <= 0 {
		return errors.New("ADMIN_MODERATOR_RATE_PER_MINUTE must be positive")
	}
	return nil
}
