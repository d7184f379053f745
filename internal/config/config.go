package config

import (
	"context"
	"flag"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v6"

	"github.com/talx-hub/sky-loyalty/internal/model"
)

type Config struct {
	RunAddr       string        `env:"RUN_ADDRESS"     envDefault:"localhost:8080"`
	DatabaseURI   string        `env:"DATABASE_URI"    envDefault:""`
	SecretKey     string        `env:"SECRET_KEY"      envDefault:""`
	LogLevel      string        `env:"LOG_LEVEL"       envDefault:"info"`
	TierSilverMin int64         `env:"TIER_SILVER_MIN" envDefault:"50000"`
	TierGoldMin   int64         `env:"TIER_GOLD_MIN"   envDefault:"100000"`
	BatchSize     int           `env:"BATCH_SIZE"      envDefault:"25"`
	FlushInterval time.Duration `env:"FLUSH_INTERVAL"  envDefault:"1s"`
	StoreTimeout  time.Duration `env:"STORE_TIMEOUT"   envDefault:"500ms"`
	PointsExpiry  time.Duration `env:"POINTS_EXPIRY"   envDefault:"8760h"`
}

type Builder struct {
	cfg *Config
	log *slog.Logger
}

func NewBuilder(log *slog.Logger) *Builder {
	return &Builder{
		cfg: &Config{},
		log: log,
	}
}

func (b *Builder) FromEnv() *Builder {
	if err := env.Parse(b.cfg); err != nil {
		b.log.LogAttrs(context.Background(),
			slog.LevelError, "Failed to parse config", slog.Any(model.KeyLoggerError, err))
	}
	return b
}

func (b *Builder) FromFlags() *Builder {
	flag.StringVar(&b.cfg.RunAddr, "a", b.cfg.RunAddr, "Run address")
	flag.StringVar(&b.cfg.DatabaseURI, "d", b.cfg.DatabaseURI, "Database URI")
	flag.StringVar(&b.cfg.SecretKey, "k", b.cfg.SecretKey, "Secret key")
	flag.StringVar(&b.cfg.LogLevel, "l", b.cfg.LogLevel, "Log level")
	flag.Int64Var(&b.cfg.TierSilverMin, "silver", b.cfg.TierSilverMin, "Silver tier minimum points")
	flag.Int64Var(&b.cfg.TierGoldMin, "gold", b.cfg.TierGoldMin, "Gold tier minimum points")
	flag.IntVar(&b.cfg.BatchSize, "b", b.cfg.BatchSize, "Change feed batch size")
	flag.DurationVar(&b.cfg.FlushInterval, "f", b.cfg.FlushInterval, "Change feed flush interval")
	flag.DurationVar(&b.cfg.StoreTimeout, "t", b.cfg.StoreTimeout, "Aggregate store write timeout")

	flag.Parse()
	return b
}

func (b *Builder) GetConfig() *Config {
	return b.cfg
}
