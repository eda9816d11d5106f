// Package config содержит логику чтения конфигурации библиотечного сервиса.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress     = "localhost:8080"
	defaultOpenLibraryURL = "https://openlibrary.org"
	defaultHoldWindow     = 3 * time.Hour
	defaultLoanPeriod     = 14 * 24 * time.Hour
	defaultSweepInterval  = time.Minute
	defaultRateLimitRPS   = 10
	defaultRateLimitBurst = 20
)

// ErrNoSessionSecret возвращается, если не задан ключ подписи сессий.
var ErrNoSessionSecret = errors.New("session secret is required")

// Config содержит параметры конфигурации библиотечного сервиса.
type Config struct {
	RunAddress     string        `env:"RUN_ADDRESS"`
	DatabaseURI    string        `env:"DATABASE_URI"`
	RedisURL       string        `env:"REDIS_URL"`
	OpenLibraryURL string        `env:"OPENLIBRARY_URL"`
	SessionSecret  string        `env:"SESSION_SECRET"`
	HoldWindow     time.Duration `env:"HOLD_WINDOW"`
	LoanPeriod     time.Duration `env:"LOAN_PERIOD"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL"`
	RateLimitRPS   float64       `env:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `env:"RATE_LIMIT_BURST"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	envCfg := Config{}
	if err := env.Parse(&envCfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RedisURL, "r", "", "redis URL for the hold mirror")
	flag.StringVar(&cfg.OpenLibraryURL, "o", defaultOpenLibraryURL, "Open Library base URL")
	flag.StringVar(&cfg.SessionSecret, "s", "", "session signing secret")
	flag.DurationVar(&cfg.HoldWindow, "hold-window", defaultHoldWindow, "pickup window for a hold")
	flag.DurationVar(&cfg.LoanPeriod, "loan-period", defaultLoanPeriod, "loan period after pickup")
	flag.DurationVar(&cfg.SweepInterval, "sweep-interval", defaultSweepInterval, "expired hold sweep interval")
	flag.Float64Var(&cfg.RateLimitRPS, "rate-limit-rps", defaultRateLimitRPS, "requests per second per client")
	flag.IntVar(&cfg.RateLimitBurst, "rate-limit-burst", defaultRateLimitBurst, "request burst per client")

	flag.Parse()

	cfg.overlay(envCfg)
	cfg.applyDefaults()

	return cfg, nil
}

// FromEnv считывает конфигурацию только из переменных окружения.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// overlay переносит заданные в окружении значения поверх флагов.
func (c *Config) overlay(e Config) {
	if e.RunAddress != "" {
		c.RunAddress = e.RunAddress
	}
	if e.DatabaseURI != "" {
		c.DatabaseURI = e.DatabaseURI
	}
	if e.RedisURL != "" {
		c.RedisURL = e.RedisURL
	}
	if e.OpenLibraryURL != "" {
		c.OpenLibraryURL = e.OpenLibraryURL
	}
	if e.SessionSecret != "" {
		c.SessionSecret = e.SessionSecret
	}
	if e.HoldWindow != 0 {
		c.HoldWindow = e.HoldWindow
	}
	if e.LoanPeriod != 0 {
		c.LoanPeriod = e.LoanPeriod
	}
	if e.SweepInterval != 0 {
		c.SweepInterval = e.SweepInterval
	}
	if e.RateLimitRPS != 0 {
		c.RateLimitRPS = e.RateLimitRPS
	}
	if e.RateLimitBurst != 0 {
		c.RateLimitBurst = e.RateLimitBurst
	}
}

func (c *Config) applyDefaults() {
	if c.RunAddress == "" {
		c.RunAddress = defaultRunAddress
	}
	if c.OpenLibraryURL == "" {
		c.OpenLibraryURL = defaultOpenLibraryURL
	}
	if c.HoldWindow <= 0 {
		c.HoldWindow = defaultHoldWindow
	}
	if c.LoanPeriod <= 0 {
		c.LoanPeriod = defaultLoanPeriod
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	if c.RateLimitRPS <= 0 {
		c.RateLimitRPS = defaultRateLimitRPS
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = defaultRateLimitBurst
	}
}

// Validate проверяет обязательные параметры для запуска HTTP-сервера.
func (c *Config) Validate() error {
	if c.DatabaseURI == "" {
		return errors.New("database URI is required")
	}
	if c.SessionSecret == "" {
		return ErrNoSessionSecret
	}
	return nil
}
