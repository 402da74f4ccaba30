// Package config loads the calendar API configuration from an optional YAML
// file and then applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/planboard/project/internal/platform/env"
	"gopkg.in/yaml.v3"
)

const (
	CategoryScopeOwner  = "owner"
	CategoryScopeGlobal = "global"
)

type Config struct {
	Listen          string        `yaml:"listen"`
	UIOrigin        string        `yaml:"ui_origin"`
	DatabaseURL     string        `yaml:"database_url"`
	NATSURL         string        `yaml:"nats_url"`
	JWTSecret       string        `yaml:"jwt_secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// Timezone is the IANA zone whose midnight bounds today/week/month.
	Timezone      string `yaml:"timezone"`
	CategoryScope string `yaml:"category_scope"`
	LogLevel      string `yaml:"log_level"`
}

func Default() Config {
	return Config{
		Listen:          env.DefaultAPIAddr,
		UIOrigin:        env.DefaultUIOrigin,
		DatabaseURL:     env.DefaultDatabaseURL,
		NATSURL:         env.DefaultNATSURL,
		JWTSecret:       "dev-insecure-change-me",
		AccessTokenTTL:  15 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
		Timezone:        "Local",
		CategoryScope:   CategoryScopeOwner,
		LogLevel:        "info",
	}
}

// Load reads path (when non-empty and present) over the defaults, then lets
// the environment win.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Listen = env.String("CALENDAR_API_ADDR", c.Listen)
	c.UIOrigin = env.String("UI_ORIGIN", c.UIOrigin)
	c.DatabaseURL = env.String("DATABASE_URL", c.DatabaseURL)
	c.NATSURL = env.String("NATS_URL", c.NATSURL)
	c.JWTSecret = env.String("JWT_SECRET", c.JWTSecret)
	c.AccessTokenTTL = env.Duration("ACCESS_TOKEN_TTL", c.AccessTokenTTL)
	c.ShutdownTimeout = env.Duration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.Timezone = env.String("CALENDAR_TIMEZONE", c.Timezone)
	c.CategoryScope = env.String("CATEGORY_SCOPE", c.CategoryScope)
	c.LogLevel = env.String("LOG_LEVEL", c.LogLevel)
}

func (c Config) Validate() error {
	switch c.CategoryScope {
	case CategoryScopeOwner, CategoryScopeGlobal:
	default:
		return fmt.Errorf("category_scope must be %q or %q, got %q", CategoryScopeOwner, CategoryScopeGlobal, c.CategoryScope)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
