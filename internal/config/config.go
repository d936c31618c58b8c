// Package config loads server settings from defaults, an optional YAML file,
// .env files and the process environment, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	DefaultFile = "config/app.yaml"
	devSecret   = "dev-secret-change-me"
)

type Config struct {
	Env         string        `yaml:"app_env"`
	Port        string        `yaml:"port"`
	DBDriver    string        `yaml:"db_driver"`
	DBDSN       string        `yaml:"database_url"`
	RedisURL    string        `yaml:"redis_url"`
	SecretKey   string        `yaml:"secret_key"`
	StaticDir   string        `yaml:"static_dir"`
	PictureDir  string        `yaml:"picture_dir"`
	SessionTTL  time.Duration `yaml:"session_ttl"`
	RememberTTL time.Duration `yaml:"remember_ttl"`
	PerPage     int           `yaml:"per_page"`
	LogLevel    string        `yaml:"log_level"`
	LogFormat   string        `yaml:"log_format"`
}

func Defaults() *Config {
	return &Config{
		Env:         "dev",
		Port:        "8080",
		DBDriver:    "sqlite",
		DBDSN:       "sellboard.db",
		SecretKey:   devSecret,
		StaticDir:   "static",
		PictureDir:  "static/img",
		SessionTTL:  24 * time.Hour,
		RememberTTL: 30 * 24 * time.Hour,
		PerPage:     5,
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// Load builds the configuration. A missing YAML or .env file is not an error.
func Load() (*Config, error) {
	cfg := Defaults()

	if err := godotenv.Load(".env.local"); err != nil {
		_ = godotenv.Load()
	}

	file := os.Getenv("CONFIG_FILE")
	if file == "" {
		file = DefaultFile
	}
	if err := cfg.loadFile(file); err != nil {
		return nil, err
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	str := map[string]*string{
		"APP_ENV":      &c.Env,
		"PORT":         &c.Port,
		"DB_DRIVER":    &c.DBDriver,
		"DATABASE_URL": &c.DBDSN,
		"REDIS_URL":    &c.RedisURL,
		"SECRET_KEY":   &c.SecretKey,
		"STATIC_DIR":   &c.StaticDir,
		"PICTURE_DIR":  &c.PictureDir,
		"LOG_LEVEL":    &c.LogLevel,
		"LOG_FORMAT":   &c.LogFormat,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	dur := map[string]*time.Duration{
		"SESSION_TTL":  &c.SessionTTL,
		"REMEMBER_TTL": &c.RememberTTL,
	}
	for key, dst := range dur {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}

	if v, ok := os.LookupEnv("PER_PAGE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PER_PAGE: %w", err)
		}
		c.PerPage = n
	}
	return nil
}

func (c *Config) validate() error {
	if c.PerPage < 1 {
		return fmt.Errorf("per_page must be positive, got %d", c.PerPage)
	}
	if c.SessionTTL <= 0 || c.RememberTTL <= 0 {
		return fmt.Errorf("session and remember ttl must be positive")
	}
	if c.SecretKey == "" || (c.SecretKey == devSecret && c.Env != "dev") {
		return fmt.Errorf("SECRET_KEY must be set outside the dev environment")
	}
	return nil
}
