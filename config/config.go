// Package config loads the ledger settings from defaults, an optional TOML
// file, a .env file and LIBRARY_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

type LogLevel string

const (
	Debug  LogLevel = "debug"
	Info   LogLevel = "info"
	Notice LogLevel = "notice"
	Warn   LogLevel = "warn"
	Error  LogLevel = "error"
)

// Config holds every runtime setting of the CLI.
type Config struct {
	DBPath          string   `toml:"db_path"`
	DueDays         int      `toml:"due_days"`
	BooksPerPage    int      `toml:"books_per_page"`
	StrictOwnership bool     `toml:"strict_ownership"`
	LogLevel        LogLevel `toml:"log_level"`
	LogFile         string   `toml:"log_file"`
	OverdueSchedule string   `toml:"overdue_schedule"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		DBPath:          "library.db",
		DueDays:         7,
		BooksPerPage:    5,
		StrictOwnership: true,
		LogLevel:        Info,
		OverdueSchedule: "@hourly",
	}
}

// Load builds the configuration. path may be empty, in which case
// LIBRARY_CONFIG is consulted; a missing .env file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv("LIBRARY_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var err error
	c.DBPath = getEnv("LIBRARY_DB", c.DBPath)
	c.LogLevel = LogLevel(getEnv("LIBRARY_LOG_LEVEL", string(c.LogLevel)))
	c.LogFile = getEnv("LIBRARY_LOG_FILE", c.LogFile)
	c.OverdueSchedule = getEnv("LIBRARY_OVERDUE_SCHEDULE", c.OverdueSchedule)
	if c.DueDays, err = getEnvInt("LIBRARY_DUE_DAYS", c.DueDays); err != nil {
		return err
	}
	if c.BooksPerPage, err = getEnvInt("LIBRARY_BOOKS_PER_PAGE", c.BooksPerPage); err != nil {
		return err
	}
	if c.StrictOwnership, err = getEnvBool("LIBRARY_STRICT_OWNERSHIP", c.StrictOwnership); err != nil {
		return err
	}
	return nil
}

// Validate rejects settings the ledger cannot work with.
func (c *Config) Validate() error {
	if c.DueDays < 1 {
		return fmt.Errorf("due_days must be at least 1, got %d", c.DueDays)
	}
	if c.BooksPerPage < 1 {
		return fmt.Errorf("books_per_page must be at least 1, got %d", c.BooksPerPage)
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("db_path must not be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
