package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ideadigest/internal/scoring"
)

const (
	defaultTimezone = "UTC"

	configPathEnv     = "IDEA_DIGEST_CONFIG"
	storageBackendEnv = "STORAGE_BACKEND"
	databaseDSNEnv    = "DATABASE_DSN"
	sqlitePathEnv     = "SQLITE_PATH"
	airtableKeyEnv    = "AIRTABLE_API_KEY"
	airtableBaseEnv   = "AIRTABLE_BASE_ID"
	airtableTableEnv  = "AIRTABLE_TABLE_NAME"
	limitEnv          = "DEFAULT_LIMIT_PER_SOURCE"
	timeoutEnv        = "REQUEST_TIMEOUT"
	scrapeDelayEnv    = "SCRAPE_DELAY"
	retentionDaysEnv  = "RETENTION_DAYS"
	maxRecordsEnv     = "MAX_RECORDS"
	autoCleanupEnv    = "AUTO_CLEANUP"
	productHuntEnv    = "PRODUCT_HUNT_TOKEN"
	groqKeyEnv        = "GROQ_API_KEY"
	groqModelEnv      = "GROQ_MODEL"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
)

// Backend names accepted by StorageConfig.Backend.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendAirtable = "airtable"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Storage   StorageConfig   `yaml:"storage"`
	Retention RetentionConfig `yaml:"retention"`
	Digest    DigestConfig    `yaml:"digest"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Sources   SourcesConfig   `yaml:"sources"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Groq      GroqConfig      `yaml:"groq"`
	Themes    []ThemeConfig   `yaml:"themes"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// FetchConfig tunes source adapters.
type FetchConfig struct {
	LimitPerSource int     `yaml:"limitPerSource"`
	RequestTimeout int     `yaml:"requestTimeoutSeconds"`
	ScrapeDelay    float64 `yaml:"scrapeDelaySeconds"`
}

// Timeout returns the request timeout as a duration.
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.RequestTimeout) * time.Second
}

// Delay returns the politeness delay between requests to one source.
func (f FetchConfig) Delay() time.Duration {
	return time.Duration(f.ScrapeDelay * float64(time.Second))
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Backend  string         `yaml:"backend"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
	Airtable AirtableConfig `yaml:"airtable"`
}

// SQLiteConfig describes the local database file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig describes Postgres connection details.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// AirtableConfig wires the hosted REST backend.
type AirtableConfig struct {
	APIKey string `yaml:"apiKey"`
	BaseID string `yaml:"baseId"`
	Table  string `yaml:"table"`
}

// RetentionConfig bounds the record store.
type RetentionConfig struct {
	Days        int  `yaml:"days"`
	MaxRecords  int  `yaml:"maxRecords"`
	AutoCleanup bool `yaml:"autoCleanup"`
}

// DigestConfig controls the Markdown digest output.
type DigestConfig struct {
	OutputDir string `yaml:"outputDir"`
	Limit     int    `yaml:"limit"`
	Days      int    `yaml:"days"`
}

// SchedulerConfig defines when unattended runs execute.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// SourcesConfig holds per-platform adapter settings.
type SourcesConfig struct {
	Enabled     []string `yaml:"enabled"`
	ProductHunt struct {
		Token string `yaml:"token"`
	} `yaml:"producthunt"`
	GitHub struct {
		Since string `yaml:"since"`
	} `yaml:"github"`
}

// TelegramConfig wires digest delivery; empty token disables it.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// GroqConfig defines the optional AI insight client.
type GroqConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

// ThemeConfig is the YAML shape of one scoring theme.
type ThemeConfig struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Weight   float64  `yaml:"weight"`
}

// ScoringThemes converts the configured theme table for the scorer,
// falling back to the built-in themes when none are configured.
func (c Config) ScoringThemes() []scoring.Theme {
	if len(c.Themes) == 0 {
		return scoring.DefaultThemes()
	}
	themes := make([]scoring.Theme, 0, len(c.Themes))
	for _, t := range c.Themes {
		weight := t.Weight
		if weight == 0 {
			weight = 1.0
		}
		themes = append(themes, scoring.Theme{Name: t.Name, Keywords: t.Keywords, Weight: weight})
	}
	return themes
}

// Load reads YAML configuration (if present) and applies environment
// overrides on top of defaults.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			cfg = defaultConfig()
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(storageBackendEnv); v != "" {
		c.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Storage.Postgres.DSN = v
	}
	if v := os.Getenv(sqlitePathEnv); v != "" {
		c.Storage.SQLite.Path = v
	}
	if v := os.Getenv(airtableKeyEnv); v != "" {
		c.Storage.Airtable.APIKey = v
	}
	if v := os.Getenv(airtableBaseEnv); v != "" {
		c.Storage.Airtable.BaseID = v
	}
	if v := os.Getenv(airtableTableEnv); v != "" {
		c.Storage.Airtable.Table = v
	}
	if v := os.Getenv(limitEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Fetch.LimitPerSource = n
		}
	}
	if v := os.Getenv(timeoutEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Fetch.RequestTimeout = n
		}
	}
	if v := os.Getenv(scrapeDelayEnv); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Fetch.ScrapeDelay = f
		}
	}
	if v := os.Getenv(retentionDaysEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Retention.Days = n
		}
	}
	if v := os.Getenv(maxRecordsEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Retention.MaxRecords = n
		}
	}
	if v := os.Getenv(autoCleanupEnv); v != "" {
		c.Retention.AutoCleanup = strings.EqualFold(v, "true")
	}
	if v := os.Getenv(productHuntEnv); v != "" {
		c.Sources.ProductHunt.Token = v
	}
	if v := os.Getenv(groqKeyEnv); v != "" {
		c.Groq.APIKey = v
	}
	if v := os.Getenv(groqModelEnv); v != "" {
		c.Groq.Model = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Telegram.ChatID = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

// Validate reports every configuration problem at once. A non-empty
// result is fatal at startup: the run must not begin partially
// configured.
func (c Config) Validate() []error {
	var errs []error

	switch c.Storage.Backend {
	case BackendMemory, BackendSQLite:
	case BackendPostgres:
		if c.Storage.Postgres.DSN == "" {
			errs = append(errs, fmt.Errorf("postgres backend requires %s or storage.postgres.dsn", databaseDSNEnv))
		}
	case BackendAirtable:
		if c.Storage.Airtable.APIKey == "" {
			errs = append(errs, fmt.Errorf("airtable backend requires %s", airtableKeyEnv))
		}
		if c.Storage.Airtable.BaseID == "" {
			errs = append(errs, fmt.Errorf("airtable backend requires %s", airtableBaseEnv))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}

	if c.Fetch.LimitPerSource < 1 {
		errs = append(errs, fmt.Errorf("fetch.limitPerSource must be at least 1"))
	}
	if c.Fetch.RequestTimeout < 1 {
		errs = append(errs, fmt.Errorf("fetch.requestTimeoutSeconds must be at least 1"))
	}
	if c.Fetch.ScrapeDelay < 0 {
		errs = append(errs, fmt.Errorf("fetch.scrapeDelaySeconds cannot be negative"))
	}
	if c.Retention.Days < 1 {
		errs = append(errs, fmt.Errorf("retention.days must be at least 1"))
	}
	if c.Retention.MaxRecords < 1 {
		errs = append(errs, fmt.Errorf("retention.maxRecords must be at least 1"))
	}
	if c.Digest.Limit < 1 {
		errs = append(errs, fmt.Errorf("digest.limit must be at least 1"))
	}
	if c.Digest.Days < 1 {
		errs = append(errs, fmt.Errorf("digest.days must be at least 1"))
	}
	for _, theme := range c.Themes {
		if theme.Name == "" {
			errs = append(errs, fmt.Errorf("themes: every theme needs a name"))
		}
		if theme.Weight < 0 {
			errs = append(errs, fmt.Errorf("theme %s: weight cannot be negative", theme.Name))
		}
	}

	return errs
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Fetch: FetchConfig{
			LimitPerSource: 20,
			RequestTimeout: 30,
			ScrapeDelay:    2.0,
		},
		Storage: StorageConfig{
			Backend:  BackendSQLite,
			SQLite:   SQLiteConfig{Path: "data/ideadigest.db"},
			Airtable: AirtableConfig{Table: "Ideas"},
		},
		Retention: RetentionConfig{
			Days:        30,
			MaxRecords:  1000,
			AutoCleanup: true,
		},
		Digest: DigestConfig{
			OutputDir: "digests",
			Limit:     50,
			Days:      1,
		},
		Scheduler: SchedulerConfig{
			CronExpression: "0 6 * * *",
			Timezone:       defaultTimezone,
			location:       tz,
		},
		Groq: GroqConfig{Model: "llama-3.3-70b-versatile"},
	}
}
