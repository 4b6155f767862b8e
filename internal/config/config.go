package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bryanweaver/mewscast/internal/tracker"
)

const (
	configPathEnv      = "MEWSCAST_CONFIG"
	envFileEnv         = "MEWSCAST_ENV_FILE"
	logLevelEnv        = "MEWSCAST_LOG_LEVEL"
	storageBackendEnv  = "MEWSCAST_STORAGE_BACKEND"
	historyPathEnv     = "MEWSCAST_HISTORY_PATH"
	dedupEnabledEnv    = "MEWSCAST_DEDUP_ENABLED"
	databaseDSNEnv     = "DATABASE_DSN"
	chatGPTAPIKeyEnv   = "CHATGPT_API_KEY"
	chatGPTModelEnv    = "CHATGPT_MODEL"
	telegramTokenEnv   = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv  = "TELEGRAM_CHAT_ID"
	webhookURLEnv      = "WEBHOOK_URL"
	webhookAPIKeyEnv   = "WEBHOOK_API_KEY"
	defaultEnvFile     = ".env"
	defaultHistoryPath = "posts_history.json"
)

// Storage backends accepted by StorageConfig.Backend.
const (
	BackendJSONFile = "jsonfile"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig       `yaml:"logging"`
	Storage       StorageConfig       `yaml:"storage"`
	Deduplication DeduplicationConfig `yaml:"deduplication"`
	Sources       SourcesConfig       `yaml:"sources"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Notifications NotificationConfig  `yaml:"notifications"`
	ChatGPT       ChatGPTConfig       `yaml:"chatgpt"`
	Sites         []SiteConfig        `yaml:"sites"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// StorageConfig picks the history backend.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	DSN     string `yaml:"dsn"`
}

// DeduplicationConfig is the YAML form of tracker.Config. Durations are hours.
type DeduplicationConfig struct {
	Enabled              bool                `yaml:"enabled"`
	URLDeduplication     bool                `yaml:"url_deduplication"`
	RecencyWindowHours   float64             `yaml:"recency_window_hours"`
	ClusterThreshold     float64             `yaml:"cluster_threshold"`
	DuplicateThreshold   float64             `yaml:"duplicate_threshold"`
	ClusterLimit         int                 `yaml:"cluster_limit"`
	RetentionHours       float64             `yaml:"retention_hours"`
	AutoPrune            bool                `yaml:"auto_prune"`
	ContentCooldownHours float64             `yaml:"content_cooldown_hours"`
	ContentThreshold     float64             `yaml:"content_threshold"`
	SourceCooldownHours  float64             `yaml:"source_cooldown_hours"`
	ExcerptLength        int                 `yaml:"excerpt_length"`
	KeywordClasses       map[string][]string `yaml:"keyword_classes"`
}

// Tracker converts the YAML form into the tracker policy. An empty
// keyword_classes section keeps the built-in classes.
func (d DeduplicationConfig) Tracker() tracker.Config {
	classes := d.KeywordClasses
	if len(classes) == 0 {
		classes = tracker.DefaultKeywordClasses()
	}
	return tracker.Config{
		Enabled:            d.Enabled,
		URLDeduplication:   d.URLDeduplication,
		RecencyWindow:      hours(d.RecencyWindowHours),
		ClusterThreshold:   d.ClusterThreshold,
		DuplicateThreshold: d.DuplicateThreshold,
		ClusterLimit:       d.ClusterLimit,
		Retention:          hours(d.RetentionHours),
		AutoPrune:          d.AutoPrune,
		ContentCooldown:    hours(d.ContentCooldownHours),
		ContentThreshold:   d.ContentThreshold,
		SourceCooldown:     hours(d.SourceCooldownHours),
		ExcerptLength:      d.ExcerptLength,
		KeywordClasses:     classes,
	}
}

// SourcesConfig applies to every configured site.
type SourcesConfig struct {
	MaxAgeHours float64 `yaml:"max_age_hours"`
}

// MaxAge returns the candidate age limit; zero keeps everything.
func (s SourcesConfig) MaxAge() time.Duration {
	return hours(s.MaxAgeHours)
}

// SchedulerConfig enables repeat mode; a zero interval runs once and exits.
type SchedulerConfig struct {
	IntervalMinutes int `yaml:"interval_minutes"`
}

// Interval returns the pause between runs.
func (s SchedulerConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Webhook  WebhookConfig  `yaml:"webhook"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	APIBase  string `yaml:"apiBase"`
	// MessagesPerMinute throttles sends; zero means no limit.
	MessagesPerMinute int `yaml:"messagesPerMinute"`
}

// WebhookConfig describes a generic JSON endpoint that receives each post.
type WebhookConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"apiKey"`
}

// ChatGPTConfig defines how to contact the ChatGPT API.
type ChatGPTConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"apiKey"`
	SystemPrompt string `yaml:"systemPrompt"`
	MaxChars     int    `yaml:"maxChars"`
}

// SiteConfig describes a single site with its scanner strategy.
type SiteConfig struct {
	Name       string            `yaml:"name"`
	Scanner    string            `yaml:"scanner"`
	Categories []CategoryConfig  `yaml:"categories"`
	Options    map[string]string `yaml:"options"`
}

// CategoryConfig holds a concrete feed endpoint.
type CategoryConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// ValidationError reports configuration values the application cannot run with.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Load reads an optional .env file and YAML configuration, then applies
// environment overrides. A configured file that is missing keeps the
// defaults; one that cannot be read or parsed is an error.
func Load() (Config, error) {
	envFile := os.Getenv(envFileEnv)
	if envFile == "" {
		envFile = defaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: cannot load %s: %v", envFile, err)
	}

	cfg := defaultConfig()
	if path := os.Getenv(configPathEnv); path != "" {
		fileCfg, err := LoadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Printf("config: %s not found, using defaults", path)
		case err != nil:
			return Config{}, fmt.Errorf("load config: %w", err)
		default:
			cfg = fileCfg
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// LoadFile decodes a YAML file on top of the defaults. Keys absent from the
// file keep their default values; lists and maps present in the file replace
// the defaults.
func LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	cfg := defaultConfig()
	cfg.Sites = nil
	cfg.Deduplication.KeywordClasses = nil
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(cfg.Sites) == 0 {
		cfg.Sites = defaultConfig().Sites
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(storageBackendEnv); v != "" {
		c.Storage.Backend = v
	}

	if v := os.Getenv(historyPathEnv); v != "" {
		c.Storage.Path = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Storage.DSN = v
	}

	if v := os.Getenv(dedupEnabledEnv); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Deduplication.Enabled = enabled
		} else {
			log.Printf("config: ignoring %s=%q: %v", dedupEnabledEnv, v, err)
		}
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(webhookURLEnv); v != "" {
		c.Notifications.Webhook.URL = v
	}

	if v := os.Getenv(webhookAPIKeyEnv); v != "" {
		c.Notifications.Webhook.APIKey = v
	}

	if v := os.Getenv(chatGPTAPIKeyEnv); v != "" {
		c.ChatGPT.APIKey = v
	}

	if v := os.Getenv(chatGPTModelEnv); v != "" {
		c.ChatGPT.Model = v
	}
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	switch strings.ToLower(c.Storage.Backend) {
	case BackendJSONFile, BackendSQLite:
		if strings.TrimSpace(c.Storage.Path) == "" {
			add("storage.path is required for backend %q", c.Storage.Backend)
		}
	case BackendPostgres:
		if strings.TrimSpace(c.Storage.DSN) == "" {
			add("storage.dsn is required for backend %q", c.Storage.Backend)
		}
	case BackendMemory:
	default:
		add("unknown storage.backend %q", c.Storage.Backend)
	}

	d := c.Deduplication
	for name, v := range map[string]float64{
		"cluster_threshold":   d.ClusterThreshold,
		"duplicate_threshold": d.DuplicateThreshold,
		"content_threshold":   d.ContentThreshold,
	} {
		if v < 0 || v > 1 {
			add("deduplication.%s must be within [0,1], got %v", name, v)
		}
	}
	if d.ClusterThreshold > d.DuplicateThreshold {
		add("deduplication.cluster_threshold (%v) exceeds duplicate_threshold (%v)", d.ClusterThreshold, d.DuplicateThreshold)
	}
	for name, v := range map[string]float64{
		"recency_window_hours":   d.RecencyWindowHours,
		"retention_hours":        d.RetentionHours,
		"content_cooldown_hours": d.ContentCooldownHours,
		"source_cooldown_hours":  d.SourceCooldownHours,
	} {
		if v < 0 {
			add("deduplication.%s must not be negative", name)
		}
	}
	if d.RetentionHours > 0 {
		for name, v := range map[string]float64{
			"recency_window_hours":   d.RecencyWindowHours,
			"content_cooldown_hours": d.ContentCooldownHours,
			"source_cooldown_hours":  d.SourceCooldownHours,
		} {
			if d.RetentionHours < v {
				add("deduplication.retention_hours (%v) is shorter than %s (%v)", d.RetentionHours, name, v)
			}
		}
	}
	if d.ClusterLimit < 0 {
		add("deduplication.cluster_limit must not be negative")
	}
	if d.ExcerptLength < 0 {
		add("deduplication.excerpt_length must not be negative")
	}
	for class, keywords := range d.KeywordClasses {
		for _, kw := range keywords {
			if strings.TrimSpace(kw) == "" {
				add("deduplication.keyword_classes.%s contains an empty keyword", class)
			}
		}
	}

	if c.Sources.MaxAgeHours < 0 {
		add("sources.max_age_hours must not be negative")
	}
	for i, site := range c.Sites {
		if strings.TrimSpace(site.Name) == "" {
			add("sites[%d].name is required", i)
		}
		if strings.TrimSpace(site.Scanner) == "" {
			add("sites[%d].scanner is required", i)
		}
	}
	if c.Scheduler.IntervalMinutes < 0 {
		add("scheduler.interval_minutes must not be negative")
	}
	if c.Notifications.Telegram.MessagesPerMinute < 0 {
		add("notifications.telegram.messagesPerMinute must not be negative")
	}

	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Message: "invalid configuration", Err: errors.Join(problems...)}
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Storage: StorageConfig{Backend: BackendJSONFile, Path: defaultHistoryPath},
		Deduplication: DeduplicationConfig{
			Enabled:              true,
			URLDeduplication:     true,
			RecencyWindowHours:   48,
			ClusterThreshold:     0.25,
			DuplicateThreshold:   0.40,
			RetentionHours:       720,
			AutoPrune:            true,
			ContentCooldownHours: 72,
			ContentThreshold:     0.65,
			ExcerptLength:        500,
		},
		Sources: SourcesConfig{MaxAgeHours: 24},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{APIBase: "https://api.telegram.org", MessagesPerMinute: 20},
		},
		ChatGPT: ChatGPTConfig{
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			Model:        "gpt-4o-mini",
			SystemPrompt: "You are a news-reporting cat who writes short, accurate posts.",
			MaxChars:     280,
		},
		Sites: []SiteConfig{
			{
				Name:    "google-news",
				Scanner: "rss",
				Categories: []CategoryConfig{
					{Name: "top", URL: "https://news.google.com/rss?hl=en-US&gl=US&ceid=US:en"},
				},
			},
		},
	}
}
