// Package config loads and validates refinery configuration via Viper.
package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Extraction providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Search   SearchConfig   `mapstructure:"search"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Extract  ExtractConfig  `mapstructure:"extract"`
	Store    StoreConfig    `mapstructure:"store"`
	Progress ProgressConfig `mapstructure:"progress"`
	Export   ExportConfig   `mapstructure:"export"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
	// LogLines is how many progress lines the API keeps for the current run.
	LogLines int `mapstructure:"log_lines"`
	// CORSOrigins enables cross-origin access for the listed origins. Empty disables CORS.
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// PipelineConfig holds scoring and acquisition thresholds.
type PipelineConfig struct {
	Threshold         float64  `mapstructure:"threshold"`
	MatchThreshold    int      `mapstructure:"match_threshold"`
	AcquireMaxResults int      `mapstructure:"acquire_max_results"`
	HuntMaxResults    int      `mapstructure:"hunt_max_results"`
	DenyList          []string `mapstructure:"deny_list"`
}

// SearchConfig configures the search provider.
type SearchConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	Attempts       uint   `mapstructure:"attempts"`
}

// FetchConfig governs the tier-1 fetcher and politeness limits.
type FetchConfig struct {
	UserAgent        string  `mapstructure:"user_agent"`
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	MinContentLength int     `mapstructure:"min_content_length"`
	RespectRobots    bool    `mapstructure:"respect_robots"`
	PerDomainQPS     float64 `mapstructure:"per_domain_qps"`
	PerDomainBurst   int     `mapstructure:"per_domain_burst"`
}

// HeadlessConfig configures the tier-2 stealth browser.
type HeadlessConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	MaxParallel    int  `mapstructure:"max_parallel"`
	NavTimeoutSec  int  `mapstructure:"nav_timeout_seconds"`
	SettleMs       int  `mapstructure:"settle_ms"`
	ScrollBy       int  `mapstructure:"scroll_by"`
	ScrollSettleMs int  `mapstructure:"scroll_settle_ms"`
	// PromotionThresh bounds the script-density promotion rule, in bytes.
	PromotionThresh int `mapstructure:"promotion_threshold"`
	// PromoteSPA also re-fetches single-page-app shells through the browser.
	PromoteSPA bool `mapstructure:"promote_spa"`
}

// ExtractConfig selects and tunes the LLM extraction backend.
type ExtractConfig struct {
	Provider        string  `mapstructure:"provider"`
	BaseURL         string  `mapstructure:"base_url"`
	APIKey          string  `mapstructure:"api_key"`
	Model           string  `mapstructure:"model"`
	Temperature     float64 `mapstructure:"temperature"`
	MaxTokens       int64   `mapstructure:"max_tokens"`
	TimeoutSeconds  int     `mapstructure:"timeout_seconds"`
	MaxRetries      int     `mapstructure:"max_retries"`
	ProfileMaxChars int     `mapstructure:"profile_max_chars"`
	MissingMaxChars int     `mapstructure:"missing_max_chars"`
	BreakerFailures uint32  `mapstructure:"breaker_failures"`
	BreakerTimeout  int     `mapstructure:"breaker_timeout_seconds"`
}

// StoreConfig selects the record store.
type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ProgressConfig tunes the observability hub.
type ProgressConfig struct {
	BufferSize     int `mapstructure:"buffer_size"`
	MaxBatchEvents int `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int `mapstructure:"max_batch_wait_ms"`
}

// ExportConfig sets where record snapshots are written.
type ExportConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for finalized-record notifications. Publishing
// is disabled while ProjectID is empty.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REFINERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("server.log_lines", 500)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("pipeline.threshold", 0.8)
	v.SetDefault("pipeline.match_threshold", 70)
	v.SetDefault("pipeline.acquire_max_results", 3)
	v.SetDefault("pipeline.hunt_max_results", 6)
	v.SetDefault("pipeline.deny_list", []string{"instagram.com"})
	v.SetDefault("search.endpoint", "https://html.duckduckgo.com/html/")
	v.SetDefault("search.timeout_seconds", 15)
	v.SetDefault("search.attempts", 3)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.min_content_length", 500)
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("fetch.per_domain_qps", 1.0)
	v.SetDefault("fetch.per_domain_burst", 2)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.settle_ms", 4000)
	v.SetDefault("headless.scroll_by", 200)
	v.SetDefault("headless.scroll_settle_ms", 1000)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("headless.promote_spa", false)
	v.SetDefault("extract.provider", ProviderOpenAI)
	v.SetDefault("extract.base_url", "http://localhost:8080/v1")
	v.SetDefault("extract.api_key", "")
	v.SetDefault("extract.model", "")
	v.SetDefault("extract.temperature", 0.1)
	v.SetDefault("extract.max_tokens", 1024)
	v.SetDefault("extract.timeout_seconds", 90)
	v.SetDefault("extract.max_retries", 2)
	v.SetDefault("extract.profile_max_chars", 6500)
	v.SetDefault("extract.missing_max_chars", 6000)
	v.SetDefault("extract.breaker_failures", 5)
	v.SetDefault("extract.breaker_timeout_seconds", 30)
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.dsn", "refinery.db")
	v.SetDefault("store.table", "practitioner_records")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 64)
	v.SetDefault("progress.max_batch_wait_ms", 250)
	v.SetDefault("export.gcs_bucket", "")
	v.SetDefault("export.local_dir", "exports")
	v.SetDefault("export.prefix", "records")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "practitioner-records")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Pipeline.Threshold <= 0 || c.Pipeline.Threshold > 1 {
		return fmt.Errorf("pipeline.threshold must be within (0, 1]")
	}
	if c.Pipeline.MatchThreshold <= 0 || c.Pipeline.MatchThreshold > 100 {
		return fmt.Errorf("pipeline.match_threshold must be within (0, 100]")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.PerDomainQPS < 0 {
		return fmt.Errorf("fetch.per_domain_qps must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if !slices.Contains([]string{ProviderOpenAI, ProviderAnthropic}, c.Extract.Provider) {
		return fmt.Errorf("extract.provider must be %q or %q, got %q", ProviderOpenAI, ProviderAnthropic, c.Extract.Provider)
	}
	if c.Extract.Provider == ProviderAnthropic && c.Extract.APIKey == "" {
		return fmt.Errorf("extract.api_key must be set for the anthropic provider")
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set for the %s driver", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return c.CheckListenPort(c.Server.Port)
}

// CheckListenPort rejects a listen port that extract.base_url points back at,
// which would route extraction calls into the refinery's own API.
func (c Config) CheckListenPort(port int) error {
	if c.Extract.BaseURL == "" {
		return nil
	}
	u, err := url.Parse(c.Extract.BaseURL)
	if err != nil || u.Hostname() == "" {
		return fmt.Errorf("extract.base_url %q is not a valid URL", c.Extract.BaseURL)
	}
	if !isLocalHost(u.Hostname()) {
		return nil
	}
	target := u.Port()
	if target == "" {
		target = "80"
		if u.Scheme == "https" {
			target = "443"
		}
	}
	if target == strconv.Itoa(port) {
		return fmt.Errorf("extract.base_url %s points at the server's own port %d", c.Extract.BaseURL, port)
	}
	return nil
}

func isLocalHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
}

// FetchTimeout is the tier-1 request budget.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// SearchTimeout is the per-query search budget.
func (c Config) SearchTimeout() time.Duration {
	return time.Duration(c.Search.TimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds graceful HTTP shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// ExtractTimeout bounds one extraction call.
func (c Config) ExtractTimeout() time.Duration {
	return time.Duration(c.Extract.TimeoutSeconds) * time.Second
}

// HeadlessTimings returns navigation timeout, settle delay and scroll settle.
func (c Config) HeadlessTimings() (nav, settle, scrollSettle time.Duration) {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second,
		time.Duration(c.Headless.SettleMs) * time.Millisecond,
		time.Duration(c.Headless.ScrollSettleMs) * time.Millisecond
}
