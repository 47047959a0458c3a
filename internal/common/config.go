package common

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Storage    StorageConfig    `toml:"storage"`
	Embeddings EmbeddingsConfig `toml:"embeddings"`
	Fetcher    FetcherConfig    `toml:"fetcher"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Splitter   SplitterConfig   `toml:"splitter"`
	Search     SearchConfig     `toml:"search"`
	Refresh    RefreshConfig    `toml:"refresh"`
	Logging    LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
	// RemoteURL points the process at an external pipeline manager instead of
	// running jobs in-process. Empty means embedded mode.
	RemoteURL string `toml:"remote_url"`
}

type StorageConfig struct {
	// DataDir holds the SQLite database file. Resolution order when empty:
	// LECTERN_DATA_DIR env (applied by cmd), OS application data dir, temp dir.
	DataDir       string `toml:"data_dir"`
	CacheSizeMB   int    `toml:"cache_size_mb" validate:"gte=0"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms" validate:"gte=0"`
	WALMode       bool   `toml:"wal_mode"`
}

// EmbeddingsConfig selects the embedding provider and model.
type EmbeddingsConfig struct {
	Provider  string `toml:"provider" validate:"omitempty,oneof=openai google disabled"`
	Model     string `toml:"model"`
	Dimension int    `toml:"dimension" validate:"gte=0"`
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"` // openai-compatible endpoints only
}

type FetcherConfig struct {
	UserAgentRotation bool          `toml:"user_agent_rotation"`
	RequestTimeout    time.Duration `toml:"request_timeout"`
	MaxRetries        int           `toml:"max_retries" validate:"gte=0"`
	RetryBaseDelay    time.Duration `toml:"retry_base_delay"`
	BrowserTimeout    time.Duration `toml:"browser_timeout"`
	FollowRobotsTxt   bool          `toml:"follow_robots_txt"`
	RequestsPerSecond float64       `toml:"requests_per_second" validate:"gte=0"`
}

type PipelineConfig struct {
	Concurrency     int  `toml:"concurrency" validate:"gte=0"`
	RecoverJobs     bool `toml:"recover_jobs"`
	MaxPagesDefault int  `toml:"max_pages_default" validate:"gte=0"`
	MaxDepthDefault int  `toml:"max_depth_default" validate:"gte=0"`
}

type SplitterConfig struct {
	MinChunkSize       int `toml:"min_chunk_size" validate:"gte=0"`
	PreferredChunkSize int `toml:"preferred_chunk_size" validate:"gte=0"`
	MaxChunkSize       int `toml:"max_chunk_size" validate:"gte=0"`
}

type SearchConfig struct {
	VectorMultiplier int     `toml:"vector_multiplier" validate:"gte=1"`
	FTSOverfetch     int     `toml:"fts_overfetch" validate:"gte=1"`
	RRFConstant      int     `toml:"rrf_constant" validate:"gte=1"`
	VectorWeight     float64 `toml:"vector_weight" validate:"gte=0"`
	FTSWeight        float64 `toml:"fts_weight" validate:"gte=0"`
}

// RefreshConfig drives the optional cron-based refresh of indexed versions.
type RefreshConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // cron format, e.g. "0 3 * * *"
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Output []string `toml:"output"`
}

// DefaultConfig returns the configuration defaults applied before any file
// or environment override.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 6280,
		},
		Storage: StorageConfig{
			CacheSizeMB:   50,
			BusyTimeoutMS: 5000,
			WALMode:       true,
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "disabled",
			Dimension: 768,
		},
		Fetcher: FetcherConfig{
			UserAgentRotation: true,
			RequestTimeout:    0, // no per-request timeout unless configured
			MaxRetries:        6,
			RetryBaseDelay:    time.Second,
			BrowserTimeout:    30 * time.Second,
			FollowRobotsTxt:   true,
			RequestsPerSecond: 4,
		},
		Pipeline: PipelineConfig{
			Concurrency:     3,
			RecoverJobs:     false,
			MaxPagesDefault: 1000,
			MaxDepthDefault: 3,
		},
		Splitter: SplitterConfig{
			MinChunkSize:       500,
			PreferredChunkSize: 1500,
			MaxChunkSize:       5000,
		},
		Search: SearchConfig{
			VectorMultiplier: 10,
			FTSOverfetch:     2,
			RRFConstant:      60,
			VectorWeight:     1.0,
			FTSWeight:        1.0,
		},
		Refresh: RefreshConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFile loads configuration from a TOML file layered over the defaults.
// A missing path returns the defaults unchanged.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks structural constraints on the configuration.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Splitter.MinChunkSize > c.Splitter.PreferredChunkSize ||
		c.Splitter.PreferredChunkSize > c.Splitter.MaxChunkSize {
		return fmt.Errorf("invalid configuration: chunk sizes must satisfy min <= preferred <= max")
	}
	if c.Embeddings.Provider != "" && c.Embeddings.Provider != "disabled" && c.Embeddings.Model == "" {
		return fmt.Errorf("invalid configuration: embeddings.model is required when provider is %q", c.Embeddings.Provider)
	}
	return nil
}

// ResolveDataDir returns the directory holding the database files, creating
// it when necessary. Priority: explicit config, LECTERN_DATA_DIR, the OS
// application data directory, then a temp directory fallback.
func ResolveDataDir(cfg *Config) (string, error) {
	dir := cfg.Storage.DataDir
	if dir == "" {
		dir = os.Getenv("LECTERN_DATA_DIR")
	}
	if dir == "" {
		if base, err := os.UserConfigDir(); err == nil {
			dir = filepath.Join(base, "lectern")
		}
	}
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "lectern")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	return dir, nil
}
