package domain

import (
	"time"
)

// Config is the main application configuration, loaded by the config
// manager from yaml plus BLAST_SEARCH_* environment overrides.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Registry RegistryConfig `mapstructure:"registry"`
	Database DatabaseConfig `mapstructure:"database"`
	History  HistoryConfig  `mapstructure:"history"`
	NCBI     NCBIConfig     `mapstructure:"ncbi"`
	Tools    ToolsConfig    `mapstructure:"tools"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// RegistryConfig selects and locates the database registry store.
// Store is "sqlite" (default, zero setup) or "postgres".
type RegistryConfig struct {
	Store      string `mapstructure:"store"`
	DataDir    string `mapstructure:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// DatabaseConfig holds the PostgreSQL connection settings used when the
// registry store is "postgres".
type DatabaseConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	Database      string        `mapstructure:"database"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	SSLMode       string        `mapstructure:"ssl_mode"`
	MaxConns      int32         `mapstructure:"max_conns"`
	MinConns      int32         `mapstructure:"min_conns"`
	MaxConnLife   time.Duration `mapstructure:"max_conn_life"`
	MaxConnIdle   time.Duration `mapstructure:"max_conn_idle"`
	MigrationsDir string        `mapstructure:"migrations_dir"`
}

// HistoryConfig selects the search history store. Store is "sqlite" or
// "postgres"; SQLitePath applies to the former, the DatabaseConfig
// connection to the latter.
type HistoryConfig struct {
	Store      string `mapstructure:"store"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// NCBIConfig holds the remote BLAST service settings.
type NCBIConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	RateLimit    float64       `mapstructure:"rate_limit"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// ToolsConfig locates the BLAST+ binaries. An empty BinDir means PATH lookup.
type ToolsConfig struct {
	BinDir string `mapstructure:"bin_dir"`
}

// CacheConfig configures the two-tier search result cache. An empty RedisURL
// disables the Redis tier.
type CacheConfig struct {
	MemorySize int           `mapstructure:"memory_size"`
	RedisURL   string        `mapstructure:"redis_url"`
	TTL        time.Duration `mapstructure:"ttl"`
}

// LoggingConfig holds logging settings. Format is "json" or "text".
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
