// Package config loads application configuration from config.yaml,
// BLAST_SEARCH_* environment variables and defaults, in that order of
// precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/blast-search-server/internal/domain"
)

// Manager implements domain.ConfigManager using viper.
type Manager struct {
	v      *viper.Viper
	config *domain.Config
}

// NewManager creates a configuration manager and loads the configuration.
// A missing config file is not an error; defaults and environment variables
// still apply.
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

func (m *Manager) loadConfig() error {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.blast-search")
	v.AddConfigPath("/etc/blast-search/")

	v.SetEnvPrefix("BLAST_SEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults. The write timeout must outlast a full remote poll
	// cycle or long searches die mid-response.
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "10m")
	v.SetDefault("server.idle_timeout", "120s")

	// Registry defaults
	v.SetDefault("registry.store", "sqlite")
	v.SetDefault("registry.data_dir", "./data/databases")
	v.SetDefault("registry.sqlite_path", "./data/registry.db")

	// PostgreSQL defaults, used when a store is set to "postgres"
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "blast_search")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_life", "1h")
	v.SetDefault("database.max_conn_idle", "30m")
	v.SetDefault("database.migrations_dir", "./migrations")

	// History defaults
	v.SetDefault("history.store", "sqlite")
	v.SetDefault("history.sqlite_path", "./data/history/history.db")

	// NCBI defaults match the documented QBlast usage guidelines.
	v.SetDefault("ncbi.base_url", "https://blast.ncbi.nlm.nih.gov/Blast.cgi")
	v.SetDefault("ncbi.rate_limit", 3)
	v.SetDefault("ncbi.timeout", "60s")
	v.SetDefault("ncbi.poll_interval", "5s")
	v.SetDefault("ncbi.max_attempts", 60)

	// Tools defaults; empty bin dir means PATH lookup.
	v.SetDefault("tools.bin_dir", "")

	// Cache defaults; an empty redis_url keeps the cache memory-only.
	v.SetDefault("cache.memory_size", 128)
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "24h")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetConfig returns the complete configuration.
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns the HTTP server configuration.
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetRegistryConfig returns the database registry configuration.
func (m *Manager) GetRegistryConfig() *domain.RegistryConfig {
	return &m.config.Registry
}

// GetNCBIConfig returns the remote service configuration.
func (m *Manager) GetNCBIConfig() *domain.NCBIConfig {
	return &m.config.NCBI
}

// Reload re-reads configuration from all sources.
func (m *Manager) Reload() error {
	return m.loadConfig()
}

var validStores = map[string]bool{"sqlite": true, "postgres": true}

// Validate checks the loaded configuration for values that would fail at
// first use, with messages naming the offending key.
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", config.Server.Port)
	}

	if !validStores[config.Registry.Store] {
		return fmt.Errorf("registry.store must be sqlite or postgres, got %q", config.Registry.Store)
	}
	if config.Registry.DataDir == "" {
		return fmt.Errorf("registry.data_dir is required")
	}
	if config.Registry.Store == "sqlite" && config.Registry.SQLitePath == "" {
		return fmt.Errorf("registry.sqlite_path is required for the sqlite store")
	}

	if !validStores[config.History.Store] {
		return fmt.Errorf("history.store must be sqlite or postgres, got %q", config.History.Store)
	}
	if config.History.Store == "sqlite" && config.History.SQLitePath == "" {
		return fmt.Errorf("history.sqlite_path is required for the sqlite store")
	}

	if config.Registry.Store == "postgres" || config.History.Store == "postgres" {
		if config.Database.Host == "" {
			return fmt.Errorf("database.host is required for a postgres store")
		}
		if config.Database.Database == "" {
			return fmt.Errorf("database.database is required for a postgres store")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database.username is required for a postgres store")
		}
	}

	if config.NCBI.BaseURL == "" {
		return fmt.Errorf("ncbi.base_url is required")
	}
	if config.NCBI.RateLimit <= 0 {
		return fmt.Errorf("ncbi.rate_limit must be positive, got %g", config.NCBI.RateLimit)
	}
	if config.NCBI.MaxAttempts <= 0 {
		return fmt.Errorf("ncbi.max_attempts must be positive, got %d", config.NCBI.MaxAttempts)
	}

	if config.Cache.MemorySize <= 0 {
		return fmt.Errorf("cache.memory_size must be positive, got %d", config.Cache.MemorySize)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid logging.level: %s", config.Logging.Level)
	}
	if config.Logging.Format != "json" && config.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be json or text, got %q", config.Logging.Format)
	}

	return nil
}

// IsProduction reports whether the environment key is set to production.
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.v.GetString("environment")) == "production"
}

var _ domain.ConfigManager = (*Manager)(nil)
