package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/keyframeco/prism/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the PRISM_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (PRISM_API_LISTEN, PRISM_STORE_HOST, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: PRISM_API_LISTEN, PRISM_STORE_SQLITE_PATH, etc.
	v.SetEnvPrefix("PRISM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	v.SetDefault("rate_limit", d.RateLimit)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Vector store
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.host", d.Store.Host)
	v.SetDefault("store.port", d.Store.Port)
	v.SetDefault("store.api_key", d.Store.APIKey)
	v.SetDefault("store.use_tls", d.Store.UseTLS)
	v.SetDefault("store.collection", d.Store.Collection)
	v.SetDefault("store.dimension", d.Store.Dimension)
	v.SetDefault("store.index_type", d.Store.IndexType)
	v.SetDefault("store.metric", d.Store.Metric)
	v.SetDefault("store.build_param", d.Store.BuildParam)
	v.SetDefault("store.batch_size", d.Store.BatchSize)
	v.SetDefault("store.sqlite_path", d.Store.SQLitePath)

	// Embedder
	v.SetDefault("embedder.kind", d.Embedder.Kind)
	v.SetDefault("embedder.url", d.Embedder.URL)
	v.SetDefault("embedder.model", d.Embedder.Model)
	v.SetDefault("embedder.cache_enabled", d.Embedder.CacheEnabled)
	v.SetDefault("embedder.cache_size", d.Embedder.CacheSize)
	v.SetDefault("embedder.cache_ttl", d.Embedder.CacheTTL)

	// Events
	v.SetDefault("events.driver", d.Events.Driver)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)
}
