package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent prism configuration stored as config.toml
// in the .prism/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version   int            `toml:"version"`
	RateLimit string         `toml:"rate_limit,omitempty"`
	API       APIConfig      `toml:"api"`
	Store     StoreConfig    `toml:"store"`
	Embedder  EmbedderConfig `toml:"embedder"`
	Events    EventsConfig   `toml:"events"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// StoreConfig holds vector store settings. Host/Port/APIKey/UseTLS apply to
// the qdrant driver, SQLitePath to the sqlitevec driver; the index fields fix
// the collection created on first connect.
type StoreConfig struct {
	Driver     string `toml:"driver,omitempty"`
	Host       string `toml:"host,omitempty"`
	Port       uint   `toml:"port,omitempty"`
	APIKey     string `toml:"api_key,omitempty"`
	UseTLS     bool   `toml:"use_tls,omitempty"`
	Collection string `toml:"collection,omitempty"`
	Dimension  uint   `toml:"dimension,omitempty"`
	IndexType  string `toml:"index_type,omitempty"`
	Metric     string `toml:"metric,omitempty"`
	BuildParam uint   `toml:"build_param,omitempty"`
	BatchSize  uint   `toml:"batch_size,omitempty"`
	SQLitePath string `toml:"sqlite_path,omitempty"`
}

// EmbedderConfig holds embedding provider settings.
type EmbedderConfig struct {
	Kind         string `toml:"kind,omitempty"`
	URL          string `toml:"url,omitempty"`
	Model        string `toml:"model,omitempty"`
	CacheEnabled bool   `toml:"cache_enabled,omitempty"`
	CacheSize    uint   `toml:"cache_size,omitempty"`
	CacheTTL     string `toml:"cache_ttl,omitempty"`
}

// EventsConfig holds record event stream settings. Brokers is a
// comma-separated list for the kafka driver.
type EventsConfig struct {
	Driver  string `toml:"driver,omitempty"`
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// uintKey builds accessors for a uint field, rendering zero as "".
func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

// boolKey builds accessors for a bool field.
func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"rate_limit": {
		get: func(c *Config) string { return c.RateLimit },
		set: func(c *Config, v string) error { c.RateLimit = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"store.driver": {
		get: func(c *Config) string { return c.Store.Driver },
		set: func(c *Config, v string) error { c.Store.Driver = v; return nil },
	},
	"store.host": {
		get: func(c *Config) string { return c.Store.Host },
		set: func(c *Config, v string) error { c.Store.Host = v; return nil },
	},
	"store.port": uintKey("store.port", func(c *Config) *uint { return &c.Store.Port }),
	"store.api_key": {
		get: func(c *Config) string { return c.Store.APIKey },
		set: func(c *Config, v string) error { c.Store.APIKey = v; return nil },
	},
	"store.use_tls": boolKey("store.use_tls", func(c *Config) *bool { return &c.Store.UseTLS }),
	"store.collection": {
		get: func(c *Config) string { return c.Store.Collection },
		set: func(c *Config, v string) error { c.Store.Collection = v; return nil },
	},
	"store.dimension": uintKey("store.dimension", func(c *Config) *uint { return &c.Store.Dimension }),
	"store.index_type": {
		get: func(c *Config) string { return c.Store.IndexType },
		set: func(c *Config, v string) error { c.Store.IndexType = v; return nil },
	},
	"store.metric": {
		get: func(c *Config) string { return c.Store.Metric },
		set: func(c *Config, v string) error { c.Store.Metric = v; return nil },
	},
	"store.build_param": uintKey("store.build_param", func(c *Config) *uint { return &c.Store.BuildParam }),
	"store.batch_size":  uintKey("store.batch_size", func(c *Config) *uint { return &c.Store.BatchSize }),
	"store.sqlite_path": {
		get: func(c *Config) string { return c.Store.SQLitePath },
		set: func(c *Config, v string) error { c.Store.SQLitePath = v; return nil },
	},
	"embedder.kind": {
		get: func(c *Config) string { return c.Embedder.Kind },
		set: func(c *Config, v string) error { c.Embedder.Kind = v; return nil },
	},
	"embedder.url": {
		get: func(c *Config) string { return c.Embedder.URL },
		set: func(c *Config, v string) error { c.Embedder.URL = v; return nil },
	},
	"embedder.model": {
		get: func(c *Config) string { return c.Embedder.Model },
		set: func(c *Config, v string) error { c.Embedder.Model = v; return nil },
	},
	"embedder.cache_enabled": boolKey("embedder.cache_enabled", func(c *Config) *bool { return &c.Embedder.CacheEnabled }),
	"embedder.cache_size":    uintKey("embedder.cache_size", func(c *Config) *uint { return &c.Embedder.CacheSize }),
	"embedder.cache_ttl": {
		get: func(c *Config) string { return c.Embedder.CacheTTL },
		set: func(c *Config, v string) error { c.Embedder.CacheTTL = v; return nil },
	},
	"events.driver": {
		get: func(c *Config) string { return c.Events.Driver },
		set: func(c *Config, v string) error { c.Events.Driver = v; return nil },
	},
	"events.brokers": {
		get: func(c *Config) string { return c.Events.Brokers },
		set: func(c *Config, v string) error { c.Events.Brokers = v; return nil },
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
}
