package config

// Default values for prism configuration.
const (
	DefaultAPIListen = ":8080"

	DefaultStoreDriver     = "qdrant"
	DefaultStoreHost       = "localhost"
	DefaultStorePort       = 6334
	DefaultStoreCollection = "images"
	DefaultStoreDimension  = 512
	DefaultStoreIndexType  = "hnsw"
	DefaultStoreMetric     = "cosine"
	DefaultStoreBuildParam = 1024
	DefaultStoreBatchSize  = 100

	DefaultRateLimit = "100/minute"

	DefaultEmbedderKind  = "clip"
	DefaultEmbedderURL   = "http://localhost:8000"
	DefaultEmbedderModel = "clip-vit-base-patch32"
	DefaultCacheEnabled  = true
	DefaultCacheSize     = 1000
	DefaultCacheTTL      = "1h"

	DefaultEventsDriver = "nop"
	DefaultEventsTopic  = "prism.records"
)

// NewDefaultConfig returns a Config populated with all default values.
// This is the single source of truth for defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Version:   CurrentV,
		RateLimit: DefaultRateLimit,
		API: APIConfig{
			Listen: DefaultAPIListen,
		},
		Store: StoreConfig{
			Driver:     DefaultStoreDriver,
			Host:       DefaultStoreHost,
			Port:       DefaultStorePort,
			Collection: DefaultStoreCollection,
			Dimension:  DefaultStoreDimension,
			IndexType:  DefaultStoreIndexType,
			Metric:     DefaultStoreMetric,
			BuildParam: DefaultStoreBuildParam,
			BatchSize:  DefaultStoreBatchSize,
		},
		Embedder: EmbedderConfig{
			Kind:         DefaultEmbedderKind,
			URL:          DefaultEmbedderURL,
			Model:        DefaultEmbedderModel,
			CacheEnabled: DefaultCacheEnabled,
			CacheSize:    DefaultCacheSize,
			CacheTTL:     DefaultCacheTTL,
		},
		Events: EventsConfig{
			Driver: DefaultEventsDriver,
			Topic:  DefaultEventsTopic,
		},
	}
}
