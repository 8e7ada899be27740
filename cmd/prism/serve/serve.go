// Package servecmder provides the serve command for running the prism API server.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/keyframeco/prism/api"
	"github.com/keyframeco/prism/pkg/config"
	"github.com/keyframeco/prism/pkg/embeddings"
	"github.com/keyframeco/prism/pkg/embeddings/cached"
	embeddingutils "github.com/keyframeco/prism/pkg/embeddings/utils"
	"github.com/keyframeco/prism/pkg/eventstream"
	"github.com/keyframeco/prism/pkg/eventstream/kafka"
	"github.com/keyframeco/prism/pkg/eventstream/nop"
	"github.com/keyframeco/prism/pkg/logger"
	"github.com/keyframeco/prism/pkg/ratelimit"
	"github.com/keyframeco/prism/pkg/service"
	"github.com/keyframeco/prism/pkg/stats"
	"github.com/keyframeco/prism/pkg/vecstore"
	vecstoreutils "github.com/keyframeco/prism/pkg/vecstore/utils"
)

type ServeCommander struct {
	listen        string
	rateLimit     string
	storeDriver   string
	storeHost     string
	storePort     uint
	collection    string
	dimension     uint
	sqlitePath    string
	embedderKind  string
	embedderURL   string
	eventsDriver  string
	eventsBrokers string
	eventsTopic   string
	debug         bool
	logger        *zap.Logger
}

// serveFlags defines the serve command flags and the viper keys they bind to.
var serveFlags = config.FlagSet{
	config.FlagListen:        {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for API server to listen on"},
	config.FlagRateLimit:     {Name: "rate-limit", ViperKey: "rate_limit", Description: "Ingest/search rate limit as <count>/<unit> (second, minute, hour)"},
	config.FlagStoreDriver:   {Name: "store-driver", ViperKey: "store.driver", Description: "Vector store driver (qdrant, sqlitevec, inmemory)"},
	config.FlagStoreHost:     {Name: "store-host", ViperKey: "store.host", Description: "Vector store host"},
	config.FlagStorePort:     {Name: "store-port", ViperKey: "store.port", Description: "Vector store gRPC port"},
	config.FlagCollection:    {Name: "collection", Shorthand: "c", ViperKey: "store.collection", Description: "Vector store collection name"},
	config.FlagDimension:     {Name: "dimension", ViperKey: "store.dimension", Description: "Embedding vector dimensionality"},
	config.FlagSQLitePath:    {Name: "sqlite-path", Shorthand: "s", ViperKey: "store.sqlite_path", Description: "Path to sqlite-vec database (sqlitevec driver)"},
	config.FlagEmbedderKind:  {Name: "embedder-kind", ViperKey: "embedder.kind", Description: "Embedding provider (clip, mock)"},
	config.FlagEmbedderURL:   {Name: "embedder-url", ViperKey: "embedder.url", Description: "Embedding service URL"},
	config.FlagEventsDriver:  {Name: "events-driver", ViperKey: "events.driver", Description: "Record event stream driver (nop, kafka)"},
	config.FlagEventsBrokers: {Name: "events-brokers", ViperKey: "events.brokers", Description: "Kafka bootstrap brokers (comma-separated)"},
	config.FlagEventsTopic:   {Name: "events-topic", ViperKey: "events.topic", Description: "Kafka topic for record events"},
}

// serveFlagKeys lists the registry keys bound on the serve command.
var serveFlagKeys = []string{
	config.FlagListen,
	config.FlagRateLimit,
	config.FlagStoreDriver,
	config.FlagStoreHost,
	config.FlagStorePort,
	config.FlagCollection,
	config.FlagDimension,
	config.FlagSQLitePath,
	config.FlagEmbedderKind,
	config.FlagEmbedderURL,
	config.FlagEventsDriver,
	config.FlagEventsBrokers,
	config.FlagEventsTopic,
}

const serveLongDesc string = `Run the prism API server.

Connects to the configured vector store, provisions the collection if needed,
and serves the image ingest and similarity search API.

Settings resolve in order: CLI flags, PRISM_* environment variables,
config.toml in the .prism/ directory, built-in defaults.`

const serveShortDesc string = "Run the prism API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}

			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, serveFlags, serveFlagKeys)

			return cmder.run(v)
		},
	}

	config.AddStringFlag(cmd, serveFlags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, serveFlags, config.FlagRateLimit, &cmder.rateLimit)
	config.AddStringFlag(cmd, serveFlags, config.FlagStoreDriver, &cmder.storeDriver)
	config.AddStringFlag(cmd, serveFlags, config.FlagStoreHost, &cmder.storeHost)
	config.AddUintFlag(cmd, serveFlags, config.FlagStorePort, &cmder.storePort)
	config.AddStringFlag(cmd, serveFlags, config.FlagCollection, &cmder.collection)
	config.AddUintFlag(cmd, serveFlags, config.FlagDimension, &cmder.dimension)
	config.AddStringFlag(cmd, serveFlags, config.FlagSQLitePath, &cmder.sqlitePath)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbedderKind, &cmder.embedderKind)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbedderURL, &cmder.embedderURL)
	config.AddStringFlag(cmd, serveFlags, config.FlagEventsDriver, &cmder.eventsDriver)
	config.AddStringFlag(cmd, serveFlags, config.FlagEventsBrokers, &cmder.eventsBrokers)
	config.AddStringFlag(cmd, serveFlags, config.FlagEventsTopic, &cmder.eventsTopic)

	return cmd
}

func (c *ServeCommander) run(v *viper.Viper) error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	driver, err := vecstoreutils.NewDriver(&vecstoreutils.NewDriverOpts{
		DriverType: v.GetString("store.driver"),
		Host:       v.GetString("store.host"),
		Port:       int(v.GetUint("store.port")),
		APIKey:     v.GetString("store.api_key"),
		UseTLS:     v.GetBool("store.use_tls"),
		SQLitePath: v.GetString("store.sqlite_path"),
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating vector store driver: %w", err)
	}

	client, err := vecstore.NewClient(vecstore.Config{
		Schema: vecstore.Schema{
			Collection: v.GetString("store.collection"),
			Dimension:  int(v.GetUint("store.dimension")),
			Index: vecstore.IndexParams{
				Type:       v.GetString("store.index_type"),
				Metric:     v.GetString("store.metric"),
				BuildParam: int(v.GetUint("store.build_param")),
			},
		},
		ChunkSize: int(v.GetUint("store.batch_size")),
	}, driver, c.logger)
	if err != nil {
		return fmt.Errorf("creating vector store client: %w", err)
	}

	c.logger.Info("connecting to vector store",
		zap.String("driver", v.GetString("store.driver")),
		zap.String("collection", v.GetString("store.collection")),
		zap.Uint("dimension", v.GetUint("store.dimension")),
	)

	if err := client.Connect(context.Background()); err != nil {
		return fmt.Errorf("connecting to vector store: %w", err)
	}
	defer client.Disconnect()

	embedder, err := c.newEmbedder(v)
	if err != nil {
		return err
	}
	defer embedder.Close()

	limiter, err := ratelimit.New(v.GetString("rate_limit"))
	if err != nil {
		return fmt.Errorf("parsing rate limit: %w", err)
	}
	defer limiter.Stop()

	publisher, err := c.newPublisher(v)
	if err != nil {
		return err
	}
	defer publisher.Close()

	registry := stats.NewRegistry()

	svc, err := service.New(service.Opts{
		Store:      client,
		Embedder:   embedder,
		Limiter:    limiter,
		Stats:      registry,
		Publisher:  publisher,
		Logger:     c.logger,
		Collection: v.GetString("store.collection"),
	})
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	server := api.NewServer(api.Config{
		ListenAddr: v.GetString("api.listen"),
	}, svc, registry, c.logger)

	// Channel to capture the server error
	errChan := make(chan error, 1)

	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return server.Shutdown()
	}
}

func (c *ServeCommander) newEmbedder(v *viper.Viper) (embeddings.Embedder, error) {
	base, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: v.GetString("embedder.kind"),
		TargetURL:    v.GetString("embedder.url"),
		Model:        v.GetString("embedder.model"),
		Dimension:    int(v.GetUint("store.dimension")),
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	if !v.GetBool("embedder.cache_enabled") {
		return base, nil
	}

	ttl := v.GetDuration("embedder.cache_ttl")
	c.logger.Info("embedding cache enabled",
		zap.Uint("capacity", v.GetUint("embedder.cache_size")),
		zap.Duration("ttl", ttl),
	)

	return cached.NewEmbedder(base, cached.Config{
		Capacity: int(v.GetUint("embedder.cache_size")),
		TTL:      ttl,
	}), nil
}

func (c *ServeCommander) newPublisher(v *viper.Viper) (eventstream.Publisher, error) {
	switch driver := v.GetString("events.driver"); driver {
	case "", "nop":
		return nop.NewPublisher(), nil

	case "kafka":
		var brokers []string
		for _, b := range strings.Split(v.GetString("events.brokers"), ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}

		pub, err := kafka.NewPublisher(kafka.Config{
			Brokers: brokers,
			Topic:   v.GetString("events.topic"),
		}, c.logger)
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}

		c.logger.Info("publishing record events",
			zap.Strings("brokers", brokers),
			zap.String("topic", v.GetString("events.topic")),
		)
		return pub, nil

	default:
		return nil, fmt.Errorf("unknown events driver: %q", driver)
	}
}
