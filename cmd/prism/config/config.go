// Package configcmder provides the config command for managing persistent
// prism configuration stored in the .prism/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent prism configuration.

Configuration is stored as config.toml in the .prism/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  api.listen, rate_limit,
  store.driver, store.host, store.port, store.api_key, store.use_tls,
  store.collection, store.dimension, store.index_type, store.metric,
  store.build_param, store.batch_size, store.sqlite_path,
  embedder.kind, embedder.url, embedder.model,
  embedder.cache_enabled, embedder.cache_size, embedder.cache_ttl,
  events.driver, events.brokers, events.topic

Use subcommands to get, set, or list configuration values:
  prism config set <key> <value>    Set a configuration value
  prism config get <key>            Get a configuration value
  prism config list                 List all configuration values

Examples:
  prism config set store.host qdrant.internal
  prism config set store.collection frames
  prism config get store.driver
  prism config list`

const configShortDesc string = "Manage persistent prism configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
