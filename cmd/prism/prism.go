// Package prismcmder
package prismcmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/keyframeco/prism/cmd/prism/config"
	servecmder "github.com/keyframeco/prism/cmd/prism/serve"
	versioncmder "github.com/keyframeco/prism/cmd/version"
)

const prismLongDesc string = `Prism is an image similarity service backed by a vector store.

Run services using:
  prism serve          Run the API server
  prism config         Manage persistent configuration
  prism version        Print build information`

const prismShortDesc string = "Prism - Image Similarity Search"

func NewPrismCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prism",
		Short: prismShortDesc,
		Long:  prismLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .prism/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
