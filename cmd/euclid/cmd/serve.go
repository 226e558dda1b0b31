package cmd

import (
	"fmt"

	"github.com/psantana5/euclid/internal/server"
	"github.com/spf13/cobra"
)

var (
	serveAddress string
	serveStore   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the euclid API server",
	Long: `Serve the gcd API, record every computation in the configured store and
expose Prometheus metrics on the metrics address. The server shuts down
gracefully on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddress, "address", "", "API listen address (overrides server.address)")
	serveCmd.Flags().StringVar(&serveStore, "store", "", "store type: memory, sqlite or postgres (overrides store.type)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveAddress != "" {
		cfg.Server.Address = serveAddress
	}
	if serveStore != "" {
		cfg.Store.Type = serveStore
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := cfg.NewLogger("server")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}
	return srv.Run(cmd.Context())
}
