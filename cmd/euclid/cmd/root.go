package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/psantana5/euclid/internal/config"
	"github.com/psantana5/euclid/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var (
	cfgFile      string
	serverURL    string
	outputFormat string
	apiKey       string

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "euclid",
	Short: "Greatest common divisor calculator and service",
	Long: `euclid computes greatest common divisors with the Euclidean algorithm,
either locally or against a euclid API server that keeps a history of results.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Assigned here: initConfig reads rootCmd's flags
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return initConfig()
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.euclid/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "euclid API URL; computes locally when empty")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json or yaml")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key sent as a bearer token")
}

// initConfig loads configuration; flags take precedence over file and environment
func initConfig() error {
	v := viper.New()
	v.BindPFlag("client.server_url", rootCmd.PersistentFlags().Lookup("server"))
	v.BindPFlag("auth.api_key", rootCmd.PersistentFlags().Lookup("api-key"))

	loaded, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded

	switch outputFormat {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", outputFormat)
	}
	return nil
}

// remote reports whether commands should talk to a server
func remote() bool {
	return cfg.Client.ServerURL != ""
}

func newClient() (*client.Client, error) {
	c := client.NewClient(strings.TrimRight(cfg.Client.ServerURL, "/"))
	c.SetAPIKey(cfg.Auth.APIKey)
	c.SetTimeout(cfg.Client.Timeout)
	c.SetRetryConfig(cfg.RetryConfig())

	tlsCfg, err := cfg.ClientTLS()
	if err != nil {
		return nil, err
	}
	if tlsCfg != nil {
		c.SetTLSConfig(tlsCfg)
	}
	return c, nil
}

// writeStructured writes v as JSON or YAML and reports whether it did
func writeStructured(w io.Writer, v interface{}) (bool, error) {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return true, enc.Encode(v)
	default:
		return false, nil
	}
}
