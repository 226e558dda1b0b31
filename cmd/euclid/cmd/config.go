package cmd

import (
	"fmt"

	"github.com/psantana5/euclid/internal/tlsconfig"
	"github.com/psantana5/euclid/pkg/auth"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file, EUCLID_* environment
variables and flags have been applied. Secrets are redacted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		shown := *cfg
		if shown.Auth.APIKey != "" {
			shown.Auth.APIKey = "REDACTED"
		}
		if shown.Store.DSN != "" {
			shown.Store.DSN = "REDACTED"
		}

		if outputFormat == "json" {
			_, err := writeStructured(cmd.OutOrStdout(), shown)
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(shown)
	},
}

var configHashKeyCmd = &cobra.Command{
	Use:   "hash-key <key>",
	Short: "Print the bcrypt hash of an API key for auth.api_key_hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashKey(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

var (
	certOut string
	keyOut  string
)

var configSelfSignedCmd = &cobra.Command{
	Use:   "self-signed [host...]",
	Short: "Write a self-signed certificate for server.tls_cert and server.tls_key",
	Long: `Write a development certificate valid for localhost, the loopback addresses
and any extra hosts given. The certificate can also be used as client.ca_file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := tlsconfig.WriteSelfSigned(certOut, keyOut, args...); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s and %s\n", certOut, keyOut)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configHashKeyCmd)
	configCmd.AddCommand(configSelfSignedCmd)
	configSelfSignedCmd.Flags().StringVar(&certOut, "cert", "euclid.crt", "certificate output path")
	configSelfSignedCmd.Flags().StringVar(&keyOut, "key", "euclid.key", "private key output path")
}
