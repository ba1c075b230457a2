// Package cli wires the claimdesk commands.
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"claimdesk/internal/config"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

// NewRootCommand returns the claimdesk command tree bound to v.
func NewRootCommand(v *viper.Viper) *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:   "claimdesk",
		Short: "HTTP API over the claims database",
		Long: `claimdesk serves claim, claim context and claim workflow records from the
hosted claims database, plus claim supporting documents from object storage.

Configuration hierarchy (highest to lowest priority):
  1. CLI flags
  2. Environment variables (CLAIMDESK_*)
  3. Config file (--config, or ./claimdesk.yaml, or ~/.claimdesk/config.yaml)
  4. Defaults`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return readConfig(v, cfgFile)
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./claimdesk.yaml or $HOME/.claimdesk/config.yaml)")

	root.AddCommand(newServeCommand(v), newConfigCommand(v), &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "claimdesk %s\n", Version)
		},
	})
	return root
}

// Execute runs the command tree against the process environment.
func Execute() error {
	return NewRootCommand(config.NewViper()).Execute()
}

func readConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
		return nil
	}
	v.SetConfigName("claimdesk")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".claimdesk"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}
