/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ssargent/votable/pkg/config"
	"github.com/ssargent/votable/pkg/di"
)

type contextKey string

const configKey contextKey = "config"

var (
	container *di.Container
	log       = logrus.StandardLogger()
)

// SetContainer injects the dependency container used by the commands
func SetContainer(c *di.Container) {
	container = c
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "votable",
	Short: "Read, inspect and convert VOTable documents",
	Long: `votable reads VOTable documents in any of the TABLEDATA, BINARY, BINARY2 and
FITS serializations, and fits-plus files, and writes them back out in any of them.

Settings come from the config file, then VOTABLE_* environment variables, then flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := loadSettings(configPath)
		if err != nil {
			return err
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.Logging.Level = level
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		log.SetOutput(cmd.ErrOrStderr())
		if err := cfg.Logging.Apply(log); err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cmd.SetContext(context.WithValue(ctx, configKey, cfg))
		return nil
	},
}

// loadSettings reads the config file if there is one and applies the environment.
// An explicit path must exist.
func loadSettings(configPath string) (*config.Config, error) {
	explicit := configPath != ""
	if !explicit {
		configPath = config.GetDefaultConfigPath()
	}

	cfg := config.DefaultConfig()
	if config.ConfigExists(configPath) {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		log.WithField("path", configPath).Debug("loaded configuration")
	} else if explicit {
		return nil, fmt.Errorf("config file %s does not exist", configPath)
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// settings returns the configuration loaded by the root command.
func settings(cmd *cobra.Command) *config.Config {
	if cfg, ok := cmd.Context().Value(configKey).(*config.Config); ok {
		return cfg
	}
	return config.DefaultConfig()
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: OS-specific location)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (overrides the config file)")
}
