/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/votable/pkg/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file",
	Long: `Write a configuration file with default settings and a generated API key for
the REST server.

Examples:
  votable init
  votable init --config ./votable.yaml --spool-dir ./spool --policy disk`,
	// the file does not exist yet, so the root command must not load it
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		spoolDir, _ := cmd.Flags().GetString("spool-dir")
		policy, _ := cmd.Flags().GetString("policy")
		force, _ := cmd.Flags().GetBool("force")

		if configPath == "" {
			configPath = config.GetDefaultConfigPath()
		}
		cfg, err := initConfig(configPath, spoolDir, policy, force)
		if err != nil {
			return err
		}

		cmd.Printf("Configuration written to %s\n", configPath)
		cmd.Printf("API key: %s\n", cfg.Security.APIKey)
		cmd.Printf("\nStart the server with:\n  votable serve --config %s\n", configPath)
		return nil
	},
}

// initConfig bootstraps the configuration at configPath. An existing file is kept
// unless force is set.
func initConfig(configPath, spoolDir, policy string, force bool) (*config.Config, error) {
	if config.ConfigExists(configPath) && !force {
		return nil, fmt.Errorf("configuration already exists at %s, use --force to replace it", configPath)
	}
	cfg, err := config.BootstrapConfig(configPath, spoolDir)
	if err != nil {
		return nil, err
	}
	if policy == "" || policy == cfg.Storage.Policy {
		return cfg, nil
	}
	cfg.Storage.Policy = policy
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := config.SaveConfig(cfg, configPath); err != nil {
		return nil, err
	}
	return cfg, nil
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().String("spool-dir", "", "Directory of the table spool")
	initCmd.Flags().String("policy", "", "Storage policy: tree, memory or disk")
	initCmd.Flags().Bool("force", false, "Replace an existing configuration")
}
