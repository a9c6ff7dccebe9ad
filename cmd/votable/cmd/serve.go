/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ssargent/votable/pkg/api"
	"github.com/ssargent/votable/pkg/config"
	"github.com/ssargent/votable/pkg/storage"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start the VOTable REST API server. Uploaded documents can be described, converted
and exported as Arrow. With the disk storage policy, uploads can also be kept in the
table spool.

The API key comes from the configuration. When it is "auto" a key is generated for
this run and printed.

Examples:
  votable serve
  votable serve --port 9000 --bind 0.0.0.0`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *settings(cmd)
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}
		if cmd.Flags().Changed("bind") {
			cfg.Server.Bind, _ = cmd.Flags().GetString("bind")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		if container == nil {
			return fmt.Errorf("dependency container not initialized")
		}

		serverConfig, err := serverConfigFrom(&cfg)
		if err != nil {
			return err
		}
		if cfg.Security.APIKey == "" || cfg.Security.APIKey == "auto" {
			cmd.Printf("Generated API key for this run: %s\n", serverConfig.APIKey)
		}

		var spool api.TableSpool
		if cfg.Storage.Policy == config.StorageDisk {
			s, err := storage.Open(cfg.Storage.SpoolDir, log)
			if err != nil {
				return fmt.Errorf("failed to open spool: %w", err)
			}
			defer s.Close()
			spool = s
			cmd.Printf("Spool directory: %s\n", cfg.Storage.SpoolDir)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cmd.Printf("Starting VOTable server on %s:%d\n", cfg.Server.Bind, cfg.Server.Port)
		starter := container.GetServerFactory().CreateServerStarter()
		if err := starter.StartServer(ctx, spool, serverConfig); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

// serverConfigFrom builds the API server settings, generating an API key when the
// configuration leaves it to be chosen at startup.
func serverConfigFrom(cfg *config.Config) (api.ServerConfig, error) {
	parseOpts, err := cfg.ParserOptions(log)
	if err != nil {
		return api.ServerConfig{}, err
	}
	writeOpts, err := cfg.WriterOptions(log)
	if err != nil {
		return api.ServerConfig{}, err
	}

	apiKey := cfg.Security.APIKey
	if apiKey == "" || apiKey == "auto" {
		apiKey, err = config.GenerateSecureKey(32)
		if err != nil {
			return api.ServerConfig{}, err
		}
	}

	return api.ServerConfig{
		Bind:   cfg.Server.Bind,
		Port:   cfg.Server.Port,
		APIKey: apiKey,
		Parser: parseOpts,
		Writer: writeOpts,
	}, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("bind", "127.0.0.1", "Address to bind server to")
}
