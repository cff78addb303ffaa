/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/banksoal/apiserver/config"
	"github.com/banksoal/apiserver/internal/client"
	"github.com/banksoal/apiserver/internal/logger"
	"github.com/spf13/cobra"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "banksoal",
	Short: "Bank Soal question bank server and tools",
	Long: `Bank Soal stores question sets and their files, exports them as
zip archives and manages the recycle bin.

	banksoal server
	banksoal export 12 -o ./downloads
	banksoal trash list`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
}

// loadConfig reads the configuration and applies its log settings.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	logger.Configure(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	return cfg, nil
}

// newClient builds an API client from the client section of cfg.
// An explicit token wins over the token file.
func newClient(cfg config.Config) (*client.Client, error) {
	if strings.TrimSpace(cfg.Client.BaseURL) == "" {
		return nil, errors.New("client base URL is required")
	}

	var chain client.ChainResolver
	if cfg.Client.Token != "" {
		chain = append(chain, client.StaticToken(cfg.Client.Token))
	}
	if cfg.Client.TokenFile != "" {
		chain = append(chain, client.FileToken(cfg.Client.TokenFile))
	}

	return client.New(client.Config{
		BaseURL:     cfg.Client.BaseURL,
		Credentials: chain,
		Timeouts: client.Timeouts{
			Metadata:  cfg.Client.MetadataTimeout,
			File:      cfg.Client.FileTimeout,
			Lifecycle: cfg.Client.LifecycleTimeout,
			Listing:   cfg.Client.ListingTimeout,
		},
	})
}
