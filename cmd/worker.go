/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/banksoal/apiserver/config"
	"github.com/banksoal/apiserver/internal/logger"
	"github.com/banksoal/apiserver/internal/mq"
	"github.com/banksoal/apiserver/internal/services"
	"github.com/banksoal/apiserver/internal/storage"
	"github.com/spf13/cobra"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Removes stored objects of permanently deleted records",
	Long: `Consumes purge events from the broker and deletes the stored objects
of purged question sets and files. Requires a broker backend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		objects, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		broker, err := mq.Open(ctx, cfg.Broker)
		if err != nil {
			return fmt.Errorf("open broker: %w", err)
		}
		if broker == nil || cfg.Broker.Backend == config.BrokerMemory {
			if broker != nil {
				_ = broker.Close()
			}
			return fmt.Errorf("worker needs an external broker, got %q", cfg.Broker.Backend)
		}
		defer broker.Close()

		purger := services.NewPurger(objects, nil, cfg.Broker.PurgeChannel)
		logger.Info().
			Str("broker", cfg.Broker.Backend).
			Str("channel", cfg.Broker.PurgeChannel).
			Msg("purge worker started")

		err = broker.Subscribe(ctx, cfg.Broker.PurgeChannel, purger.Handle)
		if errors.Is(err, ctx.Err()) {
			logger.Info().Msg("purge worker stopped")
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
