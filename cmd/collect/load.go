package main

import (
	"errors"
	"fmt"

	"github.com/LJTian/NewsHarvest/internal/config"
	"github.com/LJTian/NewsHarvest/internal/export"
	"github.com/LJTian/NewsHarvest/internal/harvest"
	"github.com/LJTian/NewsHarvest/internal/logger"
	"github.com/LJTian/NewsHarvest/internal/storage"
	"github.com/spf13/cobra"
)

func newLoadCmd() *cobra.Command {
	var file, term string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Bulk load a results file written by run --save",
		RunE: func(cmd *cobra.Command, args []string) error {
			if term == "" {
				return errors.New("--term is required")
			}
			cfg := config.Load()
			log, err := logger.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer log.Sync()

			records, err := export.LoadScored(file, cfg.BulkDelimiter)
			if err != nil {
				return err
			}

			store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr, log)
			if err != nil {
				return fmt.Errorf("init store: %w", err)
			}
			store.Delimiter = cfg.BulkDelimiter
			if err := harvest.RegisterSources(store, harvest.SourceConfig(cfg, nil)); err != nil {
				return err
			}

			n, err := store.BulkLoad(cmd.Context(), term, records)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d rows loaded from %s\n", n, len(records), file)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "results file to load")
	cmd.Flags().StringVar(&term, "term", "", "search term the file was harvested with")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
