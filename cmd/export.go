/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/banksoal/apiserver/internal/client"
	"github.com/banksoal/apiserver/internal/export"
	"github.com/spf13/cobra"
)

var (
	exportOutputDir  string
	exportServerSide bool
	exportRequester  string
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export <question-set-id>",
	Short: "Download a question set with all its files as a zip archive",
	Long: `Downloads a question set and its active files and writes them into a
zip archive organized by category, with a summary.json manifest.

	banksoal export 12 -o ./downloads
	banksoal export 12 --server-side`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id < 1 {
			return fmt.Errorf("invalid question set id %q", args[0])
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cl, err := newClient(cfg)
		if err != nil {
			return err
		}

		var (
			filename string
			data     []byte
		)
		if exportServerSide {
			filename, data, err = cl.ExportArchive(cmd.Context(), id)
		} else {
			var archive *export.Archive
			archive, err = export.NewPackager(cl, export.WithConcurrency(cfg.Export.Concurrency)).
				Export(cmd.Context(), id, exportRequester)
			if archive != nil {
				filename, data = archive.Filename, archive.Data
				if archive.Manifest.Download.Failed > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "%d file(s) could not be downloaded and were left out\n", archive.Manifest.Download.Failed)
				}
			}
		}
		if err != nil {
			return errors.New(client.Notification(err))
		}

		if err := os.MkdirAll(exportOutputDir, 0o755); err != nil {
			return err
		}
		target := filepath.Join(exportOutputDir, filepath.Base(filename))
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return fmt.Errorf("write archive: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d bytes)\n", target, len(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportOutputDir, "output", "o", ".", "directory the archive is written to")
	exportCmd.Flags().BoolVar(&exportServerSide, "server-side", false, "let the server build the archive")
	exportCmd.Flags().StringVar(&exportRequester, "as", os.Getenv("USER"), "name recorded as the requester in the manifest")
}
