/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/banksoal/apiserver/internal/client"
	"github.com/banksoal/apiserver/internal/lifecycle"
	"github.com/spf13/cobra"
)

var (
	trashFiles bool
	trashYes   bool
)

type trashEntry struct {
	ID        int64
	Label     string
	DeletedAt *time.Time
}

// trashCmd represents the trash command
var trashCmd = &cobra.Command{
	Use:   "trash",
	Short: "Inspect and manage the recycle bin",
}

var trashListCmd = &cobra.Command{
	Use:   "list",
	Short: "List soft-deleted question sets (or files with --files)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cl, err := trashClient()
		if err != nil {
			return err
		}
		entries, err := loadTrash(cmd.Context(), cl)
		if err != nil {
			return errors.New(client.Notification(err))
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tDELETED AT")
		for _, e := range entries {
			deletedAt := "-"
			if e.DeletedAt != nil {
				deletedAt = e.DeletedAt.Local().Format(time.DateTime)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\n", e.ID, e.Label, deletedAt)
		}
		return tw.Flush()
	},
}

var trashRestoreCmd = &cobra.Command{
	Use:   "restore <id>...",
	Short: "Restore entries from the recycle bin",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrash(cmd, args, false, func(t *lifecycle.Tracker) func(context.Context, lifecycle.Target) (lifecycle.Result, error) {
			return t.Restore
		})
	},
}

var trashPurgeCmd = &cobra.Command{
	Use:   "purge <id>...",
	Short: "Permanently delete entries from the recycle bin (admin only)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrash(cmd, args, true, func(t *lifecycle.Tracker) func(context.Context, lifecycle.Target) (lifecycle.Result, error) {
			return t.Purge
		})
	},
}

var trashEmptyCmd = &cobra.Command{
	Use:   "empty",
	Short: "Permanently delete everything in the recycle bin (admin only)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrash(cmd, nil, true, func(t *lifecycle.Tracker) func(context.Context, lifecycle.Target) (lifecycle.Result, error) {
			return t.Purge
		})
	},
}

func init() {
	rootCmd.AddCommand(trashCmd)
	trashCmd.AddCommand(trashListCmd, trashRestoreCmd, trashPurgeCmd, trashEmptyCmd)

	trashCmd.PersistentFlags().BoolVar(&trashFiles, "files", false, "act on files instead of question sets")
	trashPurgeCmd.Flags().BoolVarP(&trashYes, "yes", "y", false, "skip the confirmation prompt")
	trashEmptyCmd.Flags().BoolVarP(&trashYes, "yes", "y", false, "skip the confirmation prompt")
}

func trashClient() (*client.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newClient(cfg)
}

func trashKind() lifecycle.Kind {
	if trashFiles {
		return lifecycle.KindFile
	}
	return lifecycle.KindQuestionSet
}

func loadTrash(ctx context.Context, cl *client.Client) ([]trashEntry, error) {
	var entries []trashEntry
	if trashFiles {
		files, err := cl.FileRecycleBin(ctx)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			entries = append(entries, trashEntry{ID: f.ID, Label: f.OriginalName, DeletedAt: f.DeletedAt})
		}
		return entries, nil
	}

	sets, err := cl.RecycleBin(ctx)
	if err != nil {
		return nil, err
	}
	for _, qs := range sets {
		entries = append(entries, trashEntry{ID: qs.ID, Label: qs.Title, DeletedAt: qs.DeletedAt})
	}
	return entries, nil
}

// runTrash applies one transition per id against an optimistic copy of the
// recycle bin. Without ids every entry in the bin is targeted.
func runTrash(
	cmd *cobra.Command,
	args []string,
	destructive bool,
	pick func(*lifecycle.Tracker) func(context.Context, lifecycle.Target) (lifecycle.Result, error),
) error {
	ctx := cmd.Context()
	cl, err := trashClient()
	if err != nil {
		return err
	}
	entries, err := loadTrash(ctx, cl)
	if err != nil {
		return errors.New(client.Notification(err))
	}

	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id < 1 {
			return fmt.Errorf("invalid id %q", arg)
		}
		ids = append(ids, id)
	}
	if len(args) == 0 {
		for _, e := range entries {
			ids = append(ids, e.ID)
		}
	}

	var confirmer lifecycle.Confirmer = &lifecycle.PromptConfirmer{In: os.Stdin, Out: cmd.OutOrStdout()}
	if trashYes || !destructive {
		confirmer = lifecycle.AlwaysConfirm
	}
	apply := pick(lifecycle.NewTracker(cl.Lifecycle(), confirmer))

	known := make(map[int64]trashEntry, len(entries))
	for _, e := range entries {
		known[e.ID] = e
	}
	bin := lifecycle.NewOptimisticList(entries, func(e trashEntry) int64 { return e.ID })

	failed := 0
	out := cmd.OutOrStdout()
	for _, id := range ids {
		target := lifecycle.Target{Kind: trashKind(), ID: id}
		if e, ok := known[id]; ok {
			target.Label = e.Label
			target.State = lifecycle.StateSoftDeleted
		}
		res, err := bin.Apply(ctx, id, func(ctx context.Context) (lifecycle.Result, error) {
			return apply(ctx, target)
		})
		if err != nil {
			failed++
			fmt.Fprintln(cmd.ErrOrStderr(), client.Notification(err))
			continue
		}
		fmt.Fprintln(out, res.Message())
	}

	fmt.Fprintf(out, "%d item(s) left in the recycle bin\n", bin.Len())
	if failed > 0 {
		return fmt.Errorf("%d of %d operation(s) failed", failed, len(ids))
	}
	return nil
}
