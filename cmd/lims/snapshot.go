package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/aretw0/lims"
	"github.com/aretw0/lims/pkg/core"
	"github.com/aretw0/lims/pkg/git"
)

var (
	snapshotTo  string
	snapshotGit bool
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <kind> <id>...",
	Short: "Copy entity documents into a local directory store",
	Long: `Fetch the given entities in one batch and write their documents into an
fs store, laid out as <collection>/<id>.xml. The store can then be used
offline with --adapter fs --dir <dir>. With --git, every document is
committed.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if snapshotTo == "" {
			return errors.New("--to is required")
		}
		kind, err := resolveKind(args[0])
		if err != nil {
			return err
		}
		s, err := openSession(ctx)
		if err != nil {
			return err
		}

		dest, err := lims.OpenFacade(ctx, s.BaseURI(),
			lims.WithAdapter(lims.AdapterFS),
			lims.WithFixtureDir(snapshotTo),
			lims.WithAutoInit(true),
			lims.WithVersioning(snapshotGit),
			lims.WithDevSafety(false),
			lims.WithLogger(slog.Default()),
		)
		if err != nil {
			return err
		}

		list := make([]*core.Entity, 0, len(args)-1)
		for _, id := range args[1:] {
			list = append(list, s.Instance(kind, id))
		}
		if err := s.Batch(ctx, list); err != nil {
			return err
		}

		saved := 0
		for _, e := range list {
			if err := e.Fetch(ctx, false); err != nil {
				if errors.Is(err, core.ErrNotFound) {
					slog.Warn("skipping missing entity", "key", e.Key())
					continue
				}
				return err
			}
			rctx := withReason(ctx)
			if reason == "" {
				msg := git.FormatMessage(git.CommitTypeChore, kind.Collection, "snapshot "+e.ID(), "")
				rctx = context.WithValue(ctx, core.ChangeReasonKey, msg)
			}
			if err := dest.Update(rctx, e.URI(), e.Document()); err != nil {
				return err
			}
			saved++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "saved %d of %d %s to %s\n", saved, len(list), kind.Collection, snapshotTo)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.Flags().StringVar(&snapshotTo, "to", "", "Destination directory")
	snapshotCmd.Flags().BoolVar(&snapshotGit, "git", false, "Commit each document in a git repository")
}
