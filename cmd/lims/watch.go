package main

import (
	"fmt"

	"github.com/spf13/cobra"

	limslifecycle "github.com/aretw0/lims/pkg/adapters/lifecycle"
)

var watchCollections []string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print changes to stored documents",
	Long: `Follow changes of a watchable store (the fs adapter) and print one line
per event until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}

		var opts []limslifecycle.SourceOption
		if len(watchCollections) > 0 {
			opts = append(opts, limslifecycle.WithCollections(watchCollections...))
		}
		src, err := limslifecycle.Watch(ctx, s, opts...)
		if err != nil {
			return err
		}
		if err := src.Start(ctx); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		for ev := range src.Events() {
			fmt.Fprintln(w, ev.String())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringSliceVar(&watchCollections, "collection", nil, "Only report these collections")
}
