package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/lims/pkg/adapters/fs"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <kind> <id>",
	Short: "Show the commits of an entity in a versioned fs store",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		kind, err := resolveKind(args[0])
		if err != nil {
			return err
		}
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		repo, ok := s.Facade().(*fs.Repository)
		if !ok {
			return errors.New("history requires the fs adapter")
		}
		commits, err := repo.History(ctx, s.URI(kind, args[1]), historyLimit)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, c := range commits {
			fmt.Fprintf(w, "%s %s %s\n", c.Hash, c.When.Format("2006-01-02 15:04"), c.Subject)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of commits")
}
