package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/aretw0/lims/pkg/entities"
)

var placementsCmd = &cobra.Command{
	Use:   "placements <container-id>",
	Short: "List the artifacts placed in a container",
	Long:  `List positions and artifacts of a container. The artifacts are fetched in one batch.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		placements, err := entities.Containers(s).Get(args[0]).GetPlacements(ctx)
		if err != nil {
			return err
		}

		positions := make([]string, 0, len(placements))
		for pos := range placements {
			positions = append(positions, pos)
		}
		sort.Strings(positions)
		w := cmd.OutOrStdout()
		for _, pos := range positions {
			a := placements[pos]
			name, err := a.Name(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", pos, a.ID(), name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(placementsCmd)
}
