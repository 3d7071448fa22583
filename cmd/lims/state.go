package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/lims/pkg/entities"
)

var clearState bool

var stateCmd = &cobra.Command{
	Use:   "state <artifact-id> [STATE]",
	Short: "Read or change the state of an artifact",
	Long: `Without STATE, print the state parameter of the artifact URI. With
STATE, or --clear, rewrite it and save the artifact.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if clearState && len(args) == 2 {
			return fmt.Errorf("--clear takes no STATE")
		}
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		a := entities.Artifacts(s).Get(args[0])
		w := cmd.OutOrStdout()

		if len(args) == 1 && !clearState {
			state, ok, err := a.State(ctx)
			if err != nil {
				return err
			}
			if !ok {
				state = "(none)"
			}
			fmt.Fprintln(w, state)
			return nil
		}

		var state string
		if len(args) == 2 {
			state = args[1]
		}
		if err := a.SetState(ctx, state); err != nil {
			return err
		}
		if err := a.Put(withReason(ctx)); err != nil {
			return err
		}
		if state == "" {
			state = "(none)"
		}
		fmt.Fprintf(w, "artifact %s state: %s\n", a.ID(), state)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.Flags().BoolVar(&clearState, "clear", false, "Remove the state parameter")
}
