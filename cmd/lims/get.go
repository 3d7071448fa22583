package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <kind> <id> [field...]",
	Short: "Print fields of an entity",
	Long: `Print the named fields of an entity, or every declared field when none
is given. Kinds are named by collection or kind name (samples, Sample).`,
	Args: cobra.MinimumNArgs(2),
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

		e := s.Instance(kind, args[1])
		fields := args[2:]
		if len(fields) == 0 {
			fields = kind.FieldNames()
		}
		w := cmd.OutOrStdout()
		for _, f := range fields {
			v, err := e.Read(ctx, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s: %s\n", f, formatValue(v))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
