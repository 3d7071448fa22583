package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/aretw0/lims/pkg/core"
)

var setCmd = &cobra.Command{
	Use:   "set <kind> <id> <field> <value>",
	Short: "Write a scalar field and save the entity",
	Example: `  lims set samples ADM1A1 name "Liver biopsy 2"
  lims set containers 27-1 occupied-wells 12`,
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		kind, err := resolveKind(args[0])
		if err != nil {
			return err
		}
		field, raw := args[2], args[3]
		b, ok := kind.Field(field)
		if !ok {
			return fmt.Errorf("%s has no field %q", kind.Name, field)
		}
		if !b.Writable() {
			return fmt.Errorf("%s.%s: %w", kind.Name, field, core.ErrReadOnlyField)
		}

		var value any = raw
		if b.Variant == core.VariantInteger {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("%s.%s expects an integer: %w", kind.Name, field, err)
			}
			value = n
		}

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		e := s.Instance(kind, args[1])
		if err := e.Write(ctx, field, value); err != nil {
			return err
		}
		if err := e.Put(withReason(ctx)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s = %s\n", kind.Name, e.ID(), field, raw)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setCmd)
}
