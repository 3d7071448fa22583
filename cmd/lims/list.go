package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/lims/pkg/typed"
)

var (
	listFilters []string
	listFields  []string
)

var listCmd = &cobra.Command{
	Use:   "list <kind>",
	Short: "List entities of a kind",
	Long: `List the ids of a kind, optionally filtered. Filters use the LIMS query
parameters (name, projectlimsid, type, udf.<name>). With --field, the listed
entities are fetched in one batch and the fields printed after the id.`,
	Example: `  lims list samples --filter projectlimsid=ADM1
  lims list samples --filter udf.Color=Blue --field name`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		kind, err := resolveKind(args[0])
		if err != nil {
			return err
		}
		query, err := typed.ParseFilters(listFilters)
		if err != nil {
			return err
		}
		for _, f := range listFields {
			if _, ok := kind.Field(f); !ok {
				return fmt.Errorf("%s has no field %q", kind.Name, f)
			}
		}
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		found, err := s.List(ctx, kind, query)
		if err != nil {
			return err
		}
		if len(listFields) > 0 {
			if err := s.Batch(ctx, found); err != nil {
				return err
			}
		}

		w := cmd.OutOrStdout()
		for _, e := range found {
			cols := []string{e.ID()}
			for _, f := range listFields {
				v, err := e.Read(ctx, f)
				if err != nil {
					return err
				}
				cols = append(cols, formatValue(v))
			}
			fmt.Fprintln(w, strings.Join(cols, "\t"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringArrayVar(&listFilters, "filter", nil, "Filter as key=value (repeatable)")
	listCmd.Flags().StringSliceVarP(&listFields, "field", "f", nil, "Fields to print after the id")
}
