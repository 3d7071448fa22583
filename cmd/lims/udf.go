package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/lims/pkg/core"
)

var (
	udfDelete bool
	udfTyped  bool
)

var udfCmd = &cobra.Command{
	Use:   "udf <kind> <id> [key[=value]]",
	Short: "List, read or set user-defined fields",
	Long: `Without a key, list every user-defined field. With key, print its value.
With key=value, set the field and save the entity. Existing fields keep
their declared type; new fields get a type inferred from the value.`,
	Example: `  lims udf samples ADM1A1
  lims udf samples ADM1A1 Concentration=15.5
  lims udf samples ADM1A1 Reviewed --delete`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		kind, err := resolveKind(args[0])
		if err != nil {
			return err
		}
		field := "udf"
		if udfTyped {
			field = "udt"
		}
		if _, ok := kind.Field(field); !ok {
			return fmt.Errorf("%s has no %s field", kind.Name, field)
		}
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		e := s.Instance(kind, args[1])
		d, err := e.UDFs(ctx, field)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()

		if len(args) == 2 {
			if name, ok := d.Type(); ok {
				fmt.Fprintf(w, "# type: %s\n", name)
			}
			items := d.Items()
			keys := make([]string, 0, len(items))
			for k := range items {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(w, "%s\t%s\t%s\n", k, items[k].Type(), items[k])
			}
			return nil
		}

		key, raw, assign := strings.Cut(args[2], "=")
		switch {
		case udfDelete:
			if assign {
				return errors.New("--delete takes a key, not key=value")
			}
			if err := d.Delete(key); err != nil {
				return err
			}
		case assign:
			if err := setUDF(d, key, raw); err != nil {
				return err
			}
		default:
			v, err := d.Get(key)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, v)
			return nil
		}

		if err := e.Put(withReason(ctx)); err != nil {
			return err
		}
		if udfDelete {
			fmt.Fprintf(w, "deleted %s\n", key)
		} else {
			fmt.Fprintf(w, "%s = %s\n", key, raw)
		}
		return nil
	},
}

// setUDF parses raw in the shape of the current value, or infers a shape
// for a new or empty field. A field whose declared type rejects the
// inferred shape is retried as text.
func setUDF(d *core.UDFDictionary, key, raw string) error {
	value, err := parseUDFValue(d, key, raw)
	if err != nil {
		return err
	}
	err = d.Set(key, value)
	if errors.Is(err, core.ErrTypeMismatch) {
		if _, isText := value.(string); !isText {
			return d.Set(key, raw)
		}
	}
	return err
}

func parseUDFValue(d *core.UDFDictionary, key, raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	cur, err := d.Get(key)
	if err != nil && !errors.Is(err, core.ErrKeyNotFound) {
		return nil, err
	}
	switch cur.Type() {
	case core.TypeString, core.TypeText:
		return raw, nil
	case core.TypeInt, core.TypeReal:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("udf %q expects a number: %w", key, err)
		}
		return f, nil
	case core.TypeBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("udf %q expects a boolean: %w", key, err)
		}
		return b, nil
	case core.TypeDate:
		dt, err := core.ParseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("udf %q expects YYYY-MM-DD: %w", key, err)
		}
		return dt, nil
	}
	return inferValue(raw), nil
}

func inferValue(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	}
	if dt, err := core.ParseDate(raw); err == nil {
		return dt
	}
	return raw
}

func init() {
	rootCmd.AddCommand(udfCmd)
	udfCmd.Flags().BoolVar(&udfDelete, "delete", false, "Remove the field")
	udfCmd.Flags().BoolVar(&udfTyped, "udt", false, "Use the typed (udt) dictionary")
}
