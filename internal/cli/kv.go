package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Ratio1/kvdb_sdk_go/pkg/kvdb"
)

// parseValue reads a command line value as JSON, falling back to the literal
// string. asString skips the JSON attempt.
func parseValue(s string, asString bool) any {
	if asString {
		return s
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func parseNumber(s string) (float64, error) {
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return n, nil
}

func newGetCmd(a *app) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:     "get <key>",
		Aliases: []string{"fetch"},
		Short:   "Print the value stored at key",
		Args:    cobra.ExactArgs(1),
		RunE: withClient(a, func(cmd *cobra.Command, c *kvdb.Client, args []string) error {
			opts := a.cfg.CallOptions()
			opts.Raw = raw
			v, err := c.Get(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			return a.printValue(v)
		}),
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the stored text without decoding")
	return cmd
}

func newSetCmd(a *app) *cobra.Command {
	var asString bool
	cmd := &cobra.Command{
		Use:     "set <key> <value>",
		Aliases: []string{"write"},
		Short:   "Store a value; the value is parsed as JSON when possible",
		Args:    cobra.ExactArgs(2),
		RunE: withClient(a, func(cmd *cobra.Command, c *kvdb.Client, args []string) error {
			return c.Set(cmd.Context(), args[0], parseValue(args[1], asString), a.cfg.CallOptions())
		}),
	}
	cmd.Flags().BoolVar(&asString, "string", false, "store the value as a string even if it parses as JSON")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <key>",
		Aliases: []string{"rm"},
		Short:   "Delete a key",
		Args:    cobra.ExactArgs(1),
		RunE: withClient(a, func(cmd *cobra.Command, c *kvdb.Client, args []string) error {
			return c.Delete(cmd.Context(), args[0], a.cfg.CallOptions())
		}),
	}
}

func newExistsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "exists <key>",
		Aliases: []string{"has"},
		Short:   "Report whether key is present",
		Args:    cobra.ExactArgs(1),
		RunE: withClient(a, func(cmd *cobra.Command, c *kvdb.Client, args []string) error {
			ok, err := c.Exists(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printValue(ok)
		}),
	}
}

func newTypeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "type <key>",
		Short: "Print the type of the value stored at key",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(a, func(cmd *cobra.Command, c *kvdb.Client, args []string) error {
			t, err := c.TypeOf(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printValue(string(t))
		}),
	}
}

func newListCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "list [prefix]",
		Aliases: []string{"ls"},
		Short:   "List keys, optionally restricted to a prefix",
		Args:    cobra.MaximumNArgs(1),
		RunE: withClient(a, func(cmd *cobra.Command, c *kvdb.Client, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			keys, err := c.ListKeys(cmd.Context(), prefix, limit)
			if err != nil {
				return err
			}
			return a.printKeys(keys)
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of keys (0 = all)")
	return cmd
}

func newMathCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "math <key> <operator> <operand>",
		Short: "Apply + - * / to the number stored at key",
		Long: `Apply an arithmetic operator to the number stored at key and store the
result. An absent key is set to the operand.`,
		Args: cobra.ExactArgs(3),
		RunE: withClient(a, func(cmd *cobra.Command, c *kvdb.Client, args []string) error {
			n, err := parseNumber(args[2])
			if err != nil {
				return err
			}
			v, err := c.Math(cmd.Context(), args[0], args[1], n)
			if err != nil {
				return err
			}
			return a.printValue(v)
		}),
	}
}

func newAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <key> <amount>",
		Short: "Add to the number stored at key",
		Args:  cobra.ExactArgs(2),
		RunE: withClient(a, func(cmd *cobra.Command, c *kvdb.Client, args []string) error {
			n, err := parseNumber(args[1])
			if err != nil {
				return err
			}
			v, err := c.Add(cmd.Context(), args[0], n)
			if err != nil {
				return err
			}
			return a.printValue(v)
		}),
	}
}

func newSubtractCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "subtract <key> <amount>",
		Aliases: []string{"sub"},
		Short:   "Subtract from the number stored at key",
		Args:    cobra.ExactArgs(2),
		RunE: withClient(a, func(cmd *cobra.Command, c *kvdb.Client, args []string) error {
			n, err := parseNumber(args[1])
			if err != nil {
				return err
			}
			v, err := c.Subtract(cmd.Context(), args[0], n)
			if err != nil {
				return err
			}
			return a.printValue(v)
		}),
	}
}

func newPushCmd(a *app) *cobra.Command {
	var asString bool
	cmd := &cobra.Command{
		Use:   "push <key> <value>",
		Short: "Append a value to the array stored at key",
		Args:  cobra.ExactArgs(2),
		RunE: withClient(a, func(cmd *cobra.Command, c *kvdb.Client, args []string) error {
			arr, err := c.Push(cmd.Context(), args[0], parseValue(args[1], asString))
			if err != nil {
				return err
			}
			return a.printValue(arr)
		}),
	}
	cmd.Flags().BoolVar(&asString, "string", false, "push the value as a string")
	return cmd
}

func newPullCmd(a *app) *cobra.Command {
	var asString bool
	cmd := &cobra.Command{
		Use:   "pull <key> <value>",
		Short: "Remove every occurrence of value from the array stored at key",
		Long: `Remove every element equal to value from the array stored at key. A JSON
array value removes each of its elements.`,
		Args: cobra.ExactArgs(2),
		RunE: withClient(a, func(cmd *cobra.Command, c *kvdb.Client, args []string) error {
			arr, err := c.Pull(cmd.Context(), args[0], parseValue(args[1], asString))
			if err != nil {
				return err
			}
			return a.printValue(arr)
		}),
	}
	cmd.Flags().BoolVar(&asString, "string", false, "pull the value as a string")
	return cmd
}
