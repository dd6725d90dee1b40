package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gogpu/dxcore/config"
)

var (
	errNotSet      = errors.New("option not set")
	errParse       = errors.New("option value does not parse")
	errUnknownKind = errors.New("unknown value type")
)

func newGetCmd(v *viper.Viper) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Resolve one option",
		Long: `Get prints the value of one option for the selected executable.

With --type the raw string is parsed as bool, int or tristate and a value
that does not parse is reported as an error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := loadConfig(v)
			if err != nil {
				return err
			}
			key := args[0]
			raw, ok := cfg.Lookup(key)
			if !ok {
				return fmt.Errorf("%s: %w", key, errNotSet)
			}

			value, err := typedValue(raw, kind)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "type", "t", "string", "value type: string, bool, int or tristate")
	return cmd
}

// typedValue parses raw as kind and returns its canonical spelling.
func typedValue(raw, kind string) (string, error) {
	switch kind {
	case "string", "":
		return raw, nil
	case "bool":
		b, ok := config.ParseBool(raw)
		if !ok {
			return "", fmt.Errorf("%w: %q as bool", errParse, raw)
		}
		return fmt.Sprint(b), nil
	case "int":
		n, ok := config.ParseInt32(raw)
		if !ok {
			return "", fmt.Errorf("%w: %q as int", errParse, raw)
		}
		return fmt.Sprint(n), nil
	case "tristate":
		t, ok := config.ParseTristate(raw)
		if !ok {
			return "", fmt.Errorf("%w: %q as tristate", errParse, raw)
		}
		return t.String(), nil
	default:
		return "", fmt.Errorf("%w %q", errUnknownKind, kind)
	}
}
