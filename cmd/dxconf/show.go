package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gogpu/dxcore/config"
)

func newShowCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective options for an executable",
		Long: `Show prints every option that applies to the selected executable,
sorted by key, followed by the typed device options derived from them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exe, err := loadConfig(v)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "file: %s\n", path)
			fmt.Fprintf(out, "exe:  %s\n", exe)
			fmt.Fprintln(out)

			if cfg.Len() == 0 {
				fmt.Fprintln(out, "(no options)")
			}
			for _, key := range cfg.Keys() {
				fmt.Fprintf(out, "%s = %s\n", key, cfg.Option(key))
			}

			opts := config.ReadOptions(cfg)
			fmt.Fprintln(out)
			fmt.Fprintf(out, "enableStateCache: %s\n", opts.EnableStateCache)
			fmt.Fprintf(out, "stateCachePath:   %q\n", opts.StateCachePath)
			fmt.Fprintf(out, "logLevel:         %s\n", opts.LogLevel)
			return nil
		},
	}
}
