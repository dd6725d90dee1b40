package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gogpu/dxcore"
	"github.com/gogpu/dxcore/config"
)

// newRootCmd builds the dxconf command tree. Each call returns a fresh tree
// with its own viper instance.
func newRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "dxconf",
		Short: "Inspect dxvk.conf and exercise the dxcore device",
		Long: `dxconf reads dxvk.conf configuration files the way the dxcore device
does, resolving executable sections and typed option values.

The configuration file is taken from --file, then $DXVK_CONFIG_FILE,
then dxvk.conf in the working directory.`,
		Version:       dxcore.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(cmd, v)
		},
	}

	rootCmd.PersistentFlags().String("file", "", "config file (default $DXVK_CONFIG_FILE or dxvk.conf)")
	rootCmd.PersistentFlags().String("exe", "", "executable name selecting config sections (default: this program)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: none, error, warn, info or debug (default: dxvk.logLevel)")

	_ = v.BindPFlag("file", rootCmd.PersistentFlags().Lookup("file"))
	_ = v.BindPFlag("exe", rootCmd.PersistentFlags().Lookup("exe"))
	_ = v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindEnv("file", config.EnvConfigFile)
	v.SetEnvPrefix("DXCONF")
	v.AutomaticEnv()

	rootCmd.AddCommand(newShowCmd(v))
	rootCmd.AddCommand(newGetCmd(v))
	rootCmd.AddCommand(newSimulateCmd(v))

	return rootCmd
}

// configSource returns the config file and executable name selected by
// flags and environment.
func configSource(v *viper.Viper) (path, exe string) {
	path = v.GetString("file")
	if path == "" {
		path = config.DefaultFile
	}
	exe = v.GetString("exe")
	if exe == "" {
		exe = config.ExeName()
	}
	return path, exe
}

func loadConfig(v *viper.Viper) (*config.Config, string, string, error) {
	path, exe := configSource(v)
	cfg, err := config.LoadFile(path, exe)
	if err != nil {
		return nil, path, exe, err
	}
	return cfg, path, exe, nil
}

// setupLogging installs a stderr logger at the level given by --log-level,
// or by dxvk.logLevel when the flag is unset.
func setupLogging(cmd *cobra.Command, v *viper.Viper) error {
	name := v.GetString("log_level")
	if name == "" {
		cfg, _, _, err := loadConfig(v)
		if err != nil {
			return err
		}
		name = config.ReadOptions(cfg).LogLevel.String()
	}
	lvl, ok := config.ParseLogLevel(name)
	if !ok {
		return fmt.Errorf("unknown log level %q", name)
	}
	level, enabled := lvl.SlogLevel()
	if !enabled {
		dxcore.SetLogger(nil)
		return nil
	}
	dxcore.SetLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	return nil
}
