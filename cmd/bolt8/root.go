package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pzverkov/bolt8/pkg/metrics"
)

// cli carries state shared by every subcommand.
type cli struct {
	v       *viper.Viper
	cfgFile string
	logger  *metrics.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:           "bolt8",
		Short:         "Lightning peer transport: BOLT #8 handshake, encrypted framing and peer management",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(c.v, c.cfgFile); err != nil {
				return err
			}
			logger, err := newLogger(c.v, os.Stderr)
			if err != nil {
				return err
			}
			c.logger = logger
			metrics.SetLogger(logger)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default $HOME/.bolt8/config.yaml)")
	flags.String("log-level", defaultLogLevel, "log level: debug, info, warn, error, silent")
	flags.String("log-format", defaultLogFormat, "log format: text or json")
	_ = c.v.BindPFlag(keyLogLevel, flags.Lookup("log-level"))
	_ = c.v.BindPFlag(keyLogFormat, flags.Lookup("log-format"))

	root.AddCommand(
		c.vectorsCmd(),
		c.demoCmd(),
		c.benchCmd(),
		c.keygenCmd(),
		c.versionCmd(),
	)
	return root
}
