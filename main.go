package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"weebdomains/pkg/config"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// Version should be set during build
var Version = "dev"

var (
	configFlag   string
	logLevelFlag string

	cfg     config.Config
	cfgPath string
	level   slog.Level
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			pterm.Error.Println(err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "weebdomains",
		Short:         "Mint and browse .weeb names on Polygon Mumbai",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfgPath, err = config.GetConfigPath(configFlag)
			if err != nil {
				return fmt.Errorf("error determining config path: %w", err)
			}
			cfg, err = config.LoadConfigFromFile(cfgPath)
			if err != nil {
				return fmt.Errorf("error loading config from %s: %w", cfgPath, err)
			}
			lvl := cfg.Global.LogLevel
			if cmd.Flags().Changed("log-level") {
				lvl = logLevelFlag
			}
			level, err = parseLevel(lvl)
			if err != nil {
				return err
			}
			return useLogger(logConsole)
		},
		RunE: runTUI,
	}

	root.PersistentFlags().StringVar(&configFlag, "config", "", "path to configuration file (default ~/"+config.ConfigFileName+")")
	root.Flags().IntVar(&apiPort, "api-port", 0, "also serve the API on this port")
	root.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(
		tuiCmd(),
		serveCmd(),
		namesCmd(),
		priceCmd(),
		registerCmd(),
		recordCmd(),
		checkCmd(),
		initCmd(),
		configCmd(),
	)
	return root
}

var closeLog = func() {}

// useLogger installs the default logger for mode, replacing the previous one.
func useLogger(mode logMode) error {
	closeLog()
	logger, closer, err := newLogger(mode, level, os.Stdout, cfgPath+".log")
	if err != nil {
		return err
	}
	closeLog = closer
	slog.SetDefault(logger)
	return nil
}
