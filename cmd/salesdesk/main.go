package main

import (
	"fmt"
	"os"

	"salesdesk/internal/config"
	"salesdesk/internal/log"

	"github.com/spf13/cobra"
)

var version = "dev"

// cliState is shared by the subcommands of one invocation
type cliState struct {
	cfgFile  string
	debug    bool
	jsonLogs bool

	cfg     *config.Config
	cfgPath string
}

// Entry point for the application
func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd creates the root command. Without a subcommand it opens the GUI.
func NewRootCmd() *cobra.Command {
	s := &cliState{}

	rootCmd := &cobra.Command{
		Use:   "salesdesk",
		Short: "Batch front end for the sales data engine",
		Long: `Sales Desk collects CSV and XLSX exports, hands them to the
processing engine and shows the per file result.

Run without a subcommand to open the desktop window.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: s.load,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runGUI()
		},
	}

	rootCmd.PersistentFlags().StringVar(&s.cfgFile, "config", "", "config file (default is $HOME/.config/salesdesk/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&s.debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&s.jsonLogs, "json-logs", false, "write log lines as JSON")

	rootCmd.AddCommand(NewGUICmd(s))
	rootCmd.AddCommand(NewRunCmd(s))
	rootCmd.AddCommand(NewScanCmd(s))
	rootCmd.AddCommand(NewConfigCmd(s))

	return rootCmd
}

// load reads the config and sets up logging before any subcommand runs
func (s *cliState) load(cmd *cobra.Command, _ []string) error {
	path := s.cfgFile
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return fmt.Errorf("cannot locate config file: %w", err)
		}
	}

	cfg, err := config.LoadConfigFile(path)
	if err != nil {
		return err
	}
	s.cfg = cfg
	s.cfgPath = path

	opts := []log.Option{
		log.WithOutput(cmd.ErrOrStderr()),
		log.WithLevel(cfg.Logging.Level),
	}
	if s.jsonLogs || cfg.Logging.JSON {
		opts = append(opts, log.WithJSON())
	}
	if cfg.Logging.File != "" {
		opts = append(opts, log.WithFile(cfg.Logging.File))
	}
	log.Configure(opts...)
	log.SetDebug(s.debug)

	log.LogWithFields(log.F("config", path), log.F("version", version)).Debug("Configuration loaded")
	return nil
}
