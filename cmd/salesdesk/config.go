package main

import (
	"fmt"
	"strings"

	"salesdesk/internal/config"
	"salesdesk/internal/log"

	"github.com/spf13/cobra"
)

// NewConfigCmd creates the config command
func NewConfigCmd(s *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change settings",
		Long: fmt.Sprintf(`Show or change settings stored in the config file.

Keys:
  %s`, strings.Join(config.Keys(), "\n  ")),
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print every setting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, key := range config.Keys() {
				v, err := s.cfg.Value(key)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", key, v)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get KEY",
		Short: "Print one setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := s.cfg.Value(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change one setting and save the config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.cfg.SetValue(args[0], args[1]); err != nil {
				return err
			}
			if err := s.cfg.Validate(); err != nil {
				return err
			}
			if err := config.SaveConfig(s.cfg, s.cfgPath); err != nil {
				return err
			}
			log.LogWithFields(log.F("key", args[0]), log.F("path", s.cfgPath)).Debug("Setting saved")
			v, _ := s.cfg.Value(args[0])
			fmt.Fprintln(cmd.OutOrStdout(), newPalette(s.cfg).successText(fmt.Sprintf("%s=%s", args[0], v)))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), s.cfgPath)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "themes",
		Short: "List the terminal themes",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			pal := newPalette(s.cfg)
			for _, name := range config.ListThemes() {
				if name == s.cfg.Theme.Name {
					fmt.Fprintln(cmd.OutOrStdout(), pal.primaryText(name+" (current)"))
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
			}
		},
	})

	return cmd
}
