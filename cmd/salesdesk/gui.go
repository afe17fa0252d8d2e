package main

import (
	"salesdesk/internal/gui"

	"github.com/spf13/cobra"
)

// NewGUICmd creates the GUI command for the CLI
func NewGUICmd(s *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "gui",
		Short: "Open the desktop window",
		Long:  `Open the desktop window. Settings are saved to the config file when the window closes.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runGUI()
		},
	}
}

func (s *cliState) runGUI() error {
	return gui.StartGUI(s.cfg, s.cfgPath)
}
