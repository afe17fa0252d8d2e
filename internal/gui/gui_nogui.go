//go:build nogui

// Package gui is the fyne desktop front end. This build leaves it out.
package gui

import (
	"fmt"

	"salesdesk/internal/config"
)

// StartGUI is a stub implementation for builds with GUI disabled
func StartGUI(*config.Config, string) error {
	return fmt.Errorf("GUI not available in this build, use the run command instead")
}

// IsGUIAvailable returns whether the GUI is available in this build
func IsGUIAvailable() bool {
	return false
}
