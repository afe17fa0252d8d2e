package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"salesdesk/internal/errors"
	"salesdesk/internal/log"
	"salesdesk/internal/scan"
	"salesdesk/internal/watch"

	"github.com/spf13/cobra"
)

// NewScanCmd creates the scan command
func NewScanCmd(s *cliState) *cobra.Command {
	var (
		jsonOutput bool
		details    bool
		follow     bool
	)

	cmd := &cobra.Command{
		Use:   "scan [folder]",
		Short: "List the files a directory run would process",
		Long: `List the CSV and XLSX files below a folder, the same way directory
mode fills the task list. Without an argument the configured input folder
is scanned.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := s.cfg.Paths.InputPath
			if len(args) > 0 {
				root = args[0]
			}
			if root == "" {
				return errors.NewConfigError("no folder given and no input folder configured", "paths.inputPath", errors.InvalidConfig, nil)
			}
			root, err := filepath.Abs(root)
			if err != nil {
				return err
			}
			info, err := os.Stat(root)
			if err != nil || !info.IsDir() {
				return errors.NewFileError("folder not found", root, errors.FileNotFound, err)
			}

			out := cmd.OutOrStdout()
			pal := newPalette(s.cfg)
			scanner := scan.New()
			list := func() {
				n := listFiles(out, scanner, root, jsonOutput, details)
				if !jsonOutput {
					fmt.Fprintln(out, pal.mutedText(fmt.Sprintf("%d files", n)))
				}
			}
			list()

			if !follow {
				return nil
			}
			return followFolder(cmd, s, scanner, root, func() {
				if !jsonOutput {
					fmt.Fprintln(out, pal.primaryText("--- "+root+" changed ---"))
				}
				list()
			})
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output one JSON object per file")
	cmd.Flags().BoolVarP(&details, "details", "d", false, "Show size and content type")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep listing whenever the folder changes")

	return cmd
}

func listFiles(out io.Writer, scanner *scan.Scanner, root string, jsonOutput, details bool) int {
	n := 0
	for p := range scanner.Scan(root) {
		n++
		if !jsonOutput && !details {
			fmt.Fprintln(out, p)
			continue
		}
		entry, err := scan.Inspect(p)
		if err != nil {
			log.LogWithError(err).Warn("Skipping file")
			continue
		}
		if jsonOutput {
			fmt.Fprintln(out, entry.ToJSON())
		} else {
			fmt.Fprintln(out, entry.String())
		}
	}
	return n
}

// followFolder calls onChange for every coalesced change until interrupted
func followFolder(cmd *cobra.Command, s *cliState, scanner *scan.Scanner, root string, onChange func()) error {
	w, err := watch.New(scanner.Eligible, time.Duration(s.cfg.Watch.CoalesceMS)*time.Millisecond)
	if err != nil {
		return err
	}
	defer w.Stop()

	if err := w.AddTree(root); err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	log.LogWithFields(log.F("root", root)).Info("Watching folder, press Ctrl+C to stop")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	w.Follow(ctx, func(watch.Change) { onChange() })
	return nil
}
