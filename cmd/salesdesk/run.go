package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"salesdesk/internal/batch"
	"salesdesk/internal/config"
	"salesdesk/internal/errors"
	"salesdesk/internal/log"
	"salesdesk/internal/tui"
	"salesdesk/pkg/types"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

type runOptions struct {
	engine         string
	outputDir      string
	onConflict     string
	outputToSource bool
	directory      string
	plain          bool
}

// NewRunCmd creates the run command
func NewRunCmd(s *cliState) *cobra.Command {
	var o runOptions

	cmd := &cobra.Command{
		Use:   "run [files or folders...]",
		Short: "Process files with the engine",
		Long: `Process CSV and XLSX files with the engine. Folders are searched
recursively for eligible files.

With --directory the engine is given a whole folder in one call and the
per file list is not used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.apply(cmd, s.cfg); err != nil {
				return err
			}
			if o.directory != "" {
				return s.runDirectory(cmd, o.directory)
			}
			if len(args) == 0 {
				return errors.ErrEmptyTaskSet
			}
			if !o.plain && isTerminal(cmd.OutOrStdout()) {
				return s.runTUI(cmd, args)
			}
			return s.runPlain(cmd, args)
		},
	}

	cmd.Flags().StringVar(&o.engine, "engine", "", "engine executable (default is the bundled engine)")
	cmd.Flags().StringVarP(&o.outputDir, "output-dir", "o", "", "folder the results are written to")
	cmd.Flags().StringVar(&o.onConflict, "on-conflict", "", "what to do when a result exists: rename, overwrite or skip")
	cmd.Flags().BoolVar(&o.outputToSource, "output-to-source", false, "write results next to the source files")
	cmd.Flags().StringVar(&o.directory, "directory", "", "hand a whole folder to the engine in one call")
	cmd.Flags().BoolVar(&o.plain, "plain", false, "print progress lines instead of the interactive view")

	return cmd
}

// apply overrides the loaded settings for this invocation only
func (o runOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	if o.engine != "" {
		cfg.Engine.Path = o.engine
	}
	if o.outputDir != "" {
		cfg.Paths.OutputPath = o.outputDir
		cfg.Options.OutputToSource = false
	}
	if cmd.Flags().Changed("output-to-source") {
		cfg.Options.OutputToSource = o.outputToSource
	}
	if o.onConflict != "" {
		p, err := types.ParseConflictPolicy(o.onConflict)
		if err != nil {
			return err
		}
		cfg.SetPolicy(p)
	}
	// The task list comes from the arguments
	cfg.Options.UseDirectoryMode = false
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func (s *cliState) runPlain(cmd *cobra.Command, args []string) error {
	pal := newPalette(s.cfg)
	sink := newPlainSink(cmd.OutOrStdout(), pal)
	ctrl := batch.New(s.cfg, sink)
	sink.setTasks(ctrl.Tasks)

	added, err := ctrl.AddFiles(args...)
	if err != nil {
		return err
	}
	log.LogWithFields(log.F("files", added)).Info("Files queued")

	if err := ctrl.Start(); err != nil {
		return err
	}
	report, err := waitCancellable(cmd.Context(), ctrl)
	if err != nil {
		return err
	}
	printReport(cmd.OutOrStdout(), pal, report)
	return report.Err
}

func (s *cliState) runTUI(cmd *cobra.Command, args []string) error {
	sink := &tui.ProgramSink{}
	ctrl := batch.New(s.cfg, sink)
	if _, err := ctrl.AddFiles(args...); err != nil {
		return err
	}

	model := tui.New(cmd.Context(), ctrl, tui.NewStyles(s.cfg.Theme.Name))
	p := tea.NewProgram(model, tea.WithOutput(cmd.OutOrStdout()), tea.WithInput(cmd.InOrStdin()))
	sink.Attach(p)

	if _, err := p.Run(); err != nil {
		return err
	}
	if err := model.Err(); err != nil {
		return err
	}
	report, ok := model.Report()
	if !ok {
		// Quit before the engine was started
		if ctrl.Running() {
			_ = ctrl.Cancel()
		}
		return errors.ErrCancelled
	}
	return report.Err
}

func (s *cliState) runDirectory(cmd *cobra.Command, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return errors.NewFileError("input folder not found", abs, errors.FileNotFound, err)
	}

	pal := newPalette(s.cfg)
	sink := newPlainSink(cmd.OutOrStdout(), pal)
	ctrl := batch.New(s.cfg, sink)
	sink.setTasks(ctrl.Tasks)

	if err := ctrl.SetInputDir(abs); err != nil {
		return err
	}
	if err := ctrl.StartDirectory(); err != nil {
		return err
	}
	report, err := waitCancellable(cmd.Context(), ctrl)
	if err != nil {
		return err
	}
	printReport(cmd.OutOrStdout(), pal, report)
	return report.Err
}

// waitCancellable applies engine events until the run finishes. An interrupt
// cancels the engine and keeps waiting for its outcome.
func waitCancellable(ctx context.Context, ctrl *batch.Controller) (batch.Report, error) {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-sigCtx.Done()
		if ctrl.Running() {
			if err := ctrl.Cancel(); err != nil {
				log.LogWithError(err).Debug("Cancel after interrupt")
			}
		}
	}()

	return ctrl.RunUntilFinished(context.Background())
}

func printReport(w io.Writer, pal palette, r batch.Report) {
	switch {
	case r.Success():
		fmt.Fprintln(w, pal.successText(r.Message()))
	case r.Kind == batch.ReportCancelled:
		fmt.Fprintln(w, pal.warningText(r.Message()))
	default:
		fmt.Fprintln(w, pal.errorText(r.Message()))
	}
	if summary := r.Summary(); summary != "" {
		fmt.Fprintln(w, pal.mutedText(summary))
	}
}

// plainSink prints engine output and every status change as a line
type plainSink struct {
	out io.Writer
	pal palette

	mu    sync.Mutex
	tasks func() []types.FileTask
	shown map[string]types.TaskStatus
}

func newPlainSink(out io.Writer, pal palette) *plainSink {
	return &plainSink{out: out, pal: pal, shown: map[string]types.TaskStatus{}}
}

func (p *plainSink) setTasks(tasks func() []types.FileTask) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = tasks
}

func (p *plainSink) AppendLog(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, p.pal.mutedText(line))
}

func (p *plainSink) TasksChanged() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tasks == nil {
		return
	}
	for _, t := range p.tasks() {
		if p.shown[t.Path] == t.Status {
			continue
		}
		p.shown[t.Path] = t.Status
		if t.Status == types.StatusPending {
			continue
		}

		line := fmt.Sprintf("[%s] %s", t.Status.Label(), t.Name())
		if t.Message != "" {
			line += " " + t.Message
		}
		switch t.Status {
		case types.StatusSuccess:
			line = p.pal.successText(line)
		case types.StatusFailure:
			line = p.pal.errorText(line)
		case types.StatusProcessing:
			line = p.pal.primaryText(line)
		default:
			line = p.pal.warningText(line)
		}
		fmt.Fprintln(p.out, line)
	}
}

func (p *plainSink) ModeChanged(types.InputMode) {}
func (p *plainSink) RunStateChanged(bool)        {}
func (p *plainSink) RunFinished(batch.Report)    {}

func (p *plainSink) Warn(err error) {
	log.LogWithError(err).Debug("Action refused")
}
