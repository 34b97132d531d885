package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/patchgate/patchgate/pkg/color"
	"github.com/patchgate/patchgate/pkg/config"
	"github.com/patchgate/patchgate/pkg/logging"
	"github.com/patchgate/patchgate/pkg/webhook"
)

// stdinIsTerminal is swapped in tests.
var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func setupRuntime(cmd *cobra.Command, _ []string) error {
	color.Init(noColor)
	switch {
	case noColor:
		color.Disable()
	case forceColor():
		color.Enable()
	}
	return nil
}

// forceColor reports whether CLICOLOR_FORCE asks for color on a pipe.
func forceColor() bool {
	v := os.Getenv("CLICOLOR_FORCE")
	return v != "" && v != "0"
}

// workspace is the resolved working directory with its configuration.
type workspace struct {
	dir    string
	cfg    *config.Config
	logger *logging.Logger
}

// loadWorkspace resolves --workdir, loads its config and sets up logging.
func loadWorkspace(cmd *cobra.Command) (*workspace, error) {
	dir := workdirFlag
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("cannot get current directory: %w", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve workdir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workdir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workdir %s is not a directory", abs)
	}

	cfg, err := config.Load(abs)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger := logging.NewLogger(logging.ParseLevel(level))
	logger.SetFormat(logging.Format(cfg.Logging.Format))
	logger.SetOutput(cmd.ErrOrStderr())

	return &workspace{dir: abs, cfg: cfg, logger: logger}, nil
}

func (w *workspace) webhook() *webhook.Client {
	if w.cfg.Webhook.URL == "" {
		return nil
	}
	return webhook.NewClient(webhook.FromSettings(w.cfg.Webhook))
}

// interactive reports whether a human can answer prompts.
func interactive() bool {
	return stdinIsTerminal() && os.Getenv("CI") == ""
}

// askYesNo prints question to w and reads one answer line from r. Only
// "y" and "yes" count as consent.
func askYesNo(r io.Reader, w io.Writer, question string) (bool, error) {
	fmt.Fprintf(w, "%s [y/N] ", question)
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		if err == io.EOF {
			return false, nil
		}
		return false, fmt.Errorf("read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func fmtErr(w io.Writer, format string, args ...any) {
	prefix := "patchgate: "
	if color.Enabled() {
		prefix = color.Error("patchgate:") + " "
	}
	fmt.Fprintf(w, prefix+format+"\n", args...)
}
