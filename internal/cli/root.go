// Package cli implements the patchgate command line.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	workdirFlag string
	jsonOutput  bool
	noColor     bool
	logLevel    string
	rootCmd     = &cobra.Command{
		Use:   "patchgate",
		Short: "PatchGate - policy enforcement and rollback for agent code edits",
		Long: `PatchGate sits between an AI coding agent and the filesystem.

Every patch set is checked against a blocklist, previewed as diffs,
snapshotted before anything is written, applied, and recorded in an
append-only audit log. Any applied batch can be rolled back from its
snapshot.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupRuntime,
	}
)

func init() {
	addGlobalFlags(rootCmd)
}

func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&workdirFlag, "workdir", "C", "", "working directory patches are relative to (default: current directory)")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default: from config)")
}

// exitError ends the process with code after its details were printed.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

var errFailed = &exitError{code: 1}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		fmtErr(os.Stderr, "%v", err)
		return 1
	}
	return 0
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
