package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/patchgate/patchgate/pkg/color"
	"github.com/patchgate/patchgate/pkg/config"
	"github.com/patchgate/patchgate/pkg/model"
	"github.com/patchgate/patchgate/pkg/patchgate"
)

var (
	applyYes           bool
	applyFailOnBlocked bool
	applyNoSnapshot    bool
	applyBlocklist     []string
)

var applyCmd = &cobra.Command{
	Use:   "apply <patch-file>",
	Short: "Apply a patch set with policy check, preview and snapshot",
	Long: `Apply a patch set with policy check, preview and snapshot.

The patch file is a JSON document; use - to read it from stdin:

  {
    "source": "my-agent",
    "patches": [
      {"op": "update", "path": "src/index.ts", "content": "...", "reason": "fix null check"}
    ]
  }

Planned changes are shown before anything is written. On a terminal you
are asked to confirm; without one (or with CI set) the batch is approved
unless policy.require_approval is set, in which case it is declined.

Examples:
  patchgate apply patch.json
  patchgate apply --yes patch.json
  patchgate apply --blocklist "migrations/**" patch.json
  cat patch.json | patchgate apply -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := loadWorkspace(cmd)
		if err != nil {
			return err
		}
		in, err := readPatchSet(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		base := ws.cfg.Policy.Resolve()
		override := applyOverride(cmd)
		if !jsonOutput {
			fmt.Fprintf(out, "%s %d patch(es)\n\n", color.Header("PatchGate: applying"), len(in.Patches))
		}

		conf := &confirmer{
			in:              cmd.InOrStdin(),
			out:             out,
			prompt:          cmd.ErrOrStderr(),
			interactive:     interactive(),
			requireApproval: base.Merge(override).RequireApproval,
			assumeYes:       applyYes,
			quiet:           jsonOutput,
		}
		res, err := patchgate.Run(cmd.Context(), in, patchgate.Options{
			Workdir: ws.dir,
			Base:    &base,
			Config:  override,
			Preview: conf.preview,
			Webhook: ws.webhook(),
			Logger:  ws.logger,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			if err := outputJSON(out, res); err != nil {
				return err
			}
		} else {
			printApplyResult(out, res, undoWorkdir(ws.dir))
		}
		if !res.Success {
			return errFailed
		}
		return nil
	},
}

func applyOverride(cmd *cobra.Command) *config.Override {
	o := &config.Override{Blocklist: applyBlocklist}
	if cmd.Flags().Changed("fail-on-blocked") {
		o.FailOnBlocked = config.Bool(applyFailOnBlocked)
	}
	if cmd.Flags().Changed("no-snapshot") {
		o.EnableSnapshot = config.Bool(!applyNoSnapshot)
	}
	return o
}

// readPatchSet loads and structurally validates a patch-set document. A
// name of "-" reads from stdin.
func readPatchSet(stdin io.Reader, name string) (model.PatchSetInput, error) {
	var data []byte
	var err error
	if name == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		var abs string
		abs, err = filepath.Abs(name)
		if err == nil {
			data, err = os.ReadFile(abs)
		}
	}
	if err != nil {
		return model.PatchSetInput{}, fmt.Errorf("read patch file: %w", err)
	}

	var in model.PatchSetInput
	if err := json.Unmarshal(data, &in); err != nil {
		return model.PatchSetInput{}, fmt.Errorf("could not parse patch file: %w", err)
	}
	if err := in.Validate(); err != nil {
		return model.PatchSetInput{}, err
	}
	return in, nil
}

// confirmer renders the planned changes and decides whether to apply them.
type confirmer struct {
	in              io.Reader
	out             io.Writer
	prompt          io.Writer
	interactive     bool
	requireApproval bool
	assumeYes       bool
	quiet           bool
}

func (c *confirmer) preview(_ context.Context, diffs []patchgate.Diff) (bool, error) {
	if !c.quiet {
		fmt.Fprintln(c.out, color.Header("Planned changes"))
		for _, d := range diffs {
			printDiffText(c.out, d.Text)
		}
		fmt.Fprintln(c.out)
	}

	switch {
	case c.assumeYes:
		return true, nil
	case !c.interactive:
		if c.requireApproval && !c.quiet {
			fmt.Fprintln(c.out, color.Warning("Approval required but no terminal is attached; nothing applied."))
		}
		return !c.requireApproval, nil
	default:
		return askYesNo(c.in, c.prompt, "Apply these changes?")
	}
}

func printDiffText(w io.Writer, text string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		fmt.Fprintln(w, color.DiffLine(line))
	}
}

func printApplyResult(w io.Writer, res *patchgate.Result, workdir string) {
	if len(res.Blocked) > 0 {
		fmt.Fprintln(w, color.Warningf("Blocked by policy: %d", len(res.Blocked)))
		for _, b := range res.Blocked {
			fmt.Fprintf(w, "   %s: %s\n", b.Path, b.Reason)
		}
	}
	if len(res.Applied) > 0 {
		fmt.Fprintln(w, color.Successf("Applied: %d", len(res.Applied)))
		for _, p := range res.Applied {
			fmt.Fprintf(w, "   %s\n", p)
		}
	}
	if len(res.Skipped) > 0 {
		fmt.Fprintln(w, color.Warningf("Skipped: %d", len(res.Skipped)))
		for _, s := range res.Skipped {
			fmt.Fprintf(w, "   %s (%s)\n", s.Path, s.Reason)
		}
	}
	if len(res.Errors) > 0 {
		fmt.Fprintln(w, color.Errorf("Errors: %d", len(res.Errors)))
		for _, e := range res.Errors {
			fmt.Fprintf(w, "   %s: %s\n", e.Path, e.Message)
		}
	}
	if res.SnapshotPath != "" {
		fmt.Fprintf(w, "\nSnapshot saved: %s\n", color.SnapshotID(res.SnapshotPath))
		fmt.Fprintf(w, "   To undo: %s\n", color.Infof("%s", undoCommand(workdir, res.SnapshotPath)))
	}
	switch {
	case res.Success:
		fmt.Fprintln(w, color.Success("\nDone."))
	case len(res.Errors) == 0:
		fmt.Fprintln(w, color.Warning("\nCancelled, nothing applied."))
	default:
		fmt.Fprintln(w, color.Warning("\nCompleted with errors."))
	}
}

// undoWorkdir returns the directory the undo hint must name, or "" when the
// run used the current directory.
func undoWorkdir(dir string) string {
	if workdirFlag == "" {
		return ""
	}
	return dir
}

func undoCommand(workdir, snapshotPath string) string {
	cmd := "patchgate "
	if workdir != "" {
		cmd += "-C " + shellQuote(workdir) + " "
	}
	return cmd + "rollback " + filepath.Base(snapshotPath)
}

func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"\\$`*?[]{}()<>|&;#~!") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func init() {
	applyCmd.Flags().BoolVarP(&applyYes, "yes", "y", false, "apply without asking for confirmation")
	applyCmd.Flags().BoolVar(&applyFailOnBlocked, "fail-on-blocked", false, "abort the whole batch if any patch is blocked")
	applyCmd.Flags().BoolVar(&applyNoSnapshot, "no-snapshot", false, "do not snapshot files before writing")
	applyCmd.Flags().StringSliceVar(&applyBlocklist, "blocklist", nil, "extra blocklist pattern (repeatable)")
	rootCmd.AddCommand(applyCmd)
}
