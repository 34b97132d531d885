package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/patchgate/patchgate/pkg/color"
	"github.com/patchgate/patchgate/pkg/config"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config <command>",
	Short: "Manage PatchGate configuration",
	Long: `Manage PatchGate configuration stored in .patchgate/config.yaml.

Values are resolved from built-in defaults, then the config file, then
PATCHGATE_* environment variables (for example
PATCHGATE_POLICY_REQUIRE_APPROVAL=true).

Available commands:
  show              - Show the effective configuration
  init              - Write a config file with the defaults`,
	DisableFlagsInUseLine: true,
}

// effectiveConfig is what config show prints.
type effectiveConfig struct {
	Location string              `json:"location" yaml:"-"`
	Config   *config.Config      `json:"config" yaml:"config"`
	Policy   config.PolicyConfig `json:"policy" yaml:"effective_policy"`
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := loadWorkspace(cmd)
		if err != nil {
			return err
		}

		cfg := *ws.cfg
		if cfg.Webhook.Secret != "" {
			cfg.Webhook.Secret = "********"
		}
		view := effectiveConfig{
			Location: config.Path(ws.dir),
			Config:   &cfg,
			Policy:   cfg.Policy.Resolve(),
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return outputJSON(out, view)
		}

		data, err := yaml.Marshal(view)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Fprintln(out, color.Dim("# PatchGate configuration"))
		fmt.Fprintln(out, color.Dim("# Location: "+view.Location))
		if _, err := os.Stat(view.Location); errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintln(out, color.Dim("# (file not present, showing defaults)"))
		}
		fmt.Fprintln(out)
		fmt.Fprint(out, string(data))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the defaults",
	Long: `Write .patchgate/config.yaml with the default settings.

An existing file is left alone unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := loadWorkspace(cmd)
		if err != nil {
			return err
		}
		path := config.Path(ws.dir)
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.Save(ws.dir, config.Default()); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return outputJSON(out, map[string]string{"path": path})
		}
		fmt.Fprintf(out, "Wrote %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing config file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
