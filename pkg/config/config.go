// Package config provides policy defaults and configuration file support
// for PatchGate.
//
// Resolution order, later wins: built-in defaults, .patchgate/config.yaml,
// PATCHGATE_* assignments in .patchgate/env, PATCHGATE_* environment
// variables, then the caller's Override.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/patchgate/patchgate/pkg/fsutil"
)

const (
	// StateDir holds snapshots, the audit log and the config file.
	StateDir = ".patchgate"
	// FileName is the config file name inside StateDir.
	FileName = "config.yaml"
	// EnvFileName is a dotenv file inside StateDir for values that should
	// stay out of config.yaml, such as the webhook secret.
	EnvFileName = "env"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "PATCHGATE_"
)

// DefaultBlocklist is the safety floor: secrets and infra metadata an agent
// must never write.
var DefaultBlocklist = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"*.secret",
	"node_modules/**",
	".git/**",
}

// PolicyConfig is the policy for one run. It is built once and not changed
// while the run is in progress.
type PolicyConfig struct {
	Blocklist       []string `json:"blocklist" yaml:"blocklist"`
	RequireApproval bool     `json:"requireApproval" yaml:"require_approval"`
	EnableSnapshot  bool     `json:"enableSnapshot" yaml:"enable_snapshot"`
	FailOnBlocked   bool     `json:"failOnBlocked" yaml:"fail_on_blocked"`
	// RunTypecheck and ValidateCommand are carried for callers; PatchGate
	// itself never executes anything.
	RunTypecheck    bool   `json:"runTypecheck" yaml:"run_typecheck"`
	ValidateCommand string `json:"validateCommand,omitempty" yaml:"validate_command,omitempty"`
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() PolicyConfig {
	return PolicyConfig{
		Blocklist:      slices.Clone(DefaultBlocklist),
		EnableSnapshot: true,
	}
}

// Override is a partial policy supplied by a caller. Nil fields keep the
// base value. Blocklist patterns extend the base list unless
// ReplaceBlocklist is set.
type Override struct {
	Blocklist        []string
	ReplaceBlocklist bool
	RequireApproval  *bool
	EnableSnapshot   *bool
	FailOnBlocked    *bool
	RunTypecheck     *bool
	ValidateCommand  *string
}

// Bool returns a pointer to b, for filling Override fields.
func Bool(b bool) *bool { return &b }

// Merge returns a copy of p with o applied. p is not modified.
func (p PolicyConfig) Merge(o *Override) PolicyConfig {
	out := p
	out.Blocklist = slices.Clone(p.Blocklist)
	if o == nil {
		return out
	}
	if o.ReplaceBlocklist {
		out.Blocklist = slices.Clone(o.Blocklist)
	} else {
		out.Blocklist = appendUnique(out.Blocklist, o.Blocklist...)
	}
	if o.RequireApproval != nil {
		out.RequireApproval = *o.RequireApproval
	}
	if o.EnableSnapshot != nil {
		out.EnableSnapshot = *o.EnableSnapshot
	}
	if o.FailOnBlocked != nil {
		out.FailOnBlocked = *o.FailOnBlocked
	}
	if o.RunTypecheck != nil {
		out.RunTypecheck = *o.RunTypecheck
	}
	if o.ValidateCommand != nil {
		out.ValidateCommand = *o.ValidateCommand
	}
	return out
}

func appendUnique(list []string, more ...string) []string {
	for _, m := range more {
		if !slices.Contains(list, m) {
			list = append(list, m)
		}
	}
	return list
}

// Config is the on-disk configuration of a working directory.
type Config struct {
	Policy  PolicySection `yaml:"policy" envPrefix:"POLICY_"`
	Logging LoggingConfig `yaml:"logging" envPrefix:"LOG_"`
	Webhook WebhookConfig `yaml:"webhook" envPrefix:"WEBHOOK_"`
}

// PolicySection is the policy block of the config file. Its Blocklist holds
// extra patterns on top of DefaultBlocklist.
type PolicySection struct {
	Blocklist        []string `yaml:"blocklist,omitempty" env:"BLOCKLIST" envSeparator:"," validate:"dive,required"`
	ReplaceBlocklist bool     `yaml:"replace_blocklist,omitempty" env:"REPLACE_BLOCKLIST"`
	RequireApproval  bool     `yaml:"require_approval" env:"REQUIRE_APPROVAL"`
	EnableSnapshot   bool     `yaml:"enable_snapshot" env:"ENABLE_SNAPSHOT"`
	FailOnBlocked    bool     `yaml:"fail_on_blocked" env:"FAIL_ON_BLOCKED"`
	RunTypecheck     bool     `yaml:"run_typecheck" env:"RUN_TYPECHECK"`
	ValidateCommand  string   `yaml:"validate_command,omitempty" env:"VALIDATE_COMMAND"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" env:"FORMAT" validate:"oneof=json text"`
}

// WebhookConfig configures run notifications. An empty URL disables them.
type WebhookConfig struct {
	URL        string   `yaml:"url,omitempty" env:"URL" validate:"omitempty,url"`
	Secret     string   `yaml:"secret,omitempty" env:"SECRET"`
	Events     []string `yaml:"events,omitempty" env:"EVENTS" envSeparator:","`
	Timeout    string   `yaml:"timeout,omitempty" env:"TIMEOUT" validate:"omitempty,duration"`
	MaxRetries int      `yaml:"max_retries" env:"MAX_RETRIES" validate:"min=0,max=10"`
}

// TimeoutDuration parses Timeout, falling back to 10s.
func (w WebhookConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(w.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Policy: PolicySection{
			EnableSnapshot: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Webhook: WebhookConfig{
			Timeout:    "10s",
			MaxRetries: 3,
		},
	}
}

// Resolve turns the file section into a full policy.
func (s PolicySection) Resolve() PolicyConfig {
	return DefaultPolicy().Merge(&Override{
		Blocklist:        s.Blocklist,
		ReplaceBlocklist: s.ReplaceBlocklist,
		RequireApproval:  Bool(s.RequireApproval),
		EnableSnapshot:   Bool(s.EnableSnapshot),
		FailOnBlocked:    Bool(s.FailOnBlocked),
		RunTypecheck:     Bool(s.RunTypecheck),
		ValidateCommand:  &s.ValidateCommand,
	})
}

// Path returns the config file path for workdir.
func Path(workdir string) string {
	return filepath.Join(workdir, StateDir, FileName)
}

// EnvPath returns the dotenv file path for workdir.
func EnvPath(workdir string) string {
	return filepath.Join(workdir, StateDir, EnvFileName)
}

// Load reads <workdir>/.patchgate/config.yaml, applies PATCHGATE_*
// overrides from <workdir>/.patchgate/env and the process environment,
// and validates the result. Missing files are skipped.
func Load(workdir string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path(workdir))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	vars, err := environment(workdir)
	if err != nil {
		return nil, err
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix, Environment: vars}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// environment merges the env file under the process environment.
func environment(workdir string) (map[string]string, error) {
	vars := make(map[string]string)
	fileVars, err := godotenv.Read(EnvPath(workdir))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read env file: %w", err)
	default:
		maps.Copy(vars, fileVars)
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	return vars, nil
}

// Save writes cfg to <workdir>/.patchgate/config.yaml atomically.
func Save(workdir string, cfg *Config) error {
	cfgPath := Path(workdir)
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := fsutil.AtomicWrite(cfgPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate validates the configuration using struct tags.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("register duration validation: %w", err)
	}
	if err := v.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	var messages []string
	for _, e := range verrs {
		switch e.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s must not be empty", e.Namespace()))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of: %s", e.Namespace(), e.Param()))
		case "min", "max":
			messages = append(messages, fmt.Sprintf("%s must be %s %s", e.Namespace(), map[string]string{"min": "at least", "max": "at most"}[e.Tag()], e.Param()))
		case "duration":
			messages = append(messages, fmt.Sprintf("%s must be a positive duration such as 10s", e.Namespace()))
		default:
			messages = append(messages, fmt.Sprintf("%s failed validation: %s", e.Namespace(), e.Tag()))
		}
	}
	return fmt.Errorf("validation errors: %s", strings.Join(messages, "; "))
}
