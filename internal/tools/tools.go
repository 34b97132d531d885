// Package tools exposes PatchGate as function-calling tools for agents.
// Each call becomes a one-patch batch through patchgate.Run, so tools get
// exactly the policy, snapshot and audit behavior of any other caller.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/patchgate/patchgate/pkg/config"
	"github.com/patchgate/patchgate/pkg/model"
	"github.com/patchgate/patchgate/pkg/patchgate"
)

// DefaultSource is the patch-set source recorded for tool calls.
const DefaultSource = "agent-tool"

// Definition is the function declaration handed to the model.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Result is returned to the model after a call.
type Result struct {
	OK           bool                `json:"ok"`
	Applied      []string            `json:"applied"`
	Blocked      []model.BlockedPath `json:"blocked"`
	Errors       []model.PathError   `json:"errors,omitempty"`
	SnapshotPath string              `json:"snapshotPath,omitempty"`
	Message      string              `json:"message"`
}

// Tool is one callable tool.
type Tool struct {
	Definition Definition
	build      func(args json.RawMessage) (model.FilePatchJSON, string, error)
	opts       *Options
}

// Options configures the tool set.
type Options struct {
	// Source is recorded in the audit log; defaults to DefaultSource.
	Source string
	// Run carries the workdir, policy and sinks for every call. Its Config
	// is extended so snapshots are always taken.
	Run patchgate.Options
}

var argsValidator = validator.New()

type writeArgs struct {
	Path    string  `json:"path" validate:"required"`
	Content *string `json:"content" validate:"required"`
}

type deleteArgs struct {
	Path string `json:"path" validate:"required"`
}

type renameArgs struct {
	Path    string `json:"path" validate:"required"`
	NewPath string `json:"newPath" validate:"required"`
}

// NewFileTools returns the write, delete and rename tools.
func NewFileTools(opts Options) []*Tool {
	if opts.Source == "" {
		opts.Source = DefaultSource
	}
	o := &opts
	return []*Tool{
		{
			Definition: Definition{
				Name:        "patchgate_write_file",
				Description: "Safely write or update a file with PatchGate enforcement.",
				Parameters: objectSchema(map[string]any{
					"path":    stringProp("File path relative to the project root"),
					"content": stringProp("Full new content of the file"),
				}, "path", "content"),
			},
			opts: o,
			build: func(raw json.RawMessage) (model.FilePatchJSON, string, error) {
				var a writeArgs
				if err := decode(raw, &a); err != nil {
					return model.FilePatchJSON{}, "", err
				}
				return model.FilePatchJSON{Op: string(model.OpUpdate), Path: a.Path, Content: a.Content},
					"Wrote " + a.Path, nil
			},
		},
		{
			Definition: Definition{
				Name:        "patchgate_delete_file",
				Description: "Safely delete a file with PatchGate enforcement.",
				Parameters: objectSchema(map[string]any{
					"path": stringProp("File path relative to the project root"),
				}, "path"),
			},
			opts: o,
			build: func(raw json.RawMessage) (model.FilePatchJSON, string, error) {
				var a deleteArgs
				if err := decode(raw, &a); err != nil {
					return model.FilePatchJSON{}, "", err
				}
				return model.FilePatchJSON{Op: string(model.OpDelete), Path: a.Path},
					"Deleted " + a.Path, nil
			},
		},
		{
			Definition: Definition{
				Name:        "patchgate_rename_file",
				Description: "Safely rename or move a file with PatchGate enforcement.",
				Parameters: objectSchema(map[string]any{
					"path":    stringProp("Current file path relative to the project root"),
					"newPath": stringProp("Destination path relative to the project root"),
				}, "path", "newPath"),
			},
			opts: o,
			build: func(raw json.RawMessage) (model.FilePatchJSON, string, error) {
				var a renameArgs
				if err := decode(raw, &a); err != nil {
					return model.FilePatchJSON{}, "", err
				}
				return model.FilePatchJSON{Op: string(model.OpRename), Path: a.Path, NewPath: a.NewPath},
					fmt.Sprintf("Renamed %s → %s", a.Path, a.NewPath), nil
			},
		},
	}
}

// Find returns the tool named name, or nil.
func Find(tools []*Tool, name string) *Tool {
	for _, t := range tools {
		if t.Definition.Name == name {
			return t
		}
	}
	return nil
}

// Execute runs the tool with the model-supplied JSON arguments. Bad
// arguments come back as a failed Result rather than a Go error, so the
// model can correct itself; an error is returned only when the run itself
// could not happen.
func (t *Tool) Execute(ctx context.Context, args json.RawMessage) (*Result, error) {
	patch, okMessage, err := t.build(args)
	if err != nil {
		return &Result{
			Applied: []string{},
			Blocked: []model.BlockedPath{},
			Message: "Invalid arguments: " + err.Error(),
		}, nil
	}

	runOpts := t.opts.Run
	override := config.Override{}
	if runOpts.Config != nil {
		override = *runOpts.Config
	}
	override.EnableSnapshot = config.Bool(true)
	runOpts.Config = &override

	res, err := patchgate.Run(ctx, model.PatchSetInput{
		Source:  t.opts.Source,
		Patches: []model.FilePatchJSON{patch},
	}, runOpts)
	if err != nil {
		return nil, err
	}

	out := &Result{
		Applied:      res.Applied,
		Blocked:      res.Blocked,
		Errors:       res.Errors,
		SnapshotPath: res.SnapshotPath,
	}
	switch {
	case len(res.Blocked) > 0:
		out.Message = "Blocked by policy: " + res.Blocked[0].Reason
	case !res.Success:
		msgs := make([]string, 0, len(res.Errors))
		for _, e := range res.Errors {
			msgs = append(msgs, e.Message)
		}
		out.Message = "Failed: " + strings.Join(msgs, "; ")
	default:
		out.OK = true
		out.Message = okMessage
	}
	return out, nil
}

func decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parse arguments: %w", err)
	}
	if err := argsValidator.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		missing := make([]string, 0, len(verrs))
		for _, e := range verrs {
			missing = append(missing, e.Field())
		}
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}
