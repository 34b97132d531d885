package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/patchgate/patchgate/pkg/errclass"
)

// PatchSet is an identified, ordered batch of patches from one producer.
// Patch order is application order.
type PatchSet struct {
	ID        string
	CreatedAt time.Time
	Source    string
	Patches   []Patch
	// Blocklist holds per-call deny patterns, unioned with the configured ones.
	Blocklist []string
}

// PatchSetInput is the JSON patch-set document accepted by Run and the CLI.
type PatchSetInput struct {
	ID        string          `json:"id,omitempty" validate:"omitempty,max=128"`
	CreatedAt *time.Time      `json:"createdAt,omitempty"`
	Source    string          `json:"source,omitempty" validate:"omitempty,max=256"`
	Patches   []FilePatchJSON `json:"patches" validate:"required"`
	Blocklist []string        `json:"blocklist,omitempty" validate:"omitempty,dive,required"`
}

// Materialize builds the immutable PatchSet, filling ID and CreatedAt when
// the input omits them. newID defaults to a random UUID.
func (in PatchSetInput) Materialize(now time.Time, newID func() string) *PatchSet {
	if newID == nil {
		newID = uuid.NewString
	}
	ps := &PatchSet{
		ID:        in.ID,
		Source:    in.Source,
		Patches:   make([]Patch, 0, len(in.Patches)),
		Blocklist: append([]string(nil), in.Blocklist...),
	}
	if ps.ID == "" {
		ps.ID = newID()
	}
	if in.CreatedAt != nil {
		ps.CreatedAt = in.CreatedAt.UTC()
	} else {
		ps.CreatedAt = now.UTC()
	}
	for _, f := range in.Patches {
		ps.Patches = append(ps.Patches, f.Build())
	}
	return ps
}

var inputValidator = validator.New()

// Validate checks the document-level structure of the input. Individual
// patch fields are not validated here; a malformed patch is scoped to
// itself and reported when the batch is applied.
func (in PatchSetInput) Validate() error {
	if err := inputValidator.Struct(in); err != nil {
		return errclass.ErrPatchSetInvalid.WithMessage(formatValidationError(err))
	}
	return nil
}

// ParsePatchSet decodes and validates a patch-set document.
func ParsePatchSet(data []byte) (*PatchSetInput, error) {
	var in PatchSetInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, errclass.ErrPatchSetInvalid.WithMessagef("parse patch set: %v", err)
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return &in, nil
}

func formatValidationError(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	var messages []string
	for _, e := range verrs {
		switch e.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", e.Namespace()))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s characters", e.Namespace(), e.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s failed validation: %s", e.Namespace(), e.Tag()))
		}
	}
	return strings.Join(messages, "; ")
}
