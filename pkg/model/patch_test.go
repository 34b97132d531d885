package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/patchgate/patchgate/pkg/errclass"
	"github.com/patchgate/patchgate/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestBuild_Variants(t *testing.T) {
	tests := []struct {
		name string
		in   model.FilePatchJSON
		want model.Patch
	}{
		{"create", model.FilePatchJSON{Op: "create", Path: "a.go", Content: strPtr("x")}, model.Create{Path: "a.go", Content: "x"}},
		{"update empty content", model.FilePatchJSON{Op: "update", Path: "a.go", Content: strPtr("")}, model.Update{Path: "a.go", Content: ""}},
		{"delete", model.FilePatchJSON{Op: "delete", Path: "a.go", Reason: "unused"}, model.Delete{Path: "a.go", Reason: "unused"}},
		{"rename", model.FilePatchJSON{Op: "rename", Path: "a.go", NewPath: "b.go"}, model.Rename{Path: "a.go", NewPath: "b.go"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Build())
		})
	}
}

func TestBuild_InvalidVariants(t *testing.T) {
	tests := []struct {
		name string
		in   model.FilePatchJSON
		want error
	}{
		{"create without content", model.FilePatchJSON{Op: "create", Path: "a.go"}, errclass.ErrMissingContent},
		{"update without content", model.FilePatchJSON{Op: "update", Path: "a.go"}, errclass.ErrMissingContent},
		{"rename without newPath", model.FilePatchJSON{Op: "rename", Path: "a.go"}, errclass.ErrMissingNewPath},
		{"unknown op", model.FilePatchJSON{Op: "chmod", Path: "a.go"}, errclass.ErrUnknownOp},
		{"empty op", model.FilePatchJSON{Path: "a.go"}, errclass.ErrUnknownOp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.in.Build()
			inv, ok := p.(model.Invalid)
			require.True(t, ok, "expected Invalid, got %T", p)
			assert.True(t, errors.Is(inv.Err, tt.want))
			assert.Equal(t, "a.go", inv.Target())
		})
	}
}

func TestInvalid_DestinationOnlyForRename(t *testing.T) {
	p := model.Invalid{RawOp: "chmod", Path: "a", NewPath: "b"}
	assert.Empty(t, p.Destination())
	p.RawOp = "rename"
	assert.Equal(t, "b", p.Destination())
}

func TestToJSON_RoundTripsContent(t *testing.T) {
	j := model.ToJSON(model.Update{Path: "a", Content: "body", Reason: "fix"})
	require.NotNil(t, j.Content)
	assert.Equal(t, "body", *j.Content)
	assert.Equal(t, "fix", j.Reason)

	d := model.ToJSON(model.Delete{Path: "a"})
	assert.Nil(t, d.Content)
}

func TestMaterialize_FillsIDAndCreatedAt(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	in := model.PatchSetInput{
		Source:  "agent",
		Patches: []model.FilePatchJSON{{Op: "delete", Path: "x"}},
	}
	ps := in.Materialize(now, func() string { return "fixed-id" })
	assert.Equal(t, "fixed-id", ps.ID)
	assert.Equal(t, now, ps.CreatedAt)
	assert.Equal(t, "agent", ps.Source)
	require.Len(t, ps.Patches, 1)
	assert.Equal(t, model.Delete{Path: "x"}, ps.Patches[0])
}

func TestMaterialize_KeepsSuppliedValues(t *testing.T) {
	created := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	in := model.PatchSetInput{ID: "given", CreatedAt: &created, Patches: []model.FilePatchJSON{}}
	ps := in.Materialize(time.Now(), nil)
	assert.Equal(t, "given", ps.ID)
	assert.Equal(t, created, ps.CreatedAt)
}

func TestMaterialize_DefaultIDIsUUID(t *testing.T) {
	ps := model.PatchSetInput{Patches: []model.FilePatchJSON{}}.Materialize(time.Now(), nil)
	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`, ps.ID)
}

func TestParsePatchSet(t *testing.T) {
	in, err := model.ParsePatchSet([]byte(`{"source":"gpt","patches":[{"op":"update","path":"src/index.ts","content":"x"}],"blocklist":["*.sql"]}`))
	require.NoError(t, err)
	assert.Equal(t, "gpt", in.Source)
	assert.Equal(t, []string{"*.sql"}, in.Blocklist)
	require.Len(t, in.Patches, 1)
	assert.Equal(t, "x", *in.Patches[0].Content)
}

func TestParsePatchSet_Rejects(t *testing.T) {
	tests := map[string]string{
		"bad json":        `{"patches":`,
		"missing patches": `{"source":"gpt"}`,
		"empty pattern":   `{"patches":[],"blocklist":[""]}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := model.ParsePatchSet([]byte(doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errclass.ErrPatchSetInvalid))
		})
	}
}

func TestApplyResult_Finish(t *testing.T) {
	r := model.NewApplyResult()
	r.Finish()
	assert.True(t, r.Success)

	r.AddError("a", errors.New("boom"))
	r.Finish()
	assert.False(t, r.Success)
	assert.Equal(t, []model.PathError{{Path: "a", Message: "boom"}}, r.Errors)
}

func TestAuditEntry_Status(t *testing.T) {
	e := &model.AuditEntry{}
	assert.Equal(t, "ok", e.Status())
	e.Blocked = []model.BlockedPath{{Path: ".env"}}
	assert.Equal(t, "blocked", e.Status())
	e.Errors = []model.PathError{{Path: "x"}}
	assert.Equal(t, "error", e.Status())
}
