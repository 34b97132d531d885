package pathutil_test

import (
	"path/filepath"
	"testing"

	"github.com/patchgate/patchgate/pkg/errclass"
	"github.com/patchgate/patchgate/pkg/pathutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"":                 "",
		"src/index.ts":     "src/index.ts",
		"./src//index.ts":  "src/index.ts",
		"src/../README.md": "README.md",
		`src\lib\a.go`:     "src/lib/a.go",
		"a/b/../../..":     "..",
		"/etc/../usr":      "/usr",
	}
	for in, want := range tests {
		assert.Equal(t, want, pathutil.Normalize(in), "input %q", in)
	}
}

func TestNormalize_NFC(t *testing.T) {
	decomposed := "cafe\u0301.txt"
	assert.Equal(t, "caf\u00e9.txt", pathutil.Normalize(decomposed))
}

func TestHasParentSegment(t *testing.T) {
	assert.True(t, pathutil.HasParentSegment("../../etc/passwd"))
	assert.True(t, pathutil.HasParentSegment("src/../../x"))
	assert.True(t, pathutil.HasParentSegment(`..\windows\system32`))
	assert.False(t, pathutil.HasParentSegment("src/../x"))
	assert.False(t, pathutil.HasParentSegment("notes..txt"))
	assert.False(t, pathutil.HasParentSegment("..hidden"))
}

func TestIsAbsolute(t *testing.T) {
	for _, p := range []string{"/usr/local/bin/node", `\\server\share\x`, `C:\Windows`, "c:/x", "D:"} {
		assert.True(t, pathutil.IsAbsolute(p), "should be absolute: %s", p)
	}
	for _, p := range []string{"", "src/a.go", "./a", "C"} {
		assert.False(t, pathutil.IsAbsolute(p), "should be relative: %s", p)
	}
}

func TestCheckRelative(t *testing.T) {
	require.NoError(t, pathutil.CheckRelative("src/index.ts"))

	err := pathutil.CheckRelative("../../etc/passwd")
	require.ErrorIs(t, err, errclass.ErrPathTraversal)
	assert.Contains(t, err.Error(), "path traversal detected")

	err = pathutil.CheckRelative("/usr/local/bin/node")
	require.ErrorIs(t, err, errclass.ErrAbsolutePath)
	assert.Contains(t, err.Error(), "absolute path not allowed")

	require.ErrorIs(t, pathutil.CheckRelative(""), errclass.ErrEmptyPath)
}

func TestCheckRelative_TraversalBeforeAbsolute(t *testing.T) {
	// "/.." cleans to "/" and is reported as absolute; "/a/../../b" cleans to
	// "/b" which is also absolute. A relative climb is always traversal.
	require.ErrorIs(t, pathutil.CheckRelative("/a/../../b"), errclass.ErrAbsolutePath)
	require.ErrorIs(t, pathutil.CheckRelative("a/../../b"), errclass.ErrPathTraversal)
}

func TestBase(t *testing.T) {
	assert.Equal(t, "server.pem", pathutil.Base("certs/server.pem"))
	assert.Equal(t, ".env", pathutil.Base("./.env"))
}

func TestJoin(t *testing.T) {
	root := t.TempDir()
	assert.Equal(t, filepath.Join(root, "src", "a.go"), pathutil.Join(root, "src/a.go"))
}
