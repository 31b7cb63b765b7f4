package workspace

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSafe(t *testing.T) {
	cases := []struct {
		name string
		path string
		safe bool
	}{
		{"simple file", "main.kt", true},
		{"nested dir", "app/src/main/MainActivity.kt", true},
		{"parent escape", "../x", false},
		{"absolute", "/abs", false},
		{"doubled separator", "a//b", false},
		{"hidden component", "app/.hidden", false},
		{"empty", "", false},
		{"null byte", "a\x00b", false},
		{"cr", "a\rb", false},
		{"lf", "a\nb", false},
		{"too long", string(make([]byte, 513)), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.safe, IsSafe(tc.path))
		})
	}
}

func TestSanitizeConfinement(t *testing.T) {
	base := t.TempDir()

	resolved, err := Sanitize(base, "app/Main.kt")
	require.NoError(t, err)
	assert.Contains(t, resolved, base)

	_, err = Sanitize(base, "../escape.txt")
	require.Error(t, err)

	_, err = Sanitize(base, "/abs/escape.txt")
	require.Error(t, err)
}

func TestSanitizeIdempotentModuloCanonicalization(t *testing.T) {
	base := t.TempDir()

	first, err := Sanitize(base, "a/b.txt")
	require.NoError(t, err)

	canonBase, err := canonicalize(base)
	require.NoError(t, err)
	rel, err := filepath.Rel(canonBase, first)
	require.NoError(t, err)
	second, err := Sanitize(base, filepath.ToSlash(rel))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBootstrapCreatesConfinedDirectory(t *testing.T) {
	root := t.TempDir()

	dir, err := Bootstrap(root, "task-123")
	require.NoError(t, err)
	assert.DirExists(t, dir)

	_, err = Bootstrap(root, "../escape")
	require.Error(t, err)
}
