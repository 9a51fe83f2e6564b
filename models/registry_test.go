package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCOCOClasses checks the bundled registry.
func TestCOCOClasses(t *testing.T) {
	r := COCOClasses()
	require.Equal(t, 80, r.Len())

	name, err := r.Name(0)
	require.NoError(t, err)
	assert.Equal(t, "person", name)

	name, err = r.Name(79)
	require.NoError(t, err)
	assert.Equal(t, "toothbrush", name)

	idx, ok := r.Index("dog")
	assert.True(t, ok)
	assert.Equal(t, 16, idx)
}

// TestClassRegistry_OutOfRange reports index and size on mismatch.
func TestClassRegistry_OutOfRange(t *testing.T) {
	r, err := NewClassRegistry([]string{"cat", "dog"})
	require.NoError(t, err)

	for _, idx := range []int{-1, 2, 80} {
		_, err := r.Name(idx)
		assert.True(t, errors.Is(err, ErrClassRegistryMismatch))
		assert.Contains(t, err.Error(), "for 2 classes")
	}
}

// TestClassRegistry_Immutable verifies callers cannot mutate the registry.
func TestClassRegistry_Immutable(t *testing.T) {
	names := []string{"a", "b"}
	r, err := NewClassRegistry(names)
	require.NoError(t, err)

	names[0] = "z"
	r.Names()[1] = "y"

	assert.Equal(t, []string{"a", "b"}, r.Names())
}

// TestParseClassList covers the accepted formats.
func TestParseClassList(t *testing.T) {
	testCases := []struct {
		name    string
		data    string
		want    []string
		wantErr bool
	}{
		{name: "plain text", data: "person\nbicycle\n\n# comment\ncar\n", want: []string{"person", "bicycle", "car"}},
		{name: "windows line endings", data: "a\r\nb\r\n", want: []string{"a", "b"}},
		{name: "json", data: ` ["hard hat", "vest"]`, want: []string{"hard hat", "vest"}},
		{name: "empty", data: "\n\n", wantErr: true},
		{name: "bad json", data: `["a",`, wantErr: true},
		{name: "blank json name", data: `["a",""]`, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := ParseClassList([]byte(tc.data))
			if tc.wantErr {
				assert.True(t, errors.Is(err, ErrRegistryLoad), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, r.Names())
		})
	}
}

// TestFileSource covers file, default, and missing sources.
func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "classes.txt")
	require.NoError(t, os.WriteFile(path, []byte("forklift\npallet\n"), 0o600))

	r, err := FileSource(path).LoadClasses()
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	r, err = FileSource("").LoadClasses()
	require.NoError(t, err)
	assert.Equal(t, 80, r.Len())

	_, err = FileSource(filepath.Join(dir, "missing.txt")).LoadClasses()
	assert.True(t, errors.Is(err, ErrRegistryLoad))

	_, err = StaticSource(nil).LoadClasses()
	assert.True(t, errors.Is(err, ErrRegistryLoad))
}
