package device

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateGeneratesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "device-id")

	first, err := LoadOrCreate(path)
	require.NoError(t, err)
	_, err = uuid.Parse(first)
	require.NoError(t, err)

	second, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadOrCreateTrimsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device-id")
	require.NoError(t, os.WriteFile(path, []byte("  tablet-7 \n"), 0o600))

	id, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.Equal(t, "tablet-7", id)
}

func TestLoadOrCreateReplacesBlank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device-id")
	require.NoError(t, os.WriteFile(path, []byte("   \n"), 0o600))

	id, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, id+"\n", string(raw))
}

func TestLoadOrCreateRequiresPath(t *testing.T) {
	_, err := LoadOrCreate(" ")
	assert.ErrorIs(t, err, ErrPathRequired)
}
