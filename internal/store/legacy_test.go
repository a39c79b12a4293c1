package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLegacyFile_MissingFile(t *testing.T) {
	sessions, err := LoadLegacyFile(filepath.Join(t.TempDir(), "uploads.json"))
	require.NoError(t, err)
	assert.Nil(t, sessions)
}

func TestLoadLegacyFile_ParsesSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uploads.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"sess-a": ["https://cdn.example/1", "https://cdn.example/2"],
		"sess-b": []
	}`), 0o600))

	sessions, err := LoadLegacyFile(path)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, []string{"https://cdn.example/1", "https://cdn.example/2"}, sessions["sess-a"])
	assert.Empty(t, sessions["sess-b"])
}

func TestLoadLegacyFile_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uploads.json")
	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0o600))

	_, err := LoadLegacyFile(path)
	require.Error(t, err)
}
