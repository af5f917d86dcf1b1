package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAtCreatesLayout(t *testing.T) {
	base := t.TempDir()

	p, err := NewAt(base)
	require.NoError(t, err)

	assert.Equal(t, filepath.Clean(base), p.Base)
	assert.Equal(t, filepath.Join(base, "data", "whytchat.db"), p.DB)
	assert.Equal(t, filepath.Join(base, ".encryption_key"), p.SecretKeyFile)

	for _, dir := range []string{
		filepath.Dir(p.DB),
		p.Vectors,
		p.Models,
		p.EmbeddingsCache,
		p.Files,
	} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestNewAtIsIdempotent(t *testing.T) {
	base := t.TempDir()

	_, err := NewAt(base)
	require.NoError(t, err)
	_, err = NewAt(base)
	require.NoError(t, err)
}
