package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whytchat/core/pkg/coreerr"
)

func TestExtractPlaintext(t *testing.T) {
	r := NewRegistry()
	text, err := r.Extract(context.Background(), []byte("hello world"), "txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestExtractCSV(t *testing.T) {
	r := NewRegistry()
	text, err := r.Extract(context.Background(), []byte("a,b\n1,2\n"), "csv")
	require.NoError(t, err)
	assert.Contains(t, text, "a, b")
	assert.Contains(t, text, "1, 2")
}

func TestExtractJSON(t *testing.T) {
	r := NewRegistry()
	text, err := r.Extract(context.Background(), []byte(`{"name":"x"}`), "json")
	require.NoError(t, err)
	assert.Contains(t, text, "name: x")
}

func TestExtractUnsupportedFormat(t *testing.T) {
	r := NewRegistry()
	_, err := r.Extract(context.Background(), []byte{0xff}, "pdf")
	require.Error(t, err)
	assert.True(t, coreerr.Is(err, coreerr.UnsupportedFormat))
}

func TestRegisterExtractorOverride(t *testing.T) {
	r := NewRegistry()
	r.RegisterExtractor("pdf", ExtractorFunc(func(ctx context.Context, data []byte, ext string) (string, error) {
		return "pdf contents", nil
	}))

	text, err := r.Extract(context.Background(), []byte{0xff}, "pdf")
	require.NoError(t, err)
	assert.Equal(t, "pdf contents", text)
}
