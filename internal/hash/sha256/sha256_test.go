package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashIsStableForSpiderCode(t *testing.T) {
	t.Parallel()

	h := New()
	code := []byte("import scrapy\n")
	got, err := h.Hash(code)
	require.NoError(t, err)
	require.Len(t, got, 64)

	again, err := h.Hash(code)
	require.NoError(t, err)
	require.Equal(t, got, again)

	other, err := h.Hash([]byte("import scrapy\n# edited\n"))
	require.NoError(t, err)
	require.NotEqual(t, got, other)
}

func TestHashKnownDigest(t *testing.T) {
	t.Parallel()

	got, err := New().Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", got)
}
