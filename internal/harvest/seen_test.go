package harvest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeenSetMarkIfNew(t *testing.T) {
	t.Parallel()

	seen := newSeenSet()
	require.True(t, seen.MarkIfNew("https://example.org/post-1/"))
	require.False(t, seen.MarkIfNew("https://example.org/post-1/"))
	require.True(t, seen.MarkIfNew("https://example.org/post-2/"))
	require.Equal(t, 2, seen.Len())
	require.True(t, seen.Has("https://example.org/post-2/"))
}

func TestSeenSetRejectsEmptyKey(t *testing.T) {
	t.Parallel()

	seen := newSeenSet()
	require.False(t, seen.MarkIfNew(""))
	require.Equal(t, 0, seen.Len())
}
