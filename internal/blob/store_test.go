package blob

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// pngHeader is enough for content sniffing to report image/png.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestDetectImage(t *testing.T) {
	ct, err := DetectImage(pngHeader)
	require.NoError(t, err)
	require.Equal(t, "image/png", ct)

	_, err = DetectImage([]byte("just some text"))
	require.ErrorIs(t, err, ErrNotImage)
}

func TestSanitizeSegment(t *testing.T) {
	require.Equal(t, "tickets/abc", sanitizeSegment("../tickets/./abc/"))
	require.Equal(t, "a_b/c", sanitizeSegment("a b/c"))
	require.Equal(t, "", sanitizeSegment("../.."))
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	ref, err := s.Put(ctx, "tickets/t1/areas/a1", pngHeader, "image/png")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ref, "tickets/t1/areas/a1/"))
	require.True(t, strings.HasSuffix(ref, ".png"))

	obj, err := s.Get(ctx, ref)
	require.NoError(t, err)
	defer obj.Body.Close()
	data, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	require.Equal(t, pngHeader, data)
	require.Equal(t, "image/png", obj.ContentType)
	require.Equal(t, int64(len(pngHeader)), obj.Size)

	require.NoError(t, s.Delete(ctx, ref))
	_, err = s.Get(ctx, ref)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, s.Delete(ctx, ref))
}

func TestFSStore(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	exerciseStore(t, s)
	require.Zero(t, s.Len())
}

func TestFSStoreRejectsTraversal(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	_, err = s.Get(context.Background(), "../../etc/passwd")
	require.ErrorIs(t, err, ErrNotFound)
}
