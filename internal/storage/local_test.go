package storage

import (
	"context"
	"io"
	"log/slog"
	neturl "net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocalStorage(t *testing.T) *LocalStorage {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewLocalStorage(LocalConfig{
		BasePath: t.TempDir(),
		BaseURL:  "http://localhost:8080/files/",
	}, logger)
	require.NoError(t, err)
	return s
}

// =============================================================================
// Put / Get Tests
// =============================================================================

func TestLocalStorage_PutGet(t *testing.T) {
	ctx := context.Background()
	s := newTestLocalStorage(t)

	err := s.Put(ctx, "sessions/a/originals/b.png", strings.NewReader("pixels"), PutOptions{ContentType: "image/png"})
	require.NoError(t, err)

	rc, info, err := s.Get(ctx, "sessions/a/originals/b.png")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))
	assert.Equal(t, int64(6), info.Size)
	assert.Equal(t, "image/png", info.ContentType)
}

func TestLocalStorage_PutWithoutOverwrite(t *testing.T) {
	ctx := context.Background()
	s := newTestLocalStorage(t)

	require.NoError(t, s.Put(ctx, "a.jpg", strings.NewReader("one"), PutOptions{}))

	err := s.Put(ctx, "a.jpg", strings.NewReader("two"), PutOptions{})
	assert.True(t, IsKeyExists(err))

	require.NoError(t, s.Put(ctx, "a.jpg", strings.NewReader("two"), PutOptions{Overwrite: true}))
	rc, _, err := s.Get(ctx, "a.jpg")
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "two", string(data))
}

func TestLocalStorage_PutTooLargeLeavesNothing(t *testing.T) {
	ctx := context.Background()
	s := newTestLocalStorage(t)

	err := s.Put(ctx, "big.png", strings.NewReader("0123456789"), PutOptions{MaxSize: 4})
	assert.True(t, IsTooLarge(err))

	exists, err := s.Exists(ctx, "big.png")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalStorage_GetMissing(t *testing.T) {
	_, _, err := newTestLocalStorage(t).Get(context.Background(), "nope.png")
	assert.True(t, IsNotFound(err))
}

func TestLocalStorage_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTestLocalStorage(t).Put(ctx, "a.png", strings.NewReader("x"), PutOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// Delete Tests
// =============================================================================

func TestLocalStorage_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestLocalStorage(t)

	require.NoError(t, s.Put(ctx, "a.png", strings.NewReader("x"), PutOptions{}))
	require.NoError(t, s.Delete(ctx, "a.png"))
	require.NoError(t, s.Delete(ctx, "a.png"))

	exists, err := s.Exists(ctx, "a.png")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalStorage_DeletePrefix(t *testing.T) {
	ctx := context.Background()
	s := newTestLocalStorage(t)
	sessionID, other := uuid.New(), uuid.New()

	keep := OriginalKey(other, uuid.New(), "keep.png")
	require.NoError(t, s.Put(ctx, OriginalKey(sessionID, uuid.New(), "a.png"), strings.NewReader("a"), PutOptions{}))
	require.NoError(t, s.Put(ctx, ExportKey(sessionID, uuid.New(), "a_cropped.png"), strings.NewReader("b"), PutOptions{}))
	require.NoError(t, s.Put(ctx, keep, strings.NewReader("c"), PutOptions{}))

	require.NoError(t, s.DeletePrefix(ctx, SessionPrefix(sessionID)))

	_, err := os.Stat(filepath.Join(s.BasePath(), "sessions", sessionID.String()))
	assert.True(t, os.IsNotExist(err))

	exists, err := s.Exists(ctx, keep)
	require.NoError(t, err)
	assert.True(t, exists)

	// Deleting again is a no-op.
	assert.NoError(t, s.DeletePrefix(ctx, SessionPrefix(sessionID)))
}

func TestLocalStorage_DeletePrefixRejectsRoot(t *testing.T) {
	s := newTestLocalStorage(t)
	for _, prefix := range []string{"", ".", "/", "../"} {
		err := s.DeletePrefix(context.Background(), prefix)
		assert.True(t, IsInvalidKey(err), "prefix %q", prefix)
	}
}

// =============================================================================
// Path Resolution Tests
// =============================================================================

func TestLocalStorage_ResolvePathRejectsTraversal(t *testing.T) {
	s := newTestLocalStorage(t)

	tests := []struct {
		key   string
		valid bool
	}{
		{"a.png", true},
		{"sessions/x/originals/y.png", true},
		{"/sessions/x.png", true},
		{"", false},
		{"../escape.png", false},
		{"sessions/../../escape.png", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			p, err := s.resolvePath(tt.key)
			if tt.valid {
				require.NoError(t, err)
				assert.True(t, strings.HasPrefix(p, s.BasePath()))
			} else {
				assert.ErrorIs(t, err, ErrInvalidKey)
			}
		})
	}
}

func TestLocalStorage_URL(t *testing.T) {
	s := newTestLocalStorage(t)

	url, err := s.URL(context.Background(), "sessions/a/exports/b/c_cropped.png", 0)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/files/sessions/a/exports/b/c_cropped.png", url)
}

func TestLocalStorage_URLEscapesSegments(t *testing.T) {
	s := newTestLocalStorage(t)

	tests := []struct {
		name string
		key  string
		want string
	}{
		{"space", "sessions/a/exports/b/my photo_cropped.png", "http://localhost:8080/files/sessions/a/exports/b/my%20photo_cropped.png"},
		{"hash", "sessions/a/exports/b/#1_cropped.png", "http://localhost:8080/files/sessions/a/exports/b/%231_cropped.png"},
		{"query", "sessions/a/exports/b/what?_cropped.png", "http://localhost:8080/files/sessions/a/exports/b/what%3F_cropped.png"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.URL(context.Background(), tc.key, 0)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			parsed, err := neturl.Parse(got)
			require.NoError(t, err)
			assert.Equal(t, "/files/"+tc.key, parsed.Path)
			assert.Empty(t, parsed.RawQuery)
			assert.Empty(t, parsed.Fragment)
		})
	}
}

func TestCheckKey(t *testing.T) {
	for _, key := range []string{"sessions/a/b.png", "a..b.png", "sessions/a/exports/b/x..y_cropped.png"} {
		assert.NoError(t, checkKey(key), key)
	}
	for _, key := range []string{"", "/abs", "../up", "sessions/../x", "sessions/a/.."} {
		assert.ErrorIs(t, checkKey(key), ErrInvalidKey, key)
	}
}
