package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestR2Storage(t *testing.T, publicURL string) *R2Storage {
	t.Helper()
	s, err := NewR2Storage(R2Config{
		AccountID:       "acct",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		BucketName:      "crops",
		PublicURL:       publicURL,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func TestR2Storage_PublicURLEscapesKey(t *testing.T) {
	s := newTestR2Storage(t, "https://files.example.com/")

	got, err := s.URL(context.Background(), "sessions/a/exports/b/my #1_cropped.png", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/sessions/a/exports/b/my%20%231_cropped.png", got)
}

func TestR2Storage_PresignedURL(t *testing.T) {
	s := newTestR2Storage(t, "")

	got, err := s.URL(context.Background(), "sessions/a/exports/b/c_cropped.png", time.Hour)
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "acct.r2.cloudflarestorage.com", u.Host)
	assert.Equal(t, "/crops/sessions/a/exports/b/c_cropped.png", u.Path)
	assert.Equal(t, "3600", u.Query().Get("X-Amz-Expires"))
}

func TestR2Storage_RejectsInvalidKeys(t *testing.T) {
	s := newTestR2Storage(t, "")
	ctx := context.Background()

	_, err := s.URL(ctx, "../secret", 0)
	assert.ErrorIs(t, err, ErrInvalidKey)

	err = s.Put(ctx, "", strings.NewReader("x"), PutOptions{})
	assert.ErrorIs(t, err, ErrInvalidKey)

	err = s.DeletePrefix(ctx, "sessions/abc")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestR2Storage_WrapS3Error(t *testing.T) {
	s := newTestR2Storage(t, "")

	tests := []struct {
		code string
		want error
	}{
		{"NoSuchKey", ErrNotFound},
		{"NotFound", ErrNotFound},
		{"AccessDenied", ErrAccessDenied},
		{"PreconditionFailed", ErrKeyExists},
	}
	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			err := s.wrapS3Error(&smithy.GenericAPIError{Code: tc.code})
			assert.ErrorIs(t, err, tc.want)
		})
	}

	other := s.wrapS3Error(errors.New("boom"))
	assert.Contains(t, other.Error(), "R2 operation failed")
}

func TestCappedReader(t *testing.T) {
	c := &cappedReader{r: io.LimitReader(bytes.NewReader(make([]byte, 10)), 6), max: 5}
	_, err := io.ReadAll(c)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.True(t, c.exceeded())

	ok := &cappedReader{r: io.LimitReader(bytes.NewReader(make([]byte, 5)), 6), max: 5}
	data, err := io.ReadAll(ok)
	require.NoError(t, err)
	assert.Len(t, data, 5)
	assert.False(t, ok.exceeded())
}
