package storage

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name     string
		provided string
		filename string
		data     []byte
		want     string
	}{
		{"provided type wins", "image/jpeg", "photo.png", nil, "image/jpeg"},
		{"octet-stream falls through to extension", "application/octet-stream", "photo.png", nil, "image/png"},
		{"extension", "", "photo.JPG", nil, "image/jpeg"},
		{"webp extension", "", "photo.webp", nil, "image/webp"},
		{"sniffed", "", "noext", pngMagic, "image/png"},
		{"text sniffed", "", "notes", []byte("hello world"), "text/plain; charset=utf-8"},
		{"nothing to go on", "", "noext", nil, "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			if tt.data != nil {
				got = DetectContentType(tt.provided, tt.filename, bytes.NewReader(tt.data))
			} else {
				got = DetectContentType(tt.provided, tt.filename, nil)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsImage(t *testing.T) {
	assert.True(t, IsImage("image/png"))
	assert.True(t, IsImage("IMAGE/JPEG; charset=binary"))
	assert.True(t, IsImage("image/svg+xml"))
	assert.False(t, IsImage("text/plain"))
	assert.False(t, IsImage("application/pdf"))
	assert.False(t, IsImage(""))
}

func TestExtensionForContentType(t *testing.T) {
	assert.Equal(t, ".jpg", ExtensionForContentType("image/jpeg"))
	assert.Equal(t, ".png", ExtensionForContentType("image/png"))
	assert.Equal(t, ".webp", ExtensionForContentType("image/webp"))
	assert.Equal(t, ".bin", ExtensionForContentType("application/x-cropbatch-unknown"))
}

func TestKeys(t *testing.T) {
	sid := uuid.MustParse("123e4567-e89b-12d3-a456-426614174000")
	iid := uuid.MustParse("987fcdeb-51a2-43f1-b9c4-123456789abc")

	assert.Equal(t, "sessions/123e4567-e89b-12d3-a456-426614174000/", SessionPrefix(sid))
	assert.Equal(t,
		"sessions/123e4567-e89b-12d3-a456-426614174000/originals/987fcdeb-51a2-43f1-b9c4-123456789abc.jpg",
		OriginalKey(sid, iid, `C:\photos\Holiday.JPG`))
	assert.Equal(t,
		"sessions/123e4567-e89b-12d3-a456-426614174000/originals/987fcdeb-51a2-43f1-b9c4-123456789abc",
		OriginalKey(sid, iid, "noext"))
	assert.Equal(t,
		"sessions/123e4567-e89b-12d3-a456-426614174000/exports/987fcdeb-51a2-43f1-b9c4-123456789abc/a_cropped.png",
		ExportKey(sid, iid, "a_cropped.png"))
}
