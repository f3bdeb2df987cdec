package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"image/png", FormatPNG, false},
		{"PNG", FormatPNG, false},
		{"jpg", FormatJPEG, false},
		{"image/jpeg", FormatJPEG, false},
		{" webp ", FormatWebP, false},
		{"image/gif", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, EINVALID, ErrorCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormat_ExtensionAndLabel(t *testing.T) {
	assert.Equal(t, "png", FormatPNG.Extension())
	assert.Equal(t, "jpeg", FormatJPEG.Extension())
	assert.Equal(t, "webp", FormatWebP.Extension())
	assert.Equal(t, "WEBP", FormatWebP.Label())
	assert.False(t, FormatPNG.IsLossy())
	assert.True(t, FormatJPEG.IsLossy())
}

func TestExportConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultExportConfig().Validate())
	assert.NoError(t, ExportConfig{Format: FormatWebP, Quality: 1}.Validate())
	assert.NoError(t, ExportConfig{Format: FormatJPEG, Quality: 100}.Validate())
	assert.Error(t, ExportConfig{Format: FormatJPEG, Quality: 0}.Validate())
	assert.Error(t, ExportConfig{Format: FormatJPEG, Quality: 101}.Validate())
	assert.Error(t, ExportConfig{Format: "image/bmp", Quality: 90}.Validate())
}

func TestExportConfig_QualityFraction(t *testing.T) {
	q, ok := ExportConfig{Format: FormatJPEG, Quality: 75}.QualityFraction()
	assert.True(t, ok)
	assert.Equal(t, 0.75, q)

	_, ok = ExportConfig{Format: FormatPNG, Quality: 75}.QualityFraction()
	assert.False(t, ok)
}

func TestExportFilename(t *testing.T) {
	tests := []struct {
		filename string
		format   Format
		want     string
	}{
		{"photo.jpg", FormatPNG, "photo_cropped.png"},
		{"holiday.final.jpeg", FormatWebP, "holiday_cropped.webp"},
		{"noext", FormatJPEG, "noext_cropped.jpeg"},
		{".hidden", FormatPNG, "image_cropped.png"},
		{"dir/sub/pic.png", FormatPNG, "pic_cropped.png"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			r := ImageRecord{OriginalFilename: tt.filename}
			assert.Equal(t, tt.want, ExportFilename(r, tt.format))
		})
	}
}

func TestNotices(t *testing.T) {
	assert.Equal(t, Notice{Level: NoticeSuccess, Message: "2 images uploaded"}, IntakeNotice(2))
	assert.Equal(t, NoticeError, IntakeNotice(0).Level)
	assert.Equal(t, MsgExportSucceeded, ExportNotice(0).Message)
	assert.Equal(t, MsgExportFailed, ExportNotice(3).Message)
}
