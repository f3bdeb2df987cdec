package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// =============================================================================
// Output Formats
// =============================================================================

// Format is an output MIME type.
type Format string

const (
	FormatPNG  Format = "image/png"
	FormatJPEG Format = "image/jpeg"
	FormatWebP Format = "image/webp"
)

// Formats lists the supported output formats in display order.
var Formats = []Format{FormatPNG, FormatJPEG, FormatWebP}

// IsValid returns true if the format is supported for export.
func (f Format) IsValid() bool {
	switch f {
	case FormatPNG, FormatJPEG, FormatWebP:
		return true
	}
	return false
}

// IsLossy returns true if the format honors a quality setting.
func (f Format) IsLossy() bool {
	return f == FormatJPEG || f == FormatWebP
}

// Extension returns the filename extension (without dot): the MIME subtype.
func (f Format) Extension() string {
	s := string(f)
	if i := strings.Index(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Label returns a human-readable name, e.g. "JPEG".
func (f Format) Label() string {
	return cases.Upper(language.Und).String(f.Extension())
}

// ParseFormat accepts a MIME type or a bare subtype ("png", "jpg", "webp").
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "image/png", "png":
		return FormatPNG, nil
	case "image/jpeg", "image/jpg", "jpeg", "jpg":
		return FormatJPEG, nil
	case "image/webp", "webp":
		return FormatWebP, nil
	}
	return "", Invalid("format.parse", fmt.Sprintf("Unsupported output format %q. Use PNG, JPEG or WEBP.", s))
}

// =============================================================================
// Export Configuration
// =============================================================================

const (
	// DefaultQuality is the quality percentage used until the user changes it.
	DefaultQuality = 90

	MinQuality = 1
	MaxQuality = 100
)

// ExportConfig holds the user's output settings for a session.
type ExportConfig struct {
	Format  Format `json:"format"`
	Quality int    `json:"quality"`
}

// DefaultExportConfig returns PNG at the default quality.
func DefaultExportConfig() ExportConfig {
	return ExportConfig{Format: FormatPNG, Quality: DefaultQuality}
}

// Validate checks the format and quality range.
func (c ExportConfig) Validate() error {
	const op = "export_config.validate"
	if !c.Format.IsValid() {
		return NewValidationError(op, "format", "Format must be image/png, image/jpeg or image/webp")
	}
	if c.Quality < MinQuality || c.Quality > MaxQuality {
		return NewValidationError(op, "quality", fmt.Sprintf("Quality must be between %d and %d", MinQuality, MaxQuality))
	}
	return nil
}

// ExportConfigPatch changes some fields of an ExportConfig. Nil fields keep
// their current value.
type ExportConfigPatch struct {
	Format  *Format
	Quality *int
}

// Apply returns c with the patch's non-nil fields overlaid.
func (p ExportConfigPatch) Apply(c ExportConfig) ExportConfig {
	if p.Format != nil {
		c.Format = *p.Format
	}
	if p.Quality != nil {
		c.Quality = *p.Quality
	}
	return c
}

// QualityFraction returns quality as a 0-1 fraction. PNG has no quality.
func (c ExportConfig) QualityFraction() (float64, bool) {
	if !c.Format.IsLossy() {
		return 0, false
	}
	return float64(c.Quality) / 100, true
}

// =============================================================================
// Export Results
// =============================================================================

// ExportSuffix is appended to the base name of every exported file.
const ExportSuffix = "_cropped"

// ExportFilename builds "<base>_cropped.<ext>" for a record.
func ExportFilename(r ImageRecord, f Format) string {
	return r.BaseName() + ExportSuffix + "." + f.Extension()
}

// Artifact is one exported file offered for download.
type Artifact struct {
	ImageID     uuid.UUID `json:"image_id"`
	Filename    string    `json:"filename"`
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Cropped     bool      `json:"cropped"`
}

// ExportFailure records an image whose export was aborted.
type ExportFailure struct {
	ImageID  uuid.UUID `json:"image_id"`
	Filename string    `json:"filename"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
}

// ExportResult summarizes one export action over a session.
type ExportResult struct {
	ID          uuid.UUID       `json:"id"`
	SessionID   uuid.UUID       `json:"session_id"`
	Config      ExportConfig    `json:"config"`
	Artifacts   []Artifact      `json:"artifacts"`
	Failures    []ExportFailure `json:"failures"`
	Notice      Notice          `json:"notice"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Succeeded returns true if every image was exported.
func (r *ExportResult) Succeeded() bool {
	return len(r.Failures) == 0
}
