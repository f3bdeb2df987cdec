// Package domain contains core business types and interfaces.
//
// This file defines the ImageRecord domain type: one dropped image, its
// decoded dimensions, and the crop state the user has built up for it.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Image Constants
// =============================================================================

const (
	// MaxImageSize is the default maximum size for a single dropped image (20MB).
	MaxImageSize = 20 * 1024 * 1024

	// PreviewMaxSize is the default bounding box for preview renditions.
	PreviewMaxSize = 800

	// PreviewJPEGQuality is the JPEG quality used for previews (0-100).
	PreviewJPEGQuality = 85

	// DefaultImageBaseName is used when a filename has no usable base name.
	DefaultImageBaseName = "image"
)

// =============================================================================
// Image Domain Type
// =============================================================================

// ImageRecord represents one image accepted into a session.
//
// Records are treated as values: every mutation produces a new record that
// replaces the old one in its session.
type ImageRecord struct {
	ID               uuid.UUID `json:"id"`                // Generated on intake
	SessionID        uuid.UUID `json:"session_id"`        // Owning session
	SourceKey        string    `json:"-"`                 // Storage key of the original bytes
	OriginalFilename string    `json:"original_filename"` // Filename as dropped
	ContentType      string    `json:"content_type"`      // Declared or sniffed MIME type
	SizeBytes        int64     `json:"size_bytes"`        // Size of the original bytes
	NaturalWidth     int       `json:"natural_width"`     // Decoded width in pixels (0 if undecodable)
	NaturalHeight    int       `json:"natural_height"`    // Decoded height in pixels (0 if undecodable)
	Crop             *CropRect `json:"crop"`              // Optional crop region
	AspectRatio      string    `json:"aspect_ratio"`      // Aspect ratio tag; empty means DefaultAspectRatioID
	CreatedAt        time.Time `json:"created_at"`
}

// IsDecoded returns true if the image was decoded on intake.
func (r ImageRecord) IsDecoded() bool {
	return r.NaturalWidth > 0 && r.NaturalHeight > 0
}

// HasCrop returns true if a crop region is set.
func (r ImageRecord) HasCrop() bool {
	return r.Crop != nil
}

// AspectRatioID returns the record's ratio tag, falling back to the default.
func (r ImageRecord) AspectRatioID() string {
	if r.AspectRatio == "" {
		return DefaultAspectRatioID
	}
	return r.AspectRatio
}

// BaseName returns the original filename up to its first dot.
// "holiday.final.jpg" yields "holiday".
func (r ImageRecord) BaseName() string {
	name := r.OriginalFilename
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultImageBaseName
	}
	return name
}

// Clone returns a deep copy of the record.
func (r ImageRecord) Clone() ImageRecord {
	if r.Crop != nil {
		c := *r.Crop
		r.Crop = &c
	}
	return r
}
