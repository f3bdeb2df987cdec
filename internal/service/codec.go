// Package service contains business logic for cropbatch.
//
// This file implements decoding of dropped images, the crop surface, and
// encoding into the supported output formats.
package service

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/DukeRupert/cropbatch/internal/domain"
	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"

	// Registers the WebP decoder with image.Decode.
	_ "golang.org/x/image/webp"
)

// ErrEmptyCrop is returned when a crop rounds to zero pixels at source
// resolution.
var ErrEmptyCrop = errors.New("crop is empty at source resolution")

// =============================================================================
// Interface Definition
// =============================================================================

// ImageCodec decodes source images and encodes export renditions.
type ImageCodec interface {
	// Decode reads an image, applying EXIF orientation.
	Decode(r io.Reader) (image.Image, error)

	// Encode writes img in the configured format. Quality is ignored for PNG.
	Encode(w io.Writer, img image.Image, cfg domain.ExportConfig) error
}

// =============================================================================
// Implementation
// =============================================================================

// imagingCodec implements ImageCodec using the imaging library for decoding,
// PNG and JPEG, and libwebp for WebP.
type imagingCodec struct{}

// NewImagingCodec creates a new codec backed by the imaging library.
func NewImagingCodec() ImageCodec {
	return &imagingCodec{}
}

func (c *imagingCodec) Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

func (c *imagingCodec) Encode(w io.Writer, img image.Image, cfg domain.ExportConfig) error {
	switch cfg.Format {
	case domain.FormatPNG:
		return imaging.Encode(w, img, imaging.PNG)

	case domain.FormatJPEG:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(cfg.Quality))

	case domain.FormatWebP:
		opts, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(cfg.Quality))
		if err != nil {
			return fmt.Errorf("failed to build webp options: %w", err)
		}
		return webp.Encode(w, img, opts)
	}

	return fmt.Errorf("unsupported output format %q", cfg.Format)
}

// =============================================================================
// Crop Surface
// =============================================================================

// RenderCrop copies the source pixels under rect onto a transparent surface of
// exactly rect's size. rect is relative to the top-left corner of src. Parts of
// rect outside the source stay transparent.
func RenderCrop(src image.Image, rect image.Rectangle) (*image.NRGBA, error) {
	if rect.Dx() <= 0 || rect.Dy() <= 0 {
		return nil, ErrEmptyCrop
	}

	dst := imaging.New(rect.Dx(), rect.Dy(), color.Transparent)
	return imaging.Paste(dst, src, image.Pt(-rect.Min.X, -rect.Min.Y)), nil
}
