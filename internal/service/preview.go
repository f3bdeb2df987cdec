package service

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/DukeRupert/cropbatch/internal/domain"
	"github.com/disintegration/imaging"
)

// =============================================================================
// Interface Definition
// =============================================================================

// PreviewRenderer produces the downscaled renditions crops are drawn against.
type PreviewRenderer interface {
	// Render decodes data and returns a JPEG that fits within maxSize x maxSize,
	// along with the preview's width and height. Images already smaller than
	// maxSize are not enlarged.
	Render(data io.Reader, maxSize int) ([]byte, int, int, error)
}

// =============================================================================
// Implementation
// =============================================================================

type imagingPreviewRenderer struct {
	codec ImageCodec
}

// NewPreviewRenderer creates a PreviewRenderer that decodes with codec.
func NewPreviewRenderer(codec ImageCodec) PreviewRenderer {
	return &imagingPreviewRenderer{codec: codec}
}

// Render resizes with Lanczos and flattens transparency onto white, since
// JPEG has no alpha channel.
func (p *imagingPreviewRenderer) Render(data io.Reader, maxSize int) ([]byte, int, int, error) {
	if maxSize <= 0 {
		maxSize = domain.PreviewMaxSize
	}

	img, err := p.codec.Decode(data)
	if err != nil {
		return nil, 0, 0, err
	}

	preview := imaging.Fit(img, maxSize, maxSize, imaging.Lanczos)
	bounds := preview.Bounds()
	flat := imaging.Overlay(imaging.New(bounds.Dx(), bounds.Dy(), color.White), preview, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(domain.PreviewJPEGQuality)); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to encode preview: %w", err)
	}

	return buf.Bytes(), bounds.Dx(), bounds.Dy(), nil
}
