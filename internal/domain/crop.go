package domain

import (
	"image"
	"math"
)

// CropUnit identifies the coordinate unit of a CropRect.
type CropUnit string

const (
	// CropUnitPixel means coordinates are pixels of the capture space.
	CropUnitPixel CropUnit = "px"

	// CropUnitPercent means coordinates are percentages (0-100) of the capture space.
	CropUnitPercent CropUnit = "%"
)

// IsValid returns true if the unit is a recognized value.
func (u CropUnit) IsValid() bool {
	return u == CropUnitPixel || u == CropUnitPercent
}

// boundsEpsilon absorbs floating point noise from client-side arithmetic.
const boundsEpsilon = 1e-6

// CropRect is a crop region captured against a (possibly scaled) rendition of
// an image. DisplayWidth and DisplayHeight give the size of that rendition;
// zero means the crop was captured against the natural resolution.
type CropRect struct {
	X             float64  `json:"x"`
	Y             float64  `json:"y"`
	Width         float64  `json:"width"`
	Height        float64  `json:"height"`
	Unit          CropUnit `json:"unit"`
	DisplayWidth  float64  `json:"display_width,omitempty"`
	DisplayHeight float64  `json:"display_height,omitempty"`
}

// InitialCrop computes the largest rectangle of the given ratio that fits
// centered inside a width x height image. The wide branch is taken only when
// the image ratio is strictly greater than the target ratio.
func InitialCrop(width, height, ratio float64) CropRect {
	var cropWidth, cropHeight float64
	if width/height > ratio {
		cropHeight = height
		cropWidth = height * ratio
	} else {
		cropWidth = width
		cropHeight = width / ratio
	}

	return CropRect{
		X:      (width - cropWidth) / 2,
		Y:      (height - cropHeight) / 2,
		Width:  cropWidth,
		Height: cropHeight,
		Unit:   CropUnitPixel,
	}
}

// displaySize resolves the capture space, defaulting to the natural size.
func (c CropRect) displaySize(naturalWidth, naturalHeight int) (float64, float64) {
	dw, dh := c.DisplayWidth, c.DisplayHeight
	if dw <= 0 {
		dw = float64(naturalWidth)
	}
	if dh <= 0 {
		dh = float64(naturalHeight)
	}
	return dw, dh
}

// Validate checks that the crop has a positive size and lies inside its
// capture space.
func (c CropRect) Validate(naturalWidth, naturalHeight int) error {
	const op = "crop.validate"

	if !c.Unit.IsValid() {
		return NewValidationError(op, "unit", "Unit must be 'px' or '%'")
	}

	var ve *ValidationError
	add := func(field, msg string) {
		if ve == nil {
			ve = NewValidationError(op, field, msg)
			return
		}
		ve.Fields[field] = msg
	}

	if c.Width <= 0 || math.IsNaN(c.Width) || math.IsInf(c.Width, 0) {
		add("width", "Width must be greater than zero")
	}
	if c.Height <= 0 || math.IsNaN(c.Height) || math.IsInf(c.Height, 0) {
		add("height", "Height must be greater than zero")
	}
	if c.X < 0 || math.IsNaN(c.X) {
		add("x", "X must not be negative")
	}
	if c.Y < 0 || math.IsNaN(c.Y) {
		add("y", "Y must not be negative")
	}
	if c.DisplayWidth < 0 || c.DisplayHeight < 0 {
		add("display", "Display size must not be negative")
	}
	if ve != nil {
		return ve
	}

	maxW, maxH := 100.0, 100.0
	if c.Unit == CropUnitPixel {
		if naturalWidth <= 0 || naturalHeight <= 0 {
			return Invalid(op, "Image dimensions are unknown")
		}
		maxW, maxH = c.displaySize(naturalWidth, naturalHeight)
	}
	if c.X+c.Width > maxW+boundsEpsilon {
		add("width", "Crop extends past the right edge of the image")
	}
	if c.Y+c.Height > maxH+boundsEpsilon {
		add("height", "Crop extends past the bottom edge of the image")
	}
	if ve != nil {
		return ve
	}
	return nil
}

// SourceRect maps the crop to integer source pixels of an image with the
// given natural size. Percentages are first resolved against the capture
// space, then every coordinate is scaled by naturalWidth/displayWidth and
// rounded.
func (c CropRect) SourceRect(naturalWidth, naturalHeight int) image.Rectangle {
	dw, dh := c.displaySize(naturalWidth, naturalHeight)

	x, y, w, h := c.X, c.Y, c.Width, c.Height
	if c.Unit == CropUnitPercent {
		x = c.X * dw / 100
		y = c.Y * dh / 100
		w = c.Width * dw / 100
		h = c.Height * dh / 100
	}

	scale := float64(naturalWidth) / dw

	rx := int(math.Round(x * scale))
	ry := int(math.Round(y * scale))
	rw := int(math.Round(w * scale))
	rh := int(math.Round(h * scale))

	return image.Rect(rx, ry, rx+rw, ry+rh)
}
