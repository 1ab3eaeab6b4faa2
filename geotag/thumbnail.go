package geotag

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// DefaultPreviewSize is the longest edge of a preview, in pixels.
const DefaultPreviewSize = 480

// Preview renders a JPEG thumbnail whose longest edge is maxSize.
// Images already smaller than maxSize are re-encoded without resizing.
func Preview(img image.Image, maxSize int) ([]byte, error) {
	if img == nil {
		return nil, errors.New("preview: nil image")
	}
	if maxSize <= 0 {
		maxSize = DefaultPreviewSize
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil, errors.New("preview: empty image")
	}

	// Calculate thumbnail dimensions maintaining aspect ratio
	thumb := img
	if width > maxSize || height > maxSize {
		var thumbWidth, thumbHeight int
		if width > height {
			thumbWidth = maxSize
			thumbHeight = int(float64(height) * float64(maxSize) / float64(width))
		} else {
			thumbHeight = maxSize
			thumbWidth = int(float64(width) * float64(maxSize) / float64(height))
		}
		if thumbWidth < 1 {
			thumbWidth = 1
		}
		if thumbHeight < 1 {
			thumbHeight = 1
		}
		thumb = imaging.Resize(img, thumbWidth, thumbHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	return buf.Bytes(), nil
}
