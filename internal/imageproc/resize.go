package imageproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	jpegQuality = 85
	// shrink factor per attempt in FitWithin
	shrinkNum, shrinkDen = 3, 4
	maxFitAttempts       = 8
)

// ErrCannotFit is returned when repeated downscaling still exceeds the limit.
var ErrCannotFit = errors.New("image cannot be reduced under size limit")

// MediaType sniffs the MIME type of raw image bytes.
func MediaType(data []byte) string {
	return http.DetectContentType(data)
}

// Downscale decodes data and re-encodes it as JPEG with the longest edge
// capped at maxEdge. Images already small enough are only re-encoded.
func Downscale(data []byte, maxEdge int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return encodeScaled(src, maxEdge)
}

// FitWithin returns data unchanged if it is at most maxBytes, otherwise it
// re-encodes as JPEG, shrinking the longest edge until the result fits.
func FitWithin(data []byte, maxBytes int) ([]byte, error) {
	if maxBytes <= 0 || len(data) <= maxBytes {
		return data, nil
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	edge := longestEdge(src.Bounds())
	for i := 0; i < maxFitAttempts && edge > 0; i++ {
		out, err := encodeScaled(src, edge)
		if err != nil {
			return nil, err
		}
		if len(out) <= maxBytes {
			return out, nil
		}
		edge = edge * shrinkNum / shrinkDen
	}
	return nil, ErrCannotFit
}

func longestEdge(b image.Rectangle) int {
	if b.Dx() > b.Dy() {
		return b.Dx()
	}
	return b.Dy()
}

func encodeScaled(src image.Image, maxEdge int) ([]byte, error) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if edge := longestEdge(b); maxEdge > 0 && edge > maxEdge {
		w = w * maxEdge / edge
		h = h * maxEdge / edge
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
	}

	var img image.Image = src
	if w != b.Dx() || h != b.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
