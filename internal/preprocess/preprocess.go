// Package preprocess converts raw encoded image bytes into the fixed-shape
// float32 tensor the scoring model expects.
package preprocess

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
)

// DecodeError reports image bytes that could not be parsed as a supported
// format. It is the caller's fault, as opposed to a scoring failure.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode image: %v", e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

// Tensor is a batched NHWC float32 image tensor of shape (1, H, W, 3).
type Tensor struct {
	Data  []float32
	Shape [4]int64
}

// Normalizer turns encoded JPEG/PNG bytes into a Tensor. Images are
// stretch-resized to exactly Width x Height with Lanczos3 resampling, which
// keeps the output reproducible for identical inputs; aspect ratio is not
// preserved and no letterboxing is applied. Alpha channels are dropped.
//
// Scale multiplies the raw 0-255 color samples; 1.0 feeds the model raw
// sample values, 1.0/255 rescales to the unit range.
type Normalizer struct {
	Height int
	Width  int
	Scale  float32
}

// New returns a Normalizer for a square size x size target with raw 0-255
// output values.
func New(size int) *Normalizer {
	return &Normalizer{Height: size, Width: size, Scale: 1.0}
}

// Normalize decodes, resizes, and converts raw image bytes. A *DecodeError
// is returned when the bytes are not a parseable JPEG or PNG.
func (n *Normalizer) Normalize(raw []byte) (*Tensor, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	resized := resize.Resize(uint(n.Width), uint(n.Height), img, resize.Lanczos3)

	data := make([]float32, n.Height*n.Width*3)
	bounds := resized.Bounds()
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			// RGBA returns 16-bit alpha-premultiplied samples; shift back
			// to 8-bit before scaling.
			data[i] = float32(r>>8) * n.Scale
			data[i+1] = float32(g>>8) * n.Scale
			data[i+2] = float32(b>>8) * n.Scale
			i += 3
		}
	}

	return &Tensor{
		Data:  data,
		Shape: [4]int64{1, int64(n.Height), int64(n.Width), 3},
	}, nil
}
