// Package imaging re-encodes user-supplied images into assets that meet the
// site's size and format guidelines. It is pure and stateless: the same
// input bytes and options always yield the same output dimensions, and no
// intermediate surface outlives the call that produced it.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"

	_ "image/gif"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Format is the target encoding for an optimized image.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

// Options bound the output of Optimize. Quality is on a 0–1 scale; it only
// affects lossy formats.
type Options struct {
	MaxWidth  int
	MaxHeight int
	Quality   float64
	Format    Format
}

// Preset names a fixed Options bundle.
type Preset string

const (
	PresetAggressive Preset = "aggressive"
	PresetBalanced   Preset = "balanced"
	PresetQuality    Preset = "quality"
	PresetCustom     Preset = "custom"
)

// PresetOptions returns the Options for a named preset. Custom (and unknown
// names) fall back to the balanced bundle; callers supplying their own
// bounds use Optimize directly.
func PresetOptions(p Preset) Options {
	switch p {
	case PresetAggressive:
		return Options{MaxWidth: 1200, MaxHeight: 800, Quality: 0.6, Format: FormatJPEG}
	case PresetQuality:
		return Options{MaxWidth: 2400, MaxHeight: 1600, Quality: 0.9, Format: FormatJPEG}
	case PresetBalanced, PresetCustom:
		return Options{MaxWidth: 1600, MaxHeight: 1200, Quality: 0.8, Format: FormatJPEG}
	}
	return Options{MaxWidth: 1600, MaxHeight: 1200, Quality: 0.8, Format: FormatJPEG}
}

// Optimized is the result of one pipeline run.
type Optimized struct {
	Data          []byte `json:"-"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	OriginalSize  int    `json:"originalSizeBytes"`
	OptimizedSize int    `json:"optimizedSizeBytes"`
	Ratio         int    `json:"compressionRatioPercent"`
}

// DecodeError reports an input that could not be decoded as an image.
// Retrying with the same input fails identically.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode image: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports a target format or quality that could not be
// produced.
type EncodeError struct {
	Format Format
	Err    error
}

func (e *EncodeError) Error() string { return fmt.Sprintf("encode %s: %v", e.Format, e.Err) }
func (e *EncodeError) Unwrap() error { return e.Err }

var errWebPEncode = errors.New("webp output is not supported")

// Optimize decodes src, downscales it to fit the configured bounds without
// changing aspect ratio, and re-encodes it. Images already within bounds
// are never upscaled.
func Optimize(src []byte, opts Options) (Optimized, error) {
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return Optimized{}, &DecodeError{Err: err}
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	// A single uniform scale factor keeps the aspect ratio and guarantees
	// neither bound is exceeded. Non-positive bounds are treated as
	// unbounded.
	scaleW, scaleH := 1.0, 1.0
	if opts.MaxWidth > 0 && w > 0 {
		scaleW = float64(opts.MaxWidth) / float64(w)
	}
	if opts.MaxHeight > 0 && h > 0 {
		scaleH = float64(opts.MaxHeight) / float64(h)
	}
	if scale := math.Min(scaleW, scaleH); scale < 1 {
		newW := int(math.Round(float64(w) * scale))
		newH := int(math.Round(float64(h) * scale))
		dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
		w, h = newW, newH
	}

	var buf bytes.Buffer
	switch opts.Format {
	case FormatJPEG:
		quality := int(math.Round(opts.Quality * 100))
		if quality < 1 {
			quality = 1
		} else if quality > 100 {
			quality = 100
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return Optimized{}, &EncodeError{Format: FormatJPEG, Err: err}
		}
	case FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return Optimized{}, &EncodeError{Format: FormatPNG, Err: err}
		}
	case FormatWebP:
		return Optimized{}, &EncodeError{Format: FormatWebP, Err: errWebPEncode}
	default:
		return Optimized{}, &EncodeError{Format: opts.Format, Err: fmt.Errorf("unknown format %q", opts.Format)}
	}

	return Optimized{
		Data:          buf.Bytes(),
		Width:         w,
		Height:        h,
		OriginalSize:  len(src),
		OptimizedSize: buf.Len(),
		Ratio:         CompressionRatio(len(src), buf.Len()),
	}, nil
}

// CompressionRatio returns round((1 - optimized/original) * 100), or 0 when
// original is 0.
func CompressionRatio(original, optimized int) int {
	if original == 0 {
		return 0
	}
	return int(math.Round((1 - float64(optimized)/float64(original)) * 100))
}

// SizeBand classifies a byte size against the SEO image guidelines.
type SizeBand string

const (
	SizeGood     SizeBand = "good"     // <= 100 KiB
	SizeWarning  SizeBand = "warning"  // <= 300 KiB
	SizeCritical SizeBand = "critical" // everything larger
)

// ClassifySize maps a byte count onto its SEO size band. Shared by the
// editor surfaces and the automated checks so the thresholds live in one
// place.
func ClassifySize(sizeBytes int) SizeBand {
	switch {
	case sizeBytes <= 100*1024:
		return SizeGood
	case sizeBytes <= 300*1024:
		return SizeWarning
	default:
		return SizeCritical
	}
}
