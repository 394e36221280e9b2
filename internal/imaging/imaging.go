// Package imaging converts host-supplied images into device-native screen
// payloads. The transform is pure: decode, scale to the surface dimensions,
// apply the variant's mounting rotation/mirroring and re-encode for the wire.
// No hardware access happens here.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	// Source images arrive as JPEG or PNG.
	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/deckbridge/deckd/internal/catalog"
)

var (
	// ErrBadImage wraps a source image that cannot be decoded.
	ErrBadImage = errors.New("malformed image payload")
	// ErrSurfaceRange reports a surface selector outside the variant's geometry.
	ErrSurfaceRange = errors.New("surface out of range")
)

// SurfaceKind selects between the button grid and the touch strip.
type SurfaceKind uint8

const (
	SurfaceButton SurfaceKind = iota
	SurfaceTouch
)

// Surface selects one screen on a device.
type Surface struct {
	Kind  SurfaceKind
	Index int
}

func Button(index int) Surface {
	return Surface{Kind: SurfaceButton, Index: index}
}

func Touch(index int) Surface {
	return Surface{Kind: SurfaceTouch, Index: index}
}

func (s Surface) String() string {
	if s.Kind == SurfaceTouch {
		return fmt.Sprintf("touch:%d", s.Index)
	}
	return fmt.Sprintf("button:%d", s.Index)
}

// Spec resolves the image spec for a surface of the given variant.
func Spec(v catalog.Variant, s Surface) (catalog.ImageSpec, error) {
	switch s.Kind {
	case SurfaceButton:
		if s.Index < 0 || s.Index >= v.Keys() {
			return catalog.ImageSpec{}, fmt.Errorf("%w: button %d of %d", ErrSurfaceRange, s.Index, v.Keys())
		}
		return v.ButtonImage, nil
	case SurfaceTouch:
		if s.Index < 0 || s.Index >= v.TouchZones {
			return catalog.ImageSpec{}, fmt.Errorf("%w: touch zone %d of %d", ErrSurfaceRange, s.Index, v.TouchZones)
		}
		return v.TouchImage, nil
	default:
		return catalog.ImageSpec{}, fmt.Errorf("%w: unknown surface kind %d", ErrSurfaceRange, s.Kind)
	}
}

// Adapt converts source image bytes into the native payload for one surface.
// Deterministic: identical inputs yield byte-identical payloads.
func Adapt(v catalog.Variant, s Surface, data []byte) ([]byte, error) {
	spec, err := Spec(v, s)
	if err != nil {
		return nil, err
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	return encode(spec, src)
}

// Blank returns the native payload of a solid black tile for one surface,
// used to clear screens that have no firmware clear command.
func Blank(v catalog.Variant, s Surface) ([]byte, error) {
	spec, err := Spec(v, s)
	if err != nil {
		return nil, err
	}
	// A one-pixel source is enough to resample a constant color; an
	// unbounded uniform would blow up the scaler.
	src := image.NewRGBA(image.Rect(0, 0, 1, 1))
	src.Set(0, 0, color.Black)
	return encode(spec, src)
}

func encode(spec catalog.ImageSpec, src image.Image) ([]byte, error) {
	// A 90/270 degree mounting rotation swaps the dimensions of the scaled
	// intermediate so the oriented result matches the declared surface size.
	target := spec
	if spec.Rotation == catalog.Rot90 || spec.Rotation == catalog.Rot270 {
		target.Width, target.Height = spec.Height, spec.Width
	}
	scaled := scale(target, src)
	oriented := orient(spec, scaled)

	var buf bytes.Buffer
	quality := spec.Quality
	if quality <= 0 {
		quality = jpeg.DefaultQuality
	}
	if err := jpeg.Encode(&buf, oriented, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	return buf.Bytes(), nil
}

// scale resamples the source into the surface's declared dimensions. The
// aspect ratio is not preserved; the host is responsible for composing tiles
// in the right shape.
func scale(spec catalog.ImageSpec, src image.Image) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, spec.Width, spec.Height))
	srcBounds := src.Bounds()
	if srcBounds.Dx() == 0 || srcBounds.Dy() == 0 {
		srcBounds = image.Rect(0, 0, 1, 1)
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, srcBounds, draw.Src, nil)
	return dst
}

// orient applies the variant's physical mounting rotation and mirroring.
func orient(spec catalog.ImageSpec, src *image.RGBA) *image.RGBA {
	out := src
	switch spec.Rotation {
	case catalog.Rot90:
		out = rotate(out, func(x, y, w, h int) (int, int) { return h - 1 - y, x })
	case catalog.Rot180:
		out = rotate(out, func(x, y, w, h int) (int, int) { return w - 1 - x, h - 1 - y })
	case catalog.Rot270:
		out = rotate(out, func(x, y, w, h int) (int, int) { return y, w - 1 - x })
	}
	switch spec.Mirror {
	case catalog.MirrorX:
		out = rotate(out, func(x, y, w, h int) (int, int) { return w - 1 - x, y })
	case catalog.MirrorY:
		out = rotate(out, func(x, y, w, h int) (int, int) { return x, h - 1 - y })
	}
	return out
}

// rotate remaps every source pixel through f, which maps source coordinates
// to destination coordinates given the source width and height.
func rotate(src *image.RGBA, f func(x, y, w, h int) (int, int)) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	// A 90/270 degree remap swaps the output dimensions.
	dx, dy := f(w-1, h-1, w, h)
	ox, oy := f(0, 0, w, h)
	outW, outH := abs(dx-ox)+1, abs(dy-oy)+1
	dst := image.NewRGBA(image.Rect(0, 0, outW, outH))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			nx, ny := f(x, y, w, h)
			dst.Set(nx, ny, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
