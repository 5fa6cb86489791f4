// Package media implements the image ingestion pipeline: a pure client-side
// transform that bounds and re-encodes images, and a server-side writer that
// stores them under collision-free names.
package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// MaxUploadBytes is the largest file accepted for upload.
	MaxUploadBytes = 10 << 20
	// MaxEdge is the long-edge size images are downscaled to.
	MaxEdge = 1600
	// MaxPixelDimension bounds either side of a decoded raster.
	MaxPixelDimension = 8192
	// DefaultQuality is the JPEG quality of re-encoded images.
	DefaultQuality = 70
)

var (
	ErrNotImage           = errors.New("file is not an image")
	ErrTooLarge           = errors.New("image exceeds size limit")
	ErrDimensionsExceeded = errors.New("image dimensions exceed limit")
	ErrEmptyPayload       = errors.New("image payload is empty")
	ErrDecode             = errors.New("image could not be decoded")
)

// Params controls the transform. The same params and input always
// produce the same output.
type Params struct {
	MaxBytes          int
	MaxEdge           int // 0 disables downscaling
	MaxPixelDimension int
	Quality           int
}

// DefaultParams returns the limits used by the chat client.
func DefaultParams() Params {
	return Params{
		MaxBytes:          MaxUploadBytes,
		MaxEdge:           MaxEdge,
		MaxPixelDimension: MaxPixelDimension,
		Quality:           DefaultQuality,
	}
}

// Transform validates an image, downscales it to the long-edge limit and
// re-encodes it as JPEG. Size and type checks run before any decoding, and
// the header dimensions are checked before the full raster is allocated.
func Transform(data []byte, mimeType string, p Params) ([]byte, error) {
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("%w: %s", ErrNotImage, mimeType)
	}
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	if p.MaxBytes > 0 && len(data) > p.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(data), p.MaxBytes)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := checkDimensions(cfg.Width, cfg.Height, p.MaxPixelDimension); err != nil {
		return nil, err
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	dst := flatten(src, p.MaxEdge)
	b := dst.Bounds()
	if err := checkDimensions(b.Dx(), b.Dy(), p.MaxPixelDimension); err != nil {
		return nil, err
	}

	quality := p.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func checkDimensions(w, h, limit int) error {
	if limit > 0 && (w > limit || h > limit) {
		return fmt.Errorf("%w: %dx%d (max %dx%d)", ErrDimensionsExceeded, w, h, limit, limit)
	}
	return nil
}

// ScaledSize returns the size an image of w×h is drawn at for the given
// long-edge limit. Images already within the limit keep their size.
func ScaledSize(w, h, maxEdge int) (int, int) {
	if maxEdge <= 0 || (w <= maxEdge && h <= maxEdge) {
		return w, h
	}
	if w >= h {
		nh := (h*maxEdge + w/2) / w
		if nh < 1 {
			nh = 1
		}
		return maxEdge, nh
	}
	nw := (w*maxEdge + h/2) / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxEdge
}

// flatten draws src onto an opaque white canvas, scaling when needed.
// JPEG has no alpha channel.
func flatten(src image.Image, maxEdge int) *image.RGBA {
	sb := src.Bounds()
	w, h := ScaledSize(sb.Dx(), sb.Dy(), maxEdge)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	if w == sb.Dx() && h == sb.Dy() {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Over)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, draw.Over, nil)
	return dst
}

// PrepareFile reads an image from disk and runs it through Transform.
// Oversized files are rejected from their size alone without being read.
func PrepareFile(path string, p Params) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if p.MaxBytes > 0 && info.Size() > int64(p.MaxBytes) {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, info.Size(), p.MaxBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Transform(data, http.DetectContentType(data), p)
}

// EncodeDataURL wraps JPEG bytes in a data URL for the upload request.
func EncodeDataURL(data []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data)
}

// Inspect runs the size, type and dimension checks of Transform without
// decoding the full raster. It returns the sniffed content type.
func Inspect(data []byte, p Params) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyPayload
	}
	if p.MaxBytes > 0 && len(data) > p.MaxBytes {
		return "", fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(data), p.MaxBytes)
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%w: %s", ErrNotImage, contentType)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := checkDimensions(cfg.Width, cfg.Height, p.MaxPixelDimension); err != nil {
		return "", err
	}
	return contentType, nil
}
