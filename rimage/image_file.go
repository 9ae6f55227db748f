package rimage

import (
	"bufio"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	"github.com/xfmoulet/qoi"
	"go.uber.org/multierr"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

// Extensions accepted by EncodeImage, without the leading dot.
const (
	ExtPNG  = "png"
	ExtJPEG = "jpg"
	ExtTIFF = "tiff"
	ExtQOI  = "qoi"
	ExtPPM  = "ppm"
	ExtBMP  = "bmp"
)

// DefaultJPEGQuality is the quality used when encoding color frames as JPEG.
const DefaultJPEGQuality = 95

// ColorExtensions are the encodings available for color images.
var ColorExtensions = []string{ExtPNG, ExtJPEG, ExtQOI, ExtPPM, ExtBMP, ExtTIFF}

// DepthExtensions are the encodings that keep all 16 bits of a depth map.
var DepthExtensions = []string{ExtPNG, ExtTIFF}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	switch ext {
	case "jpeg":
		return ExtJPEG
	case "tif":
		return ExtTIFF
	}
	return ext
}

// IsColorExtension reports whether ext names a color encoding.
func IsColorExtension(ext string) bool {
	return contains(ColorExtensions, normalizeExt(ext))
}

// IsDepthExtension reports whether ext names a lossless 16 bit encoding.
func IsDepthExtension(ext string) bool {
	return contains(DepthExtensions, normalizeExt(ext))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// toRGBA converts img to the only color model the PPM encoder takes.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	if dm, ok := img.(*DepthMap); ok {
		img = dm.ToGray16()
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba
}

// EncodeImage encodes img in the format named by ext.
func EncodeImage(w io.Writer, img image.Image, ext string) error {
	switch ext = normalizeExt(ext); ext {
	case ExtQOI:
		return qoi.Encode(w, img)
	case ExtPPM:
		return ppm.Encode(w, toRGBA(img))
	case ExtTIFF:
		if dm, ok := img.(*DepthMap); ok {
			img = dm.ToGray16()
		}
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	case ExtJPEG:
		if dm, ok := img.(*DepthMap); ok {
			return errors.Errorf("cannot encode %dx%d depth map as lossy %s", dm.Width(), dm.Height(), ext)
		}
		if ii, ok := img.(*Image); ok {
			img = ii.ToNRGBA()
		}
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(DefaultJPEGQuality))
	default:
		format, err := imaging.FormatFromExtension(ext)
		if err != nil {
			return errors.Errorf("unsupported image extension %q", ext)
		}
		switch ii := img.(type) {
		case *DepthMap:
			img = ii.ToGray16()
		case *Image:
			img = ii.ToNRGBA()
		}
		return imaging.Encode(w, img, format)
	}
}

// WriteImageToFile writes img to path, choosing the encoding from the extension.
func WriteImageToFile(path string, img image.Image) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	w := bufio.NewWriter(f)
	if err := EncodeImage(w, img, filepath.Ext(path)); err != nil {
		return errors.Wrapf(err, "failed to encode %q", path)
	}
	return w.Flush()
}

// ReadImageFromFile decodes the image at path using the registered decoders.
func ReadImageFromFile(path string) (image.Image, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		//nolint:errcheck,gosec
		f.Close()
	}()

	var img image.Image
	switch normalizeExt(filepath.Ext(path)) {
	case ExtQOI:
		img, err = qoi.Decode(f)
	case ExtPPM:
		img, err = ppm.Decode(f)
	case ExtTIFF:
		img, err = tiff.Decode(f)
	default:
		img, _, err = image.Decode(bufio.NewReader(f))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %q", path)
	}
	return img, nil
}

// ReadDepthMapFromFile reads a 16 bit png or tiff back into a depth map.
func ReadDepthMapFromFile(path string) (*DepthMap, error) {
	img, err := ReadImageFromFile(path)
	if err != nil {
		return nil, err
	}
	return ConvertImageToDepthMap(img)
}
