package rimage

import (
	"bytes"
	"image/jpeg"

	"github.com/pkg/errors"
)

func newSizeMismatchError(srcW, srcH, dstW, dstH int) error {
	return errors.Errorf("image is %dx%d but destination buffer is %dx%d", srcW, srcH, dstW, dstH)
}

// DecodeMJPEGInto decompresses a FormatColorMJPG buffer into a FormatColorBGRA32 buffer that
// was allocated with the same dimensions.
func DecodeMJPEGInto(src, dst *Buffer) error {
	if err := src.CheckFormat(FormatColorMJPG); err != nil {
		return err
	}
	img, err := jpeg.Decode(bytes.NewReader(src.Bytes()))
	if err != nil {
		return errors.Wrap(err, "failed to decompress MJPEG frame")
	}
	return CopyImageToBuffer(img, dst)
}

// DecodeMJPEG decompresses a FormatColorMJPG buffer into a new FormatColorBGRA32 buffer.
func DecodeMJPEG(src *Buffer) (*Buffer, error) {
	if err := src.CheckFormat(FormatColorMJPG); err != nil {
		return nil, err
	}
	dst, err := NewBuffer(FormatColorBGRA32, src.Width(), src.Height(), 0)
	if err != nil {
		return nil, err
	}
	if err := DecodeMJPEGInto(src, dst); err != nil {
		dst.Release()
		return nil, err
	}
	return dst, nil
}

// EncodeMJPEG compresses a BGRA buffer into a new FormatColorMJPG buffer.
func EncodeMJPEG(src *Buffer, quality int) (*Buffer, error) {
	img, err := NewImageFromBuffer(src)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := jpeg.Encode(&out, img.ToNRGBA(), &jpeg.Options{Quality: quality}); err != nil {
		return nil, errors.Wrap(err, "failed to compress frame")
	}
	return NewBufferFromBytes(FormatColorMJPG, src.Width(), src.Height(), 0, out.Bytes())
}
