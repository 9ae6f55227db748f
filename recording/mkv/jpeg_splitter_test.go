package mkv

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"testing"

	"go.viam.com/test"
)

func encodeTestJPEG(t *testing.T, w, h int, seed uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// high contrast noise so the scan data contains stuffed 0xFF bytes
			v := uint8((x*31 + y*17 + int(seed)*7) % 256)
			img.Set(x, y, color.RGBA{v, 255 - v, v ^ 0xAA, 255})
		}
	}
	var buf bytes.Buffer
	test.That(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}), test.ShouldBeNil)
	return buf.Bytes()
}

// withThumbnailSegment inserts an APP1 segment holding a complete fake image after SOI.
func withThumbnailSegment(frame []byte) []byte {
	payload := []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}
	segment := append([]byte{0xFF, 0xE1, 0x00, byte(len(payload) + 2)}, payload...)
	out := append([]byte{}, frame[:2]...)
	out = append(out, segment...)
	return append(out, frame[2:]...)
}

func TestJPEGSplitter(t *testing.T) {
	frames := [][]byte{
		encodeTestJPEG(t, 16, 16, 1),
		withThumbnailSegment(encodeTestJPEG(t, 24, 8, 2)),
		encodeTestJPEG(t, 8, 8, 3),
	}

	var stream bytes.Buffer
	stream.WriteString("garbage before the first frame")
	for _, f := range frames {
		stream.Write(f)
	}

	splitter := newJPEGSplitter(&stream)
	for i, want := range frames {
		got, err := splitter.Next()
		test.That(t, err, test.ShouldBeNil)
		test.That(t, len(got), test.ShouldEqual, len(want))
		test.That(t, got, test.ShouldResemble, want)

		img, err := jpeg.Decode(bytes.NewReader(got))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, img.Bounds().Dx(), test.ShouldEqual, []int{16, 24, 8}[i])
	}
	_, err := splitter.Next()
	test.That(t, err, test.ShouldEqual, io.EOF)
}

func TestJPEGSplitterTruncated(t *testing.T) {
	frame := encodeTestJPEG(t, 16, 16, 4)
	splitter := newJPEGSplitter(bytes.NewReader(frame[:len(frame)/2]))
	_, err := splitter.Next()
	test.That(t, err, test.ShouldEqual, io.ErrUnexpectedEOF)

	splitter = newJPEGSplitter(bytes.NewReader(nil))
	_, err = splitter.Next()
	test.That(t, err, test.ShouldEqual, io.EOF)

	splitter = newJPEGSplitter(bytes.NewReader([]byte{0x00, 0xFF}))
	_, err = splitter.Next()
	test.That(t, err, test.ShouldEqual, io.ErrUnexpectedEOF)
}

func TestJPEGSplitterCorrupt(t *testing.T) {
	good := encodeTestJPEG(t, 8, 8, 5)
	// SOI followed by a byte that is not a marker
	bad := []byte{0xFF, 0xD8, 0x12, 0x34}

	splitter := newJPEGSplitter(bytes.NewReader(append(bad, good...)))
	_, err := splitter.Next()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "expected jpeg marker")

	// the splitter resynchronizes on the next start of image
	got, err := splitter.Next()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, good)
}
