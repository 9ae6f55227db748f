package mkv

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
)

const (
	markerSOI = 0xD8
	markerEOI = 0xD9
	markerSOS = 0xDA
	markerTEM = 0x01

	// maxJPEGSize bounds a single frame so a corrupt stream cannot grow a frame forever.
	maxJPEGSize = 64 << 20
)

// jpegSplitter cuts a stream of concatenated JPEG images, such as ffmpeg's mjpeg muxer
// output, into single images. It walks marker segments instead of searching for an EOI
// byte pair, since APP segments may embed a complete thumbnail.
type jpegSplitter struct {
	r *bufio.Reader
}

func newJPEGSplitter(r io.Reader) *jpegSplitter {
	return &jpegSplitter{r: bufio.NewReaderSize(r, 1<<16)}
}

func isStandalone(marker byte) bool {
	return marker == markerTEM || (marker >= 0xD0 && marker <= 0xD7)
}

func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Next returns the next image. It returns io.EOF at a clean end of stream and
// io.ErrUnexpectedEOF if the stream ends inside an image.
func (s *jpegSplitter) Next() ([]byte, error) {
	if err := s.skipToSOI(); err != nil {
		return nil, err
	}
	out := []byte{0xFF, markerSOI}
	marker, err := s.nextMarker(&out)
	for {
		if err != nil {
			return nil, unexpectedEOF(err)
		}
		if len(out) > maxJPEGSize {
			return nil, errors.Errorf("jpeg frame exceeds %d bytes", maxJPEGSize)
		}
		switch {
		case marker == markerEOI:
			return out, nil
		case isStandalone(marker):
			marker, err = s.nextMarker(&out)
		default:
			if err := s.copySegment(&out); err != nil {
				return nil, unexpectedEOF(err)
			}
			if marker == markerSOS {
				marker, err = s.copyEntropyData(&out)
			} else {
				marker, err = s.nextMarker(&out)
			}
		}
	}
}

// skipToSOI discards bytes up to and including the next start of image marker.
func (s *jpegSplitter) skipToSOI() error {
	sawFF := false
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			if sawFF {
				return unexpectedEOF(err)
			}
			return err
		}
		switch {
		case b == 0xFF:
			sawFF = true
		case sawFF && b == markerSOI:
			return nil
		default:
			sawFF = false
		}
	}
}

func (s *jpegSplitter) nextMarker(out *[]byte) (byte, error) {
	b, err := s.r.ReadByte()
	if err != nil {
		return 0, err
	}
	if b != 0xFF {
		return 0, errors.Errorf("expected jpeg marker, got 0x%02x", b)
	}
	for b == 0xFF {
		if b, err = s.r.ReadByte(); err != nil {
			return 0, err
		}
	}
	*out = append(*out, 0xFF, b)
	return b, nil
}

func (s *jpegSplitter) copySegment(out *[]byte) error {
	var lenBytes [2]byte
	if _, err := io.ReadFull(s.r, lenBytes[:]); err != nil {
		return err
	}
	length := int(lenBytes[0])<<8 | int(lenBytes[1])
	if length < 2 {
		return errors.Errorf("invalid jpeg segment length %d", length)
	}
	*out = append(*out, lenBytes[:]...)
	start := len(*out)
	*out = append(*out, make([]byte, length-2)...)
	_, err := io.ReadFull(s.r, (*out)[start:])
	return err
}

// copyEntropyData copies scan data up to the next real marker and returns that marker.
// Stuffed 0xFF00 bytes and restart markers belong to the scan.
func (s *jpegSplitter) copyEntropyData(out *[]byte) (byte, error) {
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return 0, err
		}
		if b != 0xFF {
			*out = append(*out, b)
			continue
		}
		for b == 0xFF {
			if b, err = s.r.ReadByte(); err != nil {
				return 0, err
			}
		}
		*out = append(*out, 0xFF, b)
		if b == 0x00 || (b >= 0xD0 && b <= 0xD7) {
			continue
		}
		return b, nil
	}
}
