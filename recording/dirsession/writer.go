package dirsession

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	"github.com/rgbdkit/playback/recording"
	"github.com/rgbdkit/playback/recording/k4a"
	"github.com/rgbdkit/playback/rimage"
)

// A Writer exports captures to a recording directory.
type Writer struct {
	dir string
}

// Create makes the recording directory layout in dir and writes its calibration, which is
// either a device calibration.json or a JSON transform.Calibration.
func Create(dir string, calibration []byte) (*Writer, error) {
	for _, sub := range []string{ColorDir, DepthDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o750); err != nil {
			return nil, err
		}
	}
	if err := os.WriteFile(filepath.Join(dir, k4a.CalibrationFileName), calibration, 0o600); err != nil {
		return nil, err
	}
	return &Writer{dir: dir}, nil
}

// WriteCapture writes the samples of c. MJPEG color is written as is; decoded color is
// written as png.
func (w *Writer) WriteCapture(c *recording.Capture) error {
	if c.Timestamp < 0 {
		return errors.Errorf("cannot write capture with negative timestamp %v", c.Timestamp)
	}
	stem := strconv.FormatInt(c.Timestamp.Microseconds(), 10)
	if c.Depth != nil {
		dm, err := rimage.DepthMapFromBuffer(c.Depth)
		if err != nil {
			return err
		}
		if err := rimage.WriteImageToFile(filepath.Join(w.dir, DepthDir, stem+".png"), dm); err != nil {
			return err
		}
	}
	if c.Color == nil {
		return nil
	}
	switch c.Color.Format() {
	case rimage.FormatColorMJPG:
		return os.WriteFile(filepath.Join(w.dir, ColorDir, stem+".jpg"), c.Color.Bytes(), 0o600)
	case rimage.FormatColorBGRA32:
		img, err := rimage.NewImageFromBuffer(c.Color)
		if err != nil {
			return err
		}
		return rimage.WriteImageToFile(filepath.Join(w.dir, ColorDir, stem+".png"), img)
	default:
		return errors.Errorf("cannot write color sample of format %v", c.Color.Format())
	}
}

// Write exports captures to a new recording directory.
func Write(dir string, calibration []byte, captures []*recording.Capture) error {
	w, err := Create(dir, calibration)
	if err != nil {
		return err
	}
	for i, c := range captures {
		if err := w.WriteCapture(c); err != nil {
			return errors.Wrapf(err, "capture %d", i)
		}
	}
	return nil
}
