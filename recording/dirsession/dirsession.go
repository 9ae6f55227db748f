// Package dirsession reads and writes recordings exported to a directory:
//
//	<dir>/calibration.json
//	<dir>/color/<usec>.jpg   raw MJPEG samples (other image extensions hold decoded color)
//	<dir>/depth/<usec>.png   16 bit depth samples (png or tiff)
//
// Samples are paired by the timestamp, in microseconds, in their file name.
package dirsession

import (
	"bytes"
	"context"
	"image"
	// registers the jpeg decoder used to read MJPEG sample sizes.
	_ "image/jpeg"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/rgbdkit/playback/logging"
	"github.com/rgbdkit/playback/recording"
	"github.com/rgbdkit/playback/recording/k4a"
	"github.com/rgbdkit/playback/rimage"
	"github.com/rgbdkit/playback/rimage/transform"
)

// Layout names.
const (
	ColorDir = "color"
	DepthDir = "depth"
)

func init() {
	recording.RegisterBackend("dir", recording.Backend{
		Match: func(path string, info os.FileInfo) bool {
			return info.IsDir()
		},
		Open: func(ctx context.Context, path string, logger logging.Logger) (recording.Session, error) {
			return Open(ctx, path, logger)
		},
	})
}

type entry struct {
	timestamp time.Duration
	depthPath string
	colorPath string
}

type session struct {
	mu      sync.Mutex
	dir     string
	logger  logging.Logger
	entries []entry
	cursor  int
	cal     *transform.Calibration
	closed  bool
}

// Open indexes the recording in dir.
func Open(ctx context.Context, dir string, logger logging.Logger) (recording.Session, error) {
	if _, err := os.Stat(filepath.Join(dir, k4a.CalibrationFileName)); err != nil {
		return nil, errors.Wrap(err, "recording directory has no calibration")
	}
	byTime := map[time.Duration]*entry{}
	for _, sub := range []string{DepthDir, ColorDir} {
		files, err := os.ReadDir(filepath.Join(dir, sub))
		if err != nil {
			return nil, errors.Wrapf(err, "cannot list %s samples", sub)
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			ts, ok := parseTimestamp(f.Name())
			if !ok {
				logger.Debugw("ignoring file", "file", f.Name())
				continue
			}
			e, ok := byTime[ts]
			if !ok {
				e = &entry{timestamp: ts}
				byTime[ts] = e
			}
			path := filepath.Join(dir, sub, f.Name())
			if sub == DepthDir {
				e.depthPath = path
			} else {
				e.colorPath = path
			}
		}
	}

	entries := make([]entry, 0, len(byTime))
	for _, e := range byTime {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].timestamp < entries[j].timestamp
	})
	logger.Debugw("indexed recording", "dir", dir, "captures", len(entries))
	return &session{dir: dir, logger: logger, entries: entries}, nil
}

func parseTimestamp(name string) (time.Duration, bool) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	usec, err := strconv.ParseInt(stem, 10, 64)
	if err != nil || usec < 0 {
		return 0, false
	}
	return time.Duration(usec) * time.Microsecond, true
}

func (s *session) Seek(ctx context.Context, offset time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return recording.ErrClosed
	}
	if offset < 0 {
		return errors.Errorf("cannot seek to negative offset %v", offset)
	}
	// Seeking past the last capture leaves nothing to read.
	s.cursor = sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].timestamp >= offset
	})
	return nil
}

func (s *session) NextCapture(ctx context.Context) (*recording.Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, recording.ErrClosed
	}
	if s.cursor >= len(s.entries) {
		return nil, recording.ErrEndOfStream
	}
	e := s.entries[s.cursor]
	s.cursor++

	capture := &recording.Capture{Timestamp: e.timestamp}
	if e.depthPath != "" {
		depth, err := readDepth(e.depthPath)
		if err != nil {
			return nil, err
		}
		capture.Depth = depth
	}
	if e.colorPath != "" {
		color, err := readColor(e.colorPath)
		if err != nil {
			capture.Release()
			return nil, err
		}
		capture.Color = color
	}
	return capture, nil
}

func readDepth(path string) (*rimage.Buffer, error) {
	dm, err := rimage.ReadDepthMapFromFile(path)
	if err != nil {
		return nil, err
	}
	return dm.ToBuffer()
}

func isMJPEGPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".jpg" || ext == ".jpeg"
}

func readColor(path string) (*rimage.Buffer, error) {
	if isMJPEGPath(path) {
		//nolint:gosec
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrapf(err, "cannot read MJPEG sample %q", path)
		}
		return rimage.NewBufferFromBytes(rimage.FormatColorMJPG, cfg.Width, cfg.Height, 0, data)
	}
	img, err := rimage.ReadImageFromFile(path)
	if err != nil {
		return nil, err
	}
	buf, err := rimage.NewBuffer(rimage.FormatColorBGRA32, img.Bounds().Dx(), img.Bounds().Dy(), 0)
	if err != nil {
		return nil, err
	}
	if err := rimage.CopyImageToBuffer(img, buf); err != nil {
		buf.Release()
		return nil, err
	}
	return buf, nil
}

func (s *session) Calibration(ctx context.Context) (*transform.Calibration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, recording.ErrClosed
	}
	if s.cal != nil {
		return s.cal, nil
	}
	//nolint:gosec
	data, err := os.ReadFile(filepath.Join(s.dir, k4a.CalibrationFileName))
	if err != nil {
		return nil, err
	}
	var cal *transform.Calibration
	if k4a.IsCalibrationJSON(data) {
		cal, err = s.deviceCalibration(data)
	} else {
		cal, err = transform.NewCalibrationFromBytes(data)
	}
	if err != nil {
		return nil, err
	}
	s.cal = cal
	return cal, nil
}

// deviceCalibration picks the device modes from the sizes of the first samples.
func (s *session) deviceCalibration(data []byte) (*transform.Calibration, error) {
	var depthPath, colorPath string
	for _, e := range s.entries {
		if depthPath == "" {
			depthPath = e.depthPath
		}
		if colorPath == "" {
			colorPath = e.colorPath
		}
	}
	if depthPath == "" || colorPath == "" {
		return nil, errors.New("cannot determine the device modes of a recording without depth and color samples")
	}
	depthW, depthH, err := imageSize(depthPath)
	if err != nil {
		return nil, err
	}
	colorW, colorH, err := imageSize(colorPath)
	if err != nil {
		return nil, err
	}
	depthMode, err := k4a.DepthModeFromSize(depthW, depthH)
	if err != nil {
		return nil, err
	}
	colorRes, err := k4a.ColorResolutionFromSize(colorW, colorH)
	if err != nil {
		return nil, err
	}
	s.logger.Debugw("device modes", "depth_mode", depthMode, "color_resolution", colorRes)
	return k4a.NewCalibration(data, depthMode, colorRes)
}

func imageSize(path string) (int, int, error) {
	img, err := rimage.ReadImageFromFile(path)
	if err != nil {
		return 0, 0, err
	}
	return img.Bounds().Dx(), img.Bounds().Dy(), nil
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return recording.ErrClosed
	}
	s.closed = true
	s.entries = nil
	return nil
}
