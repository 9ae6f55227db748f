// Package mkv reads Azure Kinect .mkv recordings by running ffprobe and ffmpeg.
package mkv

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/rgbdkit/playback/logging"
	"github.com/rgbdkit/playback/recording"
	"github.com/rgbdkit/playback/recording/k4a"
	"github.com/rgbdkit/playback/rimage"
	"github.com/rgbdkit/playback/rimage/transform"
)

func init() {
	recording.RegisterBackend("mkv", recording.Backend{
		Match: func(path string, info os.FileInfo) bool {
			return !info.IsDir() && strings.EqualFold(filepath.Ext(path), ".mkv")
		},
		Open: func(ctx context.Context, path string, logger logging.Logger) (recording.Session, error) {
			return Open(ctx, path, logger)
		},
	})
}

// trackReader reads the decoded frames of one track from an ffmpeg child process. Frames are
// timed by the track's packet times and those before start are dropped.
type trackReader struct {
	cancel  context.CancelFunc
	pipe    *io.PipeReader
	r       *bufio.Reader
	jpegs   *jpegSplitter
	workers sync.WaitGroup
	done    bool

	frameSize int
	times     []time.Duration
	period    time.Duration
	start     time.Duration
	read      int
	head      *timedFrame
}

// startTrack runs ffmpeg over the whole track. Each packet of the track becomes one output
// frame, so the n-th frame read is the n-th of times.
func startTrack(
	path string,
	track videoTrack,
	times []time.Duration,
	start time.Duration,
	outArgs ffmpeg.KwArgs,
	frameSize int,
	logger logging.Logger,
) *trackReader {
	cancelableCtx, cancel := context.WithCancel(context.Background())
	in, out := io.Pipe()
	tr := &trackReader{
		cancel:    cancel,
		pipe:      in,
		r:         bufio.NewReaderSize(in, 1<<20),
		frameSize: frameSize,
		times:     times,
		period:    track.period,
		start:     start,
	}
	if track.isMJPEG() && outArgs["c:v"] == "copy" {
		tr.jpegs = newJPEGSplitter(tr.r)
	}

	outArgs["map"] = fmt.Sprintf("0:%d", track.index)
	outArgs["vsync"] = "passthrough"

	tr.workers.Add(1)
	utils.ManagedGo(func() {
		var stderr bytes.Buffer
		stream := ffmpeg.Input(path).Output("pipe:", outArgs)
		stream.Context = cancelableCtx
		err := stream.WithOutput(out).WithErrorOutput(&stderr).Run()
		if err != nil && cancelableCtx.Err() == nil {
			logger.Debugw("ffmpeg failed", "stream", track.index, "stderr", stderr.String())
			err = errors.Wrapf(err, "ffmpeg failed reading stream %d", track.index)
		} else {
			err = nil
		}
		out.CloseWithError(err)
	}, tr.workers.Done)
	return tr
}

// pts is the presentation time of the n-th frame. Frames past the packet list continue at the
// track's frame period.
func (tr *trackReader) pts(n int) time.Duration {
	if n < len(tr.times) {
		return tr.times[n]
	}
	if len(tr.times) == 0 {
		return time.Duration(n) * tr.period
	}
	return tr.times[len(tr.times)-1] + time.Duration(n-len(tr.times)+1)*tr.period
}

func (tr *trackReader) peek() (*timedFrame, error) {
	for tr.head == nil {
		data, err := tr.readFrame(tr.frameSize)
		if err != nil {
			return nil, err
		}
		pts := tr.pts(tr.read)
		tr.read++
		if pts < tr.start {
			continue
		}
		tr.head = &timedFrame{data: data, pts: pts}
	}
	return tr.head, nil
}

func (tr *trackReader) pop() {
	tr.head = nil
}

// readFrame reads one frame of size bytes, or one JPEG image when the track is copied as
// MJPEG. It returns io.EOF when the track has no more frames.
func (tr *trackReader) readFrame(size int) ([]byte, error) {
	if tr.done {
		return nil, io.EOF
	}
	var frame []byte
	var err error
	if tr.jpegs != nil {
		frame, err = tr.jpegs.Next()
	} else {
		frame = make([]byte, size)
		_, err = io.ReadFull(tr.r, frame)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		tr.done = true
		return nil, io.EOF
	}
	return frame, err
}

func (tr *trackReader) close() {
	tr.cancel()
	//nolint:errcheck,gosec
	tr.pipe.Close()
	tr.workers.Wait()
}

type session struct {
	mu     sync.Mutex
	path   string
	logger logging.Logger
	info   *recordingInfo

	offset     time.Duration
	color      *trackReader
	depth      *trackReader
	colorTimes []time.Duration
	depthTimes []time.Duration

	cal    *transform.Calibration
	closed bool
}

// Open probes the recording at path. Frames are not read until the first NextCapture.
func Open(ctx context.Context, path string, logger logging.Logger) (recording.Session, error) {
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			return nil, errors.Wrapf(err, "reading .mkv recordings needs %s", bin)
		}
	}
	out, err := ffmpeg.Probe(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot probe %q", path)
	}
	info, err := parseProbe([]byte(out))
	if err != nil {
		return nil, err
	}
	logger.Debugw("probed recording",
		"color_stream", info.color.index, "color_codec", info.color.codec,
		"depth_stream", info.depth.index, "depth_codec", info.depth.codec,
		"duration", info.duration)
	if !info.color.isMJPEG() {
		logger.Warnw("color track is not MJPEG", "codec", info.color.codec)
	}
	return &session{path: path, logger: logger, info: info}, nil
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
	s.stopTracks()
	s.offset = offset
	return nil
}

func (s *session) stopTracks() {
	for _, tr := range []*trackReader{s.color, s.depth} {
		if tr != nil {
			tr.close()
		}
	}
	s.color, s.depth = nil, nil
}

func (s *session) startTracks() error {
	if s.colorTimes == nil {
		colorTimes, err := probePacketTimes(s.path, s.info.color)
		if err != nil {
			return err
		}
		depthTimes, err := probePacketTimes(s.path, s.info.depth)
		if err != nil {
			return err
		}
		s.colorTimes, s.depthTimes = colorTimes, depthTimes
	}

	colorTrack, depthTrack := s.info.color, s.info.depth
	colorArgs := ffmpeg.KwArgs{"c:v": "copy", "f": "mjpeg"}
	if !colorTrack.isMJPEG() {
		colorArgs = ffmpeg.KwArgs{"f": "rawvideo", "pix_fmt": "bgra"}
	}
	s.color = startTrack(s.path, colorTrack, s.colorTimes, s.offset, colorArgs,
		colorTrack.width*colorTrack.height*4, s.logger)
	s.depth = startTrack(s.path, depthTrack, s.depthTimes, s.offset, ffmpeg.KwArgs{"f": "rawvideo", "pix_fmt": "gray16le"},
		depthTrack.width*depthTrack.height*2, s.logger)
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
	if s.color == nil {
		if err := s.startTracks(); err != nil {
			return nil, err
		}
	}

	depthTrack, colorTrack := s.info.depth, s.info.color
	depthFrame, colorFrame, err := nextPair(s.depth, s.color, depthTrack.period/2)
	if errors.Is(err, io.EOF) {
		return nil, recording.ErrEndOfStream
	}
	if err != nil {
		return nil, err
	}

	capture := &recording.Capture{}
	if depthFrame != nil {
		capture.Timestamp = depthFrame.pts
		capture.Depth, err = rimage.NewBufferFromBytes(rimage.FormatDepth16, depthTrack.width, depthTrack.height, 0, depthFrame.data)
		if err != nil {
			return nil, err
		}
	}
	if colorFrame != nil {
		if depthFrame == nil {
			capture.Timestamp = colorFrame.pts
		}
		format := rimage.FormatColorMJPG
		if !colorTrack.isMJPEG() {
			format = rimage.FormatColorBGRA32
		}
		capture.Color, err = rimage.NewBufferFromBytes(format, colorTrack.width, colorTrack.height, 0, colorFrame.data)
		if err != nil {
			capture.Release()
			return nil, err
		}
	}
	return capture, nil
}

func ignoreEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
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
	data, err := s.dumpCalibration(ctx)
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

func (s *session) dumpCalibration(ctx context.Context) ([]byte, error) {
	if s.info.attachment < 0 {
		return nil, errors.New("recording has no calibration attachment")
	}
	dir, err := os.MkdirTemp("", "playback-calibration")
	if err != nil {
		return nil, err
	}
	defer func() {
		//nolint:errcheck,gosec
		os.RemoveAll(dir)
	}()
	fn := filepath.Join(dir, calibrationAttachment)

	// ffmpeg dumps attachments while opening its input, so the output only has to be valid.
	var stderr bytes.Buffer
	stream := ffmpeg.Input(s.path, ffmpeg.KwArgs{fmt.Sprintf("dump_attachment:%d", s.info.attachment): fn}).
		Output("-", ffmpeg.KwArgs{"t": "0", "f": "null"})
	stream.Context = ctx
	runErr := stream.WithErrorOutput(&stderr).Run()
	//nolint:gosec
	data, err := os.ReadFile(fn)
	if err != nil {
		s.logger.Debugw("ffmpeg failed to dump calibration", "stderr", stderr.String())
		return nil, errors.Wrap(multierr.Combine(runErr, err), "cannot extract calibration")
	}
	return data, nil
}

func (s *session) deviceCalibration(data []byte) (*transform.Calibration, error) {
	depthMode, err := k4a.ParseDepthMode(s.info.depthMode)
	if err != nil {
		if depthMode, err = k4a.DepthModeFromSize(s.info.depth.width, s.info.depth.height); err != nil {
			return nil, err
		}
	}
	colorRes, err := k4a.ParseColorResolution(s.info.colorMode)
	if err != nil {
		if colorRes, err = k4a.ColorResolutionFromSize(s.info.color.width, s.info.color.height); err != nil {
			return nil, err
		}
	}
	s.logger.Debugw("device modes", "depth_mode", depthMode, "color_resolution", colorRes)
	return k4a.NewCalibration(data, depthMode, colorRes)
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return recording.ErrClosed
	}
	s.closed = true
	s.stopTracks()
	return nil
}
