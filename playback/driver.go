// Package playback reprojects the frames of a recorded RGB-D session between the depth and
// color cameras and writes the results as images and point clouds.
package playback

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/rgbdkit/playback/logging"
	"github.com/rgbdkit/playback/recording"
	"github.com/rgbdkit/playback/rimage/transform"
)

// Status is the outcome of a run, used as the process exit code.
type Status int

const (
	// StatusOK means every reachable frame was handled.
	StatusOK Status = iota
	// StatusFailed means the run stopped on an unrecoverable failure.
	StatusFailed
	// StatusUsage means the run was invoked with invalid arguments.
	StatusUsage
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	case StatusUsage:
		return "usage"
	default:
		return "unknown"
	}
}

// Result summarizes a run.
type Result struct {
	FramesProcessed int
	FramesSkipped   int
	FetchFailures   int
	Artifacts       []string
	LastTimestamp   time.Duration
}

// Driver runs the reprojection loop over one recording.
type Driver struct {
	opts   Options
	open   recording.Opener
	logger logging.Logger
}

// NewDriver applies defaults to opts and validates them. A nil open uses recording.Open.
func NewDriver(opts Options, open recording.Opener, logger logging.Logger) (*Driver, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate("options"); err != nil {
		return nil, err
	}
	if open == nil {
		open = recording.Open
	}
	return &Driver{opts: opts, open: open, logger: logger}, nil
}

// Options returns the options of the driver with defaults applied.
func (d *Driver) Options() Options {
	return d.opts
}

// Run opens the recording given by opts and processes it. Invalid options give StatusUsage.
func Run(ctx context.Context, opts Options, logger logging.Logger) (Status, *Result, error) {
	d, err := NewDriver(opts, recording.Open, logger)
	if err != nil {
		return StatusUsage, &Result{}, err
	}
	return d.Run(ctx)
}

// Run processes every frame from the start offset to the end of the recording. The session and
// the transform context are closed on every path out.
func (d *Driver) Run(ctx context.Context) (Status, *Result, error) {
	res := &Result{}
	d.logger.Infow("opening recording", "path", d.opts.InputPath, "start_offset", d.opts.Offset(),
		"direction", d.opts.Direction, "emit", d.opts.Emit, "output_dir", d.opts.OutputDir)

	session, err := d.open(ctx, d.opts.InputPath, d.logger)
	if err != nil {
		return d.abort(res, newFrameError(FailureOpen, 0, err))
	}
	defer func() {
		if err := session.Close(); err != nil {
			d.logger.Warnw("failed to close recording", "error", err)
		}
	}()

	if err := session.Seek(ctx, d.opts.Offset()); err != nil {
		if fe := newFrameError(FailureSeek, 0, err); d.handle(fe) == resultAbortRun {
			return d.abort(res, fe)
		}
	}

	cal, err := session.Calibration(ctx)
	if err != nil {
		return d.abort(res, newFrameError(FailureCalibration, 0, err))
	}
	tc, err := transform.NewDepthColorTransform(cal)
	if err != nil {
		return d.abort(res, newFrameError(FailureCalibration, 0, err))
	}
	defer goutils.UncheckedErrorFunc(tc.Close)

	if err := os.MkdirAll(d.opts.OutputDir, 0o750); err != nil {
		return d.abort(res, newFrameError(FailureWrite, 0, err))
	}

	fp := &frameProcessor{opts: &d.opts, tc: tc}
	frame := 1
	consecutiveFetchFailures := 0
	for {
		if err := ctx.Err(); err != nil {
			d.logger.Warnw("run canceled", "frames", res.FramesProcessed)
			return StatusFailed, res, err
		}
		if d.opts.MaxFrames > 0 && res.FramesProcessed >= d.opts.MaxFrames {
			d.logger.Infow("reached frame limit", "max_frames", d.opts.MaxFrames)
			break
		}

		capture, err := session.NextCapture(ctx)
		if errors.Is(err, recording.ErrEndOfStream) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			res.FetchFailures++
			consecutiveFetchFailures++
			fe := newFrameError(FailureFetch, frame, err)
			if consecutiveFetchFailures > maxConsecutiveFetchFailures {
				fe.Err = errors.Wrapf(err, "%d fetch failures in a row", consecutiveFetchFailures)
				return d.abort(res, fe)
			}
			if d.handle(fe) == resultAbortRun {
				return d.abort(res, fe)
			}
			continue
		}
		consecutiveFetchFailures = 0
		res.LastTimestamp = capture.Timestamp

		written, fe := fp.process(capture, frame)
		res.Artifacts = append(res.Artifacts, written...)
		if fe != nil {
			if d.handle(fe) == resultAbortRun {
				return d.abort(res, fe)
			}
			res.FramesSkipped++
			continue
		}
		d.logger.Infow("wrote frame", "frame", frame, "timestamp", res.LastTimestamp, "artifacts", len(written))
		res.FramesProcessed++
		frame++
	}

	d.logger.Infow("run finished", "frames", res.FramesProcessed, "skipped", res.FramesSkipped,
		"fetch_failures", res.FetchFailures, "artifacts", len(res.Artifacts))
	return StatusOK, res, nil
}

// handle logs a failure and returns what to do about it.
func (d *Driver) handle(fe *FrameError) stepResult {
	r := fe.result()
	if r != resultAbortRun {
		d.logger.Warnw("skipping", "kind", fe.Kind, "frame", fe.Frame, "action", r, "error", fe.Err)
	}
	return r
}

func (d *Driver) abort(res *Result, fe *FrameError) (Status, *Result, error) {
	d.logger.Errorw("aborting run", "kind", fe.Kind, "frame", fe.Frame, "error", fe.Err,
		"frames", res.FramesProcessed)
	return StatusFailed, res, fe
}
