package playback

import (
	"fmt"
)

// FailureKind classifies what went wrong in a step of a run.
type FailureKind int

// Failure kinds.
const (
	FailureOpen FailureKind = iota
	FailureSeek
	FailureFetch
	FailureCalibration
	FailureFormatMismatch
	FailureMissingSample
	FailureDecode
	FailureBufferAllocation
	FailureTransform
	FailureWrite
)

var failureNames = map[FailureKind]string{
	FailureOpen:             "open",
	FailureSeek:             "seek",
	FailureFetch:            "fetch",
	FailureCalibration:      "calibration",
	FailureFormatMismatch:   "format-mismatch",
	FailureMissingSample:    "missing-sample",
	FailureDecode:           "decode",
	FailureBufferAllocation: "buffer-allocation",
	FailureTransform:        "transform",
	FailureWrite:            "write",
}

func (k FailureKind) String() string {
	if name, ok := failureNames[k]; ok {
		return name
	}
	return fmt.Sprintf("FailureKind(%d)", int(k))
}

// stepResult is what the driver does after a step.
type stepResult int

const (
	resultOK stepResult = iota
	resultSkipFrame
	resultAbortRun
)

func (r stepResult) String() string {
	switch r {
	case resultOK:
		return "ok"
	case resultSkipFrame:
		return "skip-frame"
	case resultAbortRun:
		return "abort-run"
	default:
		return fmt.Sprintf("stepResult(%d)", int(r))
	}
}

// failurePolicy maps each failure to what the driver does about it.
var failurePolicy = map[FailureKind]stepResult{
	FailureOpen:             resultAbortRun,
	FailureSeek:             resultSkipFrame,
	FailureFetch:            resultSkipFrame,
	FailureCalibration:      resultAbortRun,
	FailureFormatMismatch:   resultSkipFrame,
	FailureMissingSample:    resultSkipFrame,
	FailureDecode:           resultSkipFrame,
	FailureBufferAllocation: resultAbortRun,
	FailureTransform:        resultAbortRun,
	FailureWrite:            resultAbortRun,
}

// maxConsecutiveFetchFailures is how many fetch failures in a row are tolerated.
const maxConsecutiveFetchFailures = 5

// FrameError is a failure of one step of a run. Frame is the 1-based index the frame would
// have been written as, or 0 for failures outside the frame loop.
type FrameError struct {
	Kind  FailureKind
	Frame int
	Err   error
}

func (e *FrameError) Error() string {
	if e.Frame == 0 {
		return fmt.Sprintf("%s failed: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("frame %d: %s failed: %v", e.Frame, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *FrameError) Unwrap() error {
	return e.Err
}

func newFrameError(kind FailureKind, frame int, err error) *FrameError {
	return &FrameError{Kind: kind, Frame: frame, Err: err}
}

// result looks up what to do about the failure.
func (e *FrameError) result() stepResult {
	if r, ok := failurePolicy[e.Kind]; ok {
		return r
	}
	return resultAbortRun
}
