package mkv

import (
	"io"
	"time"
)

// timedFrame is one frame of a track and its presentation time.
type timedFrame struct {
	data []byte
	pts  time.Duration
}

// frameQueue yields the frames of one track in presentation order. peek returns io.EOF once the
// track has no more frames.
type frameQueue interface {
	peek() (*timedFrame, error)
	pop()
}

// nextPair takes the depth and color frames of the next capture off their queues. Frames whose
// times are within tolerance of each other form one capture. Otherwise the earlier frame is a
// capture of its own and the later one waits for the next call, so a frame dropped from one
// track does not shift the pairing of the frames after it.
//
// It returns io.EOF when both tracks are exhausted.
func nextPair(depth, color frameQueue, tolerance time.Duration) (*timedFrame, *timedFrame, error) {
	d, depthErr := depth.peek()
	c, colorErr := color.peek()
	if err := ignoreEOF(depthErr); err != nil {
		return nil, nil, err
	}
	if err := ignoreEOF(colorErr); err != nil {
		return nil, nil, err
	}

	switch {
	case d == nil && c == nil:
		return nil, nil, io.EOF
	case c == nil || (d != nil && d.pts+tolerance < c.pts):
		depth.pop()
		return d, nil, nil
	case d == nil || c.pts+tolerance < d.pts:
		color.pop()
		return nil, c, nil
	default:
		depth.pop()
		color.pop()
		return d, c, nil
	}
}
