// Package recording opens recorded depth + color capture sessions and iterates their frames.
package recording

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/rgbdkit/playback/logging"
	"github.com/rgbdkit/playback/rimage"
	"github.com/rgbdkit/playback/rimage/transform"
)

var (
	// ErrEndOfStream is returned by NextCapture once every capture has been read.
	ErrEndOfStream = errors.New("end of recording")
	// ErrClosed is returned by any call on a closed session.
	ErrClosed = errors.New("recording session is closed")
	// ErrUnsupportedRecording is returned by Open when no backend recognizes the path.
	ErrUnsupportedRecording = errors.New("unsupported recording")
)

// A Capture is one depth sample and one color sample taken together. Either sample may be
// nil when the device dropped it. The receiver of a Capture owns its buffers.
type Capture struct {
	Depth     *rimage.Buffer
	Color     *rimage.Buffer
	Timestamp time.Duration
}

// Release releases both samples. It is safe to call more than once.
func (c *Capture) Release() {
	if c == nil {
		return
	}
	c.Depth.Release()
	c.Color.Release()
}

// A Session is an opened recording with a read cursor.
type Session interface {
	// Seek moves the cursor to the first capture at or after offset from the start of the
	// recording.
	Seek(ctx context.Context, offset time.Duration) error
	// NextCapture returns the capture under the cursor and advances it. It returns
	// ErrEndOfStream when there are no captures left.
	NextCapture(ctx context.Context) (*Capture, error)
	// Calibration returns the calibration the recording was made with.
	Calibration(ctx context.Context) (*transform.Calibration, error)
	Close() error
}

// An Opener opens the recording at path.
type Opener func(ctx context.Context, path string, logger logging.Logger) (Session, error)

// A Backend knows how to open one kind of recording.
type Backend struct {
	// Match reports whether the backend can open the recording at path.
	Match func(path string, info os.FileInfo) bool
	Open  Opener
}

var (
	backendsMu sync.RWMutex
	backends   = map[string]Backend{}
)

// RegisterBackend registers a recording backend under a unique name.
func RegisterBackend(name string, backend Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if _, old := backends[name]; old {
		panic(errors.Errorf("trying to register two recording backends with same name %s", name))
	}
	if backend.Match == nil || backend.Open == nil {
		panic(errors.Errorf("recording backend %s needs both Match and Open", name))
	}
	backends[name] = backend
}

// RegisteredBackends returns the names of all registered backends, sorted.
func RegisteredBackends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	return sortedBackendNames()
}

// sortedBackendNames must be called with backendsMu held.
func sortedBackendNames() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupBackend(path string, info os.FileInfo) (string, Backend, bool) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	for _, name := range sortedBackendNames() {
		if backends[name].Match(path, info) {
			return name, backends[name], true
		}
	}
	return "", Backend{}, false
}

// Open opens the recording at path with the first registered backend, by name, that
// matches it.
func Open(ctx context.Context, path string, logger logging.Logger) (Session, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open recording %q", path)
	}
	name, backend, ok := lookupBackend(path, info)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedRecording, "%q", path)
	}
	logger.Debugw("opening recording", "path", path, "backend", name)
	session, err := backend.Open(ctx, path, logger.Sublogger(name))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open recording %q", path)
	}
	return session, nil
}
