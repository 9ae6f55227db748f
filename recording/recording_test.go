package recording

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/rgbdkit/playback/logging"
	"github.com/rgbdkit/playback/rimage"
	"github.com/rgbdkit/playback/rimage/transform"
)

type stubSession struct {
	path string
}

func (s *stubSession) Seek(ctx context.Context, offset time.Duration) error { return nil }

func (s *stubSession) NextCapture(ctx context.Context) (*Capture, error) { return nil, ErrEndOfStream }

func (s *stubSession) Calibration(ctx context.Context) (*transform.Calibration, error) {
	return nil, transform.NewNoIntrinsicsError("stub")
}

func (s *stubSession) Close() error { return nil }

func init() {
	RegisterBackend("stub", Backend{
		Match: func(path string, info os.FileInfo) bool {
			return !info.IsDir() && filepath.Ext(path) == ".stub"
		},
		Open: func(ctx context.Context, path string, logger logging.Logger) (Session, error) {
			return &stubSession{path: path}, nil
		},
	})
}

func TestOpen(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()

	t.Run("matching backend", func(t *testing.T) {
		fn := filepath.Join(dir, "session.stub")
		test.That(t, os.WriteFile(fn, []byte("x"), 0o600), test.ShouldBeNil)
		session, err := Open(context.Background(), fn, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, session.(*stubSession).path, test.ShouldEqual, fn)
		_, err = session.NextCapture(context.Background())
		test.That(t, err, test.ShouldBeError, ErrEndOfStream)
		test.That(t, session.Close(), test.ShouldBeNil)
	})

	t.Run("no backend", func(t *testing.T) {
		fn := filepath.Join(dir, "session.unknown")
		test.That(t, os.WriteFile(fn, []byte("x"), 0o600), test.ShouldBeNil)
		_, err := Open(context.Background(), fn, logger)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, errors.Is(err, ErrUnsupportedRecording), test.ShouldBeTrue)
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := Open(context.Background(), filepath.Join(dir, "nope.stub"), logger)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, errors.Is(err, os.ErrNotExist), test.ShouldBeTrue)
	})
}

func TestRegisterBackend(t *testing.T) {
	test.That(t, RegisteredBackends(), test.ShouldContain, "stub")
	test.That(t, func() {
		RegisterBackend("stub", Backend{
			Match: func(string, os.FileInfo) bool { return false },
			Open:  func(context.Context, string, logging.Logger) (Session, error) { return nil, nil },
		})
	}, test.ShouldPanic)
	test.That(t, func() { RegisterBackend("incomplete", Backend{}) }, test.ShouldPanic)
}

func TestCaptureRelease(t *testing.T) {
	before := rimage.LiveBuffers()
	depth, err := rimage.NewBuffer(rimage.FormatDepth16, 4, 4, 0)
	test.That(t, err, test.ShouldBeNil)
	capture := &Capture{Depth: depth}
	test.That(t, rimage.LiveBuffers(), test.ShouldEqual, before+1)
	capture.Release()
	capture.Release()
	test.That(t, depth.Released(), test.ShouldBeTrue)
	test.That(t, rimage.LiveBuffers(), test.ShouldEqual, before)

	var nilCapture *Capture
	nilCapture.Release()
}
