package transform

import (
	"math"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/rgbdkit/playback/rimage"
)

// ErrTransformClosed is returned by a DepthColorTransform after Close.
var ErrTransformClosed = errors.New("transform context is closed")

// maxSplat bounds the square each depth pixel covers when drawn into the color camera.
const maxSplat = 8

// DepthColorTransform reprojects images between the depth and color cameras of a Calibration.
// It caches the undistorted ray of every pixel of each camera, so it should be built once and
// reused for every frame of a recording.
type DepthColorTransform struct {
	mu     sync.Mutex
	cal    Calibration
	d2c    Extrinsics
	rays   map[CameraType][]r3.Vector
	closed bool
}

// NewDepthColorTransform validates the calibration and builds a transform context.
func NewDepthColorTransform(cal *Calibration) (*DepthColorTransform, error) {
	if err := cal.CheckValid(); err != nil {
		return nil, errors.Wrap(err, "cannot build transform context")
	}
	return &DepthColorTransform{
		cal:  *cal,
		d2c:  cal.ExtrinsicD2C,
		rays: map[CameraType][]r3.Vector{},
	}, nil
}

// Calibration returns the calibration the context was built from.
func (t *DepthColorTransform) Calibration() Calibration {
	return t.cal
}

// Close drops the cached ray tables. Close is idempotent.
func (t *DepthColorTransform) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.rays = nil
	return nil
}

// raysFor returns, for each pixel of the camera, the point at z=1 along its undistorted ray.
func (t *DepthColorTransform) raysFor(c CameraType) ([]r3.Vector, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTransformClosed
	}
	if rays, ok := t.rays[c]; ok {
		return rays, nil
	}
	model := t.cal.Camera(c)
	rays := make([]r3.Vector, model.Width*model.Height)
	for v := 0; v < model.Height; v++ {
		for u := 0; u < model.Width; u++ {
			x, y := model.Ray(float64(u), float64(v))
			rays[v*model.Width+u] = r3.Vector{X: x, Y: y, Z: 1}
		}
	}
	t.rays[c] = rays
	return rays, nil
}

func checkSize(buf *rimage.Buffer, format rimage.Format, model *PinholeCameraModel, c CameraType) error {
	if err := buf.CheckFormat(format); err != nil {
		return err
	}
	if buf.Width() != model.Width || buf.Height() != model.Height {
		return errors.Errorf("%v image is %dx%d but the %v camera is calibrated for %dx%d",
			format, buf.Width(), buf.Height(), c, model.Width, model.Height)
	}
	return nil
}

// DepthImageToColorCamera draws a depth image into the geometry of the color camera. Each output
// pixel holds the depth, along the color camera's z axis, of the nearest surface that projects
// onto it, or 0 where nothing does.
func (t *DepthColorTransform) DepthImageToColorCamera(depth *rimage.Buffer) (*rimage.Buffer, error) {
	depthModel, colorModel := &t.cal.DepthCamera, &t.cal.ColorCamera
	if err := checkSize(depth, rimage.FormatDepth16, depthModel, DepthCamera); err != nil {
		return nil, err
	}
	rays, err := t.raysFor(DepthCamera)
	if err != nil {
		return nil, err
	}
	out, err := rimage.NewBuffer(rimage.FormatDepth16, colorModel.Width, colorModel.Height, 0)
	if err != nil {
		return nil, err
	}

	// fxRatio is how many color pixels one depth pixel spans at equal distance.
	fxRatio := colorModel.Fx / depthModel.Fx
	for v := 0; v < depthModel.Height; v++ {
		for u := 0; u < depthModel.Width; u++ {
			d := float64(depth.Depth16At(u, v))
			if d == 0 {
				continue
			}
			ray := rays[v*depthModel.Width+u]
			pt := t.d2c.TransformPointToPoint(ray.X*d, ray.Y*d, d)
			px, py, ok := colorModel.Project(pt)
			if !ok {
				continue
			}
			z := math.Round(pt.Z)
			if z <= 0 || z > float64(rimage.MaxDepth) {
				continue
			}
			half := int(math.Min(fxRatio*d/pt.Z, maxSplat) / 2)
			cx, cy := int(math.Round(px)), int(math.Round(py))
			for y := cy - half; y <= cy+half; y++ {
				if y < 0 || y >= colorModel.Height {
					continue
				}
				for x := cx - half; x <= cx+half; x++ {
					if x < 0 || x >= colorModel.Width {
						continue
					}
					if cur := out.Depth16At(x, y); cur == 0 || uint16(z) < cur {
						out.SetDepth16(x, y, uint16(z))
					}
				}
			}
		}
	}
	return out, nil
}

// ColorImageToDepthCamera samples a BGRA color image at the pixel where each valid depth pixel
// lands in the color camera. Pixels without depth, or landing outside the color image, are
// transparent black.
func (t *DepthColorTransform) ColorImageToDepthCamera(depth, color *rimage.Buffer) (*rimage.Buffer, error) {
	depthModel, colorModel := &t.cal.DepthCamera, &t.cal.ColorCamera
	if err := checkSize(depth, rimage.FormatDepth16, depthModel, DepthCamera); err != nil {
		return nil, err
	}
	if err := checkSize(color, rimage.FormatColorBGRA32, colorModel, ColorCamera); err != nil {
		return nil, err
	}
	rays, err := t.raysFor(DepthCamera)
	if err != nil {
		return nil, err
	}
	out, err := rimage.NewBuffer(rimage.FormatColorBGRA32, depthModel.Width, depthModel.Height, 0)
	if err != nil {
		return nil, err
	}

	for v := 0; v < depthModel.Height; v++ {
		for u := 0; u < depthModel.Width; u++ {
			d := float64(depth.Depth16At(u, v))
			if d == 0 {
				continue
			}
			ray := rays[v*depthModel.Width+u]
			px, py, ok := colorModel.Project(t.d2c.TransformPointToPoint(ray.X*d, ray.Y*d, d))
			if !ok {
				continue
			}
			x, y := int(math.Round(px)), int(math.Round(py))
			if x < 0 || y < 0 || x >= colorModel.Width || y >= colorModel.Height {
				continue
			}
			b, g, r, a := color.BGRAAt(x, y)
			out.SetBGRA(u, v, b, g, r, a)
		}
	}
	return out, nil
}

// DepthImageToPointCloud unprojects a depth image taken in the geometry of camera c into a
// FormatCustom buffer of x, y, z millimeters in that camera's frame. Pixels without depth are
// (0, 0, 0).
func (t *DepthColorTransform) DepthImageToPointCloud(depth *rimage.Buffer, c CameraType) (*rimage.Buffer, error) {
	model := t.cal.Camera(c)
	if err := checkSize(depth, rimage.FormatDepth16, model, c); err != nil {
		return nil, err
	}
	rays, err := t.raysFor(c)
	if err != nil {
		return nil, err
	}
	out, err := rimage.NewBuffer(rimage.FormatCustom, model.Width, model.Height, 0)
	if err != nil {
		return nil, err
	}
	for v := 0; v < model.Height; v++ {
		for u := 0; u < model.Width; u++ {
			d := float64(depth.Depth16At(u, v))
			if d == 0 {
				continue
			}
			ray := rays[v*model.Width+u]
			out.SetXYZ(u, v, clampInt16(ray.X*d), clampInt16(ray.Y*d), clampInt16(d))
		}
	}
	return out, nil
}

func clampInt16(f float64) int16 {
	f = math.Round(f)
	if f > math.MaxInt16 {
		return math.MaxInt16
	}
	if f < math.MinInt16 {
		return math.MinInt16
	}
	return int16(f)
}
