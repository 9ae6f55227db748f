package pointcloud

import (
	"image/color"

	"github.com/pkg/errors"

	"github.com/rgbdkit/playback/rimage"
)

// NewFromXYZBuffer builds a cloud from a FormatCustom buffer of x, y, z millimeters. Pixels with
// z == 0 carry no point. If colors is non-nil it must be a BGRA buffer of the same size; each
// point takes the color of its pixel, and pixels whose color is fully transparent are dropped
// since they had no color sample.
func NewFromXYZBuffer(points, colors *rimage.Buffer) (PointCloud, error) {
	if err := points.CheckFormat(rimage.FormatCustom); err != nil {
		return nil, err
	}
	if colors != nil {
		if err := colors.CheckFormat(rimage.FormatColorBGRA32); err != nil {
			return nil, err
		}
		if colors.Width() != points.Width() || colors.Height() != points.Height() {
			return nil, errors.Errorf("point image is %dx%d but color image is %dx%d",
				points.Width(), points.Height(), colors.Width(), colors.Height())
		}
	}

	pc := NewWithPrealloc(points.Width() * points.Height() / 2)
	for y := 0; y < points.Height(); y++ {
		for x := 0; x < points.Width(); x++ {
			px, py, pz := points.XYZAt(x, y)
			if pz == 0 {
				continue
			}
			var d Data
			if colors != nil {
				b, g, r, a := colors.BGRAAt(x, y)
				if a == 0 {
					continue
				}
				d = NewColoredData(color.NRGBA{R: r, G: g, B: b, A: 255})
			} else {
				d = NewBasicData()
			}
			if err := pc.Set(NewVector(float64(px), float64(py), float64(pz)), d); err != nil {
				return nil, err
			}
		}
	}
	return pc, nil
}
