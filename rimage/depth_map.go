package rimage

import (
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"
)

// Depth is the depth in millimeters. 0 means no reading.
type Depth uint16

// MaxDepth is the largest representable depth.
const MaxDepth = Depth(math.MaxUint16)

// DepthMap is a 16 bit single channel image of depths.
type DepthMap struct {
	width  int
	height int

	data []Depth
}

// NewEmptyDepthMap returns an all zero depth map of the given size.
func NewEmptyDepthMap(width, height int) *DepthMap {
	return &DepthMap{
		width:  width,
		height: height,
		data:   make([]Depth, width*height),
	}
}

func (dm *DepthMap) kxy(x, y int) int {
	return (y * dm.width) + x
}

// Width returns the width of the depth map.
func (dm *DepthMap) Width() int {
	return dm.width
}

// Height returns the height of the depth map.
func (dm *DepthMap) Height() int {
	return dm.height
}

// Contains reports whether (x, y) is in bounds.
func (dm *DepthMap) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < dm.width && y < dm.height
}

// Get returns the depth at the point.
func (dm *DepthMap) Get(p image.Point) Depth {
	return dm.data[dm.kxy(p.X, p.Y)]
}

// GetDepth returns the depth at (x, y).
func (dm *DepthMap) GetDepth(x, y int) Depth {
	return dm.data[dm.kxy(x, y)]
}

// Set sets the depth at (x, y).
func (dm *DepthMap) Set(x, y int, val Depth) {
	dm.data[dm.kxy(x, y)] = val
}

// MinMax returns the smallest and largest non-zero depths.
func (dm *DepthMap) MinMax() (Depth, Depth) {
	low, high := MaxDepth, Depth(0)
	for _, d := range dm.data {
		if d == 0 {
			continue
		}
		if d < low {
			low = d
		}
		if d > high {
			high = d
		}
	}
	if high == 0 {
		return 0, 0
	}
	return low, high
}

// ColorModel returns the 16 bit gray model.
func (dm *DepthMap) ColorModel() color.Model {
	return color.Gray16Model
}

// Bounds returns the rectangle dimensions of the depth map.
func (dm *DepthMap) Bounds() image.Rectangle {
	return image.Rect(0, 0, dm.width, dm.height)
}

// At returns the depth as a color.Gray16.
func (dm *DepthMap) At(x, y int) color.Color {
	return color.Gray16{uint16(dm.GetDepth(x, y))}
}

// ToGray16 converts the depth map to an image.Gray16 with the same pixel values.
func (dm *DepthMap) ToGray16() *image.Gray16 {
	img := image.NewGray16(dm.Bounds())
	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			img.SetGray16(x, y, color.Gray16{uint16(dm.GetDepth(x, y))})
		}
	}
	return img
}

// DepthMapFromBuffer copies a FormatDepth16 buffer into a depth map, honoring its stride.
func DepthMapFromBuffer(buf *Buffer) (*DepthMap, error) {
	if err := buf.CheckFormat(FormatDepth16); err != nil {
		return nil, err
	}
	dm := NewEmptyDepthMap(buf.Width(), buf.Height())
	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			dm.Set(x, y, Depth(buf.Depth16At(x, y)))
		}
	}
	return dm, nil
}

// ToBuffer copies the depth map into a new FormatDepth16 buffer.
func (dm *DepthMap) ToBuffer() (*Buffer, error) {
	buf, err := NewBuffer(FormatDepth16, dm.width, dm.height, 0)
	if err != nil {
		return nil, err
	}
	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			buf.SetDepth16(x, y, uint16(dm.GetDepth(x, y)))
		}
	}
	return buf, nil
}

// ConvertImageToDepthMap takes a 16 bit gray image and returns a depth map. Any other image
// type is rejected since 8 bit data has lost its depth precision.
func ConvertImageToDepthMap(img image.Image) (*DepthMap, error) {
	switch ii := img.(type) {
	case *DepthMap:
		return ii, nil
	case *image.Gray16:
		b := ii.Bounds()
		dm := NewEmptyDepthMap(b.Dx(), b.Dy())
		for y := 0; y < dm.height; y++ {
			for x := 0; x < dm.width; x++ {
				dm.Set(x, y, Depth(ii.Gray16At(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
		return dm, nil
	default:
		return nil, errors.Errorf("don't know how to make DepthMap from %T", img)
	}
}
