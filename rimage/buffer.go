package rimage

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Format is the pixel layout of a Buffer.
type Format int

const (
	// FormatUnknown is the zero Format.
	FormatUnknown Format = iota
	// FormatColorMJPG is a single compressed JPEG payload.
	FormatColorMJPG
	// FormatColorBGRA32 is 8 bits each of blue, green, red and alpha.
	FormatColorBGRA32
	// FormatDepth16 is a little endian uint16 depth in millimeters.
	FormatDepth16
	// FormatCustom is three little endian int16 values (x, y, z in millimeters) per pixel.
	FormatCustom
)

func (f Format) String() string {
	switch f {
	case FormatColorMJPG:
		return "MJPG"
	case FormatColorBGRA32:
		return "BGRA32"
	case FormatDepth16:
		return "DEPTH16"
	case FormatCustom:
		return "CUSTOM"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// BytesPerPixel returns the fixed pixel size of the format, or 0 for compressed formats.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatColorBGRA32:
		return 4
	case FormatDepth16:
		return 2
	case FormatCustom:
		return 6
	default:
		return 0
	}
}

// ErrReleased is returned when a released Buffer is used.
var ErrReleased = errors.New("image buffer already released")

var liveBuffers atomic.Int64

// LiveBuffers returns how many Buffers have been created and not yet released.
func LiveBuffers() int64 {
	return liveBuffers.Load()
}

// A Buffer is a rectangular pixel array with an explicit stride and Format. A Buffer must be
// released by whoever created or received it.
type Buffer struct {
	format        Format
	width, height int
	stride        int
	data          []byte
	released      atomic.Bool
}

// NewBuffer allocates a zeroed buffer. A zero stride means rows are tightly packed.
func NewBuffer(format Format, width, height, stride int) (*Buffer, error) {
	bpp := format.BytesPerPixel()
	if bpp == 0 {
		return nil, errors.Errorf("cannot allocate a buffer of format %v", format)
	}
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid buffer dimensions %dx%d", width, height)
	}
	if stride == 0 {
		stride = width * bpp
	}
	if stride < width*bpp {
		return nil, errors.Errorf("stride %d too small for %d pixels of format %v", stride, width, format)
	}
	return newBuffer(format, width, height, stride, make([]byte, stride*height)), nil
}

// NewBufferFromBytes wraps existing bytes without copying. Compressed formats accept any
// non-empty payload; fixed size formats require stride*height bytes.
func NewBufferFromBytes(format Format, width, height, stride int, data []byte) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid buffer dimensions %dx%d", width, height)
	}
	bpp := format.BytesPerPixel()
	if bpp == 0 {
		if len(data) == 0 {
			return nil, errors.Errorf("empty %v payload", format)
		}
		return newBuffer(format, width, height, stride, data), nil
	}
	if stride == 0 {
		stride = width * bpp
	}
	if stride < width*bpp {
		return nil, errors.Errorf("stride %d too small for %d pixels of format %v", stride, width, format)
	}
	if len(data) < stride*height {
		return nil, errors.Errorf("%v buffer needs %d bytes, got %d", format, stride*height, len(data))
	}
	return newBuffer(format, width, height, stride, data), nil
}

func newBuffer(format Format, width, height, stride int, data []byte) *Buffer {
	liveBuffers.Add(1)
	return &Buffer{format: format, width: width, height: height, stride: stride, data: data}
}

// Format returns the pixel format.
func (b *Buffer) Format() Format {
	return b.format
}

// Width returns the width in pixels, or 0 once released.
func (b *Buffer) Width() int {
	if b.Released() {
		return 0
	}
	return b.width
}

// Height returns the height in pixels, or 0 once released.
func (b *Buffer) Height() int {
	if b.Released() {
		return 0
	}
	return b.height
}

// Stride returns the size of a row in bytes, or 0 once released.
func (b *Buffer) Stride() int {
	if b.Released() {
		return 0
	}
	return b.stride
}

// Bytes returns the raw backing bytes, or nil once released.
func (b *Buffer) Bytes() []byte {
	if b.Released() {
		return nil
	}
	return b.data
}

// Released reports whether Release has been called.
func (b *Buffer) Released() bool {
	return b.released.Load()
}

// Release frees the buffer. It is safe to call more than once and on a nil Buffer.
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	if b.released.CompareAndSwap(false, true) {
		b.data = nil
		liveBuffers.Add(-1)
	}
}

// pixel returns the n bytes of the pixel at (x, y). It returns nil once the buffer is released
// or when (x, y) is outside it, so reads see zero values and writes are dropped.
func (b *Buffer) pixel(x, y, n int) []byte {
	if b.Released() || x < 0 || y < 0 || x >= b.width || y >= b.height {
		return nil
	}
	i := y*b.stride + x*b.format.BytesPerPixel()
	return b.data[i : i+n]
}

// Depth16At returns the depth at (x, y) of a FormatDepth16 buffer.
func (b *Buffer) Depth16At(x, y int) uint16 {
	p := b.pixel(x, y, 2)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(p)
}

// SetDepth16 sets the depth at (x, y) of a FormatDepth16 buffer.
func (b *Buffer) SetDepth16(x, y int, v uint16) {
	if p := b.pixel(x, y, 2); p != nil {
		binary.LittleEndian.PutUint16(p, v)
	}
}

// BGRAAt returns the color at (x, y) of a FormatColorBGRA32 buffer.
func (b *Buffer) BGRAAt(x, y int) (blue, green, red, alpha uint8) {
	p := b.pixel(x, y, 4)
	if p == nil {
		return 0, 0, 0, 0
	}
	return p[0], p[1], p[2], p[3]
}

// SetBGRA sets the color at (x, y) of a FormatColorBGRA32 buffer.
func (b *Buffer) SetBGRA(x, y int, blue, green, red, alpha uint8) {
	if p := b.pixel(x, y, 4); p != nil {
		p[0], p[1], p[2], p[3] = blue, green, red, alpha
	}
}

// XYZAt returns the point at (x, y) of a FormatCustom buffer.
func (b *Buffer) XYZAt(x, y int) (int16, int16, int16) {
	p := b.pixel(x, y, 6)
	if p == nil {
		return 0, 0, 0
	}
	return int16(binary.LittleEndian.Uint16(p[0:2])),
		int16(binary.LittleEndian.Uint16(p[2:4])),
		int16(binary.LittleEndian.Uint16(p[4:6]))
}

// SetXYZ sets the point at (x, y) of a FormatCustom buffer.
func (b *Buffer) SetXYZ(x, y int, px, py, pz int16) {
	if p := b.pixel(x, y, 6); p != nil {
		binary.LittleEndian.PutUint16(p[0:2], uint16(px))
		binary.LittleEndian.PutUint16(p[2:4], uint16(py))
		binary.LittleEndian.PutUint16(p[4:6], uint16(pz))
	}
}

// CheckFormat returns an error unless the buffer is live and of the given format.
func (b *Buffer) CheckFormat(want Format) error {
	if b == nil {
		return errors.Errorf("missing %v buffer", want)
	}
	if b.Released() {
		return ErrReleased
	}
	if b.format != want {
		return errors.Errorf("expected %v buffer, got %v", want, b.format)
	}
	return nil
}
