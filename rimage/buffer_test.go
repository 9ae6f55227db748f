package rimage

import (
	"testing"

	"go.viam.com/test"
)

func TestNewBuffer(t *testing.T) {
	buf, err := NewBuffer(FormatDepth16, 4, 3, 0)
	test.That(t, err, test.ShouldBeNil)
	defer buf.Release()
	test.That(t, buf.Stride(), test.ShouldEqual, 8)
	test.That(t, len(buf.Bytes()), test.ShouldEqual, 24)

	padded, err := NewBuffer(FormatColorBGRA32, 3, 2, 16)
	test.That(t, err, test.ShouldBeNil)
	defer padded.Release()
	padded.SetBGRA(2, 1, 1, 2, 3, 4)
	b, g, r, a := padded.BGRAAt(2, 1)
	test.That(t, []uint8{b, g, r, a}, test.ShouldResemble, []uint8{1, 2, 3, 4})
	test.That(t, padded.Bytes()[16+8:16+12], test.ShouldResemble, []byte{1, 2, 3, 4})

	_, err = NewBuffer(FormatColorBGRA32, 3, 2, 11)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewBuffer(FormatDepth16, 0, 2, 0)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewBuffer(FormatColorMJPG, 2, 2, 0)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestBufferFromBytes(t *testing.T) {
	_, err := NewBufferFromBytes(FormatDepth16, 2, 2, 0, make([]byte, 7))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewBufferFromBytes(FormatColorMJPG, 2, 2, 0, nil)
	test.That(t, err, test.ShouldNotBeNil)

	buf, err := NewBufferFromBytes(FormatColorMJPG, 2, 2, 0, []byte{0xff, 0xd8})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, buf.CheckFormat(FormatColorMJPG), test.ShouldBeNil)
	test.That(t, buf.CheckFormat(FormatColorBGRA32), test.ShouldNotBeNil)
	buf.Release()
}

func TestBufferRelease(t *testing.T) {
	before := LiveBuffers()
	buf, err := NewBuffer(FormatCustom, 2, 2, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, LiveBuffers(), test.ShouldEqual, before+1)

	buf.SetXYZ(1, 1, -5, 7, 1200)
	x, y, z := buf.XYZAt(1, 1)
	test.That(t, []int16{x, y, z}, test.ShouldResemble, []int16{-5, 7, 1200})

	buf.Release()
	buf.Release()
	test.That(t, LiveBuffers(), test.ShouldEqual, before)
	test.That(t, buf.Released(), test.ShouldBeTrue)
	test.That(t, buf.Bytes(), test.ShouldBeNil)
	test.That(t, buf.CheckFormat(FormatCustom), test.ShouldBeError, ErrReleased)

	var nilBuf *Buffer
	nilBuf.Release()
	test.That(t, nilBuf.CheckFormat(FormatDepth16), test.ShouldNotBeNil)
}

func TestReleasedBufferAccessors(t *testing.T) {
	depth, err := NewBuffer(FormatDepth16, 4, 3, 0)
	test.That(t, err, test.ShouldBeNil)
	depth.SetDepth16(1, 1, 900)
	test.That(t, depth.Depth16At(1, 1), test.ShouldEqual, 900)
	// outside the buffer reads zero and writes nothing
	depth.SetDepth16(4, 0, 7)
	test.That(t, depth.Depth16At(4, 0), test.ShouldEqual, 0)
	test.That(t, depth.Depth16At(-1, 0), test.ShouldEqual, 0)
	depth.Release()

	test.That(t, depth.Width(), test.ShouldEqual, 0)
	test.That(t, depth.Height(), test.ShouldEqual, 0)
	test.That(t, depth.Stride(), test.ShouldEqual, 0)
	test.That(t, depth.Depth16At(1, 1), test.ShouldEqual, 0)
	depth.SetDepth16(1, 1, 5)
	test.That(t, depth.Depth16At(1, 1), test.ShouldEqual, 0)

	color, err := NewBuffer(FormatColorBGRA32, 2, 2, 0)
	test.That(t, err, test.ShouldBeNil)
	color.SetBGRA(0, 1, 1, 2, 3, 4)
	color.Release()
	b, g, r, a := color.BGRAAt(0, 1)
	test.That(t, []uint8{b, g, r, a}, test.ShouldResemble, []uint8{0, 0, 0, 0})
	color.SetBGRA(0, 1, 1, 2, 3, 4)

	points, err := NewBuffer(FormatCustom, 2, 2, 0)
	test.That(t, err, test.ShouldBeNil)
	points.SetXYZ(1, 0, 1, 2, 3)
	points.Release()
	x, y, z := points.XYZAt(1, 0)
	test.That(t, []int16{x, y, z}, test.ShouldResemble, []int16{0, 0, 0})
	points.SetXYZ(1, 0, 1, 2, 3)
}
