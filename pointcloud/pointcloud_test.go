package pointcloud

import (
	"bytes"
	"image/color"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/rgbdkit/playback/rimage"
)

func makeTestCloud(t *testing.T, colored bool) PointCloud {
	t.Helper()
	pc := New()
	pts := []r3.Vector{
		{X: 0, Y: 0, Z: 1000},
		{X: -12, Y: 34, Z: 567},
		{X: 1500, Y: -250, Z: 3000},
	}
	for i, p := range pts {
		var d Data = NewBasicData()
		if colored {
			d = NewColoredData(color.NRGBA{R: uint8(10 * i), G: 200, B: uint8(255 - i), A: 255})
		}
		test.That(t, pc.Set(p, d), test.ShouldBeNil)
	}
	return pc
}

func assertSameCloud(t *testing.T, got, want PointCloud) {
	t.Helper()
	test.That(t, got.Size(), test.ShouldEqual, want.Size())
	test.That(t, got.MetaData().HasColor, test.ShouldEqual, want.MetaData().HasColor)
	want.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		gd, ok := got.At(p.X, p.Y, p.Z)
		test.That(t, ok, test.ShouldBeTrue)
		if d.HasColor() {
			r, g, b := d.RGB255()
			gr, gg, gb := gd.RGB255()
			test.That(t, []uint8{gr, gg, gb}, test.ShouldResemble, []uint8{r, g, b})
		}
		return true
	})
}

func TestBasicPointCloud(t *testing.T) {
	pc := New()
	test.That(t, pc.Size(), test.ShouldEqual, 0)

	test.That(t, pc.Set(NewVector(1, 2, 3), NewValueData(5)), test.ShouldBeNil)
	test.That(t, pc.Set(NewVector(-1, 0, 9), NewColoredData(color.NRGBA{1, 2, 3, 255})), test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 2)

	d, ok := pc.At(1, 2, 3)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, d.Value(), test.ShouldEqual, 5)
	_, ok = pc.At(1, 2, 4)
	test.That(t, ok, test.ShouldBeFalse)

	// Same position replaces.
	test.That(t, pc.Set(NewVector(1, 2, 3), NewValueData(6)), test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 2)
	d, _ = pc.At(1, 2, 3)
	test.That(t, d.Value(), test.ShouldEqual, 6)

	meta := pc.MetaData()
	test.That(t, meta.HasColor, test.ShouldBeTrue)
	test.That(t, meta.HasValue, test.ShouldBeTrue)
	test.That(t, meta.MinX, test.ShouldEqual, -1.)
	test.That(t, meta.MaxZ, test.ShouldEqual, 9.)

	count := 0
	pc.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		count++
		return false
	})
	test.That(t, count, test.ShouldEqual, 1)

	for i := 0; i < 5; i++ {
		test.That(t, pc.Set(NewVector(float64(i), 100, 100), NewBasicData()), test.ShouldBeNil)
	}
	total := 0
	for batch := 0; batch < 3; batch++ {
		pc.Iterate(3, batch, func(p r3.Vector, d Data) bool {
			total++
			return true
		})
	}
	test.That(t, total, test.ShouldEqual, pc.Size())
}

func TestPLYAscii(t *testing.T) {
	for _, colored := range []bool{true, false} {
		pc := makeTestCloud(t, colored)
		var buf bytes.Buffer
		test.That(t, ToPLY(pc, &buf, PLYAscii), test.ShouldBeNil)
		test.That(t, buf.String(), test.ShouldStartWith, "ply\nformat ascii 1.0\nelement vertex 3\n")
		test.That(t, strings.Contains(buf.String(), "property uchar red"), test.ShouldEqual, colored)

		read, err := ReadPLY(&buf)
		test.That(t, err, test.ShouldBeNil)
		assertSameCloud(t, read, pc)
	}
}

func TestPLYBinary(t *testing.T) {
	pc := makeTestCloud(t, true)
	var buf bytes.Buffer
	test.That(t, ToPLY(pc, &buf, PLYBinary), test.ShouldBeNil)
	header, body, found := strings.Cut(buf.String(), "end_header\n")
	test.That(t, found, test.ShouldBeTrue)
	test.That(t, header, test.ShouldContainSubstring, "format binary_little_endian 1.0")
	test.That(t, len(body), test.ShouldEqual, 3*15)

	enc, err := ParsePLYEncoding("binary")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, enc, test.ShouldEqual, PLYBinary)
	_, err = ParsePLYEncoding("zip")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReadPLYInvalid(t *testing.T) {
	_, err := ReadPLY(strings.NewReader("ply\nformat binary_little_endian 1.0\nend_header\n"))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = ReadPLY(strings.NewReader("ply\nformat ascii 1.0\nelement vertex 2\nproperty float x\n" +
		"property float y\nproperty float z\nend_header\n1 2 3\n"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPCD(t *testing.T) {
	for _, pcdType := range []PCDType{PCDAscii, PCDBinary} {
		for _, colored := range []bool{true, false} {
			pc := makeTestCloud(t, colored)
			var buf bytes.Buffer
			test.That(t, ToPCD(pc, &buf, pcdType), test.ShouldBeNil)
			read, err := ReadPCD(&buf)
			test.That(t, err, test.ShouldBeNil)
			assertSameCloud(t, read, pc)
		}
	}

	var buf bytes.Buffer
	test.That(t, ToPCD(New(), &buf, PCDCompressed), test.ShouldNotBeNil)
	_, err := ReadPCD(strings.NewReader("VERSION .5\n"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	pc := makeTestCloud(t, true)
	for _, name := range []string{"cloud.ply", "cloud.pcd"} {
		for _, binary := range []bool{false, true} {
			path := filepath.Join(dir, name)
			test.That(t, WriteToFile(pc, path, binary), test.ShouldBeNil)
			if binary && filepath.Ext(name) == ExtPLY {
				// Only ascii PLY can be read back.
				continue
			}
			read, err := NewFromFile(path)
			test.That(t, err, test.ShouldBeNil)
			assertSameCloud(t, read, pc)
		}
	}
	test.That(t, WriteToFile(pc, filepath.Join(dir, "cloud.las"), false), test.ShouldNotBeNil)
	_, err := NewFromFile(filepath.Join(dir, "missing.ply"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestNewFromXYZBuffer(t *testing.T) {
	points, err := rimage.NewBuffer(rimage.FormatCustom, 3, 2, 0)
	test.That(t, err, test.ShouldBeNil)
	defer points.Release()
	points.SetXYZ(0, 0, 1, 2, 300)
	points.SetXYZ(1, 0, -4, 5, 600)
	points.SetXYZ(2, 1, 7, 8, 900)

	pc, err := NewFromXYZBuffer(points, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 3)
	test.That(t, pc.MetaData().HasColor, test.ShouldBeFalse)

	colors, err := rimage.NewBuffer(rimage.FormatColorBGRA32, 3, 2, 0)
	test.That(t, err, test.ShouldBeNil)
	defer colors.Release()
	colors.SetBGRA(0, 0, 30, 20, 10, 255)
	colors.SetBGRA(2, 1, 3, 2, 1, 255)
	// (1, 0) stays transparent and is dropped.

	pc, err = NewFromXYZBuffer(points, colors)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 2)
	d, ok := pc.At(1, 2, 300)
	test.That(t, ok, test.ShouldBeTrue)
	r, g, b := d.RGB255()
	test.That(t, []uint8{r, g, b}, test.ShouldResemble, []uint8{10, 20, 30})

	small, err := rimage.NewBuffer(rimage.FormatColorBGRA32, 2, 2, 0)
	test.That(t, err, test.ShouldBeNil)
	defer small.Release()
	_, err = NewFromXYZBuffer(points, small)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewFromXYZBuffer(colors, nil)
	test.That(t, err, test.ShouldNotBeNil)
}
