package transform

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/rgbdkit/playback/rimage"
)

func testIntrinsics(width, height int) *PinholeCameraIntrinsics {
	return &PinholeCameraIntrinsics{
		Width:  width,
		Height: height,
		Fx:     500,
		Fy:     500,
		Ppx:    float64(width) / 2,
		Ppy:    float64(height) / 2,
	}
}

func identityCalibration(width, height int) *Calibration {
	return &Calibration{
		ColorCamera:  PinholeCameraModel{PinholeCameraIntrinsics: testIntrinsics(width, height)},
		DepthCamera:  PinholeCameraModel{PinholeCameraIntrinsics: testIntrinsics(width, height)},
		ExtrinsicD2C: NewIdentityExtrinsics(),
	}
}

func flatDepth(t *testing.T, width, height int, d uint16) *rimage.Buffer {
	t.Helper()
	buf, err := rimage.NewBuffer(rimage.FormatDepth16, width, height, 0)
	test.That(t, err, test.ShouldBeNil)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			buf.SetDepth16(x, y, d)
		}
	}
	return buf
}

func TestDepthToColorIdentity(t *testing.T) {
	tr, err := NewDepthColorTransform(identityCalibration(20, 10))
	test.That(t, err, test.ShouldBeNil)
	defer tr.Close()

	depth := flatDepth(t, 20, 10, 0)
	defer depth.Release()
	depth.SetDepth16(3, 4, 1000)
	depth.SetDepth16(15, 2, 2500)

	out, err := tr.DepthImageToColorCamera(depth)
	test.That(t, err, test.ShouldBeNil)
	defer out.Release()
	test.That(t, out.Format(), test.ShouldEqual, rimage.FormatDepth16)
	for y := 0; y < 10; y++ {
		for x := 0; x < 20; x++ {
			test.That(t, out.Depth16At(x, y), test.ShouldEqual, depth.Depth16At(x, y))
		}
	}
}

func TestDepthToColorTranslation(t *testing.T) {
	cal := identityCalibration(40, 20)
	// The color camera sits 10mm along -x, so points move +10mm in its frame.
	cal.ExtrinsicD2C.TranslationVector = []float64{10, 0, 0}
	tr, err := NewDepthColorTransform(cal)
	test.That(t, err, test.ShouldBeNil)
	defer tr.Close()

	depth := flatDepth(t, 40, 20, 0)
	defer depth.Release()
	depth.SetDepth16(20, 10, 1000)

	out, err := tr.DepthImageToColorCamera(depth)
	test.That(t, err, test.ShouldBeNil)
	defer out.Release()
	// 500px focal length * 10mm / 1000mm = 5px.
	test.That(t, out.Depth16At(25, 10), test.ShouldEqual, uint16(1000))
	test.That(t, out.Depth16At(20, 10), test.ShouldEqual, uint16(0))
}

func TestDepthToColorZBuffer(t *testing.T) {
	cal := identityCalibration(40, 20)
	cal.ExtrinsicD2C.TranslationVector = []float64{10, 0, 0}
	tr, err := NewDepthColorTransform(cal)
	test.That(t, err, test.ShouldBeNil)
	defer tr.Close()

	depth := flatDepth(t, 40, 20, 0)
	defer depth.Release()
	// (20,10) at 1000mm and (24,10) at 5000mm both land on color pixel (25,10).
	depth.SetDepth16(20, 10, 1000)
	depth.SetDepth16(24, 10, 5000)

	out, err := tr.DepthImageToColorCamera(depth)
	test.That(t, err, test.ShouldBeNil)
	defer out.Release()
	test.That(t, out.Depth16At(25, 10), test.ShouldEqual, uint16(1000))
}

func TestDepthToColorUpscales(t *testing.T) {
	cal := identityCalibration(10, 10)
	cal.ColorCamera.PinholeCameraIntrinsics = &PinholeCameraIntrinsics{
		Width: 40, Height: 40, Fx: 2000, Fy: 2000, Ppx: 20, Ppy: 20,
	}
	tr, err := NewDepthColorTransform(cal)
	test.That(t, err, test.ShouldBeNil)
	defer tr.Close()

	depth := flatDepth(t, 10, 10, 800)
	defer depth.Release()
	out, err := tr.DepthImageToColorCamera(depth)
	test.That(t, err, test.ShouldBeNil)
	defer out.Release()
	test.That(t, out.Width(), test.ShouldEqual, 40)

	// Each depth pixel covers a 4x4 block in color, so the center area has no holes.
	for y := 10; y < 30; y++ {
		for x := 10; x < 30; x++ {
			test.That(t, out.Depth16At(x, y), test.ShouldEqual, uint16(800))
		}
	}
}

func TestColorToDepth(t *testing.T) {
	cal := identityCalibration(40, 20)
	cal.ExtrinsicD2C.TranslationVector = []float64{10, 0, 0}
	tr, err := NewDepthColorTransform(cal)
	test.That(t, err, test.ShouldBeNil)
	defer tr.Close()

	depth := flatDepth(t, 40, 20, 0)
	defer depth.Release()
	depth.SetDepth16(20, 10, 1000)
	depth.SetDepth16(39, 10, 1000)

	color, err := rimage.NewBuffer(rimage.FormatColorBGRA32, 40, 20, 0)
	test.That(t, err, test.ShouldBeNil)
	defer color.Release()
	color.SetBGRA(25, 10, 1, 2, 3, 255)

	out, err := tr.ColorImageToDepthCamera(depth, color)
	test.That(t, err, test.ShouldBeNil)
	defer out.Release()
	test.That(t, out.Width(), test.ShouldEqual, 40)
	b, g, r, a := out.BGRAAt(20, 10)
	test.That(t, []uint8{b, g, r, a}, test.ShouldResemble, []uint8{1, 2, 3, 255})
	// Lands at x=44, outside the color image.
	b, g, r, a = out.BGRAAt(39, 10)
	test.That(t, []uint8{b, g, r, a}, test.ShouldResemble, []uint8{0, 0, 0, 0})
	// No depth, no color.
	_, _, _, a = out.BGRAAt(0, 0)
	test.That(t, a, test.ShouldEqual, uint8(0))
}

func TestDepthToPointCloud(t *testing.T) {
	tr, err := NewDepthColorTransform(identityCalibration(20, 10))
	test.That(t, err, test.ShouldBeNil)
	defer tr.Close()

	depth := flatDepth(t, 20, 10, 0)
	defer depth.Release()
	depth.SetDepth16(10, 5, 1000)
	depth.SetDepth16(15, 5, 1000)

	for _, c := range []CameraType{DepthCamera, ColorCamera} {
		pts, err := tr.DepthImageToPointCloud(depth, c)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pts.Format(), test.ShouldEqual, rimage.FormatCustom)
		x, y, z := pts.XYZAt(10, 5)
		test.That(t, []int16{x, y, z}, test.ShouldResemble, []int16{0, 0, 1000})
		x, y, z = pts.XYZAt(15, 5)
		test.That(t, []int16{x, y, z}, test.ShouldResemble, []int16{10, 0, 1000})
		x, y, z = pts.XYZAt(0, 0)
		test.That(t, []int16{x, y, z}, test.ShouldResemble, []int16{0, 0, 0})
		pts.Release()
	}
}

func TestTransformErrors(t *testing.T) {
	_, err := NewDepthColorTransform(&Calibration{})
	test.That(t, err, test.ShouldNotBeNil)

	tr, err := NewDepthColorTransform(identityCalibration(20, 10))
	test.That(t, err, test.ShouldBeNil)

	wrongSize := flatDepth(t, 10, 10, 1)
	defer wrongSize.Release()
	_, err = tr.DepthImageToColorCamera(wrongSize)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "calibrated for 20x10")

	color, err := rimage.NewBuffer(rimage.FormatColorBGRA32, 20, 10, 0)
	test.That(t, err, test.ShouldBeNil)
	defer color.Release()
	_, err = tr.DepthImageToColorCamera(color)
	test.That(t, err, test.ShouldNotBeNil)

	depth := flatDepth(t, 20, 10, 1)
	defer depth.Release()
	test.That(t, tr.Close(), test.ShouldBeNil)
	test.That(t, tr.Close(), test.ShouldBeNil)
	_, err = tr.DepthImageToColorCamera(depth)
	test.That(t, err, test.ShouldBeError, ErrTransformClosed)
}

func TestExtrinsics(t *testing.T) {
	// 90 degrees about z.
	ext := Extrinsics{
		RotationMatrix:    []float64{0, -1, 0, 1, 0, 0, 0, 0, 1},
		TranslationVector: []float64{1, 2, 3},
	}
	test.That(t, ext.CheckValid(), test.ShouldBeNil)
	pt := ext.TransformPointToPoint(1, 0, 0)
	test.That(t, pt, test.ShouldResemble, r3.Vector{X: 1, Y: 3, Z: 3})

	inv := ext.Inverse()
	back := inv.TransformPointToPoint(pt.X, pt.Y, pt.Z)
	test.That(t, back.X, test.ShouldAlmostEqual, 1)
	test.That(t, back.Y, test.ShouldAlmostEqual, 0)
	test.That(t, back.Z, test.ShouldAlmostEqual, 0)

	bad := Extrinsics{RotationMatrix: []float64{2, 0, 0, 0, 1, 0, 0, 0, 1}, TranslationVector: []float64{0, 0, 0}}
	test.That(t, bad.CheckValid(), test.ShouldNotBeNil)
	short := Extrinsics{RotationMatrix: []float64{1}, TranslationVector: []float64{0, 0, 0}}
	test.That(t, short.CheckValid(), test.ShouldNotBeNil)

	// applying ext and then its inverse is the identity
	round := ext.Then(inv)
	test.That(t, round.CheckValid(), test.ShouldBeNil)
	p := round.TransformPointToPoint(4, -5, 6)
	test.That(t, p.X, test.ShouldAlmostEqual, 4)
	test.That(t, p.Y, test.ShouldAlmostEqual, -5)
	test.That(t, p.Z, test.ShouldAlmostEqual, 6)

	shift := Extrinsics{RotationMatrix: NewIdentityExtrinsics().RotationMatrix, TranslationVector: []float64{0, 0, 10}}
	both := ext.Then(shift)
	test.That(t, both.TransformPointToPoint(1, 0, 0), test.ShouldResemble, r3.Vector{X: 1, Y: 3, Z: 13})
}

func TestBrownConradyInverse(t *testing.T) {
	bc, err := NewBrownConrady([]float64{0.1, -0.05, 0.01, 0.001, -0.002})
	test.That(t, err, test.ShouldBeNil)
	_, err = NewBrownConrady(make([]float64, 11))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewBrownConrady([]float64{math.NaN()})
	test.That(t, err, test.ShouldNotBeNil)

	inv := bc.Inverse()
	for _, p := range [][2]float64{{0, 0}, {0.2, -0.1}, {-0.4, 0.3}, {0.5, 0.5}} {
		xd, yd := bc.Transform(p[0], p[1])
		xu, yu := inv.Transform(xd, yd)
		test.That(t, xu, test.ShouldAlmostEqual, p[0], 1e-9)
		test.That(t, yu, test.ShouldAlmostEqual, p[1], 1e-9)
	}

	var nilBC *BrownConrady
	x, y := nilBC.Transform(0.3, 0.4)
	test.That(t, x, test.ShouldEqual, 0.3)
	test.That(t, y, test.ShouldEqual, 0.4)
	test.That(t, nilBC.CheckValid(), test.ShouldNotBeNil)
}

func TestBrownConradyRational(t *testing.T) {
	bc, err := NewBrownConrady([]float64{0.1, 0.01, 0.001, 0, 0, 2.8, 2.4, 0.4})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bc.Parameters(), test.ShouldHaveLength, 10)

	// r^2 = 0.5: (1 + 0.05 + 0.0025 + 0.000125) / (1 + 1.4 + 0.6 + 0.05)
	xd, yd := bc.Transform(0.5, 0.5)
	test.That(t, xd, test.ShouldAlmostEqual, 0.5*1.052625/3.05, 1e-9)
	test.That(t, yd, test.ShouldAlmostEqual, 0.5*1.052625/3.05, 1e-9)

	// a depth lens of the magnitude devices report
	lens, err := NewBrownConrady([]float64{3.2, 2.1, 0.12, 0, 0, 3.55, 3.3, 0.6})
	test.That(t, err, test.ShouldBeNil)
	withTangential := *lens
	withTangential.TangentialP1 = 0.0001
	withTangential.TangentialP2 = 0.0002
	withCenter := *lens
	withCenter.CenterX = 0.02
	withCenter.CenterY = -0.01

	// the center of distortion is a fixed point
	x, y := withCenter.Transform(0.02, -0.01)
	test.That(t, x, test.ShouldAlmostEqual, 0.02, 1e-12)
	test.That(t, y, test.ShouldAlmostEqual, -0.01, 1e-12)

	for _, model := range []*BrownConrady{lens, &withTangential, &withCenter} {
		inv := model.Inverse()
		for _, p := range [][2]float64{{0, 0}, {0.3, -0.2}, {-0.5, 0.4}, {0.7, 0.6}} {
			xd, yd := model.Transform(p[0], p[1])
			xu, yu := inv.Transform(xd, yd)
			test.That(t, xu, test.ShouldAlmostEqual, p[0], 1e-8)
			test.That(t, yu, test.ShouldAlmostEqual, p[1], 1e-8)
		}
	}
}

func TestPinholeModel(t *testing.T) {
	model := PinholeCameraModel{
		PinholeCameraIntrinsics: testIntrinsics(640, 480),
		Distortion:              &BrownConrady{RadialK1: 0.05},
	}
	test.That(t, model.CheckValid(), test.ShouldBeNil)

	u, v, ok := model.Project(r3.Vector{X: 100, Y: -50, Z: 1000})
	test.That(t, ok, test.ShouldBeTrue)
	x, y := model.Ray(u, v)
	test.That(t, x, test.ShouldAlmostEqual, 0.1, 1e-9)
	test.That(t, y, test.ShouldAlmostEqual, -0.05, 1e-9)

	_, _, ok = model.Project(r3.Vector{Z: -1})
	test.That(t, ok, test.ShouldBeFalse)

	px, py, pz := model.PixelToPoint(320, 240, 900)
	test.That(t, []float64{px, py, pz}, test.ShouldResemble, []float64{0, 0, 900})
	u, v = model.PointToPixel(px, py, pz)
	test.That(t, u, test.ShouldEqual, 320.)
	test.That(t, v, test.ShouldEqual, 240.)
	u, v = model.PointToPixel(1, 1, 0)
	test.That(t, []float64{u, v}, test.ShouldResemble, []float64{-1, -1})

	model.Distortion = &BrownConrady{RadialK1: math.Inf(1)}
	test.That(t, model.CheckValid(), test.ShouldNotBeNil)

	err := (&PinholeCameraIntrinsics{Width: 10, Height: 10}).CheckValid()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, ErrNoIntrinsics.Error())
}

func TestCalibrationJSON(t *testing.T) {
	cal := identityCalibration(64, 48)
	cal.ColorCamera.Distortion = &BrownConrady{RadialK1: 0.1, TangentialP2: 0.01}
	path := filepath.Join(t.TempDir(), "calibration.json")
	test.That(t, cal.WriteToJSONFile(path), test.ShouldBeNil)

	read, err := NewCalibrationFromJSONFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, read, test.ShouldResemble, cal)

	_, err = NewCalibrationFromBytes([]byte(`{"color_camera": {}}`))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewCalibrationFromJSONFile(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}
