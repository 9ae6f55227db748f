package transform

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Extrinsics holds the rigid body transform between two cameras. The rotation is row major.
type Extrinsics struct {
	RotationMatrix    []float64 `json:"rotation_rads"`
	TranslationVector []float64 `json:"translation_mm"`
}

// NewIdentityExtrinsics returns a transform that leaves points in place.
func NewIdentityExtrinsics() Extrinsics {
	return Extrinsics{
		RotationMatrix:    []float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		TranslationVector: []float64{0, 0, 0},
	}
}

// CheckValid checks the shape of the rotation and translation and that the rotation is orthonormal.
func (ext *Extrinsics) CheckValid() error {
	if ext == nil {
		return errors.New("extrinsics do not exist")
	}
	if len(ext.RotationMatrix) != 9 {
		return errors.Errorf("rotation matrix must have 9 elements, got %d", len(ext.RotationMatrix))
	}
	if len(ext.TranslationVector) != 3 {
		return errors.Errorf("translation vector must have 3 elements, got %d", len(ext.TranslationVector))
	}
	rot := mat.NewDense(3, 3, ext.RotationMatrix)
	var rrt mat.Dense
	rrt.Mul(rot, rot.T())
	if !mat.EqualApprox(&rrt, identity3(), 1e-3) {
		return errors.New("rotation matrix is not orthonormal")
	}
	return nil
}

func identity3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

// TransformPointToPoint applies R*p + t.
func (ext *Extrinsics) TransformPointToPoint(x, y, z float64) r3.Vector {
	r := ext.RotationMatrix
	t := ext.TranslationVector
	return r3.Vector{
		X: r[0]*x + r[1]*y + r[2]*z + t[0],
		Y: r[3]*x + r[4]*y + r[5]*z + t[1],
		Z: r[6]*x + r[7]*y + r[8]*z + t[2],
	}
}

// Inverse returns the transform going the other way: R^T and -R^T*t.
func (ext *Extrinsics) Inverse() Extrinsics {
	rot := mat.NewDense(3, 3, ext.RotationMatrix)
	var rt mat.Dense
	rt.CloneFrom(rot.T())

	var t mat.VecDense
	t.MulVec(&rt, mat.NewVecDense(3, ext.TranslationVector))
	t.ScaleVec(-1, &t)

	return Extrinsics{
		RotationMatrix:    mat.DenseCopyOf(&rt).RawMatrix().Data,
		TranslationVector: []float64{t.AtVec(0), t.AtVec(1), t.AtVec(2)},
	}
}

// Then returns the transform that applies ext and then next.
func (ext *Extrinsics) Then(next Extrinsics) Extrinsics {
	var rot mat.Dense
	rot.Mul(mat.NewDense(3, 3, next.RotationMatrix), mat.NewDense(3, 3, ext.RotationMatrix))
	t := next.TransformPointToPoint(ext.TranslationVector[0], ext.TranslationVector[1], ext.TranslationVector[2])
	return Extrinsics{
		RotationMatrix:    mat.DenseCopyOf(&rot).RawMatrix().Data,
		TranslationVector: []float64{t.X, t.Y, t.Z},
	}
}
