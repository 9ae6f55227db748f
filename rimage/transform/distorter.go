package transform

import (
	"math"

	"github.com/pkg/errors"
)

// InvalidDistortionError is used when the distortion_parameters are invalid.
func InvalidDistortionError(msg string) error {
	return errors.Wrap(errors.New("invalid distortion_parameters"), msg)
}

// numBrownConradyParameters is k1, k2, k3, p1, p2, k4, k5, k6, codx, cody.
const numBrownConradyParameters = 10

// BrownConrady is the radial and tangential lens distortion of the Brown-Conrady model, with the
// rational radial denominator 1 + k4*r^2 + k5*r^4 + k6*r^6 and an optional center of distortion.
// Points are in normalized image coordinates, i.e. (x/z, y/z).
type BrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	RadialK3     float64 `json:"rk3"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
	RadialK4     float64 `json:"rk4,omitempty"`
	RadialK5     float64 `json:"rk5,omitempty"`
	RadialK6     float64 `json:"rk6,omitempty"`
	CenterX      float64 `json:"codx,omitempty"`
	CenterY      float64 `json:"cody,omitempty"`
}

// NewBrownConrady takes in a slice of floats that will be passed into the struct in order:
// k1, k2, k3, p1, p2, k4, k5, k6, codx, cody. Missing trailing parameters are zero.
func NewBrownConrady(inp []float64) (*BrownConrady, error) {
	if len(inp) > numBrownConradyParameters {
		return nil, errors.Errorf("list of parameters too long, expected max %d, got %d", numBrownConradyParameters, len(inp))
	}
	p := make([]float64, numBrownConradyParameters)
	copy(p, inp)
	bc := &BrownConrady{p[0], p[1], p[2], p[3], p[4], p[5], p[6], p[7], p[8], p[9]}
	if err := bc.CheckValid(); err != nil {
		return nil, err
	}
	return bc, nil
}

// CheckValid checks if the fields for BrownConrady have valid inputs.
func (bc *BrownConrady) CheckValid() error {
	if bc == nil {
		return InvalidDistortionError("BrownConrady shaped distortion_parameters not provided")
	}
	for _, p := range bc.Parameters() {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return InvalidDistortionError("BrownConrady parameters must be finite")
		}
	}
	return nil
}

// Parameters returns the parameters of the distortion model as a list of floats, in
// NewBrownConrady order.
func (bc *BrownConrady) Parameters() []float64 {
	if bc == nil {
		return []float64{}
	}
	return []float64{
		bc.RadialK1, bc.RadialK2, bc.RadialK3, bc.TangentialP1, bc.TangentialP2,
		bc.RadialK4, bc.RadialK5, bc.RadialK6, bc.CenterX, bc.CenterY,
	}
}

// Transform distorts an undistorted normalized point.
func (bc *BrownConrady) Transform(x, y float64) (float64, float64) {
	if bc == nil {
		return x, y
	}
	xd, yd, _ := bc.distort(x, y)
	return xd, yd
}

// jacobian is [[dxd/dx, dxd/dy], [dyd/dx, dyd/dy]].
type jacobian [2][2]float64

// distort applies the model to (x, y) and returns the partial derivatives of the result.
func (bc *BrownConrady) distort(x, y float64) (float64, float64, jacobian) {
	xp, yp := x-bc.CenterX, y-bc.CenterY
	r2 := xp*xp + yp*yp
	r4 := r2 * r2

	num := 1 + bc.RadialK1*r2 + bc.RadialK2*r4 + bc.RadialK3*r4*r2
	den := 1 + bc.RadialK4*r2 + bc.RadialK5*r4 + bc.RadialK6*r4*r2
	dNum := bc.RadialK1 + 2*bc.RadialK2*r2 + 3*bc.RadialK3*r4
	dDen := bc.RadialK4 + 2*bc.RadialK5*r2 + 3*bc.RadialK6*r4

	// a vanishing denominator falls back to the polynomial model
	radDist, dRad := num, dNum
	if den != 0 {
		radDist = num / den
		dRad = (dNum*den - num*dDen) / (den * den)
	}

	p1, p2 := bc.TangentialP1, bc.TangentialP2
	xd := xp*radDist + 2*p1*xp*yp + p2*(r2+2*xp*xp) + bc.CenterX
	yd := yp*radDist + 2*p2*xp*yp + p1*(r2+2*yp*yp) + bc.CenterY

	// d(radDist)/dxp = dRad * 2xp
	var j jacobian
	j[0][0] = radDist + 2*xp*xp*dRad + 2*p1*yp + 6*p2*xp
	j[0][1] = 2*xp*yp*dRad + 2*p1*xp + 2*p2*yp
	j[1][0] = 2*xp*yp*dRad + 2*p2*yp + 2*p1*xp
	j[1][1] = radDist + 2*yp*yp*dRad + 2*p2*xp + 6*p1*yp
	return xd, yd, j
}

// Inverse returns the model that undoes this distortion.
func (bc *BrownConrady) Inverse() *InverseBrownConrady {
	if bc == nil {
		return nil
	}
	inv := InverseBrownConrady(*bc)
	return &inv
}
