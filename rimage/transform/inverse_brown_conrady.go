package transform

import "math"

// InverseBrownConrady maps distorted normalized points back to undistorted ones. It is used to
// build the per-pixel rays of a camera.
type InverseBrownConrady struct {
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

// Transform solves BrownConrady.Transform(xu, yu) = (xd, yd) for (xu, yu) with Newton-Raphson,
// starting from the distorted point.
func (ibc *InverseBrownConrady) Transform(xd, yd float64) (float64, float64) {
	if ibc == nil {
		return xd, yd
	}
	forward := BrownConrady(*ibc)

	xu, yu := xd, yd

	const maxIterations = 20
	const tolerance = 1e-10

	for i := 0; i < maxIterations; i++ {
		xdEst, ydEst, j := forward.distort(xu, yu)
		errX := xdEst - xd
		errY := ydEst - yd

		if errX*errX+errY*errY < tolerance*tolerance {
			break
		}

		det := j[0][0]*j[1][1] - j[0][1]*j[1][0]
		if det == 0 {
			break
		}

		// [xu, yu] -= J^-1 * [errX, errY]
		nextX := xu - (j[1][1]*errX-j[0][1]*errY)/det
		nextY := yu - (-j[1][0]*errX+j[0][0]*errY)/det
		if math.IsNaN(nextX) || math.IsNaN(nextY) || math.IsInf(nextX, 0) || math.IsInf(nextY, 0) {
			break
		}
		xu, yu = nextX, nextY
	}

	return xu, yu
}
