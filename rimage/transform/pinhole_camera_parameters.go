// Package transform holds the camera models of a depth + color sensor pair and the
// reprojection between them.
package transform

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intriniscs are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	if params.Ppx < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx))
	}
	if params.Ppy < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// PixelToPoint transforms a pixel with depth to a 3D point.
// The intrinsics parameters should be the ones of the sensor used to obtain the image that
// contains the pixel.
func (params *PinholeCameraIntrinsics) PixelToPoint(x, y, z float64) (float64, float64, float64) {
	if params == nil {
		return 0, 0, 0
	}
	xOverZ := (x - params.Ppx) / params.Fx
	yOverZ := (y - params.Ppy) / params.Fy
	return xOverZ * z, yOverZ * z, z
}

// PointToPixel projects a 3D point to a pixel in an image plane. The result is not rounded.
// A point with zero depth maps to (-1, -1) so that bounds checks filter it out.
func (params *PinholeCameraIntrinsics) PointToPixel(x, y, z float64) (float64, float64) {
	if z == 0 {
		return -1, -1
	}
	return (x/z)*params.Fx + params.Ppx, (y/z)*params.Fy + params.Ppy
}

// PinholeCameraModel is a pinhole camera with an optional lens distortion.
type PinholeCameraModel struct {
	*PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	Distortion               *BrownConrady `json:"distortion_parameters,omitempty"`
}

// CheckValid checks the intrinsics and, if present, the distortion.
func (model *PinholeCameraModel) CheckValid() error {
	if model == nil {
		return NewNoIntrinsicsError("camera model does not exist")
	}
	if err := model.PinholeCameraIntrinsics.CheckValid(); err != nil {
		return err
	}
	if model.Distortion != nil {
		return model.Distortion.CheckValid()
	}
	return nil
}

// Project maps a 3D point in the camera frame to a (distorted) pixel.
func (model *PinholeCameraModel) Project(pt r3.Vector) (float64, float64, bool) {
	if pt.Z <= 0 {
		return -1, -1, false
	}
	x, y := model.Distortion.Transform(pt.X/pt.Z, pt.Y/pt.Z)
	u, v := model.PointToPixel(x, y, 1)
	return u, v, true
}

// Ray returns the undistorted normalized ray (x/z, y/z) through a pixel.
func (model *PinholeCameraModel) Ray(u, v float64) (float64, float64) {
	x, y, _ := model.PixelToPoint(u, v, 1)
	return model.Distortion.Inverse().Transform(x, y)
}
