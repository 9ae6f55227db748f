package transform

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// CameraType selects one of the two cameras of a Calibration.
type CameraType int

const (
	// DepthCamera is the depth sensor.
	DepthCamera CameraType = iota
	// ColorCamera is the color sensor.
	ColorCamera
)

func (c CameraType) String() string {
	if c == ColorCamera {
		return "color"
	}
	return "depth"
}

// Calibration holds the intrinsics of a depth and a color camera and the rigid transform that
// takes points from the depth camera frame into the color camera frame. Distances are in mm.
type Calibration struct {
	ColorCamera  PinholeCameraModel `json:"color_camera"`
	DepthCamera  PinholeCameraModel `json:"depth_camera"`
	ExtrinsicD2C Extrinsics         `json:"depth_to_color_extrinsic_parameters"`
}

// CheckValid checks both cameras and the extrinsics.
func (cal *Calibration) CheckValid() error {
	if cal == nil {
		return errors.New("calibration does not exist")
	}
	if err := cal.ColorCamera.CheckValid(); err != nil {
		return errors.Wrap(err, "color camera")
	}
	if err := cal.DepthCamera.CheckValid(); err != nil {
		return errors.Wrap(err, "depth camera")
	}
	return errors.Wrap(cal.ExtrinsicD2C.CheckValid(), "depth to color extrinsics")
}

// Camera returns the model of the given camera.
func (cal *Calibration) Camera(c CameraType) *PinholeCameraModel {
	if c == ColorCamera {
		return &cal.ColorCamera
	}
	return &cal.DepthCamera
}

// NewCalibrationFromBytes parses and validates a JSON calibration.
func NewCalibrationFromBytes(b []byte) (*Calibration, error) {
	cal := &Calibration{}
	if err := json.Unmarshal(b, cal); err != nil {
		return nil, errors.Wrap(err, "error parsing calibration JSON")
	}
	if err := cal.CheckValid(); err != nil {
		return nil, err
	}
	return cal, nil
}

// NewCalibrationFromJSONFile reads a calibration written by WriteToJSONFile.
func NewCalibrationFromJSONFile(jsonPath string) (*Calibration, error) {
	//nolint:gosec
	b, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	return NewCalibrationFromBytes(b)
}

// WriteToJSONFile writes the calibration as indented JSON.
func (cal *Calibration) WriteToJSONFile(jsonPath string) error {
	b, err := json.MarshalIndent(cal, "", "  ")
	if err != nil {
		return err
	}
	//nolint:gosec
	return os.WriteFile(jsonPath, b, 0o644)
}
