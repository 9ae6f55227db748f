// Package k4a reads the factory calibration stored in Azure Kinect recordings.
package k4a

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/rgbdkit/playback/rimage/transform"
)

// Camera purposes in calibration.json.
const (
	PurposeDepth      = "CALIBRATION_CameraPurposeDepth"
	PurposePhotoVideo = "CALIBRATION_CameraPurposePhotoVideo"
)

// CalibrationFileName is the name of the calibration attachment in a recording.
const CalibrationFileName = "calibration.json"

// numModelParameters is cx, cy, fx, fy, k1..k6, codx, cody, p2, p1.
const numModelParameters = 14

// Intrinsics is a camera's normalized lens model.
type Intrinsics struct {
	ModelType       string    `json:"ModelType"`
	ModelParameters []float64 `json:"ModelParameters"`
}

// Rt is a camera's pose relative to the depth camera. Translation is in meters.
type Rt struct {
	Rotation    []float64 `json:"Rotation"`
	Translation []float64 `json:"Translation"`
}

// RawCamera is one camera entry of calibration.json.
type RawCamera struct {
	Intrinsics   Intrinsics `json:"Intrinsics"`
	Location     string     `json:"Location"`
	Purpose      string     `json:"Purpose"`
	MetricRadius float64    `json:"MetricRadius"`
	Rt           Rt         `json:"Rt"`
	SensorWidth  int        `json:"SensorWidth"`
	SensorHeight int        `json:"SensorHeight"`
}

// RawCalibration is the parsed calibration.json of a device.
type RawCalibration struct {
	CalibrationInformation struct {
		Cameras []RawCamera `json:"Cameras"`
	} `json:"CalibrationInformation"`
}

// IsCalibrationJSON reports whether b looks like an Azure Kinect calibration.json.
func IsCalibrationJSON(b []byte) bool {
	return bytes.Contains(b, []byte(`"CalibrationInformation"`))
}

// ParseCalibration parses calibration.json.
func ParseCalibration(b []byte) (*RawCalibration, error) {
	raw := &RawCalibration{}
	// The device writes a trailing NUL after the document.
	if err := json.Unmarshal(bytes.TrimRight(b, "\x00 \r\n"), raw); err != nil {
		return nil, errors.Wrap(err, "cannot parse calibration.json")
	}
	if _, err := raw.camera(PurposeDepth); err != nil {
		return nil, err
	}
	if _, err := raw.camera(PurposePhotoVideo); err != nil {
		return nil, err
	}
	return raw, nil
}

func (raw *RawCalibration) camera(purpose string) (*RawCamera, error) {
	for i := range raw.CalibrationInformation.Cameras {
		cam := &raw.CalibrationInformation.Cameras[i]
		if cam.Purpose != purpose {
			continue
		}
		if len(cam.Intrinsics.ModelParameters) < numModelParameters {
			return nil, errors.Errorf("%s camera has %d model parameters, need %d",
				purpose, len(cam.Intrinsics.ModelParameters), numModelParameters)
		}
		if len(cam.Rt.Rotation) != 9 || len(cam.Rt.Translation) != 3 {
			return nil, errors.Errorf("%s camera has a malformed Rt", purpose)
		}
		return cam, nil
	}
	return nil, errors.Errorf("calibration.json has no %s camera", purpose)
}

// ModeCalibration returns the calibration of the depth and color cameras as they were
// configured for a recording.
func (raw *RawCalibration) ModeCalibration(depthMode DepthMode, colorRes ColorResolution) (*transform.Calibration, error) {
	depthInfo, ok := depthModes[depthMode]
	if !ok {
		return nil, errors.Errorf("unsupported depth mode %q", depthMode)
	}
	colorInfo, ok := colorResolutions[colorRes]
	if !ok {
		return nil, errors.Errorf("unsupported color resolution %q", colorRes)
	}
	depthCam, err := raw.camera(PurposeDepth)
	if err != nil {
		return nil, err
	}
	colorCam, err := raw.camera(PurposePhotoVideo)
	if err != nil {
		return nil, err
	}

	depthToColor, err := relativePose(depthCam.Rt, colorCam.Rt)
	if err != nil {
		return nil, err
	}
	depthModel, err := cameraModel(depthCam, depthInfo)
	if err != nil {
		return nil, err
	}
	colorModel, err := cameraModel(colorCam, colorInfo)
	if err != nil {
		return nil, err
	}
	cal := &transform.Calibration{
		DepthCamera:  depthModel,
		ColorCamera:  colorModel,
		ExtrinsicD2C: depthToColor,
	}
	if err := cal.CheckValid(); err != nil {
		return nil, err
	}
	return cal, nil
}

// NewCalibration parses calibration.json and returns the calibration for the given modes.
func NewCalibration(b []byte, depthMode DepthMode, colorRes ColorResolution) (*transform.Calibration, error) {
	raw, err := ParseCalibration(b)
	if err != nil {
		return nil, err
	}
	return raw.ModeCalibration(depthMode, colorRes)
}

// cameraModel scales the normalized model of cam to the pixels of a mode. Pixel centers sit on
// integer coordinates, so the principal point moves by half a pixel.
func cameraModel(cam *RawCamera, info modeInfo) (transform.PinholeCameraModel, error) {
	p := cam.Intrinsics.ModelParameters
	bw, bh := float64(info.binnedWidth), float64(info.binnedHeight)
	// calibration.json stores p2 before p1
	distortion, err := transform.NewBrownConrady([]float64{
		p[4], p[5], p[6], p[13], p[12], p[7], p[8], p[9], p[10], p[11],
	})
	if err != nil {
		return transform.PinholeCameraModel{}, errors.Wrapf(err, "%s camera", cam.Purpose)
	}
	return transform.PinholeCameraModel{
		PinholeCameraIntrinsics: &transform.PinholeCameraIntrinsics{
			Width:  info.width,
			Height: info.height,
			Ppx:    p[0]*bw - float64(info.cropX) - 0.5,
			Ppy:    p[1]*bh - float64(info.cropY) - 0.5,
			Fx:     p[2] * bw,
			Fy:     p[3] * bh,
		},
		Distortion: distortion,
	}, nil
}

// relativePose returns the transform from the depth camera frame into the color camera
// frame, with translation in millimeters. Each Rt maps the depth camera frame into that
// camera's frame, so depth's is normally the identity.
func relativePose(depth, color Rt) (transform.Extrinsics, error) {
	toDepth := transform.Extrinsics{
		RotationMatrix:    depth.Rotation,
		TranslationVector: metersToMillimeters(depth.Translation),
	}
	if err := toDepth.CheckValid(); err != nil {
		return transform.Extrinsics{}, errors.Wrap(err, "depth camera pose")
	}
	toColor := transform.Extrinsics{
		RotationMatrix:    color.Rotation,
		TranslationVector: metersToMillimeters(color.Translation),
	}
	if err := toColor.CheckValid(); err != nil {
		return transform.Extrinsics{}, errors.Wrap(err, "color camera pose")
	}
	fromDepth := toDepth.Inverse()
	return fromDepth.Then(toColor), nil
}

func metersToMillimeters(t []float64) []float64 {
	out := make([]float64, len(t))
	for i, v := range t {
		out[i] = v * 1000
	}
	return out
}
