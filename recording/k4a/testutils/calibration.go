// Package testutils provides Azure Kinect calibration fixtures for tests.
package testutils

import (
	"fmt"
	"strconv"
	"strings"
)

// DepthLens is the depth camera model of CalibrationJSON, in calibration.json order:
// cx, cy, fx, fy, k1..k6, codx, cody, p2, p1. It uses round numbers so mode intrinsics can be
// checked by hand.
var DepthLens = [14]float64{0.5, 0.5, 0.5, 0.5, 0.1, 0.01, 0.001, 0, 0, 0, 0, 0, 0.0002, 0.0001}

// ColorLens is the undistorted color camera model of CalibrationJSON.
var ColorLens = [14]float64{0.5, 0.5, 0.5, 0.5}

// CalibrationJSON returns a calibration.json in the layout the device writes. Translations are
// in meters.
func CalibrationJSON(depthTranslation, colorTranslation [3]float64) []byte {
	return CalibrationJSONWithLens(DepthLens, depthTranslation, colorTranslation)
}

// CalibrationJSONWithLens is CalibrationJSON with another depth camera model.
func CalibrationJSONWithLens(depthLens [14]float64, depthTranslation, colorTranslation [3]float64) []byte {
	return []byte(fmt.Sprintf(`{
  "CalibrationInformation": {
    "Cameras": [
      {
        "Intrinsics": {
          "ModelParameterCount": 14,
          "ModelParameters": [%s],
          "ModelType": "CALIBRATION_LensDistortionModelBrownConrady"
        },
        "Location": "CALIBRATION_CameraLocationD0",
        "Purpose": "CALIBRATION_CameraPurposeDepth",
        "MetricRadius": 1.74,
        "Rt": {"Rotation": [1, 0, 0, 0, 1, 0, 0, 0, 1], "Translation": [%s]},
        "SensorHeight": 1024,
        "SensorWidth": 1024,
        "Shutter": "CALIBRATION_ShutterTypeUndefined"
      },
      {
        "Intrinsics": {
          "ModelParameterCount": 14,
          "ModelParameters": [%s],
          "ModelType": "CALIBRATION_LensDistortionModelBrownConrady"
        },
        "Location": "CALIBRATION_CameraLocationPV0",
        "Purpose": "CALIBRATION_CameraPurposePhotoVideo",
        "MetricRadius": 0,
        "Rt": {"Rotation": [1, 0, 0, 0, 1, 0, 0, 0, 1], "Translation": [%s]},
        "SensorHeight": 3072,
        "SensorWidth": 4096,
        "Shutter": "CALIBRATION_ShutterTypeUndefined"
      }
    ],
    "InertialSensors": [],
    "Metadata": {"SerialId": "000000000000", "Version": {"Major": 1, "Minor": 2}}
  }
}`,
		joinFloats(depthLens[:]), joinFloats(depthTranslation[:]),
		joinFloats(ColorLens[:]), joinFloats(colorTranslation[:])) + "\x00")
}

func joinFloats(fs []float64) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strings.Join(parts, ", ")
}
