package k4a

import (
	"strings"

	"github.com/pkg/errors"
)

// DepthMode is the depth sensor mode a recording was made in.
type DepthMode string

// Depth modes, named as in the K4A_DEPTH_MODE recording tag.
const (
	DepthModeNFOV2x2Binned DepthMode = "NFOV_2X2BINNED"
	DepthModeNFOVUnbinned  DepthMode = "NFOV_UNBINNED"
	DepthModeWFOV2x2Binned DepthMode = "WFOV_2X2BINNED"
	DepthModeWFOVUnbinned  DepthMode = "WFOV_UNBINNED"
	DepthModePassiveIR     DepthMode = "PASSIVE_IR"
)

// ColorResolution is the color camera resolution a recording was made in.
type ColorResolution string

// Color resolutions, named as the suffix of the K4A_COLOR_MODE recording tag.
const (
	ColorResolution720P  ColorResolution = "720P"
	ColorResolution1080P ColorResolution = "1080P"
	ColorResolution1440P ColorResolution = "1440P"
	ColorResolution1536P ColorResolution = "1536P"
	ColorResolution2160P ColorResolution = "2160P"
	ColorResolution3072P ColorResolution = "3072P"
)

// modeInfo describes how a mode's image is cut out of the calibration image. Normalized
// intrinsics are scaled to binnedWidth x binnedHeight and then shifted by the crop offset.
type modeInfo struct {
	binnedWidth, binnedHeight int
	cropX, cropY              int
	width, height             int
}

var depthModes = map[DepthMode]modeInfo{
	DepthModeNFOV2x2Binned: {512, 512, 96, 90, 320, 288},
	DepthModeNFOVUnbinned:  {1024, 1024, 192, 180, 640, 576},
	DepthModeWFOV2x2Binned: {512, 512, 0, 0, 512, 512},
	DepthModeWFOVUnbinned:  {1024, 1024, 0, 0, 1024, 1024},
	DepthModePassiveIR:     {1024, 1024, 0, 0, 1024, 1024},
}

var colorResolutions = map[ColorResolution]modeInfo{
	ColorResolution720P:  {1280, 960, 0, 120, 1280, 720},
	ColorResolution1080P: {1920, 1440, 0, 180, 1920, 1080},
	ColorResolution1440P: {2560, 1920, 0, 240, 2560, 1440},
	ColorResolution1536P: {2048, 1536, 0, 0, 2048, 1536},
	ColorResolution2160P: {3840, 2880, 0, 360, 3840, 2160},
	ColorResolution3072P: {4096, 3072, 0, 0, 4096, 3072},
}

// ParseDepthMode parses a K4A_DEPTH_MODE tag value.
func ParseDepthMode(s string) (DepthMode, error) {
	mode := DepthMode(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := depthModes[mode]; !ok {
		return "", errors.Errorf("unsupported depth mode %q", s)
	}
	return mode, nil
}

// ParseColorResolution parses a K4A_COLOR_MODE tag value such as "MJPG_1080P" or a bare
// resolution such as "1080P".
func ParseColorResolution(s string) (ColorResolution, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if i := strings.LastIndex(s, "_"); i >= 0 {
		s = s[i+1:]
	}
	res := ColorResolution(s)
	if _, ok := colorResolutions[res]; !ok {
		return "", errors.Errorf("unsupported color resolution %q", s)
	}
	return res, nil
}

// DepthModeFromSize picks the depth mode producing width x height images. Square images are
// ambiguous between WFOV unbinned and passive IR; both share a geometry so WFOV is returned.
func DepthModeFromSize(width, height int) (DepthMode, error) {
	for _, mode := range []DepthMode{
		DepthModeNFOV2x2Binned, DepthModeNFOVUnbinned, DepthModeWFOV2x2Binned, DepthModeWFOVUnbinned,
	} {
		info := depthModes[mode]
		if info.width == width && info.height == height {
			return mode, nil
		}
	}
	return "", errors.Errorf("no depth mode produces %dx%d images", width, height)
}

// ColorResolutionFromSize picks the color resolution producing width x height images.
func ColorResolutionFromSize(width, height int) (ColorResolution, error) {
	for res, info := range colorResolutions {
		if info.width == width && info.height == height {
			return res, nil
		}
	}
	return "", errors.Errorf("no color resolution produces %dx%d images", width, height)
}

// Size returns the image size of the depth mode.
func (m DepthMode) Size() (int, int) {
	info := depthModes[m]
	return info.width, info.height
}

// Size returns the image size of the color resolution.
func (r ColorResolution) Size() (int, int) {
	info := colorResolutions[r]
	return info.width, info.height
}
