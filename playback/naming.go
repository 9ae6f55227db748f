package playback

import (
	"path/filepath"
	"strconv"
	"strings"
)

// directionTag separates the artifacts of the two directions when a run writes both.
func (o *Options) directionTag(d Direction) string {
	if o.Direction != BothDirections {
		return ""
	}
	if d == ColorToDepth {
		return "c2d_"
	}
	return "d2c_"
}

// artifactPath names the artifact of one frame: <dir>/<prefix><tag><index>.<ext>. Frames are
// numbered from 1 in the order they are written, not by timestamp.
func (o *Options) artifactPath(prefix, tag string, index int, ext string) string {
	return filepath.Join(o.OutputDir, prefix+tag+strconv.Itoa(index)+"."+strings.TrimPrefix(ext, "."))
}
