package playback

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/rgbdkit/playback/pointcloud"
	"github.com/rgbdkit/playback/rimage"
)

// Defaults of the optional run parameters.
const (
	DefaultStartOffset = 20 * time.Second
	DefaultOutputPath  = "output.ply"
	DefaultDepthPrefix = "depth_"
	DefaultColorPrefix = "color_"
)

// Direction selects which camera geometry frames are reprojected into.
type Direction int

const (
	// DepthToColor reprojects depth into the color camera.
	DepthToColor Direction = iota
	// ColorToDepth reprojects color into the depth camera.
	ColorToDepth
	// BothDirections does both.
	BothDirections
)

var directionNames = map[Direction]string{
	DepthToColor:   "depth-to-color",
	ColorToDepth:   "color-to-depth",
	BothDirections: "both",
}

// ParseDirection parses "depth-to-color", "color-to-depth" or "both".
func ParseDirection(s string) (Direction, error) {
	for d, name := range directionNames {
		if strings.EqualFold(s, name) {
			return d, nil
		}
	}
	return DepthToColor, errors.Errorf("unknown direction %q", s)
}

func (d Direction) String() string {
	if name, ok := directionNames[d]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Direction) UnmarshalText(text []byte) (err error) {
	*d, err = ParseDirection(string(text))
	return err
}

func (d Direction) toColor() bool {
	return d == DepthToColor || d == BothDirections
}

func (d Direction) toDepth() bool {
	return d == ColorToDepth || d == BothDirections
}

// Artifacts is a set of artifact kinds written per frame.
type Artifacts uint8

// Artifact kinds.
const (
	EmitDepth Artifacts = 1 << iota
	EmitColor
	EmitPointCloud

	EmitAll = EmitDepth | EmitColor | EmitPointCloud
)

var artifactNames = []struct {
	a    Artifacts
	name string
}{
	{EmitDepth, "depth"},
	{EmitColor, "color"},
	{EmitPointCloud, "pointcloud"},
}

// ParseArtifacts parses a comma separated list such as "depth,pointcloud".
func ParseArtifacts(s string) (Artifacts, error) {
	var out Artifacts
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		found := false
		for _, an := range artifactNames {
			if strings.EqualFold(part, an.name) {
				out |= an.a
				found = true
			}
		}
		if !found {
			return 0, errors.Errorf("unknown artifact %q", part)
		}
	}
	if out == 0 {
		return 0, errors.New("no artifacts selected")
	}
	return out, nil
}

// Has reports whether all of kinds are in the set.
func (a Artifacts) Has(kinds Artifacts) bool {
	return a&kinds == kinds
}

func (a Artifacts) String() string {
	var names []string
	for _, an := range artifactNames {
		if a.Has(an.a) {
			names = append(names, an.name)
		}
	}
	return strings.Join(names, ",")
}

// MarshalText implements encoding.TextMarshaler.
func (a Artifacts) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Artifacts) UnmarshalText(text []byte) (err error) {
	*a, err = ParseArtifacts(string(text))
	return err
}

// Options are the parameters of a run. Zero values take defaults in WithDefaults.
type Options struct {
	InputPath string `json:"input_path"`
	// StartOffset is where to start reading. nil means DefaultStartOffset, since the first
	// frames of a recording often have no color sample; use SetStartOffset(0) to start at
	// the beginning.
	StartOffset *time.Duration `json:"-"`
	// OutputPath names the point cloud output: its extension picks the point cloud format, its
	// base name the point cloud prefix and its directory the output directory.
	OutputPath string `json:"output_path"`
	OutputDir  string `json:"output_dir"`

	DepthPrefix      string `json:"depth_prefix"`
	ColorPrefix      string `json:"color_prefix"`
	PointCloudPrefix string `json:"pointcloud_prefix"`

	Direction Direction `json:"direction"`
	Emit      Artifacts `json:"emit"`

	DepthFormat        string `json:"depth_format"`
	ColorFormat        string `json:"color_format"`
	PointCloudFormat   string `json:"pointcloud_format"`
	PointCloudEncoding string `json:"pointcloud_encoding"`

	// MaxFrames stops the run after that many processed frames. 0 means no limit.
	MaxFrames int `json:"max_frames"`
}

// SetStartOffset sets StartOffset.
func (o *Options) SetStartOffset(offset time.Duration) {
	o.StartOffset = &offset
}

// Offset returns StartOffset, or DefaultStartOffset when it is unset.
func (o *Options) Offset() time.Duration {
	if o.StartOffset == nil {
		return DefaultStartOffset
	}
	return *o.StartOffset
}

// UnmarshalJSON reads options with the start offset given as start_offset_ms. Unknown fields
// are rejected.
func (o *Options) UnmarshalJSON(data []byte) error {
	type options Options
	aux := struct {
		*options
		StartOffsetMillis *int64 `json:"start_offset_ms"`
	}{options: (*options)(o)}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&aux); err != nil {
		return err
	}
	if aux.StartOffsetMillis != nil {
		o.SetStartOffset(time.Duration(*aux.StartOffsetMillis) * time.Millisecond)
	}
	return nil
}

// ReadOptionsFile reads options from a JSON file after expanding ${VAR} references to
// environment variables.
func ReadOptionsFile(path string) (Options, error) {
	buf, err := envsubst.ReadFile(path)
	if err != nil {
		return Options{}, err
	}
	var opts Options
	if err := json.Unmarshal(buf, &opts); err != nil {
		return Options{}, errors.Wrapf(err, "cannot parse options file %q", path)
	}
	return opts, nil
}

// WithDefaults returns a copy of o with every unset field given its default.
func (o Options) WithDefaults() Options {
	if o.StartOffset == nil {
		o.SetStartOffset(DefaultStartOffset)
	}
	if o.OutputPath == "" {
		o.OutputPath = DefaultOutputPath
	}
	if o.OutputDir == "" {
		o.OutputDir = filepath.Dir(o.OutputPath)
	}
	if o.DepthPrefix == "" {
		o.DepthPrefix = DefaultDepthPrefix
	}
	if o.ColorPrefix == "" {
		o.ColorPrefix = DefaultColorPrefix
	}
	if o.PointCloudPrefix == "" {
		base := filepath.Base(o.OutputPath)
		o.PointCloudPrefix = strings.TrimSuffix(base, filepath.Ext(base)) + "_"
	}
	if o.Emit == 0 {
		o.Emit = EmitAll
	}
	if o.DepthFormat == "" {
		o.DepthFormat = rimage.ExtPNG
	}
	if o.ColorFormat == "" {
		o.ColorFormat = rimage.ExtPNG
	}
	if o.PointCloudFormat == "" {
		o.PointCloudFormat = strings.TrimPrefix(strings.ToLower(filepath.Ext(o.OutputPath)), ".")
	}
	if o.PointCloudEncoding == "" {
		o.PointCloudEncoding = pointcloud.PLYAscii.String()
	}
	return o
}

// Validate checks options that have had defaults applied.
func (o *Options) Validate(path string) error {
	if o.InputPath == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "input_path")
	}
	if o.Offset() < 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("start offset must be non-negative, got %v", o.Offset()))
	}
	if _, ok := directionNames[o.Direction]; !ok {
		return goutils.NewConfigValidationError(path, errors.Errorf("unknown direction %d", o.Direction))
	}
	if o.Emit == 0 || o.Emit&^EmitAll != 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("invalid artifact set %d", o.Emit))
	}
	if !rimage.IsDepthExtension(o.DepthFormat) {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("depth_format must be one of %v, got %q", rimage.DepthExtensions, o.DepthFormat))
	}
	if !rimage.IsColorExtension(o.ColorFormat) {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("color_format must be one of %v, got %q", rimage.ColorExtensions, o.ColorFormat))
	}
	if !pointcloud.IsSupportedExtension("." + o.PointCloudFormat) {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("point cloud format must be %s or %s, got %q", pointcloud.ExtPLY, pointcloud.ExtPCD, o.PointCloudFormat))
	}
	if _, err := pointcloud.ParsePLYEncoding(o.PointCloudEncoding); err != nil {
		return goutils.NewConfigValidationError(path, err)
	}
	if o.MaxFrames < 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("max_frames must be non-negative, got %d", o.MaxFrames))
	}
	return nil
}
