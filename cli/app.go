// Package cli contains the rgbdkit command line interface.
package cli

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/rgbdkit/playback/playback"
)

const (
	// Flags.
	flagConfig             = "config"
	flagDebug              = "debug"
	flagLogFile            = "log-file"
	flagOutputDir          = "output-dir"
	flagDepthPrefix        = "depth-prefix"
	flagColorPrefix        = "color-prefix"
	flagPointCloudPrefix   = "pointcloud-prefix"
	flagDirection          = "direction"
	flagEmit               = "emit"
	flagDepthFormat        = "depth-format"
	flagColorFormat        = "color-format"
	flagPointCloudEncoding = "pointcloud-encoding"
	flagMaxFrames          = "max-frames"
)

var usageText = fmt.Sprintf("usage: rgbdkit playback [options] <recording> [start offset ms, default %d] [output path, default %s]",
	playback.DefaultStartOffset.Milliseconds(), playback.DefaultOutputPath)

// usageError marks an error caused by how the program was invoked.
type usageError struct {
	err error
}

func (e *usageError) Error() string {
	return e.err.Error()
}

func (e *usageError) ExitCode() int {
	return int(playback.StatusUsage)
}

func newUsageError(format string, args ...interface{}) error {
	return &usageError{err: errors.Errorf(format, args...)}
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "rgbdkit",
		Usage:           "reproject recorded RGB-D sessions between the depth and color cameras",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to `FILE`, rotated at 100MB",
			},
		},
		// Without a known command there is nothing to do.
		Action: func(c *cli.Context) error {
			if c.Args().Present() {
				return newUsageError("unknown command %q", c.Args().First())
			}
			return newUsageError("no command given")
		},
		OnUsageError: func(c *cli.Context, err error, isSubcommand bool) error {
			return &usageError{err: err}
		},
		// Run reports errors itself.
		ExitErrHandler: func(c *cli.Context, err error) {},
		Commands: []*cli.Command{
			{
				Name:      "playback",
				Usage:     "write aligned depth, color and point cloud files for every frame of a recording",
				UsageText: usageText,
				Description: "A recording is an Azure Kinect .mkv file or a directory holding " +
					"calibration.json, color/ and depth/. Frames are numbered from 1 in the order they are written.",
				OnUsageError: func(c *cli.Context, err error, isSubcommand bool) error {
					return &usageError{err: err}
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    flagConfig,
						Aliases: []string{"c"},
						Usage:   "load options from JSON `FILE`, expanding ${VAR} references; flags and arguments override it",
					},
					&cli.StringFlag{
						Name:  flagOutputDir,
						Usage: "directory for every artifact (default: directory of the output path)",
					},
					&cli.StringFlag{
						Name:  flagDepthPrefix,
						Usage: "file name prefix of depth images",
						Value: playback.DefaultDepthPrefix,
					},
					&cli.StringFlag{
						Name:  flagColorPrefix,
						Usage: "file name prefix of color images",
						Value: playback.DefaultColorPrefix,
					},
					&cli.StringFlag{
						Name:  flagPointCloudPrefix,
						Usage: "file name prefix of point clouds (default: base name of the output path)",
					},
					&cli.StringFlag{
						Name:  flagDirection,
						Usage: "depth-to-color, color-to-depth or both",
						Value: playback.DepthToColor.String(),
					},
					&cli.StringFlag{
						Name:  flagEmit,
						Usage: "comma separated artifacts to write: depth, color, pointcloud",
						Value: playback.EmitAll.String(),
					},
					&cli.StringFlag{
						Name:  flagDepthFormat,
						Usage: "depth image encoding: png or tiff",
						Value: "png",
					},
					&cli.StringFlag{
						Name:  flagColorFormat,
						Usage: "color image encoding: png, jpg, qoi, ppm, bmp or tiff",
						Value: "png",
					},
					&cli.StringFlag{
						Name:  flagPointCloudEncoding,
						Usage: "ascii or binary point cloud body",
						Value: "ascii",
					},
					&cli.IntFlag{
						Name:  flagMaxFrames,
						Usage: "stop after `N` frames, 0 for no limit",
					},
				},
				Action: PlaybackAction,
			},
		},
	}
}

// Run runs the app on args and returns the process exit code.
func Run(args []string, out, errOut io.Writer) int {
	app := NewApp(out, errOut)
	err := app.Run(args)
	if err == nil {
		return int(playback.StatusOK)
	}
	fmt.Fprintf(errOut, "error: %v\n", err)

	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		if coder.ExitCode() == int(playback.StatusUsage) {
			fmt.Fprintln(out, usageText)
		}
		return coder.ExitCode()
	}
	return int(playback.StatusFailed)
}
