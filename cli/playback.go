package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	goutils "go.viam.com/utils"

	"github.com/rgbdkit/playback/logging"
	"github.com/rgbdkit/playback/playback"
)

const (
	logFileMaxSizeMB  = 100
	logFileMaxBackups = 3
)

// PlaybackAction is the action of the playback command.
func PlaybackAction(c *cli.Context) error {
	opts, err := playbackOptions(c)
	if err != nil {
		return err
	}

	logger, closeLogs := newLogger(c)
	defer closeLogs()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	status, res, err := playback.Run(ctx, opts, logger)
	if err != nil {
		if status == playback.StatusUsage {
			return &usageError{err: err}
		}
		return cli.Exit(err, int(status))
	}
	fmt.Fprintf(c.App.Writer, "wrote %d frames, %d files (%d frames skipped)\n",
		res.FramesProcessed, len(res.Artifacts), res.FramesSkipped)
	return nil
}

// playbackOptions builds options from the config file, then the positional arguments
// <recording> [start offset ms] [output path], then any flag set on the command line.
func playbackOptions(c *cli.Context) (playback.Options, error) {
	var opts playback.Options
	if path := c.String(flagConfig); path != "" {
		fromFile, err := playback.ReadOptionsFile(path)
		if err != nil {
			return opts, &usageError{err: err}
		}
		opts = fromFile
	}

	args := c.Args()
	if args.Len() > 3 {
		return opts, newUsageError("too many arguments: %q", args.Slice()[3:])
	}
	if args.Len() > 0 {
		opts.InputPath = args.Get(0)
	}
	if opts.InputPath == "" {
		return opts, newUsageError("no recording given")
	}
	if args.Len() > 1 {
		millis, err := strconv.ParseInt(args.Get(1), 10, 64)
		if err != nil || millis < 0 {
			return opts, newUsageError("start offset must be a non-negative number of milliseconds, got %q", args.Get(1))
		}
		opts.SetStartOffset(time.Duration(millis) * time.Millisecond)
	}
	if args.Len() > 2 {
		opts.OutputPath = args.Get(2)
	}

	for flag, field := range map[string]*string{
		flagOutputDir:          &opts.OutputDir,
		flagDepthPrefix:        &opts.DepthPrefix,
		flagColorPrefix:        &opts.ColorPrefix,
		flagPointCloudPrefix:   &opts.PointCloudPrefix,
		flagDepthFormat:        &opts.DepthFormat,
		flagColorFormat:        &opts.ColorFormat,
		flagPointCloudEncoding: &opts.PointCloudEncoding,
	} {
		if c.IsSet(flag) {
			*field = c.String(flag)
		}
	}
	if c.IsSet(flagDirection) {
		d, err := playback.ParseDirection(c.String(flagDirection))
		if err != nil {
			return opts, &usageError{err: err}
		}
		opts.Direction = d
	}
	if c.IsSet(flagEmit) {
		emit, err := playback.ParseArtifacts(c.String(flagEmit))
		if err != nil {
			return opts, &usageError{err: err}
		}
		opts.Emit = emit
	}
	if c.IsSet(flagMaxFrames) {
		opts.MaxFrames = c.Int(flagMaxFrames)
	}
	return opts, nil
}

// newLogger logs to the app's error writer and, with --log-file, to a rotated file.
func newLogger(c *cli.Context) (logging.Logger, func()) {
	logger := logging.NewBlankLogger("rgbdkit")
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	logger.SetLevel(logging.INFO)
	if c.Bool(flagDebug) {
		logger.SetLevel(logging.DEBUG)
	}

	path := c.String(flagLogFile)
	if path == "" {
		return logger, func() {}
	}
	appender := logging.NewFileAppender(path, logFileMaxSizeMB, logFileMaxBackups)
	logger.AddAppender(appender)
	return logger, func() {
		goutils.UncheckedError(logger.Sync())
		goutils.UncheckedError(appender.Close())
	}
}
