package playback

import (
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/rgbdkit/playback/pointcloud"
	"github.com/rgbdkit/playback/recording"
	"github.com/rgbdkit/playback/rimage"
	"github.com/rgbdkit/playback/rimage/transform"
)

// frameProcessor turns one capture into the artifacts of one frame index.
type frameProcessor struct {
	opts *Options
	tc   *transform.DepthColorTransform
}

// process handles one capture and releases it along with every buffer derived from it. It
// returns the artifacts written before any failure.
func (fp *frameProcessor) process(capture *recording.Capture, frame int) ([]string, *FrameError) {
	defer capture.Release()

	if capture.Depth == nil {
		return nil, newFrameError(FailureMissingSample, frame, errors.New("capture has no depth sample"))
	}
	if capture.Color == nil {
		return nil, newFrameError(FailureMissingSample, frame, errors.New("capture has no color sample"))
	}
	if err := capture.Depth.CheckFormat(rimage.FormatDepth16); err != nil {
		return nil, newFrameError(FailureFormatMismatch, frame, err)
	}
	if err := capture.Color.CheckFormat(rimage.FormatColorMJPG); err != nil {
		return nil, newFrameError(FailureFormatMismatch, frame, err)
	}

	color, err := rimage.NewBuffer(rimage.FormatColorBGRA32, capture.Color.Width(), capture.Color.Height(), 0)
	if err != nil {
		return nil, newFrameError(FailureBufferAllocation, frame, err)
	}
	defer color.Release()
	if err := rimage.DecodeMJPEGInto(capture.Color, color); err != nil {
		return nil, newFrameError(FailureDecode, frame, err)
	}

	var written []string
	if fp.opts.Direction.toColor() {
		paths, fe := fp.depthToColor(capture.Depth, color, frame)
		written = append(written, paths...)
		if fe != nil {
			return written, fe
		}
	}
	if fp.opts.Direction.toDepth() {
		paths, fe := fp.colorToDepth(capture.Depth, color, frame)
		written = append(written, paths...)
		if fe != nil {
			return written, fe
		}
	}
	return written, nil
}

// depthToColor writes the depth drawn into the color camera next to the decoded color.
func (fp *frameProcessor) depthToColor(depth, color *rimage.Buffer, frame int) ([]string, *FrameError) {
	transformed, err := fp.tc.DepthImageToColorCamera(depth)
	if err != nil {
		return nil, newFrameError(FailureTransform, frame, err)
	}
	defer transformed.Release()
	return fp.write(transformed, color, transform.ColorCamera, fp.opts.directionTag(DepthToColor), frame)
}

// colorToDepth writes the original depth next to the color sampled into the depth camera.
func (fp *frameProcessor) colorToDepth(depth, color *rimage.Buffer, frame int) ([]string, *FrameError) {
	reprojected, err := fp.tc.ColorImageToDepthCamera(depth, color)
	if err != nil {
		return nil, newFrameError(FailureTransform, frame, err)
	}
	defer reprojected.Release()
	return fp.write(depth, reprojected, transform.DepthCamera, fp.opts.directionTag(ColorToDepth), frame)
}

// write writes the selected artifacts of a depth and color pair sharing the geometry of camera.
func (fp *frameProcessor) write(
	depth, color *rimage.Buffer,
	camera transform.CameraType,
	tag string,
	frame int,
) ([]string, *FrameError) {
	var written []string
	if fp.opts.Emit.Has(EmitDepth) {
		path := fp.opts.artifactPath(fp.opts.DepthPrefix, tag, frame, fp.opts.DepthFormat)
		if err := writeDepth(path, depth); err != nil {
			return written, newFrameError(FailureWrite, frame, err)
		}
		written = append(written, path)
	}
	if fp.opts.Emit.Has(EmitColor) {
		path := fp.opts.artifactPath(fp.opts.ColorPrefix, tag, frame, fp.opts.ColorFormat)
		if err := writeColor(path, color); err != nil {
			return written, newFrameError(FailureWrite, frame, err)
		}
		written = append(written, path)
	}
	if fp.opts.Emit.Has(EmitPointCloud) {
		points, err := fp.tc.DepthImageToPointCloud(depth, camera)
		if err != nil {
			return written, newFrameError(FailureTransform, frame, err)
		}
		defer points.Release()
		cloud, err := pointcloud.NewFromXYZBuffer(points, color)
		if err != nil {
			return written, newFrameError(FailureTransform, frame, err)
		}
		path := fp.opts.artifactPath(fp.opts.PointCloudPrefix, tag, frame, fp.opts.PointCloudFormat)
		encoding, err := pointcloud.ParsePLYEncoding(fp.opts.PointCloudEncoding)
		if err != nil {
			return written, newFrameError(FailureWrite, frame, err)
		}
		if err := pointcloud.WriteToFile(cloud, path, encoding == pointcloud.PLYBinary); err != nil {
			return written, newFrameError(FailureWrite, frame, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func writeDepth(path string, depth *rimage.Buffer) error {
	dm, err := rimage.DepthMapFromBuffer(depth)
	if err != nil {
		return err
	}
	return errors.Wrapf(rimage.WriteImageToFile(path, dm), "cannot write depth image %q", filepath.Base(path))
}

func writeColor(path string, color *rimage.Buffer) error {
	img, err := rimage.NewImageFromBuffer(color)
	if err != nil {
		return err
	}
	return errors.Wrapf(rimage.WriteImageToFile(path, img), "cannot write color image %q", filepath.Base(path))
}
