package mkv

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Track titles and container tags written by the Azure Kinect recorder.
const (
	titleColor = "COLOR"
	titleDepth = "DEPTH"

	tagDepthMode = "K4A_DEPTH_MODE"
	tagColorMode = "K4A_COLOR_MODE"

	calibrationAttachment = "calibration.json"
)

type probeStream struct {
	Index      int               `json:"index"`
	CodecType  string            `json:"codec_type"`
	CodecName  string            `json:"codec_name"`
	CodecTag   string            `json:"codec_tag_string"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	RFrameRate string            `json:"r_frame_rate"`
	Tags       map[string]string `json:"tags"`
}

type probeResult struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration string            `json:"duration"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
}

// tag looks a tag up ignoring case, since muxers disagree on tag name case.
func tag(tags map[string]string, name string) string {
	for k, v := range tags {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// videoTrack is a video stream selected out of a recording.
type videoTrack struct {
	index         int
	codec         string
	width, height int
	period        time.Duration
}

func (t videoTrack) isMJPEG() bool {
	return t.codec == "mjpeg"
}

// recordingInfo is what a session needs to know about a recording before reading it.
type recordingInfo struct {
	color      videoTrack
	depth      videoTrack
	attachment int
	depthMode  string
	colorMode  string
	duration   time.Duration
}

func parseFrameRate(rate string) (time.Duration, error) {
	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid frame rate %q", rate)
	}
	d := 1.
	if found {
		if d, err = strconv.ParseFloat(den, 64); err != nil {
			return 0, errors.Wrapf(err, "invalid frame rate %q", rate)
		}
	}
	if n <= 0 || d <= 0 {
		return 0, errors.Errorf("invalid frame rate %q", rate)
	}
	return time.Duration(float64(time.Second) * d / n), nil
}

// parseProbe picks the color and depth tracks and the calibration attachment out of
// ffprobe's JSON output. Tracks are found by title, falling back to codec: the depth track
// is the first non-MJPEG video track and the color track the first MJPEG one.
func parseProbe(out []byte) (*recordingInfo, error) {
	var probe probeResult
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, errors.Wrap(err, "cannot parse ffprobe output")
	}

	var videos []probeStream
	info := &recordingInfo{attachment: -1}
	for _, st := range probe.Streams {
		switch st.CodecType {
		case "video":
			videos = append(videos, st)
		case "attachment":
			if info.attachment < 0 && strings.EqualFold(tag(st.Tags, "filename"), calibrationAttachment) {
				info.attachment = st.Index
			}
		}
	}

	color, depth := -1, -1
	for i, st := range videos {
		switch strings.ToUpper(tag(st.Tags, "title")) {
		case titleColor:
			color = i
		case titleDepth:
			depth = i
		}
	}
	for i, st := range videos {
		if color < 0 && st.CodecName == "mjpeg" && i != depth {
			color = i
		}
		if depth < 0 && st.CodecName != "mjpeg" && i != color {
			depth = i
		}
	}
	if depth < 0 {
		return nil, errors.New("recording has no depth track")
	}
	if color < 0 {
		return nil, errors.New("recording has no color track")
	}

	var err error
	if info.color, err = newVideoTrack(videos[color]); err != nil {
		return nil, errors.Wrap(err, "color track")
	}
	if info.depth, err = newVideoTrack(videos[depth]); err != nil {
		return nil, errors.Wrap(err, "depth track")
	}
	info.depthMode = tag(probe.Format.Tags, tagDepthMode)
	info.colorMode = tag(probe.Format.Tags, tagColorMode)
	if probe.Format.Duration != "" {
		if secs, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			info.duration = time.Duration(secs * float64(time.Second))
		}
	}
	return info, nil
}

func newVideoTrack(st probeStream) (videoTrack, error) {
	if st.Width <= 0 || st.Height <= 0 {
		return videoTrack{}, errors.Errorf("stream %d has no frame size", st.Index)
	}
	period, err := parseFrameRate(st.RFrameRate)
	if err != nil {
		return videoTrack{}, err
	}
	return videoTrack{index: st.Index, codec: st.CodecName, width: st.Width, height: st.Height, period: period}, nil
}

type packetProbe struct {
	Packets []struct {
		PtsTime string `json:"pts_time"`
	} `json:"packets"`
}

// parsePacketTimes reads the presentation time of every packet of one track out of ffprobe's
// -show_packets output. A packet without a time is one period after the packet before it.
func parsePacketTimes(out []byte, period time.Duration) ([]time.Duration, error) {
	var probe packetProbe
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, errors.Wrap(err, "cannot parse ffprobe packets")
	}
	times := make([]time.Duration, 0, len(probe.Packets))
	for i, p := range probe.Packets {
		secs, err := strconv.ParseFloat(p.PtsTime, 64)
		if err != nil {
			if i == 0 {
				times = append(times, 0)
			} else {
				times = append(times, times[i-1]+period)
			}
			continue
		}
		times = append(times, time.Duration(math.Round(secs*1e6))*time.Microsecond)
	}
	return times, nil
}

// probePacketTimes lists the presentation times of a track, in the order its frames come out
// of ffmpeg.
func probePacketTimes(path string, track videoTrack) ([]time.Duration, error) {
	out, err := ffmpeg.Probe(path, ffmpeg.KwArgs{
		"v":              "error",
		"select_streams": strconv.Itoa(track.index),
		"show_packets":   "",
	})
	if err != nil {
		return nil, errors.Wrapf(err, "cannot list packets of stream %d", track.index)
	}
	return parsePacketTimes([]byte(out), track.period)
}
