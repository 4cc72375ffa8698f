// Package media probes videos and prepares audio for transcription using
// ffprobe and ffmpeg.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mgpai22/burnsub/internal/logging"
)

// Binaries resolves the ffmpeg and ffprobe executables.
type Binaries interface {
	FFmpeg(ctx context.Context) (string, error)
	FFprobe(ctx context.Context) (string, error)
}

// video file information
type Info struct {
	Path       string        `json:"path"`
	Duration   time.Duration `json:"duration"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	FrameRate  float64       `json:"frameRate"`
	VideoCodec string        `json:"videoCodec"`
	HasVideo   bool          `json:"hasVideo"`
	HasAudio   bool          `json:"hasAudio"`
	FormatName string        `json:"formatName"`
	Size       int64         `json:"size"`
}

type Processor struct {
	bin Binaries
	log *logging.Logger
}

func NewProcessor(bin Binaries, log *logging.Logger) *Processor {
	return &Processor{bin: bin, log: logging.OrNop(log)}
}

// JSON output from ffprobe
type ffprobeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
		Size       string `json:"size"`
	} `json:"format"`
}

// Probe reads container and stream information for path.
func (p *Processor) Probe(ctx context.Context, path string) (*Info, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("probe %s: %w", filepath.Base(path), err)
	}

	ffprobePath, err := p.bin.FFprobe(ctx)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	info, err := parseProbe(out.Bytes())
	if err != nil {
		return nil, err
	}
	info.Path = path

	p.log.Debugw("probed media",
		"path", path,
		"duration", info.Duration,
		"width", info.Width,
		"height", info.Height,
		"codec", info.VideoCodec,
	)
	return info, nil
}

func parseProbe(data []byte) (*Info, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &Info{FormatName: probe.Format.FormatName}

	if probe.Format.Duration != "" {
		seconds, err := strconv.ParseFloat(probe.Format.Duration, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse duration: %w", err)
		}
		info.Duration = time.Duration(seconds * float64(time.Second))
	}
	if probe.Format.Size != "" {
		info.Size, _ = strconv.ParseInt(probe.Format.Size, 10, 64)
	}

	for _, s := range probe.Streams {
		switch s.CodecType {
		case "video":
			// attached cover art shows up as a video stream after the real one
			if info.HasVideo {
				continue
			}
			info.HasVideo = true
			info.VideoCodec = s.CodecName
			info.Width = s.Width
			info.Height = s.Height
			info.FrameRate = parseRate(s.AvgFrameRate)
			if info.FrameRate == 0 {
				info.FrameRate = parseRate(s.RFrameRate)
			}
		case "audio":
			info.HasAudio = true
		}
	}

	return info, nil
}

// "30000/1001" or "25"
func parseRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// Duration of an audio or video file.
func (p *Processor) Duration(ctx context.Context, path string) (time.Duration, error) {
	info, err := p.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return info.Duration, nil
}

// containers accepted for upload and burn
var VideoExtensions = []string{".mp4", ".mov", ".avi", ".mkv", ".webm"}

// checks if the file is a supported video based on extension
func IsVideoFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, v := range VideoExtensions {
		if ext == v {
			return true
		}
	}
	return false
}
