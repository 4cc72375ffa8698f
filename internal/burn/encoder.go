package burn

import (
	"context"
	"path/filepath"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/mgpai22/burnsub/internal/logging"
	"github.com/mgpai22/burnsub/internal/media"
)

// FFmpegEncoder re-encodes the video stream through the subtitles filter
// and copies audio unchanged.
type FFmpegEncoder struct {
	bin        media.Binaries
	VideoCodec string
	Preset     string
	CRF        int
	log        *logging.Logger
}

func NewFFmpegEncoder(bin media.Binaries, videoCodec, preset string, crf int, log *logging.Logger) *FFmpegEncoder {
	return &FFmpegEncoder{
		bin:        bin,
		VideoCodec: videoCodec,
		Preset:     preset,
		CRF:        crf,
		log:        logging.OrNop(log),
	}
}

func (e *FFmpegEncoder) Encode(ctx context.Context, req EncodeRequest) error {
	ffmpegPath, err := e.bin.FFmpeg(ctx)
	if err != nil {
		return err
	}
	args := e.Args(req)
	e.log.Debugw("running ffmpeg", "args", strings.Join(args, " "))
	return media.RunFFmpeg(ctx, ffmpegPath, args)
}

// Args compiles the ffmpeg command line for req. WebM outputs need a codec
// the container accepts, so they get VP9 regardless of VideoCodec.
func (e *FFmpegEncoder) Args(req EncodeRequest) []string {
	kwargs := ffmpeg.KwArgs{
		"vf":  req.Filter,
		"c:a": "copy",
	}

	switch strings.ToLower(filepath.Ext(req.Output)) {
	case ".webm":
		kwargs["c:v"] = "libvpx-vp9"
		kwargs["b:v"] = "0"
		if e.CRF > 0 {
			kwargs["crf"] = e.CRF
		}
	default:
		codec := e.VideoCodec
		if codec == "" {
			codec = "libx264"
		}
		kwargs["c:v"] = codec
		if e.Preset != "" {
			kwargs["preset"] = e.Preset
		}
		if e.CRF > 0 {
			kwargs["crf"] = e.CRF
		}
		if codec == "libx264" {
			kwargs["pix_fmt"] = "yuv420p"
		}
	}

	return ffmpeg.Input(req.Input).
		Output(req.Output, kwargs).
		OverWriteOutput().
		GetArgs()
}
