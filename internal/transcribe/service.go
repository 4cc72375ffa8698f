package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mgpai22/burnsub/internal/errs"
	"github.com/mgpai22/burnsub/internal/logging"
	"github.com/mgpai22/burnsub/internal/media"
	"github.com/mgpai22/burnsub/internal/subtitle"
)

// what the service needs from the media layer
type AudioProcessor interface {
	ExtractAudio(ctx context.Context, videoPath, outputPath string, opts media.ExtractAudioOptions) error
	ChunkAudio(ctx context.Context, audioPath string, chunkDuration time.Duration, outputDir string, concurrency int) ([]media.ChunkInfo, error)
}

// builds a transcriber for one request; model may be empty
type NewFunc func(ctx context.Context, model string) (Transcriber, error)

type ServiceConfig struct {
	Provider      Provider
	WorkDir       string // empty: os temp dir
	ChunkDuration time.Duration
	Concurrency   int
	Timeout       time.Duration
}

// Service turns a video file into caption segments: audio extraction,
// optional chunking for hosted providers, and timestamp offsetting.
type Service struct {
	cfg   ServiceConfig
	audio AudioProcessor
	newT  NewFunc
	log   *logging.Logger
}

func NewService(cfg ServiceConfig, audio AudioProcessor, newT NewFunc, log *logging.Logger) *Service {
	if cfg.ChunkDuration <= 0 {
		cfg.ChunkDuration = 10 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	return &Service{
		cfg:   cfg,
		audio: audio,
		newT:  newT,
		log:   logging.OrNop(log),
	}
}

// Transcribe returns the captions spoken in videoPath, sorted by start.
// Every failure carries KindTranscriptionFailed except cancellation.
func (s *Service) Transcribe(ctx context.Context, videoPath, model string) ([]subtitle.Segment, error) {
	const op = "transcribe"

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	started := time.Now()
	log := s.log.With("video", filepath.Base(videoPath), "provider", s.cfg.Provider)

	segments, err := s.transcribe(ctx, videoPath, model, log)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, errs.E(errs.KindCanceled, op, err)
		}
		log.Warnw("transcription failed", "error", err)
		return nil, errs.E(errs.KindTranscriptionFailed, op, err)
	}

	log.Infow("transcription complete", "segments", len(segments), "elapsed", time.Since(started).Round(time.Millisecond))
	return segments, nil
}

func (s *Service) transcribe(ctx context.Context, videoPath, model string, log *logging.Logger) ([]subtitle.Segment, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return nil, fmt.Errorf("video not found: %w", err)
	}

	transcriber, err := s.newT(ctx, model)
	if err != nil {
		return nil, err
	}

	tempDir, err := os.MkdirTemp(s.cfg.WorkDir, "burnsub-transcribe-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(tempDir); rmErr != nil {
			log.Warnw("failed to remove temp dir", "dir", tempDir, "error", rmErr)
		}
	}()

	opts := media.DefaultExtractAudioOptions()
	if s.cfg.Provider.Hosted() {
		opts = media.CompressedAudioOptions()
	}
	audioPath := filepath.Join(tempDir, "audio."+opts.Format)

	log.Debugw("extracting audio", "format", opts.Format)
	if err := s.audio.ExtractAudio(ctx, videoPath, audioPath, opts); err != nil {
		return nil, fmt.Errorf("extract audio: %w", err)
	}

	var result *Result
	if s.cfg.Provider.Hosted() {
		chunks, err := s.audio.ChunkAudio(ctx, audioPath, s.cfg.ChunkDuration, filepath.Join(tempDir, "chunks"), s.cfg.Concurrency)
		if err != nil {
			return nil, fmt.Errorf("chunk audio: %w", err)
		}
		log.Debugw("transcribing chunks", "chunks", len(chunks))
		result, err = TranscribeChunks(ctx, transcriber, chunks, s.cfg.Concurrency)
		if err != nil {
			return nil, err
		}
	} else {
		result, err = transcriber.Transcribe(ctx, audioPath)
		if err != nil {
			return nil, err
		}
	}

	return cleanSegments(result.Segments, log), nil
}

// drops captions an editor could never serialize and sorts by start
func cleanSegments(in []subtitle.Segment, log *logging.Logger) []subtitle.Segment {
	out := make([]subtitle.Segment, 0, len(in))
	for _, seg := range subtitle.FromTranscript(in) {
		if _, err := subtitle.Normalize([]subtitle.Segment{seg}); err != nil {
			log.Debugw("dropping segment", "start", seg.Start, "end", seg.End, "error", err)
			continue
		}
		out = append(out, seg)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start < out[j].Start
	})
	return out
}
