package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/multierr"
)

// audio chunk info
type ChunkInfo struct {
	Path      string
	Index     int
	StartTime time.Duration
	EndTime   time.Duration
}

// holds options for audio extraction
type ExtractAudioOptions struct {
	Format     string // wav, mp3, aac, flac
	SampleRate int
	Channels   int
	Bitrate    string // lossy formats only, e.g. "64k"
}

// 16kHz mono wav, what local whisper expects
func DefaultExtractAudioOptions() ExtractAudioOptions {
	return ExtractAudioOptions{
		Format:     "wav",
		SampleRate: 16000,
		Channels:   1,
	}
}

// small mp3 for hosted APIs with upload limits
func CompressedAudioOptions() ExtractAudioOptions {
	return ExtractAudioOptions{
		Format:     "mp3",
		SampleRate: 16000,
		Channels:   1,
		Bitrate:    "64k",
	}
}

func extractAudioArgs(videoPath, outputPath string, opts ExtractAudioOptions) []string {
	kwargs := ffmpeg.KwArgs{
		"vn": "",
		"ar": opts.SampleRate,
		"ac": opts.Channels,
	}

	switch opts.Format {
	case "mp3":
		kwargs["acodec"] = "libmp3lame"
		if opts.Bitrate != "" {
			kwargs["b:a"] = opts.Bitrate
		}
	case "aac":
		kwargs["acodec"] = "aac"
		if opts.Bitrate != "" {
			kwargs["b:a"] = opts.Bitrate
		}
	case "flac":
		kwargs["acodec"] = "flac"
	default:
		kwargs["acodec"] = "pcm_s16le"
	}

	return ffmpeg.Input(videoPath).
		Output(outputPath, kwargs).
		OverWriteOutput().
		GetArgs()
}

// extracts the audio track of a video
func (p *Processor) ExtractAudio(
	ctx context.Context,
	videoPath, outputPath string,
	opts ExtractAudioOptions,
) error {
	if _, err := os.Stat(videoPath); os.IsNotExist(err) {
		return fmt.Errorf("video file not found: %s", videoPath)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	ffmpegPath, err := p.bin.FFmpeg(ctx)
	if err != nil {
		return err
	}

	p.log.Debugw("extracting audio", "video", videoPath, "output", outputPath, "format", opts.Format)
	if err := RunFFmpeg(ctx, ffmpegPath, extractAudioArgs(videoPath, outputPath, opts)); err != nil {
		return fmt.Errorf("ffmpeg extraction failed: %w", err)
	}
	return nil
}

// chunkJob represents a single chunk to be created
type chunkJob struct {
	index        int
	startSeconds float64
	endSeconds   float64
	chunkPath    string
}

func planChunks(audioPath, outputDir string, total, chunk time.Duration) []chunkJob {
	baseName := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	ext := filepath.Ext(audioPath)

	chunkSeconds := chunk.Seconds()
	totalSeconds := total.Seconds()

	var jobs []chunkJob
	for i := 0; ; i++ {
		startSeconds := float64(i) * chunkSeconds
		if startSeconds >= totalSeconds {
			break
		}
		endSeconds := startSeconds + chunkSeconds
		if endSeconds > totalSeconds {
			endSeconds = totalSeconds
		}
		jobs = append(jobs, chunkJob{
			index:        i,
			startSeconds: startSeconds,
			endSeconds:   endSeconds,
			chunkPath:    filepath.Join(outputDir, fmt.Sprintf("%s_chunk_%03d%s", baseName, i, ext)),
		})
	}
	return jobs
}

// ChunkAudio splits an audio file into pieces of chunkDuration, running up
// to concurrency ffmpeg processes at once (10 when concurrency <= 0).
func (p *Processor) ChunkAudio(
	ctx context.Context,
	audioPath string,
	chunkDuration time.Duration,
	outputDir string,
	concurrency int,
) ([]ChunkInfo, error) {
	if chunkDuration <= 0 {
		return nil, fmt.Errorf("chunk duration must be positive, got %v", chunkDuration)
	}
	if concurrency <= 0 {
		concurrency = 10
	}

	totalDuration, err := p.Duration(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get audio duration: %w", err)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	ffmpegPath, err := p.bin.FFmpeg(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		chunks   []ChunkInfo
		firstErr error
		wg       sync.WaitGroup
	)

	sem := make(chan struct{}, concurrency)

	for _, job := range planChunks(audioPath, outputDir, totalDuration, chunkDuration) {
		wg.Add(1)
		go func(j chunkJob) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			args := ffmpeg.Input(audioPath, ffmpeg.KwArgs{"ss": j.startSeconds}).
				Output(j.chunkPath, ffmpeg.KwArgs{
					"t": j.endSeconds - j.startSeconds,
					"c": "copy",
				}).
				OverWriteOutput().
				GetArgs()

			err := RunFFmpeg(ctx, ffmpegPath, args)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("failed to create chunk %d: %w", j.index, err)
					cancel()
				}
				return
			}

			chunks = append(chunks, ChunkInfo{
				Path:      j.chunkPath,
				Index:     j.index,
				StartTime: time.Duration(j.startSeconds * float64(time.Second)),
				EndTime:   time.Duration(j.endSeconds * float64(time.Second)),
			})
		}(job)
	}

	wg.Wait()

	if firstErr == nil && ctx.Err() != nil {
		firstErr = ctx.Err()
	}
	if firstErr != nil {
		_ = CleanupChunks(chunks)
		return nil, firstErr
	}

	// keep chunks in playback order
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].Index < chunks[j].Index
	})

	p.log.Debugw("chunked audio", "path", audioPath, "chunks", len(chunks), "chunk_duration", chunkDuration)
	return chunks, nil
}

// removes all chunk files
func CleanupChunks(chunks []ChunkInfo) error {
	var err error
	for _, chunk := range chunks {
		if rmErr := os.Remove(chunk.Path); rmErr != nil && !os.IsNotExist(rmErr) {
			err = multierr.Append(err, rmErr)
		}
	}
	return err
}
