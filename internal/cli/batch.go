package cli

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/mgpai22/burnsub/internal/burn"
	"github.com/mgpai22/burnsub/internal/media"
	"github.com/mgpai22/burnsub/internal/subtitle"
	"github.com/mgpai22/burnsub/internal/transcribe"
)

var batchCmd = &cobra.Command{
	Use:   "batch [directory]",
	Short: "Transcribe and burn captions into every video in a directory",
	Long: `Caption every video in a directory in one go.

Each video is transcribed to <video>.srt next to it and the captions are
burned into a copy under the output directory. A video that already has a
.srt beside it is burned from that file unless --retranscribe is set.
A failing video is logged and the rest still run.

Examples:
  burnsub batch ./lectures
  burnsub batch ./lectures --recursive --provider openai
  burnsub batch ./clips --font Roboto --font-size 36 --output-dir ./exports`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().
		StringP("model", "m", "", "Model: whisper size (tiny, base, small, medium, large) or provider model")
	batchCmd.Flags().
		String("provider", "", "Transcription provider (whisper, openai, gemini)")
	batchCmd.Flags().
		String("output-dir", "", "Directory for exports (default from config)")
	batchCmd.Flags().
		BoolP("recursive", "r", false, "Include videos in subdirectories")
	batchCmd.Flags().
		Bool("retranscribe", false, "Transcribe even when a .srt already exists")
	addStyleFlags(batchCmd)
}

// video files under dir in lexical order
func findVideos(dir string, recursive bool) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	var videos []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && (!recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if media.IsVideoFile(path) {
			videos = append(videos, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(videos)
	return videos, nil
}

func sidecarSRT(videoPath string) string {
	return strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + ".srt"
}

func runBatch(cmd *cobra.Command, args []string) error {
	dir := args[0]
	model, _ := cmd.Flags().GetString("model")
	provider, _ := cmd.Flags().GetString("provider")
	outputDir, _ := cmd.Flags().GetString("output-dir")
	recursive, _ := cmd.Flags().GetBool("recursive")
	retranscribe, _ := cmd.Flags().GetBool("retranscribe")
	language, _ := cmd.Flags().GetString("language")

	videos, err := findVideos(dir, recursive)
	if err != nil {
		return err
	}
	if len(videos) == 0 {
		return fmt.Errorf("no video files in %s (expected one of %s)", dir, strings.Join(media.VideoExtensions, ", "))
	}
	if language != "" {
		cfg.Transcription.Language = language
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	svc, err := a.transcription(strings.ToLower(provider))
	if err != nil {
		return err
	}
	p := a.pipeline(outputDir)

	logger.Infow("Starting batch", "dir", dir, "videos", len(videos))

	out := cmd.OutOrStdout()
	var failed error
	done := 0
	for i, videoPath := range videos {
		if err := cmd.Context().Err(); err != nil {
			return multierr.Append(failed, err)
		}
		log := logger.With("video", videoPath, "n", i+1, "of", len(videos))

		res, err := captionVideo(cmd, a, svc, p, videoPath, model, retranscribe)
		if err != nil {
			log.Errorw("Video failed", "error", err)
			failed = multierr.Append(failed, fmt.Errorf("%s: %w", videoPath, err))
			continue
		}
		done++
		log.Infow("Video captioned", "output", res.VideoPath)
		fmt.Fprintf(out, "%s -> %s\n", videoPath, res.VideoPath)
	}

	fmt.Fprintf(out, "Captioned %d of %d videos\n", done, len(videos))
	return failed
}

func captionVideo(
	cmd *cobra.Command,
	a *app,
	svc *transcribe.Service,
	p *burn.Pipeline,
	videoPath, model string,
	retranscribe bool,
) (*burn.Result, error) {
	ctx := cmd.Context()

	segments, err := batchSegments(ctx, svc, videoPath, model, retranscribe)
	if err != nil {
		return nil, err
	}

	frame, _, err := a.frame(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	st, err := styleFromFlags(cmd, cfg.Style, frame.Height)
	if err != nil {
		return nil, err
	}
	if err := a.catalog.Check(st); err != nil {
		return nil, err
	}

	job := burn.NewExportJob(burn.Source{Path: videoPath, OriginalName: filepath.Base(videoPath)}, segments, st)
	return p.Run(ctx, job)
}

// reads the sidecar .srt when there is one, otherwise transcribes and writes it
func batchSegments(ctx context.Context, svc *transcribe.Service, videoPath, model string, retranscribe bool) ([]subtitle.Segment, error) {
	srtPath := sidecarSRT(videoPath)
	if !retranscribe {
		if _, err := os.Stat(srtPath); err == nil {
			logger.Infow("Using existing subtitles", "video", videoPath, "subtitles", srtPath)
			return subtitle.Open(srtPath)
		}
	}

	segments, err := svc.Transcribe(ctx, videoPath, model)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		logger.Warnw("No speech found", "input", videoPath)
	}
	if err := subtitle.WriteFile(srtPath, segments); err != nil {
		return nil, err
	}
	return segments, nil
}
