package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mgpai22/burnsub/internal/media"
	"github.com/mgpai22/burnsub/internal/subtitle"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe [video_file]",
	Short: "Transcribe a video into an SRT file",
	Long: `Transcribe the speech in a video into timed captions and write them as SubRip.

The provider comes from the config file (whisper by default) and can be
overridden per run. Hosted providers receive compressed audio in chunks.

Examples:
  burnsub transcribe talk.mp4
  burnsub transcribe talk.mp4 --model small -o talk.srt
  burnsub transcribe talk.mp4 --provider openai`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscribe,
}

func init() {
	rootCmd.AddCommand(transcribeCmd)

	transcribeCmd.Flags().
		StringP("model", "m", "", "Model: whisper size (tiny, base, small, medium, large) or provider model")
	transcribeCmd.Flags().
		String("provider", "", "Transcription provider (whisper, openai, gemini)")
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	videoPath := args[0]

	if _, err := os.Stat(videoPath); os.IsNotExist(err) {
		return fmt.Errorf("file not found: %s", videoPath)
	}
	if !media.IsVideoFile(videoPath) {
		return fmt.Errorf("unsupported file type: %s (expected one of %s)", filepath.Ext(videoPath), strings.Join(media.VideoExtensions, ", "))
	}

	model, _ := cmd.Flags().GetString("model")
	provider, _ := cmd.Flags().GetString("provider")
	outputPath, _ := cmd.Flags().GetString("output")
	language, _ := cmd.Flags().GetString("language")

	if outputPath == "" {
		outputPath = strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + ".srt"
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

	logger.Infow("Starting transcription",
		"input", videoPath,
		"output", outputPath,
		"model", model,
	)

	segments, err := svc.Transcribe(cmd.Context(), videoPath, model)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		logger.Warnw("No speech found", "input", videoPath)
	}

	if err := subtitle.WriteFile(outputPath, segments); err != nil {
		return err
	}

	absOutput, _ := filepath.Abs(outputPath)
	fmt.Fprintf(cmd.OutOrStdout(), "Subtitles written: %s\n", absOutput)
	fmt.Fprintf(cmd.OutOrStdout(), "  Captions: %d\n", len(segments))
	return nil
}
