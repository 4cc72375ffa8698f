package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mgpai22/burnsub/internal/burn"
	"github.com/mgpai22/burnsub/internal/subtitle"
)

var burnCmd = &cobra.Command{
	Use:   "burn [video_file]",
	Short: "Burn captions from an SRT or VTT file into a video",
	Long: `Render captions permanently into a copy of a video.

Style flags override the style in the config file. Output goes to
<output dir>/<job id>/subtitled_<video name> together with the SRT that
was burned.

Examples:
  burnsub burn talk.mp4 --subtitles talk.srt
  burnsub burn talk.mp4 -s talk.vtt --font Roboto --font-size 36 --font-color "#ffff00"
  burnsub burn talk.mp4 -s talk.srt --output-dir ./exports`,
	Args: cobra.ExactArgs(1),
	RunE: runBurn,
}

func init() {
	rootCmd.AddCommand(burnCmd)

	burnCmd.Flags().
		StringP("subtitles", "s", "", "Caption file (.srt or .vtt)")
	burnCmd.Flags().
		String("output-dir", "", "Directory for exports (default from config)")
	_ = burnCmd.MarkFlagRequired("subtitles")
	addStyleFlags(burnCmd)
}

func runBurn(cmd *cobra.Command, args []string) error {
	videoPath := args[0]
	subsPath, _ := cmd.Flags().GetString("subtitles")
	outputDir, _ := cmd.Flags().GetString("output-dir")

	if _, err := os.Stat(videoPath); os.IsNotExist(err) {
		return fmt.Errorf("file not found: %s", videoPath)
	}

	segments, err := subtitle.Open(subsPath)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	frame, _, err := a.frame(cmd.Context(), videoPath)
	if err != nil {
		return err
	}
	st, err := styleFromFlags(cmd, cfg.Style, frame.Height)
	if err != nil {
		return err
	}
	if err := a.catalog.Check(st); err != nil {
		return err
	}

	job := burn.NewExportJob(burn.Source{Path: videoPath, OriginalName: filepath.Base(videoPath)}, segments, st)

	p := a.pipeline(outputDir)
	p.OnTransition = func(jobID string, from, to burn.State) {
		logger.Infow("Export progress", "job", jobID, "state", to)
	}

	logger.Infow("Burning captions",
		"input", videoPath,
		"subtitles", subsPath,
		"captions", len(segments),
		"style", st.String(),
	)

	res, err := p.Run(cmd.Context(), job)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Video written: %s\n", res.VideoPath)
	fmt.Fprintf(out, "  Subtitles: %s\n", res.SubtitlePath)
	if res.Output != nil {
		fmt.Fprintf(out, "  Duration: %s\n", res.Output.Duration)
	}
	fmt.Fprintf(out, "  Elapsed: %s\n", res.Elapsed.Round(1e6))
	return nil
}
