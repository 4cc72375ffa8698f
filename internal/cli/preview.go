package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mgpai22/burnsub/internal/overlay"
	"github.com/mgpai22/burnsub/internal/preview"
	"github.com/mgpai22/burnsub/internal/subtitle"
)

var previewCmd = &cobra.Command{
	Use:   "preview [subtitle_file]",
	Short: "Show the caption overlay at a playback time",
	Long: `Resolve which caption is on screen and how it is laid out.

With --at the overlay for one time is printed as JSON. With --follow,
playback times in seconds are read from stdin, one per line, and a JSON
line is printed whenever the visible caption changes.

Examples:
  burnsub preview talk.srt --at 12.5
  burnsub preview talk.srt --at 3 --video talk.mp4 --display-height 360
  player-clock | burnsub preview talk.srt --follow`,
	Args: cobra.ExactArgs(1),
	RunE: runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)

	previewCmd.Flags().Float64("at", -1, "Playback time in seconds")
	previewCmd.Flags().Bool("follow", false, "Read playback times from stdin")
	previewCmd.Flags().String("video", "", "Video whose frame size to use")
	previewCmd.Flags().Int("width", 1920, "Frame width when no video is given")
	previewCmd.Flags().Int("height", 1080, "Frame height when no video is given")
	previewCmd.Flags().Float64("display-height", 0, "Player height in pixels (default: native size)")
	addStyleFlags(previewCmd)
}

func runPreview(cmd *cobra.Command, args []string) error {
	at, _ := cmd.Flags().GetFloat64("at")
	follow, _ := cmd.Flags().GetBool("follow")
	videoPath, _ := cmd.Flags().GetString("video")
	displayHeight, _ := cmd.Flags().GetFloat64("display-height")

	if follow == cmd.Flags().Changed("at") {
		return fmt.Errorf("use exactly one of --at or --follow")
	}
	if !follow && at < 0 {
		return fmt.Errorf("--at must not be negative, got %v", at)
	}

	segments, err := subtitle.Open(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	frame := overlay.Frame{}
	if videoPath != "" {
		if frame, _, err = a.frame(cmd.Context(), videoPath); err != nil {
			return err
		}
	} else {
		frame.Width, _ = cmd.Flags().GetInt("width")
		frame.Height, _ = cmd.Flags().GetInt("height")
	}
	if !frame.Valid() {
		return fmt.Errorf("invalid frame size %dx%d", frame.Width, frame.Height)
	}

	st, err := styleFromFlags(cmd, cfg.Style, frame.Height)
	if err != nil {
		return err
	}
	font, err := a.catalog.Lookup(st.FontFamily)
	if err != nil {
		return err
	}

	engine := preview.NewEngine(preview.NewSnapshot(segments, st, font, frame), displayHeight)
	enc := json.NewEncoder(cmd.OutOrStdout())

	if !follow {
		enc.SetIndent("", "  ")
		return enc.Encode(engine.At(at))
	}

	clock := make(chan float64)
	go readClock(cmd.Context(), cmd.InOrStdin(), clock, func(line string) {
		logger.Warnw("Ignoring playback time", "line", line)
	})

	return engine.Observe(cmd.Context(), clock, func(ov preview.Overlay) {
		_ = enc.Encode(ov)
	})
}

// sends each parseable line of r as a time and closes clock at EOF
func readClock(ctx context.Context, r io.Reader, clock chan<- float64, bad func(string)) {
	defer close(clock)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		t, err := strconv.ParseFloat(line, 64)
		if err != nil || t < 0 {
			bad(line)
			continue
		}
		select {
		case clock <- t:
		case <-ctx.Done():
			return
		}
	}
}
