package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mgpai22/burnsub/internal/subtitle"
)

// model sizes the whisper CLI ships
var WhisperModelSizes = []string{"tiny", "base", "small", "medium", "large"}

func IsWhisperModelSize(model string) bool {
	for _, size := range WhisperModelSizes {
		if model == size {
			return true
		}
	}
	return false
}

// implements Transcriber by running a local whisper install
type WhisperTranscriber struct {
	binary  string
	model   string
	options Options
}

func NewWhisperTranscriber(binary string, opts Options) (*WhisperTranscriber, error) {
	if binary == "" {
		binary = "whisper"
	}

	model := opts.Model
	if model == "" {
		model = "base"
	}
	if !IsWhisperModelSize(model) {
		return nil, fmt.Errorf(
			"invalid whisper model %q: valid sizes are %s",
			model,
			strings.Join(WhisperModelSizes, ", "),
		)
	}

	return &WhisperTranscriber{
		binary:  binary,
		model:   model,
		options: opts,
	}, nil
}

func (t *WhisperTranscriber) args(audioPath, outputDir string) []string {
	args := []string{
		audioPath,
		"--model", t.model,
		"--output_format", "json",
		"--output_dir", outputDir,
		"--verbose", "False",
		"--fp16", "False",
	}
	if t.options.Language != "" {
		args = append(args, "--language", t.options.Language)
	}
	if t.options.Prompt != "" {
		args = append(args, "--initial_prompt", t.options.Prompt)
	}
	return args
}

// transcribes single audio file
func (t *WhisperTranscriber) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("audio file not found: %w", err)
	}

	binPath, err := exec.LookPath(t.binary)
	if err != nil {
		return nil, fmt.Errorf("whisper not found (%s): %w", t.binary, err)
	}

	outputDir, err := os.MkdirTemp("", "burnsub-whisper-")
	if err != nil {
		return nil, fmt.Errorf("failed to create whisper output dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(outputDir) }()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binPath, t.args(audioPath, outputDir)...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("whisper failed: %w: %s", err, lastLines(stderr.String(), 5))
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	data, err := os.ReadFile(filepath.Join(outputDir, base+".json"))
	if err != nil {
		return nil, fmt.Errorf("whisper produced no transcript: %w", err)
	}

	return parseWhisperOutput(data, t.options.Language)
}

// whisper CLI json has the verbose_json shape without a duration
func parseWhisperOutput(data []byte, language string) (*Result, error) {
	var resp whisperVerboseResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse whisper output: %w", err)
	}

	res := &Result{Language: resp.Language}
	if res.Language == "" {
		res.Language = language
	}

	if len(resp.Segments) == 0 && strings.TrimSpace(resp.Text) == "" {
		// silence
		res.Segments = []subtitle.Segment{}
		return res, nil
	}

	segments, err := verboseSegments(resp, 0)
	if err != nil {
		return nil, err
	}
	res.Segments = segments
	if n := len(segments); n > 0 {
		res.Duration = secondsToDuration(segments[n-1].End)
	}
	return res, nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
