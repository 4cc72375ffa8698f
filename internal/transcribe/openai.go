package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/mgpai22/burnsub/internal/subtitle"
)

// implements Transcriber using the OpenAI audio API
type OpenAITranscriber struct {
	client   openai.Client
	model    string
	options  Options
	duration DurationFunc
}

// segment from a whisper verbose_json response
type whisperSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// verbose_json response structure, also written by the whisper CLI
type whisperVerboseResponse struct {
	Text     string           `json:"text"`
	Segments []whisperSegment `json:"segments"`
	Language string           `json:"language"`
	Duration float64          `json:"duration"`
}

func NewOpenAITranscriber(
	ctx context.Context,
	apiKey string,
	opts Options,
	duration DurationFunc,
) (*OpenAITranscriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))

	model := opts.Model
	if model == "" {
		model = "whisper-1"
	}

	return &OpenAITranscriber{
		client:   client,
		model:    model,
		options:  opts,
		duration: duration,
	}, nil
}

// transcribes single audio file
func (t *OpenAITranscriber) Transcribe(
	ctx context.Context,
	audioPath string,
) (*Result, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var duration time.Duration
	if t.duration != nil {
		duration, _ = t.duration(ctx, audioPath)
	}

	params := openai.AudioTranscriptionNewParams{
		File:                   file,
		Model:                  openai.AudioModel(t.model),
		ResponseFormat:         openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"segment"},
	}
	if t.options.Language != "" {
		params.Language = openai.String(t.options.Language)
	}
	if t.options.Prompt != "" {
		params.Prompt = openai.String(t.options.Prompt)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}

	segments, err := parseVerboseJSONResponse(resp.RawJSON(), duration)
	if err != nil {
		text := strings.TrimSpace(resp.Text)
		if text == "" || duration <= 0 {
			return nil, fmt.Errorf("transcription returned no usable segments: %w", err)
		}
		segments = []subtitle.Segment{{
			Start: 0,
			End:   duration.Seconds(),
			Text:  text,
		}}
	}

	return &Result{
		Segments: segments,
		Language: t.options.Language,
		Duration: duration,
	}, nil
}

// parses verbose_json; a response with text but no segments becomes one
// segment spanning the reported (or fallback) duration
func parseVerboseJSONResponse(
	rawJSON string,
	fallbackDuration time.Duration,
) ([]subtitle.Segment, error) {
	if rawJSON == "" {
		return nil, fmt.Errorf("empty response")
	}

	var verboseResp whisperVerboseResponse
	if err := json.Unmarshal([]byte(rawJSON), &verboseResp); err != nil {
		return nil, fmt.Errorf("failed to parse verbose_json response: %w", err)
	}

	return verboseSegments(verboseResp, fallbackDuration)
}

func verboseSegments(resp whisperVerboseResponse, fallbackDuration time.Duration) ([]subtitle.Segment, error) {
	if len(resp.Segments) == 0 {
		if strings.TrimSpace(resp.Text) == "" {
			return nil, fmt.Errorf("no segments or text in response")
		}
		dur := fallbackDuration.Seconds()
		if resp.Duration > 0 {
			dur = resp.Duration
		}
		return []subtitle.Segment{{
			Start: 0,
			End:   dur,
			Text:  strings.TrimSpace(resp.Text),
		}}, nil
	}

	segments := make([]subtitle.Segment, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		segments = append(segments, subtitle.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
		})
	}
	return subtitle.FromTranscript(segments), nil
}
