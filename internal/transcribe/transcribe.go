// Package transcribe turns a video's speech into timed caption segments
// using a local whisper install or a hosted speech-to-text API.
package transcribe

import (
	"context"
	"fmt"
	"time"

	"github.com/mgpai22/burnsub/internal/subtitle"
)

// transcription result
type Result struct {
	Segments []subtitle.Segment
	Language string
	Duration time.Duration
}

// interface for audio transcription
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*Result, error)
}

// transcription service provider
type Provider string

const (
	ProviderWhisper Provider = "whisper"
	ProviderOpenAI  Provider = "openai"
	ProviderGemini  Provider = "gemini"
)

// hosted providers take uploads with size limits, so their audio is
// compressed and chunked first
func (p Provider) Hosted() bool {
	return p == ProviderOpenAI || p == ProviderGemini
}

// transcription options
type Options struct {
	Language string // source language hint, empty to detect
	Model    string // whisper size or provider model name
	Prompt   string
}

// DurationFunc reports the length of an audio file.
type DurationFunc func(ctx context.Context, path string) (time.Duration, error)

// FactoryDeps are what the providers need beyond credentials.
type FactoryDeps struct {
	WhisperBinary string
	Duration      DurationFunc
}

// creates transcriber based on provider
func Factory(
	ctx context.Context,
	provider Provider,
	apiKey string,
	opts Options,
	deps FactoryDeps,
) (Transcriber, error) {
	switch provider {
	case ProviderWhisper:
		return NewWhisperTranscriber(deps.WhisperBinary, opts)
	case ProviderOpenAI:
		return NewOpenAITranscriber(ctx, apiKey, opts, deps.Duration)
	case ProviderGemini:
		return NewGeminiTranscriber(ctx, apiKey, opts)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// binds provider settings so a caller only picks the model per request
func NewFactory(provider Provider, apiKey string, opts Options, deps FactoryDeps) NewFunc {
	return func(ctx context.Context, model string) (Transcriber, error) {
		o := opts
		if model != "" {
			o.Model = model
		}
		return Factory(ctx, provider, apiKey, o, deps)
	}
}
