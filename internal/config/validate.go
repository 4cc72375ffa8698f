package config

import (
	"fmt"
	"strings"

	"github.com/mgpai22/burnsub/internal/transcribe"
)

const (
	ProviderWhisper = string(transcribe.ProviderWhisper)
	ProviderOpenAI  = string(transcribe.ProviderOpenAI)
	ProviderGemini  = string(transcribe.ProviderGemini)
)

// checks settings that cannot be defaulted
func (c *Config) Validate() error {
	switch c.Transcription.Provider {
	case ProviderWhisper:
		if c.Transcription.Model != "" && !transcribe.IsWhisperModelSize(c.Transcription.Model) {
			return fmt.Errorf(
				"invalid whisper model %q: valid sizes are %s",
				c.Transcription.Model,
				strings.Join(transcribe.WhisperModelSizes, ", "),
			)
		}
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf(
			"unsupported transcription provider %q: use whisper, openai, or gemini",
			c.Transcription.Provider,
		)
	}

	if c.Burn.CRF > 51 {
		return fmt.Errorf("burn crf must be between 1 and 51, got %d", c.Burn.CRF)
	}

	catalog, err := c.Catalog()
	if err != nil {
		return fmt.Errorf("fonts: %w", err)
	}

	if err := c.Style.Validate(0); err != nil {
		return fmt.Errorf("default style: %w", err)
	}
	if _, err := catalog.Lookup(c.Style.FontFamily); err != nil {
		return fmt.Errorf("default style: %w", err)
	}

	return nil
}
