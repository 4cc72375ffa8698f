package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mgpai22/burnsub/internal/burn"
	"github.com/mgpai22/burnsub/internal/config"
	"github.com/mgpai22/burnsub/internal/ffmpeg"
	"github.com/mgpai22/burnsub/internal/fonts"
	"github.com/mgpai22/burnsub/internal/logging"
	"github.com/mgpai22/burnsub/internal/media"
	"github.com/mgpai22/burnsub/internal/overlay"
	"github.com/mgpai22/burnsub/internal/style"
	"github.com/mgpai22/burnsub/internal/transcribe"
)

// long-lived collaborators built from the loaded config
type app struct {
	cfg       *config.Config
	log       *logging.Logger
	binaries  *ffmpeg.Locator
	processor *media.Processor
	catalog   *style.Catalog
	fonts     *fonts.Resolver
}

func newApp(c *config.Config, log *logging.Logger) (*app, error) {
	catalog, err := c.Catalog()
	if err != nil {
		return nil, err
	}

	binaries := ffmpeg.NewLocator(c.FFmpeg.FFmpegPath, c.FFmpeg.FFprobePath, c.FFmpeg.AllowDownload, log)

	return &app{
		cfg:       c,
		log:       log,
		binaries:  binaries,
		processor: media.NewProcessor(binaries, log),
		catalog:   catalog,
		fonts:     fonts.NewResolver(catalog, c.Fonts.CacheDir, c.Fonts.DownloadTimeout, log),
	}, nil
}

func (a *app) pipeline(outputDir string) *burn.Pipeline {
	if outputDir == "" {
		outputDir = a.cfg.Storage.OutputDir
	}
	return &burn.Pipeline{
		Encoder:   burn.NewFFmpegEncoder(a.binaries, a.cfg.Burn.VideoCodec, a.cfg.Burn.Preset, a.cfg.Burn.CRF, a.log),
		Prober:    a.processor,
		Fonts:     a.fonts,
		WorkDir:   a.cfg.Storage.WorkDir,
		OutputDir: outputDir,
		Timeout:   a.cfg.Burn.Timeout,
		Logger:    a.log,
	}
}

// transcription service for provider, "" meaning the configured one
func (a *app) transcription(provider string) (*transcribe.Service, error) {
	c := *a.cfg
	if provider != "" && provider != c.Transcription.Provider {
		// key and model in the file belong to the configured provider
		c.Transcription.Provider = provider
		c.Transcription.APIKey = ""
		c.Transcription.Model = ""
	}
	t := c.Transcription
	p := transcribe.Provider(t.Provider)

	switch p {
	case transcribe.ProviderWhisper, transcribe.ProviderOpenAI, transcribe.ProviderGemini:
	default:
		return nil, fmt.Errorf("unsupported provider %q: use whisper, openai or gemini", t.Provider)
	}

	apiKey := c.TranscriptionAPIKey()
	if p.Hosted() && apiKey == "" {
		return nil, fmt.Errorf("%s needs an API key: set transcription.api_key or the provider's environment variable", p)
	}

	factory := transcribe.NewFactory(p, apiKey, transcribe.Options{
		Language: t.Language,
		Model:    t.Model,
	}, transcribe.FactoryDeps{
		WhisperBinary: t.WhisperBinary,
		Duration:      a.processor.Duration,
	})

	return transcribe.NewService(transcribe.ServiceConfig{
		Provider:      p,
		WorkDir:       a.cfg.Storage.WorkDir,
		ChunkDuration: time.Duration(t.ChunkMinutes) * time.Minute,
		Concurrency:   t.Concurrency,
		Timeout:       t.Timeout,
	}, a.processor, factory, a.log), nil
}

func (a *app) frame(ctx context.Context, videoPath string) (overlay.Frame, *media.Info, error) {
	info, err := a.processor.Probe(ctx, videoPath)
	if err != nil {
		return overlay.Frame{}, nil, err
	}
	if !info.HasVideo {
		return overlay.Frame{}, nil, fmt.Errorf("%s has no video stream", videoPath)
	}
	return overlay.Frame{Width: info.Width, Height: info.Height}, info, nil
}

var styleFlags = []struct {
	name  string
	field style.Field
	usage string
}{
	{"font-size", style.FieldFontSize, "Caption cell height in video pixels"},
	{"font-color", style.FieldFontColor, "Text colour as #rrggbb"},
	{"outline-color", style.FieldOutlineColor, "Outline colour as #rrggbb"},
	{"outline-width", style.FieldOutlineWidth, "Outline width in video pixels"},
	{"margin-v", style.FieldMarginV, "Distance from the bottom edge in video pixels"},
	{"font", style.FieldFontFamily, "Font family from the catalog"},
}

func addStyleFlags(cmd *cobra.Command) {
	for _, f := range styleFlags {
		cmd.Flags().String(f.name, "", f.usage)
	}
}

// applies every style flag the user set on top of base
func styleFromFlags(cmd *cobra.Command, base style.Config, frameHeight int) (style.Config, error) {
	out := base
	for _, f := range styleFlags {
		if !cmd.Flags().Changed(f.name) {
			continue
		}
		v, _ := cmd.Flags().GetString(f.name)
		next, err := style.Update(out, f.field, v, frameHeight)
		if err != nil {
			return base, fmt.Errorf("--%s: %w", f.name, err)
		}
		out = next
	}
	return out, nil
}
