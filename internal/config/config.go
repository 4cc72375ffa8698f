package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mgpai22/burnsub/internal/style"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "burnsub.yaml"

// runtime settings for the server and CLI
type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
		// how long finished jobs stay pollable
		JobRetention time.Duration `yaml:"job_retention"`
	} `yaml:"server"`

	Storage struct {
		UploadDir   string `yaml:"upload_dir"`
		OutputDir   string `yaml:"output_dir"`
		WorkDir     string `yaml:"work_dir"` // empty: os temp dir
		MaxUploadMB int64  `yaml:"max_upload_mb"`
	} `yaml:"storage"`

	Transcription struct {
		Provider      string        `yaml:"provider"` // whisper, openai, gemini
		Model         string        `yaml:"model"`
		Language      string        `yaml:"language"`
		APIKey        string        `yaml:"api_key"`
		ChunkMinutes  int           `yaml:"chunk_minutes"`
		Concurrency   int           `yaml:"concurrency"`
		Timeout       time.Duration `yaml:"timeout"`
		WhisperBinary string        `yaml:"whisper_binary"`
	} `yaml:"transcription"`

	Burn struct {
		Timeout       time.Duration `yaml:"timeout"`
		MaxConcurrent int           `yaml:"max_concurrent"`
		VideoCodec    string        `yaml:"video_codec"`
		Preset        string        `yaml:"preset"`
		CRF           int           `yaml:"crf"`
	} `yaml:"burn"`

	FFmpeg struct {
		FFmpegPath    string `yaml:"ffmpeg_path"`
		FFprobePath   string `yaml:"ffprobe_path"`
		AllowDownload bool   `yaml:"allow_download"`
	} `yaml:"ffmpeg"`

	Fonts struct {
		CacheDir        string        `yaml:"cache_dir"`
		DownloadTimeout time.Duration `yaml:"download_timeout"`
		Catalog         []style.Font  `yaml:"catalog"`
	} `yaml:"fonts"`

	// defaults applied to new editing sessions
	Style style.Config `yaml:"style"`

	configFilePath string
}

func Default() *Config {
	c := &Config{}

	c.Server.Addr = "127.0.0.1:8000"
	c.Server.JobRetention = time.Hour

	c.Storage.UploadDir = "uploads"
	c.Storage.OutputDir = "outputs"
	c.Storage.WorkDir = ""
	c.Storage.MaxUploadMB = 2048

	c.Transcription.Provider = ProviderWhisper
	c.Transcription.Model = "base"
	c.Transcription.ChunkMinutes = 10
	c.Transcription.Concurrency = 3
	c.Transcription.Timeout = 30 * time.Minute
	c.Transcription.WhisperBinary = "whisper"

	c.Burn.Timeout = 30 * time.Minute
	c.Burn.MaxConcurrent = 2
	c.Burn.VideoCodec = "libx264"
	c.Burn.Preset = "veryfast"
	c.Burn.CRF = 20

	c.FFmpeg.AllowDownload = true

	c.Fonts.DownloadTimeout = time.Minute
	c.Fonts.Catalog = style.DefaultCatalog().Fonts()

	c.Style = style.Default()

	return c
}

// reads path over the defaults. An empty path loads burnsub.yaml when it
// exists and falls back to defaults otherwise.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			cfg.normalize()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// windows paths written with backslashes
	data = bytes.ReplaceAll(data, []byte(`\`), []byte(`/`))

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.configFilePath = path

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

// path the config was read from, empty when defaults were used
func (c *Config) Path() string {
	return c.configFilePath
}

func (c *Config) normalize() {
	d := Default()

	if c.Server.JobRetention <= 0 {
		c.Server.JobRetention = d.Server.JobRetention
	}

	c.Storage.UploadDir = cleanOr(c.Storage.UploadDir, d.Storage.UploadDir)
	c.Storage.OutputDir = cleanOr(c.Storage.OutputDir, d.Storage.OutputDir)
	if c.Storage.WorkDir != "" {
		c.Storage.WorkDir = filepath.Clean(c.Storage.WorkDir)
	}
	if c.Storage.MaxUploadMB <= 0 {
		c.Storage.MaxUploadMB = d.Storage.MaxUploadMB
	}

	c.Transcription.Provider = strings.ToLower(strings.TrimSpace(c.Transcription.Provider))
	if c.Transcription.Provider == "" {
		c.Transcription.Provider = d.Transcription.Provider
	}
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.ChunkMinutes <= 0 {
		c.Transcription.ChunkMinutes = d.Transcription.ChunkMinutes
	}
	if c.Transcription.Concurrency <= 0 {
		c.Transcription.Concurrency = d.Transcription.Concurrency
	}
	if c.Transcription.Timeout <= 0 {
		c.Transcription.Timeout = d.Transcription.Timeout
	}
	if strings.TrimSpace(c.Transcription.WhisperBinary) == "" {
		c.Transcription.WhisperBinary = d.Transcription.WhisperBinary
	}

	if c.Burn.Timeout <= 0 {
		c.Burn.Timeout = d.Burn.Timeout
	}
	if c.Burn.MaxConcurrent <= 0 {
		c.Burn.MaxConcurrent = d.Burn.MaxConcurrent
	}
	if c.Burn.VideoCodec == "" {
		c.Burn.VideoCodec = d.Burn.VideoCodec
	}
	if c.Burn.Preset == "" {
		c.Burn.Preset = d.Burn.Preset
	}
	if c.Burn.CRF <= 0 {
		c.Burn.CRF = d.Burn.CRF
	}

	if c.Fonts.DownloadTimeout <= 0 {
		c.Fonts.DownloadTimeout = d.Fonts.DownloadTimeout
	}
	if len(c.Fonts.Catalog) == 0 {
		c.Fonts.Catalog = d.Fonts.Catalog
	}
}

func cleanOr(p, fallback string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return fallback
	}
	return filepath.Clean(p)
}

// API key for the configured provider, falling back to the environment
func (c *Config) TranscriptionAPIKey() string {
	if c.Transcription.APIKey != "" {
		return c.Transcription.APIKey
	}
	switch c.Transcription.Provider {
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case ProviderGemini:
		return os.Getenv("GEMINI_API_KEY")
	}
	return ""
}

// font catalog built from the configured entries
func (c *Config) Catalog() (*style.Catalog, error) {
	return style.NewCatalog(c.Fonts.Catalog)
}
