// Package ffmpeg finds the ffmpeg and ffprobe executables, downloading a
// prebuilt pair into the user cache when the host has none.
package ffmpeg

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/mgpai22/burnsub/internal/logging"
)

const (
	ffmpegReleaseVersion = "6.1"
	ffmpegReleaseBaseURL = "https://github.com/ffbinaries/ffbinaries-prebuilt/releases/download"

	EnvFFmpegPath  = "BURNSUB_FFMPEG_PATH"
	EnvFFprobePath = "BURNSUB_FFPROBE_PATH"
)

type BinaryPaths struct {
	FFmpeg  string
	FFprobe string
}

// Locator resolves binaries in order: explicit paths, environment, PATH,
// the download cache, and finally a download when AllowDownload is set.
// A successful result is remembered.
type Locator struct {
	FFmpegPath    string
	FFprobePath   string
	AllowDownload bool
	CacheDir      string // empty: os.UserCacheDir
	BaseURL       string // empty: the ffbinaries release URL
	Client        *http.Client

	log *logging.Logger

	mu    sync.Mutex
	paths *BinaryPaths
}

func NewLocator(ffmpegPath, ffprobePath string, allowDownload bool, log *logging.Logger) *Locator {
	return &Locator{
		FFmpegPath:    ffmpegPath,
		FFprobePath:   ffprobePath,
		AllowDownload: allowDownload,
		log:           logging.OrNop(log),
	}
}

func (l *Locator) Ensure(ctx context.Context) (BinaryPaths, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paths != nil {
		return *l.paths, nil
	}
	paths, err := l.ensure(ctx)
	if err != nil {
		return BinaryPaths{}, err
	}
	l.paths = &paths
	return paths, nil
}

func (l *Locator) FFmpeg(ctx context.Context) (string, error) {
	paths, err := l.Ensure(ctx)
	if err != nil {
		return "", err
	}
	return paths.FFmpeg, nil
}

func (l *Locator) FFprobe(ctx context.Context) (string, error) {
	paths, err := l.Ensure(ctx)
	if err != nil {
		return "", err
	}
	return paths.FFprobe, nil
}

func (l *Locator) ensure(ctx context.Context) (BinaryPaths, error) {
	ffmpegPath := firstNonEmpty(l.FFmpegPath, os.Getenv(EnvFFmpegPath))
	ffprobePath := firstNonEmpty(l.FFprobePath, os.Getenv(EnvFFprobePath))
	if ffmpegPath != "" && ffprobePath != "" {
		return BinaryPaths{FFmpeg: ffmpegPath, FFprobe: ffprobePath}, nil
	}

	if ffmpegPath == "" {
		if found, err := exec.LookPath("ffmpeg"); err == nil {
			ffmpegPath = found
		}
	}
	if ffprobePath == "" {
		if found, err := exec.LookPath("ffprobe"); err == nil {
			ffprobePath = found
		}
	}
	if ffmpegPath != "" && ffprobePath != "" {
		return BinaryPaths{FFmpeg: ffmpegPath, FFprobe: ffprobePath}, nil
	}

	assetName, err := assetForPlatform(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return BinaryPaths{}, err
	}

	installDir := l.installDir()
	exeSuffix := executableSuffix()
	cached := BinaryPaths{
		FFmpeg:  filepath.Join(installDir, "ffmpeg"+exeSuffix),
		FFprobe: filepath.Join(installDir, "ffprobe"+exeSuffix),
	}
	if binariesExist(cached.FFmpeg, cached.FFprobe) {
		return cached, nil
	}

	if !l.AllowDownload {
		return BinaryPaths{}, errors.New(
			"ffmpeg and ffprobe not found: install them, set " +
				EnvFFmpegPath + "/" + EnvFFprobePath + ", or enable ffmpeg.allow_download",
		)
	}

	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return BinaryPaths{}, fmt.Errorf("create ffmpeg cache dir: %w", err)
	}

	l.log.Infow("downloading ffmpeg", "version", ffmpegReleaseVersion, "asset", assetName, "dir", installDir)
	if err := l.downloadAndExtract(ctx, assetName, installDir); err != nil {
		return BinaryPaths{}, err
	}

	if !binariesExist(cached.FFmpeg, cached.FFprobe) {
		return BinaryPaths{}, errors.New("ffmpeg binaries not found after extraction")
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(cached.FFmpeg, 0o755); err != nil {
			return BinaryPaths{}, fmt.Errorf("chmod ffmpeg: %w", err)
		}
		if err := os.Chmod(cached.FFprobe, 0o755); err != nil {
			return BinaryPaths{}, fmt.Errorf("chmod ffprobe: %w", err)
		}
	}

	return cached, nil
}

func (l *Locator) installDir() string {
	cacheDir := l.CacheDir
	if cacheDir == "" {
		var err error
		cacheDir, err = os.UserCacheDir()
		if err != nil || cacheDir == "" {
			cacheDir = os.TempDir()
		}
	}
	return filepath.Join(
		cacheDir,
		"burnsub",
		"ffmpeg",
		ffmpegReleaseVersion,
		runtime.GOOS,
		runtime.GOARCH,
	)
}

func assetForPlatform(goos, goarch string) (string, error) {
	switch {
	case goos == "linux" && goarch == "amd64":
		return "ffmpeg-" + ffmpegReleaseVersion + "-linux-64.zip", nil
	case goos == "linux" && goarch == "arm64":
		return "ffmpeg-" + ffmpegReleaseVersion + "-linux-arm-64.zip", nil
	case goos == "darwin" && goarch == "amd64":
		return "ffmpeg-" + ffmpegReleaseVersion + "-macos-64.zip", nil
	case goos == "windows" && goarch == "amd64":
		return "ffmpeg-" + ffmpegReleaseVersion + "-win-64.zip", nil
	default:
		return "", fmt.Errorf("unsupported platform for bundled ffmpeg: %s/%s", goos, goarch)
	}
}

func (l *Locator) downloadAndExtract(ctx context.Context, assetName, installDir string) error {
	base := firstNonEmpty(l.BaseURL, ffmpegReleaseBaseURL)
	url := fmt.Sprintf("%s/v%s/%s", strings.TrimRight(base, "/"), ffmpegReleaseVersion, assetName)

	client := l.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("download ffmpeg bundle: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download ffmpeg bundle: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download ffmpeg bundle: unexpected status %s", resp.Status)
	}

	return extractArchiveFromReader(assetName, resp.Body, installDir)
}

func extractArchiveFromReader(assetName string, reader io.Reader, installDir string) error {
	tmpFile, err := os.CreateTemp("", "burnsub-ffmpeg-*.zip")
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	archivePath := tmpFile.Name()
	defer func() { _ = os.Remove(archivePath) }()

	if _, err := io.Copy(tmpFile, reader); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write archive: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}

	if err := extractArchive(archivePath, installDir); err != nil {
		return fmt.Errorf("extract %s: %w", assetName, err)
	}
	return nil
}

func extractArchive(archivePath, installDir string) error {
	zipReader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open ffmpeg archive: %w", err)
	}
	defer func() { _ = zipReader.Close() }()

	ffmpegFound := false
	ffprobeFound := false
	for _, file := range zipReader.File {
		name := filepath.Base(file.Name)
		switch {
		case isBinary(name, "ffmpeg"):
			if err := extractZipFile(file, filepath.Join(installDir, "ffmpeg"+executableSuffix())); err != nil {
				return err
			}
			ffmpegFound = true
		case isBinary(name, "ffprobe"):
			if err := extractZipFile(file, filepath.Join(installDir, "ffprobe"+executableSuffix())); err != nil {
				return err
			}
			ffprobeFound = true
		}
	}

	if !ffmpegFound || !ffprobeFound {
		return fmt.Errorf("ffmpeg archive missing required binaries")
	}
	return nil
}

func extractZipFile(file *zip.File, dest string) error {
	reader, err := file.Open()
	if err != nil {
		return fmt.Errorf("open ffmpeg archive entry: %w", err)
	}
	defer func() { _ = reader.Close() }()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(dest), err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, reader); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(dest), err)
	}
	return nil
}

func binariesExist(ffmpegPath, ffprobePath string) bool {
	return fileExists(ffmpegPath) && fileExists(ffprobePath)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}

func isBinary(name, tool string) bool {
	name = strings.ToLower(name)
	return name == tool || name == tool+".exe"
}

func executableSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
