package ffmpeg

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"runtime"
	"testing"
)

func TestLocatorExplicitPaths(t *testing.T) {
	l := NewLocator("/opt/ff/ffmpeg", "/opt/ff/ffprobe", false, nil)
	paths, err := l.Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if paths.FFmpeg != "/opt/ff/ffmpeg" || paths.FFprobe != "/opt/ff/ffprobe" {
		t.Errorf("unexpected paths %+v", paths)
	}
}

func TestLocatorEnvironment(t *testing.T) {
	t.Setenv(EnvFFmpegPath, "/env/ffmpeg")
	t.Setenv(EnvFFprobePath, "/env/ffprobe")

	got, err := NewLocator("", "", false, nil).FFprobe(context.Background())
	if err != nil {
		t.Fatalf("FFprobe: %v", err)
	}
	if got != "/env/ffprobe" {
		t.Errorf("FFprobe = %q", got)
	}
}

func TestLocatorNoDownload(t *testing.T) {
	if _, err := assetForPlatform(runtime.GOOS, runtime.GOARCH); err != nil {
		t.Skip(err)
	}
	t.Setenv("PATH", "")
	t.Setenv(EnvFFmpegPath, "")
	t.Setenv(EnvFFprobePath, "")

	l := NewLocator("", "", false, nil)
	l.CacheDir = t.TempDir()
	if _, err := l.Ensure(context.Background()); err == nil {
		t.Error("expected error when binaries are missing and download is off")
	}
}

func TestLocatorDownload(t *testing.T) {
	asset, err := assetForPlatform(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		t.Skip(err)
	}
	t.Setenv("PATH", "")
	t.Setenv(EnvFFmpegPath, "")
	t.Setenv(EnvFFprobePath, "")

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{"ffmpeg" + executableSuffix(), "ffprobe" + executableSuffix()} {
		w, err := zw.Create("bundle/" + name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte("#!/bin/sh\n")); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v"+ffmpegReleaseVersion+"/"+asset {
			http.NotFound(w, r)
			return
		}
		hits++
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	l := NewLocator("", "", true, nil)
	l.CacheDir = t.TempDir()
	l.BaseURL = srv.URL

	paths, err := l.Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if !fileExists(paths.FFmpeg) || !fileExists(paths.FFprobe) {
		t.Fatalf("binaries not extracted: %+v", paths)
	}

	// a second locator finds the cached pair without downloading
	again := NewLocator("", "", true, nil)
	again.CacheDir = l.CacheDir
	again.BaseURL = srv.URL
	if _, err := again.Ensure(context.Background()); err != nil {
		t.Fatalf("cached Ensure: %v", err)
	}
	if hits != 1 {
		t.Errorf("expected one download, got %d", hits)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(paths.FFmpeg)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm()&0o100 == 0 {
			t.Error("ffmpeg should be executable")
		}
	}
}
