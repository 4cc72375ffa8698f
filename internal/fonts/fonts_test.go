package fonts

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mgpai22/burnsub/internal/errs"
	"github.com/mgpai22/burnsub/internal/style"
)

var fakeTTF = append([]byte{0x00, 0x01, 0x00, 0x00}, make([]byte, 64)...)

func testCatalog(t *testing.T, baseURL string) *style.Catalog {
	t.Helper()
	m := style.Metrics{UnitsPerEm: 2048, WinAscent: 1900, WinDescent: 500}
	c, err := style.NewCatalog([]style.Font{
		{Family: "Arial", Provenance: style.ProvenanceSystem, Metrics: m},
		{Family: "Definitely Not Installed Sans", Provenance: style.ProvenanceSystem, Metrics: m},
		{Family: "Test Sans", Provenance: style.ProvenanceDownloadable, URL: baseURL + "/TestSans.ttf", Metrics: m},
		{Family: "Gone", Provenance: style.ProvenanceDownloadable, URL: baseURL + "/missing.ttf", Metrics: m},
		{Family: "Html", Provenance: style.ProvenanceDownloadable, URL: baseURL + "/page.ttf", Metrics: m},
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// fontconfig stand-in: families not listed fall back to DejaVu Sans
type fakeSystem struct {
	families map[string]string
	calls    *int32
	err      error
}

func (f fakeSystem) Match(_ context.Context, family string) (string, error) {
	if f.calls != nil {
		atomic.AddInt32(f.calls, 1)
	}
	if f.err != nil {
		return "", f.err
	}
	if m, ok := f.families[family]; ok {
		return m, nil
	}
	return "DejaVu Sans", nil
}

var hostFonts = fakeSystem{families: map[string]string{"Arial": "Arial"}}

func fontServer(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/TestSans.ttf":
			atomic.AddInt32(&hits, 1)
			_, _ = w.Write(fakeTTF)
		case "/page.ttf":
			_, _ = w.Write([]byte("<html>not a font</html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestResolveSystemFont(t *testing.T) {
	srv, _ := fontServer(t)
	r := NewResolver(testCatalog(t, srv.URL), t.TempDir(), time.Second, nil)
	var calls int32
	r.SetSystemFonts(fakeSystem{families: hostFonts.families, calls: &calls})

	for i := 0; i < 2; i++ {
		got, err := r.Resolve(context.Background(), "arial")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if got.Name != "Arial" || got.Dir != "" || got.Path != "" {
			t.Errorf("unexpected resolution %+v", got)
		}
	}
	if calls != 1 {
		t.Errorf("matcher called %d times, want 1", calls)
	}
}

func TestResolveMissingSystemFont(t *testing.T) {
	srv, _ := fontServer(t)

	tests := []struct {
		name   string
		system SystemFonts
	}{
		{"substituted", hostFonts},
		{"matcher unavailable", fakeSystem{err: errors.New("fc-match not found")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(testCatalog(t, srv.URL), t.TempDir(), time.Second, nil)
			r.SetSystemFonts(tt.system)

			got, err := r.Resolve(context.Background(), "Definitely Not Installed Sans")
			if !errs.Is(err, errs.KindFontResolutionFailed) {
				t.Fatalf("expected FontResolutionFailed, got %+v, %v", got, err)
			}
		})
	}
}

func TestFamilyMatches(t *testing.T) {
	tests := []struct {
		requested, matched string
		want               bool
	}{
		{"Arial", "Arial", true},
		{"dejavu sans", "DejaVu Sans,DejaVu Sans Condensed", true},
		{"DejaVu Sans Condensed", "DejaVu Sans, DejaVu Sans Condensed", true},
		{"Arial", "Liberation Sans", false},
		{"Arial", "", false},
	}
	for _, tt := range tests {
		if got := familyMatches(tt.requested, tt.matched); got != tt.want {
			t.Errorf("familyMatches(%q, %q) = %v, want %v", tt.requested, tt.matched, got, tt.want)
		}
	}
}

func TestFontConfigMatch(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake needs a unix shell")
	}

	script := filepath.Join(t.TempDir(), "fake-fc-match")
	body := `#!/bin/sh
# called as: fc-match -f %{family} <family>
if [ "$3" = "Arial" ]; then printf 'Arial'; else printf 'DejaVu Sans,DejaVu Sans Condensed'; fi
`
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	fc := FontConfig{Binary: script}

	got, err := fc.Match(context.Background(), "Arial")
	if err != nil || got != "Arial" {
		t.Errorf("Match(Arial) = %q, %v", got, err)
	}
	got, err = fc.Match(context.Background(), "Nope")
	if err != nil || got != "DejaVu Sans,DejaVu Sans Condensed" {
		t.Errorf("Match(Nope) = %q, %v", got, err)
	}

	if _, err := (FontConfig{Binary: filepath.Join(t.TempDir(), "missing")}).Match(context.Background(), "Arial"); err == nil {
		t.Error("expected an error for a missing fc-match")
	}
}

func TestResolveDownloadsOnce(t *testing.T) {
	srv, hits := fontServer(t)
	cache := t.TempDir()
	r := NewResolver(testCatalog(t, srv.URL), cache, time.Second, nil)

	cached, err := r.Cached("Test Sans")
	if err != nil || cached {
		t.Fatalf("Cached before download = %v, %v", cached, err)
	}

	for i := 0; i < 2; i++ {
		got, err := r.Resolve(context.Background(), "Test Sans")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		want := filepath.Join(cache, "burnsub", "fonts", "Test_Sans", "TestSans.ttf")
		if got.Path != want || got.Dir != filepath.Dir(want) {
			t.Errorf("Path = %s, want %s", got.Path, want)
		}
		if _, err := os.Stat(got.Path); err != nil {
			t.Errorf("font file missing: %v", err)
		}
	}

	if n := atomic.LoadInt32(hits); n != 1 {
		t.Errorf("downloaded %d times, want 1", n)
	}
	if cached, _ := r.Cached("Test Sans"); !cached {
		t.Error("Cached should be true after download")
	}
}

func TestResolveFailures(t *testing.T) {
	srv, _ := fontServer(t)
	cache := t.TempDir()
	r := NewResolver(testCatalog(t, srv.URL), cache, time.Second, nil)

	for _, family := range []string{"Gone", "Html", "Not In Catalog"} {
		t.Run(family, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), family)
			if !errs.Is(err, errs.KindFontResolutionFailed) {
				t.Fatalf("expected FontResolutionFailed, got %v", err)
			}
		})
	}

	// nothing partial left behind
	dir := filepath.Join(cache, "burnsub", "fonts", "Gone")
	if entries, err := os.ReadDir(dir); err == nil && len(entries) > 0 {
		t.Errorf("leftover files in %s: %d", dir, len(entries))
	}
}

func TestResolveCanceled(t *testing.T) {
	srv, _ := fontServer(t)
	r := NewResolver(testCatalog(t, srv.URL), t.TempDir(), time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Resolve(ctx, "Test Sans"); !errs.Is(err, errs.KindFontResolutionFailed) {
		t.Errorf("expected FontResolutionFailed, got %v", err)
	}
}
