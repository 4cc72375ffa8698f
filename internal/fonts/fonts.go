// Package fonts makes a catalog font usable by the encoder. System fonts
// are checked against the host's font matcher and handed to libass by name;
// downloadable fonts are fetched once into an on-disk cache and passed to
// the subtitles filter through fontsdir.
package fonts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mgpai22/burnsub/internal/errs"
	"github.com/mgpai22/burnsub/internal/fsutil"
	"github.com/mgpai22/burnsub/internal/logging"
	"github.com/mgpai22/burnsub/internal/style"
)

// largest font file accepted from a download
const maxFontBytes = 64 << 20

// Resolved tells the encoder how to find a font.
type Resolved struct {
	Family string
	// family name libass should match
	Name string
	// directory holding the font file; empty for system fonts
	Dir string
	// font file; empty for system fonts
	Path string
}

type Resolver struct {
	catalog  *style.Catalog
	cacheDir string
	client   *http.Client
	timeout  time.Duration
	system   SystemFonts
	log      *logging.Logger

	// one download per family at a time
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	// system families already found on the host
	installed map[string]bool
}

// NewResolver caches downloads under cacheDir/burnsub/fonts. An empty
// cacheDir uses the user cache directory.
func NewResolver(catalog *style.Catalog, cacheDir string, timeout time.Duration, log *logging.Logger) *Resolver {
	if cacheDir == "" {
		if dir, err := os.UserCacheDir(); err == nil && dir != "" {
			cacheDir = dir
		} else {
			cacheDir = os.TempDir()
		}
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Resolver{
		catalog:   catalog,
		cacheDir:  filepath.Join(cacheDir, "burnsub", "fonts"),
		client:    &http.Client{},
		timeout:   timeout,
		system:    FontConfig{},
		log:       logging.OrNop(log),
		locks:     make(map[string]*sync.Mutex),
		installed: make(map[string]bool),
	}
}

// SetSystemFonts replaces the matcher used to check system fonts.
func (r *Resolver) SetSystemFonts(s SystemFonts) {
	r.system = s
}

// SetHTTPClient replaces the client used for downloads.
func (r *Resolver) SetHTTPClient(c *http.Client) {
	r.client = c
}

func (r *Resolver) Catalog() *style.Catalog {
	return r.catalog
}

// Resolve returns the location of family, downloading it on a cache miss.
// System fonts must be installed on the host. Any failure is
// FontResolutionFailed; another font is never substituted.
func (r *Resolver) Resolve(ctx context.Context, family string) (Resolved, error) {
	font, err := r.catalog.Lookup(family)
	if err != nil {
		return Resolved{}, err
	}

	if !font.Downloadable() {
		if err := r.checkInstalled(ctx, font.Family); err != nil {
			return Resolved{}, errs.E(errs.KindFontResolutionFailed, "resolve font", err)
		}
		return Resolved{Family: font.Family, Name: font.Family}, nil
	}

	dir := r.familyDir(font)
	path := filepath.Join(dir, font.File)
	resolved := Resolved{Family: font.Family, Name: font.Family, Dir: dir, Path: path}

	lock := r.familyLock(font.Family)
	lock.Lock()
	defer lock.Unlock()

	if fsutil.NonEmptyFile(path) {
		return resolved, nil
	}

	r.log.Infow("downloading font", "family", font.Family, "url", font.URL)
	if err := r.download(ctx, font.URL, path); err != nil {
		return Resolved{}, errs.E(
			errs.KindFontResolutionFailed,
			"resolve font",
			fmt.Errorf("%s: %w", font.Family, err),
		)
	}
	return resolved, nil
}

// Cached reports whether a downloadable family is already on disk. System
// fonts always count as cached.
func (r *Resolver) Cached(family string) (bool, error) {
	font, err := r.catalog.Lookup(family)
	if err != nil {
		return false, err
	}
	if !font.Downloadable() {
		return true, nil
	}
	return fsutil.NonEmptyFile(filepath.Join(r.familyDir(font), font.File)), nil
}

func (r *Resolver) familyDir(font style.Font) string {
	return filepath.Join(r.cacheDir, fsutil.SanitizeFilename(strings.ReplaceAll(font.Family, " ", "_")))
}

func (r *Resolver) familyLock(family string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[family]
	if !ok {
		l = &sync.Mutex{}
		r.locks[family] = l
	}
	return l
}

func (r *Resolver) download(ctx context.Context, url, dest string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("download font: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("download font: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download font: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFontBytes+1))
	if err != nil {
		return fmt.Errorf("download font: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("download font: empty response")
	}
	if len(data) > maxFontBytes {
		return fmt.Errorf("download font: file larger than %d bytes", maxFontBytes)
	}
	if !looksLikeFont(data) {
		return fmt.Errorf("download font: response is not a TrueType or OpenType font")
	}

	return fsutil.WriteFileAtomic(dest, data, 0o644)
}

// sfnt version tags of TrueType, OpenType CFF, and collections
func looksLikeFont(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	switch string(data[:4]) {
	case "\x00\x01\x00\x00", "OTTO", "true", "ttcf", "wOFF", "wOF2":
		return true
	}
	return false
}
