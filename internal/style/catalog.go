package style

import (
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/mgpai22/burnsub/internal/errs"
)

type Provenance string

const (
	// installed on the render host; libass finds it through fontconfig
	ProvenanceSystem Provenance = "system"
	// fetched into the font cache before the encoder runs
	ProvenanceDownloadable Provenance = "downloadable"
)

// Metrics are the font header values libass uses to size glyphs. The
// ascent and descent come from the OS/2 table (usWinAscent, usWinDescent).
type Metrics struct {
	UnitsPerEm int `json:"unitsPerEm" yaml:"units_per_em"`
	WinAscent  int `json:"winAscent" yaml:"win_ascent"`
	WinDescent int `json:"winDescent" yaml:"win_descent"`
}

// EmScale converts a libass font size (a cell height) into the em size a
// browser expects for font-size.
func (m Metrics) EmScale() float64 {
	cell := m.WinAscent + m.WinDescent
	if m.UnitsPerEm <= 0 || cell <= 0 {
		return 1
	}
	return float64(m.UnitsPerEm) / float64(cell)
}

type Font struct {
	Family     string     `json:"family" yaml:"family"`
	Provenance Provenance `json:"provenance" yaml:"provenance"`
	URL        string     `json:"url,omitempty" yaml:"url,omitempty"`
	File       string     `json:"file,omitempty" yaml:"file,omitempty"`
	Metrics    Metrics    `json:"metrics" yaml:"metrics"`
}

func (f Font) Downloadable() bool {
	return f.Provenance == ProvenanceDownloadable
}

// Catalog is the read-only set of font families a style may select.
type Catalog struct {
	fonts []Font
	index map[string]int
}

func NewCatalog(fonts []Font) (*Catalog, error) {
	c := &Catalog{index: make(map[string]int, len(fonts))}

	for i, f := range fonts {
		f.Family = strings.TrimSpace(f.Family)
		if f.Family == "" {
			return nil, fmt.Errorf("font %d: family is required", i+1)
		}
		key := familyKey(f.Family)
		if _, dup := c.index[key]; dup {
			return nil, fmt.Errorf("font %q listed twice", f.Family)
		}

		switch f.Provenance {
		case ProvenanceSystem:
		case ProvenanceDownloadable:
			if f.URL == "" {
				return nil, fmt.Errorf("font %q: downloadable fonts need a url", f.Family)
			}
			if f.File == "" {
				name, err := fileFromURL(f.URL)
				if err != nil {
					return nil, fmt.Errorf("font %q: %w", f.Family, err)
				}
				f.File = name
			}
		default:
			return nil, fmt.Errorf(
				"font %q: unknown provenance %q (use system or downloadable)",
				f.Family, f.Provenance,
			)
		}

		if f.Metrics.UnitsPerEm <= 0 || f.Metrics.WinAscent <= 0 || f.Metrics.WinDescent < 0 {
			return nil, fmt.Errorf("font %q: metrics must be positive", f.Family)
		}

		c.index[key] = len(c.fonts)
		c.fonts = append(c.fonts, f)
	}

	return c, nil
}

func fileFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	name, err := url.PathUnescape(path.Base(u.Path))
	if err != nil || name == "" || name == "/" || name == "." {
		return "", fmt.Errorf("cannot derive a file name from %q", raw)
	}
	return name, nil
}

func familyKey(family string) string {
	return strings.ToLower(strings.TrimSpace(family))
}

// Lookup finds a family case-insensitively. It never substitutes.
func (c *Catalog) Lookup(family string) (Font, error) {
	if i, ok := c.index[familyKey(family)]; ok {
		return c.fonts[i], nil
	}
	return Font{}, errs.Errorf(
		errs.KindFontResolutionFailed,
		"lookup font",
		"font family %q is not available (choose one of: %s)",
		family, strings.Join(c.Families(), ", "),
	)
}

// Check reports an unknown family in cfg as an invalid style.
func (c *Catalog) Check(cfg Config) error {
	if _, err := c.Lookup(cfg.FontFamily); err != nil {
		return errs.E(errs.KindInvalidStyle, "check style", err)
	}
	return nil
}

func (c *Catalog) Fonts() []Font {
	out := make([]Font, len(c.fonts))
	copy(out, c.fonts)
	return out
}

func (c *Catalog) Families() []string {
	out := make([]string, 0, len(c.fonts))
	for _, f := range c.fonts {
		out = append(out, f.Family)
	}
	sort.Strings(out)
	return out
}

const googleFonts = "https://github.com/google/fonts/raw/main/ofl/"

var defaultFonts = []Font{
	{
		Family:     "Arial",
		Provenance: ProvenanceSystem,
		Metrics:    Metrics{UnitsPerEm: 2048, WinAscent: 1854, WinDescent: 434},
	},
	{
		Family:     "DejaVu Sans",
		Provenance: ProvenanceSystem,
		Metrics:    Metrics{UnitsPerEm: 2048, WinAscent: 1901, WinDescent: 483},
	},
	{
		Family:     "Roboto",
		Provenance: ProvenanceDownloadable,
		URL:        googleFonts + "roboto/Roboto%5Bwdth,wght%5D.ttf",
		File:       "Roboto[wdth,wght].ttf",
		Metrics:    Metrics{UnitsPerEm: 2048, WinAscent: 2146, WinDescent: 555},
	},
	{
		Family:     "Open Sans",
		Provenance: ProvenanceDownloadable,
		URL:        googleFonts + "opensans/OpenSans%5Bwdth,wght%5D.ttf",
		File:       "OpenSans[wdth,wght].ttf",
		Metrics:    Metrics{UnitsPerEm: 2048, WinAscent: 2189, WinDescent: 600},
	},
	{
		Family:     "Lato",
		Provenance: ProvenanceDownloadable,
		URL:        googleFonts + "lato/Lato-Regular.ttf",
		File:       "Lato-Regular.ttf",
		Metrics:    Metrics{UnitsPerEm: 2000, WinAscent: 1974, WinDescent: 426},
	},
	{
		Family:     "Montserrat",
		Provenance: ProvenanceDownloadable,
		URL:        googleFonts + "montserrat/Montserrat%5Bwght%5D.ttf",
		File:       "Montserrat[wght].ttf",
		Metrics:    Metrics{UnitsPerEm: 1000, WinAscent: 968, WinDescent: 251},
	},
}

// DefaultCatalog is the built-in font list used when none is configured.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(defaultFonts)
	if err != nil {
		panic(err)
	}
	return c
}
