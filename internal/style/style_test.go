package style

import (
	"encoding/json"
	"testing"

	"github.com/mgpai22/burnsub/internal/errs"
	"gopkg.in/yaml.v3"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		frameHeight int
		wantErr     bool
	}{
		{"default", func(*Config) {}, 720, false},
		{"font size zero", func(c *Config) { c.FontSize = 0 }, 720, true},
		{"font size max", func(c *Config) { c.FontSize = 500 }, 720, false},
		{"font size too big", func(c *Config) { c.FontSize = 501 }, 720, true},
		{"outline negative", func(c *Config) { c.OutlineWidth = -1 }, 720, true},
		{"outline zero", func(c *Config) { c.OutlineWidth = 0 }, 720, false},
		{"outline too wide", func(c *Config) { c.OutlineWidth = 51 }, 720, true},
		{"margin at height", func(c *Config) { c.MarginV = 720 }, 720, false},
		{"margin above height", func(c *Config) { c.MarginV = 721 }, 720, true},
		{"margin unknown frame", func(c *Config) { c.MarginV = 5000 }, 0, false},
		{"margin negative", func(c *Config) { c.MarginV = -1 }, 0, true},
		{"no family", func(c *Config) { c.FontFamily = " " }, 720, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate(tt.frameHeight)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errs.Is(err, errs.KindInvalidStyle) {
				t.Errorf("expected InvalidStyle, got %v", err)
			}
		})
	}
}

func TestUpdateReturnsNewConfig(t *testing.T) {
	orig := Default()

	next, err := Update(orig, FieldFontSize, "48", 1080)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if next.FontSize != 48 {
		t.Errorf("FontSize = %d, want 48", next.FontSize)
	}
	if orig.FontSize != 24 {
		t.Error("Update modified its input")
	}

	next, err = Update(next, FieldOutlineColor, "#ff8000", 1080)
	if err != nil {
		t.Fatalf("Update color: %v", err)
	}
	if next.OutlineColor != (RGB{0xff, 0x80, 0x00}) {
		t.Errorf("OutlineColor = %v", next.OutlineColor)
	}

	bad, err := Update(next, FieldMarginV, "2000", 1080)
	if !errs.Is(err, errs.KindInvalidStyle) {
		t.Fatalf("expected InvalidStyle, got %v", err)
	}
	if bad != next {
		t.Error("failed update should return the unchanged config")
	}

	if _, err := Update(next, FieldFontSize, "big", 1080); !errs.Is(err, errs.KindInvalidStyle) {
		t.Errorf("expected InvalidStyle for non-integer, got %v", err)
	}
	if _, err := Update(next, FieldFontColor, "#12", 1080); !errs.Is(err, errs.KindInvalidStyle) {
		t.Errorf("expected InvalidStyle for short color, got %v", err)
	}
}

func TestParseField(t *testing.T) {
	for in, want := range map[string]Field{
		"fontSize":      FieldFontSize,
		"font_size":     FieldFontSize,
		"outline-color": FieldOutlineColor,
		"MARGINV":       FieldMarginV,
	} {
		got, err := ParseField(in)
		if err != nil || got != want {
			t.Errorf("ParseField(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseField("letterSpacing"); err == nil {
		t.Error("expected error for unsupported field")
	}
}

func TestMerge(t *testing.T) {
	size := 36
	family := "Roboto"
	got, err := Merge(Default(), Patch{FontSize: &size, FontFamily: &family}, 720)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if got.FontSize != 36 || got.FontFamily != "Roboto" || got.OutlineWidth != 2 {
		t.Errorf("unexpected merge result %+v", got)
	}

	zero := 0
	if _, err := Merge(got, Patch{FontSize: &zero}, 720); !errs.Is(err, errs.KindInvalidStyle) {
		t.Errorf("expected InvalidStyle, got %v", err)
	}
	if !(Patch{}).Empty() {
		t.Error("zero patch should be empty")
	}
}

func TestRGB(t *testing.T) {
	c, err := ParseRGB("#1a2B3c")
	if err != nil {
		t.Fatalf("ParseRGB: %v", err)
	}
	if c.Hex() != "#1a2b3c" {
		t.Errorf("Hex = %s", c.Hex())
	}
	if c.ASS() != "&H003C2B1A" {
		t.Errorf("ASS = %s", c.ASS())
	}
	if _, err := ParseRGB("zzzzzz"); err == nil {
		t.Error("expected error for non-hex color")
	}
}

func TestConfigEncoding(t *testing.T) {
	data, err := json.Marshal(Default())
	if err != nil {
		t.Fatal(err)
	}
	want := `{"fontSize":24,"fontColor":"#ffffff","outlineColor":"#000000","outlineWidth":2,"marginV":30,"fontFamily":"Arial"}`
	if string(data) != want {
		t.Errorf("json = %s", data)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte("font_size: 30\nfont_color: \"#00ff00\"\n"), &cfg); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if cfg.FontSize != 30 || cfg.FontColor != (RGB{0, 0xff, 0}) {
		t.Errorf("yaml decoded %+v", cfg)
	}
}

func TestCatalog(t *testing.T) {
	c := DefaultCatalog()

	f, err := c.Lookup("open sans")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !f.Downloadable() || f.File != "OpenSans[wdth,wght].ttf" {
		t.Errorf("unexpected font %+v", f)
	}

	if _, err := c.Lookup("Comic Sans"); !errs.Is(err, errs.KindFontResolutionFailed) {
		t.Errorf("expected FontResolutionFailed, got %v", err)
	}

	cfg := Default()
	cfg.FontFamily = "Papyrus"
	if err := c.Check(cfg); !errs.Is(err, errs.KindInvalidStyle) {
		t.Errorf("Check: expected InvalidStyle, got %v", err)
	}

	arial, _ := c.Lookup("Arial")
	if got := arial.Metrics.EmScale(); got < 0.895 || got > 0.896 {
		t.Errorf("Arial em scale = %v", got)
	}
}

func TestNewCatalogRejects(t *testing.T) {
	m := Metrics{UnitsPerEm: 1000, WinAscent: 800, WinDescent: 200}
	tests := []struct {
		name  string
		fonts []Font
	}{
		{"no family", []Font{{Provenance: ProvenanceSystem, Metrics: m}}},
		{"duplicate", []Font{
			{Family: "A", Provenance: ProvenanceSystem, Metrics: m},
			{Family: "a", Provenance: ProvenanceSystem, Metrics: m},
		}},
		{"downloadable without url", []Font{{Family: "A", Provenance: ProvenanceDownloadable, Metrics: m}}},
		{"bad provenance", []Font{{Family: "A", Provenance: "bundled", Metrics: m}}},
		{"no metrics", []Font{{Family: "A", Provenance: ProvenanceSystem}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCatalog(tt.fonts); err == nil {
				t.Error("expected error")
			}
		})
	}

	c, err := NewCatalog([]Font{{
		Family:     "Inter",
		Provenance: ProvenanceDownloadable,
		URL:        "https://example.com/fonts/Inter%5Bwght%5D.ttf",
		Metrics:    m,
	}})
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	f, _ := c.Lookup("Inter")
	if f.File != "Inter[wght].ttf" {
		t.Errorf("derived file = %q", f.File)
	}
}
