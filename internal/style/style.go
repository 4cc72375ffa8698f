// Package style holds the caption style settings shared by the preview and
// the burn, and the catalog of fonts a style may name.
package style

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mgpai22/burnsub/internal/errs"
)

const (
	MinFontSize     = 1
	MaxFontSize     = 500
	MaxOutlineWidth = 50
)

// Config is passed by value; every consumer works on its own copy.
type Config struct {
	FontSize     int    `json:"fontSize" yaml:"font_size"`
	FontColor    RGB    `json:"fontColor" yaml:"font_color"`
	OutlineColor RGB    `json:"outlineColor" yaml:"outline_color"`
	OutlineWidth int    `json:"outlineWidth" yaml:"outline_width"`
	MarginV      int    `json:"marginV" yaml:"margin_v"` // pixels up from the bottom edge
	FontFamily   string `json:"fontFamily" yaml:"font_family"`
}

func Default() Config {
	return Config{
		FontSize:     24,
		FontColor:    White,
		OutlineColor: Black,
		OutlineWidth: 2,
		MarginV:      30,
		FontFamily:   "Arial",
	}
}

// Validate checks field ranges. frameHeight bounds MarginV; a value of zero
// or less means the frame is not known yet and only the lower bound applies.
func (c Config) Validate(frameHeight int) error {
	if c.FontSize < MinFontSize || c.FontSize > MaxFontSize {
		return invalid("font size must be between %d and %d, got %d", MinFontSize, MaxFontSize, c.FontSize)
	}
	if c.OutlineWidth < 0 || c.OutlineWidth > MaxOutlineWidth {
		return invalid("outline width must be between 0 and %d, got %d", MaxOutlineWidth, c.OutlineWidth)
	}
	if c.MarginV < 0 {
		return invalid("vertical margin must not be negative, got %d", c.MarginV)
	}
	if frameHeight > 0 && c.MarginV > frameHeight {
		return invalid("vertical margin %d exceeds the video height %d", c.MarginV, frameHeight)
	}
	if strings.TrimSpace(c.FontFamily) == "" {
		return invalid("font family is required")
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return errs.Errorf(errs.KindInvalidStyle, "validate style", format, args...)
}

type Field string

const (
	FieldFontSize     Field = "fontSize"
	FieldFontColor    Field = "fontColor"
	FieldOutlineColor Field = "outlineColor"
	FieldOutlineWidth Field = "outlineWidth"
	FieldMarginV      Field = "marginV"
	FieldFontFamily   Field = "fontFamily"
)

var Fields = []Field{
	FieldFontSize,
	FieldFontColor,
	FieldOutlineColor,
	FieldOutlineWidth,
	FieldMarginV,
	FieldFontFamily,
}

// ParseField accepts the JSON name or its snake_case / kebab-case forms.
func ParseField(name string) (Field, error) {
	key := strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(strings.TrimSpace(name)))
	for _, f := range Fields {
		if strings.ToLower(string(f)) == key {
			return f, nil
		}
	}
	return "", errs.Errorf(errs.KindInvalidStyle, "parse style field", "unknown style field %q", name)
}

// Update returns a copy of cfg with one field set from its text form. The
// result is validated against frameHeight; cfg itself is never modified.
func Update(cfg Config, field Field, value string, frameHeight int) (Config, error) {
	value = strings.TrimSpace(value)
	next := cfg

	switch field {
	case FieldFontSize, FieldOutlineWidth, FieldMarginV:
		n, err := strconv.Atoi(value)
		if err != nil {
			return cfg, errs.Errorf(errs.KindInvalidStyle, "update style", "%s must be an integer, got %q", field, value)
		}
		switch field {
		case FieldFontSize:
			next.FontSize = n
		case FieldOutlineWidth:
			next.OutlineWidth = n
		default:
			next.MarginV = n
		}
	case FieldFontColor, FieldOutlineColor:
		c, err := ParseRGB(value)
		if err != nil {
			return cfg, errs.E(errs.KindInvalidStyle, "update style", err)
		}
		if field == FieldFontColor {
			next.FontColor = c
		} else {
			next.OutlineColor = c
		}
	case FieldFontFamily:
		next.FontFamily = value
	default:
		return cfg, errs.Errorf(errs.KindInvalidStyle, "update style", "unknown style field %q", field)
	}

	if err := next.Validate(frameHeight); err != nil {
		return cfg, err
	}
	return next, nil
}

// Patch is a partial style edit; nil fields keep their current value.
type Patch struct {
	FontSize     *int    `json:"fontSize,omitempty"`
	FontColor    *RGB    `json:"fontColor,omitempty"`
	OutlineColor *RGB    `json:"outlineColor,omitempty"`
	OutlineWidth *int    `json:"outlineWidth,omitempty"`
	MarginV      *int    `json:"marginV,omitempty"`
	FontFamily   *string `json:"fontFamily,omitempty"`
}

func (p Patch) Empty() bool {
	return p.FontSize == nil && p.FontColor == nil && p.OutlineColor == nil &&
		p.OutlineWidth == nil && p.MarginV == nil && p.FontFamily == nil
}

// Merge applies every set field of p at once and validates the result.
func Merge(cfg Config, p Patch, frameHeight int) (Config, error) {
	next := cfg
	if p.FontSize != nil {
		next.FontSize = *p.FontSize
	}
	if p.FontColor != nil {
		next.FontColor = *p.FontColor
	}
	if p.OutlineColor != nil {
		next.OutlineColor = *p.OutlineColor
	}
	if p.OutlineWidth != nil {
		next.OutlineWidth = *p.OutlineWidth
	}
	if p.MarginV != nil {
		next.MarginV = *p.MarginV
	}
	if p.FontFamily != nil {
		next.FontFamily = strings.TrimSpace(*p.FontFamily)
	}

	if err := next.Validate(frameHeight); err != nil {
		return cfg, err
	}
	return next, nil
}

func (c Config) String() string {
	return fmt.Sprintf(
		"%s %dpx %s outline %dpx %s margin %dpx",
		c.FontFamily, c.FontSize, c.FontColor, c.OutlineWidth, c.OutlineColor, c.MarginV,
	)
}
