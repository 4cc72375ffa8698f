package style

import (
	"fmt"
	"strconv"
	"strings"
)

// 24-bit color
type RGB struct {
	R, G, B uint8
}

var (
	White = RGB{0xff, 0xff, 0xff}
	Black = RGB{}
)

// ParseRGB accepts "#rrggbb" or "rrggbb".
func ParseRGB(s string) (RGB, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return RGB{}, fmt.Errorf("invalid color %q: expected #rrggbb", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ASS returns the libass colour form &H00BBGGRR (alpha 00 is opaque).
func (c RGB) ASS() string {
	return fmt.Sprintf("&H00%02X%02X%02X", c.B, c.G, c.R)
}

func (c RGB) String() string {
	return c.Hex()
}

func (c RGB) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

func (c *RGB) UnmarshalText(text []byte) error {
	parsed, err := ParseRGB(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
