package lamp

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// brightenFactor is applied to reported colours. The lamp's strongest
// channel tops out around 190, so reports are scaled back up.
const brightenFactor = 2.0

// Colour is an 8-bit RGB colour.
type Colour struct {
	R, G, B uint8
}

// Black is the "off" colour.
var Black = Colour{}

// Hex renders the colour as six lowercase hex digits without a prefix,
// the form the lamp accepts as a command.
func (c Colour) Hex() string {
	return hex.EncodeToString([]byte{c.R, c.G, c.B})
}

// String implements fmt.Stringer.
func (c Colour) String() string {
	return "#" + c.Hex()
}

// IsBlack reports whether all channels are zero.
func (c Colour) IsBlack() bool {
	return c == Black
}

// MarshalText encodes the colour as six hex digits.
func (c Colour) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

// UnmarshalText accepts anything ParseHex does.
func (c *Colour) UnmarshalText(text []byte) error {
	parsed, err := ParseHex(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseHex parses six hex digits with an optional leading '#'.
func ParseHex(s string) (Colour, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return Colour{}, fmt.Errorf("%w: %q is not six hex digits", ErrInvalidColour, s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Colour{}, fmt.Errorf("%w: %q: %w", ErrInvalidColour, s, err)
	}
	return Colour{R: b[0], G: b[1], B: b[2]}, nil
}

// ParseReport decodes an "r,g,b" report published by the lamp and returns
// it brightened. Anything that is not three decimal values in 0..255
// yields Black.
func ParseReport(s string) Colour {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return Black
	}

	var ch [3]uint8
	for i, p := range parts {
		if p == "" || len(p) > 3 {
			return Black
		}
		v, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return Black
		}
		ch[i] = uint8(v)
	}

	return Colour{R: ch[0], G: ch[1], B: ch[2]}.Brighten(brightenFactor)
}

// Brighten multiplies the HSB brightness by factor, keeping hue and
// saturation. Brightness saturates at full scale.
//
// With hue and saturation fixed every channel is proportional to the
// brightness, so the scale is capped where the strongest channel hits 255.
func (c Colour) Brighten(factor float64) Colour {
	peak := max(c.R, c.G, c.B)
	if peak == 0 || factor <= 0 {
		return c
	}

	scale := math.Min(factor, 255/float64(peak))
	channel := func(v uint8) uint8 {
		return uint8(math.Min(255, math.Round(float64(v)*scale)))
	}
	return Colour{R: channel(c.R), G: channel(c.G), B: channel(c.B)}
}
