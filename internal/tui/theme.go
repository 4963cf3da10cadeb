package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
)

// Color is a terminal color that can be read from TOML as either a single
// color string or a [light, dark] pair.
type Color struct {
	lipgloss.TerminalColor
}

func (c *Color) UnmarshalTOML(v interface{}) error {
	switch v := v.(type) {
	case string:
		c.TerminalColor = lipgloss.Color(v)
		return nil
	case []interface{}:
		if len(v) != 2 {
			return fmt.Errorf("adaptive color needs [light, dark], got %d values", len(v))
		}
		light, ok1 := v[0].(string)
		dark, ok2 := v[1].(string)
		if !ok1 || !ok2 {
			return fmt.Errorf("adaptive color values must be strings")
		}
		c.TerminalColor = lipgloss.AdaptiveColor{Light: light, Dark: dark}
		return nil
	}
	return fmt.Errorf("unsupported color value %v", v)
}

// hex resolves c to a hex string for the current background.
func (c Color) hex() string {
	switch v := c.TerminalColor.(type) {
	case lipgloss.AdaptiveColor:
		if lipgloss.HasDarkBackground() {
			return v.Dark
		}
		return v.Light
	case lipgloss.Color:
		return string(v)
	}
	return ""
}

// Theme contains the colors and icons for the interface.
type Theme struct {
	Primary    Color
	Subtle     Color
	Success    Color
	Error      Color
	Normal     Color
	Disabled   Color
	Border     Color
	Saved      Color
	SignalHigh Color
	SignalLow  Color

	TitleIcon          string
	NetworkOpenIcon    string
	NetworkSecureIcon  string
	NetworkUnknownIcon string
	NetworkSavedIcon   string
	NetworkBestIcon    string
}

// CurrentTheme is the active theme.
var CurrentTheme = NewDefaultTheme()

func adaptive(light, dark string) Color {
	return Color{lipgloss.AdaptiveColor{Light: light, Dark: dark}}
}

// NewDefaultTheme creates a new default theme.
func NewDefaultTheme() Theme {
	return Theme{
		Primary:    adaptive("#5A56E0", "#D359E3"),
		Subtle:     adaptive("#BDBDBD", "#616161"),
		Success:    adaptive("#388E3C", "#81C784"),
		Error:      adaptive("#D32F2F", "#E57373"),
		Normal:     adaptive("#212121", "#FFFFFF"),
		Disabled:   adaptive("#E0E0E0", "#424242"),
		Border:     adaptive("#BDBDBD", "#616161"),
		Saved:      adaptive("#1976D2", "#64B5F6"),
		SignalHigh: adaptive("#00B300", "#00FF00"),
		SignalLow:  adaptive("#D05F00", "#BC3C00"),

		TitleIcon:          "",
		NetworkOpenIcon:    "  ",
		NetworkSecureIcon:  "* ",
		NetworkUnknownIcon: "? ",
		NetworkSavedIcon:   "+ ",
		NetworkBestIcon:    "> ",
	}
}

// SignalColor blends between SignalLow and SignalHigh by strength, a 0-100
// percentage.
func (t Theme) SignalColor(strength int) lipgloss.Color {
	start, err := colorful.Hex(t.SignalLow.hex())
	if err != nil {
		return lipgloss.Color(t.SignalLow.hex())
	}
	end, err := colorful.Hex(t.SignalHigh.hex())
	if err != nil {
		return lipgloss.Color(t.SignalHigh.hex())
	}
	p := float64(min(max(strength, 0), 100)) / 100.0
	return lipgloss.Color(start.BlendRgb(end, p).Hex())
}
