package tui

import (
	"errors"
	"io"
	"os"

	"github.com/BurntSushi/toml"
)

// themeFile is the TOML form of a theme. Missing entries keep their default.
type themeFile struct {
	Primary    *Color `toml:"Primary,omitempty"`
	Subtle     *Color `toml:"Subtle,omitempty"`
	Success    *Color `toml:"Success,omitempty"`
	Error      *Color `toml:"Error,omitempty"`
	Normal     *Color `toml:"Normal,omitempty"`
	Disabled   *Color `toml:"Disabled,omitempty"`
	Border     *Color `toml:"Border,omitempty"`
	Saved      *Color `toml:"Saved,omitempty"`
	SignalHigh *Color `toml:"SignalHigh,omitempty"`
	SignalLow  *Color `toml:"SignalLow,omitempty"`
}

// LoadTheme reads a theme from r on top of the default theme.
func LoadTheme(r io.Reader) (Theme, error) {
	theme := NewDefaultTheme()
	if r == nil {
		return theme, errors.New("no theme to read")
	}

	var tf themeFile
	if _, err := toml.NewDecoder(r).Decode(&tf); err != nil {
		return theme, err
	}

	for _, o := range []struct {
		dst *Color
		src *Color
	}{
		{&theme.Primary, tf.Primary},
		{&theme.Subtle, tf.Subtle},
		{&theme.Success, tf.Success},
		{&theme.Error, tf.Error},
		{&theme.Normal, tf.Normal},
		{&theme.Disabled, tf.Disabled},
		{&theme.Border, tf.Border},
		{&theme.Saved, tf.Saved},
		{&theme.SignalHigh, tf.SignalHigh},
		{&theme.SignalLow, tf.SignalLow},
	} {
		if o.src != nil {
			*o.dst = *o.src
		}
	}
	return theme, nil
}

// LoadThemeFile makes the theme at path current. An empty path does nothing.
func LoadThemeFile(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	theme, err := LoadTheme(f)
	if err != nil {
		return err
	}
	CurrentTheme = theme
	return nil
}
