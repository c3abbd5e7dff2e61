// Package display previews images inline in terminals that speak the kitty
// graphics protocol.
package display

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"slices"
	"strings"

	"golang.org/x/term"

	"github.com/manash/banafit/pkg/models"
)

const DefaultColumns = 40

var ErrUnsupportedFormat = errors.New("image format cannot be previewed")

type Displayer struct {
	out     io.Writer
	enc     *KittyEncoder
	enabled bool
}

// New returns a displayer writing to out. A disabled displayer accepts
// every call and writes nothing.
func New(out io.Writer, enabled bool, columns int) *Displayer {
	return &Displayer{
		out:     out,
		enc:     NewKittyEncoder(out, columns),
		enabled: enabled,
	}
}

func (d *Displayer) Enabled() bool {
	return d.enabled
}

func (d *Displayer) Show(img models.ImagePart) error {
	if !d.enabled {
		return nil
	}
	data, err := toPNG(img)
	if err != nil {
		return err
	}
	if err := d.enc.Encode(data); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	fmt.Fprintln(d.out)
	return nil
}

func (d *Displayer) ShowAll(imgs []models.GeneratedImage) error {
	for i, img := range imgs {
		if err := d.Show(img.Image); err != nil {
			return fmt.Errorf("failed to display image %d: %w", i+1, err)
		}
	}
	return nil
}

// toPNG passes PNG data through and transcodes JPEG and GIF, which kitty
// cannot take directly.
func toPNG(img models.ImagePart) ([]byte, error) {
	switch img.MIMEType {
	case "image/png", "":
		return img.Data, nil
	case "image/jpeg", "image/gif":
		decoded, _, err := image.Decode(bytes.NewReader(img.Data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", img.MIMEType, err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, decoded); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, img.MIMEType)
	}
}

// Enabled resolves a DISPLAY_IMAGES mode. "auto" turns previews on when out
// is a terminal that supports the graphics protocol.
func Enabled(mode string, out io.Writer, getenv func(string) string) bool {
	switch mode {
	case "on":
		return true
	case "off":
		return false
	}
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return false
	}
	return IsTerminalSupported(getenv)
}

var supportedPrograms = []string{"kitty", "ghostty", "iterm.app", "wezterm"}

func IsTerminalSupported(getenv func(string) string) bool {
	if getenv == nil {
		getenv = os.Getenv
	}

	if slices.Contains(supportedPrograms, strings.ToLower(getenv("TERM_PROGRAM"))) {
		return true
	}
	if getenv("KITTY_WINDOW_ID") != "" || getenv("ITERM_SESSION_ID") != "" {
		return true
	}

	t := strings.ToLower(getenv("TERM"))
	return strings.Contains(t, "kitty") || strings.Contains(t, "ghostty")
}
