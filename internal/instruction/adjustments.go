package instruction

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var ErrInvalidColor = errors.New("color must be a hex value like #1a2b3c")

var hexColor = regexp.MustCompile(`^#?[0-9a-fA-F]{6}$`)

// ColorChange recolors the main garment while keeping its material.
func ColorChange(hex string) (string, error) {
	hex = strings.TrimSpace(hex)
	if !hexColor.MatchString(hex) {
		return "", fmt.Errorf("%w: %q", ErrInvalidColor, hex)
	}
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}
	return fmt.Sprintf("Change the color of the main product/clothing to %s. Maintain original texture, shadows, and fabric details.", strings.ToLower(hex)), nil
}

type Preset struct {
	Label  string
	Prompt string
}

var backgroundPresets = []Preset{
	{Label: "Pure White", Prompt: "Clean pure white background, minimal product photography"},
	{Label: "Soft Gray", Prompt: "Soft light gray studio background, professional look"},
	{Label: "Beige Tone", Prompt: "Warm beige tone background, natural and organic feel"},
	{Label: "Dark Studio", Prompt: "Dark charcoal studio background, dramatic lighting"},
	{Label: "Urban Street", Prompt: "Blurred urban street background, city vibe, bokeh"},
	{Label: "Nature", Prompt: "Blurred nature background, park with sunlight, greenery"},
}

func BackgroundPresets() []Preset {
	return slices.Clone(backgroundPresets)
}

// BackgroundPreset looks a preset up by label, ignoring case.
func BackgroundPreset(label string) (Preset, bool) {
	for _, p := range backgroundPresets {
		if strings.EqualFold(p.Label, label) {
			return p, true
		}
	}
	return Preset{}, false
}

var quickEdits = []Preset{
	{Label: "Remove watermark", Prompt: "Remove all watermarks, logos and text overlays. Keep everything else identical."},
	{Label: "Brighter", Prompt: "Make the lighting brighter and more even while keeping natural colors."},
	{Label: "Sharpen", Prompt: "Sharpen the image and enhance fine fabric details without adding artifacts."},
}

func QuickEdits() []Preset {
	return slices.Clone(quickEdits)
}

var accessoryLocations = []string{"Right Hand", "Left Hand", "Neck", "Head", "Right Wrist", "Left Wrist", "Feet"}

func AccessoryLocations() []string {
	return slices.Clone(accessoryLocations)
}

// AccessoryLocation normalizes a location token such as "right-hand" to its
// canonical form. Unknown locations are returned trimmed and unchanged.
func AccessoryLocation(s string) string {
	norm := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(s, "-", " "), "_", " "))
	for _, loc := range accessoryLocations {
		if strings.EqualFold(loc, norm) {
			return loc
		}
	}
	return norm
}
