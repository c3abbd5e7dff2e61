package layers

import (
	"slices"

	"github.com/manash/banafit/pkg/models"
)

const systemLayerID = "sys-1"

var modelPreset = []models.Layer{
	{
		ID:      systemLayerID,
		Name:    "System",
		Role:    models.RoleSystem,
		Content: "High quality professional fashion photography, photorealistic, 8k resolution, detailed texture.",
		Enabled: true,
		Locked:  true,
	},
	{
		ID:      "user-1",
		Name:    "Model",
		Role:    models.RoleUser,
		Content: "Female fashion model, confident pose, natural makeup.",
		Enabled: true,
	},
	{
		ID:      "user-2",
		Name:    "Lighting & background",
		Role:    models.RoleUser,
		Content: "Soft studio lighting, neutral background.",
		Enabled: true,
	},
}

var productPreset = []models.Layer{
	{
		ID:      systemLayerID,
		Name:    "System",
		Role:    models.RoleSystem,
		Content: "High quality professional product photography, 8k resolution, detailed texture, sharp focus.",
		Enabled: true,
		Locked:  true,
	},
	{
		ID:      "prod-1",
		Name:    "Ghost mannequin",
		Role:    models.RoleUser,
		Content: "Ghost mannequin effect, invisible mannequin, hollow clothing, 3D volume, neck insert detail, maintain original view angle and perspective.",
		Enabled: true,
	},
	{
		ID:      "prod-2",
		Name:    "Background",
		Role:    models.RoleUser,
		Content: "Pure white background, clean isolation, soft diffuse lighting, no shadows.",
		Enabled: true,
	},
}

// Preset returns a fresh copy of the default layer list for a generation type.
func Preset(t models.GenerationType) []models.Layer {
	if t == models.TypeProductOnly {
		return slices.Clone(productPreset)
	}
	return slices.Clone(modelPreset)
}

// QuickLayer is a one-click custom layer offered in the layer editor.
type QuickLayer struct {
	Label   string
	Content string
}

var quickLayers = []QuickLayer{
	{Label: "Studio lighting", Content: "Professional studio lighting, softbox, neutral background, sharp details"},
	{Label: "Natural/outdoor", Content: "Natural sunlight, outdoor setting, golden hour, street photography style"},
	{Label: "Luxury mood", Content: "High-end luxury fashion style, elegant atmosphere, detailed texture, cinematic lighting"},
	{Label: "Minimal background", Content: "Clean minimalist background, solid color, distraction-free, modern look"},
	{Label: "Close-up", Content: "Close-up portrait shot, focus on face and details, shallow depth of field"},
	{Label: "Full body", Content: "Full body shot, wide angle, showing shoes and styling, fashion magazine composition"},
}

func QuickLayers() []QuickLayer {
	return slices.Clone(quickLayers)
}
