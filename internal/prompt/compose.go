// Package prompt turns the layer list and generation settings into the
// single instruction sent for batch generation.
package prompt

import (
	"fmt"
	"strings"

	"github.com/manash/banafit/pkg/models"
)

const Separator = ", "

const WatermarkBlock = "ENSURE ALL WATERMARKS, LOGOS, AND TEXT ARE COMPLETELY REMOVED FROM THE IMAGE. Clean background, professional retouching."

// Compose joins the enabled layers in stored order, preceded by the
// demographic block for model types and the watermark block when requested.
// It has no side effects.
func Compose(layers []models.Layer, cfg models.GenerationConfig) string {
	var parts []string

	if cfg.RemoveWatermark {
		parts = append(parts, WatermarkBlock)
	}

	if cfg.Type.HasModel() {
		parts = append(parts, DemographicBlock(cfg))
	}

	for _, l := range layers {
		if l.Enabled {
			parts = append(parts, l.Content)
		}
	}

	return strings.Join(parts, Separator)
}

// identityStyles adds a regional beauty style to the face details for
// identities that have one. Keys are lower case.
var identityStyles = map[string]string{
	"korean": "K-beauty style",
}

// DemographicBlock describes the replacement subject for MODEL_CHANGE and
// TRY_ON generations.
func DemographicBlock(cfg models.GenerationConfig) string {
	person := "Woman"
	if cfg.TargetGender == models.GenderMale {
		person = "Man"
	}

	identity := strings.TrimSpace(cfg.Identity)
	subject := person
	persona := person
	face := []string{"Charming facial features"}
	if identity != "" {
		subject = identity + " " + person
		persona = identity
		face = []string{"Charming " + identity + " facial features"}
		if style, ok := identityStyles[strings.ToLower(identity)]; ok {
			face = append(face, style)
		}
	}
	face = append(face, "natural skin texture", "clear eyes")

	return fmt.Sprintf(
		"CORE TASK: Replace the model with an attractive %s in their %s. "+
			"Face Details: %s. "+
			"Expression/Pose: Maintain the original pose and facial expression intensity but adapted to the new %s identity. "+
			"Hair: Apply a trendy hairstyle suitable for a %s %s.",
		subject, cfg.TargetAge, strings.Join(face, ", "), persona, cfg.TargetAge, subject,
	)
}
