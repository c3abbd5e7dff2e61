// Package instruction wraps a user request into the full edit instruction
// sent alongside the source image and an optional reference image.
package instruction

import (
	"errors"
	"fmt"
	"strings"

	"github.com/manash/banafit/pkg/models"
)

var ErrMissingPlacement = errors.New("accessory reference requires a placement location")

// OutputContract closes every instruction so the backend answers with an
// image rather than prose.
const OutputContract = "Return only the edited image. Do not reply with text."

const (
	DefaultFaceNote       = "Swap the face of the person with the reference face provided."
	DefaultBackgroundNote = "Change the background to the reference image provided."
	DefaultAccessoryNote  = "Add this accessory"
)

// Instruction is the result of Build. Request is the user-level request
// recorded on the generated image; Text is what the backend receives.
type Instruction struct {
	Request string
	Text    string
	Role    models.ReferenceRole
}

// Build produces the instruction for base, specialised by the role of ref
// when a reference is attached.
func Build(base string, ref *models.ReferenceConfig) (Instruction, error) {
	base = strings.TrimSpace(base)

	if ref == nil {
		if base == "" {
			return Instruction{}, models.ErrEmptyInstruction
		}
		return Instruction{Request: base, Text: plain(base)}, nil
	}

	switch ref.Role {
	case models.ReferenceFace:
		req := orDefault(base, DefaultFaceNote)
		return Instruction{Request: req, Text: face(req), Role: ref.Role}, nil
	case models.ReferenceBackground:
		req := orDefault(base, DefaultBackgroundNote)
		return Instruction{Request: req, Text: background(req), Role: ref.Role}, nil
	case models.ReferenceAccessory:
		loc := strings.TrimSpace(ref.Location)
		if loc == "" {
			return Instruction{}, ErrMissingPlacement
		}
		req := fmt.Sprintf("%s at %s", orDefault(base, DefaultAccessoryNote), loc)
		return Instruction{Request: req, Text: accessory(req), Role: ref.Role}, nil
	default:
		return Instruction{}, fmt.Errorf("%w: %q", models.ErrInvalidRole, ref.Role)
	}
}

// Attachments lists the images in the order the instruction refers to them:
// the source first, then the reference.
func Attachments(source models.ImagePart, ref *models.ReferenceConfig) []models.ImagePart {
	if ref == nil {
		return []models.ImagePart{source}
	}
	return []models.ImagePart{source, ref.Image}
}

// EditRequest assembles the backend request for an instruction.
func EditRequest(model string, source models.ImagePart, ref *models.ReferenceConfig, ins Instruction) *models.EditRequest {
	req := models.NewEditRequest(source, ins.Text)
	if model != "" {
		req.Model = model
	}
	if ref != nil {
		req.Reference = &models.ReferencePart{Image: ref.Image, Role: ref.Role}
	}
	return req
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func plain(req string) string {
	return lines(
		"Edit the provided image according to the instruction below.",
		"Preserve everything that the instruction does not explicitly change: composition, framing, garment details and colors.",
		"Instruction: "+req,
	)
}

func face(req string) string {
	return lines(
		"You are given two images.",
		"Image 1 is the TARGET: keep its pose, hair, body, clothing and background exactly as they are.",
		"Image 2 is the SOURCE FACE: transfer this face identity onto the person in Image 1.",
		"Blend skin tone, lighting and shadows so the face looks native to Image 1.",
		"Request: "+req,
	)
}

func background(req string) string {
	return lines(
		"You are given two images.",
		"Image 1 contains the FOREGROUND subject: keep the subject, product and clothing unchanged.",
		"Image 2 is the NEW ENVIRONMENT: place the subject from Image 1 into this scene.",
		"Re-light the subject to match the direction, color and intensity of the light in Image 2.",
		"Request: "+req,
	)
}

func accessory(req string) string {
	return lines(
		"You are given two images.",
		"Image 1 is the MODEL: keep the person, pose, clothing and background unchanged.",
		"Image 2 is the ACCESSORY: place this exact item on the model at the requested location.",
		"Match the scale, perspective and lighting of Image 1.",
		"Request: "+req,
	)
}

func lines(parts ...string) string {
	return strings.Join(append(parts, OutputContract), "\n")
}
