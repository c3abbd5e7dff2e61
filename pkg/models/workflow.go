package models

import (
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var (
	ErrInvalidCount          = errors.New("count must be 1, 3 or 5")
	ErrInvalidGenerationType = errors.New("invalid generation type")
	ErrInvalidAge            = errors.New("invalid target age")
	ErrInvalidGender         = errors.New("invalid target gender")
	ErrInvalidRole           = errors.New("invalid reference role")
	ErrInvalidStep           = errors.New("invalid step")
)

type LayerRole string

const (
	RoleSystem LayerRole = "SYSTEM"
	RoleUser   LayerRole = "USER"
	RoleCustom LayerRole = "CUSTOM"
)

// Layer is one toggleable instruction fragment of the composed prompt.
type Layer struct {
	ID      string
	Name    string
	Role    LayerRole
	Content string
	Enabled bool
	Locked  bool
}

type GenerationType string

const (
	TypeModelChange GenerationType = "MODEL_CHANGE"
	TypeTryOn       GenerationType = "TRY_ON"
	TypeProductOnly GenerationType = "PRODUCT_ONLY"
)

func GenerationTypes() []GenerationType {
	return []GenerationType{TypeModelChange, TypeTryOn, TypeProductOnly}
}

func (t GenerationType) IsValid() bool {
	return slices.Contains(GenerationTypes(), t)
}

// HasModel reports whether the type keeps a person in the frame, which is
// when demographic targeting applies.
func (t GenerationType) HasModel() bool {
	return t == TypeModelChange || t == TypeTryOn
}

// ParseGenerationType accepts the canonical names as well as lower-case,
// dashed forms such as "try-on".
func ParseGenerationType(s string) (GenerationType, error) {
	t := GenerationType(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidGenerationType, s)
	}
	return t, nil
}

type AgeBand string

const (
	Age20s AgeBand = "20s"
	Age30s AgeBand = "30s"
	Age40s AgeBand = "40s"
	Age50s AgeBand = "50s"
)

func AgeBands() []AgeBand {
	return []AgeBand{Age20s, Age30s, Age40s, Age50s}
}

func (a AgeBand) IsValid() bool {
	return slices.Contains(AgeBands(), a)
}

type Gender string

const (
	GenderFemale Gender = "Female"
	GenderMale   Gender = "Male"
)

func (g Gender) IsValid() bool {
	return g == GenderFemale || g == GenderMale
}

func ParseGender(s string) (Gender, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "female", "f":
		return GenderFemale, nil
	case "male", "m":
		return GenderMale, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidGender, s)
}

var allowedCounts = []int{1, 3, 5}

func AllowedCounts() []int {
	return slices.Clone(allowedCounts)
}

type GenerationConfig struct {
	Count           int
	Type            GenerationType
	RemoveWatermark bool
	TargetAge       AgeBand
	TargetGender    Gender
	// Identity names the subject's appearance group in the demographic
	// block, e.g. "Korean".
	Identity string
}

func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Count:        3,
		Type:         TypeModelChange,
		TargetAge:    Age20s,
		TargetGender: GenderFemale,
		Identity:     "Korean",
	}
}

func (c GenerationConfig) Validate() error {
	if !slices.Contains(allowedCounts, c.Count) {
		return fmt.Errorf("%w: got %d", ErrInvalidCount, c.Count)
	}
	if !c.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidGenerationType, c.Type)
	}
	if !c.Type.HasModel() {
		return nil
	}
	if !c.TargetAge.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidAge, c.TargetAge)
	}
	if !c.TargetGender.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidGender, c.TargetGender)
	}
	return nil
}

type ReferenceRole string

const (
	ReferenceFace       ReferenceRole = "FACE"
	ReferenceBackground ReferenceRole = "BACKGROUND"
	ReferenceAccessory  ReferenceRole = "ACCESSORY"
)

func ReferenceRoles() []ReferenceRole {
	return []ReferenceRole{ReferenceFace, ReferenceBackground, ReferenceAccessory}
}

func (r ReferenceRole) IsValid() bool {
	return slices.Contains(ReferenceRoles(), r)
}

func ParseReferenceRole(s string) (ReferenceRole, error) {
	r := ReferenceRole(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case "BG":
		r = ReferenceBackground
	case "ACC":
		r = ReferenceAccessory
	}
	if !r.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// ReferenceConfig carries a secondary image for a single request. Location
// is the placement token used by ACCESSORY references.
type ReferenceConfig struct {
	Image    ImagePart
	Role     ReferenceRole
	Location string
}

type InputImage struct {
	ID      string
	Name    string
	Image   ImagePart
	AddedAt time.Time
}

// DataURL returns the image as a base64 data URL.
func (i InputImage) DataURL() string {
	return DataURL(i.Image)
}

type GeneratedImage struct {
	ID            string
	ParentInputID string
	Image         ImagePart
	PromptUsed    string
	CreatedAt     time.Time
	Cost          float64
}

func DataURL(p ImagePart) string {
	mime := p.MIMEType
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
}

type Step int

const (
	StepUpload Step = iota
	StepConditions
	StepLayers
	StepGeneration
	StepAdjustment
	StepFinal
)

var stepNames = []string{"UPLOAD", "CONDITIONS", "LAYERS", "GENERATION", "ADJUSTMENT", "FINAL"}

func Steps() []Step {
	return []Step{StepUpload, StepConditions, StepLayers, StepGeneration, StepAdjustment, StepFinal}
}

func (s Step) String() string {
	if s < StepUpload || s > StepFinal {
		return fmt.Sprintf("Step(%d)", int(s))
	}
	return stepNames[s]
}

// Index is the 1-based position of the step in the flow.
func (s Step) Index() int {
	return int(s) + 1
}

// Next returns the following step; ok is false at FINAL.
func (s Step) Next() (Step, bool) {
	if s >= StepFinal {
		return s, false
	}
	return s + 1, true
}

// Prev returns the preceding step; ok is false at UPLOAD.
func (s Step) Prev() (Step, bool) {
	if s <= StepUpload {
		return s, false
	}
	return s - 1, true
}

func ParseStep(name string) (Step, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for i, n := range stepNames {
		if n == upper {
			return Step(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidStep, name)
}
