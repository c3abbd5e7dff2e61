package models

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

var (
	ErrEmptyInstruction      = errors.New("instruction cannot be empty")
	ErrNoImageData           = errors.New("image data is required for editing")
	ErrReferenceNotSupported = errors.New("reference images not supported by model")
	ErrInvalidAspectRatio    = errors.New("invalid aspect ratio for model")
)

type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
)

const DefaultModel = "gemini-2.5-flash-image"

// ImagePart is an encoded image together with its MIME type.
type ImagePart struct {
	Data     []byte
	MIMEType string
}

func (p ImagePart) IsEmpty() bool {
	return len(p.Data) == 0
}

type EditRequest struct {
	Model       string
	Instruction string
	Source      ImagePart
	Reference   *ReferencePart
	AspectRatio string
}

// ReferencePart is the optional second image of an edit request.
type ReferencePart struct {
	Image ImagePart
	Role  ReferenceRole
}

func NewEditRequest(source ImagePart, instruction string) *EditRequest {
	return &EditRequest{
		Model:       DefaultModel,
		Instruction: instruction,
		Source:      source,
	}
}

func (r *EditRequest) Validate() error {
	if r.Source.IsEmpty() {
		return ErrNoImageData
	}
	if r.Instruction == "" {
		return ErrEmptyInstruction
	}
	if r.Reference != nil {
		if r.Reference.Image.IsEmpty() {
			return fmt.Errorf("reference: %w", ErrNoImageData)
		}
		if !r.Reference.Role.IsValid() {
			return fmt.Errorf("%w: %q", ErrInvalidRole, r.Reference.Role)
		}
	}
	return nil
}

type Response struct {
	Image ImagePart
	Text  string
	Cost  *CostInfo
}

type CostInfo struct {
	PerImage float64
	Total    float64
	Currency string
}

type ModelCapabilities struct {
	Name                 string
	Provider             ProviderType
	Description          string
	SupportsReference    bool
	SupportedAspectRatio []string
	DefaultAspectRatio   string
}

func (c *ModelCapabilities) Validate(req *EditRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	if req.Reference != nil && !c.SupportsReference {
		return fmt.Errorf("%w: %s", ErrReferenceNotSupported, c.Name)
	}

	if req.AspectRatio != "" && !slices.Contains(c.SupportedAspectRatio, req.AspectRatio) {
		return fmt.Errorf("%w: %q not in %v", ErrInvalidAspectRatio, req.AspectRatio, c.SupportedAspectRatio)
	}

	return nil
}

type ModelRegistry struct {
	models map[string]*ModelCapabilities
}

func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{
		models: make(map[string]*ModelCapabilities),
	}
}

func (r *ModelRegistry) Register(cap *ModelCapabilities) {
	r.models[cap.Name] = cap
}

func (r *ModelRegistry) Get(name string) (*ModelCapabilities, bool) {
	cap, ok := r.models[name]
	return cap, ok
}

// List returns the registered model names in lexical order.
func (r *ModelRegistry) List() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *ModelRegistry) ListByProvider(provider ProviderType) []string {
	var names []string
	for name, cap := range r.models {
		if cap.Provider == provider {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

var geminiAspectRatios = []string{"1:1", "2:3", "3:2", "3:4", "4:3", "4:5", "5:4", "9:16", "16:9", "21:9"}

func DefaultRegistry() *ModelRegistry {
	r := NewModelRegistry()

	r.Register(&ModelCapabilities{
		Name:                 DefaultModel,
		Provider:             ProviderGemini,
		Description:          "fast image editing with multi-image input",
		SupportsReference:    true,
		SupportedAspectRatio: geminiAspectRatios,
		DefaultAspectRatio:   "1:1",
	})

	r.Register(&ModelCapabilities{
		Name:                 "gemini-3-pro-image-preview",
		Provider:             ProviderGemini,
		Description:          "higher fidelity editing, slower and more expensive",
		SupportsReference:    true,
		SupportedAspectRatio: geminiAspectRatios,
		DefaultAspectRatio:   "1:1",
	})

	return r
}
