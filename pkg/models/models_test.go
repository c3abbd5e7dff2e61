package models

import (
	"errors"
	"strings"
	"testing"
)

var testImage = ImagePart{Data: []byte("png-bytes"), MIMEType: "image/png"}

func TestNewEditRequest(t *testing.T) {
	req := NewEditRequest(testImage, "make it brighter")

	if req.Instruction != "make it brighter" {
		t.Errorf("NewEditRequest().Instruction = %v, want %v", req.Instruction, "make it brighter")
	}
	if req.Model != DefaultModel {
		t.Errorf("NewEditRequest().Model = %v, want %v", req.Model, DefaultModel)
	}
	if req.Reference != nil {
		t.Error("NewEditRequest().Reference should be nil")
	}
}

func TestEditRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     *EditRequest
		wantErr error
	}{
		{
			name:    "valid request",
			req:     NewEditRequest(testImage, "edit"),
			wantErr: nil,
		},
		{
			name:    "missing source",
			req:     NewEditRequest(ImagePart{}, "edit"),
			wantErr: ErrNoImageData,
		},
		{
			name:    "empty instruction",
			req:     NewEditRequest(testImage, ""),
			wantErr: ErrEmptyInstruction,
		},
		{
			name: "reference without data",
			req: &EditRequest{
				Instruction: "edit",
				Source:      testImage,
				Reference:   &ReferencePart{Role: ReferenceFace},
			},
			wantErr: ErrNoImageData,
		},
		{
			name: "reference with unknown role",
			req: &EditRequest{
				Instruction: "edit",
				Source:      testImage,
				Reference:   &ReferencePart{Image: testImage, Role: "HAT"},
			},
			wantErr: ErrInvalidRole,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestModelCapabilities_Validate(t *testing.T) {
	cap := &ModelCapabilities{
		Name:                 "test-model",
		Provider:             ProviderGemini,
		SupportsReference:    false,
		SupportedAspectRatio: []string{"1:1", "3:4"},
	}

	tests := []struct {
		name    string
		req     *EditRequest
		wantErr error
	}{
		{"plain edit", NewEditRequest(testImage, "edit"), nil},
		{"supported ratio", &EditRequest{Instruction: "edit", Source: testImage, AspectRatio: "3:4"}, nil},
		{"unsupported ratio", &EditRequest{Instruction: "edit", Source: testImage, AspectRatio: "16:9"}, ErrInvalidAspectRatio},
		{
			"reference on model without support",
			&EditRequest{Instruction: "edit", Source: testImage, Reference: &ReferencePart{Image: testImage, Role: ReferenceFace}},
			ErrReferenceNotSupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cap.Validate(tt.req)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	cap, ok := r.Get(DefaultModel)
	if !ok {
		t.Fatalf("DefaultRegistry() missing %s", DefaultModel)
	}
	if cap.Provider != ProviderGemini {
		t.Errorf("Provider = %v, want %v", cap.Provider, ProviderGemini)
	}
	if !cap.SupportsReference {
		t.Error("default model should accept a reference image")
	}

	names := r.List()
	if len(names) != 2 {
		t.Fatalf("List() returned %d models, want 2", len(names))
	}
	if names[0] > names[1] {
		t.Errorf("List() not sorted: %v", names)
	}

	if got := r.ListByProvider(ProviderGemini); len(got) != 2 {
		t.Errorf("ListByProvider(gemini) = %v, want 2 entries", got)
	}
	if got := r.ListByProvider("openai"); len(got) != 0 {
		t.Errorf("ListByProvider(openai) = %v, want none", got)
	}
}

func TestGenerationConfig_Validate(t *testing.T) {
	valid := DefaultGenerationConfig()

	tests := []struct {
		name    string
		mutate  func(c *GenerationConfig)
		wantErr error
	}{
		{"defaults", func(c *GenerationConfig) {}, nil},
		{"count 5", func(c *GenerationConfig) { c.Count = 5 }, nil},
		{"count 2", func(c *GenerationConfig) { c.Count = 2 }, ErrInvalidCount},
		{"count 0", func(c *GenerationConfig) { c.Count = 0 }, ErrInvalidCount},
		{"unknown type", func(c *GenerationConfig) { c.Type = "UPSCALE" }, ErrInvalidGenerationType},
		{"bad age", func(c *GenerationConfig) { c.TargetAge = "60s" }, ErrInvalidAge},
		{"bad gender", func(c *GenerationConfig) { c.TargetGender = "other" }, ErrInvalidGender},
		{
			"product only ignores demographics",
			func(c *GenerationConfig) {
				c.Type = TypeProductOnly
				c.TargetAge = ""
				c.TargetGender = ""
			},
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseGenerationType(t *testing.T) {
	tests := []struct {
		in      string
		want    GenerationType
		wantErr bool
	}{
		{"MODEL_CHANGE", TypeModelChange, false},
		{"try-on", TypeTryOn, false},
		{"product_only", TypeProductOnly, false},
		{"video", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseGenerationType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseGenerationType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseGenerationType(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseReferenceRole(t *testing.T) {
	tests := []struct {
		in   string
		want ReferenceRole
	}{
		{"face", ReferenceFace},
		{"bg", ReferenceBackground},
		{"background", ReferenceBackground},
		{"acc", ReferenceAccessory},
	}
	for _, tt := range tests {
		got, err := ParseReferenceRole(tt.in)
		if err != nil {
			t.Fatalf("ParseReferenceRole(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseReferenceRole(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseReferenceRole("hat"); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("ParseReferenceRole(hat) error = %v, want %v", err, ErrInvalidRole)
	}
}

func TestStep_Navigation(t *testing.T) {
	steps := Steps()
	if len(steps) != 6 {
		t.Fatalf("Steps() returned %d steps, want 6", len(steps))
	}

	for i, s := range steps {
		if s.Index() != i+1 {
			t.Errorf("%v.Index() = %d, want %d", s, s.Index(), i+1)
		}
		next, ok := s.Next()
		if i == len(steps)-1 {
			if ok {
				t.Errorf("%v.Next() should not advance", s)
			}
			continue
		}
		if !ok || next != steps[i+1] {
			t.Errorf("%v.Next() = %v, %v; want %v", s, next, ok, steps[i+1])
		}
		if prev, ok := next.Prev(); !ok || prev != s {
			t.Errorf("%v.Prev() = %v, %v; want %v", next, prev, ok, s)
		}
	}

	if _, ok := StepUpload.Prev(); ok {
		t.Error("UPLOAD.Prev() should not move")
	}
}

func TestParseStep(t *testing.T) {
	got, err := ParseStep("adjustment")
	if err != nil {
		t.Fatalf("ParseStep() error = %v", err)
	}
	if got != StepAdjustment {
		t.Errorf("ParseStep() = %v, want %v", got, StepAdjustment)
	}
	if got.String() != "ADJUSTMENT" {
		t.Errorf("String() = %q", got.String())
	}
	if _, err := ParseStep("review"); !errors.Is(err, ErrInvalidStep) {
		t.Errorf("ParseStep(review) error = %v, want %v", err, ErrInvalidStep)
	}
	if s := Step(42).String(); s != "Step(42)" {
		t.Errorf("Step(42).String() = %q", s)
	}
}

func TestDataURL(t *testing.T) {
	in := InputImage{Image: ImagePart{Data: []byte("abc"), MIMEType: "image/jpeg"}}
	got := in.DataURL()
	if got != "data:image/jpeg;base64,YWJj" {
		t.Errorf("DataURL() = %q", got)
	}

	if !strings.HasPrefix(DataURL(ImagePart{Data: []byte("x")}), "data:application/octet-stream;base64,") {
		t.Error("DataURL() should fall back to octet-stream without a MIME type")
	}
}
