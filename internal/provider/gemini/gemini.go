// Package gemini implements provider.Provider on the Gemini image models
// through google.golang.org/genai.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/manash/banafit/internal/cost"
	"github.com/manash/banafit/internal/provider"
	"github.com/manash/banafit/pkg/models"
)

// ContentGenerator is the subset of *genai.Models used by the provider.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Provider struct {
	client   ContentGenerator
	registry *models.ModelRegistry
	calc     *cost.Calculator
	log      zerolog.Logger
}

// New creates a provider backed by the Gemini Developer API.
func New(ctx context.Context, cfg *provider.Config, registry *models.ModelRegistry, log zerolog.Logger) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, provider.ErrAPIKeyRequired
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	if cfg.TimeoutSec > 0 {
		cc.HTTPClient = &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return NewWithClient(client.Models, registry, log), nil
}

// NewWithClient wires the provider to an existing content generator.
func NewWithClient(client ContentGenerator, registry *models.ModelRegistry, log zerolog.Logger) *Provider {
	if registry == nil {
		registry = models.DefaultRegistry()
	}
	return &Provider{
		client:   client,
		registry: registry,
		calc:     cost.NewCalculator(),
		log:      log.With().Str("provider", string(models.ProviderGemini)).Logger(),
	}
}

func (p *Provider) Name() models.ProviderType {
	return models.ProviderGemini
}

func (p *Provider) SupportsModel(model string) bool {
	cap, ok := p.registry.Get(model)
	if !ok {
		return false
	}
	return cap.Provider == models.ProviderGemini
}

func (p *Provider) ListModels() []string {
	return p.registry.ListByProvider(models.ProviderGemini)
}

func (p *Provider) Edit(ctx context.Context, req *models.EditRequest) (*models.Response, error) {
	if req.Model == "" {
		req.Model = models.DefaultModel
	}

	cap, ok := p.registry.Get(req.Model)
	if !ok || cap.Provider != models.ProviderGemini {
		return nil, fmt.Errorf("%w: %s", provider.ErrModelNotSupported, req.Model)
	}
	if err := cap.Validate(req); err != nil {
		return nil, err
	}

	contents := []*genai.Content{genai.NewContentFromParts(buildParts(req), genai.RoleUser)}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}
	if req.AspectRatio != "" {
		config.ImageConfig = &genai.ImageConfig{AspectRatio: req.AspectRatio}
	}

	role := "none"
	if req.Reference != nil {
		role = string(req.Reference.Role)
	}
	start := time.Now()

	resp, err := p.client.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		p.log.Warn().Err(err).Str("model", req.Model).Dur("elapsed", time.Since(start)).Msg("generate content failed")
		return nil, &provider.TransportError{Err: err}
	}

	img, err := ParseResponse(resp)
	if err != nil {
		p.log.Warn().Err(err).Str("model", req.Model).Str("reference", role).Msg("no image in response")
		return nil, err
	}

	p.log.Debug().
		Str("model", req.Model).
		Str("reference", role).
		Int("bytes", len(img.Data)).
		Dur("elapsed", time.Since(start)).
		Msg("image edited")

	return &models.Response{
		Image: img,
		Cost:  p.calc.Calculate(models.ProviderGemini, req.Model, "", 1),
	}, nil
}

// buildParts orders the request as source image, optional reference image,
// then the instruction text.
func buildParts(req *models.EditRequest) []*genai.Part {
	parts := []*genai.Part{
		genai.NewPartFromBytes(req.Source.Data, mimeOf(req.Source)),
	}
	if req.Reference != nil {
		parts = append(parts, genai.NewPartFromBytes(req.Reference.Image.Data, mimeOf(req.Reference.Image)))
	}
	return append(parts, genai.NewPartFromText(req.Instruction))
}

func mimeOf(p models.ImagePart) string {
	if p.MIMEType != "" {
		return p.MIMEType
	}
	return http.DetectContentType(p.Data)
}

// ParseResponse extracts the first inline image of the first candidate.
// A response without an image is classified as a refusal, a text-only
// answer or an empty result.
func ParseResponse(resp *genai.GenerateContentResponse) (models.ImagePart, error) {
	if resp == nil {
		return models.ImagePart{}, &provider.EmptyResponseError{}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		if pf := resp.PromptFeedback; pf != nil && pf.BlockReason != "" && pf.BlockReason != genai.BlockedReasonUnspecified {
			return models.ImagePart{}, &provider.BackendRefusalError{
				Reason:  string(pf.BlockReason),
				Message: pf.BlockReasonMessage,
			}
		}
		return models.ImagePart{}, &provider.EmptyResponseError{}
	}

	candidate := resp.Candidates[0]

	var text strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = http.DetectContentType(part.InlineData.Data)
				}
				return models.ImagePart{Data: part.InlineData.Data, MIMEType: mime}, nil
			}
			if part.Text != "" && !part.Thought {
				text.WriteString(part.Text)
			}
		}
	}

	if text.Len() > 0 {
		return models.ImagePart{}, provider.NewTextOnlyResponseError(text.String())
	}

	switch candidate.FinishReason {
	case "", genai.FinishReasonUnspecified, genai.FinishReasonStop:
	default:
		return models.ImagePart{}, &provider.BackendRefusalError{
			Reason:  string(candidate.FinishReason),
			Message: candidate.FinishMessage,
		}
	}

	return models.ImagePart{}, &provider.EmptyResponseError{}
}
