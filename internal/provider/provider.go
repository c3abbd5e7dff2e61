package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/manash/banafit/pkg/models"
)

var (
	ErrProviderNotFound  = errors.New("provider not found")
	ErrModelNotSupported = errors.New("model not supported by provider")
	ErrAPIKeyRequired    = errors.New("API key is required")
)

// Provider is the image editing backend. Edit sends one source image, an
// instruction and an optional reference image, and returns one edited image.
type Provider interface {
	Name() models.ProviderType
	Edit(ctx context.Context, req *models.EditRequest) (*models.Response, error)
	SupportsModel(model string) bool
	ListModels() []string
}

type Config struct {
	APIKey     string
	BaseURL    string
	TimeoutSec int
}

// Constructor builds a provider from its configuration.
type Constructor func(ctx context.Context, cfg *Config) (Provider, error)

type backend struct {
	cfg      *Config
	build    Constructor
	instance Provider
}

// Factory maps models to configured backends. A backend is constructed the
// first time a model it serves is requested and reused afterwards.
type Factory struct {
	registry *models.ModelRegistry
	backends map[models.ProviderType]*backend
}

func NewFactory(registry *models.ModelRegistry) *Factory {
	return &Factory{
		registry: registry,
		backends: make(map[models.ProviderType]*backend),
	}
}

// Configure makes providerType available. Reconfiguring drops any instance
// already built from the previous configuration.
func (f *Factory) Configure(providerType models.ProviderType, cfg *Config, build Constructor) {
	f.backends[providerType] = &backend{cfg: cfg, build: build}
}

// ForModel returns the backend serving model, constructing it from its
// stored configuration on first use.
func (f *Factory) ForModel(ctx context.Context, model string) (Provider, error) {
	caps, ok := f.registry.Get(model)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotSupported, model)
	}

	b, ok := f.backends[caps.Provider]
	if !ok || b.build == nil {
		return nil, fmt.Errorf("%w: %s (required by model %s)", ErrProviderNotFound, caps.Provider, model)
	}

	if b.instance == nil {
		if b.cfg == nil || b.cfg.APIKey == "" {
			return nil, fmt.Errorf("%w for %s", ErrAPIKeyRequired, caps.Provider)
		}
		p, err := b.build(ctx, b.cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s provider: %w", caps.Provider, err)
		}
		b.instance = p
	}

	if !b.instance.SupportsModel(model) {
		return nil, fmt.Errorf("%w: %s does not serve %s", ErrModelNotSupported, b.instance.Name(), model)
	}
	return b.instance, nil
}
