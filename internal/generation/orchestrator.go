// Package generation issues edit requests against the backend and turns
// the responses into generated images.
package generation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/manash/banafit/internal/instruction"
	"github.com/manash/banafit/internal/provider"
	"github.com/manash/banafit/internal/session"
	"github.com/manash/banafit/pkg/models"
)

var ErrNoProvider = errors.New("no provider configured")

// JoinPolicy decides what a batch returns when some of its requests fail.
type JoinPolicy int

const (
	// AllOrNothing rejects the whole batch on the first failure.
	AllOrNothing JoinPolicy = iota
	// KeepPartial returns every image that succeeded together with the
	// joined errors of the ones that did not.
	KeepPartial
)

func (p JoinPolicy) String() string {
	switch p {
	case AllOrNothing:
		return "all"
	case KeepPartial:
		return "partial"
	default:
		return fmt.Sprintf("JoinPolicy(%d)", int(p))
	}
}

// ParseJoinPolicy accepts the values of the JOIN_POLICY setting.
func ParseJoinPolicy(s string) (JoinPolicy, error) {
	switch s {
	case "", "all":
		return AllOrNothing, nil
	case "partial":
		return KeepPartial, nil
	default:
		return AllOrNothing, fmt.Errorf("unknown join policy %q", s)
	}
}

// DefaultHints are appended to otherwise identical batch requests so the
// backend does not return near-duplicates.
var DefaultHints = []string{
	"slightly different camera angle",
	"subtle variation in pose",
	"alternative natural expression",
	"slightly different framing",
	"soft variation in lighting direction",
	"different moment in the same shoot",
}

type Options struct {
	Provider      provider.Provider
	Model         string
	MaxConcurrent int
	Policy        JoinPolicy
	// Timeout bounds each backend call. Zero leaves only the caller's
	// context in charge.
	Timeout time.Duration
	Hints   []string
	// Pick returns an index in [0, n). Defaults to math/rand/v2.
	Pick   func(n int) int
	Now    func() time.Time
	NewID  func() string
	Logger zerolog.Logger
}

type Orchestrator struct {
	provider      provider.Provider
	model         string
	maxConcurrent int
	policy        JoinPolicy
	timeout       time.Duration
	hints         []string
	pick          func(int) int
	now           func() time.Time
	newID         func() string
	log           zerolog.Logger
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		provider:      opts.Provider,
		model:         opts.Model,
		maxConcurrent: opts.MaxConcurrent,
		policy:        opts.Policy,
		timeout:       opts.Timeout,
		hints:         opts.Hints,
		pick:          opts.Pick,
		now:           opts.Now,
		newID:         opts.NewID,
		log:           opts.Logger,
	}
	if o.model == "" {
		o.model = models.DefaultModel
	}
	if o.hints == nil {
		o.hints = DefaultHints
	}
	if o.pick == nil {
		o.pick = rand.IntN
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newID == nil {
		o.newID = session.NewID
	}
	return o
}

func (o *Orchestrator) Model() string       { return o.model }
func (o *Orchestrator) Policy() JoinPolicy  { return o.policy }

type BatchRequest struct {
	Source      models.InputImage
	Instruction string
	Count       int
	Face        *models.ImagePart
	Model       string
}

// GenerateBatch issues Count independent requests for the same source and
// face reference, each with its own diversity hint. Images come back in
// request order.
func (o *Orchestrator) GenerateBatch(ctx context.Context, req BatchRequest) ([]models.GeneratedImage, error) {
	if o.provider == nil {
		return nil, ErrNoProvider
	}
	if req.Count <= 0 {
		return nil, fmt.Errorf("%w: got %d", models.ErrInvalidCount, req.Count)
	}
	if req.Source.Image.IsEmpty() {
		return nil, models.ErrNoImageData
	}

	var ref *models.ReferenceConfig
	if req.Face != nil && !req.Face.IsEmpty() {
		ref = &models.ReferenceConfig{Image: *req.Face, Role: models.ReferenceFace}
	}

	// Build every instruction up front so a bad request fails before any
	// backend call is made.
	instructions := make([]instruction.Instruction, req.Count)
	for i := range instructions {
		ins, err := instruction.Build(withHint(req.Instruction, o.hint()), ref)
		if err != nil {
			return nil, err
		}
		instructions[i] = ins
	}

	model := o.modelFor(req.Model)
	results := make([]*models.GeneratedImage, req.Count)
	errs := make([]error, req.Count)

	var g *errgroup.Group
	gctx := ctx
	if o.policy == AllOrNothing {
		g, gctx = errgroup.WithContext(ctx)
	} else {
		g = new(errgroup.Group)
	}
	if o.maxConcurrent > 0 {
		g.SetLimit(o.maxConcurrent)
	}

	for i, ins := range instructions {
		g.Go(func() error {
			img, err := o.generate(gctx, i, model, req.Source.Image, req.Source.ID, ref, ins)
			if err != nil {
				errs[i] = fmt.Errorf("request %d: %w", i+1, err)
				if o.policy == AllOrNothing {
					return errs[i]
				}
				return nil
			}
			results[i] = &img
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		o.log.Warn().Err(err).Int("count", req.Count).Msg("batch rejected")
		return nil, err
	}

	images := make([]models.GeneratedImage, 0, req.Count)
	for _, r := range results {
		if r != nil {
			images = append(images, *r)
		}
	}

	if err := errors.Join(errs...); err != nil {
		o.log.Warn().Err(err).Int("count", req.Count).Int("kept", len(images)).Msg("batch partially failed")
		if len(images) == 0 {
			return nil, err
		}
		return images, err
	}
	return images, nil
}

type AdjustRequest struct {
	Source        models.ImagePart
	ParentInputID string
	Instruction   string
	Reference     *models.ReferenceConfig
	Model         string
}

// Adjust issues a single edit of Source.
func (o *Orchestrator) Adjust(ctx context.Context, req AdjustRequest) (models.GeneratedImage, error) {
	if o.provider == nil {
		return models.GeneratedImage{}, ErrNoProvider
	}
	if req.Source.IsEmpty() {
		return models.GeneratedImage{}, models.ErrNoImageData
	}
	ins, err := instruction.Build(req.Instruction, req.Reference)
	if err != nil {
		return models.GeneratedImage{}, err
	}
	return o.generate(ctx, 0, o.modelFor(req.Model), req.Source, req.ParentInputID, req.Reference, ins)
}

func (o *Orchestrator) generate(ctx context.Context, index int, model string, source models.ImagePart, parentID string, ref *models.ReferenceConfig, ins instruction.Instruction) (models.GeneratedImage, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	editReq := instruction.EditRequest(model, source, ref, ins)
	start := time.Now()
	resp, err := o.provider.Edit(ctx, editReq)
	elapsed := time.Since(start)

	event := o.log.Debug()
	if err != nil {
		event = o.log.Warn().Err(err)
	}
	event.Int("index", index).
		Str("model", model).
		Str("role", string(ins.Role)).
		Dur("duration", elapsed).
		Msg("edit request")

	if err != nil {
		return models.GeneratedImage{}, err
	}
	if resp == nil || resp.Image.IsEmpty() {
		return models.GeneratedImage{}, &provider.EmptyResponseError{}
	}

	img := models.GeneratedImage{
		ID:            o.newID(),
		ParentInputID: parentID,
		Image:         resp.Image,
		PromptUsed:    ins.Request,
		CreatedAt:     o.now(),
	}
	if resp.Cost != nil {
		img.Cost = resp.Cost.Total
	}
	return img, nil
}

func (o *Orchestrator) modelFor(model string) string {
	if model != "" {
		return model
	}
	return o.model
}

func (o *Orchestrator) hint() string {
	if len(o.hints) == 0 {
		return ""
	}
	return o.hints[o.pick(len(o.hints))]
}

func withHint(base, hint string) string {
	switch {
	case hint == "":
		return base
	case base == "":
		return hint
	default:
		return base + ", " + hint
	}
}
