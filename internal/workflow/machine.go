// Package workflow drives a session through the six-step pipeline from
// upload to export.
package workflow

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/manash/banafit/internal/generation"
	"github.com/manash/banafit/internal/layers"
	"github.com/manash/banafit/internal/prompt"
	"github.com/manash/banafit/pkg/models"
)

// Generator is the part of the orchestrator the machine drives.
type Generator interface {
	GenerateBatch(ctx context.Context, req generation.BatchRequest) ([]models.GeneratedImage, error)
	Adjust(ctx context.Context, req generation.AdjustRequest) (models.GeneratedImage, error)
}

type Options struct {
	Generator Generator
	// Config seeds the session. The zero value means the defaults.
	Config models.GenerationConfig
	Model  string
	Logger zerolog.Logger
}

// transition describes leaving a step forward. guard must hold for the move
// to happen. enter runs in the same critical section as the step change.
// run replaces the plain step change with an action that sets the step
// itself.
type transition struct {
	next  models.Step
	guard func(*State) bool
	enter func(*State)
	run   func(context.Context) error
}

type Machine struct {
	mu    sync.Mutex
	state State

	gen   Generator
	model string
	log   zerolog.Logger

	transitions map[models.Step]transition
}

func New(opts Options) *Machine {
	cfg := opts.Config
	if cfg == (models.GenerationConfig{}) {
		cfg = models.DefaultGenerationConfig()
	}

	m := &Machine{
		state: newState(cfg),
		gen:   opts.Generator,
		model: opts.Model,
		log:   opts.Logger,
	}
	m.transitions = map[models.Step]transition{
		models.StepUpload: {
			next:  models.StepConditions,
			guard: func(s *State) bool { return s.History.InputCount() > 0 },
		},
		models.StepConditions: {
			next: models.StepLayers,
		},
		models.StepLayers: {
			next: models.StepGeneration,
			run: func(ctx context.Context) error {
				_, err := m.RunBatchGeneration(ctx)
				return err
			},
		},
		models.StepGeneration: {
			next:  models.StepAdjustment,
			guard: func(s *State) bool { return s.History.ResultCount() > 0 },
			enter: func(s *State) { s.History.SelectFirstResult() },
		},
		models.StepAdjustment: {
			next:  models.StepFinal,
			guard: func(s *State) bool { return s.History.SelectedResultID() != "" },
		},
	}
	return m
}

// update is the single entry point for state changes.
func (m *Machine) update(fn func(*State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.state)
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.state.snapshot()
	snap.CanAdvance = m.canAdvance(&m.state)
	return snap
}

func (m *Machine) Step() models.Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Step
}

func (m *Machine) CanAdvance() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canAdvance(&m.state)
}

func (m *Machine) canAdvance(s *State) bool {
	t, ok := m.transitions[s.Step]
	if !ok {
		return false
	}
	return t.guard == nil || t.guard(s)
}

// Advance moves one step forward if the current step's guard holds and
// reports whether the step changed. Advancing from LAYERS runs the batch
// generation.
func (m *Machine) Advance(ctx context.Context) (bool, error) {
	var (
		t       transition
		from    models.Step
		allowed bool
	)
	m.update(func(s *State) {
		from = s.Step
		var ok bool
		t, ok = m.transitions[s.Step]
		allowed = ok && m.canAdvance(s)
		if !allowed || t.run != nil {
			return
		}
		if t.enter != nil {
			t.enter(s)
		}
		s.Step = t.next
	})
	if !allowed {
		return false, nil
	}

	if t.run != nil {
		if err := t.run(ctx); err != nil {
			return m.Step() != from, err
		}
	}
	m.log.Debug().Str("from", from.String()).Str("to", t.next.String()).Msg("step advanced")
	return true, nil
}

// Back moves one step backward. It never touches the session's images.
func (m *Machine) Back() bool {
	var moved bool
	m.update(func(s *State) {
		if prev, ok := s.Step.Prev(); ok {
			s.Step = prev
			moved = true
		}
	})
	return moved
}

// Reset starts a new session. It is only accepted at FINAL; configuration,
// layers and the face reference carry over. A generation still in flight
// is discarded when it completes.
func (m *Machine) Reset() bool {
	var done bool
	m.update(func(s *State) {
		if s.Step != models.StepFinal {
			return
		}
		s.History.Clear()
		s.IsGenerating = false
		s.LastError = ""
		s.epoch++
		s.Step = models.StepUpload
		done = true
	})
	if done {
		m.log.Info().Msg("session reset")
	}
	return done
}

// ConfigPatch changes the fields that are set.
type ConfigPatch struct {
	Count           *int
	Type            *models.GenerationType
	RemoveWatermark *bool
	TargetAge       *models.AgeBand
	TargetGender    *models.Gender
	Identity        *string
}

// UpdateConfig applies patch. A new generation type replaces the layers
// with that type's preset. An invalid patch leaves the state untouched.
func (m *Machine) UpdateConfig(patch ConfigPatch) error {
	var err error
	m.update(func(s *State) {
		cfg := s.Config
		if patch.Count != nil {
			cfg.Count = *patch.Count
		}
		if patch.Type != nil {
			cfg.Type = *patch.Type
		}
		if patch.RemoveWatermark != nil {
			cfg.RemoveWatermark = *patch.RemoveWatermark
		}
		if patch.TargetAge != nil {
			cfg.TargetAge = *patch.TargetAge
		}
		if patch.TargetGender != nil {
			cfg.TargetGender = *patch.TargetGender
		}
		if patch.Identity != nil {
			cfg.Identity = *patch.Identity
		}
		if err = cfg.Validate(); err != nil {
			return
		}
		if cfg.Type != s.Config.Type {
			s.Layers.ApplyPreset(cfg.Type)
		}
		s.Config = cfg
	})
	return err
}

func (m *Machine) MutateLayer(id string, changes layers.Changes) error {
	var err error
	m.update(func(s *State) { err = s.Layers.Mutate(id, changes) })
	return err
}

func (m *Machine) ToggleLayer(id string) (bool, error) {
	var (
		enabled bool
		err     error
	)
	m.update(func(s *State) { enabled, err = s.Layers.Toggle(id) })
	return enabled, err
}

func (m *Machine) AddLayer(name, content string) models.Layer {
	var l models.Layer
	m.update(func(s *State) { l = s.Layers.Add(name, content) })
	return l
}

func (m *Machine) AddQuickLayer(label string) (models.Layer, error) {
	var (
		l   models.Layer
		err error
	)
	m.update(func(s *State) { l, err = s.Layers.AddQuick(label) })
	return l, err
}

func (m *Machine) RemoveLayer(id string) error {
	var err error
	m.update(func(s *State) { err = s.Layers.Remove(id) })
	return err
}

// Prompt is the composed prompt the next batch would send.
func (m *Machine) Prompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return prompt.Compose(m.state.Layers.List(), m.state.Config)
}

func (m *Machine) AddInputs(imgs ...models.InputImage) {
	m.update(func(s *State) { s.History.AddInputs(imgs...) })
}

func (m *Machine) SelectInput(id string) error {
	var err error
	m.update(func(s *State) { err = s.History.SelectInput(id) })
	return err
}

func (m *Machine) SelectResult(id string) error {
	var err error
	m.update(func(s *State) { err = s.History.SelectResult(id) })
	return err
}

// SetFaceReference sets the face used by batch generation. nil clears it.
func (m *Machine) SetFaceReference(face *models.ImagePart) {
	m.update(func(s *State) {
		if face == nil || face.IsEmpty() {
			s.Face = nil
			return
		}
		f := cloneImage(*face)
		s.Face = &f
	})
}
