package workflow

import (
	"errors"
	"fmt"

	"github.com/manash/banafit/internal/layers"
	"github.com/manash/banafit/internal/session"
	"github.com/manash/banafit/pkg/models"
)

var (
	ErrBusy      = errors.New("a generation is already in progress")
	ErrWrongStep = errors.New("action not available at this step")
	// ErrDiscarded is returned by a generation whose session was reset
	// while the backend call was in flight.
	ErrDiscarded = errors.New("generation discarded after reset")
)

// MissingSelectionError is returned when an action needs a selected input
// or result and there is none.
type MissingSelectionError struct {
	What string
}

func (e *MissingSelectionError) Error() string {
	return fmt.Sprintf("no %s selected", e.What)
}

// State is the whole session. It is only touched inside Machine.update.
type State struct {
	Step         models.Step
	Config       models.GenerationConfig
	Layers       *layers.Store
	History      *session.History
	Face         *models.ImagePart
	IsGenerating bool
	LastError    string

	epoch uint64
}

func newState(cfg models.GenerationConfig) State {
	return State{
		Step:    models.StepUpload,
		Config:  cfg,
		Layers:  layers.NewStore(cfg.Type),
		History: session.NewHistory(),
	}
}

// Snapshot is a deep copy of the session for readers.
type Snapshot struct {
	SessionID        string
	Step             models.Step
	Config           models.GenerationConfig
	Layers           []models.Layer
	Inputs           []models.InputImage
	Results          []models.GeneratedImage
	SelectedInputID  string
	SelectedResultID string
	Face             *models.ImagePart
	IsGenerating     bool
	LastError        string
	CanAdvance       bool
}

func (s Snapshot) SelectedInput() (models.InputImage, bool) {
	for _, in := range s.Inputs {
		if in.ID == s.SelectedInputID {
			return in, true
		}
	}
	return models.InputImage{}, false
}

func (s Snapshot) SelectedResult() (models.GeneratedImage, bool) {
	for _, r := range s.Results {
		if r.ID == s.SelectedResultID {
			return r, true
		}
	}
	return models.GeneratedImage{}, false
}

// SessionCost sums the estimated cost of every generated image.
func (s Snapshot) SessionCost() float64 {
	var total float64
	for _, r := range s.Results {
		total += r.Cost
	}
	return total
}

func (s *State) snapshot() Snapshot {
	snap := Snapshot{
		SessionID:        s.History.ID(),
		Step:             s.Step,
		Config:           s.Config,
		Layers:           s.Layers.List(),
		Inputs:           s.History.Inputs(),
		Results:          s.History.Results(),
		SelectedInputID:  s.History.SelectedInputID(),
		SelectedResultID: s.History.SelectedResultID(),
		IsGenerating:     s.IsGenerating,
		LastError:        s.LastError,
	}
	if s.Face != nil {
		face := cloneImage(*s.Face)
		snap.Face = &face
	}
	return snap
}

func cloneImage(p models.ImagePart) models.ImagePart {
	return models.ImagePart{Data: append([]byte(nil), p.Data...), MIMEType: p.MIMEType}
}
