package session

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/manash/banafit/pkg/models"
)

var (
	ErrImageNotFound = errors.New("image not found")
	ErrNoInput       = errors.New("no input image selected")
	ErrNoResult      = errors.New("no result selected")
)

// NewID returns a fresh identifier for images and sessions.
func NewID() string {
	return uuid.New().String()
}

// History holds the uploaded inputs and the generated results of one
// session, with the current selection of each. Inputs are append-only;
// results are appended by batch generation and prepended by adjustments.
// History is not safe for concurrent use.
type History struct {
	id               string
	startedAt        time.Time
	inputs           []models.InputImage
	results          []models.GeneratedImage
	selectedInputID  string
	selectedResultID string
}

func NewHistory() *History {
	return &History{
		id:        NewID(),
		startedAt: time.Now(),
	}
}

func (h *History) ID() string {
	return h.id
}

func (h *History) StartedAt() time.Time {
	return h.startedAt
}

// AddInputs appends images, selecting the first of them when nothing is
// selected yet.
func (h *History) AddInputs(imgs ...models.InputImage) {
	if len(imgs) == 0 {
		return
	}
	h.inputs = append(h.inputs, imgs...)
	if h.selectedInputID == "" {
		h.selectedInputID = imgs[0].ID
	}
}

func (h *History) Inputs() []models.InputImage {
	return slices.Clone(h.inputs)
}

func (h *History) Results() []models.GeneratedImage {
	return slices.Clone(h.results)
}

func (h *History) InputCount() int  { return len(h.inputs) }
func (h *History) ResultCount() int { return len(h.results) }

func (h *History) Input(id string) (models.InputImage, bool) {
	for _, in := range h.inputs {
		if in.ID == id {
			return in, true
		}
	}
	return models.InputImage{}, false
}

func (h *History) Result(id string) (models.GeneratedImage, bool) {
	for _, r := range h.results {
		if r.ID == id {
			return r, true
		}
	}
	return models.GeneratedImage{}, false
}

// AppendResults adds a batch at the end of the history.
func (h *History) AppendResults(imgs ...models.GeneratedImage) {
	h.results = append(h.results, imgs...)
}

// PrependResult puts an adjustment at the front and selects it.
func (h *History) PrependResult(img models.GeneratedImage) {
	h.results = slices.Insert(h.results, 0, img)
	h.selectedResultID = img.ID
}

func (h *History) SelectInput(id string) error {
	if _, ok := h.Input(id); !ok {
		return fmt.Errorf("%w: input %s", ErrImageNotFound, id)
	}
	h.selectedInputID = id
	return nil
}

func (h *History) SelectResult(id string) error {
	if _, ok := h.Result(id); !ok {
		return fmt.Errorf("%w: result %s", ErrImageNotFound, id)
	}
	h.selectedResultID = id
	return nil
}

func (h *History) SelectedInputID() string  { return h.selectedInputID }
func (h *History) SelectedResultID() string { return h.selectedResultID }

func (h *History) SelectedInput() (models.InputImage, error) {
	if h.selectedInputID == "" {
		return models.InputImage{}, ErrNoInput
	}
	in, ok := h.Input(h.selectedInputID)
	if !ok {
		return models.InputImage{}, fmt.Errorf("%w: input %s", ErrImageNotFound, h.selectedInputID)
	}
	return in, nil
}

func (h *History) SelectedResult() (models.GeneratedImage, error) {
	if h.selectedResultID == "" {
		return models.GeneratedImage{}, ErrNoResult
	}
	r, ok := h.Result(h.selectedResultID)
	if !ok {
		return models.GeneratedImage{}, fmt.Errorf("%w: result %s", ErrImageNotFound, h.selectedResultID)
	}
	return r, nil
}

// SelectFirstResult selects the head of the result list if nothing is
// selected and reports whether a result is selected afterwards.
func (h *History) SelectFirstResult() bool {
	if h.selectedResultID != "" {
		return true
	}
	if len(h.results) == 0 {
		return false
	}
	h.selectedResultID = h.results[0].ID
	return true
}

// Source resolves id against the results first, then the inputs. It returns
// the image and the id of the input it descends from.
func (h *History) Source(id string) (models.ImagePart, string, error) {
	if r, ok := h.Result(id); ok {
		return r.Image, r.ParentInputID, nil
	}
	if in, ok := h.Input(id); ok {
		return in.Image, in.ID, nil
	}
	return models.ImagePart{}, "", fmt.Errorf("%w: %s", ErrImageNotFound, id)
}

// Clear empties the history and starts a new session id.
func (h *History) Clear() {
	h.inputs = nil
	h.results = nil
	h.selectedInputID = ""
	h.selectedResultID = ""
	h.id = NewID()
	h.startedAt = time.Now()
}
