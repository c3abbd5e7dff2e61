package layers

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/manash/banafit/pkg/models"
)

var (
	ErrLayerNotFound = errors.New("layer not found")
	ErrLayerLocked   = errors.New("layer is locked")
	ErrQuickNotFound = errors.New("quick layer not found")
)

// Changes describes a partial layer update; nil fields are left untouched.
type Changes struct {
	Name    *string
	Content *string
	Enabled *bool
}

// Store holds the ordered layer list. It is not safe for concurrent use; the
// workflow machine serializes access.
type Store struct {
	layers   []models.Layer
	nextID   int
	presetOf models.GenerationType
}

func NewStore(t models.GenerationType) *Store {
	s := &Store{}
	s.ApplyPreset(t)
	return s
}

// ApplyPreset replaces the whole list with the preset for t.
func (s *Store) ApplyPreset(t models.GenerationType) {
	s.layers = Preset(t)
	s.presetOf = t
}

func (s *Store) PresetType() models.GenerationType {
	return s.presetOf
}

func (s *Store) List() []models.Layer {
	return slices.Clone(s.layers)
}

// Enabled returns the enabled layers in stored order.
func (s *Store) Enabled() []models.Layer {
	var out []models.Layer
	for _, l := range s.layers {
		if l.Enabled {
			out = append(out, l)
		}
	}
	return out
}

func (s *Store) Get(id string) (models.Layer, bool) {
	i := s.index(id)
	if i < 0 {
		return models.Layer{}, false
	}
	return s.layers[i], true
}

// Add appends a CUSTOM layer and returns it.
func (s *Store) Add(name, content string) models.Layer {
	s.nextID++
	l := models.Layer{
		ID:      fmt.Sprintf("custom-%d", s.nextID),
		Name:    name,
		Role:    models.RoleCustom,
		Content: content,
		Enabled: true,
	}
	if l.Name == "" {
		l.Name = fmt.Sprintf("Custom %d", s.nextID)
	}
	s.layers = append(s.layers, l)
	return l
}

// AddQuick appends the quick layer whose label matches (case-insensitive).
func (s *Store) AddQuick(label string) (models.Layer, error) {
	for _, q := range quickLayers {
		if strings.EqualFold(q.Label, label) {
			return s.Add(q.Label, q.Content), nil
		}
	}
	return models.Layer{}, fmt.Errorf("%w: %q", ErrQuickNotFound, label)
}

func (s *Store) Remove(id string) error {
	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrLayerNotFound, id)
	}
	if s.layers[i].Locked {
		return fmt.Errorf("%w: %s cannot be removed", ErrLayerLocked, id)
	}
	s.layers = slices.Delete(s.layers, i, i+1)
	return nil
}

// Mutate applies c to the layer. Locked layers accept content edits but can
// never be disabled.
func (s *Store) Mutate(id string, c Changes) error {
	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrLayerNotFound, id)
	}
	l := s.layers[i]
	if c.Enabled != nil && !*c.Enabled && l.Locked {
		return fmt.Errorf("%w: %s cannot be disabled", ErrLayerLocked, id)
	}
	if c.Name != nil {
		l.Name = *c.Name
	}
	if c.Content != nil {
		l.Content = *c.Content
	}
	if c.Enabled != nil {
		l.Enabled = *c.Enabled
	}
	s.layers[i] = l
	return nil
}

// Toggle flips the enabled flag and returns the new value.
func (s *Store) Toggle(id string) (bool, error) {
	l, ok := s.Get(id)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrLayerNotFound, id)
	}
	enabled := !l.Enabled
	if err := s.Mutate(id, Changes{Enabled: &enabled}); err != nil {
		return l.Enabled, err
	}
	return enabled, nil
}

func (s *Store) index(id string) int {
	return slices.IndexFunc(s.layers, func(l models.Layer) bool { return l.ID == id })
}
