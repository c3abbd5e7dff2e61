package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/manash/banafit/internal/generation"
	"github.com/manash/banafit/internal/prompt"
	"github.com/manash/banafit/internal/provider"
	"github.com/manash/banafit/pkg/models"
)

var errNoGenerator = errors.New("no generator configured")

// RunBatchGeneration generates Config.Count variations of the selected
// input with the composed prompt and the face reference. It is available
// from LAYERS and GENERATION and leaves the session at GENERATION.
//
// Under the all-or-nothing policy a failed batch adds no images. In every
// failure case the message is kept in LastError and the error returned.
func (m *Machine) RunBatchGeneration(ctx context.Context) ([]models.GeneratedImage, error) {
	var (
		req   generation.BatchRequest
		epoch uint64
		err   error
	)
	m.update(func(s *State) {
		switch {
		case s.IsGenerating:
			err = ErrBusy
			return
		case s.Step != models.StepLayers && s.Step != models.StepGeneration:
			err = fmt.Errorf("%w: generate at %s", ErrWrongStep, s.Step)
			return
		case m.gen == nil:
			err = errNoGenerator
			s.LastError = err.Error()
			return
		}

		in, selErr := s.History.SelectedInput()
		if selErr != nil {
			err = &MissingSelectionError{What: "input"}
			s.LastError = err.Error()
			return
		}

		req = generation.BatchRequest{
			Source:      in,
			Instruction: prompt.Compose(s.Layers.List(), s.Config),
			Count:       s.Config.Count,
			Model:       m.model,
		}
		if s.Face != nil {
			face := *s.Face
			req.Face = &face
		}

		s.IsGenerating = true
		s.LastError = ""
		s.Step = models.StepGeneration
		epoch = s.epoch
	})
	if err != nil {
		return nil, err
	}

	m.log.Info().Str("input_id", req.Source.ID).Int("count", req.Count).Msg("batch generation started")
	imgs, genErr := m.gen.GenerateBatch(ctx, req)

	m.update(func(s *State) {
		if s.epoch != epoch {
			err = ErrDiscarded
			return
		}
		s.IsGenerating = false
		s.History.AppendResults(imgs...)
		if genErr != nil {
			s.LastError = provider.Describe(genErr)
		}
	})
	if err != nil {
		m.log.Warn().Int("count", len(imgs)).Msg("stale batch discarded")
		return nil, err
	}
	if genErr != nil {
		m.log.Error().Err(genErr).Int("kept", len(imgs)).Msg("batch generation failed")
		return imgs, genErr
	}

	m.log.Info().Int("count", len(imgs)).Msg("batch generation finished")
	return imgs, nil
}

// RunAdjustment edits the image sourceID, or the selected result when
// sourceID is empty. The new image goes to the front of the results and
// becomes the selection. It descends from the same input as its source.
func (m *Machine) RunAdjustment(ctx context.Context, text, sourceID string, ref *models.ReferenceConfig) (models.GeneratedImage, error) {
	var (
		req   generation.AdjustRequest
		epoch uint64
		err   error
	)
	m.update(func(s *State) {
		switch {
		case s.IsGenerating:
			err = ErrBusy
			return
		case s.Step != models.StepAdjustment:
			err = fmt.Errorf("%w: adjust at %s", ErrWrongStep, s.Step)
			return
		case m.gen == nil:
			err = errNoGenerator
			s.LastError = err.Error()
			return
		}

		id := sourceID
		if id == "" {
			id = s.History.SelectedResultID()
		}
		if id == "" {
			err = &MissingSelectionError{What: "result"}
			s.LastError = err.Error()
			return
		}

		src, parentID, srcErr := s.History.Source(id)
		if srcErr != nil {
			err = srcErr
			s.LastError = srcErr.Error()
			return
		}

		req = generation.AdjustRequest{
			Source:        src,
			ParentInputID: parentID,
			Instruction:   text,
			Reference:     ref,
			Model:         m.model,
		}
		s.IsGenerating = true
		s.LastError = ""
		epoch = s.epoch
	})
	if err != nil {
		return models.GeneratedImage{}, err
	}

	img, genErr := m.gen.Adjust(ctx, req)

	m.update(func(s *State) {
		if s.epoch != epoch {
			err = ErrDiscarded
			return
		}
		s.IsGenerating = false
		if genErr != nil {
			s.LastError = provider.Describe(genErr)
			return
		}
		s.History.PrependResult(img)
	})
	switch {
	case err != nil:
		return models.GeneratedImage{}, err
	case genErr != nil:
		m.log.Error().Err(genErr).Msg("adjustment failed")
		return models.GeneratedImage{}, genErr
	}

	m.log.Info().Str("result_id", img.ID).Str("parent_input_id", img.ParentInputID).Msg("adjustment finished")
	return img, nil
}
