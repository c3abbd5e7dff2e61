// Package export writes finished results to disk and records each export
// in a local ledger.
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/manash/banafit/internal/image"
	"github.com/manash/banafit/internal/security"
	"github.com/manash/banafit/internal/session"
	"github.com/manash/banafit/pkg/models"
)

type Options struct {
	Dir    string
	Model  string
	Ledger *Ledger
	Logger zerolog.Logger
	Now    func() time.Time
}

type Exporter struct {
	dir    string
	model  string
	ledger *Ledger
	saver  *image.Saver
	log    zerolog.Logger
	now    func() time.Time
}

func NewExporter(opts Options) *Exporter {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Exporter{
		dir:    opts.Dir,
		model:  opts.Model,
		ledger: opts.Ledger,
		saver:  image.NewSaver(),
		log:    opts.Logger,
		now:    now,
	}
}

// Export writes img under the export directory. An empty name uses the
// default banafit-export-<id> file name. The ledger entry is best-effort:
// a failed record is logged and the written path is still returned.
func (e *Exporter) Export(ctx context.Context, sessionID string, img models.GeneratedImage, name string) (string, error) {
	if name == "" {
		name = image.ExportFilename(img.ID, img.Image.MIMEType)
	} else if err := security.ValidateSavePath(name); err != nil {
		return "", fmt.Errorf("invalid export name: %w", err)
	}

	path, err := security.ResolveOutputPath(e.dir, name)
	if err != nil {
		return "", err
	}

	if err := e.saver.Save(img.Image, path); err != nil {
		return "", fmt.Errorf("failed to export %s: %w", img.ID, err)
	}

	e.log.Info().Str("image_id", img.ID).Str("path", path).Msg("result exported")

	if e.ledger == nil {
		return path, nil
	}

	entry := &Entry{
		ID:            session.NewID(),
		SessionID:     sessionID,
		ImageID:       img.ID,
		ParentInputID: img.ParentInputID,
		Prompt:        img.PromptUsed,
		Model:         e.model,
		Path:          path,
		MIMEType:      img.Image.MIMEType,
		Cost:          img.Cost,
		ExportedAt:    e.now(),
	}
	if err := e.ledger.Record(ctx, entry); err != nil {
		e.log.Warn().Err(err).Str("image_id", img.ID).Msg("failed to record export")
	}

	return path, nil
}
