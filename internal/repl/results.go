package repl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/manash/banafit/internal/export"
	"github.com/manash/banafit/internal/image"
	"github.com/manash/banafit/internal/instruction"
	"github.com/manash/banafit/internal/workflow"
	"github.com/manash/banafit/pkg/models"
)

// GenerateCommand runs another batch
type GenerateCommand struct{}

func (c *GenerateCommand) Name() string        { return "generate" }
func (c *GenerateCommand) Aliases() []string   { return []string{"gen", "g"} }
func (c *GenerateCommand) Description() string { return "Generate a batch of variations of the selected input" }
func (c *GenerateCommand) Usage() string       { return "generate" }

func (c *GenerateCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	count := r.machine.Snapshot().Config.Count
	fmt.Fprintf(r.out, "Generating %d image(s) with %s...\n", count, r.model)

	imgs, err := r.machine.RunBatchGeneration(ctx)
	if len(imgs) > 0 {
		printResults(r, r.machine.Snapshot())
	}
	return err
}

func printResults(r *REPL, snap workflow.Snapshot) {
	if len(snap.Results) == 0 {
		fmt.Fprintln(r.out, "No results yet")
		return
	}
	for i, img := range snap.Results {
		marker := "  "
		if img.ID == snap.SelectedResultID {
			marker = "> "
		}
		fmt.Fprintf(r.out, "%s[%d] %s  $%.4f  %q\n", marker, i+1, shortID(img.ID), img.Cost, truncate(img.PromptUsed, 50))
	}
	if err := r.displayer.ShowAll(snap.Results); err != nil {
		fmt.Fprintf(r.err, "Warning: failed to display: %v\n", err)
	}
}

// ResultsCommand lists generated images
type ResultsCommand struct{}

func (c *ResultsCommand) Name() string        { return "results" }
func (c *ResultsCommand) Aliases() []string   { return []string{"res", "history", "h"} }
func (c *ResultsCommand) Description() string { return "List generated images, newest adjustments first" }
func (c *ResultsCommand) Usage() string       { return "results" }

func (c *ResultsCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	snap := r.machine.Snapshot()
	if len(snap.Results) == 0 {
		fmt.Fprintln(r.out, "No results yet")
		return nil
	}
	for i, img := range snap.Results {
		marker := "  "
		if img.ID == snap.SelectedResultID {
			marker = "> "
		}
		fmt.Fprintf(r.out, "%s[%d] %s  %s  from %s  %q\n",
			marker, i+1, shortID(img.ID),
			export.FormatTimestamp(img.CreatedAt),
			shortID(img.ParentInputID),
			truncate(img.PromptUsed, 50))
	}
	return nil
}

// PickCommand selects a result
type PickCommand struct{}

func (c *PickCommand) Name() string        { return "pick" }
func (c *PickCommand) Aliases() []string   { return []string{"choose"} }
func (c *PickCommand) Description() string { return "Select a generated image" }
func (c *PickCommand) Usage() string       { return "pick <n|id>" }

func (c *PickCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	id, err := resolveResult(r, args[0])
	if err != nil {
		return err
	}
	if err := r.machine.SelectResult(id); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Selected result %s\n", shortID(id))
	return nil
}

func resolveResult(r *REPL, ref string) (string, error) {
	snap := r.machine.Snapshot()
	ids := make([]string, len(snap.Results))
	for i, img := range snap.Results {
		ids[i] = img.ID
	}
	return resolveID(ref, ids)
}

// AdjustCommand refines the selected result
type AdjustCommand struct{}

func (c *AdjustCommand) Name() string        { return "adjust" }
func (c *AdjustCommand) Aliases() []string   { return []string{"adj", "a"} }
func (c *AdjustCommand) Description() string { return "Refine the selected result" }
func (c *AdjustCommand) Usage() string {
	return "adjust <text <instruction>|quick [label]|color <hex>|bg <preset|image> [note]|face <image> [note]|acc <image> <location> [note]>"
}

func (c *AdjustCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	text, ref, err := c.parse(r, strings.ToLower(args[0]), args[1:])
	if err != nil || (text == "" && ref == nil) {
		return err
	}

	fmt.Fprintf(r.out, "Adjusting with %s...\n", r.model)
	img, err := r.machine.RunAdjustment(ctx, text, "", ref)
	if err != nil {
		return err
	}

	fmt.Fprintf(r.out, "New result %s: %q\n", shortID(img.ID), truncate(img.PromptUsed, 60))
	if img.Cost > 0 {
		fmt.Fprintf(r.out, "Cost: $%.4f\n", img.Cost)
	}
	r.showImage(img.Image)
	return nil
}

// parse turns the adjustment arguments into the instruction base and the
// optional reference. Listing subcommands print and return nothing.
func (c *AdjustCommand) parse(r *REPL, mode string, args []string) (string, *models.ReferenceConfig, error) {
	switch mode {
	case "text":
		if len(args) == 0 {
			return "", nil, fmt.Errorf("usage: adjust text <instruction>")
		}
		return strings.Join(args, " "), nil, nil

	case "quick":
		if len(args) == 0 {
			for _, p := range instruction.QuickEdits() {
				fmt.Fprintf(r.out, "  %-18s %s\n", p.Label, p.Prompt)
			}
			return "", nil, nil
		}
		label := strings.Join(args, " ")
		for _, p := range instruction.QuickEdits() {
			if strings.EqualFold(p.Label, label) {
				return p.Prompt, nil, nil
			}
		}
		return "", nil, fmt.Errorf("unknown quick edit: %s", label)

	case "color", "colour":
		if len(args) != 1 {
			return "", nil, fmt.Errorf("usage: adjust color <hex>")
		}
		text, err := instruction.ColorChange(args[0])
		return text, nil, err

	case "bg", "background":
		if len(args) == 0 {
			for _, p := range instruction.BackgroundPresets() {
				fmt.Fprintf(r.out, "  %-18s %s\n", p.Label, p.Prompt)
			}
			return "", nil, nil
		}
		if isFile(args[0]) {
			part, err := image.ReadPart(args[0])
			if err != nil {
				return "", nil, err
			}
			return strings.Join(args[1:], " "), &models.ReferenceConfig{Image: part, Role: models.ReferenceBackground}, nil
		}
		label := strings.Join(args, " ")
		p, ok := instruction.BackgroundPreset(label)
		if !ok {
			return "", nil, fmt.Errorf("unknown background preset or file: %s", label)
		}
		return p.Prompt, nil, nil

	case "face":
		if len(args) == 0 {
			return "", nil, fmt.Errorf("usage: adjust face <image> [note]")
		}
		part, err := image.ReadPart(args[0])
		if err != nil {
			return "", nil, err
		}
		return strings.Join(args[1:], " "), &models.ReferenceConfig{Image: part, Role: models.ReferenceFace}, nil

	case "acc", "accessory":
		if len(args) < 2 {
			fmt.Fprintf(r.out, "Locations: %s\n", strings.Join(instruction.AccessoryLocations(), ", "))
			return "", nil, fmt.Errorf("usage: adjust acc <image> <location> [note]")
		}
		part, err := image.ReadPart(args[0])
		if err != nil {
			return "", nil, err
		}
		ref := &models.ReferenceConfig{
			Image:    part,
			Role:     models.ReferenceAccessory,
			Location: instruction.AccessoryLocation(args[1]),
		}
		return strings.Join(args[2:], " "), ref, nil

	default:
		return "", nil, fmt.Errorf("unknown adjustment: %s", mode)
	}
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ShowCommand previews an image
type ShowCommand struct{}

func (c *ShowCommand) Name() string        { return "show" }
func (c *ShowCommand) Aliases() []string   { return []string{"display", "view"} }
func (c *ShowCommand) Description() string { return "Preview the selected result or a given one" }
func (c *ShowCommand) Usage() string       { return "show [n|id]" }

func (c *ShowCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if !r.displayer.Enabled() {
		return fmt.Errorf("inline previews are not available in this terminal (set DISPLAY_IMAGES=on to force)")
	}
	img, err := pickResult(r, args)
	if err != nil {
		return err
	}
	return r.displayer.Show(img.Image)
}

func pickResult(r *REPL, args []string) (models.GeneratedImage, error) {
	snap := r.machine.Snapshot()
	id := snap.SelectedResultID
	if len(args) > 0 {
		var err error
		if id, err = resolveResult(r, args[0]); err != nil {
			return models.GeneratedImage{}, err
		}
	}
	if id == "" {
		return models.GeneratedImage{}, &workflow.MissingSelectionError{What: "result"}
	}
	for _, img := range snap.Results {
		if img.ID == id {
			return img, nil
		}
	}
	return models.GeneratedImage{}, fmt.Errorf("image not found: %s", id)
}

// ExportCommand writes a result to the export directory
type ExportCommand struct{}

func (c *ExportCommand) Name() string        { return "export" }
func (c *ExportCommand) Aliases() []string   { return []string{"x", "save"} }
func (c *ExportCommand) Description() string { return "Export the selected result (FINAL step)" }
func (c *ExportCommand) Usage() string       { return "export [n|id] [filename]" }

func (c *ExportCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if r.exporter == nil {
		return errors.New("export is not configured")
	}
	if step := r.machine.Step(); step != models.StepFinal {
		return fmt.Errorf("%w: export at %s, move to FINAL first", workflow.ErrWrongStep, step)
	}

	var name string
	if len(args) > 1 {
		name = args[1]
	}
	img, err := pickResult(r, args[:min(len(args), 1)])
	if err != nil {
		return err
	}

	path, err := r.exporter.Export(ctx, r.machine.Snapshot().SessionID, img, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Exported: %s\n", path)
	return nil
}

// CostCommand reports estimated spend
type CostCommand struct{}

func (c *CostCommand) Name() string        { return "cost" }
func (c *CostCommand) Aliases() []string   { return []string{"$"} }
func (c *CostCommand) Description() string { return "Show the estimated cost of this session and of all exports" }
func (c *CostCommand) Usage() string       { return "cost" }

func (c *CostCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	snap := r.machine.Snapshot()
	fmt.Fprintf(r.out, "Session: $%.4f (%d image(s))\n", snap.SessionCost(), len(snap.Results))

	if r.ledger == nil {
		return nil
	}
	summary, err := r.ledger.TotalCost(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Exported: $%.4f (%d image(s))\n", summary.TotalCost, summary.ImageCount)
	return nil
}

// ResetCommand starts over
type ResetCommand struct{}

func (c *ResetCommand) Name() string        { return "reset" }
func (c *ResetCommand) Aliases() []string   { return []string{"restart"} }
func (c *ResetCommand) Description() string { return "Start a new session (FINAL step only)" }
func (c *ResetCommand) Usage() string       { return "reset" }

func (c *ResetCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	if !r.machine.Reset() {
		return fmt.Errorf("%w: reset is only available at FINAL", workflow.ErrWrongStep)
	}
	fmt.Fprintln(r.out, "Started a new session. Conditions and layers were kept.")
	return nil
}
