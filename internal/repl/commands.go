package repl

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/manash/banafit/internal/image"
	"github.com/manash/banafit/internal/layers"
	"github.com/manash/banafit/internal/workflow"
	"github.com/manash/banafit/pkg/models"
)

type Command interface {
	Name() string
	Aliases() []string
	Description() string
	Usage() string
	Execute(ctx context.Context, r *REPL, args []string) error
}

func allCommands() []Command {
	return []Command{
		&StatusCommand{},
		&NextCommand{},
		&BackCommand{},
		&UploadCommand{},
		&InputsCommand{},
		&SelectCommand{},
		&ConfigCommand{},
		&LayersCommand{},
		&LayerCommand{},
		&FaceCommand{},
		&PromptCommand{},
		&GenerateCommand{},
		&ResultsCommand{},
		&PickCommand{},
		&AdjustCommand{},
		&ShowCommand{},
		&ExportCommand{},
		&CostCommand{},
		&ResetCommand{},
		&HelpCommand{},
		&QuitCommand{},
	}
}

func (r *REPL) registerCommands() {
	for _, cmd := range allCommands() {
		r.commands[cmd.Name()] = cmd
		for _, alias := range cmd.Aliases() {
			r.commands[alias] = cmd
		}
	}
}

// StatusCommand prints where the session is
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Aliases() []string   { return []string{"st"} }
func (c *StatusCommand) Description() string { return "Show the current step and session summary" }
func (c *StatusCommand) Usage() string       { return "status" }

func (c *StatusCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	snap := r.machine.Snapshot()

	var steps []string
	for _, s := range models.Steps() {
		name := s.String()
		if s == snap.Step {
			name = "[" + name + "]"
		}
		steps = append(steps, name)
	}
	fmt.Fprintln(r.out, strings.Join(steps, " > "))
	fmt.Fprintf(r.out, "Session:  %s\n", shortID(snap.SessionID))
	fmt.Fprintf(r.out, "Inputs:   %d (selected: %s)\n", len(snap.Inputs), orNone(shortID(snap.SelectedInputID)))
	fmt.Fprintf(r.out, "Results:  %d (selected: %s)\n", len(snap.Results), orNone(shortID(snap.SelectedResultID)))
	fmt.Fprintf(r.out, "Config:   %s\n", describeConfig(snap.Config))
	if snap.Face != nil {
		fmt.Fprintln(r.out, "Face:     reference set")
	}
	if snap.LastError != "" {
		fmt.Fprintf(r.out, "Last error: %s\n", snap.LastError)
	}
	if snap.CanAdvance {
		fmt.Fprintln(r.out, "Ready for 'next'.")
	}
	return nil
}

// NextCommand advances the workflow
type NextCommand struct{}

func (c *NextCommand) Name() string        { return "next" }
func (c *NextCommand) Aliases() []string   { return []string{"n"} }
func (c *NextCommand) Description() string { return "Move to the next step (runs generation after LAYERS)" }
func (c *NextCommand) Usage() string       { return "next" }

func (c *NextCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	from := r.machine.Step()
	if from == models.StepLayers {
		snap := r.machine.Snapshot()
		fmt.Fprintf(r.out, "Generating %d image(s) with %s...\n", snap.Config.Count, r.model)
	}

	moved, err := r.machine.Advance(ctx)
	if err != nil {
		return err
	}
	if !moved {
		return fmt.Errorf("cannot leave %s yet: %s", from, advanceHint(from))
	}

	snap := r.machine.Snapshot()
	fmt.Fprintf(r.out, "Step %d/%d: %s\n", snap.Step.Index(), len(models.Steps()), snap.Step)
	if from == models.StepLayers {
		printResults(r, snap)
	}
	return nil
}

func advanceHint(step models.Step) string {
	switch step {
	case models.StepUpload:
		return "upload at least one image"
	case models.StepGeneration:
		return "no images generated yet, run 'generate'"
	case models.StepAdjustment:
		return "pick a result first"
	case models.StepFinal:
		return "this is the last step, use 'reset' to start over"
	default:
		return "requirements not met"
	}
}

// BackCommand moves one step back
type BackCommand struct{}

func (c *BackCommand) Name() string        { return "back" }
func (c *BackCommand) Aliases() []string   { return []string{"b", "prev"} }
func (c *BackCommand) Description() string { return "Move to the previous step" }
func (c *BackCommand) Usage() string       { return "back" }

func (c *BackCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	if !r.machine.Back() {
		return fmt.Errorf("already at the first step")
	}
	step := r.machine.Step()
	fmt.Fprintf(r.out, "Step %d/%d: %s\n", step.Index(), len(models.Steps()), step)
	return nil
}

// UploadCommand adds input images
type UploadCommand struct{}

func (c *UploadCommand) Name() string        { return "upload" }
func (c *UploadCommand) Aliases() []string   { return []string{"add", "u"} }
func (c *UploadCommand) Description() string { return "Add product or model photos" }
func (c *UploadCommand) Usage() string       { return "upload <image> [image...]" }

func (c *UploadCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	imgs, err := r.loader.LoadAll(args)
	if err != nil {
		return err
	}
	r.machine.AddInputs(imgs...)
	for _, img := range imgs {
		fmt.Fprintf(r.out, "Added %s (%s, %s)\n", img.Name, shortID(img.ID), img.Image.MIMEType)
	}
	return nil
}

// InputsCommand lists uploaded images
type InputsCommand struct{}

func (c *InputsCommand) Name() string        { return "inputs" }
func (c *InputsCommand) Aliases() []string   { return []string{"in"} }
func (c *InputsCommand) Description() string { return "List uploaded images" }
func (c *InputsCommand) Usage() string       { return "inputs" }

func (c *InputsCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	snap := r.machine.Snapshot()
	if len(snap.Inputs) == 0 {
		fmt.Fprintln(r.out, "No images uploaded yet")
		return nil
	}
	for i, in := range snap.Inputs {
		marker := "  "
		if in.ID == snap.SelectedInputID {
			marker = "> "
		}
		fmt.Fprintf(r.out, "%s[%d] %s  %s\n", marker, i+1, shortID(in.ID), in.Name)
	}
	return nil
}

// SelectCommand chooses the input used for generation
type SelectCommand struct{}

func (c *SelectCommand) Name() string        { return "select" }
func (c *SelectCommand) Aliases() []string   { return []string{"sel"} }
func (c *SelectCommand) Description() string { return "Select the input image to generate from" }
func (c *SelectCommand) Usage() string       { return "select <n|id>" }

func (c *SelectCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	snap := r.machine.Snapshot()
	ids := make([]string, len(snap.Inputs))
	for i, in := range snap.Inputs {
		ids[i] = in.ID
	}
	id, err := resolveID(args[0], ids)
	if err != nil {
		return err
	}
	if err := r.machine.SelectInput(id); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Selected input %s\n", shortID(id))
	return nil
}

// ConfigCommand shows or changes generation conditions
type ConfigCommand struct{}

func (c *ConfigCommand) Name() string        { return "config" }
func (c *ConfigCommand) Aliases() []string   { return []string{"cfg", "set"} }
func (c *ConfigCommand) Description() string { return "Show or change generation conditions" }
func (c *ConfigCommand) Usage() string {
	return "config [count|type|watermark|age|gender|identity <value>]"
}

func (c *ConfigCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		cfg := r.machine.Snapshot().Config
		fmt.Fprintf(r.out, "count:     %d  (one of %v)\n", cfg.Count, models.AllowedCounts())
		fmt.Fprintf(r.out, "type:      %s  (one of %v)\n", cfg.Type, models.GenerationTypes())
		fmt.Fprintf(r.out, "watermark: %t  (remove watermarks and logos)\n", cfg.RemoveWatermark)
		if cfg.Type.HasModel() {
			fmt.Fprintf(r.out, "age:       %s  (one of %v)\n", cfg.TargetAge, models.AgeBands())
			fmt.Fprintf(r.out, "gender:    %s\n", cfg.TargetGender)
			fmt.Fprintf(r.out, "identity:  %s\n", orNone(cfg.Identity))
		}
		return nil
	}
	if len(args) < 2 && strings.ToLower(args[0]) != "identity" {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	patch, err := parsePatch(strings.ToLower(args[0]), strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	before := r.machine.Snapshot().Config.Type
	if err := r.machine.UpdateConfig(patch); err != nil {
		return err
	}

	cfg := r.machine.Snapshot().Config
	fmt.Fprintf(r.out, "Config: %s\n", describeConfig(cfg))
	if cfg.Type != before {
		fmt.Fprintf(r.out, "Layers replaced with the %s preset\n", presetName(cfg.Type))
	}
	return nil
}

func parsePatch(key, value string) (workflow.ConfigPatch, error) {
	var patch workflow.ConfigPatch
	switch key {
	case "count":
		n, err := strconv.Atoi(value)
		if err != nil {
			return patch, fmt.Errorf("%w: %q", models.ErrInvalidCount, value)
		}
		patch.Count = &n
	case "type":
		t, err := models.ParseGenerationType(value)
		if err != nil {
			return patch, err
		}
		patch.Type = &t
	case "watermark":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return patch, fmt.Errorf("watermark must be true or false: %q", value)
		}
		patch.RemoveWatermark = &b
	case "age":
		a := models.AgeBand(strings.ToLower(value))
		patch.TargetAge = &a
	case "gender":
		g, err := models.ParseGender(value)
		if err != nil {
			return patch, err
		}
		patch.TargetGender = &g
	case "identity":
		patch.Identity = &value
	default:
		return patch, fmt.Errorf("unknown setting: %s", key)
	}
	return patch, nil
}

func describeConfig(cfg models.GenerationConfig) string {
	s := fmt.Sprintf("%d x %s", cfg.Count, cfg.Type)
	if cfg.Type.HasModel() {
		s += fmt.Sprintf(", %s %s", cfg.TargetAge, cfg.TargetGender)
		if cfg.Identity != "" {
			s += ", " + cfg.Identity
		}
	}
	if cfg.RemoveWatermark {
		s += ", remove watermark"
	}
	return s
}

func presetName(t models.GenerationType) string {
	if t.HasModel() {
		return "model"
	}
	return "product"
}

// LayersCommand lists the prompt layers
type LayersCommand struct{}

func (c *LayersCommand) Name() string        { return "layers" }
func (c *LayersCommand) Aliases() []string   { return []string{"ls"} }
func (c *LayersCommand) Description() string { return "List prompt layers" }
func (c *LayersCommand) Usage() string       { return "layers" }

func (c *LayersCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	for _, l := range r.machine.Snapshot().Layers {
		check := "[ ]"
		if l.Enabled {
			check = "[x]"
		}
		lock := ""
		if l.Locked {
			lock = " (locked)"
		}
		fmt.Fprintf(r.out, "%s %-10s %s%s: %s\n", check, l.ID, l.Name, lock, truncate(l.Content, 60))
	}
	return nil
}

// LayerCommand edits one prompt layer
type LayerCommand struct{}

func (c *LayerCommand) Name() string        { return "layer" }
func (c *LayerCommand) Aliases() []string   { return []string{"l"} }
func (c *LayerCommand) Description() string { return "Add, toggle, edit or remove a prompt layer" }
func (c *LayerCommand) Usage() string {
	return "layer <add <content>|quick [label]|toggle <id>|edit <id> <content>|rename <id> <name>|rm <id>>"
}

func (c *LayerCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	sub, rest := strings.ToLower(args[0]), args[1:]
	switch sub {
	case "add":
		if len(rest) == 0 {
			return fmt.Errorf("usage: layer add <content>")
		}
		l := r.machine.AddLayer("", strings.Join(rest, " "))
		fmt.Fprintf(r.out, "Added layer %s\n", l.ID)
	case "quick":
		if len(rest) == 0 {
			for _, q := range layers.QuickLayers() {
				fmt.Fprintf(r.out, "  %-20s %s\n", q.Label, q.Content)
			}
			return nil
		}
		l, err := r.machine.AddQuickLayer(strings.Join(rest, " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Added layer %s (%s)\n", l.ID, l.Name)
	case "toggle":
		if len(rest) != 1 {
			return fmt.Errorf("usage: layer toggle <id>")
		}
		enabled, err := r.machine.ToggleLayer(rest[0])
		if err != nil {
			return err
		}
		state := "disabled"
		if enabled {
			state = "enabled"
		}
		fmt.Fprintf(r.out, "Layer %s %s\n", rest[0], state)
	case "edit", "rename":
		if len(rest) < 2 {
			return fmt.Errorf("usage: layer %s <id> <text>", sub)
		}
		text := strings.Join(rest[1:], " ")
		changes := layers.Changes{Content: &text}
		if sub == "rename" {
			changes = layers.Changes{Name: &text}
		}
		if err := r.machine.MutateLayer(rest[0], changes); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Layer %s updated\n", rest[0])
	case "rm", "remove":
		if len(rest) != 1 {
			return fmt.Errorf("usage: layer rm <id>")
		}
		if err := r.machine.RemoveLayer(rest[0]); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Layer %s removed\n", rest[0])
	default:
		return fmt.Errorf("unknown layer command: %s", sub)
	}
	return nil
}

// FaceCommand sets the face reference used in batch generation
type FaceCommand struct{}

func (c *FaceCommand) Name() string        { return "face" }
func (c *FaceCommand) Aliases() []string   { return nil }
func (c *FaceCommand) Description() string { return "Set or clear the face reference for generation" }
func (c *FaceCommand) Usage() string       { return "face <image|clear>" }

func (c *FaceCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	if strings.EqualFold(args[0], "clear") {
		r.machine.SetFaceReference(nil)
		fmt.Fprintln(r.out, "Face reference cleared")
		return nil
	}
	part, err := image.ReadPart(args[0])
	if err != nil {
		return err
	}
	r.machine.SetFaceReference(&part)
	fmt.Fprintf(r.out, "Face reference set from %s\n", args[0])
	return nil
}

// PromptCommand prints the composed prompt
type PromptCommand struct{}

func (c *PromptCommand) Name() string        { return "prompt" }
func (c *PromptCommand) Aliases() []string   { return []string{"p"} }
func (c *PromptCommand) Description() string { return "Show the prompt the next generation will send" }
func (c *PromptCommand) Usage() string       { return "prompt" }

func (c *PromptCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, r.machine.Prompt())
	return nil
}

// HelpCommand shows available commands
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Aliases() []string   { return []string{"?"} }
func (c *HelpCommand) Description() string { return "Show available commands" }
func (c *HelpCommand) Usage() string       { return "help" }

func (c *HelpCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, "Available commands:")
	fmt.Fprintln(r.out)

	for _, cmd := range allCommands() {
		aliases := ""
		if len(cmd.Aliases()) > 0 {
			aliases = fmt.Sprintf(" (%s)", strings.Join(cmd.Aliases(), ", "))
		}
		fmt.Fprintf(r.out, "  %-22s%s\n", cmd.Name()+aliases, cmd.Description())
		fmt.Fprintf(r.out, "                        Usage: %s\n", cmd.Usage())
	}
	return nil
}

// QuitCommand exits the REPL
type QuitCommand struct{}

func (c *QuitCommand) Name() string        { return "quit" }
func (c *QuitCommand) Aliases() []string   { return []string{"exit", "q"} }
func (c *QuitCommand) Description() string { return "Exit interactive mode" }
func (c *QuitCommand) Usage() string       { return "quit" }

func (c *QuitCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, "Goodbye!")
	r.Stop()
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
