package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/manash/banafit/internal/generation"
	"github.com/manash/banafit/internal/image"
	"github.com/manash/banafit/internal/provider"
	"github.com/manash/banafit/internal/session"
	"github.com/manash/banafit/pkg/models"
)

var (
	flagRef      string
	flagRole     string
	flagLocation string
	flagOutput   string
	flagEditDir  string
)

func newEditCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <image> <instruction...>",
		Short: "Apply a single edit to an image without the interactive workflow",
		Long: `Send one image and a free-form instruction to the model and save the result.

A reference image can be attached with --ref. Its role decides how it is
used: FACE swaps in the face, BACKGROUND replaces the scene, ACCESSORY adds
the item at --location.

Examples:
  banafit edit look.png "make the jacket navy blue"
  banafit edit look.png "" --ref beach.jpg --role background
  banafit edit look.png "" --ref scarf.png --role accessory --location Neck`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd, args, app)
		},
	}

	cmd.Flags().StringVar(&flagRef, "ref", "", "reference image path")
	cmd.Flags().StringVar(&flagRole, "role", "", "reference role (face, background, accessory)")
	cmd.Flags().StringVar(&flagLocation, "location", "", "placement for accessory references")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output filename (inside the export directory)")
	cmd.Flags().StringVar(&flagEditDir, "export-dir", "", "directory for the result")

	return cmd
}

func runEdit(_ *cobra.Command, args []string, app *App) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, log, err := app.loadConfig()
	if err != nil {
		return err
	}
	if flagEditDir != "" {
		cfg.ExportDir = flagEditDir
	}

	source, err := image.ReadPart(args[0])
	if err != nil {
		return err
	}

	ref, err := readReference(flagRef, flagRole, flagLocation)
	if err != nil {
		return err
	}

	text := strings.TrimSpace(strings.Join(args[1:], " "))
	if text == "" && ref == nil {
		return models.ErrEmptyInstruction
	}

	gen, err := app.newOrchestrator(ctx, cfg, log)
	if err != nil {
		return err
	}

	fmt.Fprintf(app.Out, "Editing %s with %s...\n", args[0], cfg.Model)

	result, err := gen.Adjust(ctx, generation.AdjustRequest{
		Source:      source,
		Instruction: text,
		Reference:   ref,
	})
	if err != nil {
		log.Debug().Err(err).Msg("edit failed")
		return fmt.Errorf("edit failed: %s", provider.Describe(err))
	}

	exporter, ledger := app.openExporter(cfg, log)
	if ledger != nil {
		defer ledger.Close()
	}

	path, err := exporter.Export(ctx, session.NewID(), result, flagOutput)
	if err != nil {
		return err
	}

	fmt.Fprintf(app.Out, "Saved: %s\n", path)
	fmt.Fprintf(app.Out, "Instruction: %s\n", result.PromptUsed)
	if result.Cost > 0 {
		fmt.Fprintf(app.Out, "Estimated cost: $%.4f\n", result.Cost)
	}
	return nil
}

// readReference loads the --ref image. Role is required with a reference
// and ignored without one.
func readReference(path, role, location string) (*models.ReferenceConfig, error) {
	if path == "" {
		if role != "" || location != "" {
			return nil, fmt.Errorf("--role and --location require --ref")
		}
		return nil, nil
	}

	if role == "" {
		return nil, fmt.Errorf("--ref requires --role (%s)", roleNames())
	}
	r, err := models.ParseReferenceRole(role)
	if err != nil {
		return nil, err
	}
	if r == models.ReferenceAccessory && strings.TrimSpace(location) == "" {
		return nil, fmt.Errorf("accessory references require --location")
	}

	part, err := image.ReadPart(path)
	if err != nil {
		return nil, err
	}
	return &models.ReferenceConfig{Image: part, Role: r, Location: strings.TrimSpace(location)}, nil
}

func roleNames() string {
	roles := models.ReferenceRoles()
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = strings.ToLower(string(r))
	}
	return strings.Join(names, ", ")
}
