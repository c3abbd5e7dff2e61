package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/manash/banafit/internal/config"
	"github.com/manash/banafit/internal/display"
	"github.com/manash/banafit/internal/export"
	"github.com/manash/banafit/internal/generation"
	"github.com/manash/banafit/internal/image"
	"github.com/manash/banafit/internal/keys"
	"github.com/manash/banafit/internal/logging"
	"github.com/manash/banafit/internal/provider"
	"github.com/manash/banafit/internal/provider/gemini"
	"github.com/manash/banafit/internal/repl"
	"github.com/manash/banafit/internal/session"
	"github.com/manash/banafit/internal/workflow"
	"github.com/manash/banafit/pkg/models"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagModel     string
	flagAPIKey    string
	flagVerbose   bool
	flagCount     int
	flagType      string
	flagJoin      string
	flagExportDir string
	flagDisplay   string
)

type App struct {
	In          io.Reader
	Out         io.Writer
	Err         io.Writer
	Registry    *models.ModelRegistry
	GetEnv      func(string) string
	LoadDotEnv  func() error
	NewProvider func(ctx context.Context, cfg *provider.Config, registry *models.ModelRegistry, log zerolog.Logger) (provider.Provider, error)
	OpenLedger  func(path string) (*export.Ledger, error)
}

func DefaultApp() *App {
	return &App{
		In:       os.Stdin,
		Out:      os.Stdout,
		Err:      os.Stderr,
		Registry: models.DefaultRegistry(),
		GetEnv:   os.Getenv,
		LoadDotEnv: func() error {
			err := godotenv.Load()
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		},
		NewProvider: func(ctx context.Context, cfg *provider.Config, registry *models.ModelRegistry, log zerolog.Logger) (provider.Provider, error) {
			return gemini.New(ctx, cfg, registry, log)
		},
		OpenLedger: openLedger,
	}
}

func openLedger(path string) (*export.Ledger, error) {
	if path == "" {
		return export.NewLedger()
	}
	return export.NewLedgerWithPath(path)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	app := DefaultApp()
	rootCmd := newRootCmd(app)
	return rootCmd.Execute()
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "banafit [image...]",
		Short: "Interactive garment photo editing with Gemini image models",
		Long: `banafit walks garment photos through a six step workflow:
Upload -> Conditions -> Layers -> Generation -> Adjustment -> Final.

Images given on the command line are uploaded before the session starts.

Configuration is read from the environment and from a .env file in the
working directory (GEMINI_API_KEY, BANAFIT_MODEL, BANAFIT_COUNT,
BANAFIT_TYPE, JOIN_POLICY, EXPORT_DIR, DISPLAY_IMAGES, LOG_LEVEL).

Examples:
  banafit shirt.jpg
  banafit -n 5 -t try-on front.png back.png
  banafit edit result.png "make the sleeves shorter"
  banafit keys set gemini`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd, args, app)
		},
	}

	cmd.PersistentFlags().StringVarP(&flagModel, "model", "m", "", "model to use (defaults to BANAFIT_MODEL or "+models.DefaultModel+")")
	cmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "API key (defaults to the stored key, then GEMINI_API_KEY)")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	cmd.Flags().IntVarP(&flagCount, "count", "n", 0, "images per batch (1, 3 or 5)")
	cmd.Flags().StringVarP(&flagType, "type", "t", "", "generation type (MODEL_CHANGE, TRY_ON, PRODUCT_ONLY)")
	cmd.Flags().StringVar(&flagJoin, "join", "", "batch join policy (all, partial)")
	cmd.Flags().StringVarP(&flagExportDir, "export-dir", "o", "", "directory for exported results")
	cmd.Flags().StringVar(&flagDisplay, "display", "", "inline image previews (auto, on, off)")

	cmd.AddCommand(newEditCmd(app))
	cmd.AddCommand(newKeysCmd(app))
	cmd.AddCommand(newExportsCmd(app))
	cmd.AddCommand(newModelsCmd(app))

	return cmd
}

// loadConfig reads .env and the environment, then applies command-line
// overrides.
func (app *App) loadConfig() (config.Config, zerolog.Logger, error) {
	nop := zerolog.Nop()

	if app.LoadDotEnv != nil {
		if err := app.LoadDotEnv(); err != nil {
			return config.Config{}, nop, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg, err := config.Load(app.GetEnv)
	if err != nil {
		return config.Config{}, nop, err
	}

	if flagModel != "" {
		cfg.Model = flagModel
	}
	if flagCount != 0 {
		if !slices.Contains(models.AllowedCounts(), flagCount) {
			return config.Config{}, nop, fmt.Errorf("--count: %w: got %d", models.ErrInvalidCount, flagCount)
		}
		cfg.DefaultCount = flagCount
	}
	if flagType != "" {
		typ, err := models.ParseGenerationType(flagType)
		if err != nil {
			return config.Config{}, nop, fmt.Errorf("--type: %w", err)
		}
		cfg.DefaultType = typ
	}
	if flagJoin != "" {
		if flagJoin != config.JoinAll && flagJoin != config.JoinPartial {
			return config.Config{}, nop, fmt.Errorf("--join must be %q or %q, got %q", config.JoinAll, config.JoinPartial, flagJoin)
		}
		cfg.JoinPolicy = flagJoin
	}
	if flagExportDir != "" {
		cfg.ExportDir = flagExportDir
	}
	if flagDisplay != "" {
		if !slices.Contains([]string{config.DisplayAuto, config.DisplayOn, config.DisplayOff}, flagDisplay) {
			return config.Config{}, nop, fmt.Errorf("--display must be auto, on or off, got %q", flagDisplay)
		}
		cfg.Display = flagDisplay
	}
	if flagVerbose {
		cfg.LogLevel = "debug"
	}

	return cfg, logging.New(app.Err, cfg.LogLevel, cfg.AppEnv), nil
}

// newOrchestrator resolves the API key and builds the generation backend for
// cfg.Model.
func (app *App) newOrchestrator(ctx context.Context, cfg config.Config, log zerolog.Logger) (*generation.Orchestrator, error) {
	caps, ok := app.Registry.Get(cfg.Model)
	if !ok {
		return nil, fmt.Errorf("unknown model %q: available models: %v", cfg.Model, app.Registry.List())
	}

	store, err := keys.NewStore(app.GetEnv)
	if err != nil {
		log.Warn().Err(err).Msg("key store unavailable")
		store = nil
	}

	apiKey, source, err := keys.Resolve(flagAPIKey, string(caps.Provider), "GEMINI_API_KEY", store, app.GetEnv)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("source", source).Str("provider", string(caps.Provider)).Msg("api key resolved")

	pcfg := &provider.Config{
		APIKey:     apiKey,
		BaseURL:    cfg.GeminiBaseURL,
		TimeoutSec: int(cfg.RequestTimeout.Seconds()),
	}

	factory := provider.NewFactory(app.Registry)
	factory.Configure(caps.Provider, pcfg, func(ctx context.Context, cfg *provider.Config) (provider.Provider, error) {
		return app.NewProvider(ctx, cfg, app.Registry, log)
	})

	prov, err := factory.ForModel(ctx, cfg.Model)
	if err != nil {
		return nil, err
	}

	policy, err := generation.ParseJoinPolicy(cfg.JoinPolicy)
	if err != nil {
		return nil, err
	}

	return generation.New(generation.Options{
		Provider:      prov,
		Model:         cfg.Model,
		MaxConcurrent: cfg.MaxConcurrent,
		Policy:        policy,
		Timeout:       cfg.RequestTimeout,
		Logger:        log,
	}), nil
}

// openExporter opens the export ledger. A ledger that cannot be opened
// disables export bookkeeping but not exports themselves.
func (app *App) openExporter(cfg config.Config, log zerolog.Logger) (*export.Exporter, *export.Ledger) {
	ledger, err := app.OpenLedger(cfg.LedgerPath)
	if err != nil {
		log.Warn().Err(err).Msg("export ledger unavailable")
		ledger = nil
	}

	exporter := export.NewExporter(export.Options{
		Dir:    cfg.ExportDir,
		Model:  cfg.Model,
		Ledger: ledger,
		Logger: log,
	})
	return exporter, ledger
}

func runInteractive(_ *cobra.Command, args []string, app *App) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, log, err := app.loadConfig()
	if err != nil {
		return err
	}

	loader := image.NewLoader(session.NewID)
	inputs, err := loader.LoadAll(args)
	if err != nil {
		return err
	}

	gen, err := app.newOrchestrator(ctx, cfg, log)
	if err != nil {
		return err
	}

	exporter, ledger := app.openExporter(cfg, log)
	if ledger != nil {
		defer ledger.Close()
	}

	machine := workflow.New(workflow.Options{
		Generator: gen,
		Config:    cfg.GenerationConfig(),
		Model:     cfg.Model,
		Logger:    log,
	})
	machine.AddInputs(inputs...)

	log.Debug().
		Str("model", cfg.Model).
		Str("join", gen.Policy().String()).
		Int("inputs", len(inputs)).
		Msg("session started")

	r := repl.New(&repl.Config{
		In:        app.In,
		Out:       app.Out,
		Err:       app.Err,
		Machine:   machine,
		Loader:    loader,
		Exporter:  exporter,
		Ledger:    ledger,
		Displayer: display.New(app.Out, display.Enabled(cfg.Display, app.Out, app.GetEnv), display.DefaultColumns),
		Model:     cfg.Model,
	})
	return r.Run(ctx)
}
