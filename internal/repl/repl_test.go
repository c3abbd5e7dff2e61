package repl

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/manash/banafit/internal/display"
	"github.com/manash/banafit/internal/export"
	"github.com/manash/banafit/internal/generation"
	"github.com/manash/banafit/internal/image"
	"github.com/manash/banafit/internal/session"
	"github.com/manash/banafit/internal/workflow"
	"github.com/manash/banafit/pkg/models"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type mockProvider struct {
	editFunc func(ctx context.Context, req *models.EditRequest) (*models.Response, error)
	requests []*models.EditRequest
}

func (m *mockProvider) Name() models.ProviderType { return models.ProviderGemini }
func (m *mockProvider) SupportsModel(string) bool { return true }
func (m *mockProvider) ListModels() []string      { return []string{models.DefaultModel} }

func (m *mockProvider) Edit(ctx context.Context, req *models.EditRequest) (*models.Response, error) {
	m.requests = append(m.requests, req)
	if m.editFunc != nil {
		return m.editFunc(ctx, req)
	}
	return &models.Response{
		Image: models.ImagePart{Data: pngHeader, MIMEType: "image/png"},
		Cost:  &models.CostInfo{PerImage: 0.039, Total: 0.039, Currency: "USD"},
	}, nil
}

type testEnv struct {
	repl     *REPL
	out      *bytes.Buffer
	errOut   *bytes.Buffer
	machine  *workflow.Machine
	provider *mockProvider
	dir      string
}

func testREPL(t *testing.T, input string) *testEnv {
	t.Helper()
	dir := t.TempDir()

	ledger, err := export.NewLedgerWithPath(filepath.Join(dir, "exports.db"))
	if err != nil {
		t.Fatalf("NewLedgerWithPath() error = %v", err)
	}
	t.Cleanup(func() { ledger.Close() })

	p := &mockProvider{}
	// One request at a time keeps the mock free of locking.
	gen := generation.New(generation.Options{Provider: p, MaxConcurrent: 1, Logger: zerolog.Nop()})
	m := workflow.New(workflow.Options{Generator: gen, Logger: zerolog.Nop()})

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	r := New(&Config{
		In:      strings.NewReader(input),
		Out:     out,
		Err:     errOut,
		Machine: m,
		Loader:  image.NewLoader(session.NewID),
		Exporter: export.NewExporter(export.Options{
			Dir:    filepath.Join(dir, "exports"),
			Model:  models.DefaultModel,
			Ledger: ledger,
			Logger: zerolog.Nop(),
		}),
		Ledger:    ledger,
		Displayer: display.New(out, false, 0),
	})

	return &testEnv{repl: r, out: out, errOut: errOut, machine: m, provider: p, dir: dir}
}

func (e *testEnv) writeImage(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, pngHeader, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func (e *testEnv) run(t *testing.T) {
	t.Helper()
	if err := e.repl.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestNew(t *testing.T) {
	env := testREPL(t, "")
	if len(env.repl.commands) == 0 {
		t.Error("New() commands not registered")
	}
}

func TestREPL_CommandsRegistered(t *testing.T) {
	env := testREPL(t, "")

	expected := []string{
		"status", "st", "next", "n", "back", "b",
		"upload", "add", "inputs", "select",
		"config", "cfg", "layers", "layer", "l",
		"face", "prompt", "generate", "g",
		"results", "pick", "adjust", "a",
		"show", "export", "x", "cost", "reset",
		"help", "?", "quit", "exit", "q",
	}
	for _, name := range expected {
		if _, ok := env.repl.commands[name]; !ok {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestREPL_Run_Quit(t *testing.T) {
	env := testREPL(t, "quit\n")
	env.run(t)

	if !strings.Contains(env.out.String(), "Goodbye!") {
		t.Error("quit did not output 'Goodbye!'")
	}
	if !strings.Contains(env.out.String(), "banafit [1/6 UPLOAD]> ") {
		t.Errorf("prompt missing step: %q", env.out.String())
	}
}

func TestREPL_Run_Help(t *testing.T) {
	env := testREPL(t, "help\nquit\n")
	env.run(t)

	output := env.out.String()
	for _, want := range []string{"Available commands", "generate", "adjust", "export"} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q", want)
		}
	}
}

func TestREPL_Run_UnknownCommand(t *testing.T) {
	env := testREPL(t, "unknowncommand\nquit\n")
	env.run(t)

	if !strings.Contains(env.errOut.String(), "unknown command: unknowncommand") {
		t.Errorf("stderr = %q", env.errOut.String())
	}
}

func TestREPL_Run_EmptyLine(t *testing.T) {
	env := testREPL(t, "\n\n\nquit\n")
	env.run(t)
	if env.errOut.Len() != 0 {
		t.Errorf("empty lines produced errors: %q", env.errOut.String())
	}
}

func TestREPL_Stop(t *testing.T) {
	env := testREPL(t, "")
	env.repl.running = true
	env.repl.Stop()
	if env.repl.running {
		t.Error("Stop() did not stop the REPL")
	}
}

func TestREPL_FullWorkflow(t *testing.T) {
	env := testREPL(t, "")
	shirt := env.writeImage(t, "shirt.png")
	necklace := env.writeImage(t, "necklace.png")

	script := strings.Join([]string{
		"next",
		"upload " + shirt,
		"next",
		"config count 1",
		"next",
		"layer quick Studio lighting",
		"next",
		"next",
		"adjust acc " + necklace + " neck",
		"next",
		"export 1 final.png",
		"cost",
		"reset",
		"status",
		"quit",
	}, "\n") + "\n"
	env.repl.in = strings.NewReader(script)
	env.run(t)

	output := env.out.String()
	errs := env.errOut.String()

	if !strings.Contains(errs, "cannot leave UPLOAD yet") {
		t.Errorf("advancing without inputs should be refused, stderr = %q", errs)
	}
	for _, want := range []string{
		"Added shirt.png",
		"Step 2/6: CONDITIONS",
		"Step 4/6: GENERATION",
		"Step 5/6: ADJUSTMENT",
		`"Add this accessory at Neck"`,
		"Step 6/6: FINAL",
		"Exported: " + filepath.Join(env.dir, "exports", "final.png"),
		"Session: $0.0780 (2 image(s))",
		"Exported: $0.0390 (1 image(s))",
		"Started a new session",
		"[UPLOAD]",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q\n%s", want, output)
		}
	}

	if _, err := os.Stat(filepath.Join(env.dir, "exports", "final.png")); err != nil {
		t.Errorf("exported file missing: %v", err)
	}

	if len(env.provider.requests) != 2 {
		t.Fatalf("backend saw %d requests, want 2", len(env.provider.requests))
	}
	if !strings.Contains(env.provider.requests[0].Instruction, "Professional studio lighting") {
		t.Error("quick layer missing from the batch prompt")
	}
	acc := env.provider.requests[1]
	if acc.Reference == nil || acc.Reference.Role != models.ReferenceAccessory {
		t.Errorf("adjustment reference = %+v", acc.Reference)
	}

	snap := env.machine.Snapshot()
	if snap.Step != models.StepUpload || len(snap.Results) != 0 || snap.Config.Count != 1 {
		t.Errorf("after reset: %+v", snap)
	}
}

func TestREPL_GenerationFailureIsReported(t *testing.T) {
	env := testREPL(t, "")
	env.provider.editFunc = func(context.Context, *models.EditRequest) (*models.Response, error) {
		return &models.Response{}, nil
	}
	shirt := env.writeImage(t, "shirt.png")

	env.repl.in = strings.NewReader("upload " + shirt + "\nnext\nnext\nnext\nstatus\nquit\n")
	env.run(t)

	if !strings.Contains(env.errOut.String(), "Error:") {
		t.Errorf("stderr = %q, want the generation error", env.errOut.String())
	}
	if !strings.Contains(env.out.String(), "Last error: The model returned no image") {
		t.Errorf("status did not report the last error:\n%s", env.out.String())
	}
	if n := len(env.machine.Snapshot().Results); n != 0 {
		t.Errorf("Results = %d, want none after a failed batch", n)
	}
}

func TestConfigCommand(t *testing.T) {
	env := testREPL(t, "config type product-only\nconfig count 4\nconfig gender x\nconfig\nquit\n")
	env.run(t)

	output := env.out.String()
	if !strings.Contains(output, "Layers replaced with the product preset") {
		t.Errorf("output = %q", output)
	}
	if strings.Contains(output, "age:") {
		t.Error("product-only config should hide the model settings")
	}
	if !strings.Contains(env.errOut.String(), "count must be 1, 3 or 5") {
		t.Errorf("stderr = %q", env.errOut.String())
	}
	if env.machine.Snapshot().Config.Count != 3 {
		t.Error("invalid count changed the config")
	}
}

func TestLayerCommands(t *testing.T) {
	env := testREPL(t, "layer add golden hour\nlayer toggle user-1\nlayer rm sys-1\nlayers\nprompt\nquit\n")
	env.run(t)

	if !strings.Contains(env.out.String(), "Added layer custom-1") {
		t.Errorf("output = %q", env.out.String())
	}
	if !strings.Contains(env.errOut.String(), "locked") {
		t.Errorf("removing the system layer should fail, stderr = %q", env.errOut.String())
	}
	if !strings.Contains(env.out.String(), "[ ] user-1") {
		t.Error("toggled layer should show as disabled")
	}
	if !strings.Contains(env.out.String(), "golden hour") {
		t.Error("prompt should include the custom layer")
	}
}

func TestAdjustCommand_RequiresAdjustmentStep(t *testing.T) {
	env := testREPL(t, "adjust text brighter\nexport\nreset\nquit\n")
	env.run(t)

	errs := env.errOut.String()
	if strings.Count(errs, "not available at this step") != 3 {
		t.Errorf("stderr = %q", errs)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"simple command", "adjust text brighter", []string{"adjust", "text", "brighter"}},
		{"double quotes", `layer add "soft window light"`, []string{"layer", "add", "soft window light"}},
		{"single quotes", `upload 'my shirt.png'`, []string{"upload", "my shirt.png"}},
		{"nested quote", `adjust text "model's pose"`, []string{"adjust", "text", "model's pose"}},
		{"empty input", "", nil},
		{"whitespace only", "   ", nil},
		{"multiple spaces", "pick    2", []string{"pick", "2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseCommand(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("parseCommand() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("parseCommand()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestResolveID(t *testing.T) {
	ids := []string{"abc123", "abd456", "xyz789"}

	tests := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{"1", "abc123", false},
		{"3", "xyz789", false},
		{"4", "", true},
		{"0", "", true},
		{"abc", "abc123", false},
		{"ab", "", true},
		{"zzz", "", true},
	}
	for _, tt := range tests {
		got, err := resolveID(tt.ref, ids)
		if (err != nil) != tt.wantErr {
			t.Errorf("resolveID(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("resolveID(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("this is a long prompt", 10); got != "this is..." {
		t.Errorf("truncate() = %q", got)
	}
}

func TestCommand_Interface(t *testing.T) {
	for _, cmd := range allCommands() {
		if cmd.Name() == "" || cmd.Description() == "" || cmd.Usage() == "" {
			t.Errorf("command %T is missing metadata", cmd)
		}
	}
}
