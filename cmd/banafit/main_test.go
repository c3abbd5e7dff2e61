package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/manash/banafit/internal/export"
	"github.com/manash/banafit/internal/keys"
	"github.com/manash/banafit/internal/provider"
	"github.com/manash/banafit/pkg/models"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// mockProvider implements provider.Provider for testing.
type mockProvider struct {
	mu       sync.Mutex
	requests []*models.EditRequest
	editFunc func(ctx context.Context, req *models.EditRequest) (*models.Response, error)
}

func (m *mockProvider) Name() models.ProviderType {
	return models.ProviderGemini
}

func (m *mockProvider) Edit(ctx context.Context, req *models.EditRequest) (*models.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.editFunc != nil {
		return m.editFunc(ctx, req)
	}
	return &models.Response{
		Image: models.ImagePart{Data: pngHeader, MIMEType: "image/png"},
		Cost:  &models.CostInfo{PerImage: 0.039, Total: 0.039, Currency: "USD"},
	}, nil
}

func (m *mockProvider) SupportsModel(_ string) bool {
	return true
}

func (m *mockProvider) ListModels() []string {
	return []string{models.DefaultModel}
}

type testApp struct {
	*App
	out      *bytes.Buffer
	dir      string
	env      map[string]string
	provider *mockProvider
	apiKey   string
}

// newTestApp creates an App whose config, ledger and export directory all
// live under a temp dir.
func newTestApp(t *testing.T) *testApp {
	t.Helper()
	dir := t.TempDir()

	ta := &testApp{
		out:      &bytes.Buffer{},
		dir:      dir,
		provider: &mockProvider{},
		env: map[string]string{
			keys.ConfigDirEnv: filepath.Join(dir, "config"),
			"LEDGER_PATH":     filepath.Join(dir, "exports.db"),
			"EXPORT_DIR":      filepath.Join(dir, "exports"),
			"DISPLAY_IMAGES":  "off",
			"LOG_LEVEL":       "error",
		},
	}
	ta.App = &App{
		In:       strings.NewReader(""),
		Out:      ta.out,
		Err:      ta.out,
		Registry: models.DefaultRegistry(),
		GetEnv: func(key string) string {
			return ta.env[key]
		},
		NewProvider: func(_ context.Context, cfg *provider.Config, _ *models.ModelRegistry, _ zerolog.Logger) (provider.Provider, error) {
			ta.apiKey = cfg.APIKey
			return ta.provider, nil
		},
		OpenLedger: openLedger,
	}
	return ta
}

func (ta *testApp) execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd(ta.App)
	cmd.SetArgs(args)
	cmd.SetOut(ta.out)
	cmd.SetErr(ta.out)
	return cmd.Execute()
}

func (ta *testApp) writeImage(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(ta.dir, name)
	if err := os.WriteFile(path, pngHeader, 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func TestDefaultApp(t *testing.T) {
	app := DefaultApp()

	if app.In == nil || app.Out == nil || app.Err == nil {
		t.Error("DefaultApp() has nil streams")
	}
	if app.Registry == nil {
		t.Error("DefaultApp() Registry is nil")
	}
	if app.GetEnv == nil {
		t.Error("DefaultApp() GetEnv is nil")
	}
	if app.NewProvider == nil {
		t.Error("DefaultApp() NewProvider is nil")
	}
	if app.OpenLedger == nil {
		t.Error("DefaultApp() OpenLedger is nil")
	}

	t.Setenv("TEST_VAR_123", "test_value")
	if app.GetEnv("TEST_VAR_123") != "test_value" {
		t.Error("DefaultApp() GetEnv doesn't work")
	}

	// No .env in the test directory is not an error.
	t.Chdir(t.TempDir())
	if err := app.LoadDotEnv(); err != nil {
		t.Errorf("LoadDotEnv() without .env error = %v", err)
	}
}

func TestNewRootCmd(t *testing.T) {
	ta := newTestApp(t)
	cmd := newRootCmd(ta.App)

	if cmd.Use != "banafit [image...]" {
		t.Errorf("Use = %s, want 'banafit [image...]'", cmd.Use)
	}

	for _, name := range []string{"count", "type", "join", "export-dir", "display"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("flag --%s not found", name)
		}
	}
	for _, name := range []string{"model", "api-key", "verbose"} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("persistent flag --%s not found", name)
		}
	}

	shortFlags := map[string]string{"n": "count", "t": "type", "o": "export-dir"}
	for short, long := range shortFlags {
		flag := cmd.Flags().ShorthandLookup(short)
		if flag == nil {
			t.Errorf("short flag -%s not found", short)
			continue
		}
		if flag.Name != long {
			t.Errorf("short flag -%s maps to %s, want %s", short, flag.Name, long)
		}
	}

	subs := map[string]bool{}
	for _, c := range cmd.Commands() {
		subs[c.Name()] = true
	}
	for _, name := range []string{"edit", "keys", "exports", "models"} {
		if !subs[name] {
			t.Errorf("subcommand %s not registered", name)
		}
	}
}

func TestNewRootCmd_ImageArgs(t *testing.T) {
	ta := newTestApp(t)
	root := newRootCmd(ta.App)

	got, rest, err := root.Find([]string{"shirt.png", "back.png"})
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if got != root {
		t.Errorf("Find() resolved %q, want the root command", got.Name())
	}
	if err := got.ValidateArgs(rest); err != nil {
		t.Errorf("ValidateArgs(%v) error = %v", rest, err)
	}

	sub, _, err := root.Find([]string{"edit", "result.png", "navy"})
	if err != nil || sub.Name() != "edit" {
		t.Errorf("Find(edit) = %v, %v", sub.Name(), err)
	}
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	ta := newTestApp(t)
	cmd := newRootCmd(ta.App)
	if err := cmd.ParseFlags([]string{"-n", "5", "-t", "product-only", "--join", "partial", "-v"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	cfg, _, err := ta.loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.DefaultCount != 5 {
		t.Errorf("DefaultCount = %d, want 5", cfg.DefaultCount)
	}
	if cfg.DefaultType != models.TypeProductOnly {
		t.Errorf("DefaultType = %v, want %v", cfg.DefaultType, models.TypeProductOnly)
	}
	if cfg.JoinPolicy != "partial" {
		t.Errorf("JoinPolicy = %q, want partial", cfg.JoinPolicy)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadConfig_InvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"count", []string{"-n", "7"}},
		{"type", []string{"-t", "PORTRAIT"}},
		{"join", []string{"--join", "some"}},
		{"display", []string{"--display", "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestApp(t)
			cmd := newRootCmd(ta.App)
			if err := cmd.ParseFlags(tt.args); err != nil {
				t.Fatalf("ParseFlags() error = %v", err)
			}
			if _, _, err := ta.loadConfig(); err == nil {
				t.Errorf("loadConfig(%v) error = nil, want error", tt.args)
			}
		})
	}
}

func TestLoadConfig_DotEnvError(t *testing.T) {
	ta := newTestApp(t)
	ta.LoadDotEnv = func() error { return errors.New("bad line 3") }
	newRootCmd(ta.App)

	if _, _, err := ta.loadConfig(); err == nil || !strings.Contains(err.Error(), ".env") {
		t.Errorf("loadConfig() error = %v, want .env error", err)
	}
}

func TestRunInteractive(t *testing.T) {
	ta := newTestApp(t)
	ta.env["GEMINI_API_KEY"] = "env-key-123"
	shirt := ta.writeImage(t, "shirt.png")
	ta.In = strings.NewReader("inputs\nnext\nquit\n")

	if err := ta.execute(t, shirt); err != nil {
		t.Fatalf("execute() error = %v\noutput:\n%s", err, ta.out.String())
	}

	output := ta.out.String()
	for _, want := range []string{
		"banafit interactive workflow",
		"banafit [1/6 UPLOAD]> ",
		"shirt.png",
		"banafit [2/6 CONDITIONS]> ",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q\noutput:\n%s", want, output)
		}
	}
	if ta.apiKey != "env-key-123" {
		t.Errorf("provider API key = %q, want env-key-123", ta.apiKey)
	}
}

func TestRunInteractive_NoAPIKey(t *testing.T) {
	ta := newTestApp(t)

	err := ta.execute(t)
	if !errors.Is(err, keys.ErrNoAPIKey) {
		t.Errorf("execute() error = %v, want %v", err, keys.ErrNoAPIKey)
	}
}

func TestRunInteractive_APIKeyPrecedence(t *testing.T) {
	ta := newTestApp(t)
	ta.env["GEMINI_API_KEY"] = "env-key"
	if err := keys.NewStoreAt(ta.env[keys.ConfigDirEnv]).Set("gemini", "stored-key"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if err := ta.execute(t); err != nil {
		t.Fatalf("execute() error = %v", err)
	}
	if ta.apiKey != "stored-key" {
		t.Errorf("API key = %q, want stored key", ta.apiKey)
	}

	if err := ta.execute(t, "--api-key", "flag-key"); err != nil {
		t.Fatalf("execute() error = %v", err)
	}
	if ta.apiKey != "flag-key" {
		t.Errorf("API key = %q, want flag key", ta.apiKey)
	}
}

func TestRunInteractive_ProviderBuildFails(t *testing.T) {
	ta := newTestApp(t)
	ta.env["GEMINI_API_KEY"] = "k"
	dialErr := errors.New("dial tcp: connection refused")
	ta.NewProvider = func(context.Context, *provider.Config, *models.ModelRegistry, zerolog.Logger) (provider.Provider, error) {
		return nil, dialErr
	}

	err := ta.execute(t)
	if !errors.Is(err, dialErr) {
		t.Fatalf("execute() error = %v, want %v", err, dialErr)
	}
	if !strings.Contains(err.Error(), "failed to create gemini provider") {
		t.Errorf("execute() error = %v, want provider context", err)
	}
}

func TestRunInteractive_UnknownModel(t *testing.T) {
	ta := newTestApp(t)
	ta.env["GEMINI_API_KEY"] = "k"

	err := ta.execute(t, "-m", "dall-e-3")
	if err == nil || !strings.Contains(err.Error(), "unknown model") {
		t.Errorf("execute() error = %v, want unknown model", err)
	}
}

func TestRunInteractive_BadImage(t *testing.T) {
	ta := newTestApp(t)
	ta.env["GEMINI_API_KEY"] = "k"

	if err := ta.execute(t, filepath.Join(ta.dir, "missing.png")); err == nil {
		t.Error("execute() error = nil, want error for missing image")
	}
}

func TestRunEdit(t *testing.T) {
	ta := newTestApp(t)
	ta.env["GEMINI_API_KEY"] = "k"
	src := ta.writeImage(t, "look.png")

	if err := ta.execute(t, "edit", src, "make", "the", "jacket", "navy", "-o", "navy.png"); err != nil {
		t.Fatalf("edit error = %v\noutput:\n%s", err, ta.out.String())
	}

	want := filepath.Join(ta.dir, "exports", "navy.png")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("result not written to %s: %v", want, err)
	}
	if !strings.Contains(ta.out.String(), "Saved: "+want) {
		t.Errorf("output missing saved path:\n%s", ta.out.String())
	}

	if len(ta.provider.requests) != 1 {
		t.Fatalf("provider got %d requests, want 1", len(ta.provider.requests))
	}
	if !strings.Contains(ta.provider.requests[0].Instruction, "make the jacket navy") {
		t.Errorf("instruction = %q", ta.provider.requests[0].Instruction)
	}

	ledger, err := export.NewLedgerWithPath(ta.env["LEDGER_PATH"])
	if err != nil {
		t.Fatalf("NewLedgerWithPath() error = %v", err)
	}
	defer ledger.Close()
	entries, err := ledger.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Prompt != "make the jacket navy" {
		t.Errorf("ledger entries = %+v", entries)
	}
}

func TestRunEdit_AccessoryReference(t *testing.T) {
	ta := newTestApp(t)
	ta.env["GEMINI_API_KEY"] = "k"
	src := ta.writeImage(t, "look.png")
	scarf := ta.writeImage(t, "scarf.png")

	err := ta.execute(t, "edit", src, "--ref", scarf, "--role", "accessory", "--location", "Neck")
	if err != nil {
		t.Fatalf("edit error = %v", err)
	}

	req := ta.provider.requests[0]
	if req.Reference == nil || req.Reference.Role != models.ReferenceAccessory {
		t.Fatalf("Reference = %+v, want accessory", req.Reference)
	}
	if !strings.Contains(ta.out.String(), "Instruction: Add this accessory at Neck") {
		t.Errorf("output:\n%s", ta.out.String())
	}
}

func TestRunEdit_Failure(t *testing.T) {
	ta := newTestApp(t)
	ta.env["GEMINI_API_KEY"] = "k"
	ta.provider.editFunc = func(context.Context, *models.EditRequest) (*models.Response, error) {
		return &models.Response{}, nil
	}
	src := ta.writeImage(t, "look.png")

	err := ta.execute(t, "edit", src, "anything")
	if err == nil || !strings.Contains(err.Error(), "The model returned no image") {
		t.Errorf("edit error = %v, want empty result message", err)
	}
	if entries, _ := os.ReadDir(filepath.Join(ta.dir, "exports")); len(entries) != 0 {
		t.Errorf("export dir has %d files after failure", len(entries))
	}
}

func TestReadReference(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "ref.png")
	if err := os.WriteFile(img, pngHeader, 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		path     string
		role     string
		location string
		wantNil  bool
		wantErr  bool
	}{
		{name: "none", wantNil: true},
		{name: "role without ref", role: "face", wantErr: true},
		{name: "ref without role", path: img, wantErr: true},
		{name: "bad role", path: img, role: "hat", wantErr: true},
		{name: "accessory without location", path: img, role: "accessory", wantErr: true},
		{name: "face", path: img, role: "FACE"},
		{name: "accessory", path: img, role: "accessory", location: " Wrist "},
		{name: "missing file", path: filepath.Join(dir, "nope.png"), role: "face", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := readReference(tt.path, tt.role, tt.location)
			if (err != nil) != tt.wantErr {
				t.Fatalf("readReference() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if (ref == nil) != tt.wantNil {
				t.Fatalf("readReference() = %+v, wantNil %v", ref, tt.wantNil)
			}
			if ref != nil && tt.location != "" && ref.Location != strings.TrimSpace(tt.location) {
				t.Errorf("Location = %q", ref.Location)
			}
		})
	}
}

func TestKeysCmd(t *testing.T) {
	ta := newTestApp(t)

	if err := ta.execute(t, "keys", "set", "gemini", "abcd1234efgh5678"); err != nil {
		t.Fatalf("keys set error = %v", err)
	}
	if !strings.Contains(ta.out.String(), "abcd********5678") {
		t.Errorf("set output = %q", ta.out.String())
	}

	ta.out.Reset()
	if err := ta.execute(t, "keys", "list"); err != nil {
		t.Fatalf("keys list error = %v", err)
	}
	if !strings.Contains(ta.out.String(), "gemini") || strings.Contains(ta.out.String(), "abcd1234efgh5678") {
		t.Errorf("list output = %q", ta.out.String())
	}

	ta.out.Reset()
	if err := ta.execute(t, "keys", "get", "gemini", "--show"); err != nil {
		t.Fatalf("keys get error = %v", err)
	}
	if strings.TrimSpace(ta.out.String()) != "abcd1234efgh5678" {
		t.Errorf("get --show output = %q", ta.out.String())
	}

	if err := ta.execute(t, "keys", "delete", "gemini"); err != nil {
		t.Fatalf("keys delete error = %v", err)
	}
	if err := ta.execute(t, "keys", "get", "gemini"); !errors.Is(err, keys.ErrKeyNotFound) {
		t.Errorf("get after delete error = %v, want %v", err, keys.ErrKeyNotFound)
	}
}

func TestKeysCmd_SetFromStdin(t *testing.T) {
	ta := newTestApp(t)
	ta.In = strings.NewReader("  piped-secret-key  \n")

	if err := ta.execute(t, "keys", "set", "gemini"); err != nil {
		t.Fatalf("keys set error = %v", err)
	}

	got, err := keys.NewStoreAt(ta.env[keys.ConfigDirEnv]).Get("gemini")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "piped-secret-key" {
		t.Errorf("stored key = %q", got)
	}

	ta.In = strings.NewReader("")
	if err := ta.execute(t, "keys", "set", "gemini"); !errors.Is(err, keys.ErrNoAPIKey) {
		t.Errorf("set with empty stdin error = %v, want %v", err, keys.ErrNoAPIKey)
	}
}

func TestExportsCmd(t *testing.T) {
	ta := newTestApp(t)

	if err := ta.execute(t, "exports"); err != nil {
		t.Fatalf("exports error = %v", err)
	}
	if !strings.Contains(ta.out.String(), "No exports recorded.") {
		t.Errorf("empty output = %q", ta.out.String())
	}

	ledger, err := export.NewLedgerWithPath(ta.env["LEDGER_PATH"])
	if err != nil {
		t.Fatalf("NewLedgerWithPath() error = %v", err)
	}
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b"} {
		err := ledger.Record(context.Background(), &export.Entry{
			ID: id, SessionID: "sess-" + id, ImageID: "image-" + id, Prompt: "Change the background",
			Model: models.DefaultModel, Path: "exports/" + id + ".png", MIMEType: "image/png",
			Cost: 0.039, ExportedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	ledger.Close()

	ta.out.Reset()
	if err := ta.execute(t, "exports"); err != nil {
		t.Fatalf("exports error = %v", err)
	}
	output := ta.out.String()
	for _, want := range []string{"exports/a.png", "exports/b.png", "2026-04-01 13:00:00", "Total: $0.0780 across 2 export(s)"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q\n%s", want, output)
		}
	}

	ta.out.Reset()
	if err := ta.execute(t, "exports", "--session", "sess-a"); err != nil {
		t.Fatalf("exports --session error = %v", err)
	}
	if strings.Contains(ta.out.String(), "exports/b.png") {
		t.Errorf("session filter leaked other sessions:\n%s", ta.out.String())
	}
}

func TestModelsCmd(t *testing.T) {
	ta := newTestApp(t)

	if err := ta.execute(t, "models"); err != nil {
		t.Fatalf("models error = %v", err)
	}
	output := ta.out.String()
	if !strings.Contains(output, "* "+models.DefaultModel) {
		t.Errorf("default model not marked:\n%s", output)
	}
	if !strings.Contains(output, "gemini-3-pro-image-preview") {
		t.Errorf("output missing pro model:\n%s", output)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("a much longer instruction", 10); got != "a much ..." {
		t.Errorf("truncate() = %q", got)
	}
}
