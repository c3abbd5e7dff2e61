// Package repl is the interactive driver for the workflow.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/manash/banafit/internal/display"
	"github.com/manash/banafit/internal/export"
	"github.com/manash/banafit/internal/image"
	"github.com/manash/banafit/internal/workflow"
	"github.com/manash/banafit/pkg/models"
)

type REPL struct {
	in        io.Reader
	out       io.Writer
	err       io.Writer
	machine   *workflow.Machine
	loader    *image.Loader
	exporter  *export.Exporter
	ledger    *export.Ledger
	displayer *display.Displayer
	model     string
	commands  map[string]Command
	running   bool
}

type Config struct {
	In        io.Reader
	Out       io.Writer
	Err       io.Writer
	Machine   *workflow.Machine
	Loader    *image.Loader
	Exporter  *export.Exporter
	Ledger    *export.Ledger
	Displayer *display.Displayer
	Model     string
}

func New(cfg *Config) *REPL {
	r := &REPL{
		in:        cfg.In,
		out:       cfg.Out,
		err:       cfg.Err,
		machine:   cfg.Machine,
		loader:    cfg.Loader,
		exporter:  cfg.Exporter,
		ledger:    cfg.Ledger,
		displayer: cfg.Displayer,
		model:     cfg.Model,
		commands:  make(map[string]Command),
	}
	if r.displayer == nil {
		r.displayer = display.New(io.Discard, false, 0)
	}
	if r.model == "" {
		r.model = models.DefaultModel
	}
	r.registerCommands()
	return r
}

func (r *REPL) Run(ctx context.Context) error {
	r.running = true
	r.printWelcome()

	scanner := bufio.NewScanner(r.in)
	for r.running {
		r.printPrompt()
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if err := r.execute(ctx, line); err != nil {
			fmt.Fprintf(r.err, "Error: %v\n", err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	return scanner.Err()
}

func (r *REPL) execute(ctx context.Context, line string) error {
	parts := parseCommand(line)
	if len(parts) == 0 {
		return nil
	}

	name := strings.ToLower(parts[0])
	cmd, ok := r.commands[name]
	if !ok {
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", name)
	}
	return cmd.Execute(ctx, r, parts[1:])
}

func (r *REPL) Stop() {
	r.running = false
}

func (r *REPL) printWelcome() {
	fmt.Fprintln(r.out, "banafit interactive workflow")
	fmt.Fprintln(r.out, "Upload -> Conditions -> Layers -> Generation -> Adjustment -> Final")
	fmt.Fprintln(r.out, "Type 'help' for available commands, 'next' to move on, 'quit' to exit.")
	fmt.Fprintln(r.out)
}

func (r *REPL) printPrompt() {
	step := r.machine.Step()
	fmt.Fprintf(r.out, "banafit [%d/%d %s]> ", step.Index(), len(models.Steps()), step)
}

// showImage previews img, reporting a failure without aborting the command.
func (r *REPL) showImage(img models.ImagePart) {
	if err := r.displayer.Show(img); err != nil {
		fmt.Fprintf(r.err, "Warning: failed to display: %v\n", err)
	}
}

func parseCommand(line string) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)

	for _, ch := range line {
		switch {
		case ch == '"' || ch == '\'':
			if inQuotes && ch == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else if !inQuotes {
				inQuotes = true
				quoteChar = ch
			} else {
				current.WriteRune(ch)
			}
		case ch == ' ' && !inQuotes:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(ch)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}

// resolveID maps a 1-based position or an id prefix onto one of ids.
func resolveID(ref string, ids []string) (string, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(ids) {
			return "", fmt.Errorf("no image #%d (have %d)", n, len(ids))
		}
		return ids[n-1], nil
	}

	var match string
	for _, id := range ids {
		if strings.HasPrefix(id, ref) {
			if match != "" {
				return "", fmt.Errorf("ambiguous id: %s", ref)
			}
			match = id
		}
	}
	if match == "" {
		return "", fmt.Errorf("image not found: %s", ref)
	}
	return match, nil
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
