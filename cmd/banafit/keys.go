package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/manash/banafit/internal/keys"
	"github.com/manash/banafit/pkg/models"
)

var flagShowKey bool

func newKeysCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage stored API keys",
		Long: `Store API keys in the banafit config directory so they do not need to be
exported in every shell. A stored key takes precedence over the environment
variable; --api-key takes precedence over both.

The directory defaults to $XDG_CONFIG_HOME/banafit and can be moved with
` + keys.ConfigDirEnv + `.`,
	}

	setCmd := &cobra.Command{
		Use:   "set <provider> [key]",
		Short: "Store a key; reads it from stdin when omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := keys.NewStore(app.GetEnv)
			if err != nil {
				return err
			}

			var key string
			if len(args) == 2 {
				key = args[1]
			} else {
				key, err = readSecret(app.In, app.Out, fmt.Sprintf("Enter %s API key: ", args[0]))
				if err != nil {
					return err
				}
			}

			if err := store.Set(args[0], key); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Stored %s key %s in %s\n", args[0], keys.MaskKey(strings.TrimSpace(key)), store.Path())
			return nil
		},
	}

	getCmd := &cobra.Command{
		Use:   "get <provider>",
		Short: "Print a stored key (masked unless --show)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := keys.NewStore(app.GetEnv)
			if err != nil {
				return err
			}
			key, err := store.Get(args[0])
			if err != nil {
				return err
			}
			if !flagShowKey {
				key = keys.MaskKey(key)
			}
			fmt.Fprintln(app.Out, key)
			return nil
		},
	}
	getCmd.Flags().BoolVar(&flagShowKey, "show", false, "print the key unmasked")

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List providers with a stored key",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := keys.NewStore(app.GetEnv)
			if err != nil {
				return err
			}
			providers, err := store.List()
			if err != nil {
				return err
			}
			if len(providers) == 0 {
				fmt.Fprintf(app.Out, "No stored keys. Try: banafit keys set %s\n", models.ProviderGemini)
				return nil
			}
			for _, p := range providers {
				key, err := store.Get(p)
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Out, "  %-10s %s\n", p, keys.MaskKey(key))
			}
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:     "delete <provider>",
		Aliases: []string{"rm"},
		Short:   "Remove a stored key",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := keys.NewStore(app.GetEnv)
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Deleted %s key\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(setCmd, getCmd, listCmd, deleteCmd)
	return cmd
}

// readSecret reads one line from in. On a terminal the prompt is shown and
// the input is not echoed.
func readSecret(in io.Reader, out io.Writer, prompt string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, prompt)
		data, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read key: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
