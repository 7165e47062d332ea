package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ongardie/cubicle/internal/cubicle"
	"github.com/ongardie/cubicle/internal/model"
	"github.com/ongardie/cubicle/internal/tui"
)

func newEnterCommand(env *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enter [NAME]",
		Args:  cobra.MaximumNArgs(1),
		Short: "Start an interactive shell in an environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			var name string
			if len(args) == 1 {
				name = args[0]
			} else {
				name, err = pickEnvironmentInteractively(ctx, c, cmd.InOrStdin(), cmd.OutOrStdout())
				if err != nil {
					return err
				}
			}
			if name == "" {
				return fmt.Errorf("no environment selected")
			}
			return runInteractiveShell(ctx, c, model.EnvironmentName(name))
		},
	}
	return cmd
}

// pickEnvironmentInteractively backs `cub enter` with no NAME: it
// prints every known environment, reads one filter line, and returns
// the best fuzzy match (or the sole candidate when only one
// environment exists).
func pickEnvironmentInteractively(ctx context.Context, c *cubicle.Cubicle, in io.Reader, out io.Writer) (string, error) {
	envs, err := c.ListEnvironments(ctx)
	if err != nil {
		return "", err
	}
	if len(envs) == 0 {
		return "", fmt.Errorf("no environments exist; run `cub new` first")
	}
	names := make([]string, len(envs))
	for i, e := range envs {
		names[i] = string(e.Name)
	}
	if len(names) == 1 {
		return names[0], nil
	}

	fmt.Fprintln(out, "environments:")
	for _, n := range names {
		fmt.Fprintln(out, " ", n)
	}
	fmt.Fprint(out, "filter> ")

	line, _ := bufio.NewReader(in).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")

	matches := tui.PickEnvironment(names, line)
	if len(matches) == 0 {
		return "", fmt.Errorf("no environment matches %q", line)
	}
	return matches[0], nil
}
