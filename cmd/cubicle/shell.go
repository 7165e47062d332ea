package main

import (
	"context"
	"os"

	"github.com/ongardie/cubicle/internal/cubicle"
	"github.com/ongardie/cubicle/internal/model"
	"github.com/ongardie/cubicle/internal/runner"
)

// runInteractiveShell holds the RUNNING-state session lock for the
// duration of an interactive shell in name, connecting the process's
// own stdio to the Runner's pty-backed session (§4.6's RUNNING state:
// held only while a real session process is alive).
func runInteractiveShell(ctx context.Context, c *cubicle.Cubicle, name model.EnvironmentName) error {
	return c.EnterSession(ctx, name, func(ctx context.Context) error {
		_, err := c.Runner.Run(ctx, name, runner.Command{
			Argv:        []string{"/bin/sh", "-l"},
			Stdin:       os.Stdin,
			Stdout:      os.Stdout,
			Interactive: true,
		})
		return err
	})
}

// runExec holds the RUNNING-state session lock for one non-interactive
// command's lifetime.
func runExec(ctx context.Context, c *cubicle.Cubicle, name model.EnvironmentName, argv []string) (int, error) {
	var code int
	err := c.EnterSession(ctx, name, func(ctx context.Context) error {
		var runErr error
		code, runErr = c.Runner.Run(ctx, name, runner.Command{
			Argv:   argv,
			Stdin:  os.Stdin,
			Stdout: os.Stdout,
			Stderr: os.Stderr,
		})
		return runErr
	})
	return code, err
}
