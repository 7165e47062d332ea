// Package useraccountunavailable is a stub Runner for the
// system-user-account isolation backend named in §1/§9. A real
// implementation would create and destroy real system accounts
// (useradd/userdel or a platform equivalent) to get filesystem-
// permission isolation without namespaces; that requires privileges
// this module cannot assume at build time and has no grounding in
// any pack example, so it is left unimplemented (see DESIGN.md).
package useraccountunavailable

import (
	"context"
	"io"

	"github.com/ongardie/cubicle/internal/cubicleerr"
	"github.com/ongardie/cubicle/internal/model"
	"github.com/ongardie/cubicle/internal/runner"
)

// Runner always reports unavailability.
type Runner struct{}

func New() *Runner { return &Runner{} }

func unavailable() error {
	return &cubicleerr.RunnerError{Kind: "useraccount", Detail: "the user-account runner is not built into this binary"}
}

func (*Runner) Create(context.Context, model.EnvironmentName, io.Reader) error { return unavailable() }
func (*Runner) SeedWork(context.Context, model.EnvironmentName, io.Reader) error {
	return unavailable()
}
func (*Runner) Exists(context.Context, model.EnvironmentName) (runner.Exists, error) {
	return runner.NoEnvironment, unavailable()
}
func (*Runner) Run(context.Context, model.EnvironmentName, runner.Command) (int, error) {
	return -1, unavailable()
}
func (*Runner) CopyOutFromHome(context.Context, model.EnvironmentName, string) (io.ReadCloser, error) {
	return nil, unavailable()
}
func (*Runner) ResetHome(context.Context, model.EnvironmentName, io.Reader) error {
	return unavailable()
}
func (*Runner) RemoveHome(context.Context, model.EnvironmentName) error { return unavailable() }
func (*Runner) Purge(context.Context, model.EnvironmentName) error      { return unavailable() }
func (*Runner) List(context.Context, string) ([]model.EnvironmentName, error) {
	return nil, unavailable()
}
