// Package ociunavailable is a stub Runner for the full OCI-style
// container backend named in §1/§9 as one of the three pluggable
// variants. Wiring a real implementation would mean vendoring a
// container engine client (moby/moby, containerd, or a
// testcontainers-go style ephemeral-lifecycle library); none of that
// fits cubicle's long-lived, reused builder/target environments, and
// no pack example repo carries a container SDK cubicle could borrow
// (see DESIGN.md). This stub exists so the Runner enum has a concrete
// value for --runner=oci that fails predictably rather than a nil
// interface panic.
package ociunavailable

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
	return &cubicleerr.RunnerError{Kind: "oci", Detail: "the OCI-container runner is not built into this binary"}
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
