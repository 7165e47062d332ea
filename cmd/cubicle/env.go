package main

import (
	"context"
	"log/slog"

	"github.com/ongardie/cubicle/internal/cubicle"
)

// cliEnv holds what every subcommand needs to open the core: the
// logger constructed in main and a pointer to the --config flag
// (resolved lazily, since cobra parses persistent flags before
// RunE runs).
type cliEnv struct {
	logger         *slog.Logger
	configPathFlag *string
	builtinPackageDir string
}

func (e *cliEnv) open(ctx context.Context) (*cubicle.Cubicle, error) {
	dirs, err := cubicle.DefaultDirs(e.builtinPackageDir)
	if err != nil {
		return nil, err
	}
	configPath := *e.configPathFlag
	if configPath == "" {
		configPath, err = cubicle.DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}
	return cubicle.Open(ctx, dirs, configPath, e.logger)
}
