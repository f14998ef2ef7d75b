package backup

import (
	"go.uber.org/zap"

	"github.com/driftlabs/drift-backup/pkg/config"
)

type Option func(r *Runner) error

// WithConfig returns an Option which sets the job config for Runner.
func WithConfig(cfg *config.Config) Option {
	return func(r *Runner) error {
		r.cfg = cfg
		return nil
	}
}

// WithEngines returns an Option which sets the engines to run, in order.
func WithEngines(engines ...Engine) Option {
	return func(r *Runner) error {
		r.engines = engines
		return nil
	}
}

// WithLogger returns an Option which sets the console logger for Runner.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) error {
		r.logger = logger
		return nil
	}
}
