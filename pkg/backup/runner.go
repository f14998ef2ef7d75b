package backup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/driftlabs/drift-backup/pkg/config"
	"github.com/driftlabs/drift-backup/pkg/lockfile"
	"github.com/driftlabs/drift-backup/pkg/runlog"
)

// Runner drives one backup run: take the run lock, open the run log, walk
// the configured directories once per engine, and record every outcome.
// A failed directory does not stop the run; the aggregated error makes the
// process exit non-zero at the end.
type Runner struct {
	cfg     *config.Config
	engines []Engine
	logger  *zap.Logger
}

// New creates a Runner with given options.
func New(opts ...Option) (*Runner, error) {
	r := &Runner{}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.cfg == nil {
		return nil, errors.New("backup: no config provided")
	}
	if len(r.engines) == 0 {
		return nil, errors.New("backup: no engines configured")
	}
	if r.logger == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		r.logger = l
	}
	return r, nil
}

// ForceDryRun returns a Runner whose engines all run with their dry-run
// flag set, whatever the config says. The original Runner is unchanged.
func (r *Runner) ForceDryRun() *Runner {
	forced := *r
	forced.engines = make([]Engine, len(r.engines))
	for i, e := range r.engines {
		forced.engines[i] = e.ForceDryRun()
	}
	return &forced
}

// Run performs the backup run. The lock is held for the whole run and
// released on every exit path.
func (r *Runner) Run(ctx context.Context) error {
	lock, err := lockfile.Acquire(r.cfg.LockPath())
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	run, err := runlog.Open(r.cfg.LogDir, "backup")
	if err != nil {
		return err
	}
	defer run.Close()

	r.logger.Info("backup run started", zap.String("run_log", run.Path))

	dirs := r.cfg.SortedBackupDirs()
	var failed []string
	for _, engine := range r.engines {
		for _, dir := range dirs {
			exclude := r.cfg.BackupDirs[dir]
			if err := r.backupDir(ctx, run, engine, dir, exclude); err != nil {
				failed = append(failed, engine.Name()+" "+dir)
				if ctx.Err() != nil {
					return fmt.Errorf("backup run cancelled: %w", ctx.Err())
				}
			}
		}
	}

	if len(failed) > 0 {
		run.Logger.Error("backup run finished with failures", zap.Strings("failed", failed))
		return fmt.Errorf("backup run finished with %d failed items: %s", len(failed), strings.Join(failed, ", "))
	}
	run.Logger.Info("backup run finished")
	r.logger.Info("backup run finished", zap.String("run_log", run.Path))
	return nil
}

func (r *Runner) backupDir(ctx context.Context, run *runlog.Run, engine Engine, dir, exclude string) error {
	run.Logger.Info("backing up directory",
		zap.String("engine", engine.Name()),
		zap.String("dir", dir),
		zap.String("exclude", exclude))

	pw := NewProgressWriter(run.Raw())
	start := time.Now()
	if err := engine.BackupDir(ctx, dir, exclude, pw); err != nil {
		run.Logger.Error("directory backup failed",
			zap.String("engine", engine.Name()),
			zap.String("dir", dir),
			zap.Error(err))
		return err
	}

	run.Logger.Info("directory backup complete",
		zap.String("engine", engine.Name()),
		zap.String("dir", dir),
		zap.String("tool_output", humanize.Bytes(pw.Total())),
		zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)))
	return nil
}
