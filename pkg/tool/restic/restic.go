package restic

import (
	"context"
	"io"

	"github.com/driftlabs/drift-backup/pkg/backup"
	"github.com/driftlabs/drift-backup/pkg/tool"
)

// MinVersion is the oldest restic release with sane --dry-run support on
// the backup command.
const MinVersion = "0.13.0"

// Engine archives directories into a restic repository. Credentials are
// never put on the command line; restic reads them from the environment.
type Engine struct {
	Bin          tool.Info
	Repository   string
	PasswordFile string
	DryRun       bool
}

func New(bin tool.Info, repository, passwordFile string, dryRun bool) *Engine {
	return &Engine{Bin: bin, Repository: repository, PasswordFile: passwordFile, DryRun: dryRun}
}

func (e *Engine) Name() string {
	return "restic"
}

func (e *Engine) ForceDryRun() backup.Engine {
	forced := *e
	forced.DryRun = true
	return &forced
}

// BackupDir runs `restic backup` for one source directory.
func (e *Engine) BackupDir(ctx context.Context, dir, exclude string, out io.Writer) error {
	return tool.Run(ctx, e.Bin, e.buildArgs(dir, exclude), e.env(), out)
}

func (e *Engine) buildArgs(dir, exclude string) []string {
	args := []string{"backup", "--tag", "drift-backup"}
	if exclude != "" {
		args = append(args, "--exclude", exclude)
	}
	if e.DryRun {
		args = append(args, "--dry-run")
	}
	return append(args, dir)
}

func (e *Engine) env() []string {
	return []string{
		"RESTIC_REPOSITORY=" + e.Repository,
		"RESTIC_PASSWORD_FILE=" + e.PasswordFile,
	}
}
