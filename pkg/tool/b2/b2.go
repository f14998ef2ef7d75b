package b2

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/driftlabs/drift-backup/pkg/backup"
	"github.com/driftlabs/drift-backup/pkg/tool"
)

// Engine syncs directories to a Backblaze B2 bucket with the b2 CLI.
type Engine struct {
	Bin    tool.Info
	Bucket string
	DryRun bool
}

func New(bin tool.Info, bucket string, dryRun bool) *Engine {
	return &Engine{Bin: bin, Bucket: bucket, DryRun: dryRun}
}

func (e *Engine) Name() string {
	return "b2"
}

func (e *Engine) ForceDryRun() backup.Engine {
	forced := *e
	forced.DryRun = true
	return &forced
}

// BackupDir runs `b2 sync` for one source directory.
func (e *Engine) BackupDir(ctx context.Context, dir, exclude string, out io.Writer) error {
	return tool.Run(ctx, e.Bin, e.buildArgs(dir, exclude), nil, out)
}

func (e *Engine) buildArgs(dir, exclude string) []string {
	args := []string{"sync", "--replaceNewer"}
	if exclude != "" {
		args = append(args, "--excludeRegex", exclude)
	}
	if e.DryRun {
		args = append(args, "--dryRun")
	}
	dest := "b2://" + e.Bucket + keyPrefix(dir) + "/"
	return append(args, filepath.Clean(dir), dest)
}

func keyPrefix(dir string) string {
	clean := filepath.Clean(dir)
	if clean == "/" || clean == "." {
		return ""
	}
	if !strings.HasPrefix(clean, "/") {
		clean = "/" + clean
	}
	return clean
}
