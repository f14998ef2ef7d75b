package backup

import (
	"context"
	"io"
)

// Engine is one external backup tool wired to a destination, e.g. s3cmd
// against a bucket or restic against a repository. Engines are invoked
// once per source directory, sequentially; concurrent invocations of the
// underlying tools are not allowed.
type Engine interface {
	Name() string
	BackupDir(ctx context.Context, dir, exclude string, out io.Writer) error
	// ForceDryRun returns a variant of the engine that passes its tool's
	// dry-run flag regardless of how the engine was configured. Remote
	// triggers use it when the request asks for a dry run.
	ForceDryRun() Engine
}
