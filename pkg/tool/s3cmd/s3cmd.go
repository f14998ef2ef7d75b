package s3cmd

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/driftlabs/drift-backup/pkg/backup"
	"github.com/driftlabs/drift-backup/pkg/tool"
)

// Engine syncs directories to an S3 bucket with the s3cmd CLI.
type Engine struct {
	Bin    tool.Info
	Bucket string
	DryRun bool
}

func New(bin tool.Info, bucket string, dryRun bool) *Engine {
	return &Engine{Bin: bin, Bucket: bucket, DryRun: dryRun}
}

func (e *Engine) Name() string {
	return "s3cmd"
}

func (e *Engine) ForceDryRun() backup.Engine {
	forced := *e
	forced.DryRun = true
	return &forced
}

// BackupDir runs `s3cmd sync` for one source directory. The exclusion
// pattern is a regex, passed via --rexclude.
func (e *Engine) BackupDir(ctx context.Context, dir, exclude string, out io.Writer) error {
	return tool.Run(ctx, e.Bin, e.buildArgs(dir, exclude), nil, out)
}

func (e *Engine) buildArgs(dir, exclude string) []string {
	args := []string{"sync", "--recursive", "--delete-removed"}
	if exclude != "" {
		args = append(args, "--rexclude", exclude)
	}
	if e.DryRun {
		args = append(args, "--dry-run")
	}
	// Trailing slash on the source makes s3cmd sync the directory
	// contents instead of nesting the directory one level deeper.
	src := strings.TrimSuffix(dir, "/") + "/"
	dest := "s3://" + e.Bucket + bucketPrefix(dir) + "/"
	return append(args, src, dest)
}

// bucketPrefix maps a source directory to its key prefix in the bucket, so
// /srv/www lands under s3://bucket/srv/www/.
func bucketPrefix(dir string) string {
	clean := filepath.Clean(dir)
	if clean == "/" || clean == "." {
		return ""
	}
	if !strings.HasPrefix(clean, "/") {
		clean = "/" + clean
	}
	return clean
}
