package tool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"time"

	"golang.org/x/mod/semver"
)

// Info describes a detected external backup binary.
type Info struct {
	Name    string
	Path    string
	Version string
}

var versionRegexp = regexp.MustCompile(`([0-9]+\.[0-9]+(?:\.[0-9]+)?)`)

// Detect locates the named binary, either at the configured override path
// or on PATH, and probes its version. A missing or non-executable binary is
// an error; every engine is detected before anything else runs so a broken
// installation fails the run up front.
func Detect(ctx context.Context, name, override string) (Info, error) {
	lookup := name
	if override != "" {
		lookup = override
	}
	path, err := exec.LookPath(lookup)
	if err != nil {
		return Info{}, fmt.Errorf("%s binary not found or not executable: %w", name, err)
	}
	version, err := probeVersion(ctx, path)
	if err != nil {
		return Info{}, fmt.Errorf("%s: %w", name, err)
	}
	return Info{Name: name, Path: path, Version: version}, nil
}

// AtLeast reports whether the detected version satisfies the given minimum.
// Unparseable versions are treated as too old.
func (i Info) AtLeast(min string) bool {
	v := "v" + i.Version
	if !semver.IsValid(v) {
		return false
	}
	return semver.Compare(v, "v"+min) >= 0
}

// probeVersion runs `<binary> --version` and extracts the first version-like
// token from its output. Some tools print the version on stderr.
func probeVersion(ctx context.Context, path string) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, path, "--version")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("probe version: %w: %s", err, out.String())
	}
	m := versionRegexp.FindStringSubmatch(out.String())
	if m == nil {
		return "", fmt.Errorf("could not parse version output %q", out.String())
	}
	return m[1], nil
}

// Run executes the binary with the given arguments and extra environment.
// All output is streamed to out (typically the run log) and the tail of
// stderr is kept for the error message when the command fails.
func Run(ctx context.Context, bin Info, args []string, env []string, out io.Writer) error {
	cmd := exec.CommandContext(ctx, bin.Path, args...)
	cmd.Env = append(os.Environ(), env...)

	var stderrTail bytes.Buffer
	if out == nil {
		out = io.Discard
	}
	cmd.Stdout = out
	cmd.Stderr = io.MultiWriter(out, &stderrTail)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %v: %w: %s", bin.Name, args, err, lastLine(stderrTail.Bytes()))
	}
	return nil
}

func lastLine(buf []byte) string {
	buf = bytes.TrimRight(buf, "\n")
	if i := bytes.LastIndexByte(buf, '\n'); i >= 0 {
		buf = buf[i+1:]
	}
	return string(buf)
}
