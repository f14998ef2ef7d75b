package tool

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlabs/drift-backup/pkg/testlib"
)

func TestDetect(t *testing.T) {
	dir := t.TempDir()
	path := testlib.StubBinary(t, dir, "s3cmd", `#!/bin/sh
if [ "$1" = "--version" ]; then echo "s3cmd version 2.2.0"; fi
`)

	info, err := Detect(context.Background(), "s3cmd", path)
	require.NoError(t, err)
	assert.Equal(t, "s3cmd", info.Name)
	assert.Equal(t, path, info.Path)
	assert.Equal(t, "2.2.0", info.Version)
}

func TestDetectOnPath(t *testing.T) {
	dir := t.TempDir()
	testlib.StubBinary(t, dir, "restic", `#!/bin/sh
echo "restic 0.16.4 compiled with go1.21.6 on linux/amd64"
`)

	oldPath := os.Getenv("PATH")
	require.NoError(t, os.Setenv("PATH", dir))
	defer func() { _ = os.Setenv("PATH", oldPath) }()

	info, err := Detect(context.Background(), "restic", "")
	require.NoError(t, err)
	assert.Equal(t, "0.16.4", info.Version)
}

func TestDetectMissing(t *testing.T) {
	_, err := Detect(context.Background(), "b2", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b2 binary not found")
}

func TestDetectNotExecutable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s3cmd")
	require.NoError(t, ioutil.WriteFile(path, []byte("#!/bin/sh\n"), 0644))

	_, err := Detect(context.Background(), "s3cmd", path)
	require.Error(t, err)
}

func TestAtLeast(t *testing.T) {
	tests := []struct {
		version string
		min     string
		want    bool
	}{
		{"0.16.4", "0.14.0", true},
		{"0.14.0", "0.14.0", true},
		{"0.12.1", "0.14.0", false},
		{"2.2.0", "1.0.0", true},
		{"garbage", "1.0.0", false},
	}
	for _, tc := range tests {
		t.Run(tc.version, func(t *testing.T) {
			i := Info{Version: tc.version}
			assert.Equal(t, tc.want, i.AtLeast(tc.min))
		})
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	path := testlib.StubBinary(t, dir, "echoer", `#!/bin/sh
echo "arg1=$1 arg2=$2"
echo "MARKER=$MARKER"
`)

	var out bytes.Buffer
	bin := Info{Name: "echoer", Path: path}
	err := Run(context.Background(), bin, []string{"a", "b"}, []string{"MARKER=on"}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "arg1=a arg2=b")
	assert.Contains(t, out.String(), "MARKER=on")
}

func TestRunFailure(t *testing.T) {
	dir := t.TempDir()
	path := testlib.StubBinary(t, dir, "failer", `#!/bin/sh
echo "some progress"
echo "fatal: bucket does not exist" >&2
exit 3
`)

	var out bytes.Buffer
	err := Run(context.Background(), Info{Name: "failer", Path: path}, nil, nil, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket does not exist")
	assert.Contains(t, out.String(), "some progress")
}
