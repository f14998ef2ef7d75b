// This file is part of drift-backup
//
// Copyright (C) 2024  Drift Labs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>

package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlabs/drift-backup/pkg/config"
	"github.com/driftlabs/drift-backup/pkg/testlib"
)

func TestBuildEngines(t *testing.T) {
	dir := t.TempDir()
	s3cmdPath := testlib.StubBinary(t, dir, "s3cmd", "#!/bin/sh\necho 's3cmd version 2.2.0'\n")
	b2Path := testlib.StubBinary(t, dir, "b2", "#!/bin/sh\necho '3.9.0'\n")

	cfg := &config.Config{
		S3Bucket:  "acme-backups",
		B2Bucket:  "acme-b2",
		S3cmdPath: s3cmdPath,
		B2CliPath: b2Path,
	}

	engines, err := buildEngines(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, engines, 2)
	assert.Equal(t, "s3cmd", engines[0].Name())
	assert.Equal(t, "b2", engines[1].Name())
}

func TestBuildEnginesMissingBinary(t *testing.T) {
	cfg := &config.Config{
		S3Bucket:  "acme-backups",
		S3cmdPath: filepath.Join(t.TempDir(), "nope"),
	}

	_, err := buildEngines(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3cmd binary not found")
}

func TestBuildEnginesOldRestic(t *testing.T) {
	dir := t.TempDir()
	resticPath := testlib.StubBinary(t, dir, "restic", "#!/bin/sh\necho 'restic 0.9.6'\n")

	cfg := &config.Config{
		ResticRepository:   "/srv/restic-repo",
		ResticPasswordFile: "/etc/restic/password",
		ResticPath:         resticPath,
	}

	_, err := buildEngines(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too old")
}
