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
	"fmt"

	"github.com/driftlabs/drift-backup/pkg/backup"
	"github.com/driftlabs/drift-backup/pkg/config"
	"github.com/driftlabs/drift-backup/pkg/tool"
	"github.com/driftlabs/drift-backup/pkg/tool/b2"
	"github.com/driftlabs/drift-backup/pkg/tool/restic"
	"github.com/driftlabs/drift-backup/pkg/tool/s3cmd"
)

// buildEngines detects every backup tool the config asks for and wires it
// to its destination. Detection happens before the lock is taken so a
// broken installation fails the run without touching anything.
func buildEngines(ctx context.Context, cfg *config.Config) ([]backup.Engine, error) {
	wantDryRun := cfg.DryRun || dryRun

	var engines []backup.Engine
	if cfg.S3Bucket != "" {
		bin, err := tool.Detect(ctx, "s3cmd", cfg.S3cmdPath)
		if err != nil {
			return nil, err
		}
		engines = append(engines, s3cmd.New(bin, cfg.S3Bucket, wantDryRun))
	}
	if cfg.ResticRepository != "" {
		bin, err := tool.Detect(ctx, "restic", cfg.ResticPath)
		if err != nil {
			return nil, err
		}
		if !bin.AtLeast(restic.MinVersion) {
			return nil, fmt.Errorf("restic %s is too old, need at least %s", bin.Version, restic.MinVersion)
		}
		engines = append(engines, restic.New(bin, cfg.ResticRepository, cfg.ResticPasswordFile, wantDryRun))
	}
	if cfg.B2Bucket != "" {
		bin, err := tool.Detect(ctx, "b2", cfg.B2CliPath)
		if err != nil {
			return nil, err
		}
		engines = append(engines, b2.New(bin, cfg.B2Bucket, wantDryRun))
	}
	return engines, nil
}

// loadBackupConfig loads and validates a job config for a backup run.
func loadBackupConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateBackup(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadSnapshotConfig loads and validates a job config for snapshot ops.
func loadSnapshotConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateSnapshot(); err != nil {
		return nil, err
	}
	return cfg, nil
}
