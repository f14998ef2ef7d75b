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
	"os"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/driftlabs/drift-backup/pkg/config"
	"github.com/driftlabs/drift-backup/pkg/lockfile"
	"github.com/driftlabs/drift-backup/pkg/runlog"
	"github.com/driftlabs/drift-backup/pkg/snapshot"
)

const snapshotTimeLayout = "2006-01-02 15:04:05"

// snapshotCmd represents the snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage EC2 volume snapshots.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := cmd.Help(); err != nil {
			logger.Error(err.Error())
		}
	},
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create <config-file>",
	Short: "Create a snapshot of every configured volume.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runSnapshotOp(args[0], "snapshot", func(ctx context.Context, m *snapshot.Manager) error {
			return m.Create(ctx)
		})
	},
}

var snapshotRotateCmd = &cobra.Command{
	Use:   "rotate <config-file>",
	Short: "Delete all but the newest KEEP_COUNT snapshots per volume.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runSnapshotOp(args[0], "snapshot-rotate", func(ctx context.Context, m *snapshot.Manager) error {
			return m.Rotate(ctx)
		})
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list <config-file>",
	Short: "List the snapshots of every configured volume.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg, err := loadSnapshotConfig(args[0])
		if err != nil {
			fatal(err)
		}
		m, err := newSnapshotManager(cfg, logger)
		if err != nil {
			fatal(err)
		}
		snaps, err := m.List(ctx)
		if err != nil {
			fatal(err)
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"ID", "Volume", "Started", "Size", "State"})
		for _, s := range snaps {
			table.Append([]string{
				s.ID,
				s.VolumeID,
				s.StartTime.Format(snapshotTimeLayout),
				humanize.IBytes(uint64(s.SizeGiB) << 30),
				s.State,
			})
		}
		table.Render()
	},
}

// runSnapshotOp wraps a destructive snapshot operation in the run lock and
// a per-run log file, the same discipline backup runs follow.
func runSnapshotOp(configPath, logPrefix string, op func(context.Context, *snapshot.Manager) error) {
	ctx := context.Background()

	cfg, err := loadSnapshotConfig(configPath)
	if err != nil {
		fatal(err)
	}

	lock, err := lockfile.Acquire(cfg.LockPath())
	if err != nil {
		fatal(err)
	}
	defer func() { _ = lock.Release() }()

	run, err := runlog.Open(cfg.LogDir, logPrefix)
	if err != nil {
		fatal(err)
	}
	defer run.Close()

	m, err := newSnapshotManager(cfg, run.Logger)
	if err != nil {
		fatal(err)
	}
	if err := op(ctx, m); err != nil {
		fatal(err)
	}
}

func newSnapshotManager(cfg *config.Config, mlog *zap.Logger) (*snapshot.Manager, error) {
	api, err := snapshot.NewEC2(cfg.AWSRegion, cfg.AWSAccessKey, cfg.AWSSecretKey)
	if err != nil {
		return nil, err
	}
	return snapshot.NewManager(
		snapshot.WithAPI(api),
		snapshot.WithVolumeIDs(cfg.VolumeIDs...),
		snapshot.WithKeepCount(cfg.KeepCount),
		snapshot.WithDryRun(cfg.DryRun || dryRun),
		snapshot.WithLogger(mlog),
	)
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotRotateCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
}
