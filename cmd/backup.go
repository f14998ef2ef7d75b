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
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/driftlabs/drift-backup/pkg/backup"
)

// backupCmd represents the backup command. Given a config file it runs the
// configured jobs directly; without one it shows the subcommands.
var backupCmd = &cobra.Command{
	Use:   "backup [config-file]",
	Short: "Run all configured backup jobs.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			if err := cmd.Help(); err != nil {
				logger.Error(err.Error())
			}
			return
		}
		runBackup(args[0])
	},
}

// backupRunCmd represents the backup run command.
var backupRunCmd = &cobra.Command{
	Use:   "run <config-file>",
	Short: "Run a backup immediately.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runBackup(args[0])
	},
}

// backupListCmd asks a running agent for its configured jobs.
var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the jobs of a running agent.",
	Run: func(cmd *cobra.Command, args []string) {
		var jobs struct {
			BackupDirs       map[string]string `json:"backup_dirs"`
			Schedule         string            `json:"schedule"`
			KeepCount        int               `json:"keep_count"`
			DryRun           bool              `json:"dry_run"`
			SnapshotSchedule string            `json:"snapshot_schedule"`
		}
		if err := agentGet("/jobs", &jobs); err != nil {
			fatal(err)
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Directory", "Exclude", "Schedule", "Dry Run"})
		for dir, exclude := range jobs.BackupDirs {
			table.Append([]string{dir, exclude, jobs.Schedule, strconv.FormatBool(jobs.DryRun)})
		}
		table.Render()
	},
}

// backupTriggerCmd asks a running agent to start a backup run.
var backupTriggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Trigger a backup run on a running agent.",
	Run: func(cmd *cobra.Command, args []string) {
		var resp map[string]string
		if err := agentPost("/backups", &resp); err != nil {
			fatal(err)
		}
		fmt.Println("backup " + resp["status"])
	},
}

func runBackup(configPath string) {
	ctx := context.Background()

	cfg, err := loadBackupConfig(configPath)
	if err != nil {
		fatal(err)
	}
	engines, err := buildEngines(ctx, cfg)
	if err != nil {
		fatal(err)
	}
	runner, err := backup.New(
		backup.WithConfig(cfg),
		backup.WithEngines(engines...),
		backup.WithLogger(logger),
	)
	if err != nil {
		fatal(err)
	}
	if err := runner.Run(ctx); err != nil {
		fatal(err)
	}
}

func decodeResponse(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("agent returned %s: %s", resp.Status, apiErr["error"])
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupRunCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupTriggerCmd)
}
