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
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/driftlabs/drift-backup/pkg/config"
)

// checkConfigCmd validates a job config without touching any external
// system.
var checkConfigCmd = &cobra.Command{
	Use:   "check-config <config-file>",
	Short: "Validate a job config file and print the resolved jobs.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(args[0])
		if err != nil {
			fatal(err)
		}
		if err := cfg.Validate(); err != nil {
			fatal(err)
		}
		if len(cfg.BackupDirs) > 0 {
			if err := cfg.ValidateBackup(); err != nil {
				fatal(err)
			}
		}
		if len(cfg.VolumeIDs) > 0 {
			if err := cfg.ValidateSnapshot(); err != nil {
				fatal(err)
			}
		}

		fmt.Println("config OK")
		fmt.Println("log dir:  " + cfg.LogDir)
		fmt.Println("lock:     " + cfg.LockPath())
		fmt.Println("dry run:  " + strconv.FormatBool(cfg.DryRun || dryRun))

		if len(cfg.BackupDirs) > 0 {
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Directory", "Exclude"})
			for _, dir := range cfg.SortedBackupDirs() {
				table.Append([]string{dir, cfg.BackupDirs[dir]})
			}
			table.Render()
		}
		if len(cfg.VolumeIDs) > 0 {
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Volume", "Keep Count"})
			for _, id := range cfg.VolumeIDs {
				table.Append([]string{id, strconv.Itoa(cfg.KeepCount)})
			}
			table.Render()
		}
	},
}

func init() {
	rootCmd.AddCommand(checkConfigCmd)
}
