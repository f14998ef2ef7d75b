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
	"errors"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/driftlabs/drift-backup/pkg/backup"
	"github.com/driftlabs/drift-backup/pkg/broker/mqtt"
	"github.com/driftlabs/drift-backup/pkg/config"
	"github.com/driftlabs/drift-backup/pkg/server"
	"github.com/driftlabs/drift-backup/pkg/snapshot"
)

// agentCmd represents the agent command
var agentCmd = &cobra.Command{
	Use:   "agent <config-file>",
	Short: "Run agent.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		cfg, err := config.Load(args[0])
		if err != nil {
			fatal(err)
		}
		if err := cfg.Validate(); err != nil {
			fatal(err)
		}

		opts := []server.Option{
			server.WithAddr(addr),
			server.WithConfig(cfg),
			server.WithLogger(logger),
		}

		if len(cfg.BackupDirs) > 0 {
			if err := cfg.ValidateBackup(); err != nil {
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
			opts = append(opts, server.WithRunner(runner))
		}

		if len(cfg.VolumeIDs) > 0 {
			if err := cfg.ValidateSnapshot(); err != nil {
				fatal(err)
			}
			var manager *snapshot.Manager
			manager, err = newSnapshotManager(cfg, logger)
			if err != nil {
				fatal(err)
			}
			opts = append(opts, server.WithSnapshotManager(manager))
		}

		if mqttUrl := viper.GetString("broker_url"); mqttUrl != "" {
			agentID := viper.GetString("agent_id")
			b, err := mqtt.NewBroker(
				mqtt.WithURL(mqttUrl),
				mqtt.WithClientID(agentID),
				mqtt.WithLogger(logger),
			)
			if err != nil {
				logger.Fatal("failed to create broker", zap.Error(err))
			}
			opts = append(opts,
				server.WithBroker(b),
				server.WithSubscribeTopics("agent/default", "agent/"+agentID),
				server.WithPublishTopic("agent/"+agentID+"/status"),
			)
		}

		logger.Debug("Listening address: " + addr)
		s, err := server.New(opts...)
		if err != nil {
			logger.Fatal("failed to create new server", zap.Error(err))
		}
		if err := s.Run(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server run failed", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(agentCmd)
}
