package server

import (
	"go.uber.org/zap"

	"github.com/driftlabs/drift-backup/pkg/backup"
	"github.com/driftlabs/drift-backup/pkg/broker"
	"github.com/driftlabs/drift-backup/pkg/config"
	"github.com/driftlabs/drift-backup/pkg/snapshot"
)

type Option func(s *Server) error

// WithAddr returns an Option which set the server listening address.
func WithAddr(addr string) Option {
	return func(s *Server) error {
		s.Addr = addr
		return nil
	}
}

// WithBroker returns an Option which set the server broker for async messaging.
func WithBroker(b broker.Broker) Option {
	return func(s *Server) error {
		s.b = b
		return nil
	}
}

// WithSubscribeTopics returns an Option which set the topics the broker will subscribe to.
func WithSubscribeTopics(topics ...string) Option {
	return func(s *Server) error {
		s.subscribeTopics = topics
		return nil
	}
}

// WithPublishTopic returns an Option which set the topic run results are published to.
func WithPublishTopic(topic string) Option {
	return func(s *Server) error {
		s.publishTopic = topic
		return nil
	}
}

// WithConfig returns an Option which set the job config the agent serves.
func WithConfig(cfg *config.Config) Option {
	return func(s *Server) error {
		s.cfg = cfg
		return nil
	}
}

// WithRunner returns an Option which set the backup runner.
func WithRunner(r *backup.Runner) Option {
	return func(s *Server) error {
		s.runner = r
		return nil
	}
}

// WithSnapshotManager returns an Option which set the snapshot manager.
func WithSnapshotManager(m *snapshot.Manager) Option {
	return func(s *Server) error {
		s.snapshots = m
		return nil
	}
}

// WithLogger returns an Option which set the logger for Server.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}
