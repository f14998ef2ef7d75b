package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/valve"
	"github.com/jpillora/backoff"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/driftlabs/drift-backup/pkg/backup"
	"github.com/driftlabs/drift-backup/pkg/broker"
	"github.com/driftlabs/drift-backup/pkg/config"
	"github.com/driftlabs/drift-backup/pkg/snapshot"
)

// ErrRunInProgress is raised when a run is requested while another one is
// still going.
var ErrRunInProgress = errors.New("another run is still in progress")

// Server defines parameters for running the drift-backup agent.
type Server struct {
	Addr            string
	router          *chi.Mux
	b               broker.Broker
	subscribeTopics []string
	publishTopic    string
	useUnixSock     bool

	cfg       *config.Config
	runner    *backup.Runner
	snapshots *snapshot.Manager
	cron      *cron.Cron

	// External tool and API invocations must never overlap, whatever
	// mix of cron, broker and HTTP triggers fires. The file lock guards
	// cross-process; this guards in-process.
	sem *semaphore.Weighted

	// baseCtx is the valve context every triggered run inherits, so a
	// shutdown cancels in-flight runs. Set by Run before serving.
	baseCtx context.Context

	// signal chan use for testing.
	testSignalCh chan os.Signal

	logger *zap.Logger
}

// New creates new server instance.
func New(opts ...Option) (*Server, error) {
	s := &Server{}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.cfg == nil {
		return nil, errors.New("server: no config provided")
	}

	s.router = chi.NewRouter()
	s.cron = cron.New()
	s.sem = semaphore.NewWeighted(1)

	if s.logger == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		s.logger = l
	}

	s.setupRoutes()
	s.useUnixSock = strings.HasPrefix(s.Addr, "unix://")
	s.Addr = strings.TrimPrefix(s.Addr, "unix://")

	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.ListJobs)
	})

	s.router.Route("/backups", func(r chi.Router) {
		r.Post("/", s.RunBackup)
	})

	s.router.Route("/snapshots", func(r chi.Router) {
		r.Get("/", s.ListSnapshots)
		r.Post("/", s.CreateSnapshots)
		r.Post("/rotate", s.RotateSnapshots)
	})
}

// jobsResponse is the payload of GET /jobs.
type jobsResponse struct {
	BackupDirs       map[string]string `json:"backup_dirs"`
	VolumeIDs        []string          `json:"volume_ids"`
	KeepCount        int               `json:"keep_count"`
	DryRun           bool              `json:"dry_run"`
	Schedule         string            `json:"schedule,omitempty"`
	SnapshotSchedule string            `json:"snapshot_schedule,omitempty"`
}

func (s *Server) ListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, jobsResponse{
		BackupDirs:       s.cfg.BackupDirs,
		VolumeIDs:        s.cfg.VolumeIDs,
		KeepCount:        s.cfg.KeepCount,
		DryRun:           s.cfg.DryRun,
		Schedule:         s.cfg.Schedule,
		SnapshotSchedule: s.cfg.SnapshotSchedule,
	})
}

func (s *Server) RunBackup(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "no backup engines configured")
		return
	}
	if !s.sem.TryAcquire(1) {
		writeError(w, http.StatusConflict, ErrRunInProgress.Error())
		return
	}
	go func() {
		defer s.sem.Release(1)
		s.reportRun("backup", s.runner.Run(s.runCtx()))
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, "no snapshot manager configured")
		return
	}
	snaps, err := s.snapshots.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) CreateSnapshots(w http.ResponseWriter, r *http.Request) {
	s.snapshotOp(w, "snapshot_create", func(ctx context.Context) error {
		return s.snapshots.Create(ctx)
	})
}

func (s *Server) RotateSnapshots(w http.ResponseWriter, r *http.Request) {
	s.snapshotOp(w, "snapshot_rotate", func(ctx context.Context) error {
		return s.snapshots.Rotate(ctx)
	})
}

func (s *Server) snapshotOp(w http.ResponseWriter, name string, op func(context.Context) error) {
	if s.snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, "no snapshot manager configured")
		return
	}
	if !s.sem.TryAcquire(1) {
		writeError(w, http.StatusConflict, ErrRunInProgress.Error())
		return
	}
	go func() {
		defer s.sem.Release(1)
		s.reportRun(name, op(s.runCtx()))
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// reportRun logs a finished run and publishes the result to the broker
// when one is configured.
func (s *Server) reportRun(name string, err error) {
	status := "completed"
	if err != nil {
		status = "failed"
		s.logger.Error(name+" run failed", zap.Error(err))
	} else {
		s.logger.Info(name + " run completed")
	}
	if s.b == nil || s.publishTopic == "" {
		return
	}
	payload, _ := json.Marshal(map[string]string{"event": name, "status": status})
	if pubErr := s.b.Publish(s.publishTopic, payload); pubErr != nil {
		s.logger.Warn("failed to publish run result", zap.Error(pubErr))
	}
}

func (s *Server) handleBrokerEvent(e broker.Event) error {
	var msg broker.Message
	if err := json.Unmarshal(e.Payload, &msg); err != nil {
		return err
	}
	s.logger.Debug("Got broker event", zap.String("event_type", msg.EventType))
	switch msg.EventType {
	case broker.BackupManual:
		if s.runner == nil {
			return errors.New("no backup engines configured")
		}
		runner := s.runner
		if msg.DryRun {
			runner = runner.ForceDryRun()
		}
		return s.serialized("backup", runner.Run)
	case broker.SnapshotCreate:
		if s.snapshots == nil {
			return errors.New("no snapshot manager configured")
		}
		snapshots := s.snapshots
		if msg.DryRun {
			snapshots = snapshots.ForceDryRun()
		}
		return s.serialized("snapshot_create", snapshots.Create)
	case broker.SnapshotRotate:
		if s.snapshots == nil {
			return errors.New("no snapshot manager configured")
		}
		snapshots := s.snapshots
		if msg.DryRun {
			snapshots = snapshots.ForceDryRun()
		}
		return s.serialized("snapshot_rotate", snapshots.Rotate)
	case broker.ConfigUpdate:
		s.logger.Info("config update requested; restart the agent to apply a new config file")
		return nil
	default:
		return fmt.Errorf("Event %s: %w", msg.EventType, broker.ErrUnknownEventType)
	}
}

func (s *Server) serialized(name string, op func(context.Context) error) error {
	if !s.sem.TryAcquire(1) {
		s.logger.Warn("skipping triggered run", zap.String("run", name), zap.Error(ErrRunInProgress))
		return ErrRunInProgress
	}
	defer s.sem.Release(1)
	err := op(s.runCtx())
	s.reportRun(name, err)
	return err
}

// runCtx is the context triggered runs execute under.
func (s *Server) runCtx() context.Context {
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

// setupSchedules registers the cron entries from the config. A missing
// pattern just means that schedule is disabled.
func (s *Server) setupSchedules() error {
	if s.cfg.Schedule != "" && s.runner != nil {
		if _, err := s.cron.AddFunc(s.cfg.Schedule, func() {
			_ = s.serialized("backup", s.runner.Run)
		}); err != nil {
			return fmt.Errorf("invalid SCHEDULE %q: %w", s.cfg.Schedule, err)
		}
	}
	if s.cfg.SnapshotSchedule != "" && s.snapshots != nil {
		if _, err := s.cron.AddFunc(s.cfg.SnapshotSchedule, func() {
			if err := s.serialized("snapshot_create", s.snapshots.Create); err != nil {
				return
			}
			_ = s.serialized("snapshot_rotate", s.snapshots.Rotate)
		}); err != nil {
			return fmt.Errorf("invalid SNAPSHOT_SCHEDULE %q: %w", s.cfg.SnapshotSchedule, err)
		}
	}
	return nil
}

func (s *Server) Run() error {
	// Graceful valve shut-off package to manage code preemption and shutdown signaling.
	valv := valve.New()
	baseCtx := valv.Context()
	s.baseCtx = baseCtx

	if err := s.setupSchedules(); err != nil {
		return err
	}
	s.cron.Start()
	defer s.cron.Stop()

	go func(ctx context.Context) {
		if s.b == nil || len(s.subscribeTopics) == 0 {
			return
		}
		b := &backoff.Backoff{Jitter: true}
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if err := s.b.ConnectAndSubscribe(s.handleBrokerEvent, s.subscribeTopics); err != nil {
				s.logger.Error("broker connect failed", zap.Error(err))
				time.Sleep(b.Duration())
				continue
			}
			b.Reset()
			<-ctx.Done()
			_ = s.b.Disconnect()
			return
		}
	}(baseCtx)

	srv := http.Server{Handler: chi.ServerBaseContext(baseCtx, s.router)}

	c := make(chan os.Signal, 1)
	if s.testSignalCh != nil {
		c = s.testSignalCh
	}
	signal.Notify(c, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-c
		s.logger.Info("shutting down...")

		if err := valv.Shutdown(20 * time.Second); err != nil {
			s.logger.Error("failed to shutdown valve")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown http server")
		}

		select {
		case <-time.After(21 * time.Second):
			s.logger.Error("not all connections done")
		case <-ctx.Done():
		}
	}()

	if s.useUnixSock {
		unixListener, err := net.Listen("unix", s.Addr)
		if err != nil {
			return err
		}
		return srv.Serve(unixListener)
	}

	srv.Addr = s.Addr
	return srv.ListenAndServe()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
