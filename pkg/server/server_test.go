package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/driftlabs/drift-backup/pkg/backup"
	"github.com/driftlabs/drift-backup/pkg/broker"
	"github.com/driftlabs/drift-backup/pkg/config"
	"github.com/driftlabs/drift-backup/pkg/snapshot"
)

type blockingEngine struct {
	started chan struct{}
	release chan struct{}
}

func (e *blockingEngine) Name() string { return "blocking" }

func (e *blockingEngine) ForceDryRun() backup.Engine { return e }

func (e *blockingEngine) BackupDir(ctx context.Context, dir, exclude string, out io.Writer) error {
	select {
	case e.started <- struct{}{}:
	default:
	}
	select {
	case <-e.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type countingAPI struct {
	creates int
}

func (a *countingAPI) DescribeSnapshots(context.Context, string) ([]snapshot.Snapshot, error) {
	return nil, nil
}

func (a *countingAPI) CreateSnapshot(_ context.Context, volumeID, _ string) (snapshot.Snapshot, error) {
	a.creates++
	return snapshot.Snapshot{ID: "snap-1", VolumeID: volumeID}, nil
}

func (a *countingAPI) DeleteSnapshot(context.Context, string) error { return nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		LogDir:     t.TempDir(),
		BackupDirs: map[string]string{"/srv/www": ""},
		VolumeIDs:  []string{"vol-1"},
		KeepCount:  3,
	}
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{WithConfig(testConfig(t)), WithLogger(zap.NewNop())}, opts...)
	s, err := New(opts...)
	require.NoError(t, err)
	return s
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(WithLogger(zap.NewNop()))
	require.Error(t, err)
}

func TestListJobs(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp jobsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 3, resp.KeepCount)
	assert.Contains(t, resp.BackupDirs, "/srv/www")
}

func TestRunBackupWithoutRunner(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/backups", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRunBackupSerialized(t *testing.T) {
	cfg := testConfig(t)
	engine := &blockingEngine{started: make(chan struct{}, 1), release: make(chan struct{})}
	r, err := backup.New(backup.WithConfig(cfg), backup.WithEngines(engine), backup.WithLogger(zap.NewNop()))
	require.NoError(t, err)

	s := newTestServer(t, WithConfig(cfg), WithRunner(r))

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/backups", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case <-engine.started:
	case <-time.After(5 * time.Second):
		t.Fatal("backup run did not start")
	}

	// A second trigger while the first run still holds the semaphore.
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/backups", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(engine.release)
}

func TestSnapshotEndpoints(t *testing.T) {
	api := &countingAPI{}
	m, err := snapshot.NewManager(
		snapshot.WithAPI(api),
		snapshot.WithVolumeIDs("vol-1"),
		snapshot.WithKeepCount(3),
		snapshot.WithLogger(zap.NewNop()),
	)
	require.NoError(t, err)

	s := newTestServer(t, WithSnapshotManager(m))

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshots", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/snapshots", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	// The create runs asynchronously.
	require.Eventually(t, func() bool { return api.creates == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestHandleBrokerEvent(t *testing.T) {
	api := &countingAPI{}
	m, err := snapshot.NewManager(
		snapshot.WithAPI(api),
		snapshot.WithVolumeIDs("vol-1"),
		snapshot.WithKeepCount(3),
		snapshot.WithLogger(zap.NewNop()),
	)
	require.NoError(t, err)
	s := newTestServer(t, WithSnapshotManager(m))

	payload, err := json.Marshal(broker.Message{EventType: broker.SnapshotCreate})
	require.NoError(t, err)
	require.NoError(t, s.handleBrokerEvent(broker.Event{Payload: payload}))
	assert.Equal(t, 1, api.creates)

	payload, err = json.Marshal(broker.Message{EventType: "bogus"})
	require.NoError(t, err)
	assert.ErrorIs(t, s.handleBrokerEvent(broker.Event{Payload: payload}), broker.ErrUnknownEventType)

	payload, err = json.Marshal(broker.Message{EventType: broker.ConfigUpdate})
	require.NoError(t, err)
	assert.NoError(t, s.handleBrokerEvent(broker.Event{Payload: payload}))
}

func TestHandleBrokerEventDryRun(t *testing.T) {
	api := &countingAPI{}
	m, err := snapshot.NewManager(
		snapshot.WithAPI(api),
		snapshot.WithVolumeIDs("vol-1"),
		snapshot.WithKeepCount(3),
		snapshot.WithLogger(zap.NewNop()),
	)
	require.NoError(t, err)
	s := newTestServer(t, WithSnapshotManager(m))

	// A dry-run trigger must not reach the API.
	payload, err := json.Marshal(broker.Message{EventType: broker.SnapshotCreate, DryRun: true})
	require.NoError(t, err)
	require.NoError(t, s.handleBrokerEvent(broker.Event{Payload: payload}))
	assert.Zero(t, api.creates)

	payload, err = json.Marshal(broker.Message{EventType: broker.SnapshotRotate, DryRun: true})
	require.NoError(t, err)
	require.NoError(t, s.handleBrokerEvent(broker.Event{Payload: payload}))
	assert.Zero(t, api.creates)

	// The same trigger without the flag does.
	payload, err = json.Marshal(broker.Message{EventType: broker.SnapshotCreate})
	require.NoError(t, err)
	require.NoError(t, s.handleBrokerEvent(broker.Event{Payload: payload}))
	assert.Equal(t, 1, api.creates)
}

func TestTriggeredRunCancelledWithBaseContext(t *testing.T) {
	cfg := testConfig(t)
	engine := &blockingEngine{started: make(chan struct{}, 1), release: make(chan struct{})}
	r, err := backup.New(backup.WithConfig(cfg), backup.WithEngines(engine), backup.WithLogger(zap.NewNop()))
	require.NoError(t, err)

	s := newTestServer(t, WithConfig(cfg), WithRunner(r))
	ctx, cancel := context.WithCancel(context.Background())
	s.baseCtx = ctx

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/backups", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case <-engine.started:
	case <-time.After(5 * time.Second):
		t.Fatal("backup run did not start")
	}

	// Cancelling the base context aborts the in-flight run; the engine is
	// never released.
	cancel()
	require.Eventually(t, func() bool {
		if !s.sem.TryAcquire(1) {
			return false
		}
		s.sem.Release(1)
		return true
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSetupSchedulesInvalidPattern(t *testing.T) {
	cfg := testConfig(t)
	cfg.Schedule = "not a cron pattern"
	engine := &blockingEngine{started: make(chan struct{}, 1), release: make(chan struct{})}
	r, err := backup.New(backup.WithConfig(cfg), backup.WithEngines(engine), backup.WithLogger(zap.NewNop()))
	require.NoError(t, err)

	s := newTestServer(t, WithConfig(cfg), WithRunner(r))
	require.Error(t, s.setupSchedules())
}

func TestServerRun(t *testing.T) {
	tests := []struct {
		addr string
	}{
		{"unix://" + filepath.Join(os.TempDir(), "drift-backup-test-server.sock")},
		{"127.0.0.1:18510"},
	}
	for _, tc := range tests {
		_ = os.Remove(strings.TrimPrefix(tc.addr, "unix://"))
		s := newTestServer(t, WithAddr(tc.addr))
		s.testSignalCh = make(chan os.Signal, 1)

		done := make(chan error, 1)
		go func() { done <- s.Run() }()

		// Wait until the listener answers, then ask it to shut down.
		require.Eventually(t, func() bool {
			conn, err := dial(s)
			if err != nil {
				return false
			}
			_ = conn.Close()
			return true
		}, 5*time.Second, 50*time.Millisecond)

		s.testSignalCh <- syscall.SIGTERM
		select {
		case err := <-done:
			assert.ErrorIs(t, err, http.ErrServerClosed)
		case <-time.After(30 * time.Second):
			t.Fatal("server did not shut down")
		}
		if s.useUnixSock {
			_ = os.Remove(s.Addr)
		}
	}
}

func dial(s *Server) (net.Conn, error) {
	if s.useUnixSock {
		return net.Dial("unix", s.Addr)
	}
	return net.Dial("tcp", s.Addr)
}
