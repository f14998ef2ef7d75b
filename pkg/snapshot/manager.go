package snapshot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const descriptionTimeLayout = "2006-01-02 15:04:05 MST"

// Manager creates, lists and rotates volume snapshots according to the
// configured retention policy.
type Manager struct {
	api       API
	volumeIDs []string
	keepCount int
	dryRun    bool
	logger    *zap.Logger
}

// Option provides mechanism to configure Manager.
type Option func(m *Manager) error

// WithAPI returns an Option which sets the snapshot API implementation.
func WithAPI(api API) Option {
	return func(m *Manager) error {
		m.api = api
		return nil
	}
}

// WithVolumeIDs returns an Option which sets the managed volumes.
func WithVolumeIDs(ids ...string) Option {
	return func(m *Manager) error {
		m.volumeIDs = ids
		return nil
	}
}

// WithKeepCount returns an Option which sets how many snapshots to retain
// per volume.
func WithKeepCount(n int) Option {
	return func(m *Manager) error {
		m.keepCount = n
		return nil
	}
}

// WithDryRun returns an Option which makes destructive actions log-only.
func WithDryRun(dryRun bool) Option {
	return func(m *Manager) error {
		m.dryRun = dryRun
		return nil
	}
}

// WithLogger returns an Option which sets the logger for Manager.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) error {
		m.logger = logger
		return nil
	}
}

// NewManager creates a Manager with given options.
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	if m.api == nil {
		return nil, fmt.Errorf("snapshot: no API configured")
	}
	if m.logger == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		m.logger = l
	}
	return m, nil
}

// ForceDryRun returns a Manager that logs what it would do instead of
// mutating anything, whatever the config says. The original Manager is
// unchanged.
func (m *Manager) ForceDryRun() *Manager {
	forced := *m
	forced.dryRun = true
	return &forced
}

// Create takes a new snapshot of every managed volume. A failed volume is
// logged and the remaining volumes are still processed; the returned error
// aggregates the failures.
func (m *Manager) Create(ctx context.Context) error {
	var failed []string
	for _, volumeID := range m.volumeIDs {
		description := fmt.Sprintf("drift-backup %s %s", volumeID, time.Now().UTC().Format(descriptionTimeLayout))
		if m.dryRun {
			m.logger.Info("dry run: would create snapshot",
				zap.String("volume_id", volumeID),
				zap.String("description", description))
			continue
		}
		snap, err := m.api.CreateSnapshot(ctx, volumeID, description)
		if err != nil {
			m.logger.Error("failed to create snapshot", zap.String("volume_id", volumeID), zap.Error(err))
			failed = append(failed, volumeID)
			continue
		}
		m.logger.Info("created snapshot",
			zap.String("volume_id", volumeID),
			zap.String("snapshot_id", snap.ID))
	}
	if len(failed) > 0 {
		return fmt.Errorf("snapshot create failed for volumes %v", failed)
	}
	return nil
}

// Rotate applies the retention policy to every managed volume: the
// keepCount most recent snapshots stay, the rest are deleted. A volume
// whose snapshots cannot be described is logged and skipped, like a
// failed volume in Create; only a failed deletion aborts the run
// immediately. In dry-run mode deletions are logged and no delete call
// is made.
func (m *Manager) Rotate(ctx context.Context) error {
	if m.keepCount < 2 {
		return ErrKeepCountTooLow
	}
	var failed []string
	for _, volumeID := range m.volumeIDs {
		snaps, err := m.api.DescribeSnapshots(ctx, volumeID)
		if err != nil {
			m.logger.Error("failed to describe snapshots", zap.String("volume_id", volumeID), zap.Error(err))
			failed = append(failed, volumeID)
			continue
		}
		retain, remove, err := Partition(snaps, m.keepCount)
		if err != nil {
			return err
		}
		m.logger.Info("rotating snapshots",
			zap.String("volume_id", volumeID),
			zap.Int("total", len(snaps)),
			zap.Int("retain", len(retain)),
			zap.Int("delete", len(remove)))

		for _, snap := range remove {
			if m.dryRun {
				m.logger.Info("dry run: would delete snapshot",
					zap.String("volume_id", volumeID),
					zap.String("snapshot_id", snap.ID),
					zap.Time("start_time", snap.StartTime))
				continue
			}
			if err := m.api.DeleteSnapshot(ctx, snap.ID); err != nil {
				return fmt.Errorf("rotate %s: %w", volumeID, err)
			}
			m.logger.Info("deleted snapshot",
				zap.String("volume_id", volumeID),
				zap.String("snapshot_id", snap.ID))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("snapshot rotate failed for volumes %v", failed)
	}
	return nil
}

// List returns the snapshots of all managed volumes, newest first per
// volume.
func (m *Manager) List(ctx context.Context) ([]Snapshot, error) {
	var out []Snapshot
	for _, volumeID := range m.volumeIDs {
		snaps, err := m.api.DescribeSnapshots(ctx, volumeID)
		if err != nil {
			return nil, err
		}
		// Partition with a huge keep count is just a sort.
		sorted, _, err := Partition(snaps, len(snaps)+2)
		if err != nil {
			return nil, err
		}
		out = append(out, sorted...)
	}
	return out, nil
}
