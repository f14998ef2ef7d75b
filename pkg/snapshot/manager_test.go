package snapshot

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeAPI records calls and serves canned snapshots per volume.
type fakeAPI struct {
	snaps map[string][]Snapshot

	created      []string
	deleted      []string
	describes    int
	failCreate   map[string]error
	failDelete   map[string]error
	failDescribe map[string]error
}

var _ API = (*fakeAPI)(nil)

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		snaps:        make(map[string][]Snapshot),
		failCreate:   make(map[string]error),
		failDelete:   make(map[string]error),
		failDescribe: make(map[string]error),
	}
}

func (f *fakeAPI) DescribeSnapshots(_ context.Context, volumeID string) ([]Snapshot, error) {
	f.describes++
	if err := f.failDescribe[volumeID]; err != nil {
		return nil, err
	}
	return f.snaps[volumeID], nil
}

func (f *fakeAPI) CreateSnapshot(_ context.Context, volumeID, description string) (Snapshot, error) {
	if err := f.failCreate[volumeID]; err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		ID:          fmt.Sprintf("snap-new-%d", len(f.created)),
		VolumeID:    volumeID,
		Description: description,
		StartTime:   time.Now(),
	}
	f.created = append(f.created, volumeID)
	return snap, nil
}

func (f *fakeAPI) DeleteSnapshot(_ context.Context, snapshotID string) error {
	if err := f.failDelete[snapshotID]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, snapshotID)
	return nil
}

func newManager(t *testing.T, api API, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{WithAPI(api), WithLogger(zap.NewNop())}, opts...)
	m, err := NewManager(opts...)
	require.NoError(t, err)
	return m
}

func TestNewManagerRequiresAPI(t *testing.T) {
	_, err := NewManager()
	require.Error(t, err)
}

func TestCreate(t *testing.T) {
	api := newFakeAPI()
	m := newManager(t, api, WithVolumeIDs("vol-1", "vol-2"))

	require.NoError(t, m.Create(context.Background()))
	assert.Equal(t, []string{"vol-1", "vol-2"}, api.created)
}

func TestCreateContinuesOnFailure(t *testing.T) {
	api := newFakeAPI()
	api.failCreate["vol-1"] = errors.New("quota exceeded")
	m := newManager(t, api, WithVolumeIDs("vol-1", "vol-2"))

	err := m.Create(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vol-1")
	assert.Equal(t, []string{"vol-2"}, api.created)
}

func TestCreateDryRun(t *testing.T) {
	api := newFakeAPI()
	m := newManager(t, api, WithVolumeIDs("vol-1"), WithDryRun(true))

	require.NoError(t, m.Create(context.Background()))
	assert.Empty(t, api.created)
}

func volumeSnaps(volumeID string, n int) []Snapshot {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]Snapshot, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Snapshot{
			ID:        fmt.Sprintf("%s-snap-%02d", volumeID, i),
			VolumeID:  volumeID,
			StartTime: base.Add(time.Duration(i) * time.Hour),
		})
	}
	return out
}

func TestRotate(t *testing.T) {
	api := newFakeAPI()
	api.snaps["vol-1"] = volumeSnaps("vol-1", 5)
	m := newManager(t, api, WithVolumeIDs("vol-1"), WithKeepCount(2))

	require.NoError(t, m.Rotate(context.Background()))

	// Oldest first in deletion order is not required, only the set is.
	assert.ElementsMatch(t,
		[]string{"vol-1-snap-00", "vol-1-snap-01", "vol-1-snap-02"},
		api.deleted)
}

func TestRotateKeepCountTooLowMakesNoCalls(t *testing.T) {
	api := newFakeAPI()
	api.snaps["vol-1"] = volumeSnaps("vol-1", 5)
	m := newManager(t, api, WithVolumeIDs("vol-1"), WithKeepCount(1))

	assert.ErrorIs(t, m.Rotate(context.Background()), ErrKeepCountTooLow)
	assert.Zero(t, api.describes)
	assert.Empty(t, api.deleted)
}

func TestRotateContinuesOnDescribeFailure(t *testing.T) {
	api := newFakeAPI()
	api.failDescribe["vol-1"] = errors.New("api unavailable")
	api.snaps["vol-2"] = volumeSnaps("vol-2", 5)
	m := newManager(t, api, WithVolumeIDs("vol-1", "vol-2"), WithKeepCount(2))

	err := m.Rotate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vol-1")

	// vol-2 is still rotated after the vol-1 describe failure.
	assert.ElementsMatch(t,
		[]string{"vol-2-snap-00", "vol-2-snap-01", "vol-2-snap-02"},
		api.deleted)
}

func TestRotateDryRunNeverDeletes(t *testing.T) {
	api := newFakeAPI()
	api.snaps["vol-1"] = volumeSnaps("vol-1", 9)
	m := newManager(t, api, WithVolumeIDs("vol-1"), WithKeepCount(2), WithDryRun(true))

	require.NoError(t, m.Rotate(context.Background()))
	assert.Empty(t, api.deleted)
}

func TestRotateDeleteFailureIsFatal(t *testing.T) {
	api := newFakeAPI()
	api.snaps["vol-1"] = volumeSnaps("vol-1", 4)
	api.snaps["vol-2"] = volumeSnaps("vol-2", 4)
	api.failDelete["vol-1-snap-01"] = errors.New("snapshot in use")
	m := newManager(t, api, WithVolumeIDs("vol-1", "vol-2"), WithKeepCount(2))

	err := m.Rotate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot in use")

	// vol-2 must not be touched after the fatal delete on vol-1.
	for _, id := range api.deleted {
		assert.NotContains(t, id, "vol-2")
	}
}

func TestRotateNothingToDelete(t *testing.T) {
	api := newFakeAPI()
	api.snaps["vol-1"] = volumeSnaps("vol-1", 2)
	m := newManager(t, api, WithVolumeIDs("vol-1"), WithKeepCount(5))

	require.NoError(t, m.Rotate(context.Background()))
	assert.Empty(t, api.deleted)
}

func TestList(t *testing.T) {
	api := newFakeAPI()
	api.snaps["vol-1"] = volumeSnaps("vol-1", 3)
	api.snaps["vol-2"] = volumeSnaps("vol-2", 1)
	m := newManager(t, api, WithVolumeIDs("vol-1", "vol-2"))

	snaps, err := m.List(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 4)
	// Newest first within a volume.
	assert.Equal(t, "vol-1-snap-02", snaps[0].ID)
}
