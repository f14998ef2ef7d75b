package snapshot

import (
	"errors"
	"sort"
	"time"
)

// ErrKeepCountTooLow is raised when a retention partition is requested with
// fewer than 2 snapshots to keep.
var ErrKeepCountTooLow = errors.New("keep count must be at least 2")

// Snapshot is a point-in-time copy of a volume, created and owned by the
// cloud provider. Only the rotation policy ever deletes one.
type Snapshot struct {
	ID          string
	VolumeID    string
	Description string
	StartTime   time.Time
	State       string
	SizeGiB     int64
}

// Partition splits snaps into the keepCount most recent snapshots and the
// rest. Ordering is by start time descending; equal timestamps are broken
// by ID descending so the split is deterministic. The input is not
// modified and every element lands in exactly one of the two results.
func Partition(snaps []Snapshot, keepCount int) (retain, remove []Snapshot, err error) {
	if keepCount < 2 {
		return nil, nil, ErrKeepCountTooLow
	}

	sorted := make([]Snapshot, len(snaps))
	copy(sorted, snaps)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].StartTime.Equal(sorted[j].StartTime) {
			return sorted[i].StartTime.After(sorted[j].StartTime)
		}
		return sorted[i].ID > sorted[j].ID
	})

	if keepCount >= len(sorted) {
		return sorted, nil, nil
	}
	return sorted[:keepCount], sorted[keepCount:], nil
}
