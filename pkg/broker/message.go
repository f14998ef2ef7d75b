package broker

import "errors"

const (
	BackupManual   = "backup_manual"
	SnapshotCreate = "snapshot_create"
	SnapshotRotate = "snapshot_rotate"
	ConfigUpdate   = "config_update"
)

// ErrUnknownEventType is raised when receiving unhandled event from broker.
var ErrUnknownEventType = errors.New("unknown event type")

// Message is the control event format.
type Message struct {
	EventType string `json:"event_type"`
	AgentID   string `json:"agent_id"`
	CreatedAt string `json:"created_at"`

	// DryRun forces the triggered run into dry-run mode regardless of
	// the agent's config.
	DryRun bool `json:"dry_run,omitempty"`
}
