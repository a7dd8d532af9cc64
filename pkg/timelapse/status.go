package timelapse

import (
	"time"

	"github.com/video-system/go-timelapse/pkg/schedule"
)

// Run states
const (
	StateIdle    = "idle"
	StateRunning = "running"
	StateStopped = "stopped"
	StateFailed  = "failed"
)

// Why a run stopped
const (
	StopExhausted = "exhausted"
	StopCancelled = "lock_removed"
	StopError     = "error"
)

// Status is a point-in-time view of a run
type Status struct {
	RunID        string             `json:"run_id"`
	State        string             `json:"state"`
	Session      string             `json:"session"`
	Samples      int                `json:"samples"`
	LastSnapshot *schedule.Snapshot `json:"last_snapshot,omitempty"`
	LastFrame    string             `json:"last_frame,omitempty"`
	StartedAt    time.Time          `json:"started_at,omitzero"`
	StoppedAt    time.Time          `json:"stopped_at,omitzero"`
	StopReason   string             `json:"stop_reason,omitempty"`
	Error        string             `json:"error,omitempty"`
}
