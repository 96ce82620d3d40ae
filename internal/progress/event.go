// Package progress defines the events the monitor loop emits while it runs.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageRunStop      Stage = "RUN_STOP"
	StageCycleStart   Stage = "CYCLE_START"
	StageCycleDone    Stage = "CYCLE_DONE"
	StageItemChecked  Stage = "ITEM_CHECKED"
	StageAlert        Stage = "ALERT"
	StageSessionError Stage = "SESSION_ERROR"
)

// Event captures a single milestone of a monitoring run.
type Event struct {
	// RunID identifies the monitoring run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Store is the retailer of the item for item and alert events.
	Store string
	// URL is the watched page for item and alert events.
	URL string
	// Result is the item outcome (in_stock, no_stock, error, skipped).
	Result string
	// Size is the matched size label on alert events.
	Size string
	// Dur captures item or cycle latency.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunStop, StageCycleStart, StageCycleDone, StageSessionError:
	case StageItemChecked:
		if e.URL == "" || e.Result == "" {
			return errors.New("item event requires url and result")
		}
	case StageAlert:
		if e.URL == "" {
			return errors.New("alert event requires url")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID back to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
