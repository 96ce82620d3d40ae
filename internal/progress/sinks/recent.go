package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/sizewatch/internal/progress"
)

// DefaultRecentEvents is the capacity used when NewRecentSink gets zero.
const DefaultRecentEvents = 200

// Record is the JSON view of one event kept by RecentSink.
type Record struct {
	RunID  string    `json:"run_id"`
	TS     time.Time `json:"ts"`
	Stage  string    `json:"stage"`
	Store  string    `json:"store,omitempty"`
	URL    string    `json:"url,omitempty"`
	Result string    `json:"result,omitempty"`
	Size   string    `json:"size,omitempty"`
	DurMS  int64     `json:"dur_ms"`
	Note   string    `json:"note,omitempty"`
}

// RecentSink keeps the newest events in memory for the control API.
type RecentSink struct {
	mu      sync.RWMutex
	records []Record
	limit   int
}

// NewRecentSink returns a sink holding at most capacity events.
func NewRecentSink(capacity int) *RecentSink {
	if capacity <= 0 {
		capacity = DefaultRecentEvents
	}
	return &RecentSink{limit: capacity}
}

// Consume appends the batch and drops the oldest records past capacity.
func (s *RecentSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		s.records = append(s.records, Record{
			RunID:  evt.RunUUID().String(),
			TS:     evt.TS,
			Stage:  string(evt.Stage),
			Store:  evt.Store,
			URL:    evt.URL,
			Result: evt.Result,
			Size:   evt.Size,
			DurMS:  evt.Dur.Milliseconds(),
			Note:   evt.Note,
		})
	}
	if over := len(s.records) - s.limit; over > 0 {
		s.records = append(s.records[:0:0], s.records[over:]...)
	}
	return nil
}

// Recent returns up to limit of the newest records, oldest first. An empty
// stage matches everything.
func (s *RecentSink) Recent(stage string, limit int) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		if stage == "" || rec.Stage == stage {
			out = append(out, rec)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Close implements the Sink interface; it performs no action.
func (s *RecentSink) Close(context.Context) error {
	return nil
}
