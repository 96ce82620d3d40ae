package logging

import (
	"strings"
	"sync"
)

// DefaultBufferLines is the tail length kept when NewLineBuffer gets zero.
const DefaultBufferLines = 500

// LineBuffer keeps the most recent log lines in a ring. It is a
// zapcore.WriteSyncer, so any goroutine may log into it while readers poll.
type LineBuffer struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

// NewLineBuffer returns a ring holding capacity lines.
func NewLineBuffer(capacity int) *LineBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferLines
	}
	return &LineBuffer{lines: make([]string, capacity)}
}

// Write stores each newline-terminated line in p.
func (b *LineBuffer) Write(p []byte) (int, error) {
	text := strings.TrimRight(string(p), "\n")
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, line := range strings.Split(text, "\n") {
		b.lines[b.next] = line
		b.next = (b.next + 1) % len(b.lines)
		if b.next == 0 {
			b.full = true
		}
	}
	return len(p), nil
}

// Sync implements zapcore.WriteSyncer.
func (*LineBuffer) Sync() error {
	return nil
}

// Lines returns up to limit of the newest lines, oldest first. A limit of
// zero or less returns everything held.
func (b *LineBuffer) Lines(limit int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var ordered []string
	if b.full {
		ordered = append(ordered, b.lines[b.next:]...)
	}
	ordered = append(ordered, b.lines[:b.next]...)
	if limit > 0 && len(ordered) > limit {
		ordered = ordered[len(ordered)-limit:]
	}
	return ordered
}

// Len reports how many lines are held.
func (b *LineBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full {
		return len(b.lines)
	}
	return b.next
}
