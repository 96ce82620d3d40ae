package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/sizewatch/internal/alert"
	"github.com/JakeFAU/sizewatch/internal/progress"
)

type fakeSession struct {
	mgr    *fakeManager
	closed atomic.Bool
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	s.mgr.mu.Lock()
	s.mgr.navigations = append(s.mgr.navigations, url)
	block := s.mgr.blockNavigate
	s.mgr.blockNavigate = nil
	s.mgr.mu.Unlock()
	if block != nil {
		close(block)
		<-ctx.Done()
		return ctx.Err()
	}
	if s.closed.Load() {
		return errors.New("session closed")
	}
	return nil
}

func (s *fakeSession) HTML(context.Context) (string, error) {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	if n := len(s.mgr.navigations); n > 0 {
		return s.mgr.navigations[n-1], nil
	}
	return "", nil
}

func (s *fakeSession) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeManager struct {
	mu            sync.Mutex
	openErrs      []error
	opened        int
	closed        int
	navigations   []string
	blockNavigate chan struct{}
}

func (m *fakeManager) Open(context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened++
	if len(m.openErrs) > 0 {
		err := m.openErrs[0]
		m.openErrs = m.openErrs[1:]
		return nil, &SessionInitError{Err: err}
	}
	return &fakeSession{mgr: m}, nil
}

func (m *fakeManager) Close(sess Session) {
	_ = sess.Close()
	m.mu.Lock()
	m.closed++
	m.mu.Unlock()
}

func (m *fakeManager) snapshot() (opened, closed int, navs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened, m.closed, append([]string(nil), m.navigations...)
}

// extractorFunc uses the page HTML, which the fake session sets to the
// navigated URL, to decide the result.
type extractorFunc func(url string, sizes SizeSet) (string, bool, error)

func (f extractorFunc) Extract(ctx context.Context, page Page, sizes SizeSet) (string, bool, error) {
	url, err := page.HTML(ctx)
	if err != nil {
		return "", false, err
	}
	return f(url, sizes)
}

func allStores(ext Extractor) Extractors {
	out := make(Extractors)
	for _, s := range Stores() {
		out[s] = ext
	}
	return out
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	// outcome is returned from every call; the zero value means delivered.
	outcome alert.Outcome
}

func (n *fakeNotifier) Notify(_ context.Context, message string, _ alert.Credentials) alert.Outcome {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return n.outcome
}

func (n *fakeNotifier) setOutcome(out alert.Outcome) {
	n.mu.Lock()
	n.outcome = out
	n.mu.Unlock()
}

func (n *fakeNotifier) calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

// scriptedWaiter lets each test decide what happens at every backoff.
type scriptedWaiter struct {
	mu     sync.Mutex
	waits  int
	pauses []uint
	onWait func(n int, cancelled func() bool) bool
}

func (w *scriptedWaiter) Wait(_ context.Context, minSeconds, _ uint, cancelled func() bool) (uint, bool) {
	w.mu.Lock()
	w.waits++
	n := w.waits
	w.mu.Unlock()
	if w.onWait == nil {
		return minSeconds, !cancelled()
	}
	return minSeconds, w.onWait(n, cancelled)
}

func (w *scriptedWaiter) Pause(_ context.Context, seconds uint, cancelled func() bool) bool {
	w.mu.Lock()
	w.pauses = append(w.pauses, seconds)
	w.mu.Unlock()
	return !cancelled()
}

func (w *scriptedWaiter) pauseLog() []uint {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]uint(nil), w.pauses...)
}

// blockUntilCancelled polls like the real scheduler, without simulated time.
func blockUntilCancelled(_ int, cancelled func() bool) bool {
	for !cancelled() {
		time.Sleep(time.Millisecond)
	}
	return false
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *recordingEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	e.events = append(e.events, evt)
	e.mu.Unlock()
}

func (e *recordingEmitter) all() []progress.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]progress.Event(nil), e.events...)
}

func (e *recordingEmitter) stages() []progress.Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]progress.Stage, 0, len(e.events))
	for _, evt := range e.events {
		out = append(out, evt.Stage)
	}
	return out
}

type harness struct {
	orch     *Orchestrator
	sessions *fakeManager
	notifier *fakeNotifier
	waiter   Waiter
	emitter  *recordingEmitter
	logs     *observer.ObservedLogs
}

func newHarness(t *testing.T, ext Extractor, waiter Waiter) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		sessions: &fakeManager{},
		notifier: &fakeNotifier{},
		waiter:   waiter,
		emitter:  &recordingEmitter{},
		logs:     logs,
	}
	orch, err := New(Options{
		Sessions:   h.sessions,
		Extractors: allStores(ext),
		Notifier:   h.notifier,
		Waiter:     waiter,
		Emitter:    h.emitter,
		Logger:     zap.New(core),
	})
	require.NoError(t, err)
	h.orch = orch
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, orch.Shutdown(ctx))
	})
	return h
}

func (h *harness) waitDone(t *testing.T) {
	t.Helper()
	select {
	case <-h.orch.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("monitor loop did not exit")
	}
}

// entryText flattens a log entry's message and field values so tests can
// search one line the way an operator reads it.
func entryText(e observer.LoggedEntry) string {
	parts := []string{e.Message}
	for _, v := range e.ContextMap() {
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, " ")
}

func item(url string, store Store) WatchedItem {
	return WatchedItem{URL: url, Store: store}
}

func runConfig(sizes ...string) RunConfig {
	return RunConfig{Sizes: ParseSizes(sizes...), MinDelaySeconds: 5, MaxDelaySeconds: 5}
}
