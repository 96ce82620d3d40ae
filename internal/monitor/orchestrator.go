package monitor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/sizewatch/internal/clock/system"
	idgen "github.com/JakeFAU/sizewatch/internal/id/uuid"
	"github.com/JakeFAU/sizewatch/internal/progress"
)

// DefaultRecoveryDelaySeconds is the pause after a failed session open.
const DefaultRecoveryDelaySeconds = 10

// Options wires the orchestrator's collaborators. Sessions, Extractors,
// Notifier and Waiter are required.
type Options struct {
	Sessions   SessionManager
	Extractors Extractors
	Notifier   Notifier
	Waiter     Waiter
	// Limiter is optional; nil disables per-host pacing.
	Limiter Limiter
	// RecoveryDelaySeconds defaults to DefaultRecoveryDelaySeconds.
	RecoveryDelaySeconds uint
	IDs                  IDGenerator
	Clock                Clock
	Emitter              progress.Emitter
	Logger               *zap.Logger
}

// Phase names the loop state shown by Status.
type Phase string

// Loop phases.
const (
	PhaseIdle     Phase = "idle"
	PhaseRunning  Phase = "running"
	PhaseStopping Phase = "stopping"
)

// ItemStatus is a watched item together with its alert flag.
type ItemStatus struct {
	WatchedItem
	Alerted bool `json:"alerted"`
}

// Status is a point-in-time view of the current or most recent run.
type Status struct {
	Phase           Phase        `json:"phase"`
	RunID           string       `json:"run_id,omitempty"`
	StartedAt       *time.Time   `json:"started_at,omitempty"`
	Cycles          int64        `json:"cycles"`
	Sizes           SizeSet      `json:"sizes,omitempty"`
	MinDelaySeconds uint         `json:"min_delay_seconds"`
	MaxDelaySeconds uint         `json:"max_delay_seconds"`
	Items           []ItemStatus `json:"items,omitempty"`
}

// run holds everything that is private to one monitoring run.
type run struct {
	id        uuid.UUID
	rawID     [16]byte
	items     []WatchedItem
	cfg       RunConfig
	alerts    *AlertState
	startedAt time.Time
	cycles    atomic.Int64
	cancel    context.CancelFunc
	done      chan struct{}
}

// Orchestrator owns the monitoring loop. At most one loop runs at a time.
type Orchestrator struct {
	sessions SessionManager
	waiter   Waiter
	recovery uint
	ids      IDGenerator
	clock    Clock
	emitter  progress.Emitter
	logger   *zap.Logger
	scanner  *Scanner

	state RunState

	mu  sync.Mutex
	cur *run
}

// New validates opts and returns an idle Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Sessions == nil:
		return nil, errors.New("monitor: session manager is required")
	case len(opts.Extractors) == 0:
		return nil, errors.New("monitor: extractors are required")
	case opts.Notifier == nil:
		return nil, errors.New("monitor: notifier is required")
	case opts.Waiter == nil:
		return nil, errors.New("monitor: waiter is required")
	}
	if opts.RecoveryDelaySeconds == 0 {
		opts.RecoveryDelaySeconds = DefaultRecoveryDelaySeconds
	}
	if opts.IDs == nil {
		opts.IDs = idgen.New()
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	if opts.Emitter == nil {
		opts.Emitter = nopEmitter{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Orchestrator{
		sessions: opts.Sessions,
		waiter:   opts.Waiter,
		recovery: opts.RecoveryDelaySeconds,
		ids:      opts.IDs,
		clock:    opts.Clock,
		emitter:  opts.Emitter,
		logger:   opts.Logger,
		scanner: &Scanner{
			extractors: opts.Extractors,
			notifier:   opts.Notifier,
			limiter:    opts.Limiter,
			emitter:    opts.Emitter,
			clock:      opts.Clock,
			logger:     opts.Logger,
		},
	}, nil
}

// Start validates the request and launches the loop in its own goroutine.
// It returns without waiting for the first cycle.
func (o *Orchestrator) Start(items []WatchedItem, cfg RunConfig) error {
	if len(items) == 0 {
		return ErrEmptyWatchList
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, item := range items {
		if _, ok := o.scanner.extractors[item.Store]; !ok {
			return fmt.Errorf("%w: %s", ErrNoExtractor, item.Store)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	// A stopped loop may still be finishing its current item.
	if o.cur != nil && !isClosed(o.cur.done) {
		return ErrAlreadyRunning
	}
	id, err := o.ids.NewRawID()
	if err != nil {
		return fmt.Errorf("generate run id: %w", err)
	}
	if !o.state.begin() {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:        id,
		rawID:     progress.UUIDToBytes(id),
		items:     slices.Clone(items),
		cfg:       cfg,
		alerts:    NewAlertState(items),
		startedAt: o.clock.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	r.cfg.Sizes = slices.Clone(cfg.Sizes)
	o.cur = r

	o.logger.Info("starting checker...",
		zap.String("run_id", id.String()),
		zap.Int("items", len(items)),
		zap.Stringer("sizes", r.cfg.Sizes),
		zap.Uint("min_delay_seconds", cfg.MinDelaySeconds),
		zap.Uint("max_delay_seconds", cfg.MaxDelaySeconds),
	)
	o.emit(r, progress.StageRunStart, 0, "")
	go o.loop(ctx, r)
	return nil
}

// Stop asks the loop to wind down at its next checkpoint. It never blocks.
func (o *Orchestrator) Stop() {
	if o.state.RequestStop() {
		o.logger.Info("stopping... (will stop after current check finishes)")
	}
}

// Shutdown stops the loop, aborts any in-flight navigation, closes the held
// session, and waits for the loop to exit or ctx to end. It is safe to call
// when no run is active.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.Stop()

	o.mu.Lock()
	r := o.cur
	o.mu.Unlock()
	if r == nil {
		return nil
	}
	r.cancel()
	if sess := o.state.ForceRelease(); sess != nil {
		o.sessions.Close(sess)
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for monitor loop: %w", ctx.Err())
	}
}

// Done is closed when the current run's loop exits. With no run it returns
// a closed channel.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cur == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return o.cur.done
}

// Running reports whether a run is active and has not been asked to stop.
func (o *Orchestrator) Running() bool {
	return o.state.Running()
}

// Status snapshots the current or most recent run.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	r := o.cur
	o.mu.Unlock()

	st := Status{Phase: PhaseIdle}
	if r == nil {
		return st
	}
	switch {
	case o.state.Running():
		st.Phase = PhaseRunning
	case !isClosed(r.done):
		st.Phase = PhaseStopping
	}
	started := r.startedAt
	st.RunID = r.id.String()
	st.StartedAt = &started
	st.Cycles = r.cycles.Load()
	st.Sizes = slices.Clone(r.cfg.Sizes)
	st.MinDelaySeconds = r.cfg.MinDelaySeconds
	st.MaxDelaySeconds = r.cfg.MaxDelaySeconds
	flags := r.alerts.Snapshot()
	st.Items = make([]ItemStatus, 0, len(r.items))
	for _, item := range r.items {
		st.Items = append(st.Items, ItemStatus{WatchedItem: item, Alerted: flags[item.URL]})
	}
	return st
}

func (o *Orchestrator) loop(ctx context.Context, r *run) {
	defer close(r.done)
	defer o.finish(r)

	cancelled := func() bool {
		return !o.state.Running() || ctx.Err() != nil
	}

	for !cancelled() {
		sess, err := o.sessions.Open(ctx)
		if err != nil {
			if cancelled() {
				return
			}
			o.logger.Error("failed to initialize driver", zap.Error(err))
			o.emit(r, progress.StageSessionError, 0, err.Error())
			if !o.waiter.Pause(ctx, o.recovery, cancelled) {
				return
			}
			continue
		}
		o.state.attach(sess)

		o.scanAll(ctx, sess, r, cancelled)
		o.release()

		if cancelled() {
			return
		}
		if _, completed := o.waiter.Wait(ctx, r.cfg.MinDelaySeconds, r.cfg.MaxDelaySeconds, cancelled); !completed {
			return
		}
	}
}

func (o *Orchestrator) scanAll(ctx context.Context, sess Session, r *run, cancelled func() bool) {
	start := o.clock.Now()
	o.emit(r, progress.StageCycleStart, 0, "")
	for _, item := range r.items {
		if cancelled() {
			return
		}
		o.scanner.ScanItem(ctx, sess, item, r.cfg, r.alerts, r.rawID)
	}
	r.cycles.Add(1)
	o.emit(r, progress.StageCycleDone, o.clock.Now().Sub(start), "")
}

// release closes the session unless Shutdown already took it.
func (o *Orchestrator) release() {
	if sess := o.state.detach(); sess != nil {
		o.sessions.Close(sess)
	}
}

func (o *Orchestrator) finish(r *run) {
	o.release()
	o.state.RequestStop()
	r.cancel()
	o.logger.Info("checker stopped", zap.String("run_id", r.id.String()), zap.Int64("cycles", r.cycles.Load()))
	o.emit(r, progress.StageRunStop, o.clock.Now().Sub(r.startedAt), "")
}

func (o *Orchestrator) emit(r *run, stage progress.Stage, dur time.Duration, note string) {
	if dur < 0 {
		dur = 0
	}
	o.emitter.Emit(progress.Event{
		RunID: r.rawID,
		TS:    o.clock.Now(),
		Stage: stage,
		Dur:   dur,
		Note:  note,
	})
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

type nopEmitter struct{}

func (nopEmitter) Emit(progress.Event) {}
