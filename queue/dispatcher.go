// queue/dispatcher.go

// Package queue serializes sync passes per entity. A notification for an
// idle entity starts a pass; notifications that arrive while a pass is in
// flight collapse into a single rerun, started after a cool-down once the
// current pass ends. Different entities never wait for each other.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	sync_errors "github.com/mitselek/esmuseum-map-app-sub006/errors"
	logger "github.com/mitselek/esmuseum-map-app-sub006/logging"
	"github.com/mitselek/esmuseum-map-app-sub006/model"
	"github.com/mitselek/esmuseum-map-app-sub006/util"
)

// DefaultCoolDown lets a burst of edits settle before the rerun.
const DefaultCoolDown = 2 * time.Second

// Runner executes one pass for a notification.
type Runner interface {
	RunPass(ctx context.Context, n model.WebhookNotification, rerun bool) (*model.PassResult, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, n model.WebhookNotification, rerun bool) (*model.PassResult, error)

func (f RunnerFunc) RunPass(ctx context.Context, n model.WebhookNotification, rerun bool) (*model.PassResult, error) {
	return f(ctx, n, rerun)
}

// Stats are dispatcher counters since start.
type Stats struct {
	Active    int    `json:"active"`
	Passes    uint64 `json:"passes"`
	Reruns    uint64 `json:"reruns"`
	Coalesced uint64 `json:"coalesced"`
	Failed    uint64 `json:"failed"`
}

type Option func(*Dispatcher)

func WithCoolDown(d time.Duration) Option {
	return func(q *Dispatcher) {
		if d >= 0 {
			q.coolDown = d
		}
	}
}

// WithClock replaces the time source and the cool-down timer.
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(q *Dispatcher) {
		q.now = now
		q.after = after
	}
}

// WithEventBus publishes pass outcomes on bus.
func WithEventBus(bus *util.EventBus) Option {
	return func(q *Dispatcher) {
		q.events = bus
	}
}

// Dispatcher owns the ProcessingState of every entity with work in flight.
type Dispatcher struct {
	runner   Runner
	coolDown time.Duration
	now      func() time.Time
	after    func(time.Duration) <-chan time.Time
	events   *util.EventBus

	mu      sync.Mutex
	entries map[model.EntityID]*entry
	closed  bool
	stats   Stats

	// stop cancels pending cool-downs; passes themselves are never cancelled.
	stop   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDispatcher(runner Runner, opts ...Option) *Dispatcher {
	stop, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		runner:   runner,
		coolDown: DefaultCoolDown,
		now:      time.Now,
		after:    time.After,
		entries:  make(map[model.EntityID]*entry),
		stop:     stop,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enqueue hands a notification to the entity's queue and returns at once.
func (d *Dispatcher) Enqueue(n model.WebhookNotification) error {
	if n.SourceEntityID == "" {
		return sync_errors.ErrMalformedPayload
	}
	if n.Credential == nil {
		return sync_errors.ErrInvalidCredential
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return sync_errors.ErrQueueClosed
	}

	e, ok := d.entries[n.SourceEntityID]
	if !ok {
		e = &entry{status: Idle}
		d.entries[n.SourceEntityID] = e
	}

	switch e.status {
	case Idle:
		first := e.begin(d.now(), &n)
		d.stats.Passes++
		d.wg.Add(1)
		go d.process(first)
	case Running, RunningWithPendingRerun:
		e.markPending(&n)
		d.stats.Coalesced++
		logger.Debug("Pass in flight, rerun scheduled",
			zap.String("entityID", string(n.SourceEntityID)),
			zap.String("trigger", string(n.TriggerKind)))
	}
	return nil
}

// process runs passes for one entity until no rerun is pending. It is the
// only goroutine working on that entity.
func (d *Dispatcher) process(n model.WebhookNotification) {
	defer d.wg.Done()

	rerun := false
	for {
		d.execute(n, rerun)

		if !d.finish(n.SourceEntityID) {
			return
		}

		select {
		case <-d.after(d.coolDown):
		case <-d.stop.Done():
			d.drop(n.SourceEntityID)
			return
		}

		n = d.rerun(n.SourceEntityID)
		rerun = true
	}
}

func (d *Dispatcher) execute(n model.WebhookNotification, rerun bool) {
	fields := []zap.Field{
		zap.String("entityID", string(n.SourceEntityID)),
		zap.String("trigger", string(n.TriggerKind)),
		zap.String("principalLabel", n.Credential.PrincipalLabel),
		zap.Bool("rerun", rerun),
	}

	result, err := d.runPass(n, rerun)
	if result == nil {
		result = &model.PassResult{EntityID: n.SourceEntityID, Trigger: n.TriggerKind, Rerun: rerun}
	}
	fields = append(fields,
		zap.String("passID", result.PassID),
		zap.Int("granted", result.Granted),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))

	if err != nil {
		d.mu.Lock()
		d.stats.Failed++
		d.mu.Unlock()

		logger.Error("Pass failed; re-edit the entity to retry", append(fields, zap.Error(err))...)
		if d.events != nil {
			d.events.PublishPassFailed(context.Background(), model.PassFailure{Result: *result, PrincipalLabel: n.Credential.PrincipalLabel, Err: err})
		}
		return
	}

	logger.Info("Pass completed", fields...)
	if d.events != nil {
		d.events.PublishPassCompleted(context.Background(), *result)
	}
}

// runPass turns a panicking runner into a failed pass so the entity's
// goroutine keeps its state machine consistent.
func (d *Dispatcher) runPass(n model.WebhookNotification, rerun bool) (result *model.PassResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Pass panicked",
				zap.String("entityID", string(n.SourceEntityID)),
				zap.Any("panic", r),
				zap.Stack("stack"))
			result = nil
			err = fmt.Errorf("%w: pass panicked: %v", sync_errors.ErrInternalServer, r)
		}
	}()
	return d.runner.RunPass(context.Background(), n, rerun)
}

// finish ends the current pass and reports whether a rerun is pending.
func (d *Dispatcher) finish(id model.EntityID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	e := d.entries[id]
	if e.finish() {
		return true
	}
	delete(d.entries, id)
	return false
}

// rerun starts the pending pass with the newest notification's credential.
func (d *Dispatcher) rerun(id model.EntityID) model.WebhookNotification {
	d.mu.Lock()
	defer d.mu.Unlock()

	e := d.entries[id]
	d.stats.Passes++
	d.stats.Reruns++
	return e.begin(d.now(), e.pending)
}

func (d *Dispatcher) drop(id model.EntityID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.entries, id)
	logger.Warn("Pending rerun dropped at shutdown; re-edit the entity to sync it",
		zap.String("entityID", string(id)))
}

// Snapshot returns the entity's current status; false means Idle with no entry.
func (d *Dispatcher) Snapshot(id model.EntityID) (Status, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[id]
	if !ok {
		return Idle, false
	}
	return e.status, true
}

func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.stats
	s.Active = len(d.entries)
	return s
}

// Shutdown stops accepting work, drops pending cool-downs and waits for the
// passes in flight to end or ctx to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(sync_errors.ErrQueueClosed, ctx.Err())
	}
}
