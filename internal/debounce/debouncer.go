// Package debounce coalesces rapid-fire inbound messages from the same
// conversation into a single downstream call, fired a quiet period after the
// most recent message.
package debounce

import (
	"strings"
	"sync"
	"time"

	"github.com/lumalaser/concierge/pkg/logging"
)

// Handler receives the merged text for a conversation once its quiet period
// elapses. It runs on the timer goroutine; errors are reported through the
// Debouncer's error callback and never retried.
type Handler func(identity, merged string) error

// ErrorFunc observes handler failures without affecting future cycles.
type ErrorFunc func(identity string, err error)

// Debouncer owns the per-identity pending queues and timer handles. All
// state lives on the instance so it can be injected and torn down with the
// owning service.
type Debouncer struct {
	quiet   time.Duration
	handler Handler
	onError ErrorFunc
	logger  *logging.Logger

	mu      sync.Mutex
	pending map[string]*entry
	gen     uint64
	closed  bool
}

// entry tracks one identity's batch. gen invalidates timers that lost the
// cancellation race: a fired timer whose gen no longer matches is a no-op.
// Generations come from the Debouncer's single counter, so an entry
// recreated after a flush can never collide with a stale timer's gen.
type entry struct {
	fragments []string
	timer     *time.Timer
	gen       uint64
}

// Option customizes a Debouncer.
type Option func(*Debouncer)

// WithErrorFunc registers a callback invoked when the downstream handler
// returns an error.
func WithErrorFunc(fn ErrorFunc) Option {
	return func(d *Debouncer) {
		d.onError = fn
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *logging.Logger) Option {
	return func(d *Debouncer) {
		d.logger = logger
	}
}

// New creates a Debouncer that waits quiet after the last message before
// invoking handler once with the space-joined batch.
func New(quiet time.Duration, handler Handler, opts ...Option) *Debouncer {
	if quiet <= 0 {
		quiet = 3 * time.Second
	}
	if handler == nil {
		panic("debounce: handler cannot be nil")
	}
	d := &Debouncer{
		quiet:   quiet,
		handler: handler,
		logger:  logging.Default(),
		pending: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnMessage appends text to the identity's pending queue and restarts its
// quiet-period timer. Each arrival supersedes any previously scheduled
// flush, so the timer always measures from the most recent message.
func (d *Debouncer) OnMessage(identity, text string) {
	text = strings.TrimSpace(text)
	if identity == "" || text == "" {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	e, ok := d.pending[identity]
	if !ok {
		e = &entry{}
		d.pending[identity] = e
	}
	e.fragments = append(e.fragments, text)

	if e.timer != nil {
		e.timer.Stop()
	}
	d.gen++
	gen := d.gen
	e.gen = gen
	e.timer = time.AfterFunc(d.quiet, func() {
		d.flush(identity, gen)
	})
}

// flush drains the identity's queue and invokes the handler once. The
// snapshot, clear, and timer-record removal happen under the lock; the
// handler runs outside it so other identities and later arrivals for this
// one are never blocked on downstream I/O.
func (d *Debouncer) flush(identity string, gen uint64) {
	d.mu.Lock()
	e, ok := d.pending[identity]
	if !ok || e.gen != gen {
		// A newer arrival rescheduled after this timer fired, or the
		// batch was already drained. Normal no-op path.
		d.mu.Unlock()
		return
	}
	fragments := e.fragments
	delete(d.pending, identity)
	d.mu.Unlock()

	if len(fragments) == 0 {
		return
	}

	merged := strings.Join(fragments, " ")
	if err := d.handler(identity, merged); err != nil {
		d.logger.Error("debounce: downstream handler failed",
			"identity", identity,
			"fragments", len(fragments),
			"error", err,
		)
		if d.onError != nil {
			d.onError(identity, err)
		}
	}
}

// Pending reports how many fragments are queued for the identity.
func (d *Debouncer) Pending(identity string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.pending[identity]; ok {
		return len(e.fragments)
	}
	return 0
}

// Close cancels all live timers and drops queued fragments. Messages that
// arrive after Close are ignored.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for identity, e := range d.pending {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(d.pending, identity)
	}
}
