// Package resilience guards calls to the backing stores: a failure-ratio
// circuit breaker plus bounded retries with exponential backoff.
package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	// Closed accepts all requests and tracks failures.
	Closed State = iota
	// Open rejects requests until the cool-off period expires.
	Open
	// HalfOpen lets one probe through to test recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker opens when the failure ratio reaches the threshold after at least
// minRequests observations.
type Breaker struct {
	mu           sync.Mutex
	state        State
	failures     int
	successes    int
	minRequests  int
	failureRatio float64
	openedAt     time.Time
	openFor      time.Duration
	dependency   string
	logger       zerolog.Logger
	now          func() time.Time
}

// NewBreaker constructs a closed breaker for the named dependency.
func NewBreaker(dependency string, minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	if minRequests <= 0 {
		minRequests = 1
	}
	if failureRatio <= 0 {
		failureRatio = 0.5
	}
	failureRatio = math.Min(failureRatio, 1)
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	dependency = strings.TrimSpace(dependency)
	if dependency == "" {
		dependency = "default"
	}
	b := &Breaker{
		minRequests:  minRequests,
		failureRatio: failureRatio,
		openFor:      openFor,
		dependency:   dependency,
		logger:       zerolog.Nop(),
		now:          time.Now,
	}
	b.recordState()
	return b
}

// WithLogger configures the logger used for transition events.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	return b
}

// WithClock replaces the time source.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
	return b
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. An open breaker admits one probe
// once the cool-off has elapsed and moves to half-open.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.openFor {
			return false
		}
		b.transition(ctx, HalfOpen)
		return true
	case HalfOpen:
		return false
	default:
		return true
	}
}

// Report records the outcome of an admitted call.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		if success {
			b.transition(ctx, Closed)
		} else {
			b.transition(ctx, Open)
		}
		return
	}

	if success {
		b.successes++
	} else {
		b.failures++
	}
	total := b.failures + b.successes
	if total < b.minRequests {
		return
	}
	if float64(b.failures)/float64(total) >= b.failureRatio {
		b.transition(ctx, Open)
		return
	}
	if total > b.minRequests*2 {
		// decay so old outcomes stop dominating
		b.successes = int(math.Ceil(float64(b.successes) / 2))
		b.failures = int(math.Ceil(float64(b.failures) / 2))
	}
}

// Backoff returns base*2^(attempt-1), spread by jitter (0.2 == 20%).
func Backoff(base time.Duration, attempt int, jitter float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if jitter <= 0 {
		return d
	}
	delta := (rand.Float64()*2 - 1) * float64(d) * jitter
	return d + time.Duration(delta)
}

func (b *Breaker) transition(ctx context.Context, next State) {
	prev := b.state
	b.state = next
	b.failures, b.successes = 0, 0
	switch next {
	case Open:
		b.openedAt = b.now()
	case Closed:
		b.openedAt = time.Time{}
	}
	b.recordState()
	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(b.dependency, prev.String(), next.String()).Inc()
	}

	evt := b.logger.Warn()
	if next == Closed {
		evt = b.logger.Info()
	}
	evt = evt.Str("dependency", b.dependency).Str("from_state", prev.String()).Str("to_state", next.String())
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		evt = evt.Str("trace_id", span.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) recordState() {
	if BreakerState != nil {
		BreakerState.WithLabelValues(b.dependency).Set(float64(b.state))
	}
}
