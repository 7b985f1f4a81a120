// Package circuit guards storage calls with a circuit breaker so that an
// unreachable backend fails fast instead of stalling every observed read.
package circuit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	obserrors "github.com/observefs/observefs/pkg/errors"
)

// State represents the circuit breaker state
type State int

const (
	// StateClosed - requests pass through
	StateClosed State = iota
	// StateOpen - requests are rejected
	StateOpen
	// StateHalfOpen - a limited number of probe requests pass through
	StateHalfOpen
)

// String returns string representation of state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config contains circuit breaker configuration
type Config struct {
	Enabled bool `yaml:"enabled"`

	// Consecutive failures that trip a closed breaker.
	FailureThreshold uint32 `yaml:"failure_threshold"`

	// Probe requests allowed while half-open.
	MaxRequests uint32 `yaml:"max_requests"`

	// Period of the closed state after which the counts are cleared.
	Interval time.Duration `yaml:"interval"`

	// Period of the open state after which the breaker enters half-open.
	Timeout time.Duration `yaml:"timeout"`

	// IsSuccessful decides whether an error counts as a failure. Nil uses
	// IsStorageSuccess.
	IsSuccessful func(err error) bool `yaml:"-"`
}

// DefaultConfig returns the default breaker configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		FailureThreshold: 5,
		MaxRequests:      1,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
	}
}

// Counts holds the numbers of requests and their successes/failures
type Counts struct {
	Requests             uint32 `json:"requests"`
	TotalSuccesses       uint32 `json:"total_successes"`
	TotalFailures        uint32 `json:"total_failures"`
	ConsecutiveSuccesses uint32 `json:"consecutive_successes"`
	ConsecutiveFailures  uint32 `json:"consecutive_failures"`
}

// Breaker implements the circuit breaker pattern
type Breaker struct {
	name   string
	config Config
	log    logrus.FieldLogger
	now    func() time.Time

	mu     sync.Mutex
	state  State
	counts Counts
	expiry time.Time
}

// Errors
var (
	// ErrOpenState is returned when the breaker is open
	ErrOpenState = errors.New("circuit breaker is open")

	// ErrTooManyRequests is returned when too many probes are in flight
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// New creates a closed breaker. Zero values in config take the defaults.
func New(name string, config Config, log logrus.FieldLogger) *Breaker {
	def := DefaultConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.MaxRequests == 0 {
		config.MaxRequests = def.MaxRequests
	}
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.IsSuccessful == nil {
		config.IsSuccessful = IsStorageSuccess
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	b := &Breaker{
		name:   name,
		config: config,
		log:    log.WithFields(logrus.Fields{"component": "circuit-breaker", "breaker": name}),
		now:    time.Now,
		state:  StateClosed,
	}
	b.expiry = b.now().Add(config.Interval)
	return b
}

// IsStorageSuccess treats nil and every error the storage service answered
// deliberately (missing objects, denied access, canceled requests) as
// success. Only transport and server failures count against the breaker.
func IsStorageSuccess(err error) bool {
	if err == nil {
		return true
	}
	switch obserrors.CodeOf(err) {
	case obserrors.ErrCodeObjectNotFound,
		obserrors.ErrCodeBucketNotFound,
		obserrors.ErrCodeFileNotFound,
		obserrors.ErrCodeAccessDenied,
		obserrors.ErrCodePathInvalid,
		obserrors.ErrCodeOperationCanceled:
		return true
	}
	return false
}

// Execute runs fn if the breaker allows it. A rejected call returns a
// CONNECTION_FAILED error wrapping ErrOpenState or ErrTooManyRequests.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.beforeRequest(); err != nil {
		return obserrors.Newf(obserrors.ErrCodeConnectionFailed, "%s unavailable", b.name).
			WithComponent("circuit-breaker").
			WithCause(err)
	}

	err := fn(ctx)
	b.afterRequest(err)
	return err
}

func (b *Breaker) beforeRequest() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.currentState(b.now())
	if state == StateOpen {
		return ErrOpenState
	}
	if state == StateHalfOpen && b.counts.Requests >= b.config.MaxRequests {
		return ErrTooManyRequests
	}

	b.counts.Requests++
	return nil
}

func (b *Breaker) afterRequest(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	state := b.currentState(now)

	if b.config.IsSuccessful(err) {
		b.counts.onSuccess()
		if state == StateHalfOpen {
			b.setState(StateClosed, now)
		}
		return
	}

	b.counts.onFailure()
	switch state {
	case StateClosed:
		if b.counts.ConsecutiveFailures >= b.config.FailureThreshold {
			b.setState(StateOpen, now)
		}
	case StateHalfOpen:
		b.setState(StateOpen, now)
	}
}

func (b *Breaker) currentState(now time.Time) State {
	switch b.state {
	case StateClosed:
		if b.expiry.Before(now) {
			b.counts = Counts{}
			b.expiry = now.Add(b.config.Interval)
		}
	case StateOpen:
		if b.expiry.Before(now) {
			b.setState(StateHalfOpen, now)
		}
	}
	return b.state
}

func (b *Breaker) setState(state State, now time.Time) {
	if b.state == state {
		return
	}
	prev := b.state
	b.state = state
	b.counts = Counts{}

	switch state {
	case StateClosed:
		b.expiry = now.Add(b.config.Interval)
	case StateOpen:
		b.expiry = now.Add(b.config.Timeout)
	case StateHalfOpen:
		b.expiry = time.Time{}
	}

	entry := b.log.WithFields(logrus.Fields{"from": prev.String(), "to": state.String()})
	if state == StateOpen {
		entry.Warn("Circuit breaker opened")
	} else {
		entry.Info("Circuit breaker state changed")
	}
}

// State returns the current state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState(b.now())
}

// Counts returns a copy of the current counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Reset closes the breaker and clears its counts.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setState(StateClosed, b.now())
	b.counts = Counts{}
}

// Name returns the name of the breaker
func (b *Breaker) Name() string {
	return b.name
}

func (c *Counts) onSuccess() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) onFailure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}
