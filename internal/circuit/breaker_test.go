package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	obserrors "github.com/observefs/observefs/pkg/errors"
)

var errBackend = obserrors.NewError(obserrors.ErrCodeStorageRead, "backend down")

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBreaker(t *testing.T, config Config) (*Breaker, *fakeClock) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := New("s3", config, logger)
	b.now = clock.Now
	b.expiry = clock.now.Add(b.config.Interval)
	return b, clock
}

func fail(context.Context) error    { return errBackend }
func succeed(context.Context) error { return nil }

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{State(999), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	b := New("test", Config{}, nil)
	if b.Name() != "test" {
		t.Errorf("Name() = %q, want %q", b.Name(), "test")
	}
	if b.State() != StateClosed {
		t.Errorf("initial state = %v, want %v", b.State(), StateClosed)
	}
	if b.config.FailureThreshold != 5 {
		t.Errorf("default FailureThreshold = %d, want 5", b.config.FailureThreshold)
	}
	if b.config.Timeout != 30*time.Second {
		t.Errorf("default Timeout = %v, want %v", b.config.Timeout, 30*time.Second)
	}
	if b.config.IsSuccessful == nil {
		t.Error("default IsSuccessful should not be nil")
	}
}

func TestBreaker_TripsAndRecovers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b, clock := newTestBreaker(t, Config{FailureThreshold: 3, Timeout: 10 * time.Second})

	for i := 0; i < 3; i++ {
		if err := b.Execute(ctx, fail); !errors.Is(err, errBackend) {
			t.Fatalf("Execute() error = %v, want backend error", err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state after failures = %v, want open", b.State())
	}

	called := false
	err := b.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	if called {
		t.Error("open breaker should not call the function")
	}
	if !errors.Is(err, ErrOpenState) {
		t.Errorf("Execute() error = %v, want ErrOpenState", err)
	}
	if code := obserrors.CodeOf(err); code != obserrors.ErrCodeConnectionFailed {
		t.Errorf("rejection code = %s, want %s", code, obserrors.ErrCodeConnectionFailed)
	}

	clock.Advance(11 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("state after timeout = %v, want half_open", b.State())
	}

	if err := b.Execute(ctx, succeed); err != nil {
		t.Fatalf("probe error = %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state after successful probe = %v, want closed", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b, clock := newTestBreaker(t, Config{FailureThreshold: 1, Timeout: time.Second})

	_ = b.Execute(ctx, fail)
	clock.Advance(2 * time.Second)

	if err := b.Execute(ctx, fail); !errors.Is(err, errBackend) {
		t.Fatalf("probe error = %v, want backend error", err)
	}
	if b.State() != StateOpen {
		t.Errorf("state after failed probe = %v, want open", b.State())
	}
}

func TestBreaker_HalfOpenLimitsProbes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b, clock := newTestBreaker(t, Config{FailureThreshold: 1, Timeout: time.Second})

	_ = b.Execute(ctx, fail)
	clock.Advance(2 * time.Second)

	err := b.Execute(ctx, func(ctx context.Context) error {
		if inner := b.Execute(ctx, succeed); !errors.Is(inner, ErrTooManyRequests) {
			t.Errorf("concurrent probe error = %v, want ErrTooManyRequests", inner)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("probe error = %v", err)
	}
}

func TestBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b, _ := newTestBreaker(t, Config{FailureThreshold: 2})

	notFound := obserrors.NewError(obserrors.ErrCodeObjectNotFound, "missing")
	for i := 0; i < 5; i++ {
		_ = b.Execute(ctx, func(context.Context) error { return notFound })
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
	if got := b.Counts().TotalSuccesses; got != 5 {
		t.Errorf("TotalSuccesses = %d, want 5", got)
	}
}

func TestBreaker_IntervalClearsCounts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b, clock := newTestBreaker(t, Config{FailureThreshold: 2, Interval: time.Minute})

	_ = b.Execute(ctx, fail)
	clock.Advance(2 * time.Minute)
	_ = b.Execute(ctx, fail)

	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
	if got := b.Counts().ConsecutiveFailures; got != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", got)
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(t, Config{FailureThreshold: 1})
	_ = b.Execute(context.Background(), fail)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	b.Reset()
	if b.State() != StateClosed {
		t.Errorf("state after Reset = %v, want closed", b.State())
	}
	if b.Counts() != (Counts{}) {
		t.Errorf("counts after Reset = %+v", b.Counts())
	}
}

func TestIsStorageSuccess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{nil, true},
		{obserrors.NewError(obserrors.ErrCodeObjectNotFound, "x"), true},
		{obserrors.NewError(obserrors.ErrCodeAccessDenied, "x"), true},
		{obserrors.NewError(obserrors.ErrCodeOperationCanceled, "x"), true},
		{obserrors.NewError(obserrors.ErrCodeStorageRead, "x"), false},
		{obserrors.NewError(obserrors.ErrCodeStorageList, "x"), false},
		{errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		if got := IsStorageSuccess(tt.err); got != tt.want {
			t.Errorf("IsStorageSuccess(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
