// Package flaky models a one-shot asynchronous fetch that fails a
// configurable number of times before it succeeds. It exists to exercise
// retry and fallback composition deterministically.
package flaky

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/NethermindEth/demandflow/stream"
	"github.com/NethermindEth/demandflow/utils"
	"github.com/NethermindEth/demandflow/validator"
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

type Quality int

const (
	High Quality = iota
	Low
)

var ErrUnknownQuality = errors.New("unknown quality (known: high, low)")

func (q Quality) String() string {
	switch q {
	case High:
		return "high"
	case Low:
		return "low"
	default:
		return fmt.Sprintf("quality(%d)", int(q))
	}
}

func (q *Quality) Set(s string) error {
	switch strings.ToLower(s) {
	case "high":
		*q = High
	case "low":
		*q = Low
	default:
		return ErrUnknownQuality
	}
	return nil
}

func (q *Quality) Type() string {
	return "Quality"
}

func (q Quality) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

func (q *Quality) UnmarshalText(text []byte) error {
	return q.Set(string(text))
}

// AlwaysFail as FailingTimes makes every attempt fail.
const AlwaysFail = -1

type Config struct {
	Quality Quality `mapstructure:"quality" validate:"oneof=0 1"`
	// FailingTimes is how many firings fail before the first success.
	// Zero never fails.
	FailingTimes int           `mapstructure:"failing-times" validate:"gte=-1"`
	MinDelay     time.Duration `mapstructure:"min-delay" validate:"gte=0"`
	MaxDelay     time.Duration `mapstructure:"max-delay" validate:"gtefield=MinDelay"`
}

// FetchError is the failure a Source completes with.
type FetchError struct {
	Quality Quality
	Attempt int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s quality fetch failed on attempt %d", e.Quality, e.Attempt)
}

type options struct {
	rand *rand.Rand
	log  utils.SimpleLogger
}

type Option func(*options)

// WithRand sets the source of delay randomness.
func WithRand(r *rand.Rand) Option {
	return func(o *options) {
		o.rand = r
	}
}

func WithLogger(log utils.SimpleLogger) Option {
	return func(o *options) {
		o.log = log
	}
}

// Source delivers value once per subscription after a random delay, unless
// the attempt is one of the first FailingTimes attempts of this Source, in
// which case it fails with a *FetchError. Attempts are counted across all
// subscriptions.
type Source[T any] struct {
	cfg   Config
	value T
	clk   clock.Clock
	log   utils.SimpleLogger

	randMu sync.Mutex
	rand   *rand.Rand

	mu       sync.Mutex
	attempts int
}

var _ stream.Publisher[int] = (*Source[int])(nil)

func New[T any](cfg Config, value T, clk clock.Clock, opts ...Option) (*Source[T], error) {
	if err := validator.Validator().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid flaky config")
	}
	o := options{log: utils.NewNopZapLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rand == nil {
		o.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &Source[T]{
		cfg:   cfg,
		value: value,
		clk:   clk,
		log:   o.log,
		rand:  o.rand,
	}, nil
}

// Attempts returns how many scheduled fetches have fired so far.
func (s *Source[T]) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *Source[T]) Subscribe(sub stream.Subscriber[T]) {
	f := &fetch[T]{src: s, sub: sub}
	sub.OnSubscribe(f)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelled || f.done {
		return
	}
	delay := s.delay()
	f.timer = s.clk.AfterFunc(delay, f.fire)
	s.log.Debugw("Fetch scheduled", "quality", s.cfg.Quality, "delay", delay)
}

func (s *Source[T]) delay() time.Duration {
	spread := s.cfg.MaxDelay - s.cfg.MinDelay
	if spread <= 0 {
		return s.cfg.MinDelay
	}
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return s.cfg.MinDelay + time.Duration(s.rand.Int64N(int64(spread)+1))
}

// nextAttempt counts a firing and reports whether it fails.
func (s *Source[T]) nextAttempt() (attempt int, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	attempt = s.attempts
	fail = s.cfg.FailingTimes == AlwaysFail || attempt <= s.cfg.FailingTimes
	return attempt, fail
}

// fetch is the subscription of one subscriber.
// - ready:     the delay elapsed successfully and value awaits demand.
// - done:      a terminal event was delivered or is being delivered.
// - cancelled: Cancel was called.
type fetch[T any] struct {
	src *Source[T]
	sub stream.Subscriber[T]

	mu        sync.Mutex // protects everything below
	timer     *clock.Timer
	demand    stream.Demand
	ready     bool
	done      bool
	cancelled bool
}

func (f *fetch[T]) fire() {
	f.mu.Lock()
	if f.cancelled || f.done {
		f.mu.Unlock()
		return
	}
	f.timer = nil
	attempt, fail := f.src.nextAttempt()
	f.src.log.Debugw("Fetch fired", "quality", f.src.cfg.Quality, "attempt", attempt, "failed", fail)
	if fail {
		f.done = true
		f.mu.Unlock()
		f.sub.OnComplete(stream.Failure(&FetchError{Quality: f.src.cfg.Quality, Attempt: attempt}))
		return
	}
	f.ready = true
	f.deliver()
}

// deliver must be called with f.mu held, and releases it.
func (f *fetch[T]) deliver() {
	if !f.ready || f.done || f.cancelled || f.demand.IsNone() {
		f.mu.Unlock()
		return
	}
	f.done = true
	f.mu.Unlock()

	f.sub.OnNext(f.src.value)
	f.sub.OnComplete(stream.Finished)
}

func (f *fetch[T]) Request(d stream.Demand) {
	f.mu.Lock()
	f.demand = f.demand.Add(d)
	f.deliver()
}

func (f *fetch[T]) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelled {
		return
	}
	f.cancelled = true
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}
