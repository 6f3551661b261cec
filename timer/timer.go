// Package timer provides a publisher of clock ticks gated by demand and a
// maximum emission count.
package timer

import (
	"sync"
	"time"

	"github.com/NethermindEth/demandflow/stream"
	"github.com/NethermindEth/demandflow/utils"
	"github.com/NethermindEth/demandflow/validator"
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

type Config struct {
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
	// Leeway is how late a tick may fire. It is accepted for configuration
	// compatibility only; ticks are never coalesced.
	Leeway   time.Duration `mapstructure:"leeway" validate:"gte=0,ltefield=Interval"`
	MaxCount stream.Demand `mapstructure:"max-count"`
}

// Source publishes time.Time values on a fixed interval. Every subscription
// runs its own ticker and is completed once it has emitted MaxCount values.
type Source struct {
	cfg Config
	clk clock.Clock
	log utils.SimpleLogger
}

var _ stream.Publisher[time.Time] = (*Source)(nil)

func New(cfg Config, clk clock.Clock, log utils.SimpleLogger) (*Source, error) {
	if err := validator.Validator().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid timer config")
	}
	return &Source{cfg: cfg, clk: clk, log: log}, nil
}

func (s *Source) Subscribe(sub stream.Subscriber[time.Time]) {
	sub.OnSubscribe(&subscription{
		src:       s,
		sub:       sub,
		remaining: s.cfg.MaxCount,
	})
}

type state int

const (
	idle state = iota
	scheduled
	completed
)

type subscription struct {
	src *Source

	mu        sync.Mutex // protects everything below
	sub       stream.Subscriber[time.Time]
	state     state
	demand    stream.Demand
	remaining stream.Demand
	ticker    *clock.Ticker
	stop      chan struct{}
}

func (s *subscription) Request(d stream.Demand) {
	s.mu.Lock()
	if s.state == completed {
		s.mu.Unlock()
		return
	}
	if s.remaining.IsNone() {
		sub := s.teardown()
		s.mu.Unlock()
		sub.OnComplete(stream.Finished)
		return
	}

	s.demand = s.demand.Add(d)
	if s.state == idle {
		s.state = scheduled
		s.ticker = s.src.clk.Ticker(s.src.cfg.Interval)
		s.stop = make(chan struct{})
		go s.run(s.ticker, s.stop)
		s.src.log.Debugw("Timer armed", "interval", s.src.cfg.Interval, "leeway", s.src.cfg.Leeway,
			"remaining", s.remaining)
	}
	s.mu.Unlock()
}

func (s *subscription) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != completed {
		s.teardown()
		s.src.log.Debugw("Timer cancelled")
	}
}

func (s *subscription) run(ticker *clock.Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case t := <-ticker.C:
			s.tick(t)
		}
	}
}

// tick emits t if there is demand. A tick without demand is lost.
func (s *subscription) tick(t time.Time) {
	s.mu.Lock()
	if s.state != scheduled || s.demand.IsNone() {
		s.mu.Unlock()
		return
	}
	s.demand = s.demand.Decrement()
	s.remaining = s.remaining.Decrement()
	sub := s.sub
	last := s.remaining.IsNone()
	if last {
		s.teardown()
		s.src.log.Debugw("Timer exhausted", "maxCount", s.src.cfg.MaxCount)
	}
	s.mu.Unlock()

	more := sub.OnNext(t)
	if last {
		sub.OnComplete(stream.Finished)
		return
	}
	if !more.IsNone() {
		s.mu.Lock()
		if s.state == scheduled {
			s.demand = s.demand.Add(more)
		}
		s.mu.Unlock()
	}
}

// teardown stops the ticker and forgets the subscriber, returning it.
// It must be called with s.mu held.
func (s *subscription) teardown() stream.Subscriber[time.Time] {
	sub := s.sub
	s.sub = nil
	s.state = completed
	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.ticker = nil
	}
	return sub
}
