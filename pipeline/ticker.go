package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/NethermindEth/demandflow/broadcast"
	"github.com/NethermindEth/demandflow/metrics"
	"github.com/NethermindEth/demandflow/pausable"
	"github.com/NethermindEth/demandflow/pubsub"
	"github.com/NethermindEth/demandflow/recorder"
	"github.com/NethermindEth/demandflow/stream"
	"github.com/NethermindEth/demandflow/timer"
	"github.com/NethermindEth/demandflow/utils"
	"github.com/NethermindEth/demandflow/validator"
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/sourcegraph/conc"
)

type tick = recorder.Trace[time.Time]

type ConsumerReport struct {
	Name       string `yaml:"name"`
	Received   int    `yaml:"received"`
	FirstIndex int    `yaml:"first_index"`
	LastIndex  int    `yaml:"last_index"`
	Pauses     int    `yaml:"pauses"`
	Completion string `yaml:"completion"`
}

type TickerReport struct {
	Consumers []ConsumerReport `yaml:"consumers"`
	Ticks     int              `yaml:"ticks"`
	Elapsed   time.Duration    `yaml:"elapsed"`
}

// consumer tallies the ticks one subscriber received.
type consumer struct {
	name string

	mu         sync.Mutex
	received   int
	first      int
	last       int
	pauses     int
	completion string
	done       chan struct{}
}

func newConsumer(name string) *consumer {
	return &consumer{name: name, first: -1, last: -1, done: make(chan struct{})}
}

func (c *consumer) value(t tick) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received++
	if c.first < 0 {
		c.first = t.Index
	}
	c.last = t.Index
	return c.received
}

func (c *consumer) pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pauses++
}

func (c *consumer) complete(completion stream.Completion) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completion = completion.String()
	close(c.done)
}

func (c *consumer) report() ConsumerReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConsumerReport{
		Name:       c.name,
		Received:   c.received,
		FirstIndex: c.first,
		LastIndex:  c.last,
		Pauses:     c.pauses,
		Completion: c.completion,
	}
}

// RunTicker shares one timer between three consumers through a broadcast hub.
// The first consumer is attached at once. The late consumer attaches after the
// first has seen cfg.LateAfter ticks and starts with the hub's replay of the
// last cfg.Capacity ticks. The pausable consumer pauses on every
// cfg.PauseEvery-th tick and is resumed every cfg.ResumeEvery.
func RunTicker(ctx context.Context, cfg TickerConfig, clk clock.Clock, log utils.SimpleLogger,
	factory metrics.Factory,
) (*TickerReport, error) {
	if err := validator.Validator().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid ticker config")
	}
	src, err := timer.New(timer.Config{
		Interval: cfg.Interval,
		Leeway:   cfg.Leeway,
		MaxCount: cfg.MaxCount,
	}, clk, log)
	if err != nil {
		return nil, err
	}

	rec := recorder.New(clk)
	hub := broadcast.New[tick](recorder.Start[time.Time](src, rec, "timer"), cfg.Capacity,
		broadcast.WithLogger(log), broadcast.WithMetrics(factory, "ticker"))
	registry := pubsub.New(log)
	defer registry.CancelAll()
	start := clk.Now()

	first, late, paused := newConsumer("first"), newConsumer("late"), newConsumer("pausable")

	var lateOnce sync.Once
	attachLate := func() {
		lateOnce.Do(func() {
			log.Debugw("Attaching late consumer", "edges", hub.Edges())
			sink := stream.NewSink(func(t tick) { late.value(t) }, late.complete)
			stream.Subscribe[tick](recorder.Follow[time.Time](hub, rec, late.name), sink)
			registry.Add(ctx, sink)
		})
	}
	if cfg.LateAfter == 0 {
		attachLate()
	}

	firstSink := stream.NewSink(func(t tick) {
		if first.value(t) == cfg.LateAfter {
			attachLate()
		}
	}, func(c stream.Completion) {
		first.complete(c)
		// Attaching after completion yields the completion right away.
		attachLate()
	})
	registry.Add(ctx, stream.Subscribe[tick](recorder.Follow[time.Time](hub, rec, first.name), firstSink))

	pausing := pausable.Sink[tick](recorder.Follow[time.Time](hub, rec, paused.name), func(t tick) bool {
		if paused.value(t)%cfg.PauseEvery == 0 {
			paused.pause()
			return false
		}
		return true
	}, paused.complete)
	registry.Add(ctx, pausing)

	var wg conc.WaitGroup
	stopResume := make(chan struct{})
	wg.Go(func() {
		resume := clk.Ticker(cfg.ResumeEvery)
		defer resume.Stop()
		for {
			select {
			case <-stopResume:
				return
			case <-resume.C:
				if pausing.Paused() {
					pausing.Resume()
				}
			}
		}
	})
	defer func() {
		close(stopResume)
		wg.Wait()
	}()

	for _, c := range []*consumer{first, paused, late} {
		select {
		case <-c.done:
		case <-ctx.Done():
			hub.Disconnect()
			return nil, errors.Wrap(ctx.Err(), "ticker interrupted")
		}
	}

	return &TickerReport{
		Consumers: []ConsumerReport{first.report(), late.report(), paused.report()},
		Ticks:     len(rec.Chains()),
		Elapsed:   clk.Since(start),
	}, nil
}
