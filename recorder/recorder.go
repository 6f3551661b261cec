// Package recorder traces values through a pipeline. Start tags each fresh
// value with an index and a first step; every Follow downstream appends a
// step, so that the full path of a value, with timestamps, can be inspected
// once it has been consumed.
package recorder

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/NethermindEth/demandflow/operator"
	"github.com/NethermindEth/demandflow/stream"
	"github.com/benbjohnson/clock"
)

type Event int

const (
	Value Event = iota
	Finished
	Failed
)

func (e Event) String() string {
	switch e {
	case Value:
		return "value"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

func completionEvent(c stream.Completion) Event {
	if c.IsFailure() {
		return Failed
	}
	return Finished
}

// Step is one point a value or completion passed.
type Step struct {
	Label string
	Time  time.Time
	Event Event
}

// Trace is a value together with the steps it has passed so far.
type Trace[T any] struct {
	Index int
	Value T
	Steps []Step
}

func (t Trace[T]) String() string {
	labels := make([]string, len(t.Steps))
	for i, s := range t.Steps {
		labels[i] = s.Label
	}
	return fmt.Sprintf("#%d %v: %s", t.Index, t.Value, strings.Join(labels, " -> "))
}

// Chain is the latest recorded path of the value with the given index.
type Chain struct {
	Index int
	Steps []Step
}

type Recorder struct {
	clk clock.Clock

	mu          sync.Mutex // protects chains and completions
	chains      map[int][]Step
	completions []Step
}

func New(clk clock.Clock) *Recorder {
	return &Recorder{
		clk:    clk,
		chains: make(map[int][]Step),
	}
}

func (r *Recorder) step(label string, e Event) Step {
	return Step{Label: label, Time: r.clk.Now(), Event: e}
}

func (r *Recorder) record(index int, steps []Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains[index] = steps
}

func (r *Recorder) complete(s Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completions = append(r.completions, s)
}

// Chains returns every recorded path, sorted by index.
func (r *Recorder) Chains() []Chain {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Chain, 0, len(r.chains))
	for index, steps := range r.chains {
		out = append(out, Chain{Index: index, Steps: slices.Clone(steps)})
	}
	slices.SortFunc(out, func(a, b Chain) int {
		return cmp.Compare(a.Index, b.Index)
	})
	return out
}

// Completions returns the completion steps seen by Start and Follow, in order.
func (r *Recorder) Completions() []Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.completions)
}

type start[T any] struct {
	p     stream.Publisher[T]
	rec   *Recorder
	label string
}

// Start tags the values of p with consecutive indexes, per subscription.
func Start[T any](p stream.Publisher[T], rec *Recorder, label string) stream.Publisher[Trace[T]] {
	return start[T]{p: p, rec: rec, label: label}
}

func (s start[T]) Subscribe(sub stream.Subscriber[Trace[T]]) {
	var index int
	traced := operator.Map(s.p, func(v T) Trace[T] {
		t := Trace[T]{
			Index: index,
			Value: v,
			Steps: []Step{s.rec.step(s.label, Value)},
		}
		index++
		s.rec.record(t.Index, t.Steps)
		return t
	})
	observe(s.rec, traced, s.label).Subscribe(sub)
}

// Follow appends a step labelled label to every trace passing through.
func Follow[T any](p stream.Publisher[Trace[T]], rec *Recorder, label string) stream.Publisher[Trace[T]] {
	traced := operator.Map(p, func(t Trace[T]) Trace[T] {
		steps := make([]Step, len(t.Steps), len(t.Steps)+1)
		copy(steps, t.Steps)
		t.Steps = append(steps, rec.step(label, Value))
		rec.record(t.Index, t.Steps)
		return t
	})
	return observe(rec, traced, label)
}

func observe[T any](r *Recorder, p stream.Publisher[Trace[T]], label string) stream.Publisher[Trace[T]] {
	return operator.HandleEvents(p, operator.Events[Trace[T]]{
		Complete: func(c stream.Completion) {
			r.complete(r.step(label, completionEvent(c)))
		},
	})
}
