// Package pipeline assembles the streaming components into the two runnable
// scenarios: a shared ticker with several consumers, and a flaky fetch with
// retry and fallback.
package pipeline

import (
	"reflect"
	"time"

	"github.com/NethermindEth/demandflow/flaky"
	"github.com/NethermindEth/demandflow/stream"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

type Config struct {
	Ticker TickerConfig `mapstructure:"ticker"`
	Fetch  FetchConfig  `mapstructure:"fetch"`
}

type TickerConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
	Leeway   time.Duration `mapstructure:"leeway" validate:"gte=0,ltefield=Interval"`
	MaxCount stream.Demand `mapstructure:"max-count" validate:"min=1,bounded"`
	// Capacity is the number of ticks replayed to the late consumer.
	Capacity int `mapstructure:"capacity" validate:"gte=0"`
	// LateAfter is how many ticks the first consumer sees before the late
	// consumer attaches.
	LateAfter int `mapstructure:"late-after" validate:"gte=0"`
	// PauseEvery makes the pausable consumer pause on every n-th tick.
	PauseEvery  int           `mapstructure:"pause-every" validate:"gte=1"`
	ResumeEvery time.Duration `mapstructure:"resume-every" validate:"gt=0"`
}

type FetchConfig struct {
	Requests    int           `mapstructure:"requests" validate:"gte=1"`
	Retries     int           `mapstructure:"retries" validate:"gte=0"`
	High        flaky.Config  `mapstructure:"high"`
	Low         flaky.Config  `mapstructure:"low"`
	Placeholder string        `mapstructure:"placeholder"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

func DefaultConfig() Config {
	return Config{
		Ticker: TickerConfig{
			Interval:    time.Second,
			MaxCount:    stream.Max(10),
			Capacity:    2,
			LateAfter:   4,
			PauseEvery:  3,
			ResumeEvery: 2 * time.Second,
		},
		Fetch: FetchConfig{
			Requests: 3,
			Retries:  2,
			High: flaky.Config{
				Quality:      flaky.High,
				FailingTimes: 4,
				MinDelay:     100 * time.Millisecond,
				MaxDelay:     500 * time.Millisecond,
			},
			Low: flaky.Config{
				Quality:      flaky.Low,
				FailingTimes: 0,
				MinDelay:     50 * time.Millisecond,
				MaxDelay:     200 * time.Millisecond,
			},
			Placeholder: "placeholder",
			Timeout:     10 * time.Second,
		},
	}
}

var demandType = reflect.TypeOf(stream.Demand{})

// DecodeHook converts configuration values into durations, text-decoded
// types such as stream.Demand and flaky.Quality, and plain integers into a
// bounded stream.Demand.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
		integerToDemandHookFunc(),
	)
}

func integerToDemandHookFunc() mapstructure.DecodeHookFuncType {
	return func(f, t reflect.Type, data any) (any, error) {
		if t != demandType {
			return data, nil
		}
		v := reflect.ValueOf(data)
		switch f.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if v.Int() < 0 {
				return nil, errors.Errorf("negative demand %d", v.Int())
			}
			return stream.Max(uint64(v.Int())), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return stream.Max(v.Uint()), nil
		case reflect.Float32, reflect.Float64:
			if v.Float() < 0 || v.Float() != float64(uint64(v.Float())) {
				return nil, errors.Errorf("demand %v is not a count", v.Float())
			}
			return stream.Max(uint64(v.Float())), nil
		default:
			return data, nil
		}
	}
}
