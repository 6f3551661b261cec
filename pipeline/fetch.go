package pipeline

import (
	"context"
	"slices"

	"github.com/NethermindEth/demandflow/flaky"
	"github.com/NethermindEth/demandflow/operator"
	"github.com/NethermindEth/demandflow/stream"
	"github.com/NethermindEth/demandflow/utils"
	"github.com/NethermindEth/demandflow/validator"
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/pool"
)

const (
	highValue = "high quality result"
	lowValue  = "low quality result"
)

type FetchResult struct {
	Request  int    `yaml:"request"`
	Value    string `yaml:"value"`
	Source   string `yaml:"source"`
	Attempts int    `yaml:"attempts"`
}

type FetchReport struct {
	Results      []FetchResult `yaml:"results"`
	HighAttempts int           `yaml:"high_attempts"`
	LowAttempts  int           `yaml:"low_attempts"`
}

// RunFetch issues cfg.Requests concurrent fetches against one shared high
// quality source. Each fetch retries the high quality source cfg.Retries
// times, then falls back to the low quality source, and finally to
// cfg.Placeholder. The failure budgets of both sources are shared by all
// requests.
func RunFetch(ctx context.Context, cfg FetchConfig, clk clock.Clock, log utils.SimpleLogger) (*FetchReport, error) {
	if err := validator.Validator().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid fetch config")
	}
	high, err := flaky.New(cfg.High, highValue, clk, flaky.WithLogger(log))
	if err != nil {
		return nil, err
	}
	low, err := flaky.New(cfg.Low, lowValue, clk, flaky.WithLogger(log))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	p := pool.NewWithResults[FetchResult]().WithErrors().WithContext(ctx)
	for i := range cfg.Requests {
		p.Go(func(ctx context.Context) (FetchResult, error) {
			return fetchOne(ctx, i, cfg, high, low, log)
		})
	}
	results, err := p.Wait()
	if err != nil {
		return nil, errors.Wrap(err, "fetch failed")
	}

	slices.SortFunc(results, func(a, b FetchResult) int {
		return a.Request - b.Request
	})
	return &FetchReport{
		Results:      results,
		HighAttempts: high.Attempts(),
		LowAttempts:  low.Attempts(),
	}, nil
}

func fetchOne(ctx context.Context, request int, cfg FetchConfig, high, low stream.Publisher[string],
	log utils.SimpleLogger,
) (FetchResult, error) {
	result := FetchResult{Request: request}

	attempted := operator.HandleEvents(high, operator.Events[string]{
		Subscribe: func(stream.Subscription) {
			result.Attempts++
			log.Debugw("Fetching", "request", request, "attempt", result.Attempts)
		},
		Complete: func(c stream.Completion) {
			if c.IsFailure() {
				log.Debugw("Fetch attempt failed", "request", request, "err", c.Err())
			}
		},
	})
	fallback := operator.Catch(operator.Retry(attempted, cfg.Retries), func(err error) stream.Publisher[string] {
		log.Debugw("Falling back to low quality", "request", request, "err", err)
		return low
	})
	final := operator.ReplaceError(fallback, cfg.Placeholder)

	done := make(chan stream.Completion, 1)
	sink := stream.SinkTo(final, func(v string) {
		result.Value = v
	}, func(c stream.Completion) {
		done <- c
	})

	select {
	case c := <-done:
		if c.IsFailure() {
			return result, errors.Wrapf(c.Err(), "request %d", request)
		}
	case <-ctx.Done():
		sink.Cancel()
		return FetchResult{Request: request}, errors.Wrapf(ctx.Err(), "request %d", request)
	}

	switch result.Value {
	case highValue:
		result.Source = flaky.High.String()
	case lowValue:
		result.Source = flaky.Low.String()
	default:
		result.Source = "placeholder"
	}
	log.Infow("Fetch done", "request", request, "source", result.Source, "attempts", result.Attempts)
	return result, nil
}
