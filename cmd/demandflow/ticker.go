package main

import (
	"github.com/NethermindEth/demandflow/pipeline"
	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
)

const (
	intervalF    = "interval"
	leewayF      = "leeway"
	maxCountF    = "max-count"
	capacityF    = "capacity"
	lateAfterF   = "late-after"
	pauseEveryF  = "pause-every"
	resumeEveryF = "resume-every"

	intervalUsage    = "Time between two ticks."
	leewayUsage      = "How late a tick may fire. Must not exceed the interval."
	maxCountUsage    = "Number of ticks emitted before the timer completes."
	capacityUsage    = "Number of ticks the hub replays to a consumer that attaches late."
	lateAfterUsage   = "Ticks the first consumer receives before the late consumer attaches."
	pauseEveryUsage  = "The pausable consumer pauses on every n-th tick."
	resumeEveryUsage = "How often the pausable consumer is resumed."
)

func newTickerCmd(load loader) *cobra.Command {
	defaults := pipeline.DefaultConfig().Ticker
	maxCount := defaults.MaxCount

	cmd := &cobra.Command{
		Use:   "ticker [flags]",
		Short: "Share one timer between an early, a late and a pausable consumer.",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().Duration(intervalF, defaults.Interval, intervalUsage)
	cmd.Flags().Duration(leewayF, defaults.Leeway, leewayUsage)
	cmd.Flags().Var(&maxCount, maxCountF, maxCountUsage)
	cmd.Flags().Int(capacityF, defaults.Capacity, capacityUsage)
	cmd.Flags().Int(lateAfterF, defaults.LateAfter, lateAfterUsage)
	cmd.Flags().Int(pauseEveryF, defaults.PauseEvery, pauseEveryUsage)
	cmd.Flags().Duration(resumeEveryF, defaults.ResumeEvery, resumeEveryUsage)

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		e, stop, err := load(cmd, prefixed("ticker.", intervalF, leewayF, maxCountF, capacityF, lateAfterF,
			pauseEveryF, resumeEveryF))
		if err != nil {
			return err
		}
		defer stop()

		report, err := pipeline.RunTicker(cmd.Context(), e.cfg.Ticker, clock.New(), e.log, e.factory)
		if err != nil {
			return err
		}
		return writeTickerReport(cmd.OutOrStdout(), e.cfg.Output, report)
	}
	return cmd
}

// prefixed maps every flag name to prefix+name.
func prefixed(prefix string, names ...string) map[string]string {
	keys := make(map[string]string, len(names))
	for _, name := range names {
		keys[name] = prefix + name
	}
	return keys
}
