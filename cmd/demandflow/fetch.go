package main

import (
	"fmt"
	"maps"

	"github.com/NethermindEth/demandflow/flaky"
	"github.com/NethermindEth/demandflow/pipeline"
	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
)

const (
	requestsF    = "requests"
	retriesF     = "retries"
	placeholderF = "placeholder"
	timeoutF     = "timeout"

	failingTimesF = "failing-times"
	minDelayF     = "min-delay"
	maxDelayF     = "max-delay"

	requestsUsage     = "Number of concurrent fetches."
	retriesUsage      = "How often each fetch retries the high quality source."
	placeholderUsage  = "Value reported when both sources fail."
	timeoutUsage      = "Deadline for all fetches together."
	failingTimesUsage = "Attempts of the %s quality source that fail before it succeeds, -1 to always fail."
	minDelayUsage     = "Shortest delay of the %s quality source."
	maxDelayUsage     = "Longest delay of the %s quality source."
)

func newFetchCmd(load loader) *cobra.Command {
	defaults := pipeline.DefaultConfig().Fetch

	cmd := &cobra.Command{
		Use:   "fetch [flags]",
		Short: "Fetch from a flaky source with retry, fallback and a placeholder.",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().Int(requestsF, defaults.Requests, requestsUsage)
	cmd.Flags().Int(retriesF, defaults.Retries, retriesUsage)
	cmd.Flags().String(placeholderF, defaults.Placeholder, placeholderUsage)
	cmd.Flags().Duration(timeoutF, defaults.Timeout, timeoutUsage)

	keys := prefixed("fetch.", requestsF, retriesF, placeholderF, timeoutF)
	maps.Copy(keys, addSourceFlags(cmd, "high", defaults.High))
	maps.Copy(keys, addSourceFlags(cmd, "low", defaults.Low))

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		e, stop, err := load(cmd, keys)
		if err != nil {
			return err
		}
		defer stop()

		report, err := pipeline.RunFetch(cmd.Context(), e.cfg.Fetch, clock.New(), e.log)
		if err != nil {
			return err
		}
		return writeFetchReport(cmd.OutOrStdout(), e.cfg.Output, report)
	}
	return cmd
}

// addSourceFlags adds the flags of one flaky source, named after its quality,
// and returns their configuration keys.
func addSourceFlags(cmd *cobra.Command, quality string, defaults flaky.Config) map[string]string {
	flag := func(name string) string { return quality + "-" + name }
	cmd.Flags().Int(flag(failingTimesF), defaults.FailingTimes, fmt.Sprintf(failingTimesUsage, quality))
	cmd.Flags().Duration(flag(minDelayF), defaults.MinDelay, fmt.Sprintf(minDelayUsage, quality))
	cmd.Flags().Duration(flag(maxDelayF), defaults.MaxDelay, fmt.Sprintf(maxDelayUsage, quality))

	keys := make(map[string]string, 3)
	for _, name := range []string{failingTimesF, minDelayF, maxDelayF} {
		keys[flag(name)] = "fetch." + quality + "." + name
	}
	return keys
}
