package main

import (
	"io"
	"strconv"

	"github.com/NethermindEth/demandflow/pipeline"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	tableOutput = "table"
	yamlOutput  = "yaml"
)

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, "encode report")
	}
	return enc.Close()
}

func writeTickerReport(w io.Writer, format string, report *pipeline.TickerReport) error {
	if format == yamlOutput {
		return writeYAML(w, report)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Consumer", "Received", "First", "Last", "Pauses", "Completion"})
	for _, c := range report.Consumers {
		table.Append([]string{
			c.Name,
			strconv.Itoa(c.Received),
			strconv.Itoa(c.FirstIndex),
			strconv.Itoa(c.LastIndex),
			strconv.Itoa(c.Pauses),
			c.Completion,
		})
	}
	table.SetFooter([]string{"Ticks", strconv.Itoa(report.Ticks), "", "", "Elapsed", report.Elapsed.String()})
	table.Render()
	return nil
}

func writeFetchReport(w io.Writer, format string, report *pipeline.FetchReport) error {
	if format == yamlOutput {
		return writeYAML(w, report)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Request", "Source", "Attempts", "Value"})
	for _, r := range report.Results {
		table.Append([]string{strconv.Itoa(r.Request), r.Source, strconv.Itoa(r.Attempts), r.Value})
	}
	table.SetFooter([]string{"", "high/low", strconv.Itoa(report.HighAttempts) + "/" + strconv.Itoa(report.LowAttempts), ""})
	table.Render()
	return nil
}
