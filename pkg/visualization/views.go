package visualization

import (
	"fmt"
	"sort"

	"github.com/simsift/simsift/pkg/anova"
	"github.com/simsift/simsift/pkg/results/parse"
	"github.com/simsift/simsift/pkg/stats"
	"github.com/simsift/simsift/pkg/warmup"
)

// AggregateTable prepares the replication summary table: one row per
// configuration and metric with mean, confidence half width and sample count.
func AggregateTable(aggregates []stats.Aggregate) *Table {
	headers := []string{"configuration", "metric", "mean", "+/- 95% CI", "n", "confidence"}

	data := [][]string{}
	for _, aggregate := range aggregates {
		confidence := "ok"
		if aggregate.LowConfidence {
			confidence = "low"
		}
		data = append(data, []string{
			aggregate.Configuration.ID(),
			aggregate.Metric,
			fmt.Sprintf("%.4f", aggregate.Mean),
			fmt.Sprintf("%.4f", aggregate.HalfWidth),
			fmt.Sprintf("%d", aggregate.Count),
			confidence,
		})
	}
	return NewTable(headers, data)
}

// EffectTable prepares the factor effect table: one row per effect with its
// percentage of total variation.
func EffectTable(table anova.Table) *Table {
	headers := []string{"effect", "variation [%]"}

	data := [][]string{}
	for _, effect := range table.Effects {
		data = append(data, []string{
			effect.Name,
			fmt.Sprintf("%.2f", effect.Percent),
		})
	}
	return NewTable(headers, data)
}

// WarmupTable prepares the warm-up summary table: one row per configuration
// with the estimated cut point, steady state value and detection status.
func WarmupTable(estimates map[string]warmup.Estimate) *Table {
	headers := []string{"configuration", "warm-up", "steady state", "status", "confidence"}

	ids := make([]string, 0, len(estimates))
	for id := range estimates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	data := [][]string{}
	for _, id := range ids {
		estimate := estimates[id]
		confidence := "ok"
		if estimate.LowConfidence {
			confidence = "low"
		}
		data = append(data, []string{
			id,
			fmt.Sprintf("%.1f", estimate.Cutoff),
			fmt.Sprintf("%.4f", estimate.SteadyState),
			estimate.Status.String(),
			confidence,
		})
	}
	return NewTable(headers, data)
}

// DiagnosticList prepares the dropped-line report of a parse: one element per
// diagnostic with its file, line number and reason.
func DiagnosticList(diagnostics []parse.Diagnostic) *List {
	elements := make([]string, 0, len(diagnostics))
	for _, diagnostic := range diagnostics {
		elements = append(elements,
			fmt.Sprintf("%s:%d: %s", diagnostic.File, diagnostic.Line, diagnostic.Reason))
	}
	return NewList(elements, "dropped: ")
}
