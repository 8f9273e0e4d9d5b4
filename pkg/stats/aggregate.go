// Package stats computes cross-replication summaries of scalar metrics. Runs
// are grouped by configuration and reduced to one Aggregate per metric with a
// Student's t confidence interval.
package stats

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/simsift/simsift/pkg/results"
)

// Mode selects how a metric is combined across the entity instances of a
// class inside a single run. Additive metrics (total throughput) are summed,
// intensive metrics (utilization) are averaged.
type Mode int

const (
	// ModeSum adds the metric over all matching entity instances per run.
	ModeSum Mode = iota
	// ModeAverage averages the metric over all matching entity instances per run.
	ModeAverage
)

// Selector names the metric to aggregate: entity class, metric name and the
// per-run combination mode.
type Selector struct {
	Entity string
	Metric string
	Mode   Mode
}

// Aggregate is one metric's cross-replication summary for one configuration.
// Immutable once produced.
type Aggregate struct {
	Configuration results.Configuration
	Metric        string

	Mean      float64
	StdDev    float64
	HalfWidth float64
	Count     int

	// LowConfidence marks aggregates computed from a single replication,
	// where standard deviation and confidence interval are undefined.
	LowConfidence bool
}

const confidenceLevel = 0.95

// AggregateRuns groups the runs by configuration and emits one Aggregate per
// group, ordered by configuration ID. Configurations in which no run carries
// the selected metric produce no row at all rather than a zero-valued one.
func AggregateRuns(runs []results.Run, sel Selector) []Aggregate {
	entity := results.Normalize(sel.Entity)
	metric := results.Normalize(sel.Metric)

	groups := results.GroupByConfiguration(runs)
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var aggregates []Aggregate
	for _, id := range ids {
		group := groups[id]

		var values []float64
		for _, run := range group {
			value, ok := runValue(run, entity, metric, sel.Mode)
			if ok {
				values = append(values, value)
			}
		}
		if len(values) == 0 {
			continue
		}

		aggregates = append(aggregates, summarize(group[0].Configuration(), metric, values))
	}
	return aggregates
}

// runValue reduces all scalars of one run matching the entity class and
// metric name to a single value, or reports that the run carries none.
func runValue(run results.Run, entity, metric string, mode Mode) (float64, bool) {
	var sum float64
	var count int
	for key, value := range run.Scalars {
		if key.Entity != entity || key.Metric != metric {
			continue
		}
		sum += value
		count++
	}
	if count == 0 {
		return 0, false
	}
	if mode == ModeAverage {
		return sum / float64(count), true
	}
	return sum, true
}

func summarize(config results.Configuration, metric string, values []float64) Aggregate {
	mean, _ := stats.Mean(values)

	n := len(values)
	if n < 2 {
		log.Debugf("stats: configuration %q has a single replication of %q, confidence interval undefined", config.ID(), metric)
		return Aggregate{
			Configuration: config,
			Metric:        metric,
			Mean:          mean,
			Count:         n,
			LowConfidence: true,
		}
	}

	stdDev, _ := stats.StandardDeviationSample(values)

	student := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
	quantile := student.Quantile(0.5 + confidenceLevel/2)

	return Aggregate{
		Configuration: config,
		Metric:        metric,
		Mean:          mean,
		StdDev:        stdDev,
		HalfWidth:     quantile * stdDev / math.Sqrt(float64(n)),
		Count:         n,
	}
}
