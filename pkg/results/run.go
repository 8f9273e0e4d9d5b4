// Package results defines the normalized in-memory model for simulation runs.
// A Run is one execution of the simulated system under a fixed configuration
// and replication index. Runs are immutable after parsing; all analysis
// packages consume read-only Run collections.
package results

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// MetricKey addresses one recorded statistic inside a Run: the entity class
// (e.g. "table"), the entity instance index and the metric name. Entity and
// metric names are stored lower-cased and trimmed.
type MetricKey struct {
	Entity string
	Index  int
	Metric string
}

// NewMetricKey normalizes entity class and metric name before building the key.
func NewMetricKey(entity string, index int, metric string) MetricKey {
	return MetricKey{
		Entity: Normalize(entity),
		Index:  index,
		Metric: Normalize(metric),
	}
}

// Normalize returns the canonical form of an entity class or metric name.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Sample is one time series point. Within a series times are non-decreasing.
type Sample struct {
	Time  float64
	Value float64
}

// Run holds everything parsed from one simulation execution: its factor
// levels, replication index, per-entity scalar statistics and optional
// per-entity time series.
type Run struct {
	// Source identifies where the run was parsed from, typically a file path.
	// It keys the run for grouping when no factor metadata is present.
	Source string
	// Sequence is the position of the run within its source, set by the
	// parser. It distinguishes runs of one source that carry no factor
	// metadata, such as concatenated vector-only runs.
	Sequence int
	// Label is the run identifier line from the result file, empty if absent.
	Label string

	Factors     map[string]string
	Replication int

	Scalars map[MetricKey]float64
	Vectors map[MetricKey][]Sample
}

// NewRun returns an empty run for the given source with initialized mappings.
func NewRun(source string) Run {
	return Run{
		Source:  source,
		Factors: map[string]string{},
		Scalars: map[MetricKey]float64{},
		Vectors: map[MetricKey][]Sample{},
	}
}

// Configuration derives the run's experimental configuration: the factor
// level mapping with the replication index removed.
func (r Run) Configuration() Configuration {
	levels := make(map[string]string, len(r.Factors))
	for name, level := range r.Factors {
		levels[name] = level
	}
	return Configuration{levels: levels, source: r.Source}
}

// Identity returns the string under which the run must be unique across the
// whole ingested set. Runs carrying factor metadata are identified by their
// configuration plus replication index; runs without metadata fall back to
// their source and position within it.
func (r Run) Identity() string {
	if len(r.Factors) == 0 {
		return "source:" + r.Source + "#" + strconv.Itoa(r.Sequence)
	}
	return r.Configuration().ID() + "#" + strconv.Itoa(r.Replication)
}

// Configuration is a fixed assignment of factor levels, shared by all
// replications of the same experiment. It is derived on demand from a Run and
// never persisted independently.
type Configuration struct {
	levels map[string]string
	source string
}

// ID returns a deterministic identifier built from sorted factor level pairs,
// e.g. "N=100, dist=uniform, p=0.5". Configurations without factors are
// identified by the source they were parsed from.
func (c Configuration) ID() string {
	if len(c.levels) == 0 {
		return c.source
	}

	names := make([]string, 0, len(c.levels))
	for name := range c.levels {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+c.levels[name])
	}
	return strings.Join(pairs, ", ")
}

// Level returns the level of the given factor and whether it is set.
func (c Configuration) Level(factor string) (string, bool) {
	level, ok := c.levels[factor]
	return level, ok
}

// Factors returns the sorted factor names of the configuration.
func (c Configuration) Factors() []string {
	names := make([]string, 0, len(c.levels))
	for name := range c.levels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge concatenates two run collections, failing on a duplicate run
// identity. Silently overwriting a replication would corrupt every aggregate
// computed downstream, so the duplicate is a hard error, never a merge.
func Merge(dst []Run, src []Run) ([]Run, error) {
	seen := make(map[string]string, len(dst)+len(src))
	merged := make([]Run, 0, len(dst)+len(src))

	for _, run := range append(append([]Run{}, dst...), src...) {
		identity := run.Identity()
		if previous, ok := seen[identity]; ok {
			return nil, errors.Errorf(
				"duplicate run %q: seen in %q and %q", identity, previous, run.Source)
		}
		seen[identity] = run.Source
		merged = append(merged, run)
	}
	return merged, nil
}

// GroupByConfiguration splits runs into replication groups keyed by
// configuration ID.
func GroupByConfiguration(runs []Run) map[string][]Run {
	groups := map[string][]Run{}
	for _, run := range runs {
		id := run.Configuration().ID()
		groups[id] = append(groups[id], run)
	}
	return groups
}
