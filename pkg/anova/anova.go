// Package anova decomposes the total variation of a response metric over a
// full factorial run set into the contributions of each factor, each factor
// interaction and a residual term, as percentages of total variance.
package anova

import (
	"math"
	"math/bits"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/simsift/simsift/pkg/results"
	"github.com/simsift/simsift/pkg/stats"
)

// ResidualEffect names the within-cell error term in the output table.
const ResidualEffect = "Residual"

// Effect is one row of the decomposition: a main factor, an interaction
// (factor names joined by "×") or the residual.
type Effect struct {
	Name       string
	SumSquares float64
	Percent    float64
}

// Table is the factor effect decomposition for one response metric. Effects
// are ordered by interaction order, then by factor order, with the residual
// last. When the design is exactly balanced the percentages sum to 100 within
// floating point tolerance.
type Table struct {
	Metric  string
	Effects []Effect

	// Imbalanced reports that the cells did not share one replication count.
	// The decomposition then used the minimum count per cell, discarding the
	// later replications, and Warning says so.
	Imbalanced bool
	Warning    string
}

// Percent returns the percentage attributed to the named effect.
func (t Table) Percent(name string) float64 {
	for _, effect := range t.Effects {
		if effect.Name == name {
			return effect.Percent
		}
	}
	return 0
}

// Decompose computes the factorial sum-of-squares decomposition of the
// selected metric over the given factors. The runs must span every
// combination of the observed factor levels; a missing cell is an error. An
// unequal replication count across cells is downgraded to a warning on the
// returned table.
func Decompose(runs []results.Run, factors []string, sel stats.Selector) (Table, error) {
	if len(factors) == 0 {
		return Table{}, errors.New("at least one factor is required")
	}
	if len(runs) == 0 {
		return Table{}, errors.New("no runs to decompose")
	}

	design, err := buildDesign(runs, factors, sel)
	if err != nil {
		return Table{}, err
	}

	table := Table{Metric: results.Normalize(sel.Metric)}
	if design.imbalanced {
		table.Imbalanced = true
		table.Warning = design.warning
		log.Warnf("anova: %s", design.warning)
	}

	grand := design.grandMean()
	totalSS := design.totalSumSquares(grand)

	// Effect terms per factor subset, lowest order first. Each subset's term
	// subtracts the grand mean and every lower-order term before squaring.
	nFactors := len(factors)
	terms := make([]map[string]float64, 1<<uint(nFactors))

	masks := make([]int, 0, (1<<uint(nFactors))-1)
	for mask := 1; mask < 1<<uint(nFactors); mask++ {
		masks = append(masks, mask)
	}
	sort.Slice(masks, func(i, j int) bool {
		ci, cj := bits.OnesCount(uint(masks[i])), bits.OnesCount(uint(masks[j]))
		if ci != cj {
			return ci < cj
		}
		return masks[i] < masks[j]
	})

	var effects []Effect
	var explainedSS float64
	for _, mask := range masks {
		partial := design.partialMeans(mask)

		terms[mask] = make(map[string]float64, len(partial))
		var sumSquares float64
		for key, mean := range partial {
			term := mean - grand
			for sub := (mask - 1) & mask; sub > 0; sub = (sub - 1) & mask {
				term -= terms[sub][projectKey(key, mask, sub, nFactors)]
			}
			terms[mask][key] = term
			sumSquares += term * term
		}

		sumSquares *= float64(design.reps) * design.excludedLevelProduct(mask)
		effects = append(effects, Effect{
			Name:       design.effectName(mask),
			SumSquares: sumSquares,
		})
		explainedSS += sumSquares
	}

	residualSS := design.residualSumSquares()
	effects = append(effects, Effect{Name: ResidualEffect, SumSquares: residualSS})

	for i := range effects {
		// Floor tiny negative cancellation noise before scaling to percent.
		ss := effects[i].SumSquares
		if ss < 0 {
			ss = 0
		}
		if totalSS > 0 {
			effects[i].Percent = ss / totalSS * 100
		}
	}

	table.Effects = effects
	return table, nil
}

const keySeparator = "\x1f"

// design is the balanced observation grid the decomposition operates on:
// factor level lists in input factor order and the per-cell response values
// truncated to a common replication count.
type design struct {
	factors []string
	levels  [][]string
	cells   map[string][]float64
	reps    int

	imbalanced bool
	warning    string
}

// buildDesign extracts the response value of every run, groups the values by
// factor level combination and enforces the full factorial shape.
func buildDesign(runs []results.Run, factors []string, sel stats.Selector) (*design, error) {
	d := &design{
		factors: factors,
		levels:  make([][]string, len(factors)),
		cells:   map[string][]float64{},
	}

	// Replication order decides which observations survive imbalance
	// truncation, so fix it before filling cells.
	ordered := make([]results.Run, len(runs))
	copy(ordered, runs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Replication < ordered[j].Replication
	})

	seen := make([]map[string]bool, len(factors))
	for i := range seen {
		seen[i] = map[string]bool{}
	}

	entity := results.Normalize(sel.Entity)
	metric := results.Normalize(sel.Metric)
	for _, run := range ordered {
		config := run.Configuration()

		key := make([]string, len(factors))
		for i, factor := range factors {
			level, ok := config.Level(factor)
			if !ok {
				return nil, errors.Errorf("run %q does not set factor %q", run.Identity(), factor)
			}
			key[i] = level
			if !seen[i][level] {
				seen[i][level] = true
				d.levels[i] = append(d.levels[i], level)
			}
		}

		value, ok := responseValue(run, entity, metric, sel.Mode)
		if !ok {
			return nil, errors.Errorf("run %q does not record metric %q for entity class %q", run.Identity(), metric, entity)
		}
		d.cells[strings.Join(key, keySeparator)] = append(d.cells[strings.Join(key, keySeparator)], value)
	}

	for i := range d.levels {
		sort.Strings(d.levels[i])
	}

	// A full factorial design populates every level combination.
	expected := 1
	for _, levels := range d.levels {
		expected *= len(levels)
	}
	if len(d.cells) != expected {
		return nil, errors.Errorf("design is not a full factorial: %d of %d cells populated", len(d.cells), expected)
	}

	minReps, maxReps := math.MaxInt32, 0
	for _, cell := range d.cells {
		if len(cell) < minReps {
			minReps = len(cell)
		}
		if len(cell) > maxReps {
			maxReps = len(cell)
		}
	}
	d.reps = minReps
	if minReps != maxReps {
		d.imbalanced = true
		d.warning = errors.Errorf(
			"unbalanced design: cell replication counts range from %d to %d, using the first %d replications per cell",
			minReps, maxReps, minReps).Error()
		for key := range d.cells {
			d.cells[key] = d.cells[key][:minReps]
		}
	}

	return d, nil
}

func responseValue(run results.Run, entity, metric string, mode stats.Mode) (float64, bool) {
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
	if mode == stats.ModeAverage {
		return sum / float64(count), true
	}
	return sum, true
}

func (d *design) grandMean() float64 {
	var sum float64
	var count int
	for _, cell := range d.cells {
		for _, value := range cell {
			sum += value
			count++
		}
	}
	return sum / float64(count)
}

func (d *design) totalSumSquares(grand float64) float64 {
	var total float64
	for _, cell := range d.cells {
		for _, value := range cell {
			deviation := value - grand
			total += deviation * deviation
		}
	}
	return total
}

func (d *design) residualSumSquares() float64 {
	var residual float64
	for _, cell := range d.cells {
		var mean float64
		for _, value := range cell {
			mean += value
		}
		mean /= float64(len(cell))
		for _, value := range cell {
			deviation := value - mean
			residual += deviation * deviation
		}
	}
	return residual
}

// partialMeans averages the observations over every level combination of the
// factors in the mask, marginalizing the factors outside it.
func (d *design) partialMeans(mask int) map[string]float64 {
	sums := map[string]float64{}
	counts := map[string]int{}

	for key, cell := range d.cells {
		sub := projectKey(key, (1<<uint(len(d.factors)))-1, mask, len(d.factors))
		for _, value := range cell {
			sums[sub] += value
			counts[sub]++
		}
	}

	means := make(map[string]float64, len(sums))
	for key, sum := range sums {
		means[key] = sum / float64(counts[key])
	}
	return means
}

// excludedLevelProduct multiplies the level counts of all factors outside the
// effect, the replication weight of the classical sum-of-squares identity.
func (d *design) excludedLevelProduct(mask int) float64 {
	product := 1.0
	for i := range d.factors {
		if mask&(1<<uint(i)) == 0 {
			product *= float64(len(d.levels[i]))
		}
	}
	return product
}

func (d *design) effectName(mask int) string {
	var names []string
	for i, factor := range d.factors {
		if mask&(1<<uint(i)) != 0 {
			names = append(names, factor)
		}
	}
	return strings.Join(names, "×")
}

// projectKey reduces a level combination keyed over the factors of fromMask
// to the factors of toMask (toMask ⊆ fromMask).
func projectKey(key string, fromMask, toMask, nFactors int) string {
	parts := strings.Split(key, keySeparator)

	var kept []string
	position := 0
	for i := 0; i < nFactors; i++ {
		if fromMask&(1<<uint(i)) == 0 {
			continue
		}
		if toMask&(1<<uint(i)) != 0 {
			kept = append(kept, parts[position])
		}
		position++
	}
	return strings.Join(kept, keySeparator)
}
