// Package warmup estimates the transient period of a time series metric with
// Welch's graphical procedure: replications are aligned into fixed-width time
// bins, ensemble-averaged, smoothed with a moving average, and scanned for the
// point where the curve enters a tolerance band around its steady state value.
package warmup

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/simsift/simsift/pkg/results"
)

// Config holds the alignment and detection tunables.
type Config struct {
	// BinWidth is the width of the alignment time bins, in the time unit of
	// the input series.
	BinWidth float64
	// MinBinSamples is the evidence floor: bins holding fewer raw samples are
	// dropped instead of averaged on scant data.
	MinBinSamples int
	// SmoothingWindow is the moving average window in bins. Boundary bins use
	// a reduced window; the smoothed curve never extends the time range.
	SmoothingWindow int
	// Tolerance is the relative band around the steady state value that
	// counts as stabilized.
	Tolerance float64
}

// DefaultConfig mirrors the bin width, evidence floor, window and tolerance
// the procedure is usually run with.
func DefaultConfig() Config {
	return Config{
		BinWidth:        50.0,
		MinBinSamples:   3,
		SmoothingWindow: 5,
		Tolerance:       0.05,
	}
}

// Status tells how the cut point of an Estimate was obtained.
type Status int

const (
	// StatusDetected means the smoothed curve entered the tolerance band.
	StatusDetected Status = iota
	// StatusImmediate means the steady state is zero and no warm-up is needed.
	StatusImmediate
	// StatusFallback means the curve never stabilized within tolerance and
	// the cut point defaulted to a quarter of the observed horizon.
	StatusFallback
)

func (s Status) String() string {
	switch s {
	case StatusDetected:
		return "detected"
	case StatusImmediate:
		return "immediate"
	case StatusFallback:
		return "fallback"
	}
	return "unknown"
}

// Estimate is the outcome of the procedure for one configuration and metric.
type Estimate struct {
	// Curve is the smoothed ensemble mean, one sample per aligned time bin.
	Curve []results.Sample
	// StdDev is the per-bin ensemble standard deviation, aligned with Curve.
	StdDev []float64

	Cutoff      float64
	SteadyState float64
	Status      Status

	// LowConfidence marks estimates built from fewer than two replications.
	LowConfidence bool
}

// Detect runs Welch's procedure with the default stabilization criterion.
func Detect(series [][]results.Sample, cfg Config) (Estimate, error) {
	return DetectWith(series, cfg, RelativeThreshold{Tolerance: cfg.Tolerance})
}

// DetectWith runs Welch's procedure with a caller-supplied stabilization
// criterion. Alignment, truncation, ensemble averaging and smoothing do not
// depend on the criterion.
func DetectWith(series [][]results.Sample, cfg Config, criterion Criterion) (Estimate, error) {
	if cfg.BinWidth <= 0 {
		return Estimate{}, errors.Errorf("bin width must be positive, got %v", cfg.BinWidth)
	}
	if cfg.SmoothingWindow < 1 {
		return Estimate{}, errors.Errorf("smoothing window must be at least 1, got %d", cfg.SmoothingWindow)
	}

	// Alignment: bin each replication, drop replications left without bins.
	var binned [][]bin
	for _, samples := range series {
		bins := alignSeries(samples, cfg)
		if len(bins) > 0 {
			binned = append(binned, bins)
		}
	}
	if len(binned) == 0 {
		return Estimate{}, errors.New("no replication produced any populated bin")
	}

	lowConfidence := len(binned) < 2
	if lowConfidence {
		log.Warnf("warmup: only %d replication available, ensemble equals that series", len(binned))
	}

	// Truncation to the shortest common number of populated bins, so the
	// ensemble average is defined at every time point used.
	horizon := len(binned[0])
	for _, bins := range binned[1:] {
		if len(bins) < horizon {
			horizon = len(bins)
		}
	}

	times := make([]float64, horizon)
	ensemble := make([]float64, horizon)
	deviation := make([]float64, horizon)
	for i := 0; i < horizon; i++ {
		times[i] = binned[0][i].time

		values := make([]float64, len(binned))
		for r, bins := range binned {
			values[r] = bins[i].mean
		}
		ensemble[i], _ = stats.Mean(values)
		if len(values) > 1 {
			deviation[i], _ = stats.StandardDeviationSample(values)
		}
	}

	smoothed := movingAverage(ensemble, cfg.SmoothingWindow)

	curve := make([]results.Sample, horizon)
	for i := range smoothed {
		curve[i] = results.Sample{Time: times[i], Value: smoothed[i]}
	}

	estimate := Estimate{
		Curve:         curve,
		StdDev:        deviation,
		LowConfidence: lowConfidence,
	}

	// Steady state is the mean of the last quartile of the smoothed curve.
	quartile := smoothed[(3*horizon)/4:]
	estimate.SteadyState, _ = stats.Mean(quartile)

	if estimate.SteadyState == 0 {
		// Constant zero metric: no warm-up needed.
		estimate.Cutoff = times[0]
		estimate.Status = StatusImmediate
		return estimate, nil
	}

	if index, ok := criterion.Stabilized(times, smoothed, estimate.SteadyState); ok {
		estimate.Cutoff = times[index]
		estimate.Status = StatusDetected
		return estimate, nil
	}

	log.Warnf("warmup: curve never stabilized within tolerance, falling back to a quarter of the horizon")
	estimate.Cutoff = times[horizon/4]
	estimate.Status = StatusFallback
	return estimate, nil
}

type bin struct {
	time float64
	mean float64
}

// alignSeries buckets raw samples into fixed-width time bins, averaging
// within each bin and dropping bins below the evidence floor. Returned bins
// are ordered by time.
func alignSeries(samples []results.Sample, cfg Config) []bin {
	if len(samples) == 0 {
		return nil
	}

	maxIndex := 0
	sums := map[int]float64{}
	counts := map[int]int{}
	for _, sample := range samples {
		if sample.Time < 0 || math.IsNaN(sample.Value) {
			continue
		}
		index := int(sample.Time / cfg.BinWidth)
		sums[index] += sample.Value
		counts[index]++
		if index > maxIndex {
			maxIndex = index
		}
	}

	var bins []bin
	for index := 0; index <= maxIndex; index++ {
		if counts[index] < cfg.MinBinSamples {
			continue
		}
		bins = append(bins, bin{
			time: (float64(index) + 0.5) * cfg.BinWidth,
			mean: sums[index] / float64(counts[index]),
		})
	}
	return bins
}

// movingAverage smooths the curve with a centered window. Boundary points use
// however much of the window actually exists; no data is invented beyond the
// ends of the curve.
func movingAverage(values []float64, window int) []float64 {
	if window <= 1 || len(values) < 2 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}

	half := window / 2
	out := make([]float64, len(values))
	for i := range values {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half
		if hi > len(values)-1 {
			hi = len(values) - 1
		}

		var sum float64
		for j := lo; j <= hi; j++ {
			sum += values[j]
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}
