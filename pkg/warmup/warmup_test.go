package warmup

import (
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/simsift/simsift/pkg/results"
)

// exponentialSeries samples 1-exp(-t/tau) every 5 time units over [0, horizon).
func exponentialSeries(tau, horizon float64) []results.Sample {
	var samples []results.Sample
	for t := 0.0; t < horizon; t += 5.0 {
		samples = append(samples, results.Sample{Time: t, Value: 1 - math.Exp(-t/tau)})
	}
	return samples
}

// flatSeries emits the given per-bin values, three samples per 50-wide bin.
func flatSeries(binValues []float64) []results.Sample {
	var samples []results.Sample
	for i, value := range binValues {
		base := float64(i) * 50.0
		for _, offset := range []float64{10, 20, 30} {
			samples = append(samples, results.Sample{Time: base + offset, Value: value})
		}
	}
	return samples
}

func TestExponentialWarmup(t *testing.T) {
	Convey("Given replications of an exponential approach to steady state", t, func() {
		// tau=200, so the curve reaches 99.3% of its plateau near t=992.
		series := [][]results.Sample{
			exponentialSeries(200, 8000),
			exponentialSeries(200, 8000),
			exponentialSeries(200, 8000),
		}
		cfg := Config{BinWidth: 50, MinBinSamples: 3, SmoothingWindow: 5, Tolerance: 0.007}

		Convey("The cut point should land near five time constants", func() {
			estimate, err := Detect(series, cfg)
			So(err, ShouldBeNil)
			So(estimate.Status, ShouldEqual, StatusDetected)
			So(estimate.LowConfidence, ShouldBeFalse)
			So(estimate.SteadyState, ShouldAlmostEqual, 1.0, 0.001)
			So(estimate.Cutoff, ShouldBeBetween, 900.0, 1150.0)

			Convey("And the curve should cover every aligned bin", func() {
				So(estimate.Curve, ShouldHaveLength, 160)
				So(estimate.StdDev, ShouldHaveLength, 160)
				So(estimate.Curve[0].Time, ShouldEqual, 25.0)
				So(estimate.Curve[159].Time, ShouldEqual, 7975.0)
			})
		})

		Convey("Identical replications should have zero ensemble deviation", func() {
			estimate, err := Detect(series, cfg)
			So(err, ShouldBeNil)
			for _, deviation := range estimate.StdDev {
				So(deviation, ShouldEqual, 0)
			}
		})

		Convey("A slope criterion should also detect on this curve", func() {
			estimate, err := DetectWith(series, cfg, SlopeThreshold{MaxSlope: 0.01, Hold: 3})
			So(err, ShouldBeNil)
			So(estimate.Status, ShouldEqual, StatusDetected)
			So(estimate.Cutoff, ShouldBeBetween, 600.0, 900.0)
		})
	})
}

func TestConstantZeroMetric(t *testing.T) {
	Convey("A metric that is constantly zero", t, func() {
		zeros := flatSeries([]float64{0, 0, 0, 0, 0, 0, 0, 0})
		series := [][]results.Sample{zeros, zeros}

		Convey("Should need no warm-up at all", func() {
			estimate, err := Detect(series, Config{BinWidth: 50, MinBinSamples: 3, SmoothingWindow: 3, Tolerance: 0.05})
			So(err, ShouldBeNil)
			So(estimate.Status, ShouldEqual, StatusImmediate)
			So(estimate.Cutoff, ShouldEqual, 25.0)
			So(estimate.SteadyState, ShouldEqual, 0)
		})
	})
}

func TestFallbackCut(t *testing.T) {
	Convey("A curve that never settles inside the tolerance band", t, func() {
		// The last bin jumps to 100, putting the steady state estimate at 50
		// while no bin value comes close to it.
		jumpy := flatSeries([]float64{0, 0, 0, 0, 0, 0, 0, 100})
		series := [][]results.Sample{jumpy, jumpy}

		Convey("Should fall back to a quarter of the horizon", func() {
			estimate, err := Detect(series, Config{BinWidth: 50, MinBinSamples: 3, SmoothingWindow: 1, Tolerance: 0.05})
			So(err, ShouldBeNil)
			So(estimate.Status, ShouldEqual, StatusFallback)
			So(estimate.SteadyState, ShouldEqual, 50.0)
			So(estimate.Cutoff, ShouldEqual, 125.0)
		})
	})
}

func TestReplicationHandling(t *testing.T) {
	Convey("While assembling the ensemble", t, func() {
		Convey("A single replication should be marked low confidence", func() {
			series := [][]results.Sample{exponentialSeries(200, 4000)}
			estimate, err := Detect(series, DefaultConfig())
			So(err, ShouldBeNil)
			So(estimate.LowConfidence, ShouldBeTrue)
		})

		Convey("Replications of unequal length should truncate to the shortest", func() {
			series := [][]results.Sample{
				flatSeries([]float64{1, 1, 1, 1, 1, 1, 1, 1}),
				flatSeries([]float64{1, 1, 1, 1, 1, 1}),
			}
			estimate, err := Detect(series, Config{BinWidth: 50, MinBinSamples: 3, SmoothingWindow: 1, Tolerance: 0.05})
			So(err, ShouldBeNil)
			So(estimate.Curve, ShouldHaveLength, 6)
		})

		Convey("Bins below the evidence floor should be dropped", func() {
			sparse := []results.Sample{
				{Time: 10, Value: 1}, {Time: 20, Value: 1}, {Time: 30, Value: 1},
				{Time: 60, Value: 1},
			}
			estimate, err := Detect([][]results.Sample{sparse}, Config{BinWidth: 50, MinBinSamples: 3, SmoothingWindow: 1, Tolerance: 0.05})
			So(err, ShouldBeNil)
			So(estimate.Curve, ShouldHaveLength, 1)
			So(estimate.Curve[0].Time, ShouldEqual, 25.0)
		})

		Convey("Empty input should be rejected", func() {
			_, err := Detect(nil, DefaultConfig())
			So(err, ShouldNotBeNil)

			_, err = Detect([][]results.Sample{{}}, DefaultConfig())
			So(err, ShouldNotBeNil)
		})

		Convey("A non-positive bin width should be rejected", func() {
			_, err := Detect([][]results.Sample{exponentialSeries(200, 400)}, Config{BinWidth: 0, SmoothingWindow: 3})
			So(err, ShouldNotBeNil)
		})
	})
}
