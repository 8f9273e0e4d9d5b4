package stats

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/simsift/simsift/pkg/results"
)

func replicatedRun(factors map[string]string, replication int, scalars map[results.MetricKey]float64) results.Run {
	run := results.NewRun("test")
	run.Replication = replication
	for name, value := range factors {
		run.Factors[name] = value
	}
	for key, value := range scalars {
		run.Scalars[key] = value
	}
	return run
}

func TestAggregateRuns(t *testing.T) {
	Convey("While aggregating runs across replications", t, func() {
		factors := map[string]string{"N": "100"}
		key := results.NewMetricKey("table", 0, "utilization")

		runs := []results.Run{
			replicatedRun(factors, 0, map[results.MetricKey]float64{key: 48.1}),
			replicatedRun(factors, 1, map[results.MetricKey]float64{key: 50.3}),
			replicatedRun(factors, 2, map[results.MetricKey]float64{key: 49.6}),
		}
		sel := Selector{Entity: "table", Metric: "utilization", Mode: ModeAverage}

		Convey("Three replications should yield a Student's t interval", func() {
			aggregates := AggregateRuns(runs, sel)
			So(aggregates, ShouldHaveLength, 1)

			aggregate := aggregates[0]
			So(aggregate.Count, ShouldEqual, 3)
			So(aggregate.LowConfidence, ShouldBeFalse)
			So(aggregate.Mean, ShouldAlmostEqual, 49.3333, 0.001)
			So(aggregate.StdDev, ShouldAlmostEqual, 1.12398, 0.001)
			// t(0.975, df=2) = 4.3027 so the half width is well above the
			// normal approximation.
			So(aggregate.HalfWidth, ShouldAlmostEqual, 2.7922, 0.001)
		})

		Convey("More replications with the same spread should shrink the interval", func() {
			wide := AggregateRuns(runs, sel)[0]

			var many []results.Run
			for i := 0; i < 12; i++ {
				value := []float64{48.1, 50.3, 49.6}[i%3]
				many = append(many, replicatedRun(factors, i, map[results.MetricKey]float64{key: value}))
			}
			narrow := AggregateRuns(many, sel)[0]

			So(narrow.Count, ShouldEqual, 12)
			So(narrow.HalfWidth, ShouldBeLessThan, wide.HalfWidth)
		})

		Convey("A single replication should be marked low confidence", func() {
			aggregates := AggregateRuns(runs[:1], sel)
			So(aggregates, ShouldHaveLength, 1)
			So(aggregates[0].LowConfidence, ShouldBeTrue)
			So(aggregates[0].Mean, ShouldEqual, 48.1)
			So(aggregates[0].StdDev, ShouldEqual, 0)
			So(aggregates[0].HalfWidth, ShouldEqual, 0)
		})

		Convey("A metric no run carries should produce no row", func() {
			aggregates := AggregateRuns(runs, Selector{Entity: "table", Metric: "absent"})
			So(aggregates, ShouldBeEmpty)
		})
	})
}

func TestCombinationModes(t *testing.T) {
	Convey("While combining entity instances inside one run", t, func() {
		scalars := map[results.MetricKey]float64{
			results.NewMetricKey("table", 0, "throughput"): 24.0,
			results.NewMetricKey("table", 1, "throughput"): 26.0,
			results.NewMetricKey("user", 0, "throughput"):  99.0,
		}
		runs := []results.Run{replicatedRun(map[string]string{"N": "10"}, 0, scalars)}

		Convey("ModeSum should add over the matching instances only", func() {
			aggregates := AggregateRuns(runs, Selector{Entity: "table", Metric: "throughput", Mode: ModeSum})
			So(aggregates, ShouldHaveLength, 1)
			So(aggregates[0].Mean, ShouldEqual, 50.0)
		})

		Convey("ModeAverage should average over the matching instances", func() {
			aggregates := AggregateRuns(runs, Selector{Entity: "table", Metric: "throughput", Mode: ModeAverage})
			So(aggregates[0].Mean, ShouldEqual, 25.0)
		})
	})
}

func TestAggregateOrdering(t *testing.T) {
	Convey("Aggregates of several configurations", t, func() {
		key := results.NewMetricKey("table", 0, "utilization")
		var runs []results.Run
		for _, n := range []string{"50", "100", "200"} {
			runs = append(runs, replicatedRun(map[string]string{"N": n}, 0, map[results.MetricKey]float64{key: 1.0}))
		}

		Convey("Should be ordered by configuration ID", func() {
			aggregates := AggregateRuns(runs, Selector{Entity: "table", Metric: "utilization"})
			So(aggregates, ShouldHaveLength, 3)

			var ids []string
			for _, aggregate := range aggregates {
				ids = append(ids, aggregate.Configuration.ID())
			}
			So(ids, ShouldResemble, []string{"N=100", "N=200", "N=50"})
			level, ok := aggregates[0].Configuration.Level("N")
			So(ok, ShouldBeTrue)
			So(level, ShouldEqual, "100")
		})
	})
}
