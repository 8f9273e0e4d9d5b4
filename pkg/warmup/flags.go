package warmup

import "github.com/simsift/simsift/pkg/conf"

var (
	binWidthFlag = conf.NewFloatFlag(
		"warmup_bin_width",
		"Width of the alignment time bins for warm-up detection",
		DefaultConfig().BinWidth,
	)
	minBinSamplesFlag = conf.NewIntFlag(
		"warmup_min_bin_samples",
		"Minimum raw samples per time bin; bins with fewer samples are dropped",
		DefaultConfig().MinBinSamples,
	)
	smoothingWindowFlag = conf.NewIntFlag(
		"warmup_smoothing_window",
		"Moving average window (in bins) applied to the ensemble curve",
		DefaultConfig().SmoothingWindow,
	)
	toleranceFlag = conf.NewFloatFlag(
		"warmup_tolerance",
		"Relative tolerance around the steady state value that counts as stabilized",
		DefaultConfig().Tolerance,
	)
)

// ConfigFromFlags applies the warm-up tunables from command line flags and
// environment variables.
func ConfigFromFlags() Config {
	return Config{
		BinWidth:        binWidthFlag.Value(),
		MinBinSamples:   minBinSamplesFlag.Value(),
		SmoothingWindow: smoothingWindowFlag.Value(),
		Tolerance:       toleranceFlag.Value(),
	}
}
