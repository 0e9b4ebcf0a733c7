// internal/browser/humanoid/config.go
package humanoid

import "math/rand"

// Config holds the parameters of the input model. Durations are in
// milliseconds; distances in CSS pixels.
type Config struct {
	// Rng, when set, makes the model deterministic.
	Rng *rand.Rand

	// Inter-key delay: a normal distribution clamped below at KeyPauseMin,
	// shortened for common digraphs and trigraphs.
	KeyPauseMean         float64
	KeyPauseStdDev       float64
	KeyPauseMin          float64
	KeyPauseNgramFactor2 float64
	KeyPauseNgramFactor3 float64

	KeyHoldMean   float64
	KeyHoldStdDev float64

	// TypoRate is the per-keystroke chance of a slip. Slips are always
	// corrected, so the field ends up holding exactly the requested text.
	TypoRate float64
	// TypoTransposeShare is the fraction of slips that swap two keys; the
	// rest hit a neighbouring key.
	TypoTransposeShare float64

	// Fitts's law: MT = A + B * log2(1 + D/W).
	FittsA float64
	FittsB float64

	ClickHoldMinMs float64
	ClickHoldMaxMs float64

	// Per-sample cursor jitter and slow drift amplitude.
	GaussianStrength float64
	DriftAmplitude   float64
}

// DefaultConfig returns parameters tuned to an average desktop typist.
func DefaultConfig() Config {
	return Config{
		KeyPauseMean:         70.0,
		KeyPauseStdDev:       28.0,
		KeyPauseMin:          35.0,
		KeyPauseNgramFactor2: 0.7,
		KeyPauseNgramFactor3: 0.55,

		KeyHoldMean:   55.0,
		KeyHoldStdDev: 15.0,

		TypoRate:           0.04,
		TypoTransposeShare: 0.3,

		FittsA: 100.0,
		FittsB: 120.0,

		ClickHoldMinMs: 50.0,
		ClickHoldMaxMs: 120.0,

		GaussianStrength: 0.5,
		DriftAmplitude:   1.5,
	}
}
