package saturation

import "math"

// Needed converts a population into a target group count: one group
// per divisor people, rounded half away from zero, never below 1.
// Divisor validity is enforced by Policy.Validate, not here.
func Needed(population, divisor int64) int64 {
	n := int64(math.Round(float64(population) / float64(divisor)))
	if n < 1 {
		return 1
	}
	return n
}

// Percent is the saturation ratio of reported to needed, as a
// percentage rounded to two decimals and capped at 100.
func Percent(reported, needed int64) float64 {
	if needed <= 0 {
		return 0
	}
	pct := float64(reported) / float64(needed) * 100
	if pct >= 100 {
		return 100
	}
	pct = math.Round(pct*100) / 100
	if pct >= 100 {
		// 99.995..99.999 must not display as fully saturated.
		pct = 99.99
	}
	return pct
}
