package abtest

import "math"

// Combine sums per-variant counters from several clients and recomputes
// the conversion rates.
func Combine(parts ...map[string]Result) map[string]Result {
	sum := make(map[string]Counts)
	for _, p := range parts {
		for id, r := range p {
			c := sum[id]
			c.Impressions += r.Impressions
			c.Conversions += r.Conversions
			sum[id] = c
		}
	}
	out := make(map[string]Result, len(sum))
	for id, c := range sum {
		out[id] = resultOf(c)
	}
	return out
}

// z for a two-sided 95% interval
const z95 = 1.96

// Wilson95 is the 95% Wilson score interval for conversions out of
// impressions, as fractions in [0,1]. It is 0,0 with no impressions.
func Wilson95(conversions, impressions int64) (lower, upper float64) {
	if impressions <= 0 {
		return 0, 0
	}
	n := float64(impressions)
	p := float64(conversions) / n
	z2 := z95 * z95

	denom := 1 + z2/n
	center := (p + z2/(2*n)) / denom
	spread := (z95 / denom) * math.Sqrt(p*(1-p)/n+z2/(4*n*n))

	lower = math.Max(0, center-spread)
	upper = math.Min(1, center+spread)
	return lower, upper
}
