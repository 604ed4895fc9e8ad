package models

// Rule is a Westgard control rule label.
type Rule string

const (
	Rule13s Rule = "1_3s"
	Rule22s Rule = "2_2s"
	RuleR4s Rule = "R_4s"
	Rule41s Rule = "4_1s"
	Rule10x Rule = "10x"
)

// EvaluateWestgard checks the trailing window of a series against the
// Westgard rules and returns the first rule that fires.
//
// values is the trailing window newest-first: values[0] is the point under
// evaluation, values[1] its immediate predecessor, and so on. mean and sd
// are the chart's established statistics; each rule judges the window
// against them, in precedence order 1_3s, 2_2s, R_4s, 4_1s, 10x.
func EvaluateWestgard(values []float64, mean, sd float64) (Rule, bool) {
	if len(values) == 0 || sd <= 0 {
		return "", false
	}
	z := make([]float64, len(values))
	for i, v := range values {
		z[i] = (v - mean) / sd
	}

	// 1_3s: the new point beyond 3 SD.
	if z[0] > 3 || z[0] < -3 {
		return Rule13s, true
	}
	// 2_2s: two consecutive beyond 2 SD on the same side.
	if len(z) >= 2 && sameSideBeyond(z[:2], 2) {
		return Rule22s, true
	}
	// R_4s: two consecutive straddling the mean with a 4 SD spread.
	if len(z) >= 2 && ((z[0] >= 2 && z[1] <= -2) || (z[0] <= -2 && z[1] >= 2)) {
		return RuleR4s, true
	}
	// 4_1s: four consecutive beyond 1 SD on the same side.
	if len(z) >= 4 && sameSideBeyond(z[:4], 1) {
		return Rule41s, true
	}
	// 10x: ten consecutive on the same side of the mean.
	if len(z) >= 10 && sameSideBeyond(z[:10], 0) {
		return Rule10x, true
	}
	return "", false
}

// sameSideBeyond reports whether every z-score sits strictly beyond the
// threshold, all on the same side.
func sameSideBeyond(z []float64, threshold float64) bool {
	above, below := true, true
	for _, v := range z {
		if v <= threshold {
			above = false
		}
		if v >= -threshold {
			below = false
		}
	}
	return above || below
}
