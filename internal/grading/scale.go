package grading

// GradeFromPercent maps a percent score onto the 2..5 scale.
// The 50-60 band and everything below it both map to 2.
func GradeFromPercent(p float64) int {
	switch {
	case p >= 90:
		return 5
	case p >= 75:
		return 4
	case p >= 60:
		return 3
	case p >= 50:
		return 2
	default:
		return 2
	}
}

// Percent returns score as a percentage of max, or 0 when max is not positive.
func Percent(score, max float64) float64 {
	if max > 0 {
		return score / max * 100
	}
	return 0
}
