package probability

// AutoTolerance widens the matching band for larger deviations.
func AutoTolerance(deviation float64) float64 {
	switch {
	case deviation < 0.05:
		return 0.01
	case deviation < 0.10:
		return 0.02
	case deviation < 0.30:
		return 0.03
	case deviation < 0.70:
		return 0.05
	default:
		return 0.10
	}
}
