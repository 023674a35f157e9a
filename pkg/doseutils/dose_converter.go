package doseutils

import "math"

// Readings are stored as whole microroentgen (per hour for rates).

// No negative values
func RToMicroR(r float64) uint32 {
	if r < 0 {
		return 0
	}
	return uint32(math.Round(r * 1e6))
}

func MicroRToR(ur uint32) float64 {
	return float64(ur) / 1e6
}

// RToSievert uses the usual 1 R ≈ 0.01 Sv approximation for gamma in tissue.
func RToSievert(r float64) float64 {
	return r / 100
}

// RToMicroRFloat scales to µR keeping two decimals, for display.
func RToMicroRFloat(r float64) float64 {
	return math.Round(r*1e6*100) / 100
}
