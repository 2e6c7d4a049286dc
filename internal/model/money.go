package model

import "math"

// RoundToHundred rounds a money amount to the nearest hundred dollars.
// Applied only at card/parcel rollup boundaries so rounding error does not
// compound through individual factor multiplications.
func RoundToHundred(v float64) float64 {
	return math.Round(v/100) * 100
}
