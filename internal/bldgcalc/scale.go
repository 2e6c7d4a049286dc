package bldgcalc

import "github.com/chadRoberge/avitar-suite-sub003/internal/model"

// scaleFactor evaluates the economies-of-scale curve for a building size.
// Sizes at or below the smallest breakpoint use the smallest factor, at or
// above the largest use the largest factor, and sizes in between
// interpolate linearly toward 1.0 at the median size.
func scaleFactor(curve model.EconomyOfScale, size float64) float64 {
	if curve.MedianSize <= 0 {
		return 1.0
	}

	switch {
	case size <= curve.SmallestSize:
		return nonZero(curve.SmallestFactor)
	case size >= curve.LargestSize && curve.LargestSize > 0:
		return nonZero(curve.LargestFactor)
	case size < curve.MedianSize:
		span := curve.MedianSize - curve.SmallestSize
		if span <= 0 {
			return 1.0
		}
		frac := (size - curve.SmallestSize) / span
		return nonZero(curve.SmallestFactor) + frac*(1.0-nonZero(curve.SmallestFactor))
	case size > curve.MedianSize:
		span := curve.LargestSize - curve.MedianSize
		if span <= 0 {
			return 1.0
		}
		frac := (size - curve.MedianSize) / span
		return 1.0 + frac*(nonZero(curve.LargestFactor)-1.0)
	default:
		return 1.0
	}
}

// nonZero treats an unconfigured factor as neutral.
func nonZero(f float64) float64 {
	if f == 0 {
		return 1.0
	}
	return f
}
