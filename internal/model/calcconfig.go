package model

// CalculationConfig holds the municipality+year tunable formula parameters.
// One exists per municipality per effective year, created lazily with
// defaults when first requested.
type CalculationConfig struct {
	ID             string `json:"id"`
	MunicipalityID string `json:"municipality_id"`
	EffectiveYear  int    `json:"effective_year"`

	BedroomBath BedroomBathRates `json:"bedroom_bath"`
	Ratio       RatioAdjustments `json:"ratio"`

	PointMultiplier float64        `json:"point_multiplier"`
	BaseRate        float64        `json:"base_rate"`
	MiscPoints      MiscItemPoints `json:"misc_points"`

	// One scale curve per building class, handled exhaustively.
	Residential  EconomyOfScale `json:"residential"`
	Commercial   EconomyOfScale `json:"commercial"`
	Industrial   EconomyOfScale `json:"industrial"`
	Manufactured EconomyOfScale `json:"manufactured"`
}

// BedroomBathRates are the coefficients of the bedroom/bath rate formula:
// base + perBedroom*bedrooms + perFullBath*fullBaths + perHalfBath*halfBaths.
type BedroomBathRates struct {
	Base        float64 `json:"base"`
	PerBedroom  float64 `json:"per_bedroom"`
	PerFullBath float64 `json:"per_full_bath"`
	PerHalfBath float64 `json:"per_half_bath"`
}

// RatioAdjustments compares bath count to bedroom count. Thresholds are
// checked from most-favorable to least-favorable; first match wins.
type RatioAdjustments struct {
	LuxuryRatio    float64 `json:"luxury_ratio"`
	LuxuryModifier float64 `json:"luxury_modifier"`
	GoodRatio      float64 `json:"good_ratio"`
	GoodModifier   float64 `json:"good_modifier"`
	PoorRatio      float64 `json:"poor_ratio"`
	PoorModifier   float64 `json:"poor_modifier"`
}

// MiscItemPoints are the point values for miscellaneous improvements.
type MiscItemPoints struct {
	AirConditioning float64 `json:"air_conditioning"` // at 100% coverage
	Generator       float64 `json:"generator"`
	PerExtraKitchen float64 `json:"per_extra_kitchen"`
}

// EconomyOfScale is a size-dependent rate adjustment curve. Buildings at
// or below SmallestSize use SmallestFactor, at or above LargestSize use
// LargestFactor, and sizes in between interpolate toward 1.0 at MedianSize.
type EconomyOfScale struct {
	MedianSize     float64 `json:"median_size"`
	SmallestSize   float64 `json:"smallest_size"`
	LargestSize    float64 `json:"largest_size"`
	SmallestFactor float64 `json:"smallest_factor"`
	LargestFactor  float64 `json:"largest_factor"`
}

// ScaleCurve returns the curve for the given building class.
func (c *CalculationConfig) ScaleCurve(class BuildingClass) EconomyOfScale {
	switch class {
	case ClassCommercial:
		return c.Commercial
	case ClassIndustrial:
		return c.Industrial
	case ClassManufactured:
		return c.Manufactured
	default:
		return c.Residential
	}
}

// DefaultCalculationConfig returns the lazily-created defaults for a
// municipality/year with no stored config.
func DefaultCalculationConfig(municipalityID string, year int) *CalculationConfig {
	residential := EconomyOfScale{
		MedianSize:     1800,
		SmallestSize:   600,
		LargestSize:    6000,
		SmallestFactor: 1.25,
		LargestFactor:  0.85,
	}
	commercial := EconomyOfScale{
		MedianSize:     10000,
		SmallestSize:   2000,
		LargestSize:    100000,
		SmallestFactor: 1.15,
		LargestFactor:  0.80,
	}
	return &CalculationConfig{
		MunicipalityID: municipalityID,
		EffectiveYear:  year,
		BedroomBath: BedroomBathRates{
			Base:        10,
			PerBedroom:  3,
			PerFullBath: 4,
			PerHalfBath: 2,
		},
		Ratio: RatioAdjustments{
			LuxuryRatio:    1.5,
			LuxuryModifier: 1.10,
			GoodRatio:      1.0,
			GoodModifier:   1.05,
			PoorRatio:      0.5,
			PoorModifier:   0.95,
		},
		PointMultiplier: 1.0,
		BaseRate:        40,
		MiscPoints: MiscItemPoints{
			AirConditioning: 4,
			Generator:       2,
			PerExtraKitchen: 5,
		},
		Residential:  residential,
		Commercial:   commercial,
		Industrial:   commercial,
		Manufactured: residential,
	}
}
