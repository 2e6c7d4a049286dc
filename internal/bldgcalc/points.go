// Package bldgcalc computes building replacement cost and depreciated
// value from feature selections and the municipality's calculation config.
package bldgcalc

import (
	"math"

	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
	"github.com/chadRoberge/avitar-suite-sub003/internal/refdata"
)

// featurePoints sums the point contributions of every selected attribute.
func featurePoints(f model.FeatureSelections, cc *refdata.CalculationContext) float64 {
	pts := cc.Points(f.BaseTypeID) +
		cc.Points(f.FrameID) +
		cc.Points(f.RoofID) +
		cc.Points(f.HeatingID)
	for _, id := range f.ExteriorWallIDs {
		pts += cc.Points(id)
	}
	for _, id := range f.FlooringIDs {
		pts += cc.Points(id)
	}
	return pts
}

// bedroomBathRate applies the configured bedroom/bath formula:
// base + perBedroom*bedrooms + perFullBath*fullBaths + perHalfBath*halfBaths.
func bedroomBathRate(b *model.BuildingAssessment, rates model.BedroomBathRates) float64 {
	return rates.Base +
		rates.PerBedroom*float64(b.Bedrooms) +
		rates.PerFullBath*float64(b.FullBaths) +
		rates.PerHalfBath*float64(b.HalfBaths)
}

// ratioModifier compares bath count to bedroom count against the
// configured thresholds, most-favorable first; the first match wins.
// Half baths count as half a bath for the ratio.
func ratioModifier(b *model.BuildingAssessment, adj model.RatioAdjustments) float64 {
	if b.Bedrooms == 0 {
		return 1.0
	}
	ratio := (float64(b.FullBaths) + 0.5*float64(b.HalfBaths)) / float64(b.Bedrooms)

	switch {
	case adj.LuxuryRatio > 0 && ratio >= adj.LuxuryRatio:
		return adj.LuxuryModifier
	case adj.GoodRatio > 0 && ratio >= adj.GoodRatio:
		return adj.GoodModifier
	case adj.PoorRatio > 0 && ratio < adj.PoorRatio:
		return adj.PoorModifier
	default:
		return 1.0
	}
}

// miscPoints sums the miscellaneous item contributions. Air conditioning
// scales with the percentage of the structure served, in 10% increments.
func miscPoints(m model.MiscImprovements, cfg model.MiscItemPoints) float64 {
	var pts float64

	if m.AirConditioningPct > 0 {
		coverage := math.Round(m.AirConditioningPct/10) * 10
		if coverage > 100 {
			coverage = 100
		}
		pts += cfg.AirConditioning * coverage / 100
	}
	if m.HasGenerator {
		pts += cfg.Generator
	}
	if m.ExtraKitchens > 0 {
		pts += cfg.PerExtraKitchen * float64(m.ExtraKitchens)
	}
	return pts
}
