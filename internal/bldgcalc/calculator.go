package bldgcalc

import (
	"time"

	"github.com/chadRoberge/avitar-suite-sub003/internal/apperr"
	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
	"github.com/chadRoberge/avitar-suite-sub003/internal/refdata"
)

// Calculator computes building values. Like the land calculator it is
// pure: reference data comes in through the CalculationContext and the
// result lands on the assessment record.
type Calculator struct {
	now func() time.Time
}

// New creates a building calculator.
func New() *Calculator {
	return &Calculator{now: time.Now}
}

// WithNow sets a fixed clock for testing.
func (c *Calculator) WithNow(t time.Time) *Calculator {
	c.now = func() time.Time { return t }
	return c
}

// CalculateCard recomputes one card's building value:
//
//	points   = features + bedroomBathRate*ratioModifier + misc
//	baseRate = points*pointMultiplier + config base rate
//	RCN      = baseRate * scaleFactor * effectiveArea
//	value    = RCN * (1 - totalDepreciation), floored at zero
//
// The full breakdown is stored on the record for display and audit.
func (c *Calculator) CalculateCard(b *model.BuildingAssessment, cc *refdata.CalculationContext) error {
	if b.EffectiveArea < 0 {
		return apperr.InvalidInput("building has negative effective area")
	}
	cfg := cc.Config
	if cfg == nil {
		return apperr.InvalidInput("calculation context has no config")
	}

	calc := model.BuildingCalculation{
		FeaturePoints:   featurePoints(b.Features, cc),
		BedroomBathRate: bedroomBathRate(b, cfg.BedroomBath),
		RatioModifier:   ratioModifier(b, cfg.Ratio),
		MiscPoints:      miscPoints(b.Misc, cfg.MiscPoints),
	}
	calc.TotalPoints = calc.FeaturePoints + calc.BedroomBathRate*calc.RatioModifier + calc.MiscPoints

	multiplier := cfg.PointMultiplier
	if multiplier == 0 {
		multiplier = 1.0
	}
	calc.BaseRate = calc.TotalPoints*multiplier + cfg.BaseRate
	calc.ScaleFactor = scaleFactor(cfg.ScaleCurve(b.BuildingClass), b.EffectiveArea)
	calc.AdjustedBaseRate = calc.BaseRate * calc.ScaleFactor
	calc.ReplacementCostNew = calc.AdjustedBaseRate * b.EffectiveArea

	calc.BuildingAge = c.buildingAge(b)
	calc.Depreciation = depreciate(b, calc.BuildingAge)

	value := calc.ReplacementCostNew * (1 - calc.Depreciation.Total)
	if value < 0 {
		value = 0
	}

	b.Details = &calc
	b.BuildingValue = model.RoundToHundred(value)
	b.LastCalculated = c.now().UTC()
	return nil
}

// buildingAge is years since construction, never negative. A zero year
// built means unknown and ages as a new structure.
func (c *Calculator) buildingAge(b *model.BuildingAssessment) int {
	if b.YearBuilt <= 0 {
		return 0
	}
	age := b.EffectiveYear - b.YearBuilt
	if age < 0 {
		return 0
	}
	return age
}
