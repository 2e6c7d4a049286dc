package bldgcalc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
	"github.com/chadRoberge/avitar-suite-sub003/internal/refdata"
)

func testContext() *refdata.CalculationContext {
	return &refdata.CalculationContext{
		MunicipalityID: "muni-1",
		EffectiveYear:  2026,
		FeaturePoints: map[string]model.FeaturePointEntry{
			"base-ranch":  {ID: "base-ranch", Category: "base_type", Points: 20},
			"frame-wood":  {ID: "frame-wood", Category: "frame", Points: 5},
			"wall-vinyl":  {ID: "wall-vinyl", Category: "exterior_wall", Points: 3},
			"roof-asph":   {ID: "roof-asph", Category: "roof", Points: 2},
			"heat-fhw":    {ID: "heat-fhw", Category: "heating", Points: 4},
			"floor-hardw": {ID: "floor-hardw", Category: "flooring", Points: 6},
		},
		Config: model.DefaultCalculationConfig("muni-1", 2026),
	}
}

func newBuilding() *model.BuildingAssessment {
	return &model.BuildingAssessment{
		PropertyID:    "p1",
		EffectiveYear: 2026,
		BuildingClass: model.ClassResidential,
		Features: model.FeatureSelections{
			BaseTypeID:      "base-ranch",
			FrameID:         "frame-wood",
			ExteriorWallIDs: []string{"wall-vinyl"},
			RoofID:          "roof-asph",
			HeatingID:       "heat-fhw",
			FlooringIDs:     []string{"floor-hardw"},
		},
		Bedrooms:      3,
		FullBaths:     2,
		YearBuilt:     2026,
		Condition:     model.CondAverage,
		EffectiveArea: 1800,
	}
}

func TestCalculateCard_Breakdown(t *testing.T) {
	cc := testContext()
	b := newBuilding()

	calc := New().WithNow(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, calc.CalculateCard(b, cc))
	require.NotNil(t, b.Details)

	d := b.Details
	assert.Equal(t, 40.0, d.FeaturePoints)
	// base 10 + 3 bedrooms*3 + 2 full baths*4 = 27
	assert.Equal(t, 27.0, d.BedroomBathRate)
	// 2/3 bath-to-bedroom ratio falls below the 1.0 good threshold and
	// above the 0.5 poor threshold, so no modifier applies.
	assert.Equal(t, 1.0, d.RatioModifier)
	assert.Equal(t, 67.0, d.TotalPoints)
	// points*1.0 multiplier + 40 config base rate
	assert.Equal(t, 107.0, d.BaseRate)
	// 1800 sq ft is the residential median, scale factor is neutral.
	assert.Equal(t, 1.0, d.ScaleFactor)
	assert.Equal(t, 107.0*1800, d.ReplacementCostNew)
	assert.Zero(t, d.BuildingAge)
	assert.Zero(t, d.Depreciation.Total)
	assert.Equal(t, model.RoundToHundred(107.0*1800), b.BuildingValue)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), b.LastCalculated)
}

func TestCalculateCard_MissingFeatureContributesZero(t *testing.T) {
	cc := testContext()
	b := newBuilding()
	b.Features.RoofID = "roof-gone"

	require.NoError(t, New().CalculateCard(b, cc))
	assert.Equal(t, 38.0, b.Details.FeaturePoints)
}

func TestCalculateCard_NegativeAreaFails(t *testing.T) {
	cc := testContext()
	b := newBuilding()
	b.EffectiveArea = -10

	require.Error(t, New().CalculateCard(b, cc))
}

func TestCalculateCard_NilConfigFails(t *testing.T) {
	cc := testContext()
	cc.Config = nil

	require.Error(t, New().CalculateCard(newBuilding(), cc))
}

func TestCalculateCard_ValueNeverNegative(t *testing.T) {
	cc := testContext()
	b := newBuilding()
	b.YearBuilt = 1850
	b.Condition = model.CondPoor
	b.PhysicalDeprPct = 100
	b.FunctionalDeprPct = 100

	require.NoError(t, New().CalculateCard(b, cc))
	assert.Equal(t, 1.0, b.Details.Depreciation.Total)
	assert.Zero(t, b.BuildingValue)
}

func TestRatioModifier_Ordering(t *testing.T) {
	adj := model.DefaultCalculationConfig("m", 2026).Ratio

	cases := []struct {
		name      string
		bedrooms  int
		fullBaths int
		halfBaths int
		want      float64
	}{
		{"luxury", 2, 3, 0, 1.10},
		{"luxury boundary", 2, 3, 0, 1.10},
		{"good", 2, 2, 0, 1.05},
		{"good with halves", 2, 1, 2, 1.05},
		{"neutral", 3, 2, 0, 1.0},
		{"poor", 3, 1, 0, 0.95},
		{"no bedrooms", 0, 2, 0, 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := &model.BuildingAssessment{
				Bedrooms:  tc.bedrooms,
				FullBaths: tc.fullBaths,
				HalfBaths: tc.halfBaths,
			}
			assert.Equal(t, tc.want, ratioModifier(b, adj))
		})
	}
}

func TestScaleFactor_Curve(t *testing.T) {
	curve := model.EconomyOfScale{
		MedianSize:     1800,
		SmallestSize:   600,
		LargestSize:    6000,
		SmallestFactor: 1.25,
		LargestFactor:  0.85,
	}

	assert.Equal(t, 1.25, scaleFactor(curve, 300))
	assert.Equal(t, 1.25, scaleFactor(curve, 600))
	assert.Equal(t, 1.0, scaleFactor(curve, 1800))
	assert.Equal(t, 0.85, scaleFactor(curve, 6000))
	assert.Equal(t, 0.85, scaleFactor(curve, 20000))

	// Midpoint between smallest and median.
	assert.InDelta(t, 1.125, scaleFactor(curve, 1200), 1e-9)
	// Midpoint between median and largest.
	assert.InDelta(t, 0.925, scaleFactor(curve, 3900), 1e-9)
}

func TestScaleFactor_MonotoneDecreasing(t *testing.T) {
	curve := model.DefaultCalculationConfig("m", 2026).Residential

	prev := scaleFactor(curve, 100)
	for size := 200.0; size <= 8000; size += 100 {
		f := scaleFactor(curve, size)
		assert.LessOrEqual(t, f, prev, "size %v", size)
		prev = f
	}
}

func TestScaleFactor_UnconfiguredCurveNeutral(t *testing.T) {
	assert.Equal(t, 1.0, scaleFactor(model.EconomyOfScale{}, 1500))
}

func TestDepreciate_AgeAndCondition(t *testing.T) {
	b := &model.BuildingAssessment{Condition: model.CondAverage}
	d := depreciate(b, 30)
	assert.InDelta(t, 0.30, d.Normal, 1e-9)
	assert.InDelta(t, 0.30, d.Total, 1e-9)

	b.Condition = model.CondExcellent
	d = depreciate(b, 30)
	assert.InDelta(t, 0.15, d.Normal, 1e-9)
}

func TestDepreciate_NormalCapped(t *testing.T) {
	b := &model.BuildingAssessment{Condition: model.CondPoor}
	d := depreciate(b, 200)
	assert.Equal(t, 0.70, d.Normal)
}

func TestDepreciate_TotalClamped(t *testing.T) {
	b := &model.BuildingAssessment{
		Condition:         model.CondPoor,
		PhysicalDeprPct:   80,
		FunctionalDeprPct: 60,
		ExternalDeprPct:   40,
	}
	d := depreciate(b, 50)
	assert.Equal(t, 1.0, d.Total)
}

func TestDepreciate_NegativePctsClamped(t *testing.T) {
	b := &model.BuildingAssessment{
		Condition:       model.CondAverage,
		PhysicalDeprPct: -20,
	}
	d := depreciate(b, 0)
	assert.Zero(t, d.Physical)
	assert.Zero(t, d.Total)
}

func TestMiscPoints_Increments(t *testing.T) {
	cfg := model.DefaultCalculationConfig("m", 2026).MiscPoints

	assert.Zero(t, miscPoints(model.MiscImprovements{}, cfg))
	assert.Equal(t, 4.0, miscPoints(model.MiscImprovements{AirConditioningPct: 100}, cfg))
	assert.Equal(t, 2.0, miscPoints(model.MiscImprovements{AirConditioningPct: 50}, cfg))
	// 55% rounds to the 60% increment.
	assert.InDelta(t, 2.4, miscPoints(model.MiscImprovements{AirConditioningPct: 55}, cfg), 1e-9)
	assert.Equal(t, 2.0, miscPoints(model.MiscImprovements{HasGenerator: true}, cfg))
	assert.Equal(t, 10.0, miscPoints(model.MiscImprovements{ExtraKitchens: 2}, cfg))
}

func TestBuildingAge_FutureYearBuilt(t *testing.T) {
	b := newBuilding()
	b.YearBuilt = 2030

	c := New()
	assert.Zero(t, c.buildingAge(b))

	b.YearBuilt = 0
	assert.Zero(t, c.buildingAge(b))
}
