package bldgcalc

import "github.com/chadRoberge/avitar-suite-sub003/internal/model"

// annualRate maps condition to the normal per-year depreciation rate.
var annualRate = map[model.BuildingCondition]float64{
	model.CondExcellent: 0.005,
	model.CondGood:      0.0075,
	model.CondAverage:   0.01,
	model.CondFair:      0.015,
	model.CondPoor:      0.02,
}

// maxNormalDepr caps age-based depreciation so an old but standing
// structure keeps residual value unless the assessor says otherwise.
const maxNormalDepr = 0.70

// depreciate combines normal (age x condition) depreciation with the
// assessor-entered physical, functional, and external percentages. Each
// component and the total are clamped to [0,1].
func depreciate(b *model.BuildingAssessment, age int) model.DepreciationBreakdown {
	rate, ok := annualRate[b.Condition]
	if !ok {
		rate = annualRate[model.CondAverage]
	}

	d := model.DepreciationBreakdown{
		Normal:     clampFrac(float64(age) * rate),
		Physical:   clampFrac(b.PhysicalDeprPct / 100),
		Functional: clampFrac(b.FunctionalDeprPct / 100),
		External:   clampFrac(b.ExternalDeprPct / 100),
	}
	if d.Normal > maxNormalDepr {
		d.Normal = maxNormalDepr
	}
	d.Total = clampFrac(d.Normal + d.Physical + d.Functional + d.External)
	return d
}

func clampFrac(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
