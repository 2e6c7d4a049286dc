package landcalc

import (
	"go.uber.org/zap"

	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
)

// RedistributeExcess enforces a zone's minimum acreage across a card's
// land lines. Any non-excess acreage line larger than the minimum is
// clipped to the minimum and the overflow accumulates into a single
// excess-acreage line: an existing one when the card has it, otherwise a
// new line inheriting land-use type and topography from the first
// contributing line.
//
// Total acreage is conserved: the sum of line sizes before and after the
// redistribution is identical.
func RedistributeExcess(a *model.LandAssessment, zone *model.Zone) bool {
	if zone.MinimumAcreage <= 0 {
		return false
	}

	var excess float64
	var first *model.LandUseLine
	for i := range a.Lines {
		ln := &a.Lines[i]
		if ln.IsExcessAcreage || ln.Unit != model.UnitAcres {
			continue
		}
		if ln.Size > zone.MinimumAcreage {
			excess += ln.Size - zone.MinimumAcreage
			ln.Size = zone.MinimumAcreage
			if first == nil {
				first = ln
			}
		}
	}

	if excess == 0 {
		return false
	}

	for i := range a.Lines {
		if a.Lines[i].IsExcessAcreage {
			a.Lines[i].Size += excess
			logRedistribution(a, zone, excess, false)
			return true
		}
	}

	a.Lines = append(a.Lines, model.LandUseLine{
		LandUseType:     first.LandUseType,
		TopographyID:    first.TopographyID,
		Size:            excess,
		Unit:            model.UnitAcres,
		IsExcessAcreage: true,
	})
	logRedistribution(a, zone, excess, true)
	return true
}

func logRedistribution(a *model.LandAssessment, zone *model.Zone, excess float64, created bool) {
	zap.L().Debug("landcalc: redistributed excess acreage",
		zap.String("property_id", a.PropertyID),
		zap.Int("card", a.CardNumber),
		zap.String("zone_code", zone.Code),
		zap.Float64("excess_acres", excess),
		zap.Bool("created_line", created),
	)
}
