package landcalc

import (
	"time"

	"go.uber.org/zap"

	"github.com/chadRoberge/avitar-suite-sub003/internal/apperr"
	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
	"github.com/chadRoberge/avitar-suite-sub003/internal/refdata"
)

// Calculator computes land values. It is pure and synchronous: all
// reference data arrives through the CalculationContext and results are
// written onto the assessment record passed in.
type Calculator struct {
	now func() time.Time
}

// New creates a land calculator.
func New() *Calculator {
	return &Calculator{now: time.Now}
}

// WithNow sets a fixed clock for testing.
func (c *Calculator) WithNow(t time.Time) *Calculator {
	c.now = func() time.Time { return t }
	return c
}

// CalculateCard recomputes every line, view, and waterfront on a card and
// rolls them into the card totals. The only fatal condition is a missing
// zone reference; missing optional reference data degrades to neutral
// factors or zero values with a log line.
func (c *Calculator) CalculateCard(a *model.LandAssessment, cc *refdata.CalculationContext) error {
	if a.ZoneID == "" {
		return apperr.InvalidInput("land assessment has no zone reference")
	}
	zone, ok := cc.Zone(a.ZoneID)
	if !ok {
		return apperr.InvalidInput("land assessment references unknown zone " + a.ZoneID)
	}

	cardFactors := model.LineFactors{
		Neighborhood: cc.Factor(model.AttrNeighborhood, a.NeighborhoodID),
		Site:         cc.Factor(model.AttrSite, a.SiteID),
		Driveway:     cc.Factor(model.AttrDriveway, a.DrivewayID),
		Road:         cc.Factor(model.AttrRoad, a.RoadID),
	}

	var totals model.CalculatedTotals
	for i := range a.Lines {
		c.calculateLine(&a.Lines[i], zone, cardFactors, cc)
		totals.MarketValue += a.Lines[i].MarketValue
		totals.CurrentUseValue += a.Lines[i].CurrentUseValue
		totals.CurrentUseCredit += a.Lines[i].CurrentUseCredit
		totals.AssessedValue += a.Lines[i].AssessedValue
	}

	hasCurrentUse := a.HasCurrentUse()

	for i := range a.Views {
		c.calculateView(&a.Views[i], zone, cc)
		totals.ViewValue += a.Views[i].AssessedValue
		totals.AssessedValue += a.Views[i].AssessedValue
		totals.MarketValue += a.Views[i].MarketValue
	}

	for i := range a.Waterfronts {
		c.calculateWaterfront(&a.Waterfronts[i], hasCurrentUse, cc)
		totals.WaterfrontValue += a.Waterfronts[i].AssessedValue
		totals.AssessedValue += a.Waterfronts[i].AssessedValue
		totals.MarketValue += a.Waterfronts[i].MarketValue
	}

	// Rounding happens once, at the card rollup boundary.
	totals.MarketValue = model.RoundToHundred(totals.MarketValue)
	totals.CurrentUseValue = model.RoundToHundred(totals.CurrentUseValue)
	totals.CurrentUseCredit = model.RoundToHundred(totals.CurrentUseCredit)
	totals.ViewValue = model.RoundToHundred(totals.ViewValue)
	totals.WaterfrontValue = model.RoundToHundred(totals.WaterfrontValue)
	totals.AssessedValue = model.RoundToHundred(totals.AssessedValue)

	a.Totals = totals
	a.LastCalculated = c.now().UTC()
	return nil
}

// calculateLine values one land-use line. Excess acreage lines are valued
// at the zone's excess-land rate; all other acreage lines go through the
// ladder.
func (c *Calculator) calculateLine(ln *model.LandUseLine, zone *model.Zone, cardFactors model.LineFactors, cc *refdata.CalculationContext) {
	factors := cardFactors
	factors.Topography = cc.Factor(model.AttrTopography, ln.TopographyID)
	ln.Factors = factors

	switch {
	case ln.IsExcessAcreage:
		ln.BaseRate = zone.ExcessLandCostPerAcre
		ln.BaseValue = ln.Size * zone.ExcessLandCostPerAcre
	case ln.Unit == model.UnitFrontage:
		// Frontage lines are priced off the excess-land rate per front
		// foot relative to the zone minimum frontage.
		ln.BaseRate = zone.ExcessLandCostPerAcre
		if zone.MinimumFrontage > 0 {
			ln.BaseValue = ln.Size / zone.MinimumFrontage * zone.ExcessLandCostPerAcre
		} else {
			ln.BaseValue = 0
		}
	default:
		value, ok := LadderValue(zone, ln.Size)
		if !ok {
			warnMissingLadder(zone)
		}
		ln.BaseRate = value
		ln.BaseValue = value
	}

	ln.MarketValue = ln.BaseValue *
		factors.Neighborhood * factors.Site * factors.Driveway * factors.Road * factors.Topography

	if ln.IsCurrentUse {
		cat, ok := cc.CurrentUseCategory(ln.CurrentUseCategoryID)
		if !ok {
			zap.L().Warn("landcalc: current use line references unknown category",
				zap.String("category_id", ln.CurrentUseCategoryID),
			)
		}
		ln.CurrentUseValue = cat.RatePerAcre * ln.Size
		ln.CurrentUseCredit = ln.MarketValue - ln.CurrentUseValue
		if ln.CurrentUseCredit < 0 {
			ln.CurrentUseCredit = 0
		}
		ln.AssessedValue = ln.CurrentUseValue
	} else {
		ln.CurrentUseValue = 0
		ln.CurrentUseCredit = 0
		ln.AssessedValue = ln.MarketValue
	}
}

// calculateView values one view record: base view value multiplied by the
// subject, width, distance, depth, and condition factors.
func (c *Calculator) calculateView(v *model.ViewRecord, zone *model.Zone, cc *refdata.CalculationContext) {
	base := v.BaseValue
	if base <= 0 {
		base = zone.BaseViewValue
	}

	v.MarketValue = base *
		cc.Factor(model.AttrViewSubject, v.SubjectID) *
		cc.Factor(model.AttrViewWidth, v.WidthID) *
		cc.Factor(model.AttrViewDistance, v.DistanceID) *
		cc.Factor(model.AttrViewDepth, v.DepthID) *
		cc.Factor(model.AttrCondition, v.ConditionID)
	v.AssessedValue = v.MarketValue
}

// calculateWaterfront values one waterfront record: base value multiplied
// by the frontage, access, topography, location, and condition factors.
// Assessed value is forced to zero when the parcel is in current use.
func (c *Calculator) calculateWaterfront(w *model.WaterfrontRecord, parcelCurrentUse bool, cc *refdata.CalculationContext) {
	w.MarketValue = w.BaseValue *
		cc.Factor(model.AttrWaterFrontage, w.FrontageID) *
		cc.Factor(model.AttrWaterAccess, w.AccessID) *
		cc.Factor(model.AttrWaterTopography, w.TopographyID) *
		cc.Factor(model.AttrWaterLocation, w.LocationID) *
		cc.Factor(model.AttrCondition, w.ConditionID)

	if parcelCurrentUse {
		w.AssessedValue = 0
	} else {
		w.AssessedValue = w.MarketValue
	}
}
