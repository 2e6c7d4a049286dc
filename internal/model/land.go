package model

import "time"

// SizeUnit is the measurement basis for a land-use line.
type SizeUnit string

const (
	UnitAcres    SizeUnit = "acres"
	UnitFrontage SizeUnit = "frontage"
)

// LandUseLine is one land-use entry on a card. The computed fields are
// filled in by the land calculator and cleared on recalculation.
type LandUseLine struct {
	LandUseType          string   `json:"land_use_type"`
	Size                 float64  `json:"size"`
	Unit                 SizeUnit `json:"unit"`
	TopographyID         string   `json:"topography_id,omitempty"`
	IsCurrentUse         bool     `json:"is_current_use"`
	CurrentUseCategoryID string   `json:"current_use_category_id,omitempty"`
	IsExcessAcreage      bool     `json:"is_excess_acreage"`

	// Computed by the land calculator.
	BaseRate         float64     `json:"base_rate"`
	BaseValue        float64     `json:"base_value"`
	Factors          LineFactors `json:"factors"`
	MarketValue      float64     `json:"market_value"`
	CurrentUseValue  float64     `json:"current_use_value"`
	CurrentUseCredit float64     `json:"current_use_credit"`
	AssessedValue    float64     `json:"assessed_value"`
}

// LineFactors records every contributing multiplier applied to a line.
// All factors default to 1.0 when the referenced attribute is unset.
type LineFactors struct {
	Neighborhood float64 `json:"neighborhood"`
	Site         float64 `json:"site"`
	Driveway     float64 `json:"driveway"`
	Road         float64 `json:"road"`
	Topography   float64 `json:"topography"`
}

// ViewRecord is a scenic-view valuation attached to a card. Its value is
// the zone's base view value multiplied by the subject, width, distance,
// depth, and condition factors.
type ViewRecord struct {
	ID          string `json:"id"`
	SubjectID   string `json:"subject_id,omitempty"`
	WidthID     string `json:"width_id,omitempty"`
	DistanceID  string `json:"distance_id,omitempty"`
	DepthID     string `json:"depth_id,omitempty"`
	ConditionID string `json:"condition_id,omitempty"`

	// BaseValue overrides the zone base view value when positive.
	BaseValue float64 `json:"base_value,omitempty"`

	MarketValue   float64 `json:"market_value"`
	AssessedValue float64 `json:"assessed_value"`
}

// WaterfrontRecord is a water-frontage valuation attached to a card.
// Assessed value is forced to zero when the parcel carries a current-use
// designation.
type WaterfrontRecord struct {
	ID           string  `json:"id"`
	FrontageFeet float64 `json:"frontage_feet"`
	FrontageID   string  `json:"frontage_id,omitempty"`
	AccessID     string  `json:"access_id,omitempty"`
	TopographyID string  `json:"topography_id,omitempty"`
	LocationID   string  `json:"location_id,omitempty"`
	ConditionID  string  `json:"condition_id,omitempty"`

	BaseValue float64 `json:"base_value"`

	MarketValue   float64 `json:"market_value"`
	AssessedValue float64 `json:"assessed_value"`
}

// CalculatedTotals is the card-level rollup across land lines, views, and
// waterfronts. Money amounts here are rounded to the nearest hundred; the
// per-line intermediate values are not.
type CalculatedTotals struct {
	MarketValue      float64 `json:"market_value"`
	CurrentUseValue  float64 `json:"current_use_value"`
	CurrentUseCredit float64 `json:"current_use_credit"`
	ViewValue        float64 `json:"view_value"`
	WaterfrontValue  float64 `json:"waterfront_value"`
	AssessedValue    float64 `json:"assessed_value"`
}

// LandAssessment is one card's land valuation for one effective year.
// Records are copy-on-write across years: a new effective-year record is
// created rather than mutating history.
type LandAssessment struct {
	ID             string `json:"id"`
	MunicipalityID string `json:"municipality_id"`
	PropertyID     string `json:"property_id"`
	CardNumber     int    `json:"card_number"`
	EffectiveYear  int    `json:"effective_year"`

	ZoneID         string `json:"zone_id"`
	NeighborhoodID string `json:"neighborhood_id,omitempty"`
	SiteID         string `json:"site_id,omitempty"`
	DrivewayID     string `json:"driveway_id,omitempty"`
	RoadID         string `json:"road_id,omitempty"`

	Lines       []LandUseLine      `json:"lines"`
	Views       []ViewRecord       `json:"views,omitempty"`
	Waterfronts []WaterfrontRecord `json:"waterfronts,omitempty"`

	Totals         CalculatedTotals `json:"totals"`
	LastCalculated time.Time        `json:"last_calculated"`
}

// HasCurrentUse reports whether any line on the card carries a current-use
// designation. Waterfront assessed values are zeroed when this is true.
func (a *LandAssessment) HasCurrentUse() bool {
	for _, ln := range a.Lines {
		if ln.IsCurrentUse {
			return true
		}
	}
	return false
}

// TotalAcreage sums the size of every acreage line, including excess lines.
func (a *LandAssessment) TotalAcreage() float64 {
	var total float64
	for _, ln := range a.Lines {
		if ln.Unit == UnitAcres {
			total += ln.Size
		}
	}
	return total
}
