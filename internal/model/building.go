package model

import "time"

// BuildingClass selects which economies-of-scale curve applies.
type BuildingClass string

const (
	ClassResidential  BuildingClass = "residential"
	ClassCommercial   BuildingClass = "commercial"
	ClassIndustrial   BuildingClass = "industrial"
	ClassManufactured BuildingClass = "manufactured"
)

// BuildingCondition drives the normal (age-based) depreciation rate.
type BuildingCondition string

const (
	CondExcellent BuildingCondition = "excellent"
	CondGood      BuildingCondition = "good"
	CondAverage   BuildingCondition = "average"
	CondFair      BuildingCondition = "fair"
	CondPoor      BuildingCondition = "poor"
)

// FeatureSelections holds the attribute choices that contribute feature
// points. Keys into the municipality's building feature-point tables.
type FeatureSelections struct {
	BaseTypeID      string   `json:"base_type_id,omitempty"`
	FrameID         string   `json:"frame_id,omitempty"`
	ExteriorWallIDs []string `json:"exterior_wall_ids,omitempty"`
	RoofID          string   `json:"roof_id,omitempty"`
	HeatingID       string   `json:"heating_id,omitempty"`
	FlooringIDs     []string `json:"flooring_ids,omitempty"`
}

// MiscImprovements holds the miscellaneous point items.
type MiscImprovements struct {
	// AirConditioningPct is the percentage of the structure served by
	// central air, applied in 10% increments.
	AirConditioningPct float64 `json:"air_conditioning_pct"`
	HasGenerator       bool    `json:"has_generator"`
	ExtraKitchens      int     `json:"extra_kitchens"`
}

// BuildingAssessment is one card's building valuation for one effective
// year, following the same copy-on-write discipline as LandAssessment.
// EffectiveArea is supplied externally from summed exterior-sketch areas.
type BuildingAssessment struct {
	ID             string `json:"id"`
	MunicipalityID string `json:"municipality_id"`
	PropertyID     string `json:"property_id"`
	CardNumber     int    `json:"card_number"`
	EffectiveYear  int    `json:"effective_year"`

	BuildingClass BuildingClass     `json:"building_class"`
	Features      FeatureSelections `json:"features"`
	Misc          MiscImprovements  `json:"misc"`

	Bedrooms  int `json:"bedrooms"`
	FullBaths int `json:"full_baths"`
	HalfBaths int `json:"half_baths"`

	YearBuilt     int               `json:"year_built"`
	Condition     BuildingCondition `json:"condition"`
	EffectiveArea float64           `json:"effective_area"`

	// Assessor-entered depreciation percentages (0-100).
	FunctionalDeprPct float64 `json:"functional_depr_pct"`
	ExternalDeprPct   float64 `json:"external_depr_pct"`
	PhysicalDeprPct   float64 `json:"physical_depr_pct"`

	Details        *BuildingCalculation `json:"details,omitempty"`
	BuildingValue  float64              `json:"building_value"`
	LastCalculated time.Time            `json:"last_calculated"`
}

// BuildingCalculation is the persisted breakdown of a building valuation.
type BuildingCalculation struct {
	FeaturePoints      float64 `json:"feature_points"`
	BedroomBathRate    float64 `json:"bedroom_bath_rate"`
	RatioModifier      float64 `json:"ratio_modifier"`
	MiscPoints         float64 `json:"misc_points"`
	TotalPoints        float64 `json:"total_points"`
	BaseRate           float64 `json:"base_rate"`
	ScaleFactor        float64 `json:"scale_factor"`
	AdjustedBaseRate   float64 `json:"adjusted_base_rate"`
	ReplacementCostNew float64 `json:"replacement_cost_new"`
	BuildingAge        int     `json:"building_age"`

	Depreciation DepreciationBreakdown `json:"depreciation"`
}

// DepreciationBreakdown splits total depreciation into its sources.
// Fractions are in [0,1] and the total is clamped to [0,1].
type DepreciationBreakdown struct {
	Normal     float64 `json:"normal"`
	Physical   float64 `json:"physical"`
	Functional float64 `json:"functional"`
	External   float64 `json:"external"`
	Total      float64 `json:"total"`
}

// FeaturePointEntry is one row of a municipality's building feature-point
// reference table.
type FeaturePointEntry struct {
	ID             string  `json:"id"`
	MunicipalityID string  `json:"municipality_id"`
	Category       string  `json:"category"` // base_type, frame, exterior_wall, roof, heating, flooring
	Code           string  `json:"code"`
	Name           string  `json:"name"`
	Points         float64 `json:"points"`
}
