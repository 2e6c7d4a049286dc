package model

import "time"

// CardAssessment is the per-card breakdown stored alongside parcel totals.
type CardAssessment struct {
	CardNumber    int     `json:"card_number"`
	LandValue     float64 `json:"land_value"`
	BuildingValue float64 `json:"building_value"`
	FeatureValue  float64 `json:"feature_value"`
	TotalValue    float64 `json:"total_value"`
}

// ParcelTotals is the parcel-level sum across active cards.
type ParcelTotals struct {
	LandValue     float64 `json:"land_value"`
	BuildingValue float64 `json:"building_value"`
	FeatureValue  float64 `json:"feature_value"`
	TotalValue    float64 `json:"total_value"`
}

// ParcelAssessment is the parcel-level rollup for one effective year,
// rebuilt by the aggregator whenever any constituent card assessment
// changes.
type ParcelAssessment struct {
	ID             string `json:"id"`
	MunicipalityID string `json:"municipality_id"`
	PropertyID     string `json:"property_id"`
	EffectiveYear  int    `json:"effective_year"`

	Totals          ParcelTotals     `json:"totals"`
	CardAssessments []CardAssessment `json:"card_assessments"`
	LastCalculated  time.Time        `json:"last_calculated"`
}

// FeatureAssessment carries a card's "other improvements" total, computed
// by an external collaborator and consumed here during aggregation.
type FeatureAssessment struct {
	PropertyID    string  `json:"property_id"`
	CardNumber    int     `json:"card_number"`
	EffectiveYear int     `json:"effective_year"`
	FeatureValue  float64 `json:"feature_value"`
}
