// Package model defines the domain types shared across the valuation engine.
package model

// Zone is a land-use district. Zones are referenced by land assessments and
// are soft-deactivated rather than deleted.
type Zone struct {
	ID                    string           `json:"id"`
	MunicipalityID        string           `json:"municipality_id"`
	Code                  string           `json:"code"`
	Name                  string           `json:"name"`
	MinimumAcreage        float64          `json:"minimum_acreage"`
	MinimumFrontage       float64          `json:"minimum_frontage"`
	ExcessLandCostPerAcre float64          `json:"excess_land_cost_per_acre"`
	BaseViewValue         float64          `json:"base_view_value"`
	Active                bool             `json:"active"`
	Ladder                []LandLadderTier `json:"ladder"`
}

// LandLadderTier is one acreage-to-value breakpoint on a zone's ladder.
// A zone's tiers are unique per acreage and sorted ascending for
// interpolation.
type LandLadderTier struct {
	Acreage float64 `json:"acreage"`
	Value   float64 `json:"value"`
	Order   int     `json:"order"`
}
