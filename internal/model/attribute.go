package model

// AttributeKind identifies which factor table a reference attribute
// belongs to.
type AttributeKind string

const (
	AttrNeighborhood AttributeKind = "neighborhood"
	AttrSite         AttributeKind = "site"
	AttrDriveway     AttributeKind = "driveway"
	AttrRoad         AttributeKind = "road"
	AttrTopography   AttributeKind = "topography"

	// View factor tables.
	AttrViewSubject  AttributeKind = "view_subject"
	AttrViewWidth    AttributeKind = "view_width"
	AttrViewDistance AttributeKind = "view_distance"
	AttrViewDepth    AttributeKind = "view_depth"

	// Waterfront factor tables.
	AttrWaterFrontage   AttributeKind = "water_frontage"
	AttrWaterAccess     AttributeKind = "water_access"
	AttrWaterLocation   AttributeKind = "water_location"
	AttrWaterTopography AttributeKind = "water_topography"

	// Shared condition table used by views and waterfronts.
	AttrCondition AttributeKind = "condition"
)

// Attribute is a named dimensionless factor multiplier. Factor changes
// apply immediately to future calculations; attributes carry no temporal
// versioning of their own.
type Attribute struct {
	ID             string        `json:"id"`
	MunicipalityID string        `json:"municipality_id"`
	Kind           AttributeKind `json:"kind"`
	Code           string        `json:"code"`
	Name           string        `json:"name"`
	Factor         float64       `json:"factor"`
}

// CurrentUseCategory is a reduced-tax valuation category for qualifying
// open land, valued at a flat per-acre rate.
type CurrentUseCategory struct {
	ID             string  `json:"id"`
	MunicipalityID string  `json:"municipality_id"`
	Code           string  `json:"code"`
	Name           string  `json:"name"`
	RatePerAcre    float64 `json:"rate_per_acre"`
}
