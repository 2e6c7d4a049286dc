// Package refdata loads the reference data consumed by the valuation
// calculators: zones, ladders, attribute factor tables, current-use
// categories, feature-point tables, and the calculation config.
package refdata

import (
	"go.uber.org/zap"

	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
)

// CalculationContext is an immutable snapshot of reference data built once
// per job or request and passed explicitly to every calculator call. The
// calculators never reach into global state or the database.
type CalculationContext struct {
	MunicipalityID string
	EffectiveYear  int

	Zones         map[string]*model.Zone
	Attributes    map[model.AttributeKind]map[string]model.Attribute
	CurrentUse    map[string]model.CurrentUseCategory
	FeaturePoints map[string]model.FeaturePointEntry
	Config        *model.CalculationConfig
}

// Zone returns the zone for the given id.
func (c *CalculationContext) Zone(id string) (*model.Zone, bool) {
	z, ok := c.Zones[id]
	return z, ok
}

// Factor resolves an attribute reference to its multiplier. An empty id or
// a missing reference yields the neutral factor 1.0; missing references
// are logged since they usually indicate deactivated reference data.
func (c *CalculationContext) Factor(kind model.AttributeKind, id string) float64 {
	if id == "" {
		return 1.0
	}
	attrs, ok := c.Attributes[kind]
	if !ok {
		return 1.0
	}
	a, ok := attrs[id]
	if !ok {
		zap.L().Debug("refdata: missing attribute reference, defaulting factor to 1.0",
			zap.String("kind", string(kind)),
			zap.String("id", id),
		)
		return 1.0
	}
	if a.Factor == 0 {
		// Unset factors are treated as neutral, not zeroing.
		return 1.0
	}
	return a.Factor
}

// CurrentUseCategory returns the current-use category for the given id.
func (c *CalculationContext) CurrentUseCategory(id string) (model.CurrentUseCategory, bool) {
	cat, ok := c.CurrentUse[id]
	return cat, ok
}

// Points resolves a feature-point reference. Missing references contribute
// zero points.
func (c *CalculationContext) Points(id string) float64 {
	if id == "" {
		return 0
	}
	e, ok := c.FeaturePoints[id]
	if !ok {
		zap.L().Debug("refdata: missing feature point reference",
			zap.String("id", id),
		)
		return 0
	}
	return e.Points
}
