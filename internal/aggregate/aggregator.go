// Package aggregate rolls card-level land, building, and feature values
// up into parcel assessments.
package aggregate

import (
	"sort"
	"time"

	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
)

// Aggregator builds parcel rollups. It is pure: callers hand it the
// card-level records for a set of properties and receive the rebuilt
// parcel assessments.
type Aggregator struct {
	now func() time.Time
}

// New creates an aggregator.
func New() *Aggregator {
	return &Aggregator{now: time.Now}
}

// WithNow sets a fixed clock for testing.
func (g *Aggregator) WithNow(t time.Time) *Aggregator {
	g.now = func() time.Time { return t }
	return g
}

// BuildParcels combines card-level records into one parcel assessment
// per property. Cards missing a land or building record contribute zero
// for that component. Per-card and parcel totals are rounded to the
// nearest hundred; running the same inputs twice yields identical
// output.
func (g *Aggregator) BuildParcels(municipalityID string, year int,
	land []model.LandAssessment, buildings []model.BuildingAssessment,
	features []model.FeatureAssessment) []model.ParcelAssessment {

	type cardKey struct {
		propertyID string
		cardNumber int
	}
	cards := make(map[cardKey]*model.CardAssessment)
	properties := make(map[string][]cardKey)

	card := func(propertyID string, cardNumber int) *model.CardAssessment {
		k := cardKey{propertyID, cardNumber}
		if c, ok := cards[k]; ok {
			return c
		}
		c := &model.CardAssessment{CardNumber: cardNumber}
		cards[k] = c
		properties[propertyID] = append(properties[propertyID], k)
		return c
	}

	for i := range land {
		a := &land[i]
		card(a.PropertyID, a.CardNumber).LandValue = a.Totals.AssessedValue
	}
	for i := range buildings {
		b := &buildings[i]
		card(b.PropertyID, b.CardNumber).BuildingValue = b.BuildingValue
	}
	for i := range features {
		f := &features[i]
		card(f.PropertyID, f.CardNumber).FeatureValue = model.RoundToHundred(f.FeatureValue)
	}

	propertyIDs := make([]string, 0, len(properties))
	for id := range properties {
		propertyIDs = append(propertyIDs, id)
	}
	sort.Strings(propertyIDs)

	now := g.now().UTC()
	parcels := make([]model.ParcelAssessment, 0, len(propertyIDs))
	for _, propertyID := range propertyIDs {
		keys := properties[propertyID]
		sort.Slice(keys, func(i, j int) bool { return keys[i].cardNumber < keys[j].cardNumber })

		p := model.ParcelAssessment{
			MunicipalityID: municipalityID,
			PropertyID:     propertyID,
			EffectiveYear:  year,
			LastCalculated: now,
		}
		for _, k := range keys {
			c := cards[k]
			c.TotalValue = c.LandValue + c.BuildingValue + c.FeatureValue
			p.CardAssessments = append(p.CardAssessments, *c)
			p.Totals.LandValue += c.LandValue
			p.Totals.BuildingValue += c.BuildingValue
			p.Totals.FeatureValue += c.FeatureValue
		}
		p.Totals.TotalValue = p.Totals.LandValue + p.Totals.BuildingValue + p.Totals.FeatureValue
		parcels = append(parcels, p)
	}
	return parcels
}
