package aggregate

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
	"github.com/chadRoberge/avitar-suite-sub003/internal/store"
)

// Service rebuilds and persists parcel rollups for individual
// properties, the path single-record edits take outside a batch job.
type Service struct {
	store store.Store
	agg   *Aggregator
}

// NewService creates a service backed by the given store.
func NewService(st store.Store) *Service {
	return &Service{store: st, agg: New()}
}

// WithNow sets a fixed clock for testing.
func (s *Service) WithNow(t time.Time) *Service {
	s.agg.WithNow(t)
	return s
}

// AggregateParcel rebuilds one property's parcel assessment from its
// stored card values and persists it. Running it twice without
// intervening edits yields the same stored rollup.
func (s *Service) AggregateParcel(ctx context.Context, municipalityID, propertyID string, year int) (*model.ParcelAssessment, error) {
	ids := []string{propertyID}

	land, err := s.store.ListLandForProperties(ctx, municipalityID, year, ids)
	if err != nil {
		return nil, eris.Wrap(err, "aggregate: list land cards")
	}
	buildings, err := s.store.ListBuildingsForProperties(ctx, municipalityID, year, ids)
	if err != nil {
		return nil, eris.Wrap(err, "aggregate: list building cards")
	}
	features, err := s.store.ListFeatureValuesForProperties(ctx, municipalityID, year, ids)
	if err != nil {
		return nil, eris.Wrap(err, "aggregate: list feature values")
	}

	parcels := s.agg.BuildParcels(municipalityID, year, land, buildings, features)
	if len(parcels) == 0 {
		return nil, eris.Errorf("aggregate: no assessments found for property %s in %d", propertyID, year)
	}

	if _, err := s.store.BulkUpsertParcelAssessments(ctx, parcels); err != nil {
		return nil, eris.Wrapf(err, "aggregate: save parcel %s", propertyID)
	}
	return &parcels[0], nil
}
