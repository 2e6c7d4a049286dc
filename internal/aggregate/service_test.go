package aggregate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
	"github.com/chadRoberge/avitar-suite-sub003/internal/store"
)

type fakeStore struct {
	store.Store
	land      []model.LandAssessment
	buildings []model.BuildingAssessment
	features  []model.FeatureAssessment
	saved     []model.ParcelAssessment
}

func (s *fakeStore) ListLandForProperties(context.Context, string, int, []string) ([]model.LandAssessment, error) {
	return s.land, nil
}

func (s *fakeStore) ListBuildingsForProperties(context.Context, string, int, []string) ([]model.BuildingAssessment, error) {
	return s.buildings, nil
}

func (s *fakeStore) ListFeatureValuesForProperties(context.Context, string, int, []string) ([]model.FeatureAssessment, error) {
	return s.features, nil
}

func (s *fakeStore) BulkUpsertParcelAssessments(_ context.Context, parcels []model.ParcelAssessment) (int64, error) {
	s.saved = append([]model.ParcelAssessment(nil), parcels...)
	return int64(len(parcels)), nil
}

func TestAggregateParcel(t *testing.T) {
	st := &fakeStore{
		land: []model.LandAssessment{
			{PropertyID: "p1", CardNumber: 1, Totals: model.CalculatedTotals{AssessedValue: 44000}},
		},
		buildings: []model.BuildingAssessment{
			{PropertyID: "p1", CardNumber: 1, BuildingValue: 180000},
		},
	}

	svc := NewService(st).WithNow(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	p, err := svc.AggregateParcel(context.Background(), "muni-1", "p1", 2026)
	require.NoError(t, err)

	assert.Equal(t, "p1", p.PropertyID)
	assert.Equal(t, 224000.0, p.Totals.TotalValue)
	require.Len(t, st.saved, 1)
	assert.Equal(t, *p, st.saved[0])
}

func TestAggregateParcel_NotFound(t *testing.T) {
	svc := NewService(&fakeStore{})
	_, err := svc.AggregateParcel(context.Background(), "muni-1", "missing", 2026)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no assessments found")
}
