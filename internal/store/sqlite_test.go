package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	// A pooled :memory: DSN opens a fresh database per connection.
	s.DB().SetMaxOpenConns(1)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func seedLandCard(t *testing.T, s *SQLiteStore, propertyID string, card, year int, acres float64) {
	t.Helper()
	err := s.SaveLandAssessment(context.Background(), &model.LandAssessment{
		MunicipalityID: "muni-1",
		PropertyID:     propertyID,
		CardNumber:     card,
		EffectiveYear:  year,
		ZoneID:         "zone-r1",
		Lines: []model.LandUseLine{
			{LandUseType: "RES", Size: acres, Unit: model.UnitAcres},
		},
		Totals:         model.CalculatedTotals{AssessedValue: acres * 10000},
		LastCalculated: time.Date(year, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
}

func TestSQLiteStore_EnsureAssessmentYear_CopiesMostRecentPriorYear(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	// p1 was last assessed two years back; the stale 2023 row must lose
	// to the 2024 one. p2 is current through 2025. p3 already has a
	// 2026 row and must be left alone.
	seedLandCard(t, s, "p1", 1, 2023, 3)
	seedLandCard(t, s, "p1", 1, 2024, 5)
	seedLandCard(t, s, "p2", 1, 2025, 2)
	seedLandCard(t, s, "p3", 1, 2025, 4)
	seedLandCard(t, s, "p3", 1, 2026, 7)

	copied, err := s.EnsureAssessmentYear(ctx, "muni-1", 2026)
	require.NoError(t, err)
	assert.Equal(t, int64(2), copied)

	land, err := s.ListLandForProperties(ctx, "muni-1", 2026, []string{"p1", "p2", "p3"})
	require.NoError(t, err)
	require.Len(t, land, 3)

	byProperty := map[string]model.LandAssessment{}
	for _, a := range land {
		byProperty[a.PropertyID] = a
	}

	require.Len(t, byProperty["p1"].Lines, 1)
	assert.Equal(t, 5.0, byProperty["p1"].Lines[0].Size)
	assert.Equal(t, 50000.0, byProperty["p1"].Totals.AssessedValue)
	assert.True(t, byProperty["p1"].LastCalculated.IsZero())

	assert.Equal(t, 2.0, byProperty["p2"].Lines[0].Size)
	assert.True(t, byProperty["p2"].LastCalculated.IsZero())

	assert.Equal(t, 7.0, byProperty["p3"].Lines[0].Size)
	assert.False(t, byProperty["p3"].LastCalculated.IsZero())
}

func TestSQLiteStore_EnsureAssessmentYear_LeavesHistoryUntouched(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	seedLandCard(t, s, "p1", 1, 2024, 5)

	_, err := s.EnsureAssessmentYear(ctx, "muni-1", 2026)
	require.NoError(t, err)

	prior, err := s.GetLandAssessment(ctx, "muni-1", "p1", 1, 2024)
	require.NoError(t, err)
	require.NotNil(t, prior)
	assert.Equal(t, 5.0, prior.Lines[0].Size)
	assert.False(t, prior.LastCalculated.IsZero())
}

func TestSQLiteStore_EnsureAssessmentYear_Idempotent(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	seedLandCard(t, s, "p1", 1, 2025, 2)

	copied, err := s.EnsureAssessmentYear(ctx, "muni-1", 2026)
	require.NoError(t, err)
	assert.Equal(t, int64(1), copied)

	copied, err = s.EnsureAssessmentYear(ctx, "muni-1", 2026)
	require.NoError(t, err)
	assert.Equal(t, int64(0), copied)
}
