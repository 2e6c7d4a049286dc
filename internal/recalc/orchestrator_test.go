package recalc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chadRoberge/avitar-suite-sub003/internal/apperr"
	"github.com/chadRoberge/avitar-suite-sub003/internal/billing"
	"github.com/chadRoberge/avitar-suite-sub003/internal/config"
	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
	"github.com/chadRoberge/avitar-suite-sub003/internal/refdata"
	"github.com/chadRoberge/avitar-suite-sub003/internal/store"
)

// fakeStore is an in-memory Store for orchestrator tests. Reads serve
// from the seeded slices; bulk writes are captured per batch so tests
// can assert on batch composition.
type fakeStore struct {
	land        []model.LandAssessment
	views       map[store.CardRef][]model.ViewRecord
	waterfronts map[store.CardRef][]model.WaterfrontRecord
	buildings   []model.BuildingAssessment
	features    []model.FeatureAssessment
	billed      map[int]*model.FinalBilling

	copiedForward int64

	landWrites     [][]model.LandAssessment
	buildingWrites [][]model.BuildingAssessment
	parcelWrites   [][]model.ParcelAssessment
	progress       []model.Progress
	jobs           map[string]*model.RecalcJob
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		views:       map[store.CardRef][]model.ViewRecord{},
		waterfronts: map[store.CardRef][]model.WaterfrontRecord{},
		billed:      map[int]*model.FinalBilling{},
		jobs:        map[string]*model.RecalcJob{},
	}
}

func (s *fakeStore) sorted() []model.LandAssessment {
	out := append([]model.LandAssessment(nil), s.land...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].PropertyID != out[j].PropertyID {
			return out[i].PropertyID < out[j].PropertyID
		}
		return out[i].CardNumber < out[j].CardNumber
	})
	return out
}

func (s *fakeStore) ListLandBatch(_ context.Context, _ string, _ int, after store.Cursor, limit int) ([]model.LandAssessment, error) {
	var out []model.LandAssessment
	for _, a := range s.sorted() {
		if a.PropertyID < after.PropertyID ||
			(a.PropertyID == after.PropertyID && a.CardNumber <= after.CardNumber) {
			continue
		}
		out = append(out, a)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) ListLandForProperties(_ context.Context, _ string, _ int, propertyIDs []string) ([]model.LandAssessment, error) {
	want := map[string]bool{}
	for _, id := range propertyIDs {
		want[id] = true
	}
	var out []model.LandAssessment
	for _, a := range s.sorted() {
		if want[a.PropertyID] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeStore) GetLandAssessment(context.Context, string, string, int, int) (*model.LandAssessment, error) {
	return nil, nil
}
func (s *fakeStore) SaveLandAssessment(context.Context, *model.LandAssessment) error { return nil }

func (s *fakeStore) BulkUpsertLandAssessments(_ context.Context, assessments []model.LandAssessment) (int64, error) {
	s.landWrites = append(s.landWrites, append([]model.LandAssessment(nil), assessments...))
	return int64(len(assessments)), nil
}

func (s *fakeStore) CountLandAssessments(context.Context, string, int) (int, error) {
	return len(s.land), nil
}
func (s *fakeStore) CountStaleLandAssessments(context.Context, string, int, time.Time) (int, error) {
	return 0, nil
}

func (s *fakeStore) ListViewsForProperties(_ context.Context, _ string, _ int, propertyIDs []string) (map[store.CardRef][]model.ViewRecord, error) {
	out := map[store.CardRef][]model.ViewRecord{}
	for _, id := range propertyIDs {
		for ref, v := range s.views {
			if ref.PropertyID == id {
				out[ref] = v
			}
		}
	}
	return out, nil
}

func (s *fakeStore) ListWaterfrontsForProperties(_ context.Context, _ string, _ int, propertyIDs []string) (map[store.CardRef][]model.WaterfrontRecord, error) {
	out := map[store.CardRef][]model.WaterfrontRecord{}
	for _, id := range propertyIDs {
		for ref, w := range s.waterfronts {
			if ref.PropertyID == id {
				out[ref] = w
			}
		}
	}
	return out, nil
}

func (s *fakeStore) ListBuildingsForProperties(_ context.Context, _ string, _ int, propertyIDs []string) ([]model.BuildingAssessment, error) {
	want := map[string]bool{}
	for _, id := range propertyIDs {
		want[id] = true
	}
	var out []model.BuildingAssessment
	for _, b := range s.buildings {
		if want[b.PropertyID] {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeStore) GetBuildingAssessment(context.Context, string, string, int, int) (*model.BuildingAssessment, error) {
	return nil, nil
}
func (s *fakeStore) SaveBuildingAssessment(context.Context, *model.BuildingAssessment) error {
	return nil
}

func (s *fakeStore) BulkUpsertBuildingAssessments(_ context.Context, assessments []model.BuildingAssessment) (int64, error) {
	s.buildingWrites = append(s.buildingWrites, append([]model.BuildingAssessment(nil), assessments...))
	return int64(len(assessments)), nil
}

func (s *fakeStore) ListFeatureValuesForProperties(_ context.Context, _ string, _ int, propertyIDs []string) ([]model.FeatureAssessment, error) {
	want := map[string]bool{}
	for _, id := range propertyIDs {
		want[id] = true
	}
	var out []model.FeatureAssessment
	for _, f := range s.features {
		if want[f.PropertyID] {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *fakeStore) GetParcelAssessment(context.Context, string, string, int) (*model.ParcelAssessment, error) {
	return nil, nil
}
func (s *fakeStore) ListParcelAssessments(context.Context, string, int) ([]model.ParcelAssessment, error) {
	return nil, nil
}

func (s *fakeStore) BulkUpsertParcelAssessments(_ context.Context, parcels []model.ParcelAssessment) (int64, error) {
	s.parcelWrites = append(s.parcelWrites, append([]model.ParcelAssessment(nil), parcels...))
	return int64(len(parcels)), nil
}

func (s *fakeStore) EnsureAssessmentYear(context.Context, string, int) (int64, error) {
	return s.copiedForward, nil
}

func (s *fakeStore) ListPropertyIDsByZone(_ context.Context, _ string, _ int, zoneID string) ([]string, error) {
	return s.propertyIDsWhere(func(a model.LandAssessment) bool { return a.ZoneID == zoneID }), nil
}

func (s *fakeStore) ListPropertyIDsByNeighborhood(_ context.Context, _ string, _ int, neighborhoodID string) ([]string, error) {
	return s.propertyIDsWhere(func(a model.LandAssessment) bool { return a.NeighborhoodID == neighborhoodID }), nil
}

func (s *fakeStore) ListPropertyIDsByCurrentUse(_ context.Context, _ string, _ int, categoryID string) ([]string, error) {
	return s.propertyIDsWhere(func(a model.LandAssessment) bool {
		for _, ln := range a.Lines {
			if ln.CurrentUseCategoryID == categoryID {
				return true
			}
		}
		return false
	}), nil
}

func (s *fakeStore) ListPropertyIDsByLandUseType(_ context.Context, _ string, _ int, landUseType string) ([]string, error) {
	return s.propertyIDsWhere(func(a model.LandAssessment) bool {
		for _, ln := range a.Lines {
			if ln.LandUseType == landUseType {
				return true
			}
		}
		return false
	}), nil
}

func (s *fakeStore) ListPropertyIDsByViewAttribute(_ context.Context, _ string, _ int, attributeID string) ([]string, error) {
	var ids []string
	seen := map[string]bool{}
	for ref, views := range s.views {
		for _, v := range views {
			if v.SubjectID == attributeID && !seen[ref.PropertyID] {
				seen[ref.PropertyID] = true
				ids = append(ids, ref.PropertyID)
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *fakeStore) propertyIDsWhere(match func(model.LandAssessment) bool) []string {
	var ids []string
	seen := map[string]bool{}
	for _, a := range s.sorted() {
		if match(a) && !seen[a.PropertyID] {
			seen[a.PropertyID] = true
			ids = append(ids, a.PropertyID)
		}
	}
	return ids
}

func (s *fakeStore) CreateJob(_ context.Context, job *model.RecalcJob) error {
	if job.ID == "" {
		job.ID = fmt.Sprintf("job-%d", len(s.jobs)+1)
	}
	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

func (s *fakeStore) UpdateJobProgress(_ context.Context, jobID string, progress model.Progress) error {
	job, ok := s.jobs[jobID]
	if !ok {
		return errors.New("job not found")
	}
	job.Status = model.JobRunning
	job.Progress = progress
	s.progress = append(s.progress, progress)
	return nil
}

func (s *fakeStore) CompleteJob(_ context.Context, jobID string, status model.JobStatus, progress model.Progress, recordErrors []model.RecordError) error {
	job, ok := s.jobs[jobID]
	if !ok {
		return errors.New("job not found")
	}
	job.Status = status
	job.Progress = progress
	job.Errors = recordErrors
	now := time.Now().UTC()
	job.CompletedAt = &now
	return nil
}

func (s *fakeStore) GetJob(_ context.Context, jobID string) (*model.RecalcJob, error) {
	return s.jobs[jobID], nil
}

func (s *fakeStore) ListJobs(context.Context, store.JobFilter) ([]model.RecalcJob, error) {
	return nil, nil
}

func (s *fakeStore) GetFinalBilling(_ context.Context, _ string, year int) (*model.FinalBilling, error) {
	return s.billed[year], nil
}
func (s *fakeStore) CreateFinalBilling(context.Context, *model.FinalBilling) error { return nil }

func (s *fakeStore) Migrate(context.Context) error { return nil }
func (s *fakeStore) Ping(context.Context) error    { return nil }
func (s *fakeStore) Close() error                  { return nil }

var _ store.Store = (*fakeStore)(nil)

// fakeProvider serves a fixed reference snapshot.
type fakeProvider struct {
	cc *refdata.CalculationContext
}

func (p *fakeProvider) LoadContext(context.Context, string, int) (*refdata.CalculationContext, error) {
	return p.cc, nil
}

func testSnapshot() *refdata.CalculationContext {
	return &refdata.CalculationContext{
		MunicipalityID: "muni-1",
		EffectiveYear:  2026,
		Zones: map[string]*model.Zone{
			"zone-r1": {
				ID:                    "zone-r1",
				Code:                  "R1",
				MinimumAcreage:        2,
				ExcessLandCostPerAcre: 5000,
				BaseViewValue:         10000,
				Ladder: []model.LandLadderTier{
					{Acreage: 1, Value: 25000},
					{Acreage: 2, Value: 32000},
					{Acreage: 4, Value: 48000},
				},
			},
			"zone-r2": {
				ID:     "zone-r2",
				Code:   "R2",
				Ladder: []model.LandLadderTier{{Acreage: 1, Value: 18000}},
			},
		},
		Attributes: map[model.AttributeKind]map[string]model.Attribute{},
		CurrentUse: map[string]model.CurrentUseCategory{},
		Config:     model.DefaultCalculationConfig("muni-1", 2026),
	}
}

func testOrchestrator(st *fakeStore, batchSize int) *Orchestrator {
	validator := billing.NewValidator(st).WithNow(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	o := New(st, &fakeProvider{cc: testSnapshot()}, validator, config.RecalcConfig{BatchSize: batchSize})
	return o.WithNow(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
}

func landCard(propertyID string, cardNumber int, zoneID string, acres float64) model.LandAssessment {
	return model.LandAssessment{
		MunicipalityID: "muni-1",
		PropertyID:     propertyID,
		CardNumber:     cardNumber,
		EffectiveYear:  2026,
		ZoneID:         zoneID,
		Lines: []model.LandUseLine{
			{LandUseType: "residential", Size: acres, Unit: model.UnitAcres},
		},
	}
}

func TestRecalculateAll_FullRun(t *testing.T) {
	st := newFakeStore()
	st.land = []model.LandAssessment{
		landCard("p1", 1, "zone-r1", 3),
		landCard("p1", 2, "zone-r1", 1),
		landCard("p2", 1, "zone-r2", 1),
	}
	st.buildings = []model.BuildingAssessment{
		{MunicipalityID: "muni-1", PropertyID: "p1", CardNumber: 1, EffectiveYear: 2026,
			BuildingClass: model.ClassResidential, Condition: model.CondAverage,
			YearBuilt: 2000, EffectiveArea: 1800},
	}
	st.features = []model.FeatureAssessment{
		{PropertyID: "p2", CardNumber: 1, FeatureValue: 5449},
	}

	summary, err := testOrchestrator(st, 0).RecalculateAll(context.Background(), "muni-1", 2026, Options{})
	require.NoError(t, err)

	assert.Equal(t, model.JobCompleted, summary.Status)
	assert.Equal(t, 3, summary.ProcessedCount)
	assert.Equal(t, 3, summary.UpdatedCount)
	assert.Zero(t, summary.ErrorCount)

	require.Len(t, st.landWrites, 1)
	written := st.landWrites[0]
	require.Len(t, written, 3)
	assert.Equal(t, 40000.0, written[0].Totals.AssessedValue)

	require.Len(t, st.buildingWrites, 1)
	assert.NotZero(t, st.buildingWrites[0][0].BuildingValue)

	require.Len(t, st.parcelWrites, 1)
	parcels := st.parcelWrites[0]
	require.Len(t, parcels, 2)
	assert.Equal(t, "p1", parcels[0].PropertyID)
	assert.Equal(t, "p2", parcels[1].PropertyID)
	assert.Equal(t, 5400.0, parcels[1].Totals.FeatureValue)

	job := st.jobs[summary.JobID]
	require.NotNil(t, job)
	assert.Equal(t, model.JobCompleted, job.Status)
	assert.Equal(t, model.TriggerMassRevaluation, job.Trigger)
	assert.NotNil(t, job.CompletedAt)
	require.NotEmpty(t, st.progress)
	assert.Equal(t, 3, st.progress[len(st.progress)-1].ProcessedCount)
}

func TestRecalculateAll_OnlyMissingSkipsCalculatedCards(t *testing.T) {
	st := newFakeStore()
	calculated := landCard("p1", 1, "zone-r1", 3)
	calculated.Totals.AssessedValue = 99999
	calculated.LastCalculated = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st.land = []model.LandAssessment{
		calculated,
		landCard("p2", 1, "zone-r1", 3),
	}

	summary, err := testOrchestrator(st, 0).RecalculateAll(
		context.Background(), "muni-1", 2026, Options{OnlyMissing: true})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.ProcessedCount)
	assert.Equal(t, 1, summary.UpdatedCount)

	require.Len(t, st.landWrites, 1)
	written := st.landWrites[0]
	// The already-calculated card keeps its stored totals.
	assert.Equal(t, 99999.0, written[0].Totals.AssessedValue)
	assert.Equal(t, 40000.0, written[1].Totals.AssessedValue)
}

func TestRecalculateAll_ForceClearWipesFailedCards(t *testing.T) {
	st := newFakeStore()
	stale := landCard("p1", 1, "zone-gone", 3)
	stale.Lines[0].AssessedValue = 12345
	stale.Totals.AssessedValue = 12345
	st.land = []model.LandAssessment{stale}

	summary, err := testOrchestrator(st, 0).RecalculateAll(
		context.Background(), "muni-1", 2026, Options{ForceClear: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ErrorCount)

	require.Len(t, st.landWrites, 1)
	written := st.landWrites[0][0]
	assert.Zero(t, written.Lines[0].AssessedValue)
	assert.Zero(t, written.Totals.AssessedValue)
}

func TestRecalculateAll_BatchEndsOnPropertyBoundary(t *testing.T) {
	st := newFakeStore()
	st.land = []model.LandAssessment{
		landCard("p1", 1, "zone-r1", 2),
		landCard("p1", 2, "zone-r1", 1),
		landCard("p2", 1, "zone-r1", 2),
		landCard("p2", 2, "zone-r1", 1),
	}

	// Batch size 3 would split p2 across batches; the trailing p2 card is
	// pushed into the next batch so each parcel aggregates whole.
	summary, err := testOrchestrator(st, 3).RecalculateAll(context.Background(), "muni-1", 2026, Options{})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.ProcessedCount)

	require.Len(t, st.parcelWrites, 2)
	require.Len(t, st.parcelWrites[0], 1)
	assert.Equal(t, "p1", st.parcelWrites[0][0].PropertyID)
	assert.Len(t, st.parcelWrites[0][0].CardAssessments, 2)
	require.Len(t, st.parcelWrites[1], 1)
	assert.Equal(t, "p2", st.parcelWrites[1][0].PropertyID)
	assert.Len(t, st.parcelWrites[1][0].CardAssessments, 2)
}

func TestRecalculateAll_PropertyLargerThanBatchStaysWhole(t *testing.T) {
	st := newFakeStore()
	st.land = []model.LandAssessment{
		landCard("p1", 1, "zone-r1", 2),
		landCard("p1", 2, "zone-r1", 2),
		landCard("p2", 1, "zone-r1", 2),
	}

	// p1 has more cards than fit in one batch; the batch grows through
	// the property instead of splitting its parcel across writes.
	summary, err := testOrchestrator(st, 1).RecalculateAll(context.Background(), "muni-1", 2026, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.ProcessedCount)

	require.Len(t, st.parcelWrites, 2)
	require.Len(t, st.parcelWrites[0], 1)
	p1 := st.parcelWrites[0][0]
	assert.Equal(t, "p1", p1.PropertyID)
	assert.Len(t, p1.CardAssessments, 2)
	assert.Equal(t, 64000.0, p1.Totals.LandValue)

	require.Len(t, st.parcelWrites[1], 1)
	assert.Equal(t, "p2", st.parcelWrites[1][0].PropertyID)
}

func TestRecalculateAll_FinalBilledYearRejected(t *testing.T) {
	st := newFakeStore()
	st.land = []model.LandAssessment{landCard("p1", 1, "zone-r1", 2)}
	completed := time.Date(2025, 12, 15, 0, 0, 0, 0, time.UTC)
	st.billed[2025] = &model.FinalBilling{
		MunicipalityID: "muni-1", EffectiveYear: 2025, CompletedAt: completed,
	}

	_, err := testOrchestrator(st, 0).RecalculateAll(context.Background(), "muni-1", 2025, Options{})
	require.Error(t, err)

	var coded *apperr.Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, apperr.CodeFinalBillingCompleted, coded.Code)
	assert.Empty(t, st.jobs)
	assert.Empty(t, st.landWrites)
}

func TestRecalculateAll_RecordErrorsDoNotAbort(t *testing.T) {
	st := newFakeStore()
	st.land = []model.LandAssessment{
		landCard("p1", 1, "zone-gone", 2),
		landCard("p2", 1, "zone-r1", 3),
	}

	summary, err := testOrchestrator(st, 0).RecalculateAll(context.Background(), "muni-1", 2026, Options{})
	require.NoError(t, err)

	assert.Equal(t, model.JobCompleted, summary.Status)
	assert.Equal(t, 2, summary.ProcessedCount)
	assert.Equal(t, 1, summary.UpdatedCount)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "p1", summary.Errors[0].PropertyID)

	// The batch still writes; the failed record keeps its prior values.
	require.Len(t, st.landWrites, 1)
}

func TestRecalculateAffected_ZoneChange(t *testing.T) {
	st := newFakeStore()
	st.land = []model.LandAssessment{
		landCard("p1", 1, "zone-r1", 3),
		landCard("p2", 1, "zone-r2", 1),
	}

	summary, err := testOrchestrator(st, 0).RecalculateAffected(
		context.Background(), "muni-1", 2026, model.ChangeZone, "zone-r1")
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ProcessedCount)
	require.Len(t, st.landWrites, 1)
	require.Len(t, st.landWrites[0], 1)
	assert.Equal(t, "p1", st.landWrites[0][0].PropertyID)

	job := st.jobs[summary.JobID]
	require.NotNil(t, job)
	assert.Equal(t, model.TriggerReferenceChange, job.Trigger)
	assert.Equal(t, model.ChangeZone, job.ChangeType)
	assert.Equal(t, "zone-r1", job.ChangeID)
}

func TestRecalculateAffected_ProgressCountsProperties(t *testing.T) {
	st := newFakeStore()
	st.land = []model.LandAssessment{
		landCard("p1", 1, "zone-r1", 2),
		landCard("p1", 2, "zone-r1", 1),
	}

	summary, err := testOrchestrator(st, 0).RecalculateAffected(
		context.Background(), "muni-1", 2026, model.ChangeZone, "zone-r1")
	require.NoError(t, err)

	// One affected property with two cards: processed tracks the
	// resolved property set, updated stays in cards.
	assert.Equal(t, 1, summary.ProcessedCount)
	assert.Equal(t, 2, summary.UpdatedCount)

	job := st.jobs[summary.JobID]
	require.NotNil(t, job)
	assert.Equal(t, 1, job.Progress.TotalCount)
	assert.Equal(t, job.Progress.TotalCount, job.Progress.ProcessedCount)
}

func TestRecalculateAffected_UnknownChangeType(t *testing.T) {
	st := newFakeStore()

	_, err := testOrchestrator(st, 0).RecalculateAffected(
		context.Background(), "muni-1", 2026, model.ChangeType("bogus"), "x")
	require.Error(t, err)

	var coded *apperr.Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, apperr.CodeInvalidInput, coded.Code)
}

func TestRecalculateZone_RedistributesExcess(t *testing.T) {
	st := newFakeStore()
	st.land = []model.LandAssessment{
		landCard("p1", 1, "zone-r1", 6),
	}

	summary, err := testOrchestrator(st, 0).RecalculateZone(
		context.Background(), "muni-1", 2026, "zone-r1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.UpdatedCount)

	require.Len(t, st.landWrites, 1)
	written := st.landWrites[0][0]
	require.Len(t, written.Lines, 2)
	assert.Equal(t, 2.0, written.Lines[0].Size)
	assert.True(t, written.Lines[1].IsExcessAcreage)
	assert.Equal(t, 4.0, written.Lines[1].Size)
	assert.Equal(t, 6.0, written.TotalAcreage())

	job := st.jobs[summary.JobID]
	require.NotNil(t, job)
	assert.Equal(t, model.TriggerZoneAdjustment, job.Trigger)
}
