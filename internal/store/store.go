// Package store persists assessments, recalculation jobs, and billing
// records, with Postgres for production and SQLite for single-office
// deployments.
package store

import (
	"context"
	"time"

	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
)

// Cursor is a keyset position in the (property_id, card_number) order
// used for batch streaming. The zero value starts from the beginning.
type Cursor struct {
	PropertyID string `json:"property_id"`
	CardNumber int    `json:"card_number"`
}

// CardRef identifies one card of one property.
type CardRef struct {
	PropertyID string `json:"property_id"`
	CardNumber int    `json:"card_number"`
}

// JobFilter specifies criteria for listing recalculation jobs.
type JobFilter struct {
	MunicipalityID string          `json:"municipality_id,omitempty"`
	Status         model.JobStatus `json:"status,omitempty"`
	Since          time.Time       `json:"since,omitempty"`
	Limit          int             `json:"limit,omitempty"`
}

// Store defines the persistence interface for the valuation engine.
type Store interface {
	// Land assessments
	ListLandBatch(ctx context.Context, municipalityID string, year int, after Cursor, limit int) ([]model.LandAssessment, error)
	ListLandForProperties(ctx context.Context, municipalityID string, year int, propertyIDs []string) ([]model.LandAssessment, error)
	GetLandAssessment(ctx context.Context, municipalityID, propertyID string, cardNumber, year int) (*model.LandAssessment, error)
	SaveLandAssessment(ctx context.Context, a *model.LandAssessment) error
	BulkUpsertLandAssessments(ctx context.Context, assessments []model.LandAssessment) (int64, error)
	CountLandAssessments(ctx context.Context, municipalityID string, year int) (int, error)
	CountStaleLandAssessments(ctx context.Context, municipalityID string, year int, olderThan time.Time) (int, error)

	// View and waterfront source records, fetched per batch and attached
	// to the land assessments before calculation
	ListViewsForProperties(ctx context.Context, municipalityID string, year int, propertyIDs []string) (map[CardRef][]model.ViewRecord, error)
	ListWaterfrontsForProperties(ctx context.Context, municipalityID string, year int, propertyIDs []string) (map[CardRef][]model.WaterfrontRecord, error)

	// Building assessments
	ListBuildingsForProperties(ctx context.Context, municipalityID string, year int, propertyIDs []string) ([]model.BuildingAssessment, error)
	GetBuildingAssessment(ctx context.Context, municipalityID, propertyID string, cardNumber, year int) (*model.BuildingAssessment, error)
	SaveBuildingAssessment(ctx context.Context, b *model.BuildingAssessment) error
	BulkUpsertBuildingAssessments(ctx context.Context, assessments []model.BuildingAssessment) (int64, error)

	// Feature (other improvements) values, consumed during aggregation
	ListFeatureValuesForProperties(ctx context.Context, municipalityID string, year int, propertyIDs []string) ([]model.FeatureAssessment, error)

	// Parcel rollups
	GetParcelAssessment(ctx context.Context, municipalityID, propertyID string, year int) (*model.ParcelAssessment, error)
	ListParcelAssessments(ctx context.Context, municipalityID string, year int) ([]model.ParcelAssessment, error)
	BulkUpsertParcelAssessments(ctx context.Context, parcels []model.ParcelAssessment) (int64, error)

	// Year lifecycle: copy-forward of assessment records into a new
	// effective year, each card from its most recent prior year,
	// skipping records the target year already has
	EnsureAssessmentYear(ctx context.Context, municipalityID string, year int) (int64, error)

	// Selective recalculation scoping
	ListPropertyIDsByZone(ctx context.Context, municipalityID string, year int, zoneID string) ([]string, error)
	ListPropertyIDsByNeighborhood(ctx context.Context, municipalityID string, year int, neighborhoodID string) ([]string, error)
	ListPropertyIDsByCurrentUse(ctx context.Context, municipalityID string, year int, categoryID string) ([]string, error)
	ListPropertyIDsByLandUseType(ctx context.Context, municipalityID string, year int, landUseType string) ([]string, error)
	ListPropertyIDsByViewAttribute(ctx context.Context, municipalityID string, year int, attributeID string) ([]string, error)

	// Jobs
	CreateJob(ctx context.Context, job *model.RecalcJob) error
	UpdateJobProgress(ctx context.Context, jobID string, progress model.Progress) error
	CompleteJob(ctx context.Context, jobID string, status model.JobStatus, progress model.Progress, recordErrors []model.RecordError) error
	GetJob(ctx context.Context, jobID string) (*model.RecalcJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.RecalcJob, error)

	// Billing
	GetFinalBilling(ctx context.Context, municipalityID string, year int) (*model.FinalBilling, error)
	CreateFinalBilling(ctx context.Context, fb *model.FinalBilling) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
