// Package monitoring assembles operational snapshots of a
// municipality's assessment data and recalculation history.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
	"github.com/chadRoberge/avitar-suite-sub003/internal/store"
)

// Snapshot summarizes the health of one municipality's effective year.
type Snapshot struct {
	MunicipalityID string    `json:"municipality_id"`
	EffectiveYear  int       `json:"effective_year"`
	CollectedAt    time.Time `json:"collected_at"`

	AssessmentCount int `json:"assessment_count"`
	// StaleCount is how many cards were last calculated before the
	// staleness cutoff.
	StaleCount int `json:"stale_count"`

	JobCounts    map[model.JobStatus]int `json:"job_counts"`
	RecordErrors int                     `json:"record_errors"`

	LastCompleted *model.RecalcJob `json:"last_completed,omitempty"`
	Running       *model.RecalcJob `json:"running,omitempty"`
}

// Collector reads snapshots from the store.
type Collector struct {
	store      store.Store
	staleAfter time.Duration
	jobWindow  int
	now        func() time.Time
}

// NewCollector creates a collector. Cards older than staleAfter count as
// stale; zero means one week.
func NewCollector(st store.Store, staleAfter time.Duration) *Collector {
	if staleAfter <= 0 {
		staleAfter = 7 * 24 * time.Hour
	}
	return &Collector{store: st, staleAfter: staleAfter, jobWindow: 100, now: time.Now}
}

// WithNow sets a fixed clock for testing.
func (c *Collector) WithNow(t time.Time) *Collector {
	c.now = func() time.Time { return t }
	return c
}

// Collect builds a snapshot for one municipality and year. Job history is
// read from the most recent window, newest first.
func (c *Collector) Collect(ctx context.Context, municipalityID string, year int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{
		MunicipalityID: municipalityID,
		EffectiveYear:  year,
		CollectedAt:    now,
		JobCounts:      make(map[model.JobStatus]int),
	}

	count, err := c.store.CountLandAssessments(ctx, municipalityID, year)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count assessments")
	}
	snap.AssessmentCount = count

	stale, err := c.store.CountStaleLandAssessments(ctx, municipalityID, year, now.Add(-c.staleAfter))
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count stale assessments")
	}
	snap.StaleCount = stale

	jobs, err := c.store.ListJobs(ctx, store.JobFilter{
		MunicipalityID: municipalityID,
		Limit:          c.jobWindow,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list jobs")
	}

	for i := range jobs {
		job := &jobs[i]
		snap.JobCounts[job.Status]++
		snap.RecordErrors += job.Progress.ErrorCount

		switch job.Status {
		case model.JobCompleted:
			if snap.LastCompleted == nil {
				snap.LastCompleted = job
			}
		case model.JobRunning:
			if snap.Running == nil {
				snap.Running = job
			}
		}
	}
	return snap, nil
}
