package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
	"github.com/chadRoberge/avitar-suite-sub003/internal/monitoring"
)

func TestFormatSnapshot(t *testing.T) {
	completed := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	snap := &monitoring.Snapshot{
		MunicipalityID:  "muni-1",
		EffectiveYear:   2026,
		AssessmentCount: 12400,
		StaleCount:      3,
		RecordErrors:    2,
		JobCounts: map[model.JobStatus]int{
			model.JobCompleted: 5,
			model.JobRunning:   1,
		},
		Running: &model.RecalcJob{
			ID: "job-7",
			Progress: model.Progress{
				ProcessedCount: 2500, TotalCount: 12400,
				RatePerSecond: 410, ETA: 24 * time.Second,
			},
		},
		LastCompleted: &model.RecalcJob{ID: "job-6", CompletedAt: &completed},
	}

	var buf bytes.Buffer
	formatSnapshot(&buf, snap)
	out := buf.String()

	assert.Contains(t, out, "muni-1")
	assert.Contains(t, out, "12,400")
	assert.Contains(t, out, "JOBS completed")
	assert.Contains(t, out, "job-7")
	assert.Contains(t, out, "job-6")
	assert.Contains(t, out, "2026-08-01T10:00:00Z")
}

func TestFormatSnapshot_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatSnapshot(&buf, &monitoring.Snapshot{
		MunicipalityID: "muni-1",
		EffectiveYear:  2026,
		JobCounts:      map[model.JobStatus]int{},
	})

	out := buf.String()
	assert.Contains(t, out, "ASSESSMENTS")
	assert.NotContains(t, out, "RUNNING")
	assert.NotContains(t, out, "LAST COMPLETED")
}
