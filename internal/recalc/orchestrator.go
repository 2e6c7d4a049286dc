// Package recalc orchestrates mass and selective recalculation of
// assessments: streaming batches of cards, recomputing land and building
// values, rebuilding parcel rollups, and tracking job progress.
package recalc

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/chadRoberge/avitar-suite-sub003/internal/aggregate"
	"github.com/chadRoberge/avitar-suite-sub003/internal/billing"
	"github.com/chadRoberge/avitar-suite-sub003/internal/bldgcalc"
	"github.com/chadRoberge/avitar-suite-sub003/internal/config"
	"github.com/chadRoberge/avitar-suite-sub003/internal/landcalc"
	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
	"github.com/chadRoberge/avitar-suite-sub003/internal/refdata"
	"github.com/chadRoberge/avitar-suite-sub003/internal/resilience"
	"github.com/chadRoberge/avitar-suite-sub003/internal/store"
)

const defaultBatchSize = 500

// Orchestrator runs recalculation jobs against the store. Batches are
// processed sequentially; within a batch the child-record fetches run
// concurrently and per-record calculation errors are counted without
// aborting the batch. A failed batch write fails the job with partial
// progress preserved.
type Orchestrator struct {
	store     store.Store
	provider  refdata.Provider
	validator *billing.Validator
	land      *landcalc.Calculator
	building  *bldgcalc.Calculator
	agg       *aggregate.Aggregator

	batchSize  int
	jobTimeout time.Duration
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
	now        func() time.Time
}

// New creates an orchestrator.
func New(st store.Store, provider refdata.Provider, validator *billing.Validator, cfg config.RecalcConfig) *Orchestrator {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.WriteRatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.WriteRatePerSecond), 1)
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("bulk assessment write")

	return &Orchestrator{
		store:      st,
		provider:   provider,
		validator:  validator,
		land:       landcalc.New(),
		building:   bldgcalc.New(),
		agg:        aggregate.New(),
		batchSize:  batchSize,
		jobTimeout: cfg.JobTimeout,
		limiter:    limiter,
		retry:      retry,
		now:        time.Now,
	}
}

// WithNow sets a fixed clock for testing, propagated to the calculators
// and aggregator.
func (o *Orchestrator) WithNow(t time.Time) *Orchestrator {
	o.now = func() time.Time { return t }
	o.land.WithNow(t)
	o.building.WithNow(t)
	o.agg.WithNow(t)
	return o
}

// Options tunes a full recalculation run.
type Options struct {
	// BatchSize overrides the configured batch size when positive.
	BatchSize int
	// OnlyMissing skips cards that already carry a calculated value,
	// leaving their stored results untouched.
	OnlyMissing bool
	// ForceClear zeroes a card's computed values before recalculating,
	// so a calculation failure cannot leave stale figures behind.
	ForceClear bool
}

// RecalculateAll recomputes every assessment in a municipality's
// effective year. Records missing in the target year are copied forward
// from each card's most recent prior year first, so a new year can be
// opened and valued in one pass.
func (o *Orchestrator) RecalculateAll(ctx context.Context, municipalityID string, year int, opts Options) (*model.JobSummary, error) {
	if err := o.validator.Validate(ctx, municipalityID, year); err != nil {
		return nil, err
	}

	if copied, err := o.store.EnsureAssessmentYear(ctx, municipalityID, year); err != nil {
		return nil, eris.Wrapf(err, "recalc: ensure year %d", year)
	} else if copied > 0 {
		zap.L().Info("recalc: copied assessments forward",
			zap.String("municipality_id", municipalityID),
			zap.Int("year", year),
			zap.Int64("records", copied),
		)
	}

	total, err := o.store.CountLandAssessments(ctx, municipalityID, year)
	if err != nil {
		return nil, eris.Wrap(err, "recalc: count assessments")
	}

	job := &model.RecalcJob{
		MunicipalityID: municipalityID,
		EffectiveYear:  year,
		Trigger:        model.TriggerMassRevaluation,
		Status:         model.JobPending,
		Progress:       model.Progress{TotalCount: total},
	}
	return o.runJob(ctx, job, func(ctx context.Context, run *jobRun) error {
		run.opts = opts
		return o.streamAll(ctx, run, nil)
	})
}

// jobRun carries the per-job mutable state shared by the batch loop.
type jobRun struct {
	job     *model.RecalcJob
	cc      *refdata.CalculationContext
	opts    Options
	started time.Time

	// countProperties switches the processed unit from cards to
	// properties, for jobs whose total is a resolved property set.
	countProperties bool

	processed int
	updated   int
	errors    []model.RecordError
}

// runJob wraps the job lifecycle around fn: create pending, mark
// running, load the reference snapshot once, execute, and complete with
// either status. The configured watchdog timeout bounds the whole run.
func (o *Orchestrator) runJob(ctx context.Context, job *model.RecalcJob, fn func(ctx context.Context, run *jobRun) error) (*model.JobSummary, error) {
	if o.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.jobTimeout)
		defer cancel()
	}

	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, eris.Wrap(err, "recalc: create job")
	}

	log := zap.L().With(
		zap.String("job_id", job.ID),
		zap.String("municipality_id", job.MunicipalityID),
		zap.Int("year", job.EffectiveYear),
		zap.String("trigger", string(job.Trigger)),
	)
	log.Info("recalc: job started", zap.Int("total", job.Progress.TotalCount))

	run := &jobRun{job: job, started: o.now()}

	cc, err := o.provider.LoadContext(ctx, job.MunicipalityID, job.EffectiveYear)
	if err != nil {
		return o.failJob(ctx, run, log, eris.Wrap(err, "recalc: load reference data"))
	}
	run.cc = cc

	if err := fn(ctx, run); err != nil {
		return o.failJob(ctx, run, log, err)
	}

	progress := run.progress()
	if err := o.store.CompleteJob(ctx, job.ID, model.JobCompleted, progress, run.errors); err != nil {
		return nil, eris.Wrap(err, "recalc: complete job")
	}
	duration := o.now().Sub(run.started)
	log.Info("recalc: job completed",
		zap.Int("processed", run.processed),
		zap.Int("updated", run.updated),
		zap.Int("record_errors", len(run.errors)),
		zap.Duration("duration", duration),
	)
	return &model.JobSummary{
		JobID:          job.ID,
		Status:         model.JobCompleted,
		ProcessedCount: run.processed,
		UpdatedCount:   run.updated,
		ErrorCount:     len(run.errors),
		Duration:       duration,
		Errors:         run.errors,
	}, nil
}

func (o *Orchestrator) failJob(ctx context.Context, run *jobRun, log *zap.Logger, cause error) (*model.JobSummary, error) {
	log.Error("recalc: job failed", zap.Error(cause),
		zap.Int("processed", run.processed),
	)
	// The cause may be the context itself; record the failure anyway.
	ctx = context.WithoutCancel(ctx)
	if err := o.store.CompleteJob(ctx, run.job.ID, model.JobFailed, run.progress(), run.errors); err != nil {
		log.Error("recalc: recording job failure", zap.Error(err))
	}
	return nil, cause
}

func (run *jobRun) progress() model.Progress {
	p := model.Progress{
		TotalCount:     run.job.Progress.TotalCount,
		ProcessedCount: run.processed,
		UpdatedCount:   run.updated,
		ErrorCount:     len(run.errors),
	}
	elapsed := time.Since(run.started).Seconds()
	if elapsed > 0 && run.processed > 0 {
		p.RatePerSecond = float64(run.processed) / elapsed
		remaining := p.TotalCount - run.processed
		if remaining > 0 {
			p.ETA = time.Duration(float64(remaining)/p.RatePerSecond) * time.Second
		}
	}
	return p
}

// streamAll walks the whole year in keyset batches. Batches end on a
// property boundary so a parcel's cards are always aggregated together;
// mutate, when set, runs on each card before calculation.
func (o *Orchestrator) streamAll(ctx context.Context, run *jobRun, mutate func(*model.LandAssessment)) error {
	batchSize := o.batchSize
	if run.opts.BatchSize > 0 {
		batchSize = run.opts.BatchSize
	}

	var cursor store.Cursor
	for {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "recalc: canceled at batch boundary")
		}

		batch, err := o.store.ListLandBatch(ctx, run.job.MunicipalityID, run.job.EffectiveYear, cursor, batchSize)
		if err != nil {
			return eris.Wrap(err, "recalc: list batch")
		}
		if len(batch) == 0 {
			return nil
		}

		// A full batch may cut a property mid-card; trim the trailing
		// property so its cards all land in the next batch. When one
		// property fills the whole batch by itself, grow the batch
		// through its remaining cards instead, so the parcel rollup
		// always sees every card.
		if len(batch) == batchSize {
			last := batch[len(batch)-1].PropertyID
			cut := len(batch)
			for cut > 0 && batch[cut-1].PropertyID == last {
				cut--
			}
			if cut > 0 {
				batch = batch[:cut]
			} else if batch, err = o.extendThroughProperty(ctx, run, batch, batchSize); err != nil {
				return eris.Wrap(err, "recalc: list batch")
			}
		}

		tail := batch[len(batch)-1]
		cursor = store.Cursor{PropertyID: tail.PropertyID, CardNumber: tail.CardNumber}

		if err := o.processBatch(ctx, run, batch, mutate); err != nil {
			return err
		}
	}
}

// extendThroughProperty keeps fetching cursor pages for a batch holding a
// single property's cards until the property changes or the stream ends.
// Rows past the property boundary are dropped; the caller's cursor picks
// them up on the next round.
func (o *Orchestrator) extendThroughProperty(ctx context.Context, run *jobRun, batch []model.LandAssessment, pageSize int) ([]model.LandAssessment, error) {
	propertyID := batch[0].PropertyID
	for {
		tail := batch[len(batch)-1]
		cursor := store.Cursor{PropertyID: tail.PropertyID, CardNumber: tail.CardNumber}
		more, err := o.store.ListLandBatch(ctx, run.job.MunicipalityID, run.job.EffectiveYear, cursor, pageSize)
		if err != nil {
			return nil, err
		}
		for i := range more {
			if more[i].PropertyID != propertyID {
				return batch, nil
			}
			batch = append(batch, more[i])
		}
		if len(more) < pageSize {
			return batch, nil
		}
	}
}

// processBatch recalculates one batch of land cards plus the building
// cards of the same properties, writes the results in bulk, and rebuilds
// the affected parcels.
func (o *Orchestrator) processBatch(ctx context.Context, run *jobRun, batch []model.LandAssessment, mutate func(*model.LandAssessment)) error {
	muniID := run.job.MunicipalityID
	year := run.job.EffectiveYear
	propertyIDs := propertySet(batch)

	var (
		views       map[store.CardRef][]model.ViewRecord
		waterfronts map[store.CardRef][]model.WaterfrontRecord
		buildings   []model.BuildingAssessment
		features    []model.FeatureAssessment
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		views, err = o.store.ListViewsForProperties(gctx, muniID, year, propertyIDs)
		return err
	})
	g.Go(func() error {
		var err error
		waterfronts, err = o.store.ListWaterfrontsForProperties(gctx, muniID, year, propertyIDs)
		return err
	})
	g.Go(func() error {
		var err error
		buildings, err = o.store.ListBuildingsForProperties(gctx, muniID, year, propertyIDs)
		return err
	})
	g.Go(func() error {
		var err error
		features, err = o.store.ListFeatureValuesForProperties(gctx, muniID, year, propertyIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "recalc: fetch child records")
	}

	for i := range batch {
		a := &batch[i]
		ref := store.CardRef{PropertyID: a.PropertyID, CardNumber: a.CardNumber}
		a.Views = views[ref]
		a.Waterfronts = waterfronts[ref]

		if mutate != nil {
			mutate(a)
		}

		if !run.countProperties {
			run.processed++
		}
		if run.opts.OnlyMissing && !a.LastCalculated.IsZero() {
			continue
		}
		if run.opts.ForceClear {
			clearComputed(a)
		}
		if err := o.land.CalculateCard(a, run.cc); err != nil {
			run.errors = append(run.errors, model.RecordError{
				PropertyID: a.PropertyID,
				CardNumber: a.CardNumber,
				Message:    err.Error(),
			})
			continue
		}
		run.updated++
	}

	for i := range buildings {
		b := &buildings[i]
		if run.opts.OnlyMissing && !b.LastCalculated.IsZero() {
			continue
		}
		if err := o.building.CalculateCard(b, run.cc); err != nil {
			run.errors = append(run.errors, model.RecordError{
				PropertyID: b.PropertyID,
				CardNumber: b.CardNumber,
				Message:    err.Error(),
			})
		}
	}

	parcels := o.agg.BuildParcels(muniID, year, batch, buildings, features)

	if err := o.write(ctx, func(ctx context.Context) error {
		if _, err := o.store.BulkUpsertLandAssessments(ctx, batch); err != nil {
			return err
		}
		if len(buildings) > 0 {
			if _, err := o.store.BulkUpsertBuildingAssessments(ctx, buildings); err != nil {
				return err
			}
		}
		_, err := o.store.BulkUpsertParcelAssessments(ctx, parcels)
		return err
	}); err != nil {
		return eris.Wrap(err, "recalc: write batch")
	}

	if err := o.store.UpdateJobProgress(ctx, run.job.ID, run.progress()); err != nil {
		return eris.Wrap(err, "recalc: update progress")
	}
	return nil
}

// write applies the rate limit and transient-error retry around one
// batch write.
func (o *Orchestrator) write(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := o.limiter.Wait(ctx); err != nil {
		return err
	}
	return resilience.Do(ctx, o.retry, fn)
}

// clearComputed wipes a card's calculated values so a failed
// recalculation cannot leave stale figures behind.
func clearComputed(a *model.LandAssessment) {
	for i := range a.Lines {
		ln := &a.Lines[i]
		ln.BaseRate = 0
		ln.BaseValue = 0
		ln.Factors = model.LineFactors{}
		ln.MarketValue = 0
		ln.CurrentUseValue = 0
		ln.CurrentUseCredit = 0
		ln.AssessedValue = 0
	}
	for i := range a.Views {
		a.Views[i].MarketValue = 0
		a.Views[i].AssessedValue = 0
	}
	for i := range a.Waterfronts {
		a.Waterfronts[i].MarketValue = 0
		a.Waterfronts[i].AssessedValue = 0
	}
	a.Totals = model.CalculatedTotals{}
}

func propertySet(batch []model.LandAssessment) []string {
	seen := make(map[string]bool, len(batch))
	ids := make([]string, 0, len(batch))
	for i := range batch {
		if !seen[batch[i].PropertyID] {
			seen[batch[i].PropertyID] = true
			ids = append(ids, batch[i].PropertyID)
		}
	}
	return ids
}
