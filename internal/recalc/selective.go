package recalc

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/chadRoberge/avitar-suite-sub003/internal/apperr"
	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
)

// RecalculateAffected recomputes only the properties referencing a
// changed entity: a zone, neighborhood, current-use category, land-use
// type, or view attribute. The affected set is resolved up front and
// processed in batch-size chunks through the same pipeline as a full
// run.
func (o *Orchestrator) RecalculateAffected(ctx context.Context, municipalityID string, year int, change model.ChangeType, changeID string) (*model.JobSummary, error) {
	if err := o.validator.Validate(ctx, municipalityID, year); err != nil {
		return nil, err
	}

	propertyIDs, err := o.resolveAffected(ctx, municipalityID, year, change, changeID)
	if err != nil {
		return nil, err
	}
	zap.L().Info("recalc: resolved affected properties",
		zap.String("municipality_id", municipalityID),
		zap.String("change_type", string(change)),
		zap.String("change_id", changeID),
		zap.Int("properties", len(propertyIDs)),
	)

	job := &model.RecalcJob{
		MunicipalityID: municipalityID,
		EffectiveYear:  year,
		Trigger:        model.TriggerReferenceChange,
		ChangeType:     change,
		ChangeID:       changeID,
		Status:         model.JobPending,
		Progress:       model.Progress{TotalCount: len(propertyIDs)},
	}
	return o.runJob(ctx, job, func(ctx context.Context, run *jobRun) error {
		return o.streamProperties(ctx, run, propertyIDs, nil)
	})
}

func (o *Orchestrator) resolveAffected(ctx context.Context, municipalityID string, year int, change model.ChangeType, changeID string) ([]string, error) {
	var (
		ids []string
		err error
	)
	switch change {
	case model.ChangeZone:
		ids, err = o.store.ListPropertyIDsByZone(ctx, municipalityID, year, changeID)
	case model.ChangeNeighborhood:
		ids, err = o.store.ListPropertyIDsByNeighborhood(ctx, municipalityID, year, changeID)
	case model.ChangeCurrentUse:
		ids, err = o.store.ListPropertyIDsByCurrentUse(ctx, municipalityID, year, changeID)
	case model.ChangeTaxationCategory, model.ChangeFilter:
		// Both key off the land-use codes carried on use lines.
		ids, err = o.store.ListPropertyIDsByLandUseType(ctx, municipalityID, year, changeID)
	case model.ChangeViewAttribute:
		ids, err = o.store.ListPropertyIDsByViewAttribute(ctx, municipalityID, year, changeID)
	default:
		return nil, apperr.InvalidInput(fmt.Sprintf("unknown change type: %s", change))
	}
	if err != nil {
		return nil, eris.Wrapf(err, "recalc: resolve %s %s", change, changeID)
	}
	return ids, nil
}

// streamProperties processes an explicit property set in chunks. The
// total count tracked on the job is properties, so the processed count
// advances in properties too; cards never inflate the rate or ETA.
func (o *Orchestrator) streamProperties(ctx context.Context, run *jobRun, propertyIDs []string, mutate func(*model.LandAssessment)) error {
	run.countProperties = true

	for start := 0; start < len(propertyIDs); start += o.batchSize {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "recalc: canceled at batch boundary")
		}

		end := start + o.batchSize
		if end > len(propertyIDs) {
			end = len(propertyIDs)
		}
		chunk := propertyIDs[start:end]
		run.processed += len(chunk)

		batch, err := o.store.ListLandForProperties(ctx, run.job.MunicipalityID, run.job.EffectiveYear, chunk)
		if err != nil {
			return eris.Wrap(err, "recalc: list affected batch")
		}
		if len(batch) == 0 {
			continue
		}
		if err := o.processBatch(ctx, run, batch, mutate); err != nil {
			return err
		}
	}
	return nil
}
