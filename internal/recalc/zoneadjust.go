package recalc

import (
	"context"

	"go.uber.org/zap"

	"github.com/chadRoberge/avitar-suite-sub003/internal/landcalc"
	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
)

// RecalculateZone recomputes every property in a zone after its ladder,
// minimum acreage, or rates changed. Before each card is valued its
// land lines are run through the excess-acreage redistribution so a
// raised or lowered minimum reshapes the lines in the same pass.
func (o *Orchestrator) RecalculateZone(ctx context.Context, municipalityID string, year int, zoneID string) (*model.JobSummary, error) {
	if err := o.validator.Validate(ctx, municipalityID, year); err != nil {
		return nil, err
	}

	propertyIDs, err := o.resolveAffected(ctx, municipalityID, year, model.ChangeZone, zoneID)
	if err != nil {
		return nil, err
	}

	job := &model.RecalcJob{
		MunicipalityID: municipalityID,
		EffectiveYear:  year,
		Trigger:        model.TriggerZoneAdjustment,
		ChangeType:     model.ChangeZone,
		ChangeID:       zoneID,
		Status:         model.JobPending,
		Progress:       model.Progress{TotalCount: len(propertyIDs)},
	}
	return o.runJob(ctx, job, func(ctx context.Context, run *jobRun) error {
		redistributed := 0
		mutate := func(a *model.LandAssessment) {
			zone, ok := run.cc.Zone(a.ZoneID)
			if !ok {
				return
			}
			if landcalc.RedistributeExcess(a, zone) {
				redistributed++
			}
		}
		err := o.streamProperties(ctx, run, propertyIDs, mutate)
		if redistributed > 0 {
			zap.L().Info("recalc: redistributed excess acreage",
				zap.String("zone_id", zoneID),
				zap.Int("cards", redistributed),
			)
		}
		return err
	})
}
