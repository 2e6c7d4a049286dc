// Package landcalc computes land market, current-use, and assessed values
// for one card from its land-use lines, views, and waterfronts.
package landcalc

import (
	"go.uber.org/zap"

	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
)

// LadderValue interpolates a zone's acreage-to-value ladder. Acreage
// between two tiers interpolates linearly; acreage below the smallest tier
// clamps to the smallest tier's value and acreage above the largest clamps
// to the largest; no extrapolation beyond the ladder bounds.
//
// A zone with no ladder data yields zero with ok=false; callers log and
// continue, since missing ladders are a data condition, not a fault.
func LadderValue(zone *model.Zone, acreage float64) (value float64, ok bool) {
	tiers := zone.Ladder
	if len(tiers) == 0 {
		return 0, false
	}

	if acreage <= tiers[0].Acreage {
		return tiers[0].Value, true
	}
	last := tiers[len(tiers)-1]
	if acreage >= last.Acreage {
		return last.Value, true
	}

	for i := 1; i < len(tiers); i++ {
		lo, hi := tiers[i-1], tiers[i]
		if acreage <= hi.Acreage {
			span := hi.Acreage - lo.Acreage
			if span <= 0 {
				// Duplicate acreage tiers should not exist; take the later one.
				return hi.Value, true
			}
			frac := (acreage - lo.Acreage) / span
			return lo.Value + frac*(hi.Value-lo.Value), true
		}
	}

	// Unreachable given the bounds checks above.
	return last.Value, true
}

func warnMissingLadder(zone *model.Zone) {
	zap.L().Warn("landcalc: zone has no ladder data, line valued at zero",
		zap.String("zone_id", zone.ID),
		zap.String("zone_code", zone.Code),
	)
}
