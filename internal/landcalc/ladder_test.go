package landcalc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
)

func ladderZone(tiers ...model.LandLadderTier) *model.Zone {
	return &model.Zone{ID: "z1", Code: "R1", Ladder: tiers}
}

func TestLadderValue_ExactTier(t *testing.T) {
	zone := ladderZone(
		model.LandLadderTier{Acreage: 1, Value: 20000},
		model.LandLadderTier{Acreage: 2, Value: 30000},
		model.LandLadderTier{Acreage: 5, Value: 60000},
	)

	v, ok := LadderValue(zone, 2)
	assert.True(t, ok)
	assert.Equal(t, 30000.0, v)
}

func TestLadderValue_Interpolates(t *testing.T) {
	zone := ladderZone(
		model.LandLadderTier{Acreage: 2, Value: 30000},
		model.LandLadderTier{Acreage: 4, Value: 50000},
	)

	v, ok := LadderValue(zone, 3)
	assert.True(t, ok)
	assert.Equal(t, 40000.0, v)
}

func TestLadderValue_ClampsBelowFirstTier(t *testing.T) {
	zone := ladderZone(
		model.LandLadderTier{Acreage: 1, Value: 20000},
		model.LandLadderTier{Acreage: 5, Value: 60000},
	)

	v, ok := LadderValue(zone, 0.25)
	assert.True(t, ok)
	assert.Equal(t, 20000.0, v)
}

func TestLadderValue_ClampsAboveLastTier(t *testing.T) {
	zone := ladderZone(
		model.LandLadderTier{Acreage: 1, Value: 20000},
		model.LandLadderTier{Acreage: 5, Value: 60000},
	)

	v, ok := LadderValue(zone, 100)
	assert.True(t, ok)
	assert.Equal(t, 60000.0, v)
}

func TestLadderValue_EmptyLadder(t *testing.T) {
	zone := ladderZone()

	v, ok := LadderValue(zone, 3)
	assert.False(t, ok)
	assert.Zero(t, v)
}

func TestLadderValue_MonotoneBetweenTiers(t *testing.T) {
	zone := ladderZone(
		model.LandLadderTier{Acreage: 1, Value: 20000},
		model.LandLadderTier{Acreage: 3, Value: 40000},
		model.LandLadderTier{Acreage: 10, Value: 90000},
	)

	prev := -1.0
	for acreage := 0.5; acreage <= 12; acreage += 0.25 {
		v, ok := LadderValue(zone, acreage)
		assert.True(t, ok)
		assert.GreaterOrEqual(t, v, prev, "acreage %v", acreage)
		prev = v
	}
}

func TestLadderValue_DuplicateAcreageTiers(t *testing.T) {
	zone := ladderZone(
		model.LandLadderTier{Acreage: 1, Value: 20000},
		model.LandLadderTier{Acreage: 2, Value: 25000},
		model.LandLadderTier{Acreage: 2, Value: 30000},
		model.LandLadderTier{Acreage: 4, Value: 50000},
	)

	v, ok := LadderValue(zone, 2)
	assert.True(t, ok)
	assert.Equal(t, 25000.0, v)
}
