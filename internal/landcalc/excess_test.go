package landcalc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chadRoberge/avitar-suite-sub003/internal/model"
)

func TestRedistributeExcess_ClipsAndCreatesLine(t *testing.T) {
	zone := &model.Zone{ID: "z1", Code: "R1", MinimumAcreage: 2}
	a := &model.LandAssessment{
		PropertyID: "p1",
		Lines: []model.LandUseLine{
			{LandUseType: "residential", TopographyID: "topo-1", Size: 5, Unit: model.UnitAcres},
		},
	}
	before := a.TotalAcreage()

	changed := RedistributeExcess(a, zone)
	require.True(t, changed)
	require.Len(t, a.Lines, 2)

	assert.Equal(t, 2.0, a.Lines[0].Size)
	assert.Equal(t, 3.0, a.Lines[1].Size)
	assert.True(t, a.Lines[1].IsExcessAcreage)
	assert.Equal(t, "residential", a.Lines[1].LandUseType)
	assert.Equal(t, "topo-1", a.Lines[1].TopographyID)
	assert.Equal(t, before, a.TotalAcreage())
}

func TestRedistributeExcess_ReusesExistingExcessLine(t *testing.T) {
	zone := &model.Zone{ID: "z1", MinimumAcreage: 2}
	a := &model.LandAssessment{
		Lines: []model.LandUseLine{
			{Size: 6, Unit: model.UnitAcres},
			{Size: 1, Unit: model.UnitAcres, IsExcessAcreage: true},
		},
	}
	before := a.TotalAcreage()

	changed := RedistributeExcess(a, zone)
	require.True(t, changed)
	require.Len(t, a.Lines, 2)

	assert.Equal(t, 2.0, a.Lines[0].Size)
	assert.Equal(t, 5.0, a.Lines[1].Size)
	assert.Equal(t, before, a.TotalAcreage())
}

func TestRedistributeExcess_MultipleContributingLines(t *testing.T) {
	zone := &model.Zone{ID: "z1", MinimumAcreage: 2}
	a := &model.LandAssessment{
		Lines: []model.LandUseLine{
			{LandUseType: "residential", Size: 3, Unit: model.UnitAcres},
			{LandUseType: "wooded", Size: 4, Unit: model.UnitAcres},
		},
	}
	before := a.TotalAcreage()

	changed := RedistributeExcess(a, zone)
	require.True(t, changed)
	require.Len(t, a.Lines, 3)

	assert.Equal(t, 3.0, a.Lines[2].Size)
	// New line inherits from the first line that contributed.
	assert.Equal(t, "residential", a.Lines[2].LandUseType)
	assert.Equal(t, before, a.TotalAcreage())
}

func TestRedistributeExcess_NoMinimumNoChange(t *testing.T) {
	zone := &model.Zone{ID: "z1"}
	a := &model.LandAssessment{
		Lines: []model.LandUseLine{
			{Size: 50, Unit: model.UnitAcres},
		},
	}

	assert.False(t, RedistributeExcess(a, zone))
	assert.Equal(t, 50.0, a.Lines[0].Size)
}

func TestRedistributeExcess_UnderMinimumNoChange(t *testing.T) {
	zone := &model.Zone{ID: "z1", MinimumAcreage: 2}
	a := &model.LandAssessment{
		Lines: []model.LandUseLine{
			{Size: 1.5, Unit: model.UnitAcres},
		},
	}

	assert.False(t, RedistributeExcess(a, zone))
	assert.Len(t, a.Lines, 1)
}

func TestRedistributeExcess_FrontageLinesIgnored(t *testing.T) {
	zone := &model.Zone{ID: "z1", MinimumAcreage: 2}
	a := &model.LandAssessment{
		Lines: []model.LandUseLine{
			{Size: 300, Unit: model.UnitFrontage},
		},
	}

	assert.False(t, RedistributeExcess(a, zone))
	assert.Equal(t, 300.0, a.Lines[0].Size)
}
