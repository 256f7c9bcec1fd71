package loader

import (
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/registry"
)

const sampleExport = `==== TASK DURATIONS AND RESOURCES ====
Task ID,Duration (minutes),Team,Mechanics Required,Name
1,60,Mechanic Team 1,2,Fit wing panel
2,90,Mechanic Team 1,1,Seal wing panel
3,45,Mechanic Team 2,1,Install bracket
bad,60,Mechanic Team 1,1,Broken row

==== TASK RELATIONSHIPS ====
First Task,Second Task,Relationship Type
1,2,FS
2,3,Start = Start
1,3,sideways

==== PRODUCT DELIVERY SCHEDULE ====
Product,Delivery Date,First Task,Last Task
UNIT1,2025-09-05,1,3
UNIT2,2025-09-12,1,2

==== TEAM CAPACITY ====
Team,Capacity,Shifts
Mechanic Team 1,4,1st Shift;2nd Shift
Mechanic Team 2,2,
Quality Team 1,2,
Customer Team 1,1,

==== SHIFT HOURS ====
Shift,Start,End
1st Shift,06:00,14:30
2nd Shift,14:30,23:00
3rd Shift,23:00,06:00

==== HOLIDAYS ====
Product,Date
UNIT1,2025-08-25

==== LATE PARTS ====
Task ID,Product,Duration (minutes),Team,Mechanics Required,On-Dock Date,Successor Task
1001,UNIT1,120,Mechanic Team 1,1,2025-08-25,2

==== REWORK ====
Task ID,Product,Duration (minutes),Team,Mechanics Required,Predecessor Task,Successor Task
2001,UNIT2,60,Mechanic Team 2,1,1,2

==== QUALITY INSPECTIONS ====
Task ID,Duration (minutes)
1,30

==== CUSTOMER INSPECTIONS ====
Task ID,Duration (minutes)
1,20
`

func testLogger(t *testing.T) ectologger.Logger {
	t.Helper()
	zapLogger, err := zap.NewDevelopment()
	require.NoError(t, err)
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func TestLoadSampleExport(t *testing.T) {
	reg := registry.New()
	summary, err := New(testLogger(t), DefaultOptions()).Load(strings.NewReader(sampleExport), reg)
	require.NoError(t, err)

	// 5 baseline instances, 1 late part, 1 rework, 2 quality and 2 customer
	// inspections.
	assert.Equal(t, 11, summary.Tasks)
	assert.Equal(t, 2, summary.Products)
	assert.Equal(t, 4, summary.Teams)
	assert.Equal(t, 6, summary.Constraints)
	assert.Equal(t, 2, summary.Warnings)
	assert.Equal(t, 11, reg.TaskCount())

	// Baseline expansion respects each product's task range.
	_, ok := reg.Task("UNIT1_3")
	assert.True(t, ok)
	_, ok = reg.Task("UNIT2_3")
	assert.False(t, ok)

	unit1Task, ok := reg.Task("UNIT1_1")
	require.True(t, ok)
	assert.Equal(t, "Fit wing panel", unit1Task.Name)
	assert.Equal(t, 60, unit1Task.DurationMinutes)
	assert.Equal(t, "Mechanic Team 1", unit1Task.Team)
	assert.Equal(t, 2, unit1Task.Headcount)
	assert.Equal(t, models.TaskKindBaseline, unit1Task.Kind)
}

func TestLoadRelationships(t *testing.T) {
	reg := registry.New()
	_, err := New(testLogger(t), DefaultOptions()).Load(strings.NewReader(sampleExport), reg)
	require.NoError(t, err)

	constraints := reg.Constraints()
	require.Len(t, constraints, 3)
	assert.Equal(t, models.RelationFinishStart, constraints[0].Kind)
	assert.Equal(t, models.RelationStartEqualsStart, constraints[1].Kind)

	// Unknown relationship text falls back to Finish <= Start.
	assert.Equal(t, models.RelationFinishStart, constraints[2].Kind)
}

func TestLoadLatePartEarliestStart(t *testing.T) {
	reg := registry.New()
	_, err := New(testLogger(t), DefaultOptions()).Load(strings.NewReader(sampleExport), reg)
	require.NoError(t, err)

	lp, ok := reg.Task("LP_1001")
	require.True(t, ok)
	assert.Equal(t, models.TaskKindLatePart, lp.Kind)

	// On-dock Aug 25 plus the one-day material delay, floored to the 06:00
	// working-day start.
	expected := time.Date(2025, 8, 26, 6, 0, 0, 0, time.UTC)
	assert.Equal(t, expected, lp.EarliestStart)

	late := reg.LatePartConstraints()
	require.Len(t, late, 1)
	assert.Equal(t, 1001, late[0].FirstBaseID)
	assert.Equal(t, 2, late[0].SecondBaseID)
}

func TestLoadInspectionsMapToPairedPools(t *testing.T) {
	reg := registry.New()
	_, err := New(testLogger(t), DefaultOptions()).Load(strings.NewReader(sampleExport), reg)
	require.NoError(t, err)

	qi, ok := reg.Task("UNIT1_QI_1")
	require.True(t, ok)
	assert.Equal(t, "Quality Team 1", qi.Team)
	assert.Equal(t, 30, qi.DurationMinutes)
	assert.Equal(t, 1, qi.Headcount)

	cc, ok := reg.Task("UNIT2_CC_1")
	require.True(t, ok)
	assert.Equal(t, "Customer Team 1", cc.Team)
	assert.Equal(t, 20, cc.DurationMinutes)

	paired, ok := reg.QualityInspection("UNIT2_1")
	require.True(t, ok)
	assert.Equal(t, "UNIT2_QI_1", paired)
}

func TestLoadTeamsAndShifts(t *testing.T) {
	reg := registry.New()
	_, err := New(testLogger(t), DefaultOptions()).Load(strings.NewReader(sampleExport), reg)
	require.NoError(t, err)

	team, ok := reg.Team("Mechanic Team 1")
	require.True(t, ok)
	assert.Equal(t, 4, team.Capacity)
	assert.Equal(t, []string{"1st Shift", "2nd Shift"}, team.Shifts)
	assert.Equal(t, models.TeamKindMechanic, team.Kind)

	quality, ok := reg.Team("Quality Team 1")
	require.True(t, ok)
	assert.Equal(t, models.TeamKindQuality, quality.Kind)

	shifts := reg.Shifts()
	require.Len(t, shifts, 3)
	assert.Equal(t, 6*60, shifts[0].Start)
	assert.Equal(t, 14*60+30, shifts[0].End)
	assert.True(t, shifts[2].Wraps())

	assert.True(t, reg.IsHoliday("UNIT1", time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC)))
}

func TestFloorToWorkingDayStart(t *testing.T) {
	in := time.Date(2025, 8, 25, 17, 45, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 8, 25, 6, 0, 0, 0, time.UTC), FloorToWorkingDayStart(in))

	// Already past midnight but before 06:00 still floors to the same date.
	early := time.Date(2025, 8, 25, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 8, 25, 6, 0, 0, 0, time.UTC), FloorToWorkingDayStart(early))
}

func TestLoadEmptyDocument(t *testing.T) {
	reg := registry.New()
	summary, err := New(testLogger(t), DefaultOptions()).Load(strings.NewReader(""), reg)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Tasks)
	assert.Equal(t, 0, reg.TaskCount())
}
