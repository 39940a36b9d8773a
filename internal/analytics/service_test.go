package analytics

import (
	"context"
	"testing"
	"time"

	"autorbi/internal/auth"
	"autorbi/internal/common"
	"autorbi/internal/models"
	"autorbi/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var admin = auth.Actor{UserID: 1, Role: models.UserRoleAdmin}

type fixture struct {
	db    *gorm.DB
	svc   *Service
	now   time.Time
	works [2]models.Work
}

// newFixture 两个项目：近期项目 A 与 20 天前的项目 B
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	now := time.Now().UTC()
	f := &fixture{db: db, svc: NewService(db), now: now}
	f.svc.now = func() time.Time { return now }

	old := now.AddDate(0, 0, -20)
	f.works[0] = models.Work{Name: "A", Status: models.WorkStatusActive, CreatedAt: now.Add(-time.Hour)}
	f.works[1] = models.Work{Name: "B", Status: models.WorkStatusCompleted, CreatedAt: old}
	require.NoError(t, db.Create(&f.works[0]).Error)
	require.NoError(t, db.Create(&f.works[1]).Error)
	require.NoError(t, db.Create([]models.WorkCollaborator{
		{WorkID: f.works[0].ID, UserID: 7, Role: models.RoleOwner},
		{WorkID: f.works[1].ID, UserID: 8, Role: models.RoleOwner},
		{WorkID: f.works[1].ID, UserID: 7, Role: models.RoleViewer},
	}).Error)

	a, b := f.works[0].ID, f.works[1].ID
	require.NoError(t, db.Create([]models.Extraction{
		{WorkID: a, CreatedBy: 7, Status: models.ExtractionCompleted, CreatedAt: now.Add(-time.Hour)},
		{WorkID: a, CreatedBy: 7, Status: models.ExtractionFailed, CreatedAt: now.Add(-time.Hour)},
		{WorkID: b, CreatedBy: 8, Status: models.ExtractionCompleted, CreatedAt: old},
	}).Error)
	require.NoError(t, db.Create([]models.File{
		{WorkID: a, FileType: models.FileTypeExcel, VersionNumber: 1, FileURL: "a1", CreatedAt: now},
		{WorkID: a, FileType: models.FileTypeExcel, VersionNumber: 2, FileURL: "a2", CreatedAt: now},
		{WorkID: a, FileType: models.FileTypePowerPoint, VersionNumber: 1, FileURL: "a3", CreatedAt: now},
	}).Error)

	eqA := models.Equipment{WorkID: a, EquipmentNumber: "V-1", CreatedAt: now}
	eqB := models.Equipment{WorkID: b, EquipmentNumber: "V-2", CreatedAt: old}
	require.NoError(t, db.Create(&eqA).Error)
	require.NoError(t, db.Create(&eqB).Error)
	require.NoError(t, db.Create([]models.Component{
		{EquipmentID: eqA.ID, ComponentName: "Shell", Phase: "Liquid", Fluid: "Water"},
		{EquipmentID: eqA.ID, ComponentName: "Head", Phase: "Liquid"},
		{EquipmentID: eqA.ID, ComponentName: "Nozzle", Phase: "Vapor", Fluid: "Water"},
		{EquipmentID: eqB.ID, ComponentName: "Shell", Phase: "Vapor"},
	}).Error)

	wa := a
	require.NoError(t, db.Create([]models.Activity{
		{UserID: 7, EntityType: models.EntityWork, EntityID: a, Action: models.ActionCreated, WorkID: &wa, CreatedAt: now},
		{UserID: 7, EntityType: models.EntityFile, EntityID: 1, Action: models.ActionCreated, WorkID: &wa, CreatedAt: now},
		{UserID: 7, EntityType: models.EntityExtraction, EntityID: 1, Action: models.ActionUploaded, WorkID: &wa, CreatedAt: now},
		{UserID: 7, EntityType: models.EntityExtraction, EntityID: 1, Action: models.ActionStatusChanged, WorkID: &wa, CreatedAt: now},
		{UserID: 8, EntityType: models.EntityWork, EntityID: b, Action: models.ActionCreated, CreatedAt: old},
	}).Error)
	return f
}

func TestRequiresAdminAndValidParams(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ExtractionStatus(ctx, auth.Actor{UserID: 7, Role: models.UserRoleEngineer}, Query{})
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = f.svc.ExtractionStatus(ctx, admin, Query{Period: "last_year"})
	assert.ErrorIs(t, err, common.ErrInvalidRequest)

	_, err = f.svc.WorkStatus(ctx, admin, Query{GroupBy: "work_id"})
	assert.ErrorIs(t, err, common.ErrInvalidRequest)
}

func TestExtractionStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.svc.ExtractionStatus(ctx, admin, Query{})
	require.NoError(t, err)
	assert.Equal(t, "extraction_status", m.Metric)
	assert.Equal(t, PeriodLast30Days, m.Period)
	assert.EqualValues(t, 3, m.Total)
	assert.Equal(t, []StatusCount{{Status: "completed", Count: 2}, {Status: "failed", Count: 1}}, m.Data)

	m, err = f.svc.ExtractionStatus(ctx, admin, Query{Period: PeriodLast7Days, GroupBy: "user_id"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, m.Total)
	assert.Equal(t, []StatusCount{
		{UserID: 7, Status: "completed", Count: 1},
		{UserID: 7, Status: "failed", Count: 1},
	}, m.Data)

	m, err = f.svc.ExtractionStatus(ctx, admin, Query{Period: PeriodAllTime, GroupBy: "work_id"})
	require.NoError(t, err)
	rows := m.Data.([]StatusCount)
	require.Len(t, rows, 3)
	assert.Equal(t, f.works[1].ID, rows[2].WorkID)
}

func TestWorkStatusByOwner(t *testing.T) {
	f := newFixture(t)
	m, err := f.svc.WorkStatus(context.Background(), admin, Query{GroupBy: "user_id"})
	require.NoError(t, err)
	assert.Equal(t, []StatusCount{
		{UserID: 7, Status: "active", Count: 1},
		{UserID: 8, Status: "completed", Count: 1},
	}, m.Data, "只按所有者计")

	m, err = f.svc.WorkStatus(context.Background(), admin, Query{Period: PeriodLast7Days})
	require.NoError(t, err)
	assert.EqualValues(t, 1, m.Total)
}

func TestFileVersions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.svc.FileVersions(ctx, admin, Query{})
	require.NoError(t, err)
	require.Equal(t, []FileVersionStat{{Count: 3, AvgVersion: 1.33, MaxVersion: 2}}, m.Data)
	assert.EqualValues(t, 1, m.Total)

	m, err = f.svc.FileVersions(ctx, admin, Query{GroupBy: "file_type"})
	require.NoError(t, err)
	assert.Equal(t, []FileVersionStat{
		{FileType: "excel", Count: 2, AvgVersion: 1.5, MaxVersion: 2},
		{FileType: "powerpoint", Count: 1, AvgVersion: 1, MaxVersion: 1},
	}, m.Data)
}

func TestUserActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.svc.UserActivity(ctx, admin, Query{Period: PeriodLast7Days})
	require.NoError(t, err)
	assert.Equal(t, []UserActivity{{UserID: 7, WorksCreated: 1, FilesCreated: 1, ExtractionsRun: 1, Activities: 4}}, m.Data)

	m, err = f.svc.UserActivity(ctx, admin, Query{Period: PeriodAllTime})
	require.NoError(t, err)
	assert.EqualValues(t, 2, m.Total)
}

func TestComponentAndEquipmentCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.svc.ComponentCount(ctx, admin, Query{Period: PeriodLast7Days, GroupBy: "fluid"})
	require.NoError(t, err)
	assert.Equal(t, []Bucket{{Key: "Water", Count: 2}, {Key: "unknown", Count: 1}}, m.Data)
	assert.EqualValues(t, 3, m.Total)

	m, err = f.svc.ComponentCount(ctx, admin, Query{Period: PeriodAllTime})
	require.NoError(t, err)
	assert.Equal(t, []Bucket{{Count: 4}}, m.Data)

	m, err = f.svc.EquipmentCount(ctx, admin, Query{Period: PeriodAllTime})
	require.NoError(t, err)
	assert.Equal(t, "work_id", m.GroupBy)
	assert.Equal(t, []WorkCount{{WorkID: f.works[0].ID, Count: 1}, {WorkID: f.works[1].ID, Count: 1}}, m.Data)
	assert.EqualValues(t, 2, m.Total)
}
