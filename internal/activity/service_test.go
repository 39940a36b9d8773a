package activity

import (
	"context"
	"testing"
	"time"

	"autorbi/internal/common"
	"autorbi/internal/models"
	"autorbi/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	return NewService(db, zap.NewNop()), db
}

// clock 每次调用前进一秒，保证排序稳定
func clock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func mustLog(t *testing.T, svc *Service, e Entry) *models.Activity {
	t.Helper()
	act, err := svc.Log(context.Background(), e)
	require.NoError(t, err)
	return act
}

func TestLogValidates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		entry   Entry
		wantErr error
	}{
		{"缺少用户", Entry{EntityType: models.EntityWork, EntityID: 1, Action: models.ActionCreated}, ErrInvalidQuery},
		{"缺少实体", Entry{UserID: 1, EntityType: models.EntityWork, Action: models.ActionCreated}, ErrInvalidQuery},
		{"未知实体类型", Entry{UserID: 1, EntityType: "invoice", EntityID: 1, Action: models.ActionCreated}, ErrInvalidEntityType},
		{"未知动作", Entry{UserID: 1, EntityType: models.EntityWork, EntityID: 1, Action: "viewed"}, ErrInvalidAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Log(ctx, tt.entry)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLogStoresDataAndWork(t *testing.T) {
	svc, db := newTestService(t)

	act := mustLog(t, svc, Entry{
		UserID:     1,
		EntityType: models.EntityFile,
		EntityID:   9,
		Action:     models.ActionCreated,
		WorkID:     3,
		Data:       map[string]interface{}{"file_type": "excel"},
	})

	var stored models.Activity
	require.NoError(t, db.First(&stored, act.ID).Error)
	require.NotNil(t, stored.WorkID)
	assert.Equal(t, uint(3), *stored.WorkID)
	assert.Equal(t, "excel", stored.Data["file_type"])
}

func TestRecordSwallowsFailures(t *testing.T) {
	db := testutil.NewDB(t)
	core, logs := observer.New(zap.WarnLevel)
	svc := NewService(db, zap.New(core))

	require.NoError(t, db.Migrator().DropTable(&models.Activity{}))

	assert.NotPanics(t, func() {
		svc.Record(context.Background(), Entry{UserID: 1, EntityType: models.EntityWork, EntityID: 1, Action: models.ActionCreated})
	})
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "写入活动日志失败", logs.All()[0].Message)
}

func TestRecordIgnoresCanceledContext(t *testing.T) {
	svc, db := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc.Record(ctx, Entry{UserID: 1, EntityType: models.EntityWork, EntityID: 1, Action: models.ActionCreated})

	var count int64
	require.NoError(t, db.Model(&models.Activity{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestByUserFiltersAndPaginates(t *testing.T) {
	svc, _ := newTestService(t)
	svc.now = clock(time.Now())
	ctx := context.Background()

	for i := uint(1); i <= 3; i++ {
		mustLog(t, svc, Entry{UserID: 1, EntityType: models.EntityWork, EntityID: i, Action: models.ActionCreated})
	}
	mustLog(t, svc, Entry{UserID: 1, EntityType: models.EntityFile, EntityID: 1, Action: models.ActionCreated})
	mustLog(t, svc, Entry{UserID: 2, EntityType: models.EntityWork, EntityID: 1, Action: models.ActionUpdated})

	acts, total, err := svc.ByUser(ctx, UserQuery{UserID: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, acts, 4)
	assert.Equal(t, models.EntityFile, acts[0].EntityType, "最新的记录在前")

	acts, total, err = svc.ByUser(ctx, UserQuery{UserID: 1, EntityType: models.EntityWork, Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, acts, 2)
	assert.Equal(t, uint(2), acts[0].EntityID)
	assert.Equal(t, uint(1), acts[1].EntityID)

	_, _, err = svc.ByUser(ctx, UserQuery{UserID: 1, Limit: 501})
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, _, err = svc.ByUser(ctx, UserQuery{UserID: 1, Offset: -1})
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, _, err = svc.ByUser(ctx, UserQuery{UserID: 1, EntityType: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidEntityType)
}

func TestByWorkIncludesRelatedEntities(t *testing.T) {
	svc, db := newTestService(t)
	svc.now = clock(time.Now())
	ctx := context.Background()

	work := models.Work{Name: "Plant A", Status: models.WorkStatusActive}
	require.NoError(t, db.Create(&work).Error)
	other := models.Work{Name: "Plant B", Status: models.WorkStatusActive}
	require.NoError(t, db.Create(&other).Error)

	mustLog(t, svc, Entry{UserID: 1, EntityType: models.EntityWork, EntityID: work.ID, Action: models.ActionCreated, WorkID: work.ID})
	mustLog(t, svc, Entry{UserID: 1, EntityType: models.EntityEquipment, EntityID: 10, Action: models.ActionCreated, WorkID: work.ID})
	mustLog(t, svc, Entry{UserID: 1, EntityType: models.EntityExtraction, EntityID: 4, Action: models.ActionUploaded, WorkID: work.ID})
	mustLog(t, svc, Entry{UserID: 1, EntityType: models.EntityFile, EntityID: 2, Action: models.ActionCreated, WorkID: work.ID})
	mustLog(t, svc, Entry{UserID: 1, EntityType: models.EntityEquipment, EntityID: 11, Action: models.ActionCreated, WorkID: other.ID})
	// 旧数据未填写 work_id 时仍能通过实体本身匹配
	mustLog(t, svc, Entry{UserID: 2, EntityType: models.EntityWork, EntityID: work.ID, Action: models.ActionUpdated})

	acts, err := svc.ByWork(ctx, work.ID)
	require.NoError(t, err)
	require.Len(t, acts, 5)
	assert.Equal(t, models.ActionUpdated, acts[0].Action)
	assert.Equal(t, models.EntityFile, acts[1].EntityType)
	assert.Equal(t, models.EntityWork, acts[4].EntityType)
	for _, a := range acts {
		assert.NotEqual(t, uint(11), a.EntityID)
	}

	_, err = svc.ByWork(ctx, 9999)
	assert.ErrorIs(t, err, common.ErrWorkNotFound)
}

func TestByEntityAndAction(t *testing.T) {
	svc, _ := newTestService(t)
	svc.now = clock(time.Now())
	ctx := context.Background()

	mustLog(t, svc, Entry{UserID: 1, EntityType: models.EntityEquipment, EntityID: 5, Action: models.ActionCreated})
	mustLog(t, svc, Entry{UserID: 1, EntityType: models.EntityEquipment, EntityID: 5, Action: models.ActionUpdated})
	mustLog(t, svc, Entry{UserID: 1, EntityType: models.EntityEquipment, EntityID: 6, Action: models.ActionDeleted})

	acts, err := svc.ByEntity(ctx, models.EntityEquipment, 5, 0)
	require.NoError(t, err)
	require.Len(t, acts, 2)
	assert.Equal(t, models.ActionUpdated, acts[0].Action)

	acts, err = svc.ByEntity(ctx, models.EntityEquipment, 5, 1)
	require.NoError(t, err)
	assert.Len(t, acts, 1)

	_, err = svc.ByEntity(ctx, "bogus", 5, 0)
	assert.ErrorIs(t, err, ErrInvalidEntityType)

	acts, err = svc.ByAction(ctx, models.ActionDeleted, 0, 0)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, uint(6), acts[0].EntityID)

	_, err = svc.ByAction(ctx, "viewed", 0, 0)
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestByPeriodAndSummary(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	svc.now = func() time.Time { return now.AddDate(0, 0, -10) }
	mustLog(t, svc, Entry{UserID: 1, EntityType: models.EntityWork, EntityID: 1, Action: models.ActionCreated})

	svc.now = clock(now.Add(-time.Hour))
	mustLog(t, svc, Entry{UserID: 1, EntityType: models.EntityWork, EntityID: 1, Action: models.ActionUpdated})
	mustLog(t, svc, Entry{UserID: 1, EntityType: models.EntityEquipment, EntityID: 2, Action: models.ActionCreated})

	svc.now = func() time.Time { return now }

	acts, err := svc.ByPeriod(ctx, 7, 0)
	require.NoError(t, err)
	assert.Len(t, acts, 2)

	acts, err = svc.ByPeriod(ctx, 30, 0)
	require.NoError(t, err)
	assert.Len(t, acts, 3)

	_, err = svc.ByPeriod(ctx, 366, 0)
	assert.ErrorIs(t, err, ErrInvalidQuery)

	sum, err := svc.Summarize(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultPeriodDays, sum.Days)
	assert.Equal(t, int64(2), sum.Total)
	assert.Equal(t, int64(1), sum.ByEntityType["work"])
	assert.Equal(t, int64(1), sum.ByEntityType["equipment"])
	assert.Equal(t, int64(1), sum.ByAction["updated"])
	assert.Equal(t, int64(1), sum.ByAction["created"])
}

func TestWorkOfResolvesOwningWork(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	w := models.Work{Name: "Plant", Status: models.WorkStatusActive}
	require.NoError(t, db.Create(&w).Error)
	eq := models.Equipment{WorkID: w.ID, EquipmentNumber: "V-001"}
	require.NoError(t, db.Create(&eq).Error)
	comp := models.Component{EquipmentID: eq.ID, ComponentName: "Shell"}
	require.NoError(t, db.Create(&comp).Error)
	file := models.File{WorkID: w.ID, FileType: models.FileTypeExcel, VersionNumber: 1, FileURL: "x.xlsx"}
	require.NoError(t, db.Create(&file).Error)
	ext := models.Extraction{WorkID: w.ID, Status: models.ExtractionPending}
	require.NoError(t, db.Create(&ext).Error)

	for entityType, id := range map[models.EntityType]uint{
		models.EntityWork:       w.ID,
		models.EntityEquipment:  eq.ID,
		models.EntityComponent:  comp.ID,
		models.EntityFile:       file.ID,
		models.EntityExtraction: ext.ID,
	} {
		got, err := svc.WorkOf(ctx, entityType, id)
		require.NoError(t, err, entityType)
		assert.Equal(t, w.ID, got, entityType)
	}

	_, err := svc.WorkOf(ctx, models.EntityComponent, 9999)
	assert.ErrorIs(t, err, ErrEntityNotFound)
	_, err = svc.WorkOf(ctx, "invoice", 1)
	assert.ErrorIs(t, err, ErrInvalidEntityType)
}
