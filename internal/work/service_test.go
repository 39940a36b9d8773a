package work

import (
	"context"
	"errors"
	"testing"

	"autorbi/internal/activity"
	"autorbi/internal/auth"
	"autorbi/internal/common"
	"autorbi/internal/models"
	"autorbi/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	svc    *Service
	owner  auth.Actor
	editor auth.Actor
	viewer auth.Actor
	admin  auth.Actor
	other  auth.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	recorder := activity.NewService(db, zap.NewNop())

	actor := func(name string, role models.UserRole) auth.Actor {
		u := testutil.CreateUser(t, db, name, role)
		return auth.Actor{UserID: u.ID, Role: role}
	}

	return &fixture{
		db:     db,
		svc:    NewService(db, recorder, zap.NewNop()),
		owner:  actor("owner", models.UserRoleEngineer),
		editor: actor("editor", models.UserRoleEngineer),
		viewer: actor("viewer", models.UserRoleEngineer),
		admin:  actor("admin", models.UserRoleAdmin),
		other:  actor("other", models.UserRoleEngineer),
	}
}

func (f *fixture) createWork(t *testing.T, name string) *models.Work {
	t.Helper()
	ctx := context.Background()
	w, err := f.svc.Create(ctx, f.owner, CreateInput{Name: name})
	require.NoError(t, err)
	_, err = f.svc.AddCollaborator(ctx, f.owner, w.ID, CollaboratorInput{UserID: f.editor.UserID, Role: models.RoleEditor})
	require.NoError(t, err)
	_, err = f.svc.AddCollaborator(ctx, f.owner, w.ID, CollaboratorInput{UserID: f.viewer.UserID, Role: models.RoleViewer})
	require.NoError(t, err)
	return w
}

func (f *fixture) activities(t *testing.T, entityType models.EntityType, entityID uint) []models.Activity {
	t.Helper()
	var acts []models.Activity
	require.NoError(t, f.db.Where("entity_type = ? AND entity_id = ?", entityType, entityID).Order("id").Find(&acts).Error)
	return acts
}

func ptr[T any](v T) *T { return &v }

func TestCreateRecordsExactlyOneActivity(t *testing.T) {
	f := newFixture(t)

	w, err := f.svc.Create(context.Background(), f.owner, CreateInput{Name: "  Refinery Unit 3 ", Description: "RBI"})
	require.NoError(t, err)
	assert.Equal(t, "Refinery Unit 3", w.Name)
	assert.Equal(t, models.WorkStatusActive, w.Status)

	acts := f.activities(t, models.EntityWork, w.ID)
	require.Len(t, acts, 1)
	assert.Equal(t, models.ActionCreated, acts[0].Action)
	assert.Equal(t, f.owner.UserID, acts[0].UserID)
	assert.Equal(t, "Refinery Unit 3", acts[0].Data["name"])

	var c models.WorkCollaborator
	require.NoError(t, f.db.Where("work_id = ?", w.ID).First(&c).Error)
	assert.Equal(t, models.RoleOwner, c.Role)
}

func TestCreateSucceedsWhenActivityWriteFails(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Migrator().DropTable(&models.Activity{}))

	w, err := f.svc.Create(context.Background(), f.owner, CreateInput{Name: "Plant"})
	require.NoError(t, err)

	var count int64
	require.NoError(t, f.db.Model(&models.Work{}).Where("id = ?", w.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.owner, CreateInput{Name: "   "})
	assert.ErrorIs(t, err, common.ErrInvalidRequest)

	_, err = f.svc.Create(ctx, f.owner, CreateInput{Name: "ok", Status: "paused"})
	assert.ErrorIs(t, err, common.ErrInvalidRequest)
}

func TestAuthorizeRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.createWork(t, "Plant")

	tests := []struct {
		name    string
		actor   auth.Actor
		min     models.CollaboratorRole
		wantErr error
	}{
		{"查看者可查看", f.viewer, models.RoleViewer, nil},
		{"查看者不可编辑", f.viewer, models.RoleEditor, common.ErrForbidden},
		{"编辑者可编辑", f.editor, models.RoleEditor, nil},
		{"编辑者不可删除", f.editor, models.RoleOwner, common.ErrForbidden},
		{"所有者可删除", f.owner, models.RoleOwner, nil},
		{"非协作者不可查看", f.other, models.RoleViewer, common.ErrForbidden},
		{"管理员不受限", f.admin, models.RoleOwner, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Authorize(ctx, tt.actor, w.ID, tt.min)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}

	_, err := f.svc.Authorize(ctx, f.owner, 9999, models.RoleViewer)
	assert.ErrorIs(t, err, common.ErrWorkNotFound)
}

func TestListOnlyVisibleWorks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createWork(t, "A")
	f.createWork(t, "B")
	_, err := f.svc.Create(ctx, f.other, CreateInput{Name: "C", Status: models.WorkStatusArchived})
	require.NoError(t, err)

	works, total, err := f.svc.List(ctx, f.viewer, ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, works, 2)
	assert.Equal(t, "B", works[0].Name)

	_, total, err = f.svc.List(ctx, f.admin, ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	works, total, err = f.svc.List(ctx, f.admin, ListQuery{Status: models.WorkStatusArchived})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "C", works[0].Name)

	works, _, err = f.svc.List(ctx, f.admin, ListQuery{PaginationRequest: common.PaginationRequest{Page: 2, PageSize: 2}})
	require.NoError(t, err)
	assert.Len(t, works, 1)
}

func TestUpdateRecordsChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.createWork(t, "Plant")

	updated, err := f.svc.Update(ctx, f.editor, w.ID, UpdateInput{Status: ptr(models.WorkStatusCompleted)})
	require.NoError(t, err)
	assert.Equal(t, models.WorkStatusCompleted, updated.Status)

	updated, err = f.svc.Update(ctx, f.editor, w.ID, UpdateInput{Name: ptr("Plant 2"), Description: ptr("desc")})
	require.NoError(t, err)
	assert.Equal(t, "Plant 2", updated.Name)

	// 无变化时不记录
	_, err = f.svc.Update(ctx, f.editor, w.ID, UpdateInput{Name: ptr("Plant 2")})
	require.NoError(t, err)

	acts := f.activities(t, models.EntityWork, w.ID)
	var workActs []models.Activity
	for _, a := range acts {
		if a.Action != models.ActionUpdated || a.Data["changes"] != nil {
			workActs = append(workActs, a)
		}
	}
	require.Len(t, workActs, 3)
	assert.Equal(t, models.ActionCreated, workActs[0].Action)
	assert.Equal(t, models.ActionStatusChanged, workActs[1].Action)
	assert.Equal(t, "active", workActs[1].Data["from"])
	assert.Equal(t, "completed", workActs[1].Data["to"])
	assert.Equal(t, models.ActionUpdated, workActs[2].Action)

	_, err = f.svc.Update(ctx, f.viewer, w.ID, UpdateInput{Name: ptr("x")})
	assert.ErrorIs(t, err, common.ErrForbidden)
}

func TestDeleteCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.createWork(t, "Plant")

	eq := models.Equipment{WorkID: w.ID, EquipmentNumber: "V-001"}
	require.NoError(t, f.db.Create(&eq).Error)
	require.NoError(t, f.db.Create(&models.Component{EquipmentID: eq.ID, ComponentName: "Shell"}).Error)
	require.NoError(t, f.db.Create(&models.Extraction{WorkID: w.ID, Status: models.ExtractionCompleted}).Error)
	require.NoError(t, f.db.Create(&models.File{WorkID: w.ID, FileType: models.FileTypeExcel, VersionNumber: 1, FileURL: "x"}).Error)

	assert.ErrorIs(t, f.svc.Delete(ctx, f.editor, w.ID), common.ErrForbidden)
	require.NoError(t, f.svc.Delete(ctx, f.owner, w.ID))

	for _, m := range []interface{}{&models.Work{}, &models.Equipment{}, &models.Component{}, &models.Extraction{}, &models.File{}, &models.WorkCollaborator{}} {
		var count int64
		require.NoError(t, f.db.Model(m).Count(&count).Error)
		assert.Zero(t, count, "%T 应被删除", m)
	}

	acts := f.activities(t, models.EntityWork, w.ID)
	assert.Equal(t, models.ActionDeleted, acts[len(acts)-1].Action)
}

type fakeUploads struct {
	removed []string
	failOn  string
}

func (u *fakeUploads) Remove(key string) error {
	if key == u.failOn {
		return errors.New("disk busy")
	}
	u.removed = append(u.removed, key)
	return nil
}

func TestDeleteRemovesUploads(t *testing.T) {
	f := newFixture(t)
	uploads := &fakeUploads{failOn: "uploads/2026/03/b.pdf"}
	f.svc = NewService(f.db, activity.NewService(f.db, zap.NewNop()), zap.NewNop(), WithUploads(uploads))
	ctx := context.Background()
	w := f.createWork(t, "Plant")
	keep := f.createWork(t, "Other plant")

	for _, e := range []models.Extraction{
		{WorkID: w.ID, Status: models.ExtractionCompleted, PDFURL: "uploads/2026/03/a.pdf"},
		{WorkID: w.ID, Status: models.ExtractionFailed, PDFURL: "uploads/2026/03/b.pdf"},
		{WorkID: w.ID, Status: models.ExtractionPending, PDFURL: "uploads/2026/03/c.pdf"},
		{WorkID: keep.ID, Status: models.ExtractionCompleted, PDFURL: "uploads/2026/03/keep.pdf"},
	} {
		require.NoError(t, f.db.Create(&e).Error)
	}

	require.NoError(t, f.svc.Delete(ctx, f.owner, w.ID), "清理文件失败不影响删除")
	assert.ElementsMatch(t, []string{"uploads/2026/03/a.pdf", "uploads/2026/03/c.pdf"}, uploads.removed)

	var left int64
	require.NoError(t, f.db.Model(&models.Extraction{}).Count(&left).Error)
	assert.Equal(t, int64(1), left)

	assert.ErrorIs(t, f.svc.Delete(ctx, f.owner, w.ID), common.ErrWorkNotFound)
}

func TestCollaborators(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.createWork(t, "Plant")

	views, err := f.svc.ListCollaborators(ctx, f.viewer, w.ID)
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, "owner", views[0].Username)

	_, err = f.svc.AddCollaborator(ctx, f.owner, w.ID, CollaboratorInput{UserID: f.editor.UserID, Role: models.RoleViewer})
	assert.ErrorIs(t, err, ErrCollaboratorExists)
	_, err = f.svc.AddCollaborator(ctx, f.owner, w.ID, CollaboratorInput{UserID: 9999, Role: models.RoleViewer})
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = f.svc.AddCollaborator(ctx, f.owner, w.ID, CollaboratorInput{UserID: f.other.UserID, Role: "boss"})
	assert.ErrorIs(t, err, common.ErrInvalidRequest)
	_, err = f.svc.AddCollaborator(ctx, f.editor, w.ID, CollaboratorInput{UserID: f.other.UserID, Role: models.RoleViewer})
	assert.ErrorIs(t, err, common.ErrForbidden)

	assert.ErrorIs(t, f.svc.RemoveCollaborator(ctx, f.owner, w.ID, f.owner.UserID), ErrLastOwner)
	_, err = f.svc.UpdateCollaborator(ctx, f.owner, w.ID, CollaboratorInput{UserID: f.owner.UserID, Role: models.RoleEditor})
	assert.ErrorIs(t, err, ErrLastOwner)

	c, err := f.svc.UpdateCollaborator(ctx, f.owner, w.ID, CollaboratorInput{UserID: f.editor.UserID, Role: models.RoleOwner})
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, c.Role)

	require.NoError(t, f.svc.RemoveCollaborator(ctx, f.owner, w.ID, f.owner.UserID))
	assert.ErrorIs(t, f.svc.RemoveCollaborator(ctx, f.editor, w.ID, f.owner.UserID), ErrCollaboratorNotFound)

	_, err = f.svc.Get(ctx, f.owner, w.ID)
	assert.ErrorIs(t, err, common.ErrForbidden)
}

func TestSummarize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.createWork(t, "Plant")

	eq := models.Equipment{WorkID: w.ID, EquipmentNumber: "V-001"}
	require.NoError(t, f.db.Create(&eq).Error)
	require.NoError(t, f.db.Create(&models.Component{EquipmentID: eq.ID, ComponentName: "Shell"}).Error)
	require.NoError(t, f.db.Create(&models.Component{EquipmentID: eq.ID, ComponentName: "Head"}).Error)
	require.NoError(t, f.db.Create(&models.Extraction{WorkID: w.ID, Status: models.ExtractionCompleted}).Error)
	require.NoError(t, f.db.Create(&models.Extraction{WorkID: w.ID, Status: models.ExtractionFailed}).Error)
	require.NoError(t, f.db.Create(&models.Extraction{WorkID: w.ID, Status: models.ExtractionFailed}).Error)

	sum, err := f.svc.Summarize(ctx, f.viewer, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.EquipmentCount)
	assert.Equal(t, int64(2), sum.ComponentCount)
	assert.Equal(t, int64(0), sum.FileCount)
	assert.Equal(t, int64(2), sum.ExtractionsByStatus["failed"])
	assert.Equal(t, int64(1), sum.ExtractionsByStatus["completed"])
	assert.NotNil(t, sum.LastActivityAt)
}
