package user

import (
	"context"
	"testing"

	"autorbi/internal/auth"
	"autorbi/internal/common"
	"autorbi/internal/models"
	"autorbi/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	svc   *Service
	admin auth.Actor
	alice auth.Actor
	bob   auth.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	actor := func(name string, role models.UserRole) auth.Actor {
		u := testutil.CreateUser(t, db, name, role)
		return auth.Actor{UserID: u.ID, Role: role}
	}
	return &fixture{
		db:    db,
		svc:   NewService(db, zaptest.NewLogger(t)),
		admin: actor("admin", models.UserRoleAdmin),
		alice: actor("alice", models.UserRoleEngineer),
		bob:   actor("bob", models.UserRoleEngineer),
	}
}

func TestLookup(t *testing.T) {
	f := newFixture(t)
	u, err := f.svc.Lookup(context.Background(), f.alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	_, err = f.svc.Lookup(context.Background(), 9999)
	assert.ErrorIs(t, err, common.ErrUserNotFound)
}

func TestProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	name := "  Alice Engineer "
	u, err := f.svc.UpdateMe(ctx, f.alice, ProfileInput{FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Alice Engineer", u.FullName)

	me, err := f.svc.Me(ctx, f.alice)
	require.NoError(t, err)
	assert.Equal(t, "Alice Engineer", me.FullName)
	assert.Equal(t, models.UserRoleEngineer, me.Role)
}

func TestListAndGetPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.List(ctx, f.alice, ListQuery{})
	assert.ErrorIs(t, err, common.ErrForbidden)

	users, total, err := f.svc.List(ctx, f.admin, ListQuery{Role: models.UserRoleEngineer})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)

	_, _, err = f.svc.List(ctx, f.admin, ListQuery{Role: "Manager"})
	assert.ErrorIs(t, err, common.ErrInvalidRequest)

	_, err = f.svc.Get(ctx, f.alice, f.alice.UserID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, f.alice, f.bob.UserID)
	assert.ErrorIs(t, err, common.ErrForbidden)
	_, err = f.svc.Get(ctx, f.admin, 9999)
	assert.ErrorIs(t, err, common.ErrUserNotFound)
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	role := models.UserRoleAdmin
	_, err := f.svc.Update(ctx, f.alice, f.bob.UserID, UpdateInput{Role: &role})
	assert.ErrorIs(t, err, common.ErrForbidden)

	u, err := f.svc.Update(ctx, f.admin, f.bob.UserID, UpdateInput{Role: &role})
	require.NoError(t, err)
	assert.Equal(t, models.UserRoleAdmin, u.Role)

	taken := "ALICE@example.com"
	_, err = f.svc.Update(ctx, f.admin, f.bob.UserID, UpdateInput{Email: &taken})
	assert.ErrorIs(t, err, ErrEmailExists)

	bad := models.UserRole("Root")
	_, err = f.svc.Update(ctx, f.admin, f.bob.UserID, UpdateInput{Role: &bad})
	assert.ErrorIs(t, err, common.ErrInvalidRequest)

	demote := models.UserRoleEngineer
	_, err = f.svc.Update(ctx, f.admin, f.admin.UserID, UpdateInput{Role: &demote})
	assert.ErrorIs(t, err, ErrSelfOperation)
}

func TestDeactivateAndReactivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.Deactivate(ctx, f.admin, f.bob.UserID)
	require.NoError(t, err)
	assert.False(t, u.IsActive)

	_, err = f.svc.Deactivate(ctx, f.admin, f.bob.UserID)
	assert.ErrorIs(t, err, ErrAlreadyInactive)

	users, _, err := f.svc.List(ctx, f.admin, ListQuery{Active: new(bool)})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].Username)

	u, err = f.svc.Reactivate(ctx, f.admin, f.bob.UserID)
	require.NoError(t, err)
	assert.True(t, u.IsActive)
	_, err = f.svc.Reactivate(ctx, f.admin, f.bob.UserID)
	assert.ErrorIs(t, err, ErrAlreadyActive)

	_, err = f.svc.Deactivate(ctx, f.admin, f.admin.UserID)
	assert.ErrorIs(t, err, ErrSelfOperation)
	_, err = f.svc.Deactivate(ctx, f.alice, f.bob.UserID)
	assert.ErrorIs(t, err, common.ErrForbidden)
}

func TestDeleteRefusesSoleOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	shared := models.Work{Name: "Shared"}
	solo := models.Work{Name: "Solo"}
	require.NoError(t, f.db.Create(&shared).Error)
	require.NoError(t, f.db.Create(&solo).Error)
	require.NoError(t, f.db.Create([]models.WorkCollaborator{
		{WorkID: shared.ID, UserID: f.alice.UserID, Role: models.RoleOwner},
		{WorkID: shared.ID, UserID: f.bob.UserID, Role: models.RoleOwner},
		{WorkID: solo.ID, UserID: f.bob.UserID, Role: models.RoleOwner},
	}).Error)

	err := f.svc.Delete(ctx, f.admin, f.bob.UserID)
	assert.ErrorIs(t, err, ErrSoleOwner)

	require.NoError(t, f.svc.Delete(ctx, f.admin, f.alice.UserID))
	_, err = f.svc.Lookup(ctx, f.alice.UserID)
	assert.ErrorIs(t, err, common.ErrUserNotFound)

	var left int64
	require.NoError(t, f.db.Model(&models.WorkCollaborator{}).Where("user_id = ?", f.alice.UserID).Count(&left).Error)
	assert.Zero(t, left)

	assert.ErrorIs(t, f.svc.Delete(ctx, f.admin, f.admin.UserID), ErrSelfOperation)
	assert.ErrorIs(t, f.svc.Delete(ctx, f.admin, 9999), common.ErrUserNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, f.bob, f.admin.UserID), common.ErrForbidden)
}
