package access

import (
	"context"
	"testing"

	"github.com/mikepea/mms/pkg/mms/apperr"
	"github.com/mikepea/mms/pkg/mms/models"
	"github.com/mikepea/mms/pkg/mms/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, models.AutoMigrate(db))
	return db
}

type world struct {
	db    *gorm.DB
	users *users.Store
	eval  *Evaluator
}

func newWorld(t *testing.T) *world {
	db := setupTestDB(t)
	store := users.NewStore(db)
	return &world{db: db, users: store, eval: NewEvaluator(db, store)}
}

func (w *world) user(t *testing.T, email string) *models.User {
	u := &models.User{Email: email, FirstName: "T", LastName: "U", PasswordHash: "x", Enabled: true, AccountNonLocked: true}
	require.NoError(t, w.users.Save(context.Background(), u))
	return u
}

// company creates a company bound to its own role, granted to members.
func (w *world) company(t *testing.T, name string, owner *models.User, members ...*models.User) *models.Company {
	ctx := context.Background()
	c := &models.Company{Name: name, Country: "Germany", OwnerID: owner.ID, DeputyLeaderID: &owner.ID}
	require.NoError(t, w.db.Create(c).Error)
	role, err := w.users.CreateRole(ctx, name+"_ROLE")
	require.NoError(t, err)
	require.NoError(t, w.db.Create(&models.CompanyRole{CompanyID: c.ID, RoleID: role.ID}).Error)
	for _, m := range append([]*models.User{owner}, members...) {
		require.NoError(t, w.users.Grant(ctx, m.ID, role.ID))
		require.NoError(t, w.db.Create(&models.CompanyEmployee{CompanyID: c.ID, UserID: m.ID}).Error)
	}
	return c
}

func TestCompanyAccess(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	owner := w.user(t, "owner@example.com")
	member := w.user(t, "member@example.com")
	outsider := w.user(t, "outsider@example.com")
	acme := w.company(t, "ACME", owner, member)
	other := w.company(t, "OTHER", outsider)

	assert.NoError(t, w.eval.CompanyAccess(ctx, owner.ID, acme.ID))
	assert.NoError(t, w.eval.CompanyAccess(ctx, member.ID, acme.ID))

	err := w.eval.CompanyAccess(ctx, outsider.ID, acme.ID)
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)

	err = w.eval.CompanyAccess(ctx, owner.ID, other.ID)
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)

	ids, err := w.eval.ReachableCompanyIDs(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{acme.ID}, ids)
}

func TestCompanyAccessIgnoresGlobalAdmin(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	owner := w.user(t, "owner@example.com")
	admin := w.user(t, "admin@example.com")
	acme := w.company(t, "ACME", owner)

	role, err := w.users.EnsureRole(ctx, models.RoleAdmin)
	require.NoError(t, err)
	require.NoError(t, w.users.Grant(ctx, admin.ID, role.ID))

	assert.ErrorIs(t, w.eval.CompanyAccess(ctx, admin.ID, acme.ID), apperr.ErrAccessDenied)
}

func TestCompanyAccessFollowsRevocation(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	owner := w.user(t, "owner@example.com")
	member := w.user(t, "member@example.com")
	acme := w.company(t, "ACME", owner, member)

	var binding models.CompanyRole
	require.NoError(t, w.db.Where("company_id = ?", acme.ID).First(&binding).Error)
	require.NoError(t, w.users.Revoke(ctx, member.ID, binding.RoleID))

	assert.ErrorIs(t, w.eval.CompanyAccess(ctx, member.ID, acme.ID), apperr.ErrAccessDenied)
}

func TestMachineAccess(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	owner := w.user(t, "owner@example.com")
	outsider := w.user(t, "outsider@example.com")
	acme := w.company(t, "ACME", owner)

	active := &models.Machine{CompanyID: acme.ID, Brand: "Bosch", Model: "X1", Active: true}
	inactive := &models.Machine{CompanyID: acme.ID, Brand: "Bosch", Model: "X2", Active: false}
	require.NoError(t, w.db.Create(active).Error)
	require.NoError(t, w.db.Create(inactive).Error)

	assert.NoError(t, w.eval.MachineAccess(ctx, owner.ID, active))
	assert.ErrorIs(t, w.eval.MachineAccess(ctx, outsider.ID, active), apperr.ErrAccessDenied)
	assert.ErrorIs(t, w.eval.MachineAccess(ctx, owner.ID, inactive), apperr.ErrAccessDenied)

	role, err := w.users.EnsureRole(ctx, models.RoleAdmin)
	require.NoError(t, err)
	require.NoError(t, w.users.Grant(ctx, owner.ID, role.ID))
	assert.NoError(t, w.eval.MachineAccess(ctx, owner.ID, inactive))

	// admin alone does not reach another company's machine
	require.NoError(t, w.users.Grant(ctx, outsider.ID, role.ID))
	assert.ErrorIs(t, w.eval.MachineAccess(ctx, outsider.ID, inactive), apperr.ErrAccessDenied)
}

func TestIsLeaderOrDeputy(t *testing.T) {
	owner, deputy, other := uint(1), uint(2), uint(3)
	c := &models.Company{OwnerID: owner, DeputyLeaderID: &deputy}

	assert.True(t, IsLeaderOrDeputy(owner, c))
	assert.True(t, IsLeaderOrDeputy(deputy, c))
	assert.False(t, IsLeaderOrDeputy(other, c))

	c.DeputyLeaderID = nil
	assert.False(t, IsLeaderOrDeputy(deputy, c))
}

func TestEmployeeSetExcluding(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	owner := w.user(t, "owner@example.com")
	a := w.user(t, "a@example.com")
	b := w.user(t, "b@example.com")
	acme := w.company(t, "ACME", owner, a, b)

	got, err := w.eval.EmployeeSetExcluding(ctx, acme.ID, a.ID, true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].ID)

	got, err = w.eval.EmployeeSetExcluding(ctx, acme.ID, a.ID, false)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = w.eval.EmployeeSetExcluding(ctx, 999, a.ID, true)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
