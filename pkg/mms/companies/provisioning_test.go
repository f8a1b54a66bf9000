package companies

import (
	"context"
	"testing"

	"github.com/mikepea/mms/pkg/mms/access"
	"github.com/mikepea/mms/pkg/mms/apperr"
	"github.com/mikepea/mms/pkg/mms/models"
	"github.com/mikepea/mms/pkg/mms/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const fallbackEmail = "admin@mms.local"

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, models.AutoMigrate(db))
	return db
}

type fixture struct {
	db    *gorm.DB
	users *users.Store
	eval  *access.Evaluator
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	db := setupTestDB(t)
	store := users.NewStore(db)
	eval := access.NewEvaluator(db, store)
	return &fixture{
		db:    db,
		users: store,
		eval:  eval,
		svc:   NewService(db, store, eval, fallbackEmail, nil),
	}
}

func (f *fixture) user(t *testing.T, email string) *models.User {
	u := &models.User{Email: email, FirstName: "T", LastName: "U", PasswordHash: "x", Enabled: true, AccountNonLocked: true}
	require.NoError(t, f.users.Save(context.Background(), u))
	return u
}

type fakeSession struct {
	userID     uint
	terminated bool
}

func (s *fakeSession) UserID() uint      { return s.userID }
func (s *fakeSession) Email() string     { return "" }
func (s *fakeSession) IsAnonymous() bool { return false }
func (s *fakeSession) Terminate(context.Context) error {
	s.terminated = true
	return nil
}

func acmeInput() CompanyInput {
	return CompanyInput{Name: "Acme", Country: "Germany", Location: "Berlin", PostCode: 10115}
}

func TestRoleName(t *testing.T) {
	assert.Equal(t, "7_ACME_GERMANY", RoleName(7, "Acme", "Germany"))
	assert.Equal(t, "12_MÜLLER GMBH_AUSTRIA", RoleName(12, "Müller GmbH", "austria"))
	assert.NotEqual(t, RoleName(1, "Acme", "Germany"), RoleName(2, "Acme", "Germany"))
}

func TestCreateCompany(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "a@example.com")

	company, err := f.svc.Create(ctx, owner.ID, acmeInput())
	require.NoError(t, err)

	assert.Equal(t, owner.ID, company.OwnerID)
	require.NotNil(t, company.DeputyLeaderID)
	assert.Equal(t, owner.ID, *company.DeputyLeaderID)

	names, err := f.users.RoleNamesOf(ctx, owner.ID)
	require.NoError(t, err)
	assert.Contains(t, names, RoleName(company.ID, "Acme", "Germany"))

	assert.NoError(t, f.eval.CompanyAccess(ctx, owner.ID, company.ID))
}

func TestCreateSameNameCompaniesGetDistinctRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, "a@example.com")
	b := f.user(t, "b@example.com")

	first, err := f.svc.Create(ctx, a.ID, acmeInput())
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, b.ID, acmeInput())
	require.NoError(t, err)

	assert.NoError(t, f.eval.CompanyAccess(ctx, a.ID, first.ID))
	assert.ErrorIs(t, f.eval.CompanyAccess(ctx, a.ID, second.ID), apperr.ErrAccessDenied)
	assert.ErrorIs(t, f.eval.CompanyAccess(ctx, b.ID, first.ID), apperr.ErrAccessDenied)
}

func TestCreateCompanyIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "a@example.com")

	// the role name the next company will want is already taken
	_, err := f.users.CreateRole(ctx, RoleName(1, "Acme", "Germany"))
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, owner.ID, acmeInput())
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))

	var companies, bindings int64
	f.db.Model(&models.Company{}).Count(&companies)
	f.db.Model(&models.CompanyRole{}).Count(&bindings)
	assert.Zero(t, companies)
	assert.Zero(t, bindings)
}

func TestCreateCompanyValidation(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "a@example.com")

	_, err := f.svc.Create(context.Background(), owner.ID, CompanyInput{Country: "Germany"})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = f.svc.Create(context.Background(), 999, acmeInput())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestApplyAndAccept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, "a@example.com")
	b := f.user(t, "b@example.com")
	company, err := f.svc.Create(ctx, a.ID, acmeInput())
	require.NoError(t, err)

	application, err := f.svc.Apply(ctx, b.ID, company.ID)
	require.NoError(t, err)
	assert.False(t, application.Accepted)
	assert.ErrorIs(t, f.eval.CompanyAccess(ctx, b.ID, company.ID), apperr.ErrAccessDenied)

	_, err = f.svc.Apply(ctx, b.ID, company.ID)
	assert.ErrorIs(t, err, apperr.ErrAlreadyApplied)

	pending, err := f.svc.PendingApplications(ctx, company.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	accepted, err := f.svc.AcceptApplication(ctx, application.ID)
	require.NoError(t, err)
	assert.True(t, accepted.Accepted)
	assert.NoError(t, f.eval.CompanyAccess(ctx, b.ID, company.ID))

	others, err := f.eval.EmployeeSetExcluding(ctx, company.ID, b.ID, true)
	require.NoError(t, err)
	for _, u := range others {
		assert.NotEqual(t, b.ID, u.ID)
	}

	pending, err = f.svc.PendingApplications(ctx, company.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestAcceptApplicationTwiceRepeatsSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, "a@example.com")
	b := f.user(t, "b@example.com")
	company, err := f.svc.Create(ctx, a.ID, acmeInput())
	require.NoError(t, err)
	application, err := f.svc.Apply(ctx, b.ID, company.ID)
	require.NoError(t, err)

	_, err = f.svc.AcceptApplication(ctx, application.ID)
	require.NoError(t, err)
	// no guard on the accepted flag: the second call runs again and succeeds
	_, err = f.svc.AcceptApplication(ctx, application.ID)
	require.NoError(t, err)

	roles, err := f.users.RoleNamesOf(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{RoleName(company.ID, "Acme", "Germany")}, roles)

	employees, err := f.svc.Employees(ctx, company.ID)
	require.NoError(t, err)
	assert.Len(t, employees, 1)
}

func TestRemoveEmployee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, "a@example.com")
	b := f.user(t, "b@example.com")
	c := f.user(t, "c@example.com")
	company, err := f.svc.Create(ctx, a.ID, acmeInput())
	require.NoError(t, err)
	application, err := f.svc.Apply(ctx, b.ID, company.ID)
	require.NoError(t, err)
	_, err = f.svc.AcceptApplication(ctx, application.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveEmployee(ctx, company.ID, b.ID))
	assert.ErrorIs(t, f.eval.CompanyAccess(ctx, b.ID, company.ID), apperr.ErrAccessDenied)

	employees, err := f.svc.Employees(ctx, company.ID)
	require.NoError(t, err)
	assert.Empty(t, employees)

	apps, err := f.svc.ApplicationsOf(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, apps)

	// not an employee: nothing happens
	assert.NoError(t, f.svc.RemoveEmployee(ctx, company.ID, c.ID))
	assert.ErrorIs(t, f.svc.RemoveEmployee(ctx, company.ID, 999), apperr.ErrNotFound)
	assert.ErrorIs(t, f.svc.RemoveEmployee(ctx, 999, c.ID), apperr.ErrNotFound)
}

func TestDeputyLeaderLeavesFallsBackToAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, fallbackEmail)
	owner := f.user(t, "a@example.com")
	company, err := f.svc.Create(ctx, owner.ID, acmeInput())
	require.NoError(t, err)

	session := &fakeSession{userID: owner.ID}
	require.NoError(t, f.svc.Leave(ctx, session, company.ID))
	assert.True(t, session.terminated)

	reloaded, err := f.svc.Get(ctx, company.ID)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, reloaded.OwnerID)
	require.NotNil(t, reloaded.DeputyLeaderID)
	assert.Equal(t, admin.ID, *reloaded.DeputyLeaderID)

	assert.ErrorIs(t, f.eval.CompanyAccess(ctx, owner.ID, company.ID), apperr.ErrAccessDenied)
	assert.NoError(t, f.eval.CompanyAccess(ctx, admin.ID, company.ID))
}

func TestEmployeeLeavesKeepsLeadership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, fallbackEmail)
	owner := f.user(t, "a@example.com")
	b := f.user(t, "b@example.com")
	company, err := f.svc.Create(ctx, owner.ID, acmeInput())
	require.NoError(t, err)
	application, err := f.svc.Apply(ctx, b.ID, company.ID)
	require.NoError(t, err)
	_, err = f.svc.AcceptApplication(ctx, application.ID)
	require.NoError(t, err)

	session := &fakeSession{userID: b.ID}
	require.NoError(t, f.svc.Leave(ctx, session, company.ID))
	assert.True(t, session.terminated)

	reloaded, err := f.svc.Get(ctx, company.ID)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, reloaded.OwnerID)
	assert.ErrorIs(t, f.eval.CompanyAccess(ctx, b.ID, company.ID), apperr.ErrAccessDenied)
}

func TestLeaveWithoutFallbackAccountRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "a@example.com")
	company, err := f.svc.Create(ctx, owner.ID, acmeInput())
	require.NoError(t, err)

	session := &fakeSession{userID: owner.ID}
	assert.Error(t, f.svc.Leave(ctx, session, company.ID))
	assert.False(t, session.terminated)
	assert.NoError(t, f.eval.CompanyAccess(ctx, owner.ID, company.ID))
}

func TestDeleteCompanyCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, "a@example.com")
	b := f.user(t, "b@example.com")
	c := f.user(t, "c@example.com")
	company, err := f.svc.Create(ctx, a.ID, acmeInput())
	require.NoError(t, err)
	application, err := f.svc.Apply(ctx, b.ID, company.ID)
	require.NoError(t, err)
	_, err = f.svc.AcceptApplication(ctx, application.ID)
	require.NoError(t, err)
	_, err = f.svc.Apply(ctx, c.ID, company.ID)
	require.NoError(t, err)

	machine := &models.Machine{CompanyID: company.ID, Brand: "Bosch", Model: "X", Active: true}
	require.NoError(t, f.db.Create(machine).Error)
	require.NoError(t, f.db.Create(&models.MachinePart{MachineID: machine.ID, Name: "Belt"}).Error)

	roleName := RoleName(company.ID, "Acme", "Germany")
	require.NoError(t, f.svc.Delete(ctx, company.ID))

	for _, m := range []any{&models.Company{}, &models.CompanyRole{}, &models.CompanyEmployee{}, &models.JobApplication{}, &models.Machine{}, &models.MachinePart{}} {
		var n int64
		require.NoError(t, f.db.Model(m).Count(&n).Error)
		assert.Zero(t, n, "%T", m)
	}

	_, err = f.users.FindRoleByName(ctx, roleName)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	for _, u := range []*models.User{a, b} {
		names, err := f.users.RoleNamesOf(ctx, u.ID)
		require.NoError(t, err)
		assert.NotContains(t, names, roleName)
	}

	assert.ErrorIs(t, f.svc.Delete(ctx, company.ID), apperr.ErrNotFound)
}
