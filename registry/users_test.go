package registry

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-barangay-registry/pkg/testsupport"
	"github.com/goliatone/go-barangay-registry/repository"
)

func newUsers(t *testing.T, opts ...UserOption) (*UserRepository, *testsupport.FakeStore[*User], *testsupport.Clock) {
	t.Helper()
	store := testsupport.NewFakeStore[*User]("auth_user_profiles")
	clock := testsupport.NewClock(testNow)
	base := newBase(t, "auth_user_profiles", store, func() *User { return &User{} }, clock)
	return NewUserRepository(base, jurisdictions, opts...), store, clock
}

func validUser() *User {
	return &User{
		Email:        " Clerk@Barangay.GOV.ph ",
		FirstName:    "Maria",
		LastName:     "Santos",
		Role:         RoleClerk,
		BarangayCode: "137404001",
		IsActive:     true,
	}
}

func seedUser(t *testing.T, store *testsupport.FakeStore[*User]) *User {
	t.Helper()
	u := validUser()
	u.ID = uuid.New()
	u.Email = "clerk@barangay.gov.ph"
	store.Seed(u)
	return u
}

func TestCreateUser(t *testing.T) {
	repo, store, _ := newUsers(t)

	in := validUser()
	in.LoginAttempts = 3

	res := repo.CreateUser(context.Background(), in)
	require.True(t, res.Success, "error: %v", res.Error)
	assert.Equal(t, "clerk@barangay.gov.ph", res.Data.Email)
	assert.Equal(t, "U-137404001-0001", res.Data.UserCode)
	assert.Zero(t, res.Data.LoginAttempts)
	assert.Len(t, store.All(), 1)
}

func TestCreateUser_DuplicateEmailShortCircuits(t *testing.T) {
	repo, store, _ := newUsers(t)
	store.CountFunc = func(sql string) (int, error) { return 1, nil }

	res := repo.CreateUser(context.Background(), validUser())
	require.False(t, res.Success)
	assert.Equal(t, repository.CodeDuplicateEmail, res.Error.Code)
	assert.Equal(t, "email", res.Error.Field)
	assert.Zero(t, store.Calls("Create"))
	assert.Contains(t, store.SQL(), `"email" = 'clerk@barangay.gov.ph'`)
}

func TestCreateUser_UniqueConflictIsDuplicateEmail(t *testing.T) {
	repo, store, _ := newUsers(t)
	store.Errors["Create"] = &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}

	res := repo.CreateUser(context.Background(), validUser())
	assert.Equal(t, repository.CodeDuplicateEmail, res.Code())
}

func TestCreateUser_Validation(t *testing.T) {
	repo, store, _ := newUsers(t)

	u := validUser()
	u.BarangayCode = ""
	res := repo.CreateUser(context.Background(), u)
	require.NotNil(t, res.Error)
	assert.Equal(t, "barangay_code", res.Error.Field)

	u = validUser()
	u.Email = "not-an-email"
	res = repo.CreateUser(context.Background(), u)
	require.NotNil(t, res.Error)
	assert.Equal(t, "email", res.Error.Field)

	u = validUser()
	u.Role = "mayor"
	res = repo.CreateUser(context.Background(), u)
	require.NotNil(t, res.Error)
	assert.Equal(t, "role", res.Error.Field)

	assert.Zero(t, store.Calls("Create"))
}

func TestGetByEmail(t *testing.T) {
	repo, store, _ := newUsers(t)

	assert.Equal(t, repository.CodeNotFound, repo.GetByEmail(context.Background(), "x@y.ph").Code())
	assert.Contains(t, store.SQL(), `"email" = 'x@y.ph'`)

	assert.Equal(t, repository.CodeValidation, repo.GetByEmail(context.Background(), " ").Code())

	u := seedUser(t, store)
	res := repo.GetByEmail(context.Background(), "CLERK@barangay.gov.ph")
	require.True(t, res.Success)
	assert.Equal(t, u.ID, res.Data.ID)
}

func TestUpdateUser_IgnoresLoginFields(t *testing.T) {
	repo, store, _ := newUsers(t)
	u := seedUser(t, store)
	u.LoginAttempts = 3

	res := repo.UpdateUser(context.Background(), u.ID.String(), map[string]any{
		"first_name":     "Bea",
		"login_attempts": 0,
		"locked_until":   nil,
	})
	require.True(t, res.Success, "error: %v", res.Error)
	assert.Equal(t, "Bea", res.Data.FirstName)
	assert.Equal(t, 3, res.Data.LoginAttempts)
}

func TestUpdateUser_EmailChangeChecksDuplicates(t *testing.T) {
	repo, store, _ := newUsers(t)
	u := seedUser(t, store)
	store.CountFunc = func(sql string) (int, error) { return 1, nil }

	res := repo.UpdateUser(context.Background(), u.ID.String(), map[string]any{"email": "Taken@Barangay.gov.ph"})
	assert.Equal(t, repository.CodeDuplicateEmail, res.Code())
	assert.Zero(t, store.Calls("Update"))
}

func TestRecordLoginAttempt_LocksAfterFiveFailures(t *testing.T) {
	repo, store, clock := newUsers(t)
	u := seedUser(t, store)
	ctx := context.Background()
	id := u.ID.String()

	for i := 1; i <= 4; i++ {
		res := repo.RecordLoginAttempt(ctx, id, false)
		require.True(t, res.Success, "error: %v", res.Error)
		assert.Equal(t, i, res.Data.LoginAttempts)
		assert.Nil(t, res.Data.LockedUntil)
	}

	res := repo.RecordLoginAttempt(ctx, id, false)
	require.True(t, res.Success)
	require.NotNil(t, res.Data.LockedUntil)
	assert.Equal(t, testNow.Add(30*time.Minute), *res.Data.LockedUntil)
	assert.True(t, repo.IsLocked(ctx, id).Data)

	locked := repo.RecordLoginAttempt(ctx, id, true)
	assert.Equal(t, repository.CodeAccountLocked, locked.Code())

	clock.Advance(31 * time.Minute)
	assert.False(t, repo.IsLocked(ctx, id).Data)

	ok := repo.RecordLoginAttempt(ctx, id, true)
	require.True(t, ok.Success, "error: %v", ok.Error)
	assert.Zero(t, ok.Data.LoginAttempts)
	assert.Nil(t, ok.Data.LockedUntil)
	require.NotNil(t, ok.Data.LastLoginAt)
	assert.Equal(t, clock.Now(), *ok.Data.LastLoginAt)
}

func TestRecordLoginAttempt_ExpiredLockStartsFreshCount(t *testing.T) {
	repo, store, clock := newUsers(t)
	u := seedUser(t, store)
	until := testNow.Add(-time.Minute)
	u.LoginAttempts = 5
	u.LockedUntil = &until

	res := repo.RecordLoginAttempt(context.Background(), u.ID.String(), false)
	require.True(t, res.Success)
	assert.Equal(t, 1, res.Data.LoginAttempts)
	assert.Nil(t, res.Data.LockedUntil)
	assert.Equal(t, clock.Now(), res.Data.UpdatedAt)
}

func TestRecordLoginAttempt_CustomPolicy(t *testing.T) {
	repo, store, _ := newUsers(t, WithLockoutPolicy(LockoutPolicy{MaxAttempts: 2, Duration: time.Hour}))
	u := seedUser(t, store)
	ctx := context.Background()

	repo.RecordLoginAttempt(ctx, u.ID.String(), false)
	res := repo.RecordLoginAttempt(ctx, u.ID.String(), false)
	require.NotNil(t, res.Data.LockedUntil)
	assert.Equal(t, testNow.Add(time.Hour), *res.Data.LockedUntil)
}

func TestRecordLoginAttempt_UnknownUser(t *testing.T) {
	repo, _, _ := newUsers(t)
	assert.Equal(t, repository.CodeNotFound, repo.RecordLoginAttempt(context.Background(), uuid.NewString(), false).Code())
	assert.Equal(t, repository.CodeNotFound, repo.IsLocked(context.Background(), uuid.NewString()).Code())
}

func TestGenerateUserCode(t *testing.T) {
	repo, store, _ := newUsers(t)
	store.ListFunc = func(sql string) ([]*User, int, error) {
		return []*User{{UserCode: "U-137404001-0012"}}, 1, nil
	}

	res := repo.GenerateUserCode(context.Background(), "137404001")
	assert.Equal(t, "U-137404001-0013", res.Data)
	assert.Contains(t, store.SQL(), `LOWER("user_code") LIKE LOWER('U-137404001-%')`)
}

func TestListByJurisdiction(t *testing.T) {
	repo, store, _ := newUsers(t)

	res := repo.ListByJurisdiction(context.Background(), "137400000", 0, 0)
	require.True(t, res.Success)
	assert.Contains(t, store.SQL(), `"province_code" = '137400000'`)
	assert.Contains(t, store.SQL(), `ORDER BY "last_name" ASC`)

	res = repo.ListByJurisdiction(context.Background(), "nope", 0, 0)
	assert.Equal(t, repository.CodeValidation, res.Code())
}
