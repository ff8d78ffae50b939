package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v4"
	bunrepo "github.com/goliatone/go-repository-bun"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-barangay-registry/pkg/testsupport"
	"github.com/goliatone/go-barangay-registry/repository"
)

// conflictStore fails the first conflicts Create calls with a unique violation.
type conflictStore struct {
	*testsupport.FakeStore[*Household]

	mu        sync.Mutex
	conflicts int
	creates   int
}

func (s *conflictStore) Create(ctx context.Context, h *Household, criteria ...bunrepo.InsertCriteria) (*Household, error) {
	s.mu.Lock()
	s.creates++
	fail := s.creates <= s.conflicts
	s.mu.Unlock()
	if fail {
		return nil, &pq.Error{Code: "23505", Message: `duplicate key value violates unique constraint "households_code_key"`}
	}
	return s.FakeStore.Create(ctx, h, criteria...)
}

func noWait() backoff.BackOff {
	return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
}

func newHouseholds(t *testing.T, conflicts int) (*HouseholdRepository, *conflictStore) {
	t.Helper()
	store := &conflictStore{FakeStore: testsupport.NewFakeStore[*Household]("households"), conflicts: conflicts}
	base := newBase[*Household](t, "households", store, func() *Household { return &Household{} }, testsupport.NewClock(testNow))
	return NewHouseholdRepository(base, WithCodeRetry(noWait)), store
}

func TestNextCode(t *testing.T) {
	tests := []struct {
		prefix, latest, want string
	}{
		{"137404001-", "", "137404001-0001"},
		{"137404001-", "137404001-0009", "137404001-0010"},
		{"137404001-", "137404001-0041", "137404001-0042"},
		{"137404001-", "137404001-bad", "137404001-0001"},
		{"137404001-", "other-0007", "137404001-0001"},
		{"U-137404001-", "U-137404001-9999", "U-137404001-10000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, nextCode(tt.prefix, tt.latest), "latest %q", tt.latest)
	}
}

func TestGenerateHouseholdCode(t *testing.T) {
	repo, store := newHouseholds(t, 0)
	store.ListFunc = func(sql string) ([]*Household, int, error) {
		return []*Household{{Code: "137404001-0041"}}, 1, nil
	}

	res := repo.GenerateHouseholdCode(context.Background(), "137404001")
	require.True(t, res.Success, "error: %v", res.Error)
	assert.Equal(t, "137404001-0042", res.Data)

	sql := store.SQL()
	assert.Contains(t, sql, `LOWER("code") LIKE LOWER('137404001-%')`)
	assert.Contains(t, sql, `ORDER BY LENGTH("code") DESC, "code" DESC`)
	assert.Contains(t, sql, "LIMIT 1")
}

func TestGenerateHouseholdCode_PastFourDigits(t *testing.T) {
	repo, store := newHouseholds(t, 0)
	store.ListFunc = func(sql string) ([]*Household, int, error) {
		return []*Household{{Code: "137404001-10000"}}, 1, nil
	}

	res := repo.GenerateHouseholdCode(context.Background(), "137404001")
	require.True(t, res.Success, "error: %v", res.Error)
	assert.Equal(t, "137404001-10001", res.Data)
}

func TestGenerateHouseholdCode_FirstAndInvalid(t *testing.T) {
	repo, _ := newHouseholds(t, 0)

	res := repo.GenerateHouseholdCode(context.Background(), "137404001")
	assert.Equal(t, "137404001-0001", res.Data)

	res = repo.GenerateHouseholdCode(context.Background(), "QC")
	require.NotNil(t, res.Error)
	assert.Equal(t, "barangay_code", res.Error.Field)
}

func TestCreateHousehold_GeneratesCode(t *testing.T) {
	repo, store := newHouseholds(t, 0)

	res := repo.CreateHousehold(context.Background(), &Household{BarangayCode: "137404001", StreetName: "Mabini St"})
	require.True(t, res.Success, "error: %v", res.Error)
	assert.Equal(t, "137404001-0001", res.Data.Code)
	assert.Len(t, store.All(), 1)
}

func TestCreateHousehold_RetriesGeneratedCodeConflicts(t *testing.T) {
	repo, store := newHouseholds(t, 2)

	res := repo.CreateHousehold(context.Background(), &Household{BarangayCode: "137404001"})
	require.True(t, res.Success, "error: %v", res.Error)
	assert.Equal(t, 3, store.creates)
	assert.Len(t, store.All(), 1)
}

func TestCreateHousehold_GivesUpAfterRetries(t *testing.T) {
	repo, store := newHouseholds(t, 100)

	res := repo.CreateHousehold(context.Background(), &Household{BarangayCode: "137404001"})
	require.False(t, res.Success)
	assert.Equal(t, repository.CodeDuplicateHouseholdCode, res.Error.Code)
	assert.Equal(t, 4, store.creates)
}

func TestCreateHousehold_DuplicateCode(t *testing.T) {
	repo, store := newHouseholds(t, 0)
	store.CountFunc = func(sql string) (int, error) { return 1, nil }

	res := repo.CreateHousehold(context.Background(), &Household{Code: "137404001-0007", BarangayCode: "137404001"})
	require.False(t, res.Success)
	assert.Equal(t, repository.CodeDuplicateHouseholdCode, res.Error.Code)
	assert.Equal(t, "code", res.Error.Field)
	assert.Zero(t, store.creates)
	assert.Contains(t, store.SQL(), `"code" = '137404001-0007'`)
}

func TestCreateHousehold_DuplicateCodeRace(t *testing.T) {
	repo, store := newHouseholds(t, 1)

	res := repo.CreateHousehold(context.Background(), &Household{Code: "137404001-0007", BarangayCode: "137404001"})
	assert.Equal(t, repository.CodeDuplicateHouseholdCode, res.Code())
	assert.Equal(t, 1, store.creates)
}

func TestCreateHousehold_Validation(t *testing.T) {
	repo, store := newHouseholds(t, 0)

	res := repo.CreateHousehold(context.Background(), &Household{HouseholdType: "commune"})
	require.NotNil(t, res.Error)
	assert.Equal(t, repository.CodeValidation, res.Error.Code)
	assert.Equal(t, "barangay_code", res.Error.Field)
	assert.Zero(t, store.creates)
}

func TestGetByCode(t *testing.T) {
	repo, store := newHouseholds(t, 0)

	assert.Equal(t, repository.CodeNotFound, repo.GetByCode(context.Background(), "137404001-0001").Code())

	store.ListFunc = func(sql string) ([]*Household, int, error) {
		return []*Household{{Code: "137404001-0001"}}, 1, nil
	}
	res := repo.GetByCode(context.Background(), "137404001-0001")
	require.True(t, res.Success)
	assert.Equal(t, "137404001-0001", res.Data.Code)
}

func TestUpdateHousehold(t *testing.T) {
	repo, store := newHouseholds(t, 0)
	created := repo.CreateHousehold(context.Background(), &Household{BarangayCode: "137404001"})
	require.True(t, created.Success)
	id := created.Data.ID.String()

	res := repo.UpdateHousehold(context.Background(), id, map[string]any{"street_name": "Rizal Ave"})
	require.True(t, res.Success, "error: %v", res.Error)
	assert.Equal(t, "Rizal Ave", res.Data.StreetName)
	assert.Equal(t, "137404001-0001", res.Data.Code)

	store.CountFunc = func(sql string) (int, error) { return 1, nil }
	res = repo.UpdateHousehold(context.Background(), id, map[string]any{"code": "137404001-0002"})
	assert.Equal(t, repository.CodeDuplicateHouseholdCode, res.Code())

	res = repo.UpdateHousehold(context.Background(), id, map[string]any{"code": ""})
	require.NotNil(t, res.Error)
	assert.Equal(t, "code", res.Error.Field)
}

func TestDeleteHousehold(t *testing.T) {
	repo, store := newHouseholds(t, 0)
	created := repo.CreateHousehold(context.Background(), &Household{BarangayCode: "137404001"})
	require.True(t, created.Success)

	res := repo.DeleteHousehold(context.Background(), created.Data.ID.String())
	assert.True(t, res.Data)
	assert.Empty(t, store.All())
}

func TestSearchHouseholds(t *testing.T) {
	repo, store := newHouseholds(t, 0)

	res := repo.SearchHouseholds(context.Background(), HouseholdSearch{Term: "mabini", BarangayCode: "137404001"})
	require.True(t, res.Success)

	sql := store.SQL()
	assert.Contains(t, sql, `LOWER("street_name") LIKE LOWER('%mabini%')`)
	assert.Contains(t, sql, " OR ")
	assert.Contains(t, sql, `"barangay_code" = '137404001'`)
	assert.Contains(t, sql, `ORDER BY "code" ASC`)
}
