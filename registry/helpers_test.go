package registry

import (
	"context"
	"testing"
	"time"

	bunrepo "github.com/goliatone/go-repository-bun"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-barangay-registry/pkg/testsupport"
	"github.com/goliatone/go-barangay-registry/psgc"
	"github.com/goliatone/go-barangay-registry/repository"
)

var testNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

func newBase[T repository.Model](t *testing.T, table string, store bunrepo.Repository[T], newRecord func() T, clock *testsupport.Clock) *repository.BaseRepository[T] {
	t.Helper()
	base, err := repository.NewBaseRepository(repository.Config[T]{
		Table:     table,
		Store:     store,
		NewRecord: newRecord,
		Clock:     clock.Now,
	})
	require.NoError(t, err)
	return base
}

// fakeJurisdictions maps PSGC codes to columns.
type fakeJurisdictions map[string]string

func (f fakeJurisdictions) ColumnFor(ctx context.Context, code string) (string, error) {
	col, ok := f[code]
	if !ok {
		return "", psgc.ErrAreaNotFound
	}
	return col, nil
}

var jurisdictions = fakeJurisdictions{
	"130000000": "region_code",
	"137400000": "province_code",
	"137404000": "city_municipality_code",
	"137404001": "barangay_code",
}
