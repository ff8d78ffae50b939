package store

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-barangay-registry/audit"
	"github.com/goliatone/go-barangay-registry/psgc"
	"github.com/goliatone/go-barangay-registry/registry"
)

type index struct {
	name    string
	model   any
	columns []string
}

// Models lists every table the registry owns, in creation order.
func Models() []any {
	return []any{
		(*psgc.Area)(nil),
		(*registry.Household)(nil),
		(*registry.Resident)(nil),
		(*registry.User)(nil),
		(*audit.Record)(nil),
	}
}

var indexes = []index{
	{"idx_psgc_areas_parent", (*psgc.Area)(nil), []string{"parent_code"}},
	{"idx_households_barangay", (*registry.Household)(nil), []string{"barangay_code"}},
	{"idx_residents_household", (*registry.Resident)(nil), []string{"household_code"}},
	{"idx_residents_barangay", (*registry.Resident)(nil), []string{"barangay_code"}},
	{"idx_residents_name", (*registry.Resident)(nil), []string{"last_name", "first_name"}},
	{"idx_users_barangay", (*registry.User)(nil), []string{"barangay_code"}},
	{"idx_audit_created", (*audit.Record)(nil), []string{"created_at"}},
}

// Migrate creates missing tables and indexes. It is safe to run repeatedly.
func Migrate(ctx context.Context, db bun.IDB, logger zerolog.Logger) error {
	for _, model := range Models() {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("store: create table for %T: %w", model, err)
		}
	}
	for _, idx := range indexes {
		_, err := db.NewCreateIndex().Model(idx.model).Index(idx.name).Column(idx.columns...).IfNotExists().Exec(ctx)
		if err != nil {
			return fmt.Errorf("store: create index %s: %w", idx.name, err)
		}
	}
	logger.Info().Int("tables", len(Models())).Int("indexes", len(indexes)).Msg("schema migrated")
	return nil
}

// SeedAreas loads a PSGC JSON export and upserts it.
func SeedAreas(ctx context.Context, db bun.IDB, r io.Reader) (int, error) {
	areas, err := psgc.DecodeAreas(r)
	if err != nil {
		return 0, err
	}
	if err := psgc.NewBunSource(db).Upsert(ctx, areas); err != nil {
		return 0, err
	}
	return len(areas), nil
}
