package registry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-barangay-registry/psgc"
	"github.com/goliatone/go-barangay-registry/repository"
)

const (
	// DefaultPageSize applies when a search sets no limit.
	DefaultPageSize = 50
	// MaxPageSize caps search limits.
	MaxPageSize = 500
)

// Jurisdictions resolves the registry column that holds codes of an area's
// level. *psgc.Lookup implements it.
type Jurisdictions interface {
	ColumnFor(ctx context.Context, code string) (string, error)
}

// ResidentSearch filters SearchResidents. Zero values are ignored; MaxAge 0
// means no upper bound.
type ResidentSearch struct {
	Name                 string
	MinAge               int
	MaxAge               int
	Sex                  string
	CivilStatus          string
	HouseholdCode        string
	BarangayCode         string
	CityMunicipalityCode string
	ProvinceCode         string
	RegionCode           string

	// Jurisdiction is any PSGC code; residents under that area match.
	Jurisdiction string

	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// ResidentRepository manages the residents table.
type ResidentRepository struct {
	base          *repository.BaseRepository[*Resident]
	jurisdictions Jurisdictions
}

// NewResidentRepository wraps base. jurisdictions may be nil when searches by
// jurisdiction are not needed.
func NewResidentRepository(base *repository.BaseRepository[*Resident], jurisdictions Jurisdictions) *ResidentRepository {
	return &ResidentRepository{base: base, jurisdictions: jurisdictions}
}

// Base exposes the generic operations.
func (r *ResidentRepository) Base() *repository.BaseRepository[*Resident] {
	return r.base
}

func normalizeResident(res *Resident) {
	res.FirstName = strings.TrimSpace(res.FirstName)
	res.MiddleName = strings.TrimSpace(res.MiddleName)
	res.LastName = strings.TrimSpace(res.LastName)
	res.Sex = strings.ToLower(strings.TrimSpace(res.Sex))
	res.CivilStatus = strings.ToLower(strings.TrimSpace(res.CivilStatus))
	res.Email = strings.ToLower(strings.TrimSpace(res.Email))
}

// CreateResident validates and inserts res.
func (r *ResidentRepository) CreateResident(ctx context.Context, res *Resident) repository.Result[*Resident] {
	if res == nil {
		return repository.Fail[*Resident](repository.ValidationError("", "resident is required", nil))
	}
	normalizeResident(res)
	if err := res.Validate(r.base.Now()); err != nil {
		return repository.Fail[*Resident](validationFailure(err))
	}
	return r.base.Create(ctx, res)
}

// UpdateResident applies changes to the stored resident and validates the
// result before writing.
func (r *ResidentRepository) UpdateResident(ctx context.Context, id string, changes map[string]any) repository.Result[*Resident] {
	current := r.base.FindByID(ctx, id)
	if !current.Success {
		return current
	}

	merged, err := r.base.Merge(current.Data, changes)
	if err != nil {
		return repository.Fail[*Resident](repository.MapError(err))
	}
	merged.ID = current.Data.ID
	merged.CreatedAt = current.Data.CreatedAt
	normalizeResident(merged)
	if err := merged.Validate(r.base.Now()); err != nil {
		return repository.Fail[*Resident](validationFailure(err))
	}
	return r.base.Save(ctx, merged, "update")
}

func (r *ResidentRepository) GetResident(ctx context.Context, id string) repository.Result[*Resident] {
	return r.base.FindByID(ctx, id)
}

func (r *ResidentRepository) DeleteResident(ctx context.Context, id string) repository.Result[bool] {
	return r.base.Delete(ctx, id)
}

// ListByHousehold returns the members of a household ordered by name.
func (r *ResidentRepository) ListByHousehold(ctx context.Context, householdCode string) repository.Result[[]*Resident] {
	if strings.TrimSpace(householdCode) == "" {
		return repository.Fail[[]*Resident](repository.ValidationError("household_code", "household code is required", nil))
	}
	spec := repository.Spec{OrderBy: "last_name"}.
		Where(repository.Eq("household_code", householdCode))
	return r.base.ExecuteQuery(ctx, spec, "list_by_household")
}

// SearchResidents builds a compound query from s. Results are ordered by
// last name unless s.OrderBy is set.
func (r *ResidentRepository) SearchResidents(ctx context.Context, s ResidentSearch) repository.Result[[]*Resident] {
	spec, failure := r.searchSpec(ctx, s)
	if failure != nil {
		return repository.Fail[[]*Resident](failure)
	}
	return r.base.ExecuteQuery(ctx, spec, "search")
}

func (r *ResidentRepository) searchSpec(ctx context.Context, s ResidentSearch) (repository.Spec, *repository.Error) {
	spec := repository.Spec{
		OrderBy: s.OrderBy,
		Desc:    s.Desc,
		Limit:   pageLimit(s.Limit),
		Offset:  s.Offset,
	}
	if spec.OrderBy == "" {
		spec.OrderBy = "last_name"
	}

	if name := strings.TrimSpace(s.Name); name != "" {
		pattern := repository.Contains(name)
		spec = spec.WhereGroup(repository.AnyOf(
			repository.ILike("first_name", pattern),
			repository.ILike("middle_name", pattern),
			repository.ILike("last_name", pattern),
		))
	}

	if s.MinAge < 0 || s.MaxAge < 0 {
		return spec, repository.ValidationError("min_age", "ages must be non-negative", nil)
	}
	if s.MaxAge > 0 && s.MinAge > s.MaxAge {
		return spec, repository.ValidationError("min_age", "min age must not exceed max age", nil)
	}
	conds := birthdateRange(r.base.Now(), s.MinAge, s.MaxAge)

	equals := []struct{ column, value string }{
		{"sex", strings.ToLower(s.Sex)},
		{"civil_status", strings.ToLower(s.CivilStatus)},
		{"household_code", s.HouseholdCode},
		{"barangay_code", s.BarangayCode},
		{"city_municipality_code", s.CityMunicipalityCode},
		{"province_code", s.ProvinceCode},
		{"region_code", s.RegionCode},
	}
	for _, e := range equals {
		if e.value != "" {
			conds = append(conds, repository.Eq(e.column, e.value))
		}
	}

	if s.Jurisdiction != "" {
		cond, failure := jurisdictionCondition(ctx, r.jurisdictions, s.Jurisdiction)
		if failure != nil {
			return spec, failure
		}
		conds = append(conds, cond)
	}

	return spec.Where(conds...), nil
}

// birthdateRange turns an age range into birthdate bounds relative to now.
// Someone is at least minAge when born on or before today minus minAge
// years, and at most maxAge when born after today minus maxAge+1 years.
func birthdateRange(now time.Time, minAge, maxAge int) []repository.Condition {
	y, m, d := now.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	var conds []repository.Condition
	if minAge > 0 {
		conds = append(conds, repository.Lte("birthdate", today.AddDate(-minAge, 0, 0)))
	}
	if maxAge > 0 {
		conds = append(conds, repository.Gte("birthdate", today.AddDate(-(maxAge+1), 0, 1)))
	}
	return conds
}

func jurisdictionCondition(ctx context.Context, j Jurisdictions, code string) (repository.Condition, *repository.Error) {
	if j == nil {
		return repository.Condition{}, repository.ValidationError("jurisdiction", "jurisdiction lookup is not configured", nil)
	}
	column, err := j.ColumnFor(ctx, code)
	if errors.Is(err, psgc.ErrAreaNotFound) {
		return repository.Condition{}, repository.ValidationError("jurisdiction", "unknown PSGC code "+code, nil)
	}
	if err != nil {
		return repository.Condition{}, repository.MapError(err)
	}
	return repository.Eq(column, code), nil
}

func pageLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	}
	return limit
}
