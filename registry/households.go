package registry

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/goliatone/go-barangay-registry/repository"
)

// HouseholdSearch filters SearchHouseholds. Term matches code, street or
// house number.
type HouseholdSearch struct {
	Term                 string
	HouseholdType        string
	BarangayCode         string
	CityMunicipalityCode string
	ProvinceCode         string
	RegionCode           string
	Limit                int
	Offset               int
}

// HouseholdRepository manages the households table.
type HouseholdRepository struct {
	base  *repository.BaseRepository[*Household]
	retry func() backoff.BackOff
}

// HouseholdOption configures a HouseholdRepository.
type HouseholdOption func(*HouseholdRepository)

// WithCodeRetry sets the backoff used when a generated code collides with
// one inserted concurrently.
func WithCodeRetry(policy func() backoff.BackOff) HouseholdOption {
	return func(r *HouseholdRepository) {
		if policy != nil {
			r.retry = policy
		}
	}
}

func defaultCodeRetry() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	return backoff.WithMaxRetries(b, 3)
}

func NewHouseholdRepository(base *repository.BaseRepository[*Household], opts ...HouseholdOption) *HouseholdRepository {
	r := &HouseholdRepository{base: base, retry: defaultCodeRetry}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Base exposes the generic operations.
func (r *HouseholdRepository) Base() *repository.BaseRepository[*Household] {
	return r.base
}

func duplicateHouseholdCode(code string) *repository.Error {
	return &repository.Error{
		Code:    repository.CodeDuplicateHouseholdCode,
		Message: "household code " + code + " already exists",
		Field:   "code",
	}
}

// CreateHousehold validates h and inserts it. A caller-supplied code is
// checked for duplicates first; an empty code is generated, and a generated
// code that loses a race is regenerated a bounded number of times.
func (r *HouseholdRepository) CreateHousehold(ctx context.Context, h *Household) repository.Result[*Household] {
	if h == nil {
		return repository.Fail[*Household](repository.ValidationError("", "household is required", nil))
	}
	h.Code = strings.TrimSpace(h.Code)
	if err := h.Validate(); err != nil {
		return repository.Fail[*Household](validationFailure(err))
	}

	if h.Code != "" {
		taken := r.codeTaken(ctx, h.Code)
		if !taken.Success {
			return repository.Recast[*Household](taken)
		}
		if taken.Data {
			return repository.Fail[*Household](duplicateHouseholdCode(h.Code))
		}
		res := r.base.Create(ctx, h)
		if res.Code() == repository.CodeUniqueViolation {
			return repository.Fail[*Household](duplicateHouseholdCode(h.Code))
		}
		return res
	}

	var res repository.Result[*Household]
	attempt := func() error {
		code := r.GenerateHouseholdCode(ctx, h.BarangayCode)
		if !code.Success {
			res = repository.Recast[*Household](code)
			return backoff.Permanent(code.Err())
		}
		h.Code = code.Data
		res = r.base.Create(ctx, h)
		if res.Code() == repository.CodeUniqueViolation {
			return res.Err()
		}
		return nil
	}
	// res holds the outcome of the last attempt.
	_ = backoff.Retry(attempt, backoff.WithContext(r.retry(), ctx))
	if res.Code() == repository.CodeUniqueViolation {
		return repository.Fail[*Household](duplicateHouseholdCode(h.Code))
	}
	return res
}

func (r *HouseholdRepository) codeTaken(ctx context.Context, code string) repository.Result[bool] {
	n := r.base.Count(ctx, map[string]any{"code": code})
	if !n.Success {
		return repository.Recast[bool](n)
	}
	return repository.Ok(n.Data > 0)
}

// GenerateHouseholdCode returns the next "<barangay>-NNNN" code after the
// highest one issued. Concurrent callers can receive the same code; the
// unique index on code decides.
func (r *HouseholdRepository) GenerateHouseholdCode(ctx context.Context, barangayCode string) repository.Result[string] {
	if !psgcCode.MatchString(barangayCode) {
		return repository.Fail[string](repository.ValidationError("barangay_code", "a 9 digit barangay code is required", nil))
	}
	prefix := HouseholdCodePrefix(barangayCode)
	spec := repository.Spec{OrderBy: "code", Desc: true, Natural: true, Limit: 1}.
		Where(repository.ILike("code", prefix+"%"))

	latest := r.base.ExecuteQuery(ctx, spec, "generate_code")
	if !latest.Success {
		return repository.Recast[string](latest)
	}
	last := ""
	if len(latest.Data) > 0 {
		last = latest.Data[0].Code
	}
	return repository.Ok(nextCode(prefix, last))
}

// GetByCode loads a household by its unique code.
func (r *HouseholdRepository) GetByCode(ctx context.Context, code string) repository.Result[*Household] {
	spec := repository.Spec{Limit: 1}.Where(repository.Eq("code", code))
	found := r.base.ExecuteQuery(ctx, spec, "get_by_code")
	if !found.Success {
		return repository.Recast[*Household](found)
	}
	if len(found.Data) == 0 {
		return repository.Fail[*Household](repository.NewError(repository.CodeNotFound, "household "+code+" not found"))
	}
	return repository.Ok(found.Data[0])
}

func (r *HouseholdRepository) GetHousehold(ctx context.Context, id string) repository.Result[*Household] {
	return r.base.FindByID(ctx, id)
}

// UpdateHousehold applies changes. Changing the code checks the new one for
// duplicates.
func (r *HouseholdRepository) UpdateHousehold(ctx context.Context, id string, changes map[string]any) repository.Result[*Household] {
	current := r.base.FindByID(ctx, id)
	if !current.Success {
		return current
	}

	merged, err := r.base.Merge(current.Data, changes)
	if err != nil {
		return repository.Fail[*Household](repository.MapError(err))
	}
	merged.ID = current.Data.ID
	merged.CreatedAt = current.Data.CreatedAt
	merged.Code = strings.TrimSpace(merged.Code)
	if merged.Code == "" {
		return repository.Fail[*Household](repository.ValidationError("code", "code: cannot be blank", nil))
	}
	if err := merged.Validate(); err != nil {
		return repository.Fail[*Household](validationFailure(err))
	}

	if merged.Code != current.Data.Code {
		taken := r.codeTaken(ctx, merged.Code)
		if !taken.Success {
			return repository.Recast[*Household](taken)
		}
		if taken.Data {
			return repository.Fail[*Household](duplicateHouseholdCode(merged.Code))
		}
	}

	res := r.base.Save(ctx, merged, "update")
	if res.Code() == repository.CodeUniqueViolation {
		return repository.Fail[*Household](duplicateHouseholdCode(merged.Code))
	}
	return res
}

func (r *HouseholdRepository) DeleteHousehold(ctx context.Context, id string) repository.Result[bool] {
	return r.base.Delete(ctx, id)
}

// SearchHouseholds returns households matching s ordered by code.
func (r *HouseholdRepository) SearchHouseholds(ctx context.Context, s HouseholdSearch) repository.Result[[]*Household] {
	spec := repository.Spec{OrderBy: "code", Limit: pageLimit(s.Limit), Offset: s.Offset}

	if term := strings.TrimSpace(s.Term); term != "" {
		pattern := repository.Contains(term)
		spec = spec.WhereGroup(repository.AnyOf(
			repository.ILike("code", pattern),
			repository.ILike("street_name", pattern),
			repository.ILike("house_number", pattern),
		))
	}

	equals := []struct{ column, value string }{
		{"household_type", s.HouseholdType},
		{"barangay_code", s.BarangayCode},
		{"city_municipality_code", s.CityMunicipalityCode},
		{"province_code", s.ProvinceCode},
		{"region_code", s.RegionCode},
	}
	for _, e := range equals {
		if e.value != "" {
			spec = spec.Where(repository.Eq(e.column, e.value))
		}
	}
	return r.base.ExecuteQuery(ctx, spec, "search")
}
