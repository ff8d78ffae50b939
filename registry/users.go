package registry

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-barangay-registry/repository"
)

// LockoutPolicy controls account lockout after failed logins.
type LockoutPolicy struct {
	// MaxAttempts is the number of consecutive failures that locks the account.
	MaxAttempts int

	// Duration is how long the account stays locked.
	Duration time.Duration
}

// DefaultLockoutPolicy locks for 30 minutes after 5 failures.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{MaxAttempts: 5, Duration: 30 * time.Minute}
}

// fields only RecordLoginAttempt may change
var loginFields = []string{"login_attempts", "locked_until", "last_login_at"}

// UserRepository manages auth_user_profiles.
type UserRepository struct {
	base          *repository.BaseRepository[*User]
	jurisdictions Jurisdictions
	policy        LockoutPolicy
}

// UserOption configures a UserRepository.
type UserOption func(*UserRepository)

// WithLockoutPolicy overrides DefaultLockoutPolicy. Non-positive values keep
// the default.
func WithLockoutPolicy(p LockoutPolicy) UserOption {
	return func(r *UserRepository) {
		if p.MaxAttempts > 0 {
			r.policy.MaxAttempts = p.MaxAttempts
		}
		if p.Duration > 0 {
			r.policy.Duration = p.Duration
		}
	}
}

func NewUserRepository(base *repository.BaseRepository[*User], jurisdictions Jurisdictions, opts ...UserOption) *UserRepository {
	r := &UserRepository{base: base, jurisdictions: jurisdictions, policy: DefaultLockoutPolicy()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Base exposes the generic operations.
func (r *UserRepository) Base() *repository.BaseRepository[*User] {
	return r.base
}

func duplicateEmail(email string) *repository.Error {
	return &repository.Error{
		Code:    repository.CodeDuplicateEmail,
		Message: "a user with email " + email + " already exists",
		Field:   "email",
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser validates u, rejects a duplicate email, assigns a user code when
// the user belongs to a barangay and inserts it.
func (r *UserRepository) CreateUser(ctx context.Context, u *User) repository.Result[*User] {
	if u == nil {
		return repository.Fail[*User](repository.ValidationError("", "user is required", nil))
	}
	u.Email = normalizeEmail(u.Email)
	u.LoginAttempts, u.LockedUntil, u.LastLoginAt = 0, nil, nil
	if err := u.Validate(); err != nil {
		return repository.Fail[*User](validationFailure(err))
	}

	taken := r.emailTaken(ctx, u.Email)
	if !taken.Success {
		return repository.Recast[*User](taken)
	}
	if taken.Data {
		return repository.Fail[*User](duplicateEmail(u.Email))
	}

	if u.UserCode == "" && u.BarangayCode != "" {
		code := r.GenerateUserCode(ctx, u.BarangayCode)
		if !code.Success {
			return repository.Recast[*User](code)
		}
		u.UserCode = code.Data
	}

	res := r.base.Create(ctx, u)
	if res.Code() == repository.CodeUniqueViolation {
		return repository.Fail[*User](duplicateEmail(u.Email))
	}
	return res
}

func (r *UserRepository) emailTaken(ctx context.Context, email string) repository.Result[bool] {
	n := r.base.Count(ctx, map[string]any{"email": email})
	if !n.Success {
		return repository.Recast[bool](n)
	}
	return repository.Ok(n.Data > 0)
}

// GetByEmail loads a user by email, case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) repository.Result[*User] {
	email = normalizeEmail(email)
	if email == "" {
		return repository.Fail[*User](repository.ValidationError("email", "email is required", nil))
	}
	spec := repository.Spec{Limit: 1}.Where(repository.Eq("email", email))
	found := r.base.ExecuteQuery(ctx, spec, "get_by_email")
	if !found.Success {
		return repository.Recast[*User](found)
	}
	if len(found.Data) == 0 {
		return repository.Fail[*User](repository.NewError(repository.CodeNotFound, "user not found"))
	}
	return repository.Ok(found.Data[0])
}

func (r *UserRepository) GetUser(ctx context.Context, id string) repository.Result[*User] {
	return r.base.FindByID(ctx, id)
}

// UpdateUser applies profile changes. Login bookkeeping fields are ignored;
// use RecordLoginAttempt for those.
func (r *UserRepository) UpdateUser(ctx context.Context, id string, changes map[string]any) repository.Result[*User] {
	current := r.base.FindByID(ctx, id)
	if !current.Success {
		return current
	}

	filtered := make(map[string]any, len(changes))
	for k, v := range changes {
		filtered[k] = v
	}
	for _, k := range loginFields {
		delete(filtered, k)
	}

	merged, err := r.base.Merge(current.Data, filtered)
	if err != nil {
		return repository.Fail[*User](repository.MapError(err))
	}
	merged.ID = current.Data.ID
	merged.CreatedAt = current.Data.CreatedAt
	merged.Email = normalizeEmail(merged.Email)
	if err := merged.Validate(); err != nil {
		return repository.Fail[*User](validationFailure(err))
	}

	if merged.Email != current.Data.Email {
		taken := r.emailTaken(ctx, merged.Email)
		if !taken.Success {
			return repository.Recast[*User](taken)
		}
		if taken.Data {
			return repository.Fail[*User](duplicateEmail(merged.Email))
		}
	}

	res := r.base.Save(ctx, merged, "update")
	if res.Code() == repository.CodeUniqueViolation {
		return repository.Fail[*User](duplicateEmail(merged.Email))
	}
	return res
}

// RecordLoginAttempt updates the failure counter. A failure that reaches
// MaxAttempts locks the account for Duration; a success resets the counter
// and stamps last_login_at. A successful attempt on a locked account fails
// with ACCOUNT_LOCKED and changes nothing.
func (r *UserRepository) RecordLoginAttempt(ctx context.Context, id string, success bool) repository.Result[*User] {
	current := r.base.FindByID(ctx, id)
	if !current.Success {
		return current
	}

	u := *current.Data
	now := r.base.Now()

	if success {
		if u.Locked(now) {
			return repository.Fail[*User](&repository.Error{
				Code:    repository.CodeAccountLocked,
				Message: "account is locked",
				Details: map[string]any{"locked_until": *u.LockedUntil},
			})
		}
		u.LoginAttempts = 0
		u.LockedUntil = nil
		u.LastLoginAt = &now
		return r.base.Save(ctx, &u, "login_success")
	}

	if u.LockedUntil != nil && !u.Locked(now) {
		// an expired lock starts a fresh count
		u.LoginAttempts = 0
		u.LockedUntil = nil
	}
	u.LoginAttempts++
	if u.LoginAttempts >= r.policy.MaxAttempts && u.LockedUntil == nil {
		until := now.Add(r.policy.Duration)
		u.LockedUntil = &until
	}
	return r.base.Save(ctx, &u, "login_failure")
}

// IsLocked reports whether the account is locked now.
func (r *UserRepository) IsLocked(ctx context.Context, id string) repository.Result[bool] {
	current := r.base.FindByID(ctx, id)
	if !current.Success {
		return repository.Recast[bool](current)
	}
	return repository.Ok(current.Data.Locked(r.base.Now()))
}

// GenerateUserCode returns the next "U-<barangay>-NNNN" code.
func (r *UserRepository) GenerateUserCode(ctx context.Context, barangayCode string) repository.Result[string] {
	if !psgcCode.MatchString(barangayCode) {
		return repository.Fail[string](repository.ValidationError("barangay_code", "a 9 digit barangay code is required", nil))
	}
	prefix := UserCodePrefix(barangayCode)
	spec := repository.Spec{OrderBy: "user_code", Desc: true, Natural: true, Limit: 1}.
		Where(repository.ILike("user_code", prefix+"%"))

	latest := r.base.ExecuteQuery(ctx, spec, "generate_code")
	if !latest.Success {
		return repository.Recast[string](latest)
	}
	last := ""
	if len(latest.Data) > 0 {
		last = latest.Data[0].UserCode
	}
	return repository.Ok(nextCode(prefix, last))
}

// ListByJurisdiction returns users assigned within the area identified by
// code, at the area's level.
func (r *UserRepository) ListByJurisdiction(ctx context.Context, code string, limit, offset int) repository.Result[[]*User] {
	cond, failure := jurisdictionCondition(ctx, r.jurisdictions, code)
	if failure != nil {
		return repository.Fail[[]*User](failure)
	}
	spec := repository.Spec{OrderBy: "last_name", Limit: pageLimit(limit), Offset: offset}.Where(cond)
	return r.base.ExecuteQuery(ctx, spec, "list_by_jurisdiction")
}
