package registry

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// JSON tags equal column names: BaseRepository.Merge applies changes by
// JSON field name and ozzo reports errors under the same names.

var (
	psgcCode  = regexp.MustCompile(`^\d{9}$`)
	mobileNum = regexp.MustCompile(`^(\+63|0)9\d{9}$`)
)

// Sex values accepted by the registry.
const (
	SexMale   = "male"
	SexFemale = "female"
)

var civilStatuses = []any{"single", "married", "widowed", "separated", "divorced", "annulled"}

// Resident is one registered person.
type Resident struct {
	bun.BaseModel `bun:"table:residents,alias:r"`

	ID                   uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	FirstName            string    `bun:"first_name,notnull" json:"first_name"`
	MiddleName           string    `bun:"middle_name" json:"middle_name,omitempty"`
	LastName             string    `bun:"last_name,notnull" json:"last_name"`
	Suffix               string    `bun:"suffix" json:"suffix,omitempty"`
	Birthdate            time.Time `bun:"birthdate,notnull" json:"birthdate"`
	Sex                  string    `bun:"sex,notnull" json:"sex"`
	CivilStatus          string    `bun:"civil_status" json:"civil_status,omitempty"`
	MobileNumber         string    `bun:"mobile_number" json:"mobile_number,omitempty"`
	Email                string    `bun:"email" json:"email,omitempty"`
	HouseholdCode        string    `bun:"household_code,nullzero" json:"household_code,omitempty"`
	RegionCode           string    `bun:"region_code" json:"region_code,omitempty"`
	ProvinceCode         string    `bun:"province_code" json:"province_code,omitempty"`
	CityMunicipalityCode string    `bun:"city_municipality_code" json:"city_municipality_code,omitempty"`
	BarangayCode         string    `bun:"barangay_code,notnull" json:"barangay_code"`
	CreatedBy            string    `bun:"created_by" json:"created_by,omitempty"`
	CreatedAt            time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt            time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func (r *Resident) GetID() uuid.UUID         { return r.ID }
func (r *Resident) SetID(id uuid.UUID)       { r.ID = id }
func (r *Resident) SetCreatedAt(t time.Time) { r.CreatedAt = t }
func (r *Resident) SetUpdatedAt(t time.Time) { r.UpdatedAt = t }

// FullName joins the name parts that are set.
func (r *Resident) FullName() string {
	name := r.FirstName
	for _, part := range []string{r.MiddleName, r.LastName, r.Suffix} {
		if part != "" {
			name += " " + part
		}
	}
	return name
}

// Validate checks the resident against the registration rules. now bounds the
// birthdate.
func (r *Resident) Validate(now time.Time) error {
	return validation.ValidateStruct(r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.MiddleName, validation.Length(0, 100)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Suffix, validation.Length(0, 10)),
		validation.Field(&r.Birthdate, validation.Required, validation.Max(now).Error("must not be in the future")),
		validation.Field(&r.Sex, validation.Required, validation.In(SexMale, SexFemale)),
		validation.Field(&r.CivilStatus, validation.In(civilStatuses...)),
		validation.Field(&r.MobileNumber, validation.Match(mobileNum).Error("must be a PH mobile number")),
		validation.Field(&r.Email, is.EmailFormat),
		validation.Field(&r.BarangayCode, validation.Required, validation.Match(psgcCode)),
		validation.Field(&r.CityMunicipalityCode, validation.Match(psgcCode)),
		validation.Field(&r.ProvinceCode, validation.Match(psgcCode)),
		validation.Field(&r.RegionCode, validation.Match(psgcCode)),
	)
}

var householdTypes = []any{"nuclear", "extended", "single_person", "composite", "other"}

// Household groups residents living at one address. Code is unique.
type Household struct {
	bun.BaseModel `bun:"table:households,alias:h"`

	ID                   uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Code                 string    `bun:"code,notnull,unique" json:"code"`
	HouseholdType        string    `bun:"household_type" json:"household_type,omitempty"`
	HeadResidentID       string    `bun:"head_resident_id,nullzero" json:"head_resident_id,omitempty"`
	HouseNumber          string    `bun:"house_number" json:"house_number,omitempty"`
	StreetName           string    `bun:"street_name" json:"street_name,omitempty"`
	Subdivision          string    `bun:"subdivision" json:"subdivision,omitempty"`
	RegionCode           string    `bun:"region_code" json:"region_code,omitempty"`
	ProvinceCode         string    `bun:"province_code" json:"province_code,omitempty"`
	CityMunicipalityCode string    `bun:"city_municipality_code" json:"city_municipality_code,omitempty"`
	BarangayCode         string    `bun:"barangay_code,notnull" json:"barangay_code"`
	CreatedAt            time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt            time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func (h *Household) GetID() uuid.UUID         { return h.ID }
func (h *Household) SetID(id uuid.UUID)       { h.ID = id }
func (h *Household) SetCreatedAt(t time.Time) { h.CreatedAt = t }
func (h *Household) SetUpdatedAt(t time.Time) { h.UpdatedAt = t }

// Validate checks the household. An empty Code is allowed; one is generated
// on create.
func (h *Household) Validate() error {
	return validation.ValidateStruct(h,
		validation.Field(&h.Code, validation.Length(0, 32)),
		validation.Field(&h.HouseholdType, validation.In(householdTypes...)),
		validation.Field(&h.HeadResidentID, is.UUID),
		validation.Field(&h.StreetName, validation.Length(0, 200)),
		validation.Field(&h.BarangayCode, validation.Required, validation.Match(psgcCode)),
		validation.Field(&h.CityMunicipalityCode, validation.Match(psgcCode)),
		validation.Field(&h.ProvinceCode, validation.Match(psgcCode)),
		validation.Field(&h.RegionCode, validation.Match(psgcCode)),
	)
}

// Roles a registry user can hold.
const (
	RoleSuperAdmin    = "super_admin"
	RoleBarangayAdmin = "barangay_admin"
	RoleClerk         = "clerk"
	RoleResident      = "resident"
)

// User is an authenticated operator profile.
type User struct {
	bun.BaseModel `bun:"table:auth_user_profiles,alias:u"`

	ID                   uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Email                string     `bun:"email,notnull,unique" json:"email"`
	FirstName            string     `bun:"first_name,notnull" json:"first_name"`
	LastName             string     `bun:"last_name,notnull" json:"last_name"`
	Role                 string     `bun:"role,notnull" json:"role"`
	UserCode             string     `bun:"user_code,unique,nullzero" json:"user_code,omitempty"`
	MobileNumber         string     `bun:"mobile_number" json:"mobile_number,omitempty"`
	RegionCode           string     `bun:"region_code" json:"region_code,omitempty"`
	ProvinceCode         string     `bun:"province_code" json:"province_code,omitempty"`
	CityMunicipalityCode string     `bun:"city_municipality_code" json:"city_municipality_code,omitempty"`
	BarangayCode         string     `bun:"barangay_code" json:"barangay_code,omitempty"`
	IsActive             bool       `bun:"is_active,notnull" json:"is_active"`
	LoginAttempts        int        `bun:"login_attempts,notnull" json:"login_attempts"`
	LockedUntil          *time.Time `bun:"locked_until" json:"locked_until"`
	LastLoginAt          *time.Time `bun:"last_login_at" json:"last_login_at"`
	CreatedAt            time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt            time.Time  `bun:"updated_at,notnull" json:"updated_at"`
}

func (u *User) GetID() uuid.UUID         { return u.ID }
func (u *User) SetID(id uuid.UUID)       { u.ID = id }
func (u *User) SetCreatedAt(t time.Time) { u.CreatedAt = t }
func (u *User) SetUpdatedAt(t time.Time) { u.UpdatedAt = t }

// Locked reports whether the account is locked at now.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

func (u *User) Validate() error {
	return validation.ValidateStruct(u,
		validation.Field(&u.Email, validation.Required, is.EmailFormat),
		validation.Field(&u.FirstName, validation.Required, validation.Length(1, 100)),
		validation.Field(&u.LastName, validation.Required, validation.Length(1, 100)),
		validation.Field(&u.Role, validation.Required, validation.In(RoleSuperAdmin, RoleBarangayAdmin, RoleClerk, RoleResident)),
		validation.Field(&u.MobileNumber, validation.Match(mobileNum).Error("must be a PH mobile number")),
		validation.Field(&u.BarangayCode,
			validation.When(u.Role == RoleBarangayAdmin || u.Role == RoleClerk, validation.Required),
			validation.Match(psgcCode)),
		validation.Field(&u.CityMunicipalityCode, validation.Match(psgcCode)),
		validation.Field(&u.ProvinceCode, validation.Match(psgcCode)),
		validation.Field(&u.RegionCode, validation.Match(psgcCode)),
		validation.Field(&u.LoginAttempts, validation.Min(0)),
	)
}
