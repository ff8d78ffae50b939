package repository

import (
	"fmt"
	"slices"
	"strings"

	bunrepo "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-barangay-registry/cache"
)

var specKeys = cache.NewDefaultKeySerializer()

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// QueryOptions drives FindAll. Filter keys are column names compared for
// equality; they are not checked against the schema.
type QueryOptions struct {
	Limit          int            `json:"limit,omitempty"`
	Offset         int            `json:"offset,omitempty"`
	OrderBy        string         `json:"order_by,omitempty"`
	OrderDirection Direction      `json:"order_direction,omitempty"`
	Filters        map[string]any `json:"filters,omitempty"`
}

// Spec converts the options into an equivalent query spec. Filters are
// applied in sorted key order so SQL and cache keys are deterministic.
func (o QueryOptions) Spec() Spec {
	s := Spec{
		OrderBy: o.OrderBy,
		Desc:    strings.EqualFold(string(o.OrderDirection), string(Desc)),
		Limit:   o.Limit,
		Offset:  o.Offset,
	}
	s.Conditions = filterConditions(o.Filters)
	return s
}

func filterConditions(filters map[string]any) []Condition {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	conds := make([]Condition, 0, len(keys))
	for _, k := range keys {
		conds = append(conds, Eq(k, filters[k]))
	}
	return conds
}

// Op is a comparison operator understood by the spec interpreter.
type Op string

const (
	OpEq     Op = "eq"
	OpNeq    Op = "neq"
	OpILike  Op = "ilike"
	OpGte    Op = "gte"
	OpLte    Op = "lte"
	OpIn     Op = "in"
	OpIsNull Op = "is_null"
)

// Condition compares one column against a value.
type Condition struct {
	Column string `json:"column"`
	Op     Op     `json:"op"`
	Value  any    `json:"value,omitempty"`
}

// Eq matches column = value, or IS NULL for a nil value.
func Eq(column string, value any) Condition {
	return Condition{Column: column, Op: OpEq, Value: value}
}

func Neq(column string, value any) Condition {
	return Condition{Column: column, Op: OpNeq, Value: value}
}

func Gte(column string, value any) Condition {
	return Condition{Column: column, Op: OpGte, Value: value}
}

func Lte(column string, value any) Condition {
	return Condition{Column: column, Op: OpLte, Value: value}
}

// In matches any element of values, which must be a slice.
func In(column string, values any) Condition {
	return Condition{Column: column, Op: OpIn, Value: values}
}

// ILike matches pattern case-insensitively. Use Contains to build "%term%".
func ILike(column, pattern string) Condition {
	return Condition{Column: column, Op: OpILike, Value: pattern}
}

// IsNull matches NULL when null is true and NOT NULL otherwise.
func IsNull(column string, null bool) Condition {
	return Condition{Column: column, Op: OpIsNull, Value: null}
}

// Contains wraps term in '%' for a substring match.
func Contains(term string) string {
	return "%" + strings.TrimSpace(term) + "%"
}

// Group is a parenthesized set of conditions joined by OR when Any is set,
// AND otherwise.
type Group struct {
	Any        bool        `json:"any"`
	Conditions []Condition `json:"conditions"`
}

// AnyOf groups conditions with OR.
func AnyOf(conds ...Condition) Group { return Group{Any: true, Conditions: conds} }

// AllOf groups conditions with AND.
func AllOf(conds ...Condition) Group { return Group{Conditions: conds} }

// Spec is a typed select specification. Top-level conditions and groups are
// ANDed together.
type Spec struct {
	Conditions []Condition `json:"conditions,omitempty"`
	Groups     []Group     `json:"groups,omitempty"`
	OrderBy    string      `json:"order_by,omitempty"`
	Desc       bool        `json:"desc,omitempty"`
	// Natural orders by length before value, so "X-10000" sorts after "X-9999".
	Natural bool `json:"natural,omitempty"`
	Limit   int  `json:"limit,omitempty"`
	Offset  int  `json:"offset,omitempty"`
}

// Where appends conditions and returns the spec.
func (s Spec) Where(conds ...Condition) Spec {
	s.Conditions = append(slices.Clone(s.Conditions), conds...)
	return s
}

// WhereGroup appends a group and returns the spec.
func (s Spec) WhereGroup(g Group) Spec {
	s.Groups = append(slices.Clone(s.Groups), g)
	return s
}

// Validate rejects empty columns, unknown operators and negative paging.
func (s Spec) Validate() error {
	check := func(c Condition) error {
		if strings.TrimSpace(c.Column) == "" {
			return ValidationError("column", "condition column must not be empty", nil)
		}
		switch c.Op {
		case OpEq, OpNeq, OpILike, OpGte, OpLte, OpIn, OpIsNull:
		default:
			return ValidationError("op", fmt.Sprintf("unsupported operator %q", c.Op), nil)
		}
		return nil
	}

	for _, c := range s.Conditions {
		if err := check(c); err != nil {
			return err
		}
	}
	for _, g := range s.Groups {
		for _, c := range g.Conditions {
			if err := check(c); err != nil {
				return err
			}
		}
	}
	if s.Limit < 0 || s.Offset < 0 {
		return ValidationError("limit", "limit and offset must be non-negative", nil)
	}
	if s.Offset > 0 && s.Limit == 0 {
		return ValidationError("limit", "offset requires a limit", nil)
	}
	return nil
}

// Key is a stable identity for the spec, used as the cache query key.
func (s Spec) Key() string {
	return specKeys.SerializeKey("spec", s)
}

// Criteria interprets the spec as go-repository-bun select criteria.
func (s Spec) Criteria() []bunrepo.SelectCriteria {
	var criteria []bunrepo.SelectCriteria

	for _, c := range s.Conditions {
		criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
			expr, args := c.sql()
			return q.Where(expr, args...)
		})
	}

	for _, g := range s.Groups {
		if len(g.Conditions) == 0 {
			continue
		}
		criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
				for _, c := range g.Conditions {
					expr, args := c.sql()
					if g.Any {
						q = q.WhereOr(expr, args...)
					} else {
						q = q.Where(expr, args...)
					}
				}
				return q
			})
		})
	}

	if s.OrderBy != "" {
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
			if s.Natural {
				q = q.OrderExpr("LENGTH(?) "+dir, bun.Ident(s.OrderBy))
			}
			return q.OrderExpr("? "+dir, bun.Ident(s.OrderBy))
		})
	}
	// Always set paging: the store pages lists at 25 rows unless told
	// otherwise, and bun renders a zero limit as no LIMIT.
	criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Limit(s.Limit).Offset(s.Offset)
	})
	return criteria
}

// sql renders one condition. LOWER(..) LIKE LOWER(..) works on both postgres
// and sqlite, which lacks ILIKE.
func (c Condition) sql() (string, []any) {
	col := bun.Ident(c.Column)
	switch c.Op {
	case OpNeq:
		if c.Value == nil {
			return "? IS NOT NULL", []any{col}
		}
		return "? <> ?", []any{col, c.Value}
	case OpILike:
		return "LOWER(?) LIKE LOWER(?)", []any{col, c.Value}
	case OpGte:
		return "? >= ?", []any{col, c.Value}
	case OpLte:
		return "? <= ?", []any{col, c.Value}
	case OpIn:
		return "? IN (?)", []any{col, bun.In(c.Value)}
	case OpIsNull:
		if null, ok := c.Value.(bool); ok && !null {
			return "? IS NOT NULL", []any{col}
		}
		return "? IS NULL", []any{col}
	default:
		if c.Value == nil {
			return "? IS NULL", []any{col}
		}
		return "? = ?", []any{col, c.Value}
	}
}
