package repository

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-barangay-registry/pkg/testsupport"
)

func render(s Spec) string {
	return testsupport.RenderSelect("residents", s.Criteria()...)
}

func TestSpecCriteria_Operators(t *testing.T) {
	tests := []struct {
		name string
		cond Condition
		want string
	}{
		{"eq", Eq("first_name", "Juan"), `"first_name" = 'Juan'`},
		{"eq nil", Eq("middle_name", nil), `"middle_name" IS NULL`},
		{"neq", Neq("sex", "male"), `"sex" <> 'male'`},
		{"ilike", ILike("last_name", Contains("cruz")), `LOWER("last_name") LIKE LOWER('%cruz%')`},
		{"gte", Gte("birthdate", "1990-01-01"), `"birthdate" >= '1990-01-01'`},
		{"lte", Lte("birthdate", "2000-12-31"), `"birthdate" <= '2000-12-31'`},
		{"in", In("civil_status", []string{"single", "married"}), `"civil_status" IN ('single', 'married')`},
		{"is null", IsNull("household_code", true), `"household_code" IS NULL`},
		{"is not null", IsNull("household_code", false), `"household_code" IS NOT NULL`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql := render(Spec{}.Where(tt.cond))
			assert.Contains(t, sql, tt.want)
		})
	}
}

func TestSpecCriteria_OrGroup(t *testing.T) {
	spec := Spec{}.
		Where(Eq("barangay_code", "137404001")).
		WhereGroup(AnyOf(
			ILike("first_name", Contains("ana")),
			ILike("last_name", Contains("ana")),
		))

	sql := render(spec)
	first := strings.Index(sql, `LOWER("first_name")`)
	or := strings.Index(sql, " OR ")
	last := strings.Index(sql, `LOWER("last_name")`)
	require.True(t, first >= 0 && or > first && last > or, sql)
	assert.Contains(t, sql, `"barangay_code" = '137404001'`)
	assert.Contains(t, sql, " AND ")
}

func TestSpecCriteria_OrderAndPaging(t *testing.T) {
	sql := render(Spec{OrderBy: "last_name", Limit: 25, Offset: 50})
	assert.Contains(t, sql, `ORDER BY "last_name" ASC`)
	assert.Contains(t, sql, "LIMIT 25")
	assert.Contains(t, sql, "OFFSET 50")

	sql = render(Spec{})
	assert.NotContains(t, sql, "WHERE")
	assert.NotContains(t, sql, "LIMIT")
}

func TestSpecCriteria_ClearsStoreDefaultPage(t *testing.T) {
	sql := testsupport.RenderList("residents", Spec{}.Criteria()...)
	assert.NotContains(t, sql, "LIMIT")

	sql = testsupport.RenderList("residents", Spec{Limit: 5, Offset: 10}.Criteria()...)
	assert.Contains(t, sql, "LIMIT 5")
	assert.Contains(t, sql, "OFFSET 10")
}

func TestSpecCriteria_NaturalOrder(t *testing.T) {
	sql := render(Spec{OrderBy: "code", Desc: true, Natural: true})
	assert.Contains(t, sql, `ORDER BY LENGTH("code") DESC, "code" DESC`)

	sql = render(Spec{OrderBy: "code"})
	assert.NotContains(t, sql, "LENGTH")
}

func TestSpecValidate(t *testing.T) {
	assert.NoError(t, Spec{}.Where(Eq("a", 1)).Validate())

	err := Spec{}.Where(Condition{Column: "", Op: OpEq}).Validate()
	assert.True(t, IsCode(err, CodeValidation))

	err = Spec{}.WhereGroup(AnyOf(Condition{Column: "a", Op: "like"})).Validate()
	assert.True(t, IsCode(err, CodeValidation))

	err = Spec{Limit: -1}.Validate()
	assert.True(t, IsCode(err, CodeValidation))

	err = Spec{Offset: 20}.Validate()
	assert.True(t, IsCode(err, CodeValidation))
}

func TestSpecWhereDoesNotAlias(t *testing.T) {
	base := Spec{}.Where(Eq("a", 1))
	left := base.Where(Eq("b", 2))
	right := base.Where(Eq("c", 3))

	assert.Len(t, base.Conditions, 1)
	assert.Equal(t, "b", left.Conditions[1].Column)
	assert.Equal(t, "c", right.Conditions[1].Column)
}

func TestSpecKey(t *testing.T) {
	a := Spec{Limit: 10}.Where(Eq("sex", "female"))
	b := Spec{Limit: 10}.Where(Eq("sex", "female"))
	c := Spec{Limit: 20}.Where(Eq("sex", "female"))

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestQueryOptionsSpec(t *testing.T) {
	spec := QueryOptions{
		OrderBy:        "created_at",
		OrderDirection: "DESC",
		Filters:        map[string]any{"z": 1, "a": 2},
	}.Spec()

	assert.True(t, spec.Desc)
	require.Len(t, spec.Conditions, 2)
	assert.Equal(t, "a", spec.Conditions[0].Column)
	assert.Equal(t, "z", spec.Conditions[1].Column)
}
