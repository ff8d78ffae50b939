package repository

import (
	"reflect"

	bunrepo "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// fullUpdate pins every zero-valued column of record into the SET clause.
// The store runs updates with OmitZero, which would otherwise skip a counter
// reset to 0, a cleared timestamp or a flag turned off.
func fullUpdate(record any) bunrepo.UpdateCriteria {
	return func(q *bun.UpdateQuery) *bun.UpdateQuery {
		strct := reflect.Indirect(reflect.ValueOf(record))
		if strct.Kind() != reflect.Struct {
			return q
		}
		table := q.DB().Table(strct.Type())
		for _, f := range table.DataFields {
			if f.SkipUpdate() || !f.HasZeroValue(strct) {
				continue
			}
			q = q.Value(f.Name, "?", columnValue{field: f, strct: strct})
		}
		return q
	}
}

// columnValue renders a field with its own appender, so nullzero and
// pointer columns become NULL.
type columnValue struct {
	field *schema.Field
	strct reflect.Value
}

func (v columnValue) AppendQuery(fmter schema.Formatter, b []byte) ([]byte, error) {
	return v.field.AppendValue(fmter, b, v.strct), nil
}
