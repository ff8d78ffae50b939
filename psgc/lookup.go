package psgc

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-barangay-registry/internal/cacheinfra"
)

// maxDepth bounds Hierarchy walks so a cyclic parent_code cannot loop forever.
const maxDepth = 8

// Lookup answers geographic questions with a read-through cache in front of
// a Source. Unknown codes are remembered as missing.
type Lookup struct {
	source   Source
	areas    *cacheinfra.ReadThrough[Area]
	children *cacheinfra.ReadThrough[[]Area]
	logger   zerolog.Logger
}

// NewLookup builds a Lookup. cfg configures both caches.
func NewLookup(source Source, cfg cacheinfra.ReadThroughConfig, logger zerolog.Logger) (*Lookup, error) {
	if source == nil {
		return nil, errors.New("psgc: source is required")
	}
	areas, err := cacheinfra.NewReadThrough[Area](cfg)
	if err != nil {
		return nil, fmt.Errorf("psgc: area cache: %w", err)
	}
	children, err := cacheinfra.NewReadThrough[[]Area](cfg)
	if err != nil {
		return nil, fmt.Errorf("psgc: children cache: %w", err)
	}
	return &Lookup{source: source, areas: areas, children: children, logger: logger}, nil
}

// Area returns the area for code or ErrAreaNotFound.
func (l *Lookup) Area(ctx context.Context, code string) (Area, error) {
	if code == "" {
		return Area{}, ErrAreaNotFound
	}
	area, err := l.areas.GetOrFetch(ctx, "area:"+code, func(ctx context.Context) (Area, error) {
		a, err := l.source.Area(ctx, code)
		if errors.Is(err, ErrAreaNotFound) {
			return Area{}, cacheinfra.ErrNotFound
		}
		if err != nil {
			return Area{}, err
		}
		return *a, nil
	})
	if cacheinfra.IsMissing(err) {
		return Area{}, fmt.Errorf("%w: %s", ErrAreaNotFound, code)
	}
	return area, err
}

// Children lists the direct children of parentCode, ordered by code.
func (l *Lookup) Children(ctx context.Context, parentCode string) ([]Area, error) {
	return l.children.GetOrFetch(ctx, "children:"+parentCode, func(ctx context.Context) ([]Area, error) {
		return l.source.Children(ctx, parentCode)
	})
}

// Hierarchy returns the chain from code up to its region, leaf first.
func (l *Lookup) Hierarchy(ctx context.Context, code string) ([]Area, error) {
	var chain []Area
	next := code
	for next != "" {
		if len(chain) == maxDepth {
			return nil, fmt.Errorf("psgc: hierarchy of %s exceeds %d levels", code, maxDepth)
		}
		area, err := l.Area(ctx, next)
		if err != nil {
			return nil, err
		}
		chain = append(chain, area)
		next = area.ParentCode
	}
	return chain, nil
}

// Contains reports whether code lies within ancestor. An area contains itself.
func (l *Lookup) Contains(ctx context.Context, ancestor, code string) (bool, error) {
	chain, err := l.Hierarchy(ctx, code)
	if err != nil {
		return false, err
	}
	for _, a := range chain {
		if a.Code == ancestor {
			return true, nil
		}
	}
	return false, nil
}

// ColumnFor returns the registry column that stores codes of the same level
// as code, e.g. "province_code" for a province.
func (l *Lookup) ColumnFor(ctx context.Context, code string) (string, error) {
	area, err := l.Area(ctx, code)
	if err != nil {
		return "", err
	}
	column, ok := LevelColumn(area.Level)
	if !ok {
		return "", fmt.Errorf("psgc: area %s has unknown level %q", code, area.Level)
	}
	return column, nil
}

// LevelColumn maps a level to its registry column.
func LevelColumn(level Level) (string, bool) {
	switch level {
	case LevelRegion:
		return "region_code", true
	case LevelProvince:
		return "province_code", true
	case LevelCity:
		return "city_municipality_code", true
	case LevelBarangay:
		return "barangay_code", true
	}
	return "", false
}

// Forget drops cached data for code and its children list. Call it after
// editing psgc_areas.
func (l *Lookup) Forget(code string) {
	l.areas.Delete("area:" + code)
	l.children.Delete("children:" + code)
	l.logger.Debug().Str("code", code).Msg("psgc cache entry dropped")
}

// Reset drops every cached entry.
func (l *Lookup) Reset() int {
	return l.areas.DeleteByPrefix("") + l.children.DeleteByPrefix("")
}
