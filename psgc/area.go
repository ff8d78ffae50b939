package psgc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/uptrace/bun"
)

// Level is the administrative level of an area.
type Level string

const (
	LevelRegion   Level = "region"
	LevelProvince Level = "province"
	LevelCity     Level = "city"
	LevelBarangay Level = "barangay"
)

// ErrAreaNotFound is returned for codes with no psgc_areas row.
var ErrAreaNotFound = errors.New("psgc: area not found")

// Area is one row of the Philippine Standard Geographic Code table.
type Area struct {
	bun.BaseModel `bun:"table:psgc_areas,alias:pa"`

	Code       string `bun:"code,pk" json:"code"`
	Name       string `bun:"name,notnull" json:"name"`
	Level      Level  `bun:"level,notnull" json:"level"`
	ParentCode string `bun:"parent_code,nullzero" json:"parent_code,omitempty"`
}

// Source loads areas from storage.
type Source interface {
	Area(ctx context.Context, code string) (*Area, error)
	Children(ctx context.Context, parentCode string) ([]Area, error)
}

// BunSource reads psgc_areas through bun.
type BunSource struct {
	db bun.IDB
}

// NewBunSource returns a Source backed by db.
func NewBunSource(db bun.IDB) *BunSource {
	return &BunSource{db: db}
}

func (s *BunSource) Area(ctx context.Context, code string) (*Area, error) {
	area := new(Area)
	err := s.db.NewSelect().Model(area).Where("? = ?", bun.Ident("code"), code).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAreaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("psgc: load area %s: %w", code, err)
	}
	return area, nil
}

func (s *BunSource) Children(ctx context.Context, parentCode string) ([]Area, error) {
	var areas []Area
	err := s.db.NewSelect().
		Model(&areas).
		Where("? = ?", bun.Ident("parent_code"), parentCode).
		OrderExpr("? ASC", bun.Ident("code")).
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("psgc: load children of %s: %w", parentCode, err)
	}
	return areas, nil
}

// Upsert inserts areas, replacing name, level and parent of existing codes.
func (s *BunSource) Upsert(ctx context.Context, areas []Area) error {
	if len(areas) == 0 {
		return nil
	}
	_, err := s.db.NewInsert().
		Model(&areas).
		On("CONFLICT (code) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("level = EXCLUDED.level").
		Set("parent_code = EXCLUDED.parent_code").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("psgc: upsert %d areas: %w", len(areas), err)
	}
	return nil
}

// DecodeAreas reads a JSON array of areas, as shipped in seed files.
func DecodeAreas(r io.Reader) ([]Area, error) {
	var areas []Area
	if err := json.NewDecoder(r).Decode(&areas); err != nil {
		return nil, fmt.Errorf("psgc: decode areas: %w", err)
	}
	for i, a := range areas {
		if a.Code == "" || a.Level == "" {
			return nil, fmt.Errorf("psgc: area %d: code and level are required", i)
		}
	}
	return areas, nil
}
