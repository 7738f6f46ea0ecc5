package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/equipment-crawler/internal/equipment"
)

// DefaultEquipmentTable is used when no table name is configured.
const DefaultEquipmentTable = "military_equipment"

// technicalSpecs is the JSONB document holding everything that has no
// column of its own.
type technicalSpecs struct {
	Manufacturer string   `json:"manufacturer,omitempty"`
	Crew         string   `json:"crew,omitempty"`
	Weight       string   `json:"weight,omitempty"`
	Length       string   `json:"length,omitempty"`
	Width        string   `json:"width,omitempty"`
	Height       string   `json:"height,omitempty"`
	Engine       string   `json:"engine,omitempty"`
	Speed        string   `json:"speed,omitempty"`
	Range        string   `json:"range,omitempty"`
	Armor        string   `json:"armor,omitempty"`
	Armament     []string `json:"armament,omitempty"`
	Source       string   `json:"source"`
	SourceURL    string   `json:"sourceUrl"`
	Category     string   `json:"category"`
}

// EquipmentRepository implements equipment.Repository on Postgres.
type EquipmentRepository struct {
	pool  Pool
	table string
	ids   equipment.IDGenerator
}

// NewEquipmentRepository constructs a repository on an existing pool.
func NewEquipmentRepository(pool Pool, table string, ids equipment.IDGenerator) (*EquipmentRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	table, err := checkTable(table, DefaultEquipmentTable)
	if err != nil {
		return nil, err
	}
	return &EquipmentRepository{pool: pool, table: table, ids: ids}, nil
}

// ExistsByNameAndCountry performs a case-insensitive lookup.
func (r *EquipmentRepository) ExistsByNameAndCountry(ctx context.Context, name, country string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE lower(name) = lower($1) AND lower(country) = lower($2))`, r.table)
	var exists bool
	if err := r.pool.QueryRow(ctx, query, name, country).Scan(&exists); err != nil {
		return false, fmt.Errorf("check equipment exists: %w", err)
	}
	return exists, nil
}

// Create inserts rec with a fresh UUID.
func (r *EquipmentRepository) Create(ctx context.Context, rec equipment.Record) (equipment.Stored, error) {
	id, err := r.ids.NewID()
	if err != nil {
		return equipment.Stored{}, fmt.Errorf("create equipment: %w", err)
	}
	specs, err := json.Marshal(specsOf(rec))
	if err != nil {
		return equipment.Stored{}, fmt.Errorf("marshal technical specs: %w", err)
	}
	var year *int
	if rec.Year != 0 {
		y := rec.Year
		year = &y
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	name,
	type,
	country,
	description,
	image_url,
	in_service,
	year,
	technical_specs
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)`, r.table)

	args := []any{
		id,
		rec.Name,
		rec.Type,
		rec.Country,
		nullable(rec.Description),
		nullable(rec.ImageURL),
		true,
		year,
		specs,
	}
	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return equipment.Stored{}, fmt.Errorf("insert equipment: %w", err)
	}
	return equipment.Stored{ID: id, Record: rec.Clone()}, nil
}

func specsOf(rec equipment.Record) technicalSpecs {
	return technicalSpecs{
		Manufacturer: rec.Manufacturer,
		Crew:         rec.Crew,
		Weight:       rec.Weight,
		Length:       rec.Length,
		Width:        rec.Width,
		Height:       rec.Height,
		Engine:       rec.Engine,
		Speed:        rec.Speed,
		Range:        rec.Range,
		Armor:        rec.Armor,
		Armament:     rec.Armament,
		Source:       rec.Source,
		SourceURL:    rec.SourceURL,
		Category:     rec.Category,
	}
}
