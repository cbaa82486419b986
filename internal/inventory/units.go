package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"fms/internal/apperr"
	"fms/internal/database"
	"fms/internal/models"
	"fms/internal/validation"
)

func requireUnit(ctx context.Context, q database.Querier, id int64) error {
	var n int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM units WHERE id = ?", id).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("unit", id)
	}
	return nil
}

func (s *Service) ListUnits(ctx context.Context) ([]models.Unit, error) {
	rows, err := s.store.DB.QueryContext(ctx, "SELECT id, name, abbreviation, created_at FROM units ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()
	units := []models.Unit{}
	for rows.Next() {
		var u models.Unit
		if err := rows.Scan(&u.ID, &u.Name, &u.Abbreviation, &u.CreatedAt); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func (s *Service) CreateUnit(ctx context.Context, name, abbreviation string) (models.Unit, error) {
	name = strings.TrimSpace(name)
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "name", name)
	validation.ValidateMaxLength(ve, "abbreviation", abbreviation, 16)
	if err := ve.Err(); err != nil {
		return models.Unit{}, err
	}

	var existing int64
	err := s.store.DB.QueryRowContext(ctx, "SELECT id FROM units WHERE name = ?", name).Scan(&existing)
	if err == nil {
		return models.Unit{}, apperr.Conflict("unit", name, "unit already exists")
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Unit{}, err
	}

	now := database.Now()
	res, err := database.RunStatement(ctx, s.store.DB,
		"INSERT INTO units (name, abbreviation, created_at) VALUES (?, ?, ?)", name, abbreviation, now)
	if err != nil {
		return models.Unit{}, fmt.Errorf("insert unit: %w", err)
	}
	return models.Unit{ID: res.ID, Name: name, Abbreviation: abbreviation, CreatedAt: now}, nil
}
