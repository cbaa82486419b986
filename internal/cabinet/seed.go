package cabinet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"fms/internal/apperr"
	"fms/internal/audit"
	"fms/internal/database"
	"fms/internal/models"
)

type seedRange struct {
	Default float64 `yaml:"default"`
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
}

func (r seedRange) toRange() Range {
	return Range{Default: decimal.NewFromFloat(r.Default), Min: decimal.NewFromFloat(r.Min), Max: decimal.NewFromFloat(r.Max)}
}

type seedMaterial struct {
	SKU               string  `yaml:"sku"`
	CostFactorPerSqft float64 `yaml:"cost_factor_per_sqft"`
}

type seedAccessory struct {
	SKU                string  `yaml:"sku"`
	QuantityPerCabinet int64   `yaml:"quantity_per_cabinet"`
	CostFactorPerUnit  float64 `yaml:"cost_factor_per_unit"`
}

type seedModel struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Category    string          `yaml:"category"`
	BaseCost    float64         `yaml:"base_cost"`
	Width       seedRange       `yaml:"width"`
	Height      seedRange       `yaml:"height"`
	Depth       seedRange       `yaml:"depth"`
	Materials   []seedMaterial  `yaml:"materials"`
	Accessories []seedAccessory `yaml:"accessories"`
}

type seedFile struct {
	Models []seedModel `yaml:"models"`
}

// SeedResult lists the model names a seed run created and skipped.
type SeedResult struct {
	Created []string `json:"created"`
	Skipped []string `json:"skipped"`
}

func itemBySKU(ctx context.Context, q database.Querier, sku string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, "SELECT id FROM inventory_items WHERE sku = ?", sku).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.NotFound("inventory_item", sku)
	}
	return id, err
}

// Seed loads cabinet models from a YAML catalog. Models whose name already
// exists are skipped; the rest are created in one transaction, so an unknown
// SKU or invalid model leaves the catalog untouched.
func (s *Service) Seed(ctx context.Context, r io.Reader) (SeedResult, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return SeedResult{}, fmt.Errorf("decode cabinet catalog: %w", err)
	}

	res := SeedResult{Created: []string{}, Skipped: []string{}}
	err := s.store.InTx(ctx, func(q database.Querier) error {
		for _, sm := range f.Models {
			in := ModelInput{
				Name:        sm.Name,
				Description: sm.Description,
				Category:    sm.Category,
				Width:       sm.Width.toRange(),
				Height:      sm.Height.toRange(),
				Depth:       sm.Depth.toRange(),
				BaseCost:    decimal.NewFromFloat(sm.BaseCost),
			}
			if err := in.validate(); err != nil {
				return fmt.Errorf("model %q: %w", sm.Name, err)
			}
			taken, err := nameTaken(ctx, q, in.Name, 0)
			if err != nil {
				return err
			}
			if taken {
				res.Skipped = append(res.Skipped, in.Name)
				continue
			}
			id, err := insertModel(ctx, q, in)
			if err != nil {
				return err
			}
			for _, mat := range sm.Materials {
				itemID, err := itemBySKU(ctx, q, mat.SKU)
				if err != nil {
					return fmt.Errorf("model %q: %w", sm.Name, err)
				}
				if _, err := q.ExecContext(ctx, "INSERT INTO cabinet_materials (model_id, item_id, cost_factor_per_sqft) VALUES (?, ?, ?)",
					id, itemID, decimal.NewFromFloat(mat.CostFactorPerSqft)); err != nil {
					return fmt.Errorf("model %q material %s: %w", sm.Name, mat.SKU, err)
				}
			}
			for _, acc := range sm.Accessories {
				itemID, err := itemBySKU(ctx, q, acc.SKU)
				if err != nil {
					return fmt.Errorf("model %q: %w", sm.Name, err)
				}
				if _, err := q.ExecContext(ctx, "INSERT INTO cabinet_accessories (model_id, item_id, quantity_per_cabinet, cost_factor_per_unit) VALUES (?, ?, ?, ?)",
					id, itemID, acc.QuantityPerCabinet, decimal.NewFromFloat(acc.CostFactorPerUnit)); err != nil {
					return fmt.Errorf("model %q accessory %s: %w", sm.Name, acc.SKU, err)
				}
			}
			res.Created = append(res.Created, in.Name)
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, err
	}
	if len(res.Created) > 0 {
		s.invalidate(ctx)
		s.audit.LogAuditTrail(ctx, audit.Entry{Table: "cabinet_models", Action: audit.ActionImport, NewValues: res, UserID: models.System.UserID})
	}
	s.log.Info("cabinet catalog seeded", zap.Int("created", len(res.Created)), zap.Int("skipped", len(res.Skipped)))
	return res, nil
}

// SeedFile runs Seed on the file at path.
func (s *Service) SeedFile(ctx context.Context, path string) (SeedResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return SeedResult{}, err
	}
	defer f.Close()
	return s.Seed(ctx, f)
}
