package bom

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"fms/internal/apperr"
	"fms/internal/database"
	"fms/internal/models"
)

// Cost is the rolled-up cost of one BOM batch of OutputQuantity units.
type Cost struct {
	Material decimal.Decimal `json:"material_cost"`
	Labor    decimal.Decimal `json:"labor_cost"`
	Total    decimal.Decimal `json:"total_cost"`
	PerUnit  decimal.Decimal `json:"per_unit_cost"`
}

func cycleError(id int64) error {
	return apperr.Invalid("bom", id, "sub_bom_id", nil, "sub-assembly structure contains a cycle")
}

func unitPrice(ctx context.Context, q database.Querier, itemID int64) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := q.QueryRowContext(ctx, "SELECT unit_price FROM inventory_items WHERE id = ?", itemID).Scan(&price)
	if err != nil {
		return price, fmt.Errorf("price of item %d: %w", itemID, err)
	}
	return price, nil
}

// LaborCost is Σ minutes/60 * hourly rate.
func LaborCost(ops []models.BOMOperation) decimal.Decimal {
	total := decimal.Zero
	for _, o := range ops {
		total = total.Add(o.EstimatedMinutes.Div(sixty).Mul(o.LaborRate))
	}
	return total
}

// Extended is a component quantity including its waste allowance.
func Extended(c models.BOMComponent) decimal.Decimal {
	return c.Quantity.Mul(decimal.NewFromInt(1).Add(c.WasteFactor))
}

func computeCost(ctx context.Context, q database.Querier, id int64, path map[int64]bool) (Cost, error) {
	if path[id] {
		return Cost{}, cycleError(id)
	}
	path[id] = true
	defer delete(path, id)

	b, err := Load(ctx, q, id)
	if err != nil {
		return Cost{}, err
	}
	material := decimal.Zero
	for _, c := range b.Components {
		var price decimal.Decimal
		if c.ItemID != nil {
			if price, err = unitPrice(ctx, q, *c.ItemID); err != nil {
				return Cost{}, err
			}
		} else {
			sub, err := computeCost(ctx, q, *c.SubBOMID, path)
			if err != nil {
				return Cost{}, err
			}
			price = sub.PerUnit
		}
		material = material.Add(Extended(c).Mul(price))
	}
	labor := LaborCost(b.Operations)
	total := material.Add(labor)
	return Cost{
		Material: material,
		Labor:    labor,
		Total:    total,
		PerUnit:  total.Div(decimal.NewFromInt(b.OutputQuantity)),
	}, nil
}

func rollUp(ctx context.Context, q database.Querier, id int64) (Cost, error) {
	c, err := computeCost(ctx, q, id, map[int64]bool{})
	if err != nil {
		return c, err
	}
	_, err = q.ExecContext(ctx, "UPDATE boms SET material_cost = ?, labor_cost = ?, total_cost = ? WHERE id = ?",
		c.Material.Round(4), c.Labor.Round(4), c.Total.Round(4), id)
	if err != nil {
		return c, fmt.Errorf("store bom %d cost: %w", id, err)
	}
	return c, nil
}

// RollUpCost recomputes and stores the material and labor cost of a BOM,
// pricing sub-assemblies by their own per-unit cost.
func (s *Service) RollUpCost(ctx context.Context, id int64) (models.BOM, Cost, error) {
	var b models.BOM
	var c Cost
	err := s.store.InTx(ctx, func(q database.Querier) error {
		var err error
		if c, err = rollUp(ctx, q, id); err != nil {
			return err
		}
		b, err = Load(ctx, q, id)
		return err
	})
	return b, c, err
}

func subBOMs(ctx context.Context, q database.Querier, id int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx, "SELECT sub_bom_id FROM bom_components WHERE bom_id = ? AND sub_bom_id IS NOT NULL", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var sub int64
		if err := rows.Scan(&sub); err != nil {
			return nil, err
		}
		ids = append(ids, sub)
	}
	return ids, rows.Err()
}

// checkNoCycle refuses to make child a component of parent when parent is
// reachable from child.
func checkNoCycle(ctx context.Context, q database.Querier, parent, child int64) error {
	seen := map[int64]bool{}
	queue := []int64{child}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id == parent {
			return cycleError(parent)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		next, err := subBOMs(ctx, q, id)
		if err != nil {
			return fmt.Errorf("walk bom %d: %w", id, err)
		}
		queue = append(queue, next...)
	}
	return nil
}

// Requirement is one line of a multi-level explosion. Level 1 lines belong
// to the exploded BOM itself.
type Requirement struct {
	Level    int             `json:"level"`
	BOMID    int64           `json:"bom_id"`
	ItemID   *int64          `json:"item_id,omitempty"`
	SubBOMID *int64          `json:"sub_bom_id,omitempty"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Explode lists what it takes to build quantity units of the BOM, walking
// every sub-assembly depth first.
func (s *Service) Explode(ctx context.Context, id int64, quantity decimal.Decimal) ([]Requirement, error) {
	if !quantity.IsPositive() {
		return nil, apperr.Invalid("bom", id, "quantity", 0, "must be positive")
	}
	out := []Requirement{}
	err := explode(ctx, s.store.DB, id, quantity, 1, map[int64]bool{}, &out)
	return out, err
}

func explode(ctx context.Context, q database.Querier, id int64, quantity decimal.Decimal, level int, path map[int64]bool, out *[]Requirement) error {
	if path[id] {
		return cycleError(id)
	}
	path[id] = true
	defer delete(path, id)

	b, err := Load(ctx, q, id)
	if err != nil {
		return err
	}
	batches := quantity.Div(decimal.NewFromInt(b.OutputQuantity))
	for _, c := range b.Components {
		need := Extended(c).Mul(batches)
		*out = append(*out, Requirement{Level: level, BOMID: id, ItemID: c.ItemID, SubBOMID: c.SubBOMID, Quantity: need})
		if c.SubBOMID != nil {
			if err := explode(ctx, q, *c.SubBOMID, need, level+1, path, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// LeafTotals sums the item requirements of an explosion by item id.
func LeafTotals(reqs []Requirement) map[int64]decimal.Decimal {
	totals := map[int64]decimal.Decimal{}
	for _, r := range reqs {
		if r.ItemID == nil {
			continue
		}
		totals[*r.ItemID] = totals[*r.ItemID].Add(r.Quantity)
	}
	return totals
}
