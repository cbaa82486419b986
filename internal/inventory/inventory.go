// Package inventory manages inventory items, units and workbook imports.
// Quantity changes always go through the ledger.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fms/internal/apperr"
	"fms/internal/audit"
	"fms/internal/database"
	"fms/internal/ledger"
	"fms/internal/models"
	"fms/internal/validation"
)

type Service struct {
	store  *database.Store
	ledger *ledger.Ledger
	audit  audit.Sink
	log    *zap.Logger
}

func New(store *database.Store, l *ledger.Ledger, sink audit.Sink, log *zap.Logger) *Service {
	if sink == nil {
		sink = audit.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, ledger: l, audit: sink, log: log}
}

// ItemInput is the writable part of an inventory item. A nil Quantity
// leaves the on-hand quantity alone on update and starts at zero on create.
type ItemInput struct {
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	ItemType    string          `json:"item_type"`
	UnitID      *int64          `json:"unit_id"`
	Quantity    *int64          `json:"quantity"`
	MinQuantity int64           `json:"min_quantity"`
	MaxQuantity int64           `json:"max_quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Location    string          `json:"location"`
}

func (in ItemInput) validate() error {
	ve := &validation.ValidationErrors{}
	validation.ValidateSKU(ve, "sku", in.SKU)
	validation.RequireField(ve, "name", in.Name)
	validation.RequireField(ve, "item_type", in.ItemType)
	validation.ValidateEnum(ve, "item_type", in.ItemType, validation.ValidItemTypes)
	if in.Quantity != nil {
		validation.ValidateNonNegativeInt(ve, "quantity", *in.Quantity)
		validation.ValidateMaxQuantity(ve, "quantity", *in.Quantity)
	}
	validation.ValidateNonNegativeInt(ve, "min_quantity", in.MinQuantity)
	validation.ValidateNonNegativeInt(ve, "max_quantity", in.MaxQuantity)
	if in.MaxQuantity > 0 && in.MaxQuantity < in.MinQuantity {
		ve.Add("max_quantity", "must be greater than or equal to min_quantity")
	}
	validation.ValidateNonNegativeDecimal(ve, "unit_price", in.UnitPrice)
	validation.ValidateMaxPrice(ve, "unit_price", in.UnitPrice)
	validation.ValidateMaxLength(ve, "description", in.Description, validation.MaxTextLength)
	return ve.Err()
}

const itemColumns = `i.id, i.sku, i.name, COALESCE(i.description,''), i.item_type, i.unit_id, COALESCE(u.name,''),
	i.quantity, i.min_quantity, i.max_quantity, i.unit_price, COALESCE(i.location,''), i.created_at, i.updated_at`

const itemFrom = ` FROM inventory_items i LEFT JOIN units u ON u.id = i.unit_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (models.InventoryItem, error) {
	var it models.InventoryItem
	var unitID sql.NullInt64
	err := s.Scan(&it.ID, &it.SKU, &it.Name, &it.Description, &it.ItemType, &unitID, &it.UnitName,
		&it.Quantity, &it.MinQuantity, &it.MaxQuantity, &it.UnitPrice, &it.Location, &it.CreatedAt, &it.UpdatedAt)
	it.UnitID = database.IP(unitID)
	return it, err
}

func getItem(ctx context.Context, q database.Querier, id int64) (models.InventoryItem, error) {
	it, err := scanItem(q.QueryRowContext(ctx, "SELECT "+itemColumns+itemFrom+" WHERE i.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return it, apperr.NotFound("inventory_item", id)
	}
	if err != nil {
		return it, fmt.Errorf("load inventory item %d: %w", id, err)
	}
	return it, nil
}

func (s *Service) Get(ctx context.Context, id int64) (models.InventoryItem, error) {
	return getItem(ctx, s.store.DB, id)
}

// GetBySKU looks an item up by its SKU.
func (s *Service) GetBySKU(ctx context.Context, sku string) (models.InventoryItem, error) {
	it, err := scanItem(s.store.DB.QueryRowContext(ctx, "SELECT "+itemColumns+itemFrom+" WHERE i.sku = ?", sku))
	if errors.Is(err, sql.ErrNoRows) {
		return it, apperr.NotFound("inventory_item", sku)
	}
	return it, err
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	ItemType string
	LowStock bool
	Search   string
	Limit    int
	Offset   int
}

// List returns items ordered by SKU, plus the total match count.
func (s *Service) List(ctx context.Context, f Filter) ([]models.InventoryItem, int, error) {
	where := " WHERE 1=1"
	var args []any
	if f.ItemType != "" {
		where += " AND i.item_type = ?"
		args = append(args, f.ItemType)
	}
	if f.LowStock {
		where += " AND i.min_quantity > 0 AND i.quantity <= i.min_quantity"
	}
	if f.Search != "" {
		where += " AND (i.sku LIKE ? OR i.name LIKE ? OR i.description LIKE ?)"
		like := "%" + f.Search + "%"
		args = append(args, like, like, like)
	}

	var total int
	if err := s.store.DB.QueryRowContext(ctx, "SELECT COUNT(*)"+itemFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count inventory items: %w", err)
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := "SELECT " + itemColumns + itemFrom + where + fmt.Sprintf(" ORDER BY i.sku LIMIT %d OFFSET %d", limit, f.Offset)
	rows, err := s.store.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list inventory items: %w", err)
	}
	defer rows.Close()

	items := []models.InventoryItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, it)
	}
	return items, total, rows.Err()
}

func skuTaken(ctx context.Context, q database.Querier, sku string, exceptID int64) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM inventory_items WHERE sku = ? AND id != ?", sku, exceptID).Scan(&n)
	return n > 0, err
}

// Create inserts an item. A non-zero starting quantity is booked as an
// adjust movement.
func (s *Service) Create(ctx context.Context, actor models.Actor, in ItemInput) (models.InventoryItem, error) {
	in.SKU = strings.TrimSpace(in.SKU)
	if err := in.validate(); err != nil {
		return models.InventoryItem{}, err
	}

	var item models.InventoryItem
	err := s.store.InTx(ctx, func(q database.Querier) error {
		id, err := insertItem(ctx, q, in)
		if err != nil {
			return err
		}
		if in.Quantity != nil && *in.Quantity > 0 {
			if _, err := s.ledger.Set(ctx, q, ledger.Entry{
				ItemID: id, ReferenceType: ledger.RefManual, Notes: "opening balance", UserID: actor.UserID,
			}, *in.Quantity); err != nil {
				return err
			}
		}
		item, err = getItem(ctx, q, id)
		return err
	})
	if err != nil {
		return models.InventoryItem{}, err
	}

	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "inventory_items", RecordID: item.ID, Action: audit.ActionCreate, NewValues: item, UserID: actor.UserID})
	return item, nil
}

func insertItem(ctx context.Context, q database.Querier, in ItemInput) (int64, error) {
	taken, err := skuTaken(ctx, q, in.SKU, 0)
	if err != nil {
		return 0, err
	}
	if taken {
		return 0, apperr.Conflict("inventory_item", in.SKU, "sku already exists")
	}
	if in.UnitID != nil {
		if err := requireUnit(ctx, q, *in.UnitID); err != nil {
			return 0, err
		}
	}
	now := database.Now()
	res, err := database.RunStatement(ctx, q,
		`INSERT INTO inventory_items (sku, name, description, item_type, unit_id, quantity, min_quantity, max_quantity, unit_price, location, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?)`,
		in.SKU, in.Name, in.Description, in.ItemType, database.NI(in.UnitID), in.MinQuantity, in.MaxQuantity, in.UnitPrice, in.Location, now, now)
	if err != nil {
		return 0, fmt.Errorf("insert inventory item: %w", err)
	}
	return res.ID, nil
}

// Update rewrites the item. A changed quantity is booked as an adjust
// movement.
func (s *Service) Update(ctx context.Context, actor models.Actor, id int64, in ItemInput) (models.InventoryItem, error) {
	in.SKU = strings.TrimSpace(in.SKU)
	if err := in.validate(); err != nil {
		return models.InventoryItem{}, err
	}

	var before, after models.InventoryItem
	err := s.store.InTx(ctx, func(q database.Querier) error {
		var err error
		before, err = getItem(ctx, q, id)
		if err != nil {
			return err
		}
		taken, err := skuTaken(ctx, q, in.SKU, id)
		if err != nil {
			return err
		}
		if taken {
			return apperr.Conflict("inventory_item", in.SKU, "sku already exists")
		}
		if in.UnitID != nil {
			if err := requireUnit(ctx, q, *in.UnitID); err != nil {
				return err
			}
		}
		if _, err := q.ExecContext(ctx,
			`UPDATE inventory_items SET sku=?, name=?, description=?, item_type=?, unit_id=?, min_quantity=?, max_quantity=?,
			unit_price=?, location=?, updated_at=? WHERE id=?`,
			in.SKU, in.Name, in.Description, in.ItemType, database.NI(in.UnitID), in.MinQuantity, in.MaxQuantity,
			in.UnitPrice, in.Location, database.Now(), id); err != nil {
			return fmt.Errorf("update inventory item %d: %w", id, err)
		}
		if in.Quantity != nil {
			if _, err := s.ledger.Set(ctx, q, ledger.Entry{
				ItemID: id, ReferenceType: ledger.RefManual, UserID: actor.UserID,
			}, *in.Quantity); err != nil {
				return err
			}
		}
		after, err = getItem(ctx, q, id)
		return err
	})
	if err != nil {
		return models.InventoryItem{}, err
	}

	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "inventory_items", RecordID: id, Action: audit.ActionUpdate, OldValues: before, NewValues: after, UserID: actor.UserID})
	return after, nil
}

// Adjust sets the on-hand quantity of an item, logging an adjust movement.
func (s *Service) Adjust(ctx context.Context, actor models.Actor, id, quantity int64, notes string) (models.InventoryItem, error) {
	var before, after models.InventoryItem
	err := s.store.InTx(ctx, func(q database.Querier) error {
		var err error
		if before, err = getItem(ctx, q, id); err != nil {
			return err
		}
		if _, err := s.ledger.Set(ctx, q, ledger.Entry{
			ItemID: id, ReferenceType: ledger.RefManual, Notes: notes, UserID: actor.UserID,
		}, quantity); err != nil {
			return err
		}
		after, err = getItem(ctx, q, id)
		return err
	})
	if err != nil {
		return models.InventoryItem{}, err
	}
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "inventory_items", RecordID: id, Action: audit.ActionUpdate,
		OldValues: map[string]int64{"quantity": before.Quantity}, NewValues: map[string]int64{"quantity": after.Quantity}, UserID: actor.UserID})
	return after, nil
}

// itemReferences are the rows that keep an item from being deleted.
var itemReferences = []struct{ Table, Col, Label string }{
	{"requisition_items", "item_id", "requisition"},
	{"bom_components", "item_id", "bill of materials"},
	{"boms", "product_item_id", "bill of materials"},
	{"purchase_order_items", "item_id", "purchase order"},
	{"production_order_items", "item_id", "production order"},
	{"production_orders", "product_item_id", "production order"},
	{"cabinet_materials", "item_id", "cabinet model"},
	{"cabinet_accessories", "item_id", "cabinet model"},
	{"kitchen_project_cabinets", "material_id", "kitchen project"},
}

// Delete removes an item and its movement history. Items still referenced
// by documents are refused with a ConflictError.
func (s *Service) Delete(ctx context.Context, actor models.Actor, id int64) error {
	var before models.InventoryItem
	err := s.store.InTx(ctx, func(q database.Querier) error {
		var err error
		if before, err = getItem(ctx, q, id); err != nil {
			return err
		}
		for _, ref := range itemReferences {
			var n int
			if err := q.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", ref.Table, ref.Col), id).Scan(&n); err != nil {
				return fmt.Errorf("check %s references: %w", ref.Table, err)
			}
			if n > 0 {
				return apperr.Conflict("inventory_item", id, "referenced by %d %s row(s)", n, ref.Label)
			}
		}
		if _, err := q.ExecContext(ctx, "DELETE FROM stock_movements WHERE item_id = ?", id); err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, "DELETE FROM inventory_items WHERE id = ?", id)
		return err
	})
	if err != nil {
		return err
	}
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "inventory_items", RecordID: id, Action: audit.ActionDelete, OldValues: before, UserID: actor.UserID})
	return nil
}

// History lists the movements of one item.
func (s *Service) History(ctx context.Context, id int64, limit int) ([]models.StockMovement, error) {
	if _, err := getItem(ctx, s.store.DB, id); err != nil {
		return nil, err
	}
	return ledger.History(ctx, s.store.DB, ledger.HistoryFilter{ItemID: id, Limit: limit})
}
