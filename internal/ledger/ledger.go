// Package ledger applies quantity changes to inventory items. Every change
// writes exactly one stock_movements row through the same Querier, so a
// caller running inside a transaction gets both or neither.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fms/internal/apperr"
	"fms/internal/database"
	"fms/internal/metrics"
	"fms/internal/models"
)

// Movement types.
const (
	In     = "in"
	Out    = "out"
	Adjust = "adjust"
)

// Reference types.
const (
	RefRequisition     = "requisition"
	RefProductionOrder = "production_order"
	RefPurchaseOrder   = "purchase_order"
	RefManual          = "manual"
	RefImport          = "import"
)

// Entry describes one quantity change.
type Entry struct {
	ItemID        int64
	Quantity      int64
	ReferenceType string
	ReferenceID   int64
	Notes         string
	UserID        int64
}

type Ledger struct {
	metrics *metrics.Metrics
}

func New(m *metrics.Metrics) *Ledger {
	return &Ledger{metrics: m}
}

func nullID(id int64) sql.NullInt64 {
	if id == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: id, Valid: true}
}

func (l *Ledger) record(ctx context.Context, q database.Querier, movementType string, e Entry, magnitude int64) error {
	ref := e.ReferenceType
	if ref == "" {
		ref = RefManual
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO stock_movements (item_id, movement_type, quantity, reference_type, reference_id, notes, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ItemID, movementType, magnitude, ref, nullID(e.ReferenceID), e.Notes, nullID(e.UserID), database.Now())
	if err != nil {
		return fmt.Errorf("record %s movement for item %d: %w", movementType, e.ItemID, err)
	}
	l.metrics.Movement(movementType, ref)
	return nil
}

// Increment adds e.Quantity to the item and logs an "in" movement.
func (l *Ledger) Increment(ctx context.Context, q database.Querier, e Entry) error {
	if e.Quantity <= 0 {
		return apperr.Invalid("inventory_item", e.ItemID, "quantity", 0, "increment must be positive, got %d", e.Quantity)
	}
	res, err := database.RunStatement(ctx, q,
		"UPDATE inventory_items SET quantity = quantity + ?, updated_at = ? WHERE id = ?",
		e.Quantity, database.Now(), e.ItemID)
	if err != nil {
		return fmt.Errorf("increment item %d: %w", e.ItemID, err)
	}
	if res.Changes == 0 {
		return apperr.NotFound("inventory_item", e.ItemID)
	}
	return l.record(ctx, q, In, e, e.Quantity)
}

// Decrement removes e.Quantity from the item and logs an "out" movement.
// It never drives the quantity below zero.
func (l *Ledger) Decrement(ctx context.Context, q database.Querier, e Entry) error {
	if e.Quantity <= 0 {
		return apperr.Invalid("inventory_item", e.ItemID, "quantity", 0, "decrement must be positive, got %d", e.Quantity)
	}
	res, err := database.RunStatement(ctx, q,
		"UPDATE inventory_items SET quantity = quantity - ?, updated_at = ? WHERE id = ? AND quantity >= ?",
		e.Quantity, database.Now(), e.ItemID, e.Quantity)
	if err != nil {
		return fmt.Errorf("decrement item %d: %w", e.ItemID, err)
	}
	if res.Changes == 0 {
		onHand, err := Quantity(ctx, q, e.ItemID)
		if err != nil {
			return err
		}
		return apperr.Invalid("inventory_item", e.ItemID, "quantity", onHand,
			"insufficient stock: requested %d", e.Quantity)
	}
	return l.record(ctx, q, Out, e, e.Quantity)
}

// Set overwrites the item quantity and logs an "adjust" movement carrying
// the magnitude of the change. A no-op change writes nothing.
func (l *Ledger) Set(ctx context.Context, q database.Querier, e Entry, newQuantity int64) (delta int64, err error) {
	if newQuantity < 0 {
		return 0, apperr.Invalid("inventory_item", e.ItemID, "quantity", 0, "must not be negative, got %d", newQuantity)
	}
	current, err := Quantity(ctx, q, e.ItemID)
	if err != nil {
		return 0, err
	}
	delta = newQuantity - current
	if delta == 0 {
		return 0, nil
	}
	if _, err := q.ExecContext(ctx,
		"UPDATE inventory_items SET quantity = ?, updated_at = ? WHERE id = ?",
		newQuantity, database.Now(), e.ItemID); err != nil {
		return 0, fmt.Errorf("adjust item %d: %w", e.ItemID, err)
	}
	if e.Notes == "" {
		e.Notes = fmt.Sprintf("adjusted from %d to %d", current, newQuantity)
	}
	magnitude := delta
	if magnitude < 0 {
		magnitude = -magnitude
	}
	return delta, l.record(ctx, q, Adjust, e, magnitude)
}

// Quantity returns the on-hand quantity of one item.
func Quantity(ctx context.Context, q database.Querier, itemID int64) (int64, error) {
	var n int64
	err := q.QueryRowContext(ctx, "SELECT quantity FROM inventory_items WHERE id = ?", itemID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.NotFound("inventory_item", itemID)
	}
	if err != nil {
		return 0, fmt.Errorf("load quantity of item %d: %w", itemID, err)
	}
	return n, nil
}

// Stock returns the on-hand quantity of each listed item. Missing items are
// reported as NotFoundError.
func Stock(ctx context.Context, q database.Querier, itemIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(itemIDs))
	for i, id := range itemIDs {
		args[i] = id
	}
	rows, err := q.QueryContext(ctx,
		"SELECT id, quantity FROM inventory_items WHERE id IN ("+database.Placeholders(len(args))+")", args...)
	if err != nil {
		return nil, fmt.Errorf("load stock: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range itemIDs {
		if _, ok := out[id]; !ok {
			return nil, apperr.NotFound("inventory_item", id)
		}
	}
	return out, nil
}

// HistoryFilter narrows History. Zero values match everything.
type HistoryFilter struct {
	ItemID        int64
	ReferenceType string
	ReferenceID   int64
	Limit         int
}

// History lists movements newest first.
func History(ctx context.Context, q database.Querier, f HistoryFilter) ([]models.StockMovement, error) {
	query := `SELECT m.id, m.item_id, i.sku, m.movement_type, m.quantity, m.reference_type, m.reference_id,
		COALESCE(m.notes,''), m.user_id, m.created_at
		FROM stock_movements m JOIN inventory_items i ON i.id = m.item_id WHERE 1=1`
	var args []any
	if f.ItemID != 0 {
		query += " AND m.item_id = ?"
		args = append(args, f.ItemID)
	}
	if f.ReferenceType != "" {
		query += " AND m.reference_type = ?"
		args = append(args, f.ReferenceType)
	}
	if f.ReferenceID != 0 {
		query += " AND m.reference_id = ?"
		args = append(args, f.ReferenceID)
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	query += fmt.Sprintf(" ORDER BY m.id DESC LIMIT %d", limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()

	out := []models.StockMovement{}
	for rows.Next() {
		var m models.StockMovement
		var refID, userID sql.NullInt64
		if err := rows.Scan(&m.ID, &m.ItemID, &m.SKU, &m.MovementType, &m.Quantity, &m.ReferenceType,
			&refID, &m.Notes, &userID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.ReferenceID = database.IP(refID)
		m.UserID = database.IP(userID)
		out = append(out, m)
	}
	return out, rows.Err()
}
