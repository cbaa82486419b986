// Package purchasing handles suppliers and purchase orders from draft
// through approval to receiving goods into inventory.
package purchasing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fms/internal/apperr"
	"fms/internal/audit"
	"fms/internal/auth"
	"fms/internal/database"
	"fms/internal/ledger"
	"fms/internal/metrics"
	"fms/internal/models"
	"fms/internal/validation"
)

// Statuses.
const (
	StatusDraft             = "draft"
	StatusSubmitted         = "submitted"
	StatusApproved          = "approved"
	StatusOrdered           = "ordered"
	StatusPartiallyReceived = "partially_received"
	StatusReceived          = "received"
	StatusCancelled         = "cancelled"
)

type Service struct {
	store   *database.Store
	ledger  *ledger.Ledger
	audit   audit.Sink
	metrics *metrics.Metrics
	log     *zap.Logger
}

func New(store *database.Store, l *ledger.Ledger, sink audit.Sink, m *metrics.Metrics, log *zap.Logger) *Service {
	if sink == nil {
		sink = audit.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, ledger: l, audit: sink, metrics: m, log: log}
}

type LineInput struct {
	ItemID    int64           `json:"item_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type CreateInput struct {
	SupplierID   int64       `json:"supplier_id"`
	OrderDate    string      `json:"order_date"`
	ExpectedDate string      `json:"expected_date"`
	Notes        string      `json:"notes"`
	Items        []LineInput `json:"items"`
}

type ReceiveLine struct {
	POItemID int64 `json:"po_item_id"`
	Quantity int64 `json:"quantity"`
}

type Filter struct {
	Status     string
	SupplierID int64
	Limit      int
	Offset     int
}

func (in CreateInput) validate() error {
	ve := &validation.ValidationErrors{}
	if in.SupplierID <= 0 {
		ve.Add("supplier_id", "is required")
	}
	validation.ValidateDate(ve, "order_date", in.OrderDate)
	validation.ValidateDate(ve, "expected_date", in.ExpectedDate)
	validation.ValidateMaxLength(ve, "notes", in.Notes, validation.MaxTextLength)
	if len(in.Items) == 0 {
		ve.Add("items", "at least one line is required")
	}
	for i, it := range in.Items {
		field := fmt.Sprintf("items[%d]", i)
		validation.ValidatePositiveInt(ve, field+".quantity", it.Quantity)
		validation.ValidateMaxQuantity(ve, field+".quantity", it.Quantity)
		validation.ValidateNonNegativeDecimal(ve, field+".unit_price", it.UnitPrice)
		validation.ValidateMaxPrice(ve, field+".unit_price", it.UnitPrice)
	}
	return ve.Err()
}

const headerColumns = `po.id, po.po_number, po.supplier_id, s.name, po.status, COALESCE(po.order_date,''), COALESCE(po.expected_date,''),
	po.total_amount, COALESCE(po.notes,''), po.created_by, po.approved_by, po.created_at, po.updated_at`

const headerFrom = " FROM purchase_orders po JOIN suppliers s ON s.id = po.supplier_id"

func scanHeader(s interface{ Scan(...any) error }) (models.PurchaseOrder, error) {
	var po models.PurchaseOrder
	var createdBy, approvedBy sql.NullInt64
	err := s.Scan(&po.ID, &po.PONumber, &po.SupplierID, &po.SupplierName, &po.Status, &po.OrderDate, &po.ExpectedDate,
		&po.TotalAmount, &po.Notes, &createdBy, &approvedBy, &po.CreatedAt, &po.UpdatedAt)
	po.CreatedBy = database.IP(createdBy)
	po.ApprovedBy = database.IP(approvedBy)
	return po, err
}

func loadHeader(ctx context.Context, q database.Querier, id int64) (models.PurchaseOrder, error) {
	po, err := scanHeader(q.QueryRowContext(ctx, "SELECT "+headerColumns+headerFrom+" WHERE po.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return po, apperr.NotFound("purchase_order", id)
	}
	if err != nil {
		return po, fmt.Errorf("load purchase order %d: %w", id, err)
	}
	return po, nil
}

func loadItems(ctx context.Context, q database.Querier, id int64) ([]models.PurchaseOrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT pi.id, pi.po_id, pi.item_id, i.sku, pi.quantity, pi.received_quantity, pi.unit_price, pi.line_total
		FROM purchase_order_items pi JOIN inventory_items i ON i.id = pi.item_id
		WHERE pi.po_id = ? ORDER BY pi.id`, id)
	if err != nil {
		return nil, fmt.Errorf("load purchase order %d items: %w", id, err)
	}
	defer rows.Close()
	out := []models.PurchaseOrderItem{}
	for rows.Next() {
		var it models.PurchaseOrderItem
		if err := rows.Scan(&it.ID, &it.POID, &it.ItemID, &it.SKU, &it.Quantity, &it.ReceivedQuantity, &it.UnitPrice, &it.LineTotal); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func load(ctx context.Context, q database.Querier, id int64) (models.PurchaseOrder, error) {
	po, err := loadHeader(ctx, q, id)
	if err != nil {
		return po, err
	}
	po.Items, err = loadItems(ctx, q, id)
	return po, err
}

func (s *Service) Get(ctx context.Context, id int64) (models.PurchaseOrder, error) {
	return load(ctx, s.store.DB, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]models.PurchaseOrder, int, error) {
	where := " WHERE 1=1"
	var args []any
	if f.Status != "" {
		where += " AND po.status = ?"
		args = append(args, f.Status)
	}
	if f.SupplierID != 0 {
		where += " AND po.supplier_id = ?"
		args = append(args, f.SupplierID)
	}
	var total int
	if err := s.store.DB.QueryRowContext(ctx, "SELECT COUNT(*)"+headerFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count purchase orders: %w", err)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.store.DB.QueryContext(ctx,
		"SELECT "+headerColumns+headerFrom+where+fmt.Sprintf(" ORDER BY po.id DESC LIMIT %d OFFSET %d", limit, f.Offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list purchase orders: %w", err)
	}
	defer rows.Close()
	out := []models.PurchaseOrder{}
	for rows.Next() {
		po, err := scanHeader(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, po)
	}
	return out, total, rows.Err()
}

// Create stores a draft purchase order. Line totals and the order total are
// computed here; callers never supply them.
func (s *Service) Create(ctx context.Context, actor models.Actor, in CreateInput) (models.PurchaseOrder, error) {
	if err := in.validate(); err != nil {
		return models.PurchaseOrder{}, err
	}

	var po models.PurchaseOrder
	err := s.store.InTx(ctx, func(q database.Querier) error {
		sp, err := getSupplier(ctx, q, in.SupplierID)
		if err != nil {
			return err
		}
		if !sp.Active {
			return apperr.Conflict("supplier", sp.ID, "supplier is inactive")
		}
		total := decimal.Zero
		for _, it := range in.Items {
			var n int
			if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM inventory_items WHERE id = ?", it.ItemID).Scan(&n); err != nil {
				return err
			}
			if n == 0 {
				return apperr.NotFound("inventory_item", it.ItemID)
			}
			total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(it.Quantity)))
		}

		number, err := database.NextNumber(ctx, q, "purchase_order", "PO")
		if err != nil {
			return err
		}
		now := database.Now()
		res, err := database.RunStatement(ctx, q, `
			INSERT INTO purchase_orders (po_number, supplier_id, status, order_date, expected_date, total_amount, notes, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			number, in.SupplierID, StatusDraft, in.OrderDate, in.ExpectedDate, total.Round(2), in.Notes, actor.UserID, now, now)
		if err != nil {
			return fmt.Errorf("insert purchase order: %w", err)
		}
		for _, it := range in.Items {
			lineTotal := it.UnitPrice.Mul(decimal.NewFromInt(it.Quantity)).Round(2)
			if _, err := q.ExecContext(ctx,
				"INSERT INTO purchase_order_items (po_id, item_id, quantity, unit_price, line_total) VALUES (?, ?, ?, ?, ?)",
				res.ID, it.ItemID, it.Quantity, it.UnitPrice, lineTotal); err != nil {
				return fmt.Errorf("insert purchase order item: %w", err)
			}
		}
		po, err = load(ctx, q, res.ID)
		return err
	})
	if err != nil {
		return models.PurchaseOrder{}, err
	}

	s.metrics.Status("purchase_order", StatusDraft)
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "purchase_orders", RecordID: po.ID, Action: audit.ActionCreate, NewValues: po, UserID: actor.UserID})
	s.log.Info("purchase order created", zap.String("number", po.PONumber), zap.String("total", po.TotalAmount.StringFixed(2)))
	return po, nil
}

// transition moves a PO from one of the from statuses to to. extra runs in
// the same transaction for status specific columns.
func (s *Service) transition(ctx context.Context, actor models.Actor, id int64, to, action string, from []string, extra func(q database.Querier) error) (models.PurchaseOrder, error) {
	var before, after models.PurchaseOrder
	err := s.store.InTx(ctx, func(q database.Querier) error {
		var err error
		if before, err = loadHeader(ctx, q, id); err != nil {
			return err
		}
		allowed := false
		for _, f := range from {
			if before.Status == f {
				allowed = true
			}
		}
		if !allowed {
			return apperr.Conflict("purchase_order", id, "cannot move from %s to %s", before.Status, to)
		}
		if _, err := q.ExecContext(ctx, "UPDATE purchase_orders SET status = ?, updated_at = ? WHERE id = ?", to, database.Now(), id); err != nil {
			return fmt.Errorf("update purchase order %d: %w", id, err)
		}
		if extra != nil {
			if err := extra(q); err != nil {
				return err
			}
		}
		after, err = load(ctx, q, id)
		return err
	})
	if err != nil {
		return models.PurchaseOrder{}, err
	}
	s.metrics.Status("purchase_order", to)
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "purchase_orders", RecordID: id, Action: action,
		OldValues: map[string]string{"status": before.Status}, NewValues: map[string]string{"status": to}, UserID: actor.UserID})
	return after, nil
}

func (s *Service) Submit(ctx context.Context, actor models.Actor, id int64) (models.PurchaseOrder, error) {
	return s.transition(ctx, actor, id, StatusSubmitted, audit.ActionUpdate, []string{StatusDraft}, nil)
}

// Approve needs the approval permission.
func (s *Service) Approve(ctx context.Context, actor models.Actor, id int64) (models.PurchaseOrder, error) {
	if err := auth.RequireApproval(actor, auth.ActionApprovePO); err != nil {
		return models.PurchaseOrder{}, err
	}
	return s.transition(ctx, actor, id, StatusApproved, audit.ActionApprove, []string{StatusSubmitted}, func(q database.Querier) error {
		_, err := q.ExecContext(ctx, "UPDATE purchase_orders SET approved_by = ? WHERE id = ?", actor.UserID, id)
		return err
	})
}

// MarkOrdered records that the PO went out to the supplier, stamping today
// as the order date when none was given.
func (s *Service) MarkOrdered(ctx context.Context, actor models.Actor, id int64) (models.PurchaseOrder, error) {
	return s.transition(ctx, actor, id, StatusOrdered, audit.ActionUpdate, []string{StatusApproved}, func(q database.Querier) error {
		_, err := q.ExecContext(ctx, "UPDATE purchase_orders SET order_date = date('now') WHERE id = ? AND COALESCE(order_date,'') = ''", id)
		return err
	})
}

func (s *Service) Cancel(ctx context.Context, actor models.Actor, id int64) (models.PurchaseOrder, error) {
	return s.transition(ctx, actor, id, StatusCancelled, audit.ActionCancel,
		[]string{StatusDraft, StatusSubmitted, StatusApproved, StatusOrdered}, nil)
}

// Receive books delivered goods. Each quantity must be positive and fit the
// open quantity of its line, counting earlier lines of the same batch. Stock
// is incremented with one "in" movement per line.
func (s *Service) Receive(ctx context.Context, actor models.Actor, id int64, lines []ReceiveLine, notes string) (models.PurchaseOrder, error) {
	if len(lines) == 0 {
		return models.PurchaseOrder{}, apperr.Invalid("purchase_order", id, "items", 1, "at least one line is required")
	}

	var before, after models.PurchaseOrder
	err := s.store.InTx(ctx, func(q database.Querier) error {
		var err error
		if before, err = load(ctx, q, id); err != nil {
			return err
		}
		if before.Status != StatusOrdered && before.Status != StatusPartiallyReceived {
			return apperr.Conflict("purchase_order", id, "cannot receive against a %s order", before.Status)
		}

		byID := make(map[int64]*models.PurchaseOrderItem, len(before.Items))
		for i := range before.Items {
			byID[before.Items[i].ID] = &before.Items[i]
		}
		received := map[int64]int64{}
		for _, l := range lines {
			it, ok := byID[l.POItemID]
			if !ok {
				return &apperr.NotFoundError{Entity: "purchase_order_item", ID: l.POItemID, Detail: fmt.Sprintf("not part of purchase order %d", id)}
			}
			if l.Quantity <= 0 {
				return apperr.Invalid("purchase_order_item", it.ID, "quantity", 0, "must be positive, got %d", l.Quantity)
			}
			open := it.Quantity - it.ReceivedQuantity - received[it.ID]
			if l.Quantity > open {
				s.metrics.Rejected("purchase_order")
				return apperr.Invalid("purchase_order_item", it.ID, "quantity", open, "receiving %d exceeds the open quantity", l.Quantity)
			}
			received[it.ID] += l.Quantity
		}

		now := database.Now()
		for _, l := range lines {
			it := byID[l.POItemID]
			if _, err := q.ExecContext(ctx,
				"INSERT INTO purchase_receipts (po_id, po_item_id, quantity, received_by, notes, created_at) VALUES (?, ?, ?, ?, ?, ?)",
				id, it.ID, l.Quantity, actor.UserID, notes, now); err != nil {
				return fmt.Errorf("insert receipt: %w", err)
			}
			if _, err := q.ExecContext(ctx, "UPDATE purchase_order_items SET received_quantity = received_quantity + ? WHERE id = ?",
				l.Quantity, it.ID); err != nil {
				return fmt.Errorf("update purchase order item %d: %w", it.ID, err)
			}
			if err := s.ledger.Increment(ctx, q, ledger.Entry{
				ItemID:        it.ItemID,
				Quantity:      l.Quantity,
				ReferenceType: ledger.RefPurchaseOrder,
				ReferenceID:   id,
				Notes:         fmt.Sprintf("received on %s", before.PONumber),
				UserID:        actor.UserID,
			}); err != nil {
				return err
			}
		}

		status := StatusReceived
		for _, it := range before.Items {
			if it.ReceivedQuantity+received[it.ID] < it.Quantity {
				status = StatusPartiallyReceived
				break
			}
		}
		if _, err := q.ExecContext(ctx, "UPDATE purchase_orders SET status = ?, updated_at = ? WHERE id = ?", status, now, id); err != nil {
			return fmt.Errorf("update purchase order %d: %w", id, err)
		}
		after, err = load(ctx, q, id)
		return err
	})
	if err != nil {
		return models.PurchaseOrder{}, err
	}

	s.metrics.Status("purchase_order", after.Status)
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "purchase_orders", RecordID: id, Action: audit.ActionReceive,
		OldValues: map[string]string{"status": before.Status}, NewValues: map[string]any{"status": after.Status, "lines": lines}, UserID: actor.UserID})
	return after, nil
}

// Receipts lists the receipt rows of a purchase order.
func (s *Service) Receipts(ctx context.Context, id int64) ([]models.PurchaseReceipt, error) {
	if _, err := loadHeader(ctx, s.store.DB, id); err != nil {
		return nil, err
	}
	rows, err := s.store.DB.QueryContext(ctx, `
		SELECT id, po_id, po_item_id, quantity, received_by, COALESCE(notes,''), created_at
		FROM purchase_receipts WHERE po_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("list receipts of %d: %w", id, err)
	}
	defer rows.Close()
	out := []models.PurchaseReceipt{}
	for rows.Next() {
		var r models.PurchaseReceipt
		var by sql.NullInt64
		if err := rows.Scan(&r.ID, &r.POID, &r.POItemID, &r.Quantity, &by, &r.Notes, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.ReceivedBy = database.IP(by)
		out = append(out, r)
	}
	return out, rows.Err()
}
