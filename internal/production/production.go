// Package production runs production orders built from BOMs: requirement
// planning, material issuance, routing operations and completion.
package production

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fms/internal/allocation"
	"fms/internal/apperr"
	"fms/internal/audit"
	"fms/internal/bom"
	"fms/internal/database"
	"fms/internal/ledger"
	"fms/internal/metrics"
	"fms/internal/models"
	"fms/internal/validation"
	"fms/internal/websocket"
)

// Order statuses.
const (
	StatusDraft      = "draft"
	StatusPlanned    = "planned"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Operation statuses.
const (
	OpPending    = "pending"
	OpInProgress = "in_progress"
	OpCompleted  = "completed"
	OpSkipped    = "skipped"
)

const entityItem = "production_order_item"

var sixty = decimal.NewFromInt(60)

type Service struct {
	store   *database.Store
	ledger  *ledger.Ledger
	audit   audit.Sink
	metrics *metrics.Metrics
	hub     *websocket.Hub
	log     *zap.Logger
}

func New(store *database.Store, l *ledger.Ledger, sink audit.Sink, m *metrics.Metrics, hub *websocket.Hub, log *zap.Logger) *Service {
	if sink == nil {
		sink = audit.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, ledger: l, audit: sink, metrics: m, hub: hub, log: log}
}

type CreateInput struct {
	BOMID     int64  `json:"bom_id"`
	Quantity  int64  `json:"quantity"`
	Priority  string `json:"priority"`
	StartDate string `json:"start_date"`
	DueDate   string `json:"due_date"`
	Notes     string `json:"notes"`
}

type IssueLine struct {
	ProductionOrderItemID int64 `json:"production_order_item_id"`
	Quantity              int64 `json:"quantity"`
}

type CompleteInput struct {
	QuantityProduced   int64  `json:"quantity_produced"`
	QualityCheckPassed bool   `json:"quality_check_passed"`
	Notes              string `json:"notes"`
}

type Filter struct {
	Status   string
	Priority string
	BOMID    int64
	Limit    int
	Offset   int
}

// The last column is the completion precondition: an in-progress order
// whose operations are all terminal, or a planned order with none.
const headerColumns = `id, order_number, bom_id, product_item_id, quantity, status, priority, planned_cost, actual_cost,
	COALESCE(start_date,''), COALESCE(due_date,''), COALESCE(notes,''), created_by, started_at, completed_at, created_at, updated_at,
	CASE status
		WHEN 'in_progress' THEN NOT EXISTS (SELECT 1 FROM production_order_operations op
			WHERE op.order_id = production_orders.id AND op.status NOT IN ('completed','skipped'))
		WHEN 'planned' THEN NOT EXISTS (SELECT 1 FROM production_order_operations op
			WHERE op.order_id = production_orders.id)
		ELSE 0 END`

func scanHeader(s interface{ Scan(...any) error }) (models.ProductionOrder, error) {
	var o models.ProductionOrder
	var product, createdBy sql.NullInt64
	var started, completed sql.NullString
	err := s.Scan(&o.ID, &o.OrderNumber, &o.BOMID, &product, &o.Quantity, &o.Status, &o.Priority, &o.PlannedCost, &o.ActualCost,
		&o.StartDate, &o.DueDate, &o.Notes, &createdBy, &started, &completed, &o.CreatedAt, &o.UpdatedAt, &o.ReadyForCompletion)
	o.ProductItemID = database.IP(product)
	o.CreatedBy = database.IP(createdBy)
	o.StartedAt = database.SP(started)
	o.CompletedAt = database.SP(completed)
	return o, err
}

func loadHeader(ctx context.Context, q database.Querier, id int64) (models.ProductionOrder, error) {
	o, err := scanHeader(q.QueryRowContext(ctx, "SELECT "+headerColumns+" FROM production_orders WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return o, apperr.NotFound("production_order", id)
	}
	if err != nil {
		return o, fmt.Errorf("load production order %d: %w", id, err)
	}
	return o, nil
}

func loadItems(ctx context.Context, q database.Querier, id int64) ([]models.ProductionOrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT p.id, p.order_id, p.item_id, i.sku, p.required_quantity, p.issued_quantity
		FROM production_order_items p JOIN inventory_items i ON i.id = p.item_id
		WHERE p.order_id = ? ORDER BY p.id`, id)
	if err != nil {
		return nil, fmt.Errorf("load production order %d items: %w", id, err)
	}
	defer rows.Close()
	out := []models.ProductionOrderItem{}
	for rows.Next() {
		var it models.ProductionOrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ItemID, &it.SKU, &it.RequiredQuantity, &it.IssuedQuantity); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func loadOperations(ctx context.Context, q database.Querier, id int64) ([]models.ProductionOrderOperation, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, sequence, name, planned_minutes, labor_rate, status, operator_id,
			COALESCE(notes,''), started_at, completed_at
		FROM production_order_operations WHERE order_id = ? ORDER BY sequence, id`, id)
	if err != nil {
		return nil, fmt.Errorf("load production order %d operations: %w", id, err)
	}
	defer rows.Close()
	out := []models.ProductionOrderOperation{}
	for rows.Next() {
		var op models.ProductionOrderOperation
		var operator sql.NullInt64
		var started, completed sql.NullString
		if err := rows.Scan(&op.ID, &op.OrderID, &op.Sequence, &op.Name, &op.PlannedMinutes, &op.LaborRate, &op.Status,
			&operator, &op.Notes, &started, &completed); err != nil {
			return nil, err
		}
		op.OperatorID = database.IP(operator)
		op.StartedAt = database.SP(started)
		op.CompletedAt = database.SP(completed)
		out = append(out, op)
	}
	return out, rows.Err()
}

func load(ctx context.Context, q database.Querier, id int64) (models.ProductionOrder, error) {
	o, err := loadHeader(ctx, q, id)
	if err != nil {
		return o, err
	}
	if o.Items, err = loadItems(ctx, q, id); err != nil {
		return o, err
	}
	o.Operations, err = loadOperations(ctx, q, id)
	return o, err
}

func (s *Service) Get(ctx context.Context, id int64) (models.ProductionOrder, error) {
	return load(ctx, s.store.DB, id)
}

// List returns order headers, most urgent due dates first.
func (s *Service) List(ctx context.Context, f Filter) ([]models.ProductionOrder, int, error) {
	where := " WHERE 1=1"
	var args []any
	if f.Status != "" {
		where += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		where += " AND priority = ?"
		args = append(args, f.Priority)
	}
	if f.BOMID != 0 {
		where += " AND bom_id = ?"
		args = append(args, f.BOMID)
	}
	var total int
	if err := s.store.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM production_orders"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count production orders: %w", err)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := "SELECT " + headerColumns + " FROM production_orders" + where +
		fmt.Sprintf(" ORDER BY CASE WHEN due_date = '' THEN 1 ELSE 0 END, due_date, id DESC LIMIT %d OFFSET %d", limit, f.Offset)
	rows, err := s.store.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list production orders: %w", err)
	}
	defer rows.Close()
	out := []models.ProductionOrder{}
	for rows.Next() {
		o, err := scanHeader(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

func (in CreateInput) validate() error {
	ve := &validation.ValidationErrors{}
	validation.ValidatePositiveInt(ve, "quantity", in.Quantity)
	if in.Quantity > validation.MaxOrderQty {
		ve.Add("quantity", fmt.Sprintf("must not exceed %d", validation.MaxOrderQty))
	}
	validation.ValidateEnum(ve, "priority", in.Priority, validation.ValidProductionPriorities)
	validation.ValidateDate(ve, "start_date", in.StartDate)
	validation.ValidateDate(ve, "due_date", in.DueDate)
	validation.ValidateMaxLength(ve, "notes", in.Notes, validation.MaxTextLength)
	return ve.Err()
}

// Requirement is the planned draw of one inventory item.
type Requirement struct {
	ItemID   int64 `json:"item_id"`
	Quantity int64 `json:"quantity"`
}

// Requirements computes ceil(per * quantity / output * (1 + waste)) for every
// component of b. A sub-assembly component draws the sub-BOM's product item.
// Components drawing the same item are merged, first occurrence first.
func Requirements(ctx context.Context, q database.Querier, b models.BOM, quantity int64) ([]Requirement, error) {
	qty, output := decimal.NewFromInt(quantity), decimal.NewFromInt(b.OutputQuantity)
	index := map[int64]int{}
	var out []Requirement
	for _, c := range b.Components {
		itemID, err := componentItem(ctx, q, c)
		if err != nil {
			return nil, err
		}
		need := bom.Extended(c).Mul(qty).Div(output).Ceil().IntPart()
		if i, ok := index[itemID]; ok {
			out[i].Quantity += need
			continue
		}
		index[itemID] = len(out)
		out = append(out, Requirement{ItemID: itemID, Quantity: need})
	}
	return out, nil
}

func componentItem(ctx context.Context, q database.Querier, c models.BOMComponent) (int64, error) {
	if c.ItemID != nil {
		return *c.ItemID, nil
	}
	var product sql.NullInt64
	err := q.QueryRowContext(ctx, "SELECT product_item_id FROM boms WHERE id = ?", *c.SubBOMID).Scan(&product)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.NotFound("bom", *c.SubBOMID)
	}
	if err != nil {
		return 0, err
	}
	if !product.Valid {
		return 0, apperr.Invalid("bom", *c.SubBOMID, "product_item_id", nil, "sub-assembly has no product item to draw")
	}
	return product.Int64, nil
}

// CreateFromBOM plans a draft order: material requirements, the routing
// scaled to the order quantity, and the planned cost.
func (s *Service) CreateFromBOM(ctx context.Context, actor models.Actor, in CreateInput) (models.ProductionOrder, error) {
	if err := in.validate(); err != nil {
		return models.ProductionOrder{}, err
	}
	if in.Priority == "" {
		in.Priority = "normal"
	}

	var order models.ProductionOrder
	err := s.store.InTx(ctx, func(q database.Querier) error {
		b, err := bom.Load(ctx, q, in.BOMID)
		if err != nil {
			return err
		}
		if b.Status != bom.StatusActive && b.Status != bom.StatusDraft {
			return apperr.Conflict("bom", b.ID, "cannot produce from a %s BOM", b.Status)
		}
		reqs, err := Requirements(ctx, q, b, in.Quantity)
		if err != nil {
			return err
		}

		planned := decimal.Zero
		for _, r := range reqs {
			var price decimal.Decimal
			if err := q.QueryRowContext(ctx, "SELECT unit_price FROM inventory_items WHERE id = ?", r.ItemID).Scan(&price); err != nil {
				return fmt.Errorf("price of item %d: %w", r.ItemID, err)
			}
			planned = planned.Add(price.Mul(decimal.NewFromInt(r.Quantity)))
		}
		qty := decimal.NewFromInt(in.Quantity)
		for _, op := range b.Operations {
			planned = planned.Add(op.EstimatedMinutes.Mul(qty).Div(sixty).Mul(op.LaborRate))
		}

		number, err := database.NextNumber(ctx, q, "production_order", "PRD")
		if err != nil {
			return err
		}
		now := database.Now()
		res, err := database.RunStatement(ctx, q, `
			INSERT INTO production_orders (order_number, bom_id, product_item_id, quantity, status, priority, planned_cost,
				start_date, due_date, notes, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			number, b.ID, database.NI(b.ProductItemID), in.Quantity, StatusDraft, in.Priority, planned.Round(2),
			in.StartDate, in.DueDate, in.Notes, actor.UserID, now, now)
		if err != nil {
			return fmt.Errorf("insert production order: %w", err)
		}
		for _, r := range reqs {
			if _, err := q.ExecContext(ctx,
				"INSERT INTO production_order_items (order_id, item_id, required_quantity) VALUES (?, ?, ?)",
				res.ID, r.ItemID, r.Quantity); err != nil {
				return fmt.Errorf("insert production order item: %w", err)
			}
		}
		for _, op := range b.Operations {
			if _, err := q.ExecContext(ctx, `
				INSERT INTO production_order_operations (order_id, sequence, name, planned_minutes, labor_rate, status)
				VALUES (?, ?, ?, ?, ?, ?)`,
				res.ID, op.Sequence, op.Name, op.EstimatedMinutes.Mul(qty), op.LaborRate, OpPending); err != nil {
				return fmt.Errorf("insert production order operation: %w", err)
			}
		}
		order, err = load(ctx, q, res.ID)
		return err
	})
	if err != nil {
		return models.ProductionOrder{}, err
	}

	s.metrics.Status("production_order", StatusDraft)
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "production_orders", RecordID: order.ID, Action: audit.ActionCreate, NewValues: order, UserID: actor.UserID})
	s.log.Info("production order created", zap.String("number", order.OrderNumber), zap.Int64("bom_id", in.BOMID), zap.Int64("quantity", in.Quantity))
	return order, nil
}

// transition moves an order from one of the from statuses to to.
func (s *Service) transition(ctx context.Context, actor models.Actor, id int64, to, action string, from ...string) (models.ProductionOrder, error) {
	var before, after models.ProductionOrder
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
			return apperr.Conflict("production_order", id, "cannot move from %s to %s", before.Status, to)
		}
		if _, err := q.ExecContext(ctx, "UPDATE production_orders SET status = ?, updated_at = ? WHERE id = ?", to, database.Now(), id); err != nil {
			return fmt.Errorf("update production order %d: %w", id, err)
		}
		after, err = load(ctx, q, id)
		return err
	})
	if err != nil {
		return models.ProductionOrder{}, err
	}
	s.metrics.Status("production_order", to)
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "production_orders", RecordID: id, Action: action,
		OldValues: map[string]string{"status": before.Status}, NewValues: map[string]string{"status": to}, UserID: actor.UserID})
	return after, nil
}

// Plan releases a draft order.
func (s *Service) Plan(ctx context.Context, actor models.Actor, id int64) (models.ProductionOrder, error) {
	return s.transition(ctx, actor, id, StatusPlanned, audit.ActionUpdate, StatusDraft)
}

// Cancel stops an order that has not completed. Issued materials stay issued.
func (s *Service) Cancel(ctx context.Context, actor models.Actor, id int64) (models.ProductionOrder, error) {
	return s.transition(ctx, actor, id, StatusCancelled, audit.ActionCancel, StatusDraft, StatusPlanned, StatusInProgress)
}

// IssueMaterials draws required materials from stock. The whole batch is
// validated against the remaining requirement and the stock on hand before
// anything is written.
func (s *Service) IssueMaterials(ctx context.Context, actor models.Actor, id int64, lines []IssueLine) (models.ProductionOrder, error) {
	var after models.ProductionOrder
	err := s.store.InTx(ctx, func(q database.Querier) error {
		o, err := load(ctx, q, id)
		if err != nil {
			return err
		}
		if o.Status != StatusPlanned && o.Status != StatusInProgress {
			return apperr.Conflict("production_order", id, "cannot issue materials to a %s order", o.Status)
		}

		byID := make(map[int64]allocation.Line, len(o.Items))
		itemIDs := make([]int64, 0, len(o.Items))
		for _, it := range o.Items {
			byID[it.ID] = allocation.Line{
				ID:        it.ID,
				ItemID:    it.ItemID,
				Requested: it.RequiredQuantity,
				Approved:  it.RequiredQuantity,
				Issued:    it.IssuedQuantity,
			}
			itemIDs = append(itemIDs, it.ItemID)
		}
		stock, err := ledger.Stock(ctx, q, itemIDs)
		if err != nil {
			return err
		}
		requests := make([]allocation.Request, len(lines))
		for i, l := range lines {
			requests[i] = allocation.Request{LineID: l.ProductionOrderItemID, Quantity: l.Quantity}
		}
		plan, err := allocation.PlanIssuance(entityItem, byID, requests, stock)
		if err != nil {
			s.metrics.Rejected("production_order")
			return err
		}

		for _, a := range plan {
			if _, err := q.ExecContext(ctx, "UPDATE production_order_items SET issued_quantity = ? WHERE id = ?", a.NewIssued, a.Line.ID); err != nil {
				return fmt.Errorf("update production order item %d: %w", a.Line.ID, err)
			}
			if err := s.ledger.Decrement(ctx, q, ledger.Entry{
				ItemID:        a.Line.ItemID,
				Quantity:      a.Quantity,
				ReferenceType: ledger.RefProductionOrder,
				ReferenceID:   id,
				Notes:         fmt.Sprintf("issued to %s", o.OrderNumber),
				UserID:        actor.UserID,
			}); err != nil {
				return err
			}
		}
		if _, err := q.ExecContext(ctx, "UPDATE production_orders SET updated_at = ? WHERE id = ?", database.Now(), id); err != nil {
			return err
		}
		after, err = load(ctx, q, id)
		return err
	})
	if err != nil {
		return models.ProductionOrder{}, err
	}
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "production_orders", RecordID: id, Action: audit.ActionIssue, NewValues: lines, UserID: actor.UserID})
	return after, nil
}
