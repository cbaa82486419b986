// Package requisition implements material requisitions: creation, aggregate
// and per-line approval, batch issuance against inventory, and the explicit
// reversal of issued quantities.
package requisition

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"fms/internal/allocation"
	"fms/internal/apperr"
	"fms/internal/audit"
	"fms/internal/auth"
	"fms/internal/database"
	"fms/internal/ledger"
	"fms/internal/metrics"
	"fms/internal/models"
	"fms/internal/validation"
)

// Header statuses.
const (
	StatusPending           = "pending"
	StatusApproved          = "approved"
	StatusRejected          = "rejected"
	StatusPartiallyApproved = "partially_approved"
	StatusIssued            = "issued"
	StatusPartiallyIssued   = "partially_issued"
)

// Line statuses beyond the approval ones.
const (
	ItemIssued  = "issued"
	ItemPartial = "partial"
)

const entityItem = "requisition_item"

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

type ItemRequest struct {
	ItemID   int64  `json:"item_id"`
	Quantity int64  `json:"quantity"`
	Notes    string `json:"notes"`
}

type CreateInput struct {
	Title      string        `json:"title"`
	Department string        `json:"department"`
	Notes      string        `json:"notes"`
	Items      []ItemRequest `json:"items"`
}

// Decision sets the approved and rejected quantities of one line.
type Decision struct {
	RequisitionItemID int64 `json:"requisition_item_id"`
	ApprovedQuantity  int64 `json:"approved_quantity"`
	RejectedQuantity  int64 `json:"rejected_quantity"`
}

// IssueLine issues Quantity against one line.
type IssueLine struct {
	RequisitionItemID int64 `json:"requisition_item_id"`
	Quantity          int64 `json:"quantity"`
}

type Filter struct {
	Status      string
	RequesterID int64
	Limit       int
	Offset      int
}

const headerColumns = `id, requisition_number, title, COALESCE(department,''), COALESCE(notes,''), status, requester_id,
	approver_id, approval_date, approval_notes, created_at, updated_at`

func scanHeader(s interface{ Scan(...any) error }) (models.Requisition, error) {
	var r models.Requisition
	var approver sql.NullInt64
	var date, notes sql.NullString
	err := s.Scan(&r.ID, &r.RequisitionNumber, &r.Title, &r.Department, &r.Notes, &r.Status, &r.RequesterID,
		&approver, &date, &notes, &r.CreatedAt, &r.UpdatedAt)
	r.ApproverID = database.IP(approver)
	r.ApprovalDate = database.SP(date)
	r.ApprovalNotes = database.SP(notes)
	return r, err
}

func loadHeader(ctx context.Context, q database.Querier, id int64) (models.Requisition, error) {
	r, err := scanHeader(q.QueryRowContext(ctx, "SELECT "+headerColumns+" FROM requisitions WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return r, apperr.NotFound("requisition", id)
	}
	if err != nil {
		return r, fmt.Errorf("load requisition %d: %w", id, err)
	}
	return r, nil
}

func loadItems(ctx context.Context, q database.Querier, id int64) ([]models.RequisitionItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT ri.id, ri.requisition_id, ri.item_id, i.sku, i.name, ri.quantity, ri.approved_quantity,
			ri.rejected_quantity, ri.issued_quantity, ri.status, COALESCE(ri.notes,'')
		FROM requisition_items ri JOIN inventory_items i ON i.id = ri.item_id
		WHERE ri.requisition_id = ? ORDER BY ri.id`, id)
	if err != nil {
		return nil, fmt.Errorf("load requisition %d items: %w", id, err)
	}
	defer rows.Close()
	items := []models.RequisitionItem{}
	for rows.Next() {
		var it models.RequisitionItem
		if err := rows.Scan(&it.ID, &it.RequisitionID, &it.ItemID, &it.SKU, &it.ItemName, &it.Quantity,
			&it.ApprovedQuantity, &it.RejectedQuantity, &it.IssuedQuantity, &it.Status, &it.Notes); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func load(ctx context.Context, q database.Querier, id int64) (models.Requisition, error) {
	r, err := loadHeader(ctx, q, id)
	if err != nil {
		return r, err
	}
	r.Items, err = loadItems(ctx, q, id)
	return r, err
}

func toLine(it models.RequisitionItem) allocation.Line {
	return allocation.Line{
		ID:        it.ID,
		ItemID:    it.ItemID,
		Requested: it.Quantity,
		Approved:  it.ApprovedQuantity,
		Rejected:  it.RejectedQuantity,
		Issued:    it.IssuedQuantity,
	}
}

func (s *Service) Get(ctx context.Context, id int64) (models.Requisition, error) {
	return load(ctx, s.store.DB, id)
}

// List returns requisition headers newest first, plus the total match count.
func (s *Service) List(ctx context.Context, f Filter) ([]models.Requisition, int, error) {
	where := " WHERE 1=1"
	var args []any
	if f.Status != "" {
		where += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.RequesterID != 0 {
		where += " AND requester_id = ?"
		args = append(args, f.RequesterID)
	}
	var total int
	if err := s.store.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM requisitions"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count requisitions: %w", err)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.store.DB.QueryContext(ctx,
		"SELECT "+headerColumns+" FROM requisitions"+where+fmt.Sprintf(" ORDER BY id DESC LIMIT %d OFFSET %d", limit, f.Offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list requisitions: %w", err)
	}
	defer rows.Close()
	out := []models.Requisition{}
	for rows.Next() {
		r, err := scanHeader(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// Create persists a pending requisition and its lines. It has no inventory
// side effects.
func (s *Service) Create(ctx context.Context, actor models.Actor, in CreateInput) (models.Requisition, error) {
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "title", in.Title)
	validation.ValidateMaxLength(ve, "title", in.Title, 255)
	validation.ValidateMaxLength(ve, "notes", in.Notes, validation.MaxTextLength)
	if len(in.Items) == 0 {
		ve.Add("items", "at least one item is required")
	}
	for i, it := range in.Items {
		field := fmt.Sprintf("items[%d].quantity", i)
		validation.ValidatePositiveInt(ve, field, it.Quantity)
		validation.ValidateMaxQuantity(ve, field, it.Quantity)
	}
	if err := ve.Err(); err != nil {
		return models.Requisition{}, err
	}

	var req models.Requisition
	err := s.store.InTx(ctx, func(q database.Querier) error {
		for _, it := range in.Items {
			var n int
			if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM inventory_items WHERE id = ?", it.ItemID).Scan(&n); err != nil {
				return err
			}
			if n == 0 {
				return apperr.NotFound("inventory_item", it.ItemID)
			}
		}

		number, err := database.NextNumber(ctx, q, "requisition", "REQ")
		if err != nil {
			return err
		}
		now := database.Now()
		res, err := database.RunStatement(ctx, q,
			`INSERT INTO requisitions (requisition_number, title, department, notes, status, requester_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			number, strings.TrimSpace(in.Title), in.Department, in.Notes, StatusPending, actor.UserID, now, now)
		if err != nil {
			return fmt.Errorf("insert requisition: %w", err)
		}
		for _, it := range in.Items {
			if _, err := q.ExecContext(ctx,
				`INSERT INTO requisition_items (requisition_id, item_id, quantity, status, notes) VALUES (?, ?, ?, ?, ?)`,
				res.ID, it.ItemID, it.Quantity, StatusPending, it.Notes); err != nil {
				return fmt.Errorf("insert requisition item: %w", err)
			}
		}
		req, err = load(ctx, q, res.ID)
		return err
	})
	if err != nil {
		return models.Requisition{}, err
	}

	s.metrics.Status("requisition", StatusPending)
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "requisitions", RecordID: req.ID, Action: audit.ActionCreate, NewValues: req, UserID: actor.UserID})
	s.log.Info("requisition created", zap.String("number", req.RequisitionNumber), zap.Int("items", len(req.Items)))
	return req, nil
}

func requirePending(r models.Requisition) error {
	if r.Status != StatusPending {
		return apperr.Conflict("requisition", r.ID, "cannot change approval of a %s requisition", r.Status)
	}
	return nil
}

func setApproval(ctx context.Context, q database.Querier, id int64, status string, actor models.Actor, notes string) error {
	now := database.Now()
	_, err := q.ExecContext(ctx,
		`UPDATE requisitions SET status = ?, approver_id = ?, approval_date = ?, approval_notes = ?, updated_at = ? WHERE id = ?`,
		status, actor.UserID, now, notes, now, id)
	if err != nil {
		return fmt.Errorf("update requisition %d: %w", id, err)
	}
	return nil
}

// Decide approves or rejects every line in full.
func (s *Service) Decide(ctx context.Context, actor models.Actor, id int64, approve bool, notes string) (models.Requisition, error) {
	if err := auth.RequireApproval(actor, auth.ActionApproveRequisition); err != nil {
		return models.Requisition{}, err
	}

	var before, after models.Requisition
	err := s.store.InTx(ctx, func(q database.Querier) error {
		var err error
		if before, err = load(ctx, q, id); err != nil {
			return err
		}
		if err := requirePending(before); err != nil {
			return err
		}

		status := StatusRejected
		update := `UPDATE requisition_items SET approved_quantity = 0, rejected_quantity = quantity, status = ? WHERE requisition_id = ?`
		if approve {
			status = StatusApproved
			update = `UPDATE requisition_items SET approved_quantity = quantity, rejected_quantity = 0, status = ? WHERE requisition_id = ?`
		}
		if _, err := q.ExecContext(ctx, update, status, id); err != nil {
			return fmt.Errorf("decide requisition %d items: %w", id, err)
		}
		if err := setApproval(ctx, q, id, status, actor, notes); err != nil {
			return err
		}
		after, err = load(ctx, q, id)
		return err
	})
	if err != nil {
		return models.Requisition{}, err
	}

	action := audit.ActionReject
	if approve {
		action = audit.ActionApprove
	}
	s.metrics.Status("requisition", after.Status)
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "requisitions", RecordID: id, Action: action,
		OldValues: map[string]string{"status": before.Status}, NewValues: map[string]string{"status": after.Status}, UserID: actor.UserID})
	return after, nil
}

// ApprovePartial records per-line decisions. Lines not listed keep their
// current values. The header status is derived from the line statuses, so a
// requisition with undecided lines stays pending and can be decided further.
func (s *Service) ApprovePartial(ctx context.Context, actor models.Actor, id int64, decisions []Decision, notes string) (models.Requisition, error) {
	if err := auth.RequireApproval(actor, auth.ActionApproveRequisition); err != nil {
		return models.Requisition{}, err
	}
	if len(decisions) == 0 {
		return models.Requisition{}, apperr.Invalid("requisition", id, "items", 1, "at least one decision is required")
	}

	var before, after models.Requisition
	err := s.store.InTx(ctx, func(q database.Querier) error {
		var err error
		if before, err = load(ctx, q, id); err != nil {
			return err
		}
		if err := requirePending(before); err != nil {
			return err
		}

		byID := make(map[int64]models.RequisitionItem, len(before.Items))
		for _, it := range before.Items {
			byID[it.ID] = it
		}
		seen := make(map[int64]bool, len(decisions))
		for _, d := range decisions {
			it, ok := byID[d.RequisitionItemID]
			if !ok {
				return &apperr.NotFoundError{Entity: entityItem, ID: d.RequisitionItemID, Detail: fmt.Sprintf("not part of requisition %d", id)}
			}
			if seen[it.ID] {
				return apperr.Invalid(entityItem, it.ID, "requisition_item_id", nil, "decided more than once")
			}
			seen[it.ID] = true
			if err := allocation.ValidateDecision(entityItem, toLine(it), d.ApprovedQuantity, d.RejectedQuantity); err != nil {
				s.metrics.Rejected("requisition")
				return err
			}
			it.ApprovedQuantity = d.ApprovedQuantity
			it.RejectedQuantity = d.RejectedQuantity
			it.Status = string(allocation.Classify(it.Quantity, it.ApprovedQuantity, it.RejectedQuantity))
			byID[it.ID] = it
		}

		statuses := make([]allocation.Status, 0, len(before.Items))
		for _, orig := range before.Items {
			it := byID[orig.ID]
			statuses = append(statuses, allocation.Status(it.Status))
			if !seen[it.ID] {
				continue
			}
			if _, err := q.ExecContext(ctx,
				`UPDATE requisition_items SET approved_quantity = ?, rejected_quantity = ?, status = ? WHERE id = ?`,
				it.ApprovedQuantity, it.RejectedQuantity, it.Status, it.ID); err != nil {
				return fmt.Errorf("update requisition item %d: %w", it.ID, err)
			}
		}

		if err := setApproval(ctx, q, id, string(allocation.Aggregate(statuses)), actor, notes); err != nil {
			return err
		}
		after, err = load(ctx, q, id)
		return err
	})
	if err != nil {
		return models.Requisition{}, err
	}

	s.metrics.Status("requisition", after.Status)
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "requisitions", RecordID: id, Action: audit.ActionApprove,
		OldValues: before, NewValues: after, UserID: actor.UserID})
	return after, nil
}

func issuable(status string) bool {
	switch status {
	case StatusApproved, StatusPartiallyApproved, StatusPartiallyIssued:
		return true
	}
	return false
}

// Issue hands out approved quantities. Every line is validated against its
// remaining approved quantity and the stock on hand before anything is
// written; one bad line aborts the whole batch.
func (s *Service) Issue(ctx context.Context, actor models.Actor, id int64, lines []IssueLine) (models.Requisition, error) {
	var before, after models.Requisition
	err := s.store.InTx(ctx, func(q database.Querier) error {
		var err error
		if before, err = load(ctx, q, id); err != nil {
			return err
		}
		if !issuable(before.Status) {
			return apperr.Conflict("requisition", id, "cannot issue a %s requisition", before.Status)
		}

		byID := make(map[int64]allocation.Line, len(before.Items))
		itemIDs := make([]int64, 0, len(before.Items))
		for _, it := range before.Items {
			byID[it.ID] = toLine(it)
			itemIDs = append(itemIDs, it.ItemID)
		}
		stock, err := ledger.Stock(ctx, q, itemIDs)
		if err != nil {
			return err
		}
		requests := make([]allocation.Request, len(lines))
		for i, l := range lines {
			requests[i] = allocation.Request{LineID: l.RequisitionItemID, Quantity: l.Quantity}
		}
		plan, err := allocation.PlanIssuance(entityItem, byID, requests, stock)
		if err != nil {
			s.metrics.Rejected("requisition")
			return err
		}

		for _, a := range plan {
			status := ItemPartial
			if a.FullyIssued {
				status = ItemIssued
			}
			if _, err := q.ExecContext(ctx,
				`UPDATE requisition_items SET issued_quantity = ?, status = ? WHERE id = ?`,
				a.NewIssued, status, a.Line.ID); err != nil {
				return fmt.Errorf("update requisition item %d: %w", a.Line.ID, err)
			}
			if err := s.ledger.Decrement(ctx, q, ledger.Entry{
				ItemID:        a.Line.ItemID,
				Quantity:      a.Quantity,
				ReferenceType: ledger.RefRequisition,
				ReferenceID:   id,
				Notes:         fmt.Sprintf("issued for %s", before.RequisitionNumber),
				UserID:        actor.UserID,
			}); err != nil {
				return err
			}
			line := byID[a.Line.ID]
			line.Issued = a.NewIssued
			byID[a.Line.ID] = line
		}

		updated := make([]allocation.Line, 0, len(byID))
		for _, l := range byID {
			updated = append(updated, l)
		}
		status := StatusPartiallyIssued
		if allocation.IssuedStatus(updated) {
			status = StatusIssued
		}
		if _, err := q.ExecContext(ctx, "UPDATE requisitions SET status = ?, updated_at = ? WHERE id = ?",
			status, database.Now(), id); err != nil {
			return fmt.Errorf("update requisition %d: %w", id, err)
		}
		after, err = load(ctx, q, id)
		return err
	})
	if err != nil {
		return models.Requisition{}, err
	}

	s.metrics.Status("requisition", after.Status)
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "requisitions", RecordID: id, Action: audit.ActionIssue,
		OldValues: map[string]any{"status": before.Status}, NewValues: map[string]any{"status": after.Status, "lines": lines}, UserID: actor.UserID})
	return after, nil
}

// Delete removes the requisition and its lines in any status. Inventory is
// never touched; call RestoreQuantities first to return issued stock.
func (s *Service) Delete(ctx context.Context, actor models.Actor, id int64) error {
	var before models.Requisition
	err := s.store.InTx(ctx, func(q database.Querier) error {
		var err error
		if before, err = loadHeader(ctx, q, id); err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, "DELETE FROM requisitions WHERE id = ?", id)
		return err
	})
	if err != nil {
		return err
	}
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "requisitions", RecordID: id, Action: audit.ActionDelete, OldValues: before, UserID: actor.UserID})
	return nil
}

// RestoreQuantities returns every issued quantity to inventory, zeroes the
// issued counters and puts the line and header statuses back to what the
// approval decision gave.
func (s *Service) RestoreQuantities(ctx context.Context, actor models.Actor, id int64) (models.Requisition, error) {
	var before, after models.Requisition
	var restored int64
	err := s.store.InTx(ctx, func(q database.Querier) error {
		var err error
		if before, err = load(ctx, q, id); err != nil {
			return err
		}
		statuses := make([]allocation.Status, 0, len(before.Items))
		for _, it := range before.Items {
			st := allocation.Classify(it.Quantity, it.ApprovedQuantity, it.RejectedQuantity)
			statuses = append(statuses, st)
			if it.IssuedQuantity == 0 {
				continue
			}
			if err := s.ledger.Increment(ctx, q, ledger.Entry{
				ItemID:        it.ItemID,
				Quantity:      it.IssuedQuantity,
				ReferenceType: ledger.RefRequisition,
				ReferenceID:   id,
				Notes:         fmt.Sprintf("restored from %s", before.RequisitionNumber),
				UserID:        actor.UserID,
			}); err != nil {
				return err
			}
			if _, err := q.ExecContext(ctx, "UPDATE requisition_items SET issued_quantity = 0, status = ? WHERE id = ?",
				string(st), it.ID); err != nil {
				return fmt.Errorf("reset requisition item %d: %w", it.ID, err)
			}
			restored += it.IssuedQuantity
		}
		if _, err := q.ExecContext(ctx, "UPDATE requisitions SET status = ?, updated_at = ? WHERE id = ?",
			string(allocation.Aggregate(statuses)), database.Now(), id); err != nil {
			return fmt.Errorf("reset requisition %d: %w", id, err)
		}
		after, err = load(ctx, q, id)
		return err
	})
	if err != nil {
		return models.Requisition{}, err
	}

	s.metrics.Status("requisition", after.Status)
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "requisitions", RecordID: id, Action: audit.ActionRestore,
		OldValues: map[string]any{"status": before.Status}, NewValues: map[string]any{"status": after.Status, "restored": restored}, UserID: actor.UserID})
	return after, nil
}
