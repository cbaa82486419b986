package production

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"fms/internal/apperr"
	"fms/internal/audit"
	"fms/internal/database"
	"fms/internal/ledger"
	"fms/internal/models"
	"fms/internal/validation"
	"fms/internal/websocket"
)

var opTransitions = map[string][]string{
	OpPending:    {OpInProgress, OpSkipped},
	OpInProgress: {OpCompleted, OpSkipped},
}

// UpdateOperationStatus advances one routing step of a planned or running
// order. The first step to leave pending starts the order. The returned flag
// mirrors the order's ReadyForCompletion; the order itself is never
// completed here.
func (s *Service) UpdateOperationStatus(ctx context.Context, actor models.Actor, orderID, opID int64, status, notes string) (models.ProductionOrder, bool, error) {
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "status", status)
	validation.ValidateEnum(ve, "status", status, validation.ValidOperationStatuses)
	if err := ve.Err(); err != nil {
		return models.ProductionOrder{}, false, err
	}

	var before string
	var after models.ProductionOrder
	var ready bool
	err := s.store.InTx(ctx, func(q database.Querier) error {
		o, err := load(ctx, q, orderID)
		if err != nil {
			return err
		}
		switch o.Status {
		case StatusPlanned, StatusInProgress:
		case StatusDraft:
			return apperr.Conflict("production_order", orderID, "plan the order before working its operations")
		default:
			return apperr.Conflict("production_order", orderID, "operations of a %s order are frozen", o.Status)
		}
		var op *models.ProductionOrderOperation
		for i := range o.Operations {
			if o.Operations[i].ID == opID {
				op = &o.Operations[i]
			}
		}
		if op == nil {
			return &apperr.NotFoundError{Entity: "production_order_operation", ID: opID, Detail: fmt.Sprintf("not part of order %d", orderID)}
		}
		before = op.Status

		allowed := false
		for _, next := range opTransitions[op.Status] {
			if next == status {
				allowed = true
			}
		}
		if !allowed {
			return apperr.Conflict("production_order_operation", opID, "cannot move from %s to %s", op.Status, status)
		}

		now := database.Now()
		switch status {
		case OpInProgress:
			_, err = q.ExecContext(ctx,
				"UPDATE production_order_operations SET status = ?, operator_id = ?, notes = ?, started_at = ? WHERE id = ?",
				status, actor.UserID, notes, now, opID)
		default:
			_, err = q.ExecContext(ctx,
				"UPDATE production_order_operations SET status = ?, operator_id = ?, notes = ?, completed_at = ? WHERE id = ?",
				status, actor.UserID, notes, now, opID)
		}
		if err != nil {
			return fmt.Errorf("update operation %d: %w", opID, err)
		}

		if o.Status == StatusPlanned {
			if _, err := q.ExecContext(ctx,
				"UPDATE production_orders SET status = ?, started_at = COALESCE(started_at, ?), updated_at = ? WHERE id = ?",
				StatusInProgress, now, now, orderID); err != nil {
				return fmt.Errorf("start production order %d: %w", orderID, err)
			}
		}
		if after, err = load(ctx, q, orderID); err != nil {
			return err
		}
		ready = after.ReadyForCompletion
		return nil
	})
	if err != nil {
		return models.ProductionOrder{}, false, err
	}

	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "production_order_operations", RecordID: opID, Action: audit.ActionUpdate,
		OldValues: map[string]string{"status": before}, NewValues: map[string]string{"status": status, "notes": notes}, UserID: actor.UserID})
	if ready {
		s.hub.Broadcast(websocket.Event{Type: "production_order_ready", ID: orderID, Action: "ready", Data: after})
		s.log.Info("production order ready for completion", zap.String("number", after.OrderNumber))
	}
	return after, ready, nil
}

// Complete closes an order. Every routing step must be terminal. Good output
// is received into the finished item; a failed quality check records the
// completion without touching stock.
func (s *Service) Complete(ctx context.Context, actor models.Actor, id int64, in CompleteInput) (models.ProductionOrder, error) {
	ve := &validation.ValidationErrors{}
	validation.ValidateNonNegativeInt(ve, "quantity_produced", in.QuantityProduced)
	validation.ValidateMaxQuantity(ve, "quantity_produced", in.QuantityProduced)
	validation.ValidateMaxLength(ve, "notes", in.Notes, validation.MaxTextLength)
	if err := ve.Err(); err != nil {
		return models.ProductionOrder{}, err
	}

	var before, after models.ProductionOrder
	err := s.store.InTx(ctx, func(q database.Querier) error {
		var err error
		if before, err = load(ctx, q, id); err != nil {
			return err
		}
		if !before.ReadyForCompletion {
			if before.Status == StatusInProgress {
				return apperr.Conflict("production_order", id, "all operations must be completed or skipped first")
			}
			return apperr.Conflict("production_order", id, "cannot complete a %s order", before.Status)
		}

		now := database.Now()
		if _, err := q.ExecContext(ctx, `
			INSERT INTO production_completions (order_id, quantity_produced, quality_check_passed, notes, completed_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, in.QuantityProduced, in.QualityCheckPassed, in.Notes, actor.UserID, now); err != nil {
			return fmt.Errorf("insert production completion: %w", err)
		}
		if in.QualityCheckPassed && in.QuantityProduced > 0 && before.ProductItemID != nil {
			if err := s.ledger.Increment(ctx, q, ledger.Entry{
				ItemID:        *before.ProductItemID,
				Quantity:      in.QuantityProduced,
				ReferenceType: ledger.RefProductionOrder,
				ReferenceID:   id,
				Notes:         fmt.Sprintf("produced by %s", before.OrderNumber),
				UserID:        actor.UserID,
			}); err != nil {
				return err
			}
		}
		// TODO: derive actual_cost from issued materials and operation times
		// once operators book real minutes.
		if _, err := q.ExecContext(ctx, `
			UPDATE production_orders SET status = ?, actual_cost = planned_cost, completed_at = ?, updated_at = ? WHERE id = ?`,
			StatusCompleted, now, now, id); err != nil {
			return fmt.Errorf("complete production order %d: %w", id, err)
		}
		after, err = load(ctx, q, id)
		return err
	})
	if err != nil {
		return models.ProductionOrder{}, err
	}

	s.metrics.Status("production_order", StatusCompleted)
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "production_orders", RecordID: id, Action: audit.ActionComplete,
		OldValues: map[string]string{"status": before.Status}, NewValues: in, UserID: actor.UserID})
	return after, nil
}

// Completions lists the completion records of an order.
func (s *Service) Completions(ctx context.Context, id int64) ([]models.ProductionCompletion, error) {
	if _, err := loadHeader(ctx, s.store.DB, id); err != nil {
		return nil, err
	}
	rows, err := s.store.DB.QueryContext(ctx, `
		SELECT id, order_id, quantity_produced, quality_check_passed, COALESCE(notes,''), completed_by, created_at
		FROM production_completions WHERE order_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("list completions of %d: %w", id, err)
	}
	defer rows.Close()
	out := []models.ProductionCompletion{}
	for rows.Next() {
		var c models.ProductionCompletion
		var by sql.NullInt64
		if err := rows.Scan(&c.ID, &c.OrderID, &c.QuantityProduced, &c.QualityCheckPassed, &c.Notes, &by, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CompletedBy = database.IP(by)
		out = append(out, c)
	}
	return out, rows.Err()
}
