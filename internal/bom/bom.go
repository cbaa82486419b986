// Package bom manages bills of materials: headers, ordered components and
// operations, cost roll-up across sub-assemblies and multi-level explosion.
package bom

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
	"fms/internal/models"
	"fms/internal/validation"
)

// Statuses.
const (
	StatusDraft    = "draft"
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusArchived = "archived"
)

var sixty = decimal.NewFromInt(60)

type Service struct {
	store *database.Store
	audit audit.Sink
	log   *zap.Logger
}

func New(store *database.Store, sink audit.Sink, log *zap.Logger) *Service {
	if sink == nil {
		sink = audit.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, audit: sink, log: log}
}

// ComponentInput is one component line. Exactly one of ItemID and SubBOMID
// must be set.
type ComponentInput struct {
	Sequence    int64           `json:"sequence"`
	ItemID      *int64          `json:"item_id"`
	SubBOMID    *int64          `json:"sub_bom_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	WasteFactor decimal.Decimal `json:"waste_factor"`
	Notes       string          `json:"notes"`
}

type OperationInput struct {
	Sequence         int64           `json:"sequence"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	EstimatedMinutes decimal.Decimal `json:"estimated_minutes"`
	LaborRate        decimal.Decimal `json:"labor_rate"`
}

// Draft is a complete, not yet persisted BOM.
type Draft struct {
	Name           string           `json:"name"`
	ProductItemID  *int64           `json:"product_item_id"`
	Version        string           `json:"version"`
	Status         string           `json:"status"`
	OutputQuantity int64            `json:"output_quantity"`
	Notes          string           `json:"notes"`
	Components     []ComponentInput `json:"components"`
	Operations     []OperationInput `json:"operations"`
}

func (c ComponentInput) validate(ve *validation.ValidationErrors, field string) {
	if (c.ItemID == nil) == (c.SubBOMID == nil) {
		ve.Add(field, "exactly one of item_id and sub_bom_id is required")
	}
	validation.ValidatePositiveDecimal(ve, field+".quantity", c.Quantity)
	validation.ValidateNonNegativeDecimal(ve, field+".waste_factor", c.WasteFactor)
}

func (o OperationInput) validate(ve *validation.ValidationErrors, field string) {
	validation.RequireField(ve, field+".name", o.Name)
	validation.ValidateNonNegativeDecimal(ve, field+".estimated_minutes", o.EstimatedMinutes)
	validation.ValidateNonNegativeDecimal(ve, field+".labor_rate", o.LaborRate)
}

func (d Draft) validate() error {
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "name", d.Name)
	validation.ValidateMaxLength(ve, "name", d.Name, 255)
	if d.Status != "" {
		validation.ValidateEnum(ve, "status", d.Status, validation.ValidBOMStatuses)
	}
	if d.OutputQuantity < 0 {
		ve.Add("output_quantity", "must be positive")
	}
	for i, c := range d.Components {
		c.validate(ve, fmt.Sprintf("components[%d]", i))
	}
	for i, o := range d.Operations {
		o.validate(ve, fmt.Sprintf("operations[%d]", i))
	}
	return ve.Err()
}

const headerColumns = `id, bom_number, name, product_item_id, version, status, output_quantity,
	material_cost, labor_cost, total_cost, COALESCE(notes,''), created_by, created_at, updated_at`

func scanHeader(s interface{ Scan(...any) error }) (models.BOM, error) {
	var b models.BOM
	var product, createdBy sql.NullInt64
	err := s.Scan(&b.ID, &b.BOMNumber, &b.Name, &product, &b.Version, &b.Status, &b.OutputQuantity,
		&b.MaterialCost, &b.LaborCost, &b.TotalCost, &b.Notes, &createdBy, &b.CreatedAt, &b.UpdatedAt)
	b.ProductItemID = database.IP(product)
	b.CreatedBy = database.IP(createdBy)
	return b, err
}

func loadHeader(ctx context.Context, q database.Querier, id int64) (models.BOM, error) {
	b, err := scanHeader(q.QueryRowContext(ctx, "SELECT "+headerColumns+" FROM boms WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return b, apperr.NotFound("bom", id)
	}
	if err != nil {
		return b, fmt.Errorf("load bom %d: %w", id, err)
	}
	return b, nil
}

func loadComponents(ctx context.Context, q database.Querier, id int64) ([]models.BOMComponent, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, bom_id, sequence, item_id, sub_bom_id, quantity, waste_factor, COALESCE(notes,'')
		FROM bom_components WHERE bom_id = ? ORDER BY sequence, id`, id)
	if err != nil {
		return nil, fmt.Errorf("load bom %d components: %w", id, err)
	}
	defer rows.Close()
	out := []models.BOMComponent{}
	for rows.Next() {
		var c models.BOMComponent
		var item, sub sql.NullInt64
		if err := rows.Scan(&c.ID, &c.BOMID, &c.Sequence, &item, &sub, &c.Quantity, &c.WasteFactor, &c.Notes); err != nil {
			return nil, err
		}
		c.ItemID = database.IP(item)
		c.SubBOMID = database.IP(sub)
		out = append(out, c)
	}
	return out, rows.Err()
}

func loadOperations(ctx context.Context, q database.Querier, id int64) ([]models.BOMOperation, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, bom_id, sequence, name, COALESCE(description,''), estimated_minutes, labor_rate
		FROM bom_operations WHERE bom_id = ? ORDER BY sequence, id`, id)
	if err != nil {
		return nil, fmt.Errorf("load bom %d operations: %w", id, err)
	}
	defer rows.Close()
	out := []models.BOMOperation{}
	for rows.Next() {
		var o models.BOMOperation
		if err := rows.Scan(&o.ID, &o.BOMID, &o.Sequence, &o.Name, &o.Description, &o.EstimatedMinutes, &o.LaborRate); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Load reads a BOM with its components and operations through q.
func Load(ctx context.Context, q database.Querier, id int64) (models.BOM, error) {
	b, err := loadHeader(ctx, q, id)
	if err != nil {
		return b, err
	}
	if b.Components, err = loadComponents(ctx, q, id); err != nil {
		return b, err
	}
	b.Operations, err = loadOperations(ctx, q, id)
	return b, err
}

func (s *Service) Get(ctx context.Context, id int64) (models.BOM, error) {
	return Load(ctx, s.store.DB, id)
}

type Filter struct {
	Status        string
	ProductItemID int64
	Search        string
	Limit         int
	Offset        int
}

// List returns BOM headers without their lines.
func (s *Service) List(ctx context.Context, f Filter) ([]models.BOM, int, error) {
	where := " WHERE 1=1"
	var args []any
	if f.Status != "" {
		where += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.ProductItemID != 0 {
		where += " AND product_item_id = ?"
		args = append(args, f.ProductItemID)
	}
	if f.Search != "" {
		where += " AND (bom_number LIKE ? OR name LIKE ?)"
		like := "%" + f.Search + "%"
		args = append(args, like, like)
	}
	var total int
	if err := s.store.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM boms"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count boms: %w", err)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.store.DB.QueryContext(ctx,
		"SELECT "+headerColumns+" FROM boms"+where+fmt.Sprintf(" ORDER BY bom_number LIMIT %d OFFSET %d", limit, f.Offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list boms: %w", err)
	}
	defer rows.Close()
	out := []models.BOM{}
	for rows.Next() {
		b, err := scanHeader(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

func requireItem(ctx context.Context, q database.Querier, id int64) error {
	var n int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM inventory_items WHERE id = ?", id).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("inventory_item", id)
	}
	return nil
}

func insertComponent(ctx context.Context, q database.Querier, bomID int64, c ComponentInput) (int64, error) {
	if c.ItemID != nil {
		if err := requireItem(ctx, q, *c.ItemID); err != nil {
			return 0, err
		}
	} else {
		if _, err := loadHeader(ctx, q, *c.SubBOMID); err != nil {
			return 0, err
		}
		if err := checkNoCycle(ctx, q, bomID, *c.SubBOMID); err != nil {
			return 0, err
		}
	}
	res, err := database.RunStatement(ctx, q,
		`INSERT INTO bom_components (bom_id, sequence, item_id, sub_bom_id, quantity, waste_factor, notes) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		bomID, c.Sequence, database.NI(c.ItemID), database.NI(c.SubBOMID), c.Quantity, c.WasteFactor, c.Notes)
	if err != nil {
		return 0, fmt.Errorf("insert bom component: %w", err)
	}
	return res.ID, nil
}

func insertOperation(ctx context.Context, q database.Querier, bomID int64, o OperationInput) (int64, error) {
	res, err := database.RunStatement(ctx, q,
		`INSERT INTO bom_operations (bom_id, sequence, name, description, estimated_minutes, labor_rate) VALUES (?, ?, ?, ?, ?, ?)`,
		bomID, o.Sequence, strings.TrimSpace(o.Name), o.Description, o.EstimatedMinutes, o.LaborRate)
	if err != nil {
		return 0, fmt.Errorf("insert bom operation: %w", err)
	}
	return res.ID, nil
}

// Materialize persists d as a new BOM with all of its lines and rolls its
// cost up, all through q. Callers own the transaction.
func Materialize(ctx context.Context, q database.Querier, actor models.Actor, d Draft) (models.BOM, error) {
	if err := d.validate(); err != nil {
		return models.BOM{}, err
	}
	if d.ProductItemID != nil {
		if err := requireItem(ctx, q, *d.ProductItemID); err != nil {
			return models.BOM{}, err
		}
	}
	if d.Version == "" {
		d.Version = "1.0"
	}
	if d.Status == "" {
		d.Status = StatusDraft
	}
	if d.OutputQuantity == 0 {
		d.OutputQuantity = 1
	}

	number, err := database.NextNumber(ctx, q, "bom", "BOM")
	if err != nil {
		return models.BOM{}, err
	}
	now := database.Now()
	res, err := database.RunStatement(ctx, q,
		`INSERT INTO boms (bom_number, name, product_item_id, version, status, output_quantity, notes, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		number, strings.TrimSpace(d.Name), database.NI(d.ProductItemID), d.Version, d.Status, d.OutputQuantity, d.Notes,
		actor.UserID, now, now)
	if err != nil {
		return models.BOM{}, fmt.Errorf("insert bom: %w", err)
	}
	for i, c := range d.Components {
		if c.Sequence == 0 {
			c.Sequence = int64(i + 1)
		}
		if _, err := insertComponent(ctx, q, res.ID, c); err != nil {
			return models.BOM{}, err
		}
	}
	for i, o := range d.Operations {
		if o.Sequence == 0 {
			o.Sequence = int64(i + 1)
		}
		if _, err := insertOperation(ctx, q, res.ID, o); err != nil {
			return models.BOM{}, err
		}
	}
	if _, err := rollUp(ctx, q, res.ID); err != nil {
		return models.BOM{}, err
	}
	return Load(ctx, q, res.ID)
}

// Create persists a BOM in its own transaction.
func (s *Service) Create(ctx context.Context, actor models.Actor, d Draft) (models.BOM, error) {
	var b models.BOM
	err := s.store.InTx(ctx, func(q database.Querier) error {
		var err error
		b, err = Materialize(ctx, q, actor, d)
		return err
	})
	if err != nil {
		return models.BOM{}, err
	}
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "boms", RecordID: b.ID, Action: audit.ActionCreate, NewValues: b, UserID: actor.UserID})
	s.log.Info("bom created", zap.String("number", b.BOMNumber), zap.Int("components", len(b.Components)))
	return b, nil
}

// UpdateStatus moves a BOM between statuses. Archived BOMs are frozen.
func (s *Service) UpdateStatus(ctx context.Context, actor models.Actor, id int64, status string) (models.BOM, error) {
	ve := &validation.ValidationErrors{}
	validation.ValidateEnum(ve, "status", status, validation.ValidBOMStatuses)
	if err := ve.Err(); err != nil {
		return models.BOM{}, err
	}
	var before, after models.BOM
	err := s.store.InTx(ctx, func(q database.Querier) error {
		var err error
		if before, err = loadHeader(ctx, q, id); err != nil {
			return err
		}
		if before.Status == StatusArchived && status != StatusArchived {
			return apperr.Conflict("bom", id, "archived BOMs cannot change status")
		}
		if _, err := q.ExecContext(ctx, "UPDATE boms SET status = ?, updated_at = ? WHERE id = ?", status, database.Now(), id); err != nil {
			return err
		}
		after, err = Load(ctx, q, id)
		return err
	})
	if err != nil {
		return models.BOM{}, err
	}
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "boms", RecordID: id, Action: audit.ActionUpdate,
		OldValues: map[string]string{"status": before.Status}, NewValues: map[string]string{"status": after.Status}, UserID: actor.UserID})
	return after, nil
}

var bomReferences = []struct{ Table, Col, Label string }{
	{"production_orders", "bom_id", "production order"},
	{"bom_components", "sub_bom_id", "parent BOM component"},
	{"kitchen_project_cabinets", "bom_id", "kitchen project cabinet"},
}

// Delete removes a BOM and its lines unless production orders, parent BOMs
// or project cabinets still point at it.
func (s *Service) Delete(ctx context.Context, actor models.Actor, id int64) error {
	var before models.BOM
	err := s.store.InTx(ctx, func(q database.Querier) error {
		var err error
		if before, err = loadHeader(ctx, q, id); err != nil {
			return err
		}
		for _, ref := range bomReferences {
			var n int
			if err := q.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", ref.Table, ref.Col), id).Scan(&n); err != nil {
				return fmt.Errorf("check %s references: %w", ref.Table, err)
			}
			if n > 0 {
				return apperr.Conflict("bom", id, "referenced by %d %s row(s)", n, ref.Label)
			}
		}
		_, err = q.ExecContext(ctx, "DELETE FROM boms WHERE id = ?", id)
		return err
	})
	if err != nil {
		return err
	}
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "boms", RecordID: id, Action: audit.ActionDelete, OldValues: before, UserID: actor.UserID})
	return nil
}

func editable(b models.BOM) error {
	if b.Status == StatusArchived {
		return apperr.Conflict("bom", b.ID, "archived BOMs cannot be edited")
	}
	return nil
}

// edit runs fn against an editable BOM, re-rolls its cost and returns the
// reloaded BOM.
func (s *Service) edit(ctx context.Context, id int64, fn func(q database.Querier) error) (models.BOM, error) {
	var after models.BOM
	err := s.store.InTx(ctx, func(q database.Querier) error {
		b, err := loadHeader(ctx, q, id)
		if err != nil {
			return err
		}
		if err := editable(b); err != nil {
			return err
		}
		if err := fn(q); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, "UPDATE boms SET updated_at = ? WHERE id = ?", database.Now(), id); err != nil {
			return err
		}
		if _, err := rollUp(ctx, q, id); err != nil {
			return err
		}
		after, err = Load(ctx, q, id)
		return err
	})
	return after, err
}

func (s *Service) AddComponent(ctx context.Context, actor models.Actor, bomID int64, c ComponentInput) (models.BOM, error) {
	ve := &validation.ValidationErrors{}
	c.validate(ve, "component")
	if err := ve.Err(); err != nil {
		return models.BOM{}, err
	}
	var compID int64
	b, err := s.edit(ctx, bomID, func(q database.Querier) error {
		if c.Sequence == 0 {
			if err := q.QueryRowContext(ctx, "SELECT COALESCE(MAX(sequence),0)+1 FROM bom_components WHERE bom_id = ?", bomID).Scan(&c.Sequence); err != nil {
				return err
			}
		}
		var err error
		compID, err = insertComponent(ctx, q, bomID, c)
		return err
	})
	if err != nil {
		return b, err
	}
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "bom_components", RecordID: compID, Action: audit.ActionCreate, NewValues: c, UserID: actor.UserID})
	return b, nil
}

func (s *Service) RemoveComponent(ctx context.Context, actor models.Actor, bomID, componentID int64) (models.BOM, error) {
	b, err := s.edit(ctx, bomID, func(q database.Querier) error {
		res, err := database.RunStatement(ctx, q, "DELETE FROM bom_components WHERE id = ? AND bom_id = ?", componentID, bomID)
		if err != nil {
			return err
		}
		if res.Changes == 0 {
			return &apperr.NotFoundError{Entity: "bom_component", ID: componentID, Detail: fmt.Sprintf("not part of bom %d", bomID)}
		}
		return nil
	})
	if err != nil {
		return b, err
	}
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "bom_components", RecordID: componentID, Action: audit.ActionDelete, UserID: actor.UserID})
	return b, nil
}

func (s *Service) AddOperation(ctx context.Context, actor models.Actor, bomID int64, o OperationInput) (models.BOM, error) {
	ve := &validation.ValidationErrors{}
	o.validate(ve, "operation")
	if err := ve.Err(); err != nil {
		return models.BOM{}, err
	}
	var opID int64
	b, err := s.edit(ctx, bomID, func(q database.Querier) error {
		if o.Sequence == 0 {
			if err := q.QueryRowContext(ctx, "SELECT COALESCE(MAX(sequence),0)+1 FROM bom_operations WHERE bom_id = ?", bomID).Scan(&o.Sequence); err != nil {
				return err
			}
		}
		var err error
		opID, err = insertOperation(ctx, q, bomID, o)
		return err
	})
	if err != nil {
		return b, err
	}
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "bom_operations", RecordID: opID, Action: audit.ActionCreate, NewValues: o, UserID: actor.UserID})
	return b, nil
}

func (s *Service) RemoveOperation(ctx context.Context, actor models.Actor, bomID, operationID int64) (models.BOM, error) {
	b, err := s.edit(ctx, bomID, func(q database.Querier) error {
		res, err := database.RunStatement(ctx, q, "DELETE FROM bom_operations WHERE id = ? AND bom_id = ?", operationID, bomID)
		if err != nil {
			return err
		}
		if res.Changes == 0 {
			return &apperr.NotFoundError{Entity: "bom_operation", ID: operationID, Detail: fmt.Sprintf("not part of bom %d", bomID)}
		}
		return nil
	})
	if err != nil {
		return b, err
	}
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "bom_operations", RecordID: operationID, Action: audit.ActionDelete, UserID: actor.UserID})
	return b, nil
}
