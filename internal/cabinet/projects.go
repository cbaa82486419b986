package cabinet

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fms/internal/apperr"
	"fms/internal/audit"
	"fms/internal/bom"
	"fms/internal/database"
	"fms/internal/models"
	"fms/internal/validation"
)

// Project statuses.
const (
	ProjectDraft        = "draft"
	ProjectQuoted       = "quoted"
	ProjectApproved     = "approved"
	ProjectInProduction = "in_production"
	ProjectCompleted    = "completed"
	ProjectCancelled    = "cancelled"
)

func frozen(status string) bool {
	return status == ProjectCompleted || status == ProjectCancelled
}

type ProjectInput struct {
	Name         string `json:"name"`
	CustomerName string `json:"customer_name"`
	Notes        string `json:"notes"`
}

// CabinetInput configures one cabinet line of a project. Nil dimensions take
// the model defaults; a zero quantity means one.
type CabinetInput struct {
	ModelID     int64                       `json:"model_id"`
	Width       *decimal.Decimal            `json:"width"`
	Height      *decimal.Decimal            `json:"height"`
	Depth       *decimal.Decimal            `json:"depth"`
	MaterialID  int64                       `json:"material_id"`
	Accessories []models.AccessorySelection `json:"accessories"`
	Quantity    int64                       `json:"quantity"`
	Notes       string                      `json:"notes"`
}

func (in CabinetInput) dimensions(m models.CabinetModel) Dimensions {
	pick := func(v *decimal.Decimal, def decimal.Decimal) decimal.Decimal {
		if v != nil {
			return *v
		}
		return def
	}
	return Dimensions{
		Width:  pick(in.Width, m.DefaultWidth),
		Height: pick(in.Height, m.DefaultHeight),
		Depth:  pick(in.Depth, m.DefaultDepth),
	}
}

const projectColumns = `id, name, COALESCE(customer_name,''), COALESCE(notes,''), status, created_by, created_at, updated_at`

func scanProject(s interface{ Scan(...any) error }) (models.KitchenProject, error) {
	var p models.KitchenProject
	var createdBy sql.NullInt64
	err := s.Scan(&p.ID, &p.Name, &p.CustomerName, &p.Notes, &p.Status, &createdBy, &p.CreatedAt, &p.UpdatedAt)
	p.CreatedBy = database.IP(createdBy)
	return p, err
}

func loadCabinets(ctx context.Context, q database.Querier, projectID int64) ([]models.KitchenProjectCabinet, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT c.id, c.project_id, c.model_id, m.name, c.width, c.height, c.depth, c.material_id,
			c.accessories, c.quantity, c.calculated_cost, c.cost_breakdown, c.bom_id, COALESCE(c.notes,''),
			c.created_at, c.updated_at
		FROM kitchen_project_cabinets c JOIN cabinet_models m ON m.id = c.model_id
		WHERE c.project_id = ? ORDER BY c.id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project %d cabinets: %w", projectID, err)
	}
	defer rows.Close()
	out := []models.KitchenProjectCabinet{}
	for rows.Next() {
		var c models.KitchenProjectCabinet
		var accessories, breakdown string
		var bomID sql.NullInt64
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.ModelID, &c.ModelName, &c.Width, &c.Height, &c.Depth, &c.MaterialID,
			&accessories, &c.Quantity, &c.CalculatedCost, &breakdown, &bomID, &c.Notes, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(accessories), &c.Accessories); err != nil {
			return nil, fmt.Errorf("project cabinet %d accessories: %w", c.ID, err)
		}
		if c.Accessories == nil {
			c.Accessories = []models.AccessorySelection{}
		}
		c.CostBreakdown = json.RawMessage(breakdown)
		c.BOMID = database.IP(bomID)
		out = append(out, c)
	}
	return out, rows.Err()
}

func loadProject(ctx context.Context, q database.Querier, id int64) (models.KitchenProject, error) {
	p, err := scanProject(q.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM kitchen_projects WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return p, apperr.NotFound("kitchen_project", id)
	}
	if err != nil {
		return p, fmt.Errorf("load kitchen project %d: %w", id, err)
	}
	if p.Cabinets, err = loadCabinets(ctx, q, id); err != nil {
		return p, err
	}
	p.TotalCost = decimal.Zero
	for _, c := range p.Cabinets {
		p.TotalCost = p.TotalCost.Add(c.CalculatedCost.Mul(decimal.NewFromInt(c.Quantity)))
	}
	p.TotalCost = p.TotalCost.Round(2)
	return p, nil
}

// GetProject returns a project with its cabinets and total cost.
func (s *Service) GetProject(ctx context.Context, id int64) (models.KitchenProject, error) {
	return loadProject(ctx, s.store.DB, id)
}

// ListProjects returns project headers, optionally filtered by status.
func (s *Service) ListProjects(ctx context.Context, status string) ([]models.KitchenProject, error) {
	query := "SELECT " + projectColumns + " FROM kitchen_projects"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	rows, err := s.store.DB.QueryContext(ctx, query+" ORDER BY id DESC", args...)
	if err != nil {
		return nil, fmt.Errorf("list kitchen projects: %w", err)
	}
	defer rows.Close()
	out := []models.KitchenProject{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Service) CreateProject(ctx context.Context, actor models.Actor, in ProjectInput) (models.KitchenProject, error) {
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "name", in.Name)
	validation.ValidateMaxLength(ve, "name", in.Name, 255)
	validation.ValidateMaxLength(ve, "notes", in.Notes, validation.MaxTextLength)
	if err := ve.Err(); err != nil {
		return models.KitchenProject{}, err
	}
	now := database.Now()
	var createdBy *int64
	if actor.UserID != 0 {
		createdBy = &actor.UserID
	}
	res, err := database.RunStatement(ctx, s.store.DB,
		"INSERT INTO kitchen_projects (name, customer_name, notes, status, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		strings.TrimSpace(in.Name), in.CustomerName, in.Notes, ProjectDraft, database.NI(createdBy), now, now)
	if err != nil {
		return models.KitchenProject{}, fmt.Errorf("insert kitchen project: %w", err)
	}
	p, err := s.GetProject(ctx, res.ID)
	if err != nil {
		return p, err
	}
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "kitchen_projects", RecordID: p.ID, Action: audit.ActionCreate, NewValues: p, UserID: actor.UserID})
	return p, nil
}

// UpdateProjectStatus moves a project to any status. Completed and cancelled
// projects are frozen.
func (s *Service) UpdateProjectStatus(ctx context.Context, actor models.Actor, id int64, status string) (models.KitchenProject, error) {
	ve := &validation.ValidationErrors{}
	validation.ValidateEnum(ve, "status", status, validation.ValidKitchenProjectStatuses)
	if err := ve.Err(); err != nil {
		return models.KitchenProject{}, err
	}
	var before, after models.KitchenProject
	err := s.store.InTx(ctx, func(q database.Querier) error {
		var err error
		if before, err = loadProject(ctx, q, id); err != nil {
			return err
		}
		if frozen(before.Status) {
			return apperr.Conflict("kitchen_project", id, "project is %s", before.Status)
		}
		if _, err := q.ExecContext(ctx, "UPDATE kitchen_projects SET status = ?, updated_at = ? WHERE id = ?", status, database.Now(), id); err != nil {
			return err
		}
		after, err = loadProject(ctx, q, id)
		return err
	})
	if err != nil {
		return models.KitchenProject{}, err
	}
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "kitchen_projects", RecordID: id, Action: audit.ActionUpdate,
		OldValues: map[string]string{"status": before.Status}, NewValues: map[string]string{"status": status}, UserID: actor.UserID})
	return after, nil
}

// DeleteProject removes a project and its cabinets. BOMs already generated
// from its cabinets are kept.
func (s *Service) DeleteProject(ctx context.Context, actor models.Actor, id int64) error {
	res, err := database.RunStatement(ctx, s.store.DB, "DELETE FROM kitchen_projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete kitchen project %d: %w", id, err)
	}
	if res.Changes == 0 {
		return apperr.NotFound("kitchen_project", id)
	}
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "kitchen_projects", RecordID: id, Action: audit.ActionDelete, UserID: actor.UserID})
	return nil
}

// openProject loads a project that still accepts cabinet changes.
func openProject(ctx context.Context, q database.Querier, id int64) (models.KitchenProject, error) {
	p, err := loadProject(ctx, q, id)
	if err != nil {
		return p, err
	}
	if frozen(p.Status) {
		return p, apperr.Conflict("kitchen_project", id, "project is %s", p.Status)
	}
	return p, nil
}

func findCabinet(p models.KitchenProject, cabinetID int64) (models.KitchenProjectCabinet, error) {
	for _, c := range p.Cabinets {
		if c.ID == cabinetID {
			return c, nil
		}
	}
	return models.KitchenProjectCabinet{}, &apperr.NotFoundError{Entity: "kitchen_project_cabinet", ID: cabinetID,
		Detail: fmt.Sprintf("not part of project %d", p.ID)}
}

// priced is a cabinet line ready to be written.
type priced struct {
	dims        Dimensions
	accessories string
	breakdown   string
	cost        decimal.Decimal
	quantity    int64
}

func priceLine(ctx context.Context, q database.Querier, in CabinetInput) (priced, error) {
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	if in.Quantity < 0 {
		return priced{}, apperr.Invalid("kitchen_project_cabinet", 0, "quantity", 1, "must be positive, got %d", in.Quantity)
	}
	m, err := loadModel(ctx, q, in.ModelID)
	if err != nil {
		return priced{}, err
	}
	if !m.Active {
		return priced{}, apperr.Conflict("cabinet_model", m.ID, "model is inactive")
	}
	dims := in.dimensions(m)
	b, err := Price(m, dims, in.MaterialID, in.Accessories)
	if err != nil {
		return priced{}, err
	}
	b = b.Rounded()
	sels := in.Accessories
	if sels == nil {
		sels = []models.AccessorySelection{}
	}
	acc, err := json.Marshal(sels)
	if err != nil {
		return priced{}, err
	}
	bd, err := json.Marshal(b)
	if err != nil {
		return priced{}, err
	}
	return priced{dims: dims, accessories: string(acc), breakdown: string(bd), cost: b.Total, quantity: in.Quantity}, nil
}

// AddCabinet prices a configured cabinet and adds it to a project.
func (s *Service) AddCabinet(ctx context.Context, actor models.Actor, projectID int64, in CabinetInput) (models.KitchenProject, error) {
	var p models.KitchenProject
	err := s.store.InTx(ctx, func(q database.Querier) error {
		if _, err := openProject(ctx, q, projectID); err != nil {
			return err
		}
		line, err := priceLine(ctx, q, in)
		if err != nil {
			return err
		}
		now := database.Now()
		if _, err := q.ExecContext(ctx, `
			INSERT INTO kitchen_project_cabinets (project_id, model_id, width, height, depth, material_id, accessories,
				quantity, calculated_cost, cost_breakdown, notes, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			projectID, in.ModelID, line.dims.Width, line.dims.Height, line.dims.Depth, in.MaterialID, line.accessories,
			line.quantity, line.cost, line.breakdown, in.Notes, now, now); err != nil {
			return fmt.Errorf("insert project cabinet: %w", err)
		}
		if _, err := q.ExecContext(ctx, "UPDATE kitchen_projects SET updated_at = ? WHERE id = ?", now, projectID); err != nil {
			return err
		}
		p, err = loadProject(ctx, q, projectID)
		return err
	})
	if err != nil {
		s.metrics.Rejected("cabinet")
		return models.KitchenProject{}, err
	}
	s.metrics.Quote()
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "kitchen_project_cabinets", RecordID: projectID, Action: audit.ActionCreate, NewValues: in, UserID: actor.UserID})
	return p, nil
}

// UpdateCabinet replaces the configuration of a cabinet line and reprices it.
// Lines already converted to a BOM are frozen.
func (s *Service) UpdateCabinet(ctx context.Context, actor models.Actor, projectID, cabinetID int64, in CabinetInput) (models.KitchenProject, error) {
	var p models.KitchenProject
	err := s.store.InTx(ctx, func(q database.Querier) error {
		proj, err := openProject(ctx, q, projectID)
		if err != nil {
			return err
		}
		c, err := findCabinet(proj, cabinetID)
		if err != nil {
			return err
		}
		if c.BOMID != nil {
			return apperr.Conflict("kitchen_project_cabinet", cabinetID, "already converted to bom %d", *c.BOMID)
		}
		line, err := priceLine(ctx, q, in)
		if err != nil {
			return err
		}
		now := database.Now()
		if _, err := q.ExecContext(ctx, `
			UPDATE kitchen_project_cabinets SET model_id = ?, width = ?, height = ?, depth = ?, material_id = ?,
				accessories = ?, quantity = ?, calculated_cost = ?, cost_breakdown = ?, notes = ?, updated_at = ?
			WHERE id = ?`,
			in.ModelID, line.dims.Width, line.dims.Height, line.dims.Depth, in.MaterialID, line.accessories,
			line.quantity, line.cost, line.breakdown, in.Notes, now, cabinetID); err != nil {
			return fmt.Errorf("update project cabinet %d: %w", cabinetID, err)
		}
		p, err = loadProject(ctx, q, projectID)
		return err
	})
	if err != nil {
		return models.KitchenProject{}, err
	}
	s.metrics.Quote()
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "kitchen_project_cabinets", RecordID: cabinetID, Action: audit.ActionUpdate, NewValues: in, UserID: actor.UserID})
	return p, nil
}

func (s *Service) RemoveCabinet(ctx context.Context, actor models.Actor, projectID, cabinetID int64) (models.KitchenProject, error) {
	var p models.KitchenProject
	err := s.store.InTx(ctx, func(q database.Querier) error {
		proj, err := openProject(ctx, q, projectID)
		if err != nil {
			return err
		}
		if _, err := findCabinet(proj, cabinetID); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, "DELETE FROM kitchen_project_cabinets WHERE id = ?", cabinetID); err != nil {
			return err
		}
		p, err = loadProject(ctx, q, projectID)
		return err
	})
	if err != nil {
		return models.KitchenProject{}, err
	}
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "kitchen_project_cabinets", RecordID: cabinetID, Action: audit.ActionDelete, UserID: actor.UserID})
	return p, nil
}

// ConvertToBOM stores the virtual BOM of a project cabinet as a real draft
// BOM and links it to the cabinet. A zero labor rate uses the default.
func (s *Service) ConvertToBOM(ctx context.Context, actor models.Actor, projectID, cabinetID int64, laborRate decimal.Decimal) (models.BOM, error) {
	if laborRate.IsNegative() {
		return models.BOM{}, apperr.Invalid("kitchen_project_cabinet", cabinetID, "labor_rate", 0, "must not be negative")
	}
	if laborRate.IsZero() {
		laborRate = s.laborRate
	}
	var b models.BOM
	err := s.store.InTx(ctx, func(q database.Querier) error {
		proj, err := openProject(ctx, q, projectID)
		if err != nil {
			return err
		}
		c, err := findCabinet(proj, cabinetID)
		if err != nil {
			return err
		}
		if c.BOMID != nil {
			return apperr.Conflict("kitchen_project_cabinet", cabinetID, "already converted to bom %d", *c.BOMID)
		}
		m, err := loadModel(ctx, q, c.ModelID)
		if err != nil {
			return err
		}
		breakdown, err := Price(m, Dimensions{Width: c.Width, Height: c.Height, Depth: c.Depth}, c.MaterialID, c.Accessories)
		if err != nil {
			return err
		}
		draft := BuildBOM(breakdown, laborRate).Draft()
		draft.Notes = fmt.Sprintf("generated from project %d cabinet %d", projectID, cabinetID)
		if b, err = bom.Materialize(ctx, q, actor, draft); err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, "UPDATE kitchen_project_cabinets SET bom_id = ?, updated_at = ? WHERE id = ?", b.ID, database.Now(), cabinetID)
		return err
	})
	if err != nil {
		return models.BOM{}, err
	}
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "boms", RecordID: b.ID, Action: audit.ActionCreate, NewValues: b, UserID: actor.UserID})
	s.log.Info("cabinet converted to bom", zap.Int64("project_id", projectID), zap.Int64("cabinet_id", cabinetID), zap.String("bom", b.BOMNumber))
	return b, nil
}
