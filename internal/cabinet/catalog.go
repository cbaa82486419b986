// Package cabinet is the parametric cabinet configurator: the model catalog,
// per-cabinet pricing, virtual BOM generation and kitchen projects.
package cabinet

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
	"fms/internal/cache"
	"fms/internal/database"
	"fms/internal/metrics"
	"fms/internal/models"
	"fms/internal/validation"
)

const cachePrefix = "cabinet:"

func modelKey(id int64) string { return fmt.Sprintf("%smodel:%d", cachePrefix, id) }

type Service struct {
	store     *database.Store
	cache     cache.Cache
	audit     audit.Sink
	metrics   *metrics.Metrics
	log       *zap.Logger
	laborRate decimal.Decimal
}

type Options struct {
	// Cache holds model snapshots. Nil disables caching.
	Cache   cache.Cache
	Audit   audit.Sink
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	// DefaultLaborRate prices generated routings when the caller gives none.
	DefaultLaborRate decimal.Decimal
}

func New(store *database.Store, opts Options) *Service {
	s := &Service{
		store:     store,
		cache:     opts.Cache,
		audit:     opts.Audit,
		metrics:   opts.Metrics,
		log:       opts.Logger,
		laborRate: opts.DefaultLaborRate,
	}
	if s.audit == nil {
		s.audit = audit.Nop{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Range is the allowed span of one dimension and its default.
type Range struct {
	Default decimal.Decimal `json:"default"`
	Min     decimal.Decimal `json:"min"`
	Max     decimal.Decimal `json:"max"`
}

type ModelInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Width       Range           `json:"width"`
	Height      Range           `json:"height"`
	Depth       Range           `json:"depth"`
	BaseCost    decimal.Decimal `json:"base_cost"`
	Active      *bool           `json:"active"`
}

func (r Range) validate(ve *validation.ValidationErrors, field string) {
	validation.ValidatePositiveDecimal(ve, field+".min", r.Min)
	if r.Min.GreaterThan(r.Max) {
		ve.Add(field, fmt.Sprintf("min %s exceeds max %s", r.Min, r.Max))
	}
	if r.Default.LessThan(r.Min) || r.Default.GreaterThan(r.Max) {
		ve.Add(field+".default", fmt.Sprintf("must lie between %s and %s", r.Min, r.Max))
	}
}

func (in ModelInput) validate() error {
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "name", in.Name)
	validation.ValidateMaxLength(ve, "name", in.Name, 255)
	in.Width.validate(ve, "width")
	in.Height.validate(ve, "height")
	in.Depth.validate(ve, "depth")
	validation.ValidateNonNegativeDecimal(ve, "base_cost", in.BaseCost)
	validation.ValidateMaxPrice(ve, "base_cost", in.BaseCost)
	return ve.Err()
}

const modelColumns = `id, name, COALESCE(description,''), COALESCE(category,''),
	default_width, min_width, max_width, default_height, min_height, max_height,
	default_depth, min_depth, max_depth, base_cost, active, created_at, updated_at`

func scanModel(s interface{ Scan(...any) error }) (models.CabinetModel, error) {
	var m models.CabinetModel
	err := s.Scan(&m.ID, &m.Name, &m.Description, &m.Category,
		&m.DefaultWidth, &m.MinWidth, &m.MaxWidth, &m.DefaultHeight, &m.MinHeight, &m.MaxHeight,
		&m.DefaultDepth, &m.MinDepth, &m.MaxDepth, &m.BaseCost, &m.Active, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

// loadModel reads a model with its material and accessory links.
func loadModel(ctx context.Context, q database.Querier, id int64) (models.CabinetModel, error) {
	m, err := scanModel(q.QueryRowContext(ctx, "SELECT "+modelColumns+" FROM cabinet_models WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return m, apperr.NotFound("cabinet_model", id)
	}
	if err != nil {
		return m, fmt.Errorf("load cabinet model %d: %w", id, err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT cm.id, cm.model_id, cm.item_id, i.name, cm.cost_factor_per_sqft
		FROM cabinet_materials cm JOIN inventory_items i ON i.id = cm.item_id
		WHERE cm.model_id = ? ORDER BY cm.item_id`, id)
	if err != nil {
		return m, fmt.Errorf("load cabinet model %d materials: %w", id, err)
	}
	m.Materials = []models.CabinetMaterial{}
	for rows.Next() {
		var cm models.CabinetMaterial
		if err := rows.Scan(&cm.ID, &cm.ModelID, &cm.ItemID, &cm.ItemName, &cm.CostFactorPerSqft); err != nil {
			rows.Close()
			return m, err
		}
		m.Materials = append(m.Materials, cm)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return m, err
	}

	rows, err = q.QueryContext(ctx, `
		SELECT ca.id, ca.model_id, ca.item_id, i.name, i.unit_price, ca.quantity_per_cabinet, ca.cost_factor_per_unit
		FROM cabinet_accessories ca JOIN inventory_items i ON i.id = ca.item_id
		WHERE ca.model_id = ? ORDER BY ca.item_id`, id)
	if err != nil {
		return m, fmt.Errorf("load cabinet model %d accessories: %w", id, err)
	}
	defer rows.Close()
	m.Accessories = []models.CabinetAccessory{}
	for rows.Next() {
		var ca models.CabinetAccessory
		if err := rows.Scan(&ca.ID, &ca.ModelID, &ca.ItemID, &ca.ItemName, &ca.UnitPrice, &ca.QuantityPerCabinet, &ca.CostFactorPerUnit); err != nil {
			return m, err
		}
		m.Accessories = append(m.Accessories, ca)
	}
	return m, rows.Err()
}

// GetModel returns a model snapshot, from the cache when possible. Cache
// failures fall back to the database.
func (s *Service) GetModel(ctx context.Context, id int64) (models.CabinetModel, error) {
	if s.cache != nil {
		var m models.CabinetModel
		ok, err := s.cache.GetJSON(ctx, modelKey(id), &m)
		switch {
		case err != nil:
			s.log.Warn("cabinet cache read failed", zap.Int64("model_id", id), zap.Error(err))
		case ok:
			s.metrics.Cache("hit")
			if err := refreshItems(ctx, s.store.DB, &m); err != nil {
				return m, err
			}
			return m, nil
		default:
			s.metrics.Cache("miss")
		}
	}
	m, err := loadModel(ctx, s.store.DB, id)
	if err != nil {
		return m, err
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, modelKey(id), m); err != nil {
			s.log.Warn("cabinet cache write failed", zap.Int64("model_id", id), zap.Error(err))
		}
	}
	return m, nil
}

// refreshItems overlays current item names and unit prices on a cached
// snapshot. Items are priced in inventory, so the cache only holds links.
func refreshItems(ctx context.Context, q database.Querier, m *models.CabinetModel) error {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, unit_price FROM inventory_items WHERE id IN (
			SELECT item_id FROM cabinet_materials WHERE model_id = ?
			UNION SELECT item_id FROM cabinet_accessories WHERE model_id = ?)`, m.ID, m.ID)
	if err != nil {
		return fmt.Errorf("refresh cabinet model %d items: %w", m.ID, err)
	}
	defer rows.Close()
	type item struct {
		name  string
		price decimal.Decimal
	}
	items := map[int64]item{}
	for rows.Next() {
		var id int64
		var it item
		if err := rows.Scan(&id, &it.name, &it.price); err != nil {
			return err
		}
		items[id] = it
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := range m.Materials {
		if it, ok := items[m.Materials[i].ItemID]; ok {
			m.Materials[i].ItemName = it.name
		}
	}
	for i := range m.Accessories {
		if it, ok := items[m.Accessories[i].ItemID]; ok {
			m.Accessories[i].ItemName = it.name
			m.Accessories[i].UnitPrice = it.price
		}
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePrefix(ctx, cachePrefix); err != nil {
		s.log.Warn("cabinet cache invalidation failed", zap.Error(err))
	}
}

// ListModels returns model headers without their links.
func (s *Service) ListModels(ctx context.Context, activeOnly bool) ([]models.CabinetModel, error) {
	query := "SELECT " + modelColumns + " FROM cabinet_models"
	if activeOnly {
		query += " WHERE active = 1"
	}
	rows, err := s.store.DB.QueryContext(ctx, query+" ORDER BY category, name")
	if err != nil {
		return nil, fmt.Errorf("list cabinet models: %w", err)
	}
	defer rows.Close()
	out := []models.CabinetModel{}
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nameTaken(ctx context.Context, q database.Querier, name string, exceptID int64) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM cabinet_models WHERE name = ? AND id != ?", name, exceptID).Scan(&n)
	return n > 0, err
}

func insertModel(ctx context.Context, q database.Querier, in ModelInput) (int64, error) {
	taken, err := nameTaken(ctx, q, in.Name, 0)
	if err != nil {
		return 0, err
	}
	if taken {
		return 0, apperr.Conflict("cabinet_model", in.Name, "a model with this name already exists")
	}
	active := in.Active == nil || *in.Active
	now := database.Now()
	res, err := database.RunStatement(ctx, q, `
		INSERT INTO cabinet_models (name, description, category, default_width, min_width, max_width,
			default_height, min_height, max_height, default_depth, min_depth, max_depth, base_cost, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Name, in.Description, in.Category, in.Width.Default, in.Width.Min, in.Width.Max,
		in.Height.Default, in.Height.Min, in.Height.Max, in.Depth.Default, in.Depth.Min, in.Depth.Max,
		in.BaseCost, active, now, now)
	if err != nil {
		return 0, fmt.Errorf("insert cabinet model: %w", err)
	}
	return res.ID, nil
}

func (s *Service) CreateModel(ctx context.Context, actor models.Actor, in ModelInput) (models.CabinetModel, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := in.validate(); err != nil {
		return models.CabinetModel{}, err
	}
	var m models.CabinetModel
	err := s.store.InTx(ctx, func(q database.Querier) error {
		id, err := insertModel(ctx, q, in)
		if err != nil {
			return err
		}
		m, err = loadModel(ctx, q, id)
		return err
	})
	if err != nil {
		return models.CabinetModel{}, err
	}
	s.invalidate(ctx)
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "cabinet_models", RecordID: m.ID, Action: audit.ActionCreate, NewValues: m, UserID: actor.UserID})
	return m, nil
}

func (s *Service) UpdateModel(ctx context.Context, actor models.Actor, id int64, in ModelInput) (models.CabinetModel, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := in.validate(); err != nil {
		return models.CabinetModel{}, err
	}
	var before, after models.CabinetModel
	err := s.store.InTx(ctx, func(q database.Querier) error {
		var err error
		if before, err = loadModel(ctx, q, id); err != nil {
			return err
		}
		taken, err := nameTaken(ctx, q, in.Name, id)
		if err != nil {
			return err
		}
		if taken {
			return apperr.Conflict("cabinet_model", in.Name, "a model with this name already exists")
		}
		active := before.Active
		if in.Active != nil {
			active = *in.Active
		}
		if _, err := q.ExecContext(ctx, `
			UPDATE cabinet_models SET name = ?, description = ?, category = ?,
				default_width = ?, min_width = ?, max_width = ?, default_height = ?, min_height = ?, max_height = ?,
				default_depth = ?, min_depth = ?, max_depth = ?, base_cost = ?, active = ?, updated_at = ?
			WHERE id = ?`,
			in.Name, in.Description, in.Category, in.Width.Default, in.Width.Min, in.Width.Max,
			in.Height.Default, in.Height.Min, in.Height.Max, in.Depth.Default, in.Depth.Min, in.Depth.Max,
			in.BaseCost, active, database.Now(), id); err != nil {
			return fmt.Errorf("update cabinet model %d: %w", id, err)
		}
		after, err = loadModel(ctx, q, id)
		return err
	})
	if err != nil {
		return models.CabinetModel{}, err
	}
	s.invalidate(ctx)
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "cabinet_models", RecordID: id, Action: audit.ActionUpdate, OldValues: before, NewValues: after, UserID: actor.UserID})
	return after, nil
}

// DeleteModel removes a model and its links. Models used by a project
// cabinet are refused.
func (s *Service) DeleteModel(ctx context.Context, actor models.Actor, id int64) error {
	var before models.CabinetModel
	err := s.store.InTx(ctx, func(q database.Querier) error {
		var err error
		if before, err = loadModel(ctx, q, id); err != nil {
			return err
		}
		var n int
		if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM kitchen_project_cabinets WHERE model_id = ?", id).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflict("cabinet_model", id, "used by %d kitchen project cabinet(s)", n)
		}
		_, err = q.ExecContext(ctx, "DELETE FROM cabinet_models WHERE id = ?", id)
		return err
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "cabinet_models", RecordID: id, Action: audit.ActionDelete, OldValues: before, UserID: actor.UserID})
	return nil
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

// linkEdit runs fn against an existing model and returns the reloaded model.
func (s *Service) linkEdit(ctx context.Context, actor models.Actor, modelID int64, table string, fn func(q database.Querier) error) (models.CabinetModel, error) {
	var m models.CabinetModel
	err := s.store.InTx(ctx, func(q database.Querier) error {
		if _, err := loadModel(ctx, q, modelID); err != nil {
			return err
		}
		if err := fn(q); err != nil {
			return err
		}
		var err error
		m, err = loadModel(ctx, q, modelID)
		return err
	})
	if err != nil {
		return models.CabinetModel{}, err
	}
	s.invalidate(ctx)
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: table, RecordID: modelID, Action: audit.ActionUpdate, NewValues: m, UserID: actor.UserID})
	return m, nil
}

// LinkMaterial registers an inventory item as a body material of a model,
// or updates its cost factor.
func (s *Service) LinkMaterial(ctx context.Context, actor models.Actor, modelID, itemID int64, factorPerSqft decimal.Decimal) (models.CabinetModel, error) {
	if factorPerSqft.IsNegative() {
		return models.CabinetModel{}, apperr.Invalid("cabinet_material", itemID, "cost_factor_per_sqft", 0, "must not be negative")
	}
	return s.linkEdit(ctx, actor, modelID, "cabinet_materials", func(q database.Querier) error {
		if err := requireItem(ctx, q, itemID); err != nil {
			return err
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO cabinet_materials (model_id, item_id, cost_factor_per_sqft) VALUES (?, ?, ?)
			ON CONFLICT(model_id, item_id) DO UPDATE SET cost_factor_per_sqft = excluded.cost_factor_per_sqft`,
			modelID, itemID, factorPerSqft)
		return err
	})
}

func (s *Service) UnlinkMaterial(ctx context.Context, actor models.Actor, modelID, itemID int64) (models.CabinetModel, error) {
	return s.linkEdit(ctx, actor, modelID, "cabinet_materials", func(q database.Querier) error {
		res, err := database.RunStatement(ctx, q, "DELETE FROM cabinet_materials WHERE model_id = ? AND item_id = ?", modelID, itemID)
		if err != nil {
			return err
		}
		if res.Changes == 0 {
			return &apperr.NotFoundError{Entity: "cabinet_material", ID: itemID, Detail: fmt.Sprintf("not registered for model %d", modelID)}
		}
		return nil
	})
}

type AccessoryLink struct {
	ItemID             int64           `json:"item_id"`
	QuantityPerCabinet int64           `json:"quantity_per_cabinet"`
	CostFactorPerUnit  decimal.Decimal `json:"cost_factor_per_unit"`
}

// LinkAccessory registers an accessory for a model, or updates its defaults.
func (s *Service) LinkAccessory(ctx context.Context, actor models.Actor, modelID int64, in AccessoryLink) (models.CabinetModel, error) {
	ve := &validation.ValidationErrors{}
	validation.ValidateNonNegativeInt(ve, "quantity_per_cabinet", in.QuantityPerCabinet)
	validation.ValidateNonNegativeDecimal(ve, "cost_factor_per_unit", in.CostFactorPerUnit)
	if err := ve.Err(); err != nil {
		return models.CabinetModel{}, err
	}
	return s.linkEdit(ctx, actor, modelID, "cabinet_accessories", func(q database.Querier) error {
		if err := requireItem(ctx, q, in.ItemID); err != nil {
			return err
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO cabinet_accessories (model_id, item_id, quantity_per_cabinet, cost_factor_per_unit) VALUES (?, ?, ?, ?)
			ON CONFLICT(model_id, item_id) DO UPDATE SET quantity_per_cabinet = excluded.quantity_per_cabinet,
				cost_factor_per_unit = excluded.cost_factor_per_unit`,
			modelID, in.ItemID, in.QuantityPerCabinet, in.CostFactorPerUnit)
		return err
	})
}

func (s *Service) UnlinkAccessory(ctx context.Context, actor models.Actor, modelID, itemID int64) (models.CabinetModel, error) {
	return s.linkEdit(ctx, actor, modelID, "cabinet_accessories", func(q database.Querier) error {
		res, err := database.RunStatement(ctx, q, "DELETE FROM cabinet_accessories WHERE model_id = ? AND item_id = ?", modelID, itemID)
		if err != nil {
			return err
		}
		if res.Changes == 0 {
			return &apperr.NotFoundError{Entity: "cabinet_accessory", ID: itemID, Detail: fmt.Sprintf("not registered for model %d", modelID)}
		}
		return nil
	})
}
