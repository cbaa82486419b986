package purchasing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"fms/internal/apperr"
	"fms/internal/audit"
	"fms/internal/database"
	"fms/internal/models"
	"fms/internal/validation"
)

type SupplierInput struct {
	Name        string `json:"name"`
	ContactName string `json:"contact_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
}

const supplierColumns = "id, name, COALESCE(contact_name,''), COALESCE(email,''), COALESCE(phone,''), active, created_at"

func scanSupplier(s interface{ Scan(...any) error }) (models.Supplier, error) {
	var sp models.Supplier
	err := s.Scan(&sp.ID, &sp.Name, &sp.ContactName, &sp.Email, &sp.Phone, &sp.Active, &sp.CreatedAt)
	return sp, err
}

func getSupplier(ctx context.Context, q database.Querier, id int64) (models.Supplier, error) {
	sp, err := scanSupplier(q.QueryRowContext(ctx, "SELECT "+supplierColumns+" FROM suppliers WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return sp, apperr.NotFound("supplier", id)
	}
	if err != nil {
		return sp, fmt.Errorf("load supplier %d: %w", id, err)
	}
	return sp, nil
}

func (s *Service) GetSupplier(ctx context.Context, id int64) (models.Supplier, error) {
	return getSupplier(ctx, s.store.DB, id)
}

func (s *Service) ListSuppliers(ctx context.Context, activeOnly bool) ([]models.Supplier, error) {
	query := "SELECT " + supplierColumns + " FROM suppliers"
	if activeOnly {
		query += " WHERE active = 1"
	}
	rows, err := s.store.DB.QueryContext(ctx, query+" ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list suppliers: %w", err)
	}
	defer rows.Close()
	out := []models.Supplier{}
	for rows.Next() {
		sp, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (s *Service) CreateSupplier(ctx context.Context, actor models.Actor, in SupplierInput) (models.Supplier, error) {
	in.Name = strings.TrimSpace(in.Name)
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "name", in.Name)
	validation.ValidateMaxLength(ve, "name", in.Name, 255)
	validation.ValidateEmail(ve, "email", in.Email)
	if err := ve.Err(); err != nil {
		return models.Supplier{}, err
	}

	var sp models.Supplier
	err := s.store.InTx(ctx, func(q database.Querier) error {
		var n int
		if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM suppliers WHERE name = ?", in.Name).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflict("supplier", in.Name, "a supplier with this name already exists")
		}
		res, err := database.RunStatement(ctx, q,
			"INSERT INTO suppliers (name, contact_name, email, phone, created_at) VALUES (?, ?, ?, ?, ?)",
			in.Name, in.ContactName, in.Email, in.Phone, database.Now())
		if err != nil {
			return fmt.Errorf("insert supplier: %w", err)
		}
		sp, err = getSupplier(ctx, q, res.ID)
		return err
	})
	if err != nil {
		return models.Supplier{}, err
	}
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "suppliers", RecordID: sp.ID, Action: audit.ActionCreate, NewValues: sp, UserID: actor.UserID})
	return sp, nil
}

// SetSupplierActive enables or retires a supplier. Retired suppliers keep
// their history but take no new orders.
func (s *Service) SetSupplierActive(ctx context.Context, actor models.Actor, id int64, active bool) (models.Supplier, error) {
	var sp models.Supplier
	err := s.store.InTx(ctx, func(q database.Querier) error {
		if _, err := getSupplier(ctx, q, id); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, "UPDATE suppliers SET active = ? WHERE id = ?", active, id); err != nil {
			return err
		}
		var err error
		sp, err = getSupplier(ctx, q, id)
		return err
	})
	if err != nil {
		return models.Supplier{}, err
	}
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "suppliers", RecordID: id, Action: audit.ActionUpdate, NewValues: map[string]bool{"active": active}, UserID: actor.UserID})
	return sp, nil
}
