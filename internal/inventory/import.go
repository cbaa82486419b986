package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"fms/internal/apperr"
	"fms/internal/audit"
	"fms/internal/database"
	"fms/internal/ledger"
	"fms/internal/models"
	"fms/internal/validation"
)

// ImportColumns are the recognised header names. Only sku is mandatory;
// name and item_type are also required for new items.
var ImportColumns = []string{"sku", "name", "item_type", "quantity", "unit_price", "min_quantity", "max_quantity", "location", "description"}

type RowError struct {
	Row     int    `json:"row"`
	SKU     string `json:"sku"`
	Message string `json:"message"`
}

type ImportResult struct {
	Created   int        `json:"created"`
	Updated   int        `json:"updated"`
	Unchanged int        `json:"unchanged"`
	Skipped   int        `json:"skipped"`
	Errors    []RowError `json:"errors"`
}

type importRow struct {
	line   int
	values map[string]string
}

func (r importRow) has(col string) bool {
	v, ok := r.values[col]
	return ok && v != ""
}

func (r importRow) int(col string) (int64, error) {
	v := r.values[col]
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil || f != float64(int64(f)) {
			return 0, apperr.Invalid("inventory_item", 0, col, nil, "%q is not a whole number", v)
		}
		n = int64(f)
	}
	return n, nil
}

func (r importRow) decimal(col string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(r.values[col])
	if err != nil {
		return d, apperr.Invalid("inventory_item", 0, col, nil, "%q is not a number", r.values[col])
	}
	return d, nil
}

// skippable reports whether err describes a bad row rather than a storage
// failure.
func skippable(err error) bool {
	var ve *validation.ValidationErrors
	return apperr.IsValidation(err) || apperr.IsConflict(err) || apperr.IsNotFound(err) || errors.As(err, &ve)
}

// readWorkbook returns the data rows of the first sheet keyed by header.
func readWorkbook(r io.Reader) ([]importRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperr.Invalid("workbook", 0, "file", nil, "cannot open workbook: %v", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, apperr.Invalid("workbook", 0, "sheet", nil, "sheet %s is empty", sheet)
	}

	header := make([]string, len(rows[0]))
	hasSKU := false
	for i, h := range rows[0] {
		name := strings.ToLower(strings.TrimSpace(h))
		for _, col := range ImportColumns {
			if name == col {
				header[i] = name
			}
		}
		if header[i] == "sku" {
			hasSKU = true
		}
	}
	if !hasSKU {
		return nil, apperr.Invalid("workbook", 0, "sku", nil, "header row has no sku column")
	}

	out := make([]importRow, 0, len(rows)-1)
	for i, row := range rows[1:] {
		r := importRow{line: i + 2, values: make(map[string]string, len(row))}
		empty := true
		for j, cell := range row {
			if j >= len(header) || header[j] == "" {
				continue
			}
			cell = strings.TrimSpace(cell)
			if cell != "" {
				empty = false
			}
			r.values[header[j]] = cell
		}
		if !empty {
			out = append(out, r)
		}
	}
	return out, nil
}

// Import upserts items by SKU from the first sheet of an xlsx workbook.
// Rows that fail validation are reported and skipped; storage errors abort
// the whole import.
func (s *Service) Import(ctx context.Context, actor models.Actor, r io.Reader) (ImportResult, error) {
	rows, err := readWorkbook(r)
	if err != nil {
		return ImportResult{}, err
	}

	var res ImportResult
	err = s.store.InTx(ctx, func(q database.Querier) error {
		res = ImportResult{Errors: []RowError{}}
		for _, row := range rows {
			outcome, err := s.importRow(ctx, q, actor, row)
			if err != nil {
				if skippable(err) {
					res.Skipped++
					res.Errors = append(res.Errors, RowError{Row: row.line, SKU: row.values["sku"], Message: err.Error()})
					continue
				}
				return fmt.Errorf("row %d: %w", row.line, err)
			}
			switch outcome {
			case "created":
				res.Created++
			case "updated":
				res.Updated++
			default:
				res.Unchanged++
			}
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}

	s.log.Info("inventory import finished",
		zap.Int("created", res.Created), zap.Int("updated", res.Updated), zap.Int("skipped", res.Skipped))
	s.audit.LogAuditTrail(ctx, audit.Entry{Table: "inventory_items", Action: audit.ActionImport, NewValues: res, UserID: actor.UserID})
	return res, nil
}

// importRow applies one row and reports "created", "updated" or "unchanged".
func (s *Service) importRow(ctx context.Context, q database.Querier, actor models.Actor, row importRow) (string, error) {
	sku := row.values["sku"]
	if sku == "" {
		return "", apperr.Invalid("inventory_item", 0, "sku", nil, "is required")
	}

	existing, err := scanItem(q.QueryRowContext(ctx, "SELECT "+itemColumns+itemFrom+" WHERE i.sku = ?", sku))
	isNew := errors.Is(err, sql.ErrNoRows)
	if err != nil && !isNew {
		return "", fmt.Errorf("load item %s: %w", sku, err)
	}

	in := ItemInput{SKU: sku}
	if !isNew {
		in = ItemInput{
			SKU: sku, Name: existing.Name, Description: existing.Description, ItemType: existing.ItemType,
			UnitID: existing.UnitID, MinQuantity: existing.MinQuantity, MaxQuantity: existing.MaxQuantity,
			UnitPrice: existing.UnitPrice, Location: existing.Location,
		}
	}
	if row.has("name") {
		in.Name = row.values["name"]
	}
	if row.has("item_type") {
		in.ItemType = strings.ToLower(row.values["item_type"])
	}
	if row.has("description") {
		in.Description = row.values["description"]
	}
	if row.has("location") {
		in.Location = row.values["location"]
	}
	if row.has("unit_price") {
		if in.UnitPrice, err = row.decimal("unit_price"); err != nil {
			return "", err
		}
	}
	if row.has("min_quantity") {
		if in.MinQuantity, err = row.int("min_quantity"); err != nil {
			return "", err
		}
	}
	if row.has("max_quantity") {
		if in.MaxQuantity, err = row.int("max_quantity"); err != nil {
			return "", err
		}
	}
	if row.has("quantity") {
		n, err := row.int("quantity")
		if err != nil {
			return "", err
		}
		in.Quantity = &n
	}
	if err := in.validate(); err != nil {
		return "", err
	}

	entry := ledger.Entry{ReferenceType: ledger.RefImport, Notes: fmt.Sprintf("workbook row %d", row.line), UserID: actor.UserID}
	if isNew {
		id, err := insertItem(ctx, q, in)
		if err != nil {
			return "", err
		}
		if in.Quantity != nil && *in.Quantity > 0 {
			entry.ItemID = id
			if _, err := s.ledger.Set(ctx, q, entry, *in.Quantity); err != nil {
				return "", err
			}
		}
		return "created", nil
	}

	changed := in.Name != existing.Name || in.Description != existing.Description || in.ItemType != existing.ItemType ||
		in.MinQuantity != existing.MinQuantity || in.MaxQuantity != existing.MaxQuantity ||
		!in.UnitPrice.Equal(existing.UnitPrice) || in.Location != existing.Location
	if changed {
		if _, err := q.ExecContext(ctx,
			`UPDATE inventory_items SET name=?, description=?, item_type=?, min_quantity=?, max_quantity=?, unit_price=?, location=?, updated_at=?
			WHERE id=?`,
			in.Name, in.Description, in.ItemType, in.MinQuantity, in.MaxQuantity, in.UnitPrice, in.Location, database.Now(), existing.ID); err != nil {
			return "", fmt.Errorf("update item %s: %w", sku, err)
		}
	}
	if in.Quantity != nil {
		entry.ItemID = existing.ID
		delta, err := s.ledger.Set(ctx, q, entry, *in.Quantity)
		if err != nil {
			return "", err
		}
		changed = changed || delta != 0
	}
	if changed {
		return "updated", nil
	}
	return "unchanged", nil
}
