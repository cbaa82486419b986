package inventory_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"fms/internal/apperr"
	"fms/internal/inventory"
	"fms/internal/ledger"
	"fms/internal/models"
	"fms/internal/testutil"
)

func newService(t *testing.T) (*inventory.Service, func(int64) int64) {
	t.Helper()
	store := testutil.SetupTestDB(t)
	svc := inventory.New(store, ledger.New(nil), nil, nil)
	return svc, func(id int64) int64 { return testutil.ItemQuantity(t, store, id) }
}

func qty(n int64) *int64 { return &n }

var actor = models.Actor{UserID: 1, Username: "admin", Role: "admin", CanApprove: true}

func TestCreateWithOpeningBalance(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	item, err := svc.Create(ctx, actor, inventory.ItemInput{
		SKU: "PLY-18", Name: "Plywood 18mm", ItemType: "sheet_material",
		Quantity: qty(40), MinQuantity: 10, UnitPrice: decimal.RequireFromString("42.75"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if item.Quantity != 40 || !item.UnitPrice.Equal(decimal.RequireFromString("42.75")) {
		t.Errorf("unexpected item %+v", item)
	}

	hist, err := svc.History(ctx, item.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 || hist[0].MovementType != ledger.Adjust || hist[0].Quantity != 40 {
		t.Errorf("expected one adjust movement of 40, got %+v", hist)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, actor, inventory.ItemInput{SKU: "X", Name: "", ItemType: "spaceship"})
	if err == nil {
		t.Fatal("expected validation error")
	}

	in := inventory.ItemInput{SKU: "DUP-1", Name: "Dup", ItemType: "raw_material"}
	if _, err := svc.Create(ctx, actor, in); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Create(ctx, actor, in); !apperr.IsConflict(err) {
		t.Errorf("expected conflict for duplicate sku, got %v", err)
	}
}

func TestUpdateWithoutQuantityKeepsStock(t *testing.T) {
	svc, onHand := newService(t)
	ctx := context.Background()
	item, _ := svc.Create(ctx, actor, inventory.ItemInput{SKU: "HNG-1", Name: "Hinge", ItemType: "hardware_accessory", Quantity: qty(12)})

	updated, err := svc.Update(ctx, actor, item.ID, inventory.ItemInput{SKU: "HNG-1", Name: "Soft close hinge", ItemType: "hardware_accessory"})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Name != "Soft close hinge" || onHand(item.ID) != 12 {
		t.Errorf("unexpected update result %+v (on hand %d)", updated, onHand(item.ID))
	}

	if _, err := svc.Update(ctx, actor, item.ID, inventory.ItemInput{SKU: "HNG-1", Name: "Soft close hinge", ItemType: "hardware_accessory", Quantity: qty(5)}); err != nil {
		t.Fatal(err)
	}
	if onHand(item.ID) != 5 {
		t.Errorf("on hand = %d, want 5", onHand(item.ID))
	}
}

func TestListFilters(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	svc.Create(ctx, actor, inventory.ItemInput{SKU: "OAK", Name: "Oak board", ItemType: "raw_material", Quantity: qty(2), MinQuantity: 5})
	svc.Create(ctx, actor, inventory.ItemInput{SKU: "PINE", Name: "Pine board", ItemType: "raw_material", Quantity: qty(50), MinQuantity: 5})
	svc.Create(ctx, actor, inventory.ItemInput{SKU: "KNOB", Name: "Knob", ItemType: "hardware_accessory"})

	items, total, err := svc.List(ctx, inventory.Filter{ItemType: "raw_material"})
	if err != nil || total != 2 || len(items) != 2 {
		t.Fatalf("type filter: total=%d len=%d err=%v", total, len(items), err)
	}
	low, _, _ := svc.List(ctx, inventory.Filter{LowStock: true})
	if len(low) != 1 || low[0].SKU != "OAK" {
		t.Errorf("low stock filter returned %+v", low)
	}
	found, _, _ := svc.List(ctx, inventory.Filter{Search: "board"})
	if len(found) != 2 {
		t.Errorf("search returned %d items", len(found))
	}
}

func TestDeleteRefusedWhenReferenced(t *testing.T) {
	store := testutil.SetupTestDB(t)
	svc := inventory.New(store, ledger.New(nil), nil, nil)
	ctx := context.Background()
	item := testutil.SeedItem(t, store, "MDF", "sheet_material", 5, "10")

	res, err := store.DB.Exec(`INSERT INTO requisitions (requisition_number, title, requester_id) VALUES ('REQ-X', 'x', 1)`)
	if err != nil {
		t.Fatal(err)
	}
	reqID, _ := res.LastInsertId()
	if _, err := store.DB.Exec(`INSERT INTO requisition_items (requisition_id, item_id, quantity) VALUES (?, ?, 1)`, reqID, item); err != nil {
		t.Fatal(err)
	}

	if err := svc.Delete(ctx, actor, item); !apperr.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}

	free := testutil.SeedItem(t, store, "FREE", "raw_material", 0, "1")
	if err := svc.Delete(ctx, actor, free); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, free); !apperr.IsNotFound(err) {
		t.Errorf("expected not found after delete, got %v", err)
	}
}

func TestUnits(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	if _, err := svc.CreateUnit(ctx, "sheet", "sh"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateUnit(ctx, "sheet", "sh"); !apperr.IsConflict(err) {
		t.Errorf("expected conflict, got %v", err)
	}
	units, err := svc.ListUnits(ctx)
	if err != nil || len(units) != 1 {
		t.Fatalf("ListUnits: %v %v", units, err)
	}

	unitID := units[0].ID
	item, err := svc.Create(ctx, actor, inventory.ItemInput{SKU: "BIRCH", Name: "Birch", ItemType: "sheet_material", UnitID: &unitID})
	if err != nil {
		t.Fatal(err)
	}
	if item.UnitName != "sheet" {
		t.Errorf("unit name = %q", item.UnitName)
	}
	bad := int64(99)
	if _, err := svc.Create(ctx, actor, inventory.ItemInput{SKU: "ASH", Name: "Ash", ItemType: "sheet_material", UnitID: &bad}); !apperr.IsNotFound(err) {
		t.Errorf("expected unit not found, got %v", err)
	}
}

func workbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf
}

func TestImportUpsertsBySKU(t *testing.T) {
	svc, onHand := newService(t)
	ctx := context.Background()
	existing, _ := svc.Create(ctx, actor, inventory.ItemInput{SKU: "PLY-18", Name: "Plywood", ItemType: "sheet_material", Quantity: qty(10)})

	buf := workbook(t, [][]any{
		{"SKU", "Name", "Item_Type", "Quantity", "Unit_Price", "Ignored"},
		{"PLY-18", "", "", 25, "", "x"},
		{"HNG-35", "Hinge 35mm", "hardware_accessory", 100, "1.25", ""},
		{"BAD-1", "Broken", "spaceship", 1, "", ""},
		{"", "", "", "", "", ""},
		{"NOQ", "No quantity", "raw_material", "", "", ""},
	})

	res, err := svc.Import(ctx, actor, buf)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Created != 2 || res.Updated != 1 || res.Skipped != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	if len(res.Errors) != 1 || res.Errors[0].Row != 4 || res.Errors[0].SKU != "BAD-1" {
		t.Errorf("unexpected row errors %+v", res.Errors)
	}
	if onHand(existing.ID) != 25 {
		t.Errorf("existing quantity = %d, want 25", onHand(existing.ID))
	}

	hinge, err := svc.GetBySKU(ctx, "HNG-35")
	if err != nil {
		t.Fatal(err)
	}
	if hinge.Quantity != 100 || !hinge.UnitPrice.Equal(decimal.RequireFromString("1.25")) {
		t.Errorf("unexpected imported item %+v", hinge)
	}
	hist, _ := svc.History(ctx, existing.ID, 0)
	if len(hist) != 2 || hist[0].ReferenceType != ledger.RefImport || hist[0].Quantity != 15 {
		t.Errorf("expected import adjust of 15, got %+v", hist)
	}
}

func TestImportRejectsMissingSKUColumn(t *testing.T) {
	svc, _ := newService(t)
	buf := workbook(t, [][]any{{"Name"}, {"Thing"}})
	if _, err := svc.Import(context.Background(), actor, buf); !apperr.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}
