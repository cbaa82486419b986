package purchasing_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"fms/internal/apperr"
	"fms/internal/database"
	"fms/internal/ledger"
	"fms/internal/models"
	"fms/internal/purchasing"
	"fms/internal/testutil"
)

var d = decimal.RequireFromString

type fixture struct {
	store    *database.Store
	svc      *purchasing.Service
	boss     models.Actor
	clerk    models.Actor
	supplier int64
	ply      int64
	hinge    int64
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := testutil.SetupTestDB(t)
	f := &fixture{
		store: store,
		svc:   purchasing.New(store, ledger.New(nil), nil, nil, nil),
		boss:  testutil.Approver(1),
		clerk: testutil.Clerk(testutil.CreateTestUser(t, store, "buyer", "storekeeper")),
	}
	sp, err := f.svc.CreateSupplier(context.Background(), f.clerk, purchasing.SupplierInput{Name: "Timber Co", Email: "sales@timber.example"})
	if err != nil {
		t.Fatalf("CreateSupplier: %v", err)
	}
	f.supplier = sp.ID
	f.ply = testutil.SeedItem(t, store, "PLY-18", "sheet_material", 5, "40.00")
	f.hinge = testutil.SeedItem(t, store, "HNG-35", "hardware_accessory", 0, "1.25")
	return f
}

// ordered creates a PO and walks it to ordered.
func (f *fixture) ordered(t *testing.T) models.PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	po, err := f.svc.Create(ctx, f.clerk, purchasing.CreateInput{
		SupplierID: f.supplier,
		Items: []purchasing.LineInput{
			{ItemID: f.ply, Quantity: 10, UnitPrice: d("38.50")},
			{ItemID: f.hinge, Quantity: 100, UnitPrice: d("1.15")},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.svc.Submit(ctx, f.clerk, po.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Approve(ctx, f.boss, po.ID); err != nil {
		t.Fatal(err)
	}
	po, err = f.svc.MarkOrdered(ctx, f.clerk, po.ID)
	if err != nil {
		t.Fatal(err)
	}
	return po
}

func TestSuppliers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	if _, err := f.svc.CreateSupplier(ctx, f.clerk, purchasing.SupplierInput{Name: "Timber Co"}); !apperr.IsConflict(err) {
		t.Errorf("expected ConflictError for duplicate name, got %v", err)
	}
	if _, err := f.svc.CreateSupplier(ctx, f.clerk, purchasing.SupplierInput{Name: "X", Email: "nope"}); !apperr.IsValidation(err) {
		t.Errorf("expected ValidationError for bad email, got %v", err)
	}
	if _, err := f.svc.SetSupplierActive(ctx, f.clerk, f.supplier, false); err != nil {
		t.Fatal(err)
	}
	active, _ := f.svc.ListSuppliers(ctx, true)
	all, _ := f.svc.ListSuppliers(ctx, false)
	if len(active) != 0 || len(all) != 1 {
		t.Errorf("active=%d all=%d", len(active), len(all))
	}
	_, err := f.svc.Create(ctx, f.clerk, purchasing.CreateInput{SupplierID: f.supplier,
		Items: []purchasing.LineInput{{ItemID: f.ply, Quantity: 1, UnitPrice: d("1")}}})
	if !apperr.IsConflict(err) {
		t.Errorf("expected ConflictError ordering from an inactive supplier, got %v", err)
	}
}

func TestCreateComputesTotals(t *testing.T) {
	f := setup(t)
	po, err := f.svc.Create(context.Background(), f.clerk, purchasing.CreateInput{
		SupplierID: f.supplier,
		Items: []purchasing.LineInput{
			{ItemID: f.ply, Quantity: 3, UnitPrice: d("38.50")},
			{ItemID: f.hinge, Quantity: 7, UnitPrice: d("1.15")},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if po.PONumber != "PO-000001" || po.Status != purchasing.StatusDraft || po.SupplierName != "Timber Co" {
		t.Errorf("unexpected header %+v", po)
	}
	// 115.50 + 8.05
	if !po.TotalAmount.Equal(d("123.55")) {
		t.Errorf("total = %s, want 123.55", po.TotalAmount)
	}
	if !po.Items[1].LineTotal.Equal(d("8.05")) {
		t.Errorf("line total = %s", po.Items[1].LineTotal)
	}
}

func TestCreateValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	tests := []struct {
		name  string
		in    purchasing.CreateInput
		check func(error) bool
	}{
		{"no lines", purchasing.CreateInput{SupplierID: f.supplier}, apperr.IsValidation},
		{"zero quantity", purchasing.CreateInput{SupplierID: f.supplier,
			Items: []purchasing.LineInput{{ItemID: f.ply, Quantity: 0, UnitPrice: d("1")}}}, apperr.IsValidation},
		{"negative price", purchasing.CreateInput{SupplierID: f.supplier,
			Items: []purchasing.LineInput{{ItemID: f.ply, Quantity: 1, UnitPrice: d("-1")}}}, apperr.IsValidation},
		{"unknown item", purchasing.CreateInput{SupplierID: f.supplier,
			Items: []purchasing.LineInput{{ItemID: 999, Quantity: 1, UnitPrice: d("1")}}}, apperr.IsNotFound},
		{"unknown supplier", purchasing.CreateInput{SupplierID: 999,
			Items: []purchasing.LineInput{{ItemID: f.ply, Quantity: 1, UnitPrice: d("1")}}}, apperr.IsNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.Create(ctx, f.clerk, tc.in); !tc.check(err) {
				t.Errorf("unexpected error %v", err)
			}
		})
	}
}

func TestApprovalFlow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	po, err := f.svc.Create(ctx, f.clerk, purchasing.CreateInput{SupplierID: f.supplier,
		Items: []purchasing.LineInput{{ItemID: f.ply, Quantity: 1, UnitPrice: d("40")}}})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Approve(ctx, f.boss, po.ID); !apperr.IsConflict(err) {
		t.Errorf("expected ConflictError approving a draft, got %v", err)
	}
	if _, err := f.svc.Submit(ctx, f.clerk, po.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Approve(ctx, f.clerk, po.ID); !apperr.IsPermission(err) {
		t.Errorf("expected PermissionError, got %v", err)
	}
	got, err := f.svc.Approve(ctx, f.boss, po.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != purchasing.StatusApproved || got.ApprovedBy == nil || *got.ApprovedBy != f.boss.UserID {
		t.Errorf("unexpected approved PO %+v", got)
	}
	got, err = f.svc.MarkOrdered(ctx, f.clerk, po.ID)
	if err != nil || got.Status != purchasing.StatusOrdered || got.OrderDate == "" {
		t.Errorf("MarkOrdered: %v %+v", err, got)
	}
	if _, err := f.svc.Cancel(ctx, f.clerk, po.ID); err != nil {
		t.Errorf("cancel ordered PO: %v", err)
	}
	if _, err := f.svc.Cancel(ctx, f.clerk, po.ID); !apperr.IsConflict(err) {
		t.Errorf("expected ConflictError cancelling twice, got %v", err)
	}
}

func TestReceivePartialThenFull(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	po := f.ordered(t)
	plyLine, hingeLine := po.Items[0].ID, po.Items[1].ID

	got, err := f.svc.Receive(ctx, f.clerk, po.ID, []purchasing.ReceiveLine{{POItemID: plyLine, Quantity: 4}}, "first truck")
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if got.Status != purchasing.StatusPartiallyReceived || got.Items[0].ReceivedQuantity != 4 {
		t.Errorf("unexpected after first receipt %+v", got)
	}
	if q := testutil.ItemQuantity(t, f.store, f.ply); q != 9 {
		t.Errorf("ply stock = %d, want 9", q)
	}

	got, err = f.svc.Receive(ctx, f.clerk, po.ID, []purchasing.ReceiveLine{
		{POItemID: plyLine, Quantity: 6},
		{POItemID: hingeLine, Quantity: 100},
	}, "")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != purchasing.StatusReceived {
		t.Errorf("status = %s, want received", got.Status)
	}
	if testutil.ItemQuantity(t, f.store, f.hinge) != 100 {
		t.Errorf("hinge stock not incremented")
	}
	receipts, _ := f.svc.Receipts(ctx, po.ID)
	if len(receipts) != 3 {
		t.Errorf("receipts = %d, want 3", len(receipts))
	}
	if n := testutil.CountRows(t, f.store, "stock_movements", "reference_type = 'purchase_order' AND movement_type = 'in'"); n != 3 {
		t.Errorf("in movements = %d, want 3", n)
	}
	if _, err := f.svc.Receive(ctx, f.clerk, po.ID, []purchasing.ReceiveLine{{POItemID: plyLine, Quantity: 1}}, ""); !apperr.IsConflict(err) {
		t.Errorf("expected ConflictError receiving a received PO, got %v", err)
	}
}

func TestReceiveOverOpenQuantityRollsBack(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	po := f.ordered(t)

	_, err := f.svc.Receive(ctx, f.clerk, po.ID, []purchasing.ReceiveLine{
		{POItemID: po.Items[1].ID, Quantity: 50},
		{POItemID: po.Items[0].ID, Quantity: 6},
		{POItemID: po.Items[0].ID, Quantity: 6},
	}, "")
	if !apperr.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve := err.(*apperr.ValidationError); ve.Limit != int64(4) {
		t.Errorf("limit = %v, want 4", ve.Limit)
	}
	if testutil.ItemQuantity(t, f.store, f.hinge) != 0 || testutil.ItemQuantity(t, f.store, f.ply) != 5 {
		t.Errorf("stock changed by rejected receipt")
	}
	if n := testutil.CountRows(t, f.store, "purchase_receipts", ""); n != 0 {
		t.Errorf("receipts written: %d", n)
	}
}

func TestReceiveRequiresOrderedStatus(t *testing.T) {
	f := setup(t)
	po, err := f.svc.Create(context.Background(), f.clerk, purchasing.CreateInput{SupplierID: f.supplier,
		Items: []purchasing.LineInput{{ItemID: f.ply, Quantity: 1, UnitPrice: d("40")}}})
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.Receive(context.Background(), f.clerk, po.ID, []purchasing.ReceiveLine{{POItemID: po.Items[0].ID, Quantity: 1}}, "")
	if !apperr.IsConflict(err) {
		t.Errorf("expected ConflictError, got %v", err)
	}
}
