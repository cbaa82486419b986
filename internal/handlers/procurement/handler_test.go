package procurement_test

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	handlers "fms/internal/handlers/procurement"
	"fms/internal/database"
	"fms/internal/ledger"
	"fms/internal/models"
	"fms/internal/purchasing"
	"fms/internal/requisition"
	"fms/internal/testutil"
)

type env struct {
	store *database.Store
	boss  http.Handler
	clerk http.Handler
}

func setup(t *testing.T) *env {
	t.Helper()
	store := testutil.SetupTestDB(t)
	l := ledger.New(nil)
	h := &handlers.Handler{
		Requisitions: requisition.New(store, l, nil, nil, nil),
		Purchasing:   purchasing.New(store, l, nil, nil, nil),
	}
	r := chi.NewRouter()
	h.Routes(r)
	clerkID := testutil.CreateTestUser(t, store, "clerk", "user")
	return &env{
		store: store,
		boss:  testutil.AsActor(r, testutil.Approver(1)),
		clerk: testutil.AsActor(r, testutil.Clerk(clerkID)),
	}
}

func TestRequisitionFlow(t *testing.T) {
	e := setup(t)
	screws := testutil.SeedItem(t, e.store, "SCR-01", "hardware_accessory", 50, "0.10")

	w := testutil.Do(e.clerk, "POST", "/requisitions", map[string]any{
		"title": "Assembly", "items": []map[string]any{{"item_id": screws, "quantity": 20}},
	})
	testutil.AssertStatus(t, w, http.StatusCreated)
	var req models.Requisition
	testutil.DecodeEnvelope(t, w, &req)
	if req.Status != "pending" || len(req.Items) != 1 {
		t.Fatalf("unexpected requisition %+v", req)
	}
	lineID := req.Items[0].ID

	testutil.AssertStatus(t, testutil.Do(e.clerk, "POST", "/requisitions/1/approve", nil), http.StatusForbidden)

	w = testutil.Do(e.boss, "POST", "/requisitions/1/approve-partial", map[string]any{
		"items": []map[string]any{{"requisition_item_id": lineID, "approved_quantity": 15, "rejected_quantity": 5}},
		"notes": "five short",
	})
	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.DecodeEnvelope(t, w, &req)
	if req.Status != "partially_approved" {
		t.Errorf("status = %s, want partially_approved", req.Status)
	}

	w = testutil.Do(e.clerk, "POST", "/requisitions/1/issue", map[string]any{
		"items": []map[string]any{{"requisition_item_id": lineID, "quantity": 16}},
	})
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = testutil.Do(e.clerk, "POST", "/requisitions/1/issue", map[string]any{
		"items": []map[string]any{{"requisition_item_id": lineID, "quantity": 15}},
	})
	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.DecodeEnvelope(t, w, &req)
	if req.Status != "issued" {
		t.Errorf("status = %s, want issued", req.Status)
	}
	if q := testutil.ItemQuantity(t, e.store, screws); q != 35 {
		t.Errorf("stock after issue = %d, want 35", q)
	}

	testutil.AssertStatus(t, testutil.Do(e.clerk, "POST", "/requisitions/1/restore", nil), http.StatusOK)
	if q := testutil.ItemQuantity(t, e.store, screws); q != 50 {
		t.Errorf("stock after restore = %d, want 50", q)
	}

	w = testutil.Do(e.boss, "GET", "/requisitions?status=partially_approved", nil)
	testutil.AssertStatus(t, w, http.StatusOK)
	var list []models.Requisition
	testutil.DecodeEnvelope(t, w, &list)
	if len(list) != 1 {
		t.Errorf("expected 1 requisition, got %d", len(list))
	}

	testutil.AssertStatus(t, testutil.Do(e.boss, "DELETE", "/requisitions/1", nil), http.StatusOK)
	testutil.AssertStatus(t, testutil.Do(e.boss, "GET", "/requisitions/1", nil), http.StatusNotFound)
}

func TestRejectRequisition(t *testing.T) {
	e := setup(t)
	item := testutil.SeedItem(t, e.store, "GLU-01", "consumable", 5, "3.00")
	testutil.AssertStatus(t, testutil.Do(e.clerk, "POST", "/requisitions", map[string]any{
		"title": "Glue", "items": []map[string]any{{"item_id": item, "quantity": 2}},
	}), http.StatusCreated)

	w := testutil.Do(e.boss, "POST", "/requisitions/1/reject", map[string]any{"notes": "use stock on bench"})
	testutil.AssertStatus(t, w, http.StatusOK)
	var req models.Requisition
	testutil.DecodeEnvelope(t, w, &req)
	if req.Status != "rejected" {
		t.Errorf("status = %s, want rejected", req.Status)
	}
	testutil.AssertStatus(t, testutil.Do(e.boss, "POST", "/requisitions/1/approve", nil), http.StatusConflict)
}

func TestPurchaseOrderFlow(t *testing.T) {
	e := setup(t)
	ply := testutil.SeedItem(t, e.store, "PLY-18", "sheet_material", 2, "40.00")

	w := testutil.Do(e.clerk, "POST", "/suppliers", map[string]any{"name": "Timber Co"})
	testutil.AssertStatus(t, w, http.StatusCreated)
	var sp models.Supplier
	testutil.DecodeEnvelope(t, w, &sp)

	w = testutil.Do(e.clerk, "POST", "/purchase-orders", map[string]any{
		"supplier_id": sp.ID,
		"items":       []map[string]any{{"item_id": ply, "quantity": 10, "unit_price": "38.50"}},
	})
	testutil.AssertStatus(t, w, http.StatusCreated)
	var po models.PurchaseOrder
	testutil.DecodeEnvelope(t, w, &po)
	if po.Status != "draft" || po.TotalAmount.StringFixed(2) != "385.00" {
		t.Fatalf("unexpected PO %+v", po)
	}

	testutil.AssertStatus(t, testutil.Do(e.clerk, "POST", "/purchase-orders/1/order", nil), http.StatusConflict)
	testutil.AssertStatus(t, testutil.Do(e.clerk, "POST", "/purchase-orders/1/submit", nil), http.StatusOK)
	testutil.AssertStatus(t, testutil.Do(e.clerk, "POST", "/purchase-orders/1/approve", nil), http.StatusForbidden)
	testutil.AssertStatus(t, testutil.Do(e.boss, "POST", "/purchase-orders/1/approve", nil), http.StatusOK)
	testutil.AssertStatus(t, testutil.Do(e.clerk, "POST", "/purchase-orders/1/order", nil), http.StatusOK)

	lineID := po.Items[0].ID
	w = testutil.Do(e.clerk, "POST", "/purchase-orders/1/receive", map[string]any{
		"items": []map[string]any{{"po_item_id": lineID, "quantity": 4}},
	})
	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.DecodeEnvelope(t, w, &po)
	if po.Status != "partially_received" {
		t.Errorf("status = %s, want partially_received", po.Status)
	}

	testutil.AssertStatus(t, testutil.Do(e.clerk, "POST", "/purchase-orders/1/receive", map[string]any{
		"items": []map[string]any{{"po_item_id": lineID, "quantity": 7}},
	}), http.StatusBadRequest)

	w = testutil.Do(e.clerk, "POST", "/purchase-orders/1/receive", map[string]any{
		"items": []map[string]any{{"po_item_id": lineID, "quantity": 6}},
	})
	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.DecodeEnvelope(t, w, &po)
	if po.Status != "received" {
		t.Errorf("status = %s, want received", po.Status)
	}
	if q := testutil.ItemQuantity(t, e.store, ply); q != 12 {
		t.Errorf("stock = %d, want 12", q)
	}

	w = testutil.Do(e.clerk, "GET", "/purchase-orders/1/receipts", nil)
	testutil.AssertStatus(t, w, http.StatusOK)
	var receipts []models.PurchaseReceipt
	testutil.DecodeEnvelope(t, w, &receipts)
	if len(receipts) != 2 {
		t.Errorf("expected 2 receipts, got %d", len(receipts))
	}
	testutil.AssertStatus(t, testutil.Do(e.clerk, "POST", "/purchase-orders/1/cancel", nil), http.StatusConflict)
}

func TestSupplierActive(t *testing.T) {
	e := setup(t)
	testutil.AssertStatus(t, testutil.Do(e.clerk, "POST", "/suppliers", map[string]any{"name": "Hinges Ltd"}), http.StatusCreated)
	testutil.AssertStatus(t, testutil.Do(e.clerk, "PUT", "/suppliers/1/active", map[string]any{"active": false}), http.StatusOK)

	w := testutil.Do(e.clerk, "GET", "/suppliers?active=true", nil)
	var list []models.Supplier
	testutil.DecodeEnvelope(t, w, &list)
	if len(list) != 0 {
		t.Errorf("expected no active suppliers, got %d", len(list))
	}
	testutil.AssertStatus(t, testutil.Do(e.clerk, "GET", "/suppliers/9", nil), http.StatusNotFound)
}
