package ledger_test

import (
	"context"
	"testing"

	"fms/internal/apperr"
	"fms/internal/database"
	"fms/internal/ledger"
	"fms/internal/testutil"
)

func TestIncrementDecrementWriteMovements(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()
	l := ledger.New(nil)
	item := testutil.SeedItem(t, store, "PLY-18", "sheet_material", 10, "12.50")

	if err := l.Increment(ctx, store.DB, ledger.Entry{ItemID: item, Quantity: 5, ReferenceType: ledger.RefPurchaseOrder, ReferenceID: 3}); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if err := l.Decrement(ctx, store.DB, ledger.Entry{ItemID: item, Quantity: 7, ReferenceType: ledger.RefRequisition, ReferenceID: 1}); err != nil {
		t.Fatalf("Decrement: %v", err)
	}
	if got := testutil.ItemQuantity(t, store, item); got != 8 {
		t.Errorf("quantity = %d, want 8", got)
	}

	hist, err := ledger.History(ctx, store.DB, ledger.HistoryFilter{ItemID: item})
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 movements, got %d", len(hist))
	}
	if hist[0].MovementType != ledger.Out || hist[0].Quantity != 7 || *hist[0].ReferenceID != 1 {
		t.Errorf("unexpected latest movement %+v", hist[0])
	}
	if hist[1].MovementType != ledger.In || hist[1].ReferenceType != ledger.RefPurchaseOrder {
		t.Errorf("unexpected first movement %+v", hist[1])
	}
}

func TestDecrementInsufficientStock(t *testing.T) {
	store := testutil.SetupTestDB(t)
	l := ledger.New(nil)
	item := testutil.SeedItem(t, store, "HNG-35", "hardware_accessory", 3, "1.20")

	err := l.Decrement(context.Background(), store.DB, ledger.Entry{ItemID: item, Quantity: 4})
	if !apperr.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if got := testutil.ItemQuantity(t, store, item); got != 3 {
		t.Errorf("quantity changed to %d", got)
	}
	if n := testutil.CountRows(t, store, "stock_movements", ""); n != 0 {
		t.Errorf("expected no movements, got %d", n)
	}
}

func TestUnknownItem(t *testing.T) {
	store := testutil.SetupTestDB(t)
	l := ledger.New(nil)
	if err := l.Increment(context.Background(), store.DB, ledger.Entry{ItemID: 999, Quantity: 1}); !apperr.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
	if _, err := ledger.Stock(context.Background(), store.DB, []int64{999}); !apperr.IsNotFound(err) {
		t.Errorf("expected NotFoundError from Stock, got %v", err)
	}
}

func TestSetLogsAdjustMagnitude(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()
	l := ledger.New(nil)
	item := testutil.SeedItem(t, store, "OAK-RAW", "raw_material", 20, "3")

	delta, err := l.Set(ctx, store.DB, ledger.Entry{ItemID: item}, 12)
	if err != nil {
		t.Fatal(err)
	}
	if delta != -8 {
		t.Errorf("delta = %d, want -8", delta)
	}
	hist, _ := ledger.History(ctx, store.DB, ledger.HistoryFilter{ItemID: item})
	if len(hist) != 1 || hist[0].MovementType != ledger.Adjust || hist[0].Quantity != 8 {
		t.Errorf("unexpected history %+v", hist)
	}

	if _, err := l.Set(ctx, store.DB, ledger.Entry{ItemID: item}, 12); err != nil {
		t.Fatal(err)
	}
	if n := testutil.CountRows(t, store, "stock_movements", "item_id = ?", item); n != 1 {
		t.Errorf("no-op adjust should not log, got %d movements", n)
	}
}

func TestRollbackUndoesQuantityAndMovement(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()
	l := ledger.New(nil)
	a := testutil.SeedItem(t, store, "A", "raw_material", 5, "1")
	b := testutil.SeedItem(t, store, "B", "raw_material", 1, "1")

	err := store.InTx(ctx, func(q database.Querier) error {
		if err := l.Decrement(ctx, q, ledger.Entry{ItemID: a, Quantity: 2}); err != nil {
			return err
		}
		return l.Decrement(ctx, q, ledger.Entry{ItemID: b, Quantity: 2})
	})
	if !apperr.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if got := testutil.ItemQuantity(t, store, a); got != 5 {
		t.Errorf("item A quantity = %d after rollback, want 5", got)
	}
	if n := testutil.CountRows(t, store, "stock_movements", ""); n != 0 {
		t.Errorf("expected no movements after rollback, got %d", n)
	}
}
