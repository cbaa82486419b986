package database_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"fms/internal/database"
	"fms/internal/testutil"
)

func TestMigrationsCreateSchema(t *testing.T) {
	store := testutil.SetupTestDB(t)
	tables := []string{
		"units", "users", "sequences", "inventory_items", "stock_movements", "audit_log",
		"requisitions", "requisition_items",
		"cabinet_models", "cabinet_materials", "cabinet_accessories", "kitchen_projects", "kitchen_project_cabinets",
		"boms", "bom_components", "bom_operations",
		"production_orders", "production_order_items", "production_order_operations", "production_completions",
		"suppliers", "purchase_orders", "purchase_order_items", "purchase_receipts",
	}
	for _, tbl := range tables {
		var name string
		err := store.DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", tbl).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", tbl, err)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := testutil.SetupTestDB(t)
	if err := database.Migrate(context.Background(), store.DB); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	store := testutil.SetupTestDB(t)
	_, err := store.DB.Exec(`INSERT INTO stock_movements (item_id, movement_type, quantity) VALUES (999, 'in', 1)`)
	if err == nil {
		t.Fatal("expected foreign key violation")
	}
}

func TestCheckConstraints(t *testing.T) {
	store := testutil.SetupTestDB(t)
	item := testutil.SeedItem(t, store, "X-1", "raw_material", 1, "1")
	res, err := store.DB.Exec(`INSERT INTO requisitions (requisition_number, title, requester_id) VALUES ('REQ-T', 't', 1)`)
	if err != nil {
		t.Fatal(err)
	}
	reqID, _ := res.LastInsertId()
	_, err = store.DB.Exec(`INSERT INTO requisition_items (requisition_id, item_id, quantity, approved_quantity, rejected_quantity)
		VALUES (?, ?, 5, 4, 2)`, reqID, item)
	if err == nil {
		t.Error("approved + rejected > quantity should violate CHECK")
	}
	_, err = store.DB.Exec(`INSERT INTO inventory_items (sku, name, item_type) VALUES ('Y-1', 'y', 'spaceship')`)
	if err == nil {
		t.Error("unknown item_type should violate CHECK")
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.InTx(ctx, func(q database.Querier) error {
		if _, err := q.ExecContext(ctx, "INSERT INTO units (name) VALUES ('sheet')"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if n := testutil.CountRows(t, store, "units", ""); n != 0 {
		t.Errorf("expected rollback, found %d units", n)
	}
}

func TestInTxRollsBackOnPanic(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	func() {
		defer func() { _ = recover() }()
		_ = store.InTx(ctx, func(q database.Querier) error {
			if _, err := q.ExecContext(ctx, "INSERT INTO units (name) VALUES ('pcs')"); err != nil {
				return err
			}
			panic("boom")
		})
	}()
	if n := testutil.CountRows(t, store, "units", ""); n != 0 {
		t.Errorf("expected rollback after panic, found %d units", n)
	}
}

func TestNextNumber(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	first, err := database.NextNumber(ctx, store.DB, "requisition", "REQ")
	if err != nil {
		t.Fatal(err)
	}
	second, _ := database.NextNumber(ctx, store.DB, "requisition", "REQ")
	other, _ := database.NextNumber(ctx, store.DB, "purchase_order", "PO")
	if first != "REQ-000001" || second != "REQ-000002" || other != "PO-000001" {
		t.Errorf("got %s, %s, %s", first, second, other)
	}
}

func TestNextNumberConcurrentUnique(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	var mu sync.Mutex
	seen := map[string]bool{}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := database.NextNumber(ctx, store.DB, "bom", "BOM")
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			seen[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != 20 {
		t.Errorf("expected 20 unique numbers, got %d", len(seen))
	}
}

func TestNextNumberRolledBackWithTx(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()
	_ = store.InTx(ctx, func(q database.Querier) error {
		if _, err := database.NextNumber(ctx, q, "requisition", "REQ"); err != nil {
			return err
		}
		return errors.New("abort")
	})
	n, err := database.NextNumber(ctx, store.DB, "requisition", "REQ")
	if err != nil {
		t.Fatal(err)
	}
	if n != "REQ-000001" {
		t.Errorf("rolled back sequence leaked: got %s", n)
	}
}

func TestPlaceholders(t *testing.T) {
	if got := database.Placeholders(3); got != "?,?,?" {
		t.Errorf("Placeholders(3) = %q", got)
	}
	if got := database.Placeholders(0); got != "" {
		t.Errorf("Placeholders(0) = %q", got)
	}
}
