package configurator_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"fms/internal/cabinet"
	"fms/internal/cache"
	"fms/internal/database"
	handlers "fms/internal/handlers/configurator"
	"fms/internal/models"
	"fms/internal/testutil"
)

type env struct {
	store *database.Store
	boss  http.Handler
	clerk http.Handler
	ply   int64
}

func setup(t *testing.T) *env {
	t.Helper()
	store := testutil.SetupTestDB(t)
	svc := cabinet.New(store, cabinet.Options{Cache: cache.NewMemory(), DefaultLaborRate: decimal.NewFromInt(30)})
	h := &handlers.Handler{Cabinets: svc}
	r := chi.NewRouter()
	h.Routes(r)
	e := &env{
		store: store,
		boss:  testutil.AsActor(r, testutil.Approver(1)),
		clerk: testutil.AsActor(r, testutil.Clerk(1)),
		ply:   testutil.SeedItem(t, store, "PLY-BIRCH-18", "sheet_material", 100, "40.00"),
	}

	w := testutil.Do(e.boss, "POST", "/cabinet-models", map[string]any{
		"name":      "Base",
		"width":     map[string]string{"default": "24", "min": "18", "max": "36"},
		"height":    map[string]string{"default": "30", "min": "24", "max": "36"},
		"depth":     map[string]string{"default": "24", "min": "12", "max": "24"},
		"base_cost": "50",
	})
	testutil.AssertStatus(t, w, http.StatusCreated)
	testutil.AssertStatus(t, testutil.Do(e.boss, "PUT", "/cabinet-models/1/materials/1", map[string]any{"cost_factor_per_sqft": "2"}), http.StatusOK)
	return e
}

func TestCatalogAndCalculator(t *testing.T) {
	e := setup(t)

	w := testutil.Do(e.boss, "GET", "/cabinet-models/1", nil)
	testutil.AssertStatus(t, w, http.StatusOK)
	var m models.CabinetModel
	testutil.DecodeEnvelope(t, w, &m)
	if len(m.Materials) != 1 {
		t.Fatalf("expected one linked material, got %+v", m.Materials)
	}

	w = testutil.Do(e.clerk, "POST", "/cabinets/calculate", map[string]any{
		"model_id": 1, "width": "24", "height": "30", "depth": "24", "material_id": e.ply,
	})
	testutil.AssertStatus(t, w, http.StatusOK)
	var b cabinet.Breakdown
	testutil.DecodeEnvelope(t, w, &b)
	if !b.Total.Equal(decimal.NewFromInt(106)) {
		t.Errorf("total = %s, want 106", b.Total)
	}

	testutil.AssertStatus(t, testutil.Do(e.clerk, "POST", "/cabinets/calculate", map[string]any{
		"model_id": 1, "width": "48", "height": "30", "depth": "24", "material_id": e.ply,
	}), http.StatusBadRequest)
	testutil.AssertStatus(t, testutil.Do(e.clerk, "POST", "/cabinets/calculate", map[string]any{
		"model_id": 9, "width": "24", "height": "30", "depth": "24", "material_id": e.ply,
	}), http.StatusNotFound)

	w = testutil.Do(e.clerk, "POST", "/cabinets/generate-bom", map[string]any{
		"model_id": 1, "width": "24", "height": "30", "depth": "24", "material_id": e.ply,
	})
	testutil.AssertStatus(t, w, http.StatusOK)
	var v cabinet.VirtualBOM
	testutil.DecodeEnvelope(t, w, &v)
	if len(v.Operations) != 4 {
		t.Errorf("expected 4 operations, got %d", len(v.Operations))
	}

	testutil.AssertStatus(t, testutil.Do(e.boss, "DELETE", "/cabinet-models/1/materials/7", nil), http.StatusNotFound)
}

func TestProjectConversion(t *testing.T) {
	e := setup(t)

	testutil.AssertStatus(t, testutil.Do(e.clerk, "POST", "/projects", map[string]any{"name": "Smith kitchen"}), http.StatusCreated)
	w := testutil.Do(e.clerk, "POST", "/projects/1/cabinets", map[string]any{"model_id": 1, "material_id": e.ply, "quantity": 2})
	testutil.AssertStatus(t, w, http.StatusCreated)
	var p models.KitchenProject
	testutil.DecodeEnvelope(t, w, &p)
	if len(p.Cabinets) != 1 || !p.TotalCost.Equal(decimal.NewFromInt(212)) {
		t.Fatalf("unexpected project %+v", p)
	}

	path := "/projects/1/cabinets/" + itoa(p.Cabinets[0].ID) + "/convert"
	w = testutil.Do(e.clerk, "POST", path, nil)
	testutil.AssertStatus(t, w, http.StatusCreated)
	var b models.BOM
	testutil.DecodeEnvelope(t, w, &b)
	if b.ID == 0 || len(b.Operations) != 4 {
		t.Errorf("unexpected BOM %+v", b)
	}
	testutil.AssertStatus(t, testutil.Do(e.clerk, "POST", path, nil), http.StatusConflict)
	testutil.AssertStatus(t, testutil.Do(e.clerk, "POST", path, map[string]any{"labor_rate": "-1"}), http.StatusBadRequest)

	testutil.AssertStatus(t, testutil.Do(e.clerk, "PUT", "/projects/1/status", map[string]any{"status": "nonsense"}), http.StatusBadRequest)
	testutil.AssertStatus(t, testutil.Do(e.clerk, "PUT", "/projects/1/status", map[string]any{"status": "cancelled"}), http.StatusOK)
	testutil.AssertStatus(t, testutil.Do(e.clerk, "POST", "/projects/1/cabinets", map[string]any{"model_id": 1, "material_id": e.ply}), http.StatusConflict)

	testutil.AssertStatus(t, testutil.Do(e.clerk, "DELETE", "/projects/1", nil), http.StatusOK)
	if n := testutil.CountRows(t, e.store, "boms", ""); n != 1 {
		t.Errorf("generated BOM should survive project deletion, found %d", n)
	}
}

const catalog = `
models:
  - name: Wall Cabinet
    width: {default: 30, min: 12, max: 42}
    height: {default: 30, min: 12, max: 42}
    depth: {default: 12, min: 10, max: 14}
    base_cost: 35
    materials:
      - sku: PLY-BIRCH-18
        cost_factor_per_sqft: 1.5
`

func TestSeedCatalog(t *testing.T) {
	e := setup(t)

	w := httptest.NewRecorder()
	e.clerk.ServeHTTP(w, httptest.NewRequest("POST", "/cabinet-models/seed", bytes.NewBufferString(catalog)))
	testutil.AssertStatus(t, w, http.StatusForbidden)

	w = httptest.NewRecorder()
	e.boss.ServeHTTP(w, httptest.NewRequest("POST", "/cabinet-models/seed", bytes.NewBufferString(catalog)))
	testutil.AssertStatus(t, w, http.StatusOK)
	var res cabinet.SeedResult
	testutil.DecodeEnvelope(t, w, &res)
	if len(res.Created) != 1 || res.Created[0] != "Wall Cabinet" {
		t.Errorf("unexpected seed result %+v", res)
	}
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
