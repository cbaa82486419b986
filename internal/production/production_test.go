package production_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"fms/internal/apperr"
	"fms/internal/bom"
	"fms/internal/database"
	"fms/internal/ledger"
	"fms/internal/models"
	"fms/internal/production"
	"fms/internal/testutil"
)

var d = decimal.RequireFromString

func id(v int64) *int64 { return &v }

type fixture struct {
	t       *testing.T
	store   *database.Store
	boms    *bom.Service
	svc     *production.Service
	actor   models.Actor
	ply     int64
	screw   int64
	door    int64
	cabinet int64
	bomID   int64
}

// setup builds a cabinet BOM yielding two cabinets per batch, drawing
// screws, plywood and a door sub-assembly.
func setup(t *testing.T) *fixture {
	t.Helper()
	store := testutil.SetupTestDB(t)
	f := &fixture{
		t:     t,
		store: store,
		boms:  bom.New(store, nil, nil),
		svc:   production.New(store, ledger.New(nil), nil, nil, nil, nil),
		actor: testutil.Approver(1),
	}
	f.ply = testutil.SeedItem(t, store, "PLY-18", "sheet_material", 50, "40.00")
	f.screw = testutil.SeedItem(t, store, "SCR-01", "hardware_accessory", 1000, "0.10")
	f.door = testutil.SeedItem(t, store, "DOOR-1", "semi_finished_product", 10, "26.00")
	f.cabinet = testutil.SeedItem(t, store, "CAB-BASE", "finished_product", 0, "0")
	ctx := context.Background()

	door, err := f.boms.Create(ctx, f.actor, bom.Draft{
		Name: "Door", ProductItemID: id(f.door),
		Components: []bom.ComponentInput{{ItemID: id(f.ply), Quantity: d("0.5")}},
	})
	if err != nil {
		t.Fatal(err)
	}
	b, err := f.boms.Create(ctx, f.actor, bom.Draft{
		Name: "Base cabinet", ProductItemID: id(f.cabinet), Status: bom.StatusActive, OutputQuantity: 2,
		Components: []bom.ComponentInput{
			{ItemID: id(f.screw), Quantity: d("10"), WasteFactor: d("0.05")},
			{ItemID: id(f.ply), Quantity: d("1.5")},
			{SubBOMID: id(door.ID), Quantity: d("2")},
		},
		Operations: []bom.OperationInput{
			{Name: "cut", EstimatedMinutes: d("30"), LaborRate: d("60")},
			{Name: "assemble", EstimatedMinutes: d("45"), LaborRate: d("40")},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	f.bomID = b.ID
	return f
}

func (f *fixture) order(qty int64) models.ProductionOrder {
	f.t.Helper()
	o, err := f.svc.CreateFromBOM(context.Background(), f.actor, production.CreateInput{BOMID: f.bomID, Quantity: qty, DueDate: "2026-11-01"})
	if err != nil {
		f.t.Fatalf("CreateFromBOM: %v", err)
	}
	return o
}

func required(o models.ProductionOrder, itemID int64) models.ProductionOrderItem {
	for _, it := range o.Items {
		if it.ItemID == itemID {
			return it
		}
	}
	return models.ProductionOrderItem{}
}

func TestCreateFromBOMPlansRequirements(t *testing.T) {
	f := setup(t)
	o := f.order(3)

	if o.OrderNumber != "PRD-000001" || o.Status != production.StatusDraft || o.Priority != "normal" {
		t.Errorf("unexpected header %+v", o)
	}
	// ceil(10*1.05*3/2)=16, ceil(1.5*3/2)=3, 2*3/2=3 doors
	want := map[int64]int64{f.screw: 16, f.ply: 3, f.door: 3}
	if len(o.Items) != 3 {
		t.Fatalf("expected 3 requirement lines, got %+v", o.Items)
	}
	for item, qty := range want {
		if got := required(o, item).RequiredQuantity; got != qty {
			t.Errorf("item %d required = %d, want %d", item, got, qty)
		}
	}
	if len(o.Operations) != 2 || !o.Operations[0].PlannedMinutes.Equal(d("90")) || !o.Operations[1].PlannedMinutes.Equal(d("135")) {
		t.Errorf("unexpected operations %+v", o.Operations)
	}
	// materials 1.60+120+78, labor 90+90
	if !o.PlannedCost.Equal(d("379.6")) {
		t.Errorf("planned cost = %s, want 379.6", o.PlannedCost)
	}
	if o.ActualCost.Valid {
		t.Errorf("actual cost set on a draft order")
	}
}

func TestCreateFromBOMRefusesRetiredBOM(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	if _, err := f.boms.UpdateStatus(ctx, f.actor, f.bomID, bom.StatusInactive); err != nil {
		t.Fatal(err)
	}
	_, err := f.svc.CreateFromBOM(ctx, f.actor, production.CreateInput{BOMID: f.bomID, Quantity: 1})
	if !apperr.IsConflict(err) {
		t.Errorf("expected ConflictError, got %v", err)
	}
	_, err = f.svc.CreateFromBOM(ctx, f.actor, production.CreateInput{BOMID: 999, Quantity: 1})
	if !apperr.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
	_, err = f.svc.CreateFromBOM(ctx, f.actor, production.CreateInput{BOMID: f.bomID, Quantity: 0, Priority: "asap"})
	if !apperr.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestSubAssemblyWithoutProductItem(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	loose, err := f.boms.Create(ctx, f.actor, bom.Draft{Name: "Loose kit",
		Components: []bom.ComponentInput{{ItemID: id(f.screw), Quantity: d("4")}}})
	if err != nil {
		t.Fatal(err)
	}
	parent, err := f.boms.Create(ctx, f.actor, bom.Draft{Name: "Kit user",
		Components: []bom.ComponentInput{{SubBOMID: id(loose.ID), Quantity: d("1")}}})
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.CreateFromBOM(ctx, f.actor, production.CreateInput{BOMID: parent.ID, Quantity: 1})
	if !apperr.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestPlanAndCancelTransitions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	o := f.order(2)

	planned, err := f.svc.Plan(ctx, f.actor, o.ID)
	if err != nil || planned.Status != production.StatusPlanned {
		t.Fatalf("Plan: %v %s", err, planned.Status)
	}
	if _, err := f.svc.Plan(ctx, f.actor, o.ID); !apperr.IsConflict(err) {
		t.Errorf("expected ConflictError planning twice, got %v", err)
	}
	cancelled, err := f.svc.Cancel(ctx, f.actor, o.ID)
	if err != nil || cancelled.Status != production.StatusCancelled {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := f.svc.Cancel(ctx, f.actor, o.ID); !apperr.IsConflict(err) {
		t.Errorf("expected ConflictError cancelling twice, got %v", err)
	}
}

func TestIssueMaterials(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	o := f.order(3)
	screws := required(o, f.screw)
	ply := required(o, f.ply)

	lines := []production.IssueLine{{ProductionOrderItemID: screws.ID, Quantity: 10}, {ProductionOrderItemID: ply.ID, Quantity: 3}}
	if _, err := f.svc.IssueMaterials(ctx, f.actor, o.ID, lines); !apperr.IsConflict(err) {
		t.Fatalf("expected ConflictError issuing to a draft order, got %v", err)
	}
	if _, err := f.svc.Plan(ctx, f.actor, o.ID); err != nil {
		t.Fatal(err)
	}

	got, err := f.svc.IssueMaterials(ctx, f.actor, o.ID, lines)
	if err != nil {
		t.Fatalf("IssueMaterials: %v", err)
	}
	if required(got, f.screw).IssuedQuantity != 10 || required(got, f.ply).IssuedQuantity != 3 {
		t.Errorf("unexpected issued quantities %+v", got.Items)
	}
	if testutil.ItemQuantity(t, f.store, f.screw) != 990 || testutil.ItemQuantity(t, f.store, f.ply) != 47 {
		t.Errorf("stock not decremented")
	}
	if n := testutil.CountRows(t, f.store, "stock_movements", "reference_type = 'production_order' AND reference_id = ?", o.ID); n != 2 {
		t.Errorf("movements = %d, want 2", n)
	}

	_, err = f.svc.IssueMaterials(ctx, f.actor, o.ID, []production.IssueLine{{ProductionOrderItemID: screws.ID, Quantity: 7}})
	if !apperr.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve := err.(*apperr.ValidationError); ve.Limit != int64(6) {
		t.Errorf("limit = %v, want 6", ve.Limit)
	}
	if testutil.ItemQuantity(t, f.store, f.screw) != 990 {
		t.Errorf("stock changed after rejected issue")
	}
}

func TestOperationsDriveOrderStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	o := f.order(2)
	cut, assemble := o.Operations[0].ID, o.Operations[1].ID

	if _, _, err := f.svc.UpdateOperationStatus(ctx, f.actor, o.ID, cut, production.OpInProgress, ""); !apperr.IsConflict(err) {
		t.Fatalf("expected ConflictError starting work on a draft order, got %v", err)
	}
	if draft, _ := f.svc.Get(ctx, o.ID); draft.Status != production.StatusDraft || draft.Operations[0].Status != production.OpPending {
		t.Fatalf("refused update changed the order: %+v", draft)
	}
	if _, err := f.svc.Plan(ctx, f.actor, o.ID); err != nil {
		t.Fatal(err)
	}

	got, ready, err := f.svc.UpdateOperationStatus(ctx, f.actor, o.ID, cut, production.OpInProgress, "")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != production.StatusInProgress || got.StartedAt == nil || ready {
		t.Errorf("expected started order, got %s ready=%v", got.Status, ready)
	}
	if got.Operations[0].OperatorID == nil || *got.Operations[0].OperatorID != f.actor.UserID {
		t.Errorf("operator not recorded: %+v", got.Operations[0])
	}

	if _, _, err := f.svc.UpdateOperationStatus(ctx, f.actor, o.ID, assemble, production.OpCompleted, ""); !apperr.IsConflict(err) {
		t.Errorf("expected ConflictError for pending -> completed, got %v", err)
	}
	if _, _, err := f.svc.UpdateOperationStatus(ctx, f.actor, o.ID, 9999, production.OpSkipped, ""); !apperr.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}

	if _, err := f.svc.Complete(ctx, f.actor, o.ID, production.CompleteInput{QuantityProduced: 2, QualityCheckPassed: true}); !apperr.IsConflict(err) {
		t.Errorf("expected ConflictError completing with open operations, got %v", err)
	}

	_, ready, err = f.svc.UpdateOperationStatus(ctx, f.actor, o.ID, assemble, production.OpSkipped, "jig broken")
	if err != nil || ready {
		t.Fatalf("skip assemble: %v ready=%v", err, ready)
	}
	got, ready, err = f.svc.UpdateOperationStatus(ctx, f.actor, o.ID, cut, production.OpCompleted, "")
	if err != nil {
		t.Fatal(err)
	}
	if !ready || got.Status != production.StatusInProgress {
		t.Errorf("expected ready in_progress order, got %s ready=%v", got.Status, ready)
	}
	reloaded, err := f.svc.Get(ctx, o.ID)
	if err != nil || !reloaded.ReadyForCompletion {
		t.Errorf("Get should report the order ready: %v ready=%v", err, reloaded.ReadyForCompletion)
	}
	listed, _, err := f.svc.List(ctx, production.Filter{Status: production.StatusInProgress})
	if err != nil || len(listed) != 1 || !listed[0].ReadyForCompletion {
		t.Errorf("List should report the order ready: %v %+v", err, listed)
	}

	done, err := f.svc.Complete(ctx, f.actor, o.ID, production.CompleteInput{QuantityProduced: 2, QualityCheckPassed: true})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != production.StatusCompleted || done.CompletedAt == nil {
		t.Errorf("unexpected completed order %+v", done)
	}
	if !done.ActualCost.Valid || !done.ActualCost.Decimal.Equal(done.PlannedCost) {
		t.Errorf("actual cost = %+v, want planned %s", done.ActualCost, done.PlannedCost)
	}
	if q := testutil.ItemQuantity(t, f.store, f.cabinet); q != 2 {
		t.Errorf("finished stock = %d, want 2", q)
	}
	comps, err := f.svc.Completions(ctx, o.ID)
	if err != nil || len(comps) != 1 || !comps[0].QualityCheckPassed {
		t.Errorf("completions = %+v, %v", comps, err)
	}

	if _, _, err := f.svc.UpdateOperationStatus(ctx, f.actor, o.ID, cut, production.OpSkipped, ""); !apperr.IsConflict(err) {
		t.Errorf("expected ConflictError on a completed order, got %v", err)
	}
}

func TestFailedQualityCheckLeavesStock(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b, err := f.boms.Create(ctx, f.actor, bom.Draft{Name: "Shelf", ProductItemID: id(f.cabinet),
		Components: []bom.ComponentInput{{ItemID: id(f.ply), Quantity: d("1")}}})
	if err != nil {
		t.Fatal(err)
	}
	o, err := f.svc.CreateFromBOM(ctx, f.actor, production.CreateInput{BOMID: b.ID, Quantity: 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Complete(ctx, f.actor, o.ID, production.CompleteInput{QuantityProduced: 1}); !apperr.IsConflict(err) {
		t.Errorf("expected ConflictError completing a draft order, got %v", err)
	}
	if _, err := f.svc.Plan(ctx, f.actor, o.ID); err != nil {
		t.Fatal(err)
	}

	done, err := f.svc.Complete(ctx, f.actor, o.ID, production.CompleteInput{QuantityProduced: 1, QualityCheckPassed: false, Notes: "warped"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != production.StatusCompleted {
		t.Errorf("status = %s", done.Status)
	}
	if q := testutil.ItemQuantity(t, f.store, f.cabinet); q != 0 {
		t.Errorf("finished stock = %d after failed quality check", q)
	}
}

func TestListOrdersByDueDate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	late, err := f.svc.CreateFromBOM(ctx, f.actor, production.CreateInput{BOMID: f.bomID, Quantity: 1, DueDate: "2026-12-01", Priority: "low"})
	if err != nil {
		t.Fatal(err)
	}
	soon := f.order(1)
	undated, err := f.svc.CreateFromBOM(ctx, f.actor, production.CreateInput{BOMID: f.bomID, Quantity: 1})
	if err != nil {
		t.Fatal(err)
	}

	all, total, err := f.svc.List(ctx, production.Filter{})
	if err != nil || total != 3 {
		t.Fatalf("List: %d %v", total, err)
	}
	if all[0].ID != soon.ID || all[1].ID != late.ID || all[2].ID != undated.ID {
		t.Errorf("unexpected order %d %d %d", all[0].ID, all[1].ID, all[2].ID)
	}
	low, _, _ := f.svc.List(ctx, production.Filter{Priority: "low"})
	if len(low) != 1 || low[0].ID != late.ID {
		t.Errorf("priority filter returned %+v", low)
	}
}
