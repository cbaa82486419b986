package allocation

import (
	"errors"
	"testing"

	"fms/internal/apperr"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name                          string
		requested, approved, rejected int64
		want                          Status
	}{
		{"undecided", 10, 0, 0, Pending},
		{"fully approved", 10, 10, 0, Approved},
		{"fully rejected", 10, 0, 10, Rejected},
		{"split decision", 10, 6, 4, PartiallyApproved},
		{"partial approval only", 10, 6, 0, PartiallyApproved},
		{"partial rejection only", 10, 0, 3, PartiallyApproved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.requested, tt.approved, tt.rejected); got != tt.want {
				t.Errorf("Classify(%d,%d,%d) = %s, want %s", tt.requested, tt.approved, tt.rejected, got, tt.want)
			}
		})
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name string
		in   []Status
		want Status
	}{
		{"empty", nil, Pending},
		{"all approved", []Status{Approved, Approved}, Approved},
		{"all rejected", []Status{Rejected, Rejected}, Rejected},
		{"partial wins", []Status{Approved, PartiallyApproved}, PartiallyApproved},
		{"partial wins reversed", []Status{PartiallyApproved, Approved}, PartiallyApproved},
		{"approved and rejected", []Status{Rejected, Approved}, Pending},
		{"approved and rejected reversed", []Status{Approved, Rejected}, Pending},
		{"undecided remain", []Status{Approved, Pending}, Pending},
		{"all pending", []Status{Pending, Pending}, Pending},
		{"partial with pending", []Status{Pending, PartiallyApproved}, PartiallyApproved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Aggregate(tt.in); got != tt.want {
				t.Errorf("Aggregate(%v) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestAggregateOrderIndependent(t *testing.T) {
	statuses := []Status{Approved, Rejected, Pending, PartiallyApproved}
	want := Aggregate(statuses)
	perms := [][]Status{
		{Rejected, Approved, PartiallyApproved, Pending},
		{PartiallyApproved, Pending, Rejected, Approved},
		{Pending, PartiallyApproved, Approved, Rejected},
	}
	for _, p := range perms {
		if got := Aggregate(p); got != want {
			t.Errorf("Aggregate(%v) = %s, want %s", p, got, want)
		}
	}
}

func TestValidateDecision(t *testing.T) {
	line := Line{ID: 5, Requested: 10}

	if err := ValidateDecision("requisition_item", line, 6, 4); err != nil {
		t.Errorf("6+4 of 10 should be valid: %v", err)
	}

	err := ValidateDecision("requisition_item", line, 7, 4)
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.ID != 5 || ve.Limit != int64(10) {
		t.Errorf("error should name item 5 and limit 10, got %+v", ve)
	}

	if err := ValidateDecision("requisition_item", line, -1, 0); !apperr.IsValidation(err) {
		t.Errorf("negative approved should fail, got %v", err)
	}
	if err := ValidateDecision("requisition_item", line, 0, -2); !apperr.IsValidation(err) {
		t.Errorf("negative rejected should fail, got %v", err)
	}
}

func TestPlanIssuance(t *testing.T) {
	lines := map[int64]Line{
		1: {ID: 1, ItemID: 100, Requested: 10, Approved: 10, Issued: 2},
		2: {ID: 2, ItemID: 200, Requested: 5, Approved: 5},
		3: {ID: 3, ItemID: 100, Requested: 4, Approved: 4},
	}
	stock := map[int64]int64{100: 9, 200: 5}

	t.Run("valid batch", func(t *testing.T) {
		allocs, err := PlanIssuance("requisition_item", lines, []Request{{1, 8}, {2, 3}}, stock)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(allocs) != 2 {
			t.Fatalf("expected 2 allocations, got %d", len(allocs))
		}
		if !allocs[0].FullyIssued || allocs[0].NewIssued != 10 {
			t.Errorf("line 1 should be fully issued at 10, got %+v", allocs[0])
		}
		if allocs[1].FullyIssued || allocs[1].NewIssued != 3 {
			t.Errorf("line 2 should be partial at 3, got %+v", allocs[1])
		}
	})

	t.Run("exceeds remaining", func(t *testing.T) {
		_, err := PlanIssuance("requisition_item", lines, []Request{{1, 9}}, stock)
		var ve *apperr.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if ve.ID != 1 || ve.Limit != int64(8) {
			t.Errorf("expected item 1 with limit 8, got %+v", ve)
		}
	})

	t.Run("stock is cumulative per item", func(t *testing.T) {
		// lines 1 and 3 share item 100 with 9 on hand
		_, err := PlanIssuance("requisition_item", lines, []Request{{1, 6}, {3, 4}}, stock)
		var ve *apperr.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if ve.Entity != "inventory_item" || ve.ID != 100 || ve.Limit != int64(3) {
			t.Errorf("expected inventory item 100 with 3 available, got %+v", ve)
		}
	})

	t.Run("remaining is cumulative per line", func(t *testing.T) {
		_, err := PlanIssuance("requisition_item", lines, []Request{{2, 3}, {2, 3}}, stock)
		if !apperr.IsValidation(err) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("non positive", func(t *testing.T) {
		_, err := PlanIssuance("requisition_item", lines, []Request{{2, 0}}, stock)
		if !apperr.IsValidation(err) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("unknown line", func(t *testing.T) {
		_, err := PlanIssuance("requisition_item", lines, []Request{{99, 1}}, stock)
		if !apperr.IsNotFound(err) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
	})

	t.Run("empty batch", func(t *testing.T) {
		_, err := PlanIssuance("requisition_item", lines, nil, stock)
		if !apperr.IsValidation(err) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})
}

func TestIssuedStatus(t *testing.T) {
	if !IssuedStatus([]Line{{Approved: 5, Issued: 5}, {Approved: 0, Rejected: 3}}) {
		t.Error("rejected-only lines should not block completion")
	}
	if IssuedStatus([]Line{{Approved: 5, Issued: 5}, {Approved: 2, Issued: 1}}) {
		t.Error("partially issued line should block completion")
	}
}
