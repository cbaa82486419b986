package validation

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidationErrorsCollect(t *testing.T) {
	ve := &ValidationErrors{}
	RequireField(ve, "title", "  ")
	ValidateEnum(ve, "status", "bogus", ValidRequisitionStatuses)
	ValidatePositiveInt(ve, "quantity", 0)
	ValidateNonNegativeDecimal(ve, "unit_price", decimal.NewFromInt(-1))
	ValidateDate(ve, "due_date", "2024-13-01")

	if len(ve.Errors) != 5 {
		t.Fatalf("expected 5 errors, got %d: %v", len(ve.Errors), ve.Errors)
	}
	if !strings.Contains(ve.Error(), "title: is required") {
		t.Errorf("unexpected message %q", ve.Error())
	}
}

func TestValidationErrorsErrNil(t *testing.T) {
	ve := &ValidationErrors{}
	ValidateEnum(ve, "status", "", ValidRequisitionStatuses)
	ValidateEnum(ve, "status", "pending", ValidRequisitionStatuses)
	ValidateEmail(ve, "email", "buyer@example.com")
	ValidateSKU(ve, "sku", "PLY-18MM")
	if err := ve.Err(); err != nil {
		t.Fatalf("expected no errors, got %v", err)
	}
}

func TestValidateSKU(t *testing.T) {
	tests := []struct {
		sku  string
		want bool
	}{
		{"PLY-18MM", true},
		{"hinge_35.soft", true},
		{"", false},
		{"-bad", false},
		{"has space", false},
	}
	for _, tt := range tests {
		ve := &ValidationErrors{}
		ValidateSKU(ve, "sku", tt.sku)
		if got := !ve.HasErrors(); got != tt.want {
			t.Errorf("ValidateSKU(%q) valid=%v, want %v", tt.sku, got, tt.want)
		}
	}
}
