package configurator

import (
	"net/http"

	"github.com/shopspring/decimal"

	"fms/internal/cabinet"
	"fms/internal/models"
	"fms/internal/response"
)

type configRequest struct {
	ModelID int64 `json:"model_id"`
	cabinet.Dimensions
	MaterialID  int64                       `json:"material_id"`
	Accessories []models.AccessorySelection `json:"accessories"`
	LaborRate   decimal.Decimal             `json:"labor_rate"`
}

// Calculate handles POST /api/v1/cabinets/calculate. Amounts in the reply
// are rounded to cents.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var in configRequest
	if err := response.DecodeBody(w, r, &in); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	b, err := h.Cabinets.CalculateCost(r.Context(), in.ModelID, in.Dimensions, in.MaterialID, in.Accessories)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, b.Rounded())
}

// GenerateBOM handles POST /api/v1/cabinets/generate-bom. Nothing is stored.
func (h *Handler) GenerateBOM(w http.ResponseWriter, r *http.Request) {
	var in configRequest
	if err := response.DecodeBody(w, r, &in); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	v, err := h.Cabinets.GenerateBOM(r.Context(), in.ModelID, in.Dimensions, in.MaterialID, in.Accessories, in.LaborRate)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, v)
}
