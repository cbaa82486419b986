package manufacturing

import (
	"net/http"

	"github.com/shopspring/decimal"

	"fms/internal/apperr"
	"fms/internal/bom"
	"fms/internal/response"
	"fms/internal/server"
)

// ListBOMs handles GET /api/v1/boms.
func (h *Handler) ListBOMs(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := server.Page(r)
	list, total, err := h.BOMs.List(r.Context(), bom.Filter{
		Status:        r.URL.Query().Get("status"),
		ProductItemID: server.Int64Query(r, "product_item_id"),
		Search:        r.URL.Query().Get("q"),
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSONMeta(w, list, total, page, limit)
}

// GetBOM handles GET /api/v1/boms/{id}.
func (h *Handler) GetBOM(w http.ResponseWriter, r *http.Request) {
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	b, err := h.BOMs.Get(r.Context(), id)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, b)
}

// CreateBOM handles POST /api/v1/boms.
func (h *Handler) CreateBOM(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	var d bom.Draft
	if err := response.DecodeBody(w, r, &d); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	b, err := h.BOMs.Create(r.Context(), actor, d)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.Created(w, b)
}

// UpdateBOMStatus handles PUT /api/v1/boms/{id}/status.
func (h *Handler) UpdateBOMStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := response.DecodeBody(w, r, &body); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	b, err := h.BOMs.UpdateStatus(r.Context(), actor, id, body.Status)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, b)
}

// DeleteBOM handles DELETE /api/v1/boms/{id}.
func (h *Handler) DeleteBOM(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	if err := h.BOMs.Delete(r.Context(), actor, id); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, map[string]string{"status": "deleted"})
}

// AddComponent handles POST /api/v1/boms/{id}/components.
func (h *Handler) AddComponent(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	var in bom.ComponentInput
	if err := response.DecodeBody(w, r, &in); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	b, err := h.BOMs.AddComponent(r.Context(), actor, id, in)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.Created(w, b)
}

// RemoveComponent handles DELETE /api/v1/boms/{id}/components/{componentId}.
func (h *Handler) RemoveComponent(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	compID, err := server.IDParam(r, "componentId")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	b, err := h.BOMs.RemoveComponent(r.Context(), actor, id, compID)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, b)
}

// AddOperation handles POST /api/v1/boms/{id}/operations.
func (h *Handler) AddOperation(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	var in bom.OperationInput
	if err := response.DecodeBody(w, r, &in); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	b, err := h.BOMs.AddOperation(r.Context(), actor, id, in)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.Created(w, b)
}

// RemoveOperation handles DELETE /api/v1/boms/{id}/operations/{operationId}.
func (h *Handler) RemoveOperation(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	opID, err := server.IDParam(r, "operationId")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	b, err := h.BOMs.RemoveOperation(r.Context(), actor, id, opID)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, b)
}

// BOMCost handles GET /api/v1/boms/{id}/cost. The roll-up is also written
// back to the BOM header.
func (h *Handler) BOMCost(w http.ResponseWriter, r *http.Request) {
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	b, cost, err := h.BOMs.RollUpCost(r.Context(), id)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, map[string]any{"bom": b, "cost": cost})
}

// ExplodeBOM handles GET /api/v1/boms/{id}/explode?quantity=N.
func (h *Handler) ExplodeBOM(w http.ResponseWriter, r *http.Request) {
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	qty := decimal.NewFromInt(1)
	if raw := r.URL.Query().Get("quantity"); raw != "" {
		qty, err = decimal.NewFromString(raw)
		if err != nil || !qty.IsPositive() {
			response.Error(w, h.Log, apperr.Invalid("bom", id, "quantity", 0, "must be a positive number, got %q", raw))
			return
		}
	}
	reqs, err := h.BOMs.Explode(r.Context(), id, qty)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, reqs)
}
