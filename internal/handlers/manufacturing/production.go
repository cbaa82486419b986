package manufacturing

import (
	"net/http"

	"fms/internal/production"
	"fms/internal/response"
	"fms/internal/server"
)

// ListOrders handles GET /api/v1/production-orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := server.Page(r)
	list, total, err := h.Production.List(r.Context(), production.Filter{
		Status:   r.URL.Query().Get("status"),
		Priority: r.URL.Query().Get("priority"),
		BOMID:    server.Int64Query(r, "bom_id"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSONMeta(w, list, total, page, limit)
}

// GetOrder handles GET /api/v1/production-orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	o, err := h.Production.Get(r.Context(), id)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, o)
}

// CreateOrder handles POST /api/v1/production-orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	var in production.CreateInput
	if err := response.DecodeBody(w, r, &in); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	o, err := h.Production.CreateFromBOM(r.Context(), actor, in)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.Created(w, o)
}

// PlanOrder handles POST /api/v1/production-orders/{id}/plan.
func (h *Handler) PlanOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	o, err := h.Production.Plan(r.Context(), actor, id)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, o)
}

// CancelOrder handles POST /api/v1/production-orders/{id}/cancel.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	o, err := h.Production.Cancel(r.Context(), actor, id)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, o)
}

// IssueMaterials handles POST /api/v1/production-orders/{id}/issue.
func (h *Handler) IssueMaterials(w http.ResponseWriter, r *http.Request) {
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
		Items []production.IssueLine `json:"items"`
	}
	if err := response.DecodeBody(w, r, &body); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	o, err := h.Production.IssueMaterials(r.Context(), actor, id, body.Items)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, o)
}

// UpdateOperation handles PUT /api/v1/production-orders/{id}/operations/{opId}.
func (h *Handler) UpdateOperation(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	opID, err := server.IDParam(r, "opId")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	var body struct {
		Status string `json:"status"`
		Notes  string `json:"notes"`
	}
	if err := response.DecodeBody(w, r, &body); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	o, ready, err := h.Production.UpdateOperationStatus(r.Context(), actor, id, opID, body.Status, body.Notes)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, map[string]any{"order": o, "ready_for_completion": ready})
}

// CompleteOrder handles POST /api/v1/production-orders/{id}/complete.
func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	var in production.CompleteInput
	if err := response.DecodeBody(w, r, &in); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	o, err := h.Production.Complete(r.Context(), actor, id, in)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, o)
}

// ListCompletions handles GET /api/v1/production-orders/{id}/completions.
func (h *Handler) ListCompletions(w http.ResponseWriter, r *http.Request) {
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	list, err := h.Production.Completions(r.Context(), id)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, list)
}
