package procurement

import (
	"net/http"

	"fms/internal/requisition"
	"fms/internal/response"
	"fms/internal/server"
)

// ListRequisitions handles GET /api/v1/requisitions.
func (h *Handler) ListRequisitions(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := server.Page(r)
	list, total, err := h.Requisitions.List(r.Context(), requisition.Filter{
		Status:      r.URL.Query().Get("status"),
		RequesterID: server.Int64Query(r, "requester_id"),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSONMeta(w, list, total, page, limit)
}

// GetRequisition handles GET /api/v1/requisitions/{id}.
func (h *Handler) GetRequisition(w http.ResponseWriter, r *http.Request) {
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	req, err := h.Requisitions.Get(r.Context(), id)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, req)
}

// CreateRequisition handles POST /api/v1/requisitions.
func (h *Handler) CreateRequisition(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	var in requisition.CreateInput
	if err := response.DecodeBody(w, r, &in); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	req, err := h.Requisitions.Create(r.Context(), actor, in)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.Created(w, req)
}

type notesBody struct {
	Notes string `json:"notes"`
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, approve bool) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	var body notesBody
	if r.ContentLength > 0 {
		if err := response.DecodeBody(w, r, &body); err != nil {
			response.Error(w, h.Log, err)
			return
		}
	}
	req, err := h.Requisitions.Decide(r.Context(), actor, id, approve, body.Notes)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, req)
}

// ApproveRequisition handles POST /api/v1/requisitions/{id}/approve.
func (h *Handler) ApproveRequisition(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, true)
}

// RejectRequisition handles POST /api/v1/requisitions/{id}/reject.
func (h *Handler) RejectRequisition(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, false)
}

// ApprovePartial handles POST /api/v1/requisitions/{id}/approve-partial.
func (h *Handler) ApprovePartial(w http.ResponseWriter, r *http.Request) {
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
		Items []requisition.Decision `json:"items"`
		Notes string                 `json:"notes"`
	}
	if err := response.DecodeBody(w, r, &body); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	req, err := h.Requisitions.ApprovePartial(r.Context(), actor, id, body.Items, body.Notes)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, req)
}

// IssueRequisition handles POST /api/v1/requisitions/{id}/issue.
func (h *Handler) IssueRequisition(w http.ResponseWriter, r *http.Request) {
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
		Items []requisition.IssueLine `json:"items"`
	}
	if err := response.DecodeBody(w, r, &body); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	req, err := h.Requisitions.Issue(r.Context(), actor, id, body.Items)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, req)
}

// RestoreRequisition handles POST /api/v1/requisitions/{id}/restore.
func (h *Handler) RestoreRequisition(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	req, err := h.Requisitions.RestoreQuantities(r.Context(), actor, id)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, req)
}

// DeleteRequisition handles DELETE /api/v1/requisitions/{id}. Stock is not
// returned; call restore first for that.
func (h *Handler) DeleteRequisition(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	if err := h.Requisitions.Delete(r.Context(), actor, id); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, map[string]string{"status": "deleted"})
}
