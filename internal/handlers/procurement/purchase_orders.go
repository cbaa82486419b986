package procurement

import (
	"net/http"

	"fms/internal/models"
	"fms/internal/purchasing"
	"fms/internal/response"
	"fms/internal/server"
)

// ListSuppliers handles GET /api/v1/suppliers.
func (h *Handler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	list, err := h.Purchasing.ListSuppliers(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, list)
}

// GetSupplier handles GET /api/v1/suppliers/{id}.
func (h *Handler) GetSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	s, err := h.Purchasing.GetSupplier(r.Context(), id)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, s)
}

// CreateSupplier handles POST /api/v1/suppliers.
func (h *Handler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	var in purchasing.SupplierInput
	if err := response.DecodeBody(w, r, &in); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	s, err := h.Purchasing.CreateSupplier(r.Context(), actor, in)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.Created(w, s)
}

// SetSupplierActive handles PUT /api/v1/suppliers/{id}/active.
func (h *Handler) SetSupplierActive(w http.ResponseWriter, r *http.Request) {
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
		Active bool `json:"active"`
	}
	if err := response.DecodeBody(w, r, &body); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	s, err := h.Purchasing.SetSupplierActive(r.Context(), actor, id, body.Active)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, s)
}

// ListPOs handles GET /api/v1/purchase-orders.
func (h *Handler) ListPOs(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := server.Page(r)
	list, total, err := h.Purchasing.List(r.Context(), purchasing.Filter{
		Status:     r.URL.Query().Get("status"),
		SupplierID: server.Int64Query(r, "supplier_id"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSONMeta(w, list, total, page, limit)
}

// GetPO handles GET /api/v1/purchase-orders/{id}.
func (h *Handler) GetPO(w http.ResponseWriter, r *http.Request) {
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	po, err := h.Purchasing.Get(r.Context(), id)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, po)
}

// CreatePO handles POST /api/v1/purchase-orders.
func (h *Handler) CreatePO(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	var in purchasing.CreateInput
	if err := response.DecodeBody(w, r, &in); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	po, err := h.Purchasing.Create(r.Context(), actor, in)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.Created(w, po)
}

type poTransition func(svc *purchasing.Service, r *http.Request, actor models.Actor, id int64) (models.PurchaseOrder, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn poTransition) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	po, err := fn(h.Purchasing, r, actor, id)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, po)
}

// SubmitPO handles POST /api/v1/purchase-orders/{id}/submit.
func (h *Handler) SubmitPO(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(svc *purchasing.Service, r *http.Request, a models.Actor, id int64) (models.PurchaseOrder, error) {
		return svc.Submit(r.Context(), a, id)
	})
}

// ApprovePO handles POST /api/v1/purchase-orders/{id}/approve.
func (h *Handler) ApprovePO(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(svc *purchasing.Service, r *http.Request, a models.Actor, id int64) (models.PurchaseOrder, error) {
		return svc.Approve(r.Context(), a, id)
	})
}

// OrderPO handles POST /api/v1/purchase-orders/{id}/order.
func (h *Handler) OrderPO(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(svc *purchasing.Service, r *http.Request, a models.Actor, id int64) (models.PurchaseOrder, error) {
		return svc.MarkOrdered(r.Context(), a, id)
	})
}

// CancelPO handles POST /api/v1/purchase-orders/{id}/cancel.
func (h *Handler) CancelPO(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(svc *purchasing.Service, r *http.Request, a models.Actor, id int64) (models.PurchaseOrder, error) {
		return svc.Cancel(r.Context(), a, id)
	})
}

// ReceivePO handles POST /api/v1/purchase-orders/{id}/receive.
func (h *Handler) ReceivePO(w http.ResponseWriter, r *http.Request) {
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
		Items []purchasing.ReceiveLine `json:"items"`
		Notes string                   `json:"notes"`
	}
	if err := response.DecodeBody(w, r, &body); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	po, err := h.Purchasing.Receive(r.Context(), actor, id, body.Items, body.Notes)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, po)
}

// ListReceipts handles GET /api/v1/purchase-orders/{id}/receipts.
func (h *Handler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	list, err := h.Purchasing.Receipts(r.Context(), id)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, list)
}
