package procurement

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"fms/internal/purchasing"
	"fms/internal/requisition"
)

// Handler holds dependencies for procurement handlers.
type Handler struct {
	Requisitions *requisition.Service
	Purchasing   *purchasing.Service
	Log          *zap.Logger
}

// Routes mounts the requisition, supplier and purchase order endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/requisitions", func(r chi.Router) {
		r.Get("/", h.ListRequisitions)
		r.Post("/", h.CreateRequisition)
		r.Get("/{id}", h.GetRequisition)
		r.Delete("/{id}", h.DeleteRequisition)
		r.Post("/{id}/approve", h.ApproveRequisition)
		r.Post("/{id}/reject", h.RejectRequisition)
		r.Post("/{id}/approve-partial", h.ApprovePartial)
		r.Post("/{id}/issue", h.IssueRequisition)
		r.Post("/{id}/restore", h.RestoreRequisition)
	})
	r.Route("/suppliers", func(r chi.Router) {
		r.Get("/", h.ListSuppliers)
		r.Post("/", h.CreateSupplier)
		r.Get("/{id}", h.GetSupplier)
		r.Put("/{id}/active", h.SetSupplierActive)
	})
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Get("/", h.ListPOs)
		r.Post("/", h.CreatePO)
		r.Get("/{id}", h.GetPO)
		r.Post("/{id}/submit", h.SubmitPO)
		r.Post("/{id}/approve", h.ApprovePO)
		r.Post("/{id}/order", h.OrderPO)
		r.Post("/{id}/cancel", h.CancelPO)
		r.Post("/{id}/receive", h.ReceivePO)
		r.Get("/{id}/receipts", h.ListReceipts)
	})
}
