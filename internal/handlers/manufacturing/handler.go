package manufacturing

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"fms/internal/bom"
	"fms/internal/production"
)

// Handler holds dependencies for BOM and production order handlers.
type Handler struct {
	BOMs       *bom.Service
	Production *production.Service
	Log        *zap.Logger
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/boms", func(r chi.Router) {
		r.Get("/", h.ListBOMs)
		r.Post("/", h.CreateBOM)
		r.Get("/{id}", h.GetBOM)
		r.Delete("/{id}", h.DeleteBOM)
		r.Put("/{id}/status", h.UpdateBOMStatus)
		r.Post("/{id}/components", h.AddComponent)
		r.Delete("/{id}/components/{componentId}", h.RemoveComponent)
		r.Post("/{id}/operations", h.AddOperation)
		r.Delete("/{id}/operations/{operationId}", h.RemoveOperation)
		r.Get("/{id}/cost", h.BOMCost)
		r.Get("/{id}/explode", h.ExplodeBOM)
	})
	r.Route("/production-orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Post("/", h.CreateOrder)
		r.Get("/{id}", h.GetOrder)
		r.Post("/{id}/plan", h.PlanOrder)
		r.Post("/{id}/cancel", h.CancelOrder)
		r.Post("/{id}/issue", h.IssueMaterials)
		r.Put("/{id}/operations/{opId}", h.UpdateOperation)
		r.Post("/{id}/complete", h.CompleteOrder)
		r.Get("/{id}/completions", h.ListCompletions)
	})
}
