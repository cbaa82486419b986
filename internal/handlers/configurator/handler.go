// Package configurator exposes the cabinet catalog, the price calculator and
// kitchen projects over HTTP.
package configurator

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"fms/internal/cabinet"
)

type Handler struct {
	Cabinets *cabinet.Service
	Log      *zap.Logger
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/cabinet-models", func(r chi.Router) {
		r.Get("/", h.ListModels)
		r.Post("/", h.CreateModel)
		r.Post("/seed", h.SeedCatalog)
		r.Get("/{id}", h.GetModel)
		r.Put("/{id}", h.UpdateModel)
		r.Delete("/{id}", h.DeleteModel)
		r.Put("/{id}/materials/{itemId}", h.LinkMaterial)
		r.Delete("/{id}/materials/{itemId}", h.UnlinkMaterial)
		r.Put("/{id}/accessories/{itemId}", h.LinkAccessory)
		r.Delete("/{id}/accessories/{itemId}", h.UnlinkAccessory)
	})
	r.Post("/cabinets/calculate", h.Calculate)
	r.Post("/cabinets/generate-bom", h.GenerateBOM)
	r.Route("/projects", func(r chi.Router) {
		r.Get("/", h.ListProjects)
		r.Post("/", h.CreateProject)
		r.Get("/{id}", h.GetProject)
		r.Delete("/{id}", h.DeleteProject)
		r.Put("/{id}/status", h.UpdateProjectStatus)
		r.Post("/{id}/cabinets", h.AddCabinet)
		r.Put("/{id}/cabinets/{cabinetId}", h.UpdateCabinet)
		r.Delete("/{id}/cabinets/{cabinetId}", h.RemoveCabinet)
		r.Post("/{id}/cabinets/{cabinetId}/convert", h.ConvertCabinet)
	})
}
