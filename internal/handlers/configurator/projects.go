package configurator

import (
	"net/http"

	"github.com/shopspring/decimal"

	"fms/internal/cabinet"
	"fms/internal/response"
	"fms/internal/server"
)

func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	list, err := h.Cabinets.ListProjects(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, list)
}

func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	p, err := h.Cabinets.GetProject(r.Context(), id)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, p)
}

func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	var in cabinet.ProjectInput
	if err := response.DecodeBody(w, r, &in); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	p, err := h.Cabinets.CreateProject(r.Context(), actor, in)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.Created(w, p)
}

func (h *Handler) UpdateProjectStatus(w http.ResponseWriter, r *http.Request) {
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
	p, err := h.Cabinets.UpdateProjectStatus(r.Context(), actor, id, body.Status)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, p)
}

// DeleteProject handles DELETE /api/v1/projects/{id}. BOMs generated from
// its cabinets are kept.
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	if err := h.Cabinets.DeleteProject(r.Context(), actor, id); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, map[string]string{"status": "deleted"})
}

func (h *Handler) AddCabinet(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	var in cabinet.CabinetInput
	if err := response.DecodeBody(w, r, &in); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	p, err := h.Cabinets.AddCabinet(r.Context(), actor, id, in)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.Created(w, p)
}

func cabinetIDs(r *http.Request) (projectID, cabinetID int64, err error) {
	if projectID, err = server.IDParam(r, "id"); err != nil {
		return 0, 0, err
	}
	cabinetID, err = server.IDParam(r, "cabinetId")
	return projectID, cabinetID, err
}

func (h *Handler) UpdateCabinet(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	projectID, cabinetID, err := cabinetIDs(r)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	var in cabinet.CabinetInput
	if err := response.DecodeBody(w, r, &in); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	p, err := h.Cabinets.UpdateCabinet(r.Context(), actor, projectID, cabinetID, in)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, p)
}

func (h *Handler) RemoveCabinet(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	projectID, cabinetID, err := cabinetIDs(r)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	p, err := h.Cabinets.RemoveCabinet(r.Context(), actor, projectID, cabinetID)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, p)
}

// ConvertCabinet handles POST /api/v1/projects/{id}/cabinets/{cabinetId}/convert.
// The body is optional; without a labor_rate the configured default applies.
func (h *Handler) ConvertCabinet(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	projectID, cabinetID, err := cabinetIDs(r)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	var body struct {
		LaborRate decimal.Decimal `json:"labor_rate"`
	}
	if r.ContentLength > 0 {
		if err := response.DecodeBody(w, r, &body); err != nil {
			response.Error(w, h.Log, err)
			return
		}
	}
	b, err := h.Cabinets.ConvertToBOM(r.Context(), actor, projectID, cabinetID, body.LaborRate)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.Created(w, b)
}
