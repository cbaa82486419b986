package configurator

import (
	"net/http"

	"github.com/shopspring/decimal"

	"fms/internal/auth"
	"fms/internal/cabinet"
	"fms/internal/response"
	"fms/internal/server"
)

// ListModels handles GET /api/v1/cabinet-models. ?active=true hides retired
// models.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	list, err := h.Cabinets.ListModels(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, list)
}

func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	m, err := h.Cabinets.GetModel(r.Context(), id)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, m)
}

func (h *Handler) CreateModel(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	var in cabinet.ModelInput
	if err := response.DecodeBody(w, r, &in); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	m, err := h.Cabinets.CreateModel(r.Context(), actor, in)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.Created(w, m)
}

func (h *Handler) UpdateModel(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	var in cabinet.ModelInput
	if err := response.DecodeBody(w, r, &in); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	m, err := h.Cabinets.UpdateModel(r.Context(), actor, id, in)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, m)
}

func (h *Handler) DeleteModel(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	if err := h.Cabinets.DeleteModel(r.Context(), actor, id); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, map[string]string{"status": "deleted"})
}

// linkIDs reads the model and item ids of a link route.
func linkIDs(r *http.Request) (modelID, itemID int64, err error) {
	if modelID, err = server.IDParam(r, "id"); err != nil {
		return 0, 0, err
	}
	itemID, err = server.IDParam(r, "itemId")
	return modelID, itemID, err
}

// LinkMaterial handles PUT /api/v1/cabinet-models/{id}/materials/{itemId}.
func (h *Handler) LinkMaterial(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	modelID, itemID, err := linkIDs(r)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	var body struct {
		CostFactorPerSqft decimal.Decimal `json:"cost_factor_per_sqft"`
	}
	if err := response.DecodeBody(w, r, &body); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	m, err := h.Cabinets.LinkMaterial(r.Context(), actor, modelID, itemID, body.CostFactorPerSqft)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, m)
}

func (h *Handler) UnlinkMaterial(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	modelID, itemID, err := linkIDs(r)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	m, err := h.Cabinets.UnlinkMaterial(r.Context(), actor, modelID, itemID)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, m)
}

// LinkAccessory handles PUT /api/v1/cabinet-models/{id}/accessories/{itemId}.
func (h *Handler) LinkAccessory(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	modelID, itemID, err := linkIDs(r)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	var in cabinet.AccessoryLink
	if err := response.DecodeBody(w, r, &in); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	in.ItemID = itemID
	m, err := h.Cabinets.LinkAccessory(r.Context(), actor, modelID, in)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, m)
}

func (h *Handler) UnlinkAccessory(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	modelID, itemID, err := linkIDs(r)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	m, err := h.Cabinets.UnlinkAccessory(r.Context(), actor, modelID, itemID)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, m)
}

// SeedCatalog handles POST /api/v1/cabinet-models/seed with a YAML catalog
// as the request body.
func (h *Handler) SeedCatalog(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	if err := auth.RequireApproval(actor, auth.ActionSeedCatalog); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	res, err := h.Cabinets.Seed(r.Context(), r.Body)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, res)
}
