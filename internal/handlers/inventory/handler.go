package inventory

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"fms/internal/inventory"
	"fms/internal/response"
	"fms/internal/server"
)

// MaxImportBytes bounds uploaded workbooks.
const MaxImportBytes = 10 << 20

// Handler holds dependencies for inventory handlers.
type Handler struct {
	Items *inventory.Service
	Log   *zap.Logger
}

// Routes mounts the inventory endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/inventory", func(r chi.Router) {
		r.Get("/", h.ListItems)
		r.Post("/", h.CreateItem)
		r.Post("/import", h.ImportItems)
		r.Get("/{id}", h.GetItem)
		r.Put("/{id}", h.UpdateItem)
		r.Delete("/{id}", h.DeleteItem)
		r.Post("/{id}/adjust", h.AdjustItem)
		r.Get("/{id}/movements", h.ItemHistory)
	})
	r.Get("/units", h.ListUnits)
	r.Post("/units", h.CreateUnit)
}

// ListItems handles GET /api/v1/inventory.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := server.Page(r)
	q := r.URL.Query()
	items, total, err := h.Items.List(r.Context(), inventory.Filter{
		ItemType: q.Get("item_type"),
		LowStock: q.Get("low_stock") == "true",
		Search:   q.Get("q"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSONMeta(w, items, total, page, limit)
}

// GetItem handles GET /api/v1/inventory/{id}.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	it, err := h.Items.Get(r.Context(), id)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, it)
}

// CreateItem handles POST /api/v1/inventory.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	var in inventory.ItemInput
	if err := response.DecodeBody(w, r, &in); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	it, err := h.Items.Create(r.Context(), actor, in)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.Created(w, it)
}

// UpdateItem handles PUT /api/v1/inventory/{id}.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	var in inventory.ItemInput
	if err := response.DecodeBody(w, r, &in); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	it, err := h.Items.Update(r.Context(), actor, id, in)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, it)
}

// AdjustItem handles POST /api/v1/inventory/{id}/adjust.
func (h *Handler) AdjustItem(w http.ResponseWriter, r *http.Request) {
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
		Quantity int64  `json:"quantity"`
		Notes    string `json:"notes"`
	}
	if err := response.DecodeBody(w, r, &body); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	it, err := h.Items.Adjust(r.Context(), actor, id, body.Quantity, body.Notes)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, it)
}

// DeleteItem handles DELETE /api/v1/inventory/{id}.
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	if err := h.Items.Delete(r.Context(), actor, id); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, map[string]string{"status": "deleted"})
}

// ItemHistory handles GET /api/v1/inventory/{id}/movements.
func (h *Handler) ItemHistory(w http.ResponseWriter, r *http.Request) {
	id, err := server.IDParam(r, "id")
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	moves, err := h.Items.History(r.Context(), id, limit)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, moves)
}

// ImportItems handles POST /api/v1/inventory/import with an xlsx workbook,
// either as the multipart field "file" or as the raw request body.
func (h *Handler) ImportItems(w http.ResponseWriter, r *http.Request) {
	actor, ok := server.Actor(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxImportBytes)
	body := r.Body
	if err := r.ParseMultipartForm(MaxImportBytes); err == nil {
		f, _, err := r.FormFile("file")
		if err != nil {
			response.Err(w, "file required", http.StatusBadRequest)
			return
		}
		defer f.Close()
		body = f
	}
	res, err := h.Items.Import(r.Context(), actor, body)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, res)
}

// ListUnits handles GET /api/v1/units.
func (h *Handler) ListUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.Items.ListUnits(r.Context())
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.JSON(w, units)
}

// CreateUnit handles POST /api/v1/units.
func (h *Handler) CreateUnit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name         string `json:"name"`
		Abbreviation string `json:"abbreviation"`
	}
	if err := response.DecodeBody(w, r, &body); err != nil {
		response.Error(w, h.Log, err)
		return
	}
	u, err := h.Items.CreateUnit(r.Context(), body.Name, body.Abbreviation)
	if err != nil {
		response.Error(w, h.Log, err)
		return
	}
	response.Created(w, u)
}
