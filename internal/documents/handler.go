package documents

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockledger/internal/money"
	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Handler wires HTTP endpoints for documents.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the documents handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Post("/instant", h.handleInstant)
	r.Post("/stocktakings", h.handleOpenStocktaking)
	r.Get("/{id}", h.handleShow)
	r.Post("/{id}/lines", h.handleAddLine)
	r.Put("/{id}/lines/{lineID}", h.handleUpdateLine)
	r.Delete("/{id}/lines/{lineID}", h.handleRemoveLine)
	r.Post("/{id}/confirm", h.handleConfirm)
	r.Post("/{id}/cancel", h.handleCancel)
}

// LineResponse is the JSON shape of a document line.
type LineResponse struct {
	ID               int64  `json:"id"`
	LineNo           int    `json:"line_no"`
	ProductID        int64  `json:"product_id"`
	Quantity         int64  `json:"quantity,omitempty"`
	UnitCost         string `json:"unit_cost,omitempty"`
	OldUnitCost      string `json:"old_unit_cost,omitempty"`
	NewUnitCost      string `json:"new_unit_cost,omitempty"`
	ExpectedQuantity *int64 `json:"expected_quantity,omitempty"`
	CountedQuantity  *int64 `json:"counted_quantity,omitempty"`
	OnHandAtConfirm  *int64 `json:"on_hand_at_confirm,omitempty"`
	Drift            bool   `json:"drift,omitempty"`
}

// DocumentResponse is the JSON shape of a document.
type DocumentResponse struct {
	ID                  int64          `json:"id"`
	Number              string         `json:"number"`
	Type                Type           `json:"type"`
	Status              Status         `json:"status"`
	LocationID          int64          `json:"location_id,omitempty"`
	FromLocationID      int64          `json:"from_location_id,omitempty"`
	ToLocationID        int64          `json:"to_location_id,omitempty"`
	Reason              string         `json:"reason,omitempty"`
	CounterpartyName    string         `json:"counterparty_name,omitempty"`
	CounterpartyInvoice string         `json:"counterparty_invoice,omitempty"`
	Comment             string         `json:"comment,omitempty"`
	ExternalRef         string         `json:"external_ref,omitempty"`
	ConsumesReservation bool           `json:"consumes_reservation,omitempty"`
	TotalAmount         string         `json:"total_amount"`
	CreatedBy           int64          `json:"created_by,omitempty"`
	ConfirmedBy         int64          `json:"confirmed_by,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	ConfirmedAt         *time.Time     `json:"confirmed_at,omitempty"`
	CancelledAt         *time.Time     `json:"cancelled_at,omitempty"`
	Lines               []LineResponse `json:"lines,omitempty"`
	DriftLines          []int          `json:"drift_lines,omitempty"`
}

// NewDocumentResponse renders a document for JSON clients.
func NewDocumentResponse(doc Document) DocumentResponse {
	resp := DocumentResponse{
		ID:                  doc.ID,
		Number:              doc.Number,
		Type:                doc.Type,
		Status:              doc.Status,
		LocationID:          doc.LocationID,
		FromLocationID:      doc.FromLocationID,
		ToLocationID:        doc.ToLocationID,
		Reason:              doc.Reason,
		CounterpartyName:    doc.CounterpartyName,
		CounterpartyInvoice: doc.CounterpartyInvoice,
		Comment:             doc.Comment,
		ExternalRef:         doc.ExternalRef,
		ConsumesReservation: doc.ConsumesReservation,
		TotalAmount:         money.String(doc.TotalAmount),
		CreatedBy:           doc.CreatedBy,
		ConfirmedBy:         doc.ConfirmedBy,
		CreatedAt:           doc.CreatedAt,
		UpdatedAt:           doc.UpdatedAt,
		ConfirmedAt:         doc.ConfirmedAt,
		CancelledAt:         doc.CancelledAt,
	}
	for _, line := range doc.Lines {
		resp.Lines = append(resp.Lines, newLineResponse(doc.Type, line))
	}
	for _, line := range doc.DriftLines() {
		resp.DriftLines = append(resp.DriftLines, line.LineNo)
	}
	return resp
}

func newLineResponse(t Type, line Line) LineResponse {
	resp := LineResponse{
		ID:              line.ID,
		LineNo:          line.LineNo,
		ProductID:       line.ProductID,
		OnHandAtConfirm: line.OnHandAtConfirm,
		Drift:           line.Drift,
	}
	switch t {
	case TypeReceipt, TypeWriteoff, TypeTransfer:
		resp.Quantity = line.Quantity
		resp.UnitCost = money.String(line.UnitCost)
	case TypeRevaluation:
		resp.OldUnitCost = money.String(line.OldUnitCost)
		resp.NewUnitCost = money.String(line.NewUnitCost)
	case TypeStocktaking:
		expected := line.ExpectedQuantity
		resp.ExpectedQuantity = &expected
		resp.CountedQuantity = line.CountedQuantity
		resp.UnitCost = money.String(line.UnitCost)
	}
	return resp
}

type listResponse struct {
	Items []DocumentResponse `json:"items"`
	shared.Pagination
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = 50
	}
	locationID, err := httpx.QueryInt64(r, "location_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	docs, total, err := h.service.List(r.Context(), ListFilters{
		Type:       Type(q.Get("type")),
		Status:     Status(q.Get("status")),
		LocationID: locationID,
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items := make([]DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		items = append(items, NewDocumentResponse(doc))
	}
	httpx.JSON(w, http.StatusOK, listResponse{Items: items, Pagination: shared.NewPagination(page, limit, total)})
}

func (h *Handler) handleShow(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewDocumentResponse(doc))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.logger.Info("create document rejected", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, NewDocumentResponse(doc))
}

type stocktakingRequest struct {
	LocationID int64  `json:"location_id"`
	Comment    string `json:"comment"`
}

func (h *Handler) handleOpenStocktaking(w http.ResponseWriter, r *http.Request) {
	var req stocktakingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.OpenStocktaking(r.Context(), req.LocationID, req.Comment)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, NewDocumentResponse(doc))
}

func (h *Handler) handleInstant(w http.ResponseWriter, r *http.Request) {
	var input InstantInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.CreateAndConfirm(r.Context(), input)
	if err != nil {
		h.logger.Info("instant document rejected", slog.String("external_ref", input.ExternalRef), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, NewDocumentResponse(doc))
}

func (h *Handler) handleAddLine(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input LineInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	line, err := h.service.AddLine(r.Context(), id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newLineResponse(doc.Type, line))
}

func (h *Handler) handleUpdateLine(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	lineID, err := httpx.URLInt64(r, "lineID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input LineInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if _, err := h.service.UpdateLine(r.Context(), id, lineID, input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.respondDocument(w, r, id)
}

func (h *Handler) handleRemoveLine(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	lineID, err := httpx.URLInt64(r, "lineID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.RemoveLine(r.Context(), id, lineID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.Confirm(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewDocumentResponse(doc))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewDocumentResponse(doc))
}

func (h *Handler) respondDocument(w http.ResponseWriter, r *http.Request, id int64) {
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewDocumentResponse(doc))
}
