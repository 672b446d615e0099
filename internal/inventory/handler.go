package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/stockledger/internal/money"
	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger    *slog.Logger
	store     *Store
	validator *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, store *Store) *Handler {
	return &Handler{logger: logger, store: store, validator: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/items", h.handleGetItem)
	r.Get("/locations/{id}/items", h.handleListByLocation)
	r.Get("/locations/{id}/low-stock", h.handleListLowStock)
	r.Get("/movements", h.handleListMovements)
	r.Put("/min-quantity", h.handleSetMinQuantity)
	r.Post("/reservations", h.handleReserve)
	r.Post("/reservations/release", h.handleRelease)
}

// ItemResponse is the JSON shape of an inventory row.
type ItemResponse struct {
	LocationID  int64     `json:"location_id"`
	ProductID   int64     `json:"product_id"`
	OnHand      int64     `json:"on_hand"`
	Reserved    int64     `json:"reserved"`
	Available   int64     `json:"available"`
	MinQuantity int64     `json:"min_quantity"`
	UnitCost    string    `json:"unit_cost"`
	LowStock    bool      `json:"low_stock"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewItemResponse renders a row for JSON clients.
func NewItemResponse(item Item) ItemResponse {
	return ItemResponse{
		LocationID:  item.LocationID,
		ProductID:   item.ProductID,
		OnHand:      item.OnHand,
		Reserved:    item.Reserved,
		Available:   item.Available(),
		MinQuantity: item.MinQuantity,
		UnitCost:    money.String(item.UnitCost),
		LowStock:    item.LowStock(),
		UpdatedAt:   item.UpdatedAt,
	}
}

func itemResponses(items []Item) []ItemResponse {
	out := make([]ItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewItemResponse(item))
	}
	return out
}

type movementResponse struct {
	ID             int64     `json:"id"`
	Kind           string    `json:"kind"`
	QtyChange      int64     `json:"qty_change"`
	QtyBefore      int64     `json:"qty_before"`
	QtyAfter       int64     `json:"qty_after"`
	ReservedChange int64     `json:"reserved_change"`
	UnitCost       string    `json:"unit_cost"`
	CostBefore     string    `json:"cost_before"`
	CostAfter      string    `json:"cost_after"`
	RefType        string    `json:"ref_type,omitempty"`
	RefID          string    `json:"ref_id,omitempty"`
	RefNumber      string    `json:"ref_number,omitempty"`
	Note           string    `json:"note,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type quantityRequest struct {
	LocationID int64 `json:"location_id" validate:"required,gt=0"`
	ProductID  int64 `json:"product_id" validate:"required,gt=0"`
	Quantity   int64 `json:"quantity" validate:"required,gt=0"`
}

type minQuantityRequest struct {
	LocationID  int64 `json:"location_id" validate:"required,gt=0"`
	ProductID   int64 `json:"product_id" validate:"required,gt=0"`
	MinQuantity int64 `json:"min_quantity" validate:"gte=0"`
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	locationID, err := httpx.QueryInt64(r, "location_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	productID, err := httpx.QueryInt64(r, "product_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if locationID == 0 || productID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "location_id and product_id are required")
		return
	}
	item, err := h.store.Get(r.Context(), productID, locationID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewItemResponse(item))
}

func (h *Handler) handleListByLocation(w http.ResponseWriter, r *http.Request) {
	locationID, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.store.ListByLocation(r.Context(), locationID)
	if err != nil {
		h.logger.Error("list inventory items", slog.Any("error", err), slog.Int64("location_id", locationID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, itemResponses(items))
}

func (h *Handler) handleListLowStock(w http.ResponseWriter, r *http.Request) {
	locationID, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.store.ListLowStock(r.Context(), locationID)
	if err != nil {
		h.logger.Error("list low stock", slog.Any("error", err), slog.Int64("location_id", locationID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, itemResponses(items))
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	filter := MovementFilter{}
	var err error
	if filter.LocationID, err = httpx.QueryInt64(r, "location_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.ProductID, err = httpx.QueryInt64(r, "product_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	if from := q.Get("from"); from != "" {
		if filter.From, err = time.Parse("2006-01-02", from); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return
		}
	}
	if to := q.Get("to"); to != "" {
		if filter.To, err = time.Parse("2006-01-02", to); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return
		}
		// Set to end of day
		filter.To = filter.To.Add(24*time.Hour - time.Nanosecond)
	}
	if limit := q.Get("limit"); limit != "" {
		if filter.Limit, err = strconv.Atoi(limit); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "limit must be a number")
			return
		}
	}
	movements, err := h.store.ListMovements(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, movementResponse{
			ID:             m.ID,
			Kind:           string(m.Kind),
			QtyChange:      m.QtyChange,
			QtyBefore:      m.QtyBefore,
			QtyAfter:       m.QtyAfter,
			ReservedChange: m.ReservedChange,
			UnitCost:       money.String(m.UnitCost),
			CostBefore:     money.String(m.CostBefore),
			CostAfter:      money.String(m.CostAfter),
			RefType:        m.Ref.Type,
			RefID:          m.Ref.ID,
			RefNumber:      m.Ref.Number,
			Note:           m.Ref.Note,
			CreatedAt:      m.CreatedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleSetMinQuantity(w http.ResponseWriter, r *http.Request) {
	var req minQuantityRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.store.SetMinQuantity(r.Context(), req.ProductID, req.LocationID, req.MinQuantity)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewItemResponse(item))
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.store.Reserve(r.Context(), req.ProductID, req.LocationID, req.Quantity)
	if err != nil {
		h.logger.Info("reserve rejected", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewItemResponse(item))
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.store.Release(r.Context(), req.ProductID, req.LocationID, req.Quantity)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewItemResponse(item))
}
