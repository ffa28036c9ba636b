// Package http provides HTTP handlers for the orders module.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rai/order-reporting/modules/orders/application/commands"
	"github.com/rai/order-reporting/modules/orders/application/queries"
	"github.com/rai/order-reporting/modules/orders/domain"
	"github.com/rai/order-reporting/modules/shared/events/contracts"
	"github.com/rai/order-reporting/modules/shared/types"
)

// maxEventBytes bounds an order event request body.
const maxEventBytes = 1 << 20

type Handler struct {
	publishUpdate *commands.PublishOrderUpdateHandler
	archiveOrders *commands.ArchiveOrdersHandler
	getOrder      *queries.GetOrderHandler
	now           func() time.Time
}

// RegisterRoutes registers the orders module routes to the given mux.
func RegisterRoutes(
	mux *http.ServeMux,
	publishUpdate *commands.PublishOrderUpdateHandler,
	archiveOrders *commands.ArchiveOrdersHandler,
	getOrder *queries.GetOrderHandler,
) {
	h := &Handler{
		publishUpdate: publishUpdate,
		archiveOrders: archiveOrders,
		getOrder:      getOrder,
		now:           time.Now,
	}

	mux.HandleFunc("POST /internal/events/orders", h.handleOrderEvent)
	mux.HandleFunc("POST /internal/archival/sweep", h.handleArchivalSweep)
	mux.HandleFunc("GET /api/v1/orders/{id}", h.handleGetOrder)
	mux.HandleFunc("GET /api/v1/orders/archived/{id}", h.handleGetArchivedOrder)
}

// Request/Response DTOs

type orderEventRequest struct {
	OrderID string                   `json:"order_id"`
	Before  *contracts.OrderSnapshot `json:"before"`
	After   *contracts.OrderSnapshot `json:"after"`
}

type acceptedResponse struct {
	OrderID string `json:"order_id"`
}

type archivalResponse struct {
	Archived int `json:"archived"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handlers

func (h *Handler) handleOrderEvent(w http.ResponseWriter, r *http.Request) {
	var req orderEventRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.After == nil {
		writeError(w, http.StatusBadRequest, "after snapshot is required")
		return
	}

	cmd := commands.PublishOrderUpdateCommand{
		OrderID: req.OrderID,
		Before:  req.Before,
		After:   *req.After,
	}
	if err := h.publishUpdate.Handle(r.Context(), cmd); err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, acceptedResponse{OrderID: req.OrderID})
}

func (h *Handler) handleArchivalSweep(w http.ResponseWriter, r *http.Request) {
	archived, err := h.archiveOrders.Handle(r.Context(), commands.ArchiveOrdersCommand{Now: h.now()})
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, archivalResponse{Archived: archived})
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	h.writeOrder(w, r, false)
}

func (h *Handler) handleGetArchivedOrder(w http.ResponseWriter, r *http.Request) {
	h.writeOrder(w, r, true)
}

func (h *Handler) writeOrder(w http.ResponseWriter, r *http.Request, archived bool) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "order ID is required")
		return
	}

	order, err := h.getOrder.Handle(r.Context(), queries.GetOrderQuery{OrderID: id, Archived: archived})
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// Helper functions

func handleError(w http.ResponseWriter, err error) {
	var archivalErr *domain.ArchivalError
	switch {
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrArchivedOrderNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrInvalidID),
		errors.Is(err, types.ErrNegativeAmount),
		errors.Is(err, domain.ErrOrderIDMismatch),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrMissingCreatedAt):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &archivalErr):
		writeError(w, http.StatusServiceUnavailable, "archival batch failed, orders remain live")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
