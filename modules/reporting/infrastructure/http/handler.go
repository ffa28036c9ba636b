// Package http provides HTTP handlers for the reporting module.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rai/order-reporting/modules/reporting/application/queries"
	"github.com/rai/order-reporting/modules/reporting/domain"
	"github.com/rai/order-reporting/modules/shared/types"
)

type Handler struct {
	getDaily  *queries.GetDailyReportHandler
	listDaily *queries.ListDailyReportsHandler
	getItem   *queries.GetItemReportHandler
	listTop   *queries.ListTopItemsHandler
}

// RegisterRoutes registers the reporting module routes to the given mux.
func RegisterRoutes(
	mux *http.ServeMux,
	getDaily *queries.GetDailyReportHandler,
	listDaily *queries.ListDailyReportsHandler,
	getItem *queries.GetItemReportHandler,
	listTop *queries.ListTopItemsHandler,
) {
	h := &Handler{
		getDaily:  getDaily,
		listDaily: listDaily,
		getItem:   getItem,
		listTop:   listTop,
	}

	mux.HandleFunc("GET /api/v1/reports/daily/{date}", h.handleGetDailyReport)
	mux.HandleFunc("GET /api/v1/reports/daily", h.handleListDailyReports)
	mux.HandleFunc("GET /api/v1/reports/items/{itemId}", h.handleGetItemReport)
	mux.HandleFunc("GET /api/v1/reports/items", h.handleListTopItems)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handleGetDailyReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.getDaily.Handle(r.Context(), queries.GetDailyReportQuery{Date: r.PathValue("date")})
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleListDailyReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("from") == "" || q.Get("to") == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}

	result, err := h.listDaily.Handle(r.Context(), queries.ListDailyReportsQuery{From: q.Get("from"), To: q.Get("to")})
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetItemReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.getItem.Handle(r.Context(), queries.GetItemReportQuery{ItemID: r.PathValue("itemId")})
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleListTopItems(w http.ResponseWriter, r *http.Request) {
	var limit int
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	items, err := h.listTop.Handle(r.Context(), queries.ListTopItemsQuery{Limit: limit})
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrDailyReportNotFound), errors.Is(err, domain.ErrItemReportNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidDateKey),
		errors.Is(err, domain.ErrInvalidDateRange),
		errors.Is(err, types.ErrInvalidID):
		writeError(w, http.StatusBadRequest, err.Error())
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
