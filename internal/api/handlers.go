package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/trogers1052/position-exit-signals/internal/models"
	"github.com/trogers1052/position-exit-signals/internal/positions"
)

// PositionService is the position lifecycle the handlers expose
type PositionService interface {
	ListOpenPositions(ctx context.Context) ([]models.PositionView, error)
	RecordBuy(ctx context.Context, req positions.BuyRequest) (*models.Position, error)
	MarkSold(ctx context.Context, id string) error
	ListRecentExits(ctx context.Context, days int) ([]models.ExitView, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	service PositionService
}

// NewHandler creates a new Handler
func NewHandler(service PositionService) *Handler {
	return &Handler{service: service}
}

type inventoryResponse struct {
	Positions []models.PositionView   `json:"positions"`
	Summary   models.InventorySummary `json:"summary"`
}

// ListPositions handles GET /positions
func (h *Handler) ListPositions(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ListOpenPositions(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	if views == nil {
		views = []models.PositionView{}
	}

	respondJSON(w, http.StatusOK, inventoryResponse{
		Positions: views,
		Summary:   positions.Summarize(views),
	})
}

type buyRequest struct {
	Ticker       string          `json:"ticker"`
	Shares       decimal.Decimal `json:"shares"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	EntryDate    string          `json:"entry_date"`
	StrategyType string          `json:"strategy_type"`
	Notes        string          `json:"notes"`
}

// RecordBuy handles POST /positions
func (h *Handler) RecordBuy(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	var entry time.Time
	if req.EntryDate != "" {
		var err error
		entry, err = time.Parse(time.DateOnly, req.EntryDate)
		if err != nil {
			respondError(w, &positions.ValidationError{Field: "entry_date", Reason: "expected YYYY-MM-DD"})
			return
		}
	}

	p, err := h.service.RecordBuy(r.Context(), positions.BuyRequest{
		Ticker:       req.Ticker,
		Shares:       req.Shares,
		TotalAmount:  req.TotalAmount,
		EntryDate:    entry,
		StrategyType: req.StrategyType,
		Notes:        req.Notes,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, p)
}

// MarkSold handles POST /positions/{id}/sell
func (h *Handler) MarkSold(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.service.MarkSold(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type exitsResponse struct {
	Exits   []models.ExitView  `json:"exits"`
	Summary models.ExitSummary `json:"summary"`
}

// ListRecentExits handles GET /positions/sold?days=N
func (h *Handler) ListRecentExits(w http.ResponseWriter, r *http.Request) {
	days := positions.DefaultExitWindowDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, &positions.ValidationError{Field: "days", Reason: "not a number"})
			return
		}
		days = n
	}

	exits, err := h.service.ListRecentExits(r.Context(), days)
	if err != nil {
		respondError(w, err)
		return
	}
	if exits == nil {
		exits = []models.ExitView{}
	}

	respondJSON(w, http.StatusOK, exitsResponse{
		Exits:   exits,
		Summary: positions.SummarizeExits(exits, days),
	})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func respondError(w http.ResponseWriter, err error) {
	var verr *positions.ValidationError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error(), Field: verr.Field})
	case errors.Is(err, models.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrAlreadySold):
		respondJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case models.IsTransient(err):
		log.Warn().Err(err).Msg("Transient failure serving request")
		respondJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		log.Error().Err(err).Msg("Unexpected failure serving request")
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
