// Package api exposes the ingestion and report services over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/apperr"
	"github.com/sheikh-saqib/distributed-cashflow-ledger/internal/models"
)

type PostingService interface {
	CreatePosting(ctx context.Context, req models.PostingRequest) (models.Posting, error)
	ListPostings(ctx context.Context) ([]models.Posting, error)
}

type BalanceService interface {
	GetBalanceByDate(ctx context.Context, date string) (models.DailyBalance, error)
}

type Handler struct {
	postings PostingService
	balances BalanceService
	logger   *slog.Logger
	mux      *http.ServeMux
}

// NewHandler wires the routes. extra is mounted as-is, e.g. "/metrics".
func NewHandler(postings PostingService, balances BalanceService, logger *slog.Logger, extra map[string]http.Handler) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{postings: postings, balances: balances, logger: logger, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /health", h.health)
	h.mux.HandleFunc("POST /postings", h.createPosting)
	h.mux.HandleFunc("GET /postings", h.listPostings)
	h.mux.HandleFunc("GET /balances/{date}", h.getBalance)
	for pattern, handler := range extra {
		h.mux.Handle(pattern, handler)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) createPosting(w http.ResponseWriter, r *http.Request) {
	var req models.PostingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	posting, err := h.postings.CreatePosting(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/postings/"+posting.ID)
	writeJSON(w, http.StatusCreated, posting)
}

func (h *Handler) listPostings(w http.ResponseWriter, r *http.Request) {
	postings, err := h.postings.ListPostings(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, postings)
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.balances.GetBalanceByDate(r.Context(), r.PathValue("date"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// writeError maps service errors onto stable responses. Anything unexpected is
// reported as ContactAdministrator without its text.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var verr *apperr.ValidationError
	var aerr *apperr.Error
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, verr)
	case errors.Is(err, apperr.ErrInvalidDate):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": apperr.ErrInvalidDate.Error()})
	case errors.As(err, &aerr):
		writeJSON(w, http.StatusInternalServerError, aerr)
	default:
		h.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, apperr.ContactAdministrator)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
