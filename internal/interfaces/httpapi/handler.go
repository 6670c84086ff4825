// Package httpapi exposes the price board and the watchlist over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"tickerhub/internal/application/port"
	"tickerhub/internal/application/service"
	"tickerhub/internal/domain"
)

// StatusSource reports per-upstream connectivity.
type StatusSource interface {
	Upstreams() []service.UpstreamStatus
}

// Watchlist is the part of service.WatchlistService the API drives.
type Watchlist interface {
	Symbols() []string
	Add(ctx context.Context, symbol string) error
	Remove(ctx context.Context, symbol string) error
}

type Searcher interface {
	Search(ctx context.Context, query string) []port.SymbolMatch
}

// Deps wires the handler. Status, Watchlist, Search and Metrics are optional;
// their routes answer 503 when missing, /metrics is not mounted.
type Deps struct {
	Board        *domain.Board
	Status       StatusSource
	Watchlist    Watchlist
	Search       Searcher
	Metrics      http.Handler
	StaleAfter   time.Duration
	HistoryLimit int
}

type handler struct {
	deps Deps
}

// PriceView is the JSON form of one symbol on the board.
type PriceView struct {
	Symbol     string   `json:"symbol"`
	Price      float64  `json:"price"`
	Change     float64  `json:"change"`
	Change24h  *float64 `json:"change_24h,omitempty"`
	Volume     float64  `json:"volume"`
	Direction  string   `json:"direction"`
	LastUpdate int64    `json:"last_update"`
	Stale      bool     `json:"stale"`
}

func NewHandler(deps Deps) http.Handler {
	if deps.StaleAfter <= 0 {
		deps.StaleAfter = time.Minute
	}
	h := &handler{deps: deps}

	router := mux.NewRouter()
	router.Use(logRequests)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/prices", h.handleListPrices).Methods(http.MethodGet)
	api.HandleFunc("/prices", h.handleReset).Methods(http.MethodDelete)
	api.HandleFunc("/prices/{symbol}", h.handleGetPrice).Methods(http.MethodGet)
	api.HandleFunc("/prices/{symbol}/history", h.handleGetHistory).Methods(http.MethodGet)
	api.HandleFunc("/prices/{symbol}/history", h.handleClearHistory).Methods(http.MethodDelete)
	api.HandleFunc("/history", h.handleClearAllHistory).Methods(http.MethodDelete)
	api.HandleFunc("/status", h.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/watchlist", h.handleGetWatchlist).Methods(http.MethodGet)
	api.HandleFunc("/watchlist", h.handleAddWatchlist).Methods(http.MethodPost)
	api.HandleFunc("/watchlist/{symbol}", h.handleRemoveWatchlist).Methods(http.MethodDelete)
	api.HandleFunc("/search", h.handleSearch).Methods(http.MethodGet)

	if deps.Metrics != nil {
		router.Handle("/metrics", deps.Metrics).Methods(http.MethodGet)
	}
	return router
}

// view derives every field from one snapshot of the record.
func (h *handler) view(symbol string) (PriceView, bool) {
	rec, ok := h.deps.Board.Snapshot(symbol)
	if !ok {
		return PriceView{}, false
	}
	return PriceView{
		Symbol:     symbol,
		Price:      rec.Current.Price,
		Change:     rec.Change(),
		Change24h:  rec.Change24h,
		Volume:     rec.Current.Volume,
		Direction:  rec.Direction.String(),
		LastUpdate: rec.LastUpdate,
		Stale:      rec.StaleAt(h.deps.Board.Now().UnixMilli(), h.deps.StaleAfter),
	}, true
}

func (h *handler) handleListPrices(w http.ResponseWriter, r *http.Request) {
	symbols := h.deps.Board.Symbols()
	out := make([]PriceView, 0, len(symbols))
	for _, s := range symbols {
		if v, ok := h.view(s); ok {
			out = append(out, v)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) handleGetPrice(w http.ResponseWriter, r *http.Request) {
	symbol := domain.NormalizeSymbol(mux.Vars(r)["symbol"])
	v, ok := h.view(symbol)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown symbol "+symbol)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *handler) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	symbol := domain.NormalizeSymbol(mux.Vars(r)["symbol"])
	limit := h.deps.HistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":  symbol,
		"history": h.deps.Board.GetHistory(symbol, limit),
	})
}

func (h *handler) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	h.deps.Board.ClearHistory(domain.NormalizeSymbol(mux.Vars(r)["symbol"]))
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleClearAllHistory(w http.ResponseWriter, r *http.Request) {
	h.deps.Board.ClearAllHistory()
	w.WriteHeader(http.StatusNoContent)
}

// handleReset drops every record. Prices come back with the next ticks.
func (h *handler) handleReset(w http.ResponseWriter, r *http.Request) {
	h.deps.Board.Reset()
	log.Info().Msg("board reset")
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if h.deps.Status == nil {
		writeError(w, http.StatusServiceUnavailable, "supervisor not running")
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Status.Upstreams())
}

func (h *handler) handleGetWatchlist(w http.ResponseWriter, r *http.Request) {
	if h.deps.Watchlist == nil {
		writeError(w, http.StatusServiceUnavailable, "watchlist disabled")
		return
	}
	writeJSON(w, http.StatusOK, h.watchlistView())
}

func (h *handler) handleAddWatchlist(w http.ResponseWriter, r *http.Request) {
	if h.deps.Watchlist == nil {
		writeError(w, http.StatusServiceUnavailable, "watchlist disabled")
		return
	}
	var payload struct {
		Symbol string `json:"symbol"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.deps.Watchlist.Add(r.Context(), payload.Symbol)
	switch {
	case errors.Is(err, service.ErrInvalidSymbol):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrWatchlistFull):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, h.watchlistView())
	}
}

func (h *handler) handleRemoveWatchlist(w http.ResponseWriter, r *http.Request) {
	if h.deps.Watchlist == nil {
		writeError(w, http.StatusServiceUnavailable, "watchlist disabled")
		return
	}
	err := h.deps.Watchlist.Remove(r.Context(), mux.Vars(r)["symbol"])
	switch {
	case errors.Is(err, port.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, h.watchlistView())
	}
}

func (h *handler) watchlistView() map[string][]string {
	return map[string][]string{"symbols": h.deps.Watchlist.Symbols()}
}

func (h *handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	if h.deps.Search == nil {
		writeError(w, http.StatusServiceUnavailable, "metadata lookups disabled")
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Search.Search(r.Context(), r.URL.Query().Get("q")))
}

func decodeJSON(body io.ReadCloser, dst any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeJSON encodes before the header is sent so an encode failure can
// still be answered with a 500.
func writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		log.Warn().Err(err).Msg("encode response")
		status = http.StatusInternalServerError
		body = []byte(`{"error":"cannot encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		log.Warn().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}
