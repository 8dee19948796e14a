// Package admin serves the daemon's status API over HTTP and a gRPC health
// service.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/nuetzliches/monitord/internal/history"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000

	readCodeMethodNotAllowed = "method_not_allowed"
	readCodeInvalidQuery     = "invalid_query"
	readCodeNotFound         = "not_found"
	readCodeUnavailable      = "unavailable"
	readCodeStoreFailed      = "store_failed"
)

// Server answers /healthz, /stats and /history. Unset hooks make the
// matching endpoint report 503.
type Server struct {
	// Healthy decides the /healthz status; nil means always healthy.
	Healthy func() bool
	// Status returns the JSON document served on /stats.
	Status func() any
	// History reads stored values; host "" means the daemon's own host.
	History func(ctx context.Context, item, host string, limit int) ([]history.Value, error)
}

type errorResponse struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

type historyItem struct {
	Item     string    `json:"item"`
	Host     string    `json:"host"`
	Clock    time.Time `json:"clock"`
	Value    string    `json:"value"`
	Instance string    `json:"instance,omitempty"`
}

type historyResponse struct {
	Items []historyItem `json:"items"`
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch path.Clean(r.URL.Path) {
	case "/healthz":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		s.handleHealthz(w, r)
	case "/stats":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		s.handleStats(w, r)
	case "/history":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		s.handleHistory(w, r)
	default:
		writeError(w, http.StatusNotFound, readCodeNotFound, "not found")
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if s.Healthy != nil && !s.Healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("starting\n"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.Status == nil {
		writeError(w, http.StatusServiceUnavailable, readCodeUnavailable, "stats are not available")
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		writeError(w, http.StatusServiceUnavailable, readCodeUnavailable, "history is not available")
		return
	}
	q := r.URL.Query()
	item := strings.TrimSpace(q.Get("item"))
	if item == "" {
		writeError(w, http.StatusBadRequest, readCodeInvalidQuery, "item is required")
		return
	}
	limit, ok := parseLimit(q.Get("limit"))
	if !ok {
		writeError(w, http.StatusBadRequest, readCodeInvalidQuery, fmt.Sprintf("limit must be an integer between 1 and %d", maxHistoryLimit))
		return
	}

	vals, err := s.History(r.Context(), item, strings.TrimSpace(q.Get("host")), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, readCodeStoreFailed, err.Error())
		return
	}
	resp := historyResponse{Items: make([]historyItem, 0, len(vals))}
	for _, v := range vals {
		resp.Items = append(resp.Items, historyItem{
			Item:     v.ItemKey,
			Host:     v.Host,
			Clock:    v.Clock,
			Value:    v.Value,
			Instance: v.Instance,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseLimit(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultHistoryLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxHistoryLimit {
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		detail = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Code: code, Detail: detail})
}

func writeMethodNotAllowed(w http.ResponseWriter, expected string) {
	w.Header().Set("Allow", expected)
	writeError(w, http.StatusMethodNotAllowed, readCodeMethodNotAllowed, fmt.Sprintf("method must be %s", expected))
}
