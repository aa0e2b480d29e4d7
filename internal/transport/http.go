package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/tillpoint/possync/internal/domain/mutation"
	"github.com/tillpoint/possync/internal/domain/record"
	"github.com/tillpoint/possync/internal/remote"
)

// Server exposes a remote store over HTTP.
type Server struct {
	store remote.Store
}

// NewServer creates the remote store router with middleware.
func NewServer(store remote.Store, authMiddleware func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()
	srv := &Server{store: store}

	r.Get("/health", srv.handleHealth)

	r.Route("/v1/tables/{table}", func(r chi.Router) {
		if authMiddleware != nil {
			r.Use(authMiddleware)
		}
		r.Use(TenantHeaderMiddleware)
		r.Post("/push", srv.handlePush)
		r.Get("/changes", srv.handleChanges)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Health(r.Context()); err != nil {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type pushBody struct {
	Mutations []mutation.Mutation `json:"mutations"`
}

type pushReply struct {
	Results []remote.PushResult `json:"results"`
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	tenantID, table, ok := scope(w, r)
	if !ok {
		return
	}

	var body pushBody
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	for i := range body.Mutations {
		body.Mutations[i].TenantID = tenantID
	}

	results, err := s.store.PushBatch(r.Context(), tenantID, table, body.Mutations)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pushReply{Results: results})
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	tenantID, table, ok := scope(w, r)
	if !ok {
		return
	}

	since, err := queryInt(r, "since")
	if err != nil {
		http.Error(w, "invalid since", http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return
	}

	result, err := s.store.PullSince(r.Context(), tenantID, table, since, int(limit))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func scope(w http.ResponseWriter, r *http.Request) (string, record.Table, bool) {
	tenantID, ok := TenantFromContext(r.Context())
	if !ok || tenantID == "" {
		http.Error(w, "missing tenant", http.StatusUnauthorized)
		return "", "", false
	}
	table, err := record.ParseTable(chi.URLParam(r, "table"))
	if err != nil {
		http.Error(w, "unknown table", http.StatusNotFound)
		return "", "", false
	}
	return tenantID, table, true
}

func queryInt(r *http.Request, key string) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, remote.ErrAuth):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	case errors.Is(err, remote.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "remote store unavailable", http.StatusServiceUnavailable)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
