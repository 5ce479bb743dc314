package entsync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// lockRequest is the JSON body of the lock endpoints.
type lockRequest struct {
	ClientID string `json:"client_id"`
	TargetID string `json:"target_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// NewHandler returns the HTTP surface of the sync service:
//
//	POST /api/sync/request_lock  {client_id, target_id}
//	POST /api/sync/release_lock  {client_id, target_id}
//	GET  /api/sync/locks
//
// Conflicts answer 409, malformed bodies 422.
func NewHandler(svc *Service) http.Handler {
	r := chi.NewRouter()
	Mount(r, svc)
	return r
}

// Mount registers the sync endpoints on an existing chi router, for servers
// that combine the sync surface with other routes.
func Mount(r chi.Router, svc *Service) {
	r.Post("/api/sync/request_lock", lockHandler(svc.RequestLock))
	r.Post("/api/sync/release_lock", lockHandler(svc.ReleaseLock))
	r.Get("/api/sync/locks", func(w http.ResponseWriter, req *http.Request) {
		locks, err := svc.Locks(req.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, locks)
	})
}

func lockHandler(op func(ctx context.Context, clientID, targetID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body lockRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "invalid request body"})
			return
		}
		if body.ClientID == "" || body.TargetID == "" {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "client_id and target_id are required"})
			return
		}

		if err := op(req.Context(), body.ClientID, body.TargetID); err != nil {
			if errors.Is(err, ErrLockHeld) {
				writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
				return
			}
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
