package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/petrijr/processo"
	"github.com/petrijr/processo/pkg/api"
	"github.com/petrijr/processo/pkg/entsync"
)

// instanceView is the JSON shape of a process instance.
type instanceView struct {
	ID          string         `json:"id"`
	Process     string         `json:"process"`
	Status      string         `json:"status"`
	CurrentStep int            `json:"current_step"`
	Awaiting    []string       `json:"awaiting,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
	Error       string         `json:"error,omitempty"`
}

func viewOf(inst *processo.ProcessInstance) instanceView {
	v := instanceView{
		ID:          inst.ID,
		Process:     inst.Name,
		Status:      string(inst.Status),
		CurrentStep: inst.CurrentStep,
		Awaiting:    inst.AwaitingParams,
		Params:      inst.Params,
	}
	if inst.Err != nil {
		v.Error = inst.Err.Error()
	}
	return v
}

type startRequest struct {
	Process string         `json:"process"`
	Params  map[string]any `json:"params"`
}

type interactRequest struct {
	Param string `json:"param"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

type rollbackRequest struct {
	Step string `json:"step"`
}

type apiError struct {
	Error string `json:"error"`
}

// buildHandler assembles the full HTTP surface: process execution endpoints,
// entity-sync lock endpoints, and Prometheus metrics.
func buildHandler(eng processo.Engine, syncSvc *entsync.Service) http.Handler {
	r := chi.NewRouter()

	r.Post("/api/process/start", func(w http.ResponseWriter, req *http.Request) {
		var body startRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Process == "" {
			respond(w, http.StatusUnprocessableEntity, apiError{Error: "process name is required"})
			return
		}

		inst, err := eng.Start(req.Context(), body.Process, body.Params)
		if inst == nil && err != nil {
			respond(w, http.StatusNotFound, apiError{Error: err.Error()})
			return
		}
		respondInstance(w, inst)
	})

	r.Post("/api/process/{id}/interact", func(w http.ResponseWriter, req *http.Request) {
		var body interactRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Param == "" {
			respond(w, http.StatusUnprocessableEntity, apiError{Error: "param is required"})
			return
		}

		evType := processo.EventUpdate
		if body.Type == string(processo.EventAction) {
			evType = processo.EventAction
		}

		inst, err := eng.Interact(req.Context(), chi.URLParam(req, "id"), processo.InteractionEvent{
			Param: body.Param,
			Type:  evType,
			Value: body.Value,
		})
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case inst == nil:
				status = http.StatusNotFound
			case errors.Is(err, api.ErrNotSuspended):
				status = http.StatusConflict
			case errors.Is(err, api.ErrUnknownParameter):
				status = http.StatusUnprocessableEntity
			}
			respond(w, status, apiError{Error: err.Error()})
			return
		}
		respondInstance(w, inst)
	})

	r.Post("/api/process/{id}/rollback", func(w http.ResponseWriter, req *http.Request) {
		var body rollbackRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Step == "" {
			respond(w, http.StatusUnprocessableEntity, apiError{Error: "step is required"})
			return
		}

		inst, err := eng.RollbackTo(req.Context(), chi.URLParam(req, "id"), body.Step)
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case inst == nil:
				status = http.StatusNotFound
			case errors.Is(err, api.ErrRollbackNotSupported):
				status = http.StatusConflict
			}
			respond(w, status, apiError{Error: err.Error()})
			return
		}
		respondInstance(w, inst)
	})

	r.Post("/api/process/{id}/cancel", func(w http.ResponseWriter, req *http.Request) {
		inst, err := eng.Cancel(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			status := http.StatusInternalServerError
			if inst == nil {
				status = http.StatusNotFound
			}
			respond(w, status, apiError{Error: err.Error()})
			return
		}
		respondInstance(w, inst)
	})

	r.Post("/api/process/{id}/resume", func(w http.ResponseWriter, req *http.Request) {
		inst, err := eng.Resume(req.Context(), chi.URLParam(req, "id"))
		if err != nil && inst == nil {
			respond(w, http.StatusNotFound, apiError{Error: err.Error()})
			return
		}
		respondInstance(w, inst)
	})

	r.Get("/api/process/{id}", func(w http.ResponseWriter, req *http.Request) {
		inst, err := eng.GetInstance(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			respond(w, http.StatusNotFound, apiError{Error: err.Error()})
			return
		}
		respondInstance(w, inst)
	})

	r.Get("/api/process/{id}/history", func(w http.ResponseWriter, req *http.Request) {
		recs, err := processo.ListHistory(req.Context(), eng, chi.URLParam(req, "id"))
		if err != nil {
			respond(w, http.StatusInternalServerError, apiError{Error: err.Error()})
			return
		}
		respond(w, http.StatusOK, recs)
	})

	r.Get("/api/process", func(w http.ResponseWriter, req *http.Request) {
		opts := processo.InstanceListOptions{
			ProcessName: req.URL.Query().Get("process"),
			Status:      processo.Status(req.URL.Query().Get("status")),
		}
		instances, err := eng.ListInstances(req.Context(), opts)
		if err != nil {
			respond(w, http.StatusInternalServerError, apiError{Error: err.Error()})
			return
		}
		views := make([]instanceView, 0, len(instances))
		for _, inst := range instances {
			views = append(views, viewOf(inst))
		}
		respond(w, http.StatusOK, views)
	})

	entsync.Mount(r, syncSvc)

	r.Handle("/metrics", promhttp.Handler())

	return r
}

func respondInstance(w http.ResponseWriter, inst *processo.ProcessInstance) {
	respond(w, http.StatusOK, viewOf(inst))
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
