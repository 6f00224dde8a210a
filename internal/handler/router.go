package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/sangha-bot/internal/model/schedule"
	"github.com/zhouzirui/sangha-bot/internal/service/scheduler"
	promptstore "github.com/zhouzirui/sangha-bot/internal/store/prompt"
	"github.com/zhouzirui/sangha-bot/pkg/utils"
)

const (
	listLimitMin     = 1
	listLimitMax     = 20
	listLimitDefault = 10
)

// NewRouter wires the read-only ops surface. Nothing here mutates bot state;
// all mutation goes through chat commands.
func NewRouter(store promptstore.Store, engine *scheduler.Engine) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/status", handleStatus(store, engine))
		api.Get("/prompts", handlePrompts(store))
	})

	return r
}

func handleStatus(store promptstore.Store, engine *scheduler.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := store.Count(r.Context())
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "failed to count prompts")
			return
		}

		var sched *schedule.Schedule
		if current, ok := engine.Current(); ok {
			sched = &current
		}

		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"promptCount": count,
			"schedule":    sched,
		})
	}
}

func handlePrompts(store promptstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := listLimitDefault
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				utils.RespondError(w, http.StatusBadRequest, "limit must be an integer")
				return
			}
			if parsed < listLimitMin || parsed > listLimitMax {
				utils.RespondError(w, http.StatusBadRequest, "limit out of range")
				return
			}
			limit = parsed
		}

		records, err := store.List(r.Context(), limit)
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "failed to list prompts")
			return
		}

		utils.RespondJSON(w, http.StatusOK, map[string]any{"prompts": records})
	}
}
