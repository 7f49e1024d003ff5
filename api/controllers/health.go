package controllers

import (
	"context"
	"net/http"

	"github.com/dannyvalenz/fanlink-backend/api/responses"
	"github.com/dannyvalenz/fanlink-backend/pkg/config"
	pkgerrors "github.com/dannyvalenz/fanlink-backend/pkg/errors"
	"github.com/dannyvalenz/fanlink-backend/pkg/logger"
)

// Pinger is the readiness contract the backing stores satisfy.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Fanlink-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady verifies the datastore connections before reporting ready.
func HealthReady(cfg *config.Config, logg *logger.Logger, stores map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Fanlink-Env", cfg.App.Env)
		for name, store := range stores {
			if store == nil {
				continue
			}
			if err := store.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unavailable"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
