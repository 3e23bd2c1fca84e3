package api

import (
	"net/http"

	"agentboard/pkg/api/handlers"
	"agentboard/pkg/auth"
	"agentboard/pkg/notify"
	"agentboard/pkg/registry"

	"github.com/gorilla/mux"
)

// NewRouter assembles the versioned API router. All /v1 routes sit behind
// the signed-agent middleware; the gateway middleware is applied by the
// caller around the whole handler chain.
func NewRouter(eng *notify.Engine, reg *registry.Registry) http.Handler {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(mux.MiddlewareFunc(func(next http.Handler) http.Handler {
		return auth.RequireSignedAgent(next)
	}))

	handlers.RegisterNotifications(v1, eng)
	handlers.RegisterAgents(v1, reg)
	return r
}
