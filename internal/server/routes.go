package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/turingarena/internal/api/v1"
	"github.com/gosuda/turingarena/internal/api/ws"
	"github.com/gosuda/turingarena/internal/arena"
)

func registerAPIRoutes(api huma.API, registry *arena.Registry) {
	v1.RegisterSessionRoutes(api, registry)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub, registry *arena.Registry) {
	r.Get("/ws", hub.SessionHandler(registry))
	// Legacy clients connect to the root path with ?sessionId=.
	r.Get("/", hub.SessionHandler(registry))
}
