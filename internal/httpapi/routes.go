package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/pewpew-tabletop/range-backend/internal/hub"
	"github.com/pewpew-tabletop/range-backend/internal/persist"
	"github.com/pewpew-tabletop/range-backend/internal/scenario"
	"github.com/pewpew-tabletop/range-backend/internal/ws"
)

// Deps is everything the router needs injected.
type Deps struct {
	Hub           *hub.Hub
	Store         persist.Store
	Catalog       *scenario.Catalog
	PublicBaseURL string
	Logger        *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/sessions", CreateSession(d.Hub, d.Logger))
	r.Get("/sessions/{id}", SessionStatus(d.Hub))
	r.Post("/sessions/{id}/codes", RotateCodes(d.Hub))

	r.Get("/join/{code}", ResolveJoinCode(d.Hub))
	r.Get("/join/{code}/qr", JoinQR(d.Hub, d.PublicBaseURL))

	r.Get("/scenarios", ListScenarios(d.Catalog))
	r.Get("/history", History(d.Store))

	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(d.Hub, d.Logger))
	return r
}
