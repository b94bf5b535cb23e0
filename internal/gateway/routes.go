package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/scanhub-io/coordinator/internal/auth"
)

// buildRouter wires every coordinator endpoint onto a chi router. Authenticated
// routes sit behind verifier.Middleware; GET /metrics is deliberately
// outside it.
func buildRouter(gw *Server, verifier *auth.Verifier) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(gw.metrics.Middleware)

	r.Get("/metrics", gw.metrics.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(verifier.Middleware)

		r.Post("/job", gw.handleDispatch)
		r.Post("/package", gw.handleIntake)
		r.Put("/package", gw.handleSubmit)
		r.Post("/package/fail", gw.handleFail)
		r.Get("/package", gw.handleList)
		r.Post("/report/{name}", gw.handleReport)
		r.Post("/rules/update", gw.handleRulesUpdate)
	})

	return r
}

// chiRoutePattern returns the matched route pattern (e.g. "/report/{name}")
// for low-cardinality metrics labels, falling back to "" when unavailable
// (e.g. the request never matched a route).
func chiRoutePattern(r *http.Request) string {
	rc := chi.RouteContext(r.Context())
	if rc == nil {
		return ""
	}
	return rc.RoutePattern()
}
