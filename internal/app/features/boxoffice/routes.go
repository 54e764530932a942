package boxoffice

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns a router with the box office read endpoints.
//
// When mounted at /api:
//   - GET /api/ranking               - current reservation ranking with freshness
//   - GET /api/reservation?title=    - one movie's row in the current ranking
//   - GET /api/history?code=&title=  - one movie's ranking history
//   - GET /api/trend/{code}          - daily trend, optional from/to (YYYYMMDD)
//   - GET /api/composite?date=       - daily list joined with the ranking
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/ranking", h.Ranking)
	r.Get("/reservation", h.Reservation)
	r.Get("/history", h.History)
	r.Get("/trend/{code}", h.Trend)
	r.Get("/composite", h.Composite)
	return r
}
