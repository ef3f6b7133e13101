package handlers

import (
	"net/http"
)

type healthResponse struct {
	Status   string `json:"status"`
	Mode     string `json:"mode"`
	Personas int    `json:"personas"`
}

// Health reports degraded with 503 when no persona is active, since every
// execution would fail at the fan-out.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Mode: "sync"}
	if a.Async {
		resp.Mode = "async"
	}
	if a.Personas != nil {
		resp.Personas = len(a.Personas.Active())
	}
	code := http.StatusOK
	if resp.Personas == 0 {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	a.json(w, code, resp)
}
