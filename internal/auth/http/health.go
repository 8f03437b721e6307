package http

import (
	"net/http"
	"time"

	"github.com/loxleyhq/authcore/internal/auth/store"
	"github.com/loxleyhq/authcore/pkg/httpx"
)

type healthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime,omitempty"`
	Version string `json:"version,omitempty"`

	Database string `json:"database,omitempty"`
}

// LivezHandler serves GET /livez. Always 200 while the process is up.
type LivezHandler struct {
	BuildVersion string
	StartTime    time.Time
}

func (h *LivezHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Uptime:  time.Since(h.StartTime).String(),
		Version: h.BuildVersion,
	})
}

// ReadyzHandler serves GET /readyz. Reports 503 until the store answers.
type ReadyzHandler struct {
	Store store.Store
}

func (h *ReadyzHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	database := "ok"
	code := http.StatusOK

	if err := h.Store.Ping(r.Context()); err != nil {
		status = "degraded"
		database = "error: " + err.Error()
		code = http.StatusServiceUnavailable
	}

	httpx.WriteJSON(w, code, healthResponse{
		Status:   status,
		Database: database,
	})
}
