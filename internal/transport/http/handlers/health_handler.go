package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/hualingluo/InteractiveMovie/internal/transport/http/dto"
	httperrors "github.com/hualingluo/InteractiveMovie/internal/transport/http/errors"
)

type HealthCheck func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]HealthCheck
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{checks: map[string]HealthCheck{}}
}

// AttachCheck adds a dependency probe. Any failing probe turns the response
// into 503.
func (h *HealthHandler) AttachCheck(name string, check HealthCheck) {
	if check == nil {
		return
	}
	h.checks[name] = check
}

func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			httperrors.Write(w, http.StatusServiceUnavailable, dto.HealthResponse{
				Status: "degraded: " + name,
				Time:   time.Now().UTC().Format(time.RFC3339),
			})
			return
		}
	}
	httperrors.Write(w, http.StatusOK, dto.HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}
