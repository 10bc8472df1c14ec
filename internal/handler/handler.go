package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mindwell-dev/mindwell/internal/broker"
	"github.com/mindwell-dev/mindwell/internal/config"
	"github.com/mindwell-dev/mindwell/internal/jwt"
	"github.com/mindwell-dev/mindwell/internal/logger"
	"github.com/mindwell-dev/mindwell/internal/service"
)

// HealthChecker reports readiness of the storage dependency.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	thread  service.ThreadService
	message service.MessageService
	broker  *broker.Broker
	jwt     jwt.JwtService
	health  HealthChecker
	cfg     *config.Config
}

func New(thread service.ThreadService, message service.MessageService, b *broker.Broker, jwtService jwt.JwtService, health HealthChecker, cfg *config.Config) *Handler {
	return &Handler{thread, message, b, jwtService, health, cfg}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Error("failed to encode response", "err", err)
	}
}
