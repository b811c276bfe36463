package api

import (
	"net/http"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cedros/claw-spawn/internal/lifecycle"
	"github.com/cedros/claw-spawn/internal/store"
)

// handleRegisterBot is the first call a freshly booted worker makes.
// The bot id arrives in the body rather than the path, so the token
// check happens here instead of in workerAuth.
func (s *Server) handleRegisterBot(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "Missing or invalid authorization token")
		return
	}
	var req RegisterBotRequest
	if !s.decode(w, r, &req) {
		return
	}
	bot, err := s.lifecycle.GetBotWithToken(r.Context(), req.BotID, token)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "Invalid bot ID or registration token")
		return
	}
	s.log.Info("bot registered", zap.String("botID", bot.ID.String()))
	s.writeJSON(w, http.StatusOK, statusBody{Status: "registered"})
}

func (s *Server) handleDesiredConfig(w http.ResponseWriter, r *http.Request) {
	botID := workerBotID(r.Context())
	cfg, err := s.lifecycle.GetDesiredConfig(r.Context(), botID)
	if err != nil {
		if store.IsNotFound(err) {
			s.writeError(w, http.StatusNotFound, "Bot not found")
			return
		}
		s.log.Error("failed to get desired config",
			zap.String("botID", botID.String()), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Failed to get config")
		return
	}
	if cfg == nil {
		s.writeError(w, http.StatusNotFound, "No desired config")
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleAcknowledgeConfig(w http.ResponseWriter, r *http.Request) {
	botID := workerBotID(r.Context())
	var req AckConfigRequest
	if !s.decode(w, r, &req) {
		return
	}

	err := s.lifecycle.AcknowledgeConfig(r.Context(), botID, req.ConfigID)
	var conflictErr *lifecycle.VersionConflictError
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, statusBody{Status: "acknowledged"})
	case errors.As(err, &conflictErr):
		s.writeJSON(w, http.StatusConflict, conflictBody{
			Error:        "Config version conflict",
			Acknowledged: conflictErr.Acknowledged,
			Desired:      conflictErr.Desired,
		})
	case lifecycle.IsConfigNotFound(err):
		s.writeError(w, http.StatusNotFound, "Config not found")
	case store.IsNotFound(err):
		s.writeError(w, http.StatusNotFound, "Bot not found")
	default:
		s.log.Error("failed to acknowledge config",
			zap.String("botID", botID.String()), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Failed to acknowledge config")
	}
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	botID := workerBotID(r.Context())
	if err := s.lifecycle.RecordHeartbeat(r.Context(), botID); err != nil {
		if store.IsNotFound(err) {
			s.writeError(w, http.StatusNotFound, "Bot not found")
			return
		}
		s.log.Error("failed to record heartbeat",
			zap.String("botID", botID.String()), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Failed to record heartbeat")
		return
	}
	s.writeJSON(w, http.StatusOK, statusBody{Status: "ok"})
}
