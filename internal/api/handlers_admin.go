package api

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cedros/claw-spawn/internal/digitalocean"
	"github.com/cedros/claw-spawn/internal/lifecycle"
	"github.com/cedros/claw-spawn/internal/model"
	"github.com/cedros/claw-spawn/internal/provision"
	"github.com/cedros/claw-spawn/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.log.Error("health check failed", zap.Error(err))
		s.writeJSON(w, http.StatusServiceUnavailable,
			healthBody{Status: "unhealthy", Error: "Database connectivity failed"})
		return
	}
	s.writeJSON(w, http.StatusOK, healthBody{Status: "healthy"})
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !s.decode(w, r, &req) {
		return
	}
	tier, err := model.ParseSubscriptionTier(req.Tier)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid subscription tier", "free", "basic", "pro")
		return
	}
	account := model.NewAccount(req.ExternalID, tier)
	if err := s.accounts.CreateAccount(r.Context(), account); err != nil {
		s.log.Error("failed to create account", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}
	s.writeJSON(w, http.StatusCreated, idBody{ID: account.ID})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}
	account, err := s.accounts.GetAccountByID(r.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			s.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		s.log.Error("failed to get account", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Failed to get account")
		return
	}
	s.writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleListBots(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}
	limit, offset := paginationParams(r)
	bots, err := s.lifecycle.ListAccountBots(r.Context(), id, limit, offset)
	if err != nil {
		s.log.Error("failed to list bots", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Failed to list bots")
		return
	}
	if bots == nil {
		bots = []*model.Bot{}
	}
	s.writeJSON(w, http.StatusOK, bots)
}

func (s *Server) handleCreateBot(w http.ResponseWriter, r *http.Request) {
	var req CreateBotRequest
	if !s.decode(w, r, &req) {
		return
	}
	persona, err := model.ParsePersona(req.Persona)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid persona", "beginner", "tweaker", "quant_lite")
		return
	}
	cfg, ok := s.buildBotConfig(w, req.BotConfigPayload, persona)
	if !ok {
		return
	}
	bot, err := s.provisioning.CreateBot(r.Context(), req.AccountID, req.Name, persona, cfg)
	if err != nil {
		s.writeCreateBotError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, bot)
}

func (s *Server) writeCreateBotError(w http.ResponseWriter, err error) {
	var limitErr *provision.AccountLimitReachedError
	switch {
	case errors.As(err, &limitErr):
		s.writeError(w, http.StatusForbidden,
			fmt.Sprintf("Account limit reached: maximum %d bots allowed", limitErr.Max))
	case store.IsNotFound(err):
		s.writeError(w, http.StatusNotFound, "Account not found")
	case digitalocean.IsRateLimited(err):
		s.writeError(w, http.StatusTooManyRequests, "Rate limited by DigitalOcean, please retry")
	default:
		s.log.Error("failed to create bot", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Failed to create bot")
	}
}

func (s *Server) handleGetBot(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid bot ID")
		return
	}
	bot, err := s.lifecycle.GetBot(r.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			s.writeError(w, http.StatusNotFound, "Bot not found")
			return
		}
		s.log.Error("failed to fetch bot", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch bot")
		return
	}
	s.writeJSON(w, http.StatusOK, bot)
}

func (s *Server) handleGetBotConfig(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid bot ID")
		return
	}
	cfg, err := s.lifecycle.GetDesiredConfig(r.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			s.writeError(w, http.StatusNotFound, "Bot not found")
			return
		}
		s.log.Error("failed to get config", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Failed to get config")
		return
	}
	if cfg == nil {
		s.writeError(w, http.StatusNotFound, "No config found")
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleListBotConfigs(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid bot ID")
		return
	}
	configs, err := s.lifecycle.ListBotConfigs(r.Context(), id)
	if err != nil {
		s.log.Error("failed to list configs", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Failed to list configs")
		return
	}
	if configs == nil {
		configs = []*model.StoredBotConfig{}
	}
	s.writeJSON(w, http.StatusOK, configs)
}

func (s *Server) handlePushBotConfig(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid bot ID")
		return
	}
	var payload BotConfigPayload
	if !s.decode(w, r, &payload) {
		return
	}

	// Signal defaults follow the bot's persona, so the bot has to
	// exist before the payload can be assembled.
	bot, err := s.lifecycle.GetBot(r.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			s.writeError(w, http.StatusNotFound, "Bot not found")
			return
		}
		s.log.Error("failed to fetch bot", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch bot")
		return
	}
	cfg, ok := s.buildBotConfig(w, payload, bot.Persona)
	if !ok {
		return
	}

	stored, err := s.lifecycle.CreateBotConfig(r.Context(), id, cfg)
	if err != nil {
		switch {
		case lifecycle.IsInvalidState(err):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case store.IsNotFound(err):
			s.writeError(w, http.StatusNotFound, "Bot not found")
		default:
			s.log.Error("failed to create config", zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "Failed to create config")
		}
		return
	}
	s.writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleBotAction(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid bot ID")
		return
	}
	var req BotActionRequest
	if !s.decode(w, r, &req) {
		return
	}

	switch req.Action {
	case "pause":
		err = s.provisioning.PauseBot(r.Context(), id)
	case "resume":
		err = s.provisioning.ResumeBot(r.Context(), id)
	case "redeploy":
		err = s.provisioning.RedeployBot(r.Context(), id)
	case "destroy":
		err = s.provisioning.DestroyBot(r.Context(), id)
	case "sync":
		err = s.provisioning.SyncDropletStatus(r.Context(), id)
	default:
		s.writeError(w, http.StatusBadRequest, "Unknown action",
			"pause", "resume", "redeploy", "destroy", "sync")
		return
	}
	if err != nil {
		s.writeActionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statusBody{Status: "ok"})
}

// writeActionError maps action failures onto the documented codes:
// state refusals 400, missing entities 404, IaaS throttling 429,
// everything else 500.
func (s *Server) writeActionError(w http.ResponseWriter, err error) {
	switch {
	case provision.IsInvalidConfig(err):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case store.IsNotFound(err):
		s.writeError(w, http.StatusNotFound, "Bot not found")
	case digitalocean.IsRateLimited(err):
		s.writeError(w, http.StatusTooManyRequests, "Rate limited by DigitalOcean, please retry")
	case digitalocean.IsNotFound(err):
		s.writeError(w, http.StatusNotFound, "Associated droplet not found")
	default:
		s.log.Error("bot action failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Action failed")
	}
}
