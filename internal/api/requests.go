package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cedros/claw-spawn/internal/model"
)

type CreateAccountRequest struct {
	ExternalID string `json:"external_id" validate:"required"`
	Tier       string `json:"tier" validate:"required"`
}

// BotConfigPayload is the strategy, risk and secret block shared by
// bot creation and config pushes. Enum fields stay strings here;
// buildBotConfig parses them so a 400 can name the allowed values.
type BotConfigPayload struct {
	AssetFocus         string   `json:"asset_focus" validate:"required"`
	CustomSymbols      []string `json:"custom_symbols,omitempty"`
	Algorithm          string   `json:"algorithm" validate:"required"`
	Strictness         string   `json:"strictness" validate:"required"`
	PaperMode          bool     `json:"paper_mode"`
	MaxPositionSizePct float64  `json:"max_position_size_pct"`
	MaxDailyLossPct    float64  `json:"max_daily_loss_pct"`
	MaxDrawdownPct     float64  `json:"max_drawdown_pct"`
	MaxTradesPerDay    int      `json:"max_trades_per_day"`
	LLMProvider        string   `json:"llm_provider" validate:"required"`
	LLMAPIKey          string   `json:"llm_api_key" validate:"required"`
}

type CreateBotRequest struct {
	AccountID uuid.UUID `json:"account_id" validate:"required"`
	Name      string    `json:"name" validate:"required"`
	Persona   string    `json:"persona" validate:"required"`
	BotConfigPayload
}

type BotActionRequest struct {
	Action string `json:"action" validate:"required"`
}

type RegisterBotRequest struct {
	BotID uuid.UUID `json:"bot_id" validate:"required"`
}

type AckConfigRequest struct {
	ConfigID uuid.UUID `json:"config_id" validate:"required"`
}

// decode unmarshals the body into dst and runs struct validation,
// answering 400 itself when either fails.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request", validationDetails(err)...)
		return false
	}
	return true
}

func validationDetails(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			details = append(details, fmt.Sprintf("%s is required", fe.Field()))
			continue
		}
		details = append(details, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
	}
	return details
}

// buildBotConfig parses the enum fields, applies the persona's signal
// defaults and checks the risk bounds, answering 400 itself when any
// of that fails. Custom symbols are dropped unless the focus is
// custom.
func (s *Server) buildBotConfig(w http.ResponseWriter, p BotConfigPayload, persona model.Persona) (model.BotConfig, bool) {
	assetFocus, err := model.ParseAssetFocus(p.AssetFocus)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid asset_focus", "majors", "memes", "custom")
		return model.BotConfig{}, false
	}
	algorithm, err := model.ParseAlgorithmMode(p.Algorithm)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid algorithm", "trend", "mean_reversion", "breakout")
		return model.BotConfig{}, false
	}
	strictness, err := model.ParseStrictnessLevel(p.Strictness)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid strictness", "low", "medium", "high")
		return model.BotConfig{}, false
	}

	risk := model.RiskConfig{
		MaxPositionSizePct: p.MaxPositionSizePct,
		MaxDailyLossPct:    p.MaxDailyLossPct,
		MaxDrawdownPct:     p.MaxDrawdownPct,
		MaxTradesPerDay:    p.MaxTradesPerDay,
	}
	if err := risk.Validate(); err != nil {
		details := []string{err.Error()}
		var riskErr *model.RiskValidationError
		if errors.As(err, &riskErr) {
			details = riskErr.Problems
		}
		s.log.Warn("risk config validation failed", zap.Strings("problems", details))
		s.writeError(w, http.StatusBadRequest, "Invalid risk configuration", details...)
		return model.BotConfig{}, false
	}

	symbols := p.CustomSymbols
	if assetFocus != model.AssetFocusCustom {
		symbols = nil
	}
	return model.BotConfig{
		TradingConfig: model.TradingConfig{
			AssetFocus:    assetFocus,
			CustomSymbols: symbols,
			Algorithm:     algorithm,
			Strictness:    strictness,
			PaperMode:     p.PaperMode,
			SignalKnobs:   model.DefaultSignalKnobs(persona),
		},
		RiskConfig: risk,
		Secrets: model.BotSecrets{
			LLMProvider: p.LLMProvider,
			LLMAPIKey:   p.LLMAPIKey,
		},
	}, true
}
