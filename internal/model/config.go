package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AssetFocus narrows the universe of tradable assets.
type AssetFocus string

const (
	AssetFocusMajors AssetFocus = "majors"
	AssetFocusMemes  AssetFocus = "memes"
	AssetFocusCustom AssetFocus = "custom"
)

func ParseAssetFocus(s string) (AssetFocus, error) {
	switch AssetFocus(s) {
	case AssetFocusMajors, AssetFocusMemes, AssetFocusCustom:
		return AssetFocus(s), nil
	}
	return "", fmt.Errorf("unknown asset focus %q, allowed: majors, memes, custom", s)
}

// AlgorithmMode selects the signal engine the worker runs.
type AlgorithmMode string

const (
	AlgorithmTrend         AlgorithmMode = "trend"
	AlgorithmMeanReversion AlgorithmMode = "mean_reversion"
	AlgorithmBreakout      AlgorithmMode = "breakout"
)

func ParseAlgorithmMode(s string) (AlgorithmMode, error) {
	switch AlgorithmMode(s) {
	case AlgorithmTrend, AlgorithmMeanReversion, AlgorithmBreakout:
		return AlgorithmMode(s), nil
	}
	return "", fmt.Errorf("unknown algorithm %q, allowed: trend, mean_reversion, breakout", s)
}

// StrictnessLevel tunes how aggressively filters reject entries.
type StrictnessLevel string

const (
	StrictnessLow    StrictnessLevel = "low"
	StrictnessMedium StrictnessLevel = "medium"
	StrictnessHigh   StrictnessLevel = "high"
)

func ParseStrictnessLevel(s string) (StrictnessLevel, error) {
	switch StrictnessLevel(s) {
	case StrictnessLow, StrictnessMedium, StrictnessHigh:
		return StrictnessLevel(s), nil
	}
	return "", fmt.Errorf("unknown strictness %q, allowed: low, medium, high", s)
}

// SignalKnobs are optional per-signal toggles layered on top of the
// algorithm mode.
type SignalKnobs struct {
	VolumeConfirmation bool            `json:"volume_confirmation"`
	VolatilityBrake    bool            `json:"volatility_brake"`
	LiquidityFilter    StrictnessLevel `json:"liquidity_filter"`
	CorrelationBrake   bool            `json:"correlation_brake"`
}

// DefaultSignalKnobs returns the knobs a persona starts with when a
// request leaves them unset. Only quant_lite has opinionated defaults.
func DefaultSignalKnobs(p Persona) *SignalKnobs {
	if p != PersonaQuantLite {
		return nil
	}
	return &SignalKnobs{
		VolumeConfirmation: true,
		VolatilityBrake:    true,
		LiquidityFilter:    StrictnessMedium,
		CorrelationBrake:   true,
	}
}

// TradingConfig is the worker-facing strategy block, stored opaque as
// JSON. CustomSymbols is meaningful only when AssetFocus is custom.
type TradingConfig struct {
	AssetFocus    AssetFocus      `json:"asset_focus"`
	CustomSymbols []string        `json:"custom_symbols,omitempty"`
	Algorithm     AlgorithmMode   `json:"algorithm"`
	Strictness    StrictnessLevel `json:"strictness"`
	PaperMode     bool            `json:"paper_mode"`
	SignalKnobs   *SignalKnobs    `json:"signal_knobs,omitempty"`
}

// RiskConfig bounds worker behavior. Percent fields live in [0,100];
// the trade cap must be non-negative.
type RiskConfig struct {
	MaxPositionSizePct float64 `json:"max_position_size_pct" validate:"gte=0,lte=100"`
	MaxDailyLossPct    float64 `json:"max_daily_loss_pct" validate:"gte=0,lte=100"`
	MaxDrawdownPct     float64 `json:"max_drawdown_pct" validate:"gte=0,lte=100"`
	MaxTradesPerDay    int     `json:"max_trades_per_day" validate:"gte=0"`
}

// Validate reports every violated bound, not just the first.
func (r RiskConfig) Validate() error {
	var problems []string
	check := func(name string, v float64) {
		if v < 0 || v > 100 {
			problems = append(problems, fmt.Sprintf("%s must be between 0 and 100, got %v", name, v))
		}
	}
	check("max_position_size_pct", r.MaxPositionSizePct)
	check("max_daily_loss_pct", r.MaxDailyLossPct)
	check("max_drawdown_pct", r.MaxDrawdownPct)
	if r.MaxTradesPerDay < 0 {
		problems = append(problems, fmt.Sprintf("max_trades_per_day must be non-negative, got %d", r.MaxTradesPerDay))
	}
	if len(problems) == 0 {
		return nil
	}
	return &RiskValidationError{Problems: problems}
}

// RiskValidationError carries every violated risk bound.
type RiskValidationError struct {
	Problems []string
}

func (e *RiskValidationError) Error() string {
	return fmt.Sprintf("invalid risk config: %d bound(s) violated", len(e.Problems))
}

// BotSecrets is the plaintext secret block; it exists only in memory
// between request parsing and envelope encryption.
type BotSecrets struct {
	LLMProvider string `json:"llm_provider"`
	LLMAPIKey   string `json:"llm_api_key"`
}

// EncryptedBotSecrets is what the store persists.
type EncryptedBotSecrets struct {
	LLMProvider        string `json:"llm_provider"`
	LLMAPIKeyEncrypted []byte `json:"llm_api_key_encrypted"`
}

// BotConfig is a configuration as submitted, secrets in plaintext.
type BotConfig struct {
	ID            uuid.UUID     `json:"id"`
	BotID         uuid.UUID     `json:"bot_id"`
	Version       int           `json:"version"`
	TradingConfig TradingConfig `json:"trading_config"`
	RiskConfig    RiskConfig    `json:"risk_config"`
	Secrets       BotSecrets    `json:"secrets"`
	CreatedAt     time.Time     `json:"created_at"`
}

// StoredBotConfig is an immutable configuration version at rest; the
// API key is sealed by the secrets envelope. A new configuration is
// always a new row with the next version for the bot.
type StoredBotConfig struct {
	ID            uuid.UUID           `json:"id"`
	BotID         uuid.UUID           `json:"bot_id"`
	Version       int                 `json:"version"`
	TradingConfig TradingConfig       `json:"trading_config"`
	RiskConfig    RiskConfig          `json:"risk_config"`
	Secrets       EncryptedBotSecrets `json:"secrets"`
	CreatedAt     time.Time           `json:"created_at"`
}
