// Package provision creates and dismantles the cloud footprint of a
// bot. Creation is a saga across Postgres and DigitalOcean: quota is
// reserved first, every later failure either rolls the reservation
// back or, on rate limiting, parks the bot as pending so a retry can
// finish the job.
package provision

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cedros/claw-spawn/internal/config"
	"github.com/cedros/claw-spawn/internal/digitalocean"
	"github.com/cedros/claw-spawn/internal/metrics"
	"github.com/cedros/claw-spawn/internal/model"
	"github.com/cedros/claw-spawn/internal/store"
)

const (
	dropletRegion = "nyc3"
	dropletSize   = "s-1vcpu-2gb"
	productTag    = "openclaw"

	maxBotNameLength = 64
)

// AccountStore is the slice of the persistence layer account checks
// need.
type AccountStore interface {
	GetAccountByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
}

// BotStore covers the bot row and the per-account quota counter.
type BotStore interface {
	CreateBot(ctx context.Context, bot *model.Bot) error
	GetBotByID(ctx context.Context, id uuid.UUID) (*model.Bot, error)
	UpdateBotStatus(ctx context.Context, id uuid.UUID, status model.BotStatus) error
	UpdateBotDroplet(ctx context.Context, botID uuid.UUID, dropletID *int64) error
	UpdateBotConfigVersion(ctx context.Context, botID uuid.UUID, desired, applied *uuid.UUID) error
	UpdateBotRegistrationToken(ctx context.Context, botID uuid.UUID, token string) error
	DeleteBot(ctx context.Context, id uuid.UUID) error
	HardDeleteBot(ctx context.Context, id uuid.UUID) error
	IncrementBotCounter(ctx context.Context, accountID uuid.UUID) (*store.QuotaDecision, error)
	DecrementBotCounter(ctx context.Context, accountID uuid.UUID) error
}

// ConfigStore covers configuration versions.
type ConfigStore interface {
	CreateConfig(ctx context.Context, cfg *model.StoredBotConfig) (*model.StoredBotConfig, error)
	GetLatestConfigForBot(ctx context.Context, botID uuid.UUID) (*model.StoredBotConfig, error)
}

// DropletStore covers the local droplet records.
type DropletStore interface {
	CreateDroplet(ctx context.Context, droplet *model.Droplet) error
	UpdateDropletBotAssignment(ctx context.Context, dropletID int64, botID *uuid.UUID) error
	UpdateDropletStatus(ctx context.Context, dropletID int64, status model.DropletStatus) error
	UpdateDropletIP(ctx context.Context, dropletID int64, ip *string) error
	MarkDropletDestroyed(ctx context.Context, dropletID int64) error
}

// CloudClient is the DigitalOcean surface the saga drives.
type CloudClient interface {
	CreateDroplet(ctx context.Context, req digitalocean.CreateRequest) (*model.Droplet, error)
	GetDroplet(ctx context.Context, dropletID int64) (*model.Droplet, error)
	DestroyDroplet(ctx context.Context, dropletID int64) error
	ShutdownDroplet(ctx context.Context, dropletID int64) error
	RebootDroplet(ctx context.Context, dropletID int64) error
}

// SecretsEncryptor seals the LLM API key before it is stored.
type SecretsEncryptor interface {
	Encrypt(plaintext string) ([]byte, error)
}

// Options carries the fixed provisioning inputs read from
// configuration at startup.
type Options struct {
	Image           string
	ControlPlaneURL string
	Customizer      config.CustomizerConfig
	Toolchain       config.ToolchainConfig
}

type Service struct {
	cloud    CloudClient
	accounts AccountStore
	bots     BotStore
	configs  ConfigStore
	droplets DropletStore
	secrets  SecretsEncryptor
	metrics  *metrics.Metrics
	log      *zap.Logger

	image           string
	controlPlaneURL string
	customizer      config.CustomizerConfig
	toolchain       config.ToolchainConfig
}

func New(cloud CloudClient, accounts AccountStore, bots BotStore, configs ConfigStore, droplets DropletStore, secrets SecretsEncryptor, m *metrics.Metrics, log *zap.Logger, opts Options) *Service {
	return &Service{
		cloud:           cloud,
		accounts:        accounts,
		bots:            bots,
		configs:         configs,
		droplets:        droplets,
		secrets:         secrets,
		metrics:         m,
		log:             log,
		image:           opts.Image,
		controlPlaneURL: opts.ControlPlaneURL,
		customizer:      opts.Customizer,
		toolchain:       opts.Toolchain,
	}
}

// CreateBot runs the full creation saga: account check, quota
// reservation, bot row, initial config version, droplet. A rate limit
// from the IaaS leaves the bot pending with its quota slot held so
// creation can be retried; every other failure hard-deletes the bot
// row and releases the slot before the error is returned.
func (s *Service) CreateBot(ctx context.Context, accountID uuid.UUID, rawName string, persona model.Persona, cfg model.BotConfig) (*model.Bot, error) {
	if _, err := s.accounts.GetAccountByID(ctx, accountID); err != nil {
		return nil, err
	}

	decision, err := s.bots.IncrementBotCounter(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		s.metrics.ProvisioningFailures.WithLabelValues("quota").Inc()
		s.log.Warn("account limit reached",
			zap.String("accountID", accountID.String()),
			zap.Int("currentBots", decision.CurrentCount),
			zap.Int("maxBots", decision.MaxCount))
		return nil, &AccountLimitReachedError{Max: decision.MaxCount}
	}

	name := sanitizeBotName(rawName)
	s.log.Info("creating bot",
		zap.String("accountID", accountID.String()),
		zap.String("name", name),
		zap.String("persona", string(persona)))

	bot := model.NewBot(accountID, name, persona)
	if err := s.createBotInner(ctx, bot, cfg); err != nil {
		if digitalocean.IsRateLimited(err) {
			s.metrics.ProvisioningFailures.WithLabelValues("rate_limited").Inc()
			return nil, err
		}
		reason := "store"
		var doErr *digitalocean.Error
		if errors.As(err, &doErr) {
			reason = "iaas"
		}
		s.metrics.ProvisioningFailures.WithLabelValues(reason).Inc()
		s.rollbackCreate(ctx, bot)
		return nil, err
	}

	s.metrics.BotsCreated.Inc()
	return bot, nil
}

// createBotInner is everything after the quota slot is held. Any
// error returned here is the caller's cue to compensate.
func (s *Service) createBotInner(ctx context.Context, bot *model.Bot, cfg model.BotConfig) error {
	if err := s.bots.CreateBot(ctx, bot); err != nil {
		return err
	}
	s.log.Info("created bot record", zap.String("botID", bot.ID.String()))

	sealed, err := s.secrets.Encrypt(cfg.Secrets.LLMAPIKey)
	if err != nil {
		return errors.Wrap(err, "failed to encrypt llm api key")
	}

	stored, err := s.configs.CreateConfig(ctx, &model.StoredBotConfig{
		ID:            uuid.New(),
		BotID:         bot.ID,
		TradingConfig: cfg.TradingConfig,
		RiskConfig:    cfg.RiskConfig,
		Secrets: model.EncryptedBotSecrets{
			LLMProvider:        cfg.Secrets.LLMProvider,
			LLMAPIKeyEncrypted: sealed,
		},
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	if err := s.bots.UpdateBotConfigVersion(ctx, bot.ID, &stored.ID, nil); err != nil {
		return err
	}
	bot.DesiredConfigVersionID = &stored.ID

	return s.spawn(ctx, bot, stored)
}

// rollbackCreate undoes a partial creation: the bot row goes away and
// the quota slot is released. Failures are logged, never surfaced;
// the caller keeps the original error.
func (s *Service) rollbackCreate(ctx context.Context, bot *model.Bot) {
	if err := s.bots.HardDeleteBot(ctx, bot.ID); err != nil && !store.IsNotFound(err) {
		s.log.Error("failed to remove bot row during rollback",
			zap.String("botID", bot.ID.String()),
			zap.Error(err))
	}
	if err := s.bots.DecrementBotCounter(ctx, bot.AccountID); err != nil {
		s.log.Error("failed to release quota slot during rollback",
			zap.String("accountID", bot.AccountID.String()),
			zap.Error(err))
	}
}

// spawn creates the droplet for a bot that already has a config
// version, then records it. The droplet create call is the point of
// no return: once it succeeds, persistence failures trigger a
// best-effort destroy of the fresh droplet.
func (s *Service) spawn(ctx context.Context, bot *model.Bot, cfg *model.StoredBotConfig) error {
	if err := s.bots.UpdateBotStatus(ctx, bot.ID, model.BotStatusProvisioning); err != nil {
		return err
	}
	bot.Status = model.BotStatusProvisioning

	token, err := generateRegistrationToken()
	if err != nil {
		return errors.Wrap(err, "failed to generate registration token")
	}
	if err := s.bots.UpdateBotRegistrationToken(ctx, bot.ID, token); err != nil {
		return err
	}

	req := digitalocean.CreateRequest{
		Name:     dropletName(bot.ID),
		Region:   dropletRegion,
		Size:     dropletSize,
		Image:    s.image,
		UserData: s.buildUserData(bot.ID, token),
		Tags:     []string{productTag, "bot-" + bot.ID.String()},
	}

	droplet, err := s.cloud.CreateDroplet(ctx, req)
	if err != nil {
		if digitalocean.IsRateLimited(err) {
			s.log.Warn("rate limited by DigitalOcean, spawn deferred",
				zap.String("botID", bot.ID.String()))
			if statusErr := s.bots.UpdateBotStatus(ctx, bot.ID, model.BotStatusPending); statusErr != nil {
				return statusErr
			}
			bot.Status = model.BotStatusPending
			return err
		}
		s.log.Error("failed to create droplet",
			zap.String("botID", bot.ID.String()),
			zap.Error(err))
		if statusErr := s.bots.UpdateBotStatus(ctx, bot.ID, model.BotStatusError); statusErr != nil {
			return statusErr
		}
		bot.Status = model.BotStatusError
		return err
	}

	dbErr := func() error {
		if err := s.droplets.CreateDroplet(ctx, droplet); err != nil {
			return err
		}
		if err := s.droplets.UpdateDropletBotAssignment(ctx, droplet.ID, &bot.ID); err != nil {
			return err
		}
		return s.bots.UpdateBotDroplet(ctx, bot.ID, &droplet.ID)
	}()
	if dbErr != nil {
		s.log.Error("failed to persist droplet, destroying it",
			zap.String("botID", bot.ID.String()),
			zap.Int64("dropletID", droplet.ID),
			zap.Error(dbErr))
		if cleanupErr := s.cloud.DestroyDroplet(ctx, droplet.ID); cleanupErr != nil {
			s.log.Error("failed to destroy unpersisted droplet, it may be orphaned",
				zap.Int64("dropletID", droplet.ID),
				zap.Error(cleanupErr))
		}
		if statusErr := s.bots.UpdateBotStatus(ctx, bot.ID, model.BotStatusError); statusErr != nil {
			s.log.Error("failed to mark bot errored",
				zap.String("botID", bot.ID.String()),
				zap.Error(statusErr))
		}
		bot.Status = model.BotStatusError
		return dbErr
	}

	bot.DropletID = &droplet.ID
	s.log.Info("spawned droplet",
		zap.String("botID", bot.ID.String()),
		zap.Int64("dropletID", droplet.ID),
		zap.String("name", droplet.Name),
		zap.Int("configVersion", cfg.Version))
	return nil
}

// dropletName derives the cloud name from the bot id. The first eight
// characters of the uuid keep names short but recognizable.
func dropletName(botID uuid.UUID) string {
	return fmt.Sprintf("openclaw-bot-%.8s", botID.String())
}

// generateRegistrationToken returns 32 random bytes in standard
// base64. The plaintext goes into the droplet's user data exactly
// once; only its digest is ever stored.
func generateRegistrationToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "failed to read random bytes")
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// sanitizeBotName keeps letters, digits, spaces, hyphens and
// underscores, replaces everything else with an underscore, then
// trims surrounding whitespace and caps the result at 64 code points.
func sanitizeBotName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == ' ', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	trimmed := strings.TrimSpace(b.String())
	runes := []rune(trimmed)
	if len(runes) > maxBotNameLength {
		return string(runes[:maxBotNameLength])
	}
	return trimmed
}
