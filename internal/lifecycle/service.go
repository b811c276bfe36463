// Package lifecycle manages a bot's config channel and liveness after
// it exists: new config versions, worker acknowledgements, heartbeats
// and stale detection. Provisioning owns the droplet; this package
// never talks to the IaaS.
package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cedros/claw-spawn/internal/metrics"
	"github.com/cedros/claw-spawn/internal/model"
	"github.com/cedros/claw-spawn/internal/store"
)

// BotStore is the bot-side persistence surface the service consumes.
type BotStore interface {
	GetBotByID(ctx context.Context, id uuid.UUID) (*model.Bot, error)
	GetBotByIDWithToken(ctx context.Context, id uuid.UUID, token string) (*model.Bot, error)
	ListBotsByAccountPaginated(ctx context.Context, accountID uuid.UUID, limit, offset int64) ([]*model.Bot, error)
	UpdateBotStatus(ctx context.Context, id uuid.UUID, status model.BotStatus) error
	UpdateBotConfigVersion(ctx context.Context, botID uuid.UUID, desired, applied *uuid.UUID) error
	UpdateBotHeartbeat(ctx context.Context, botID uuid.UUID) error
	ListStaleBots(ctx context.Context, threshold time.Time) ([]*model.Bot, error)
}

// ConfigStore covers configuration versions.
type ConfigStore interface {
	CreateConfig(ctx context.Context, cfg *model.StoredBotConfig) (*model.StoredBotConfig, error)
	GetConfigByID(ctx context.Context, id uuid.UUID) (*model.StoredBotConfig, error)
	ListConfigsByBot(ctx context.Context, botID uuid.UUID) ([]*model.StoredBotConfig, error)
}

// SecretsEncryptor seals the LLM API key before it is stored.
type SecretsEncryptor interface {
	Encrypt(plaintext string) ([]byte, error)
}

type Service struct {
	bots    BotStore
	configs ConfigStore
	secrets SecretsEncryptor
	metrics *metrics.Metrics
	log     *zap.Logger
}

func New(bots BotStore, configs ConfigStore, secrets SecretsEncryptor, m *metrics.Metrics, log *zap.Logger) *Service {
	return &Service{
		bots:    bots,
		configs: configs,
		secrets: secrets,
		metrics: m,
		log:     log,
	}
}

func (s *Service) GetBot(ctx context.Context, botID uuid.UUID) (*model.Bot, error) {
	return s.bots.GetBotByID(ctx, botID)
}

// GetBotWithToken authenticates a worker. A wrong token and a missing
// bot produce the same not-found error.
func (s *Service) GetBotWithToken(ctx context.Context, botID uuid.UUID, token string) (*model.Bot, error) {
	return s.bots.GetBotByIDWithToken(ctx, botID, token)
}

func (s *Service) ListAccountBots(ctx context.Context, accountID uuid.UUID, limit, offset int64) ([]*model.Bot, error) {
	return s.bots.ListBotsByAccountPaginated(ctx, accountID, limit, offset)
}

func (s *Service) ListBotConfigs(ctx context.Context, botID uuid.UUID) ([]*model.StoredBotConfig, error) {
	return s.configs.ListConfigsByBot(ctx, botID)
}

// CreateBotConfig seals the submitted secrets and appends a new config
// version for the bot. The bot's desired pointer moves to the new
// version; applied stays wherever the worker left it, so the two
// diverge until the worker acknowledges.
func (s *Service) CreateBotConfig(ctx context.Context, botID uuid.UUID, cfg model.BotConfig) (*model.StoredBotConfig, error) {
	bot, err := s.bots.GetBotByID(ctx, botID)
	if err != nil {
		return nil, err
	}
	if bot.Status == model.BotStatusDestroyed {
		return nil, &InvalidStateError{Status: bot.Status}
	}

	sealed, err := s.secrets.Encrypt(cfg.Secrets.LLMAPIKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encrypt llm api key")
	}

	stored, err := s.configs.CreateConfig(ctx, &model.StoredBotConfig{
		ID:            uuid.New(),
		BotID:         botID,
		TradingConfig: cfg.TradingConfig,
		RiskConfig:    cfg.RiskConfig,
		Secrets: model.EncryptedBotSecrets{
			LLMProvider:        cfg.Secrets.LLMProvider,
			LLMAPIKeyEncrypted: sealed,
		},
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	if err := s.bots.UpdateBotConfigVersion(ctx, botID, &stored.ID, bot.AppliedConfigVersionID); err != nil {
		return nil, err
	}

	s.log.Info("updated bot config",
		zap.String("botID", botID.String()),
		zap.Int("version", stored.Version))
	return stored, nil
}

// AcknowledgeConfig records that the worker applied a config version.
// The version must belong to the bot and still be the desired one; a
// stale ack fails with the current desired id so the worker can
// refetch. A successful ack from provisioning or pending brings the
// bot online.
func (s *Service) AcknowledgeConfig(ctx context.Context, botID, configID uuid.UUID) error {
	cfg, err := s.configs.GetConfigByID(ctx, configID)
	if err != nil {
		if store.IsNotFound(err) {
			s.metrics.ConfigAcks.WithLabelValues("not_found").Inc()
			return &ConfigNotFoundError{ConfigID: configID}
		}
		return err
	}
	if cfg.BotID != botID {
		s.metrics.ConfigAcks.WithLabelValues("not_found").Inc()
		return &ConfigNotFoundError{ConfigID: configID}
	}

	bot, err := s.bots.GetBotByID(ctx, botID)
	if err != nil {
		return err
	}
	if bot.DesiredConfigVersionID == nil || *bot.DesiredConfigVersionID != configID {
		s.metrics.ConfigAcks.WithLabelValues("conflict").Inc()
		return &VersionConflictError{Acknowledged: configID, Desired: bot.DesiredConfigVersionID}
	}

	if err := s.bots.UpdateBotConfigVersion(ctx, botID, &configID, &configID); err != nil {
		return err
	}

	if bot.Status == model.BotStatusProvisioning || bot.Status == model.BotStatusPending {
		if err := s.bots.UpdateBotStatus(ctx, botID, model.BotStatusOnline); err != nil {
			return err
		}
	}

	s.metrics.ConfigAcks.WithLabelValues("ok").Inc()
	s.log.Info("bot acknowledged config",
		zap.String("botID", botID.String()),
		zap.String("configID", configID.String()))
	return nil
}

// GetDesiredConfig returns the config the bot should be running, nil
// when no config is pointed at or the pointer dangles.
func (s *Service) GetDesiredConfig(ctx context.Context, botID uuid.UUID) (*model.StoredBotConfig, error) {
	bot, err := s.bots.GetBotByID(ctx, botID)
	if err != nil {
		return nil, err
	}
	if bot.DesiredConfigVersionID == nil {
		return nil, nil
	}

	cfg, err := s.configs.GetConfigByID(ctx, *bot.DesiredConfigVersionID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return cfg, nil
}

func (s *Service) RecordHeartbeat(ctx context.Context, botID uuid.UUID) error {
	if err := s.bots.UpdateBotHeartbeat(ctx, botID); err != nil {
		return err
	}
	s.metrics.Heartbeats.Inc()
	return nil
}

// CheckStaleBots flags every online bot whose last heartbeat is older
// than the timeout, marking each as errored. A bot whose update fails
// does not stop the scan; those failures come back aggregated next to
// the bots that were flagged, so a single stuck row cannot starve the
// rest of the sweep.
func (s *Service) CheckStaleBots(ctx context.Context, timeout time.Duration) ([]*model.Bot, error) {
	threshold := time.Now().UTC().Add(-timeout)
	stale, err := s.bots.ListStaleBots(ctx, threshold)
	if err != nil {
		return nil, err
	}

	var (
		flagged []*model.Bot
		merr    *multierror.Error
	)
	for _, bot := range stale {
		s.log.Warn("bot heartbeat timed out, marking errored",
			zap.String("botID", bot.ID.String()),
			zap.Timep("lastHeartbeatAt", bot.LastHeartbeatAt))
		if err := s.bots.UpdateBotStatus(ctx, bot.ID, model.BotStatusError); err != nil {
			merr = multierror.Append(merr, errors.Wrapf(err, "failed to mark bot %s errored", bot.ID))
			continue
		}
		s.metrics.StaleBots.Inc()
		flagged = append(flagged, bot)
	}

	if len(flagged) > 0 {
		s.log.Info("marked stale bots errored", zap.Int("count", len(flagged)))
	}
	return flagged, merr.ErrorOrNil()
}
