package provision

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cedros/claw-spawn/internal/digitalocean"
	"github.com/cedros/claw-spawn/internal/model"
	"github.com/cedros/claw-spawn/internal/store"
)

// DestroyBot tears down the droplet and soft-deletes the bot. The
// cloud delete happens first; the persistence steps that follow are
// retried because once the droplet is gone there is no way back. A
// droplet the IaaS no longer knows about counts as destroyed.
func (s *Service) DestroyBot(ctx context.Context, botID uuid.UUID) error {
	bot, err := s.bots.GetBotByID(ctx, botID)
	if err != nil {
		return err
	}

	if bot.DropletID != nil {
		dropletID := *bot.DropletID
		switch err := s.cloud.DestroyDroplet(ctx, dropletID); {
		case err == nil:
			s.log.Info("destroyed droplet",
				zap.String("botID", botID.String()),
				zap.Int64("dropletID", dropletID))
		case digitalocean.IsNotFound(err):
			s.log.Warn("droplet already gone",
				zap.String("botID", botID.String()),
				zap.Int64("dropletID", dropletID))
		default:
			s.log.Error("failed to destroy droplet",
				zap.String("botID", botID.String()),
				zap.Int64("dropletID", dropletID),
				zap.Error(err))
			return err
		}

		if err := retryWithBackoff(ctx, s.log, "mark droplet destroyed", botID, func() error {
			return s.droplets.MarkDropletDestroyed(ctx, dropletID)
		}); err != nil {
			s.log.Error("droplet row still marked live, sync will catch up",
				zap.Int64("dropletID", dropletID),
				zap.Error(err))
		}
	}

	if err := retryWithBackoff(ctx, s.log, "clear bot droplet", botID, func() error {
		return s.bots.UpdateBotDroplet(ctx, botID, nil)
	}); err != nil {
		return err
	}
	if err := retryWithBackoff(ctx, s.log, "soft delete bot", botID, func() error {
		return s.bots.DeleteBot(ctx, botID)
	}); err != nil {
		return err
	}
	if err := retryWithBackoff(ctx, s.log, "decrement bot counter", botID, func() error {
		return s.bots.DecrementBotCounter(ctx, bot.AccountID)
	}); err != nil {
		s.log.Error("quota slot not released, counter may overcount",
			zap.String("accountID", bot.AccountID.String()),
			zap.Error(err))
	}

	s.metrics.BotsDestroyed.Inc()
	s.log.Info("destroyed bot", zap.String("botID", botID.String()))
	return nil
}

// PauseBot powers the droplet off and marks the bot paused. A bot
// without a droplet just changes status.
func (s *Service) PauseBot(ctx context.Context, botID uuid.UUID) error {
	bot, err := s.bots.GetBotByID(ctx, botID)
	if err != nil {
		return err
	}

	if bot.DropletID != nil {
		if err := s.cloud.ShutdownDroplet(ctx, *bot.DropletID); err != nil {
			return err
		}
		s.log.Info("shut down droplet",
			zap.String("botID", botID.String()),
			zap.Int64("dropletID", *bot.DropletID))
	}

	return s.bots.UpdateBotStatus(ctx, botID, model.BotStatusPaused)
}

// ResumeBot brings a paused bot back online by rebooting its powered
// off droplet. The droplet must still exist and be in a resumable
// state.
func (s *Service) ResumeBot(ctx context.Context, botID uuid.UUID) error {
	bot, err := s.bots.GetBotByID(ctx, botID)
	if err != nil {
		return err
	}
	if bot.Status != model.BotStatusPaused {
		return &InvalidConfigError{Reason: fmt.Sprintf("bot %s is not in paused state", botID)}
	}
	if bot.DropletID == nil {
		return &InvalidConfigError{Reason: fmt.Sprintf("bot %s has no associated droplet", botID)}
	}
	dropletID := *bot.DropletID

	droplet, err := s.cloud.GetDroplet(ctx, dropletID)
	if err != nil {
		if digitalocean.IsNotFound(err) {
			return &InvalidConfigError{Reason: fmt.Sprintf("droplet %d no longer exists", dropletID)}
		}
		return err
	}

	switch droplet.Status {
	case model.DropletStatusOff:
		if err := s.cloud.RebootDroplet(ctx, dropletID); err != nil {
			return err
		}
		s.log.Info("rebooted droplet",
			zap.String("botID", botID.String()),
			zap.Int64("dropletID", dropletID))
	case model.DropletStatusActive:
		s.log.Info("droplet already active",
			zap.String("botID", botID.String()),
			zap.Int64("dropletID", dropletID))
	case model.DropletStatusNew:
		return &InvalidConfigError{Reason: fmt.Sprintf("droplet %d is still being created", dropletID)}
	default:
		return &InvalidConfigError{Reason: fmt.Sprintf("droplet %d cannot be resumed from status %s", dropletID, droplet.Status)}
	}

	return s.bots.UpdateBotStatus(ctx, botID, model.BotStatusOnline)
}

// RedeployBot destroys the bot's droplet and spawns a replacement on
// the latest config version. The bot keeps its identity, quota slot
// and config history.
func (s *Service) RedeployBot(ctx context.Context, botID uuid.UUID) error {
	bot, err := s.bots.GetBotByID(ctx, botID)
	if err != nil {
		return err
	}

	if bot.DropletID != nil {
		dropletID := *bot.DropletID
		if err := s.cloud.DestroyDroplet(ctx, dropletID); err != nil && !digitalocean.IsNotFound(err) {
			return err
		}
		if err := s.droplets.MarkDropletDestroyed(ctx, dropletID); err != nil {
			return err
		}
		s.log.Info("destroyed droplet for redeploy",
			zap.String("botID", botID.String()),
			zap.Int64("dropletID", dropletID))
	}

	cfg, err := s.configs.GetLatestConfigForBot(ctx, botID)
	if err != nil {
		if store.IsNotFound(err) {
			return &InvalidConfigError{Reason: "no config found for redeployment"}
		}
		return err
	}

	bot.DropletID = nil
	if err := s.spawn(ctx, bot, cfg); err != nil {
		return err
	}

	s.log.Info("redeployed bot", zap.String("botID", botID.String()))
	return nil
}

// SyncDropletStatus refreshes the local droplet row from the IaaS. A
// droplet that vanished remotely flips the bot to error unless it is
// already in a terminal state; transient lookup failures are logged
// and skipped so a sweep over many bots keeps going.
func (s *Service) SyncDropletStatus(ctx context.Context, botID uuid.UUID) error {
	bot, err := s.bots.GetBotByID(ctx, botID)
	if err != nil {
		return err
	}
	if bot.DropletID == nil {
		return nil
	}
	dropletID := *bot.DropletID

	droplet, err := s.cloud.GetDroplet(ctx, dropletID)
	if err != nil {
		if digitalocean.IsNotFound(err) {
			s.log.Warn("droplet missing at DigitalOcean",
				zap.String("botID", botID.String()),
				zap.Int64("dropletID", dropletID))
			if bot.Status != model.BotStatusDestroyed && bot.Status != model.BotStatusError {
				return s.bots.UpdateBotStatus(ctx, botID, model.BotStatusError)
			}
			return nil
		}
		s.log.Warn("failed to fetch droplet for sync",
			zap.Int64("dropletID", dropletID),
			zap.Error(err))
		return nil
	}

	if err := s.droplets.UpdateDropletStatus(ctx, dropletID, droplet.Status); err != nil {
		return err
	}
	if droplet.IPAddress != nil {
		if err := s.droplets.UpdateDropletIP(ctx, dropletID, droplet.IPAddress); err != nil {
			return err
		}
	}

	if bot.Status == model.BotStatusProvisioning && droplet.Status == model.DropletStatusActive {
		s.log.Info("droplet active, waiting for first registration",
			zap.String("botID", botID.String()),
			zap.Int64("dropletID", dropletID))
	}
	return nil
}
