package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/cedros/claw-spawn/internal/model"
)

type botRow struct {
	ID                     uuid.UUID  `db:"id"`
	AccountID              uuid.UUID  `db:"account_id"`
	Name                   string     `db:"name"`
	Persona                string     `db:"persona"`
	Status                 string     `db:"status"`
	DropletID              *int64     `db:"droplet_id"`
	DesiredConfigVersionID *uuid.UUID `db:"desired_config_version_id"`
	AppliedConfigVersionID *uuid.UUID `db:"applied_config_version_id"`
	RegistrationToken      *string    `db:"registration_token"`
	CreatedAt              time.Time  `db:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at"`
	LastHeartbeatAt        *time.Time `db:"last_heartbeat_at"`
}

// toModel maps a row onto the domain entity. The registration-token
// digest never leaves this package.
func (r botRow) toModel() (*model.Bot, error) {
	persona, err := model.ParsePersona(r.Persona)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidData, "bot %s: %v", r.ID, err)
	}
	status, err := model.ParseBotStatus(r.Status)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidData, "bot %s: %v", r.ID, err)
	}
	return &model.Bot{
		ID:                     r.ID,
		AccountID:              r.AccountID,
		Name:                   r.Name,
		Persona:                persona,
		Status:                 status,
		DropletID:              r.DropletID,
		DesiredConfigVersionID: r.DesiredConfigVersionID,
		AppliedConfigVersionID: r.AppliedConfigVersionID,
		CreatedAt:              r.CreatedAt,
		UpdatedAt:              r.UpdatedAt,
		LastHeartbeatAt:        r.LastHeartbeatAt,
	}, nil
}

const botColumns = `id, account_id, name, persona, status, droplet_id,
	desired_config_version_id, applied_config_version_id,
	registration_token, created_at, updated_at, last_heartbeat_at`

func (s *Store) CreateBot(ctx context.Context, bot *model.Bot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bots (id, account_id, name, persona, status, droplet_id,
		                   desired_config_version_id, applied_config_version_id,
		                   registration_token, created_at, updated_at, last_heartbeat_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		bot.ID, bot.AccountID, bot.Name, string(bot.Persona), string(bot.Status),
		bot.DropletID, bot.DesiredConfigVersionID, bot.AppliedConfigVersionID,
		nil, bot.CreatedAt, bot.UpdatedAt, bot.LastHeartbeatAt)
	return errors.Wrap(err, "failed to insert bot")
}

func (s *Store) GetBotByID(ctx context.Context, id uuid.UUID) (*model.Bot, error) {
	var row botRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+botColumns+` FROM bots WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "bot %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query bot")
	}
	return row.toModel()
}

// GetBotByIDWithToken returns the bot only when the presented
// plaintext token digests to the stored value. The comparison runs in
// constant time and a missing bot and a bad token are
// indistinguishable to the caller.
func (s *Store) GetBotByIDWithToken(ctx context.Context, id uuid.UUID, token string) (*model.Bot, error) {
	var row botRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+botColumns+` FROM bots WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "bot %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query bot")
	}
	if row.RegistrationToken == nil || !tokenDigestMatches(*row.RegistrationToken, token) {
		return nil, errors.Wrapf(ErrNotFound, "bot %s with invalid token", id)
	}
	return row.toModel()
}

func (s *Store) ListBotsByAccountPaginated(ctx context.Context, accountID uuid.UUID, limit, offset int64) ([]*model.Bot, error) {
	var rows []botRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+botColumns+` FROM bots
		 WHERE account_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		accountID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list bots")
	}
	bots := make([]*model.Bot, 0, len(rows))
	for _, r := range rows {
		bot, err := r.toModel()
		if err != nil {
			return nil, err
		}
		bots = append(bots, bot)
	}
	return bots, nil
}

func (s *Store) CountBotsByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM bots WHERE account_id = $1`, accountID)
	return count, errors.Wrap(err, "failed to count bots")
}

func (s *Store) UpdateBotStatus(ctx context.Context, id uuid.UUID, status model.BotStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE bots SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id)
	return errors.Wrap(err, "failed to update bot status")
}

func (s *Store) UpdateBotDroplet(ctx context.Context, botID uuid.UUID, dropletID *int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE bots SET droplet_id = $1, updated_at = $2 WHERE id = $3`,
		dropletID, time.Now().UTC(), botID)
	return errors.Wrap(err, "failed to update bot droplet")
}

// UpdateBotConfigVersion writes the desired/applied pair as one row
// update; readers always observe a consistent pair.
func (s *Store) UpdateBotConfigVersion(ctx context.Context, botID uuid.UUID, desired, applied *uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE bots SET desired_config_version_id = $1, applied_config_version_id = $2, updated_at = $3 WHERE id = $4`,
		desired, applied, time.Now().UTC(), botID)
	return errors.Wrap(err, "failed to update bot config version")
}

func (s *Store) UpdateBotHeartbeat(ctx context.Context, botID uuid.UUID) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE bots SET last_heartbeat_at = $1, updated_at = $2 WHERE id = $3`,
		now, now, botID)
	return errors.Wrap(err, "failed to update bot heartbeat")
}

// UpdateBotRegistrationToken persists the digest of the token, never
// the plaintext.
func (s *Store) UpdateBotRegistrationToken(ctx context.Context, botID uuid.UUID, token string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE bots SET registration_token = $1, updated_at = $2 WHERE id = $3`,
		HashRegistrationToken(token), time.Now().UTC(), botID)
	return errors.Wrap(err, "failed to update bot registration token")
}

// DeleteBot soft-deletes: the row stays, terminally destroyed.
func (s *Store) DeleteBot(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE bots SET status = 'destroyed', updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id)
	return errors.Wrap(err, "failed to delete bot")
}

// HardDeleteBot removes the row entirely. Only saga rollback calls
// this; deleting zero rows is not an error.
func (s *Store) HardDeleteBot(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bots WHERE id = $1`, id)
	return errors.Wrap(err, "failed to hard delete bot")
}

// ListStaleBots returns online bots whose last heartbeat predates the
// threshold; a bot that never heartbeat at all counts as stale.
func (s *Store) ListStaleBots(ctx context.Context, threshold time.Time) ([]*model.Bot, error) {
	var rows []botRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+botColumns+` FROM bots
		 WHERE status = 'online'
		   AND (last_heartbeat_at < $1 OR last_heartbeat_at IS NULL)`,
		threshold)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list stale bots")
	}
	bots := make([]*model.Bot, 0, len(rows))
	for _, r := range rows {
		bot, err := r.toModel()
		if err != nil {
			return nil, err
		}
		bots = append(bots, bot)
	}
	return bots, nil
}
