package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/cedros/claw-spawn/internal/model"
)

type configRow struct {
	ID               uuid.UUID `db:"id"`
	BotID            uuid.UUID `db:"bot_id"`
	Version          int       `db:"version"`
	TradingConfig    []byte    `db:"trading_config"`
	RiskConfig       []byte    `db:"risk_config"`
	SecretsEncrypted []byte    `db:"secrets_encrypted"`
	LLMProvider      string    `db:"llm_provider"`
	CreatedAt        time.Time `db:"created_at"`
}

func (r configRow) toModel() (*model.StoredBotConfig, error) {
	var trading model.TradingConfig
	if err := json.Unmarshal(r.TradingConfig, &trading); err != nil {
		return nil, errors.Wrapf(ErrInvalidData, "config %s trading_config: %v", r.ID, err)
	}
	var risk model.RiskConfig
	if err := json.Unmarshal(r.RiskConfig, &risk); err != nil {
		return nil, errors.Wrapf(ErrInvalidData, "config %s risk_config: %v", r.ID, err)
	}
	return &model.StoredBotConfig{
		ID:            r.ID,
		BotID:         r.BotID,
		Version:       r.Version,
		TradingConfig: trading,
		RiskConfig:    risk,
		Secrets: model.EncryptedBotSecrets{
			LLMProvider:        r.LLMProvider,
			LLMAPIKeyEncrypted: r.SecretsEncrypted,
		},
		CreatedAt: r.CreatedAt,
	}, nil
}

const configColumns = `id, bot_id, version, trading_config, risk_config,
	secrets_encrypted, llm_provider, created_at`

// CreateConfig inserts a new configuration version for the bot. The
// version is allocated by the database inside the same transaction as
// the insert, so concurrent writers for one bot serialize and never
// reuse a number. The input's Version field is ignored; the returned
// config carries the assigned one.
func (s *Store) CreateConfig(ctx context.Context, cfg *model.StoredBotConfig) (*model.StoredBotConfig, error) {
	trading, err := json.Marshal(cfg.TradingConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal trading config")
	}
	risk, err := json.Marshal(cfg.RiskConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal risk config")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var version int
	if err := tx.GetContext(ctx, &version,
		`SELECT get_next_config_version_atomic($1)`, cfg.BotID); err != nil {
		return nil, errors.Wrap(err, "failed to allocate config version")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO bot_configs (id, bot_id, version, trading_config, risk_config,
		                          secrets_encrypted, llm_provider, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		cfg.ID, cfg.BotID, version, trading, risk,
		cfg.Secrets.LLMAPIKeyEncrypted, cfg.Secrets.LLMProvider, cfg.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "failed to insert config")
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit config")
	}

	stored := *cfg
	stored.Version = version
	return &stored, nil
}

func (s *Store) GetConfigByID(ctx context.Context, id uuid.UUID) (*model.StoredBotConfig, error) {
	var row configRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+configColumns+` FROM bot_configs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "config %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query config")
	}
	return row.toModel()
}

// GetLatestConfigForBot returns the highest-versioned configuration
// for the bot, ErrNotFound when the bot has none yet.
func (s *Store) GetLatestConfigForBot(ctx context.Context, botID uuid.UUID) (*model.StoredBotConfig, error) {
	var row configRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+configColumns+` FROM bot_configs
		 WHERE bot_id = $1
		 ORDER BY version DESC
		 LIMIT 1`, botID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "no config for bot %s", botID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query latest config")
	}
	return row.toModel()
}

// ListConfigsByBot returns every version for the bot, oldest first.
func (s *Store) ListConfigsByBot(ctx context.Context, botID uuid.UUID) ([]*model.StoredBotConfig, error) {
	var rows []configRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+configColumns+` FROM bot_configs
		 WHERE bot_id = $1
		 ORDER BY version ASC`, botID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list configs")
	}
	configs := make([]*model.StoredBotConfig, 0, len(rows))
	for _, r := range rows {
		cfg, err := r.toModel()
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}
