package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/cedros/claw-spawn/internal/model"
)

type accountRow struct {
	ID               uuid.UUID `db:"id"`
	ExternalID       string    `db:"external_id"`
	SubscriptionTier string    `db:"subscription_tier"`
	MaxBots          int       `db:"max_bots"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r accountRow) toModel() (*model.Account, error) {
	tier, err := model.ParseSubscriptionTier(r.SubscriptionTier)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidData, "account %s: %v", r.ID, err)
	}
	return &model.Account{
		ID:               r.ID,
		ExternalID:       r.ExternalID,
		SubscriptionTier: tier,
		MaxBots:          r.MaxBots,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}, nil
}

const accountColumns = "id, external_id, subscription_tier, max_bots, created_at, updated_at"

func (s *Store) CreateAccount(ctx context.Context, account *model.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, external_id, subscription_tier, max_bots, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		account.ID, account.ExternalID, string(account.SubscriptionTier), account.MaxBots,
		account.CreatedAt, account.UpdatedAt)
	return errors.Wrap(err, "failed to insert account")
}

func (s *Store) GetAccountByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "account %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query account")
	}
	return row.toModel()
}

func (s *Store) GetAccountByExternalID(ctx context.Context, externalID string) (*model.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+accountColumns+` FROM accounts WHERE external_id = $1`, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "account %s", externalID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query account")
	}
	return row.toModel()
}

// UpdateAccountSubscription moves the account to a new tier. The
// derived quota and the counter's ceiling change in the same
// transaction so a concurrent increment never sees a torn pair.
func (s *Store) UpdateAccountSubscription(ctx context.Context, id uuid.UUID, tier model.SubscriptionTier) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET subscription_tier = $1, max_bots = $2, updated_at = $3 WHERE id = $4`,
		string(tier), tier.MaxBots(), time.Now().UTC(), id)
	if err != nil {
		return errors.Wrap(err, "failed to update account subscription")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(ErrNotFound, "account %s", id)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE account_bot_counters SET max_count = $1, updated_at = $2 WHERE account_id = $3`,
		tier.MaxBots(), time.Now().UTC(), id)
	if err != nil {
		return errors.Wrap(err, "failed to update quota ceiling")
	}

	return errors.Wrap(tx.Commit(), "failed to commit subscription update")
}
