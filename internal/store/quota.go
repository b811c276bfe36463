package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// QuotaDecision is the outcome of one counter increment. When Allowed
// is false the counter was not changed and CurrentCount/MaxCount
// explain why.
type QuotaDecision struct {
	Allowed      bool `db:"success"`
	CurrentCount int  `db:"current_count"`
	MaxCount     int  `db:"max_count"`
}

// IncrementBotCounter atomically reserves one bot slot for the
// account. The database function seeds the counter from the account's
// quota on first use and takes a row lock, so concurrent increments
// never overshoot the limit.
func (s *Store) IncrementBotCounter(ctx context.Context, accountID uuid.UUID) (*QuotaDecision, error) {
	var decision QuotaDecision
	err := s.db.GetContext(ctx, &decision,
		`SELECT success, current_count, max_count FROM increment_bot_counter($1)`,
		accountID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to increment bot counter")
	}
	return &decision, nil
}

// DecrementBotCounter releases one bot slot. The counter floors at
// zero, so releasing more slots than were reserved is harmless.
func (s *Store) DecrementBotCounter(ctx context.Context, accountID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`SELECT decrement_bot_counter($1)`, accountID)
	return errors.Wrap(err, "failed to decrement bot counter")
}
