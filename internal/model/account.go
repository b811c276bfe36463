package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SubscriptionTier determines how many bots an account may run.
type SubscriptionTier string

const (
	TierFree  SubscriptionTier = "free"
	TierBasic SubscriptionTier = "basic"
	TierPro   SubscriptionTier = "pro"
)

// MaxBots returns the bot quota granted by the tier.
func (t SubscriptionTier) MaxBots() int {
	switch t {
	case TierBasic:
		return 2
	case TierPro:
		return 4
	default:
		return 0
	}
}

func ParseSubscriptionTier(s string) (SubscriptionTier, error) {
	switch SubscriptionTier(s) {
	case TierFree, TierBasic, TierPro:
		return SubscriptionTier(s), nil
	}
	return "", fmt.Errorf("unknown subscription tier %q, allowed: free, basic, pro", s)
}

// Account is a tenant. Accounts are created externally and never
// destroyed by this system; the tier and max_bots mutate together.
type Account struct {
	ID               uuid.UUID        `db:"id" json:"id"`
	ExternalID       string           `db:"external_id" json:"external_id"`
	SubscriptionTier SubscriptionTier `db:"subscription_tier" json:"subscription_tier"`
	MaxBots          int              `db:"max_bots" json:"max_bots"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// NewAccount builds an account with the quota derived from the tier.
func NewAccount(externalID string, tier SubscriptionTier) *Account {
	now := time.Now().UTC()
	return &Account{
		ID:               uuid.New(),
		ExternalID:       externalID,
		SubscriptionTier: tier,
		MaxBots:          tier.MaxBots(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
