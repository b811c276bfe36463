package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Persona selects the worker's trading personality and the defaults
// applied to a new configuration.
type Persona string

const (
	PersonaBeginner  Persona = "beginner"
	PersonaTweaker   Persona = "tweaker"
	PersonaQuantLite Persona = "quant_lite"
)

func ParsePersona(s string) (Persona, error) {
	switch Persona(s) {
	case PersonaBeginner, PersonaTweaker, PersonaQuantLite:
		return Persona(s), nil
	}
	return "", fmt.Errorf("unknown persona %q, allowed: beginner, tweaker, quant_lite", s)
}

// BotStatus is the bot's lifecycle state. Destroyed is terminal.
type BotStatus string

const (
	BotStatusPending      BotStatus = "pending"
	BotStatusProvisioning BotStatus = "provisioning"
	BotStatusOnline       BotStatus = "online"
	BotStatusPaused       BotStatus = "paused"
	BotStatusError        BotStatus = "error"
	BotStatusDestroyed    BotStatus = "destroyed"
)

func ParseBotStatus(s string) (BotStatus, error) {
	switch BotStatus(s) {
	case BotStatusPending, BotStatusProvisioning, BotStatusOnline,
		BotStatusPaused, BotStatusError, BotStatusDestroyed:
		return BotStatus(s), nil
	}
	return "", fmt.Errorf("unknown bot status %q", s)
}

// Bot is one logical long-lived worker: a row here, a droplet at the
// IaaS, and a versioned configuration channel. The registration token
// is never part of the entity; only its digest is persisted, by the
// store.
type Bot struct {
	ID                     uuid.UUID  `db:"id" json:"id"`
	AccountID              uuid.UUID  `db:"account_id" json:"account_id"`
	Name                   string     `db:"name" json:"name"`
	Persona                Persona    `db:"persona" json:"persona"`
	Status                 BotStatus  `db:"status" json:"status"`
	DropletID              *int64     `db:"droplet_id" json:"droplet_id,omitempty"`
	DesiredConfigVersionID *uuid.UUID `db:"desired_config_version_id" json:"desired_config_version_id,omitempty"`
	AppliedConfigVersionID *uuid.UUID `db:"applied_config_version_id" json:"applied_config_version_id,omitempty"`
	CreatedAt              time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at" json:"updated_at"`
	LastHeartbeatAt        *time.Time `db:"last_heartbeat_at" json:"last_heartbeat_at,omitempty"`
}

// NewBot builds a pending bot with no droplet and no config pointers.
func NewBot(accountID uuid.UUID, name string, persona Persona) *Bot {
	now := time.Now().UTC()
	return &Bot{
		ID:        uuid.New(),
		AccountID: accountID,
		Name:      name,
		Persona:   persona,
		Status:    BotStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
