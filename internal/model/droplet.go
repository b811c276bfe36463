package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DropletStatus mirrors the remote machine state. The IaaS reports
// "new", "active" and "off" directly; anything else maps to error.
type DropletStatus string

const (
	DropletStatusNew       DropletStatus = "new"
	DropletStatusActive    DropletStatus = "active"
	DropletStatusOff       DropletStatus = "off"
	DropletStatusDestroyed DropletStatus = "destroyed"
	DropletStatusError     DropletStatus = "error"
)

func ParseDropletStatus(s string) (DropletStatus, error) {
	switch DropletStatus(s) {
	case DropletStatusNew, DropletStatusActive, DropletStatusOff,
		DropletStatusDestroyed, DropletStatusError:
		return DropletStatus(s), nil
	}
	return "", fmt.Errorf("unknown droplet status %q", s)
}

// DropletStatusFromRemote maps whatever string the IaaS reports onto
// a known status, never failing.
func DropletStatusFromRemote(s string) DropletStatus {
	switch DropletStatus(s) {
	case DropletStatusNew, DropletStatusActive, DropletStatusOff:
		return DropletStatus(s)
	}
	return DropletStatusError
}

// Droplet is the local record of a cloud VM. The IaaS is the true
// owner; this row is a cached view plus the bot back-reference.
type Droplet struct {
	ID          int64         `db:"id" json:"id"`
	Name        string        `db:"name" json:"name"`
	Region      string        `db:"region" json:"region"`
	Size        string        `db:"size" json:"size"`
	Image       string        `db:"image" json:"image"`
	Status      DropletStatus `db:"status" json:"status"`
	IPAddress   *string       `db:"ip_address" json:"ip_address,omitempty"`
	BotID       *uuid.UUID    `db:"bot_id" json:"bot_id,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	DestroyedAt *time.Time    `db:"destroyed_at" json:"destroyed_at,omitempty"`
}
