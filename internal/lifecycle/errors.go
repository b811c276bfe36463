package lifecycle

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/cedros/claw-spawn/internal/model"
)

// InvalidStateError rejects an operation the bot's lifecycle state
// does not allow, config updates on a destroyed bot for example.
type InvalidStateError struct {
	Status model.BotStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("bot not in valid state: %s", e.Status)
}

func IsInvalidState(err error) bool {
	var e *InvalidStateError
	return errors.As(err, &e)
}

// ConfigNotFoundError covers both a missing config row and a config
// that belongs to a different bot; callers cannot tell the two apart.
type ConfigNotFoundError struct {
	ConfigID uuid.UUID
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("config not found: %s", e.ConfigID)
}

func IsConfigNotFound(err error) bool {
	var e *ConfigNotFoundError
	return errors.As(err, &e)
}

// VersionConflictError means the worker acknowledged a config that is
// no longer the desired one. Desired is nil when the pointer was
// cleared between fetch and ack.
type VersionConflictError struct {
	Acknowledged uuid.UUID
	Desired      *uuid.UUID
}

func (e *VersionConflictError) Error() string {
	desired := "none"
	if e.Desired != nil {
		desired = e.Desired.String()
	}
	return fmt.Sprintf("config version conflict: acknowledging %s, but desired is %s", e.Acknowledged, desired)
}

func IsVersionConflict(err error) bool {
	var e *VersionConflictError
	return errors.As(err, &e)
}
