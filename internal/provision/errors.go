package provision

import (
	"fmt"

	"github.com/pkg/errors"
)

// AccountLimitReachedError rejects creation when the account's quota
// counter is already at its ceiling.
type AccountLimitReachedError struct {
	Max int
}

func (e *AccountLimitReachedError) Error() string {
	return fmt.Sprintf("account limit reached: maximum %d bots allowed", e.Max)
}

func IsAccountLimitReached(err error) bool {
	var e *AccountLimitReachedError
	return errors.As(err, &e)
}

// InvalidConfigError refuses an operation whose preconditions do not
// hold, a resume outside paused for example.
type InvalidConfigError struct {
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", e.Reason)
}

func IsInvalidConfig(err error) bool {
	var e *InvalidConfigError
	return errors.As(err, &e)
}
