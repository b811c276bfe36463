package provision

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// retryDelays gives the waits between persistence attempts. With two
// delays an operation runs at most three times.
var retryDelays = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}

// retryWithBackoff reruns fn until it succeeds or the delays are
// spent. It is meant for the persistence steps that trail an
// irreversible cloud call, where giving up immediately would strand
// the record.
func retryWithBackoff(ctx context.Context, log *zap.Logger, operation string, botID uuid.UUID, fn func() error) error {
	var err error
	for attempt := 0; attempt <= len(retryDelays); attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == len(retryDelays) {
			break
		}
		delay := retryDelays[attempt]
		log.Warn("retrying operation",
			zap.String("operation", operation),
			zap.String("botID", botID.String()),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	log.Error("operation failed after retries",
		zap.String("operation", operation),
		zap.String("botID", botID.String()),
		zap.Error(err))
	return errors.Wrapf(err, "failed to %s after %d attempts", operation, len(retryDelays)+1)
}
