package application

import (
	"context"
	"errors"
	"fmt"

	cerrors "github.com/Meesho/BharatMLStack/choreographer/internal/errors"
	"github.com/Meesho/BharatMLStack/choreographer/pkg/metric"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/rs/zerolog/log"
)

// casLoop runs attempt until it stops returning ErrCASConflict or the retry
// budget runs out. attempt must re-read every document it writes. Any other
// error ends the loop immediately.
func (e *Engine) casLoop(ctx context.Context, operation string, attempt func() error) error {
	tries := 0
	policy := retrypolicy.Builder[any]().
		HandleErrors(cerrors.ErrCASConflict).
		WithMaxAttempts(e.cfg.CASMaxAttempts).
		WithBackoff(e.cfg.CASBackoffBase, e.cfg.CASBackoffMax).
		WithJitterFactor(0.25).
		ReturnLastFailure().
		Build()

	err := failsafe.NewExecutor[any](policy).WithContext(ctx).Run(func() error {
		tries++
		err := attempt()
		if errors.Is(err, cerrors.ErrCASConflict) {
			metric.IncCASConflict(operation, e.storeKind)
			log.Debug().Str("operation", operation).Int("attempt", tries).Msg("cas conflict, retrying")
		}
		return err
	})
	if errors.Is(err, cerrors.ErrCASConflict) {
		log.Warn().Str("operation", operation).Int("attempts", tries).Msg("cas retry budget exhausted")
		return fmt.Errorf("%s: %w after %d attempts", operation, cerrors.ErrContention, tries)
	}
	return err
}

func isContention(err error) bool {
	return errors.Is(err, cerrors.ErrContention)
}
