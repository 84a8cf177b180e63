package campaign

import (
	"errors"
	"fmt"

	"github.com/ignite/campaign-engine/internal/apperr"
	"github.com/ignite/campaign-engine/internal/domain"
)

var (
	errNotScheduled     = apperr.Forbidden("campaign is not scheduled; use POST to schedule it")
	errAlreadyScheduled = apperr.Forbidden("campaign is already scheduled; use PUT to reschedule it")
	errOtherDomain      = apperr.Forbidden("campaign belongs to another domain")
)

// notFound maps a store miss to a typed NotFound and anything else to
// Internal.
func notFound(err error, entity, id string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return apperr.NotFound(entity, id)
	}
	return apperr.Internal(fmt.Errorf("load %s %s: %w", entity, id, err))
}
