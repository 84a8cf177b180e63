package suppression

import "github.com/ignite/campaign-engine/internal/apperr"

var errRecipientRequired = apperr.InvalidUsage("recipient_id", "recipient_id is required")
