package kurrentdb

import (
	"github.com/google/uuid"

	"github.com/safetrack/platform/internal/shared/types"
)

// parseEventID maps a stored event UUID onto the platform ID type.
func parseEventID(id uuid.UUID) types.ID {
	return types.ID(id.String())
}

// toUUID maps a platform ID onto the UUID the client library expects.
// An unparsable ID gets a fresh UUID so the append still goes through.
func toUUID(id types.ID) uuid.UUID {
	parsed, err := uuid.Parse(string(id))
	if err != nil {
		return uuid.New()
	}
	return parsed
}
