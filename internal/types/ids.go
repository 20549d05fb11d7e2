// internal/types/ids.go
package types

import "github.com/google/uuid"

// SendID correlates all log lines belonging to one send attempt.
type SendID string

// Generation tags one send attempt within a session. Events from a stream
// whose generation no longer matches the session's live generation are
// discarded.
type Generation uint64

func NewSendID() SendID {
	return SendID(uuid.New().String())
}
