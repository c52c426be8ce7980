package audit

import "time"

// Decision is one recorded authorization outcome.
type Decision struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	Category   string    `json:"category"`
	Action     string    `json:"action"`
	ResourceID string    `json:"resourceId,omitempty"`
	Outcome    string    `json:"outcome"`
	DecidedAt  time.Time `json:"decidedAt"`
}
