package alert

import (
	"time"

	"github.com/trezcool/coachdesk/core"
)

// Event is a notification addressed to a single coach.
type Event struct {
	ID        string    `json:"id"`
	CoachID   string    `json:"coach_id"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// NewEvent contains information needed to create an Event.
type NewEvent struct {
	CoachID string `json:"coach_id" validate:"required"`
	Message string `json:"message" validate:"notblank,max=500"`
}

func (ne *NewEvent) Validate() error {
	ne.CoachID = core.CleanString(ne.CoachID)
	ne.Message = core.CleanString(ne.Message)
	return core.Validate.Struct(ne)
}
