// Package queue defines message payloads exchanged over the message broker.
package queue

import "time"

// ActivityQueueName is the durable queue roster activity is published to.
const ActivityQueueName = "mic.activity"

// Activity actions.
const (
    ActionMicCreated   = "mic.created"
    ActionMicHidden    = "mic.hidden"
    ActionSignupState  = "mic.signup_state"
    ActionCheckinState = "mic.checkin_state"
    ActionSignup       = "performer.signup"
    ActionCheckIn      = "performer.checkin"
    ActionSkip         = "performer.skip"
    ActionMissedSet    = "performer.missed_set"
    ActionSetNext      = "performer.set_next"
    ActionCompleteSet  = "performer.complete_set"
    ActionRemove       = "performer.remove"
)

// ActivityEvent is published after every committed change to a mic.  It
// carries enough information for downstream consumers to log or notify
// without querying the primary database.
type ActivityEvent struct {
    ID          string    `json:"id"`
    Action      string    `json:"action"`
    MicID       uint64    `json:"mic_id"`
    MicName     string    `json:"mic_name"`
    ActorID     uint64    `json:"actor_id,omitempty"` // 0 for anonymous callers
    PerformerID uint64    `json:"performer_id,omitempty"`
    Performer   string    `json:"performer,omitempty"`
    SlotsFilled int       `json:"slots_filled"`
    Current     *int      `json:"current"`
    At          time.Time `json:"at"`
}
