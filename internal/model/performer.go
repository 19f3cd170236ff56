package model

import "time"

// PerformerKind tells whether a roster entry belongs to a registered
// account or to an anonymous attendee.
type PerformerKind string

const (
    PerformerUser PerformerKind = "user"
    PerformerAnon PerformerKind = "anon"
)

// Performer is one roster entry of a mic.  Entries with Order below the
// mic's slot count perform in the lineup; the rest wait.  This struct
// corresponds to a row in the `performers` table.
//
// Fields:
//  ID          – primary key identifier of the entry.
//  MicID       – mic the entry belongs to.
//  Kind        – user or anon.
//  Name        – display name.
//  UserID      – account of a registered performer (nil for anon).
//  Email/Phone – identity of an anonymous performer, never serialized.
//  Order       – 0-based position, unique per mic.
//  CheckedIn   – performer confirmed presence.
//  Skipped     – performer was passed over.
//  SetComplete – performer finished (terminal).
type Performer struct {
    ID          uint64        `json:"id"`          // performers.id
    MicID       uint64        `json:"-"`           // performers.mic_id
    Kind        PerformerKind `json:"type"`        // performers.kind
    Name        string        `json:"name"`        // performers.name
    UserID      *uint64       `json:"userId,omitempty"`
    Email       string        `json:"-"`           // performers.email
    Phone       string        `json:"-"`           // performers.phone
    Order       int           `json:"order"`       // performers.position
    CheckedIn   bool          `json:"checkedIn"`   // performers.checked_in
    Skipped     bool          `json:"skipped"`     // performers.skipped
    SetComplete bool          `json:"setComplete"` // performers.set_complete
    CreatedAt   time.Time     `json:"-"`           // performers.created_at
}

// Snapshot is the full replacement state of one mic that is pushed over
// the live channel.  Either half may be absent (null); receivers replace
// what is present and keep the rest.  An empty roster is sent as [] so
// it is distinguishable from an absent one.
type Snapshot struct {
    Mic    *Mic        `json:"mic,omitempty"`
    Mikers []Performer `json:"mikers"`
}

// Version is the mic version the snapshot was taken at, 0 when it
// carries no mic.
func (s Snapshot) Version() uint64 {
    if s.Mic == nil {
        return 0
    }
    return s.Mic.Version
}

// AnonIdentity is what an attendee without an account supplies at
// signup, check-in and self-removal.  Which of Email and Phone are
// mandatory depends on the mic's SignupConfig.
type AnonIdentity struct {
    Name  string `json:"name"`
    Email string `json:"email,omitempty"`
    Phone string `json:"phone,omitempty"`
}
