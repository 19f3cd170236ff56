package model

import "time"

// Mic represents one scheduled open-mic event.  A mic belongs to the
// host who created it and owns an ordered roster of performers.  This
// struct corresponds to a row in the `mics` table and is also the JSON
// shape pushed to clients.
//
// Fields:
//  ID           – primary key identifier.
//  OwnerID      – user ID of the host.
//  Name         – display name of the event.
//  Location     – venue, either a Google place or a custom address.
//  Start, End   – scheduled time window (End after Start).
//  SetLength    – minutes each performer gets on stage.
//  Slots        – number of performing slots (capacity).
//  SlotsFilled  – roster entries currently occupying slots or waiting positions.
//  WaitingList  – optional overflow policy; nil when the mic has none.
//  SignupConfig – which identity fields anonymous signups must provide.
//  SignupOpen   – whether new signups are accepted.
//  CheckinOpen  – whether the live check-in phase is running.
//  Current      – order of the performer that is up, nil when nobody is.
//  Hide         – hidden mics are omitted from the public list.
type Mic struct {
    ID           uint64       `json:"id"`           // mics.id
    OwnerID      uint64       `json:"userId"`       // mics.owner_id
    Name         string       `json:"name"`         // mics.name
    Location     Location     `json:"location"`     // mics.location (JSON column)
    Start        time.Time    `json:"start"`        // mics.starts_at
    End          time.Time    `json:"end"`          // mics.ends_at
    SetLength    int          `json:"setLength"`    // mics.set_length_min
    Slots        int          `json:"slots"`        // mics.slots
    SlotsFilled  int          `json:"slotsFilled"`  // derived from the roster
    WaitingList  *WaitingList `json:"waitingList,omitempty"`
    SignupConfig SignupConfig `json:"signupConfig"` // mics.signup_config (JSON column)
    SignupOpen   bool         `json:"signupOpen"`   // mics.signup_open
    CheckinOpen  bool         `json:"checkinOpen"`  // mics.checkin_open
    Current      *int         `json:"current"`      // mics.current_order (nullable)
    Hide         bool         `json:"hide"`         // mics.hidden
    Version      uint64       `json:"version"`      // mics.version, bumped by every committed change
    CreatedAt    time.Time    `json:"-"`            // mics.created_at
    UpdatedAt    time.Time    `json:"-"`            // mics.updated_at
}

// WaitingListKind distinguishes a standby list (jump in for no-shows)
// from extra slots appended after the regular lineup.
type WaitingListKind string

const (
    WaitingListStandby WaitingListKind = "standby"
    WaitingListExtra   WaitingListKind = "extra"
)

// WaitingList is the overflow policy of a mic.
type WaitingList struct {
    Kind  WaitingListKind `json:"type"`
    Slots int             `json:"slots"`
}

// LocationKind tells which of the two location shapes is populated.
type LocationKind string

const (
    LocationGoogle LocationKind = "google"
    LocationCustom LocationKind = "custom"
)

// Location is either a Google place (PlaceID, FormattedAddress) or a
// custom venue (Address).  Name is shared by both shapes.
type Location struct {
    Kind             LocationKind `json:"type"`
    Name             string       `json:"name"`
    PlaceID          string       `json:"place_id,omitempty"`
    FormattedAddress string       `json:"formatted_address,omitempty"`
    Address          string       `json:"address,omitempty"`
}

// SignupSetting configures one identity field for anonymous signups.
type SignupSetting struct {
    Use      bool `json:"use"`
    Required bool `json:"required"`
}

// SignupConfig lists which identity fields a mic collects at signup.
type SignupConfig struct {
    Email SignupSetting `json:"email"`
    Phone SignupSetting `json:"phone"`
}

// Clone returns a deep copy so callers can mutate a mic without
// touching a cached or shared value.
func (m Mic) Clone() Mic {
    out := m
    if m.WaitingList != nil {
        wl := *m.WaitingList
        out.WaitingList = &wl
    }
    if m.Current != nil {
        cur := *m.Current
        out.Current = &cur
    }
    return out
}

// MicForm is what a host submits to create a mic.  Derived fields
// (SlotsFilled, Current) and the owner are filled in by the server.
type MicForm struct {
    Name         string       `json:"name"`
    Location     Location     `json:"location"`
    Start        time.Time    `json:"start"`
    End          time.Time    `json:"end"`
    SetLength    int          `json:"setLength"`
    Slots        int          `json:"slots"`
    WaitingList  *WaitingList `json:"waitingList,omitempty"`
    SignupConfig SignupConfig `json:"signupConfig"`
    SignupOpen   bool         `json:"signupOpen"`
    Hide         bool         `json:"hide"`
}
