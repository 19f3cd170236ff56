package repository

import (
    "context"
    "time"

    "github.com/iliyamo/open-mic/internal/micstate"
    "github.com/iliyamo/open-mic/internal/model"
)

// MutateFunc receives the locked mic and its roster and returns the
// roster that should be persisted.  The mic may be modified in place
// (signup/check-in flags, hide).  Returning an error aborts the whole
// change.
type MutateFunc func(m *model.Mic, r micstate.Roster) (micstate.Roster, error)

// MicStore is the storage contract the service depends on.  Both the
// MySQL and the in-memory implementation recompute SlotsFilled and
// Current from the returned roster before committing, so callers never
// set them.
type MicStore interface {
    ListMics(ctx context.Context) ([]model.Mic, error)
    GetMic(ctx context.Context, id uint64) (model.Mic, error)
    Roster(ctx context.Context, micID uint64) (micstate.Roster, error)
    CreateMic(ctx context.Context, m model.Mic) (model.Mic, error)
    Mutate(ctx context.Context, micID uint64, fn MutateFunc) (model.Mic, micstate.Roster, error)
}

// UserStore persists accounts.
type UserStore interface {
    Create(ctx context.Context, u model.User, password string, cost int) (uint64, error)
    GetByEmail(ctx context.Context, email string) (model.User, error)
    GetByID(ctx context.Context, id uint64) (model.User, error)
}

// TokenStore persists refresh token hashes.
type TokenStore interface {
    StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
    ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
    RevokeByHash(ctx context.Context, tokenHash string) error
    RevokeAllForUser(ctx context.Context, userID uint64) error
}

// finalize applies the derived fields every committed change must carry.
func finalize(m *model.Mic, r micstate.Roster) {
    r.Compact()
    m.SlotsFilled = len(r)
    m.Current = micstate.CurrentOrder(r)
}
