package micstate

import (
	"errors"
	"sort"

	"github.com/iliyamo/open-mic/internal/model"
)

// ErrPerformerNotFound is returned when a roster has no entry with the
// requested id.
var ErrPerformerNotFound = errors.New("performer not found")

// Roster is the list of a mic's performers sorted by Order.  Compact and
// the check-in transitions modify entries in place; Remove and Relocate
// return a new roster and leave the receiver untouched.
type Roster []model.Performer

// NewRoster copies the performers and sorts them by order.  Ties, which
// only happen with inconsistent input, fall back to signup id.
func NewRoster(ps []model.Performer) Roster {
	r := make(Roster, len(ps))
	copy(r, ps)
	sort.SliceStable(r, func(i, j int) bool {
		if r[i].Order != r[j].Order {
			return r[i].Order < r[j].Order
		}
		return r[i].ID < r[j].ID
	})
	return r
}

// Clone returns an independent copy of the roster.
func (r Roster) Clone() Roster {
	out := make(Roster, len(r))
	copy(out, r)
	return out
}

// Active is the part of the roster inside the mic's capacity.
func (r Roster) Active(slots int) Roster {
	if slots < 0 {
		slots = 0
	}
	return r[:min(slots, len(r))]
}

// Waiting is the overflow past the mic's capacity.
func (r Roster) Waiting(slots int) Roster {
	if slots < 0 {
		slots = 0
	}
	return r[min(slots, len(r)):]
}

// Index returns the position of the entry with the given id, or -1.
func (r Roster) Index(id uint64) int {
	for i := range r {
		if r[i].ID == id {
			return i
		}
	}
	return -1
}

// Find returns the entry with the given id.
func (r Roster) Find(id uint64) (model.Performer, bool) {
	if i := r.Index(id); i >= 0 {
		return r[i], true
	}
	return model.Performer{}, false
}

// ByOrder returns the entry holding the given order.
func (r Roster) ByOrder(order int) (model.Performer, bool) {
	for _, p := range r {
		if p.Order == order {
			return p, true
		}
	}
	return model.Performer{}, false
}

// NextOrder is the order a new signup receives: one past the highest
// order in use, so orders keep reflecting signup sequence.
func (r Roster) NextOrder() int {
	next := 0
	for _, p := range r {
		if p.Order >= next {
			next = p.Order + 1
		}
	}
	return next
}

// Compact renumbers orders to 0..n-1 keeping the relative sequence, so
// that order < slots always means an active slot.
func (r Roster) Compact() {
	for i := range r {
		r[i].Order = i
	}
}

// Remove deletes the entry with the given id and compacts the orders of
// the remaining entries.
func (r Roster) Remove(id uint64) (Roster, error) {
	i := r.Index(id)
	if i < 0 {
		return r, ErrPerformerNotFound
	}
	out := append(r[:i:i], r[i+1:]...)
	out.Compact()
	return out, nil
}

// Relocate moves an entry so that it directly follows the entry afterID,
// or to position 0 when afterID is nil, then compacts the orders.
func (r Roster) Relocate(moveID uint64, afterID *uint64) (Roster, error) {
	from := r.Index(moveID)
	if from < 0 {
		return r, ErrPerformerNotFound
	}
	moved := r[from]
	rest := append(r[:from:from], r[from+1:]...)

	at := 0
	if afterID != nil {
		anchor := rest.Index(*afterID)
		if anchor < 0 {
			return r, ErrPerformerNotFound
		}
		at = anchor + 1
	}
	out := make(Roster, 0, len(r))
	out = append(out, rest[:at]...)
	out = append(out, moved)
	out = append(out, rest[at:]...)
	out.Compact()
	return out, nil
}
