package micstate

import (
	"errors"

	"github.com/iliyamo/open-mic/internal/model"
)

var (
	ErrAlreadyCheckedIn = errors.New("performer already checked in")
	ErrAlreadySkipped   = errors.New("performer already skipped")
	ErrSetComplete      = errors.New("performer already completed their set")
	ErrNotCheckedIn     = errors.New("performer has not checked in")
	ErrNotSkipped       = errors.New("only skipped performers can be set next")
	ErrAlreadyCurrent   = errors.New("performer is already up")
)

// Eligible reports whether a performer can be the one that is up: not
// finished and either confirmed present, or not yet determined absent.
func Eligible(p model.Performer) bool {
	return (p.CheckedIn && !p.SetComplete) || (!p.CheckedIn && !p.Skipped)
}

// Current returns the first eligible performer by order.  The roster must
// be sorted, which NewRoster guarantees.
func Current(r Roster) (model.Performer, bool) {
	for _, p := range r {
		if Eligible(p) {
			return p, true
		}
	}
	return model.Performer{}, false
}

// CurrentOrder is Current expressed the way a mic stores it.
func CurrentOrder(r Roster) *int {
	p, ok := Current(r)
	if !ok {
		return nil
	}
	order := p.Order
	return &order
}

// CheckIn marks a performer present.  Skipped performers may still check
// in late; they keep the skipped flag until a host sets them next.
func CheckIn(r Roster, id uint64) error {
	i := r.Index(id)
	if i < 0 {
		return ErrPerformerNotFound
	}
	switch {
	case r[i].SetComplete:
		return ErrSetComplete
	case r[i].CheckedIn:
		return ErrAlreadyCheckedIn
	}
	r[i].CheckedIn = true
	return nil
}

// Skip passes over a performer.  A performer who had not checked in
// simply stops being eligible and keeps their place.  A checked-in
// performer keeps CheckedIn, which leaves them eligible, so they move to
// the end of their own partition: an active performer stays inside the
// mic's slots and a waiting one stays on the waiting list.  A host can
// recall them earlier with SetNext.  closeSet records the skip of a
// checked-in performer as a missed set instead, which is terminal.
func Skip(r Roster, id uint64, closeSet bool, slots int) (Roster, error) {
	i := r.Index(id)
	if i < 0 {
		return r, ErrPerformerNotFound
	}
	if r[i].SetComplete {
		return r, ErrSetComplete
	}
	if r[i].Skipped && !closeSet {
		return r, ErrAlreadySkipped
	}
	r[i].Skipped = true
	if !r[i].CheckedIn {
		return r, nil
	}
	if closeSet {
		r[i].SetComplete = true
		return r, nil
	}
	end := len(r)
	if i < slots && slots < end {
		end = slots
	}
	if i == end-1 {
		return r, nil
	}
	last := r[end-1].ID
	return r.Relocate(id, &last)
}

// CompleteSet finishes a checked-in performer's set.  Complete is
// terminal: nothing moves a performer out of it.
func CompleteSet(r Roster, id uint64) error {
	i := r.Index(id)
	if i < 0 {
		return ErrPerformerNotFound
	}
	switch {
	case r[i].SetComplete:
		return ErrSetComplete
	case !r[i].CheckedIn:
		return ErrNotCheckedIn
	}
	r[i].SetComplete = true
	return nil
}

// CanSetNext reports whether a host may promote the performer: skipped,
// not finished, and not the one that is up.
func CanSetNext(r Roster, id uint64) error {
	p, ok := r.Find(id)
	if !ok {
		return ErrPerformerNotFound
	}
	if p.SetComplete {
		return ErrSetComplete
	}
	if !p.Skipped {
		return ErrNotSkipped
	}
	if cur, ok := Current(r); ok && cur.ID == p.ID {
		return ErrAlreadyCurrent
	}
	return nil
}

// SetNext reinserts a skipped performer directly after the performer that
// is up (curID), ahead of every upcoming entry, and clears the skip.  With
// no current performer the entry goes in front of the first unfinished
// one.  Orders are compacted.
func SetNext(r Roster, curID *uint64, moveID uint64) (Roster, error) {
	if err := CanSetNext(r, moveID); err != nil {
		return r, err
	}
	if curID != nil && *curID == moveID {
		return r, ErrAlreadyCurrent
	}

	anchor := curID
	if anchor == nil {
		anchor = lastFinishedBefore(r, moveID)
	}
	out, err := r.Relocate(moveID, anchor)
	if err != nil {
		return r, err
	}
	out[out.Index(moveID)].Skipped = false
	return out, nil
}

// lastFinishedBefore finds the entry after which the first unfinished
// performer sits, ignoring the entry being moved.  nil means the front.
func lastFinishedBefore(r Roster, skipID uint64) *uint64 {
	var anchor *uint64
	for i := range r {
		if r[i].ID == skipID {
			continue
		}
		if !r[i].SetComplete {
			break
		}
		id := r[i].ID
		anchor = &id
	}
	return anchor
}
