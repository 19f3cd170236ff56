package service

import (
	"context"
	"errors"

	"github.com/iliyamo/open-mic/internal/micstate"
	"github.com/iliyamo/open-mic/internal/model"
	"github.com/iliyamo/open-mic/internal/queue"
	"github.com/iliyamo/open-mic/internal/repository"
)

// Signup adds the caller to the roster.  Signed-in callers sign up as
// themselves; anonymous callers (or hosts adding a walk-in) pass an anon
// identity validated against the mic's SignupConfig.  asWaiting selects
// the waiting list instead of a regular slot.
func (s *MicService) Signup(ctx context.Context, actor Actor, micID uint64, anon *model.AnonIdentity, asWaiting bool) (model.Mic, error) {
	entry, err := s.newEntry(ctx, actor, anon)
	if err != nil {
		s.observe(queue.ActionSignup, err)
		return model.Mic{}, err
	}

	t := &target{}
	m, _, err := s.mutate(ctx, queue.ActionSignup, actor, micID, t, func(m *model.Mic, r micstate.Roster) (micstate.Roster, error) {
		if entry.Kind == model.PerformerAnon {
			id := model.AnonIdentity{Name: entry.Name, Email: entry.Email, Phone: entry.Phone}
			if err := micstate.ValidateAnonIdentity(m.SignupConfig, id); err != nil {
				return r, validation(err)
			}
		}
		if err := signupAllowed(*m, asWaiting); err != nil {
			return r, err
		}
		for _, p := range r {
			if sameEntry(p, entry) {
				return r, badRequest("already signed up for this mic")
			}
		}
		entry.Order = r.NextOrder()
		r = append(r, entry)
		t.performer = entry
		return r, nil
	})
	return m, err
}

// newEntry builds the roster entry for a signup before the mic is locked.
func (s *MicService) newEntry(ctx context.Context, actor Actor, anon *model.AnonIdentity) (model.Performer, error) {
	if anon == nil {
		if actor.Anonymous() {
			return model.Performer{}, validation(ErrAnonRequired)
		}
		u, err := s.users.GetByID(ctx, actor.UserID)
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.Performer{}, forbidden("account no longer exists")
		}
		if err != nil {
			return model.Performer{}, classify(err)
		}
		uid := u.ID
		return model.Performer{Kind: model.PerformerUser, Name: u.DisplayName(), UserID: &uid}, nil
	}

	id := micstate.NormalizeAnonIdentity(*anon)
	if id.Name == "" {
		return model.Performer{}, validation(micstate.ErrNameRequired)
	}
	// An anonymous caller may not sign up with someone's account email.
	if actor.Anonymous() && id.Email != "" {
		_, err := s.users.GetByEmail(ctx, id.Email)
		switch {
		case err == nil:
			return model.Performer{}, &Error{Kind: KindConflict, Msg: "an account exists for this email, please log in", Email: id.Email}
		case !errors.Is(err, repository.ErrUserNotFound):
			return model.Performer{}, classify(err)
		}
	}
	return model.Performer{Kind: model.PerformerAnon, Name: id.Name, Email: id.Email, Phone: id.Phone}, nil
}

func signupAllowed(m model.Mic, asWaiting bool) error {
	state := micstate.ResolveSignupState(m)
	if state == micstate.SignupClosed {
		return badRequest("signup is closed")
	}
	if !asWaiting {
		switch state {
		case micstate.SignupOpen:
			return nil
		case micstate.SignupWaiting:
			return badRequest("all slots are taken, join the waiting list")
		default:
			return badRequest("mic is full")
		}
	}
	switch {
	case m.WaitingList == nil:
		return badRequest("this mic has no waiting list")
	case state == micstate.SignupOpen:
		return badRequest("slots are still open, sign up for a regular slot")
	case state == micstate.SignupFull:
		return badRequest("waiting list is full")
	}
	return nil
}

// sameEntry reports whether p and e identify the same performer.
func sameEntry(p, e model.Performer) bool {
	if e.Kind == model.PerformerUser {
		return p.UserID != nil && e.UserID != nil && *p.UserID == *e.UserID
	}
	return micstate.MatchesAnon(p, model.AnonIdentity{Email: e.Email, Phone: e.Phone})
}

// locate finds the caller's own entry: by account for signed-in callers,
// by anon identity otherwise.
func locate(r micstate.Roster, actor Actor, anon *model.AnonIdentity) (model.Performer, error) {
	if anon == nil && actor.Anonymous() {
		return model.Performer{}, validation(ErrAnonRequired)
	}
	var id model.AnonIdentity
	if anon != nil {
		id = micstate.NormalizeAnonIdentity(*anon)
	}
	for _, p := range r {
		if anon == nil {
			if p.UserID != nil && *p.UserID == actor.UserID {
				return p, nil
			}
			continue
		}
		if micstate.MatchesAnon(p, id) {
			return p, nil
		}
	}
	return model.Performer{}, notFound("you are not signed up for this mic", micstate.ErrPerformerNotFound)
}

// CheckIn confirms the caller is present.  Check-in must be open.
func (s *MicService) CheckIn(ctx context.Context, actor Actor, micID uint64, anon *model.AnonIdentity) (model.Mic, error) {
	t := &target{}
	m, _, err := s.mutate(ctx, queue.ActionCheckIn, actor, micID, t, func(m *model.Mic, r micstate.Roster) (micstate.Roster, error) {
		if !m.CheckinOpen {
			return r, errCheckinClosed
		}
		p, err := locate(r, actor, anon)
		if err != nil {
			return r, err
		}
		if err := micstate.CheckIn(r, p.ID); err != nil {
			return r, err
		}
		t.set(r, p.ID)
		return r, nil
	})
	return m, err
}

// AdminCheckIn checks a performer in on their behalf.
func (s *MicService) AdminCheckIn(ctx context.Context, actor Actor, micID, performerID uint64) (model.Mic, error) {
	t := &target{}
	m, _, err := s.hostMutateTarget(ctx, queue.ActionCheckIn, actor, micID, t, func(m *model.Mic, r micstate.Roster) (micstate.Roster, error) {
		if !m.CheckinOpen {
			return r, errCheckinClosed
		}
		if err := micstate.CheckIn(r, performerID); err != nil {
			return r, err
		}
		t.set(r, performerID)
		return r, nil
	})
	return m, err
}

// CompleteSet marks a checked-in performer's set as done.
func (s *MicService) CompleteSet(ctx context.Context, actor Actor, micID, performerID uint64) (model.Mic, error) {
	t := &target{}
	m, _, err := s.hostMutateTarget(ctx, queue.ActionCompleteSet, actor, micID, t, func(m *model.Mic, r micstate.Roster) (micstate.Roster, error) {
		if !m.CheckinOpen {
			return r, errCheckinClosed
		}
		if err := micstate.CompleteSet(r, performerID); err != nil {
			return r, err
		}
		t.set(r, performerID)
		return r, nil
	})
	return m, err
}

// Skip passes over a performer.  closeSet records a checked-in
// performer's skip as a missed set.
func (s *MicService) Skip(ctx context.Context, actor Actor, micID, performerID uint64, closeSet bool) (model.Mic, error) {
	action := queue.ActionSkip
	if closeSet {
		action = queue.ActionMissedSet
	}
	t := &target{}
	m, _, err := s.hostMutateTarget(ctx, action, actor, micID, t, func(m *model.Mic, r micstate.Roster) (micstate.Roster, error) {
		if !m.CheckinOpen {
			return r, errCheckinClosed
		}
		out, err := micstate.Skip(r, performerID, closeSet, m.Slots)
		if err != nil {
			return r, err
		}
		t.set(out, performerID)
		return out, nil
	})
	return m, err
}

// SetNext brings a skipped performer back right after the one that is up.
// curID is the current performer as the host's client saw it; when it no
// longer matches, the host is working from a stale roster and the call is
// rejected.
func (s *MicService) SetNext(ctx context.Context, actor Actor, micID uint64, curID *uint64, moveID uint64) (model.Mic, error) {
	t := &target{}
	m, _, err := s.hostMutateTarget(ctx, queue.ActionSetNext, actor, micID, t, func(m *model.Mic, r micstate.Roster) (micstate.Roster, error) {
		if !m.CheckinOpen {
			return r, errCheckinClosed
		}
		var anchor *uint64
		cur, ok := micstate.Current(r)
		if ok {
			id := cur.ID
			anchor = &id
		}
		if curID != nil && (!ok || cur.ID != *curID) {
			return r, badRequest("the lineup changed, refresh and try again")
		}
		out, err := micstate.SetNext(r, anchor, moveID)
		if err != nil {
			return r, err
		}
		t.set(out, moveID)
		return out, nil
	})
	return m, err
}

// RemoveSelf takes the signed-in caller off the roster.
func (s *MicService) RemoveSelf(ctx context.Context, actor Actor, micID uint64) (model.Mic, error) {
	if actor.Anonymous() {
		return model.Mic{}, forbidden("sign in to remove yourself")
	}
	t := &target{}
	m, _, err := s.mutate(ctx, queue.ActionRemove, actor, micID, t, func(m *model.Mic, r micstate.Roster) (micstate.Roster, error) {
		p, err := locate(r, actor, nil)
		if err != nil {
			return r, err
		}
		t.performer = p
		return r.Remove(p.ID)
	})
	return m, err
}

// RemoveAnon removes an anonymous entry.  The caller must present the
// identity the entry signed up with, unless they host the mic.
func (s *MicService) RemoveAnon(ctx context.Context, actor Actor, micID, performerID uint64, anon model.AnonIdentity) (model.Mic, error) {
	id := micstate.NormalizeAnonIdentity(anon)
	t := &target{}
	m, _, err := s.mutate(ctx, queue.ActionRemove, actor, micID, t, func(m *model.Mic, r micstate.Roster) (micstate.Roster, error) {
		p, ok := r.Find(performerID)
		if !ok {
			return r, micstate.ErrPerformerNotFound
		}
		if !actor.canHost(*m) && (p.Kind != model.PerformerAnon || !micstate.MatchesAnon(p, id)) {
			return r, forbidden("identity does not match this performer")
		}
		t.performer = p
		return r.Remove(p.ID)
	})
	return m, err
}

// AdminRemove removes any performer from the roster.
func (s *MicService) AdminRemove(ctx context.Context, actor Actor, micID, performerID uint64) (model.Mic, error) {
	t := &target{}
	m, _, err := s.hostMutateTarget(ctx, queue.ActionRemove, actor, micID, t, func(m *model.Mic, r micstate.Roster) (micstate.Roster, error) {
		t.set(r, performerID)
		return r.Remove(performerID)
	})
	return m, err
}
