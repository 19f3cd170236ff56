// Package service implements the mic and roster operations: validation,
// authorization and orchestration between HTTP handlers, the store and
// the live/activity fan-out.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/open-mic/internal/metrics"
	"github.com/iliyamo/open-mic/internal/micstate"
	"github.com/iliyamo/open-mic/internal/model"
	"github.com/iliyamo/open-mic/internal/queue"
	"github.com/iliyamo/open-mic/internal/repository"
)

const RoleAdmin = model.RoleAdmin

// Actor is the caller of an operation.  The zero value is an anonymous
// caller.
type Actor struct {
	UserID uint64
	Role   string
}

func (a Actor) Anonymous() bool { return a.UserID == 0 }

// canHost reports whether the actor may run the mic: its owner or a site
// administrator.
func (a Actor) canHost(m model.Mic) bool {
	return !a.Anonymous() && (a.UserID == m.OwnerID || a.Role == RoleAdmin)
}

// Broadcaster receives the full state of a mic after each committed change.
type Broadcaster interface {
	Broadcast(micID uint64, snap model.Snapshot)
}

// Broadcasters fans one snapshot out to several receivers in order.
type Broadcasters []Broadcaster

func (bs Broadcasters) Broadcast(micID uint64, snap model.Snapshot) {
	for _, b := range bs {
		b.Broadcast(micID, snap)
	}
}

// ActivityPublisher records committed changes on the message broker.
type ActivityPublisher interface {
	PublishActivity(ctx context.Context, ev queue.ActivityEvent) error
}

var (
	ErrMicNameRequired    = errors.New("mic name is required")
	ErrSlotsInvalid       = errors.New("slots must be at least 1")
	ErrSetLengthInvalid   = errors.New("set length must be at least 1 minute")
	ErrScheduleInvalid    = errors.New("start must be before end")
	ErrWaitingListInvalid = errors.New("waiting list must be standby or extra with zero or more slots")
	ErrLocationInvalid    = errors.New("location must be a google place or a custom address")
	ErrAnonRequired       = errors.New("sign in or provide your name to sign up")
)

// MicService orchestrates every mic and roster operation.  Each mutation
// runs inside one store transaction; the resulting snapshot is fanned out
// only after it committed.
type MicService struct {
	mics     repository.MicStore
	users    repository.UserStore
	live     Broadcaster
	activity ActivityPublisher
	now      func() time.Time

	// publishTimeout bounds one broker publish.
	publishTimeout time.Duration
}

// NewMicService constructs a MicService.  live and activity may be nil.
func NewMicService(mics repository.MicStore, users repository.UserStore, live Broadcaster, activity ActivityPublisher) *MicService {
	return &MicService{
		mics:           mics,
		users:          users,
		live:           live,
		activity:       activity,
		now:            func() time.Time { return time.Now().UTC() },
		publishTimeout: 5 * time.Second,
	}
}

// ListMics returns the mic list.  Hidden mics are only listed for the
// actor who hosts them.
func (s *MicService) ListMics(ctx context.Context, actor Actor) ([]model.Mic, error) {
	all, err := s.mics.ListMics(ctx)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]model.Mic, 0, len(all))
	for _, m := range all {
		if m.Hide && !actor.canHost(m) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// GetMic returns one mic.
func (s *MicService) GetMic(ctx context.Context, micID uint64) (model.Mic, error) {
	m, err := s.mics.GetMic(ctx, micID)
	return m, classify(err)
}

// Roster returns the performers of a mic sorted by order.
func (s *MicService) Roster(ctx context.Context, micID uint64) ([]model.Performer, error) {
	r, err := s.mics.Roster(ctx, micID)
	if err != nil {
		return nil, classify(err)
	}
	return []model.Performer(r), nil
}

// Snapshot returns the mic and its roster read back to back.  The live
// channel uses it for the first message of a subscription.
func (s *MicService) Snapshot(ctx context.Context, micID uint64) (model.Snapshot, error) {
	m, err := s.mics.GetMic(ctx, micID)
	if err != nil {
		return model.Snapshot{}, classify(err)
	}
	r, err := s.mics.Roster(ctx, micID)
	if err != nil {
		return model.Snapshot{}, classify(err)
	}
	return model.Snapshot{Mic: &m, Mikers: nonNil(r)}, nil
}

// CreateMic validates the form and stores a new mic hosted by actor.
func (s *MicService) CreateMic(ctx context.Context, actor Actor, form model.MicForm) (model.Mic, error) {
	if actor.Anonymous() {
		return model.Mic{}, forbidden("sign in to host a mic")
	}
	if err := validateForm(&form); err != nil {
		s.observe(queue.ActionMicCreated, err)
		return model.Mic{}, err
	}
	m, err := s.mics.CreateMic(ctx, model.Mic{
		OwnerID:      actor.UserID,
		Name:         form.Name,
		Location:     form.Location,
		Start:        form.Start.UTC(),
		End:          form.End.UTC(),
		SetLength:    form.SetLength,
		Slots:        form.Slots,
		WaitingList:  form.WaitingList,
		SignupConfig: form.SignupConfig,
		SignupOpen:   form.SignupOpen,
		Hide:         form.Hide,
	})
	if err != nil {
		err = classify(err)
		s.observe(queue.ActionMicCreated, err)
		return model.Mic{}, err
	}
	s.committed(queue.ActionMicCreated, actor, m, nil, model.Performer{})
	return m, nil
}

func validateForm(f *model.MicForm) error {
	f.Name = strings.TrimSpace(f.Name)
	f.Location.Name = strings.TrimSpace(f.Location.Name)
	switch {
	case f.Name == "":
		return validation(ErrMicNameRequired)
	case f.Slots < 1:
		return validation(ErrSlotsInvalid)
	case f.SetLength < 1:
		return validation(ErrSetLengthInvalid)
	case f.Start.IsZero() || f.End.IsZero() || !f.Start.Before(f.End):
		return validation(ErrScheduleInvalid)
	}
	switch f.Location.Kind {
	case model.LocationGoogle:
		if f.Location.PlaceID == "" {
			return validation(ErrLocationInvalid)
		}
	case model.LocationCustom:
	default:
		return validation(ErrLocationInvalid)
	}
	if wl := f.WaitingList; wl != nil {
		if wl.Slots < 0 || (wl.Kind != model.WaitingListStandby && wl.Kind != model.WaitingListExtra) {
			return validation(ErrWaitingListInvalid)
		}
	}
	if err := micstate.ValidateSignupConfig(f.SignupConfig); err != nil {
		return validation(err)
	}
	return nil
}

// ManageSignup opens or closes signup.
func (s *MicService) ManageSignup(ctx context.Context, actor Actor, micID uint64, open bool) (model.Mic, error) {
	m, _, err := s.hostMutate(ctx, queue.ActionSignupState, actor, micID, func(m *model.Mic, r micstate.Roster) (micstate.Roster, error) {
		m.SignupOpen = open
		return r, nil
	})
	return m, err
}

// ManageCheckin starts or ends the live check-in phase.
func (s *MicService) ManageCheckin(ctx context.Context, actor Actor, micID uint64, open bool) (model.Mic, error) {
	m, _, err := s.hostMutate(ctx, queue.ActionCheckinState, actor, micID, func(m *model.Mic, r micstate.Roster) (micstate.Roster, error) {
		m.CheckinOpen = open
		return r, nil
	})
	return m, err
}

// SetHidden hides a mic from the public list or shows it again.
func (s *MicService) SetHidden(ctx context.Context, actor Actor, micID uint64, hide bool) (model.Mic, error) {
	m, _, err := s.hostMutate(ctx, queue.ActionMicHidden, actor, micID, func(m *model.Mic, r micstate.Roster) (micstate.Roster, error) {
		m.Hide = hide
		return r, nil
	})
	return m, err
}

// target records which performer a mutation acted on, for the activity
// event.
type target struct {
	performer model.Performer
}

func (t *target) set(r micstate.Roster, id uint64) {
	if p, ok := r.Find(id); ok {
		t.performer = p
	}
}

// mutate runs fn under the mic's lock and fans the result out.
func (s *MicService) mutate(ctx context.Context, action string, actor Actor, micID uint64, t *target, fn repository.MutateFunc) (model.Mic, micstate.Roster, error) {
	m, r, err := s.mics.Mutate(ctx, micID, fn)
	if err != nil {
		err = classify(err)
		s.observe(action, err)
		return model.Mic{}, nil, err
	}
	var p model.Performer
	if t != nil {
		p = t.performer
		// New entries get their ID from the store.
		if p.ID == 0 && p.Kind != "" {
			for _, q := range r {
				if sameEntry(q, p) {
					p = q
				}
			}
		}
	}
	s.committed(action, actor, m, r, p)
	return m, r, nil
}

// hostMutate is mutate for operations only the host may run.
func (s *MicService) hostMutate(ctx context.Context, action string, actor Actor, micID uint64, fn repository.MutateFunc) (model.Mic, micstate.Roster, error) {
	return s.hostMutateTarget(ctx, action, actor, micID, nil, fn)
}

func (s *MicService) hostMutateTarget(ctx context.Context, action string, actor Actor, micID uint64, t *target, fn repository.MutateFunc) (model.Mic, micstate.Roster, error) {
	return s.mutate(ctx, action, actor, micID, t, func(m *model.Mic, r micstate.Roster) (micstate.Roster, error) {
		if !actor.canHost(*m) {
			return r, forbidden("only the host can do that")
		}
		return fn(m, r)
	})
}

func (s *MicService) observe(action string, err error) {
	switch {
	case err == nil:
		metrics.ObserveAction(action, metrics.OutcomeOK)
	case KindOf(err) == KindInternal:
		metrics.ObserveAction(action, metrics.OutcomeError)
		log.Error().Err(err).Str("module", "service").Str("action", action).Msg("mic operation failed")
	default:
		metrics.ObserveAction(action, metrics.OutcomeRejected)
	}
}

// committed fans a committed change out to live subscribers and the
// activity queue.  Broker failures never fail the operation.
func (s *MicService) committed(action string, actor Actor, m model.Mic, r micstate.Roster, p model.Performer) {
	s.observe(action, nil)
	if s.live != nil {
		snap := model.Snapshot{Mic: &m}
		// A new mic has no roster yet; receivers keep theirs.
		if action != queue.ActionMicCreated {
			snap.Mikers = nonNil(r)
		}
		s.live.Broadcast(m.ID, snap)
	}
	if s.activity == nil {
		return
	}
	ev := queue.ActivityEvent{
		ID:          uuid.NewString(),
		Action:      action,
		MicID:       m.ID,
		MicName:     m.Name,
		ActorID:     actor.UserID,
		PerformerID: p.ID,
		Performer:   p.Name,
		SlotsFilled: m.SlotsFilled,
		Current:     m.Current,
		At:          s.now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.publishTimeout)
		defer cancel()
		if err := s.activity.PublishActivity(ctx, ev); err != nil {
			log.Debug().Err(err).Str("module", "service").Str("action", ev.Action).Msg("activity not published")
		}
	}()
}

// nonNil keeps empty rosters serialized as [] rather than omitted.
func nonNil(r micstate.Roster) []model.Performer {
	if r == nil {
		return []model.Performer{}
	}
	return []model.Performer(r)
}
