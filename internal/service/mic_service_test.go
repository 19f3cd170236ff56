package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/open-mic/internal/model"
	"github.com/iliyamo/open-mic/internal/queue"
	"github.com/iliyamo/open-mic/internal/repository"
)

type recorder struct {
	mu    sync.Mutex
	snaps []model.Snapshot
}

func (r *recorder) Broadcast(micID uint64, snap model.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
}

func (r *recorder) last() model.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[len(r.snaps)-1]
}

type activitySink chan queue.ActivityEvent

func (a activitySink) PublishActivity(ctx context.Context, ev queue.ActivityEvent) error {
	a <- ev
	return nil
}

type fixture struct {
	svc    *MicService
	users  *repository.MemoryUsers
	live   *recorder
	events activitySink
	host   Actor
	mic    model.Mic
}

var anyone = Actor{}

func emailOnly() model.SignupConfig {
	return model.SignupConfig{Email: model.SignupSetting{Use: true, Required: true}}
}

func newFixture(t *testing.T, slots int, wl *model.WaitingList) *fixture {
	t.Helper()
	f := &fixture{
		users:  repository.NewMemoryUsers(),
		live:   &recorder{},
		events: make(activitySink, 64),
	}
	f.svc = NewMicService(repository.NewMemoryStore(), f.users, f.live, f.events)

	hostID, err := f.users.Create(context.Background(), model.User{Email: "host@example.com", First: "Hal"}, "pw", bcrypt.MinCost)
	require.NoError(t, err)
	f.host = Actor{UserID: hostID, Role: "USER"}

	start := time.Date(2026, 5, 1, 19, 0, 0, 0, time.UTC)
	f.mic, err = f.svc.CreateMic(context.Background(), f.host, model.MicForm{
		Name:         " Thursday Mic ",
		Location:     model.Location{Kind: model.LocationCustom, Name: "Back Room", Address: "1 Main St"},
		Start:        start,
		End:          start.Add(2 * time.Hour),
		SetLength:    5,
		Slots:        slots,
		WaitingList:  wl,
		SignupConfig: emailOnly(),
		SignupOpen:   true,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) signupAnon(t *testing.T, name string) model.Mic {
	t.Helper()
	m, err := f.svc.Signup(context.Background(), anyone, f.mic.ID, &model.AnonIdentity{Name: name, Email: name + "@example.com"}, false)
	require.NoError(t, err)
	return m
}

func (f *fixture) roster(t *testing.T) []model.Performer {
	t.Helper()
	r, err := f.svc.Roster(context.Background(), f.mic.ID)
	require.NoError(t, err)
	return r
}

func TestCreateMicValidation(t *testing.T) {
	f := newFixture(t, 3, nil)
	assert.Equal(t, "Thursday Mic", f.mic.Name)
	assert.Equal(t, f.host.UserID, f.mic.OwnerID)

	start := time.Now()
	base := model.MicForm{
		Name: "x", Location: model.Location{Kind: model.LocationCustom}, Start: start, End: start.Add(time.Hour),
		SetLength: 5, Slots: 3, SignupConfig: emailOnly(),
	}
	cases := map[string]func(*model.MicForm){
		"no name":         func(m *model.MicForm) { m.Name = "  " },
		"no slots":        func(m *model.MicForm) { m.Slots = 0 },
		"no set length":   func(m *model.MicForm) { m.SetLength = 0 },
		"end before":      func(m *model.MicForm) { m.End = m.Start.Add(-time.Minute) },
		"bad waiting":     func(m *model.MicForm) { m.WaitingList = &model.WaitingList{Kind: "vip", Slots: 1} },
		"negative wait":   func(m *model.MicForm) { m.WaitingList = &model.WaitingList{Kind: model.WaitingListExtra, Slots: -1} },
		"no identity":     func(m *model.MicForm) { m.SignupConfig = model.SignupConfig{} },
		"google no place": func(m *model.MicForm) { m.Location = model.Location{Kind: model.LocationGoogle, Name: "Bar"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			form := base
			mutate(&form)
			_, err := f.svc.CreateMic(context.Background(), f.host, form)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}

	_, err := f.svc.CreateMic(context.Background(), anyone, base)
	assert.Equal(t, KindForbidden, KindOf(err))
}

func TestSignupFillsSlotsThenWaitingList(t *testing.T) {
	f := newFixture(t, 2, &model.WaitingList{Kind: model.WaitingListStandby, Slots: 1})
	ctx := context.Background()

	f.signupAnon(t, "ann")
	m := f.signupAnon(t, "bob")
	assert.Equal(t, 2, m.SlotsFilled)

	_, err := f.svc.Signup(ctx, anyone, f.mic.ID, &model.AnonIdentity{Name: "cat", Email: "cat@example.com"}, false)
	assert.Equal(t, KindBadRequest, KindOf(err))

	m, err = f.svc.Signup(ctx, anyone, f.mic.ID, &model.AnonIdentity{Name: "cat", Email: "cat@example.com"}, true)
	require.NoError(t, err)
	assert.Equal(t, 3, m.SlotsFilled)

	_, err = f.svc.Signup(ctx, anyone, f.mic.ID, &model.AnonIdentity{Name: "dan", Email: "dan@example.com"}, true)
	require.Error(t, err)
	assert.Equal(t, "waiting list is full", err.Error())

	r := f.roster(t)
	require.Len(t, r, 3)
	assert.Equal(t, []string{"ann", "bob", "cat"}, []string{r[0].Name, r[1].Name, r[2].Name})
	assert.Equal(t, 2, r[2].Order)

	last := f.live.last()
	require.NotNil(t, last.Mic)
	assert.Equal(t, 3, last.Mic.SlotsFilled)
	assert.Len(t, last.Mikers, 3)
}

func TestSignupRules(t *testing.T) {
	f := newFixture(t, 3, nil)
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, anyone, f.mic.ID, &model.AnonIdentity{Name: "ann"}, false)
	assert.Equal(t, KindValidation, KindOf(err), "email is required by the mic")

	_, err = f.svc.Signup(ctx, anyone, f.mic.ID, nil, false)
	assert.Equal(t, KindValidation, KindOf(err))

	f.signupAnon(t, "ann")
	_, err = f.svc.Signup(ctx, anyone, f.mic.ID, &model.AnonIdentity{Name: "Ann again", Email: "ANN@example.com"}, false)
	assert.Equal(t, KindBadRequest, KindOf(err))

	_, err = f.svc.Signup(ctx, anyone, f.mic.ID, &model.AnonIdentity{Name: "x", Email: "x@example.com"}, true)
	assert.Equal(t, KindBadRequest, KindOf(err), "no waiting list configured")

	_, err = f.svc.ManageSignup(ctx, f.host, f.mic.ID, false)
	require.NoError(t, err)
	_, err = f.svc.Signup(ctx, anyone, f.mic.ID, &model.AnonIdentity{Name: "x", Email: "x@example.com"}, false)
	require.Error(t, err)
	assert.Equal(t, "signup is closed", err.Error())
}

func TestSignupWithRegisteredEmailConflicts(t *testing.T) {
	f := newFixture(t, 3, nil)
	_, err := f.svc.Signup(context.Background(), anyone, f.mic.ID, &model.AnonIdentity{Name: "Hal", Email: "Host@Example.com"}, false)

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindConflict, se.Kind)
	assert.Equal(t, "host@example.com", se.Email)
}

func TestUserSignupAndRemoveSelf(t *testing.T) {
	f := newFixture(t, 3, nil)
	ctx := context.Background()
	uid, err := f.users.Create(ctx, model.User{Email: "pat@example.com", First: "Pat", Last: "Lee"}, "pw", bcrypt.MinCost)
	require.NoError(t, err)
	pat := Actor{UserID: uid, Role: "USER"}

	f.signupAnon(t, "ann")
	_, err = f.svc.Signup(ctx, pat, f.mic.ID, nil, false)
	require.NoError(t, err)
	_, err = f.svc.Signup(ctx, pat, f.mic.ID, nil, false)
	assert.Equal(t, KindBadRequest, KindOf(err))

	r := f.roster(t)
	require.Len(t, r, 2)
	assert.Equal(t, "Pat Lee", r[1].Name)
	require.NotNil(t, r[1].UserID)
	assert.Equal(t, uid, *r[1].UserID)

	m, err := f.svc.RemoveSelf(ctx, pat, f.mic.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, m.SlotsFilled)

	_, err = f.svc.RemoveSelf(ctx, pat, f.mic.ID)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestCheckInRequiresOpenCheckin(t *testing.T) {
	f := newFixture(t, 3, nil)
	ctx := context.Background()
	f.signupAnon(t, "ann")
	ann := &model.AnonIdentity{Email: " Ann@Example.com"}

	_, err := f.svc.CheckIn(ctx, anyone, f.mic.ID, ann)
	assert.Equal(t, KindBadRequest, KindOf(err))

	_, err = f.svc.ManageCheckin(ctx, anyone, f.mic.ID, true)
	assert.Equal(t, KindForbidden, KindOf(err))
	_, err = f.svc.ManageCheckin(ctx, f.host, f.mic.ID, true)
	require.NoError(t, err)

	m, err := f.svc.CheckIn(ctx, anyone, f.mic.ID, ann)
	require.NoError(t, err)
	require.NotNil(t, m.Current)
	assert.Equal(t, 0, *m.Current)
	assert.True(t, f.roster(t)[0].CheckedIn)

	_, err = f.svc.CheckIn(ctx, anyone, f.mic.ID, ann)
	assert.Equal(t, KindBadRequest, KindOf(err))

	_, err = f.svc.CheckIn(ctx, anyone, f.mic.ID, &model.AnonIdentity{Email: "nobody@example.com"})
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestHostRunsTheLineup(t *testing.T) {
	f := newFixture(t, 3, nil)
	ctx := context.Background()
	for _, n := range []string{"ann", "bob", "cat"} {
		f.signupAnon(t, n)
	}
	_, err := f.svc.ManageCheckin(ctx, f.host, f.mic.ID, true)
	require.NoError(t, err)
	r := f.roster(t)
	ann, bob, cat := r[0].ID, r[1].ID, r[2].ID
	for _, id := range []uint64{ann, bob, cat} {
		_, err := f.svc.AdminCheckIn(ctx, f.host, f.mic.ID, id)
		require.NoError(t, err)
	}

	// ann is up; skipping her sends her to the back.
	m, err := f.svc.Skip(ctx, f.host, f.mic.ID, ann, false)
	require.NoError(t, err)
	assert.Equal(t, []uint64{bob, cat, ann}, idsOf(f.roster(t)))
	assert.Equal(t, 0, *m.Current)

	// recall ann right after bob.
	m, err = f.svc.SetNext(ctx, f.host, f.mic.ID, &bob, ann)
	require.NoError(t, err)
	assert.Equal(t, []uint64{bob, ann, cat}, idsOf(f.roster(t)))
	assert.False(t, f.roster(t)[1].Skipped)

	m, err = f.svc.CompleteSet(ctx, f.host, f.mic.ID, bob)
	require.NoError(t, err)
	require.NotNil(t, m.Current)
	assert.Equal(t, 1, *m.Current, "ann is up after bob")

	// stale current id is rejected.
	_, err = f.svc.SetNext(ctx, f.host, f.mic.ID, &bob, cat)
	assert.Equal(t, KindBadRequest, KindOf(err))

	m, err = f.svc.Skip(ctx, f.host, f.mic.ID, ann, true)
	require.NoError(t, err)
	assert.True(t, f.roster(t)[1].SetComplete, "missed set is terminal")
	assert.Equal(t, 2, *m.Current)

	m, err = f.svc.AdminRemove(ctx, f.host, f.mic.ID, cat)
	require.NoError(t, err)
	assert.Equal(t, 2, m.SlotsFilled)
	assert.Nil(t, m.Current)

	_, err = f.svc.CompleteSet(ctx, Actor{UserID: 999}, f.mic.ID, bob)
	assert.Equal(t, KindForbidden, KindOf(err))
	_, err = f.svc.CompleteSet(ctx, Actor{UserID: 999, Role: RoleAdmin}, f.mic.ID, bob)
	assert.Equal(t, KindBadRequest, KindOf(err), "admins pass the host check")
}

func TestLineupNeedsOpenCheckin(t *testing.T) {
	f := newFixture(t, 3, nil)
	ctx := context.Background()
	f.signupAnon(t, "ann")
	f.signupAnon(t, "bob")
	r := f.roster(t)
	ann, bob := r[0].ID, r[1].ID

	_, err := f.svc.Skip(ctx, f.host, f.mic.ID, ann, false)
	assert.Equal(t, KindBadRequest, KindOf(err))
	_, err = f.svc.Skip(ctx, f.host, f.mic.ID, ann, true)
	assert.Equal(t, KindBadRequest, KindOf(err))
	_, err = f.svc.CompleteSet(ctx, f.host, f.mic.ID, ann)
	assert.Equal(t, KindBadRequest, KindOf(err))
	_, err = f.svc.SetNext(ctx, f.host, f.mic.ID, &bob, ann)
	require.Error(t, err)
	assert.Equal(t, "check-in is not open", err.Error())
	assert.False(t, f.roster(t)[0].Skipped, "nothing changed")

	_, err = f.svc.ManageCheckin(ctx, f.host, f.mic.ID, true)
	require.NoError(t, err)
	_, err = f.svc.Skip(ctx, f.host, f.mic.ID, ann, false)
	require.NoError(t, err)
}

func TestSkipKeepsWaitingListOutOfSlots(t *testing.T) {
	f := newFixture(t, 2, &model.WaitingList{Kind: model.WaitingListStandby, Slots: 2})
	ctx := context.Background()
	f.signupAnon(t, "ann")
	f.signupAnon(t, "bob")
	_, err := f.svc.Signup(ctx, anyone, f.mic.ID, &model.AnonIdentity{Name: "cat", Email: "cat@example.com"}, true)
	require.NoError(t, err)
	_, err = f.svc.ManageCheckin(ctx, f.host, f.mic.ID, true)
	require.NoError(t, err)
	r := f.roster(t)
	ann, bob, cat := r[0].ID, r[1].ID, r[2].ID
	_, err = f.svc.AdminCheckIn(ctx, f.host, f.mic.ID, ann)
	require.NoError(t, err)

	m, err := f.svc.Skip(ctx, f.host, f.mic.ID, ann, false)
	require.NoError(t, err)
	r = f.roster(t)
	assert.Equal(t, []uint64{bob, ann, cat}, idsOf(r))
	assert.Equal(t, []int{0, 1, 2}, []int{r[0].Order, r[1].Order, r[2].Order})
	assert.Less(t, r[1].Order, m.Slots, "ann keeps the slot")
	assert.GreaterOrEqual(t, r[2].Order, m.Slots, "cat stays on the waiting list")
	require.NotNil(t, m.Current)
	assert.Equal(t, 0, *m.Current, "bob is up")
}

func TestSnapshotsCarryIncreasingVersions(t *testing.T) {
	f := newFixture(t, 3, nil)
	assert.Equal(t, uint64(1), f.mic.Version)
	a := f.signupAnon(t, "ann")
	b := f.signupAnon(t, "bob")
	assert.Equal(t, uint64(2), a.Version)
	assert.Equal(t, uint64(3), b.Version)
	assert.Equal(t, b.Version, f.live.last().Version())

	// A rejected change commits nothing and keeps the version.
	_, err := f.svc.Skip(context.Background(), f.host, f.mic.ID, f.roster(t)[0].ID, false)
	require.Error(t, err)
	m, err := f.svc.GetMic(context.Background(), f.mic.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), m.Version)
}

func TestRemoveAnonNeedsMatchingIdentity(t *testing.T) {
	f := newFixture(t, 3, nil)
	ctx := context.Background()
	f.signupAnon(t, "ann")
	id := f.roster(t)[0].ID

	_, err := f.svc.RemoveAnon(ctx, anyone, f.mic.ID, id, model.AnonIdentity{Email: "bob@example.com"})
	assert.Equal(t, KindForbidden, KindOf(err))

	m, err := f.svc.RemoveAnon(ctx, anyone, f.mic.ID, id, model.AnonIdentity{Email: "ann@example.com"})
	require.NoError(t, err)
	assert.Zero(t, m.SlotsFilled)
	assert.Empty(t, f.live.last().Mikers)
	assert.NotNil(t, f.live.last().Mikers)
}

func TestHiddenMicsListedForHostOnly(t *testing.T) {
	f := newFixture(t, 3, nil)
	ctx := context.Background()
	_, err := f.svc.SetHidden(ctx, f.host, f.mic.ID, true)
	require.NoError(t, err)

	public, err := f.svc.ListMics(ctx, anyone)
	require.NoError(t, err)
	assert.Empty(t, public)

	own, err := f.svc.ListMics(ctx, f.host)
	require.NoError(t, err)
	assert.Len(t, own, 1)
}

func TestActivityPublishedAfterCommit(t *testing.T) {
	f := newFixture(t, 3, nil)
	<-f.events // mic created
	f.signupAnon(t, "ann")

	select {
	case ev := <-f.events:
		assert.Equal(t, queue.ActionSignup, ev.Action)
		assert.Equal(t, f.mic.ID, ev.MicID)
		assert.Equal(t, "ann", ev.Performer)
		assert.NotZero(t, ev.PerformerID)
		assert.NotEmpty(t, ev.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no activity event")
	}
}

func TestUnknownMic(t *testing.T) {
	f := newFixture(t, 3, nil)
	_, err := f.svc.GetMic(context.Background(), 404)
	assert.Equal(t, KindNotFound, KindOf(err))
	_, err = f.svc.Skip(context.Background(), f.host, 404, 1, false)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func idsOf(r []model.Performer) []uint64 {
	out := make([]uint64, len(r))
	for i, p := range r {
		out[i] = p.ID
	}
	return out
}
