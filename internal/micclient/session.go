package micclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/open-mic/internal/micstate"
	"github.com/iliyamo/open-mic/internal/model"
)

// SessionOptions tunes the live connection of a Session.  Zero values
// select the defaults.
type SessionOptions struct {
	Dialer      *websocket.Dialer
	MinBackoff  time.Duration // first reconnect delay, default 1s
	MaxBackoff  time.Duration // cap, default 30s
	ReadTimeout time.Duration // silence after which the socket is presumed dead, default 75s
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	if o.MinBackoff <= 0 {
		o.MinBackoff = time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.MaxBackoff < o.MinBackoff {
		o.MaxBackoff = o.MinBackoff
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 75 * time.Second
	}
	return o
}

// Listener is called with the cached state after every change.  It runs
// on the goroutine that applied the change and must not block.
type Listener func(m model.Mic, roster micstate.Roster)

// Session keeps one mic and its roster cached and in sync.  The cache is
// filled by Refresh, replaced by every live snapshot (last message wins)
// and updated by the mutating calls.  Derived values (Current,
// SignupState) are computed on read from the cached state.
type Session struct {
	client *Client
	micID  uint64
	opts   SessionOptions

	mu        sync.RWMutex
	mic       model.Mic
	hasMic    bool
	roster    micstate.Roster
	listeners map[int]Listener
	nextID    int

	connected chan struct{} // closed and replaced on every successful dial; tests wait on it
}

// NewSession returns a session for micID.  Call Refresh to fill the cache
// and Run to follow live updates.
func NewSession(c *Client, micID uint64, opts SessionOptions) *Session {
	return &Session{
		client:    c,
		micID:     micID,
		opts:      opts.withDefaults(),
		listeners: make(map[int]Listener),
		connected: make(chan struct{}),
	}
}

func (s *Session) MicID() uint64 { return s.micID }

// Mic returns the cached mic; ok is false before the first load.
func (s *Session) Mic() (model.Mic, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mic.Clone(), s.hasMic
}

// Roster returns a copy of the cached roster.
func (s *Session) Roster() micstate.Roster {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roster.Clone()
}

// Current returns the performer who is up.
func (s *Session) Current() (model.Performer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return micstate.Current(s.roster)
}

// SignupState resolves the signup state of the cached mic.
func (s *Session) SignupState() micstate.SignupState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return micstate.ResolveSignupState(s.mic)
}

// Active returns the performers holding a slot.
func (s *Session) Active() micstate.Roster {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roster.Active(s.mic.Slots).Clone()
}

// Waiting returns the waiting list part of the roster.
func (s *Session) Waiting() micstate.Roster {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roster.Waiting(s.mic.Slots).Clone()
}

// OnSnapshot registers fn and returns a function that removes it.
func (s *Session) OnSnapshot(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Apply replaces the cached state with the halves present in snap.  A
// snapshot whose mic is older than the cached one arrived out of order
// and is ignored.
func (s *Session) Apply(snap model.Snapshot) {
	s.update(func() bool {
		if snap.Mic != nil && s.hasMic && snap.Mic.Version != 0 && snap.Mic.Version < s.mic.Version {
			return false
		}
		if snap.Mic != nil {
			s.mic = snap.Mic.Clone()
			s.hasMic = true
		}
		if snap.Mikers != nil {
			s.roster = micstate.NewRoster(snap.Mikers)
		}
		return true
	})
}

// update runs change under the lock and notifies listeners when it
// reports a change.
func (s *Session) update(change func() bool) {
	s.mu.Lock()
	if !change() {
		s.mu.Unlock()
		return
	}
	m, r := s.mic.Clone(), s.roster.Clone()
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.mu.Unlock()

	for _, l := range ls {
		l(m, r)
	}
}

func (s *Session) version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mic.Version
}

// Refresh reloads mic and roster from the server and replaces the cache
// wholesale.
func (s *Session) Refresh(ctx context.Context) error {
	m, err := s.client.Mic(ctx, s.micID)
	if err != nil {
		return err
	}
	r, err := s.client.Performers(ctx, s.micID)
	if err != nil {
		return err
	}
	s.Apply(model.Snapshot{Mic: &m, Mikers: r})
	return nil
}

// refreshRoster reloads only the roster.  The roster carries no version,
// so it is dropped when a newer mic was cached while it was in flight.
func (s *Session) refreshRoster(ctx context.Context) error {
	seen := s.version()
	r, err := s.client.Performers(ctx, s.micID)
	if err != nil {
		return err
	}
	s.update(func() bool {
		if s.mic.Version != seen {
			return false
		}
		s.roster = micstate.NewRoster(r)
		return true
	})
	return nil
}

// afterMic applies a returned mic and reloads the roster it implies.
func (s *Session) afterMic(ctx context.Context, m model.Mic, err error) error {
	if err != nil {
		return s.settle(ctx, err)
	}
	s.Apply(model.Snapshot{Mic: &m})
	return s.refreshRoster(ctx)
}

// settle reloads the cache when a retried call was rejected: the attempt
// that failed in transit may have been applied, so the rejection can
// describe the server's own earlier change.  err is returned as is.
func (s *Session) settle(ctx context.Context, err error) error {
	if KindOf(err) == KindBadRequest && WasRetried(err) {
		if rerr := s.Refresh(ctx); rerr != nil {
			log.Debug().Err(rerr).Str("module", "micclient").Uint64("mic_id", s.micID).Msg("refresh after retried call")
		}
	}
	return err
}

// ----- roster actions -----

// Signup signs the caller up.  An anon identity is checked against the
// mic's SignupConfig before anything is sent.
func (s *Session) Signup(ctx context.Context, anon *model.AnonIdentity, asWaiting bool) error {
	if anon != nil {
		m, ok := s.Mic()
		if !ok {
			if err := s.Refresh(ctx); err != nil {
				return err
			}
			m, _ = s.Mic()
		}
		id := micstate.NormalizeAnonIdentity(*anon)
		if id.Name == "" {
			return validationError(micstate.ErrNameRequired)
		}
		if err := micstate.ValidateAnonIdentity(m.SignupConfig, id); err != nil {
			return validationError(err)
		}
		anon = &id
	}
	m, err := s.client.Signup(ctx, s.micID, anon, asWaiting)
	return s.afterMic(ctx, m, err)
}

// CheckIn confirms the caller's presence.
func (s *Session) CheckIn(ctx context.Context, anon *model.AnonIdentity) error {
	if err := s.client.CheckIn(ctx, s.micID, anon); err != nil {
		return s.settle(ctx, err)
	}
	return s.Refresh(ctx)
}

// AdminCheckIn checks performerID in on their behalf.
func (s *Session) AdminCheckIn(ctx context.Context, performerID uint64) error {
	if err := s.client.AdminCheckIn(ctx, s.micID, performerID); err != nil {
		return s.settle(ctx, err)
	}
	return s.Refresh(ctx)
}

// CompleteSet ends performerID's set.
func (s *Session) CompleteSet(ctx context.Context, performerID uint64) error {
	m, err := s.client.CompleteSet(ctx, s.micID, performerID)
	return s.afterMic(ctx, m, err)
}

// Skip passes over performerID.  A checked-in performer's set is closed
// as missed, the way the host's lineup screen does it.
func (s *Session) Skip(ctx context.Context, performerID uint64) error {
	closeSet := false
	if p, ok := s.Roster().Find(performerID); ok {
		closeSet = p.CheckedIn
	}
	m, err := s.client.Skip(ctx, s.micID, performerID, closeSet)
	return s.afterMic(ctx, m, err)
}

// SetNext moves a skipped performer up right after the current one.  The
// cached current performer is sent along; a stale cache is rejected by
// the server with KindBadRequest.
func (s *Session) SetNext(ctx context.Context, moveID uint64) error {
	r := s.Roster()
	if err := micstate.CanSetNext(r, moveID); err != nil {
		return validationError(err)
	}
	var cur *uint64
	if p, ok := micstate.Current(r); ok {
		id := p.ID
		cur = &id
	}
	m, err := s.client.SetNext(ctx, s.micID, cur, moveID)
	return s.afterMic(ctx, m, err)
}

// RemoveSelf takes the signed-in caller off the roster.
func (s *Session) RemoveSelf(ctx context.Context) error {
	if err := s.client.RemoveSelf(ctx, s.micID); err != nil {
		return s.settle(ctx, err)
	}
	return s.Refresh(ctx)
}

// RemoveAnon removes an anonymous entry.
func (s *Session) RemoveAnon(ctx context.Context, performerID uint64, anon model.AnonIdentity) error {
	if err := s.client.RemoveAnon(ctx, s.micID, performerID, anon); err != nil {
		return s.settle(ctx, err)
	}
	return s.Refresh(ctx)
}

// AdminRemove removes any performer.
func (s *Session) AdminRemove(ctx context.Context, performerID uint64) error {
	m, err := s.client.AdminRemove(ctx, s.micID, performerID)
	return s.afterMic(ctx, m, err)
}

// ManageSignup opens or closes signup.
func (s *Session) ManageSignup(ctx context.Context, open bool) error {
	m, err := s.client.ManageSignup(ctx, s.micID, open)
	if err != nil {
		return err
	}
	s.Apply(model.Snapshot{Mic: &m})
	return nil
}

// ManageCheckin opens or closes check-in.
func (s *Session) ManageCheckin(ctx context.Context, open bool) error {
	m, err := s.client.ManageCheckin(ctx, s.micID, open)
	if err != nil {
		return err
	}
	s.Apply(model.Snapshot{Mic: &m})
	return nil
}

// ----- live channel -----

// SocketURL derives the live channel address from the client's base URL.
func SocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", errors.New("micclient: unsupported scheme " + u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/socket/mic"
	return u.String(), nil
}

// Connected returns a channel that is closed once the next live
// connection is established.
func (s *Session) Connected() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Session) markConnected() {
	s.mu.Lock()
	close(s.connected)
	s.connected = make(chan struct{})
	s.mu.Unlock()
}

// Run follows the live channel until ctx ends.  Lost connections are
// re-dialed with exponential backoff from MinBackoff to MaxBackoff; after
// every reconnect the cache is refreshed in full, since snapshots sent
// while disconnected are lost.
func (s *Session) Run(ctx context.Context) error {
	addr, err := SocketURL(s.client.BaseURL())
	if err != nil {
		return err
	}
	retry := newBackoff(s.opts.MinBackoff, s.opts.MaxBackoff)
	first := true
	for {
		connected, err := s.follow(ctx, addr, !first)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			first = false
			retry.Reset()
		}
		var ce *Error
		if errors.As(err, &ce) && ce.Kind == KindNotFound {
			return err
		}
		wait := retry.Next()
		log.Warn().Err(err).Str("module", "micclient").Uint64("mic_id", s.micID).Dur("retry_in", wait).Msg("live channel lost")

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// backoff yields reconnect delays doubling from min up to max.
type backoff struct {
	min, max, next time.Duration
}

func newBackoff(min, max time.Duration) *backoff {
	return &backoff{min: min, max: max, next: min}
}

// Next returns the delay before the next attempt.
func (b *backoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}
	return d
}

// Reset starts over from min after a connection succeeded.
func (b *backoff) Reset() { b.next = b.min }

// follow runs one connection.  connected reports whether the dial and
// the hello succeeded.
func (s *Session) follow(ctx context.Context, addr string, reconnect bool) (connected bool, err error) {
	hdr := http.Header{}
	if tok := s.client.bearer(); tok != "" {
		hdr.Set("Authorization", "Bearer "+tok)
	}
	ws, resp, err := s.opts.Dialer.DialContext(ctx, addr, hdr)
	if err != nil {
		if resp != nil {
			return false, statusError(resp.StatusCode, nil)
		}
		return false, networkError(err)
	}
	defer ws.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = ws.Close()
	})
	defer stop()

	if err := ws.WriteMessage(websocket.TextMessage, []byte(strconv.FormatUint(s.micID, 10))); err != nil {
		return false, networkError(err)
	}
	_ = ws.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	ws.SetPingHandler(func(data string) error {
		_ = ws.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})
	s.markConnected()
	log.Info().Str("module", "micclient").Uint64("mic_id", s.micID).Bool("reconnect", reconnect).Msg("live channel up")

	if reconnect {
		if err := s.Refresh(ctx); err != nil {
			log.Warn().Err(err).Str("module", "micclient").Msg("refresh after reconnect failed")
		}
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.ClosePolicyViolation && strings.Contains(ce.Text, "not found") {
				return true, &Error{Kind: KindNotFound, Msg: ce.Text, Err: err}
			}
			return true, networkError(err)
		}
		_ = ws.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		var snap model.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			log.Warn().Err(err).Str("module", "micclient").Msg("malformed snapshot ignored")
			continue
		}
		s.Apply(snap)
	}
}
