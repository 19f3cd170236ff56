package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/open-mic/internal/micstate"
	"github.com/iliyamo/open-mic/internal/model"
	"github.com/iliyamo/open-mic/internal/utils"
)

// micEntry holds one mic and its roster.  mu serializes Mutate calls on
// the same mic; different mics never contend.
type micEntry struct {
	mu     sync.Mutex
	mic    model.Mic
	roster micstate.Roster
}

// MemoryStore is an in-process MicStore used for local development
// (STORE=memory) and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	mics    map[uint64]*micEntry
	nextMic uint64
	nextPer uint64
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mics: make(map[uint64]*micEntry),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) entry(id uint64) (*micEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.mics[id]
	if !ok {
		return nil, ErrMicNotFound
	}
	return e, nil
}

// ListMics returns copies of every mic ordered by start time.
func (s *MemoryStore) ListMics(ctx context.Context) ([]model.Mic, error) {
	s.mu.RLock()
	entries := make([]*micEntry, 0, len(s.mics))
	for _, e := range s.mics {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]model.Mic, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.mic.Clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetMic returns a copy of one mic.
func (s *MemoryStore) GetMic(ctx context.Context, id uint64) (model.Mic, error) {
	e, err := s.entry(id)
	if err != nil {
		return model.Mic{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mic.Clone(), nil
}

// Roster returns a copy of the mic's roster.
func (s *MemoryStore) Roster(ctx context.Context, micID uint64) (micstate.Roster, error) {
	e, err := s.entry(micID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.roster.Clone(), nil
}

// CreateMic stores a new mic with an empty roster.
func (s *MemoryStore) CreateMic(ctx context.Context, m model.Mic) (model.Mic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMic++
	m.ID = s.nextMic
	m.SlotsFilled = 0
	m.Current = nil
	m.Version = 1
	m.CreatedAt = s.now()
	m.UpdatedAt = m.CreatedAt
	s.mics[m.ID] = &micEntry{mic: m.Clone()}
	return m, nil
}

// Mutate applies fn to a copy of the mic and roster and swaps the result
// in only when fn succeeds.
func (s *MemoryStore) Mutate(ctx context.Context, micID uint64, fn MutateFunc) (model.Mic, micstate.Roster, error) {
	e, err := s.entry(micID)
	if err != nil {
		return model.Mic{}, nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	m := e.mic.Clone()
	after, err := fn(&m, e.roster.Clone())
	if err != nil {
		return model.Mic{}, nil, err
	}
	after = after.Clone()
	for i := range after {
		after[i].MicID = micID
		if after[i].ID == 0 {
			after[i].ID = s.performerID()
			after[i].CreatedAt = s.now()
		}
	}
	finalize(&m, after)
	m.Version++
	m.UpdatedAt = s.now()

	e.mic = m
	e.roster = after
	return m.Clone(), after.Clone(), nil
}

func (s *MemoryStore) performerID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPer++
	return s.nextPer
}

// MemoryUsers is an in-process UserStore.
type MemoryUsers struct {
	mu      sync.RWMutex
	byID    map[uint64]model.User
	byEmail map[string]uint64
	next    uint64
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{byID: make(map[uint64]model.User), byEmail: make(map[string]uint64)}
}

func (s *MemoryUsers) Create(ctx context.Context, u model.User, password string, cost int) (uint64, error) {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Email = NormalizeEmail(u.Email)
	if _, ok := s.byEmail[u.Email]; ok {
		return 0, ErrEmailExists
	}
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	s.next++
	u.ID = s.next
	u.PasswordHash = hash
	u.IsActive = true
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	s.byID[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return u.ID, nil
}

func (s *MemoryUsers) GetByEmail(ctx context.Context, email string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *MemoryUsers) GetByID(ctx context.Context, id uint64) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	return u, nil
}

type memoryToken struct {
	userID  uint64
	exp     time.Time
	revoked bool
}

// MemoryTokens is an in-process TokenStore.
type MemoryTokens struct {
	mu     sync.Mutex
	tokens map[string]*memoryToken
}

func NewMemoryTokens() *MemoryTokens {
	return &MemoryTokens{tokens: make(map[string]*memoryToken)}
}

func (s *MemoryTokens) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[tokenHash]; ok {
		return ErrConflict
	}
	s.tokens[tokenHash] = &memoryToken{userID: userID, exp: exp}
	return nil
}

func (s *MemoryTokens) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[tokenHash]
	if !ok || t.revoked || time.Now().UTC().After(t.exp) {
		return 0, ErrTokenInvalid
	}
	return t.userID, nil
}

func (s *MemoryTokens) RevokeByHash(ctx context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tokens[tokenHash]; ok {
		t.revoked = true
	}
	return nil
}

func (s *MemoryTokens) RevokeAllForUser(ctx context.Context, userID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.userID == userID {
			t.revoked = true
		}
	}
	return nil
}

var (
	_ MicStore   = (*MemoryStore)(nil)
	_ MicStore   = (*MicRepo)(nil)
	_ UserStore  = (*MemoryUsers)(nil)
	_ UserStore  = (*UserRepo)(nil)
	_ TokenStore = (*MemoryTokens)(nil)
	_ TokenStore = (*TokenRepo)(nil)
)
