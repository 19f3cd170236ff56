package repository

import (
    "context"      // context for controlling query lifetime
    "database/sql" // sql provides DB abstraction
    "encoding/json"
    "errors"
    "fmt"
    "strings"

    "github.com/iliyamo/open-mic/internal/micstate"
    "github.com/iliyamo/open-mic/internal/model"
)

// MicRepo is the MySQL implementation of MicStore.  Mic rows live in
// `mics`; roster entries live in `performers` keyed by mic_id.
type MicRepo struct {
    db *sql.DB
}

// NewMicRepo constructs a MicRepo with the given DB handle.
func NewMicRepo(db *sql.DB) *MicRepo { return &MicRepo{db: db} }

const micColumns = `id, owner_id, name, location, starts_at, ends_at, set_length_min, slots, slots_filled,
    waiting_kind, waiting_slots, signup_config, signup_open, checkin_open, current_order, hidden, version, created_at, updated_at`

const performerColumns = `id, mic_id, kind, name, user_id, email, phone, position, checked_in, skipped, set_complete, created_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
    Scan(dest ...any) error
}

func scanMic(s rowScanner) (model.Mic, error) {
    var (
        m            model.Mic
        location     []byte
        signupConfig []byte
        waitingKind  sql.NullString
        waitingSlots sql.NullInt64
        current      sql.NullInt64
    )
    err := s.Scan(&m.ID, &m.OwnerID, &m.Name, &location, &m.Start, &m.End, &m.SetLength, &m.Slots, &m.SlotsFilled,
        &waitingKind, &waitingSlots, &signupConfig, &m.SignupOpen, &m.CheckinOpen, &current, &m.Hide, &m.Version, &m.CreatedAt, &m.UpdatedAt)
    if err != nil {
        return model.Mic{}, err
    }
    if err := json.Unmarshal(location, &m.Location); err != nil {
        return model.Mic{}, fmt.Errorf("mic %d location: %w", m.ID, err)
    }
    if err := json.Unmarshal(signupConfig, &m.SignupConfig); err != nil {
        return model.Mic{}, fmt.Errorf("mic %d signup config: %w", m.ID, err)
    }
    // A waiting list exists only when both columns are set.
    if waitingKind.Valid && waitingSlots.Valid {
        m.WaitingList = &model.WaitingList{Kind: model.WaitingListKind(waitingKind.String), Slots: int(waitingSlots.Int64)}
    }
    if current.Valid {
        c := int(current.Int64)
        m.Current = &c
    }
    return m, nil
}

func scanPerformer(s rowScanner) (model.Performer, error) {
    var (
        p      model.Performer
        userID sql.NullInt64
    )
    err := s.Scan(&p.ID, &p.MicID, &p.Kind, &p.Name, &userID, &p.Email, &p.Phone, &p.Order,
        &p.CheckedIn, &p.Skipped, &p.SetComplete, &p.CreatedAt)
    if err != nil {
        return model.Performer{}, err
    }
    if userID.Valid {
        id := uint64(userID.Int64)
        p.UserID = &id
    }
    return p, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
    QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
    QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
    ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ListMics returns every mic ordered by start time.  Hidden mics are
// included; filtering is a service concern because owners still see
// their own.
func (r *MicRepo) ListMics(ctx context.Context) ([]model.Mic, error) {
    rows, err := r.db.QueryContext(ctx, `SELECT `+micColumns+` FROM mics ORDER BY starts_at, id`)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.Mic
    for rows.Next() {
        m, err := scanMic(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, m)
    }
    return out, rows.Err()
}

// GetMic retrieves a mic by its ID.  It returns ErrMicNotFound if there
// is no matching row.
func (r *MicRepo) GetMic(ctx context.Context, id uint64) (model.Mic, error) {
    return getMic(ctx, r.db, id, false)
}

func getMic(ctx context.Context, q querier, id uint64, lock bool) (model.Mic, error) {
    query := `SELECT ` + micColumns + ` FROM mics WHERE id = ?`
    if lock {
        // Serializes every roster change of one mic.
        query += ` FOR UPDATE`
    }
    m, err := scanMic(q.QueryRowContext(ctx, query, id))
    if errors.Is(err, sql.ErrNoRows) {
        return model.Mic{}, ErrMicNotFound
    }
    return m, err
}

// Roster returns the performers of a mic sorted by order.
func (r *MicRepo) Roster(ctx context.Context, micID uint64) (micstate.Roster, error) {
    if _, err := r.GetMic(ctx, micID); err != nil {
        return nil, err
    }
    return loadRoster(ctx, r.db, micID)
}

func loadRoster(ctx context.Context, q querier, micID uint64) (micstate.Roster, error) {
    rows, err := q.QueryContext(ctx, `SELECT `+performerColumns+` FROM performers WHERE mic_id = ? ORDER BY position, id`, micID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var ps []model.Performer
    for rows.Next() {
        p, err := scanPerformer(rows)
        if err != nil {
            return nil, err
        }
        ps = append(ps, p)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return micstate.NewRoster(ps), nil
}

// CreateMic inserts a new mic with an empty roster and returns the
// stored row, including DB defaults.
func (r *MicRepo) CreateMic(ctx context.Context, m model.Mic) (model.Mic, error) {
    location, err := json.Marshal(m.Location)
    if err != nil {
        return model.Mic{}, err
    }
    signupConfig, err := json.Marshal(m.SignupConfig)
    if err != nil {
        return model.Mic{}, err
    }
    var waitingKind, waitingSlots any
    if m.WaitingList != nil {
        waitingKind, waitingSlots = string(m.WaitingList.Kind), m.WaitingList.Slots
    }
    const q = `INSERT INTO mics (owner_id, name, location, starts_at, ends_at, set_length_min, slots,
        waiting_kind, waiting_slots, signup_config, signup_open, checkin_open, hidden)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
    res, err := r.db.ExecContext(ctx, q, m.OwnerID, m.Name, location, m.Start.UTC(), m.End.UTC(), m.SetLength, m.Slots,
        waitingKind, waitingSlots, signupConfig, m.SignupOpen, m.CheckinOpen, m.Hide)
    if err != nil {
        return model.Mic{}, err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return model.Mic{}, err
    }
    // Re-read so created_at/updated_at come from the database.
    return r.GetMic(ctx, uint64(id))
}

// Mutate locks the mic row, hands the mic and roster to fn and writes
// back whatever fn returns.  Roster rows are diffed by ID: rows missing
// from the result are deleted, known rows are updated and rows with a
// zero ID are inserted.  The transaction is committed only if every
// statement succeeds.
func (r *MicRepo) Mutate(ctx context.Context, micID uint64, fn MutateFunc) (model.Mic, micstate.Roster, error) {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return model.Mic{}, nil, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    m, err := getMic(ctx, tx, micID, true)
    if err != nil {
        return model.Mic{}, nil, err
    }
    before, err := loadRoster(ctx, tx, micID)
    if err != nil {
        return model.Mic{}, nil, err
    }

    after, err := fn(&m, before.Clone())
    if err != nil {
        return model.Mic{}, nil, err
    }
    finalize(&m, after)
    m.Version++

    if err := syncRoster(ctx, tx, micID, before, after); err != nil {
        return model.Mic{}, nil, err
    }
    if err := updateMic(ctx, tx, m); err != nil {
        return model.Mic{}, nil, err
    }
    if err := tx.Commit(); err != nil {
        return model.Mic{}, nil, err
    }
    committed = true
    return m, after, nil
}

// syncRoster writes the difference between two rosters of one mic.
func syncRoster(ctx context.Context, tx *sql.Tx, micID uint64, before, after micstate.Roster) error {
    keep := make(map[uint64]bool, len(after))
    for _, p := range after {
        if p.ID != 0 {
            keep[p.ID] = true
        }
    }
    var gone []any
    for _, p := range before {
        if !keep[p.ID] {
            gone = append(gone, p.ID)
        }
    }
    if len(gone) > 0 {
        placeholders := strings.TrimSuffix(strings.Repeat("?,", len(gone)), ",")
        q := `DELETE FROM performers WHERE mic_id = ? AND id IN (` + placeholders + `)`
        if _, err := tx.ExecContext(ctx, q, append([]any{micID}, gone...)...); err != nil {
            return err
        }
    }

    old := make(map[uint64]model.Performer, len(before))
    for _, p := range before {
        old[p.ID] = p
    }
    for i := range after {
        p := &after[i]
        p.MicID = micID
        if p.ID == 0 {
            const ins = `INSERT INTO performers (mic_id, kind, name, user_id, email, phone, position, checked_in, skipped, set_complete)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
            var userID any
            if p.UserID != nil {
                userID = *p.UserID
            }
            res, err := tx.ExecContext(ctx, ins, micID, p.Kind, p.Name, userID, p.Email, p.Phone, p.Order,
                p.CheckedIn, p.Skipped, p.SetComplete)
            if err != nil {
                return err
            }
            id, err := res.LastInsertId()
            if err != nil {
                return err
            }
            p.ID = uint64(id)
            continue
        }
        prev, ok := old[p.ID]
        if !ok {
            return fmt.Errorf("performer %d does not belong to mic %d: %w", p.ID, micID, ErrConflict)
        }
        // Untouched rows are skipped to keep the transaction short.
        if prev.Order == p.Order && prev.CheckedIn == p.CheckedIn && prev.Skipped == p.Skipped && prev.SetComplete == p.SetComplete {
            continue
        }
        const upd = `UPDATE performers SET position = ?, checked_in = ?, skipped = ?, set_complete = ? WHERE id = ? AND mic_id = ?`
        if _, err := tx.ExecContext(ctx, upd, p.Order, p.CheckedIn, p.Skipped, p.SetComplete, p.ID, micID); err != nil {
            return err
        }
    }
    return nil
}

func updateMic(ctx context.Context, tx *sql.Tx, m model.Mic) error {
    var current any
    if m.Current != nil {
        current = *m.Current
    }
    const q = `UPDATE mics SET slots_filled = ?, signup_open = ?, checkin_open = ?, current_order = ?, hidden = ?, version = ? WHERE id = ?`
    _, err := tx.ExecContext(ctx, q, m.SlotsFilled, m.SignupOpen, m.CheckinOpen, current, m.Hide, m.Version, m.ID)
    return err
}
