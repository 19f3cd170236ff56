package micstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/open-mic/internal/model"
)

func perf(id uint64, order int, checkedIn, skipped, done bool) model.Performer {
	return model.Performer{ID: id, Order: order, Kind: model.PerformerAnon, CheckedIn: checkedIn, Skipped: skipped, SetComplete: done}
}

func ids(r Roster) []uint64 {
	out := make([]uint64, 0, len(r))
	for _, p := range r {
		out = append(out, p.ID)
	}
	return out
}

func TestCurrent(t *testing.T) {
	t.Run("first unfinished checked-in performer", func(t *testing.T) {
		r := NewRoster([]model.Performer{perf(2, 1, true, false, false), perf(1, 0, true, false, true)})
		cur, ok := Current(r)
		require.True(t, ok)
		assert.Equal(t, 1, cur.Order)
	})
	t.Run("waiting to check in is eligible", func(t *testing.T) {
		cur, ok := Current(NewRoster([]model.Performer{perf(7, 0, false, false, false)}))
		require.True(t, ok)
		assert.Equal(t, uint64(7), cur.ID)
	})
	t.Run("complete performer is never current", func(t *testing.T) {
		_, ok := Current(NewRoster([]model.Performer{perf(1, 0, true, false, true)}))
		assert.False(t, ok)
		assert.Nil(t, CurrentOrder(NewRoster([]model.Performer{perf(1, 0, true, false, true)})))
	})
	t.Run("skipped no-show is passed over", func(t *testing.T) {
		r := NewRoster([]model.Performer{perf(1, 0, false, true, false), perf(2, 1, false, false, false)})
		cur, ok := Current(r)
		require.True(t, ok)
		assert.Equal(t, uint64(2), cur.ID)
	})
	t.Run("stable on unchanged roster", func(t *testing.T) {
		r := NewRoster([]model.Performer{perf(1, 0, true, false, true), perf(2, 3, false, true, false), perf(3, 5, true, false, false)})
		a, _ := Current(r)
		b, _ := Current(r)
		assert.Equal(t, a, b)
		assert.Equal(t, 5, *CurrentOrder(r))
	})
	t.Run("empty roster", func(t *testing.T) {
		_, ok := Current(nil)
		assert.False(t, ok)
	})
}

func TestCheckIn(t *testing.T) {
	r := NewRoster([]model.Performer{perf(1, 0, false, false, false), perf(2, 1, true, false, true)})
	require.NoError(t, CheckIn(r, 1))
	assert.True(t, r[0].CheckedIn)
	assert.ErrorIs(t, CheckIn(r, 1), ErrAlreadyCheckedIn)
	assert.ErrorIs(t, CheckIn(r, 2), ErrSetComplete)
	assert.ErrorIs(t, CheckIn(r, 99), ErrPerformerNotFound)
}

func TestSkipNoShow(t *testing.T) {
	r := NewRoster([]model.Performer{perf(1, 0, false, false, false), perf(2, 1, true, false, false)})
	r, err := Skip(r, 1, false, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, ids(r), "a no-show keeps their place")
	assert.True(t, r[0].Skipped)

	cur, _ := Current(r)
	assert.Equal(t, uint64(2), cur.ID)

	_, err = Skip(r, 1, false, 10)
	assert.ErrorIs(t, err, ErrAlreadySkipped)
}

func TestSkipCheckedInMovesToEndOfLineup(t *testing.T) {
	r := NewRoster([]model.Performer{perf(1, 0, true, false, false), perf(2, 1, true, false, false), perf(3, 2, false, false, false)})
	r, err := Skip(r, 1, false, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 3, 1}, ids(r))
	assert.Equal(t, []int{0, 1, 2}, []int{r[0].Order, r[1].Order, r[2].Order})

	moved, _ := r.Find(1)
	assert.True(t, moved.CheckedIn, "skip keeps the check-in")
	assert.True(t, moved.Skipped)
	cur, _ := Current(r)
	assert.Equal(t, uint64(2), cur.ID)
}

func TestSkipStaysInsidePartition(t *testing.T) {
	// slots=2: 1 and 2 are active, 3 and 4 wait.
	r := NewRoster([]model.Performer{
		perf(1, 0, true, false, false), perf(2, 1, false, false, false),
		perf(3, 2, true, false, false), perf(4, 3, false, false, false),
	})
	r, err := Skip(r, 1, false, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 1, 3, 4}, ids(r))
	assert.Equal(t, []uint64{2, 1}, ids(r.Active(2)), "a skip never hands the slot to the waiting list")

	r, err = Skip(r, 3, false, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 1, 4, 3}, ids(r))
	assert.Equal(t, []uint64{4, 3}, ids(r.Waiting(2)))

	// Last of their partition: nowhere to go.
	r2 := NewRoster([]model.Performer{perf(1, 0, false, false, false), perf(2, 1, true, false, false), perf(3, 2, false, false, false)})
	r2, err = Skip(r2, 2, false, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, ids(r2))
	assert.True(t, r2[1].Skipped)
}

func TestSkipAsMissedSet(t *testing.T) {
	r := NewRoster([]model.Performer{perf(1, 0, true, false, false), perf(2, 1, false, false, false)})
	r, err := Skip(r, 1, true, 10)
	require.NoError(t, err)
	assert.True(t, r[0].SetComplete)
	_, err = Skip(r, 1, false, 10)
	assert.ErrorIs(t, err, ErrSetComplete)
}

func TestCompleteSet(t *testing.T) {
	r := NewRoster([]model.Performer{perf(1, 0, false, false, false), perf(2, 1, true, false, false)})
	assert.ErrorIs(t, CompleteSet(r, 1), ErrNotCheckedIn)
	require.NoError(t, CompleteSet(r, 2))
	assert.ErrorIs(t, CompleteSet(r, 2), ErrSetComplete)
	assert.ErrorIs(t, CheckIn(r, 2), ErrSetComplete, "complete is terminal")
}

func TestSkipThenSetNext(t *testing.T) {
	// 1 is up and checked in, 2 and 3 are waiting behind.
	r := NewRoster([]model.Performer{perf(1, 0, true, false, false), perf(2, 1, true, false, false), perf(3, 2, true, false, false)})
	r, err := Skip(r, 1, false, 10)
	require.NoError(t, err)

	cur, _ := Current(r)
	require.Equal(t, uint64(2), cur.ID)
	require.NoError(t, CanSetNext(r, 1))

	curID := cur.ID
	r, err = SetNext(r, &curID, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 1, 3}, ids(r))
	assert.False(t, r[1].Skipped)

	require.NoError(t, CompleteSet(r, 2))
	cur, _ = Current(r)
	assert.Equal(t, uint64(1), cur.ID, "recalled performer goes before later entries")
}

func TestSetNextGuards(t *testing.T) {
	r := NewRoster([]model.Performer{perf(1, 0, true, false, false), perf(2, 1, false, false, false), perf(3, 2, true, true, true)})
	assert.ErrorIs(t, CanSetNext(r, 2), ErrNotSkipped)
	assert.ErrorIs(t, CanSetNext(r, 3), ErrSetComplete)
	assert.ErrorIs(t, CanSetNext(r, 42), ErrPerformerNotFound)

	// a no-show who arrives late is eligible again at their original order
	r = NewRoster([]model.Performer{perf(1, 0, false, true, false), perf(2, 1, false, false, false)})
	require.NoError(t, CheckIn(r, 1))
	assert.ErrorIs(t, CanSetNext(r, 1), ErrAlreadyCurrent)
}

func TestSetNextWithoutCurrent(t *testing.T) {
	r := NewRoster([]model.Performer{perf(1, 0, true, false, true), perf(2, 1, true, false, true), perf(3, 2, false, true, false)})
	_, ok := Current(r)
	require.False(t, ok)

	r, err := SetNext(r, nil, 3)
	require.NoError(t, err)
	cur, ok := Current(r)
	require.True(t, ok)
	assert.Equal(t, uint64(3), cur.ID)
}
