package queue

import (
    "encoding/json"
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestFormatActivity(t *testing.T) {
    cur := 2
    ev := ActivityEvent{
        Action: ActionCheckIn, MicID: 7, MicName: "Late Show", ActorID: 3,
        PerformerID: 11, Performer: "Ann", SlotsFilled: 4, Current: &cur,
        At: time.Date(2026, 3, 1, 21, 0, 0, 0, time.UTC),
    }
    assert.Equal(t,
        `[2026-03-01T21:00:00Z] performer.checkin | mic_id=7 | mic="Late Show" | actor_id=3 | performer_id=11 | performer="Ann" | slots_filled=4 | current=2`+"\n",
        FormatActivity(ev))

    ev.PerformerID, ev.Current = 0, nil
    ev.Action = ActionSignupState
    assert.Equal(t,
        `[2026-03-01T21:00:00Z] mic.signup_state | mic_id=7 | mic="Late Show" | actor_id=3 | slots_filled=4 | current=none`+"\n",
        FormatActivity(ev))
}

func TestHandleMessageAppends(t *testing.T) {
    path := filepath.Join(t.TempDir(), "nested", "activity.log")
    body, err := json.Marshal(ActivityEvent{Action: ActionSignup, MicID: 1, At: time.Unix(0, 0)})
    require.NoError(t, err)

    require.NoError(t, handleMessage(path, body))
    require.NoError(t, handleMessage(path, body))

    data, err := os.ReadFile(path)
    require.NoError(t, err)
    assert.Equal(t, 2, countLines(string(data)))

    assert.Error(t, handleMessage(path, []byte("{not json")))
}

func countLines(s string) int {
    n := 0
    for _, r := range s {
        if r == '\n' {
            n++
        }
    }
    return n
}
