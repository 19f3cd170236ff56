package micstate

import "github.com/iliyamo/open-mic/internal/model"

// SignupState is the availability of a mic for new performers.
type SignupState string

const (
	SignupOpen    SignupState = "open"
	SignupWaiting SignupState = "waiting"
	SignupFull    SignupState = "full"
	SignupClosed  SignupState = "closed"
)

// ResolveSignupState derives the signup availability of a mic from its
// slot counts and waiting list.  Rules apply in order: closed signup wins,
// then free slots, then free waiting-list positions.  A mic with zero
// slots is never open.
func ResolveSignupState(m model.Mic) SignupState {
	if !m.SignupOpen {
		return SignupClosed
	}
	if m.SlotsFilled < m.Slots {
		return SignupOpen
	}
	if m.WaitingList != nil && m.WaitingList.Slots+m.Slots > m.SlotsFilled {
		return SignupWaiting
	}
	return SignupFull
}

// OpenSlots is the number of performing slots still free.
func OpenSlots(m model.Mic) int {
	if n := m.Slots - m.SlotsFilled; n > 0 {
		return n
	}
	return 0
}

// OpenWaitingSlots is the number of waiting-list positions still free.
func OpenWaitingSlots(m model.Mic) int {
	if m.WaitingList == nil {
		return 0
	}
	if n := m.WaitingList.Slots + m.Slots - m.SlotsFilled; n > 0 {
		return min(n, m.WaitingList.Slots)
	}
	return 0
}
