// Package conversation holds the booking conversation state machine and the
// in-memory session store.
//
// Invariants:
// - At most one session exists per internal user id.
// - A rejected transition leaves the stored session unchanged.
// - Entering CONFIRM_BOOKING requires name, phone, doctor id, date and time.
// - DONE is only reachable from CONFIRM_BOOKING.
// - Unchecked state overwrites go through ForceTransition or Context.ForceState.
//
// Usage:
//
//	store := conversation.NewStore()
//	store.Create(42, "telegram", "ru")
//	if _, err := store.Transition(42, conversation.StateWaitingName); err != nil {
//		var terr *conversation.TransitionError
//		_ = errors.As(err, &terr)
//	}
package conversation
