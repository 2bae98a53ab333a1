package conversation

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidTransition matches every rejected transition.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrSessionNotFound is returned when a transition targets an unknown user.
	ErrSessionNotFound = errors.New("session not found")
)

// RejectReason names the rule that rejected a transition.
type RejectReason string

const (
	RejectNone           RejectReason = ""
	RejectUnknownState   RejectReason = "unknown_state"
	RejectIncompleteData RejectReason = "incomplete_data"
	RejectNotConfirmed   RejectReason = "not_confirmed"
	RejectNotInFlowGraph RejectReason = "not_in_flow_graph"
)

// TransitionResult is the outcome of checking one transition.
type TransitionResult struct {
	Allowed bool
	From    State
	To      State
	Reason  RejectReason
	// Missing lists empty booking fields when Reason is RejectIncompleteData.
	Missing []string
	// Allowed successors of From, filled for flow-graph rejections.
	Successors []State
}

// Message renders the rejection as plain text. It is empty for accepted results.
func (r TransitionResult) Message() string {
	switch r.Reason {
	case RejectNone:
		return ""
	case RejectUnknownState:
		return fmt.Sprintf("unknown target state %q", r.To)
	case RejectIncompleteData:
		return "cannot confirm booking without: " + strings.Join(r.Missing, ", ")
	case RejectNotConfirmed:
		return fmt.Sprintf("cannot go to %s from %s", StateDone, r.From)
	default:
		names := make([]string, len(r.Successors))
		for i, s := range r.Successors {
			names[i] = string(s)
		}
		return fmt.Sprintf("invalid transition from %s to %s, allowed: [%s]", r.From, r.To, strings.Join(names, ", "))
	}
}

// Err converts a rejected result into a *TransitionError. It returns nil for
// accepted results.
func (r TransitionResult) Err(userID int64) error {
	if r.Allowed {
		return nil
	}
	return &TransitionError{
		UserID:  userID,
		From:    r.From,
		To:      r.To,
		Reason:  r.Reason,
		Missing: append([]string(nil), r.Missing...),
		Allowed: append([]State(nil), r.Successors...),
	}
}

// CheckTransition validates moving c to target. Rules apply in order:
// the data-completeness gate for CONFIRM_BOOKING, the DONE-only-from-
// CONFIRM_BOOKING rule, then flow-graph membership. c is never modified.
func CheckTransition(c *Context, target State) TransitionResult {
	res := TransitionResult{From: c.CurrentState, To: target}

	if !target.Valid() {
		res.Reason = RejectUnknownState
		return res
	}

	if target == StateConfirmBooking {
		if missing := c.CollectedInfo.MissingForConfirmation(); len(missing) > 0 {
			res.Reason = RejectIncompleteData
			res.Missing = missing
			return res
		}
	}

	if target == StateDone && c.CurrentState != StateConfirmBooking {
		res.Reason = RejectNotConfirmed
		return res
	}

	if !CanTransition(c.CurrentState, target) {
		res.Reason = RejectNotInFlowGraph
		res.Successors = AllowedTransitions(c.CurrentState)
		return res
	}

	res.Allowed = true
	return res
}

// TransitionError reports a rejected transition for one user.
type TransitionError struct {
	UserID  int64
	From    State
	To      State
	Reason  RejectReason
	Missing []string
	Allowed []State
}

func (e *TransitionError) Error() string {
	res := TransitionResult{From: e.From, To: e.To, Reason: e.Reason, Missing: e.Missing, Successors: e.Allowed}
	return fmt.Sprintf("user %d: %s", e.UserID, res.Message())
}

// Is makes errors.Is(err, ErrInvalidTransition) hold for every TransitionError.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
