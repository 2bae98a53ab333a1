package conversation

import (
	"fmt"
	"strings"
)

// State is a named node of the conversation flow graph.
type State string

// Client booking flow.
const (
	StateStart               State = "START"
	StateWaitingName         State = "WAITING_NAME"
	StateWaitingPhone        State = "WAITING_PHONE"
	StateWaitingDoctorChoice State = "WAITING_DOCTOR_CHOICE"
	StateWaitingDate         State = "WAITING_DATE"
	StateWaitingTime         State = "WAITING_TIME"
	StateConfirmBooking      State = "CONFIRM_BOOKING"
	StateDone                State = "DONE"
)

// Shared states.
const (
	StateAdminMenu     State = "ADMIN_MENU"
	StateErrorFallback State = "ERROR_FALLBACK"
)

// Administrative sub-flows.
const (
	StateAdminAddSpecialistName           State = "ADMIN_ADD_SPECIALIST_NAME"
	StateAdminAddSpecialistSpecialization State = "ADMIN_ADD_SPECIALIST_SPECIALIZATION"
	StateAdminAddSpecialistPhone          State = "ADMIN_ADD_SPECIALIST_PHONE"
	StateAdminAddSpecialistEmail          State = "ADMIN_ADD_SPECIALIST_EMAIL"
	StateAdminAddSpecialistConfirm        State = "ADMIN_ADD_SPECIALIST_CONFIRM"

	StateAdminEditSpecialistSelect State = "ADMIN_EDIT_SPECIALIST_SELECT"
	StateAdminEditSpecialistField  State = "ADMIN_EDIT_SPECIALIST_FIELD"
	StateAdminEditSpecialistValue  State = "ADMIN_EDIT_SPECIALIST_VALUE"

	StateAdminDeleteSpecialistSelect  State = "ADMIN_DELETE_SPECIALIST_SELECT"
	StateAdminDeleteSpecialistConfirm State = "ADMIN_DELETE_SPECIALIST_CONFIRM"

	StateAdminSetDayOffSpecialist State = "ADMIN_SET_DAY_OFF_SPECIALIST"
	StateAdminSetDayOffDate       State = "ADMIN_SET_DAY_OFF_DATE"
	StateAdminSetDayOffReason     State = "ADMIN_SET_DAY_OFF_REASON"
	StateAdminSetDayOffConfirm    State = "ADMIN_SET_DAY_OFF_CONFIRM"
)

// allStates lists every state in declaration order.
var allStates = []State{
	StateStart,
	StateWaitingName,
	StateWaitingPhone,
	StateWaitingDoctorChoice,
	StateWaitingDate,
	StateWaitingTime,
	StateConfirmBooking,
	StateDone,
	StateAdminMenu,
	StateErrorFallback,
	StateAdminAddSpecialistName,
	StateAdminAddSpecialistSpecialization,
	StateAdminAddSpecialistPhone,
	StateAdminAddSpecialistEmail,
	StateAdminAddSpecialistConfirm,
	StateAdminEditSpecialistSelect,
	StateAdminEditSpecialistField,
	StateAdminEditSpecialistValue,
	StateAdminDeleteSpecialistSelect,
	StateAdminDeleteSpecialistConfirm,
	StateAdminSetDayOffSpecialist,
	StateAdminSetDayOffDate,
	StateAdminSetDayOffReason,
	StateAdminSetDayOffConfirm,
}

// flowGraph maps each state to the states it may move to under validation.
var flowGraph = map[State][]State{
	StateStart:               {StateWaitingName, StateAdminMenu, StateErrorFallback},
	StateWaitingName:         {StateWaitingPhone, StateErrorFallback},
	StateWaitingPhone:        {StateWaitingDoctorChoice, StateErrorFallback},
	StateWaitingDoctorChoice: {StateWaitingDate, StateErrorFallback},
	StateWaitingDate:         {StateWaitingTime, StateErrorFallback},
	StateWaitingTime:         {StateConfirmBooking, StateErrorFallback},
	StateConfirmBooking:      {StateDone, StateWaitingDate, StateErrorFallback},
	StateDone:                {StateStart, StateErrorFallback},

	StateAdminMenu: {
		StateStart,
		StateAdminAddSpecialistName,
		StateAdminEditSpecialistSelect,
		StateAdminDeleteSpecialistSelect,
		StateAdminSetDayOffSpecialist,
		StateErrorFallback,
	},

	StateAdminAddSpecialistName:           {StateAdminAddSpecialistSpecialization, StateAdminMenu, StateErrorFallback},
	StateAdminAddSpecialistSpecialization: {StateAdminAddSpecialistPhone, StateAdminMenu, StateErrorFallback},
	StateAdminAddSpecialistPhone:          {StateAdminAddSpecialistEmail, StateAdminMenu, StateErrorFallback},
	StateAdminAddSpecialistEmail:          {StateAdminAddSpecialistConfirm, StateAdminMenu, StateErrorFallback},
	StateAdminAddSpecialistConfirm:        {StateAdminMenu, StateErrorFallback},

	StateAdminEditSpecialistSelect: {StateAdminEditSpecialistField, StateAdminMenu, StateErrorFallback},
	StateAdminEditSpecialistField:  {StateAdminEditSpecialistValue, StateAdminMenu, StateErrorFallback},
	StateAdminEditSpecialistValue:  {StateAdminMenu, StateErrorFallback},

	StateAdminDeleteSpecialistSelect:  {StateAdminDeleteSpecialistConfirm, StateAdminMenu, StateErrorFallback},
	StateAdminDeleteSpecialistConfirm: {StateAdminMenu, StateErrorFallback},

	StateAdminSetDayOffSpecialist: {StateAdminSetDayOffDate, StateAdminMenu, StateErrorFallback},
	StateAdminSetDayOffDate:       {StateAdminSetDayOffReason, StateAdminMenu, StateErrorFallback},
	StateAdminSetDayOffReason:     {StateAdminSetDayOffConfirm, StateAdminMenu, StateErrorFallback},
	StateAdminSetDayOffConfirm:    {StateAdminMenu, StateErrorFallback},

	StateErrorFallback: {StateStart, StateAdminMenu},
}

// States returns every known state.
func States() []State {
	out := make([]State, len(allStates))
	copy(out, allStates)
	return out
}

// ParseState resolves a state by its name. Matching is case-insensitive.
func ParseState(name string) (State, error) {
	candidate := State(strings.ToUpper(strings.TrimSpace(name)))
	if candidate.Valid() {
		return candidate, nil
	}
	return "", fmt.Errorf("unknown conversation state %q", name)
}

// Valid reports whether s is a member of the state enumeration.
func (s State) Valid() bool {
	_, ok := flowGraph[s]
	return ok
}

// IsAdmin reports whether s belongs to the administrative flow.
func (s State) IsAdmin() bool {
	return strings.HasPrefix(string(s), "ADMIN_")
}

func (s State) String() string {
	return string(s)
}

// AllowedTransitions returns the successors of s in the flow graph.
func AllowedTransitions(s State) []State {
	next := flowGraph[s]
	out := make([]State, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether the flow graph has an edge from -> to.
// It does not apply the data-completeness gate.
func CanTransition(from, to State) bool {
	for _, s := range flowGraph[from] {
		if s == to {
			return true
		}
	}
	return false
}
