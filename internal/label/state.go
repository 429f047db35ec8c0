// Package label implements the consensus protocol for crowdsourced smoke
// labeling: the per-item state machines, the batch sampler, and the
// gold-standard quality gate. Everything in this package is a pure
// computation over snapshots; persistence belongs to the repository layer.
package label

// Role is the client type of a rater, stored in the users table.
type Role int

const (
	RoleResearcher Role = 0
	RoleExpert     Role = 1
	RoleAmateur    Role = 2
	RoleLayperson  Role = 3
	RoleBanned     Role = -1
)

// IsCitizen reports whether the role participates in the citizen consensus
// track. Researchers write the admin track; banned users write nothing.
func (r Role) IsCitizen() bool {
	return r == RoleExpert || r == RoleAmateur || r == RoleLayperson
}

// State is the consensus state of a video clip label. The integer values are
// the persisted encodings inherited from the first deployment (bit patterns:
// useful / discord / polarity bits), kept so that existing rows and the
// dashboard keep working. Code must only ever use the named constants.
type State int

const (
	// StateInitial means no usable data yet.
	StateInitial State = -1
	// StateDiscard marks a clip rejected by a researcher.
	StateDiscard State = -2
	// One citizen vote so far.
	StateMaybePos State = 5 // 0b101
	StateMaybeNeg State = 4 // 0b100
	// Two citizen votes that disagreed.
	StateDiscord State = 3 // 0b11
	// Terminal states reached by citizen agreement or researcher decree.
	StateStrongPos State = 23 // 0b10111
	StateStrongNeg State = 16 // 0b10000
	StateWeakPos   State = 19 // 0b10011
	StateWeakNeg   State = 20 // 0b10100
	// Legacy expert-verified terminals. No transition produces them anymore,
	// but old rows still carry the values, so queries must recognize them.
	StateMediumPos State = 15 // 0b1111
	StateMediumNeg State = 12 // 0b1100
	// Gold standards, set only by researchers on the admin track.
	StateGoldPos State = 47 // 0b101111
	StateGoldNeg State = 32 // 0b100000
)

// Vote is a binary smoke judgment from the front end.
type Vote int

const (
	VoteNeg Vote = 0
	VotePos Vote = 1
)

// PosStates and friends are the query sets used by the label listing
// endpoints and by the sampler's exclusion rules.
var (
	PosStates     = []State{StateStrongPos, StateMediumPos, StateWeakPos}
	NegStates     = []State{StateStrongNeg, StateMediumNeg, StateWeakNeg}
	GoldPosStates = []State{StateGoldPos}
	GoldNegStates = []State{StateGoldNeg}
	GoldStates    = []State{StateGoldPos, StateGoldNeg}
	PartialStates = []State{StateDiscord, StateMaybeNeg, StateMaybePos}
	BadStates     = []State{StateDiscard}
)

// TerminalAdminStates lists every admin-track value that settles a clip for
// good: once a researcher put the clip in one of these, citizens are not
// asked to label it again.
var TerminalAdminStates = []State{
	StateGoldPos, StateGoldNeg,
	StateStrongPos, StateStrongNeg, StateWeakPos, StateWeakNeg,
	StateMediumPos, StateMediumNeg,
	StateDiscard,
}

// IsTerminal reports whether s accepts no further citizen vote.
func (s State) IsTerminal() bool {
	switch s {
	case StateInitial, StateMaybePos, StateMaybeNeg, StateDiscord:
		return false
	}
	return true
}

// Next runs the binary consensus state machine.
//
// For researchers the raw submitted value jumps directly to a terminal
// admin-track state regardless of the current one: the values of the
// terminal states map to themselves, a plain 1/0 maps to strong pos/neg,
// -2 discards and -1 resets. For citizen tiers the transition is only
// defined from the four non-terminal states; the second agreeing vote
// promotes to the strong terminal, a disagreement moves to discord, and the
// third vote settles discord on the weak terminal of its own polarity.
//
// The boolean result is false when no transition is defined for the input.
// Callers must not treat that as a state; the item stays untouched and the
// event is surfaced as a warning.
func Next(s State, raw int, role Role) (State, bool) {
	if role == RoleResearcher {
		switch State(raw) {
		case StateStrongPos, StateStrongNeg, StateWeakPos, StateWeakNeg,
			StateGoldPos, StateGoldNeg:
			return State(raw), true
		case StateDiscard:
			return StateDiscard, true
		case StateInitial:
			return StateInitial, true
		}
		switch Vote(raw) {
		case VotePos:
			return StateStrongPos, true
		case VoteNeg:
			return StateStrongNeg, true
		}
		return 0, false
	}
	if !role.IsCitizen() {
		return 0, false
	}
	v := Vote(raw)
	if v != VotePos && v != VoteNeg {
		return 0, false
	}
	switch s {
	case StateInitial:
		if v == VotePos {
			return StateMaybePos, true
		}
		return StateMaybeNeg, true
	case StateMaybePos:
		if v == VotePos {
			return StateStrongPos, true
		}
		return StateDiscord, true
	case StateMaybeNeg:
		if v == VotePos {
			return StateDiscord, true
		}
		return StateStrongNeg, true
	case StateDiscord:
		if v == VotePos {
			return StateWeakPos, true
		}
		return StateWeakNeg, true
	}
	return 0, false
}
