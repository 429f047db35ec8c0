package label

// FeedbackCode classifies one rater submission for a segmentation mask.
// The values are persisted in the segmentation_feedback table.
type FeedbackCode int

const (
	// Citizen tier.
	FeedbackGood    FeedbackCode = 0
	FeedbackEdited  FeedbackCode = 1
	FeedbackRemoved FeedbackCode = 2
	// Researcher tier.
	FeedbackResearcherGood    FeedbackCode = 3
	FeedbackResearcherEdited  FeedbackCode = 4
	FeedbackResearcherRemoved FeedbackCode = 5
	// Gold standards, researcher with the gold flag only.
	FeedbackGoldGood    FeedbackCode = 16
	FeedbackGoldEdited  FeedbackCode = 17
	FeedbackGoldRemoved FeedbackCode = 18
	// Sentinels, researcher only.
	FeedbackReset   FeedbackCode = -1
	FeedbackDiscard FeedbackCode = -2
)

// IsResearcherCode reports whether the code was produced by a researcher.
// The dashboard uses this to show only the latest researcher decision.
func (c FeedbackCode) IsResearcherCode() bool {
	switch c {
	case FeedbackResearcherGood, FeedbackResearcherEdited, FeedbackResearcherRemoved,
		FeedbackGoldGood, FeedbackGoldEdited, FeedbackGoldRemoved,
		FeedbackReset, FeedbackDiscard:
		return true
	}
	return false
}

// MaskSubmission is the raw payload a rater returns for one mask. Exactly
// one of the sentinel flags may be set; otherwise Box carries an edit, and a
// nil Box with no flags confirms the proposed box as-is. "Removed", "reset"
// and "discard" are deliberately distinct shapes so they can never be
// conflated on the wire.
type MaskSubmission struct {
	Box     *Box `json:"box,omitempty"`
	Removed bool `json:"removed,omitempty"`
	Reset   bool `json:"reset,omitempty"`
	Discard bool `json:"discard,omitempty"`
}

// Classify maps a raw mask submission to its feedback code. Gold codes are
// only reachable for researchers submitting with the gold flag; the reset
// and discard sentinels are researcher-only. The boolean result is false
// when the payload is not expressible for the given role.
func Classify(sub MaskSubmission, role Role, gold bool) (FeedbackCode, bool) {
	if role == RoleResearcher {
		switch {
		case sub.Discard:
			return FeedbackDiscard, true
		case sub.Reset:
			return FeedbackReset, true
		case sub.Removed:
			if gold {
				return FeedbackGoldRemoved, true
			}
			return FeedbackResearcherRemoved, true
		case sub.Box != nil:
			if gold {
				return FeedbackGoldEdited, true
			}
			return FeedbackResearcherEdited, true
		default:
			if gold {
				return FeedbackGoldGood, true
			}
			return FeedbackResearcherGood, true
		}
	}
	if !role.IsCitizen() || gold || sub.Reset || sub.Discard {
		return 0, false
	}
	switch {
	case sub.Removed:
		return FeedbackRemoved, true
	case sub.Box != nil:
		return FeedbackEdited, true
	default:
		return FeedbackGood, true
	}
}

// MaskState is the consensus state of a segmentation mask. The citizen track
// walks Initial -> one-vote -> (two-agree terminal | two-disagree) ->
// terminal; the admin track only ever holds Initial, Discard, the researcher
// terminals, and the gold states. Both tracks live in their own column, so a
// single closed enumeration covers them without risk of mixing.
type MaskState int

const (
	MaskInitial MaskState = -1
	MaskDiscard MaskState = -2

	// Admin track: researcher decisions, values shared with the matching
	// feedback codes.
	MaskResearcherGood    MaskState = 3
	MaskResearcherEdited  MaskState = 4
	MaskResearcherRemoved MaskState = 5
	MaskGoldGood          MaskState = 16
	MaskGoldEdited        MaskState = 17
	MaskGoldRemoved       MaskState = 18

	// Citizen track: one vote recorded.
	MaskOneGood    MaskState = 10
	MaskOneEdited  MaskState = 11
	MaskOneRemoved MaskState = 12

	// Citizen track: two votes that disagreed.
	MaskDiscordGoodEdited    MaskState = 20
	MaskDiscordGoodRemoved   MaskState = 21
	MaskDiscordEditedRemoved MaskState = 22

	// Citizen track terminals.
	MaskDoneGood    MaskState = 30
	MaskDoneEdited  MaskState = 31
	MaskDoneRemoved MaskState = 32
)

// Query sets for the mask listing endpoints and the sampler exclusions.
var (
	MaskPosStates     = []MaskState{MaskDoneGood, MaskDoneEdited}
	MaskNegStates     = []MaskState{MaskDoneRemoved}
	MaskGoldStates    = []MaskState{MaskGoldGood, MaskGoldEdited, MaskGoldRemoved}
	MaskPartialStates = []MaskState{
		MaskOneGood, MaskOneEdited, MaskOneRemoved,
		MaskDiscordGoodEdited, MaskDiscordGoodRemoved, MaskDiscordEditedRemoved,
	}
	MaskBadStates = []MaskState{MaskDiscard}
)

// TerminalAdminMaskStates lists every admin-track value that settles a mask:
// researcher-labeled or gold masks are never re-issued to citizens.
var TerminalAdminMaskStates = []MaskState{
	MaskResearcherGood, MaskResearcherEdited, MaskResearcherRemoved,
	MaskGoldGood, MaskGoldEdited, MaskGoldRemoved,
	MaskDiscard,
}

// IsTerminal reports whether s accepts no further citizen feedback.
func (s MaskState) IsTerminal() bool {
	switch s {
	case MaskInitial,
		MaskOneGood, MaskOneEdited, MaskOneRemoved,
		MaskDiscordGoodEdited, MaskDiscordGoodRemoved, MaskDiscordEditedRemoved:
		return false
	}
	return true
}

// verdict collapses a feedback code to the three-way citizen judgment.
type verdict int

const (
	verdictGood verdict = iota
	verdictEdited
	verdictRemoved
	verdictNone
)

func codeVerdict(c FeedbackCode) verdict {
	switch c {
	case FeedbackGood:
		return verdictGood
	case FeedbackEdited:
		return verdictEdited
	case FeedbackRemoved:
		return verdictRemoved
	}
	return verdictNone
}

// NextMaskState runs the segmentation consensus state machine.
//
// Researcher codes jump unconditionally to the matching admin-track state.
// Citizen codes walk the three-vote graph: the first vote lands on a
// one-vote state, an agreeing second vote freezes the two-agree terminal, a
// disagreeing one moves to the matching discord state, and the third vote
// settles on the majority outcome. A 1-1-1 split resolves to DoneEdited by
// convention (the mask at least needs another look). Terminal states accept
// nothing; the boolean result is false for every undefined input.
func NextMaskState(s MaskState, code FeedbackCode, role Role) (MaskState, bool) {
	if role == RoleResearcher {
		switch code {
		case FeedbackResearcherGood:
			return MaskResearcherGood, true
		case FeedbackResearcherEdited:
			return MaskResearcherEdited, true
		case FeedbackResearcherRemoved:
			return MaskResearcherRemoved, true
		case FeedbackGoldGood:
			return MaskGoldGood, true
		case FeedbackGoldEdited:
			return MaskGoldEdited, true
		case FeedbackGoldRemoved:
			return MaskGoldRemoved, true
		case FeedbackReset:
			return MaskInitial, true
		case FeedbackDiscard:
			return MaskDiscard, true
		}
		return 0, false
	}
	if !role.IsCitizen() {
		return 0, false
	}
	v := codeVerdict(code)
	if v == verdictNone {
		return 0, false
	}
	switch s {
	case MaskInitial:
		switch v {
		case verdictGood:
			return MaskOneGood, true
		case verdictEdited:
			return MaskOneEdited, true
		case verdictRemoved:
			return MaskOneRemoved, true
		}
	case MaskOneGood:
		switch v {
		case verdictGood:
			return MaskDoneGood, true
		case verdictEdited:
			return MaskDiscordGoodEdited, true
		case verdictRemoved:
			return MaskDiscordGoodRemoved, true
		}
	case MaskOneEdited:
		switch v {
		case verdictGood:
			return MaskDiscordGoodEdited, true
		case verdictEdited:
			return MaskDoneEdited, true
		case verdictRemoved:
			return MaskDiscordEditedRemoved, true
		}
	case MaskOneRemoved:
		switch v {
		case verdictGood:
			return MaskDiscordGoodRemoved, true
		case verdictEdited:
			return MaskDiscordEditedRemoved, true
		case verdictRemoved:
			return MaskDoneRemoved, true
		}
	case MaskDiscordGoodEdited:
		switch v {
		case verdictGood:
			return MaskDoneGood, true
		case verdictEdited:
			return MaskDoneEdited, true
		case verdictRemoved:
			// 1-1-1 split, settle on needs-editing.
			return MaskDoneEdited, true
		}
	case MaskDiscordGoodRemoved:
		switch v {
		case verdictGood:
			return MaskDoneGood, true
		case verdictRemoved:
			return MaskDoneRemoved, true
		case verdictEdited:
			return MaskDoneEdited, true
		}
	case MaskDiscordEditedRemoved:
		switch v {
		case verdictEdited:
			return MaskDoneEdited, true
		case verdictRemoved:
			return MaskDoneRemoved, true
		case verdictGood:
			return MaskDoneEdited, true
		}
	}
	return 0, false
}
