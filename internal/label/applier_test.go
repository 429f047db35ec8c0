package label

import "testing"

func intPtr(v int) *int { return &v }

func TestApplyClipBatch(t *testing.T) {
	tracks := map[int64]ClipTracks{
		1: {State: StateInitial, Admin: StateGoldPos},
		2: {State: StateMaybePos, Admin: StateInitial},
		3: {State: StateDiscord, Admin: StateInitial},
		4: {State: StateStrongPos, Admin: StateInitial}, // already settled
	}
	responses := []ClipResponse{{1, 1}, {2, 1}, {3, 0}, {4, 1}}

	res := ApplyClipBatch(tracks, responses, RoleAmateur, intPtr(3), 3)

	if res.ScoreDelta != 3 || res.RawScoreDelta != 3 {
		t.Fatalf("deltas=(%d,%d), want (3,3)", res.ScoreDelta, res.RawScoreDelta)
	}
	want := map[int64]State{
		1: StateMaybePos,
		2: StateStrongPos,
		3: StateWeakNeg,
	}
	if len(res.Changes) != len(want) {
		t.Fatalf("got %d changes, want %d", len(res.Changes), len(want))
	}
	for _, ch := range res.Changes {
		if ch.AdminTrack {
			t.Fatalf("citizen change landed on admin track for video %d", ch.VideoID)
		}
		if want[ch.VideoID] != ch.To {
			t.Fatalf("video %d moved to %d, want %d", ch.VideoID, ch.To, want[ch.VideoID])
		}
	}
	// Voting on a settled clip is undefined, not an error.
	if len(res.Skipped) != 1 || res.Skipped[0] != 4 {
		t.Fatalf("skipped=%v, want [4]", res.Skipped)
	}
}

func TestApplyClipBatchGateFailure(t *testing.T) {
	tracks := map[int64]ClipTracks{
		1: {State: StateInitial, Admin: StateGoldPos},
		2: {State: StateInitial, Admin: StateInitial},
	}
	responses := []ClipResponse{{1, 0}, {2, 1}}

	res := ApplyClipBatch(tracks, responses, RoleLayperson, intPtr(0), 1)

	if len(res.Changes) != 0 || len(res.Skipped) != 0 {
		t.Fatalf("gate failure must suppress all changes, got %+v", res)
	}
	if res.ScoreDelta != 0 {
		t.Fatalf("score delta %d, want 0", res.ScoreDelta)
	}
	// The raw score still counts the returned non-gold items.
	if res.RawScoreDelta != 1 {
		t.Fatalf("raw score delta %d, want 1", res.RawScoreDelta)
	}
}

func TestApplyClipBatchResearcher(t *testing.T) {
	tracks := map[int64]ClipTracks{
		1: {State: StateMaybePos, Admin: StateInitial},
		2: {State: StateInitial, Admin: StateDiscard},
	}
	responses := []ClipResponse{{1, 23}, {2, -1}}

	res := ApplyClipBatch(tracks, responses, RoleResearcher, nil, 2)

	if res.ScoreDelta != 0 || res.RawScoreDelta != 0 {
		t.Fatalf("researcher batches earn no credit, got (%d,%d)", res.ScoreDelta, res.RawScoreDelta)
	}
	if len(res.Changes) != 2 {
		t.Fatalf("got %d changes, want 2", len(res.Changes))
	}
	for _, ch := range res.Changes {
		if !ch.AdminTrack {
			t.Fatalf("researcher change for video %d must target the admin track", ch.VideoID)
		}
	}
}

func TestApplyMaskBatch(t *testing.T) {
	box := &Box{X: 5, Y: 5, W: 20, H: 20}
	tracks := map[int64]MaskTracks{
		1: {State: MaskInitial, Admin: MaskGoldRemoved},
		2: {State: MaskOneEdited, Admin: MaskInitial},
		3: {State: MaskDoneGood, Admin: MaskInitial}, // terminal
	}
	responses := []MaskResponse{
		{1, MaskSubmission{Removed: true}},
		{2, MaskSubmission{Box: box}},
		{3, MaskSubmission{}},
	}

	res := ApplyMaskBatch(tracks, responses, RoleLayperson, intPtr(2), 2)

	if res.ScoreDelta != 2 || res.RawScoreDelta != 2 {
		t.Fatalf("deltas=(%d,%d), want (2,2)", res.ScoreDelta, res.RawScoreDelta)
	}
	// Every classifiable submission leaves a record, even the one whose
	// transition was undefined.
	if len(res.Records) != 3 {
		t.Fatalf("got %d records, want 3", len(res.Records))
	}
	if len(res.Changes) != 2 {
		t.Fatalf("got %d changes, want 2", len(res.Changes))
	}
	for _, ch := range res.Changes {
		switch ch.SegmentationID {
		case 1:
			if ch.To != MaskOneRemoved {
				t.Fatalf("mask 1 moved to %d, want %d", ch.To, MaskOneRemoved)
			}
		case 2:
			if ch.To != MaskDoneEdited {
				t.Fatalf("mask 2 moved to %d, want %d", ch.To, MaskDoneEdited)
			}
		default:
			t.Fatalf("unexpected change for mask %d", ch.SegmentationID)
		}
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != 3 {
		t.Fatalf("skipped=%v, want [3]", res.Skipped)
	}
}

func TestApplyMaskBatchGateFailure(t *testing.T) {
	tracks := map[int64]MaskTracks{
		1: {State: MaskInitial, Admin: MaskInitial},
	}
	responses := []MaskResponse{{1, MaskSubmission{}}}

	res := ApplyMaskBatch(tracks, responses, RoleLayperson, intPtr(0), 1)

	if len(res.Records) != 0 || len(res.Changes) != 0 {
		t.Fatalf("gate failure must suppress records and changes, got %+v", res)
	}
	if res.RawScoreDelta != 1 {
		t.Fatalf("raw score delta %d, want 1", res.RawScoreDelta)
	}
}
