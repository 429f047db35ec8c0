package label

// ClipResponse is one returned judgment for a clip in a batch. Value is the
// raw submitted integer: 0/1 from citizens, possibly a full state value from
// the researcher dashboard.
type ClipResponse struct {
	VideoID int64 `json:"video_id" binding:"required"`
	Value   int   `json:"label"`
}

// MaskResponse is one returned submission for a segmentation mask.
type MaskResponse struct {
	SegmentationID int64          `json:"segmentation_id" binding:"required"`
	Submission     MaskSubmission `json:"feedback"`
}

// MaskGold is the known-correct answer for a gold standard mask: the
// subtype from the admin track, the originally proposed box, and the
// researcher-corrected box for the needs-editing subtype.
type MaskGold struct {
	Subtype   MaskState
	Proposal  Box
	Reference Box
}

// GateConfig carries the quality gate knobs.
type GateConfig struct {
	// MinCorrectGold is the number of gold standards that must be answered
	// correctly for the batch to count at all.
	MinCorrectGold int
	// IoUThreshold is the minimal overlap for an edited box to match a
	// reference box.
	IoUThreshold float64
}

// ScoreClipBatch runs the hidden gold-standard check over a returned clip
// batch. Each correctly answered gold standard counts toward the gate; each
// non-gold response contributes one point. If fewer than MinCorrectGold gold
// standards were answered correctly the whole batch is forced to zero, which
// suppresses every state change downstream.
func ScoreClipBatch(adminStates map[int64]State, responses []ClipResponse, cfg GateConfig) int {
	score := 0
	correctGold := 0
	for _, r := range responses {
		switch adminStates[r.VideoID] {
		case StateGoldPos:
			if Vote(r.Value) == VotePos {
				correctGold++
			}
		case StateGoldNeg:
			if Vote(r.Value) == VoteNeg {
				correctGold++
			}
		default:
			score++
		}
	}
	if correctGold < cfg.MinCorrectGold {
		return 0
	}
	return score
}

// ScoreMaskBatch is the segmentation variant of the quality gate.
//
// Correctness per gold subtype:
//   - gold-good: an explicit confirmation, or an edit that still overlaps
//     the proposal above the IoU threshold;
//   - gold-needs-editing: an edit matching the corrected reference box above
//     the threshold; confirming the unedited proposal only counts when the
//     proposal itself already matches the reference;
//   - gold-needs-removal: an explicit removal, or an edit with zero overlap
//     against the proposal (the rater relocated the smoke elsewhere, which
//     rejects the proposed location just as well).
//
// Removal on a good/needs-editing gold is always wrong, as is confirming a
// needs-removal gold.
func ScoreMaskBatch(gold map[int64]MaskGold, responses []MaskResponse, cfg GateConfig) int {
	score := 0
	correctGold := 0
	for _, r := range responses {
		g, isGold := gold[r.SegmentationID]
		if !isGold {
			score++
			continue
		}
		if maskGoldCorrect(g, r.Submission, cfg.IoUThreshold) {
			correctGold++
		}
	}
	if correctGold < cfg.MinCorrectGold {
		return 0
	}
	return score
}

func maskGoldCorrect(g MaskGold, sub MaskSubmission, threshold float64) bool {
	switch g.Subtype {
	case MaskGoldGood:
		if sub.Removed {
			return false
		}
		if sub.Box != nil {
			return IoU(*sub.Box, g.Proposal) >= threshold
		}
		return true
	case MaskGoldEdited:
		if sub.Removed {
			return false
		}
		if sub.Box != nil {
			return IoU(*sub.Box, g.Reference) >= threshold
		}
		return IoU(g.Proposal, g.Reference) >= threshold
	case MaskGoldRemoved:
		if sub.Removed {
			return true
		}
		if sub.Box != nil {
			return IoU(*sub.Box, g.Proposal) == 0
		}
		return false
	}
	return false
}
