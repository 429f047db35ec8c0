package label

// ClipTracks is the pair of consensus tracks of one clip. The two fields
// never mix: citizens advance State, researchers advance Admin.
type ClipTracks struct {
	State State
	Admin State
}

// MaskTracks is the pair of consensus tracks of one segmentation mask.
type MaskTracks struct {
	State MaskState
	Admin MaskState
}

// ClipChange is one committed clip transition.
type ClipChange struct {
	VideoID    int64
	From, To   State
	AdminTrack bool
}

// MaskChange is one committed mask transition.
type MaskChange struct {
	SegmentationID int64
	From, To       MaskState
	AdminTrack     bool
}

// MaskRecord is one immutable feedback fact to append, written even when
// the transition was undefined so the audit trail stays complete.
type MaskRecord struct {
	SegmentationID int64
	Code           FeedbackCode
	Box            *Box
}

// ClipApplyResult is what a scored clip batch does to the database, handed
// back to the service so it can persist everything in one transaction.
type ClipApplyResult struct {
	Changes       []ClipChange
	Skipped       []int64
	ScoreDelta    int
	RawScoreDelta int
}

// MaskApplyResult is the segmentation counterpart of ClipApplyResult.
type MaskApplyResult struct {
	Records       []MaskRecord
	Changes       []MaskChange
	Skipped       []int64
	ScoreDelta    int
	RawScoreDelta int
}

// ApplyClipBatch turns the returned responses of one clip batch into state
// transitions and score deltas.
//
// batchScore is nil for researcher submissions, which are never gated and
// never earn credit. A zero batch score means the gate failed: the raw-score
// delta still accrues but every state change is suppressed. Responses whose
// transition is undefined land in Skipped; the caller logs them and still
// appends the label records for audit.
func ApplyClipBatch(tracks map[int64]ClipTracks, responses []ClipResponse, role Role, batchScore *int, numUnlabeled int) ClipApplyResult {
	var res ClipApplyResult
	if batchScore != nil {
		res.RawScoreDelta = numUnlabeled
		if role != RoleResearcher {
			res.ScoreDelta = *batchScore
		}
		if *batchScore == 0 {
			return res
		}
	}
	for _, r := range responses {
		cur, known := tracks[r.VideoID]
		if !known {
			res.Skipped = append(res.Skipped, r.VideoID)
			continue
		}
		from := cur.State
		if role == RoleResearcher {
			from = cur.Admin
		}
		next, ok := Next(from, r.Value, role)
		if !ok {
			res.Skipped = append(res.Skipped, r.VideoID)
			continue
		}
		res.Changes = append(res.Changes, ClipChange{
			VideoID:    r.VideoID,
			From:       from,
			To:         next,
			AdminTrack: role == RoleResearcher,
		})
	}
	return res
}

// ApplyMaskBatch is the segmentation counterpart of ApplyClipBatch. Each
// submission is first classified to a feedback code (gold codes are not
// reachable here; researchers mint gold through the direct admin write),
// then run through the mask state machine. Records are produced for every
// classifiable submission, including the ones whose transition was
// undefined.
func ApplyMaskBatch(tracks map[int64]MaskTracks, responses []MaskResponse, role Role, batchScore *int, numUnlabeled int) MaskApplyResult {
	var res MaskApplyResult
	if batchScore != nil {
		res.RawScoreDelta = numUnlabeled
		if role != RoleResearcher {
			res.ScoreDelta = *batchScore
		}
		if *batchScore == 0 {
			return res
		}
	}
	for _, r := range responses {
		code, ok := Classify(r.Submission, role, false)
		if !ok {
			res.Skipped = append(res.Skipped, r.SegmentationID)
			continue
		}
		res.Records = append(res.Records, MaskRecord{
			SegmentationID: r.SegmentationID,
			Code:           code,
			Box:            r.Submission.Box,
		})
		cur, known := tracks[r.SegmentationID]
		if !known {
			res.Skipped = append(res.Skipped, r.SegmentationID)
			continue
		}
		from := cur.State
		if role == RoleResearcher {
			from = cur.Admin
		}
		next, ok := NextMaskState(from, code, role)
		if !ok {
			res.Skipped = append(res.Skipped, r.SegmentationID)
			continue
		}
		res.Changes = append(res.Changes, MaskChange{
			SegmentationID: r.SegmentationID,
			From:           from,
			To:             next,
			AdminTrack:     role == RoleResearcher,
		})
	}
	return res
}
