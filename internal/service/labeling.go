package service

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/label"
	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/models"
	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/repository"
)

var (
	ErrBatchMismatch   = errors.New("returned items do not match the issued batch")
	ErrNotResearcher   = errors.New("operation requires a researcher account")
	ErrUndefinedChange = errors.New("undefined state transition")
)

// LabelingConfig carries the tunables of batch assembly and scoring.
type LabelingConfig struct {
	VideoSampler label.SamplerConfig
	MaskSampler  label.SamplerConfig
	VideoGate    label.GateConfig
	MaskGate     label.GateConfig
	// BatchCooldown is the not-before window of the batch token. A batch
	// returned faster than a human could have watched it is bogus.
	BatchCooldown time.Duration
}

// BatchOutcome is what a scored submission reports back to the client.
type BatchOutcome struct {
	// BatchScore is nil for researcher submissions.
	BatchScore *int `json:"batch_score"`
	UserScore  int  `json:"user_score"`
	RawScore   int  `json:"user_raw_score"`
}

// IssuedBatch pairs the sampled items with the signed batch token the
// client must echo back on submission.
type IssuedBatch[T any] struct {
	Items []T    `json:"data"`
	Token string `json:"batch_token"`
}

type LabelingService interface {
	RequestVideoBatch(claims *models.UserClaims) (*IssuedBatch[models.Video], error)
	SubmitVideoBatch(claims *models.UserClaims, batch *models.BatchClaims, responses []label.ClipResponse) (*BatchOutcome, error)
	RequestMaskBatch(claims *models.UserClaims) (*IssuedBatch[models.SegmentationMask], error)
	SubmitMaskBatch(claims *models.UserClaims, batch *models.BatchClaims, responses []label.MaskResponse) (*BatchOutcome, error)
	// SetVideoLabelState writes one video's researcher label track directly,
	// outside any batch.
	SetVideoLabelState(claims *models.UserClaims, videoID int64, rawValue int) error
	// SetMaskFeedback is the segmentation counterpart; gold subtypes are
	// minted here and nowhere else.
	SetMaskFeedback(claims *models.UserClaims, maskID int64, sub label.MaskSubmission, gold bool) error
}

type labelingService struct {
	videos  repository.VideoRepository
	masks   repository.MaskRepository
	batches repository.BatchRepository
	auth    AuthService
	cfg     LabelingConfig
	logger  *zap.Logger

	// rngMu serializes the shared random source across request goroutines.
	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewLabelingService(videos repository.VideoRepository, masks repository.MaskRepository,
	batches repository.BatchRepository, auth AuthService, cfg LabelingConfig, logger *zap.Logger) LabelingService {
	return &labelingService{
		videos:  videos,
		masks:   masks,
		batches: batches,
		auth:    auth,
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:  logger,
	}
}

func (s *labelingService) RequestVideoBatch(claims *models.UserClaims) (*IssuedBatch[models.Video], error) {
	if claims.ClientType == label.RoleBanned {
		return nil, ErrUserBanned
	}
	pool, err := s.videos.PoolSnapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to load video pool: %w", err)
	}
	seen, err := s.videos.IDsLabeledByUser(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load labeling history: %w", err)
	}

	s.rngMu.Lock()
	items, err := label.SampleClipBatch(pool, seen, claims.ClientType, s.cfg.VideoSampler, s.rng)
	s.rngMu.Unlock()
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(items))
	numGold := 0
	for i, it := range items {
		ids[i] = it.ID
		if containsState(label.GoldStates, it.Admin) {
			numGold++
		}
	}

	batch, err := s.batches.Create(models.BatchKindVideo, numGold, len(items)-numGold, claims.ConnectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}
	token, err := s.auth.EncodeBatchToken(claims.UserID, batch.ID, ids, s.cfg.BatchCooldown)
	if err != nil {
		return nil, fmt.Errorf("failed to sign batch token: %w", err)
	}

	videos, err := s.videos.GetByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch videos: %w", err)
	}
	if claims.ClientType != label.RoleResearcher {
		// Never leak which items are gold standards.
		for i := range videos {
			videos[i].LabelState = label.StateInitial
			videos[i].LabelStateAdmin = label.StateInitial
		}
	}

	s.logger.Info("Issued video batch",
		zap.Int64("batch_id", batch.ID),
		zap.Int64("user_id", claims.UserID),
		zap.Int("num_items", len(ids)),
		zap.Int("num_gold", numGold))

	return &IssuedBatch[models.Video]{Items: videos, Token: token}, nil
}

func (s *labelingService) SubmitVideoBatch(claims *models.UserClaims, batch *models.BatchClaims, responses []label.ClipResponse) (*BatchOutcome, error) {
	if batch.UserID != claims.UserID {
		return nil, ErrBatchMismatch
	}
	returned := make([]int64, len(responses))
	for i, r := range responses {
		returned[i] = r.VideoID
	}
	if !sameIDSet(batch.ItemIDs, returned) {
		return nil, ErrBatchMismatch
	}

	var outcome BatchOutcome
	user, err := s.batches.SubmitClipBatch(batch.BatchID, claims.ConnectionID, claims.UserID, batch.ItemIDs,
		func(b *models.Batch, u *models.User, tracks map[int64]label.ClipTracks) (*repository.ClipCommitPlan, error) {
			var batchScore *int
			if claims.ClientType != label.RoleResearcher {
				adminStates := make(map[int64]label.State, len(tracks))
				for id, t := range tracks {
					adminStates[id] = t.Admin
				}
				gate := s.cfg.VideoGate
				if gate.MinCorrectGold <= 0 {
					gate.MinCorrectGold = b.NumGoldStandard
				}
				score := label.ScoreClipBatch(adminStates, responses, gate)
				batchScore = &score
				outcome.BatchScore = &score
			}

			res := label.ApplyClipBatch(tracks, responses, claims.ClientType, batchScore, b.NumUnlabeled)
			for _, id := range res.Skipped {
				s.logger.Warn("Skipped undefined video transition",
					zap.Int64("batch_id", b.ID), zap.Int64("video_id", id))
			}

			records := responses
			if batchScore != nil && *batchScore == 0 {
				// A failed gate keeps nothing but the raw-score credit.
				records = nil
			}
			return &repository.ClipCommitPlan{
				BatchScore:    batchScore,
				Records:       records,
				Changes:       res.Changes,
				ScoreDelta:    res.ScoreDelta,
				RawScoreDelta: res.RawScoreDelta,
			}, nil
		})
	if err != nil {
		return nil, err
	}

	outcome.UserScore = user.Score
	outcome.RawScore = user.RawScore
	return &outcome, nil
}

func (s *labelingService) RequestMaskBatch(claims *models.UserClaims) (*IssuedBatch[models.SegmentationMask], error) {
	if claims.ClientType == label.RoleBanned {
		return nil, ErrUserBanned
	}
	pool, err := s.masks.PoolSnapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to load mask pool: %w", err)
	}
	seen, err := s.masks.IDsLabeledByUser(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback history: %w", err)
	}

	s.rngMu.Lock()
	items, err := label.SampleMaskBatch(pool, seen, claims.ClientType, s.cfg.MaskSampler, s.rng)
	s.rngMu.Unlock()
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(items))
	numGold := 0
	for i, it := range items {
		ids[i] = it.ID
		if containsMaskState(label.MaskGoldStates, it.Admin) {
			numGold++
		}
	}

	batch, err := s.batches.Create(models.BatchKindSegmentation, numGold, len(items)-numGold, claims.ConnectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}
	token, err := s.auth.EncodeBatchToken(claims.UserID, batch.ID, ids, s.cfg.BatchCooldown)
	if err != nil {
		return nil, fmt.Errorf("failed to sign batch token: %w", err)
	}

	masks, err := s.masks.GetByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch masks: %w", err)
	}
	if claims.ClientType != label.RoleResearcher {
		for i := range masks {
			masks[i].LabelState = label.MaskInitial
			masks[i].LabelStateAdmin = label.MaskInitial
		}
	}

	s.logger.Info("Issued segmentation batch",
		zap.Int64("batch_id", batch.ID),
		zap.Int64("user_id", claims.UserID),
		zap.Int("num_items", len(ids)),
		zap.Int("num_gold", numGold))

	return &IssuedBatch[models.SegmentationMask]{Items: masks, Token: token}, nil
}

func (s *labelingService) SubmitMaskBatch(claims *models.UserClaims, batch *models.BatchClaims, responses []label.MaskResponse) (*BatchOutcome, error) {
	if batch.UserID != claims.UserID {
		return nil, ErrBatchMismatch
	}
	returned := make([]int64, len(responses))
	for i, r := range responses {
		returned[i] = r.SegmentationID
	}
	if !sameIDSet(batch.ItemIDs, returned) {
		return nil, ErrBatchMismatch
	}

	var outcome BatchOutcome
	user, err := s.batches.SubmitMaskBatch(batch.BatchID, claims.ConnectionID, claims.UserID, batch.ItemIDs,
		func(b *models.Batch, u *models.User, tracks map[int64]label.MaskTracks) (*repository.MaskCommitPlan, error) {
			var batchScore *int
			if claims.ClientType != label.RoleResearcher {
				gold, err := s.masks.GoldAnswers(batch.ItemIDs)
				if err != nil {
					return nil, fmt.Errorf("failed to load gold answers: %w", err)
				}
				gate := s.cfg.MaskGate
				if gate.MinCorrectGold <= 0 {
					gate.MinCorrectGold = b.NumGoldStandard
				}
				score := label.ScoreMaskBatch(gold, responses, gate)
				batchScore = &score
				outcome.BatchScore = &score
			}

			res := label.ApplyMaskBatch(tracks, responses, claims.ClientType, batchScore, b.NumUnlabeled)
			for _, id := range res.Skipped {
				s.logger.Warn("Skipped unclassifiable mask feedback",
					zap.Int64("batch_id", b.ID), zap.Int64("segmentation_id", id))
			}

			return &repository.MaskCommitPlan{
				BatchScore:    batchScore,
				Records:       res.Records,
				Changes:       res.Changes,
				ScoreDelta:    res.ScoreDelta,
				RawScoreDelta: res.RawScoreDelta,
			}, nil
		})
	if err != nil {
		return nil, err
	}

	outcome.UserScore = user.Score
	outcome.RawScore = user.RawScore
	return &outcome, nil
}

func (s *labelingService) SetVideoLabelState(claims *models.UserClaims, videoID int64, rawValue int) error {
	if claims.ClientType != label.RoleResearcher {
		return ErrNotResearcher
	}
	applied, err := s.videos.CommitAdminLabel(videoID, claims.UserID, rawValue,
		func(cur label.ClipTracks) (label.State, bool) {
			return label.Next(cur.Admin, rawValue, label.RoleResearcher)
		})
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("%w: video %d from raw value %d", ErrUndefinedChange, videoID, rawValue)
	}
	s.logger.Info("Researcher set video label state",
		zap.Int64("video_id", videoID),
		zap.Int64("user_id", claims.UserID),
		zap.Int("raw_value", rawValue))
	return nil
}

func (s *labelingService) SetMaskFeedback(claims *models.UserClaims, maskID int64, sub label.MaskSubmission, gold bool) error {
	if claims.ClientType != label.RoleResearcher {
		return ErrNotResearcher
	}
	code, ok := label.Classify(sub, label.RoleResearcher, gold)
	if !ok {
		return fmt.Errorf("%w: mask %d", ErrUndefinedChange, maskID)
	}
	applied, err := s.masks.CommitAdminFeedback(maskID, claims.UserID, code, sub.Box,
		func(cur label.MaskTracks) (label.MaskState, bool) {
			return label.NextMaskState(cur.Admin, code, label.RoleResearcher)
		})
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("%w: mask %d with code %d", ErrUndefinedChange, maskID, int(code))
	}
	s.logger.Info("Researcher set mask feedback",
		zap.Int64("segmentation_id", maskID),
		zap.Int64("user_id", claims.UserID),
		zap.Int("code", int(code)))
	return nil
}

// sameIDSet compares two id lists as multisets.
func sameIDSet(issued, returned []int64) bool {
	if len(issued) != len(returned) {
		return false
	}
	counts := make(map[int64]int, len(issued))
	for _, id := range issued {
		counts[id]++
	}
	for _, id := range returned {
		counts[id]--
		if counts[id] < 0 {
			return false
		}
	}
	return true
}

func containsState(set []label.State, s label.State) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func containsMaskState(set []label.MaskState, s label.MaskState) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
