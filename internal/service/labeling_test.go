package service

import (
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/label"
	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/models"
	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/repository"
)

// fakeVideoRepo serves a fixed pool and records admin commits.
type fakeVideoRepo struct {
	items   map[int64]*label.ClipTracks
	labeled map[int64]bool
}

func (f *fakeVideoRepo) GetByIDs(ids []int64) ([]models.Video, error) {
	out := make([]models.Video, 0, len(ids))
	for _, id := range ids {
		tr := f.items[id]
		out = append(out, models.Video{ID: id, LabelState: tr.State, LabelStateAdmin: tr.Admin})
	}
	return out, nil
}

func (f *fakeVideoRepo) PoolSnapshot() ([]label.ClipItem, error) {
	var out []label.ClipItem
	for id, tr := range f.items {
		out = append(out, label.ClipItem{ID: id, State: tr.State, Admin: tr.Admin})
	}
	return out, nil
}

func (f *fakeVideoRepo) IDsLabeledByUser(userID int64) (map[int64]bool, error) {
	return f.labeled, nil
}

func (f *fakeVideoRepo) List(states []label.State, useAdminTrack bool, pageNumber, pageSize int) ([]models.Video, int, error) {
	return nil, 0, nil
}

func (f *fakeVideoRepo) ListAggregated(pos bool, pageNumber, pageSize int) ([]models.Video, int, error) {
	return nil, 0, nil
}

func (f *fakeVideoRepo) Statistics() (*repository.VideoStatistics, error) {
	return &repository.VideoStatistics{}, nil
}

func (f *fakeVideoRepo) CommitAdminLabel(videoID, userID int64, rawValue int, decide func(cur label.ClipTracks) (label.State, bool)) (bool, error) {
	tr, ok := f.items[videoID]
	if !ok {
		return false, repository.ErrNotFound
	}
	next, ok := decide(*tr)
	if !ok {
		return false, nil
	}
	tr.Admin = next
	return true, nil
}

// fakeMaskRepo mirrors fakeVideoRepo for masks.
type fakeMaskRepo struct {
	items map[int64]*label.MaskTracks
	gold  map[int64]label.MaskGold
}

func (f *fakeMaskRepo) GetByIDs(ids []int64) ([]models.SegmentationMask, error) {
	out := make([]models.SegmentationMask, 0, len(ids))
	for _, id := range ids {
		tr := f.items[id]
		out = append(out, models.SegmentationMask{ID: id, LabelState: tr.State, LabelStateAdmin: tr.Admin})
	}
	return out, nil
}

func (f *fakeMaskRepo) PoolSnapshot() ([]label.MaskItem, error) {
	var out []label.MaskItem
	for id, tr := range f.items {
		out = append(out, label.MaskItem{ID: id, State: tr.State, Admin: tr.Admin})
	}
	return out, nil
}

func (f *fakeMaskRepo) IDsLabeledByUser(userID int64) (map[int64]bool, error) {
	return nil, nil
}

func (f *fakeMaskRepo) GoldAnswers(ids []int64) (map[int64]label.MaskGold, error) {
	out := map[int64]label.MaskGold{}
	for _, id := range ids {
		if g, ok := f.gold[id]; ok {
			out[id] = g
		}
	}
	return out, nil
}

func (f *fakeMaskRepo) List(states []label.MaskState, useAdminTrack bool, pageNumber, pageSize int) ([]models.SegmentationMask, int, error) {
	return nil, 0, nil
}

func (f *fakeMaskRepo) Statistics() (*repository.MaskStatistics, error) {
	return &repository.MaskStatistics{}, nil
}

func (f *fakeMaskRepo) CommitAdminFeedback(maskID, userID int64, code label.FeedbackCode, box *label.Box, decide func(cur label.MaskTracks) (label.MaskState, bool)) (bool, error) {
	tr, ok := f.items[maskID]
	if !ok {
		return false, repository.ErrNotFound
	}
	next, ok := decide(*tr)
	if !ok {
		return false, nil
	}
	tr.Admin = next
	return true, nil
}

// fakeBatchRepo runs the plan callback over the fake item tracks and
// applies the commit plan in memory, enforcing the single-use rule.
type fakeBatchRepo struct {
	videos *fakeVideoRepo
	masks  *fakeMaskRepo
	user   *models.User

	mu          sync.Mutex
	nextID      int64
	batches     map[int64]*models.Batch
	scored      map[int64]bool
	clipRecords []label.ClipResponse
	maskRecords []label.MaskRecord
}

func newFakeBatchRepo(videos *fakeVideoRepo, masks *fakeMaskRepo, user *models.User) *fakeBatchRepo {
	return &fakeBatchRepo{
		videos:  videos,
		masks:   masks,
		user:    user,
		batches: map[int64]*models.Batch{},
		scored:  map[int64]bool{},
	}
}

func (f *fakeBatchRepo) Create(kind string, numGoldStandard, numUnlabeled int, connectionID int64) (*models.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	b := &models.Batch{
		ID:              f.nextID,
		Kind:            kind,
		NumGoldStandard: numGoldStandard,
		NumUnlabeled:    numUnlabeled,
	}
	f.batches[b.ID] = b
	return b, nil
}

func (f *fakeBatchRepo) SubmitClipBatch(batchID, connectionID, userID int64, videoIDs []int64,
	plan func(batch *models.Batch, user *models.User, tracks map[int64]label.ClipTracks) (*repository.ClipCommitPlan, error)) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[batchID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if f.scored[batchID] {
		return nil, repository.ErrBatchAlreadyScored
	}
	tracks := map[int64]label.ClipTracks{}
	for _, id := range videoIDs {
		if tr, ok := f.videos.items[id]; ok {
			tracks[id] = *tr
		}
	}
	p, err := plan(b, f.user, tracks)
	if err != nil {
		return nil, err
	}
	f.scored[batchID] = true
	f.clipRecords = append(f.clipRecords, p.Records...)
	for _, ch := range p.Changes {
		if ch.AdminTrack {
			f.videos.items[ch.VideoID].Admin = ch.To
		} else {
			f.videos.items[ch.VideoID].State = ch.To
		}
	}
	f.user.Score += p.ScoreDelta
	f.user.RawScore += p.RawScoreDelta
	u := *f.user
	return &u, nil
}

func (f *fakeBatchRepo) SubmitMaskBatch(batchID, connectionID, userID int64, maskIDs []int64,
	plan func(batch *models.Batch, user *models.User, tracks map[int64]label.MaskTracks) (*repository.MaskCommitPlan, error)) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[batchID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if f.scored[batchID] {
		return nil, repository.ErrBatchAlreadyScored
	}
	tracks := map[int64]label.MaskTracks{}
	for _, id := range maskIDs {
		if tr, ok := f.masks.items[id]; ok {
			tracks[id] = *tr
		}
	}
	p, err := plan(b, f.user, tracks)
	if err != nil {
		return nil, err
	}
	f.scored[batchID] = true
	f.maskRecords = append(f.maskRecords, p.Records...)
	for _, ch := range p.Changes {
		if ch.AdminTrack {
			f.masks.items[ch.SegmentationID].Admin = ch.To
		} else {
			f.masks.items[ch.SegmentationID].State = ch.To
		}
	}
	f.user.Score += p.ScoreDelta
	f.user.RawScore += p.RawScoreDelta
	u := *f.user
	return &u, nil
}

type fakeUserRepo struct{ user *models.User }

func (f *fakeUserRepo) GetByID(id int64) (*models.User, error)        { return f.user, nil }
func (f *fakeUserRepo) GetByClientID(id string) (*models.User, error) { return f.user, nil }
func (f *fakeUserRepo) Create(clientID string) (*models.User, error)  { return f.user, nil }
func (f *fakeUserRepo) UpdateClientType(id int64, t label.Role) error {
	f.user.ClientType = t
	return nil
}
func (f *fakeUserRepo) Leaderboard(limit int) ([]models.User, error) { return nil, nil }

type fakeConnRepo struct{}

func (f *fakeConnRepo) Create(userID int64, clientType label.Role) (*models.Connection, error) {
	return &models.Connection{ID: 1, UserID: userID, ClientType: clientType}, nil
}

func testSetup(t *testing.T) (*labelingService, *fakeVideoRepo, *fakeMaskRepo, *fakeBatchRepo) {
	t.Helper()
	videos := &fakeVideoRepo{items: map[int64]*label.ClipTracks{}}
	for i := int64(1); i <= 20; i++ {
		videos.items[i] = &label.ClipTracks{State: label.StateInitial, Admin: label.StateInitial}
	}
	videos.items[1].Admin = label.StateGoldPos
	videos.items[2].Admin = label.StateGoldNeg

	masks := &fakeMaskRepo{
		items: map[int64]*label.MaskTracks{},
		gold:  map[int64]label.MaskGold{},
	}
	for i := int64(1); i <= 20; i++ {
		masks.items[i] = &label.MaskTracks{State: label.MaskInitial, Admin: label.MaskInitial}
	}
	masks.items[1].Admin = label.MaskGoldEdited
	masks.gold[1] = label.MaskGold{
		Subtype:   label.MaskGoldEdited,
		Proposal:  label.Box{X: 0, Y: 0, W: 10, H: 10},
		Reference: label.Box{X: 100, Y: 100, W: 10, H: 10},
	}
	masks.items[2].Admin = label.MaskGoldRemoved
	masks.gold[2] = label.MaskGold{
		Subtype:  label.MaskGoldRemoved,
		Proposal: label.Box{X: 0, Y: 0, W: 10, H: 10},
	}

	user := &models.User{ID: 7, ClientType: label.RoleAmateur}
	batches := newFakeBatchRepo(videos, masks, user)
	auth := NewAuthService(&fakeUserRepo{user: user}, &fakeConnRepo{}, "test-secret", zap.NewNop())

	cfg := LabelingConfig{
		VideoSampler: label.SamplerConfig{BatchSize: 6, GoldPerBatch: 2, PartialRatio: 0.5},
		MaskSampler:  label.SamplerConfig{BatchSize: 4, GoldPerBatch: 2, PartialRatio: 0.5},
		VideoGate:    label.GateConfig{},
		MaskGate:     label.GateConfig{IoUThreshold: 0.5},
	}
	svc := NewLabelingService(videos, masks, batches, auth, cfg, zap.NewNop()).(*labelingService)
	return svc, videos, masks, batches
}

func citizenClaims() *models.UserClaims {
	return &models.UserClaims{UserID: 7, ClientType: label.RoleAmateur, ConnectionID: 1}
}

func TestRequestVideoBatchHidesGold(t *testing.T) {
	svc, _, _, _ := testSetup(t)

	issued, err := svc.RequestVideoBatch(citizenClaims())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(issued.Items) != 6 {
		t.Fatalf("got %d items, want 6", len(issued.Items))
	}
	for _, v := range issued.Items {
		if v.LabelState != label.StateInitial || v.LabelStateAdmin != label.StateInitial {
			t.Fatalf("video %d leaks its label state", v.ID)
		}
	}

	claims, err := svc.auth.ParseBatchToken(issued.Token)
	if err != nil {
		t.Fatalf("batch token does not parse: %v", err)
	}
	if claims.UserID != 7 || len(claims.ItemIDs) != 6 {
		t.Fatalf("unexpected batch claims: %+v", claims)
	}
}

func TestRequestBatchRejectsBanned(t *testing.T) {
	svc, _, _, _ := testSetup(t)

	banned := &models.UserClaims{UserID: 7, ClientType: label.RoleBanned, ConnectionID: 1}
	if _, err := svc.RequestVideoBatch(banned); !errors.Is(err, ErrUserBanned) {
		t.Fatalf("got %v, want ErrUserBanned", err)
	}
	if _, err := svc.RequestMaskBatch(banned); !errors.Is(err, ErrUserBanned) {
		t.Fatalf("got %v, want ErrUserBanned", err)
	}
}

func TestRequestVideoBatchResearcherSeesLabels(t *testing.T) {
	svc, videos, _, _ := testSetup(t)
	for id, tr := range videos.items {
		if id > 2 {
			tr.State = label.StateMaybePos
		}
	}

	researcher := &models.UserClaims{UserID: 1, ClientType: label.RoleResearcher, ConnectionID: 1}
	issued, err := svc.RequestVideoBatch(researcher)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(issued.Items) != 6 {
		t.Fatalf("got %d items, want 6", len(issued.Items))
	}
	for _, v := range issued.Items {
		if v.LabelState != label.StateMaybePos {
			t.Fatalf("video %d lost its label state: %d", v.ID, v.LabelState)
		}
	}
}

// Meant for the race detector: concurrent batch requests share one
// random source.
func TestRequestVideoBatchConcurrent(t *testing.T) {
	svc, _, _, _ := testSetup(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if _, err := svc.RequestVideoBatch(citizenClaims()); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	if err := <-errs; err != nil {
		t.Fatalf("concurrent request failed: %v", err)
	}
}

func submitAll(t *testing.T, svc *labelingService, vote func(id int64) int) *BatchOutcome {
	t.Helper()
	issued, err := svc.RequestVideoBatch(citizenClaims())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	batchClaims, err := svc.auth.ParseBatchToken(issued.Token)
	if err != nil {
		t.Fatalf("token parse failed: %v", err)
	}
	responses := make([]label.ClipResponse, 0, len(batchClaims.ItemIDs))
	for _, id := range batchClaims.ItemIDs {
		responses = append(responses, label.ClipResponse{VideoID: id, Value: vote(id)})
	}
	outcome, err := svc.SubmitVideoBatch(citizenClaims(), batchClaims, responses)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	return outcome
}

func TestSubmitVideoBatchGatePass(t *testing.T) {
	svc, videos, _, batches := testSetup(t)

	// Answer the gold standards by their known polarity, everything else
	// positive.
	outcome := submitAll(t, svc, func(id int64) int {
		if id == 2 {
			return 0
		}
		return 1
	})

	if outcome.BatchScore == nil || *outcome.BatchScore != 4 {
		t.Fatalf("batch score %v, want 4", outcome.BatchScore)
	}
	if outcome.UserScore != 4 || outcome.RawScore != 4 {
		t.Fatalf("user scores (%d,%d), want (4,4)", outcome.UserScore, outcome.RawScore)
	}
	if len(batches.clipRecords) != 6 {
		t.Fatalf("got %d label records, want 6", len(batches.clipRecords))
	}
	// Non-gold items moved to a one-vote state.
	moved := 0
	for id, tr := range videos.items {
		if id > 2 && tr.State != label.StateInitial {
			moved++
		}
	}
	if moved != 4 {
		t.Fatalf("%d videos changed state, want 4", moved)
	}
}

func TestSubmitVideoBatchGateFailure(t *testing.T) {
	svc, videos, _, batches := testSetup(t)

	// Wrong answer on every gold standard.
	outcome := submitAll(t, svc, func(id int64) int {
		if id == 1 {
			return 0
		}
		return 1
	})

	if outcome.BatchScore == nil || *outcome.BatchScore != 0 {
		t.Fatalf("batch score %v, want 0", outcome.BatchScore)
	}
	if outcome.UserScore != 0 {
		t.Fatalf("user score %d, want 0", outcome.UserScore)
	}
	// Raw score still counts the returned non-gold items.
	if outcome.RawScore != 4 {
		t.Fatalf("raw score %d, want 4", outcome.RawScore)
	}
	if len(batches.clipRecords) != 0 {
		t.Fatalf("failed gate persisted %d records", len(batches.clipRecords))
	}
	for id, tr := range videos.items {
		if tr.State != label.StateInitial {
			t.Fatalf("video %d changed state despite failed gate", id)
		}
	}
}

func TestSubmitVideoBatchSingleUse(t *testing.T) {
	svc, _, _, _ := testSetup(t)

	issued, err := svc.RequestVideoBatch(citizenClaims())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	batchClaims, _ := svc.auth.ParseBatchToken(issued.Token)
	responses := make([]label.ClipResponse, 0, len(batchClaims.ItemIDs))
	for _, id := range batchClaims.ItemIDs {
		responses = append(responses, label.ClipResponse{VideoID: id, Value: 1})
	}

	if _, err := svc.SubmitVideoBatch(citizenClaims(), batchClaims, responses); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	if _, err := svc.SubmitVideoBatch(citizenClaims(), batchClaims, responses); !errors.Is(err, repository.ErrBatchAlreadyScored) {
		t.Fatalf("second submit: got %v, want ErrBatchAlreadyScored", err)
	}
}

func TestSubmitVideoBatchMismatch(t *testing.T) {
	svc, _, _, _ := testSetup(t)

	issued, err := svc.RequestVideoBatch(citizenClaims())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	batchClaims, _ := svc.auth.ParseBatchToken(issued.Token)

	// Swap one returned id for an item that was never issued.
	responses := make([]label.ClipResponse, 0, len(batchClaims.ItemIDs))
	for i, id := range batchClaims.ItemIDs {
		if i == 0 {
			id = 9999
		}
		responses = append(responses, label.ClipResponse{VideoID: id, Value: 1})
	}
	if _, err := svc.SubmitVideoBatch(citizenClaims(), batchClaims, responses); !errors.Is(err, ErrBatchMismatch) {
		t.Fatalf("got %v, want ErrBatchMismatch", err)
	}

	// A token for another user is rejected as well.
	other := &models.UserClaims{UserID: 8, ClientType: label.RoleAmateur, ConnectionID: 2}
	good := make([]label.ClipResponse, 0, len(batchClaims.ItemIDs))
	for _, id := range batchClaims.ItemIDs {
		good = append(good, label.ClipResponse{VideoID: id, Value: 1})
	}
	if _, err := svc.SubmitVideoBatch(other, batchClaims, good); !errors.Is(err, ErrBatchMismatch) {
		t.Fatalf("got %v, want ErrBatchMismatch for foreign token", err)
	}
}

func TestSubmitMaskBatchGate(t *testing.T) {
	svc, _, masks, batches := testSetup(t)

	issued, err := svc.RequestMaskBatch(citizenClaims())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	batchClaims, _ := svc.auth.ParseBatchToken(issued.Token)

	reference := label.Box{X: 100, Y: 100, W: 10, H: 10}
	responses := make([]label.MaskResponse, 0, len(batchClaims.ItemIDs))
	for _, id := range batchClaims.ItemIDs {
		switch id {
		case 1:
			responses = append(responses, label.MaskResponse{SegmentationID: id, Submission: label.MaskSubmission{Box: &reference}})
		case 2:
			responses = append(responses, label.MaskResponse{SegmentationID: id, Submission: label.MaskSubmission{Removed: true}})
		default:
			responses = append(responses, label.MaskResponse{SegmentationID: id, Submission: label.MaskSubmission{}})
		}
	}

	outcome, err := svc.SubmitMaskBatch(citizenClaims(), batchClaims, responses)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if outcome.BatchScore == nil || *outcome.BatchScore != 2 {
		t.Fatalf("batch score %v, want 2", outcome.BatchScore)
	}
	// Records cover all four submissions, gold included.
	if len(batches.maskRecords) != 4 {
		t.Fatalf("got %d feedback records, want 4", len(batches.maskRecords))
	}
	moved := 0
	for id, tr := range masks.items {
		if id > 2 && tr.State != label.MaskInitial {
			moved++
		}
	}
	if moved != 2 {
		t.Fatalf("%d masks changed state, want 2", moved)
	}
}

func TestSetVideoLabelState(t *testing.T) {
	svc, videos, _, _ := testSetup(t)

	researcher := &models.UserClaims{UserID: 1, ClientType: label.RoleResearcher, ConnectionID: 1}
	if err := svc.SetVideoLabelState(researcher, 5, 47); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if videos.items[5].Admin != label.StateGoldPos {
		t.Fatalf("admin track %d, want gold pos", videos.items[5].Admin)
	}

	if err := svc.SetVideoLabelState(citizenClaims(), 5, 1); !errors.Is(err, ErrNotResearcher) {
		t.Fatalf("got %v, want ErrNotResearcher", err)
	}
	if err := svc.SetVideoLabelState(researcher, 5, 99); !errors.Is(err, ErrUndefinedChange) {
		t.Fatalf("got %v, want ErrUndefinedChange", err)
	}
}

func TestSetMaskFeedbackGold(t *testing.T) {
	svc, _, masks, _ := testSetup(t)

	researcher := &models.UserClaims{UserID: 1, ClientType: label.RoleResearcher, ConnectionID: 1}
	box := label.Box{X: 3, Y: 3, W: 4, H: 4}
	if err := svc.SetMaskFeedback(researcher, 5, label.MaskSubmission{Box: &box}, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if masks.items[5].Admin != label.MaskGoldEdited {
		t.Fatalf("admin track %d, want gold edited", masks.items[5].Admin)
	}

	if err := svc.SetMaskFeedback(citizenClaims(), 5, label.MaskSubmission{}, false); !errors.Is(err, ErrNotResearcher) {
		t.Fatalf("got %v, want ErrNotResearcher", err)
	}
}
