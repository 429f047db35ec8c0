package label

import (
	"errors"
	"math/rand"
	"testing"
)

func clipPool() []ClipItem {
	var pool []ClipItem
	id := int64(1)
	add := func(n int, state, admin State) {
		for i := 0; i < n; i++ {
			pool = append(pool, ClipItem{ID: id, State: state, Admin: admin})
			id++
		}
	}
	add(10, StateInitial, StateGoldPos)
	add(10, StateInitial, StateGoldNeg)
	add(20, StateInitial, StateInitial)
	add(10, StateMaybePos, StateInitial)
	add(5, StateDiscord, StateInitial)
	add(5, StateInitial, StateStrongPos) // settled by a researcher
	add(5, StateInitial, StateDiscard)
	return pool
}

func TestSampleClipBatchComposition(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cfg := SamplerConfig{BatchSize: 12, GoldPerBatch: 4, PartialRatio: 0.5}
	pool := clipPool()

	batch, err := SampleClipBatch(pool, nil, RoleLayperson, cfg, rng)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch) != cfg.BatchSize {
		t.Fatalf("batch size %d, want %d", len(batch), cfg.BatchSize)
	}

	goldPos, goldNeg := 0, 0
	seen := map[int64]bool{}
	for _, it := range batch {
		if seen[it.ID] {
			t.Fatalf("item %d issued twice", it.ID)
		}
		seen[it.ID] = true
		switch it.Admin {
		case StateGoldPos:
			goldPos++
		case StateGoldNeg:
			goldNeg++
		case StateStrongPos, StateDiscard:
			t.Fatalf("admin-settled item %d issued to a citizen", it.ID)
		}
	}
	if goldPos+goldNeg != cfg.GoldPerBatch {
		t.Fatalf("gold count %d, want %d", goldPos+goldNeg, cfg.GoldPerBatch)
	}
	// The split always puts at least one gold of each polarity in the batch.
	if goldPos == 0 || goldNeg == 0 {
		t.Fatalf("gold split %d/%d, both polarities required", goldPos, goldNeg)
	}
}

func TestSampleClipBatchExcludesOwnLabels(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	cfg := SamplerConfig{BatchSize: 8, GoldPerBatch: 2, PartialRatio: 0.5}
	pool := clipPool()

	labeled := map[int64]bool{}
	for _, it := range pool[:30] {
		labeled[it.ID] = true
	}

	// No gold clips are left once the rater's history is excluded; the
	// first 30 ids cover the whole gold pool.
	if _, err := SampleClipBatch(pool, labeled, RoleAmateur, cfg, rng); !errors.Is(err, ErrInsufficientPool) {
		t.Fatalf("expected ErrInsufficientPool, got %v", err)
	}
}

func TestSampleClipBatchFailsClosed(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	cfg := SamplerConfig{BatchSize: 16, GoldPerBatch: 4, PartialRatio: 0.5}

	// No gold negatives at all.
	var pool []ClipItem
	for i := int64(1); i <= 50; i++ {
		admin := StateInitial
		if i <= 10 {
			admin = StateGoldPos
		}
		pool = append(pool, ClipItem{ID: i, State: StateInitial, Admin: admin})
	}
	if _, err := SampleClipBatch(pool, nil, RoleLayperson, cfg, rng); !errors.Is(err, ErrInsufficientPool) {
		t.Fatalf("expected ErrInsufficientPool, got %v", err)
	}

	// Ample gold but a nearly empty unlabeled pool.
	pool = pool[:14]
	for i := range pool {
		if i >= 10 {
			pool[i].Admin = StateGoldNeg
		}
	}
	if _, err := SampleClipBatch(pool, nil, RoleLayperson, cfg, rng); !errors.Is(err, ErrInsufficientPool) {
		t.Fatalf("expected ErrInsufficientPool for short pool, got %v", err)
	}
}

func TestSampleClipBatchResearcher(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	cfg := SamplerConfig{BatchSize: 16, GoldPerBatch: 4, PartialRatio: 0.5}
	pool := clipPool()

	batch, err := SampleClipBatch(pool, nil, RoleResearcher, cfg, rng)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch) != cfg.BatchSize {
		t.Fatalf("batch size %d, want %d", len(batch), cfg.BatchSize)
	}
	for _, it := range batch {
		switch it.Admin {
		case StateInitial, StateDiscord, StateMaybeNeg, StateMaybePos:
		default:
			t.Fatalf("researcher batch contains admin-settled item %d (state %d)", it.ID, it.Admin)
		}
	}
}

func TestSampleMaskBatch(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	cfg := SamplerConfig{BatchSize: 8, GoldPerBatch: 2, PartialRatio: 0.5}

	var pool []MaskItem
	id := int64(1)
	add := func(n int, state, admin MaskState) {
		for i := 0; i < n; i++ {
			pool = append(pool, MaskItem{ID: id, State: state, Admin: admin})
			id++
		}
	}
	add(5, MaskInitial, MaskGoldEdited)
	add(5, MaskInitial, MaskGoldRemoved)
	add(5, MaskInitial, MaskGoldGood) // never issued
	add(10, MaskInitial, MaskInitial)
	add(5, MaskOneGood, MaskInitial)
	add(3, MaskInitial, MaskResearcherGood)

	batch, err := SampleMaskBatch(pool, nil, RoleLayperson, cfg, rng)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch) != cfg.BatchSize {
		t.Fatalf("batch size %d, want %d", len(batch), cfg.BatchSize)
	}
	goldEdit, goldRemove := 0, 0
	for _, it := range batch {
		switch it.Admin {
		case MaskGoldEdited:
			goldEdit++
		case MaskGoldRemoved:
			goldRemove++
		case MaskGoldGood:
			t.Fatalf("gold-good mask %d must never be issued", it.ID)
		case MaskResearcherGood:
			t.Fatalf("researcher-settled mask %d issued to a citizen", it.ID)
		}
	}
	if goldEdit != 1 || goldRemove != 1 {
		t.Fatalf("gold split %d/%d, want 1/1", goldEdit, goldRemove)
	}
}

func TestSampleMaskBatchNoGoldConfigured(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	cfg := SamplerConfig{BatchSize: 4, GoldPerBatch: 0, PartialRatio: 0}

	var pool []MaskItem
	for i := int64(1); i <= 10; i++ {
		pool = append(pool, MaskItem{ID: i, State: MaskInitial, Admin: MaskInitial})
	}
	batch, err := SampleMaskBatch(pool, nil, RoleLayperson, cfg, rng)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch) != 4 {
		t.Fatalf("batch size %d, want 4", len(batch))
	}
}
