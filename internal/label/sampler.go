package label

import (
	"errors"
	"math/rand"
)

// ErrInsufficientPool means a batch could not be assembled: either a gold
// subtype quota cannot be met or there are not enough unlabeled items left.
// The sampler fails closed instead of issuing a degraded batch; the caller
// reports "nothing to label right now" and retries on its own schedule.
var ErrInsufficientPool = errors.New("not enough items in the pool to assemble a batch")

// SamplerConfig carries the batch composition knobs from the config file.
type SamplerConfig struct {
	// BatchSize is the total number of items issued per batch.
	BatchSize int
	// GoldPerBatch is how many gold standards are hidden in a citizen
	// batch. Zero disables the quality gate (used for masks while the
	// researchers build up the gold pool).
	GoldPerBatch int
	// PartialRatio is the fraction of the non-gold slots filled with
	// partially-labeled items, the rest being fresh ones.
	PartialRatio float64
}

// ClipItem is the sampler's view of one video clip.
type ClipItem struct {
	ID    int64
	State State
	Admin State
}

// MaskItem is the sampler's view of one segmentation mask.
type MaskItem struct {
	ID    int64
	State MaskState
	Admin MaskState
}

// sampleN draws up to n items uniformly without replacement.
func sampleN[T any](rng *rand.Rand, pool []T, n int) []T {
	if n <= 0 || len(pool) == 0 {
		return nil
	}
	shuffled := make([]T, len(pool))
	copy(shuffled, pool)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	if n > len(shuffled) {
		n = len(shuffled)
	}
	return shuffled[:n]
}

// goldSplit splits the gold quota across two subtypes so that neither a
// rubber-stamping nor a reject-everything rater can pass the gate by
// accident. Both shares are at least one when total >= 2.
func goldSplit(rng *rand.Rand, total int) (int, int) {
	if total <= 1 {
		return total, 0
	}
	first := 1 + rng.Intn(total-1)
	return first, total - first
}

// SampleClipBatch assembles one batch of clips for the given rater.
//
// Items already labeled by this rater are excluded outright. Researchers
// draw uniformly from clips whose admin track is still Initial and get no
// gold standards. Citizen tiers get GoldPerBatch gold standards split
// between positive and negative, the non-gold slots filled by PartialRatio
// from partially-labeled clips and the remainder from fresh ones, with clips
// settled on the admin track excluded. The assembled batch is shuffled so
// position never reveals which items are gold.
func SampleClipBatch(pool []ClipItem, labeledByRater map[int64]bool, role Role, cfg SamplerConfig, rng *rand.Rand) ([]ClipItem, error) {
	if role == RoleResearcher {
		var candidates []ClipItem
		for _, it := range pool {
			if labeledByRater[it.ID] {
				continue
			}
			switch it.Admin {
			case StateInitial, StateDiscord, StateMaybeNeg, StateMaybePos:
				candidates = append(candidates, it)
			}
		}
		batch := sampleN(rng, candidates, cfg.BatchSize)
		if len(batch) < cfg.BatchSize {
			return nil, ErrInsufficientPool
		}
		return batch, nil
	}

	var goldPos, goldNeg, partial, fresh []ClipItem
	for _, it := range pool {
		if labeledByRater[it.ID] {
			continue
		}
		switch it.Admin {
		case StateGoldPos:
			goldPos = append(goldPos, it)
			continue
		case StateGoldNeg:
			goldNeg = append(goldNeg, it)
			continue
		}
		if containsState(TerminalAdminStates, it.Admin) {
			// Settled by a researcher, no point asking citizens again.
			continue
		}
		switch it.State {
		case StateInitial:
			fresh = append(fresh, it)
		case StateDiscord, StateMaybeNeg, StateMaybePos:
			partial = append(partial, it)
		}
	}

	numGoldPos, numGoldNeg := goldSplit(rng, cfg.GoldPerBatch)
	pickedGold := append(sampleN(rng, goldPos, numGoldPos), sampleN(rng, goldNeg, numGoldNeg)...)
	if len(pickedGold) != cfg.GoldPerBatch {
		return nil, ErrInsufficientPool
	}

	numNonGold := cfg.BatchSize - cfg.GoldPerBatch
	numPartial := int(float64(numNonGold) * cfg.PartialRatio)
	pickedPartial := sampleN(rng, partial, numPartial)
	pickedFresh := sampleN(rng, fresh, numNonGold-len(pickedPartial))

	batch := append(append(pickedGold, pickedPartial...), pickedFresh...)
	if len(batch) < cfg.BatchSize {
		return nil, ErrInsufficientPool
	}
	rng.Shuffle(len(batch), func(i, j int) {
		batch[i], batch[j] = batch[j], batch[i]
	})
	return batch, nil
}

// SampleMaskBatch assembles one batch of segmentation masks.
//
// Same shape as SampleClipBatch, with one twist on the gold standards: only
// the "needs editing" and "needs removal" subtypes are ever issued. A
// gold-good mask would let raters pass the gate by confirming everything,
// which is exactly the spamming pattern the gate exists to catch.
func SampleMaskBatch(pool []MaskItem, labeledByRater map[int64]bool, role Role, cfg SamplerConfig, rng *rand.Rand) ([]MaskItem, error) {
	if role == RoleResearcher {
		var candidates []MaskItem
		for _, it := range pool {
			if labeledByRater[it.ID] {
				continue
			}
			if it.Admin == MaskInitial {
				candidates = append(candidates, it)
			}
		}
		batch := sampleN(rng, candidates, cfg.BatchSize)
		if len(batch) < cfg.BatchSize {
			return nil, ErrInsufficientPool
		}
		return batch, nil
	}

	var goldEdit, goldRemove, partial, fresh []MaskItem
	for _, it := range pool {
		if labeledByRater[it.ID] {
			continue
		}
		switch it.Admin {
		case MaskGoldEdited:
			goldEdit = append(goldEdit, it)
			continue
		case MaskGoldRemoved:
			goldRemove = append(goldRemove, it)
			continue
		}
		if containsMaskState(TerminalAdminMaskStates, it.Admin) {
			continue
		}
		switch {
		case it.State == MaskInitial:
			fresh = append(fresh, it)
		case containsMaskState(MaskPartialStates, it.State):
			partial = append(partial, it)
		}
	}

	var pickedGold []MaskItem
	if cfg.GoldPerBatch > 0 {
		numEdit, numRemove := goldSplit(rng, cfg.GoldPerBatch)
		pickedGold = append(sampleN(rng, goldEdit, numEdit), sampleN(rng, goldRemove, numRemove)...)
		if len(pickedGold) != cfg.GoldPerBatch {
			return nil, ErrInsufficientPool
		}
	}

	numNonGold := cfg.BatchSize - len(pickedGold)
	numPartial := int(float64(numNonGold) * cfg.PartialRatio)
	pickedPartial := sampleN(rng, partial, numPartial)
	pickedFresh := sampleN(rng, fresh, numNonGold-len(pickedPartial))

	batch := append(append(pickedGold, pickedPartial...), pickedFresh...)
	if len(batch) < cfg.BatchSize {
		return nil, ErrInsufficientPool
	}
	rng.Shuffle(len(batch), func(i, j int) {
		batch[i], batch[j] = batch[j], batch[i]
	})
	return batch, nil
}

func containsState(set []State, s State) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func containsMaskState(set []MaskState, s MaskState) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
