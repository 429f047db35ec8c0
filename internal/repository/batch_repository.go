package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/label"
	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/models"
)

// ErrBatchAlreadyScored means a second submission arrived for a batch whose
// return time is already set. Batches are single-use; re-scoring would
// double-credit, so this is a hard error, not an idempotent no-op.
var ErrBatchAlreadyScored = errors.New("batch was already scored")

// ClipCommitPlan is everything a scored clip batch writes, assembled by the
// service from the quality gate and the applier, persisted here in one
// transaction.
type ClipCommitPlan struct {
	BatchScore    *int
	Records       []label.ClipResponse
	Changes       []label.ClipChange
	ScoreDelta    int
	RawScoreDelta int
}

// MaskCommitPlan is the segmentation counterpart of ClipCommitPlan.
type MaskCommitPlan struct {
	BatchScore    *int
	Records       []label.MaskRecord
	Changes       []label.MaskChange
	ScoreDelta    int
	RawScoreDelta int
}

type BatchRepository interface {
	Create(kind string, numGoldStandard, numUnlabeled int, connectionID int64) (*models.Batch, error)
	// SubmitClipBatch runs the submit transaction: it locks the batch row
	// (rejecting re-submission), the user row, and every referenced video
	// row, hands the current consensus tracks to plan, and persists what
	// plan decided. The returned user carries the updated score totals.
	SubmitClipBatch(batchID, connectionID, userID int64, videoIDs []int64,
		plan func(batch *models.Batch, user *models.User, tracks map[int64]label.ClipTracks) (*ClipCommitPlan, error)) (*models.User, error)
	// SubmitMaskBatch is the segmentation variant of SubmitClipBatch.
	SubmitMaskBatch(batchID, connectionID, userID int64, maskIDs []int64,
		plan func(batch *models.Batch, user *models.User, tracks map[int64]label.MaskTracks) (*MaskCommitPlan, error)) (*models.User, error)
}

type batchRepository struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewBatchRepository(db *sqlx.DB, log *zap.Logger) BatchRepository {
	return &batchRepository{db: db, log: log}
}

const batchColumns = `id, kind, request_time, return_time, connection_id, score, num_unlabeled, num_gold_standard, user_score, user_raw_score`

func (r *batchRepository) Create(kind string, numGoldStandard, numUnlabeled int, connectionID int64) (*models.Batch, error) {
	batch := &models.Batch{
		Kind:            kind,
		RequestTime:     time.Now().Unix(),
		ConnectionID:    sql.NullInt64{Int64: connectionID, Valid: true},
		NumUnlabeled:    numUnlabeled,
		NumGoldStandard: numGoldStandard,
	}
	query := `INSERT INTO batches (kind, request_time, connection_id, num_unlabeled, num_gold_standard) VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err := r.db.QueryRowx(query, batch.Kind, batch.RequestTime, batch.ConnectionID, batch.NumUnlabeled, batch.NumGoldStandard).Scan(&batch.ID); err != nil {
		return nil, err
	}
	return batch, nil
}

// lockBatchAndUser fetches the batch and user rows under row locks and
// enforces the single-use rule.
func lockBatchAndUser(tx *sqlx.Tx, batchID, userID int64) (*models.Batch, *models.User, error) {
	var batch models.Batch
	err := tx.Get(&batch, `SELECT `+batchColumns+` FROM batches WHERE id = $1 FOR UPDATE`, batchID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if batch.ReturnTime.Valid {
		return nil, nil, ErrBatchAlreadyScored
	}

	var user models.User
	err = tx.Get(&user, `SELECT id, client_id, client_type, score, raw_score, password_hash, register_time FROM users WHERE id = $1 FOR UPDATE`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return &batch, &user, nil
}

func finishBatch(tx *sqlx.Tx, batch *models.Batch, user *models.User, connectionID, now int64, score *int) error {
	var batchScore sql.NullInt64
	if score != nil {
		batchScore = sql.NullInt64{Int64: int64(*score), Valid: true}
	}
	// The user score fields snapshot the totals before this batch.
	_, err := tx.Exec(`UPDATE batches SET return_time = $1, connection_id = $2, score = $3, user_score = $4, user_raw_score = $5 WHERE id = $6`,
		now, connectionID, batchScore, user.Score, user.RawScore, batch.ID)
	return err
}

func (r *batchRepository) SubmitClipBatch(batchID, connectionID, userID int64, videoIDs []int64,
	plan func(batch *models.Batch, user *models.User, tracks map[int64]label.ClipTracks) (*ClipCommitPlan, error)) (*models.User, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	batch, user, err := lockBatchAndUser(tx, batchID, userID)
	if err != nil {
		return nil, err
	}

	tracks := make(map[int64]label.ClipTracks, len(videoIDs))
	if len(videoIDs) > 0 {
		query, args, err := sqlx.In(`SELECT id, label_state, label_state_admin FROM videos WHERE id IN (?) ORDER BY id FOR UPDATE`, videoIDs)
		if err != nil {
			return nil, err
		}
		rows, err := tx.Queryx(tx.Rebind(query), args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id int64
			var t label.ClipTracks
			if err := rows.Scan(&id, &t.State, &t.Admin); err != nil {
				rows.Close()
				return nil, err
			}
			tracks[id] = t
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	p, err := plan(batch, user, tracks)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	if err := finishBatch(tx, batch, user, connectionID, now, p.BatchScore); err != nil {
		return nil, err
	}

	for _, rec := range p.Records {
		if _, err := tx.Exec(`INSERT INTO labels (video_id, label, time, user_id, batch_id) VALUES ($1, $2, $3, $4, $5)`,
			rec.VideoID, rec.Value, now, userID, batchID); err != nil {
			return nil, err
		}
	}
	for _, ch := range p.Changes {
		if ch.AdminTrack {
			if _, err := tx.Exec(`UPDATE videos SET label_state_admin = $1 WHERE id = $2`, ch.To, ch.VideoID); err != nil {
				return nil, err
			}
		} else {
			if _, err := tx.Exec(`UPDATE videos SET label_state = $1, label_update_time = $2 WHERE id = $3`, ch.To, now, ch.VideoID); err != nil {
				return nil, err
			}
		}
	}

	user.Score += p.ScoreDelta
	user.RawScore += p.RawScoreDelta
	if p.ScoreDelta != 0 || p.RawScoreDelta != 0 {
		if _, err := tx.Exec(`UPDATE users SET score = $1, raw_score = $2 WHERE id = $3`, user.Score, user.RawScore, userID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return user, nil
}

func (r *batchRepository) SubmitMaskBatch(batchID, connectionID, userID int64, maskIDs []int64,
	plan func(batch *models.Batch, user *models.User, tracks map[int64]label.MaskTracks) (*MaskCommitPlan, error)) (*models.User, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	batch, user, err := lockBatchAndUser(tx, batchID, userID)
	if err != nil {
		return nil, err
	}

	tracks := make(map[int64]label.MaskTracks, len(maskIDs))
	if len(maskIDs) > 0 {
		query, args, err := sqlx.In(`SELECT id, label_state, label_state_admin FROM segmentation_masks WHERE id IN (?) ORDER BY id FOR UPDATE`, maskIDs)
		if err != nil {
			return nil, err
		}
		rows, err := tx.Queryx(tx.Rebind(query), args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id int64
			var t label.MaskTracks
			if err := rows.Scan(&id, &t.State, &t.Admin); err != nil {
				rows.Close()
				return nil, err
			}
			tracks[id] = t
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	p, err := plan(batch, user, tracks)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	if err := finishBatch(tx, batch, user, connectionID, now, p.BatchScore); err != nil {
		return nil, err
	}

	for _, rec := range p.Records {
		if _, err := tx.Exec(`INSERT INTO segmentation_feedback (segmentation_id, feedback_code, x_bbox, y_bbox, w_bbox, h_bbox, time, user_id, batch_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			rec.SegmentationID, rec.Code, boxX(rec.Box), boxY(rec.Box), boxW(rec.Box), boxH(rec.Box), now, userID, batchID); err != nil {
			return nil, err
		}
	}
	for _, ch := range p.Changes {
		if ch.AdminTrack {
			if _, err := tx.Exec(`UPDATE segmentation_masks SET label_state_admin = $1 WHERE id = $2`, ch.To, ch.SegmentationID); err != nil {
				return nil, err
			}
		} else {
			if _, err := tx.Exec(`UPDATE segmentation_masks SET label_state = $1, label_update_time = $2 WHERE id = $3`, ch.To, now, ch.SegmentationID); err != nil {
				return nil, err
			}
		}
	}

	user.Score += p.ScoreDelta
	user.RawScore += p.RawScoreDelta
	if p.ScoreDelta != 0 || p.RawScoreDelta != 0 {
		if _, err := tx.Exec(`UPDATE users SET score = $1, raw_score = $2 WHERE id = $3`, user.Score, user.RawScore, userID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return user, nil
}
