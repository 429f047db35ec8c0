package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/label"
	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/models"
)

// MaskStatistics summarizes mask labeling progress.
type MaskStatistics struct {
	NumAllMasks         int `db:"num_all_masks" json:"num_all_masks"`
	NumFullyLabeled     int `db:"num_fully_labeled" json:"num_fully_labeled"`
	NumPartiallyLabeled int `db:"num_partially_labeled" json:"num_partially_labeled"`
}

type MaskRepository interface {
	GetByIDs(ids []int64) ([]models.SegmentationMask, error)
	PoolSnapshot() ([]label.MaskItem, error)
	IDsLabeledByUser(userID int64) (map[int64]bool, error)
	// GoldAnswers resolves the known-correct answer for the gold masks
	// among ids: the subtype, the proposed box, and the latest researcher
	// correction as the reference box.
	GoldAnswers(ids []int64) (map[int64]label.MaskGold, error)
	List(states []label.MaskState, useAdminTrack bool, pageNumber, pageSize int) ([]models.SegmentationMask, int, error)
	Statistics() (*MaskStatistics, error)
	CommitAdminFeedback(maskID, userID int64, code label.FeedbackCode, box *label.Box, decide func(cur label.MaskTracks) (label.MaskState, bool)) (bool, error)
}

type maskRepository struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewMaskRepository(db *sqlx.DB, log *zap.Logger) MaskRepository {
	return &maskRepository{db: db, log: log}
}

const maskColumns = `id, mask_file_name, image_file_name, x_bbox, y_bbox, w_bbox, h_bbox, w_image, h_image, frame_number, frame_timestamp, video_id, priority, label_state, label_state_admin, label_update_time`

func (r *maskRepository) GetByIDs(ids []int64) ([]models.SegmentationMask, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+maskColumns+` FROM segmentation_masks WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var masks []models.SegmentationMask
	if err := r.db.Select(&masks, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return masks, nil
}

func (r *maskRepository) PoolSnapshot() ([]label.MaskItem, error) {
	rows, err := r.db.Queryx(`SELECT id, label_state, label_state_admin FROM segmentation_masks ORDER BY priority DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pool []label.MaskItem
	for rows.Next() {
		var it label.MaskItem
		if err := rows.Scan(&it.ID, &it.State, &it.Admin); err != nil {
			return nil, err
		}
		pool = append(pool, it)
	}
	return pool, rows.Err()
}

func (r *maskRepository) IDsLabeledByUser(userID int64) (map[int64]bool, error) {
	var ids []int64
	if err := r.db.Select(&ids, `SELECT DISTINCT segmentation_id FROM segmentation_feedback WHERE user_id = $1`, userID); err != nil {
		return nil, err
	}
	labeled := make(map[int64]bool, len(ids))
	for _, id := range ids {
		labeled[id] = true
	}
	return labeled, nil
}

func (r *maskRepository) GoldAnswers(ids []int64) (map[int64]label.MaskGold, error) {
	if len(ids) == 0 {
		return map[int64]label.MaskGold{}, nil
	}
	query, args, err := sqlx.In(`SELECT `+maskColumns+` FROM segmentation_masks WHERE id IN (?) AND label_state_admin IN (?)`,
		ids, label.MaskGoldStates)
	if err != nil {
		return nil, err
	}
	var masks []models.SegmentationMask
	if err := r.db.Select(&masks, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	gold := make(map[int64]label.MaskGold, len(masks))
	goldIDs := make([]int64, 0, len(masks))
	for _, m := range masks {
		gold[m.ID] = label.MaskGold{
			Subtype:   m.LabelStateAdmin,
			Proposal:  m.Bbox(),
			Reference: m.Bbox(),
		}
		goldIDs = append(goldIDs, m.ID)
	}
	if len(goldIDs) == 0 {
		return gold, nil
	}

	// Latest researcher gold correction per mask carries the reference box.
	query, args, err = sqlx.In(`SELECT DISTINCT ON (segmentation_id)
			segmentation_id, feedback_code, x_bbox, y_bbox, w_bbox, h_bbox, time, user_id, batch_id, id
		FROM segmentation_feedback
		WHERE segmentation_id IN (?) AND feedback_code IN (?)
		ORDER BY segmentation_id, time DESC, id DESC`,
		goldIDs, []label.FeedbackCode{label.FeedbackGoldGood, label.FeedbackGoldEdited, label.FeedbackGoldRemoved})
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Queryx(r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var f models.SegmentationFeedback
		if err := rows.Scan(&f.SegmentationID, &f.FeedbackCode, &f.XBbox, &f.YBbox, &f.WBbox, &f.HBbox, &f.Time, &f.UserID, &f.BatchID, &f.ID); err != nil {
			return nil, err
		}
		if box := f.Box(); box != nil {
			g := gold[f.SegmentationID]
			g.Reference = *box
			gold[f.SegmentationID] = g
		}
	}
	return gold, rows.Err()
}

func (r *maskRepository) List(states []label.MaskState, useAdminTrack bool, pageNumber, pageSize int) ([]models.SegmentationMask, int, error) {
	if len(states) == 0 {
		return nil, 0, nil
	}
	column := "label_state"
	filter := ""
	args := []interface{}{states}
	if useAdminTrack {
		column = "label_state_admin"
	} else {
		filter = " AND label_state_admin NOT IN (?)"
		args = append(args, append(append([]label.MaskState{}, label.MaskGoldStates...), label.MaskBadStates...))
	}
	where := fmt.Sprintf("%s IN (?)%s", column, filter)

	countQuery, countArgs, err := sqlx.In(`SELECT COUNT(*) FROM segmentation_masks WHERE `+where, args...)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.db.Get(&total, r.db.Rebind(countQuery), countArgs...); err != nil {
		return nil, 0, err
	}

	query, listArgs, err := sqlx.In(
		`SELECT `+maskColumns+` FROM segmentation_masks WHERE `+where+` ORDER BY label_update_time DESC NULLS LAST LIMIT ? OFFSET ?`,
		append(args, pageSize, (pageNumber-1)*pageSize)...)
	if err != nil {
		return nil, 0, err
	}
	var masks []models.SegmentationMask
	if err := r.db.Select(&masks, r.db.Rebind(query), listArgs...); err != nil {
		return nil, 0, err
	}
	return masks, total, nil
}

func (r *maskRepository) Statistics() (*MaskStatistics, error) {
	full := append(append([]label.MaskState{}, label.MaskPosStates...), label.MaskNegStates...)
	excluded := append(append([]label.MaskState{}, label.MaskGoldStates...), label.MaskBadStates...)
	query, args, err := sqlx.In(`SELECT
			COUNT(*) FILTER (WHERE label_state_admin NOT IN (?)) AS num_all_masks,
			COUNT(*) FILTER (WHERE label_state_admin NOT IN (?) AND (label_state_admin IN (?) OR label_state IN (?))) AS num_fully_labeled,
			COUNT(*) FILTER (WHERE label_state IN (?)) AS num_partially_labeled
		FROM segmentation_masks`,
		excluded, excluded,
		[]label.MaskState{label.MaskResearcherGood, label.MaskResearcherEdited, label.MaskResearcherRemoved},
		full, label.MaskPartialStates)
	if err != nil {
		return nil, err
	}
	var stats MaskStatistics
	if err := r.db.Get(&stats, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *maskRepository) CommitAdminFeedback(maskID, userID int64, code label.FeedbackCode, box *label.Box, decide func(cur label.MaskTracks) (label.MaskState, bool)) (bool, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return false, err
	}
	defer tx.Rollback() //nolint:errcheck

	var cur label.MaskTracks
	err = tx.QueryRowx(`SELECT label_state, label_state_admin FROM segmentation_masks WHERE id = $1 FOR UPDATE`, maskID).
		Scan(&cur.State, &cur.Admin)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}

	now := time.Now().Unix()
	if _, err := tx.Exec(
		`INSERT INTO segmentation_feedback (segmentation_id, feedback_code, x_bbox, y_bbox, w_bbox, h_bbox, time, user_id, batch_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL)`,
		maskID, code, boxX(box), boxY(box), boxW(box), boxH(box), now, userID); err != nil {
		return false, err
	}

	next, ok := decide(cur)
	if ok {
		if _, err := tx.Exec(`UPDATE segmentation_masks SET label_state_admin = $1 WHERE id = $2`, next, maskID); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return ok, nil
}

func boxX(b *label.Box) interface{} {
	if b == nil {
		return nil
	}
	return b.X
}

func boxY(b *label.Box) interface{} {
	if b == nil {
		return nil
	}
	return b.Y
}

func boxW(b *label.Box) interface{} {
	if b == nil {
		return nil
	}
	return b.W
}

func boxH(b *label.Box) interface{} {
	if b == nil {
		return nil
	}
	return b.H
}
