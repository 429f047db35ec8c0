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

// VideoStatistics summarizes labeling progress for the public stats endpoint.
type VideoStatistics struct {
	NumAllVideos        int `db:"num_all_videos" json:"num_all_videos"`
	NumFullyLabeled     int `db:"num_fully_labeled" json:"num_fully_labeled"`
	NumPartiallyLabeled int `db:"num_partially_labeled" json:"num_partially_labeled"`
}

type VideoRepository interface {
	GetByIDs(ids []int64) ([]models.Video, error)
	// PoolSnapshot returns the consensus tracks of every clip, the
	// sampler's raw material.
	PoolSnapshot() ([]label.ClipItem, error)
	// IDsLabeledByUser returns the clip ids the user has labeled before.
	IDsLabeledByUser(userID int64) (map[int64]bool, error)
	// List pages clips by the given states on one track. On the citizen
	// track, clips settled or discarded by researchers are excluded.
	List(states []label.State, useAdminTrack bool, pageNumber, pageSize int) ([]models.Video, int, error)
	// ListAggregated pages clips by polarity with researcher labels taking
	// precedence over citizen labels, excluding gold and discarded clips.
	ListAggregated(pos bool, pageNumber, pageSize int) ([]models.Video, int, error)
	Statistics() (*VideoStatistics, error)
	// CommitAdminLabel appends a researcher label record (null batch id)
	// and, when decide returns a state, writes the admin track, all in one
	// row-locked transaction.
	CommitAdminLabel(videoID, userID int64, rawValue int, decide func(cur label.ClipTracks) (label.State, bool)) (bool, error)
}

type videoRepository struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewVideoRepository(db *sqlx.DB, log *zap.Logger) VideoRepository {
	return &videoRepository{db: db, log: log}
}

const videoColumns = `id, file_name, start_time, end_time, url_part, label_state, label_state_admin, label_update_time, priority, view_id, camera_id`

func (r *videoRepository) GetByIDs(ids []int64) ([]models.Video, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+videoColumns+` FROM videos WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var videos []models.Video
	if err := r.db.Select(&videos, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return videos, nil
}

func (r *videoRepository) PoolSnapshot() ([]label.ClipItem, error) {
	rows, err := r.db.Queryx(`SELECT id, label_state, label_state_admin FROM videos ORDER BY priority DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pool []label.ClipItem
	for rows.Next() {
		var it label.ClipItem
		if err := rows.Scan(&it.ID, &it.State, &it.Admin); err != nil {
			return nil, err
		}
		pool = append(pool, it)
	}
	return pool, rows.Err()
}

func (r *videoRepository) IDsLabeledByUser(userID int64) (map[int64]bool, error) {
	var ids []int64
	if err := r.db.Select(&ids, `SELECT DISTINCT video_id FROM labels WHERE user_id = $1`, userID); err != nil {
		return nil, err
	}
	labeled := make(map[int64]bool, len(ids))
	for _, id := range ids {
		labeled[id] = true
	}
	return labeled, nil
}

func (r *videoRepository) List(states []label.State, useAdminTrack bool, pageNumber, pageSize int) ([]models.Video, int, error) {
	if len(states) == 0 {
		return nil, 0, nil
	}
	column := "label_state"
	filter := ""
	args := []interface{}{states}
	if useAdminTrack {
		column = "label_state_admin"
	} else {
		// Hide clips the researchers already settled or discarded.
		filter = " AND label_state_admin NOT IN (?)"
		args = append(args, append(append([]label.State{}, label.GoldStates...), label.BadStates...))
	}
	where := fmt.Sprintf("%s IN (?)%s", column, filter)

	countQuery, countArgs, err := sqlx.In(`SELECT COUNT(*) FROM videos WHERE `+where, args...)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.db.Get(&total, r.db.Rebind(countQuery), countArgs...); err != nil {
		return nil, 0, err
	}

	query, listArgs, err := sqlx.In(
		`SELECT `+videoColumns+` FROM videos WHERE `+where+` ORDER BY label_update_time DESC NULLS LAST LIMIT ? OFFSET ?`,
		append(args, pageSize, (pageNumber-1)*pageSize)...)
	if err != nil {
		return nil, 0, err
	}
	var videos []models.Video
	if err := r.db.Select(&videos, r.db.Rebind(query), listArgs...); err != nil {
		return nil, 0, err
	}
	return videos, total, nil
}

func (r *videoRepository) ListAggregated(pos bool, pageNumber, pageSize int) ([]models.Video, int, error) {
	want := label.PosStates
	other := label.NegStates
	if !pos {
		want, other = other, want
	}
	excluded := append(append([]label.State{}, label.GoldStates...), label.BadStates...)
	where := `label_state_admin NOT IN (?)
		AND (label_state_admin IN (?)
			OR (label_state_admin NOT IN (?) AND label_state IN (?)))`
	args := []interface{}{
		excluded,
		want,
		append(append([]label.State{}, label.PosStates...), label.NegStates...),
		want,
	}

	countQuery, countArgs, err := sqlx.In(`SELECT COUNT(*) FROM videos WHERE `+where, args...)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.db.Get(&total, r.db.Rebind(countQuery), countArgs...); err != nil {
		return nil, 0, err
	}

	query, listArgs, err := sqlx.In(
		`SELECT `+videoColumns+` FROM videos WHERE `+where+` ORDER BY label_update_time DESC NULLS LAST LIMIT ? OFFSET ?`,
		append(args, pageSize, (pageNumber-1)*pageSize)...)
	if err != nil {
		return nil, 0, err
	}
	var videos []models.Video
	if err := r.db.Select(&videos, r.db.Rebind(query), listArgs...); err != nil {
		return nil, 0, err
	}
	return videos, total, nil
}

func (r *videoRepository) Statistics() (*VideoStatistics, error) {
	full := append(append([]label.State{}, label.PosStates...), label.NegStates...)
	excluded := append(append([]label.State{}, label.GoldStates...), label.BadStates...)
	query, args, err := sqlx.In(`SELECT
			COUNT(*) FILTER (WHERE label_state_admin NOT IN (?)) AS num_all_videos,
			COUNT(*) FILTER (WHERE label_state_admin NOT IN (?) AND (label_state_admin IN (?) OR label_state IN (?))) AS num_fully_labeled,
			COUNT(*) FILTER (WHERE label_state IN (?)) AS num_partially_labeled
		FROM videos`,
		excluded, excluded, full, full, label.PartialStates)
	if err != nil {
		return nil, err
	}
	var stats VideoStatistics
	if err := r.db.Get(&stats, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *videoRepository) CommitAdminLabel(videoID, userID int64, rawValue int, decide func(cur label.ClipTracks) (label.State, bool)) (bool, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return false, err
	}
	defer tx.Rollback() //nolint:errcheck

	var cur label.ClipTracks
	err = tx.QueryRowx(`SELECT label_state, label_state_admin FROM videos WHERE id = $1 FOR UPDATE`, videoID).
		Scan(&cur.State, &cur.Admin)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}

	now := time.Now().Unix()
	if _, err := tx.Exec(
		`INSERT INTO labels (video_id, label, time, user_id, batch_id) VALUES ($1, $2, $3, $4, NULL)`,
		videoID, rawValue, now, userID); err != nil {
		return false, err
	}

	next, ok := decide(cur)
	if ok {
		if _, err := tx.Exec(`UPDATE videos SET label_state_admin = $1 WHERE id = $2`, next, videoID); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return ok, nil
}
