package models

import (
	"database/sql"

	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/label"
)

// Video is one camera clip offered for whole-clip smoke labeling.
// LabelState is the citizen consensus track, LabelStateAdmin the researcher
// track; the two are compared, never merged. LabelUpdateTime tracks citizen
// changes only.
type Video struct {
	ID              int64         `db:"id" json:"id"`
	FileName        string        `db:"file_name" json:"file_name"`
	StartTime       int64         `db:"start_time" json:"start_time"`
	EndTime         sql.NullInt64 `db:"end_time" json:"end_time,omitempty"`
	URLPart         string        `db:"url_part" json:"url_part"`
	LabelState      label.State   `db:"label_state" json:"label_state"`
	LabelStateAdmin label.State   `db:"label_state_admin" json:"label_state_admin,omitempty"`
	LabelUpdateTime sql.NullInt64 `db:"label_update_time" json:"label_update_time,omitempty"`
	Priority        int           `db:"priority" json:"priority"`
	ViewID          int64         `db:"view_id" json:"view_id"`
	CameraID        int64         `db:"camera_id" json:"camera_id"`
}

// LabelRecord is one immutable labeling fact: who said what about which
// clip. Records are append-only; consensus is computed forward from the
// current state, never by replaying these. A null batch id marks an
// out-of-band researcher correction.
type LabelRecord struct {
	ID      int64         `db:"id" json:"id"`
	VideoID int64         `db:"video_id" json:"video_id"`
	Label   int           `db:"label" json:"label"`
	Time    int64         `db:"time" json:"time"`
	UserID  int64         `db:"user_id" json:"user_id"`
	BatchID sql.NullInt64 `db:"batch_id" json:"batch_id,omitempty"`
}
