package models

import (
	"database/sql"

	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/label"
)

// SegmentationMask is one model-proposed smoke bounding box offered for
// correction. VideoID links the parent clip when one exists; otherwise
// FrameTimestamp carries the raw capture time. Higher priority masks are
// sampled sooner.
type SegmentationMask struct {
	ID              int64           `db:"id" json:"id"`
	MaskFileName    string          `db:"mask_file_name" json:"mask_file_name"`
	ImageFileName   string          `db:"image_file_name" json:"image_file_name"`
	XBbox           int             `db:"x_bbox" json:"x_bbox"`
	YBbox           int             `db:"y_bbox" json:"y_bbox"`
	WBbox           int             `db:"w_bbox" json:"w_bbox"`
	HBbox           int             `db:"h_bbox" json:"h_bbox"`
	WImage          int             `db:"w_image" json:"w_image"`
	HImage          int             `db:"h_image" json:"h_image"`
	FrameNumber     sql.NullInt64   `db:"frame_number" json:"frame_number,omitempty"`
	FrameTimestamp  sql.NullInt64   `db:"frame_timestamp" json:"frame_timestamp,omitempty"`
	VideoID         sql.NullInt64   `db:"video_id" json:"video_id,omitempty"`
	Priority        int             `db:"priority" json:"priority"`
	LabelState      label.MaskState `db:"label_state" json:"label_state"`
	LabelStateAdmin label.MaskState `db:"label_state_admin" json:"label_state_admin,omitempty"`
	LabelUpdateTime sql.NullInt64   `db:"label_update_time" json:"label_update_time,omitempty"`
}

// Bbox returns the proposed bounding box as a geometry value.
func (m *SegmentationMask) Bbox() label.Box {
	return label.Box{X: m.XBbox, Y: m.YBbox, W: m.WBbox, H: m.HBbox}
}

// SegmentationFeedback is one immutable mask feedback fact. The box fields
// are null unless the feedback carries an edit. A null batch id marks an
// out-of-band researcher correction.
type SegmentationFeedback struct {
	ID             int64              `db:"id" json:"id"`
	SegmentationID int64              `db:"segmentation_id" json:"segmentation_id"`
	FeedbackCode   label.FeedbackCode `db:"feedback_code" json:"feedback_code"`
	XBbox          sql.NullInt64      `db:"x_bbox" json:"x_bbox,omitempty"`
	YBbox          sql.NullInt64      `db:"y_bbox" json:"y_bbox,omitempty"`
	WBbox          sql.NullInt64      `db:"w_bbox" json:"w_bbox,omitempty"`
	HBbox          sql.NullInt64      `db:"h_bbox" json:"h_bbox,omitempty"`
	Time           int64              `db:"time" json:"time"`
	UserID         int64              `db:"user_id" json:"user_id"`
	BatchID        sql.NullInt64      `db:"batch_id" json:"batch_id,omitempty"`
}

// Box returns the edited box when the record carries one.
func (f *SegmentationFeedback) Box() *label.Box {
	if !f.XBbox.Valid || !f.YBbox.Valid || !f.WBbox.Valid || !f.HBbox.Valid {
		return nil
	}
	return &label.Box{
		X: int(f.XBbox.Int64),
		Y: int(f.YBbox.Int64),
		W: int(f.WBbox.Int64),
		H: int(f.HBbox.Int64),
	}
}
