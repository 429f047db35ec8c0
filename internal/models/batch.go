package models

import "database/sql"

// Batch kinds. A batch only ever carries one item kind.
const (
	BatchKindVideo        = "video"
	BatchKindSegmentation = "segmentation"
)

// Batch is one unit of issued work: a fixed set of items bound to one rater
// and connection. It is single-use; ReturnTime is set exactly once when the
// batch is scored, and a second submission is rejected. Score stays null for
// researcher batches. UserScore/UserRawScore snapshot the rater's totals at
// scoring time for the contribution history.
type Batch struct {
	ID              int64         `db:"id" json:"id"`
	Kind            string        `db:"kind" json:"kind"`
	RequestTime     int64         `db:"request_time" json:"request_time"`
	ReturnTime      sql.NullInt64 `db:"return_time" json:"return_time,omitempty"`
	ConnectionID    sql.NullInt64 `db:"connection_id" json:"connection_id,omitempty"`
	Score           sql.NullInt64 `db:"score" json:"score,omitempty"`
	NumUnlabeled    int           `db:"num_unlabeled" json:"num_unlabeled"`
	NumGoldStandard int           `db:"num_gold_standard" json:"num_gold_standard"`
	UserScore       sql.NullInt64 `db:"user_score" json:"user_score,omitempty"`
	UserRawScore    sql.NullInt64 `db:"user_raw_score" json:"user_raw_score,omitempty"`
}
