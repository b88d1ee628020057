package slot

import "time"

// Slot is a creator-declared bookable time window. A booked slot is bound to
// exactly one booking segment; releasing it clears the binding.
type Slot struct {
	ID        int       `db:"id" json:"id"`
	OwnerID   int       `db:"owner_id" json:"owner_id"`
	StartTime time.Time `db:"start_time" json:"start_time"`
	EndTime   time.Time `db:"end_time" json:"end_time"`
	Booked    bool      `db:"booked" json:"booked"`
	SegmentID *int      `db:"segment_id" json:"segment_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type ReserveRequest struct {
	StartTime string `json:"start_time" binding:"required"`
	EndTime   string `json:"end_time" binding:"required"`
}
