package service

import "time"

// Offering is a bookable service a creator sells, priced per hour.
type Offering struct {
	ID          int       `db:"id" json:"id"`
	CreatorID   int       `db:"creator_id" json:"creator_id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	RateCents   int64     `db:"rate_cents" json:"rate_cents"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type CreateOfferingRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	RateCents   int64  `json:"rate_cents" binding:"required,min=1"`
}
