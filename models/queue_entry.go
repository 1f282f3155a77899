package models

import "time"

// QueueEntry is a user waiting for a match. UserID is the primary key, so a
// user holds at most one entry.
//
// ClaimedAt/ClaimToken form the matchmaker's soft lock: a claim older than the
// claim timeout is treated as abandoned and the entry becomes eligible again.
type QueueEntry struct {
	UserID     string     `gorm:"primaryKey;type:varchar(255)" json:"user_id"`
	ClaimedAt  *time.Time `gorm:"index" json:"claimed_at,omitempty"`
	ClaimToken *string    `gorm:"type:varchar(36);index" json:"-"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}
