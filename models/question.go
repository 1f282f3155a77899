package models

import "time"

// Question is immutable reference data. Answer never leaves the server
// before grading, so it is excluded from JSON.
type Question struct {
	ID     string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Prompt string `gorm:"type:text;not null" json:"question"`
	Answer string `gorm:"type:text;not null" json:"-"`

	Timestamps
}

// PublicQuestion is what the question lookup hands out.
type PublicQuestion struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (q Question) Public() PublicQuestion {
	return PublicQuestion{
		ID:        q.ID,
		Question:  q.Prompt,
		CreatedAt: q.CreatedAt,
		UpdatedAt: q.UpdatedAt,
	}
}
