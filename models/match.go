package models

import "time"

const (
	EndedReasonCompleted = "completed"
	EndedReasonForfeit   = "forfeit"
)

// Match is a head-to-head game. Created by the matchmaker, mutated only by the
// match engine, never deleted.
type Match struct {
	ID          string  `gorm:"primaryKey;type:varchar(36)" json:"id"`
	IsEnded     bool    `gorm:"not null;default:false;index" json:"is_ended"`
	WinnerID    *string `gorm:"type:varchar(255)" json:"winner_id"` // nil = draw or in progress
	EndedReason string  `gorm:"type:varchar(16)" json:"ended_reason,omitempty"`

	Timestamps
}

// MatchParticipant links a user to a match. Exactly PartySize rows per match.
type MatchParticipant struct {
	ID      string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	MatchID string `gorm:"type:varchar(36);not null;uniqueIndex:idx_participant_once,priority:1" json:"match_id"`
	UserID  string `gorm:"type:varchar(255);not null;uniqueIndex:idx_participant_once,priority:2;index" json:"user_id"`
}

// MatchQuestion is one round. The active round is the unanswered row with the
// lowest SortOrder.
type MatchQuestion struct {
	ID         string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	MatchID    string `gorm:"type:varchar(36);not null;uniqueIndex:idx_round_order,priority:1;uniqueIndex:idx_round_question,priority:1" json:"match_id"`
	QuestionID string `gorm:"type:varchar(36);not null;uniqueIndex:idx_round_question,priority:2" json:"question_id"`
	SortOrder  int    `gorm:"column:sort_order;not null;uniqueIndex:idx_round_order,priority:2" json:"order"`
	IsAnswered bool   `gorm:"not null;default:false" json:"is_answered"`
}

// Round is the 1-based round number shown to players.
func (mq MatchQuestion) Round() int {
	return mq.SortOrder + 1
}

// Answer is a single submission. The unique index is what enforces one answer
// per user per round when submissions race.
type Answer struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	MatchID    string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_answer_once,priority:1" json:"match_id"`
	QuestionID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_answer_once,priority:2" json:"question_id"`
	UserID     string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_answer_once,priority:3" json:"user_id"`
	Text       string    `gorm:"type:text;not null" json:"answer"`
	IsCorrect  bool      `gorm:"not null" json:"is_correct"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// MatchSetup is what the matchmaker hands to the match-created callback.
type MatchSetup struct {
	Match        Match
	Participants []MatchParticipant
	Questions    []MatchQuestion
}

// UserIDs returns the participants' user ids in creation order.
func (s MatchSetup) UserIDs() []string {
	ids := make([]string, 0, len(s.Participants))
	for _, p := range s.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// MatchDetail is the match lookup response.
type MatchDetail struct {
	Match
	Users   []PublicUser   `json:"users"`
	Answers []Answer       `json:"answers"`
	Score   map[string]int `json:"score"`
}
