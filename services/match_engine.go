package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"trivia-duel/events"
	"trivia-duel/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrMatchNotFound  = errors.New("match not found")
	ErrNotParticipant = errors.New("user is not a participant of this match")
	ErrNoActiveRound  = errors.New("match has no active round")
)

// MatchArchiver is told about every match that has just ended.
type MatchArchiver interface {
	Archive(ctx context.Context, matchID string) error
}

// MatchEngine drives a match from round to round. All state lives in the
// database: every transition locks the match row, so any process can pick a
// match up where another left off. The engine never talks to connections; it
// returns broadcasts for the gateway to deliver.
type MatchEngine struct {
	DB        *gorm.DB
	PartySize int
	Archiver  MatchArchiver
	logger    *slog.Logger
}

func NewMatchEngine(db *gorm.DB, partySize int, logger *slog.Logger) *MatchEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &MatchEngine{DB: db, PartySize: partySize, logger: logger.With("component", "match_engine")}
}

// AnswerOutcome is the result of SubmitAnswer. Correct is nil when the
// submission was a duplicate for the round.
type AnswerOutcome struct {
	Correct    *bool
	Broadcasts []events.Broadcast
}

// SubmitAnswer grades and records userID's answer to the active round of
// matchID, then advances the round when it is decided.
func (e *MatchEngine) SubmitAnswer(ctx context.Context, matchID, userID, text string) (*AnswerOutcome, error) {
	out := &AnswerOutcome{}
	ended := false

	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		match, err := lockMatch(tx, matchID)
		if err != nil {
			return err
		}
		if err := requireParticipant(tx, matchID, userID); err != nil {
			return err
		}
		if match.IsEnded {
			return ErrNoActiveRound
		}

		round, question, err := activeRound(tx, matchID)
		if err != nil {
			return err
		}

		correct := strings.TrimSpace(text) == strings.TrimSpace(question.Answer)
		answer := models.Answer{
			ID:         uuid.NewString(),
			MatchID:    matchID,
			QuestionID: round.QuestionID,
			UserID:     userID,
			Text:       text,
			IsCorrect:  correct,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&answer)
		if res.Error != nil {
			return fmt.Errorf("insert answer: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// already answered this round
			return nil
		}
		out.Correct = &correct

		advance := correct
		if correct {
			out.Broadcasts = append(out.Broadcasts, events.Broadcast{
				MatchID:     matchID,
				Event:       events.CorrectAnswer{MatchID: matchID, UserID: userID},
				ExcludeUser: userID,
			})
		} else {
			var answered int64
			if err := tx.Model(&models.Answer{}).
				Where("match_id = ? AND question_id = ?", matchID, round.QuestionID).
				Count(&answered).Error; err != nil {
				return err
			}
			advance = int(answered) >= e.PartySize
		}
		if !advance {
			return nil
		}

		bs, done, err := e.advance(tx, match, round)
		if err != nil {
			return err
		}
		out.Broadcasts = append(out.Broadcasts, bs...)
		ended = done
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Correct == nil {
		e.logger.Info("duplicate answer ignored", "match_id", matchID, "user_id", userID)
	}
	if ended {
		e.archive(ctx, matchID)
	}
	return out, nil
}

// advance closes round and activates the next one, or ends the match when no
// round is left. Must run inside the transaction holding the match lock.
func (e *MatchEngine) advance(tx *gorm.DB, match models.Match, round models.MatchQuestion) ([]events.Broadcast, bool, error) {
	res := tx.Model(&models.MatchQuestion{}).
		Where("id = ? AND is_answered = ?", round.ID, false).
		Update("is_answered", true)
	if res.Error != nil {
		return nil, false, fmt.Errorf("close round: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}

	score, err := matchScore(tx, match.ID)
	if err != nil {
		return nil, false, err
	}
	bs := []events.Broadcast{{
		MatchID: match.ID,
		Event:   events.ScoreUpdate{MatchID: match.ID, Score: score},
	}}

	next, _, err := activeRound(tx, match.ID)
	switch {
	case err == nil:
		bs = append(bs, nextQuestion(next))
		return bs, false, nil
	case !errors.Is(err, ErrNoActiveRound):
		return nil, false, err
	}

	winner := decideWinner(score)
	if err := endMatch(tx, match.ID, winner, models.EndedReasonCompleted); err != nil {
		return nil, false, err
	}
	e.logger.Info("match completed", "match_id", match.ID, "winner", derefOr(winner, "draw"), "score", score)
	bs = append(bs, events.Broadcast{
		MatchID: match.ID,
		Event:   events.MatchEnded{MatchID: match.ID, Winner: winner, Reason: models.EndedReasonCompleted},
	})
	return bs, true, nil
}

// ActivateRound announces the current round of a running match. It returns no
// broadcast for an ended match.
func (e *MatchEngine) ActivateRound(ctx context.Context, matchID string) ([]events.Broadcast, error) {
	db := e.DB.WithContext(ctx)

	var match models.Match
	if err := db.First(&match, "id = ?", matchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	if match.IsEnded {
		return nil, nil
	}

	round, _, err := activeRound(db, matchID)
	if errors.Is(err, ErrNoActiveRound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []events.Broadcast{nextQuestion(round)}, nil
}

// ForfeitOnDisconnect removes userID from the queue and ends every running
// match they are in, awarding it to the remaining participant.
func (e *MatchEngine) ForfeitOnDisconnect(ctx context.Context, userID string) ([]events.Broadcast, error) {
	db := e.DB.WithContext(ctx)

	if err := db.Where("user_id = ?", userID).Delete(&models.QueueEntry{}).Error; err != nil {
		return nil, fmt.Errorf("leave queue: %w", err)
	}

	matchIDs, err := e.RunningMatches(ctx, userID)
	if err != nil {
		return nil, err
	}

	var (
		out  []events.Broadcast
		errs []error
	)
	for _, matchID := range matchIDs {
		b, err := e.forfeit(ctx, matchID, userID)
		if err != nil {
			e.logger.Error("forfeit failed", "match_id", matchID, "user_id", userID, "error", err)
			errs = append(errs, err)
			continue
		}
		if b != nil {
			out = append(out, *b)
			e.archive(ctx, matchID)
		}
	}
	return out, errors.Join(errs...)
}

// RunningMatches lists the unterminated matches userID takes part in.
func (e *MatchEngine) RunningMatches(ctx context.Context, userID string) ([]string, error) {
	var matchIDs []string
	if err := e.DB.WithContext(ctx).Model(&models.MatchParticipant{}).
		Joins("JOIN matches ON matches.id = match_participants.match_id").
		Where("match_participants.user_id = ? AND matches.is_ended = ?", userID, false).
		Order("match_participants.match_id").
		Pluck("match_participants.match_id", &matchIDs).Error; err != nil {
		return nil, fmt.Errorf("find running matches: %w", err)
	}
	return matchIDs, nil
}

func (e *MatchEngine) forfeit(ctx context.Context, matchID, leaver string) (*events.Broadcast, error) {
	var out *events.Broadcast
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		match, err := lockMatch(tx, matchID)
		if err != nil {
			return err
		}
		if match.IsEnded {
			return nil
		}

		var others []string
		if err := tx.Model(&models.MatchParticipant{}).
			Where("match_id = ? AND user_id <> ?", matchID, leaver).
			Pluck("user_id", &others).Error; err != nil {
			return err
		}
		if len(others) != 1 {
			return nil
		}

		winner := others[0]
		if err := endMatch(tx, matchID, &winner, models.EndedReasonForfeit); err != nil {
			return err
		}
		e.logger.Info("match forfeited", "match_id", matchID, "leaver", leaver, "winner", winner)
		out = &events.Broadcast{
			MatchID: matchID,
			Event:   events.MatchEnded{MatchID: matchID, Winner: &winner, Reason: models.EndedReasonForfeit},
		}
		return nil
	})
	return out, err
}

// Score returns the live score of matchID.
func (e *MatchEngine) Score(ctx context.Context, matchID string) (map[string]int, error) {
	db := e.DB.WithContext(ctx)
	var n int64
	if err := db.Model(&models.Match{}).Where("id = ?", matchID).Count(&n).Error; err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrMatchNotFound
	}
	return matchScore(db, matchID)
}

func (e *MatchEngine) archive(ctx context.Context, matchID string) {
	if e.Archiver == nil {
		return
	}
	if err := e.Archiver.Archive(ctx, matchID); err != nil {
		e.logger.Warn("archive failed", "match_id", matchID, "error", err)
	}
}

func lockMatch(tx *gorm.DB, matchID string) (models.Match, error) {
	var match models.Match
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&match, "id = ?", matchID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return match, ErrMatchNotFound
	}
	return match, err
}

func requireParticipant(tx *gorm.DB, matchID, userID string) error {
	var n int64
	if err := tx.Model(&models.MatchParticipant{}).
		Where("match_id = ? AND user_id = ?", matchID, userID).
		Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotParticipant
	}
	return nil
}

// activeRound returns the unanswered round with the lowest order together
// with its question.
func activeRound(tx *gorm.DB, matchID string) (models.MatchQuestion, models.Question, error) {
	var round models.MatchQuestion
	var question models.Question

	err := tx.Where("match_id = ? AND is_answered = ?", matchID, false).
		Order("sort_order ASC").
		Take(&round).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return round, question, ErrNoActiveRound
	}
	if err != nil {
		return round, question, err
	}

	if err := tx.Take(&question, "id = ?", round.QuestionID).Error; err != nil {
		return round, question, fmt.Errorf("load question %s: %w", round.QuestionID, err)
	}
	return round, question, nil
}

// matchScore counts correct answers per participant; participants without any
// correct answer are present with 0.
func matchScore(tx *gorm.DB, matchID string) (map[string]int, error) {
	var users []string
	if err := tx.Model(&models.MatchParticipant{}).
		Where("match_id = ?", matchID).
		Pluck("user_id", &users).Error; err != nil {
		return nil, err
	}

	var rows []struct {
		UserID string
		Total  int
	}
	if err := tx.Model(&models.Answer{}).
		Select("user_id, COUNT(*) AS total").
		Where("match_id = ? AND is_correct = ?", matchID, true).
		Group("user_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	score := make(map[string]int, len(users))
	for _, u := range users {
		score[u] = 0
	}
	for _, r := range rows {
		if _, ok := score[r.UserID]; ok {
			score[r.UserID] = r.Total
		}
	}
	return score, nil
}

// decideWinner returns the unique top scorer, or nil when every score is equal
// or the top score is shared.
func decideWinner(score map[string]int) *string {
	var (
		best    string
		top     = -1
		atTop   int
		allSame = true
		first   = true
		prev    int
	)
	for user, n := range score {
		if !first && n != prev {
			allSame = false
		}
		first, prev = false, n

		switch {
		case n > top:
			best, top, atTop = user, n, 1
		case n == top:
			atTop++
		}
	}
	if len(score) == 0 || allSame || atTop > 1 {
		return nil
	}
	return &best
}

func endMatch(tx *gorm.DB, matchID string, winner *string, reason string) error {
	res := tx.Model(&models.Match{}).
		Where("id = ? AND is_ended = ?", matchID, false).
		Updates(map[string]interface{}{
			"is_ended":     true,
			"winner_id":    winner,
			"ended_reason": reason,
		})
	if res.Error != nil {
		return fmt.Errorf("end match: %w", res.Error)
	}
	return nil
}

func nextQuestion(round models.MatchQuestion) events.Broadcast {
	return events.Broadcast{
		MatchID: round.MatchID,
		Event: events.NextQuestion{
			MatchID:    round.MatchID,
			QuestionID: round.QuestionID,
			Round:      round.Round(),
		},
	}
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
