package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"trivia-duel/config"
	"trivia-duel/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	errNoQuestions = errors.New("no questions available")
	errClaimLost   = errors.New("queue entries were re-claimed by another worker")
)

// Matchmaker pairs queued users into matches. Several matchmakers may poll the
// same database: a conditional claim decides who owns an entry, and a claim
// older than ClaimTimeout is treated as abandoned.
type Matchmaker struct {
	DB                *gorm.DB
	PartySize         int
	QuestionsPerMatch int
	ClaimTimeout      time.Duration
	Interval          time.Duration

	// OnMatchCreated runs after the match is committed and its users have
	// left the queue.
	OnMatchCreated func(ctx context.Context, setup models.MatchSetup)

	logger *slog.Logger
	now    func() time.Time
}

func NewMatchmaker(db *gorm.DB, onCreated func(context.Context, models.MatchSetup), logger *slog.Logger) *Matchmaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matchmaker{
		DB:                db,
		PartySize:         config.PartySize,
		QuestionsPerMatch: 5,
		ClaimTimeout:      30 * time.Second,
		Interval:          500 * time.Millisecond,
		OnMatchCreated:    onCreated,
		logger:            logger.With("component", "matchmaker"),
		now:               time.Now,
	}
}

// Run polls the queue every Interval until ctx is cancelled. An iteration in
// flight when ctx ends is allowed to finish.
func (m *Matchmaker) Run(ctx context.Context) error {
	sched, err := gocron.NewScheduler(
		gocron.WithLogger(m.logger),
		gocron.WithStopTimeout(m.ClaimTimeout),
	)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	iterCtx := context.WithoutCancel(ctx)
	_, err = sched.NewJob(
		gocron.DurationJob(m.Interval),
		gocron.NewTask(func() { m.tick(iterCtx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule matchmaker: %w", err)
	}

	m.logger.Info("matchmaker started", "interval", m.Interval, "party_size", m.PartySize)
	sched.Start()
	<-ctx.Done()

	if err := sched.Shutdown(); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	m.logger.Info("matchmaker stopped")
	return nil
}

func (m *Matchmaker) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("matchmaker iteration panicked", "panic", r)
		}
	}()
	if _, err := m.RunOnce(ctx); err != nil {
		m.logger.Error("matchmaker iteration failed", "error", err)
	}
}

// RunOnce makes at most one match. It returns nil without error when there
// are not enough eligible users or another worker won the claim.
func (m *Matchmaker) RunOnce(ctx context.Context) (*models.MatchSetup, error) {
	db := m.DB.WithContext(ctx)
	now := m.now().UTC()
	cutoff := now.Add(-m.ClaimTimeout)

	var userIDs []string
	if err := db.Model(&models.QueueEntry{}).
		Where("claimed_at IS NULL OR claimed_at < ?", cutoff).
		Order("created_at ASC").
		Limit(m.PartySize).
		Pluck("user_id", &userIDs).Error; err != nil {
		return nil, fmt.Errorf("select queue: %w", err)
	}
	if len(userIDs) < m.PartySize {
		return nil, nil
	}

	token := uuid.NewString()
	res := db.Model(&models.QueueEntry{}).
		Where("user_id IN ? AND (claimed_at IS NULL OR claimed_at < ?)", userIDs, cutoff).
		Updates(map[string]interface{}{"claimed_at": now, "claim_token": token})
	if res.Error != nil {
		return nil, fmt.Errorf("claim queue entries: %w", res.Error)
	}
	if int(res.RowsAffected) < m.PartySize {
		// someone else got there first
		if err := m.release(db, token); err != nil {
			m.logger.Warn("release partial claim failed", "error", err)
		}
		return nil, nil
	}

	setup, err := m.createMatch(db, token, userIDs)
	if err != nil {
		if rerr := m.release(db, token); rerr != nil {
			m.logger.Warn("release claim failed", "error", rerr)
		}
		if errors.Is(err, errClaimLost) {
			m.logger.Debug("claim lost during match creation", "users", userIDs)
			return nil, nil
		}
		return nil, fmt.Errorf("create match for %v: %w", userIDs, err)
	}

	m.logger.Info("match created",
		"match_id", setup.Match.ID,
		"users", setup.UserIDs(),
		"questions", len(setup.Questions),
	)
	if m.OnMatchCreated != nil {
		m.OnMatchCreated(ctx, *setup)
	}
	return setup, nil
}

// createMatch writes the match and removes the claimed entries in one
// transaction, so a user is never both queued and matched.
func (m *Matchmaker) createMatch(db *gorm.DB, token string, userIDs []string) (*models.MatchSetup, error) {
	setup := &models.MatchSetup{Match: models.Match{ID: uuid.NewString()}}

	err := db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("claim_token = ?", token).Delete(&models.QueueEntry{})
		if res.Error != nil {
			return fmt.Errorf("dequeue: %w", res.Error)
		}
		if int(res.RowsAffected) < m.PartySize {
			return errClaimLost
		}

		var questionIDs []string
		if err := tx.Model(&models.Question{}).
			Order("RANDOM()").
			Limit(m.QuestionsPerMatch).
			Pluck("id", &questionIDs).Error; err != nil {
			return fmt.Errorf("pick questions: %w", err)
		}
		if len(questionIDs) == 0 {
			return errNoQuestions
		}

		if err := tx.Create(&setup.Match).Error; err != nil {
			return fmt.Errorf("insert match: %w", err)
		}

		for _, uid := range userIDs {
			setup.Participants = append(setup.Participants, models.MatchParticipant{
				ID: uuid.NewString(), MatchID: setup.Match.ID, UserID: uid,
			})
		}
		if err := tx.Create(&setup.Participants).Error; err != nil {
			return fmt.Errorf("insert participants: %w", err)
		}

		for i, qid := range questionIDs {
			setup.Questions = append(setup.Questions, models.MatchQuestion{
				ID: uuid.NewString(), MatchID: setup.Match.ID, QuestionID: qid, SortOrder: i,
			})
		}
		if err := tx.Create(&setup.Questions).Error; err != nil {
			return fmt.Errorf("insert rounds: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return setup, nil
}

func (m *Matchmaker) release(db *gorm.DB, token string) error {
	return db.Model(&models.QueueEntry{}).
		Where("claim_token = ?", token).
		Updates(map[string]interface{}{"claimed_at": nil, "claim_token": nil}).Error
}
