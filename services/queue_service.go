package services

import (
	"errors"
	"fmt"

	"trivia-duel/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAlreadyQueued = errors.New("already in queue")
	ErrInActiveMatch = errors.New("already in an active match")
	ErrNotQueued     = errors.New("not in queue or already being matched")
)

// QueueService lets players enter and leave the waiting pool the matchmaker
// draws from.
type QueueService struct {
	DB *gorm.DB
}

func NewQueueService(db *gorm.DB) *QueueService {
	return &QueueService{DB: db}
}

// Enqueue adds userID to the pool. A user that already waits or plays is
// refused.
func (s *QueueService) Enqueue(db *gorm.DB, userID string) error {
	var running int64
	if err := db.Model(&models.MatchParticipant{}).
		Joins("JOIN matches ON matches.id = match_participants.match_id").
		Where("match_participants.user_id = ? AND matches.is_ended = ?", userID, false).
		Count(&running).Error; err != nil {
		return fmt.Errorf("check running matches: %w", err)
	}
	if running > 0 {
		return ErrInActiveMatch
	}

	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.QueueEntry{UserID: userID})
	if res.Error != nil {
		return fmt.Errorf("insert queue entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyQueued
	}
	return nil
}

// Dequeue removes userID's entry unless the matchmaker has claimed it.
func (s *QueueService) Dequeue(db *gorm.DB, userID string) error {
	res := db.Where("user_id = ? AND claimed_at IS NULL", userID).Delete(&models.QueueEntry{})
	if res.Error != nil {
		return fmt.Errorf("delete queue entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotQueued
	}
	return nil
}

func (s *QueueService) Join(c *fiber.Ctx) error {
	err := s.Enqueue(s.DB.WithContext(c.UserContext()), currentUser(c))
	switch {
	case errors.Is(err, ErrAlreadyQueued):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrInActiveMatch):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to join queue"})
	}
	return c.JSON(fiber.Map{"message": "joined queue"})
}

func (s *QueueService) Leave(c *fiber.Ctx) error {
	err := s.Dequeue(s.DB.WithContext(c.UserContext()), currentUser(c))
	if errors.Is(err, ErrNotQueued) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to leave queue"})
	}
	return c.JSON(fiber.Map{"message": "left queue"})
}
