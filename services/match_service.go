package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"trivia-duel/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// MatchService serves finished and running matches to clients.
type MatchService struct {
	DB *gorm.DB
}

func NewMatchService(db *gorm.DB) *MatchService {
	return &MatchService{DB: db}
}

// GetMatch returns a match with its participants, answers and live score.
func (s *MatchService) GetMatch(c *fiber.Ctx) error {
	detail, err := LoadMatchDetail(c.UserContext(), s.DB, c.Params("id"))
	if errors.Is(err, ErrMatchNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "match not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "failed to load match",
			"details": err.Error(),
		})
	}
	return c.JSON(detail)
}

// LoadMatchDetail assembles the full view of one match.
func LoadMatchDetail(ctx context.Context, db *gorm.DB, matchID string) (*models.MatchDetail, error) {
	db = db.WithContext(ctx)

	var detail models.MatchDetail
	if err := db.First(&detail.Match, "id = ?", matchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}

	var participants []models.MatchParticipant
	if err := db.Where("match_id = ?", matchID).Order("user_id").Find(&participants).Error; err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	detail.Users = make([]models.PublicUser, 0, len(participants))
	for _, p := range participants {
		detail.Users = append(detail.Users, models.PublicUser{Username: p.UserID})
	}

	if err := db.Where("match_id = ?", matchID).Order("created_at").Find(&detail.Answers).Error; err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}

	score, err := matchScore(db, matchID)
	if err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}
	detail.Score = score
	return &detail, nil
}

// ObjectStore is the blob storage the archive writes to.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
}

// ArchiveService snapshots ended matches into object storage as JSON. It is
// the engine's MatchArchiver when R2 is configured.
type ArchiveService struct {
	DB     *gorm.DB
	Store  ObjectStore
	logger *slog.Logger
}

func NewArchiveService(db *gorm.DB, store ObjectStore, logger *slog.Logger) *ArchiveService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveService{DB: db, Store: store, logger: logger.With("component", "archive")}
}

// ArchiveKey is the object key of a match snapshot.
func ArchiveKey(matchID string) string {
	return "matches/" + matchID + ".json"
}

func (s *ArchiveService) Archive(ctx context.Context, matchID string) error {
	detail, err := LoadMatchDetail(ctx, s.DB, matchID)
	if err != nil {
		return err
	}
	if !detail.IsEnded {
		return fmt.Errorf("match %s is still running", matchID)
	}

	body, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("encode match: %w", err)
	}
	if err := s.Store.PutObject(ctx, ArchiveKey(matchID), body, "application/json"); err != nil {
		return err
	}
	s.logger.Info("match archived", "match_id", matchID, "bytes", len(body))
	return nil
}
