package services

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"trivia-duel/cache"
	"trivia-duel/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	minQuestionLen = 3
	maxQuestionLen = 255
)

type CreateQuestionRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// UpdateQuestionRequest is a partial update; nil fields are left alone.
type UpdateQuestionRequest struct {
	Question *string `json:"question,omitempty"`
	Answer   *string `json:"answer,omitempty"`
}

// QuestionService serves question lookups to players and question management
// to admins. Cache is optional.
type QuestionService struct {
	DB    *gorm.DB
	Cache *cache.QuestionCache
}

func NewQuestionService(db *gorm.DB, qc *cache.QuestionCache) *QuestionService {
	return &QuestionService{DB: db, Cache: qc}
}

func validQuestionText(s string) bool {
	n := utf8.RuneCountInString(s)
	return n >= minQuestionLen && n <= maxQuestionLen
}

// GetQuestion returns the public view of a question. The answer is never
// included.
func (s *QuestionService) GetQuestion(c *fiber.Ctx) error {
	id := c.Params("id")
	ctx := c.UserContext()

	if s.Cache != nil {
		if q, ok, err := s.Cache.Get(ctx, id); err == nil && ok {
			return c.JSON(q)
		}
	}

	var q models.Question
	if err := s.DB.WithContext(ctx).First(&q, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "question not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load question"})
	}

	pub := q.Public()
	if s.Cache != nil {
		_ = s.Cache.Set(ctx, pub)
	}
	return c.JSON(pub)
}

func (s *QuestionService) CreateQuestion(c *fiber.Ctx) error {
	var req CreateQuestionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid JSON",
			"details": err.Error(),
		})
	}
	req.Question = strings.TrimSpace(req.Question)
	req.Answer = strings.TrimSpace(req.Answer)
	if !validQuestionText(req.Question) || !validQuestionText(req.Answer) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "question and answer must be 3 to 255 characters",
		})
	}

	q := models.Question{ID: uuid.NewString(), Prompt: req.Question, Answer: req.Answer}
	if err := s.DB.WithContext(c.UserContext()).Create(&q).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create question"})
	}
	return c.Status(fiber.StatusCreated).JSON(q.Public())
}

func (s *QuestionService) UpdateQuestion(c *fiber.Ctx) error {
	id := c.Params("id")
	var req UpdateQuestionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid JSON",
			"details": err.Error(),
		})
	}

	updates := map[string]interface{}{}
	if req.Question != nil {
		v := strings.TrimSpace(*req.Question)
		if !validQuestionText(v) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "question must be 3 to 255 characters"})
		}
		updates["prompt"] = v
	}
	if req.Answer != nil {
		v := strings.TrimSpace(*req.Answer)
		if !validQuestionText(v) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "answer must be 3 to 255 characters"})
		}
		updates["answer"] = v
	}
	if len(updates) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "nothing to update"})
	}
	updates["updated_at"] = time.Now().UTC()

	db := s.DB.WithContext(c.UserContext())
	res := db.Model(&models.Question{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update question"})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "question not found"})
	}
	s.invalidate(c, id)

	var q models.Question
	if err := db.First(&q, "id = ?", id).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to reload question"})
	}
	return c.JSON(q.Public())
}

// DeleteQuestion refuses to remove a question that a match already uses.
func (s *QuestionService) DeleteQuestion(c *fiber.Ctx) error {
	id := c.Params("id")
	db := s.DB.WithContext(c.UserContext())

	var used int64
	if err := db.Model(&models.MatchQuestion{}).Where("question_id = ?", id).Count(&used).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to check question usage"})
	}
	if used > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "question is used by a match"})
	}

	if err := db.Where("id = ?", id).Delete(&models.Question{}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete question"})
	}
	s.invalidate(c, id)
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *QuestionService) invalidate(c *fiber.Ctx, id string) {
	if s.Cache != nil {
		_ = s.Cache.Invalidate(c.UserContext(), id)
	}
}
