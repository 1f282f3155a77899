// Package testutil provides a throwaway database and fixtures for tests.
package testutil

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"trivia-duel/database"
	"trivia-duel/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB opens a fresh SQLite database in a temp dir with the full
// schema. A single connection serializes access the way row locks would.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "trivia.db") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return db
}

// CreateUsers inserts users with a placeholder hash.
func CreateUsers(t *testing.T, db *gorm.DB, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := db.Create(&models.User{Username: name, Password: "x"}).Error; err != nil {
			t.Fatalf("Failed to create user %s: %v", name, err)
		}
	}
}

// CreateQuestions inserts n questions whose answer is "answer-<i>".
func CreateQuestions(t *testing.T, db *gorm.DB, n int) []models.Question {
	t.Helper()
	qs := make([]models.Question, n)
	for i := range qs {
		qs[i] = models.Question{
			ID:     uuid.NewString(),
			Prompt: fmt.Sprintf("Question %d?", i),
			Answer: fmt.Sprintf("answer-%d", i),
		}
	}
	if n > 0 {
		if err := db.Create(&qs).Error; err != nil {
			t.Fatalf("Failed to create questions: %v", err)
		}
	}
	return qs
}

// Enqueue adds users to the waiting pool, oldest first.
func Enqueue(t *testing.T, db *gorm.DB, names ...string) {
	t.Helper()
	base := time.Now().UTC().Add(-time.Minute)
	for i, name := range names {
		entry := models.QueueEntry{UserID: name, CreatedAt: base.Add(time.Duration(i) * time.Millisecond)}
		if err := db.Create(&entry).Error; err != nil {
			t.Fatalf("Failed to enqueue %s: %v", name, err)
		}
	}
}

// CreateMatch builds a running match between users over the given questions,
// in order, bypassing the matchmaker.
func CreateMatch(t *testing.T, db *gorm.DB, users []string, questions []models.Question) models.MatchSetup {
	t.Helper()

	setup := models.MatchSetup{Match: models.Match{ID: uuid.NewString()}}
	if err := db.Create(&setup.Match).Error; err != nil {
		t.Fatalf("Failed to create match: %v", err)
	}
	for _, u := range users {
		p := models.MatchParticipant{ID: uuid.NewString(), MatchID: setup.Match.ID, UserID: u}
		if err := db.Create(&p).Error; err != nil {
			t.Fatalf("Failed to create participant: %v", err)
		}
		setup.Participants = append(setup.Participants, p)
	}
	for i, q := range questions {
		mq := models.MatchQuestion{ID: uuid.NewString(), MatchID: setup.Match.ID, QuestionID: q.ID, SortOrder: i}
		if err := db.Create(&mq).Error; err != nil {
			t.Fatalf("Failed to create match question: %v", err)
		}
		setup.Questions = append(setup.Questions, mq)
	}
	return setup
}

// ReloadMatch fetches the current match row.
func ReloadMatch(t *testing.T, db *gorm.DB, id string) models.Match {
	t.Helper()
	var m models.Match
	if err := db.First(&m, "id = ?", id).Error; err != nil {
		t.Fatalf("Failed to reload match: %v", err)
	}
	return m
}

// CountRows counts rows of model matching the optional where clause.
func CountRows(t *testing.T, db *gorm.DB, model interface{}, where string, args ...interface{}) int64 {
	t.Helper()
	q := db.Model(model)
	if where != "" {
		q = q.Where(where, args...)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	return n
}
