package services

import (
	"net/http"
	"testing"
	"time"

	"trivia-duel/models"
	"trivia-duel/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueueApp(t *testing.T) (*fiber.App, *QueueService) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	testutil.CreateUsers(t, db, "alice", "bob", "carol")

	svc := NewQueueService(db)
	app := fiber.New()
	app.Use(asUser)
	app.Post("/matchmaking/join", svc.Join)
	app.Post("/matchmaking/leave", svc.Leave)
	return app, svc
}

func TestJoinQueue(t *testing.T) {
	app, svc := newQueueApp(t)

	status, _ := doJSON(t, app, http.MethodPost, "/matchmaking/join", "alice", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, testutil.CountRows(t, svc.DB, &models.QueueEntry{}, "user_id = ?", "alice"))

	status, body := doJSON(t, app, http.MethodPost, "/matchmaking/join", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, ErrAlreadyQueued.Error(), body["error"])
	assert.EqualValues(t, 1, testutil.CountRows(t, svc.DB, &models.QueueEntry{}, ""))
}

func TestJoinQueueWhilePlaying(t *testing.T) {
	app, svc := newQueueApp(t)
	qs := testutil.CreateQuestions(t, svc.DB, 1)
	setup := testutil.CreateMatch(t, svc.DB, []string{"alice", "bob"}, qs)

	status, _ := doJSON(t, app, http.MethodPost, "/matchmaking/join", "bob", nil)
	assert.Equal(t, http.StatusConflict, status)

	require.NoError(t, svc.DB.Model(&models.Match{}).Where("id = ?", setup.Match.ID).Update("is_ended", true).Error)
	status, _ = doJSON(t, app, http.MethodPost, "/matchmaking/join", "bob", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestLeaveQueue(t *testing.T) {
	app, svc := newQueueApp(t)
	testutil.Enqueue(t, svc.DB, "alice", "bob")

	status, _ := doJSON(t, app, http.MethodPost, "/matchmaking/leave", "alice", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, testutil.CountRows(t, svc.DB, &models.QueueEntry{}, "user_id = ?", "alice"))

	status, _ = doJSON(t, app, http.MethodPost, "/matchmaking/leave", "carol", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	// a claimed entry belongs to the matchmaker now
	now := time.Now().UTC()
	require.NoError(t, svc.DB.Model(&models.QueueEntry{}).Where("user_id = ?", "bob").Update("claimed_at", &now).Error)
	status, _ = doJSON(t, app, http.MethodPost, "/matchmaking/leave", "bob", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.EqualValues(t, 1, testutil.CountRows(t, svc.DB, &models.QueueEntry{}, "user_id = ?", "bob"))
}
