package services

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"trivia-duel/cache"
	"trivia-duel/models"
	"trivia-duel/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQuestionApp(t *testing.T, withCache bool) (*fiber.App, *QuestionService) {
	t.Helper()
	db := testutil.SetupTestDB(t)

	var qc *cache.QuestionCache
	if withCache {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { rdb.Close() })
		qc = cache.NewQuestionCache(rdb, time.Minute)
	}

	svc := NewQuestionService(db, qc)
	app := fiber.New()
	app.Get("/question/:id", svc.GetQuestion)
	app.Post("/question", svc.CreateQuestion)
	app.Patch("/question/:id", svc.UpdateQuestion)
	app.Delete("/question/:id", svc.DeleteQuestion)
	return app, svc
}

func TestGetQuestionHidesAnswer(t *testing.T) {
	app, svc := newQuestionApp(t, false)
	qs := testutil.CreateQuestions(t, svc.DB, 1)

	status, body := doJSON(t, app, http.MethodGet, "/question/"+qs[0].ID, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, qs[0].ID, body["id"])
	assert.Equal(t, qs[0].Prompt, body["question"])
	assert.NotContains(t, body, "answer")

	status, _ = doJSON(t, app, http.MethodGet, "/question/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCreateQuestionValidation(t *testing.T) {
	app, svc := newQuestionApp(t, false)

	status, body := doJSON(t, app, http.MethodPost, "/question", "", CreateQuestionRequest{Question: "Capital of Peru?", Answer: "Lima"})
	require.Equal(t, http.StatusCreated, status)
	assert.NotContains(t, body, "answer")
	id, _ := body["id"].(string)

	var stored models.Question
	require.NoError(t, svc.DB.First(&stored, "id = ?", id).Error)
	assert.Equal(t, "Lima", stored.Answer)

	for _, req := range []CreateQuestionRequest{
		{Question: "ab", Answer: "Lima"},
		{Question: "Capital of Peru?", Answer: "  ab  "},
		{Question: strings.Repeat("q", 256), Answer: "Lima"},
	} {
		status, _ := doJSON(t, app, http.MethodPost, "/question", "", req)
		assert.Equal(t, http.StatusBadRequest, status)
	}
	assert.EqualValues(t, 1, testutil.CountRows(t, svc.DB, &models.Question{}, ""))
}

func TestUpdateQuestion(t *testing.T) {
	app, svc := newQuestionApp(t, false)
	qs := testutil.CreateQuestions(t, svc.DB, 1)

	newAnswer := "forty-two"
	status, body := doJSON(t, app, http.MethodPatch, "/question/"+qs[0].ID, "", UpdateQuestionRequest{Answer: &newAnswer})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, qs[0].Prompt, body["question"])

	var stored models.Question
	require.NoError(t, svc.DB.First(&stored, "id = ?", qs[0].ID).Error)
	assert.Equal(t, newAnswer, stored.Answer)

	status, _ = doJSON(t, app, http.MethodPatch, "/question/"+qs[0].ID, "", UpdateQuestionRequest{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doJSON(t, app, http.MethodPatch, "/question/missing", "", UpdateQuestionRequest{Answer: &newAnswer})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDeleteQuestion(t *testing.T) {
	app, svc := newQuestionApp(t, false)
	testutil.CreateUsers(t, svc.DB, "alice", "bob")
	qs := testutil.CreateQuestions(t, svc.DB, 2)
	testutil.CreateMatch(t, svc.DB, []string{"alice", "bob"}, qs[:1])

	status, _ := doJSON(t, app, http.MethodDelete, "/question/"+qs[0].ID, "", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = doJSON(t, app, http.MethodDelete, "/question/"+qs[1].ID, "", nil)
	assert.Equal(t, http.StatusNoContent, status)
	assert.EqualValues(t, 1, testutil.CountRows(t, svc.DB, &models.Question{}, ""))
}

func TestQuestionLookupIsCachedAndInvalidated(t *testing.T) {
	app, svc := newQuestionApp(t, true)
	qs := testutil.CreateQuestions(t, svc.DB, 1)
	id := qs[0].ID

	status, _ := doJSON(t, app, http.MethodGet, "/question/"+id, "", nil)
	require.Equal(t, http.StatusOK, status)
	_, ok, err := svc.Cache.Get(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)

	// served from cache even though the row changed underneath
	require.NoError(t, svc.DB.Model(&models.Question{}).Where("id = ?", id).Update("prompt", "Changed?").Error)
	_, body := doJSON(t, app, http.MethodGet, "/question/"+id, "", nil)
	assert.Equal(t, qs[0].Prompt, body["question"])

	prompt := "Updated prompt?"
	status, _ = doJSON(t, app, http.MethodPatch, "/question/"+id, "", UpdateQuestionRequest{Question: &prompt})
	require.Equal(t, http.StatusOK, status)
	_, body = doJSON(t, app, http.MethodGet, "/question/"+id, "", nil)
	assert.Equal(t, prompt, body["question"])
}
