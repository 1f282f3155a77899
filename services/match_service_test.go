package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"trivia-duel/models"
	"trivia-duel/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStore) PutObject(_ context.Context, key string, body []byte, contentType string) error {
	if m.err != nil {
		return m.err
	}
	m.objects[key] = body
	m.types[key] = contentType
	return nil
}

func TestArchiveUploadsEndedMatch(t *testing.T) {
	f := newEngineFixture(t, 1)
	store := newMemStore()
	f.engine.Archiver = NewArchiveService(f.db, store, nil)

	f.submit(t, "alice", f.qs[0].Answer)

	key := ArchiveKey(f.setup.Match.ID)
	require.Contains(t, store.objects, key)
	assert.Equal(t, "application/json", store.types[key])

	var got models.MatchDetail
	require.NoError(t, json.Unmarshal(store.objects[key], &got))
	assert.True(t, got.IsEnded)
	require.NotNil(t, got.WinnerID)
	assert.Equal(t, "alice", *got.WinnerID)
	assert.Equal(t, map[string]int{"alice": 1, "bob": 0}, got.Score)
	require.Len(t, got.Answers, 1)
	assert.Equal(t, f.qs[0].Answer, got.Answers[0].Text)
}

func TestArchiveRejectsRunningMatch(t *testing.T) {
	f := newEngineFixture(t, 2)
	store := newMemStore()
	archive := NewArchiveService(f.db, store, nil)

	err := archive.Archive(context.Background(), f.setup.Match.ID)
	assert.Error(t, err)
	assert.Empty(t, store.objects)

	err = archive.Archive(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestArchiveFailureDoesNotUndoMatchEnd(t *testing.T) {
	f := newEngineFixture(t, 1)
	store := newMemStore()
	store.err = errors.New("bucket unavailable")
	f.engine.Archiver = NewArchiveService(f.db, store, nil)

	out := f.submit(t, "alice", f.qs[0].Answer)
	require.NotNil(t, out.Correct)
	assert.True(t, testutil.ReloadMatch(t, f.db, f.setup.Match.ID).IsEnded)
}

func TestGetMatch(t *testing.T) {
	f := newEngineFixture(t, 3)
	f.submit(t, "bob", f.qs[0].Answer)

	app := fiber.New()
	app.Get("/match/:id", NewMatchService(f.db).GetMatch)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/match/"+f.setup.Match.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	var got struct {
		ID      string              `json:"id"`
		IsEnded bool                `json:"is_ended"`
		Users   []models.PublicUser `json:"users"`
		Answers []json.RawMessage   `json:"answers"`
		Score   map[string]int      `json:"score"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, f.setup.Match.ID, got.ID)
	assert.False(t, got.IsEnded)
	assert.Equal(t, []models.PublicUser{{Username: "alice"}, {Username: "bob"}}, got.Users)
	assert.Len(t, got.Answers, 1)
	assert.Equal(t, map[string]int{"alice": 0, "bob": 1}, got.Score)
	assert.NotContains(t, string(body), "password")

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/match/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
