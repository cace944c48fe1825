package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keen-eye/survey-engine/internal/models"
)

func testState(id string) *models.SessionState {
	return &models.SessionState{
		Session: models.Session{ID: id, Status: models.SessionInProgress, TotalQuestions: 2},
		Trials: []models.Trial{
			{ID: 1, Category: models.CategoryProduct, ImageID: "product-01"},
			{ID: 2, Category: models.CategoryHuman, ImageID: "human-01"},
		},
	}
}

func TestMemoryStoreStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)

	_, err := s.LoadState(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveState(ctx, testState("s1")))

	got, err := s.LoadState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.Session.ID)
	assert.Len(t, got.Trials, 2)

	// the returned value is a copy
	got.Trials[0].ImageID = "changed"
	again, err := s.LoadState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "product-01", again.Trials[0].ImageID)
}

func TestMemoryStoreAnswersKeepOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)
	require.NoError(t, s.SaveState(ctx, testState("s1")))

	for i := 1; i <= 3; i++ {
		n, err := s.AppendAnswer(ctx, "s1", models.Answer{QuestionID: i})
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	answers, err := s.Answers(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, answers, 3)
	for i, a := range answers {
		assert.Equal(t, i+1, a.QuestionID)
	}

	empty, err := s.Answers(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryStoreConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AppendAnswer(ctx, "s1", models.Answer{QuestionID: i})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	answers, err := s.Answers(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, answers, 50)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.SaveState(ctx, testState("old")))
	now = now.Add(30 * time.Second)
	require.NoError(t, s.SaveState(ctx, testState("new")))

	now = now.Add(45 * time.Second)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 1, s.Purge())
	assert.Equal(t, 1, s.Len())

	_, err := s.LoadState(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.LoadState(ctx, "new")
	assert.NoError(t, err)

	// appending refreshes the expiry
	now = now.Add(10 * time.Second)
	_, err = s.AppendAnswer(ctx, "new", models.Answer{QuestionID: 1})
	require.NoError(t, err)
	now = now.Add(50 * time.Second)
	_, err = s.LoadState(ctx, "new")
	assert.NoError(t, err)
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	require.NoError(t, s.SaveState(ctx, testState("s1")))
	_, err := s.AppendAnswer(ctx, "s1", models.Answer{QuestionID: 1})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "s1"))
	_, err = s.LoadState(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
	answers, err := s.Answers(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, answers)
	assert.NoError(t, s.Ping(ctx))
}

func TestMemoryStoreCreateRefusesLiveID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.CreateState(ctx, testState("s1")))
	_, err := s.AppendAnswer(ctx, "s1", models.Answer{QuestionID: 1})
	require.NoError(t, err)

	err = s.CreateState(ctx, testState("s1"))
	assert.ErrorIs(t, err, ErrExists)

	answers, err := s.Answers(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, answers, 1)

	// an expired id can be reused
	now = now.Add(2 * time.Hour)
	require.NoError(t, s.CreateState(ctx, testState("s1")))
	answers, err = s.Answers(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, answers)
}
