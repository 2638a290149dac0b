package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartoza/soc-estimator/internal/form"
)

type constPredictor float64

func (c constPredictor) Predict(context.Context, []float64) (float64, error) {
	return float64(c), nil
}

func newTestStore(size int, ttl time.Duration) *Store {
	return NewStore(size, ttl, func() *form.PredictorForm {
		return form.New(constPredictor(0.5), form.Options{})
	})
}

func TestGetOrCreateIssuesNewID(t *testing.T) {
	s := newTestStore(4, time.Hour)

	id, f, created := s.GetOrCreate("")
	require.True(t, created)
	require.NotNil(t, f)
	assert.True(t, ValidID(id))
	assert.Equal(t, 1, s.Len())

	again, f2, created := s.GetOrCreate(id)
	assert.False(t, created)
	assert.Equal(t, id, again)
	assert.Same(t, f, f2)
}

func TestGetOrCreateReplacesMalformedID(t *testing.T) {
	s := newTestStore(4, time.Hour)

	id, _, created := s.GetOrCreate("not-a-uuid")
	assert.True(t, created)
	assert.NotEqual(t, "not-a-uuid", id)
	assert.True(t, ValidID(id))
}

func TestGetOrCreateDoesNotAdoptUnknownID(t *testing.T) {
	s := newTestStore(4, time.Hour)
	chosen := NewID()

	id, _, created := s.GetOrCreate(chosen)
	assert.True(t, created)
	assert.NotEqual(t, chosen, id)
	assert.False(t, s.forms.Contains(chosen))
}

func TestSessionsAreIsolated(t *testing.T) {
	s := newTestStore(4, time.Hour)
	_, a, _ := s.GetOrCreate("")
	_, b, _ := s.GetOrCreate("")

	require.NoError(t, a.Update(0, "1.0"))
	require.NoError(t, a.Submit(context.Background()))

	assert.Equal(t, "", b.Values()[0])
	_, ok := b.Result()
	assert.False(t, ok)
}

func TestLeastRecentlyUsedEviction(t *testing.T) {
	s := newTestStore(2, time.Hour)
	first, _, _ := s.GetOrCreate("")
	second, _, _ := s.GetOrCreate("")

	// touch first so second becomes the eviction candidate
	_, _, created := s.GetOrCreate(first)
	require.False(t, created)

	s.GetOrCreate("")
	assert.Equal(t, 2, s.Len())
	assert.False(t, s.forms.Contains(second))
	assert.True(t, s.forms.Contains(first))
}

func TestIdleSessionExpires(t *testing.T) {
	s := newTestStore(4, 20*time.Millisecond)
	id, _, _ := s.GetOrCreate("")

	require.Eventually(t, func() bool {
		_, ok := s.forms.Peek(id)
		return !ok
	}, time.Second, 10*time.Millisecond)

	again, _, created := s.GetOrCreate(id)
	assert.True(t, created)
	assert.NotEqual(t, id, again)
}

func TestActiveSessionOutlivesTTL(t *testing.T) {
	const ttl = 300 * time.Millisecond
	s := newTestStore(4, ttl)
	id, f, _ := s.GetOrCreate("")
	require.NoError(t, f.Update(0, "0.002"))

	deadline := time.Now().Add(2 * ttl)
	for time.Now().Before(deadline) {
		time.Sleep(ttl / 5)
		got, same, created := s.GetOrCreate(id)
		require.False(t, created, "active session was dropped")
		require.Equal(t, id, got)
		require.Same(t, f, same)
	}
	assert.Equal(t, "0.002", f.Values()[0])
}
