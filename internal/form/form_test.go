package form

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kartoza/soc-estimator/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubPredictor answers every call with the same outcome
type stubPredictor struct {
	mu    sync.Mutex
	calls [][]float64
	value float64
	err   error
}

func (s *stubPredictor) Predict(_ context.Context, values []float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, append([]float64(nil), values...))
	return s.value, s.err
}

func (s *stubPredictor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type reply struct {
	value float64
	err   error
}

type pendingCall struct {
	values []float64
	reply  chan reply
}

// gatedPredictor blocks each call until the test answers it
type gatedPredictor struct {
	calls chan pendingCall
}

func newGatedPredictor() *gatedPredictor {
	return &gatedPredictor{calls: make(chan pendingCall, 4)}
}

func (g *gatedPredictor) Predict(ctx context.Context, values []float64) (float64, error) {
	c := pendingCall{values: values, reply: make(chan reply, 1)}
	g.calls <- c
	select {
	case r := <-c.reply:
		return r.value, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func fill(t *testing.T, f *PredictorForm, values ...string) {
	t.Helper()
	for i, v := range values {
		require.NoError(t, f.Update(i, v))
	}
}

func submitAsync(f *PredictorForm) <-chan error {
	done := make(chan error, 1)
	go func() { done <- f.Submit(context.Background()) }()
	return done
}

func TestNewFormIsBlank(t *testing.T) {
	f := New(&stubPredictor{}, Options{})

	assert.Equal(t, [models.FieldCount]string{"", "", "", "", ""}, f.Values())
	_, ok := f.Result()
	assert.False(t, ok)
	_, ok = f.Err()
	assert.False(t, ok)
	assert.Equal(t, StatusIdle, f.Status())
	assert.Equal(t, DefaultOptions(), f.Options())
}

func TestUpdateChangesOnlyOneField(t *testing.T) {
	for i := 0; i < models.FieldCount; i++ {
		f := New(&stubPredictor{}, Options{})
		fill(t, f, "a", "b", "c", "d", "e")
		before := f.Values()

		require.NoError(t, f.Update(i, "changed"))

		after := f.Values()
		for j := range after {
			if j == i {
				assert.Equal(t, "changed", after[j])
			} else {
				assert.Equal(t, before[j], after[j], "field %d changed by update of %d", j, i)
			}
		}
	}
}

func TestUpdateRejectsOutOfRange(t *testing.T) {
	f := New(&stubPredictor{}, Options{})
	for _, idx := range []int{-1, models.FieldCount, 100} {
		err := f.Update(idx, "1")
		assert.ErrorIs(t, err, ErrIndexOutOfRange)
	}
	assert.Equal(t, [models.FieldCount]string{}, f.Values())
}

func TestSubmitSuccess(t *testing.T) {
	p := &stubPredictor{value: 0.87}
	f := New(p, Options{})
	fill(t, f, "0.002", "-0.001", "0.003", "45.0", "3.1")

	require.NoError(t, f.Submit(context.Background()))

	got, ok := f.Result()
	require.True(t, ok)
	assert.Equal(t, 0.87, got)

	st := f.Snapshot()
	assert.Equal(t, "87.00%", st.Display)
	assert.Empty(t, st.Error)
	assert.Equal(t, StatusIdle, st.Status)

	require.Len(t, p.calls, 1)
	if diff := cmp.Diff([]float64{0.002, -0.001, 0.003, 45.0, 3.1}, p.calls[0]); diff != "" {
		t.Fatalf("values sent out of label order (-want +got):\n%s", diff)
	}
}

func TestSubmitFailurePolicies(t *testing.T) {
	tests := []struct {
		name       string
		policy     FailurePolicy
		wantResult bool
	}{
		{"keep previous result", FailureKeepResult, true},
		{"clear previous result", FailureClearResult, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &stubPredictor{value: 0.5}
			f := New(p, Options{Failure: tt.policy})
			fill(t, f, "1", "2", "3", "4", "5")
			require.NoError(t, f.Submit(context.Background()))

			cause := errors.New("connection refused")
			p.value, p.err = 0, cause
			err := f.Submit(context.Background())

			assert.ErrorIs(t, err, ErrRequestFailed)
			assert.ErrorIs(t, err, cause)
			msg, ok := f.Err()
			assert.True(t, ok)
			assert.Equal(t, FailureMessage, msg)

			v, ok := f.Result()
			assert.Equal(t, tt.wantResult, ok)
			if tt.wantResult {
				assert.Equal(t, 0.5, v)
			}
		})
	}
}

func TestSubmitClearsErrorBeforeAttempt(t *testing.T) {
	p := &stubPredictor{err: errors.New("down")}
	f := New(p, Options{})
	require.Error(t, f.Submit(context.Background()))
	_, ok := f.Err()
	require.True(t, ok)

	p.err, p.value = nil, 0.42
	require.NoError(t, f.Submit(context.Background()))

	_, ok = f.Err()
	assert.False(t, ok)
	v, _ := f.Result()
	assert.Equal(t, 0.42, v)
}

func TestSubmitBlankFieldSendsNaN(t *testing.T) {
	p := &stubPredictor{value: 0.3}
	f := New(p, Options{})
	fill(t, f, "1", "", "3", "abc", "5")

	require.NoError(t, f.Submit(context.Background()))

	require.Equal(t, 1, p.callCount())
	sent := p.calls[0]
	assert.Equal(t, 1.0, sent[0])
	assert.True(t, math.IsNaN(sent[1]))
	assert.Equal(t, 3.0, sent[2])
	assert.True(t, math.IsNaN(sent[3]))
	assert.Equal(t, 5.0, sent[4])
}

func TestSubmitStrictBlocksInvalidInput(t *testing.T) {
	p := &stubPredictor{value: 0.3}
	f := New(p, Options{Input: InputStrict})
	fill(t, f, "1", "2", "", "4", "5")

	err := f.Submit(context.Background())

	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 0, p.callCount())
	msg, ok := f.Err()
	assert.True(t, ok)
	assert.Equal(t, ValidationMessage(models.Labels[2]), msg)
	assert.Equal(t, StatusIdle, f.Status())
}

func TestOverlappingSubmitsIdenticalResponses(t *testing.T) {
	for _, firstToSettle := range []int{0, 1} {
		g := newGatedPredictor()
		f := New(g, Options{Concurrency: ConcurrencyLastResponse})
		fill(t, f, "1", "2", "3", "4", "5")

		done := []<-chan error{submitAsync(f)}
		calls := []pendingCall{<-g.calls}
		done = append(done, submitAsync(f))
		calls = append(calls, <-g.calls)

		order := []int{firstToSettle, 1 - firstToSettle}
		for _, i := range order {
			calls[i].reply <- reply{value: 0.66}
			require.NoError(t, <-done[i])
		}

		v, ok := f.Result()
		require.True(t, ok)
		assert.Equal(t, 0.66, v)
	}
}

func TestLastResponseWins(t *testing.T) {
	tests := []struct {
		name   string
		settle []int
		want   float64
	}{
		{"second request settles last", []int{0, 1}, 0.2},
		{"first request settles last", []int{1, 0}, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGatedPredictor()
			f := New(g, Options{Concurrency: ConcurrencyLastResponse})

			done := []<-chan error{submitAsync(f)}
			calls := []pendingCall{<-g.calls}
			done = append(done, submitAsync(f))
			calls = append(calls, <-g.calls)
			assert.Equal(t, StatusSubmitting, f.Status())

			values := []float64{0.1, 0.2}
			for _, i := range tt.settle {
				calls[i].reply <- reply{value: values[i]}
				require.NoError(t, <-done[i])
			}

			v, _ := f.Result()
			assert.Equal(t, tt.want, v)
			assert.Equal(t, StatusIdle, f.Status())
		})
	}
}

func TestLatestRequestDiscardsStaleResponse(t *testing.T) {
	g := newGatedPredictor()
	f := New(g, Options{Concurrency: ConcurrencyLatestRequest})

	first := submitAsync(f)
	firstCall := <-g.calls
	second := submitAsync(f)
	secondCall := <-g.calls

	secondCall.reply <- reply{value: 0.2}
	require.NoError(t, <-second)

	firstCall.reply <- reply{value: 0.1}
	assert.ErrorIs(t, <-first, ErrSuperseded)

	v, _ := f.Result()
	assert.Equal(t, 0.2, v)
	assert.Equal(t, StatusIdle, f.Status())
}

func TestLatestRequestIgnoresStaleFailure(t *testing.T) {
	g := newGatedPredictor()
	f := New(g, Options{Concurrency: ConcurrencyLatestRequest})

	first := submitAsync(f)
	firstCall := <-g.calls
	second := submitAsync(f)
	secondCall := <-g.calls

	secondCall.reply <- reply{value: 0.7}
	require.NoError(t, <-second)
	firstCall.reply <- reply{err: errors.New("timeout")}
	assert.ErrorIs(t, <-first, ErrSuperseded)

	_, hasErr := f.Err()
	assert.False(t, hasErr)
}

func TestSingleFlightRejectsSecondSubmit(t *testing.T) {
	g := newGatedPredictor()
	f := New(g, Options{Concurrency: ConcurrencySingleFlight})

	first := submitAsync(f)
	call := <-g.calls
	assert.Equal(t, StatusSubmitting, f.Status())

	err := f.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmitInFlight)
	assert.Len(t, g.calls, 0, "rejected submit must not reach the predictor")

	call.reply <- reply{value: 0.9}
	require.NoError(t, <-first)
	assert.Equal(t, StatusIdle, f.Status())

	// The guard is released once the first request settles.
	second := submitAsync(f)
	(<-g.calls).reply <- reply{value: 0.8}
	require.NoError(t, <-second)
	v, _ := f.Result()
	assert.Equal(t, 0.8, v)
}

func TestSubmitHonoursContextCancellation(t *testing.T) {
	g := newGatedPredictor()
	f := New(g, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Submit(ctx) }()
	<-g.calls
	cancel()

	err := <-done
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.ErrorIs(t, err, context.Canceled)
	msg, _ := f.Err()
	assert.Equal(t, FailureMessage, msg)
}

func TestParseValues(t *testing.T) {
	values, bad := ParseValues([models.FieldCount]string{" 1.5 ", "-2", "3e-3", "NaN", "x"})
	assert.Equal(t, 3, bad)
	assert.Equal(t, 1.5, values[0])
	assert.Equal(t, -2.0, values[1])
	assert.Equal(t, 0.003, values[2])
	assert.True(t, math.IsNaN(values[3]))
	assert.True(t, math.IsNaN(values[4]))

	_, bad = ParseValues([models.FieldCount]string{"1", "2", "3", "4", "5"})
	assert.Equal(t, -1, bad)
}

func TestFormatPercent(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0.87, "87.00%"},
		{0, "0.00%"},
		{1, "100.00%"},
		{0.123456, "12.35%"},
		{-0.05, "-5.00%"},
		{math.NaN(), "NaN%"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatPercent(tt.in), "FormatPercent(%v)", tt.in)
	}
}

func TestFormatRaw(t *testing.T) {
	assert.Equal(t, "0.8700", FormatRaw(0.87))
	assert.Equal(t, "NaN", FormatRaw(math.Inf(1)))
}

func TestParsePolicies(t *testing.T) {
	_, err := ParseInputPolicy("strict")
	assert.NoError(t, err)
	_, err = ParseInputPolicy("lenient")
	assert.Error(t, err)

	_, err = ParseFailurePolicy("clear")
	assert.NoError(t, err)
	_, err = ParseFailurePolicy("drop")
	assert.Error(t, err)

	p, err := ParseConcurrencyPolicy("latest-request")
	assert.NoError(t, err)
	assert.Equal(t, ConcurrencyLatestRequest, p)
	_, err = ParseConcurrencyPolicy("none")
	assert.Error(t, err)
}
