// Package form holds the predictor form: five reading fields, one submit
// action, and the result or error of the last settled request.
package form

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/kartoza/soc-estimator/internal/models"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"
)

// FailureMessage is the only request error a user ever sees
const FailureMessage = "Failed to get prediction. Please check API connection."

var (
	ErrIndexOutOfRange = errors.New("field index out of range")
	ErrSubmitInFlight  = errors.New("a prediction request is already in flight")
	ErrInvalidInput    = errors.New("invalid input")
	ErrRequestFailed   = errors.New("prediction request failed")
	ErrSuperseded      = errors.New("response superseded by a newer request")
)

// Predictor is the remote model as seen by the form
type Predictor interface {
	Predict(ctx context.Context, values []float64) (float64, error)
}

// Status is the observable phase of the form
type Status string

const (
	StatusIdle       Status = "idle"
	StatusSubmitting Status = "submitting"
)

// State is a point-in-time copy of the form
type State struct {
	Values  [models.FieldCount]string `json:"values"`
	Status  Status                    `json:"status"`
	Result  *float64                  `json:"result"`
	Display string                    `json:"display,omitempty"`
	Error   string                    `json:"error,omitempty"`
}

// PredictorForm is safe for concurrent use. The network call is made
// without the lock held.
type PredictorForm struct {
	predictor Predictor
	opts      Options
	guard     *semaphore.Weighted

	mu       sync.Mutex
	values   [models.FieldCount]string
	result   *float64
	errMsg   string
	seq      uint64
	inflight int
}

// New creates a form with all fields blank. Zero-valued policies in opts
// fall back to DefaultOptions.
func New(p Predictor, opts Options) *PredictorForm {
	def := DefaultOptions()
	if opts.Input == "" {
		opts.Input = def.Input
	}
	if opts.Failure == "" {
		opts.Failure = def.Failure
	}
	if opts.Concurrency == "" {
		opts.Concurrency = def.Concurrency
	}
	return &PredictorForm{
		predictor: p,
		opts:      opts,
		guard:     semaphore.NewWeighted(1),
	}
}

// Options returns the policies the form was built with
func (f *PredictorForm) Options() Options {
	return f.opts
}

// Update replaces the text of one field. No coercion happens here.
func (f *PredictorForm) Update(index int, text string) error {
	if index < 0 || index >= models.FieldCount {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	f.mu.Lock()
	f.values[index] = text
	f.mu.Unlock()
	return nil
}

// Values returns a copy of the field texts
func (f *PredictorForm) Values() [models.FieldCount]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values
}

// Result returns the last prediction, if any
func (f *PredictorForm) Result() (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.result == nil {
		return 0, false
	}
	return *f.result, true
}

// Err returns the user-facing error message, if any
func (f *PredictorForm) Err() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errMsg, f.errMsg != ""
}

// Status reports whether a request is outstanding
func (f *PredictorForm) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusLocked()
}

func (f *PredictorForm) statusLocked() Status {
	if f.inflight > 0 {
		return StatusSubmitting
	}
	return StatusIdle
}

// Snapshot returns a consistent copy of the whole form
func (f *PredictorForm) Snapshot() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	st := State{
		Values: f.values,
		Status: f.statusLocked(),
		Error:  f.errMsg,
	}
	if f.result != nil {
		v := *f.result
		st.Result = &v
		st.Display = FormatPercent(v)
	}
	return st
}

// Submit sends the current values to the predictor and records the outcome.
//
// Errors wrap one of ErrSubmitInFlight, ErrInvalidInput, ErrRequestFailed or
// ErrSuperseded. Only ErrRequestFailed and ErrInvalidInput change the
// user-facing error message.
func (f *PredictorForm) Submit(ctx context.Context) error {
	if f.opts.Concurrency == ConcurrencySingleFlight {
		if !f.guard.TryAcquire(1) {
			return ErrSubmitInFlight
		}
		defer f.guard.Release(1)
	}

	f.mu.Lock()
	f.errMsg = ""
	values, bad := ParseValues(f.values)
	if f.opts.Input == InputStrict && bad >= 0 {
		f.errMsg = ValidationMessage(models.Labels[bad])
		f.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInvalidInput, models.Labels[bad])
	}
	f.seq++
	ticket := f.seq
	f.inflight++
	f.mu.Unlock()

	v, err := f.predictor.Predict(ctx, values)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight--

	if f.opts.Concurrency == ConcurrencyLatestRequest && ticket != f.seq {
		return ErrSuperseded
	}
	if err != nil {
		f.errMsg = FailureMessage
		if f.opts.Failure == FailureClearResult {
			f.result = nil
		}
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	f.result = &v
	return nil
}

// ParseValues coerces field texts to numbers in field order. Text that does
// not parse becomes NaN. The second return is the index of the first such
// field, or -1.
func ParseValues(texts [models.FieldCount]string) ([]float64, int) {
	out := make([]float64, models.FieldCount)
	bad := -1
	for i, s := range texts {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			v = math.NaN()
			if bad < 0 {
				bad = i
			}
		}
		out[i] = v
	}
	return out, bad
}

// ValidationMessage is shown when strict input rejects a field
func ValidationMessage(label string) string {
	return fmt.Sprintf("Invalid %s: enter a number.", label)
}

var hundred = decimal.NewFromInt(100)

// FormatPercent renders a fraction as a percentage with two decimals
func FormatPercent(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "NaN%"
	}
	return decimal.NewFromFloat(v).Mul(hundred).StringFixed(2) + "%"
}

// FormatRaw renders a capacity value with four decimals
func FormatRaw(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "NaN"
	}
	return decimal.NewFromFloat(v).StringFixed(4)
}
