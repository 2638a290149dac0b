package form

import "fmt"

// InputPolicy decides what happens to text that does not parse as a number
type InputPolicy string

const (
	// InputPermissive sends NaN for unparseable fields
	InputPermissive InputPolicy = "permissive"
	// InputStrict blocks submission until every field parses
	InputStrict InputPolicy = "strict"
)

// FailurePolicy decides what a failed request does to the previous result
type FailurePolicy string

const (
	// FailureKeepResult leaves the last successful result displayed
	FailureKeepResult FailurePolicy = "keep"
	// FailureClearResult removes the last result on failure
	FailureClearResult FailurePolicy = "clear"
)

// ConcurrencyPolicy decides how overlapping submissions are resolved
type ConcurrencyPolicy string

const (
	// ConcurrencySingleFlight rejects a submit while another is outstanding
	ConcurrencySingleFlight ConcurrencyPolicy = "single-flight"
	// ConcurrencyLatestRequest applies only the response to the newest submit
	ConcurrencyLatestRequest ConcurrencyPolicy = "latest-request"
	// ConcurrencyLastResponse applies every response as it settles
	ConcurrencyLastResponse ConcurrencyPolicy = "last-response"
)

// ParseInputPolicy validates an input policy name
func ParseInputPolicy(s string) (InputPolicy, error) {
	switch p := InputPolicy(s); p {
	case InputPermissive, InputStrict:
		return p, nil
	}
	return "", fmt.Errorf("unknown input policy %q (valid: %s, %s)", s, InputPermissive, InputStrict)
}

// ParseFailurePolicy validates a failure policy name
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(s); p {
	case FailureKeepResult, FailureClearResult:
		return p, nil
	}
	return "", fmt.Errorf("unknown failure policy %q (valid: %s, %s)", s, FailureKeepResult, FailureClearResult)
}

// ParseConcurrencyPolicy validates a concurrency policy name
func ParseConcurrencyPolicy(s string) (ConcurrencyPolicy, error) {
	switch p := ConcurrencyPolicy(s); p {
	case ConcurrencySingleFlight, ConcurrencyLatestRequest, ConcurrencyLastResponse:
		return p, nil
	}
	return "", fmt.Errorf("unknown concurrency policy %q (valid: %s, %s, %s)", s,
		ConcurrencySingleFlight, ConcurrencyLatestRequest, ConcurrencyLastResponse)
}

// Options holds the policies a form is built with
type Options struct {
	Input       InputPolicy
	Failure     FailurePolicy
	Concurrency ConcurrencyPolicy
}

// DefaultOptions returns the policies used when none are configured
func DefaultOptions() Options {
	return Options{
		Input:       InputPermissive,
		Failure:     FailureKeepResult,
		Concurrency: ConcurrencySingleFlight,
	}
}
