package models

import (
	"math"
	"strconv"
)

// FieldCount is the fixed length of the reading vector
const FieldCount = 5

// Feature describes one input slot of the reading vector
type Feature struct {
	Label string  `json:"label" yaml:"label"`
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
}

// Labels in wire order. The position of each label is the position of its
// value in PredictRequest.ImpedanceValues.
var Labels = [FieldCount]string{
	"Resistance (Ω)",
	"Capacitance (F)",
	"Magnitude (|Z|)",
	"Phase (°)",
	"Terminal Voltage (V)",
}

// DefaultFeatures returns the observed training ranges of the remote model
func DefaultFeatures() []Feature {
	return []Feature{
		{Label: Labels[0], Min: 0.000986, Max: 0.004039},
		{Label: Labels[1], Min: -0.004263, Max: -0.000535},
		{Label: Labels[2], Min: 0.001123, Max: 0.006726},
		{Label: Labels[3], Min: 28.330987, Max: 64.435327},
		{Label: Labels[4], Min: 2.5217, Max: 3.6534},
	}
}

// Reading is a single coerced input value. NaN and infinities have no JSON
// number form and are encoded as null.
type Reading float64

// MarshalJSON implements json.Marshaler
func (r Reading) MarshalJSON() ([]byte, error) {
	f := float64(r)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// PredictRequest is the body sent to the remote prediction endpoint
type PredictRequest struct {
	ImpedanceValues []Reading `json:"impedance_values"`
}

// NewPredictRequest converts coerced values into a request body
func NewPredictRequest(values []float64) PredictRequest {
	readings := make([]Reading, len(values))
	for i, v := range values {
		readings[i] = Reading(v)
	}
	return PredictRequest{ImpedanceValues: readings}
}

// PredictResponse is the body returned by the remote prediction endpoint.
// PredictedCapacity is nil when the field is absent.
type PredictResponse struct {
	PredictedCapacity *float64 `json:"predicted_capacity"`
}

// FieldUpdateRequest sets one input field through the API
type FieldUpdateRequest struct {
	Value *string `json:"value"`
}

// SubmitRequest optionally carries the field texts to submit with. When
// Values is set it replaces all five fields before the submit runs.
type SubmitRequest struct {
	Values *[FieldCount]string `json:"values"`
}

// SettingsUpdateRequest changes runtime settings through the API
type SettingsUpdateRequest struct {
	Endpoint *string `json:"endpoint"`
}
