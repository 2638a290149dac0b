package models

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFeaturesFollowLabelOrder(t *testing.T) {
	features := DefaultFeatures()
	require.Len(t, features, FieldCount)
	for i, f := range features {
		assert.Equal(t, Labels[i], f.Label)
		assert.Less(t, f.Min, f.Max, "feature %s", f.Label)
	}
}

func TestPredictRequestEncodesNaNAsNull(t *testing.T) {
	req := NewPredictRequest([]float64{0.002, math.NaN(), 0.003, 45, 3.1})

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"impedance_values":[0.002,null,0.003,45,3.1]}`, string(data))
}

func TestPredictResponseMissingField(t *testing.T) {
	var resp PredictResponse
	require.NoError(t, json.Unmarshal([]byte(`{"other":1}`), &resp))
	assert.Nil(t, resp.PredictedCapacity)

	require.NoError(t, json.Unmarshal([]byte(`{"predicted_capacity":0.87}`), &resp))
	require.NotNil(t, resp.PredictedCapacity)
	assert.Equal(t, 0.87, *resp.PredictedCapacity)
}
