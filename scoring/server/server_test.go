package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/michaelpento.lv/arbpipeline/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func features(profitUSD, gas float64) []float64 {
	return []float64{profitUSD, profitUSD, gas, 1, 1, 2, 2, 0}
}

func TestRuleModel(t *testing.T) {
	m := RuleModel{}

	score, conf := m.Predict([]float64{1, 2})
	assert.Equal(t, 0.5, score)
	assert.Equal(t, 0.5, conf)

	score, conf = m.Predict(features(10, 100000))
	assert.InDelta(t, 0.5, score, 1e-9)
	assert.Equal(t, 0.6, conf)

	score, _ = m.Predict(features(40, 100000))
	assert.Equal(t, 1.0, score)

	score, conf = m.Predict(features(4, 600000))
	assert.InDelta(t, 0.16, score, 1e-9)
	assert.Equal(t, 0.4, conf)

	score, _ = m.Predict(features(-5, 0))
	assert.Equal(t, 0.0, score)
}

func post(t *testing.T, h http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw)))
	return rec
}

func TestPredictEndpoint(t *testing.T) {
	h := New(":0", nil, zaptest.NewLogger(t)).Handler()

	rec := post(t, h, "/predict", scoring.PredictRequest{Features: features(15, 100000), OpportunityID: "opp-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp scoring.PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 0.75, resp.Score, 1e-9)
	assert.True(t, resp.Approved)
	assert.Equal(t, "opp-1", resp.OpportunityID)
}

func TestBatchPredictEndpoint(t *testing.T) {
	h := New(":0", nil, zaptest.NewLogger(t)).Handler()

	rec := post(t, h, "/batch_predict", []scoring.PredictRequest{
		{Features: features(15, 0), OpportunityID: "a"},
		{Features: features(1, 0), OpportunityID: "b"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []scoring.PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	assert.True(t, resp[0].Approved)
	assert.False(t, resp[1].Approved)
	assert.Equal(t, "b", resp[1].OpportunityID)
}

func TestMalformedBodyIsBadRequest(t *testing.T) {
	h := New(":0", nil, zaptest.NewLogger(t)).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndRoot(t *testing.T) {
	h := New(":0", nil, zaptest.NewLogger(t)).Handler()

	for _, path := range []string{"/", "/health"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "simple_predictor", body["model"])
}
