package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/claimgraph/internal/core"
	"github.com/agenthands/claimgraph/internal/core/model"
	"github.com/agenthands/claimgraph/internal/driver"
)

func setup(t *testing.T) (*driver.MemoryDriver, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	mem := driver.NewMemoryDriver()
	claim, err := mem.CreateVertex(ctx, model.LabelClaim, model.KeyClaimID, "C1", nil)
	require.NoError(t, err)
	require.NoError(t, mem.SetProperties(ctx, claim, map[string]any{"status": "open"}))
	claimant, err := mem.CreateVertex(ctx, model.LabelClaimant, model.KeyClaimantID, "P1", nil)
	require.NoError(t, err)
	require.NoError(t, mem.CreateEdge(ctx, claimant, model.EdgeFiled, claim))

	p := core.NewPipeline(mem, nil, core.Options{}, nil)
	return mem, NewServer(p, nil).SetupRouter()
}

func TestGetClaim(t *testing.T) {
	_, r := setup(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/claims/C1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	claim := body["claim"].(map[string]any)
	assert.Equal(t, "open", claim["properties"].(map[string]any)["status"])
	claimant := body["claimant"].(map[string]any)
	assert.Equal(t, "claimant", claimant["label"])
	assert.Equal(t, model.SentinelNotFound, body["assigned_agent"])
	assert.Equal(t, model.SentinelClaimNotClosed, body["close_agent"])
}

func TestGetClaimNotFound(t *testing.T) {
	_, r := setup(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/claims/C9", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetClaimStoreDown(t *testing.T) {
	mem, r := setup(t)
	mem.Intercept = func(string) error { return errors.New("connection refused") }

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/claims/C1", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealth(t *testing.T) {
	_, r := setup(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status string            `json:"status"`
		Counts model.GraphCounts `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, model.GraphCounts{Vertices: 2, Edges: 1}, body.Counts)
}
