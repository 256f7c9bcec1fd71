package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/registry"
)

func probe(t *testing.T, handler echo.HandlerFunc) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, handler(e.NewContext(req, rec)))

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestLivenessAlwaysHealthy(t *testing.T) {
	c := NewChecker(registry.New(), "test")

	rec, resp := probe(t, c.LivenessHandler)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "test", resp.Version)
}

func TestReadinessBeforeStartup(t *testing.T) {
	c := NewChecker(registry.New(), "test")

	rec, resp := probe(t, c.ReadinessHandler)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestReadinessWithEmptyDataset(t *testing.T) {
	c := NewChecker(registry.New(), "test")
	c.SetReady(true)

	rec, resp := probe(t, c.ReadinessHandler)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, StatusUnhealthy, resp.Checks["dataset"].Status)
}

func TestReadinessWithLoadedDataset(t *testing.T) {
	reg := registry.New()
	reg.AddTask(&models.TaskInstance{ID: "UNIT1_1", BaseID: 1, Product: "UNIT1"})
	c := NewChecker(reg, "test")
	c.SetReady(true)

	rec, resp := probe(t, c.ReadinessHandler)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, StatusHealthy, resp.Checks["dataset"].Status)
}
