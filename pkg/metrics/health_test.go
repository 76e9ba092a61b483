package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthAggregation(t *testing.T) {
	RegisterComponent("store", true, "")
	RegisterComponent("worker", true, "")

	status := Health()
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "healthy", status.Components["store"])

	RegisterComponent("worker", false, "queue unavailable")
	status = Health()
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "queue unavailable", status.Message)

	// Restore for other tests sharing the package-level checker
	RegisterComponent("worker", true, "")
}

func TestHealthHandler(t *testing.T) {
	RegisterComponent("store", true, "")
	SetVersion("test")

	recorder := httptest.NewRecorder()
	HealthHandler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &status))
	assert.Equal(t, "test", status.Version)
	assert.NotEmpty(t, status.Uptime)
}
