package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/burrowhq/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHubServer(t *testing.T, revision string, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/datasets/org/ds", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(DatasetInfo{Revision: revision, SizeBytes: 123})
	})
	mux.HandleFunc("/api/datasets/org/gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/api/datasets/org/flaky", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/api/datasets/org/empty", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(DatasetInfo{})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestRevisionMemoized(t *testing.T) {
	var hits atomic.Int64
	server := newHubServer(t, "r1", &hits)
	client := NewHTTPClient(HTTPClientConfig{Endpoint: server.URL, RevisionTTL: time.Minute})

	for i := 0; i < 5; i++ {
		revision, err := client.Revision(context.Background(), "org/ds")
		require.NoError(t, err)
		assert.Equal(t, "r1", revision)
	}
	assert.Equal(t, int64(1), hits.Load())
}

func TestRevisionErrors(t *testing.T) {
	var hits atomic.Int64
	server := newHubServer(t, "r1", &hits)
	client := NewHTTPClient(HTTPClientConfig{Endpoint: server.URL})

	tests := []struct {
		name     string
		dataset  string
		wantCode types.ErrorCode
	}{
		{name: "not found", dataset: "org/gone", wantCode: types.CodeDatasetNotFound},
		{name: "server error is transient", dataset: "org/flaky", wantCode: types.CodeClientConnectionError},
		{name: "missing revision", dataset: "org/empty", wantCode: types.CodeNoGitRevision},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Revision(context.Background(), tt.dataset)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, types.AsCoded(err).Code)
		})
	}
}

func TestIsSupported(t *testing.T) {
	var hits atomic.Int64
	server := newHubServer(t, "r1", &hits)
	client := NewHTTPClient(HTTPClientConfig{Endpoint: server.URL})

	supported, err := client.IsSupported(context.Background(), "org/ds")
	require.NoError(t, err)
	assert.True(t, supported)

	supported, err = client.IsSupported(context.Background(), "org/gone")
	require.NoError(t, err)
	assert.False(t, supported)

	// Transient hub failures are errors, not "unsupported"
	_, err = client.IsSupported(context.Background(), "org/flaky")
	assert.Error(t, err)
}

func TestMemoryHub(t *testing.T) {
	m := NewMemory()
	m.Put("org/ds", &MemoryDataset{
		Revision:  "r1",
		Supported: true,
		Configs:   map[string][]string{"default": {"train", "test"}},
	})

	revision, err := m.Revision(context.Background(), "org/ds")
	require.NoError(t, err)
	assert.Equal(t, "r1", revision)

	configs, err := m.ConfigNames(context.Background(), "org/ds")
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, configs)

	splits, err := m.SplitNames(context.Background(), "org/ds", "default")
	require.NoError(t, err)
	assert.Equal(t, []string{"train", "test"}, splits)

	m.SetRevision("org/ds", "r2")
	revision, err = m.Revision(context.Background(), "org/ds")
	require.NoError(t, err)
	assert.Equal(t, "r2", revision)

	_, err = m.Revision(context.Background(), "org/ghost")
	assert.Equal(t, types.CodeDatasetNotFound, types.AsCoded(err).Code)
}
