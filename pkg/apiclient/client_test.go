package apiclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, method, path string, status int, body any) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, method, r.Method)
		assert.True(t, strings.HasPrefix(r.URL.Path, path))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if body != nil {
			_ = json.NewEncoder(w).Encode(body)
		}
	}))
	c := NewClient(strings.TrimPrefix(srv.URL, "http://"))
	return c, srv.Close
}

func TestPingSucceeds(t *testing.T) {
	c, closeFn := newTestServer(t, http.MethodGet, "/_ping", http.StatusOK, nil)
	defer closeFn()
	require.NoError(t, c.Ping())
}

func TestContainerListDecodesBody(t *testing.T) {
	c, closeFn := newTestServer(t, http.MethodGet, "/containers/json", http.StatusOK,
		[]map[string]any{{"ID": "abc", "Name": "web"}})
	defer closeFn()

	out, err := c.ContainerList(true)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "abc", out[0]["ID"])
}

func TestErrorStatusSurfacesBody(t *testing.T) {
	c, closeFn := newTestServer(t, http.MethodGet, "/containers/missing/json", http.StatusNotFound,
		map[string]string{"error": "not found"})
	defer closeFn()

	_, err := c.ContainerInspect("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestContainerCreateReturnsID(t *testing.T) {
	c, closeFn := newTestServer(t, http.MethodPost, "/containers/create", http.StatusCreated,
		map[string]string{"Id": "xyz"})
	defer closeFn()

	id, err := c.ContainerCreate("web", ContainerCreateRequest{Image: "alpine"})
	require.NoError(t, err)
	assert.Equal(t, "xyz", id)
}
