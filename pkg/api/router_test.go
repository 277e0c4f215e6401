package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/relaystream/pkg/api/auth"
	"github.com/marmos91/relaystream/pkg/api/handlers"
	"github.com/marmos91/relaystream/pkg/cache/memory"
	"github.com/marmos91/relaystream/pkg/chunk"
	"github.com/marmos91/relaystream/pkg/link"
	metamemory "github.com/marmos91/relaystream/pkg/metadata/memory"
	"github.com/marmos91/relaystream/pkg/pool"
	"github.com/marmos91/relaystream/pkg/stream"
	upmem "github.com/marmos91/relaystream/pkg/upstream/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testServer struct {
	*httptest.Server
	jwt    *auth.JWTService
	client *upmem.Client
	data   []byte
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	data := make([]byte, 10_000_000)
	for i := range data {
		data[i] = byte(i % 251)
	}
	store := upmem.NewStore()
	store.Add(-100123, 7, "Movie.2020.mkv", data, "video/x-matroska")
	client := upmem.NewClient(store)

	p, err := pool.New([]*pool.Worker{{ID: 1, Name: "w1", Client: client}}, pool.Config{})
	require.NoError(t, err)
	c := memory.New(16*chunk.Size, nil)
	engine, err := stream.New(c, p, stream.Config{})
	require.NoError(t, err)

	jwtService, err := auth.NewJWTService(auth.JWTConfig{Secret: testSecret})
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(APIConfig{}, Deps{
		Engine:   engine,
		Cache:    c,
		Pool:     p,
		Metadata: metamemory.New(),
		Upstream: handlers.CheckFunc(client.HealthCheck),
		JWT:      jwtService,
	}))
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, jwt: jwtService, client: client, data: data}
}

func (s *testServer) token(t *testing.T, role string) string {
	t.Helper()
	tok, _, err := s.jwt.IssueToken("tester", role, 0)
	require.NoError(t, err)
	return tok
}

func (s *testServer) request(t *testing.T, method, path, token string, body any, header http.Header) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, rd)
	require.NoError(t, err)
	for k, vs := range header {
		req.Header[k] = vs
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRouter_RangeRequestEndToEnd(t *testing.T) {
	s := newTestServer(t)
	tok := link.Encode(-100123, 7)

	resp := s.request(t, http.MethodGet, "/stream/"+tok, "", nil, http.Header{"Range": {"bytes=1500000-2500000"}})

	require.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "bytes 1500000-2500000/10000000", resp.Header.Get("Content-Range"))
	assert.Equal(t, "1000001", resp.Header.Get("Content-Length"))
	assert.Equal(t, "video/x-matroska", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, s.data[1500000:2500001], body)
}

func TestRouter_PropagatesRequestID(t *testing.T) {
	s := newTestServer(t)

	resp := s.request(t, http.MethodGet, "/health", "", nil, http.Header{"X-Request-Id": {"abc-123"}})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))
}

func TestRouter_Readiness(t *testing.T) {
	s := newTestServer(t)

	resp := s.request(t, http.MethodGet, "/health/ready", "", nil, nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_AdminRequiresToken(t *testing.T) {
	s := newTestServer(t)

	resp := s.request(t, http.MethodGet, "/api/v1/workers", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Bearer")

	resp = s.request(t, http.MethodGet, "/api/v1/workers", "not-a-jwt", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.request(t, http.MethodGet, "/api/v1/workers", s.token(t, auth.RoleViewer), nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRouter_AdminWorkersAndCache(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, auth.RoleAdmin)

	resp := s.request(t, http.MethodGet, "/api/v1/workers", admin, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var workers struct {
		Policy  string             `json:"policy"`
		Workers []pool.WorkerStats `json:"workers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&workers))
	assert.Equal(t, string(pool.PolicyLeastLoaded), workers.Policy)
	require.Len(t, workers.Workers, 1)
	assert.Equal(t, "w1", workers.Workers[0].Name)

	// Warm the cache with one chunk.
	warm := s.request(t, http.MethodGet, "/stream/"+link.Encode(-100123, 7), "", nil, http.Header{"Range": {"bytes=0-9"}})
	_, _ = io.ReadAll(warm.Body)

	resp = s.request(t, http.MethodDelete, "/api/v1/cache", admin, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.request(t, http.MethodGet, "/api/v1/cache", admin, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, float64(0), stats["entries"])
}

func TestRouter_FilesLifecycle(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, auth.RoleAdmin)

	resp := s.request(t, http.MethodPost, "/api/v1/files", admin,
		map[string]any{"container_id": -100123, "item_id": 7}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created handlers.FileResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "Movie.2020.mkv", created.FileName, "name is filled in from upstream")
	assert.Equal(t, int64(10_000_000), created.Size)
	assert.Equal(t, link.Encode(-100123, 7), created.Link)
	assert.True(t, strings.HasSuffix(created.StreamURL, "/stream/"+created.Link))

	resp = s.request(t, http.MethodPost, "/api/v1/files", admin,
		map[string]any{"container_id": -100123, "item_id": 7}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = s.request(t, http.MethodPost, "/api/v1/files", admin,
		map[string]any{"container_id": -100123, "item_id": 404}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.request(t, http.MethodPost, "/api/v1/files", admin,
		map[string]any{"item_id": 7, "bogus": true}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.request(t, http.MethodGet, "/api/v1/files/"+created.ID, admin, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.request(t, http.MethodGet, "/api/v1/files", admin, nil, nil)
	var list []handlers.FileResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list, 1)

	resp = s.request(t, http.MethodDelete, "/api/v1/files/"+created.ID, admin, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.request(t, http.MethodGet, "/api/v1/files/"+created.ID, admin, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_RootRedirectsToHealth(t *testing.T) {
	s := newTestServer(t)

	resp := s.request(t, http.MethodGet, "/", "", nil, nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/health", resp.Request.URL.Path)
}

func TestRouteName(t *testing.T) {
	assert.Equal(t, "stream", routeName("/stream/abc"))
	assert.Equal(t, "admin", routeName("/api/v1/files"))
	assert.Equal(t, "health", routeName("/health"))
	assert.Equal(t, "other", routeName("/favicon.ico"))
}
