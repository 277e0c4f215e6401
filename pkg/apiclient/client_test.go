package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/relaystream/pkg/pool"
)

func TestClient_SendsBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/workers", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(WorkersResponse{
			Policy:  "least_loaded",
			Workers: []pool.WorkerStats{{ID: 1, Name: "key-1", InFlight: 2}},
		})
	}))
	defer server.Close()

	resp, err := New(server.URL + "/").WithToken("secret-token").Workers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "least_loaded", resp.Policy)
	require.Len(t, resp.Workers, 1)
	assert.Equal(t, 2, resp.Workers[0].InFlight)
}

func TestClient_ProblemDetailsBecomeAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"type":"about:blank","title":"Not Found","status":404,"detail":"file record not found"}`))
	}))
	defer server.Close()

	_, err := New(server.URL).GetFile(context.Background(), "abc")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNotFound())
	assert.False(t, apiErr.IsAuthError())
	assert.Equal(t, "404 Not Found: file record not found", apiErr.Error())
}

func TestClient_PlainTextErrorFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := New(server.URL).CacheStats(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream exploded", apiErr.Detail)
}

func TestClient_CreateAndDeleteFile(t *testing.T) {
	var created CreateFileRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(File{ID: "f1", FileName: "movie.mkv", ContainerID: created.ContainerID, ItemID: created.ItemID})
		case http.MethodDelete:
			assert.Equal(t, "/api/v1/files/f1", r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	c := New(server.URL)
	f, err := c.CreateFile(context.Background(), &CreateFileRequest{ContainerID: -100123, ItemID: 7})
	require.NoError(t, err)
	assert.Equal(t, "f1", f.ID)
	assert.Equal(t, int64(-100123), created.ContainerID)

	require.NoError(t, c.DeleteFile(context.Background(), "f1"))
}

func TestClient_Details(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/details/LTEwMDEyM183", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"file_name":"movie.mkv","file_size":"9.5 MiB","mime_type":"video/x-matroska","subtitle_url":null}`))
	}))
	defer server.Close()

	d, err := New(server.URL).Details(context.Background(), "LTEwMDEyM183")
	require.NoError(t, err)
	assert.Equal(t, "movie.mkv", d.FileName)
	assert.Equal(t, "9.5 MiB", d.FileSize)
	assert.Nil(t, d.SubtitleURL)
}
