package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/marmos91/relaystream/internal/bytesize"
	"github.com/marmos91/relaystream/pkg/cache/memory"
	"github.com/marmos91/relaystream/pkg/chunk"
	"github.com/marmos91/relaystream/pkg/link"
	"github.com/marmos91/relaystream/pkg/mediatype"
	"github.com/marmos91/relaystream/pkg/metadata"
	metamemory "github.com/marmos91/relaystream/pkg/metadata/memory"
	"github.com/marmos91/relaystream/pkg/pool"
	"github.com/marmos91/relaystream/pkg/stream"
	"github.com/marmos91/relaystream/pkg/upstream"
	"github.com/marmos91/relaystream/pkg/upstream/mocks"
	upmem "github.com/marmos91/relaystream/pkg/upstream/memory"
)

const (
	movieContainer int64 = -100123
	movieItem      int64 = 7
	subsItem       int64 = 8
	emptyItem      int64 = 9
	movieSize            = 10_000_000
)

func testData(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte((i*31 + i/4093) % 256)
	}
	return b
}

type mediaFixture struct {
	router http.Handler
	client *upmem.Client
	pool   *pool.Pool
	meta   *metamemory.Store
	data   []byte
	subs   []byte
}

func newMediaFixture(t *testing.T, publicURL string) *mediaFixture {
	t.Helper()

	data := testData(movieSize)
	subs := []byte("1\n00:00:01,000 --> 00:00:02,000\nhello\n")

	store := upmem.NewStore()
	store.Add(movieContainer, movieItem, "movie.mp4", data, "")
	store.Add(movieContainer, subsItem, "movie.srt", subs, "")
	store.Add(movieContainer, emptyItem, "empty.mp4", nil, "")
	client := upmem.NewClient(store)

	p, err := pool.New([]*pool.Worker{{ID: 1, Name: "w1", Client: client}}, pool.Config{})
	require.NoError(t, err)

	engine, err := stream.New(memory.New(32*chunk.Size, nil), p, stream.Config{
		RetryDelay:         time.Millisecond,
		WorkerWaitAttempts: 1,
		WorkerWaitDelay:    time.Millisecond,
	})
	require.NoError(t, err)

	meta := metamemory.New()
	h := NewMediaHandler(engine, meta, publicURL)

	return &mediaFixture{
		router: mediaRouter(h),
		client: client,
		pool:   p,
		meta:   meta,
		data:   data,
		subs:   subs,
	}
}

func mediaRouter(h *MediaHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/stream/{link}", h.Stream)
	r.Head("/stream/{link}", h.Stream)
	r.Get("/download/{link}", h.Download)
	r.Get("/subtitle/{link}", h.Subtitle)
	r.Get("/details/{link}", h.Details)
	r.Get("/play/{player}/{link}", h.Play)
	return r
}

func (f *mediaFixture) do(method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func rangeHeader(v string) http.Header {
	return http.Header{"Range": []string{v}}
}

var movieLink = link.Encode(movieContainer, movieItem)

func TestStream_WholeFile(t *testing.T) {
	f := newMediaFixture(t, "")

	w := f.do(http.MethodGet, "/stream/"+movieLink, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, strconv.Itoa(movieSize), w.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Empty(t, w.Header().Get("Content-Range"))
	assert.Equal(t, mediatype.Guess("movie.mp4"), w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="movie.mp4"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, f.data, w.Body.Bytes())
}

func TestStream_PartialRange(t *testing.T) {
	f := newMediaFixture(t, "")

	w := f.do(http.MethodGet, "/stream/"+movieLink, rangeHeader("bytes=1500000-2500000"))

	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 1500000-2500000/10000000", w.Header().Get("Content-Range"))
	assert.Equal(t, "1000001", w.Header().Get("Content-Length"))
	assert.Equal(t, f.data[1500000:2500001], w.Body.Bytes())
	assert.Equal(t, int64(2), f.client.ChunksServed(), "only chunks 1 and 2 are fetched")
}

func TestStream_OpenEndedAndSuffixRanges(t *testing.T) {
	f := newMediaFixture(t, "")

	w := f.do(http.MethodGet, "/stream/"+movieLink, rangeHeader("bytes=9999000-"))
	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 9999000-9999999/10000000", w.Header().Get("Content-Range"))
	assert.Equal(t, f.data[9999000:], w.Body.Bytes())

	w = f.do(http.MethodGet, "/stream/"+movieLink, rangeHeader("bytes=-100"))
	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 9999900-9999999/10000000", w.Header().Get("Content-Range"))
	assert.Equal(t, f.data[movieSize-100:], w.Body.Bytes())

	w = f.do(http.MethodGet, "/stream/"+movieLink, rangeHeader("bytes=9999990-20000000"))
	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 9999990-9999999/10000000", w.Header().Get("Content-Range"), "end is clamped")
	assert.Len(t, w.Body.Bytes(), 10)
}

func TestStream_Head(t *testing.T) {
	f := newMediaFixture(t, "")

	w := f.do(http.MethodHead, "/stream/"+movieLink, rangeHeader("bytes=0-99"))

	assert.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "100", w.Header().Get("Content-Length"))
	assert.Zero(t, w.Body.Len())
	assert.Zero(t, f.client.Opens(), "HEAD never opens an upstream read")
}

func TestStream_BadLink(t *testing.T) {
	f := newMediaFixture(t, "")

	w := f.do(http.MethodGet, "/stream/!!notalink", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ContentTypeProblemJSON, w.Header().Get("Content-Type"))
}

func TestStream_MalformedRangeSkipsUpstream(t *testing.T) {
	f := newMediaFixture(t, "")

	for _, h := range []string{"items=0-1", "bytes=abc-", "bytes=5-2"} {
		w := f.do(http.MethodGet, "/stream/"+movieLink, rangeHeader(h))
		assert.Equal(t, http.StatusBadRequest, w.Code, h)
	}
	assert.Zero(t, f.client.MetadataCalls())
}

func TestStream_UnknownFile(t *testing.T) {
	f := newMediaFixture(t, "")

	w := f.do(http.MethodGet, "/stream/"+link.Encode(movieContainer, 999), nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Header().Get("Content-Disposition"))
}

func TestStream_UnsatisfiableRange(t *testing.T) {
	f := newMediaFixture(t, "")

	w := f.do(http.MethodGet, "/stream/"+movieLink, rangeHeader("bytes=10000000-"))

	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code)
	assert.Equal(t, "bytes */10000000", w.Header().Get("Content-Range"))
	assert.Zero(t, f.client.Opens())
}

func TestStream_EmptyFile(t *testing.T) {
	f := newMediaFixture(t, "")
	emptyLink := link.Encode(movieContainer, emptyItem)

	w := f.do(http.MethodGet, "/stream/"+emptyLink, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("Content-Length"))
	assert.Zero(t, w.Body.Len())

	w = f.do(http.MethodGet, "/stream/"+emptyLink, rangeHeader("bytes=0-"))
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code)
}

func TestStream_NoWorkerAvailable(t *testing.T) {
	f := newMediaFixture(t, "")
	f.pool.PutOnCooldown(1)

	w := f.do(http.MethodGet, "/stream/"+movieLink, nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestDownload_IgnoresRange(t *testing.T) {
	f := newMediaFixture(t, "")

	w := f.do(http.MethodGet, "/download/"+movieLink, rangeHeader("bytes=0-10"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	assert.Empty(t, w.Header().Get("Accept-Ranges"))
	assert.Equal(t, `attachment; filename="movie.mp4"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, movieSize, w.Body.Len())
}

func TestSubtitle_ServesPlainText(t *testing.T) {
	f := newMediaFixture(t, "")

	w := f.do(http.MethodGet, "/subtitle/"+link.Encode(movieContainer, subsItem), nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, f.subs, w.Body.Bytes())
}

func decodeDetails(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	return out
}

func TestDetails_WithoutSubtitle(t *testing.T) {
	f := newMediaFixture(t, "")

	w := f.do(http.MethodGet, "/details/"+movieLink, nil)

	require.Equal(t, http.StatusOK, w.Code)
	got := decodeDetails(t, w)
	assert.Equal(t, "movie.mp4", got["file_name"])
	assert.Equal(t, bytesize.Human(movieSize), got["file_size"])
	assert.Equal(t, mediatype.Guess("movie.mp4"), got["mime_type"])
	v, present := got["subtitle_url"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestDetails_WithSubtitle(t *testing.T) {
	f := newMediaFixture(t, "")
	_, err := f.meta.CreateRecord(context.Background(), &metadata.FileRecord{
		FileName:    "movie.srt",
		ContainerID: movieContainer,
		ItemID:      subsItem,
		Size:        int64(len(f.subs)),
	})
	require.NoError(t, err)

	w := f.do(http.MethodGet, "/details/"+movieLink, nil)

	require.Equal(t, http.StatusOK, w.Code)
	got := decodeDetails(t, w)
	assert.Equal(t, "http://example.com/subtitle/"+link.Encode(movieContainer, subsItem), got["subtitle_url"])
}

func TestDetails_UsesForwardedProto(t *testing.T) {
	f := newMediaFixture(t, "")
	_, err := f.meta.CreateRecord(context.Background(), &metadata.FileRecord{
		FileName: "movie.srt", ContainerID: movieContainer, ItemID: subsItem,
	})
	require.NoError(t, err)

	w := f.do(http.MethodGet, "/details/"+movieLink, http.Header{"X-Forwarded-Proto": []string{"https"}})

	got := decodeDetails(t, w)
	assert.Equal(t, "https://example.com/subtitle/"+link.Encode(movieContainer, subsItem), got["subtitle_url"])
}

func TestPlay_Redirects(t *testing.T) {
	f := newMediaFixture(t, "https://media.example.org/")
	streamURL := "https://media.example.org/stream/" + movieLink

	cases := map[string]string{
		"mx":    "intent:" + streamURL + "#Intent;action=android.intent.action.VIEW;type=video/*;package=com.mxtech.videoplayer.ad;end",
		"mxpro": "intent:" + streamURL + "#Intent;action=android.intent.action.VIEW;type=video/*;package=com.mxtech.videoplayer.pro;end",
		"vlc":   "vlc://" + streamURL,
	}
	for player, want := range cases {
		t.Run(player, func(t *testing.T) {
			w := f.do(http.MethodGet, "/play/"+player+"/"+movieLink, nil)
			assert.Equal(t, http.StatusFound, w.Code)
			assert.Equal(t, want, w.Header().Get("Location"))
		})
	}
	assert.Zero(t, f.client.MetadataCalls(), "play never touches upstream")
}

func TestPlay_Errors(t *testing.T) {
	f := newMediaFixture(t, "")

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/play/winamp/"+movieLink, nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/play/vlc/%21%21", nil).Code)
}

func TestContentDisposition_Sanitizes(t *testing.T) {
	assert.Equal(t, `attachment; filename="a\"b.mkv"`, contentDisposition("a\"b.mkv"))
	assert.Equal(t, `attachment; filename="ab.mkv"`, contentDisposition("a\r\nb.mkv"))
	assert.Equal(t, `attachment; filename="file"`, contentDisposition(""))
}

// A failure after the first byte cannot become an error response; the
// connection is cut so the client sees a short body.
func TestStream_MidStreamFailureAbortsConnection(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	cs := mocks.NewMockChunkStream(ctrl)

	size := int64(3 * chunk.Size)
	client.EXPECT().FetchMetadata(gomock.Any(), movieContainer, movieItem).
		Return(upstream.FileInfo{Name: "movie.mp4", Size: size}, nil)
	client.EXPECT().OpenChunkStream(gomock.Any(), movieContainer, movieItem, int64(0)).Return(cs, nil)
	client.EXPECT().OpenChunkStream(gomock.Any(), movieContainer, movieItem, gomock.Any()).
		Return(nil, errors.New("backend unreachable")).AnyTimes()
	first := cs.EXPECT().Next(gomock.Any()).Return(testData(chunk.Size), nil)
	cs.EXPECT().Next(gomock.Any()).Return(nil, errors.New("connection reset")).After(first)
	cs.EXPECT().Close().Return(nil).AnyTimes()

	p, err := pool.New([]*pool.Worker{{ID: 1, Name: "w1", Client: client}}, pool.Config{})
	require.NoError(t, err)
	engine, err := stream.New(memory.New(8*chunk.Size, nil), p, stream.Config{
		MaxAttempts: 2,
		RetryDelay:  time.Millisecond,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(mediaRouter(NewMediaHandler(engine, nil, "")))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stream/" + movieLink)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	assert.Error(t, err)
	assert.Less(t, int64(len(body)), size)
}
