package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/relaystream/internal/bytesize"
	"github.com/marmos91/relaystream/internal/logger"
	"github.com/marmos91/relaystream/internal/telemetry"
	"github.com/marmos91/relaystream/pkg/link"
	"github.com/marmos91/relaystream/pkg/mediatype"
	"github.com/marmos91/relaystream/pkg/metadata"
	"github.com/marmos91/relaystream/pkg/stream"
	"github.com/marmos91/relaystream/pkg/upstream"
)

// Streamer is the part of the streaming engine the media routes use.
type Streamer interface {
	Stat(ctx context.Context, fh link.FileHandle) (upstream.FileInfo, error)
	Open(ctx context.Context, req stream.Request) (*stream.Stream, error)
}

// SubtitleFinder locates a subtitle companion by file name.
type SubtitleFinder interface {
	FindByFileName(ctx context.Context, name string) (*metadata.FileRecord, error)
}

// MediaHandler serves file bytes, details and player redirects.
type MediaHandler struct {
	engine    Streamer
	subtitles SubtitleFinder
	publicURL string
}

// NewMediaHandler builds the media routes. subtitles may be nil, in which
// case no subtitle companion is ever reported. publicURL is the externally
// visible base URL; when empty it is derived from each request.
func NewMediaHandler(engine Streamer, subtitles SubtitleFinder, publicURL string) *MediaHandler {
	return &MediaHandler{
		engine:    engine,
		subtitles: subtitles,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

type delivery struct {
	name        string
	honorRange  bool
	contentType func(info upstream.FileInfo) string
}

var (
	streamDelivery = delivery{
		name:       "stream",
		honorRange: true,
		contentType: func(info upstream.FileInfo) string {
			if info.MimeType != "" {
				return info.MimeType
			}
			return mediatype.Guess(info.Name)
		},
	}
	downloadDelivery = delivery{
		name:        "download",
		contentType: func(upstream.FileInfo) string { return "application/octet-stream" },
	}
	subtitleDelivery = delivery{
		name:        "subtitle",
		contentType: func(upstream.FileInfo) string { return "text/plain" },
	}
)

// Stream handles GET|HEAD /stream/{link}.
func (h *MediaHandler) Stream(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, streamDelivery)
}

// Download handles GET /download/{link}. Always the whole file.
func (h *MediaHandler) Download(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, downloadDelivery)
}

// Subtitle handles GET /subtitle/{link}. Always the whole file.
func (h *MediaHandler) Subtitle(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, subtitleDelivery)
}

// decodeLink reads {link} and binds the file to the request's log
// context. It writes a 400 and returns false on a bad token.
func decodeLink(w http.ResponseWriter, r *http.Request) (link.FileHandle, *http.Request, bool) {
	fh, err := link.Decode(chi.URLParam(r, "link"))
	if err != nil {
		BadRequest(w, err.Error())
		return link.FileHandle{}, r, false
	}

	ctx := r.Context()
	if lc := logger.FromContext(ctx); lc != nil {
		ctx = logger.WithContext(ctx, lc.WithFile(fh.ContainerID, fh.ItemID))
	}
	telemetry.SetAttributes(ctx, telemetry.ContainerID(fh.ContainerID), telemetry.ItemID(fh.ItemID))
	return fh, r.WithContext(ctx), true
}

// statOrError fetches metadata, writing the matching problem on failure.
func (h *MediaHandler) statOrError(w http.ResponseWriter, r *http.Request, fh link.FileHandle) (upstream.FileInfo, bool) {
	info, err := h.engine.Stat(r.Context(), fh)
	if err != nil {
		writeEngineError(w, r, err)
		return upstream.FileInfo{}, false
	}
	return info, true
}

func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, upstream.ErrNotFound):
		NotFound(w, "file not found")
	case errors.Is(err, context.Canceled):
		// Client is gone; nothing useful to write.
	case errors.Is(err, stream.ErrWorkerUnavailable):
		logger.WarnCtx(r.Context(), "No upstream worker available", logger.Err(err))
		w.Header().Set("Retry-After", "60")
		ServiceUnavailable(w, "no upstream worker available, retry later")
	default:
		logger.ErrorCtx(r.Context(), "Upstream request failed", logger.Err(err))
		InternalServerError(w, "upstream request failed")
	}
}

func (h *MediaHandler) serve(w http.ResponseWriter, r *http.Request, d delivery) {
	fh, r, ok := decodeLink(w, r)
	if !ok {
		return
	}

	// Syntax is checked before any cache or upstream access.
	var (
		requested byteRange
		hasRange  bool
	)
	if d.honorRange {
		if header := r.Header.Get("Range"); header != "" {
			br, err := parseRange(header)
			if err != nil {
				BadRequest(w, err.Error())
				return
			}
			requested, hasRange = br, true
		}
	}

	info, ok := h.statOrError(w, r, fh)
	if !ok {
		return
	}

	start, end := int64(0), info.Size-1
	status := http.StatusOK
	if hasRange {
		var err error
		start, end, err = requested.resolve(info.Size)
		if err != nil {
			RangeNotSatisfiable(w, info.Size, fmt.Sprintf("range outside file of %d bytes", info.Size))
			return
		}
		status = http.StatusPartialContent
	}

	hdr := w.Header()
	hdr.Set("Content-Type", d.contentType(info))
	hdr.Set("Content-Disposition", contentDisposition(info.Name))
	if d.honorRange {
		hdr.Set("Accept-Ranges", "bytes")
	}
	if status == http.StatusPartialContent {
		hdr.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, info.Size))
	}

	length := end - start + 1
	if info.Size == 0 {
		length = 0
	}
	hdr.Set("Content-Length", strconv.FormatInt(length, 10))

	if r.Method == http.MethodHead || length == 0 {
		w.WriteHeader(status)
		return
	}

	s, err := h.engine.Open(r.Context(), stream.Request{File: fh, Start: start, End: end, Size: info.Size})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	defer s.Close()

	// The first fragment decides whether a clean error response is still
	// possible.
	first, err := s.Next(r.Context())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(first); err != nil {
		return
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	if _, err := s.Copy(r.Context(), w); err != nil && err != io.EOF {
		if r.Context().Err() != nil {
			logger.DebugCtx(r.Context(), "Client went away mid-stream", logger.Bytes(s.Sent()))
			return
		}
		logger.ErrorCtx(r.Context(), "Stream aborted after headers were sent",
			logger.Bytes(s.Sent()),
			"total", s.Total(),
			logger.Err(err))
		s.Close()
		// Headers and part of the body are out; only a truncated
		// connection tells the client the body is incomplete.
		panic(http.ErrAbortHandler)
	}
}

// contentDisposition quotes name for an attachment header.
func contentDisposition(name string) string {
	if name == "" {
		name = "file"
	}
	safe := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\r", "", "\n", "").Replace(name)
	return fmt.Sprintf(`attachment; filename="%s"`, safe)
}

// Details is the /details payload.
type Details struct {
	FileName    string  `json:"file_name"`
	FileSize    string  `json:"file_size"`
	MimeType    string  `json:"mime_type"`
	SubtitleURL *string `json:"subtitle_url"`
}

// Details handles GET /details/{link}.
func (h *MediaHandler) Details(w http.ResponseWriter, r *http.Request) {
	fh, r, ok := decodeLink(w, r)
	if !ok {
		return
	}
	info, ok := h.statOrError(w, r, fh)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, Details{
		FileName:    info.Name,
		FileSize:    bytesize.Human(info.Size),
		MimeType:    streamDelivery.contentType(info),
		SubtitleURL: h.subtitleURL(r, info.Name),
	})
}

// subtitleURL looks up "<base>.srt" next to a media file. Lookup failures
// are logged and reported as no subtitle.
func (h *MediaHandler) subtitleURL(r *http.Request, name string) *string {
	if h.subtitles == nil || name == "" || mediatype.IsSubtitle(name) {
		return nil
	}
	rec, err := h.subtitles.FindByFileName(r.Context(), mediatype.SubtitleName(name))
	if err != nil {
		if !errors.Is(err, metadata.ErrRecordNotFound) {
			logger.WarnCtx(r.Context(), "Subtitle lookup failed", logger.Filename(name), logger.Err(err))
		}
		return nil
	}
	u := h.baseURL(r) + "/subtitle/" + link.Encode(rec.ContainerID, rec.ItemID)
	return &u
}

// players maps a player name to its deep link for a stream URL.
var players = map[string]func(streamURL string) string{
	"mx": func(u string) string {
		return "intent:" + u + "#Intent;action=android.intent.action.VIEW;type=video/*;package=com.mxtech.videoplayer.ad;end"
	},
	"mxpro": func(u string) string {
		return "intent:" + u + "#Intent;action=android.intent.action.VIEW;type=video/*;package=com.mxtech.videoplayer.pro;end"
	},
	"vlc": func(u string) string {
		return "vlc://" + u
	},
}

// Play handles GET /play/{player}/{link} with a 302 to the player.
func (h *MediaHandler) Play(w http.ResponseWriter, r *http.Request) {
	deepLink, ok := players[strings.ToLower(chi.URLParam(r, "player"))]
	if !ok {
		NotFound(w, "unknown player")
		return
	}
	token := chi.URLParam(r, "link")
	if _, err := link.Decode(token); err != nil {
		BadRequest(w, err.Error())
		return
	}
	http.Redirect(w, r, deepLink(h.baseURL(r)+"/stream/"+token), http.StatusFound)
}

// StreamURL returns the public stream URL of a file.
func (h *MediaHandler) StreamURL(r *http.Request, fh link.FileHandle) string {
	return h.baseURL(r) + "/stream/" + link.EncodeHandle(fh)
}

func (h *MediaHandler) baseURL(r *http.Request) string {
	if h.publicURL != "" {
		return h.publicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	return scheme + "://" + r.Host
}
