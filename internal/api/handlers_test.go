package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/snpsujon/yt-dlp/internal/config"
	"github.com/snpsujon/yt-dlp/internal/downloader"
	"github.com/snpsujon/yt-dlp/internal/jobs"
	"github.com/snpsujon/yt-dlp/internal/models"
	"github.com/snpsujon/yt-dlp/internal/reqlog"
)

// blockingEngine hangs until its job context is cancelled.
type blockingEngine struct{}

func (blockingEngine) Process(ctx context.Context, req downloader.Request, onProgress downloader.ProgressFunc) (*downloader.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// fixedInspector serves canned metadata.
type fixedInspector struct {
	info *downloader.MediaInfo
	err  error
}

func (f fixedInspector) Inspect(ctx context.Context, url string) (*downloader.MediaInfo, error) {
	return f.info, f.err
}

func newTestHandler(t *testing.T, inspector Inspector) (*Handler, *jobs.Store, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		DownloadDir:       dir,
		MaxConcurrentJobs: 2,
		JobTimeout:        time.Minute,
		SessionTTL:        time.Minute,
	}
	store := jobs.NewStore()
	manager := jobs.NewManager(store, blockingEngine{}, cfg)
	logger := reqlog.New(filepath.Join(dir, "requests.json"))
	return NewHandler(manager, store, inspector, logger, dir), store, dir
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return body
}

func postForm(path string, form url.Values) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestProgressUnknownSessionReturnsIdleDefault(t *testing.T) {
	h, _, _ := newTestHandler(t, fixedInspector{})

	r := httptest.NewRequest(http.MethodGet, "/api/progress", nil)
	r.Header.Set("X-Session-ID", "never-seen")
	rec := httptest.NewRecorder()
	h.Progress(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	want := `{"percent":"0%","status":"Idle","filename":null,"size":null}`
	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Fatalf("unexpected payload:\n got %s\nwant %s", got, want)
	}
}

func TestDownloadThenImmediateProgress(t *testing.T) {
	h, _, _ := newTestHandler(t, fixedInspector{})

	form := url.Values{"url": {"https://example.com/watch?v=1"}, "format": {"mp4"}}
	rec := httptest.NewRecorder()
	h.Download(rec, postForm("/api/download", form))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Fatalf("expected success, got %v", body)
	}
	sessionID, _ := body["session_id"].(string)
	if sessionID == "" {
		t.Fatal("missing session_id")
	}

	// A poll straight after the submit response must not see Idle.
	r := httptest.NewRequest(http.MethodGet, "/api/progress", nil)
	r.Header.Set("X-Session-ID", sessionID)
	rec = httptest.NewRecorder()
	h.Progress(rec, r)

	var session models.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil {
		t.Fatal(err)
	}
	if session.Status != models.StatusDownloading {
		t.Fatalf("expected Downloading, got %s", session.Status)
	}

	h.Manager.Cancel(sessionID)
}

func TestDownloadKeepsClientSessionID(t *testing.T) {
	h, _, _ := newTestHandler(t, fixedInspector{})

	form := url.Values{"url": {"https://example.com/v"}}
	r := postForm("/api/download", form)
	r.Header.Set("X-Session-ID", "tab-42")
	rec := httptest.NewRecorder()
	h.Download(rec, r)

	body := decodeBody(t, rec)
	if body["session_id"] != "tab-42" {
		t.Fatalf("expected client session id, got %v", body["session_id"])
	}
	h.Manager.Cancel("tab-42")
}

func TestDownloadRejectsMissingURL(t *testing.T) {
	h, _, _ := newTestHandler(t, fixedInspector{})

	rec := httptest.NewRecorder()
	h.Download(rec, postForm("/api/download", url.Values{"url": {"   \n  "}}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] == nil {
		t.Fatalf("expected error message, got %v", body)
	}
}

func TestCancelUnknownSessionIs400(t *testing.T) {
	h, _, _ := newTestHandler(t, fixedInspector{})

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/cancel", strings.NewReader(`{"session_id":"ghost"}`))
	h.Cancel(rec, r)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["success"] != false {
		t.Fatalf("expected success=false, got %v", body)
	}
}

func TestCancelKnownSessionIsIdempotent(t *testing.T) {
	h, store, _ := newTestHandler(t, fixedInspector{})

	id, err := h.Manager.Submit(models.DownloadRequest{URLs: []string{"u"}}, "")
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/api/cancel", strings.NewReader(`{"session_id":"`+id+`"}`))
		h.Cancel(rec, r)
		if rec.Code != http.StatusOK {
			t.Fatalf("cancel #%d: expected 200, got %d", i+1, rec.Code)
		}
	}

	got, _ := store.Get(id)
	if got.Status != models.StatusCancelled {
		t.Fatalf("expected Cancelled, got %s", got.Status)
	}
}

func TestDirectLinksValidation(t *testing.T) {
	h, _, _ := newTestHandler(t, fixedInspector{})

	rec := httptest.NewRecorder()
	h.DirectLinks(rec, httptest.NewRequest(http.MethodGet, "/api/direct-links", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing url: expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.DirectLinks(rec, httptest.NewRequest(http.MethodGet, "/api/direct-links?url=x&format=gif", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad format: expected 400, got %d", rec.Code)
	}
}

func TestDirectLinksGroupsByExtension(t *testing.T) {
	info := &downloader.MediaInfo{
		Title:    "Sample",
		Channel:  "Chan",
		Duration: "3:21",
		Formats: []downloader.Format{
			{ID: "22", Ext: "mp4", URL: "https://cdn/22", VCodec: "avc1", ACodec: "mp4a"},
			{ID: "137", Ext: "mp4", URL: "https://cdn/137", VCodec: "avc1", ACodec: "none"},
		},
	}
	h, _, _ := newTestHandler(t, fixedInspector{info: info})

	rec := httptest.NewRecorder()
	h.DirectLinks(rec, httptest.NewRequest(http.MethodGet, "/api/direct-links?url=https://x&format=video", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Success bool                         `json:"success"`
		Info    map[string]any               `json:"info"`
		Links   map[string][]downloader.Link `json:"links"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body.Success || body.Info["title"] != "Sample" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if len(body.Links["mp4"]) != 2 {
		t.Fatalf("expected 2 mp4 links, got %v", body.Links)
	}

	var notes int
	for _, link := range body.Links["mp4"] {
		if link.Note == "Video Only (No Audio)" {
			notes++
		}
	}
	if notes != 1 {
		t.Fatalf("expected exactly one video-only note, got %d", notes)
	}
}

func TestDirectLinksNoMatchesIs404(t *testing.T) {
	info := &downloader.MediaInfo{Formats: []downloader.Format{
		{ID: "251", Ext: "webm", URL: "https://cdn/251", VCodec: "none", ACodec: "opus"},
	}}
	h, _, _ := newTestHandler(t, fixedInspector{info: info})

	rec := httptest.NewRecorder()
	h.DirectLinks(rec, httptest.NewRequest(http.MethodGet, "/api/direct-links?url=https://x&format=video", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDirectLinksExtractionFailureIs500(t *testing.T) {
	h, _, _ := newTestHandler(t, fixedInspector{err: errors.New("unreachable")})

	rec := httptest.NewRecorder()
	h.DirectLinks(rec, httptest.NewRequest(http.MethodGet, "/api/direct-links?url=https://x&format=video", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestServeDownload(t *testing.T) {
	h, _, dir := newTestHandler(t, fixedInspector{})
	if err := os.WriteFile(filepath.Join(dir, "clip.mp4"), []byte("video"), 0644); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	h.ServeDownload(rec, httptest.NewRequest(http.MethodGet, "/downloads/clip.mp4", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Fatalf("expected attachment disposition, got %q", cd)
	}
	if rec.Body.String() != "video" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestServeDownloadMissingFileIs404(t *testing.T) {
	h, _, _ := newTestHandler(t, fixedInspector{})

	rec := httptest.NewRecorder()
	h.ServeDownload(rec, httptest.NewRequest(http.MethodGet, "/downloads/absent.mp4", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestServeDownloadRejectsTraversal(t *testing.T) {
	h, _, _ := newTestHandler(t, fixedInspector{})

	r := httptest.NewRequest(http.MethodGet, "/downloads/x", nil)
	r.URL.Path = "/downloads/../secrets.txt"
	rec := httptest.NewRecorder()
	h.ServeDownload(rec, r)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for traversal, got %d", rec.Code)
	}
}
