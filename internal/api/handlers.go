package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/snpsujon/yt-dlp/internal/downloader"
	"github.com/snpsujon/yt-dlp/internal/jobs"
	"github.com/snpsujon/yt-dlp/internal/models"
	"github.com/snpsujon/yt-dlp/internal/reqlog"
)

const sessionHeader = "X-Session-ID"

// Inspector resolves direct-link metadata for a URL without downloading.
type Inspector interface {
	Inspect(ctx context.Context, url string) (*downloader.MediaInfo, error)
}

type Handler struct {
	Manager     *jobs.Manager
	Store       *jobs.Store
	Inspector   Inspector
	Log         *reqlog.Logger
	DownloadDir string
}

func NewHandler(m *jobs.Manager, s *jobs.Store, i Inspector, l *reqlog.Logger, downloadDir string) *Handler {
	return &Handler{Manager: m, Store: s, Inspector: i, Log: l, DownloadDir: downloadDir}
}

// Download accepts a submit request and returns the session id to poll.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	urls := splitURLs(r.FormValue("url"))
	if len(urls) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Please enter at least one URL."})
		return
	}

	req := models.DownloadRequest{
		URLs:     urls,
		Format:   r.FormValue("format"),
		Playlist: r.FormValue("playlist") == "on",
		Quality:  r.FormValue("quality"),
	}

	sessionID, err := h.Manager.Submit(req, r.Header.Get(sessionHeader))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	go h.Log.Append(reqlog.Entry{
		IPAddress:   reqlog.ClientIP(r),
		UserAgent:   r.UserAgent(),
		VideoURL:    urls[0],
		RequestType: "download",
		FormatType:  req.Format,
		VideoInfo:   reqlog.VideoInfo{Title: "Unknown", Platform: "Unknown"},
	})

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "session_id": sessionID})
}

// Progress reports the session record; unknown sessions get the fixed Idle
// payload, indistinguishable from a session that never submitted.
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	session, ok := h.Store.Get(r.Header.Get(sessionHeader))
	if !ok {
		session = models.IdleSession()
	}
	writeJSON(w, http.StatusOK, session)
}

// Cancel marks a session Cancelled and aborts its download.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid session ID"})
		return
	}

	if err := h.Manager.Cancel(body.SessionID); err != nil {
		if errors.Is(err, jobs.ErrUnknownSession) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid session ID"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// DirectLinks lists the downloadable representations of a URL grouped by
// container extension, filtered by the requested format family.
func (h *Handler) DirectLinks(w http.ResponseWriter, r *http.Request) {
	var url, formatType string
	if r.Method == http.MethodPost {
		url = r.FormValue("url")
		formatType = r.FormValue("format")
	} else {
		url = r.URL.Query().Get("url")
		formatType = r.URL.Query().Get("format")
	}

	if url == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "URL is required"})
		return
	}
	if formatType != "video" && formatType != "audio" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Format must be 'video' or 'audio'"})
		return
	}

	info, err := h.Inspector.Inspect(r.Context(), url)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}

	go h.Log.Append(reqlog.Entry{
		IPAddress:   reqlog.ClientIP(r),
		UserAgent:   r.UserAgent(),
		VideoURL:    url,
		RequestType: "direct-links",
		FormatType:  formatType,
		VideoInfo: reqlog.VideoInfo{
			Title:      info.Title,
			Platform:   info.Platform,
			Channel:    info.Channel,
			ChannelID:  info.ChannelID,
			Duration:   info.Duration,
			Thumbnail:  info.Thumbnail,
			UploadDate: info.UploadDate,
			VideoID:    info.VideoID,
			Uploader:   info.Uploader,
		},
	})

	links := downloader.GroupLinks(info, formatType)
	if len(links) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "No matching formats found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"info":    info,
		"links":   links,
	})
}

// ServeDownload streams a completed artifact as an attachment.
func (h *Handler) ServeDownload(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/downloads/")
	if name == "" || name != filepath.Base(name) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	path := filepath.Join(h.DownloadDir, name)
	if _, err := os.Stat(path); err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}

// Health is a liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func splitURLs(raw string) []string {
	var urls []string
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			urls = append(urls, line)
		}
	}
	return urls
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
