// Package reqlog records past download and direct-link requests into a JSON
// file. The log is a plain JSON array capped at the most recent maxEntries
// records and rewritten in full on each append. It is a fire-and-forget
// sink: failures are logged and swallowed, never surfaced to callers.
package reqlog

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const maxEntries = 1000

// VideoInfo is the metadata subset retained per logged request.
type VideoInfo struct {
	Title      string `json:"title"`
	Platform   string `json:"platform"`
	Channel    string `json:"channel"`
	ChannelID  string `json:"channel_id"`
	Duration   string `json:"duration"`
	Thumbnail  string `json:"thumbnail"`
	UploadDate string `json:"upload_date"`
	VideoID    string `json:"video_id"`
	Uploader   string `json:"uploader"`
}

// Entry is one logged request.
type Entry struct {
	ID          int       `json:"id"`
	Timestamp   string    `json:"timestamp"`
	IPAddress   string    `json:"ip_address"`
	UserAgent   string    `json:"user_agent"`
	VideoURL    string    `json:"video_url"`
	RequestType string    `json:"request_type"` // "download" or "direct-links"
	FormatType  string    `json:"format_type"`
	VideoInfo   VideoInfo `json:"video_info"`
}

// Logger appends entries to the log file, serializing writers.
type Logger struct {
	mu   sync.Mutex
	path string
}

func New(path string) *Logger {
	return &Logger{path: path}
}

// Append stamps and writes the entry. Errors are swallowed after logging.
func (l *Logger) Append(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.load()
	entry.ID = len(entries) + 1
	entry.Timestamp = time.Now().Format("2006-01-02 15:04:05")
	entries = append(entries, entry)
	if len(entries) > maxEntries {
		entries = entries[len(entries)-maxEntries:]
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		log.Printf("reqlog: marshal failed: %v", err)
		return
	}
	if err := os.WriteFile(l.path, data, 0644); err != nil {
		log.Printf("reqlog: write failed: %v", err)
	}
}

// Entries returns a snapshot of the retained log.
func (l *Logger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

func (l *Logger) load() []Entry {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		// Corrupt log files start over rather than blocking appends.
		return nil
	}
	return entries
}

// ClientIP extracts the requester address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	return r.RemoteAddr
}
