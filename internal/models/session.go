package models

import "strings"

// Session statuses as they appear on the wire.
const (
	StatusIdle        = "Idle"
	StatusDownloading = "Downloading"
	StatusProcessing  = "Processing"
	StatusCompleted   = "Completed"
	StatusCancelled   = "Cancelled"
	StatusErrorPrefix = "Error: "
)

// Session holds the progress snapshot for one download session.
// Filename is set only when Status is Completed.
type Session struct {
	Percent  string  `json:"percent"`
	Status   string  `json:"status"`
	Filename *string `json:"filename"`
	Size     *string `json:"size"`
}

// NewSession returns the initial record written when a submit is accepted.
func NewSession() Session {
	return Session{Percent: "0%", Status: StatusDownloading}
}

// IdleSession is the fixed payload returned for unknown sessions.
func IdleSession() Session {
	return Session{Percent: "0%", Status: StatusIdle}
}

// IsTerminal reports whether the session reached a final state. Terminal
// records must never be written again; late progress callbacks are dropped.
func (s Session) IsTerminal() bool {
	return s.Status == StatusCompleted ||
		s.Status == StatusCancelled ||
		strings.HasPrefix(s.Status, StatusErrorPrefix)
}

// ErrorStatus builds the terminal error status string for a failed job.
func ErrorStatus(msg string) string {
	return StatusErrorPrefix + msg
}

// DownloadRequest is a parsed submit request.
type DownloadRequest struct {
	URLs     []string
	Format   string // "audio" or a container name such as "mp4"
	Playlist bool
	Quality  string
}

// AudioOnly reports whether the request asks for an audio-only extraction.
func (r DownloadRequest) AudioOnly() bool {
	return r.Format == "audio"
}
