package api

import (
	"encoding/json"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kkdai/youtube/v2"
)

// VideoInfo lists the available quality labels for a YouTube URL or id,
// highest first.
func (h *Handler) VideoInfo(w http.ResponseWriter, r *http.Request) {
	videoID := r.URL.Query().Get("video_id")
	if videoID == "" {
		videoID = r.URL.Query().Get("url")
	}
	if videoID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "video_id required"})
		return
	}

	client := youtube.Client{}
	video, err := client.GetVideoContext(r.Context(), videoID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Could not fetch video info"})
		return
	}

	qualityMap := make(map[int]string)
	for _, f := range video.Formats {
		if strings.Contains(f.MimeType, "video") && f.QualityLabel != "" {
			if height := parseHeight(f.QualityLabel); height > 0 {
				qualityMap[height] = formatQualityLabel(f.QualityLabel)
			}
		}
	}

	heights := make([]int, 0, len(qualityMap))
	for height := range qualityMap {
		heights = append(heights, height)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(heights)))

	qualities := make([]string, 0, len(heights))
	for _, height := range heights {
		qualities = append(qualities, qualityMap[height])
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"title":     video.Title,
		"qualities": qualities,
	})
}

// AudioFormats splits a video's formats into mp4 video and audio-only lists.
func (h *Handler) AudioFormats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "URL missing"})
		return
	}

	client := youtube.Client{}
	video, err := client.GetVideoContext(r.Context(), body.URL)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	videoFormats := make([]map[string]any, 0)
	audioFormats := make([]map[string]any, 0)

	for _, f := range video.Formats {
		switch {
		case strings.HasPrefix(f.MimeType, "video/mp4") && f.QualityLabel != "":
			videoFormats = append(videoFormats, map[string]any{
				"format_id": strconv.Itoa(f.ItagNo),
				"quality":   f.QualityLabel,
				"url":       f.URL,
			})
		case strings.HasPrefix(f.MimeType, "audio/"):
			audioFormats = append(audioFormats, map[string]any{
				"format_id": strconv.Itoa(f.ItagNo),
				"quality":   f.AudioQuality,
				"url":       f.URL,
				"ext":       extFromMime(f.MimeType),
			})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"video_formats": videoFormats,
		"audio_formats": audioFormats,
	})
}

var qualityLabelRegex = regexp.MustCompile(`^(\d+p)(\d+)?$`)

// formatQualityLabel turns "1080p60" into "1080p 60fps".
func formatQualityLabel(q string) string {
	matches := qualityLabelRegex.FindStringSubmatch(q)
	if len(matches) > 1 {
		if len(matches) > 2 && matches[2] != "" {
			return matches[1] + " " + matches[2] + "fps"
		}
		return matches[1]
	}
	return q
}

func parseHeight(q string) int {
	digits := ""
	for _, c := range q {
		if c >= '0' && c <= '9' {
			digits += string(c)
		} else if digits != "" {
			break
		}
	}
	val, _ := strconv.Atoi(digits)
	return val
}

// extFromMime maps "audio/mp4; codecs=..." to "m4a" and "audio/webm" to
// "webm".
func extFromMime(mime string) string {
	base := mime
	if idx := strings.Index(base, ";"); idx >= 0 {
		base = base[:idx]
	}
	switch base {
	case "audio/mp4":
		return "m4a"
	case "audio/webm":
		return "webm"
	case "video/mp4":
		return "mp4"
	case "video/webm":
		return "webm"
	}
	if idx := strings.Index(base, "/"); idx >= 0 {
		return base[idx+1:]
	}
	return base
}
