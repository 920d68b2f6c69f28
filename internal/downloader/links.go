package downloader

import (
	"fmt"

	"github.com/snpsujon/yt-dlp/internal/platform"
)

// videoOnlyNote is attached to formats carrying video but no audio track.
const videoOnlyNote = "Video Only (No Audio)"

var (
	videoExts = map[string]bool{"mp4": true, "webm": true, "mkv": true}
	audioExts = map[string]bool{"mp3": true, "m4a": true, "webm": true, "aac": true, "opus": true}
)

// Link is one direct-download entry of the /api/direct-links response.
type Link struct {
	FormatID         string  `json:"format_id"`
	LanguageCode     string  `json:"language_code"`
	Language         string  `json:"language"`
	Ext              string  `json:"ext"`
	Resolution       string  `json:"resolution"`
	URL              string  `json:"url"`
	DownloadQuality  string  `json:"downloadQuality"`
	FilesizeBytes    int64   `json:"filesize_bytes"`
	FilesizeReadable *string `json:"filesize_readable"`
	FormatNote       string  `json:"format_note"`
	Note             string  `json:"note,omitempty"`
}

// GroupLinks filters the formats of info by the requested family ("video" or
// "audio") and groups the surviving links by container extension. An empty
// map means no matching formats. The Note field is set exactly when a format
// has a video codec but no audio codec.
func GroupLinks(info *MediaInfo, family string) map[string][]Link {
	grouped := make(map[string][]Link)

	for _, f := range info.Formats {
		if f.URL == "" || f.Ext == "" {
			continue
		}
		if family == "video" {
			if !f.HasVideo() || !videoExts[f.Ext] {
				continue
			}
		} else {
			if !f.HasAudio() || !audioExts[f.Ext] {
				continue
			}
		}

		code := f.Language
		if code == "" {
			code = "Default"
		}
		link := Link{
			FormatID:        f.ID,
			LanguageCode:    code,
			Language:        platform.LanguageName(f.Language),
			Ext:             f.Ext,
			Resolution:      f.Resolution,
			URL:             f.URL,
			DownloadQuality: downloadQuality(f),
			FilesizeBytes:   f.Filesize,
			FormatNote:      f.Note,
		}
		if f.Filesize > 0 {
			readable := platform.HumanSize(f.Filesize)
			link.FilesizeReadable = &readable
		}
		if f.HasVideo() && !f.HasAudio() {
			link.Note = videoOnlyNote
		}

		grouped[f.Ext] = append(grouped[f.Ext], link)
	}

	return grouped
}

func downloadQuality(f Format) string {
	if f.Height > 0 {
		return fmt.Sprintf("%d", f.Height)
	}
	return f.ID
}
