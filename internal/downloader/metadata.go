package downloader

import (
	"context"
	"fmt"
	"strconv"

	"github.com/lrstanley/go-ytdlp"
)

// MediaInfo is the metadata snapshot of a URL, flattened across playlist
// entries. Formats lists every downloadable representation yt-dlp reported.
type MediaInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Channel     string `json:"channel"`
	ChannelID   string `json:"channel_id"`
	ChannelURL  string `json:"channel_url"`
	VideoID     string `json:"video_id"`
	Duration    string `json:"duration"`
	Thumbnail   string `json:"thumbnail"`
	UploadDate  string `json:"upload_date"`
	Uploader    string `json:"uploader"`
	UploaderID  string `json:"uploader_id"`
	Platform    string `json:"platform"`

	Formats []Format `json:"-"`
}

// Format is one representation of the media.
type Format struct {
	ID         string
	Ext        string
	URL        string
	VCodec     string
	ACodec     string
	Resolution string
	Height     int
	Language   string
	Note       string
	Filesize   int64
}

// HasVideo reports whether the format carries a video stream.
func (f Format) HasVideo() bool { return f.VCodec != "none" }

// HasAudio reports whether the format carries an audio stream.
func (f Format) HasAudio() bool { return f.ACodec != "none" }

// Inspect runs a metadata-only extraction for url and returns the flattened
// media info. No file is written.
func (e *Engine) Inspect(ctx context.Context, url string) (*MediaInfo, error) {
	dl := ytdlp.New().Quiet().SkipDownload().DumpSingleJSON()
	if e.cookieFile != "" {
		dl = dl.Cookies(e.cookieFile)
	}

	run, err := dl.Run(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp: %w", err)
	}
	infos, err := run.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("parse extracted info: %w", err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("no metadata extracted for %s", url)
	}

	media := fromExtractedInfo(infos[0])
	for _, info := range infos {
		// Playlist runs yield one entry per item; fold all formats together.
		for _, f := range info.Formats {
			media.Formats = append(media.Formats, fromExtractedFormat(f))
		}
	}
	return media, nil
}

func fromExtractedInfo(info *ytdlp.ExtractedInfo) *MediaInfo {
	return &MediaInfo{
		Title:       strOr(info.Title, "Unknown Title"),
		Description: strOr(info.Description, ""),
		Channel:     strOr(info.Channel, ""),
		ChannelID:   strOr(info.ChannelID, ""),
		ChannelURL:  strOr(info.ChannelURL, ""),
		VideoID:     strOr(info.DisplayID, ""),
		Duration:    floatStr(info.Duration),
		Thumbnail:   strOr(info.Thumbnail, ""),
		UploadDate:  strOr(info.UploadDate, ""),
		Uploader:    strOr(info.Uploader, ""),
		UploaderID:  strOr(info.UploaderID, ""),
		Platform:    strOr(info.ExtractorKey, ""),
	}
}

func fromExtractedFormat(f *ytdlp.ExtractedFormat) Format {
	resolution := strOr(f.Resolution, "")
	height := int(floatOr(f.Height))
	if resolution == "" {
		if width := int(floatOr(f.Width)); width > 0 && height > 0 {
			resolution = fmt.Sprintf("%dx%d", width, height)
		}
	}

	filesize := int64(intOr(f.FileSize))
	if filesize == 0 {
		filesize = int64(intOr(f.FileSizeApprox))
	}

	return Format{
		ID:         strOr(f.FormatID, ""),
		Ext:        strOr(f.Extension, ""),
		URL:        f.URL,
		VCodec:     strOr(f.VCodec, ""),
		ACodec:     strOr(f.ACodec, ""),
		Resolution: resolution,
		Height:     height,
		Language:   strOr(f.Language, ""),
		Note:       strOr(f.FormatNote, ""),
		Filesize:   filesize,
	}
}

func strOr(p *string, fallback string) string {
	if p == nil || *p == "" {
		return fallback
	}
	return *p
}

func floatOr(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func intOr(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func floatStr(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}
