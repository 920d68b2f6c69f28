package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"
)

const progressFreq = 500 * time.Millisecond

// Request describes one extraction run, possibly spanning several URLs.
type Request struct {
	URLs        []string
	AudioOnly   bool
	Playlist    bool
	Quality     string // yt-dlp format selector, "best" by default
	MergeFormat string // container to remux into, empty to leave as-is
}

// Progress is one callback event. Fraction is cumulative across all URLs of
// the request; Finished signals the transfer is done and postprocessing
// (muxing, audio extraction) has begun.
type Progress struct {
	Fraction float64
	Finished bool
}

// ProgressFunc receives progress events. It may be invoked from a different
// goroutine than the caller of Process.
type ProgressFunc func(Progress)

// Result reports the exact output paths the run produced. Callers must never
// infer output identity from directory contents.
type Result struct {
	Files      []string
	Title      string
	TotalBytes int64
}

// Engine drives yt-dlp for downloads and metadata extraction.
type Engine struct {
	downloadDir string
	cookieFile  string
}

func NewEngine(downloadDir, cookieFile string) *Engine {
	return &Engine{downloadDir: downloadDir, cookieFile: cookieFile}
}

// Install fetches the yt-dlp binary if it is not already available.
func Install(ctx context.Context) {
	ytdlp.MustInstall(ctx, nil)
}

// Process downloads every URL of the request into the engine's download
// directory under a deterministic per-job name, reporting cumulative
// progress. It honors ctx cancellation between and during transfers.
func (e *Engine) Process(ctx context.Context, req Request, onProgress ProgressFunc) (*Result, error) {
	result := &Result{}
	base := fmt.Sprintf("download_%d", time.Now().Unix())
	tracker := newProgressTracker(len(req.URLs), onProgress)

	for idx, url := range req.URLs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		template := filepath.Join(e.downloadDir, fmt.Sprintf("%s_%d.%%(ext)s", base, idx))
		dl := e.newCommand(req).
			ForceOverwrites().
			RestrictFilenames().
			Output(template)

		dl.ProgressFunc(progressFreq, func(update ytdlp.ProgressUpdate) {
			tracker.observe(update)
		})

		run, err := dl.Run(ctx, url)
		if err != nil {
			return result, fmt.Errorf("yt-dlp: %w", err)
		}

		file, title, err := e.outputOf(run, req, template)
		if err != nil {
			return result, err
		}
		result.Files = append(result.Files, file)
		if result.Title == "" {
			result.Title = title
		}
		if info, err := os.Stat(file); err == nil {
			result.TotalBytes += info.Size()
		}
		tracker.complete()
	}

	return result, nil
}

func (e *Engine) newCommand(req Request) *ytdlp.Command {
	dl := ytdlp.New().Quiet()

	if e.cookieFile != "" {
		dl = dl.Cookies(e.cookieFile)
	}
	if req.Playlist {
		dl = dl.YesPlaylist()
	} else {
		dl = dl.NoPlaylist()
	}

	if req.AudioOnly {
		dl = dl.Format("bestaudio/best").
			ExtractAudio().
			AudioFormat("mp3").
			AudioQuality("192K")
		return dl
	}

	dl = dl.Format(req.Quality)
	if req.MergeFormat != "" {
		dl = dl.MergeOutputFormat(req.MergeFormat)
	}
	return dl
}

// outputOf resolves the exact file a run wrote. The extracted info carries
// the path yt-dlp chose; audio extraction swaps the container afterwards, so
// the extension is corrected against the filesystem.
func (e *Engine) outputOf(run *ytdlp.Result, req Request, template string) (string, string, error) {
	var path, title string

	if infos, err := run.GetExtractedInfo(); err == nil {
		for _, info := range infos {
			if title == "" && info.Title != nil {
				title = *info.Title
			}
			if path == "" && info.Filename != nil {
				path = *info.Filename
			}
		}
	}

	if req.AudioOnly && path != "" {
		converted := strings.TrimSuffix(path, filepath.Ext(path)) + ".mp3"
		if _, err := os.Stat(converted); err == nil {
			path = converted
		}
	}

	if path == "" {
		// The template prefix is unique to this run, so a glob on it still
		// identifies exactly this job's output.
		prefix := strings.TrimSuffix(template, ".%(ext)s")
		matches, _ := filepath.Glob(prefix + ".*")
		for _, m := range matches {
			if ext := filepath.Ext(m); ext != ".part" && ext != ".ytdl" {
				path = m
				break
			}
		}
	}

	if path == "" {
		return "", title, fmt.Errorf("no output file reported for %s", template)
	}
	return path, title, nil
}

// progressTracker folds per-URL byte counts into one cumulative fraction.
type progressTracker struct {
	mu        sync.Mutex
	total     int
	completed int
	onEvent   ProgressFunc
}

func newProgressTracker(total int, onEvent ProgressFunc) *progressTracker {
	if total < 1 {
		total = 1
	}
	return &progressTracker{total: total, onEvent: onEvent}
}

func (t *progressTracker) observe(update ytdlp.ProgressUpdate) {
	if t.onEvent == nil {
		return
	}

	t.mu.Lock()
	done := t.completed
	t.mu.Unlock()

	// Only yt-dlp's own status marks the transfer finished; a byte count
	// matching the total can still be one fragment among several.
	switch update.Status {
	case ytdlp.ProgressStatusPostProcessing, ytdlp.ProgressStatusFinished:
		if done+1 >= t.total {
			t.onEvent(Progress{Fraction: 1, Finished: true})
		} else {
			t.onEvent(Progress{Fraction: float64(done+1) / float64(t.total)})
		}
		return
	}

	if update.TotalBytes == 0 {
		return
	}
	frac := float64(update.DownloadedBytes) / float64(update.TotalBytes)
	if frac > 1 {
		frac = 1
	}
	t.onEvent(Progress{Fraction: (float64(done) + frac) / float64(t.total)})
}

func (t *progressTracker) complete() {
	t.mu.Lock()
	t.completed++
	t.mu.Unlock()
}
