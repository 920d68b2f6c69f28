package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/snpsujon/yt-dlp/internal/config"
	"github.com/snpsujon/yt-dlp/internal/downloader"
	"github.com/snpsujon/yt-dlp/internal/models"
	"github.com/snpsujon/yt-dlp/internal/platform"
)

// ErrUnknownSession is returned by Cancel for session ids with no record.
var ErrUnknownSession = errors.New("unknown session")

// acquireTimeout bounds how long a queued job waits for a worker slot.
const acquireTimeout = 10 * time.Second

// Extractor is the capability the Manager delegates the actual media
// retrieval to. It must honor ctx cancellation between chunks.
type Extractor interface {
	Process(ctx context.Context, req downloader.Request, onProgress downloader.ProgressFunc) (*downloader.Result, error)
}

// Manager owns the lifecycle of download sessions: it writes the initial
// record before Submit returns, runs the extraction in the background with a
// bounded worker count, wires progress callbacks into the Store and finalizes
// the record exactly once.
type Manager struct {
	store  *Store
	engine Extractor
	cfg    *config.Config
	queue  chan struct{}

	mu      sync.Mutex
	runs    map[string]runHandle
	nextGen uint64

	wg sync.WaitGroup
}

// runHandle identifies the run currently owning a session id. The generation
// fences off writes from runs a resubmit has already abandoned.
type runHandle struct {
	gen    uint64
	cancel context.CancelFunc
}

func NewManager(store *Store, engine Extractor, cfg *config.Config) *Manager {
	return &Manager{
		store:  store,
		engine: engine,
		cfg:    cfg,
		queue:  make(chan struct{}, cfg.MaxConcurrentJobs),
		runs:   make(map[string]runHandle),
	}
}

// Submit accepts a download request and returns the session id tracking it.
// The initial record is visible in the Store before Submit returns, so a poll
// arriving right after the HTTP response never observes an unknown session.
func (m *Manager) Submit(req models.DownloadRequest, sessionID string) (string, error) {
	if len(req.URLs) == 0 {
		return "", errors.New("at least one URL is required")
	}
	if req.Quality == "" {
		req.Quality = "best"
	}
	id := sessionID
	if id == "" {
		id = uuid.New().String()
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.JobTimeout)

	m.mu.Lock()
	if old, ok := m.runs[id]; ok {
		// Resubmitting on a live session abandons the previous job.
		old.cancel()
	}
	m.nextGen++
	gen := m.nextGen
	m.runs[id] = runHandle{gen: gen, cancel: cancel}
	m.mu.Unlock()

	m.store.Put(id, models.NewSession())

	m.wg.Add(1)
	go m.run(ctx, id, gen, req)

	return id, nil
}

// Cancel marks the session Cancelled and aborts its in-flight extraction.
// Idempotent on known sessions; terminal records stay as they are.
func (m *Manager) Cancel(id string) error {
	if _, ok := m.store.Get(id); !ok {
		return ErrUnknownSession
	}
	m.store.Update(id, func(s *models.Session) {
		s.Status = models.StatusCancelled
		s.Filename = nil
	})

	m.mu.Lock()
	handle, ok := m.runs[id]
	m.mu.Unlock()
	if ok {
		handle.cancel()
	}
	return nil
}

// Shutdown aborts all in-flight jobs and waits for them to drain, or gives
// up when ctx expires.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, handle := range m.runs {
		handle.cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release frees the run handle, but only while this run still owns the id.
func (m *Manager) release(id string, gen uint64) {
	m.mu.Lock()
	if handle, ok := m.runs[id]; ok && handle.gen == gen {
		handle.cancel()
		delete(m.runs, id)
	}
	m.mu.Unlock()
}

// update applies mutate through the Store unless the session was handed to a
// newer run by a resubmit; abandoned runs must not touch the fresh record.
func (m *Manager) update(id string, gen uint64, mutate func(*models.Session)) {
	m.mu.Lock()
	handle, ok := m.runs[id]
	current := ok && handle.gen == gen
	m.mu.Unlock()
	if current {
		m.store.Update(id, mutate)
	}
}

func (m *Manager) run(ctx context.Context, id string, gen uint64, req models.DownloadRequest) {
	defer m.wg.Done()
	defer m.release(id, gen)

	select {
	case m.queue <- struct{}{}:
		defer func() { <-m.queue }()
	case <-time.After(acquireTimeout):
		m.fail(id, gen, errors.New("server busy, try again later"))
		return
	case <-ctx.Done():
		m.finishCancelled(ctx, id, gen)
		return
	}

	result, err := m.engine.Process(ctx, downloader.Request{
		URLs:        req.URLs,
		AudioOnly:   req.AudioOnly(),
		Playlist:    req.Playlist,
		Quality:     req.Quality,
		MergeFormat: mergeFormat(req.Format),
	}, m.progressFunc(id, gen))

	if err != nil {
		if ctx.Err() != nil {
			m.finishCancelled(ctx, id, gen)
		} else {
			m.fail(id, gen, err)
		}
		return
	}

	m.finalize(id, gen, result)
}

// progressFunc serializes callback writes through the Store; once the record
// is terminal the Update becomes a no-op and late events are dropped.
func (m *Manager) progressFunc(id string, gen uint64) downloader.ProgressFunc {
	return func(p downloader.Progress) {
		m.update(id, gen, func(s *models.Session) {
			if p.Finished {
				s.Percent = "100%"
				s.Status = models.StatusProcessing
				return
			}
			s.Percent = fmt.Sprintf("%.1f%%", p.Fraction*100)
			s.Status = models.StatusDownloading
		})
	}
}

// finalize renames or bundles the adapter's reported output files and marks
// the record Completed. The adapter reports its exact paths; output identity
// is never inferred from directory scanning.
func (m *Manager) finalize(id string, gen uint64, result *downloader.Result) {
	if result == nil || len(result.Files) == 0 {
		m.fail(id, gen, errors.New("no file found after download"))
		return
	}

	name, err := m.packageFiles(result)
	if err != nil {
		m.fail(id, gen, err)
		return
	}

	size := platform.HumanSize(totalSize(filepath.Join(m.cfg.DownloadDir, name), result))
	m.update(id, gen, func(s *models.Session) {
		s.Percent = "100%"
		s.Status = models.StatusCompleted
		s.Filename = &name
		s.Size = &size
	})
}

// packageFiles returns the single artifact name for the job: a zip archive
// when the adapter produced several files, otherwise the one file renamed to
// its sanitized title token. The adapter's per-job output name is the
// fallback when the title sanitizes to nothing; it is already unique, so it
// must never be re-sanitized into a shared prefix.
func (m *Manager) packageFiles(result *downloader.Result) (string, error) {
	files := result.Files
	if len(files) > 1 {
		name := fmt.Sprintf("download_%d.zip", time.Now().Unix())
		if err := platform.ZipFiles(filepath.Join(m.cfg.DownloadDir, name), files); err != nil {
			return "", fmt.Errorf("bundle outputs: %w", err)
		}
		for _, f := range files {
			os.Remove(f)
		}
		return name, nil
	}

	src := files[0]
	ext := filepath.Ext(src)
	name := platform.SanitizeFilename(result.Title)
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(src), ext)
	}

	dst := filepath.Join(m.cfg.DownloadDir, name+ext)
	if dst == src {
		return name + ext, nil
	}
	if _, err := os.Stat(dst); err == nil {
		// Another job already claimed this title.
		name = fmt.Sprintf("%s_%d", name, time.Now().UnixNano())
		dst = filepath.Join(m.cfg.DownloadDir, name+ext)
	}
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("rename output: %w", err)
	}
	return name + ext, nil
}

func (m *Manager) fail(id string, gen uint64, err error) {
	log.Printf("Session %s failed: %v", id, err)
	m.update(id, gen, func(s *models.Session) {
		s.Status = models.ErrorStatus(err.Error())
		s.Filename = nil
	})
}

// finishCancelled settles the record after the job context ended. Cancel()
// already wrote the terminal status for user cancels; a deadline means the
// job overran its time budget.
func (m *Manager) finishCancelled(ctx context.Context, id string, gen uint64) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		m.fail(id, gen, errors.New("download timed out"))
		return
	}
	m.update(id, gen, func(s *models.Session) {
		s.Status = models.StatusCancelled
		s.Filename = nil
	})
}

func totalSize(path string, result *downloader.Result) int64 {
	if info, err := os.Stat(path); err == nil {
		return info.Size()
	}
	return result.TotalBytes
}

// mergeFormat maps the requested container onto a muxer hint; "audio" and
// unrecognized values disable remuxing.
func mergeFormat(format string) string {
	switch format {
	case "mp4", "mkv", "webm":
		return format
	}
	return ""
}
