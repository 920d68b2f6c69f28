package jobs

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/snpsujon/yt-dlp/internal/config"
)

// Janitor enforces the storage retention policy on the shared download
// directory and keeps the session registry bounded. Filesystem failures are
// logged and swallowed; the sweep continues with the next file.
type Janitor struct {
	store *Store
	cfg   *config.Config

	// sampleWindow is the pause between the two size samples used to detect
	// files still being written. Overridable in tests.
	sampleWindow time.Duration
}

func NewJanitor(store *Store, cfg *config.Config) *Janitor {
	return &Janitor{store: store, cfg: cfg, sampleWindow: time.Second}
}

// Start runs the periodic sweep and the daily full wipe until ctx is done.
func (j *Janitor) Start(ctx context.Context) {
	go j.sweepLoop(ctx)
	go j.wipeLoop(ctx)
}

func (j *Janitor) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted := j.Sweep()
			evicted := j.store.EvictTerminal(j.cfg.SessionTTL)
			if deleted > 0 || evicted > 0 {
				log.Printf("Janitor: removed %d files, evicted %d sessions", deleted, evicted)
			}
		}
	}
}

// Sweep deletes output files whose last modification is older than the
// retention threshold. Files younger than the threshold are kept, as are
// files whose size changes across the sampling window — those are still
// being written, and a false negative only delays deletion.
func (j *Janitor) Sweep() int {
	entries, err := os.ReadDir(j.cfg.DownloadDir)
	if err != nil {
		log.Printf("Janitor: cannot read %s: %v", j.cfg.DownloadDir, err)
		return 0
	}

	cutoff := time.Now().Add(-j.cfg.RetainFor)
	var candidates []string
	sizes := make(map[string]int64)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(j.cfg.DownloadDir, entry.Name())
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		candidates = append(candidates, path)
		sizes[path] = info.Size()
	}

	if len(candidates) == 0 {
		return 0
	}

	time.Sleep(j.sampleWindow)

	deleted := 0
	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.Size() != sizes[path] {
			continue // still being written
		}
		if err := os.Remove(path); err != nil {
			log.Printf("Janitor: cannot remove %s: %v", path, err)
			continue
		}
		deleted++
	}
	return deleted
}

// wipeLoop clears the whole download directory once per day at the
// configured local hour, independent of file age.
func (j *Janitor) wipeLoop(ctx context.Context) {
	for {
		timer := time.NewTimer(time.Until(nextWipe(time.Now(), j.cfg.WipeHour)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			j.Wipe()
		}
	}
}

// Wipe removes every file in the download directory.
func (j *Janitor) Wipe() {
	entries, err := os.ReadDir(j.cfg.DownloadDir)
	if err != nil {
		log.Printf("Janitor: cannot read %s: %v", j.cfg.DownloadDir, err)
		return
	}
	for _, entry := range entries {
		path := filepath.Join(j.cfg.DownloadDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Printf("Janitor: cannot remove %s: %v", path, err)
		}
	}
	log.Printf("Janitor: daily wipe of %s finished", j.cfg.DownloadDir)
}

// nextWipe returns the next occurrence of hour in local time after now.
func nextWipe(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
