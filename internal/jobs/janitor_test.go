package jobs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/snpsujon/yt-dlp/internal/config"
)

func janitorFixture(t *testing.T) (*Janitor, string) {
	t.Helper()
	cfg := &config.Config{
		DownloadDir: t.TempDir(),
		RetainFor:   time.Hour,
		SessionTTL:  time.Hour,
	}
	j := NewJanitor(NewStore(), cfg)
	j.sampleWindow = 10 * time.Millisecond
	return j, cfg.DownloadDir
}

func writeAged(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("content"), 0644); err != nil {
		t.Fatal(err)
	}
	stamp := time.Now().Add(-age)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSweepDeletesOnlyExpiredFiles(t *testing.T) {
	j, dir := janitorFixture(t)

	old := writeAged(t, dir, "old.mp4", 2*time.Hour)
	young := writeAged(t, dir, "young.mp4", time.Minute)

	if deleted := j.Sweep(); deleted != 1 {
		t.Fatalf("expected 1 deletion, got %d", deleted)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatal("expired file should be gone")
	}
	if _, err := os.Stat(young); err != nil {
		t.Fatal("file younger than the threshold must never be deleted")
	}
}

func TestSweepSkipsFilesStillBeingWritten(t *testing.T) {
	j, dir := janitorFixture(t)
	j.sampleWindow = 50 * time.Millisecond
	path := writeAged(t, dir, "growing.mp4", 2*time.Hour)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		// Keep growing the file while pinning its mtime in the past, so the
		// sweep sees an expired candidate whose size keeps changing.
		stamp := time.Now().Add(-2 * time.Hour)
		buf := []byte("x")
		for {
			select {
			case <-stop:
				return
			default:
				f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
				if err == nil {
					f.Write(buf)
					f.Close()
				}
				os.Chtimes(path, stamp, stamp)
				time.Sleep(time.Millisecond)
			}
		}
	}()

	deleted := j.Sweep()
	close(stop)
	<-done

	if deleted != 0 {
		t.Fatalf("expected no deletions while file is growing, got %d", deleted)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal("file with changing size must survive the sweep")
	}
}

func TestSweepSurvivesMissingDirectory(t *testing.T) {
	cfg := &config.Config{DownloadDir: "/nonexistent/path/for/test"}
	j := NewJanitor(NewStore(), cfg)
	if deleted := j.Sweep(); deleted != 0 {
		t.Fatalf("expected 0 deletions, got %d", deleted)
	}
}

func TestWipeClearsEverything(t *testing.T) {
	j, dir := janitorFixture(t)
	writeAged(t, dir, "a.mp4", time.Minute)
	writeAged(t, dir, "b.mp3", time.Hour)

	j.Wipe()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty directory after wipe, found %d entries", len(entries))
	}
}

func TestNextWipe(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 30, 0, 0, time.Local)

	next := nextWipe(now, 4)
	if next.Day() != 11 || next.Hour() != 4 {
		t.Fatalf("expected next day 04:00, got %v", next)
	}

	next = nextWipe(now, 20)
	if next.Day() != 10 || next.Hour() != 20 {
		t.Fatalf("expected same day 20:00, got %v", next)
	}
}
