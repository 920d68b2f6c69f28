package server

import (
	"os"

	"github.com/snpsujon/yt-dlp/internal/config"
)

// PrepareFilesystem ensures the shared download directory exists
func PrepareFilesystem(cfg *config.Config) error {
	return os.MkdirAll(cfg.DownloadDir, 0755)
}
