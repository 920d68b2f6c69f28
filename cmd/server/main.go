package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/snpsujon/yt-dlp/internal/api"
	"github.com/snpsujon/yt-dlp/internal/config"
	"github.com/snpsujon/yt-dlp/internal/downloader"
	"github.com/snpsujon/yt-dlp/internal/jobs"
	"github.com/snpsujon/yt-dlp/internal/reqlog"
	"github.com/snpsujon/yt-dlp/internal/server"
)

func main() {
	godotenv.Load()
	cfg := config.Load()

	if err := server.PrepareFilesystem(cfg); err != nil {
		log.Fatalf("Error preparing filesystem: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Fetch the yt-dlp binary when it is not on PATH yet.
	downloader.Install(ctx)

	store := jobs.NewStore()
	engine := downloader.NewEngine(cfg.DownloadDir, cfg.CookieFile)
	manager := jobs.NewManager(store, engine, cfg)

	janitor := jobs.NewJanitor(store, cfg)
	janitor.Start(ctx)

	handler := api.NewHandler(manager, store, engine, reqlog.New(cfg.RequestLogFile), cfg.DownloadDir)
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	router := api.NewRouter(handler, limiter)

	srv := &http.Server{Addr: cfg.Port, Handler: router}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		if err := manager.Shutdown(shutdownCtx); err != nil {
			log.Printf("Job drain error: %v", err)
		}
		cancel()
	}()

	fmt.Println(">>> Media download server started")
	fmt.Printf(">>> Port: %s\n", cfg.Port)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
