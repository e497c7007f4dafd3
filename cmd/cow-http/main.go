package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

import (
	"github.com/gorilla/mux"
)

import (
	"github.com/nanjiek/pixiu-cow/internal/api"
	"github.com/nanjiek/pixiu-cow/internal/config"
	"github.com/nanjiek/pixiu-cow/internal/repo"
	"github.com/nanjiek/pixiu-cow/internal/source"
	"github.com/nanjiek/pixiu-cow/internal/store"
)

func main() {
	confPath := flag.String("c", "configs/cow.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*confPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	rdb, err := repo.NewRedis(cfg, nil)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	flagStore := store.NewStore(cfg, rdb)
	if cfg.Source.Enabled() {
		httpSource := source.NewHTTPSource(cfg.Source)
		poller := store.NewPoller(httpSource, flagStore, store.PollerConfig{
			Interval:   time.Duration(cfg.Source.PollIntervalMs) * time.Millisecond,
			FailPolicy: cfg.Source.FailPolicy,
		})
		if err := poller.SyncOnce(rootCtx); err != nil {
			if strings.EqualFold(cfg.Source.FailPolicy, "fail-closed") {
				log.Fatalf("failed to load flags from source: %v", err)
			}
			log.Printf("source pull failed, using last-good flags: %v", err)
		}
		go poller.Start(rootCtx)
	} else {
		if err := flagStore.Bootstrap(rootCtx); err != nil {
			log.Fatalf("failed to bootstrap flags: %v", err)
		}
		go flagStore.StartWatcher(rootCtx)
	}

	httpServer := api.NewServer(cfg.Server, flagStore)

	r := mux.NewRouter()
	httpServer.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: r,
	}

	go func() {
		log.Printf("server is running on %s (PID: %d)", cfg.Server.HTTPAddr, os.Getpid())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")
	cancelRoot()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server shutdown failed: %v", err)
	}
	log.Println("server exited properly")
}
