package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"weather-pipeline/internal/config"
	"weather-pipeline/internal/export"
	"weather-pipeline/internal/queue"
	"weather-pipeline/internal/store"
	"weather-pipeline/internal/telemetry"
	"weather-pipeline/internal/weather"
	workerproc "weather-pipeline/internal/worker"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	q := queue.NewRedisQueue(cfg)
	if err := q.Ping(ctx); err != nil {
		log.Fatalf("connect redis: %v", err)
	}

	exporter, err := export.NewExporter(ctx, cfg, st)
	if err != nil {
		log.Fatalf("init snapshot exporter: %v", err)
	}

	var snapshots workerproc.Snapshotter
	if exporter != nil {
		snapshots = exporter
	}
	processor := workerproc.New(cfg, q, st, st, weather.NewClient(cfg), snapshots)

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	log.Printf("worker started queue=%s pop_timeout=%s cities=%d", cfg.QueueName, cfg.PopTimeout, len(cfg.Cities))
	if err := processor.Run(ctx); err != nil {
		log.Printf("worker stopped: %v", err)
	}
}
