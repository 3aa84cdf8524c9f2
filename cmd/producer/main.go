package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"weather-pipeline/internal/config"
	"weather-pipeline/internal/producer"
	"weather-pipeline/internal/queue"
	"weather-pipeline/internal/store"
	"weather-pipeline/internal/telemetry"
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

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	p := producer.New(cfg, q, st)
	log.Printf("producer started interval=%s queue=%s cities=%d", cfg.ProducerInterval, cfg.QueueName, len(cfg.Cities))
	if err := p.Run(ctx); err != nil {
		log.Printf("producer stopped: %v", err)
	}
}
