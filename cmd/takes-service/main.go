package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	chrepo "github.com/propduel/takes-platform/internal/challenge/repo"
	"github.com/propduel/takes-platform/internal/identity"
	"github.com/propduel/takes-platform/internal/leaderboard"
	"github.com/propduel/takes-platform/internal/shared/cache"
	"github.com/propduel/takes-platform/internal/shared/config"
	"github.com/propduel/takes-platform/internal/shared/db"
	sharedkafka "github.com/propduel/takes-platform/internal/shared/kafka"
	"github.com/propduel/takes-platform/internal/shared/logger"
	thttp "github.com/propduel/takes-platform/internal/takes/http"
	"github.com/propduel/takes-platform/internal/takes/producer"
	"github.com/propduel/takes-platform/internal/takes/repo"
)

func main() {
	cfg := config.Load()
	log, _ := logger.New(cfg.ServiceName, cfg.Env)
	defer log.Sync()

	// Postgres
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg", zap.Error(err))
	}
	defer pg.Close()

	// Redis
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka writer (topic take_recorded)
	writer := sharedkafka.NewWriter(cfg.KafkaBrokers, cfg.TopicTakeRecorded)
	defer writer.Close()

	// deps
	ledger := repo.NewPostgres(pg)
	challenges := chrepo.NewPostgres(pg)
	resolver := identity.NewResolver(pg, rdb)
	boards := &leaderboard.Aggregator{
		Log:     log,
		Store:   leaderboard.NewPostgresStore(pg),
		Handles: resolver,
		Cache:   leaderboard.NewRedisCache(rdb),
		TTL:     15 * time.Second,
	}
	publ := producer.NewKafkaPublisher(writer, cfg.TopicTakeRecorded)

	api := thttp.NewServer(log, ledger, challenges, resolver, boards, cfg.ChallengeTieBreak, publ)

	// Métricas de submissão
	submitted := prometheus.NewCounter(prometheus.CounterOpts{Name: "takes_submitted_total", Help: "takes aceitos"})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{Name: "takes_supersession_conflicts_total", Help: "corridas de supersessão reexecutadas"})
	prometheus.MustRegister(submitted, conflicts)
	api.OnSubmitted = func() { submitted.Inc() }
	api.OnConflictRetry = func() { conflicts.Inc() }

	apiSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: api.Router(),
	}

	// metrics/health
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pg.PingContext(r.Context()); err != nil {
			http.Error(w, "pg", http.StatusServiceUnavailable)
			return
		}
		if err := rdb.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	go func() {
		addr := fmt.Sprintf(":%s", cfg.MetricsPort)
		log.Info("metrics/health", zap.String("addr", addr))
		_ = http.ListenAndServe(addr, metricsMux)
	}()

	log.Info("takes-service listening", zap.String("addr", fmt.Sprintf(":%s", cfg.HTTPPort)))
	if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api", zap.Error(err))
	}
}
