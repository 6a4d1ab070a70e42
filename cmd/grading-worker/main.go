package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/propduel/takes-platform/internal/grading/consumer"
	"github.com/propduel/takes-platform/internal/grading/engine"
	"github.com/propduel/takes-platform/internal/grading/formula"
	"github.com/propduel/takes-platform/internal/grading/provider"
	grepo "github.com/propduel/takes-platform/internal/grading/repo"
	"github.com/propduel/takes-platform/internal/shared/config"
	"github.com/propduel/takes-platform/internal/shared/db"
	sharedkafka "github.com/propduel/takes-platform/internal/shared/kafka"
	"github.com/propduel/takes-platform/internal/shared/logger"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Postgres para marcação do ledger
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg connect", zap.Error(err))
	}
	defer pg.Close()

	// Kafka consumer: pedidos de apuração
	reader := sharedkafka.NewReader(cfg.KafkaBrokers, cfg.TopicGradeRequests, "grading-worker")
	defer reader.Close()

	// Kafka producers: prop_graded e DLQ
	gradedWriter := sharedkafka.NewWriter(cfg.KafkaBrokers, cfg.TopicPropGraded)
	defer gradedWriter.Close()

	var dlqWriter *sharedkafka.Writer
	if cfg.TopicGradeRequestsDLQ != "" {
		dlqWriter = sharedkafka.NewWriter(cfg.KafkaBrokers, cfg.TopicGradeRequestsDLQ)
		defer dlqWriter.Close()
	}

	eng := &engine.Engine{
		Log:      log,
		Store:    grepo.NewPostgres(pg),
		Source:   provider.New(cfg.ResultsBaseURL),
		Formulas: formula.NewRegistry(),
		Timeout:  3 * time.Second,
	}

	// Métricas Prometheus para monitoramento da apuração
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "grading_requests_consumed_total", Help: "pedidos consumidos"})
	graded := prometheus.NewCounter(prometheus.CounterOpts{Name: "grading_props_graded_total", Help: "props apurados"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "grading_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, graded, errorsBy)

	worker := &consumer.Worker{
		Log:       log,
		Reader:    reader,
		Engine:    eng,
		Graded:    gradedWriter,
		DLQ:       dlqWriter,
		OnConsume: func() { consumed.Inc() },
		OnGraded:  func() { graded.Inc() },
		OnError:   func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	// Servidor HTTP para métricas e health check
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
			defer cancel()
			if err := pg.PingContext(ctx); err != nil {
				http.Error(w, "pg", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		addr := fmt.Sprintf(":%s", cfg.MetricsPort)
		log.Info("metrics/health listening", zap.String("addr", addr))
		_ = http.ListenAndServe(addr, mux)
	}()

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("grading-worker started",
		zap.String("consume", cfg.TopicGradeRequests),
		zap.String("publish", cfg.TopicPropGraded),
	)
	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("worker stopped with error", zap.Error(err))
	}
	log.Info("grading-worker stopped")
}
