package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/propduel/takes-platform/internal/grading/engine"
	"github.com/propduel/takes-platform/internal/grading/formula"
	"github.com/propduel/takes-platform/internal/grading/provider"
	grepo "github.com/propduel/takes-platform/internal/grading/repo"
	"github.com/propduel/takes-platform/internal/shared/config"
	"github.com/propduel/takes-platform/internal/shared/db"
	sharedkafka "github.com/propduel/takes-platform/internal/shared/kafka"
	"github.com/propduel/takes-platform/internal/shared/logger"
	"github.com/propduel/takes-platform/internal/shared/metrics"
	"github.com/propduel/takes-platform/pkg/contracts/events"
)

func main() {
	cfg := config.Load()
	log, _ := logger.New(cfg.ServiceName, cfg.Env)
	defer log.Sync()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg", zap.Error(err))
	}
	defer pg.Close()

	gradeWriter := sharedkafka.NewWriter(cfg.KafkaBrokers, cfg.TopicGradeRequests)
	defer gradeWriter.Close()

	repo := grepo.NewPostgres(pg)
	eng := &engine.Engine{
		Log:      log,
		Store:    repo,
		Source:   provider.New(cfg.ResultsBaseURL),
		Formulas: formula.NewRegistry(),
		Timeout:  3 * time.Second,
	}

	mux := http.NewServeMux()

	// Rotas: POST /v1/admin/props/{id}/{close|grade|grade-async}
	mux.HandleFunc("/v1/admin/props/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/props/")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 || parts[0] == "" {
			http.Error(w, "propId required", http.StatusBadRequest)
			return
		}
		propID, action := parts[0], parts[1]

		switch action {
		case "close":
			handleClose(w, r, log, repo, propID)
		case "grade":
			handleGrade(w, r, log, eng, propID)
		case "grade-async":
			handleGradeAsync(w, r, log, gradeWriter, propID)
		default:
			http.NotFound(w, r)
		}
	})

	// metrics/health
	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return pg.PingContext(ctx)
	})
	log.Info("metrics/health", zap.String("addr", ":"+cfg.MetricsPort))

	addr := fmt.Sprintf(":%s", cfg.HTTPPort)
	log.Info("admin-service listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		log.Fatal("api", zap.Error(err))
	}
}

// handleClose transiciona o prop de open para closed (início do evento)
func handleClose(w http.ResponseWriter, r *http.Request, log *zap.Logger, repo *grepo.Postgres, propID string) {
	err := repo.CloseProp(r.Context(), propID)
	switch {
	case err == nil:
		writeJSON(w, map[string]string{"propId": propID, "status": "closed"})
	case errors.Is(err, engine.ErrNotFound):
		http.Error(w, "prop not found", http.StatusNotFound)
	case errors.Is(err, grepo.ErrStateConflict):
		http.Error(w, "prop not open", http.StatusConflict)
	default:
		log.Error("close prop", zap.String("prop_id", propID), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// handleGrade apura o prop de forma síncrona. Reexecutar não duplica pontos;
// prop já apurado responde com gradedCount zero. ?force=true permite apurar
// um prop ainda aberto.
func handleGrade(w http.ResponseWriter, r *http.Request, log *zap.Logger, eng *engine.Engine, propID string) {
	force := r.URL.Query().Get("force") == "true"
	n, err := eng.GradeProp(r.Context(), propID, force)
	switch {
	case err == nil:
		writeJSON(w, map[string]any{"propId": propID, "gradedCount": n})
	case errors.Is(err, engine.ErrNotFound):
		http.Error(w, "prop not found", http.StatusNotFound)
	case errors.Is(err, engine.ErrPropStillOpen):
		http.Error(w, "prop still open", http.StatusConflict)
	case errors.Is(err, provider.ErrResolutionUnavailable):
		// administrativo e retryable; o prop fica no estado anterior
		log.Warn("resolution unavailable", zap.String("prop_id", propID), zap.Error(err))
		http.Error(w, "resolution unavailable", http.StatusServiceUnavailable)
	default:
		log.Error("grade prop", zap.String("prop_id", propID), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// handleGradeAsync enfileira o pedido para o grading-worker
func handleGradeAsync(w http.ResponseWriter, r *http.Request, log *zap.Logger, writer *sharedkafka.Writer, propID string) {
	ev := events.GradeRequested{PropID: propID, RequestedBy: "admin-service", Ts: time.Now()}
	b, _ := json.Marshal(ev)
	if err := sharedkafka.WriteJSON(r.Context(), writer, propID, b); err != nil {
		log.Error("publish grade request", zap.String("prop_id", propID), zap.Error(err))
		http.Error(w, "publish failed", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"propId": propID, "status": "queued"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
