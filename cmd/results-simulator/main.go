package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/propduel/takes-platform/internal/grading/provider"
	"github.com/propduel/takes-platform/internal/shared/config"
	"github.com/propduel/takes-platform/internal/shared/logger"
	"github.com/propduel/takes-platform/internal/shared/metrics"
)

// Catálogo fixo de eventos simulados; cada um conclui num horário escalonado
// a partir do boot, com placar aleatório.
var eventCatalog = []string{
	"MATCH_001",
	"MATCH_002",
	"MATCH_003",
	"MATCH_004",
}

var (
	resultsServed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "results_requests_total",
		Help: "Requisições de resultado por status",
	}, []string{"status"})
)

// store guarda os resultados simulados e o instante em que cada evento conclui
type store struct {
	mu       sync.RWMutex
	outcomes map[string]provider.Outcome
	readyAt  map[string]time.Time
}

func newStore() *store {
	s := &store{
		outcomes: make(map[string]provider.Outcome),
		readyAt:  make(map[string]time.Time),
	}
	for i, ref := range eventCatalog {
		home := rand.Intn(40)
		away := rand.Intn(40)
		winner := ""
		if home > away {
			winner = "A"
		} else if away > home {
			winner = "B"
		}
		s.outcomes[ref] = provider.Outcome{
			EventRef:   ref,
			HomeScore:  home,
			AwayScore:  away,
			WinnerSide: winner,
			Concluded:  true,
		}
		// escalona a conclusão: um evento a cada 30s após o boot
		s.readyAt[ref] = time.Now().Add(time.Duration(30*(i+1)) * time.Second)
	}
	return s
}

// get retorna o resultado se o evento já concluiu
func (s *store) get(ref string) (provider.Outcome, bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.outcomes[ref]
	if !ok {
		return provider.Outcome{}, false, false
	}
	return out, true, time.Now().After(s.readyAt[ref])
}

// conclude força a conclusão imediata de um evento (atalho para testes locais)
func (s *store) conclude(ref string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.outcomes[ref]; !ok {
		return false
	}
	s.readyAt[ref] = time.Now().Add(-time.Second)
	return true
}

func main() {
	cfg := config.Load()
	log, _ := logger.New(cfg.ServiceName, cfg.Env)
	defer log.Sync()

	prometheus.MustRegister(resultsServed)

	st := newStore()

	mux := http.NewServeMux()

	// GET /results/{eventRef}
	mux.HandleFunc("/results/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ref := strings.TrimPrefix(r.URL.Path, "/results/")
		out, known, concluded := st.get(ref)
		if !known {
			resultsServed.WithLabelValues("not_found").Inc()
			http.Error(w, "unknown event", http.StatusNotFound)
			return
		}
		if !concluded {
			// evento ainda em andamento: o grading trata como retryable
			resultsServed.WithLabelValues("pending").Inc()
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(provider.Outcome{EventRef: ref, Concluded: false})
			return
		}
		resultsServed.WithLabelValues("ok").Inc()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})

	// POST /simulator/conclude/{eventRef}
	mux.HandleFunc("/simulator/conclude/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ref := strings.TrimPrefix(r.URL.Path, "/simulator/conclude/")
		if !st.conclude(ref) {
			http.Error(w, "unknown event", http.StatusNotFound)
			return
		}
		log.Info("event concluded by request", zap.String("event_ref", ref))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	metrics.StartMetricsServer(cfg.MetricsPort, func(context.Context) error { return nil })
	log.Info("metrics/health", zap.String("addr", ":"+cfg.MetricsPort))

	addr := fmt.Sprintf(":%s", cfg.HTTPPort)
	log.Info("results-simulator listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		log.Fatal("api", zap.Error(err))
	}
}
