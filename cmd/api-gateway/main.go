package main

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"

	"go.uber.org/zap"

	"github.com/propduel/takes-platform/internal/shared/config"
	"github.com/propduel/takes-platform/internal/shared/logger"
)

func rp(to string) *httputil.ReverseProxy {
	u, _ := url.Parse(to)
	return httputil.NewSingleHostReverseProxy(u)
}

func main() {
	cfg := config.Load()
	log, _ := logger.New(cfg.ServiceName, cfg.Env)
	defer log.Sync()

	// targets
	takesURL := os.Getenv("TAKES_URL")
	if takesURL == "" {
		takesURL = "http://localhost:8080"
	}
	adminURL := os.Getenv("ADMIN_URL")
	if adminURL == "" {
		adminURL = "http://localhost:8084"
	}
	takes := rp(takesURL)
	admin := rp(adminURL)

	mux := http.NewServeMux()

	// público (ex.: /api/takes/v1/* -> takes-service)
	mux.Handle("/api/takes/", http.StripPrefix("/api/takes", takes))

	// administrativo (ex.: /api/admin/v1/* -> admin-service)
	mux.Handle("/api/admin/", http.StripPrefix("/api/admin", admin))

	addr := ":" + cfg.HTTPPort
	log.Info("api-gateway listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, withCORS(mux)); err != nil && err != http.ErrServerClosed {
		log.Fatal("gateway failed", zap.Error(err))
	}
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
