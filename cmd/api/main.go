// Command api serves the document import HTTP API.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lvicentin/grana/internal/api/handlers"
	"github.com/lvicentin/grana/internal/api/middleware"
	"github.com/lvicentin/grana/internal/config"
	"github.com/lvicentin/grana/internal/dedup"
	"github.com/lvicentin/grana/internal/fieldcrypt"
	"github.com/lvicentin/grana/internal/gate"
	"github.com/lvicentin/grana/internal/logger"
	"github.com/lvicentin/grana/internal/oracle"
	"github.com/lvicentin/grana/internal/pipeline"
	"github.com/lvicentin/grana/internal/store/sqlite"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to TOML config (defaults apply when empty)")
		addr       = flag.String("addr", "", "Listen address (overrides config)")
	)
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			bootLog := logger.New("info")
			bootLog.Fatal().Err(err).Msg("Failed to load config")
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.API.Addr = *addr
	}

	log := logger.New(cfg.LogLevel)
	ctx := context.Background()

	st, err := sqlite.Open(cfg.Store.Path, sqlite.WithLogger(log))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer st.Close()

	if cfg.Crypto.Enabled {
		salt, err := st.EncryptionSalt(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load encryption salt")
		}
		codec, err := fieldcrypt.New(salt, "default")
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to derive encryption key")
		}
		st.SetCodec(codec)
	}

	apiKey := os.Getenv(cfg.Oracle.APIKeyEnv)
	if apiKey == "" {
		log.Fatal().Str("env", cfg.Oracle.APIKeyEnv).Msg("Extraction API key not set")
	}
	extractor, err := oracle.NewGemini(ctx, apiKey, cfg.Oracle.Model)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create extraction client")
	}

	g := gate.New(st, cfg.Import.ConsentVersion, cfg.Import.RateLimit, cfg.Import.RateWindow())
	pipe := pipeline.New(st, extractor, g, dedup.NewMatcher(cfg.Import.SubscriptionAliases), log)

	importsHandler := handlers.NewImportsHandler(pipe, log)
	estimateHandler := handlers.NewEstimateHandler(pipe, log)
	consentHandler := handlers.NewConsentHandler(g, log)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/imports", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			importsHandler.CreateImport(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/estimate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			estimateHandler.GetEstimate(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/consent", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			consentHandler.GetConsent(w, r)
		case http.MethodPut:
			consentHandler.PutConsent(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(mux),
		),
	)

	server := &http.Server{
		Addr:    cfg.API.Addr,
		Handler: handler,
		// Imports wait on the extraction model; give writes room.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.API.Addr).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
