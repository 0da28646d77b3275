// Package main implements the gateway process entry point: configuration
// and routing-policy load, broker and identity-provider wiring, HTTP
// route registration, dual plain/TLS listeners, and graceful shutdown.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aras-services/aras-gateway/config"
	"github.com/aras-services/aras-gateway/internal/busclient"
	"github.com/aras-services/aras-gateway/internal/gateway"
	"github.com/aras-services/aras-gateway/internal/health"
	authmiddleware "github.com/aras-services/aras-gateway/internal/middleware"
	"github.com/aras-services/aras-gateway/internal/oidc"
	"github.com/aras-services/aras-gateway/internal/routing"
	"github.com/aras-services/aras-gateway/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to gatewaysettings.json (defaults to ./gatewaysettings.json)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	// Startup fails closed on an invalid routing policy (spec §4.2/§7):
	// the process must not begin accepting traffic with an ambiguous tree.
	if err := routing.ValidateShape(&cfg.Routing); err != nil {
		logger.Fatal("routing configuration failed shape validation", zap.Error(err))
	}
	if err := routing.Validate(&cfg.Routing); err != nil {
		logger.Fatal("routing configuration is invalid", zap.Error(err))
	}
	router := routing.NewRouter(&cfg.Routing)

	shutdownTracing, err := telemetry.Configure("aras-gateway")
	if err != nil {
		logger.Fatal("failed to configure tracing", zap.Error(err))
	}

	registry := prometheus.NewRegistry()

	brokerURL := rabbitmqURL(cfg.RabbitMQ)
	bus, err := busclient.Dial(brokerURL, registry)
	if err != nil {
		logger.Fatal("failed to connect to broker", zap.Error(err))
	}
	defer bus.Close()

	verifierCtx, cancelVerifier := context.WithTimeout(context.Background(), 30*time.Second)
	verifier, err := oidc.NewVerifier(verifierCtx, cfg.AppSettings.Keycloak.Authority, !cfg.AppSettings.Keycloak.RequireHttpsMetadata)
	cancelVerifier()
	if err != nil {
		logger.Fatal("failed to initialize identity provider verifier", zap.Error(err))
	}

	authz := authmiddleware.NewAuthorizer(router, verifier)
	prober := health.NewProber(router, bus, registry)

	handler := &gateway.Handler{
		Router: router,
		Bus:    bus,
		Authz:  authz,
		// Stack traces in error bodies are a non-production aid; the
		// gateway has no environment flag of its own, so this tracks
		// the IdP's own dev/prod switch instead of adding a new one.
		ShowExceptions: !cfg.AppSettings.Keycloak.RequireHttpsMetadata,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(authmiddleware.Telemetry)
	r.Use(authmiddleware.TraceID)
	r.Use(authmiddleware.NewCORSMiddleware(cfg.AppSettings.AllowedOrigins))
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(zapRequestLogger(logger))

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	handler.Mount(r, func(w http.ResponseWriter, req *http.Request) {
		report := prober.Run(req.Context())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(health.HTTPStatus(report.Status))
		encodeJSON(w, report)
	})

	servers := startServers(logger, cfg.Server, r)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gateway")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, s := range servers {
		if err := s.Shutdown(ctx); err != nil {
			logger.Error("server forced to shutdown", zap.String("addr", s.Addr), zap.Error(err))
		}
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.Error("failed to flush tracing exporter", zap.Error(err))
	}

	logger.Info("gateway exited")
}

func rabbitmqURL(cfg config.RabbitMQConfig) string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(cfg.Username, cfg.Password),
		Host:   cfg.Hostname,
	}
	return u.String()
}

// startServers launches the plain HTTP listener always, and the TLS
// listener only when a certificate pair is configured (spec §6 names
// both endpoints but a gateway run for local development commonly has
// no cert material to hand).
func startServers(logger *zap.Logger, cfg config.ServerConfig, handler http.Handler) []*http.Server {
	var servers []*http.Server

	plain := &http.Server{Addr: cfg.HTTPAddr, Handler: handler}
	servers = append(servers, plain)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.Bool("tls", false))
		if err := plain.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("plain listener failed", zap.Error(err))
		}
	}()

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		tlsServer := &http.Server{Addr: cfg.HTTPSAddr, Handler: handler}
		servers = append(servers, tlsServer)
		go func() {
			logger.Info("listening", zap.String("addr", cfg.HTTPSAddr), zap.Bool("tls", true))
			if err := tlsServer.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile); err != nil && err != http.ErrServerClosed {
				logger.Fatal("TLS listener failed", zap.Error(err))
			}
		}()
	}

	return servers
}

func zapRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("traceId", chimw.GetReqID(r.Context())),
			)
		})
	}
}

func encodeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		w.Write([]byte(`{"status":"Unhealthy","checks":[]}`))
	}
}
