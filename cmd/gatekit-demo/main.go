// Package main demonstrates wiring gatekit into a chi HTTP server.
//
// It starts a local server backed by miniredis when REDIS_ADDR is unset,
// so no external infrastructure is required to try it out.
//
// Endpoints:
//
//	POST /login                — seeds a session for the demo account
//	GET  /api/profile          — authenticated route
//	POST /api/2fa/setup        — begin TOTP enrollment
//	POST /api/2fa/confirm      — confirm enrollment with a live code
//	POST /api/2fa/verify       — exchange a code for a two-factor grant
//	POST /api/2fa/backup       — redeem a backup code for a grant
//	GET  /api/secure           — route requiring a two-factor grant
//	GET  /metrics              — Prometheus text exposition
//
// Run:
//
//	GATEKIT_GRANT_KEY=$(head -c32 /dev/urandom | base64) go run ./cmd/gatekit-demo
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	gatekit "github.com/MrEthical07/gatekit"
	"github.com/MrEthical07/gatekit/metrics/export/prometheus"
	gatemw "github.com/MrEthical07/gatekit/middleware"
	"github.com/MrEthical07/gatekit/stores"
)

type serverConfig struct {
	Addr      string `env:"GATEKIT_ADDR" envDefault:":8080"`
	RedisAddr string `env:"REDIS_ADDR"`
	GrantKey  string `env:"GATEKIT_GRANT_KEY,required"`
	Issuer    string `env:"GATEKIT_ISSUER" envDefault:"gatekit-demo"`
}

// demoIdentityProvider maps session tokens to identities in memory. A
// real deployment backs this with its own auth system.
type demoIdentityProvider struct {
	mu       sync.RWMutex
	sessions map[string]*gatekit.Identity
}

func (p *demoIdentityProvider) CurrentIdentity(_ context.Context, req *gatekit.Request) (*gatekit.Identity, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sessions[req.SessionToken], nil
}

func (p *demoIdentityProvider) put(token string, identity *gatekit.Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[token] = identity
}

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	var cfg serverConfig
	if err := env.Parse(&cfg); err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	redisAddr := cfg.RedisAddr
	if redisAddr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			logger.Fatal("miniredis", zap.Error(err))
		}
		defer mr.Close()
		redisAddr = mr.Addr()
		logger.Info("using embedded redis", zap.String("addr", redisAddr))
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() { _ = rdb.Close() }()

	gateConfig := gatekit.DefaultConfig()
	gateConfig.TOTP.Issuer = cfg.Issuer
	gateConfig.Grant.SigningKey = []byte(cfg.GrantKey)

	identities := &demoIdentityProvider{sessions: map[string]*gatekit.Identity{}}

	gate, err := gatekit.New().
		WithConfig(gateConfig).
		WithRedis(rdb).
		WithIdentityProvider(identities).
		WithCredentialStore(stores.NewRedisCredentialStore(rdb, "")).
		WithAuditSink(gatekit.NewZapSink(logger)).
		Build()
	if err != nil {
		logger.Fatal("gate", zap.Error(err))
	}
	defer gate.Close()

	authPolicy := gatekit.RoutePolicy{Endpoint: "api", RequireAuth: true, RateLimitWindow: time.Minute, RateLimitMax: 120}
	securePolicy := gatekit.RoutePolicy{Endpoint: "secure", RequireAuth: true, RequireTwoFactor: true, RateLimitWindow: time.Minute, RateLimitMax: 60}
	loginPolicy := gatekit.RoutePolicy{Endpoint: "login", RateLimitWindow: time.Minute, RateLimitMax: 10}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", prometheus.NewPrometheusExporter(gate).Handler())

	r.With(gatemw.Protect(gate, loginPolicy, 0)).Post("/login", func(w http.ResponseWriter, req *http.Request) {
		record, err := gate.CreateSession(req.Context(), "demo-user", req.UserAgent(), clientIP(req))
		if err != nil {
			http.Error(w, "session create failed", http.StatusServiceUnavailable)
			return
		}
		identities.put(record.Token, &gatekit.Identity{ID: "demo-user", Email: "demo@example.com"})
		writeJSON(w, map[string]string{"session_token": record.Token})
	})

	r.Route("/api", func(r chi.Router) {
		r.With(gatemw.Protect(gate, authPolicy, 0)).Get("/profile", func(w http.ResponseWriter, req *http.Request) {
			identity, _ := gatemw.IdentityFromContext(req.Context())
			writeJSON(w, map[string]string{"id": identity.ID, "email": identity.Email})
		})

		r.With(gatemw.Protect(gate, authPolicy, 0)).Post("/2fa/setup", func(w http.ResponseWriter, req *http.Request) {
			identity, _ := gatemw.IdentityFromContext(req.Context())
			setup, err := gate.SetupTOTP(req.Context(), identity.ID)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, map[string]any{
				"secret":        setup.Secret,
				"provision_uri": setup.ProvisionURI,
				"backup_codes":  setup.BackupCodes,
			})
		})

		r.With(gatemw.Protect(gate, authPolicy, 0)).Post("/2fa/confirm", func(w http.ResponseWriter, req *http.Request) {
			identity, _ := gatemw.IdentityFromContext(req.Context())
			var body struct {
				Code string `json:"code"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			if err := gate.ConfirmTOTP(req.Context(), identity.ID, body.Code); err != nil {
				writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.With(gatemw.Protect(gate, authPolicy, 0)).Post("/2fa/verify", func(w http.ResponseWriter, req *http.Request) {
			identity, _ := gatemw.IdentityFromContext(req.Context())
			var body struct {
				Code string `json:"code"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			grant, err := gate.VerifyTOTP(req.Context(), identity.ID, sessionToken(req), body.Code, clientIP(req))
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, map[string]string{"grant": grant})
		})

		r.With(gatemw.Protect(gate, authPolicy, 0)).Post("/2fa/backup", func(w http.ResponseWriter, req *http.Request) {
			identity, _ := gatemw.IdentityFromContext(req.Context())
			var body struct {
				Code string `json:"code"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			grant, remaining, err := gate.UseBackupCode(req.Context(), identity.ID, sessionToken(req), body.Code, clientIP(req))
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, map[string]any{"grant": grant, "remaining": remaining})
		})

		r.With(gatemw.Protect(gate, securePolicy, 0)).Get("/secure", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, map[string]string{"status": "two-factor verified"})
		})
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("serve", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

func sessionToken(req *http.Request) string {
	const bearer = "Bearer "
	value := req.Header.Get("Authorization")
	if len(value) > len(bearer) && value[:len(bearer)] == bearer {
		return value[len(bearer):]
	}
	return ""
}

func clientIP(req *http.Request) string {
	// chi's RealIP middleware rewrites RemoteAddr from forwarding headers.
	host := req.RemoteAddr
	for i := len(host) - 1; i >= 0; i-- {
		if host[i] == ':' {
			return host[:i]
		}
	}
	return host
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, gatekit.ErrAccountLocked):
		status = http.StatusUnauthorized
	case errors.Is(err, gatekit.ErrTOTPUnavailable),
		errors.Is(err, gatekit.ErrCredentialStoreUnavailable),
		errors.Is(err, gatekit.ErrLockoutUnavailable),
		errors.Is(err, gatekit.ErrSessionUnavailable):
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
