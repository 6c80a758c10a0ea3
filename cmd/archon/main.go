package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/arcaneos/archon-runtime/internal/audit"
	"github.com/arcaneos/archon-runtime/internal/dispatch"
	"github.com/arcaneos/archon-runtime/internal/gatekeeper"
	"github.com/arcaneos/archon-runtime/internal/infra"
	"github.com/arcaneos/archon-runtime/internal/infra/auth"
	"github.com/arcaneos/archon-runtime/internal/prompt"
	"github.com/arcaneos/archon-runtime/internal/server"
	"github.com/arcaneos/archon-runtime/internal/tool"
	"github.com/arcaneos/archon-runtime/internal/tool/db"
	"github.com/arcaneos/archon-runtime/internal/tool/fs"
	"github.com/arcaneos/archon-runtime/internal/tool/meta"
	"github.com/arcaneos/archon-runtime/internal/tool/shell"
	"github.com/arcaneos/archon-runtime/internal/tool/web"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional Redis: kill switch and remote decision channel.
	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		r := retry.New(retry.Context(appCtx), retry.Attempts(5), retry.Delay(time.Second))
		if err := r.Do(func() error { return rdb.Ping(appCtx).Err() }); err != nil {
			logger.Fatal("redis unreachable", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	}

	// Auth: public key is mandatory (every endpoint past /health needs it);
	// the private key is only needed to issue tokens locally.
	publicKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("auth public key", zap.Error(err))
	}
	validator := auth.NewBaseValidator(publicKey)

	var issuer *auth.Issuer
	if len(cfg.Auth.PrivateKey) > 0 {
		privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
		if err != nil {
			logger.Fatal("auth private key", zap.Error(err))
		}
		issuer = auth.NewIssuer(privateKey, cfg.Auth.TokenTTL, cfg.Auth.Operators)
	}

	// Gatekeeper: rules, prompt backend, kill switch.
	rules, err := gatekeeper.NewRules(cfg.Gatekeeper)
	if err != nil {
		logger.Fatal("gatekeeper rules", zap.Error(err))
	}

	var prompter gatekeeper.Prompter
	var queue *prompt.Queue
	mode := cfg.Gatekeeper.Mode
	if mode == "auto" {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			mode = "terminal"
		} else {
			mode = "queue"
		}
	}
	switch mode {
	case "terminal":
		prompter = prompt.NewTerminal()
	case "queue":
		queue = prompt.NewQueue(cfg.Gatekeeper.PromptTTL, logger.Named("prompt"))
		prompter = queue
		if rdb != nil {
			prompt.StartDecisionListener(appCtx, rdb, queue, logger.Named("prompt"))
		}
	default:
		logger.Fatal("unknown gatekeeper mode", zap.String("mode", cfg.Gatekeeper.Mode))
	}
	logger.Info("gatekeeper prompt backend", zap.String("mode", mode))

	var blocked *gatekeeper.BlockedSet
	if rdb != nil {
		blocked = gatekeeper.NewBlockedSet(logger.Named("killswitch"))
		if err := blocked.Warmup(appCtx, rdb); err != nil {
			logger.Fatal("kill-switch warmup", zap.Error(err))
		}
		go blocked.Listen(appCtx, rdb)
	}

	gk := gatekeeper.New(rules, prompter, blockedOrNil(blocked), logger.Named("gatekeeper"))
	var gate tool.Gate = gk

	// Tool registry.
	registry := tool.NewRegistry()

	var runner db.QueryRunner
	if len(cfg.Tools.Databases) > 0 {
		poolRunner, err := db.NewPoolRunner(appCtx, cfg.Tools.Databases, logger.Named("db"))
		if err != nil {
			logger.Fatal("database pools", zap.Error(err))
		}
		defer poolRunner.Close()
		r := retry.New(retry.Context(appCtx), retry.Attempts(5), retry.Delay(time.Second))
		if err := r.Do(func() error { return poolRunner.Ping(appCtx) }); err != nil {
			logger.Fatal("database unreachable", zap.Error(err))
		}
		runner = poolRunner
		logger.Info("databases connected", zap.Strings("names", poolRunner.Databases()))
	}

	for _, err := range []error{
		fs.RegisterAll(registry, gate),
		shell.RegisterAll(registry, gate, cfg.Tools.ExecTimeout),
		web.RegisterAll(registry, gate, nil, cfg.Tools.HTTPTimeout),
		db.RegisterAll(registry, gate, runner),
		meta.RegisterAll(registry),
	} {
		if err != nil {
			logger.Fatal("tool registration", zap.Error(err))
		}
	}
	logger.Info("tools registered", zap.Int("count", registry.Count()))

	// Dispatcher, audit, metrics.
	promReg := prometheus.NewRegistry()
	metrics := dispatch.NewMetrics(promReg)
	promReg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "archon",
		Name:      "grant_cache_size",
		Help:      "Cached session grants held by the gatekeeper.",
	}, func() float64 { return float64(gk.GrantCount()) }))
	if queue != nil {
		promReg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "archon",
			Name:      "pending_prompts",
			Help:      "Permission requests awaiting an operator decision.",
		}, func() float64 { return float64(queue.Len()) }))
	}
	trail := audit.NewTrail(cfg.Audit.Capacity)
	dispatcher := dispatch.New(registry, trail, metrics, logger.Named("dispatch"))

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		logger.Info("metrics listening", zap.String("addr", cfg.Metrics.Addr))
		if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server", zap.Error(err))
		}
	}()

	// HTTP API.
	api := server.New(cfg, logger, validator, issuer, dispatcher, registry, trail, queue, rdb)
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("archon runtime listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}

// blockedOrNil keeps the gatekeeper's Blocklist a true nil when Redis is
// off, instead of a typed-nil interface that would never be skipped.
func blockedOrNil(b *gatekeeper.BlockedSet) gatekeeper.Blocklist {
	if b == nil {
		return nil
	}
	return b
}
