// main.go - Shielded pool daemon.
//
// Serves deposit, balance and withdrawal operations over JSON HTTP. Callers
// authenticate every request with their wallet's signature over the
// sign-in message; deposits come back unsigned for the wallet to sign and
// withdrawals are relayed as-is.
//
// Usage:
//   privacycashd --config privacycash.yml --listenAddr 127.0.0.1:9190
//
// Endpoints:
//   POST /deposit/prepare        POST /deposit/spl/prepare   POST /deposit/submit
//   POST /balance                POST /withdraw/prepare      POST /withdraw/submit
//   GET  /health                 GET  /metrics               GET  /ping

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"privacycash/internal/chain"
	"privacycash/internal/log"
	"privacycash/internal/privacycash"
	"privacycash/internal/prover"
	"privacycash/internal/relay"
	"privacycash/internal/shielded"
)

const version = "0.3.0"

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}
	log.Init(cfg.LogLevel, cfg.LogOutput)

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func run(cfg *Config) error {
	defer log.Sync()

	// Step 1: remote services
	rc, err := relay.NewClient(cfg.RelayerURL)
	if err != nil {
		return err
	}
	reader := chain.NewRPCReader(cfg.RPCURL)

	// Step 2: prover backend
	metrics := NewMetrics()
	backend, err := newProver(cfg.Prover)
	if err != nil {
		return err
	}

	// Step 3: orchestrator and HTTP surface
	audit, err := NewAuditLogger(cfg.AuditLogPath)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer audit.Close()

	health := NewHealthChecker(version)
	health.RegisterComponent("relayer", func(ctx context.Context) error {
		_, err := rc.QueryTreeState(ctx, shielded.SOL)
		return err
	})
	health.RegisterComponent("rpc", func(ctx context.Context) error {
		_, err := reader.LatestBlockhash(ctx)
		return err
	})

	limiter := NewKeyRateLimiter(cfg.RateLimit, cfg.RateBurst)
	api := &API{
		svc:     privacycash.New(cfg.ServiceConfig(), rc, reader, metrics.WrapProver(backend)),
		limiter: limiter,
		metrics: metrics,
		audit:   audit,
		health:  health,
		timeout: cfg.RequestTimeout,
	}
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go sweepLimiter(ctx, limiter)

	errc := make(chan error, 1)
	go func() {
		log.Infow("privacycashd listening",
			"addr", cfg.ListenAddr,
			"relayer", rc.Addr(),
			"prover", cfg.Prover.Backend,
			"version", version,
		)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func newProver(pc ProverConfig) (prover.Prover, error) {
	if pc.Backend == BackendGnark {
		log.Info("compiling transaction circuit for the gnark backend")
		return prover.NewGnarkProver(pc.PKPath, pc.VKPath)
	}
	return prover.NewCircomProver(prover.CircomArtifacts{WasmPath: pc.WasmPath, ZkeyPath: pc.ZkeyPath}), nil
}

func sweepLimiter(ctx context.Context, l *KeyRateLimiter) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			log.Debugw("rate limiter swept", "keys", l.Sweep())
		}
	}
}
