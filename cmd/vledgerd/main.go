package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vledger/cmd/internal/passphrase"
	"vledger/config"
	"vledger/core"
	"vledger/core/events"
	"vledger/crypto/fhe"
	"vledger/indexer"
	"vledger/native/confidential"
	"vledger/observability"
	"vledger/observability/logging"
	"vledger/observability/otel"
	"vledger/rpc"
	"vledger/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	passEnv := flag.String("pass-env", config.DefaultAdminPassEnv, "Environment variable holding the admin keystore passphrase")
	flag.Parse()

	if err := run(*configFile, *passEnv); err != nil {
		fmt.Fprintf(os.Stderr, "vledgerd: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile, passEnv string) error {
	passSource := passphrase.NewSource(passEnv, "admin keystore")
	cfg, err := config.Load(configFile, config.WithKeystorePassphraseSource(passSource.Get))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser := logging.SetupWithOptions(logging.Options{
		Service: "vledgerd",
		Env:     cfg.Environment,
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
	})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Traces || cfg.Telemetry.Metrics {
		if cfg.Telemetry.Environment == "" {
			cfg.Telemetry.Environment = cfg.Environment
		}
		shutdown, err := otel.Init(ctx, cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	admins, err := resolveAdmins(cfg)
	if err != nil {
		return err
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()

	backend, err := plaintextBackend(cfg, db)
	if err != nil {
		return err
	}
	if !cfg.DevPlaintext {
		logger.Warn("no homomorphic backend is bundled; serving the plaintext double with dev helpers disabled")
	}

	broadcaster := events.NewBroadcaster(256)
	emitters := events.MultiEmitter{broadcaster, observability.Ledger()}

	var index *indexer.Store
	if strings.TrimSpace(cfg.Indexer.DSN) != "" {
		index, err = indexer.Open(indexer.Config{DSN: cfg.Indexer.DSN, Logger: logger})
		if err != nil {
			return fmt.Errorf("open indexer: %w", err)
		}
		defer index.Close()
		emitters = append(emitters, index)
	}

	ledger, err := core.NewLedger(db, backend, confidential.Config{
		Domain:          cfg.Domain,
		ChallengeWindow: cfg.ChallengeWindow,
		Admins:          admins,
	}, core.WithEmitter(emitters), core.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	logger.Info("ledger opened",
		slog.String("root", ledger.Root().Hex()),
		slog.String("domain", cfg.Domain.Name),
		slog.Int("admins", len(admins)))

	serverCfg := rpc.ServerConfig{
		Auth:   cfg.Auth,
		Events: broadcaster,
		Index:  index,
		Logger: logger,
	}
	if cfg.DevPlaintext {
		serverCfg.Plaintext = backend
	}
	server := rpc.NewServer(ledger, serverCfg)

	if addr := strings.TrimSpace(cfg.MetricsAddress); addr != "" {
		metricsSrv := serveMetrics(addr, logger)
		defer closeServer(metricsSrv, logger)
	}

	serveErr := server.Serve(ctx, cfg.RPCAddress)

	root, err := ledger.Flush()
	if err != nil {
		logger.Error("failed to flush ledger state", slog.Any("error", err))
	} else {
		logger.Info("ledger state flushed", slog.String("root", root.Hex()))
	}
	return serveErr
}

// resolveAdmins merges configured identities with the operator key.
func resolveAdmins(cfg *config.Config) ([]common.Address, error) {
	admins, err := cfg.AdminIdentities()
	if err != nil {
		return nil, err
	}
	key, err := cfg.LoadAdminKey()
	if err != nil {
		return nil, fmt.Errorf("load admin keystore: %w", err)
	}
	operator := key.Identity()
	for _, id := range admins {
		if id == operator {
			return admins, nil
		}
	}
	return append(admins, operator), nil
}

// plaintextBackend keeps values in db so committed balances resolve after a
// restart. Input proofs only outlive the process when PlaintextKey is set.
func plaintextBackend(cfg *config.Config, db storage.Database) (*fhe.Plaintext, error) {
	if strings.TrimSpace(cfg.PlaintextKey) != "" {
		key, err := cfg.PlaintextKeyBytes()
		if err != nil {
			return nil, err
		}
		return fhe.NewPlaintextWithKey(key, fhe.WithStore(db)), nil
	}
	backend, err := fhe.NewPlaintext(fhe.WithStore(db))
	if err != nil {
		return nil, fmt.Errorf("init plaintext backend: %w", err)
	}
	return backend, nil
}

func serveMetrics(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("metrics server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	return srv
}

func closeServer(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("metrics server shutdown failed", slog.Any("error", err))
	}
}
