package main

import (
	"context"
	"crypto/ecdsa"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"vledger/cmd/internal/passphrase"
	"vledger/crypto"
	"vledger/observability/logging"
	"vledger/observability/otel"
	"vledger/relayer"
)

const otlpHeadersEnv = "OTEL_EXPORTER_OTLP_HEADERS"

func main() {
	configFile := flag.String("config", "", "Path to the relayer YAML configuration (defaults apply when empty)")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "relayerd: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg := relayer.DefaultConfig()
	if configFile != "" {
		loaded, err := relayer.LoadConfig(configFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	logger, closer := logging.SetupWithOptions(logging.Options{
		Service: "relayerd",
		Env:     cfg.Environment,
		Level:   cfg.LogLevel,
	})
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Traces || cfg.Telemetry.Metrics {
		if cfg.Telemetry.Environment == "" {
			cfg.Telemetry.Environment = cfg.Environment
		}
		if len(cfg.Telemetry.Headers) == 0 {
			cfg.Telemetry.Headers = otel.ParseHeaders(os.Getenv(otlpHeadersEnv))
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

	key, err := loadSignerKey(cfg.Node)
	if err != nil {
		return err
	}
	if key == nil {
		logger.Warn("no signer key configured; secure transfer requests will be rejected by the node")
	}

	journal, err := relayer.OpenJournal(cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer journal.Close()

	client := relayer.NewRPCNodeClient(cfg.Node.URL, cfg.Domain, key, cfg.Node.Timeout.Duration)
	server := relayer.NewServer(cfg, client, journal, logger)
	logger.Info("relayer configured",
		slog.String("node", cfg.Node.URL),
		slog.Uint64("minPriorityFee", cfg.MinPriorityFee),
		slog.Float64("requestsPerMinute", cfg.RateLimit.RequestsPerMinute))
	return server.Serve(ctx, cfg.ListenAddress, cfg.JournalRetention.Duration)
}

// loadSignerKey resolves the key used for identity-bound node calls. A nil key
// is returned when neither source is configured.
func loadSignerKey(node relayer.NodeConfig) (*ecdsa.PrivateKey, error) {
	if env := strings.TrimSpace(node.SignerKeyEnv); env != "" {
		if raw := strings.TrimSpace(os.Getenv(env)); raw != "" {
			key, err := crypto.PrivateKeyFromHex(raw)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", env, err)
			}
			return key.PrivateKey, nil
		}
	}
	if strings.TrimSpace(node.Keystore) == "" {
		return nil, nil
	}
	pass, err := passphrase.NewSource(node.KeystorePassEnv, "relayer keystore").Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(node.Keystore, pass)
	if err != nil {
		return nil, fmt.Errorf("load relayer keystore: %w", err)
	}
	return key.PrivateKey, nil
}
