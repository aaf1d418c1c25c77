package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"vledger/cmd/internal/passphrase"
	"vledger/config"
	"vledger/core/types"
	"vledger/indexer"
	"vledger/rpc"
)

func runAdminToken(args []string, out io.Writer) error {
	fs := newFlagSet("admin-token")
	configPath := fs.String("config", "./config.toml", "Path to the node config file")
	passEnv := fs.String("pass-env", config.DefaultAdminPassEnv, "Environment variable containing the admin keystore passphrase")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	source := passphrase.NewSource(*passEnv, "admin keystore")
	cfg, err := config.Load(*configPath, config.WithKeystorePassphraseSource(source.Get))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		return errors.New("node config has no Auth.HMACSecret; admin tokens are disabled")
	}
	key, err := cfg.LoadAdminKey()
	if err != nil {
		return fmt.Errorf("load admin keystore: %w", err)
	}
	token, err := rpc.IssueAdminToken(cfg.Auth, key.Identity(), *ttl, time.Now())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func runExport(args []string, out io.Writer) error {
	fs := newFlagSet("export")
	dsn := fs.String("dsn", "", "Index database (sqlite path or postgres:// URL)")
	path := fs.String("out", "transfers.parquet", "Output parquet file")
	vaddr := fs.String("vaddr", "", "Only transfers touching this virtual address")
	kind := fs.String("kind", "", "Only transfers of this kind (direct, signed, payment, secure)")
	after := fs.Uint64("after", 0, "Only transfers with a later sequence")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*dsn) == "" {
		return errors.New("-dsn is required")
	}
	filter := indexer.TransferFilter{Kind: strings.TrimSpace(*kind), AfterSequence: *after}
	if strings.TrimSpace(*vaddr) != "" {
		parsed, err := types.ParseVAddr(*vaddr)
		if err != nil {
			return fmt.Errorf("vaddr: %w", err)
		}
		filter.VAddr = parsed.Hex()
	}
	store, err := indexer.Open(indexer.Config{DSN: *dsn})
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.ExportTransfers(context.Background(), *path, filter)
	if err != nil {
		return err
	}
	return writeJSON(out, map[string]interface{}{"file": *path, "rows": n})
}
