package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"vledger/core/events"
	"vledger/core/types"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// ErrNotIndexed is returned when a lookup finds no row.
var ErrNotIndexed = errors.New("indexer: record not found")

// Config selects the database. DSNs starting with postgres:// or
// postgresql:// use Postgres; anything else is a SQLite path or URI. An empty
// DSN keeps the index in memory.
type Config struct {
	DSN    string       `toml:"DSN" yaml:"dsn"`
	Logger *slog.Logger `toml:"-" yaml:"-"`
}

// Store persists ledger events for querying. It implements events.Emitter;
// write failures are logged and never surface to the ledger.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

func dialector(dsn string) gorm.Dialector {
	trimmed := strings.TrimSpace(dsn)
	lower := strings.ToLower(trimmed)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return postgres.Open(trimmed)
	case trimmed == "":
		return sqlite.Open("file::memory:?cache=shared")
	default:
		return sqlite.Open(trimmed)
	}
}

// Open connects to the configured database and migrates the schema.
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	db, err := gorm.Open(dialector(cfg.DSN), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open database: %w", err)
	}
	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Store{db: db, logger: logger.With("component", "indexer")}, nil
}

// OpenDB wraps an existing gorm handle.
func OpenDB(db *gorm.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("indexer: nil database")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Store{db: db, logger: logger.With("component", "indexer")}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Emit implements events.Emitter.
func (s *Store) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	if err := s.Record(context.Background(), evt); err != nil {
		s.logger.Error("index event failed", "type", evt.EventType(), "error", err)
	}
}

// Record stores evt and updates the derived tables in one transaction.
func (s *Store) Record(ctx context.Context, evt events.Event) error {
	payload := evt.Event()
	attrs, err := json.Marshal(payload.Attributes)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	record := EventRecord{
		Type:       evt.EventType(),
		VAddr:      firstOf(payload.Attributes, "vaddr", "from"),
		TxID:       payload.Attributes["txId"],
		Attributes: string(attrs),
	}
	if strings.HasPrefix(record.Type, "ledger.challenge.") {
		record.ChallengeID = payload.Attributes["id"]
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		switch e := evt.(type) {
		case events.TransferApplied:
			return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(transferRecord(e.Receipt)).Error
		case events.BlockCreated:
			return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&BlockRecord{
				Number:          e.Block.Number,
				StateCommitment: e.Block.StateCommitment.Hex(),
				LedgerRoot:      e.Block.LedgerRoot.Hex(),
				Timestamp:       e.Block.Timestamp,
			}).Error
		case events.ChallengeRequested:
			c := e.Challenge
			return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&ChallengeRecord{
				ID:        c.ID.Hex(),
				FromVAddr: c.From.Hex(),
				ToVAddr:   c.To.Hex(),
				Requester: c.Requester.Hex(),
				Status:    types.ChallengePending.String(),
				ExpiresAt: c.ExpiresAt,
			}).Error
		case events.ChallengeCompleted:
			return updateChallenge(tx, e.ID.Hex(), types.ChallengeCompleted, e.TxID.Hex())
		case events.ChallengeCancelled:
			return updateChallenge(tx, e.ID.Hex(), types.ChallengeCancelled, "")
		case events.ChallengeExpired:
			return updateChallenge(tx, e.ID.Hex(), types.ChallengeExpired, "")
		}
		return nil
	})
}

func updateChallenge(tx *gorm.DB, id string, status types.ChallengeStatus, txID string) error {
	updates := map[string]interface{}{"status": status.String()}
	if txID != "" {
		updates["tx_id"] = txID
	}
	return tx.Model(&ChallengeRecord{}).Where("id = ?", id).Updates(updates).Error
}

func transferRecord(r types.Receipt) *TransferRecord {
	return &TransferRecord{
		TxID:      r.TxID.Hex(),
		FromVAddr: r.From.Hex(),
		ToVAddr:   r.To.Hex(),
		Nonce:     r.Nonce,
		Sequence:  r.Sequence,
		Kind:      string(r.Kind),
		Timestamp: r.Timestamp,
	}
}

func firstOf(attrs map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := attrs[k]; v != "" {
			return v
		}
	}
	return ""
}

// TransferFilter narrows Transfers. VAddr matches either side.
type TransferFilter struct {
	VAddr         string `json:"vaddr,omitempty"`
	Kind          string `json:"kind,omitempty"`
	AfterSequence uint64 `json:"afterSequence,omitempty"`
	Limit         int    `json:"limit,omitempty"`
}

// Transfers lists indexed transfers in sequence order.
func (s *Store) Transfers(ctx context.Context, filter TransferFilter) ([]TransferRecord, error) {
	q := s.db.WithContext(ctx).Model(&TransferRecord{}).Where("sequence > ?", filter.AfterSequence)
	if v := strings.ToLower(strings.TrimSpace(filter.VAddr)); v != "" {
		q = q.Where("from_vaddr = ? OR to_vaddr = ?", v, v)
	}
	if filter.Kind != "" {
		q = q.Where("kind = ?", filter.Kind)
	}
	var out []TransferRecord
	if err := q.Order("sequence asc").Limit(clampLimit(filter.Limit)).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("indexer: list transfers: %w", err)
	}
	return out, nil
}

// Transfer returns the transfer recorded under txID.
func (s *Store) Transfer(ctx context.Context, txID string) (*TransferRecord, error) {
	var out TransferRecord
	err := s.db.WithContext(ctx).Where("tx_id = ?", strings.ToLower(txID)).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotIndexed
	}
	if err != nil {
		return nil, fmt.Errorf("indexer: load transfer: %w", err)
	}
	return &out, nil
}

// EventFilter narrows Events.
type EventFilter struct {
	Type    string
	VAddr   string
	AfterID uint64
	Limit   int
}

func (s *Store) Events(ctx context.Context, filter EventFilter) ([]EventRecord, error) {
	q := s.db.WithContext(ctx).Model(&EventRecord{}).Where("id > ?", filter.AfterID)
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if v := strings.ToLower(strings.TrimSpace(filter.VAddr)); v != "" {
		q = q.Where("vaddr = ?", v)
	}
	var out []EventRecord
	if err := q.Order("id asc").Limit(clampLimit(filter.Limit)).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("indexer: list events: %w", err)
	}
	return out, nil
}

// Challenge returns the indexed lifecycle of a secure transfer request.
func (s *Store) Challenge(ctx context.Context, id string) (*ChallengeRecord, error) {
	var out ChallengeRecord
	err := s.db.WithContext(ctx).Where("id = ?", strings.ToLower(id)).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotIndexed
	}
	if err != nil {
		return nil, fmt.Errorf("indexer: load challenge: %w", err)
	}
	return &out, nil
}

// LatestBlock returns the highest indexed block.
func (s *Store) LatestBlock(ctx context.Context) (*BlockRecord, error) {
	var out BlockRecord
	err := s.db.WithContext(ctx).Order("number desc").Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotIndexed
	}
	if err != nil {
		return nil, fmt.Errorf("indexer: load block: %w", err)
	}
	return &out, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultLimit
	case limit > maxLimit:
		return maxLimit
	default:
		return limit
	}
}
