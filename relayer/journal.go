package relayer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	entryKeyPrefix    = "entry:"
	observedKeyPrefix = "observed:"
)

// JournalEntry records a submission the relayer already forwarded.
type JournalEntry struct {
	TxID       common.Hash `json:"txId"`
	Route      string      `json:"route"`
	ObservedAt time.Time   `json:"observedAt"`
}

// Journal remembers forwarded submissions by signed message hash so a
// resubmitted request is answered without another ledger call.
type Journal struct {
	db *leveldb.DB
}

// OpenJournal opens (or creates) the journal at path. An empty path keeps the
// journal in memory.
func OpenJournal(path string) (*Journal, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		db, err := leveldb.Open(storage.NewMemStorage(), nil)
		if err != nil {
			return nil, fmt.Errorf("open memory journal: %w", err)
		}
		return &Journal{db: db}, nil
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve journal path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Lookup returns the entry recorded for hash, or nil.
func (j *Journal) Lookup(hash common.Hash) (*JournalEntry, error) {
	raw, err := j.db.Get(entryKey(hash), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load journal entry: %w", err)
	}
	var entry JournalEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode journal entry: %w", err)
	}
	return &entry, nil
}

// Record stores entry under hash together with its observation index.
func (j *Journal) Record(hash common.Hash, entry JournalEntry) error {
	if entry.ObservedAt.IsZero() {
		entry.ObservedAt = time.Now()
	}
	entry.ObservedAt = entry.ObservedAt.UTC()
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	batch := new(leveldb.Batch)
	batch.Put(entryKey(hash), raw)
	batch.Put(observedKey(entry.ObservedAt.UnixNano(), hash), nil)
	if err := j.db.Write(batch, nil); err != nil {
		return fmt.Errorf("record journal entry: %w", err)
	}
	return nil
}

// Prune deletes entries observed before cutoff and returns how many were
// removed.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	cutoffKey := observedKey(cutoff.UTC().UnixNano(), common.Hash{})
	iter := j.db.NewIterator(util.BytesPrefix([]byte(observedKeyPrefix)), nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	removed := 0
	for iter.Next() {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
		if bytes.Compare(iter.Key(), cutoffKey) >= 0 {
			break
		}
		hash, ok := parseObservedKey(iter.Key())
		if !ok {
			continue
		}
		batch.Delete(append([]byte(nil), iter.Key()...))
		batch.Delete(entryKey(hash))
		removed++
	}
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("iterate journal: %w", err)
	}
	if batch.Len() > 0 {
		if err := j.db.Write(batch, nil); err != nil {
			return 0, fmt.Errorf("prune journal: %w", err)
		}
	}
	return removed, nil
}

func entryKey(hash common.Hash) []byte {
	return append([]byte(entryKeyPrefix), hash.Bytes()...)
}

func observedKey(nanos int64, hash common.Hash) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", observedKeyPrefix, nanos, hash.Hex()))
}

func parseObservedKey(key []byte) (common.Hash, bool) {
	parts := strings.SplitN(string(key), ":", 3)
	if len(parts) != 3 || len(parts[2]) != 66 {
		return common.Hash{}, false
	}
	return common.HexToHash(parts[2]), true
}
