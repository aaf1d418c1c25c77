package relayer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestJournalRecordAndLookup(t *testing.T) {
	journal, err := OpenJournal(filepath.Join(t.TempDir(), "journal"))
	require.NoError(t, err)
	defer journal.Close()

	hash := common.HexToHash("0x01")
	entry, err := journal.Lookup(hash)
	require.NoError(t, err)
	require.Nil(t, entry)

	observed := time.Unix(testNow, 0)
	require.NoError(t, journal.Record(hash, JournalEntry{TxID: common.HexToHash("0xaa"), Route: routeTransfer, ObservedAt: observed}))
	entry, err = journal.Lookup(hash)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, common.HexToHash("0xaa"), entry.TxID)
	require.Equal(t, routeTransfer, entry.Route)
	require.True(t, entry.ObservedAt.Equal(observed))
}

func TestJournalPruneRemovesOldEntries(t *testing.T) {
	journal, err := OpenJournal("")
	require.NoError(t, err)
	defer journal.Close()

	base := time.Unix(testNow, 0)
	old, fresh := common.HexToHash("0x01"), common.HexToHash("0x02")
	require.NoError(t, journal.Record(old, JournalEntry{Route: routePayment, ObservedAt: base.Add(-2 * time.Hour)}))
	require.NoError(t, journal.Record(fresh, JournalEntry{Route: routePayment, ObservedAt: base}))

	removed, err := journal.Prune(context.Background(), base.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	entry, err := journal.Lookup(old)
	require.NoError(t, err)
	require.Nil(t, entry)
	entry, err = journal.Lookup(fresh)
	require.NoError(t, err)
	require.NotNil(t, entry)
}

func TestJournalPruneHonoursContext(t *testing.T) {
	journal, err := OpenJournal("")
	require.NoError(t, err)
	defer journal.Close()
	require.NoError(t, journal.Record(common.HexToHash("0x03"), JournalEntry{ObservedAt: time.Unix(1, 0)}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := journal.Prune(ctx, time.Unix(testNow, 0)); err == nil {
		t.Fatalf("expected cancelled prune to fail")
	}
}
