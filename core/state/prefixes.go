package state

var (
	accountPrefix    = []byte("ledger/account/")
	ownerIndexPrefix = []byte("ledger/owner/")
	challengePrefix  = []byte("ledger/challenge/")
	receiptPrefix    = []byte("ledger/receipt/")
	blockPrefix      = []byte("ledger/block/")
	sequenceKeyBytes = []byte("ledger/sequence")
	challengeSeqKey  = []byte("ledger/challenge-seq")
	accountCountKey  = []byte("ledger/account-count")
)

func prefixed(prefix []byte, id []byte) []byte {
	key := make([]byte, len(prefix)+len(id))
	copy(key, prefix)
	copy(key[len(prefix):], id)
	return key
}
