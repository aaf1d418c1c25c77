package indexer

import "time"

// EventRecord is one ledger event as emitted. Attributes holds the event's
// attribute map encoded as JSON; the common lookup keys are lifted into
// indexed columns.
type EventRecord struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	Type        string `gorm:"size:64;index"`
	VAddr       string `gorm:"column:vaddr;size:66;index"`
	TxID        string `gorm:"size:66;index"`
	ChallengeID string `gorm:"size:66;index"`
	Attributes  string `gorm:"type:text"`
	CreatedAt   time.Time
}

// TransferRecord mirrors a stored receipt. No amount information exists at
// this layer.
type TransferRecord struct {
	TxID      string    `gorm:"primaryKey;size:66" json:"txId"`
	FromVAddr string    `gorm:"column:from_vaddr;size:66;index" json:"from"`
	ToVAddr   string    `gorm:"column:to_vaddr;size:66;index" json:"to"`
	Nonce     uint64    `json:"nonce"`
	Sequence  uint64    `gorm:"index" json:"sequence"`
	Kind      string    `gorm:"size:16;index" json:"kind"`
	Timestamp uint64    `json:"timestamp"`
	CreatedAt time.Time `json:"-"`
}

type BlockRecord struct {
	Number          uint64    `gorm:"primaryKey;autoIncrement:false" json:"number"`
	StateCommitment string    `gorm:"size:66" json:"stateCommitment"`
	LedgerRoot      string    `gorm:"size:66" json:"ledgerRoot"`
	Timestamp       uint64    `json:"timestamp"`
	CreatedAt       time.Time `json:"-"`
}

// ChallengeRecord tracks the lifecycle of a secure transfer request.
type ChallengeRecord struct {
	ID        string    `gorm:"primaryKey;size:66" json:"id"`
	FromVAddr string    `gorm:"column:from_vaddr;size:66;index" json:"from"`
	ToVAddr   string    `gorm:"column:to_vaddr;size:66;index" json:"to"`
	Requester string    `gorm:"size:42" json:"requester"`
	Status    string    `gorm:"size:16;index" json:"status"`
	ExpiresAt uint64    `json:"expiresAt"`
	TxID      string    `gorm:"size:66" json:"txId,omitempty"`
	UpdatedAt time.Time `json:"-"`
}

func allModels() []interface{} {
	return []interface{}{&EventRecord{}, &TransferRecord{}, &BlockRecord{}, &ChallengeRecord{}}
}
