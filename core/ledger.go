package core

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"vledger/core/auth"
	"vledger/core/events"
	"vledger/core/state"
	"vledger/core/types"
	"vledger/crypto/fhe"
	"vledger/native/confidential"
	"vledger/storage"
	"vledger/storage/trie"
)

var headRootKey = []byte("vledger/head-root")

// Ledger owns the ledger state and serializes every operation behind a single
// lock. Registry, transfer, challenge and sequencing calls therefore never
// interleave. Created blocks are committed to the backing database and the
// node reopens at the last committed root.
type Ledger struct {
	mu      sync.Mutex
	db      storage.Database
	state   *state.Manager
	engine  *confidential.Engine
	backend fhe.Backend
	logger  *slog.Logger
}

// Option customizes a Ledger at construction.
type Option func(*Ledger)

// WithEmitter routes ledger events to emitter.
func WithEmitter(emitter events.Emitter) Option {
	return func(l *Ledger) { l.engine.SetEmitter(emitter) }
}

// WithNowFunc overrides the ledger clock (unix seconds).
func WithNowFunc(now func() int64) Option {
	return func(l *Ledger) { l.engine.SetNowFunc(now) }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLedger opens the ledger stored in db at its last committed root.
func NewLedger(db storage.Database, backend fhe.Backend, cfg confidential.Config, opts ...Option) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("ledger: database required")
	}
	if backend == nil {
		return nil, fmt.Errorf("ledger: ciphertext backend required")
	}
	root, err := db.Get(headRootKey)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("ledger: load head root: %w", err)
	}
	tr, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, fmt.Errorf("ledger: open state trie: %w", err)
	}
	mgr := state.NewManager(tr)
	l := &Ledger{
		db:      db,
		state:   mgr,
		engine:  confidential.NewEngine(mgr, backend, cfg),
		backend: backend,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Backend returns the ciphertext backend the ledger computes with.
func (l *Ledger) Backend() fhe.Backend { return l.backend }

// Domain returns the signing domain the ledger enforces.
func (l *Ledger) Domain() auth.Domain { return l.engine.Domain() }

// IsAdmin reports whether identity may run administrative operations.
func (l *Ledger) IsAdmin(identity common.Address) bool { return l.engine.IsAdmin(identity) }

// Root returns the current state root including uncommitted changes.
func (l *Ledger) Root() common.Hash {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Root()
}

func (l *Ledger) Register(caller common.Address, vaddr types.VAddr, balance fhe.Handle, proof []byte) (*types.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.Register(caller, vaddr, balance, proof)
}

func (l *Ledger) RegisterOwned(caller common.Address, salt [32]byte, balance fhe.Handle, proof []byte) (*types.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.RegisterOwned(caller, salt, balance, proof)
}

func (l *Ledger) Account(vaddr types.VAddr) (*types.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.Account(vaddr)
}

func (l *Ledger) Balance(vaddr types.VAddr) (fhe.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.Balance(vaddr)
}

func (l *Ledger) Nonce(vaddr types.VAddr) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.Nonce(vaddr)
}

func (l *Ledger) OwnerOf(vaddr types.VAddr) (common.Address, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.OwnerOf(vaddr)
}

func (l *Ledger) VAddrOf(identity common.Address) (types.VAddr, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.VAddrOf(identity)
}

func (l *Ledger) SetSecret(caller common.Address, vaddr types.VAddr, secret fhe.Handle, proof []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.SetSecret(caller, vaddr, secret, proof)
}

func (l *Ledger) EnableSecret(caller common.Address, vaddr types.VAddr) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.EnableSecret(caller, vaddr)
}

func (l *Ledger) DisableSecret(caller common.Address, vaddr types.VAddr) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.DisableSecret(caller, vaddr)
}

func (l *Ledger) CreditFaucet(caller common.Address, vaddr types.VAddr, amount fhe.Handle, proof []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.CreditFaucet(caller, vaddr, amount, proof)
}

func (l *Ledger) SetNonce(caller common.Address, vaddr types.VAddr, nonce uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.SetNonce(caller, vaddr, nonce)
}

func (l *Ledger) ApplyTransfer(caller common.Address, from, to types.VAddr, amount fhe.Handle, proof []byte, expectedNonce uint64) (common.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.ApplyTransfer(caller, from, to, amount, proof, expectedNonce)
}

func (l *Ledger) ApplySignedTransfer(intent types.TransferIntent, proof, signature []byte) (common.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.ApplySignedTransfer(intent, proof, signature)
}

func (l *Ledger) RequestPaySigned(req types.PaymentRequest, proof, signature []byte) (common.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.RequestPaySigned(req, proof, signature)
}

// ApplyTransferBatch holds the lock for the whole batch so no other call
// observes a partially applied batch.
func (l *Ledger) ApplyTransferBatch(entries []confidential.BatchEntry) []confidential.BatchResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.ApplyTransferBatch(entries)
}

func (l *Ledger) Receipt(txID common.Hash) (*types.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.Receipt(txID)
}

func (l *Ledger) RequestSecureTransfer(requester common.Address, intent types.TransferIntent, proof, signature []byte) (common.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.RequestSecureTransfer(requester, intent, proof, signature)
}

func (l *Ledger) CompleteSecureTransfer(id common.Hash, secret fhe.Handle, proof []byte) (common.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.CompleteSecureTransfer(id, secret, proof)
}

func (l *Ledger) CancelSecureTransfer(id common.Hash) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.CancelSecureTransfer(id)
}

func (l *Ledger) SecureTransferChallenge(id common.Hash) (*types.Challenge, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.SecureTransferChallenge(id)
}

func (l *Ledger) Sequence() (*types.Sequence, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.Sequence()
}

func (l *Ledger) Block(number uint64) (*types.Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.Block(number)
}

func (l *Ledger) UpdateStateCommitment(caller common.Address, commitment common.Hash) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.UpdateStateCommitment(caller, commitment)
}

// CreateBlock records a block and commits the state trie so the block and
// everything before it survive a restart.
func (l *Ledger) CreateBlock(caller common.Address, commitment common.Hash) (*types.Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	block, err := l.engine.CreateBlock(caller, commitment)
	if err != nil {
		return nil, err
	}
	root, err := l.commitLocked(block.Number)
	if err != nil {
		return nil, err
	}
	l.logger.Info("ledger block created",
		slog.Uint64("number", block.Number),
		slog.String("state_commitment", block.StateCommitment.Hex()),
		slog.String("root", root.Hex()))
	return block, nil
}

// Flush commits pending state without creating a block. Nodes call it on
// shutdown.
func (l *Ledger) Flush() (common.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	seq, err := l.engine.Sequence()
	if err != nil {
		return common.Hash{}, err
	}
	return l.commitLocked(seq.Counter)
}

func (l *Ledger) commitLocked(number uint64) (common.Hash, error) {
	if c, ok := l.backend.(fhe.Committer); ok {
		if err := c.Commit(); err != nil {
			return common.Hash{}, fmt.Errorf("ledger: persist ciphertexts: %w", err)
		}
	}
	root, err := l.state.Commit(number)
	if err != nil {
		return common.Hash{}, fmt.Errorf("ledger: commit state: %w", err)
	}
	if err := l.db.Put(headRootKey, root.Bytes()); err != nil {
		return common.Hash{}, fmt.Errorf("ledger: store head root: %w", err)
	}
	return root, nil
}
