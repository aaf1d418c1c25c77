package confidential

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"vledger/core/auth"
	"vledger/core/events"
	"vledger/core/types"
	"vledger/crypto/fhe"
	"vledger/storage/trie"
)

// DefaultChallengeWindow bounds how long a secure transfer challenge stays
// open.
const DefaultChallengeWindow = 5 * time.Minute

type engineState interface {
	Account(types.VAddr) (*types.Account, error)
	PutAccount(*types.Account) error
	IncrementAccountCount() (uint64, error)
	VAddrOf(common.Address) (types.VAddr, bool, error)
	BindOwner(common.Address, types.VAddr) (bool, error)
	Challenge(common.Hash) (*types.Challenge, error)
	PutChallenge(*types.Challenge) error
	NextChallengeSeq() (uint64, error)
	Sequence() (*types.Sequence, error)
	PutSequence(*types.Sequence) error
	AdvanceSequence(now uint64) (uint64, error)
	Block(uint64) (*types.Block, error)
	PutBlock(*types.Block) error
	Receipt(common.Hash) (*types.Receipt, error)
	PutReceipt(*types.Receipt) error
	Root() common.Hash
	Snapshot() *trie.Trie
	Revert(*trie.Trie)
}

// Config carries the static parameters of the engine.
type Config struct {
	Domain          auth.Domain
	ChallengeWindow time.Duration
	Admins          []common.Address
}

// Engine implements the account registry, the transfer processor, the secure
// challenge manager and the sequencing surface over one state backend.
//
// Every exported mutator is atomic: state is snapshotted before the call and
// restored on failure, and queued events are only emitted once the call
// succeeds. Engine is not safe for concurrent use; callers serialize access.
type Engine struct {
	state   engineState
	backend fhe.Backend
	domain  auth.Domain
	window  time.Duration
	admins  map[common.Address]struct{}
	emitter events.Emitter
	nowFn   func() int64
	pending []events.Event
}

// NewEngine creates an engine with a no-op emitter. Callers can override the
// emitter via SetEmitter.
func NewEngine(state engineState, backend fhe.Backend, cfg Config) *Engine {
	window := cfg.ChallengeWindow
	if window <= 0 {
		window = DefaultChallengeWindow
	}
	admins := make(map[common.Address]struct{}, len(cfg.Admins))
	for _, admin := range cfg.Admins {
		if admin == (common.Address{}) {
			continue
		}
		admins[admin] = struct{}{}
	}
	return &Engine{
		state:   state,
		backend: backend,
		domain:  cfg.Domain,
		window:  window,
		admins:  admins,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Domain returns the signing domain enforced by the engine.
func (e *Engine) Domain() auth.Domain { return e.domain }

// ChallengeWindow returns the lifetime of new challenges.
func (e *Engine) ChallengeWindow() time.Duration { return e.window }

// IsAdmin reports whether identity may run administrative operations.
func (e *Engine) IsAdmin(identity common.Address) bool {
	_, ok := e.admins[identity]
	return ok
}

func (e *Engine) now() uint64 {
	var ts int64
	if e == nil || e.nowFn == nil {
		ts = time.Now().Unix()
	} else {
		ts = e.nowFn()
	}
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) queue(evt events.Event) {
	e.pending = append(e.pending, evt)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.backend == nil {
		return errNilBackend
	}
	return nil
}

// atomically runs fn against a snapshot of the state. On error the snapshot
// is restored and queued events are dropped.
func (e *Engine) atomically(fn func() error) (err error) {
	if err := e.ready(); err != nil {
		return err
	}
	snapshot := e.state.Snapshot()
	queued := len(e.pending)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("confidential: panic during state transition: %v", r)
		}
		if err != nil {
			e.state.Revert(snapshot)
			e.pending = e.pending[:queued]
			return
		}
		if queued == 0 {
			flush := e.pending
			e.pending = nil
			for _, evt := range flush {
				e.emitter.Emit(evt)
			}
		}
	}()
	return fn()
}

func (e *Engine) requireAdmin(caller common.Address) error {
	if !e.IsAdmin(caller) {
		return ErrUnauthorized
	}
	return nil
}

func (e *Engine) validateProof(handle fhe.Handle, proof []byte) error {
	if err := e.backend.Validate(handle, proof); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	return nil
}

func (e *Engine) loadAccount(vaddr types.VAddr) (*types.Account, error) {
	account, err := e.state.Account(vaddr)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountMissing, vaddr.Hex())
	}
	return account, nil
}
