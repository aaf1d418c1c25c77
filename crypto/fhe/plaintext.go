package fhe

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"lukechampine.com/blake3"

	"vledger/storage"
)

type valueKind uint8

const (
	kindUint valueKind = iota + 1
	kindBool
)

var valuePrefix = []byte("vledger/fhe/plaintext/")

type plainValue struct {
	kind valueKind
	v    uint256.Int
}

func (v plainValue) encode() []byte {
	word := v.v.Bytes32()
	return append([]byte{byte(v.kind)}, word[:]...)
}

func decodeValue(raw []byte) (plainValue, error) {
	if len(raw) != 33 || (valueKind(raw[0]) != kindUint && valueKind(raw[0]) != kindBool) {
		return plainValue{}, fmt.Errorf("fhe: corrupt stored value (%d bytes)", len(raw))
	}
	var val plainValue
	val.kind = valueKind(raw[0])
	val.v.SetBytes32(raw[1:])
	return val, nil
}

// Store persists plaintext values. storage.Database satisfies it.
type Store interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, error)
}

// PlaintextOption customizes a Plaintext backend.
type PlaintextOption func(*Plaintext)

// WithStore keeps minted values in store once Commit is called, so handles
// referenced by committed ledger state resolve after a restart.
func WithStore(store Store) PlaintextOption {
	return func(p *Plaintext) { p.store = store }
}

// Plaintext is a Backend that keeps cleartext values behind random handles.
// Input proofs are blake3 MACs keyed with a verifier key held by the backend,
// so only values minted through Encrypt validate. It is meant for tests and
// development nodes; anything that can call Decrypt sees every value.
//
// Handles are derived from a per-instance seed and never repeat across
// instances, even for the same key. Without a store, values live only as long
// as the instance.
type Plaintext struct {
	mu     sync.RWMutex
	key    [32]byte
	seed   [32]byte
	next   uint64
	values map[Handle]plainValue
	store  Store
}

// NewPlaintext returns a backend with a freshly generated verifier key.
func NewPlaintext(opts ...PlaintextOption) (*Plaintext, error) {
	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, fmt.Errorf("fhe: generate verifier key: %w", err)
	}
	return NewPlaintextWithKey(key, opts...), nil
}

// NewPlaintextWithKey returns a backend using the provided verifier key. Two
// backends sharing a key accept each other's proofs.
func NewPlaintextWithKey(key [32]byte, opts ...PlaintextOption) *Plaintext {
	p := &Plaintext{key: key, seed: instanceSeed(key), values: make(map[Handle]plainValue)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func instanceSeed(key [32]byte) [32]byte {
	var nonce [24]byte
	_, _ = rand.Read(nonce[:16])
	binary.BigEndian.PutUint64(nonce[16:], uint64(time.Now().UnixNano()))
	h := blake3.New(32, nil)
	h.Write(key[:])
	h.Write(nonce[:])
	var seed [32]byte
	copy(seed[:], h.Sum(nil))
	return seed
}

func valueKey(h Handle) []byte {
	return append(append([]byte(nil), valuePrefix...), h[:]...)
}

func (p *Plaintext) mint(val plainValue) Handle {
	var buf [40]byte
	copy(buf[:32], p.seed[:])
	binary.BigEndian.PutUint64(buf[32:], p.next)
	p.next++
	h := Handle(blake3.Sum256(buf[:]))
	p.values[h] = val
	return h
}

// lookup resolves h from memory, then from the store. Callers hold mu.
func (p *Plaintext) lookup(h Handle) (plainValue, error) {
	if val, ok := p.values[h]; ok {
		return val, nil
	}
	if p.store == nil {
		return plainValue{}, ErrUnknownHandle
	}
	raw, err := p.store.Get(valueKey(h))
	if errors.Is(err, storage.ErrNotFound) {
		return plainValue{}, ErrUnknownHandle
	}
	if err != nil {
		return plainValue{}, fmt.Errorf("fhe: load %s: %w", h.Hex(), err)
	}
	return decodeValue(raw)
}

// Commit writes values minted since the last commit to the store and drops
// them from memory. It is a no-op without a store.
func (p *Plaintext) Commit() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.store == nil {
		return nil
	}
	for h, val := range p.values {
		if err := p.store.Put(valueKey(h), val.encode()); err != nil {
			return fmt.Errorf("fhe: persist %s: %w", h.Hex(), err)
		}
		delete(p.values, h)
	}
	return nil
}

func (p *Plaintext) proof(h Handle) []byte {
	mac := blake3.New(32, p.key[:])
	mac.Write([]byte("vledger/fhe-input"))
	mac.Write(h[:])
	return mac.Sum(nil)
}

// Encrypt registers value and returns its handle with an input proof.
func (p *Plaintext) Encrypt(value uint64) (Handle, []byte) {
	return p.EncryptUint256(uint256.NewInt(value))
}

// EncryptUint256 is Encrypt for 256-bit values.
func (p *Plaintext) EncryptUint256(value *uint256.Int) (Handle, []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := p.mint(plainValue{kind: kindUint, v: *value})
	return h, p.proof(h)
}

// Decrypt returns the cleartext integer behind h.
func (p *Plaintext) Decrypt(h Handle) (*uint256.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	val, err := p.lookup(h)
	if err != nil {
		return nil, err
	}
	if val.kind != kindUint {
		return nil, ErrTypeMismatch
	}
	out := val.v
	return &out, nil
}

// DecryptBool returns the cleartext boolean behind h.
func (p *Plaintext) DecryptBool(h Handle) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	val, err := p.lookup(h)
	if err != nil {
		return false, err
	}
	if val.kind != kindBool {
		return false, ErrTypeMismatch
	}
	return !val.v.IsZero(), nil
}

// ProofFor returns a valid input proof for an existing handle. It lets a
// client re-submit a handle produced by an earlier operation.
func (p *Plaintext) ProofFor(h Handle) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if _, err := p.lookup(h); err != nil {
		return nil, err
	}
	return p.proof(h), nil
}

func (p *Plaintext) operands(kind valueKind, hs ...Handle) ([]plainValue, error) {
	out := make([]plainValue, len(hs))
	for i, h := range hs {
		val, err := p.lookup(h)
		if errors.Is(err, ErrUnknownHandle) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, h.Hex())
		}
		if err != nil {
			return nil, err
		}
		if val.kind != kind {
			return nil, ErrTypeMismatch
		}
		out[i] = val
	}
	return out, nil
}

func (p *Plaintext) Add(a, b Handle) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ops, err := p.operands(kindUint, a, b)
	if err != nil {
		return Handle{}, err
	}
	var sum uint256.Int
	sum.Add(&ops[0].v, &ops[1].v)
	return p.mint(plainValue{kind: kindUint, v: sum}), nil
}

// Sub wraps on underflow, like fixed-width encrypted integers do.
func (p *Plaintext) Sub(a, b Handle) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ops, err := p.operands(kindUint, a, b)
	if err != nil {
		return Handle{}, err
	}
	var diff uint256.Int
	diff.Sub(&ops[0].v, &ops[1].v)
	return p.mint(plainValue{kind: kindUint, v: diff}), nil
}

func (p *Plaintext) Eq(a, b Handle) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ops, err := p.operands(kindUint, a, b)
	if err != nil {
		return Handle{}, err
	}
	return p.mintBool(ops[0].v.Eq(&ops[1].v)), nil
}

// Le reports a <= b as an encrypted boolean.
func (p *Plaintext) Le(a, b Handle) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ops, err := p.operands(kindUint, a, b)
	if err != nil {
		return Handle{}, err
	}
	return p.mintBool(!ops[0].v.Gt(&ops[1].v)), nil
}

func (p *Plaintext) Select(cond, ifTrue, ifFalse Handle) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.operands(kindBool, cond)
	if err != nil {
		return Handle{}, err
	}
	ops, err := p.operands(kindUint, ifTrue, ifFalse)
	if err != nil {
		return Handle{}, err
	}
	chosen := ops[1].v
	if !c[0].v.IsZero() {
		chosen = ops[0].v
	}
	return p.mint(plainValue{kind: kindUint, v: chosen}), nil
}

func (p *Plaintext) Validate(h Handle, proof []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if _, err := p.lookup(h); err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(proof, p.proof(h)) != 1 {
		return ErrInvalidProof
	}
	return nil
}

func (p *Plaintext) mintBool(b bool) Handle {
	var v uint256.Int
	if b {
		v.SetOne()
	}
	return p.mint(plainValue{kind: kindBool, v: v})
}

var (
	_ Backend   = (*Plaintext)(nil)
	_ Comparer  = (*Plaintext)(nil)
	_ Committer = (*Plaintext)(nil)
)
