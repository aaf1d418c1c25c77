package fhe

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"vledger/storage"
)

func decrypt(t *testing.T, p *Plaintext, h Handle) uint64 {
	t.Helper()
	v, err := p.Decrypt(h)
	require.NoError(t, err)
	return v.Uint64()
}

func TestPlaintextArithmetic(t *testing.T) {
	p, err := NewPlaintext()
	require.NoError(t, err)

	a, _ := p.Encrypt(1000)
	b, _ := p.Encrypt(200)

	sum, err := p.Add(a, b)
	require.NoError(t, err)
	require.Equal(t, uint64(1200), decrypt(t, p, sum))

	diff, err := p.Sub(a, b)
	require.NoError(t, err)
	require.Equal(t, uint64(800), decrypt(t, p, diff))

	zero, err := Zero(p, a)
	require.NoError(t, err)
	require.Equal(t, uint64(0), decrypt(t, p, zero))
	require.NotEqual(t, a, zero)
}

func TestPlaintextSelectOnEquality(t *testing.T) {
	p, err := NewPlaintext()
	require.NoError(t, err)

	secret, _ := p.Encrypt(42)
	guess, _ := p.Encrypt(41)
	amount, _ := p.Encrypt(7)
	zero, err := Zero(p, amount)
	require.NoError(t, err)

	same, err := p.Eq(secret, secret)
	require.NoError(t, err)
	picked, err := p.Select(same, amount, zero)
	require.NoError(t, err)
	require.Equal(t, uint64(7), decrypt(t, p, picked))

	differ, err := p.Eq(secret, guess)
	require.NoError(t, err)
	ok, err := p.DecryptBool(differ)
	require.NoError(t, err)
	require.False(t, ok)
	picked, err = p.Select(differ, amount, zero)
	require.NoError(t, err)
	require.Equal(t, uint64(0), decrypt(t, p, picked))

	_, err = p.Select(amount, amount, zero)
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestPlaintextLe(t *testing.T) {
	p := NewPlaintextWithKey([32]byte{1})
	small, _ := p.Encrypt(5)
	big, _ := p.Encrypt(9)

	le, err := p.Le(small, big)
	require.NoError(t, err)
	got, err := p.DecryptBool(le)
	require.NoError(t, err)
	require.True(t, got)

	le, err = p.Le(big, small)
	require.NoError(t, err)
	got, err = p.DecryptBool(le)
	require.NoError(t, err)
	require.False(t, got)
}

func TestPlaintextValidate(t *testing.T) {
	p, err := NewPlaintext()
	require.NoError(t, err)
	other, err := NewPlaintext()
	require.NoError(t, err)

	h, proof := p.Encrypt(10)
	require.NoError(t, p.Validate(h, proof))

	tampered := append([]byte(nil), proof...)
	tampered[0] ^= 0xff
	require.ErrorIs(t, p.Validate(h, tampered), ErrInvalidProof)
	require.ErrorIs(t, p.Validate(Handle{0x01}, proof), ErrUnknownHandle)

	foreign, foreignProof := other.Encrypt(10)
	require.ErrorIs(t, p.Validate(foreign, foreignProof), ErrUnknownHandle)

	derived, err := p.Add(h, h)
	require.NoError(t, err)
	derivedProof, err := p.ProofFor(derived)
	require.NoError(t, err)
	require.NoError(t, p.Validate(derived, derivedProof))
}

func TestParseHandleNormalizesCase(t *testing.T) {
	p, err := NewPlaintext()
	require.NoError(t, err)
	h, _ := p.Encrypt(1)

	upper := "0X" + strings.ToUpper(h.Hex()[2:])
	parsed, err := ParseHandle(upper)
	require.NoError(t, err)
	require.Equal(t, h, parsed)

	_, err = ParseHandle("0x1234")
	require.Error(t, err)
}

func TestPlaintextHandlesDifferPerInstance(t *testing.T) {
	first, _ := NewPlaintextWithKey([32]byte{4}).Encrypt(1000)
	second, _ := NewPlaintextWithKey([32]byte{4}).Encrypt(1000)
	require.NotEqual(t, first, second)
}

func TestPlaintextStoreSurvivesRestart(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	key := [32]byte{5}

	before := NewPlaintextWithKey(key, WithStore(db))
	balance, proof := before.Encrypt(1000)
	flag, err := before.Eq(balance, balance)
	require.NoError(t, err)
	require.NoError(t, before.Commit())
	pending, _ := before.Encrypt(7)
	require.Equal(t, uint64(1000), decrypt(t, before, balance))

	after := NewPlaintextWithKey(key, WithStore(db))
	require.Equal(t, uint64(1000), decrypt(t, after, balance))
	ok, err := after.DecryptBool(flag)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, after.Validate(balance, proof))
	_, err = after.Decrypt(pending)
	require.ErrorIs(t, err, ErrUnknownHandle)

	fresh, _ := after.Encrypt(5)
	require.NotEqual(t, balance, fresh)
	require.Equal(t, uint64(1000), decrypt(t, after, balance))

	sum, err := after.Add(balance, fresh)
	require.NoError(t, err)
	require.Equal(t, uint64(1005), decrypt(t, after, sum))
}

type failingStore struct{ *storage.MemDB }

func (failingStore) Put([]byte, []byte) error { return errors.New("disk full") }

func TestPlaintextCommitReportsStoreErrors(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	p := NewPlaintextWithKey([32]byte{6}, WithStore(failingStore{db}))
	h, _ := p.Encrypt(3)
	if err := p.Commit(); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected store error, got %v", err)
	}
	require.Equal(t, uint64(3), decrypt(t, p, h))
}
