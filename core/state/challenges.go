package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"vledger/core/types"
)

// Challenge loads a secure transfer challenge. A nil result means the id was
// never created.
func (m *Manager) Challenge(id common.Hash) (*types.Challenge, error) {
	var challenge types.Challenge
	ok, err := m.KVGet(prefixed(challengePrefix, id.Bytes()), &challenge)
	if err != nil {
		return nil, fmt.Errorf("state: load challenge %s: %w", id.Hex(), err)
	}
	if !ok {
		return nil, nil
	}
	return &challenge, nil
}

// PutChallenge stores challenge under its id.
func (m *Manager) PutChallenge(challenge *types.Challenge) error {
	if challenge == nil {
		return fmt.Errorf("state: nil challenge")
	}
	if !challenge.Status.Valid() {
		return fmt.Errorf("state: invalid challenge status %d", challenge.Status)
	}
	return m.KVPut(prefixed(challengePrefix, challenge.ID.Bytes()), challenge)
}

// NextChallengeSeq returns a ledger-wide counter mixed into challenge ids so
// identical requests in the same second still get distinct ids.
func (m *Manager) NextChallengeSeq() (uint64, error) {
	return m.incrementCounter(challengeSeqKey)
}
