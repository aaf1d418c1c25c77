package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"vledger/crypto/fhe"
)

// ChallengeStatus enumerates the lifecycle of a secure transfer challenge.
type ChallengeStatus uint8

const (
	ChallengePending ChallengeStatus = iota + 1
	ChallengeCompleted
	ChallengeCancelled
	ChallengeExpired
)

func (s ChallengeStatus) String() string {
	switch s {
	case ChallengePending:
		return "pending"
	case ChallengeCompleted:
		return "completed"
	case ChallengeCancelled:
		return "cancelled"
	case ChallengeExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Valid reports whether the status is part of the defined lifecycle.
func (s ChallengeStatus) Valid() bool {
	return s >= ChallengePending && s <= ChallengeExpired
}

// Terminal reports whether no further transition is possible.
func (s ChallengeStatus) Terminal() bool {
	return s == ChallengeCompleted || s == ChallengeCancelled || s == ChallengeExpired
}

func (s ChallengeStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *ChallengeStatus) UnmarshalText(text []byte) error {
	for candidate := ChallengePending; candidate <= ChallengeExpired; candidate++ {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("types: unknown challenge status %q", string(text))
}

// Challenge is a pending second-factor authorization for a transfer.
type Challenge struct {
	ID            common.Hash     `json:"id"`
	From          VAddr           `json:"from"`
	To            VAddr           `json:"to"`
	Requester     common.Address  `json:"requester"`
	AmountHandle  fhe.Handle      `json:"amountHandle"`
	ExpectedNonce uint64          `json:"expectedNonce"`
	CreatedAt     uint64          `json:"createdAt"`
	ExpiresAt     uint64          `json:"expiresAt"`
	Status        ChallengeStatus `json:"status"`
	UpdatedAt     uint64          `json:"updatedAt"`
}

// ExpiredAt reports whether the challenge window has elapsed at now.
func (c *Challenge) ExpiredAt(now uint64) bool {
	return now > c.ExpiresAt
}

func (c *Challenge) Copy() *Challenge {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}
