package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"vledger/core/auth"
	"vledger/crypto"
)

var (
	MaxChallengeWindow = 24 * time.Hour
	MinHMACSecretBytes = 32
)

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("rpc: RPCAddress required")
	}
	if c.Domain.Version != auth.ProtocolVersion {
		return fmt.Errorf("domain: version %d unsupported, expected %d", c.Domain.Version, auth.ProtocolVersion)
	}
	if c.Domain.ChainID == 0 {
		return fmt.Errorf("domain: ChainID required")
	}
	if c.Domain.LedgerID == (common.Hash{}) {
		return fmt.Errorf("domain: LedgerID required")
	}
	if c.ChallengeWindow <= 0 || c.ChallengeWindow > MaxChallengeWindow {
		return fmt.Errorf("ChallengeWindow must be within (0, %s]", MaxChallengeWindow)
	}
	if _, err := c.AdminIdentities(); err != nil {
		return err
	}
	if secret := c.Auth.HMACSecret; secret != "" && len(secret) < MinHMACSecretBytes {
		return fmt.Errorf("auth: HMACSecret must be at least %d bytes", MinHMACSecretBytes)
	}
	if c.AdminKeystoreKDF != crypto.KDFStandard && c.AdminKeystoreKDF != crypto.KDFLight {
		return fmt.Errorf("AdminKeystoreKDF must be %q or %q", crypto.KDFStandard, crypto.KDFLight)
	}
	if c.PlaintextKey != "" {
		if !c.DevPlaintext {
			return fmt.Errorf("PlaintextKey requires DevPlaintext")
		}
		if _, err := c.PlaintextKeyBytes(); err != nil {
			return err
		}
	}
	return nil
}

// AdminIdentities parses the configured administrator identities.
func (c *Config) AdminIdentities() ([]common.Address, error) {
	out := make([]common.Address, 0, len(c.Admins))
	for _, raw := range c.Admins {
		id, err := crypto.ParseIdentity(raw)
		if err != nil {
			return nil, fmt.Errorf("admins: %q: %w", raw, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// PlaintextKeyBytes decodes PlaintextKey.
func (c *Config) PlaintextKeyBytes() ([32]byte, error) {
	var key [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(c.PlaintextKey), "0x"))
	if err != nil || len(raw) != len(key) {
		return key, fmt.Errorf("PlaintextKey must be 32 hex-encoded bytes")
	}
	copy(key[:], raw)
	return key, nil
}
