package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"vledger/cmd/internal/passphrase"
	"vledger/core/auth"
	"vledger/core/types"
	"vledger/crypto"
	"vledger/crypto/fhe"
)

const defaultKeyPassEnv = "VLEDGER_KEY_PASSPHRASE"

type keyInfo struct {
	Identity string `json:"identity"`
	Bech32   string `json:"bech32"`
	Keystore string `json:"keystore,omitempty"`
}

func runKeygen(args []string, out io.Writer) error {
	fs := newFlagSet("keygen")
	path := fs.String("out", "", "Output path for the keystore file")
	passEnv := fs.String("pass-env", defaultKeyPassEnv, "Environment variable containing the keystore passphrase")
	kdf := fs.String("kdf", crypto.KDFStandard, "Keystore KDF strength (standard or light)")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*path) == "" {
		return errors.New("-out is required")
	}
	if !*force {
		if _, err := os.Stat(*path); err == nil {
			return fmt.Errorf("keystore file %s already exists (use --force to overwrite)", *path)
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	pass, err := passphrase.NewConfirmingSource(*passEnv, "new keystore").Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystoreWithKDF(*path, key, pass, *kdf); err != nil {
		return fmt.Errorf("failed to write keystore: %w", err)
	}
	return writeJSON(out, keyInfo{
		Identity: key.Identity().Hex(),
		Bech32:   key.PubKey().Address().String(),
		Keystore: *path,
	})
}

func runVAddr(args []string, out io.Writer) error {
	fs := newFlagSet("vaddr")
	identity := fs.String("identity", "", "Owner identity (0x hex or vid1...)")
	salt := fs.String("salt", "", "Optional 32-byte hex salt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	owner, err := crypto.ParseIdentity(strings.TrimSpace(*identity))
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	saltBytes, err := parseSalt(*salt)
	if err != nil {
		return err
	}
	vaddr := types.DeriveVAddr(owner, saltBytes)
	return writeJSON(out, map[string]string{
		"identity": owner.Hex(),
		"vaddr":    vaddr.Hex(),
		"bech32":   vaddr.Bech32(),
	})
}

func runCommit(args []string, out io.Writer) error {
	fs := newFlagSet("commit")
	handle := fs.String("handle", "", "Amount ciphertext handle")
	if err := fs.Parse(args); err != nil {
		return err
	}
	h, err := fhe.ParseHandle(*handle)
	if err != nil {
		return fmt.Errorf("handle: %w", err)
	}
	_, err = fmt.Fprintln(out, auth.Commit(h).Hex())
	return err
}

func parseSalt(raw string) ([32]byte, error) {
	var salt [32]byte
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return salt, nil
	}
	decoded, err := hexutil.Decode(raw)
	if err != nil || len(decoded) != len(salt) {
		return salt, errors.New("salt must be 32 0x-prefixed hex bytes")
	}
	copy(salt[:], decoded)
	return salt, nil
}

// signerFlags selects the signing key: a keystore file or a hex key held in
// an environment variable.
type signerFlags struct {
	keystore *string
	passEnv  *string
	keyEnv   *string
}

func addSignerFlags(fs *flag.FlagSet) signerFlags {
	return signerFlags{
		keystore: fs.String("keystore", "", "Keystore file holding the signing key"),
		passEnv:  fs.String("pass-env", defaultKeyPassEnv, "Environment variable containing the keystore passphrase"),
		keyEnv:   fs.String("key-env", "", "Environment variable containing a hex private key"),
	}
}

func (f signerFlags) load() (*crypto.PrivateKey, error) {
	if env := strings.TrimSpace(*f.keyEnv); env != "" {
		raw := strings.TrimSpace(os.Getenv(env))
		if raw == "" {
			return nil, fmt.Errorf("environment variable %s is not set", env)
		}
		return crypto.PrivateKeyFromHex(raw)
	}
	if strings.TrimSpace(*f.keystore) == "" {
		return nil, errors.New("-keystore or -key-env is required")
	}
	pass, err := passphrase.NewSource(*f.passEnv, "signer keystore").Get()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(*f.keystore, pass)
}

// domainFlags overrides fields of the development domain.
type domainFlags struct {
	name     *string
	chainID  *uint64
	ledgerID *string
}

func addDomainFlags(fs *flag.FlagSet) domainFlags {
	def := auth.DefaultDomain()
	return domainFlags{
		name:     fs.String("domain", def.Name, "Domain name"),
		chainID:  fs.Uint64("chain-id", def.ChainID, "Domain chain id"),
		ledgerID: fs.String("ledger-id", def.LedgerID.Hex(), "Domain ledger id"),
	}
}

func (f domainFlags) domain() (auth.Domain, error) {
	ledgerID := strings.TrimSpace(*f.ledgerID)
	raw, err := hexutil.Decode(ledgerID)
	if err != nil || len(raw) != common.HashLength {
		return auth.Domain{}, fmt.Errorf("ledger-id must be 32 0x-prefixed hex bytes")
	}
	return auth.Domain{
		Name:     *f.name,
		Version:  auth.ProtocolVersion,
		ChainID:  *f.chainID,
		LedgerID: common.BytesToHash(raw),
	}, nil
}
