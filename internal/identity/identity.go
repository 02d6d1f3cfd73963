// Package identity manages the long-lived Ed25519 keypair a host uses to
// authenticate itself to an SSH-tunneled replication peer.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

const identityRelPath = ".config/ori/identity.json"

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// Identity holds an Ed25519 keypair and its derived Fingerprint.
type Identity struct {
	Fingerprint string `json:"fingerprint"`
	PublicKey   string `json:"public_key"`  // base64, 32 bytes
	PrivateKey  string `json:"private_key"` // base64, 32-byte seed
}

func defaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("identity: determine home directory: %w", err)
	}
	return filepath.Join(home, identityRelPath), nil
}

// Load reads the peer identity from its default location, generating and
// persisting a fresh one if none exists yet.
func Load() (*Identity, error) {
	path, err := defaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads (or generates, if absent) the identity at path.
func LoadFrom(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		var id Identity
		if err := json.Unmarshal(data, &id); err != nil {
			return nil, fmt.Errorf("identity: parse %s: %w", path, err)
		}
		return &id, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("identity: read %s: %w", path, err)
	}
	return generate(path)
}

func generate(path string) (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	id := &Identity{
		Fingerprint: fingerprint(pub),
		PublicKey:   base64.StdEncoding.EncodeToString(pub),
		PrivateKey:  base64.StdEncoding.EncodeToString(priv.Seed()),
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("identity: create directory: %w", err)
	}
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("identity: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, fmt.Errorf("identity: write %s: %w", path, err)
	}
	return id, nil
}

// VerifyKey decodes the identity's public key.
func (id *Identity) VerifyKey() (ed25519.PublicKey, error) {
	pub, err := base64.StdEncoding.DecodeString(id.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("identity: decode public key: %w", err)
	}
	return ed25519.PublicKey(pub), nil
}

// SigningKey decodes the identity's private key from its stored seed.
func (id *Identity) SigningKey() (ed25519.PrivateKey, error) {
	seed, err := base64.StdEncoding.DecodeString(id.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("identity: decode private key: %w", err)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// Signer returns an ssh.Signer wrapping this identity's private key, for
// use as an ssh.PublicKeys auth method when dialing a replication peer.
func (id *Identity) Signer() (ssh.Signer, error) {
	priv, err := id.SigningKey()
	if err != nil {
		return nil, err
	}
	return ssh.NewSignerFromKey(priv)
}

// fingerprint derives a self-certifying string from a raw Ed25519 public
// key: a fixed prefix plus the key's base58btc encoding, so two peers can
// compare identities without decoding base64 or parsing an SSH key blob.
func fingerprint(pub ed25519.PublicKey) string {
	return "ori1" + base58Encode(pub)
}

func base58Encode(b []byte) string {
	num := new(big.Int).SetBytes(b)
	zero := big.NewInt(0)
	base := big.NewInt(58)
	mod := new(big.Int)

	var encoded []byte
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		encoded = append([]byte{base58Alphabet[mod.Int64()]}, encoded...)
	}
	for _, c := range b {
		if c == 0 {
			encoded = append([]byte{'1'}, encoded...)
		} else {
			break
		}
	}
	return string(encoded)
}
