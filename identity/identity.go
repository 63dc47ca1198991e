// Package identity manages the persistent device identity: a stable device
// id and an X25519 keypair created on first run.
package identity

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/curve25519"
)

const (
	identityFileName     = "identity.json"
	privateKeyFileName   = "x25519_private.pem"
	x25519PrivatePEMType = "X25519 PRIVATE KEY"
)

// Identity is the persistent device identity record.
type Identity struct {
	DeviceID    string `json:"deviceId"`
	CreatedAtMs int64  `json:"createdAtMs"`
	PublicKey   string `json:"publicKey"`
}

// Ensure loads the device identity from dataDir, generating and persisting
// one on first run. The private key file is written with 0600 permissions.
func Ensure(dataDir string) (*Identity, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create identity directory: %w", err)
	}

	identityPath := filepath.Join(dataDir, identityFileName)
	privatePath := filepath.Join(dataDir, privateKeyFileName)

	identity, err := load(identityPath)
	if err == nil {
		// Older identity files may predate the keypair.
		if identity.PublicKey == "" {
			publicKey, genErr := generateKeyPair(privatePath)
			if genErr != nil {
				return nil, genErr
			}
			identity.PublicKey = publicKey
			if err := save(identityPath, identity); err != nil {
				return nil, err
			}
		}
		return identity, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	publicKey, err := generateKeyPair(privatePath)
	if err != nil {
		return nil, err
	}

	identity = &Identity{
		DeviceID:    strings.ToLower(uuid.NewString()),
		CreatedAtMs: time.Now().UnixMilli(),
		PublicKey:   publicKey,
	}
	if err := save(identityPath, identity); err != nil {
		return nil, err
	}

	return identity, nil
}

// LoadPrivateKey reads the X25519 private key from dataDir.
func LoadPrivateKey(dataDir string) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(dataDir, privateKeyFileName))
	if err != nil {
		return nil, fmt.Errorf("read X25519 private key: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("decode X25519 private PEM: no PEM block")
	}
	if block.Type != x25519PrivatePEMType {
		return nil, fmt.Errorf("decode X25519 private PEM: unexpected type %q", block.Type)
	}
	if len(block.Bytes) != curve25519.ScalarSize {
		return nil, fmt.Errorf("decode X25519 private PEM: invalid key size %d", len(block.Bytes))
	}

	return block.Bytes, nil
}

func load(path string) (*Identity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identity: %w", err)
	}

	var identity Identity
	if err := json.Unmarshal(raw, &identity); err != nil {
		return nil, fmt.Errorf("parse identity: %w", err)
	}

	return &identity, nil
}

func save(path string, identity *Identity) error {
	raw, err := json.MarshalIndent(identity, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}

	raw = append(raw, '\n')
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}

	return nil
}

// generateKeyPair creates an X25519 keypair, persists the private key as
// PEM, and returns the base64 public key.
func generateKeyPair(privatePath string) (string, error) {
	privateKey := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(privateKey); err != nil {
		return "", fmt.Errorf("generate X25519 private key: %w", err)
	}

	publicKey, err := curve25519.X25519(privateKey, curve25519.Basepoint)
	if err != nil {
		return "", fmt.Errorf("derive X25519 public key: %w", err)
	}

	block := &pem.Block{
		Type:  x25519PrivatePEMType,
		Bytes: privateKey,
	}
	if err := os.WriteFile(privatePath, pem.EncodeToMemory(block), 0o600); err != nil {
		return "", fmt.Errorf("write X25519 private key: %w", err)
	}

	return base64.StdEncoding.EncodeToString(publicKey), nil
}
