package identity

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"golang.org/x/crypto/curve25519"
)

func TestEnsureCreatesAndReloadsIdentity(t *testing.T) {
	dataDir := t.TempDir()

	first, err := Ensure(dataDir)
	if err != nil {
		t.Fatalf("first Ensure failed: %v", err)
	}
	if first.DeviceID == "" || first.PublicKey == "" || first.CreatedAtMs == 0 {
		t.Fatalf("incomplete identity: %+v", first)
	}

	second, err := Ensure(dataDir)
	if err != nil {
		t.Fatalf("second Ensure failed: %v", err)
	}
	if second.DeviceID != first.DeviceID {
		t.Fatalf("device id changed: %q then %q", first.DeviceID, second.DeviceID)
	}
	if second.PublicKey != first.PublicKey {
		t.Fatalf("public key changed: %q then %q", first.PublicKey, second.PublicKey)
	}
}

func TestEnsurePrivateKeyPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}

	dataDir := t.TempDir()
	if _, err := Ensure(dataDir); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	for _, name := range []string{identityFileName, privateKeyFileName} {
		info, err := os.Stat(filepath.Join(dataDir, name))
		if err != nil {
			t.Fatalf("stat %s: %v", name, err)
		}
		if mode := info.Mode().Perm(); mode != 0o600 {
			t.Fatalf("%s mode = %o, want 600", name, mode)
		}
	}
}

func TestEnsureBackfillsMissingPublicKey(t *testing.T) {
	dataDir := t.TempDir()

	legacy := []byte(`{"deviceId": "11111111-2222-4333-8444-555555555555", "createdAtMs": 1700000000000}` + "\n")
	if err := os.WriteFile(filepath.Join(dataDir, identityFileName), legacy, 0o600); err != nil {
		t.Fatalf("write legacy identity: %v", err)
	}

	identity, err := Ensure(dataDir)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if identity.DeviceID != "11111111-2222-4333-8444-555555555555" {
		t.Fatalf("device id rewritten: %q", identity.DeviceID)
	}
	if identity.PublicKey == "" {
		t.Fatalf("public key not backfilled")
	}

	// The backfilled key must be persisted, not just returned.
	raw, err := os.ReadFile(filepath.Join(dataDir, identityFileName))
	if err != nil {
		t.Fatalf("reread identity: %v", err)
	}
	var onDisk Identity
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatalf("parse identity: %v", err)
	}
	if onDisk.PublicKey != identity.PublicKey {
		t.Fatalf("persisted key %q does not match returned key %q", onDisk.PublicKey, identity.PublicKey)
	}
}

func TestLoadPrivateKeyMatchesPublicKey(t *testing.T) {
	dataDir := t.TempDir()

	identity, err := Ensure(dataDir)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	privateKey, err := LoadPrivateKey(dataDir)
	if err != nil {
		t.Fatalf("LoadPrivateKey failed: %v", err)
	}
	if len(privateKey) != curve25519.ScalarSize {
		t.Fatalf("private key size = %d", len(privateKey))
	}

	publicKey, err := curve25519.X25519(privateKey, curve25519.Basepoint)
	if err != nil {
		t.Fatalf("derive public key: %v", err)
	}
	if got := base64.StdEncoding.EncodeToString(publicKey); got != identity.PublicKey {
		t.Fatalf("derived public key %q does not match identity %q", got, identity.PublicKey)
	}
}

func TestLoadPrivateKeyMissingFile(t *testing.T) {
	if _, err := LoadPrivateKey(t.TempDir()); err == nil {
		t.Fatalf("expected error for missing key file")
	}
}
