package signaling

import (
	"errors"
	"testing"
	"time"
)

func TestPairingCodeCreateAndJoin(t *testing.T) {
	codes := NewPairingCodes()

	code, expiresAt, err := codes.Create("creator")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("code %q is not six digits", code)
	}
	if expiresAt <= time.Now().UnixMilli() {
		t.Fatalf("expiry %d is not in the future", expiresAt)
	}

	creator, err := codes.Join(code, "joiner")
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if creator != "creator" {
		t.Fatalf("Join returned creator %q", creator)
	}
}

func TestPairingCodeIsSingleUse(t *testing.T) {
	codes := NewPairingCodes()

	code, _, err := codes.Create("creator")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := codes.Join(code, "first"); err != nil {
		t.Fatalf("first Join failed: %v", err)
	}
	if _, err := codes.Join(code, "second"); !errors.Is(err, ErrPairCodeNotFound) {
		t.Fatalf("second Join: expected ErrPairCodeNotFound, got %v", err)
	}
}

func TestPairingCodeExpires(t *testing.T) {
	codes := NewPairingCodes()

	current := time.Now()
	codes.now = func() time.Time { return current }

	code, _, err := codes.Create("creator")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	current = current.Add(PairCodeTTL + time.Second)
	if _, err := codes.Join(code, "joiner"); !errors.Is(err, ErrPairCodeExpired) {
		t.Fatalf("expected ErrPairCodeExpired, got %v", err)
	}

	// The expired record is deleted, so a retry reports not-found.
	if _, err := codes.Join(code, "joiner"); !errors.Is(err, ErrPairCodeNotFound) {
		t.Fatalf("expected ErrPairCodeNotFound after expiry cleanup, got %v", err)
	}
}

func TestPairingCodeUnknownCode(t *testing.T) {
	codes := NewPairingCodes()

	if _, err := codes.Join("123456", "joiner"); !errors.Is(err, ErrPairCodeNotFound) {
		t.Fatalf("expected ErrPairCodeNotFound, got %v", err)
	}
}

func TestPairingCodesAreUniqueWhileLive(t *testing.T) {
	codes := NewPairingCodes()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, _, err := codes.Create("creator")
		if err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
		if seen[code] {
			t.Fatalf("code %q issued twice while live", code)
		}
		seen[code] = true
	}
}
