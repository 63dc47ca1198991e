package signaling

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

const (
	// PairCodeTTL is how long a pairing code stays redeemable.
	PairCodeTTL = 2 * time.Minute
	// pairCodeSpace is the number of distinct six-digit codes.
	pairCodeSpace = 1_000_000
	// pairCodeRandomAttempts bounds random generation before the linear scan.
	pairCodeRandomAttempts = 5
)

var (
	// ErrPairCodeNotFound indicates the code does not exist or was already used.
	ErrPairCodeNotFound = errors.New("signaling: pair code not found")
	// ErrPairCodeExpired indicates the code exists but its TTL elapsed.
	ErrPairCodeExpired = errors.New("signaling: pair code expired")
	// ErrPairCodesExhausted indicates every six-digit code is concurrently live.
	ErrPairCodesExhausted = errors.New("signaling: pair code space exhausted")
)

type pairRecord struct {
	creatorDeviceID string
	expiresAt       int64
}

// PairingCodes issues and redeems one-time six-digit pairing codes. A code
// is consumed atomically on join, so no code can complete two pairings.
type PairingCodes struct {
	mu     sync.Mutex
	byCode map[string]pairRecord
	ttl    time.Duration
	now    func() time.Time
}

// NewPairingCodes creates an empty pairing table with the default TTL.
func NewPairingCodes() *PairingCodes {
	return &PairingCodes{
		byCode: make(map[string]pairRecord),
		ttl:    PairCodeTTL,
		now:    time.Now,
	}
}

// Create generates a fresh code for the creator device and returns the code
// with its expiry timestamp. Generation tries a few random codes, then falls
// back to a deterministic scan of the code space; it only fails once all
// million codes are concurrently live.
func (p *PairingCodes) Create(creatorDeviceID string) (string, int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	nowMs := p.now().UnixMilli()
	code, ok := p.pickCode(nowMs)
	if !ok {
		return "", 0, ErrPairCodesExhausted
	}

	expiresAt := nowMs + p.ttl.Milliseconds()
	p.byCode[code] = pairRecord{creatorDeviceID: creatorDeviceID, expiresAt: expiresAt}
	return code, expiresAt, nil
}

// Join redeems a code. On success the code is deleted before returning, so a
// second join with the same code fails with ErrPairCodeNotFound. An expired
// record is deleted as a side effect of the failed lookup.
func (p *PairingCodes) Join(code, joinerDeviceID string) (creatorDeviceID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	record, ok := p.byCode[code]
	if !ok {
		return "", ErrPairCodeNotFound
	}
	if p.now().UnixMilli() > record.expiresAt {
		delete(p.byCode, code)
		return "", ErrPairCodeExpired
	}

	delete(p.byCode, code)
	return record.creatorDeviceID, nil
}

func (p *PairingCodes) pickCode(nowMs int64) (string, bool) {
	for attempt := 0; attempt < pairCodeRandomAttempts; attempt++ {
		code := formatPairCode(rand.Intn(pairCodeSpace))
		if !p.isLive(code, nowMs) {
			return code, true
		}
	}

	for i := 0; i < pairCodeSpace; i++ {
		code := formatPairCode(i)
		if !p.isLive(code, nowMs) {
			return code, true
		}
	}

	return "", false
}

func (p *PairingCodes) isLive(code string, nowMs int64) bool {
	record, ok := p.byCode[code]
	return ok && record.expiresAt >= nowMs
}

func formatPairCode(n int) string {
	return fmt.Sprintf("%06d", n)
}
