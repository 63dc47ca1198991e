package protocol

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrInvalidDeviceID indicates a device id that is not a lowercase UUID v4.
	ErrInvalidDeviceID = errors.New("protocol: device id must be lowercase UUID v4")
	// ErrInvalidPairCode indicates a pairing code that is not exactly six digits.
	ErrInvalidPairCode = errors.New("protocol: pair code must be 6 digits")
	// ErrInvalidPlatform indicates an unknown platform value.
	ErrInvalidPlatform = errors.New("protocol: unknown platform")
	// ErrInvalidPublicKey indicates a public key that is not 32 bytes of base64.
	ErrInvalidPublicKey = errors.New("protocol: public key must be 32 bytes base64")
	// ErrInvalidBase64 indicates a field that is not valid standard base64.
	ErrInvalidBase64 = errors.New("protocol: invalid base64")
	// ErrInvalidSignalKind indicates a signal payload kind outside offer/answer/ice.
	ErrInvalidSignalKind = errors.New("protocol: unknown signal kind")
)

var (
	deviceIDPattern = regexp.MustCompile(
		`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	pairCodePattern = regexp.MustCompile(`^\d{6}$`)
)

// ValidDeviceID reports whether id is a lowercase UUID v4.
func ValidDeviceID(id string) bool {
	return deviceIDPattern.MatchString(id)
}

// ValidPairCode reports whether code is exactly six ASCII digits.
func ValidPairCode(code string) bool {
	return pairCodePattern.MatchString(code)
}

func validBase64(value string) bool {
	_, err := base64.StdEncoding.DecodeString(value)
	return err == nil
}

func validPlatform(platform string) bool {
	switch platform {
	case PlatformWindows, PlatformMac, PlatformLinux:
		return true
	default:
		return false
	}
}

// Validate checks hello fields against the wire contract.
func (m HelloMessage) Validate() error {
	if !ValidDeviceID(m.DeviceID) {
		return ErrInvalidDeviceID
	}
	if m.DeviceName == "" {
		return errors.New("protocol: device name is required")
	}
	if !validPlatform(m.Platform) {
		return ErrInvalidPlatform
	}
	raw, err := base64.StdEncoding.DecodeString(m.PublicKey)
	if err != nil || len(raw) != 32 {
		return ErrInvalidPublicKey
	}
	return nil
}

// Validate checks heartbeat fields.
func (m HeartbeatMessage) Validate() error {
	if !ValidDeviceID(m.DeviceID) {
		return ErrInvalidDeviceID
	}
	if m.TS < 0 {
		return errors.New("protocol: heartbeat ts must be non-negative")
	}
	return nil
}

// Validate checks pair_create fields.
func (m PairCreateMessage) Validate() error {
	if !ValidDeviceID(m.DeviceID) {
		return ErrInvalidDeviceID
	}
	return nil
}

// Validate checks pair_join fields.
func (m PairJoinMessage) Validate() error {
	if !ValidDeviceID(m.DeviceID) {
		return ErrInvalidDeviceID
	}
	if !ValidPairCode(m.Code) {
		return ErrInvalidPairCode
	}
	return nil
}

// Validate checks signal addressing and payload kind.
func (m SignalMessage) Validate() error {
	if !ValidDeviceID(m.To) {
		return fmt.Errorf("signal to: %w", ErrInvalidDeviceID)
	}
	if !ValidDeviceID(m.From) {
		return fmt.Errorf("signal from: %w", ErrInvalidDeviceID)
	}
	switch m.Payload.Kind {
	case SignalKindOffer, SignalKindAnswer, SignalKindICE:
		return nil
	default:
		return ErrInvalidSignalKind
	}
}

// Validate checks clip_event fields.
func (m ClipEventMessage) Validate() error {
	if m.EventID == "" {
		return errors.New("protocol: event id is required")
	}
	if !ValidDeviceID(m.OriginDeviceID) {
		return ErrInvalidDeviceID
	}
	if m.Mime == "" {
		return errors.New("protocol: mime is required")
	}
	if !validBase64(m.Nonce) || !validBase64(m.Ciphertext) {
		return ErrInvalidBase64
	}
	return nil
}

// Validate checks clip_start fields.
func (m ClipStartMessage) Validate() error {
	if m.EventID == "" {
		return errors.New("protocol: event id is required")
	}
	if !ValidDeviceID(m.OriginDeviceID) {
		return ErrInvalidDeviceID
	}
	if m.TotalBytes <= 0 || m.TotalChunks <= 0 {
		return errors.New("protocol: clip_start totals must be positive")
	}
	return nil
}

// Validate checks clip_chunk fields.
func (m ClipChunkMessage) Validate() error {
	if m.EventID == "" {
		return errors.New("protocol: event id is required")
	}
	if !ValidDeviceID(m.OriginDeviceID) {
		return ErrInvalidDeviceID
	}
	if m.ChunkIndex < 0 || m.TotalChunks <= 0 || m.ChunkIndex >= m.TotalChunks {
		return errors.New("protocol: chunk index out of range")
	}
	if !validBase64(m.Data) {
		return ErrInvalidBase64
	}
	return nil
}
