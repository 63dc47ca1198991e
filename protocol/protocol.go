// Package protocol defines the wire messages exchanged over the signaling
// channel and the peer data channel. Every message is a newline-free JSON
// object tagged by a "type" field.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	TypeHello         = "hello"
	TypeHeartbeat     = "heartbeat"
	TypeListDevices   = "list_devices"
	TypeDevicesUpdate = "devices_update"
	TypePairCreate    = "pair_create"
	TypePairCreated   = "pair_created"
	TypePairJoin      = "pair_join"
	TypePairPaired    = "pair_paired"
	TypeSignal        = "signal"
	TypeError         = "error"
	TypeClipEvent     = "clip_event"
	TypeClipStart     = "clip_start"
	TypeClipChunk     = "clip_chunk"
)

const (
	SignalKindOffer  = "offer"
	SignalKindAnswer = "answer"
	SignalKindICE    = "ice"
)

const (
	PlatformWindows = "windows"
	PlatformMac     = "mac"
	PlatformLinux   = "linux"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

var (
	// ErrInvalidMessageType indicates the message type is missing or unknown.
	ErrInvalidMessageType = errors.New("protocol: invalid message type")
)

// Envelope identifies the protocol message type.
type Envelope struct {
	Type string `json:"type"`
}

// HelloMessage registers a device with the signaling server.
type HelloMessage struct {
	Type       string `json:"type"`
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	Platform   string `json:"platform"`
	PublicKey  string `json:"publicKey"`
}

// HeartbeatMessage refreshes a device's last-seen timestamp.
type HeartbeatMessage struct {
	Type     string `json:"type"`
	DeviceID string `json:"deviceId"`
	TS       int64  `json:"ts"`
}

// ListDevicesMessage requests a devices_update reply for the sender only.
type ListDevicesMessage struct {
	Type string `json:"type"`
}

// DeviceInfo is the presence record shared in devices_update broadcasts.
type DeviceInfo struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	Platform   string `json:"platform"`
	Status     string `json:"status"`
	LastSeen   int64  `json:"lastSeen"`
	PublicKey  string `json:"publicKey"`
}

// DevicesUpdateMessage carries the full known-device list.
type DevicesUpdateMessage struct {
	Type    string       `json:"type"`
	Devices []DeviceInfo `json:"devices"`
}

// PairCreateMessage requests a new one-time pairing code.
type PairCreateMessage struct {
	Type     string `json:"type"`
	DeviceID string `json:"deviceId"`
}

// PairCreatedMessage returns the generated pairing code to its creator.
type PairCreatedMessage struct {
	Type      string `json:"type"`
	DeviceID  string `json:"deviceId"`
	Code      string `json:"code"`
	ExpiresAt int64  `json:"expiresAt"`
}

// PairJoinMessage redeems a pairing code.
type PairJoinMessage struct {
	Type     string `json:"type"`
	DeviceID string `json:"deviceId"`
	Code     string `json:"code"`
}

// PairPairedMessage notifies both devices that pairing completed.
type PairPairedMessage struct {
	Type string `json:"type"`
	A    string `json:"a"`
	B    string `json:"b"`
}

// SignalPayload is an opaque negotiation payload of a known kind.
type SignalPayload struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// SignalMessage relays a negotiation payload between two devices.
type SignalMessage struct {
	Type    string        `json:"type"`
	To      string        `json:"to"`
	From    string        `json:"from"`
	Payload SignalPayload `json:"payload"`
}

// ErrorMessage reports a protocol error back to the sender.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ClipEventMessage carries one complete text clipboard change.
type ClipEventMessage struct {
	Type           string `json:"type"`
	EventID        string `json:"eventId"`
	OriginDeviceID string `json:"originDeviceId"`
	TimestampMs    int64  `json:"timestampMs"`
	Mime           string `json:"mime"`
	Nonce          string `json:"nonce"`
	Ciphertext     string `json:"ciphertext"`
}

// ClipStartMessage announces a chunked transfer before its chunks.
type ClipStartMessage struct {
	Type           string `json:"type"`
	EventID        string `json:"eventId"`
	OriginDeviceID string `json:"originDeviceId"`
	TimestampMs    int64  `json:"timestampMs"`
	Mime           string `json:"mime"`
	TotalBytes     int    `json:"totalBytes"`
	TotalChunks    int    `json:"totalChunks"`
}

// ClipChunkMessage carries one base64 chunk of a transfer.
type ClipChunkMessage struct {
	Type           string `json:"type"`
	EventID        string `json:"eventId"`
	OriginDeviceID string `json:"originDeviceId"`
	ChunkIndex     int    `json:"chunkIndex"`
	TotalChunks    int    `json:"totalChunks"`
	Mime           string `json:"mime"`
	Data           string `json:"data"`
}

// EncodeJSON marshals a protocol message to JSON.
func EncodeJSON(message any) ([]byte, error) {
	payload, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("marshal protocol message: %w", err)
	}
	return payload, nil
}

// DecodeMessageType extracts the "type" field from a payload.
func DecodeMessageType(payload []byte) (string, error) {
	var envelope Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.Type == "" {
		return "", ErrInvalidMessageType
	}
	return envelope.Type, nil
}
