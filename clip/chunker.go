// Package clip implements the clipboard sync engine: change detection,
// chunked transfer of large payloads, and loop prevention for events that
// bounce between paired devices.
package clip

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clipsync/protocol"
)

const (
	// ChunkSize is the raw byte size of one transfer chunk before base64.
	ChunkSize = 12 * 1024
	// MaxPayloadSize caps a single clipboard payload.
	MaxPayloadSize = 10 * 1024 * 1024
)

// ErrPayloadTooLarge indicates a payload above MaxPayloadSize.
var ErrPayloadTooLarge = errors.New("clip: payload exceeds size limit")

// Split cuts payload into chunks of at most chunkSize bytes. The returned
// slices alias payload. An empty payload yields zero chunks.
func Split(payload []byte, chunkSize int) [][]byte {
	if chunkSize <= 0 {
		chunkSize = ChunkSize
	}
	var chunks [][]byte
	for offset := 0; offset < len(payload); offset += chunkSize {
		end := offset + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, payload[offset:end])
	}
	return chunks
}

// Transfer is a chunked payload ready to send: the announcement followed by
// every chunk in index order.
type Transfer struct {
	Start  protocol.ClipStartMessage
	Chunks []protocol.ClipChunkMessage
}

// BuildTransfer splits payload into a start message and its chunks. All
// messages share a fresh event id.
func BuildTransfer(payload []byte, mime, originDeviceID string) (*Transfer, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	eventID := uuid.NewString()
	raw := Split(payload, ChunkSize)

	transfer := &Transfer{
		Start: protocol.ClipStartMessage{
			Type:           protocol.TypeClipStart,
			EventID:        eventID,
			OriginDeviceID: originDeviceID,
			TimestampMs:    time.Now().UnixMilli(),
			Mime:           mime,
			TotalBytes:     len(payload),
			TotalChunks:    len(raw),
		},
	}
	for index, chunk := range raw {
		transfer.Chunks = append(transfer.Chunks, protocol.ClipChunkMessage{
			Type:           protocol.TypeClipChunk,
			EventID:        eventID,
			OriginDeviceID: originDeviceID,
			ChunkIndex:     index,
			TotalChunks:    len(raw),
			Mime:           mime,
			Data:           base64.StdEncoding.EncodeToString(chunk),
		})
	}
	return transfer, nil
}
