package clip

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"log"
	"sync"
	"time"

	"clipsync/protocol"
)

const (
	// TransferTimeout bounds how long an incomplete transfer is kept.
	TransferTimeout = 30 * time.Second
	// SweepInterval is how often stale transfers are collected.
	SweepInterval = 10 * time.Second
)

// Assembled is a fully reassembled chunked payload.
type Assembled struct {
	EventID        string
	OriginDeviceID string
	TimestampMs    int64
	Mime           string
	Data           []byte
}

type pendingTransfer struct {
	start     protocol.ClipStartMessage
	chunks    map[int][]byte
	startedAt time.Time
}

// Assembler collects chunked transfers and reassembles them once every chunk
// has arrived. Incomplete transfers are dropped after TransferTimeout by a
// background sweep.
type Assembler struct {
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	pending map[string]*pendingTransfer

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewAssembler creates an assembler with default timeouts and starts its
// sweep goroutine. Call Stop when done.
func NewAssembler() *Assembler {
	return newAssembler(TransferTimeout, SweepInterval, time.Now)
}

func newAssembler(timeout, interval time.Duration, now func() time.Time) *Assembler {
	a := &Assembler{
		timeout:  timeout,
		interval: interval,
		now:      now,
		pending:  make(map[string]*pendingTransfer),
		closed:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.sweepLoop()
	return a
}

// HandleStart begins collecting chunks for a transfer. A duplicate start for
// the same event id resets the transfer.
func (a *Assembler) HandleStart(message protocol.ClipStartMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending[message.EventID] = &pendingTransfer{
		start:     message,
		chunks:    make(map[int][]byte),
		startedAt: a.now(),
	}
}

// HandleChunk stores one chunk. If the chunk completes its transfer the
// assembled payload is returned and the transfer forgotten; otherwise nil.
// A chunk arriving before its start message opens a placeholder transfer so
// out-of-order delivery still assembles.
func (a *Assembler) HandleChunk(message protocol.ClipChunkMessage) (*Assembled, error) {
	data, err := base64.StdEncoding.DecodeString(message.Data)
	if err != nil {
		return nil, fmt.Errorf("decode chunk %d of %s: %w", message.ChunkIndex, message.EventID, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	transfer, ok := a.pending[message.EventID]
	if !ok {
		transfer = &pendingTransfer{
			start: protocol.ClipStartMessage{
				Type:           protocol.TypeClipStart,
				EventID:        message.EventID,
				OriginDeviceID: message.OriginDeviceID,
				TimestampMs:    a.now().UnixMilli(),
				Mime:           message.Mime,
				TotalChunks:    message.TotalChunks,
			},
			chunks:    make(map[int][]byte),
			startedAt: a.now(),
		}
		a.pending[message.EventID] = transfer
	}

	transfer.chunks[message.ChunkIndex] = data

	if len(transfer.chunks) < message.TotalChunks {
		return nil, nil
	}

	delete(a.pending, message.EventID)
	return assemble(transfer, message.TotalChunks)
}

// HasPending reports whether a transfer is currently being collected.
func (a *Assembler) HasPending(eventID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.pending[eventID]
	return ok
}

// Stop halts the sweep goroutine.
func (a *Assembler) Stop() {
	a.closeOnce.Do(func() {
		close(a.closed)
	})
	a.wg.Wait()
}

func assemble(transfer *pendingTransfer, totalChunks int) (*Assembled, error) {
	var buf bytes.Buffer
	for index := 0; index < totalChunks; index++ {
		chunk, ok := transfer.chunks[index]
		if !ok {
			return nil, fmt.Errorf("missing chunk %d for event %s", index, transfer.start.EventID)
		}
		buf.Write(chunk)
	}

	return &Assembled{
		EventID:        transfer.start.EventID,
		OriginDeviceID: transfer.start.OriginDeviceID,
		TimestampMs:    transfer.start.TimestampMs,
		Mime:           transfer.start.Mime,
		Data:           buf.Bytes(),
	}, nil
}

func (a *Assembler) sweepLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.closed:
			return
		case <-ticker.C:
			a.sweep()
		}
	}
}

func (a *Assembler) sweep() {
	now := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()
	for eventID, transfer := range a.pending {
		if now.Sub(transfer.startedAt) > a.timeout {
			log.Printf("clip: timing out incomplete transfer %s", eventID)
			delete(a.pending, eventID)
		}
	}
}
