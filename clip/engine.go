package clip

import (
	"crypto/rand"
	"encoding/base64"
	"log"
	"time"

	"github.com/google/uuid"

	"clipsync/protocol"
)

// MimeTextPlain is the mime type of plain-text clipboard events.
const MimeTextPlain = "text/plain"

// MimeImagePNG is the mime type of image clipboard transfers.
const MimeImagePNG = "image/png"

// Transport delivers encoded protocol messages to every connected peer.
type Transport interface {
	Send(message any) error
}

// History records applied clipboard items. Implementations may be nil-safe
// no-ops in tests.
type History interface {
	UpsertText(text, source, originDeviceID string) error
	UpsertImage(png []byte, source, originDeviceID string) error
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	DeviceID  string
	Clipboard Clipboard
	Transport Transport
	History   History

	PollInterval time.Duration

	// OnHistoryUpdated fires after a history write, for UI refreshes.
	OnHistoryUpdated func()
}

// Engine syncs local clipboard changes to peers and applies remote events
// locally. Text travels as a single clip_event; images as a chunked
// clip_start / clip_chunk transfer.
type Engine struct {
	deviceID  string
	clipboard Clipboard
	transport Transport
	history   History
	onUpdated func()

	guard     *LoopGuard
	watcher   *Watcher
	assembler *Assembler
}

// NewEngine creates an engine; call Start to begin watching the clipboard.
func NewEngine(options EngineOptions) *Engine {
	engine := &Engine{
		deviceID:  options.DeviceID,
		clipboard: options.Clipboard,
		transport: options.Transport,
		history:   options.History,
		onUpdated: options.OnHistoryUpdated,
		guard:     NewLoopGuard(),
		assembler: NewAssembler(),
	}
	engine.watcher = NewWatcher(WatcherOptions{
		Clipboard:    options.Clipboard,
		PollInterval: options.PollInterval,
		OnText:       engine.handleLocalText,
		OnImage:      engine.handleLocalImage,
		ShouldSuppress: func() bool {
			return engine.guard.ShouldSuppressLocal(time.Now())
		},
	})
	return engine
}

// Start begins clipboard watching.
func (e *Engine) Start() {
	e.watcher.Start()
}

// Stop halts the watcher and the assembler sweep.
func (e *Engine) Stop() {
	e.watcher.Stop()
	e.assembler.Stop()
}

// HandleRemote dispatches one decoded peer message.
func (e *Engine) HandleRemote(message any) {
	switch msg := message.(type) {
	case protocol.ClipEventMessage:
		e.handleRemoteEvent(msg)
	case *protocol.ClipEventMessage:
		e.handleRemoteEvent(*msg)
	case protocol.ClipStartMessage:
		e.handleRemoteStart(msg)
	case *protocol.ClipStartMessage:
		e.handleRemoteStart(*msg)
	case protocol.ClipChunkMessage:
		e.handleRemoteChunk(msg)
	case *protocol.ClipChunkMessage:
		e.handleRemoteChunk(*msg)
	}
}

func (e *Engine) handleLocalText(text string) {
	event := protocol.ClipEventMessage{
		Type:           protocol.TypeClipEvent,
		EventID:        uuid.NewString(),
		OriginDeviceID: e.deviceID,
		TimestampMs:    time.Now().UnixMilli(),
		Mime:           MimeTextPlain,
		Nonce:          newNonce(),
		Ciphertext:     base64.StdEncoding.EncodeToString([]byte(text)),
	}

	e.guard.Remember(event.EventID)
	if err := e.transport.Send(event); err != nil {
		log.Printf("clip: send text event failed: %v", err)
	}

	e.recordText(text, "local", e.deviceID)
}

func (e *Engine) handleLocalImage(png []byte) {
	transfer, err := BuildTransfer(png, MimeImagePNG, e.deviceID)
	if err != nil {
		log.Printf("clip: drop local image: %v", err)
		return
	}

	e.guard.Remember(transfer.Start.EventID)
	if err := e.transport.Send(transfer.Start); err != nil {
		log.Printf("clip: send transfer start failed: %v", err)
		return
	}
	for _, chunk := range transfer.Chunks {
		if err := e.transport.Send(chunk); err != nil {
			log.Printf("clip: send chunk %d failed: %v", chunk.ChunkIndex, err)
			return
		}
	}

	e.recordImage(png, "local", e.deviceID)
}

func (e *Engine) handleRemoteEvent(event protocol.ClipEventMessage) {
	if event.OriginDeviceID == e.deviceID {
		return
	}
	if e.guard.HasSeen(event.EventID) {
		return
	}
	e.guard.Remember(event.EventID)

	if event.Mime != MimeTextPlain {
		return
	}

	raw, err := base64.StdEncoding.DecodeString(event.Ciphertext)
	if err != nil {
		log.Printf("clip: drop event %s: %v", event.EventID, err)
		return
	}
	text := string(raw)

	if err := e.clipboard.WriteText(text); err != nil {
		log.Printf("clip: apply remote text failed: %v", err)
		return
	}
	e.watcher.SetLastText(text)
	e.guard.MarkRemoteApplied(DefaultSuppressWindow, time.Now())

	e.recordText(text, "remote", event.OriginDeviceID)
}

func (e *Engine) handleRemoteStart(message protocol.ClipStartMessage) {
	if message.OriginDeviceID == e.deviceID {
		return
	}
	if e.guard.HasSeen(message.EventID) {
		return
	}
	e.guard.Remember(message.EventID)
	e.assembler.HandleStart(message)
}

func (e *Engine) handleRemoteChunk(message protocol.ClipChunkMessage) {
	if message.OriginDeviceID == e.deviceID {
		return
	}
	// A seen event id with no pending transfer means the whole transfer was
	// already applied; a seen id with a pending transfer is just a later
	// chunk of a transfer in flight.
	if e.guard.HasSeen(message.EventID) && !e.assembler.HasPending(message.EventID) {
		return
	}
	e.guard.Remember(message.EventID)

	assembled, err := e.assembler.HandleChunk(message)
	if err != nil {
		log.Printf("clip: transfer %s failed: %v", message.EventID, err)
		return
	}
	if assembled == nil {
		return
	}

	if err := e.clipboard.WriteImage(assembled.Data); err != nil {
		log.Printf("clip: apply remote image failed: %v", err)
		return
	}
	e.watcher.SetLastImageHash(HashImage(assembled.Data))
	e.guard.MarkRemoteApplied(DefaultSuppressWindow, time.Now())

	e.recordImage(assembled.Data, "remote", assembled.OriginDeviceID)
}

func (e *Engine) recordText(text, source, originDeviceID string) {
	if e.history == nil {
		return
	}
	if err := e.history.UpsertText(text, source, originDeviceID); err != nil {
		log.Printf("clip: record text history failed: %v", err)
		return
	}
	if e.onUpdated != nil {
		e.onUpdated()
	}
}

func (e *Engine) recordImage(png []byte, source, originDeviceID string) {
	if e.history == nil {
		return
	}
	if err := e.history.UpsertImage(png, source, originDeviceID); err != nil {
		log.Printf("clip: record image history failed: %v", err)
		return
	}
	if e.onUpdated != nil {
		e.onUpdated()
	}
}

func newNonce() string {
	nonce := make([]byte, 12)
	if _, err := rand.Read(nonce); err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(nonce)
}
