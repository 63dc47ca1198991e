package clip

import (
	"bytes"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"clipsync/protocol"
)

type fakeClipboard struct {
	mu    sync.Mutex
	text  string
	image []byte
}

func (c *fakeClipboard) ReadText() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text, nil
}

func (c *fakeClipboard) WriteText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
	c.image = nil
	return nil
}

func (c *fakeClipboard) ReadImage() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.image, nil
}

func (c *fakeClipboard) WriteImage(png []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.image = png
	c.text = ""
	return nil
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []any
}

func (t *fakeTransport) Send(message any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, message)
	return nil
}

func (t *fakeTransport) messages() []any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]any(nil), t.sent...)
}

type historyRecord struct {
	kind           string
	text           string
	png            []byte
	source         string
	originDeviceID string
}

type fakeHistory struct {
	mu      sync.Mutex
	records []historyRecord
}

func (h *fakeHistory) UpsertText(text, source, originDeviceID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, historyRecord{kind: "text", text: text, source: source, originDeviceID: originDeviceID})
	return nil
}

func (h *fakeHistory) UpsertImage(png []byte, source, originDeviceID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, historyRecord{kind: "image", png: png, source: source, originDeviceID: originDeviceID})
	return nil
}

func (h *fakeHistory) all() []historyRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]historyRecord(nil), h.records...)
}

const (
	engineSelfID = "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"
	enginePeerID = "bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb"
)

type engineFixture struct {
	engine    *Engine
	clipboard *fakeClipboard
	transport *fakeTransport
	history   *fakeHistory
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	f := &engineFixture{
		clipboard: &fakeClipboard{},
		transport: &fakeTransport{},
		history:   &fakeHistory{},
	}
	f.engine = NewEngine(EngineOptions{
		DeviceID:  engineSelfID,
		Clipboard: f.clipboard,
		Transport: f.transport,
		History:   f.history,
	})
	t.Cleanup(f.engine.Stop)
	return f
}

func TestEngineLocalTextBroadcast(t *testing.T) {
	f := newEngineFixture(t)

	f.engine.handleLocalText("hello peers")

	sent := f.transport.messages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(sent))
	}
	event, ok := sent[0].(protocol.ClipEventMessage)
	if !ok {
		t.Fatalf("sent message has type %T", sent[0])
	}
	if event.OriginDeviceID != engineSelfID {
		t.Fatalf("event origin = %q", event.OriginDeviceID)
	}
	if event.Mime != MimeTextPlain {
		t.Fatalf("event mime = %q", event.Mime)
	}
	raw, err := base64.StdEncoding.DecodeString(event.Ciphertext)
	if err != nil || string(raw) != "hello peers" {
		t.Fatalf("ciphertext round-trip failed: %q %v", raw, err)
	}

	records := f.history.all()
	if len(records) != 1 || records[0].source != "local" || records[0].text != "hello peers" {
		t.Fatalf("unexpected history records: %+v", records)
	}

	// The same event echoed back from a peer must not be re-applied.
	echo := event
	echo.OriginDeviceID = enginePeerID
	f.engine.HandleRemote(echo)
	if text, _ := f.clipboard.ReadText(); text != "" {
		t.Fatalf("echoed event was applied to the clipboard: %q", text)
	}
}

func TestEngineRemoteTextApplied(t *testing.T) {
	f := newEngineFixture(t)

	event := protocol.ClipEventMessage{
		Type:           protocol.TypeClipEvent,
		EventID:        uuid.NewString(),
		OriginDeviceID: enginePeerID,
		TimestampMs:    time.Now().UnixMilli(),
		Mime:           MimeTextPlain,
		Ciphertext:     base64.StdEncoding.EncodeToString([]byte("from peer")),
	}

	f.engine.HandleRemote(event)

	if text, _ := f.clipboard.ReadText(); text != "from peer" {
		t.Fatalf("clipboard text = %q, want %q", text, "from peer")
	}
	if !f.engine.guard.ShouldSuppressLocal(time.Now()) {
		t.Fatalf("expected local detection suppressed after remote apply")
	}

	records := f.history.all()
	if len(records) != 1 || records[0].source != "remote" || records[0].originDeviceID != enginePeerID {
		t.Fatalf("unexpected history records: %+v", records)
	}

	// Duplicate delivery applies exactly once.
	f.engine.HandleRemote(event)
	if got := len(f.history.all()); got != 1 {
		t.Fatalf("duplicate event recorded, history has %d entries", got)
	}
}

func TestEngineIgnoresOwnOrigin(t *testing.T) {
	f := newEngineFixture(t)

	f.engine.HandleRemote(protocol.ClipEventMessage{
		Type:           protocol.TypeClipEvent,
		EventID:        uuid.NewString(),
		OriginDeviceID: engineSelfID,
		Mime:           MimeTextPlain,
		Ciphertext:     base64.StdEncoding.EncodeToString([]byte("loop")),
	})

	if text, _ := f.clipboard.ReadText(); text != "" {
		t.Fatalf("own-origin event was applied: %q", text)
	}
	if len(f.history.all()) != 0 {
		t.Fatalf("own-origin event recorded in history")
	}
}

func TestEngineRemoteImageTransfer(t *testing.T) {
	f := newEngineFixture(t)

	payload := make([]byte, 2*ChunkSize+10)
	for i := range payload {
		payload[i] = byte(i % 250)
	}
	transfer, err := BuildTransfer(payload, MimeImagePNG, enginePeerID)
	if err != nil {
		t.Fatalf("BuildTransfer failed: %v", err)
	}

	f.engine.HandleRemote(transfer.Start)
	for _, chunk := range transfer.Chunks {
		f.engine.HandleRemote(chunk)
	}

	image, _ := f.clipboard.ReadImage()
	if !bytes.Equal(image, payload) {
		t.Fatalf("clipboard image differs from transferred payload")
	}

	records := f.history.all()
	if len(records) != 1 || records[0].kind != "image" || records[0].source != "remote" {
		t.Fatalf("unexpected history records: %+v", records)
	}
}

func TestEngineLocalImageBroadcast(t *testing.T) {
	f := newEngineFixture(t)

	payload := make([]byte, ChunkSize+5)
	f.engine.handleLocalImage(payload)

	sent := f.transport.messages()
	if len(sent) != 3 {
		t.Fatalf("expected start plus 2 chunks, got %d messages", len(sent))
	}
	start, ok := sent[0].(protocol.ClipStartMessage)
	if !ok {
		t.Fatalf("first message has type %T", sent[0])
	}
	if start.TotalChunks != 2 || start.TotalBytes != len(payload) {
		t.Fatalf("start totals = %d chunks %d bytes", start.TotalChunks, start.TotalBytes)
	}
	for i, raw := range sent[1:] {
		chunk, ok := raw.(protocol.ClipChunkMessage)
		if !ok {
			t.Fatalf("message %d has type %T", i+1, raw)
		}
		if chunk.ChunkIndex != i {
			t.Fatalf("chunk order broken: position %d carries index %d", i, chunk.ChunkIndex)
		}
	}
}

func TestEngineDropsOversizedLocalImage(t *testing.T) {
	f := newEngineFixture(t)

	f.engine.handleLocalImage(make([]byte, MaxPayloadSize+1))

	if len(f.transport.messages()) != 0 {
		t.Fatalf("oversized image was sent")
	}
}
