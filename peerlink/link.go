package peerlink

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"clipsync/protocol"
)

// DataChannelLabel names the single channel carrying clipboard traffic.
const DataChannelLabel = "clipboard-sync"

// ErrChannelNotOpen indicates a send before the data channel opened.
var ErrChannelNotOpen = errors.New("peerlink: data channel not open")

// LinkOptions configures a Link for one pairing.
type LinkOptions struct {
	SelfID string
	PeerID string
	Peer   Peer

	// SendSignal carries offer/answer/ice payloads to the peer over the
	// signaling channel.
	SendSignal func(protocol.SignalPayload)

	OnStateChange func(State)
	OnMessage     func(data []byte)
}

// Link drives negotiation for a single pairing. The device whose id sorts
// lower is the initiator: it opens the data channel and issues the offer.
// The responder answers and otherwise waits for the inbound channel. A Link
// never retries negotiation; a new pairing means a new Link.
type Link struct {
	selfID      string
	peerID      string
	isInitiator bool
	peer        Peer
	sendSignal  func(protocol.SignalPayload)

	onStateChange func(State)
	onMessage     func(data []byte)

	mu      sync.Mutex
	state   State
	started bool
	channel DataChannel
	open    bool
}

// NewLink creates a link and wires the peer's callbacks. Call Start (or let
// an inbound offer auto-start the responder) to begin negotiation.
func NewLink(options LinkOptions) *Link {
	link := &Link{
		selfID:        options.SelfID,
		peerID:        options.PeerID,
		isInitiator:   options.SelfID < options.PeerID,
		peer:          options.Peer,
		sendSignal:    options.SendSignal,
		onStateChange: options.OnStateChange,
		onMessage:     options.OnMessage,
		state:         StateDisconnected,
	}

	// Locally generated candidates go out as soon as they are produced,
	// independent of negotiation phase.
	link.peer.OnICECandidate(func(candidate ICECandidate) {
		link.emitSignal(protocol.SignalKindICE, candidate)
	})

	// Responder side receives the initiator's channel.
	link.peer.OnDataChannel(func(channel DataChannel) {
		link.attachChannel(channel)
	})

	return link
}

// IsInitiator reports whether this side opens the channel and offers.
func (l *Link) IsInitiator() bool {
	return l.isInitiator
}

// State returns the current negotiation state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start begins negotiation. The initiator creates the data channel and
// sends the offer; the responder only arms itself and waits.
func (l *Link) Start() {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	l.apply(EventStart)

	if !l.isInitiator {
		return
	}

	channel, err := l.peer.CreateDataChannel(DataChannelLabel)
	if err != nil {
		l.fail(fmt.Errorf("create data channel: %w", err))
		return
	}
	l.attachChannel(channel)

	offer, err := l.peer.CreateOffer()
	if err != nil {
		l.fail(fmt.Errorf("create offer: %w", err))
		return
	}
	if err := l.peer.SetLocalDescription(offer); err != nil {
		l.fail(fmt.Errorf("set local offer: %w", err))
		return
	}
	l.emitSignal(protocol.SignalKindOffer, offer)
}

// HandleSignal processes one inbound offer/answer/ice payload. A responder
// that has not started yet auto-starts on the first offer. Negotiation
// errors drive the link to FAILED; they are surfaced via the state-change
// callback, not returned.
func (l *Link) HandleSignal(payload protocol.SignalPayload) {
	switch payload.Kind {
	case protocol.SignalKindOffer:
		l.handleOffer(payload.Data)
	case protocol.SignalKindAnswer:
		l.handleAnswer(payload.Data)
	case protocol.SignalKindICE:
		l.handleICE(payload.Data)
	}
}

// Send writes data over the open data channel.
func (l *Link) Send(data []byte) error {
	l.mu.Lock()
	channel, open := l.channel, l.open
	l.mu.Unlock()

	if channel == nil || !open {
		return ErrChannelNotOpen
	}
	return channel.Send(data)
}

// Close tears down the channel and peer connection.
func (l *Link) Close() error {
	l.mu.Lock()
	channel := l.channel
	l.channel = nil
	l.open = false
	l.mu.Unlock()

	if channel != nil {
		_ = channel.Close()
	}
	err := l.peer.Close()
	l.apply(EventDisconnect)
	return err
}

func (l *Link) handleOffer(data json.RawMessage) {
	l.mu.Lock()
	started := l.started
	l.started = true
	l.mu.Unlock()
	if !started {
		l.apply(EventStart)
	}

	var offer SessionDescription
	if err := json.Unmarshal(data, &offer); err != nil {
		l.fail(fmt.Errorf("decode offer: %w", err))
		return
	}
	if err := l.peer.SetRemoteDescription(offer); err != nil {
		l.fail(fmt.Errorf("set remote offer: %w", err))
		return
	}
	if l.isInitiator {
		return
	}

	answer, err := l.peer.CreateAnswer()
	if err != nil {
		l.fail(fmt.Errorf("create answer: %w", err))
		return
	}
	if err := l.peer.SetLocalDescription(answer); err != nil {
		l.fail(fmt.Errorf("set local answer: %w", err))
		return
	}
	l.emitSignal(protocol.SignalKindAnswer, answer)
}

func (l *Link) handleAnswer(data json.RawMessage) {
	var answer SessionDescription
	if err := json.Unmarshal(data, &answer); err != nil {
		l.fail(fmt.Errorf("decode answer: %w", err))
		return
	}
	if err := l.peer.SetRemoteDescription(answer); err != nil {
		l.fail(fmt.Errorf("set remote answer: %w", err))
	}
}

func (l *Link) handleICE(data json.RawMessage) {
	var candidate ICECandidate
	if err := json.Unmarshal(data, &candidate); err != nil {
		l.fail(fmt.Errorf("decode ice candidate: %w", err))
		return
	}
	if err := l.peer.AddICECandidate(candidate); err != nil {
		l.fail(fmt.Errorf("add ice candidate: %w", err))
	}
}

func (l *Link) attachChannel(channel DataChannel) {
	l.mu.Lock()
	l.channel = channel
	l.mu.Unlock()

	channel.OnOpen(func() {
		l.mu.Lock()
		l.open = true
		l.mu.Unlock()
		l.apply(EventDataChannelOpen)
	})
	channel.OnClose(func() {
		l.mu.Lock()
		l.open = false
		l.mu.Unlock()
		l.apply(EventDisconnect)
	})
	channel.OnError(func(err error) {
		l.fail(fmt.Errorf("data channel: %w", err))
	})
	channel.OnMessage(func(data []byte) {
		if l.onMessage != nil {
			l.onMessage(data)
		}
	})
}

func (l *Link) emitSignal(kind string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		l.fail(fmt.Errorf("encode %s payload: %w", kind, err))
		return
	}
	if l.sendSignal != nil {
		l.sendSignal(protocol.SignalPayload{Kind: kind, Data: data})
	}
}

func (l *Link) fail(err error) {
	log.Printf("peerlink: negotiation with %s failed: %v", l.peerID, err)
	l.apply(EventError)
}

func (l *Link) apply(event Event) {
	l.mu.Lock()
	next := Transition(l.state, event)
	changed := next != l.state
	l.state = next
	l.mu.Unlock()

	if changed && l.onStateChange != nil {
		l.onStateChange(next)
	}
}
