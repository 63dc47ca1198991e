package peerlink

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"clipsync/protocol"
)

const (
	lowID  = "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"
	highID = "bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb"
)

type fakeChannel struct {
	mu        sync.Mutex
	onOpen    func()
	onClose   func()
	onError   func(error)
	onMessage func([]byte)
	sent      [][]byte
	closed    bool
}

func (c *fakeChannel) OnOpen(f func())          { c.mu.Lock(); c.onOpen = f; c.mu.Unlock() }
func (c *fakeChannel) OnClose(f func())         { c.mu.Lock(); c.onClose = f; c.mu.Unlock() }
func (c *fakeChannel) OnError(f func(error))    { c.mu.Lock(); c.onError = f; c.mu.Unlock() }
func (c *fakeChannel) OnMessage(f func([]byte)) { c.mu.Lock(); c.onMessage = f; c.mu.Unlock() }

func (c *fakeChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) open() {
	c.mu.Lock()
	f := c.onOpen
	c.mu.Unlock()
	if f != nil {
		f()
	}
}

type fakePeer struct {
	mu            sync.Mutex
	channel       *fakeChannel
	channelLabels []string
	localDesc     *SessionDescription
	remoteDesc    *SessionDescription
	candidates    []ICECandidate
	onICE         func(ICECandidate)
	onChannel     func(DataChannel)
	offerErr      error
	closed        bool
}

func (p *fakePeer) CreateDataChannel(label string) (DataChannel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channelLabels = append(p.channelLabels, label)
	p.channel = &fakeChannel{}
	return p.channel, nil
}

func (p *fakePeer) CreateOffer() (SessionDescription, error) {
	if p.offerErr != nil {
		return SessionDescription{}, p.offerErr
	}
	return SessionDescription{Type: "offer", SDP: "v=0 offer"}, nil
}

func (p *fakePeer) CreateAnswer() (SessionDescription, error) {
	return SessionDescription{Type: "answer", SDP: "v=0 answer"}, nil
}

func (p *fakePeer) SetLocalDescription(desc SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.localDesc = &desc
	return nil
}

func (p *fakePeer) SetRemoteDescription(desc SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remoteDesc = &desc
	return nil
}

func (p *fakePeer) AddICECandidate(candidate ICECandidate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candidates = append(p.candidates, candidate)
	return nil
}

func (p *fakePeer) OnICECandidate(f func(ICECandidate)) { p.mu.Lock(); p.onICE = f; p.mu.Unlock() }
func (p *fakePeer) OnDataChannel(f func(DataChannel))   { p.mu.Lock(); p.onChannel = f; p.mu.Unlock() }

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type linkFixture struct {
	peer    *fakePeer
	link    *Link
	mu      sync.Mutex
	signals []protocol.SignalPayload
	states  []State
}

func newLinkFixture(t *testing.T, selfID, peerID string) *linkFixture {
	t.Helper()

	f := &linkFixture{peer: &fakePeer{}}
	f.link = NewLink(LinkOptions{
		SelfID: selfID,
		PeerID: peerID,
		Peer:   f.peer,
		SendSignal: func(payload protocol.SignalPayload) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.signals = append(f.signals, payload)
		},
		OnStateChange: func(state State) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.states = append(f.states, state)
		},
	})
	return f
}

func (f *linkFixture) sentSignals() []protocol.SignalPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.SignalPayload(nil), f.signals...)
}

func TestLinkInitiatorRole(t *testing.T) {
	if link := NewLink(LinkOptions{SelfID: lowID, PeerID: highID, Peer: &fakePeer{}}); !link.IsInitiator() {
		t.Fatalf("lower id should initiate")
	}
	if link := NewLink(LinkOptions{SelfID: highID, PeerID: lowID, Peer: &fakePeer{}}); link.IsInitiator() {
		t.Fatalf("higher id should respond")
	}
}

func TestLinkInitiatorStartSendsOffer(t *testing.T) {
	f := newLinkFixture(t, lowID, highID)

	f.link.Start()

	if f.link.State() != StateConnecting {
		t.Fatalf("state = %s, want CONNECTING", f.link.State())
	}
	if len(f.peer.channelLabels) != 1 || f.peer.channelLabels[0] != DataChannelLabel {
		t.Fatalf("channel labels = %v", f.peer.channelLabels)
	}
	if f.peer.localDesc == nil || f.peer.localDesc.Type != "offer" {
		t.Fatalf("local description not set to the offer")
	}

	signals := f.sentSignals()
	if len(signals) != 1 || signals[0].Kind != protocol.SignalKindOffer {
		t.Fatalf("sent signals = %+v", signals)
	}

	var offer SessionDescription
	if err := json.Unmarshal(signals[0].Data, &offer); err != nil || offer.SDP != "v=0 offer" {
		t.Fatalf("offer payload round-trip failed: %+v %v", offer, err)
	}
}

func TestLinkResponderAutoStartsOnOffer(t *testing.T) {
	f := newLinkFixture(t, highID, lowID)

	offer, _ := json.Marshal(SessionDescription{Type: "offer", SDP: "v=0 remote"})
	f.link.HandleSignal(protocol.SignalPayload{Kind: protocol.SignalKindOffer, Data: offer})

	if f.link.State() != StateConnecting {
		t.Fatalf("state = %s, want CONNECTING", f.link.State())
	}
	if f.peer.remoteDesc == nil || f.peer.remoteDesc.SDP != "v=0 remote" {
		t.Fatalf("remote offer not applied")
	}
	if f.peer.localDesc == nil || f.peer.localDesc.Type != "answer" {
		t.Fatalf("local answer not set")
	}

	signals := f.sentSignals()
	if len(signals) != 1 || signals[0].Kind != protocol.SignalKindAnswer {
		t.Fatalf("sent signals = %+v", signals)
	}
	if len(f.peer.channelLabels) != 0 {
		t.Fatalf("responder created a data channel")
	}
}

func TestLinkInitiatorHandlesAnswer(t *testing.T) {
	f := newLinkFixture(t, lowID, highID)
	f.link.Start()

	answer, _ := json.Marshal(SessionDescription{Type: "answer", SDP: "v=0 answer"})
	f.link.HandleSignal(protocol.SignalPayload{Kind: protocol.SignalKindAnswer, Data: answer})

	if f.peer.remoteDesc == nil || f.peer.remoteDesc.Type != "answer" {
		t.Fatalf("remote answer not applied")
	}
}

func TestLinkChannelOpenAndSend(t *testing.T) {
	f := newLinkFixture(t, lowID, highID)
	f.link.Start()

	if err := f.link.Send([]byte("early")); !errors.Is(err, ErrChannelNotOpen) {
		t.Fatalf("expected ErrChannelNotOpen before open, got %v", err)
	}

	f.peer.channel.open()

	if f.link.State() != StateConnected {
		t.Fatalf("state = %s, want CONNECTED", f.link.State())
	}
	if err := f.link.Send([]byte("payload")); err != nil {
		t.Fatalf("Send after open failed: %v", err)
	}
	if len(f.peer.channel.sent) != 1 || string(f.peer.channel.sent[0]) != "payload" {
		t.Fatalf("channel sent = %v", f.peer.channel.sent)
	}
}

func TestLinkICECandidateFlow(t *testing.T) {
	f := newLinkFixture(t, lowID, highID)
	f.link.Start()

	// Locally gathered candidates go out as ice signals.
	mid := "0"
	f.peer.onICE(ICECandidate{Candidate: "candidate:1", SDPMid: &mid})

	signals := f.sentSignals()
	last := signals[len(signals)-1]
	if last.Kind != protocol.SignalKindICE {
		t.Fatalf("last signal kind = %q, want ice", last.Kind)
	}

	// Inbound ice signals reach the peer connection.
	inbound, _ := json.Marshal(ICECandidate{Candidate: "candidate:2"})
	f.link.HandleSignal(protocol.SignalPayload{Kind: protocol.SignalKindICE, Data: inbound})
	if len(f.peer.candidates) != 1 || f.peer.candidates[0].Candidate != "candidate:2" {
		t.Fatalf("peer candidates = %+v", f.peer.candidates)
	}
}

func TestLinkNegotiationErrorFails(t *testing.T) {
	f := newLinkFixture(t, lowID, highID)
	f.peer.offerErr = errors.New("no codecs")

	f.link.Start()

	if f.link.State() != StateFailed {
		t.Fatalf("state = %s, want FAILED", f.link.State())
	}
}

func TestLinkResponderReceivesInboundChannel(t *testing.T) {
	f := newLinkFixture(t, highID, lowID)

	offer, _ := json.Marshal(SessionDescription{Type: "offer", SDP: "v=0"})
	f.link.HandleSignal(protocol.SignalPayload{Kind: protocol.SignalKindOffer, Data: offer})

	channel := &fakeChannel{}
	f.peer.onChannel(channel)
	channel.open()

	if f.link.State() != StateConnected {
		t.Fatalf("state = %s, want CONNECTED", f.link.State())
	}
	if err := f.link.Send([]byte("hi")); err != nil {
		t.Fatalf("Send over inbound channel failed: %v", err)
	}
}

func TestLinkCloseTearsDown(t *testing.T) {
	f := newLinkFixture(t, lowID, highID)
	f.link.Start()
	f.peer.channel.open()

	if err := f.link.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !f.peer.closed {
		t.Fatalf("peer connection not closed")
	}
	if f.link.State() != StateDisconnected {
		t.Fatalf("state = %s, want DISCONNECTED", f.link.State())
	}
	if err := f.link.Send([]byte("late")); !errors.Is(err, ErrChannelNotOpen) {
		t.Fatalf("expected ErrChannelNotOpen after close, got %v", err)
	}
}
