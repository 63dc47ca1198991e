package peerlink

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Compile-time interface checks.
var (
	_ Peer        = (*PionPeer)(nil)
	_ DataChannel = (*pionDataChannel)(nil)
)

// PionPeer implements Peer on a pion/webrtc PeerConnection.
type PionPeer struct {
	pc *webrtc.PeerConnection
}

// NewPionPeer creates a peer connection with the given ICE servers.
// Loopback candidates are enabled so same-machine pairings and test
// environments work without an external interface.
func NewPionPeer(iceServers []webrtc.ICEServer) (*PionPeer, error) {
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(true)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	return &PionPeer{pc: pc}, nil
}

// CreateDataChannel opens an ordered, reliable channel with the given label.
func (p *PionPeer) CreateDataChannel(label string) (DataChannel, error) {
	ordered := true
	dc, err := p.pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("create data channel %q: %w", label, err)
	}
	return &pionDataChannel{dc: dc}, nil
}

// CreateOffer produces the local SDP offer.
func (p *PionPeer) CreateOffer() (SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	return SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

// CreateAnswer produces the local SDP answer.
func (p *PionPeer) CreateAnswer() (SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	return SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

// SetLocalDescription applies a locally created description.
func (p *PionPeer) SetLocalDescription(desc SessionDescription) error {
	return p.pc.SetLocalDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(desc.Type),
		SDP:  desc.SDP,
	})
}

// SetRemoteDescription applies the peer's description.
func (p *PionPeer) SetRemoteDescription(desc SessionDescription) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(desc.Type),
		SDP:  desc.SDP,
	})
}

// AddICECandidate adds one remote trickle candidate.
func (p *PionPeer) AddICECandidate(candidate ICECandidate) error {
	return p.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMid:        candidate.SDPMid,
		SDPMLineIndex: candidate.SDPMLineIndex,
	})
}

// OnICECandidate registers the local trickle-candidate callback. The final
// nil candidate pion emits when gathering completes is dropped.
func (p *PionPeer) OnICECandidate(callback func(ICECandidate)) {
	p.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		callback(ICECandidate{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		})
	})
}

// OnDataChannel registers the inbound-channel callback for the responder.
func (p *PionPeer) OnDataChannel(callback func(DataChannel)) {
	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		callback(&pionDataChannel{dc: dc})
	})
}

// Close tears down the peer connection.
func (p *PionPeer) Close() error {
	return p.pc.Close()
}

type pionDataChannel struct {
	dc *webrtc.DataChannel
}

func (c *pionDataChannel) OnOpen(callback func()) {
	c.dc.OnOpen(callback)
}

func (c *pionDataChannel) OnClose(callback func()) {
	c.dc.OnClose(callback)
}

func (c *pionDataChannel) OnError(callback func(error)) {
	c.dc.OnError(callback)
}

func (c *pionDataChannel) OnMessage(callback func([]byte)) {
	c.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		callback(msg.Data)
	})
}

func (c *pionDataChannel) Send(data []byte) error {
	return c.dc.Send(data)
}

func (c *pionDataChannel) Close() error {
	return c.dc.Close()
}
