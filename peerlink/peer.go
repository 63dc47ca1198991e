// Package peerlink negotiates and drives the direct peer data channel. The
// state machine and Link are independent of any concrete transport; the
// pion-webrtc implementation lives behind the Peer capability interface.
package peerlink

// SessionDescription is an SDP offer or answer.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate mirrors the JSON shape browsers and pion exchange for
// trickle ICE.
type ICECandidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// DataChannel is the byte-message channel carried by a peer connection.
type DataChannel interface {
	OnOpen(func())
	OnClose(func())
	OnError(func(error))
	OnMessage(func(data []byte))
	Send(data []byte) error
	Close() error
}

// Peer is the capability surface the Link needs from a peer-connection
// implementation.
type Peer interface {
	CreateDataChannel(label string) (DataChannel, error)
	CreateOffer() (SessionDescription, error)
	CreateAnswer() (SessionDescription, error)
	SetLocalDescription(desc SessionDescription) error
	SetRemoteDescription(desc SessionDescription) error
	AddICECandidate(candidate ICECandidate) error
	OnICECandidate(func(candidate ICECandidate))
	OnDataChannel(func(channel DataChannel))
	Close() error
}
