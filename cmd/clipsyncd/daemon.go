package main

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/pion/webrtc/v4"

	"clipsync/clip"
	"clipsync/config"
	"clipsync/identity"
	"clipsync/peerlink"
	"clipsync/protocol"
	"clipsync/signaling"
)

type daemonConfig struct {
	Identity   *identity.Identity
	Config     *config.ClientConfig
	ICEServers []config.ICEServer
	Clipboard  clip.Clipboard
	History    clip.History
}

// daemon wires the signaling client, per-peer links, and the sync engine
// together. One link exists per paired device; the engine broadcasts every
// local clipboard change over all connected links.
type daemon struct {
	deviceID string
	client   *signaling.Client
	engine   *clip.Engine
	ice      []webrtc.ICEServer

	mu    sync.Mutex
	links map[string]*peerlink.Link
}

func newDaemon(cfg daemonConfig) *daemon {
	d := &daemon{
		deviceID: cfg.Identity.DeviceID,
		ice:      toWebRTCICEServers(cfg.ICEServers),
		links:    make(map[string]*peerlink.Link),
	}

	d.client = signaling.NewClient(signaling.ClientConfig{
		ServerURL:  cfg.Config.ServerURL,
		DeviceID:   cfg.Identity.DeviceID,
		DeviceName: cfg.Config.DeviceName,
		PublicKey:  cfg.Identity.PublicKey,
	}, signaling.ClientCallbacks{
		OnStatusChange: func(status signaling.Status) {
			log.Printf("daemon: signaling status=%s", status)
		},
		OnDevicesUpdate: func(msg protocol.DevicesUpdateMessage) {
			log.Printf("daemon: %d known devices", len(msg.Devices))
		},
		OnPairCreated: func(msg protocol.PairCreatedMessage) {
			fmt.Printf("Pairing Code:    %s (expires at %d)\n", msg.Code, msg.ExpiresAt)
		},
		OnPairPaired:  d.handlePairPaired,
		OnSignal:      d.handleSignal,
		OnServerError: func(msg protocol.ErrorMessage) {
			log.Printf("daemon: server error code=%s message=%q", msg.Code, msg.Message)
		},
	})

	d.engine = clip.NewEngine(clip.EngineOptions{
		DeviceID:     cfg.Identity.DeviceID,
		Clipboard:    cfg.Clipboard,
		Transport:    d,
		History:      cfg.History,
		PollInterval: cfg.Config.PollInterval(),
	})

	return d
}

// Start connects to the signaling server and begins clipboard watching.
func (d *daemon) Start() error {
	if err := d.client.Connect(); err != nil {
		return err
	}
	d.engine.Start()
	return nil
}

// Stop tears down the engine, every link, and the signaling connection.
func (d *daemon) Stop() {
	d.engine.Stop()

	d.mu.Lock()
	links := make([]*peerlink.Link, 0, len(d.links))
	for _, link := range d.links {
		links = append(links, link)
	}
	d.links = make(map[string]*peerlink.Link)
	d.mu.Unlock()

	for _, link := range links {
		_ = link.Close()
	}
	_ = d.client.Close()
}

// Send implements clip.Transport by broadcasting one encoded message over
// every open peer link.
func (d *daemon) Send(message any) error {
	payload, err := protocol.EncodeJSON(message)
	if err != nil {
		return err
	}

	d.mu.Lock()
	links := make([]*peerlink.Link, 0, len(d.links))
	for _, link := range d.links {
		links = append(links, link)
	}
	d.mu.Unlock()

	for _, link := range links {
		if err := link.Send(payload); err != nil {
			log.Printf("daemon: send to peer failed: %v", err)
		}
	}
	return nil
}

func (d *daemon) handlePairPaired(msg protocol.PairPairedMessage) {
	peerID := msg.A
	if peerID == d.deviceID {
		peerID = msg.B
	}
	if peerID == d.deviceID {
		return
	}

	link, err := d.linkFor(peerID)
	if err != nil {
		log.Printf("daemon: create link for %s failed: %v", peerID, err)
		return
	}
	link.Start()
}

func (d *daemon) handleSignal(msg protocol.SignalMessage) {
	link, err := d.linkFor(msg.From)
	if err != nil {
		log.Printf("daemon: create link for %s failed: %v", msg.From, err)
		return
	}
	link.HandleSignal(msg.Payload)
}

// linkFor returns the existing link for a peer or creates one.
func (d *daemon) linkFor(peerID string) (*peerlink.Link, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if link, ok := d.links[peerID]; ok {
		return link, nil
	}

	peer, err := peerlink.NewPionPeer(d.ice)
	if err != nil {
		return nil, err
	}

	link := peerlink.NewLink(peerlink.LinkOptions{
		SelfID: d.deviceID,
		PeerID: peerID,
		Peer:   peer,
		SendSignal: func(payload protocol.SignalPayload) {
			if err := d.client.SendSignal(peerID, payload); err != nil {
				log.Printf("daemon: relay signal to %s failed: %v", peerID, err)
			}
		},
		OnStateChange: func(state peerlink.State) {
			log.Printf("daemon: link peer=%s state=%s", peerID, state)
			if state == peerlink.StateFailed {
				d.dropLink(peerID)
			}
		},
		OnMessage: d.handlePeerMessage,
	})
	d.links[peerID] = link
	return link, nil
}

func (d *daemon) dropLink(peerID string) {
	d.mu.Lock()
	delete(d.links, peerID)
	d.mu.Unlock()
}

// handlePeerMessage decodes one data-channel payload and hands it to the
// sync engine.
func (d *daemon) handlePeerMessage(payload []byte) {
	msgType, err := protocol.DecodeMessageType(payload)
	if err != nil {
		log.Printf("daemon: drop unparseable peer message: %v", err)
		return
	}

	switch msgType {
	case protocol.TypeClipEvent:
		var msg protocol.ClipEventMessage
		if json.Unmarshal(payload, &msg) == nil {
			d.engine.HandleRemote(msg)
		}
	case protocol.TypeClipStart:
		var msg protocol.ClipStartMessage
		if json.Unmarshal(payload, &msg) == nil {
			d.engine.HandleRemote(msg)
		}
	case protocol.TypeClipChunk:
		var msg protocol.ClipChunkMessage
		if json.Unmarshal(payload, &msg) == nil {
			d.engine.HandleRemote(msg)
		}
	default:
		log.Printf("daemon: unknown peer message type %q", msgType)
	}
}

func toWebRTCICEServers(servers []config.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, server := range servers {
		out = append(out, webrtc.ICEServer{
			URLs:       []string(server.URLs),
			Username:   server.Username,
			Credential: server.Credential,
		})
	}
	return out
}
