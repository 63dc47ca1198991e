package signaling

import (
	"sort"
	"sync"
	"time"

	"clipsync/protocol"
)

// Presence tracks known devices and their online status for the lifetime of
// the server process. Records are never deleted; disconnects flip status to
// offline.
type Presence struct {
	mu      sync.Mutex
	devices map[string]protocol.DeviceInfo
	now     func() time.Time
}

// NewPresence creates an empty presence directory.
func NewPresence() *Presence {
	return &Presence{
		devices: make(map[string]protocol.DeviceInfo),
		now:     time.Now,
	}
}

// Register upserts a device as online with last-seen set to now.
func (p *Presence) Register(device protocol.DeviceInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()

	device.Status = protocol.StatusOnline
	device.LastSeen = p.now().UnixMilli()
	p.devices[device.DeviceID] = device
}

// Touch updates last-seen for an already-known device. Heartbeats for
// unknown devices are ignored.
func (p *Presence) Touch(deviceID string, ts int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	device, ok := p.devices[deviceID]
	if !ok {
		return
	}
	device.LastSeen = ts
	p.devices[deviceID] = device
}

// MarkOffline flips a device to offline and bumps last-seen.
func (p *Presence) MarkOffline(deviceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	device, ok := p.devices[deviceID]
	if !ok {
		return
	}
	device.Status = protocol.StatusOffline
	device.LastSeen = p.now().UnixMilli()
	p.devices[deviceID] = device
}

// Snapshot returns all known devices ordered by device id.
func (p *Presence) Snapshot() []protocol.DeviceInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	devices := make([]protocol.DeviceInfo, 0, len(p.devices))
	for _, device := range p.devices {
		devices = append(devices, device)
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].DeviceID < devices[j].DeviceID
	})
	return devices
}
