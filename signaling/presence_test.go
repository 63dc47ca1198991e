package signaling

import (
	"testing"
	"time"

	"clipsync/protocol"
)

func TestPresenceRegisterAndSnapshot(t *testing.T) {
	presence := NewPresence()

	presence.Register(protocol.DeviceInfo{DeviceID: "b", DeviceName: "Second", Platform: protocol.PlatformMac})
	presence.Register(protocol.DeviceInfo{DeviceID: "a", DeviceName: "First", Platform: protocol.PlatformLinux})

	devices := presence.Snapshot()
	if len(devices) != 2 {
		t.Fatalf("snapshot has %d devices, want 2", len(devices))
	}
	if devices[0].DeviceID != "a" || devices[1].DeviceID != "b" {
		t.Fatalf("snapshot not ordered by device id: %v, %v", devices[0].DeviceID, devices[1].DeviceID)
	}
	for _, device := range devices {
		if device.Status != protocol.StatusOnline {
			t.Fatalf("device %s status = %q, want online", device.DeviceID, device.Status)
		}
		if device.LastSeen == 0 {
			t.Fatalf("device %s has zero last-seen", device.DeviceID)
		}
	}
}

func TestPresenceReRegisterUpdatesRecord(t *testing.T) {
	presence := NewPresence()

	presence.Register(protocol.DeviceInfo{DeviceID: "a", DeviceName: "Old Name"})
	presence.MarkOffline("a")
	presence.Register(protocol.DeviceInfo{DeviceID: "a", DeviceName: "New Name"})

	devices := presence.Snapshot()
	if len(devices) != 1 {
		t.Fatalf("snapshot has %d devices, want 1", len(devices))
	}
	if devices[0].DeviceName != "New Name" {
		t.Fatalf("device name = %q, want %q", devices[0].DeviceName, "New Name")
	}
	if devices[0].Status != protocol.StatusOnline {
		t.Fatalf("re-registered device status = %q, want online", devices[0].Status)
	}
}

func TestPresenceTouchIgnoresUnknownDevice(t *testing.T) {
	presence := NewPresence()

	presence.Touch("ghost", time.Now().UnixMilli())

	if devices := presence.Snapshot(); len(devices) != 0 {
		t.Fatalf("heartbeat for unknown device created a record: %+v", devices)
	}
}

func TestPresenceMarkOfflineKeepsRecord(t *testing.T) {
	presence := NewPresence()

	presence.Register(protocol.DeviceInfo{DeviceID: "a", DeviceName: "Device A"})
	before := presence.Snapshot()[0].LastSeen

	time.Sleep(2 * time.Millisecond)
	presence.MarkOffline("a")

	devices := presence.Snapshot()
	if len(devices) != 1 {
		t.Fatalf("offline device dropped from directory")
	}
	if devices[0].Status != protocol.StatusOffline {
		t.Fatalf("device status = %q, want offline", devices[0].Status)
	}
	if devices[0].LastSeen < before {
		t.Fatalf("last-seen went backwards on disconnect")
	}
}
