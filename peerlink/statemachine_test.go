package peerlink

import "testing"

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		current State
		event   Event
		want    State
	}{
		{StateDisconnected, EventStart, StateConnecting},
		{StateConnecting, EventDataChannelOpen, StateConnected},
		{StateConnecting, EventError, StateFailed},
		{StateConnected, EventDisconnect, StateDisconnected},
		{StateConnected, EventError, StateFailed},
		{StateFailed, EventDisconnect, StateDisconnected},
	}

	for _, tc := range cases {
		if got := Transition(tc.current, tc.event); got != tc.want {
			t.Fatalf("Transition(%s, %s) = %s, want %s", tc.current, tc.event, got, tc.want)
		}
	}
}

func TestTransitionIgnoresUnlistedEvents(t *testing.T) {
	cases := []struct {
		current State
		event   Event
	}{
		{StateDisconnected, EventDataChannelOpen},
		{StateDisconnected, EventError},
		{StateDisconnected, EventDisconnect},
		{StateConnecting, EventStart},
		{StateConnecting, EventDisconnect},
		{StateConnected, EventStart},
		{StateConnected, EventDataChannelOpen},
		{StateFailed, EventStart},
		{StateFailed, EventError},
		{StateFailed, EventDataChannelOpen},
	}

	for _, tc := range cases {
		if got := Transition(tc.current, tc.event); got != tc.current {
			t.Fatalf("Transition(%s, %s) = %s, want no-op", tc.current, tc.event, got)
		}
	}
}
