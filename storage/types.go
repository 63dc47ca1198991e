package storage

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates a requested row does not exist.
	ErrNotFound = errors.New("storage: record not found")
)

const (
	// SourceLocal marks items copied on this device.
	SourceLocal = "local"
	// SourceRemote marks items applied from a paired device.
	SourceRemote = "remote"
)

// HistoryItem is the SQLite representation of one clipboard history entry.
// Text items carry ContentText; image items carry ContentBlob.
type HistoryItem struct {
	ID             string
	Mime           string
	ContentHash    string
	Preview        string
	SizeBytes      int64
	FirstSeen      int64
	LastSeen       int64
	Source         string
	OriginDeviceID string
	ContentText    string
	ContentBlob    []byte
}

func validateSource(source string) error {
	switch source {
	case SourceLocal, SourceRemote:
		return nil
	default:
		return fmt.Errorf("invalid history source %q", source)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
