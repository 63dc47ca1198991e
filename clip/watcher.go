package clip

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// DefaultPollInterval is the clipboard polling cadence.
const DefaultPollInterval = 300 * time.Millisecond

// Clipboard abstracts the OS clipboard. ReadImage returns the image payload
// as PNG bytes, or nil when the clipboard holds no image.
type Clipboard interface {
	ReadText() (string, error)
	WriteText(text string) error
	ReadImage() ([]byte, error)
	WriteImage(png []byte) error
}

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	Clipboard    Clipboard
	PollInterval time.Duration

	OnText  func(text string)
	OnImage func(png []byte)

	// ShouldSuppress is consulted before each poll; a true result skips the
	// poll entirely so remote applies are not re-detected as local changes.
	ShouldSuppress func() bool
}

// Watcher polls the clipboard for changes. Images take priority over text;
// a change of one kind clears the remembered state of the other.
type Watcher struct {
	clipboard      Clipboard
	pollInterval   time.Duration
	onText         func(string)
	onImage        func([]byte)
	shouldSuppress func() bool

	mu            sync.Mutex
	lastText      string
	lastImageHash string

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	started   bool
}

// NewWatcher creates a watcher; call Start to begin polling.
func NewWatcher(options WatcherOptions) *Watcher {
	interval := options.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		clipboard:      options.Clipboard,
		pollInterval:   interval,
		onText:         options.OnText,
		onImage:        options.OnImage,
		shouldSuppress: options.ShouldSuppress,
		closed:         make(chan struct{}),
	}
}

// Start begins polling. Calling Start twice is a no-op.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.pollLoop()
}

// Stop halts polling.
func (w *Watcher) Stop() {
	w.closeOnce.Do(func() {
		close(w.closed)
	})
	w.wg.Wait()
}

// SetLastText records text as already seen so a remote apply does not
// re-trigger detection. Clears the remembered image state.
func (w *Watcher) SetLastText(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastText = text
	w.lastImageHash = ""
}

// SetLastImageHash records an image hash as already seen. Clears the
// remembered text state.
func (w *Watcher) SetLastImageHash(hash string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastImageHash = hash
	w.lastText = ""
}

// HashImage returns the hex sha256 of an image payload.
func HashImage(png []byte) string {
	sum := sha256.Sum256(png)
	return hex.EncodeToString(sum[:])
}

func (w *Watcher) pollLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.closed:
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	if w.shouldSuppress != nil && w.shouldSuppress() {
		return
	}

	// Images take priority over text.
	if png, err := w.clipboard.ReadImage(); err == nil && len(png) > 0 {
		hash := HashImage(png)
		w.mu.Lock()
		changed := hash != w.lastImageHash
		if changed {
			w.lastImageHash = hash
			w.lastText = ""
		}
		w.mu.Unlock()
		if changed {
			if w.onImage != nil {
				w.onImage(png)
			}
			return
		}
	}

	text, err := w.clipboard.ReadText()
	if err != nil || text == "" {
		return
	}
	w.mu.Lock()
	changed := text != w.lastText
	if changed {
		w.lastText = text
		w.lastImageHash = ""
	}
	w.mu.Unlock()
	if changed && w.onText != nil {
		w.onText(text)
	}
}
