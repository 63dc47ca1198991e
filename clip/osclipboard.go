package clip

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
)

// ErrImageUnsupported indicates the platform clipboard tools cannot carry
// image payloads.
var ErrImageUnsupported = errors.New("clip: image clipboard not supported on this platform")

// OSClipboard reads and writes the system clipboard through the platform's
// command-line tools: pbcopy/pbpaste on macOS, xclip or wl-clipboard on
// Linux, and powershell on Windows.
type OSClipboard struct{}

// NewOSClipboard returns a command-backed clipboard.
func NewOSClipboard() *OSClipboard {
	return &OSClipboard{}
}

// ReadText returns the current clipboard text. An empty or non-text
// clipboard yields an empty string, not an error.
func (c *OSClipboard) ReadText() (string, error) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbpaste")
	case "windows":
		cmd = exec.Command("powershell", "-NoProfile", "-Command", "Get-Clipboard -Raw")
	default:
		if _, err := exec.LookPath("wl-paste"); err == nil {
			cmd = exec.Command("wl-paste", "--no-newline", "--type", "text")
		} else {
			cmd = exec.Command("xclip", "-selection", "clipboard", "-o")
		}
	}

	out, err := cmd.Output()
	if err != nil {
		// The paste tools exit non-zero when the clipboard is empty or
		// holds a different content type.
		return "", nil
	}
	return string(out), nil
}

// WriteText replaces the clipboard with text.
func (c *OSClipboard) WriteText(text string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "windows":
		cmd = exec.Command("powershell", "-NoProfile", "-Command", "$input | Set-Clipboard")
	default:
		if _, err := exec.LookPath("wl-copy"); err == nil {
			cmd = exec.Command("wl-copy")
		} else {
			cmd = exec.Command("xclip", "-selection", "clipboard", "-i")
		}
	}

	cmd.Stdin = bytes.NewReader([]byte(text))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("write clipboard text: %w", err)
	}
	return nil
}

// ReadImage returns the clipboard's PNG payload, or nil when the clipboard
// holds no image.
func (c *OSClipboard) ReadImage() ([]byte, error) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		if _, err := exec.LookPath("wl-paste"); err == nil {
			cmd = exec.Command("wl-paste", "--type", "image/png")
		} else {
			cmd = exec.Command("xclip", "-selection", "clipboard", "-t", "image/png", "-o")
		}
	default:
		return nil, ErrImageUnsupported
	}

	out, err := cmd.Output()
	if err != nil {
		return nil, nil
	}
	return out, nil
}

// WriteImage replaces the clipboard with a PNG payload.
func (c *OSClipboard) WriteImage(png []byte) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		if _, err := exec.LookPath("wl-copy"); err == nil {
			cmd = exec.Command("wl-copy", "--type", "image/png")
		} else {
			cmd = exec.Command("xclip", "-selection", "clipboard", "-t", "image/png", "-i")
		}
	default:
		return ErrImageUnsupported
	}

	cmd.Stdin = bytes.NewReader(png)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("write clipboard image: %w", err)
	}
	return nil
}
