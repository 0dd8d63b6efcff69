package deck

import (
	"bufio"
	"io"
)

// Buffer sizes for JSONL scanners. Session files routinely carry very long
// lines (base64 images, large tool results), so the max capacity is generous.
const (
	DefaultBufferSize  = 64 * 1024        // 64KB initial buffer
	MaxLineCapacity    = 10 * 1024 * 1024 // 10MB max line capacity
	MaxScannerCapacity = 16 * 1024 * 1024 // 16MB max scanner capacity
)

// NewScanner creates a bufio.Scanner sized for large JSONL session files.
func NewScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, DefaultBufferSize)
	scanner.Buffer(buf, MaxLineCapacity)
	return scanner
}

// NewScannerWithCapacity creates a bufio.Scanner with custom buffer limits.
func NewScannerWithCapacity(r io.Reader, initialBufSize, maxCapacity int) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, initialBufSize)
	scanner.Buffer(buf, maxCapacity)
	return scanner
}

// TruncateString truncates s to max bytes, appending "..." when truncated.
func TruncateString(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
