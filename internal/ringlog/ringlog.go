// Package ringlog backs the per-device log tail the terminal UI renders
// (config UI.MaxLines). Each device's recent log lines live in a fixed-size
// ring so a busy device can't grow its tail view without bound.
package ringlog

import (
	"bytes"
	"sync"

	"github.com/smallnest/ringbuffer"
)

// Tail is a fixed-capacity, line-oriented log tail for one device.
type Tail struct {
	mu  sync.Mutex
	rb  *ringbuffer.RingBuffer
	cap int
}

// NewTail creates a Tail holding up to maxLines log lines (256 bytes/line
// budget, matching the UI's plain-text console rendering).
func NewTail(maxLines int) *Tail {
	if maxLines <= 0 {
		maxLines = 1
	}
	return &Tail{
		rb:  ringbuffer.New(maxLines * 256).SetBlocking(false),
		cap: maxLines,
	}
}

// Append records one log line, evicting the oldest line once maxLines are
// held, and the oldest bytes if the ring's byte budget is full.
func (t *Tail) Append(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	data := []byte(line)
	if len(data) == 0 {
		return
	}
	if data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	held := make([]byte, t.rb.Length())
	n, _ := t.rb.Peek(held)
	lines := bytes.Count(held[:n], []byte{'\n'})
	buf := make([]byte, 1)
	for (lines >= t.cap || t.rb.Free() < len(data)) && t.rb.Length() > 0 {
		_, _ = t.rb.Read(buf)
		if buf[0] == '\n' {
			lines--
		}
	}
	_, _ = t.rb.Write(data)
}

// Lines returns a snapshot of the buffered lines, oldest first, without
// consuming them.
func (t *Tail) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	buf := make([]byte, t.rb.Length())
	n, _ := t.rb.Peek(buf)
	buf = buf[:n]
	// put back what Peek consumed isn't needed: Peek does not advance the
	// read pointer in smallnest/ringbuffer, so the buffer is untouched here.

	var lines []string
	start := 0
	for i, b := range buf {
		if b == '\n' {
			lines = append(lines, string(buf[start:i]))
			start = i + 1
		}
	}
	return lines
}
