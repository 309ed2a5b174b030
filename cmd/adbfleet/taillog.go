package main

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/adbfleet/internal/ringlog"
)

// deviceTailHook fans log entries carrying a "device" field out into a
// per-device ringlog.Tail, so `status --watch` can show each device's
// recent activity without re-parsing the shared log stream.
type deviceTailHook struct {
	maxLines int

	mu    sync.Mutex
	tails map[string]*ringlog.Tail
}

func newDeviceTailHook(maxLines int) *deviceTailHook {
	return &deviceTailHook{maxLines: maxLines, tails: make(map[string]*ringlog.Tail)}
}

func (h *deviceTailHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *deviceTailHook) Fire(entry *logrus.Entry) error {
	deviceID, ok := entry.Data["device"].(string)
	if !ok {
		return nil
	}
	line, err := entry.String()
	if err != nil {
		line = entry.Message
	}

	h.mu.Lock()
	tail, ok := h.tails[deviceID]
	if !ok {
		tail = ringlog.NewTail(h.maxLines)
		h.tails[deviceID] = tail
	}
	h.mu.Unlock()

	tail.Append(line)
	return nil
}

func (h *deviceTailHook) Lines(deviceID string) []string {
	h.mu.Lock()
	tail, ok := h.tails[deviceID]
	h.mu.Unlock()
	if !ok {
		return nil
	}
	return tail.Lines()
}
