package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/adbfleet/internal/adb"
	"github.com/srg/adbfleet/internal/ferr"
	"github.com/srg/adbfleet/internal/groutine"
)

// Manager owns the fleet roster: it connects/disconnects devices, runs a
// background health loop that reconnects devices auto_reconnect allows,
// and hands out per-device run-locks so the executor never runs two steps
// on the same device concurrently.
type Manager struct {
	bridge *adb.Client
	logger *logrus.Logger

	AutoReconnect       bool
	ConnectTimeout      time.Duration
	StatusCheckInterval time.Duration
	BatchSize           int

	mu       sync.RWMutex
	records  map[string]*Record
	runLocks map[string]*sync.Mutex
	order    []string // roster order, preserved for deterministic batching
}

// NewManager builds a Manager around bridge.
func NewManager(bridge *adb.Client, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		bridge:              bridge,
		logger:              logger,
		AutoReconnect:       true,
		ConnectTimeout:      15 * time.Second,
		StatusCheckInterval: 60 * time.Second,
		BatchSize:           10,
		records:             make(map[string]*Record),
		runLocks:            make(map[string]*sync.Mutex),
	}
}

// LoadRoster replaces the fleet with the records parsed from path.
func (m *Manager) LoadRoster(path string) error {
	records, err := LoadRosterFile(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]*Record, len(records))
	m.runLocks = make(map[string]*sync.Mutex, len(records))
	m.order = make([]string, 0, len(records))
	for _, r := range records {
		m.records[r.ID] = r
		m.runLocks[r.ID] = &sync.Mutex{}
		m.order = append(m.order, r.ID)
	}
	m.logger.WithField("count", len(records)).Info("device roster loaded")
	return nil
}

// IDs returns every known device ID in roster order, the same order
// Batches() derives its chunks from.
func (m *Manager) IDs() []string {
	return m.orderedIDs()
}

// orderedIDs returns every known device ID in roster order.
func (m *Manager) orderedIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Batches splits the roster, in roster order, into chunks of BatchSize
// (falling back to one batch of everything when BatchSize <= 0).
func (m *Manager) Batches() [][]string {
	ids := m.orderedIDs()
	size := m.BatchSize
	if size <= 0 {
		size = len(ids)
	}
	if size <= 0 {
		return nil
	}

	var batches [][]string
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[i:end])
	}
	return batches
}

// Counts reports the roster size and how many devices are currently
// connected.
func (m *Manager) Counts() (total, connected int) {
	for _, rec := range m.All() {
		total++
		if rec.State == StateConnected {
			connected++
		}
	}
	return total, connected
}

// IsConnected reports whether device id is currently connected.
func (m *Manager) IsConnected(id string) bool {
	rec, ok := m.Get(id)
	return ok && rec.IsConnected()
}

// GetInfo returns the last-probed device info for id.
func (m *Manager) GetInfo(id string) (adb.Info, bool) {
	rec, ok := m.Get(id)
	if !ok {
		return adb.Info{}, false
	}
	return rec.Snapshot().Info, true
}

// DeviceLogger returns a logger entry tagged with id, for per-device log
// tailing (ringlog hooks key off this field).
func (m *Manager) DeviceLogger(id string) *logrus.Entry {
	return m.logger.WithField("device", id)
}

// ConnectDevices connects every device in ids concurrently, logging but not
// aborting on individual failures; it's the shared primitive behind
// ConnectAll and ConnectBatch.
func (m *Manager) ConnectDevices(ctx context.Context, ids []string) {
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := m.Connect(ctx, id); err != nil {
				m.logger.WithField("device", id).WithError(err).Warn("connect failed")
			}
		}(id)
	}
	wg.Wait()
}

// ConnectAll connects every device in the roster.
func (m *Manager) ConnectAll(ctx context.Context) {
	m.ConnectDevices(ctx, m.orderedIDs())
}

// DisconnectAll disconnects every device in the roster.
func (m *Manager) DisconnectAll(ctx context.Context) {
	for _, id := range m.orderedIDs() {
		if err := m.Disconnect(ctx, id); err != nil {
			m.logger.WithField("device", id).WithError(err).Warn("disconnect failed")
		}
	}
}

// ConnectBatch connects every device in the batch at index, as produced by
// Batches(); an out-of-range index connects nothing and returns a
// KindScriptInvalid error.
func (m *Manager) ConnectBatch(ctx context.Context, index int) error {
	batches := m.Batches()
	if index < 0 || index >= len(batches) {
		return ferr.New(ferr.KindScriptInvalid, fmt.Sprintf("batch index %d out of range", index))
	}
	m.ConnectDevices(ctx, batches[index])
	return nil
}

// All returns a snapshot of every known device.
func (m *Manager) All() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r.Snapshot())
	}
	return out
}

// Get returns the record for id, or false if the fleet doesn't know it.
func (m *Manager) Get(id string) (*Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	return r, ok
}

func (m *Manager) runLock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.runLocks[id]
	if !ok {
		l = &sync.Mutex{}
		m.runLocks[id] = l
	}
	return l
}

// WithDevice serializes access to device id: only one caller at a time may
// run fn against a given device, so a batch fan-out that happens to target
// the same device twice (chained scripts, manual + scheduled runs) can
// never race on one device's connection.
func (m *Manager) WithDevice(id string, fn func()) {
	lock := m.runLock(id)
	lock.Lock()
	defer lock.Unlock()
	fn()
}

// Connect connects device id, recording the attempt regardless of outcome.
func (m *Manager) Connect(ctx context.Context, id string) error {
	rec, ok := m.Get(id)
	if !ok {
		return ferr.New(ferr.KindDeviceNotFound, id)
	}

	rec.SetState(StateConnecting)
	rec.recordAttempt()

	if err := m.bridge.Connect(ctx, id); err != nil {
		rec.SetState(StateDisconnected)
		return err
	}

	info, err := m.bridge.Info(ctx, id)
	if err == nil {
		rec.setInfo(info)
	}

	rec.SetState(StateConnected)
	rec.resetAttempts()
	return nil
}

// Disconnect disconnects device id.
func (m *Manager) Disconnect(ctx context.Context, id string) error {
	rec, ok := m.Get(id)
	if !ok {
		return ferr.New(ferr.KindDeviceNotFound, id)
	}
	err := m.bridge.Disconnect(ctx, id)
	rec.SetState(StateDisconnected)
	return err
}

// RefreshStatuses polls the bridge's device list and reconciles every known
// record's connection state against it.
func (m *Manager) RefreshStatuses(ctx context.Context) error {
	entries, err := m.bridge.ListDevices(ctx)
	if err != nil {
		return err
	}
	live := make(map[string]string, len(entries))
	for _, e := range entries {
		live[e.ID] = e.State
	}

	m.mu.RLock()
	records := make([]*Record, 0, len(m.records))
	for _, r := range m.records {
		records = append(records, r)
	}
	m.mu.RUnlock()

	for _, rec := range records {
		state, found := live[rec.ID]
		switch {
		case found && state == "device":
			rec.SetState(StateConnected)
			rec.resetAttempts()
		case found:
			rec.SetState(StateUnhealthy)
		default:
			rec.SetState(StateDisconnected)
		}
	}
	return nil
}

// reconnectDue reports whether enough time has passed since the last
// attempt on rec to try again, bounding reconnect storms to one attempt
// per ConnectTimeout window per device.
func (m *Manager) reconnectDue(rec *Record) bool {
	snap := rec.Snapshot()
	if snap.State == StateConnected {
		return false
	}
	return time.Since(snap.LastConnectAttempt) >= m.ConnectTimeout
}

// RunHealthLoop polls device status and reconnects unhealthy devices every
// StatusCheckInterval until stop is closed.
func (m *Manager) RunHealthLoop(ctx context.Context, stop <-chan struct{}) {
	groutine.Go(ctx, "device-health-loop", func(ctx context.Context) {
		ticker := time.NewTicker(m.StatusCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.RefreshStatuses(ctx); err != nil {
					m.logger.WithError(err).Warn("device status refresh failed")
					continue
				}
				if !m.AutoReconnect {
					continue
				}
				for _, rec := range m.All() {
					if rec.State == StateConnected {
						continue
					}
					if full, ok := m.Get(rec.ID); ok && m.reconnectDue(full) {
						if err := m.Connect(ctx, rec.ID); err != nil {
							m.logger.WithField("device", rec.ID).WithError(err).Debug("reconnect attempt failed")
						}
					}
				}
			}
		}
	})
}

// Screenshot captures device id's screen to localPath, tagging the device
// with a "screenshot" action for the duration of the call.
func (m *Manager) Screenshot(ctx context.Context, id, localPath string) error {
	rec, ok := m.Get(id)
	if !ok {
		return ferr.New(ferr.KindDeviceNotFound, id)
	}
	var err error
	rec.WithAction("screenshot", func() {
		err = m.bridge.Screenshot(ctx, id, localPath)
	})
	return err
}

// Tap sends a tap at (x, y) to device id.
func (m *Manager) Tap(ctx context.Context, id string, x, y int) error {
	rec, ok := m.Get(id)
	if !ok {
		return ferr.New(ferr.KindDeviceNotFound, id)
	}
	var err error
	rec.WithAction("tap", func() {
		err = m.bridge.Tap(ctx, id, x, y)
	})
	return err
}

// LongTap holds a tap at (x, y) for ms milliseconds on device id.
func (m *Manager) LongTap(ctx context.Context, id string, x, y, ms int) error {
	rec, ok := m.Get(id)
	if !ok {
		return ferr.New(ferr.KindDeviceNotFound, id)
	}
	var err error
	rec.WithAction("long_tap", func() {
		err = m.bridge.LongTap(ctx, id, x, y, ms)
	})
	return err
}

// Swipe sends a swipe gesture from (x1, y1) to (x2, y2) over ms
// milliseconds on device id.
func (m *Manager) Swipe(ctx context.Context, id string, x1, y1, x2, y2, ms int) error {
	rec, ok := m.Get(id)
	if !ok {
		return ferr.New(ferr.KindDeviceNotFound, id)
	}
	var err error
	rec.WithAction("swipe", func() {
		err = m.bridge.Swipe(ctx, id, x1, y1, x2, y2, ms)
	})
	return err
}

// Text types s into the focused field on device id.
func (m *Manager) Text(ctx context.Context, id, s string) error {
	rec, ok := m.Get(id)
	if !ok {
		return ferr.New(ferr.KindDeviceNotFound, id)
	}
	var err error
	rec.WithAction("text", func() {
		err = m.bridge.Text(ctx, id, s)
	})
	return err
}

// Key sends a keyevent code to device id.
func (m *Manager) Key(ctx context.Context, id string, code int) error {
	rec, ok := m.Get(id)
	if !ok {
		return ferr.New(ferr.KindDeviceNotFound, id)
	}
	var err error
	rec.WithAction("key", func() {
		err = m.bridge.Key(ctx, id, code)
	})
	return err
}

// Shell runs cmdline on device id, tagged with actionLabel (falling back to
// "shell" when empty).
func (m *Manager) Shell(ctx context.Context, id, cmdline, actionLabel string, timeout time.Duration) (bool, string, string) {
	rec, ok := m.Get(id)
	if !ok {
		return false, "", ferr.New(ferr.KindDeviceNotFound, id).Error()
	}
	if actionLabel == "" {
		actionLabel = "shell"
	}
	var ok2 bool
	var stdout, stderr string
	rec.WithAction(actionLabel, func() {
		ok2, stdout, stderr = m.bridge.Shell(ctx, id, cmdline, timeout)
	})
	return ok2, stdout, stderr
}

// RestartApp force-stops and relaunches pkg on device id, tagged with label
// (falling back to "restart_app" when empty).
func (m *Manager) RestartApp(ctx context.Context, id, pkg, label string) error {
	rec, ok := m.Get(id)
	if !ok {
		return ferr.New(ferr.KindDeviceNotFound, id)
	}
	if label == "" {
		label = "restart_app"
	}
	var err error
	rec.WithAction(label, func() {
		err = m.bridge.RestartApp(ctx, id, pkg)
	})
	return err
}
