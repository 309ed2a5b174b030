// Package scheduler drives wall-clock-triggered automation runs across the
// fleet: a rising-edge trigger on configured minutes-of-hour, batched
// fan-out with a bounded worker pool and inter-batch stagger, manual
// trigger entry points, and pause/resume/stop lifecycle control.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/srg/adbfleet/internal/device"
	"github.com/srg/adbfleet/internal/executor"
	"github.com/srg/adbfleet/internal/groutine"
	"github.com/srg/adbfleet/internal/script"
)

// Config are the scheduler's tunables, mirroring the config.Scheduler block.
type Config struct {
	Enabled      bool
	RunMinutes   []int
	MaxThreads   int
	RunOnStart   bool
	ThreadDelay  time.Duration
}

// runState tracks one in-flight automation run so Stop/Pause/Resume and the
// status queries can see what's active without re-deriving it from the
// worker pool.
type runState struct {
	mu              sync.Mutex
	running         bool
	paused          bool
	configName      string
	runningDevices  map[string]bool
	cancel          context.CancelFunc
}

func newRunState() *runState {
	return &runState{runningDevices: make(map[string]bool)}
}

// Scheduler owns the rising-edge trigger loop and batch fan-out.
type Scheduler struct {
	Config
	Devices  *device.Manager
	Scripts  *script.Store
	Exec     *executor.Executor
	Logger   *logrus.Logger
	Clock    clockwork.Clock

	state   *runState
	started time.Time
}

// New builds a Scheduler. A real wall clock is used unless overridden for
// tests via the Clock field.
func New(cfg Config, devices *device.Manager, scripts *script.Store, exec *executor.Executor, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scheduler{
		Config:  cfg,
		Devices: devices,
		Scripts: scripts,
		Exec:    exec,
		Logger:  logger,
		Clock:   clockwork.NewRealClock(),
		state:   newRunState(),
	}
}

// Run starts the 10-second-sampled rising-edge trigger loop and blocks
// until ctx is cancelled; when Enabled is false it logs that and returns at
// once. If RunOnStart is set, the current minute's
// automation fires once immediately -- but is then treated as already
// consumed, so the loop's first rising-edge check won't fire it a second
// time if the process happens to start exactly on a trigger minute.
func (s *Scheduler) Run(ctx context.Context, scriptName string) {
	s.started = s.Clock.Now()

	if !s.Enabled {
		s.Logger.Info("scheduler disabled, not starting trigger loop")
		return
	}

	previousMinute := s.Clock.Now().Minute()
	if s.RunOnStart {
		groutine.Go(ctx, "scheduler-run-on-start", func(ctx context.Context) {
			s.RunAutomation(ctx, scriptName)
		})
	}

	ticker := s.Clock.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			now := s.Clock.Now()
			currentMinute := now.Minute()
			if currentMinute != previousMinute && inSet(currentMinute, s.RunMinutes) {
				groutine.Go(ctx, "scheduler-trigger", func(ctx context.Context) {
					s.RunAutomation(ctx, scriptName)
				})
			}
			previousMinute = currentMinute
		}
	}
}

func inSet(m int, set []int) bool {
	for _, v := range set {
		if v == m {
			return true
		}
	}
	return false
}

// RunAutomation runs scriptName across every device in the fleet, in roster
// order, split into Devices.BatchSize batches with ThreadDelay stagger
// between batch starts and at most MaxThreads device runs at once.
func (s *Scheduler) RunAutomation(ctx context.Context, scriptName string) {
	s.RunSpecificConfig(ctx, scriptName, s.Devices.IDs())
}

// RunSpecificConfig runs scriptName across exactly the given device IDs,
// chaining into sc.NextConfig on completion the way the original executor
// recurses into next_config after a batch finishes.
func (s *Scheduler) RunSpecificConfig(ctx context.Context, scriptName string, deviceIDs []string) {
	s.state.mu.Lock()
	if s.state.running {
		s.state.mu.Unlock()
		s.Logger.WithField("script", scriptName).Warn("automation already running, skipping trigger")
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.state.running = true
	s.state.configName = scriptName
	s.state.cancel = cancel
	s.state.mu.Unlock()

	release := func() {
		s.state.mu.Lock()
		s.state.running = false
		s.state.configName = ""
		s.state.cancel = nil
		s.state.mu.Unlock()
	}

	sc, err := s.Scripts.Load(scriptName)
	if err != nil {
		release()
		s.Logger.WithField("script", scriptName).WithError(err).Error("failed to load script for run")
		return
	}

	s.runBatch(runCtx, sc, deviceIDs)

	// Release the running guard before chaining into next_config: the
	// recursive call below takes the guard itself, and holding it across
	// the recursion would make RunSpecificConfig see its own chain as
	// already running and skip it.
	next := s.Scripts.NextConfig(sc)
	release()

	if next != "" {
		s.RunSpecificConfig(ctx, next, deviceIDs)
	}
}

// runBatch partitions deviceIDs into batches of Devices.BatchSize and spawns
// one batch task per batch, staggered by ThreadDelay between batch starts.
// Batches are not serialized against each other -- once all are spawned,
// runBatch waits for every batch task to finish. Within a batch, only
// devices that connect successfully get a device task; MaxThreads bounds
// how many device tasks run concurrently across every batch.
func (s *Scheduler) runBatch(ctx context.Context, sc *script.Script, deviceIDs []string) {
	maxThreads := s.MaxThreads
	if maxThreads <= 0 {
		maxThreads = 1
	}
	pool := pond.NewPool(maxThreads)
	defer pool.StopAndWait()

	batches := chunk(deviceIDs, s.Devices.BatchSize)

	var wg sync.WaitGroup
batchLoop:
	for i, batch := range batches {
		if ctx.Err() != nil {
			break
		}
		batch := batch
		wg.Add(1)
		groutine.Go(ctx, "scheduler-batch", func(ctx context.Context) {
			defer wg.Done()
			s.runDeviceBatch(ctx, pool, batch, sc)
		})

		if s.ThreadDelay > 0 && i < len(batches)-1 {
			select {
			case <-ctx.Done():
				break batchLoop
			case <-time.After(s.ThreadDelay):
			}
		}
	}
	wg.Wait()
}

// chunk splits ids into consecutive groups of size (or one group of
// everything when size <= 0).
func chunk(ids []string, size int) [][]string {
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

// runDeviceBatch connects every device in batch, then runs sc against every
// device that ends up connected, waiting for all of them before returning.
func (s *Scheduler) runDeviceBatch(ctx context.Context, pool pond.Pool, batch []string, sc *script.Script) {
	s.Devices.ConnectDevices(ctx, batch)

	var wg sync.WaitGroup
	for _, id := range batch {
		if !s.Devices.IsConnected(id) {
			s.Logger.WithField("device", id).Warn("device not connected after batch connect, skipping")
			continue
		}
		id := id
		s.markRunning(id, true)
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			defer s.markRunning(id, false)
			s.runDeviceAutomation(ctx, id, sc)
		})
	}
	wg.Wait()
}

func (s *Scheduler) markRunning(id string, running bool) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if running {
		s.state.runningDevices[id] = true
	} else {
		delete(s.state.runningDevices, id)
	}
}

func (s *Scheduler) runDeviceAutomation(ctx context.Context, deviceID string, sc *script.Script) {
	var result executor.Result
	s.Devices.WithDevice(deviceID, func() {
		result = s.Exec.RunScript(ctx, deviceID, sc)
	})

	logEntry := s.Logger.WithField("device", deviceID).WithField("script", sc.Name)
	switch {
	case result.Cancelled:
		logEntry.Info("automation run cancelled")
	case result.Err != nil:
		logEntry.WithError(result.Err).WithField("step", result.FailedStep).Error("automation run failed")
	case result.RestartRequested:
		logEntry.Info("automation run ended with app restart")
	default:
		logEntry.Info("automation run completed")
	}
}

// StopAutomation cancels the in-flight run, if any.
func (s *Scheduler) StopAutomation() {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if s.state.cancel != nil {
		s.state.cancel()
	}
}

// PauseAutomation halts step progress fleet-wide without cancelling
// in-flight device connections.
func (s *Scheduler) PauseAutomation() {
	s.state.mu.Lock()
	s.state.paused = true
	s.state.mu.Unlock()
	s.Exec.Pause.Pause()
}

// ResumeAutomation releases a fleet-wide pause.
func (s *Scheduler) ResumeAutomation() {
	s.state.mu.Lock()
	s.state.paused = false
	s.state.mu.Unlock()
	s.Exec.Pause.Resume()
}

// IsRunning reports whether an automation run is currently in flight.
func (s *Scheduler) IsRunning() bool {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	return s.state.running
}

// IsPaused reports whether the fleet is currently paused.
func (s *Scheduler) IsPaused() bool {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	return s.state.paused
}

// RunningDevices returns the IDs of devices with an in-flight step.
func (s *Scheduler) RunningDevices() []string {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	ids := make([]string, 0, len(s.state.runningDevices))
	for id := range s.state.runningDevices {
		ids = append(ids, id)
	}
	return ids
}
