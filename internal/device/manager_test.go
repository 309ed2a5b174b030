package device

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeRoster(t *testing.T, lines string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "devices.txt")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))
	return path
}

func TestManager_LoadRoster(t *testing.T) {
	path := writeRoster(t, "127.0.0.1:5555:emu-a\n127.0.0.1:5556:emu-b\n")
	m := NewManager(nil, nil)
	require.NoError(t, m.LoadRoster(path))

	all := m.All()
	require.Len(t, all, 2)

	_, ok := m.Get("127.0.0.1:5555")
	require.True(t, ok)
}

func TestManager_WithDeviceSerializesPerDevice(t *testing.T) {
	path := writeRoster(t, "127.0.0.1:5555:emu-a\n")
	m := NewManager(nil, nil)
	require.NoError(t, m.LoadRoster(path))

	var active int32
	var maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.WithDevice("127.0.0.1:5555", func() {
				n := atomic.AddInt32(&active, 1)
				if n > atomic.LoadInt32(&maxActive) {
					atomic.StoreInt32(&maxActive, n)
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
			})
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), maxActive)
}

func TestManager_IDsPreservesRosterOrder(t *testing.T) {
	path := writeRoster(t, "127.0.0.1:5555:emu-a\n127.0.0.1:5556:emu-b\n127.0.0.1:5557:emu-c\n")
	m := NewManager(nil, nil)
	require.NoError(t, m.LoadRoster(path))

	require.Equal(t, []string{"127.0.0.1:5555", "127.0.0.1:5556", "127.0.0.1:5557"}, m.IDs())
}

func TestManager_BatchesChunksByBatchSize(t *testing.T) {
	path := writeRoster(t, "127.0.0.1:5555:emu-a\n127.0.0.1:5556:emu-b\n127.0.0.1:5557:emu-c\n")
	m := NewManager(nil, nil)
	require.NoError(t, m.LoadRoster(path))
	m.BatchSize = 2

	batches := m.Batches()
	require.Len(t, batches, 2)
	require.Equal(t, []string{"127.0.0.1:5555", "127.0.0.1:5556"}, batches[0])
	require.Equal(t, []string{"127.0.0.1:5557"}, batches[1])
}

func TestManager_BatchesFallsBackToOneBatchWhenSizeIsZero(t *testing.T) {
	path := writeRoster(t, "127.0.0.1:5555:emu-a\n127.0.0.1:5556:emu-b\n")
	m := NewManager(nil, nil)
	require.NoError(t, m.LoadRoster(path))
	m.BatchSize = 0

	batches := m.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
}

func TestManager_ConnectBatchRejectsOutOfRangeIndex(t *testing.T) {
	path := writeRoster(t, "127.0.0.1:5555:emu-a\n")
	m := NewManager(nil, nil)
	require.NoError(t, m.LoadRoster(path))
	m.BatchSize = 10

	require.Error(t, m.ConnectBatch(nil, 5))
}

func TestManager_CountsReportsConnectedSubset(t *testing.T) {
	path := writeRoster(t, "127.0.0.1:5555:emu-a\n127.0.0.1:5556:emu-b\n")
	m := NewManager(nil, nil)
	require.NoError(t, m.LoadRoster(path))

	rec, ok := m.Get("127.0.0.1:5555")
	require.True(t, ok)
	rec.SetState(StateConnected)

	total, connected := m.Counts()
	require.Equal(t, 2, total)
	require.Equal(t, 1, connected)
}

func TestManager_IsConnectedReflectsState(t *testing.T) {
	path := writeRoster(t, "127.0.0.1:5555:emu-a\n")
	m := NewManager(nil, nil)
	require.NoError(t, m.LoadRoster(path))

	require.False(t, m.IsConnected("127.0.0.1:5555"))
	require.False(t, m.IsConnected("unknown"))

	rec, _ := m.Get("127.0.0.1:5555")
	rec.SetState(StateConnected)
	require.True(t, m.IsConnected("127.0.0.1:5555"))
}

func TestManager_ActionMethodsReturnDeviceNotFoundForUnknownID(t *testing.T) {
	m := NewManager(nil, nil)

	require.Error(t, m.Screenshot(nil, "ghost", "/tmp/x.png"))
	require.Error(t, m.Tap(nil, "ghost", 1, 1))
	require.Error(t, m.LongTap(nil, "ghost", 1, 1, 100))
	require.Error(t, m.Swipe(nil, "ghost", 0, 0, 1, 1, 100))
	require.Error(t, m.Text(nil, "ghost", "hi"))
	require.Error(t, m.Key(nil, "ghost", 4))
	require.Error(t, m.RestartApp(nil, "ghost", "com.example", ""))

	ok, _, _ := m.Shell(nil, "ghost", "echo hi", "", 0)
	require.False(t, ok)
}

func TestManager_ReconnectDue(t *testing.T) {
	path := writeRoster(t, "127.0.0.1:5555:emu-a\n")
	m := NewManager(nil, nil)
	require.NoError(t, m.LoadRoster(path))
	m.ConnectTimeout = 10 * time.Millisecond

	rec, _ := m.Get("127.0.0.1:5555")
	require.True(t, m.reconnectDue(rec))

	rec.recordAttempt()
	require.False(t, m.reconnectDue(rec))

	time.Sleep(20 * time.Millisecond)
	require.True(t, m.reconnectDue(rec))
}
