// Package adb is a thin, typed wrapper over the host debug-bridge CLI
// ("adb"): connect/disconnect, shell, push/pull, screencap+pull+rm for
// screenshots, input tap/swipe/text/keyevent, force-stop + monkey launch
// for app restarts, and the getprop/wm size probes for device info.
//
// Every call here is one spawned child process, bounded by an explicit or
// default timeout; on timeout the child is killed and the call fails with
// ferr.KindTimeout.
package adb

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/srg/adbfleet/internal/ferr"
)

// Info is the flattened device-info record reported for one device.
type Info struct {
	Model      string
	OSVersion  string
	Width      int
	Height     int
}

// Client wraps the adb CLI. It is safe for concurrent use across devices;
// per-device single-flight is the Device Manager's responsibility (§5).
type Client struct {
	Path          string
	Port          int
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration
	Debug         bool
	logger        *logrus.Logger
}

// NewClient builds a Client. logger defaults to a fresh logrus.Logger.
func NewClient(path string, port int, timeout time.Duration, maxRetries int, retryInterval time.Duration, logger *logrus.Logger) *Client {
	if path == "" {
		path = "adb"
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		Path:          path,
		Port:          port,
		Timeout:       timeout,
		MaxRetries:    maxRetries,
		RetryInterval: retryInterval,
		logger:        logger,
	}
}

// run spawns `adb <argv...>` bounded by timeout (falling back to c.Timeout
// when timeout <= 0), killing the child on expiry.
func (c *Client) run(ctx context.Context, timeout time.Duration, argv ...string) (stdout, stderr string, err error) {
	if timeout <= 0 {
		timeout = c.Timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.Path, argv...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	if c.Debug {
		c.logger.WithField("argv", argv).Debug("adb exec")
	}

	runErr := cmd.Run()
	stdout, stderr = outBuf.String(), errBuf.String()

	if runCtx.Err() == context.DeadlineExceeded {
		return stdout, stderr, ferr.Wrap(ferr.KindTimeout, runCtx.Err(), fmt.Sprintf("adb %s timed out after %s", strings.Join(argv, " "), timeout))
	}
	if runErr != nil {
		kind := ferr.KindBridgeFailure
		if isDeviceNotFound(stderr) {
			kind = ferr.KindDeviceNotFound
		}
		return stdout, stderr, ferr.Wrap(kind, runErr, strings.TrimSpace(stderr))
	}
	return stdout, stderr, nil
}

var deviceNotFoundRe = regexp.MustCompile(`(?i)device '.*' not found|no devices/emulators found|device offline`)

func isDeviceNotFound(stderr string) bool {
	return deviceNotFoundRe.MatchString(stderr)
}

// Initialize verifies the adb binary is runnable and ensures the local
// server is listening, starting it if necessary. Call once before issuing
// any device commands.
func (c *Client) Initialize(ctx context.Context) error {
	if _, _, err := c.run(ctx, 0, "version"); err != nil {
		return ferr.Wrap(ferr.KindBridgeFailure, err, "adb version")
	}
	if err := c.StartServer(ctx); err != nil {
		return ferr.Wrap(ferr.KindBridgeFailure, err, "start-server")
	}
	return nil
}

// StartServer starts the local adb server.
func (c *Client) StartServer(ctx context.Context) error {
	_, _, err := c.run(ctx, 0, "-P", strconv.Itoa(c.Port), "start-server")
	return err
}

// StopServer stops the local adb server.
func (c *Client) StopServer(ctx context.Context) error {
	_, _, err := c.run(ctx, 0, "-P", strconv.Itoa(c.Port), "kill-server")
	return err
}

// DeviceEntry is one row of `adb devices`.
type DeviceEntry struct {
	ID    string
	State string // "device", "offline", "unauthorized", ...
}

// ListDevices returns the rows of `adb devices`.
func (c *Client) ListDevices(ctx context.Context) ([]DeviceEntry, error) {
	out, _, err := c.run(ctx, 0, "-P", strconv.Itoa(c.Port), "devices")
	if err != nil {
		return nil, err
	}

	var entries []DeviceEntry
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "List of devices") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		entries = append(entries, DeviceEntry{ID: fields[0], State: fields[1]})
	}
	return entries, nil
}

// Connect connects to a host:port address, retrying up to MaxRetries times
// spaced by RetryInterval; idempotent on an already-connected device.
func (c *Client) Connect(ctx context.Context, id string) error {
	op := func() error {
		out, _, err := c.run(ctx, 0, "connect", id)
		if err != nil {
			return err
		}
		if strings.Contains(strings.ToLower(out), "unable to connect") || strings.Contains(strings.ToLower(out), "cannot connect") {
			return ferr.New(ferr.KindBridgeFailure, strings.TrimSpace(out))
		}
		return nil
	}

	if c.MaxRetries <= 0 {
		return op()
	}
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(c.RetryInterval), uint64(c.MaxRetries))
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

// Disconnect disconnects a host:port address; a no-op success if already
// disconnected.
func (c *Client) Disconnect(ctx context.Context, id string) error {
	_, _, err := c.run(ctx, 0, "disconnect", id)
	return err
}

// Exec runs `adb -s id <argv...>` and returns (ok, stdout, stderr).
func (c *Client) Exec(ctx context.Context, id string, argv []string, timeout time.Duration) (bool, string, string) {
	full := append([]string{"-s", id}, argv...)
	stdout, stderr, err := c.run(ctx, timeout, full...)
	return err == nil, stdout, stderr
}

// Shell runs `adb -s id shell <cmd>`.
func (c *Client) Shell(ctx context.Context, id, cmdline string, timeout time.Duration) (bool, string, string) {
	return c.Exec(ctx, id, []string{"shell", cmdline}, timeout)
}

// Push copies a local file onto the device.
func (c *Client) Push(ctx context.Context, id, local, remote string) error {
	_, _, err := c.run(ctx, 0, "-s", id, "push", local, remote)
	return err
}

// Pull copies a remote file to the local filesystem.
func (c *Client) Pull(ctx context.Context, id, remote, local string) error {
	_, _, err := c.run(ctx, 0, "-s", id, "pull", remote, local)
	return err
}

// Screenshot captures the device screen to a remote temp path, pulls it to
// localPath, and always removes the remote copy -- even when the pull
// fails.
func (c *Client) Screenshot(ctx context.Context, id, localPath string) error {
	remote := fmt.Sprintf("/sdcard/screenshot_%d.png", time.Now().UnixNano())

	ok, _, stderr := c.Shell(ctx, id, "screencap -p "+remote, 0)
	if !ok {
		return ferr.New(ferr.KindBridgeFailure, stderr)
	}

	pullErr := c.Pull(ctx, id, remote, localPath)
	_, _, _ = c.Shell(ctx, id, "rm -f "+remote, 0)
	return pullErr
}

// Tap sends `input tap x y`.
func (c *Client) Tap(ctx context.Context, id string, x, y int) error {
	ok, _, stderr := c.Shell(ctx, id, fmt.Sprintf("input tap %d %d", x, y), 0)
	if !ok {
		return ferr.New(ferr.KindBridgeFailure, stderr)
	}
	return nil
}

// Swipe sends `input swipe x1 y1 x2 y2 ms`.
func (c *Client) Swipe(ctx context.Context, id string, x1, y1, x2, y2 int, ms int) error {
	ok, _, stderr := c.Shell(ctx, id, fmt.Sprintf("input swipe %d %d %d %d %d", x1, y1, x2, y2, ms), 0)
	if !ok {
		return ferr.New(ferr.KindBridgeFailure, stderr)
	}
	return nil
}

// LongTap is a swipe to the same point, held for ms milliseconds.
func (c *Client) LongTap(ctx context.Context, id string, x, y, ms int) error {
	return c.Swipe(ctx, id, x, y, x, y, ms)
}

var shellEscaper = strings.NewReplacer(
	" ", "%s",
	"'", "\\'",
	"\"", "\\\"",
)

// Text sends `input text`, escaping whitespace and quotes as the device
// shell's tokenizer requires.
func (c *Client) Text(ctx context.Context, id, s string) error {
	escaped := shellEscaper.Replace(s)
	ok, _, stderr := c.Shell(ctx, id, fmt.Sprintf("input text %q", escaped), 0)
	if !ok {
		return ferr.New(ferr.KindBridgeFailure, stderr)
	}
	return nil
}

// Key sends `input keyevent code`.
func (c *Client) Key(ctx context.Context, id string, code int) error {
	ok, _, stderr := c.Shell(ctx, id, fmt.Sprintf("input keyevent %d", code), 0)
	if !ok {
		return ferr.New(ferr.KindBridgeFailure, stderr)
	}
	return nil
}

// RestartApp force-stops then launches a package via the launcher intent.
func (c *Client) RestartApp(ctx context.Context, id, pkg string) error {
	if ok, _, stderr := c.Shell(ctx, id, "am force-stop "+pkg, 0); !ok {
		return ferr.New(ferr.KindBridgeFailure, stderr)
	}
	if ok, _, stderr := c.Shell(ctx, id, fmt.Sprintf("monkey -p %s -c android.intent.category.LAUNCHER 1", pkg), 0); !ok {
		return ferr.New(ferr.KindBridgeFailure, stderr)
	}
	return nil
}

var sizeRe = regexp.MustCompile(`Physical size:\s*(\d+)x(\d+)`)

// Info queries model, OS version, and screen size.
func (c *Client) Info(ctx context.Context, id string) (Info, error) {
	var info Info

	if ok, out, stderr := c.Shell(ctx, id, "getprop ro.product.model", 0); ok {
		info.Model = strings.TrimSpace(out)
	} else {
		return info, ferr.New(ferr.KindBridgeFailure, stderr)
	}

	if ok, out, _ := c.Shell(ctx, id, "getprop ro.build.version.release", 0); ok {
		info.OSVersion = strings.TrimSpace(out)
	}

	if ok, out, _ := c.Shell(ctx, id, "wm size", 0); ok {
		if m := sizeRe.FindStringSubmatch(out); len(m) == 3 {
			info.Width, _ = strconv.Atoi(m[1])
			info.Height, _ = strconv.Atoi(m[2])
		}
	}

	return info, nil
}

// IsAwake reports whether the display is on, per
// `dumpsys power | grep 'Display Power: state='`.
func (c *Client) IsAwake(ctx context.Context, id string) (bool, error) {
	ok, out, stderr := c.Shell(ctx, id, "dumpsys power | grep 'Display Power: state='", 0)
	if !ok {
		return false, ferr.New(ferr.KindBridgeFailure, stderr)
	}
	return strings.Contains(out, "state=ON"), nil
}

// Wake sends the KEYCODE_WAKEUP key event.
func (c *Client) Wake(ctx context.Context, id string) error {
	ok, _, stderr := c.Shell(ctx, id, "input keyevent KEYCODE_WAKEUP", 0)
	if !ok {
		return ferr.New(ferr.KindBridgeFailure, stderr)
	}
	return nil
}
