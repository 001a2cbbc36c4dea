//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chukwu07/savings-sensei/internal/types"
	"github.com/chukwu07/savings-sensei/pkg/offline"
)

const e2eSecret = "e2e-test-jwt-secret"

// senseiServer manages a running `sensei serve` process.
type senseiServer struct {
	cmd     *exec.Cmd
	dataDir string
	address string
	logFile string
}

// startSensei launches the hosted API on a fresh SQLite database and waits
// for it to become healthy.
func startSensei(t *testing.T) *senseiServer {
	t.Helper()
	requireSensei(t)
	return launchSensei(t, t.TempDir(), "sensei.log")
}

func launchSensei(t *testing.T, dataDir, logName string) *senseiServer {
	t.Helper()

	port := freePort(t)
	logFile := filepath.Join(dataDir, logName)

	cmd := exec.Command(senseiBin, "serve")
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("SENSEI_PORT=%d", port),
		"SENSEI_DB_DRIVER=sqlite",
		"SENSEI_DB_PATH="+filepath.Join(dataDir, "sensei.db"),
		"SENSEI_JWT_SECRET="+e2eSecret,
		"SENSEI_CONFIG_PATH="+filepath.Join(dataDir, "nonexistent.yaml"),
	)

	lf, err := os.Create(logFile)
	if err != nil {
		t.Fatalf("create log file: %v", err)
	}
	cmd.Stdout = lf
	cmd.Stderr = lf

	if err := cmd.Start(); err != nil {
		lf.Close()
		t.Fatalf("start sensei: %v", err)
	}

	s := &senseiServer{
		cmd:     cmd,
		dataDir: dataDir,
		address: fmt.Sprintf("127.0.0.1:%d", port),
		logFile: logFile,
	}

	t.Cleanup(func() {
		s.stop()
		lf.Close()
	})

	if err := s.waitHealthy(10 * time.Second); err != nil {
		t.Fatalf("sensei not healthy: %v", err)
	}
	return s
}

func (s *senseiServer) stop() {
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Signal(os.Interrupt)
		_ = s.cmd.Wait()
	}
}

func (s *senseiServer) baseURL() string {
	return fmt.Sprintf("http://%s", s.address)
}

func (s *senseiServer) waitHealthy(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	url := fmt.Sprintf("%s/api/v1/health", s.baseURL())

	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("sensei not healthy after %s", timeout)
}

// restartOnSameData stops the server and starts a new one on the same
// database. The new server listens on a different port.
func (s *senseiServer) restartOnSameData(t *testing.T) *senseiServer {
	t.Helper()
	s.stop()
	time.Sleep(200 * time.Millisecond) // allow port release
	return launchSensei(t, s.dataDir, "sensei-restart.log")
}

// token issues a bearer token for userID with `sensei token`.
func token(t *testing.T, userID string) string {
	t.Helper()
	cmd := exec.Command(senseiBin, "token", "--user", userID, "--ttl", "1h")
	cmd.Env = append(os.Environ(),
		"SENSEI_JWT_SECRET="+e2eSecret,
		"SENSEI_CONFIG_PATH="+filepath.Join(t.TempDir(), "nonexistent.yaml"),
	)
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("sensei token: %v", err)
	}
	return strings.TrimSpace(string(out))
}

// remoteRecords lists a table on the hosted API as userID.
func (s *senseiServer) remoteRecords(t *testing.T, table types.Table, userID string) []types.Record {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/v1/%s", s.baseURL(), table), nil)
	req.Header.Set("Authorization", "Bearer "+token(t, userID))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("list %s: %v", table, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("list %s: status %d: %s", table, resp.StatusCode, body)
	}
	var list types.ListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	return list.Records
}

// device is one installation of the app: a local store file plus the
// credentials it syncs with.
type device struct {
	localPath string
	userID    string
	server    *senseiServer
	token     string
}

func newDevice(t *testing.T, server *senseiServer, userID string) *device {
	t.Helper()
	return &device{
		localPath: filepath.Join(t.TempDir(), "device.db"),
		userID:    userID,
		server:    server,
		token:     token(t, userID),
	}
}

// open opens the device's local store in-process for record writes and
// reads. The client never touches the network.
func (d *device) open(t *testing.T) *offline.Client {
	t.Helper()
	c, err := offline.New(offline.Config{
		LocalPath:   d.localPath,
		OfflineMode: true,
	},
		offline.WithIdentity(offline.StaticIdentity(d.userID)),
		offline.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("open device: %v", err)
	}
	return c
}

// write runs fn against the device's local store and closes it again so
// the CLI can open the file.
func (d *device) write(t *testing.T, fn func(ctx context.Context, c *offline.Client)) {
	t.Helper()
	c := d.open(t)
	fn(context.Background(), c)
	if err := c.Shutdown(); err != nil {
		t.Fatalf("close device: %v", err)
	}
}

func (d *device) exec(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(senseiBin, append([]string{"local", "--user", d.userID}, args...)...)
	cmd.Env = append(os.Environ(),
		"SENSEI_LOCAL_PATH="+d.localPath,
		"SENSEI_REMOTE_URL="+d.server.baseURL(),
		"SENSEI_TOKEN="+d.token,
		"SENSEI_LOG_LEVEL=error",
		"SENSEI_CONFIG_PATH="+filepath.Join(filepath.Dir(d.localPath), "nonexistent.yaml"),
	)
	out, err := cmd.Output()
	return string(out), err
}

type syncResult struct {
	Stats   offline.SyncStats `json:"stats"`
	Pending int               `json:"pending"`
}

// sync runs `sensei local sync` and decodes its report.
func (d *device) sync(t *testing.T) syncResult {
	t.Helper()
	out, err := d.exec(t, "sync", "--json")
	if err != nil {
		t.Fatalf("sensei local sync: %v\noutput: %s", err, out)
	}
	var res syncResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode sync output %q: %v", out, err)
	}
	return res
}

// freePort returns a free TCP port.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
